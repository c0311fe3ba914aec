package auth

import (
	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes mounts the token endpoints on r and the account endpoints
// under /users on root.
func RegisterRoutes(r fiber.Router, root fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/register", func(c *fiber.Ctx) error {
		var req RegisterRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		user, tokens, err := svc.Register(c.UserContext(), req)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"user": user, "tokens": tokens})
	})

	r.Post("/login", func(c *fiber.Ctx) error {
		var req LoginRequest
		if err := c.BodyParser(&req); err != nil || req.Email == "" || req.Password == "" {
			return fiber.NewError(fiber.StatusBadRequest, "email and password required")
		}
		user, resp, err := svc.Login(c.UserContext(), req)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"user": user, "tokens": resp})
	})

	r.Post("/refresh", func(c *fiber.Ctx) error {
		var req RefreshRequest
		if err := c.BodyParser(&req); err != nil || req.RefreshToken == "" {
			return fiber.NewError(fiber.StatusBadRequest, "refresh_token required")
		}

		id, err := svc.ValidateRefreshToken(c.UserContext(), req.RefreshToken)
		if err != nil {
			return err
		}

		resp, err := svc.GenerateTokens(c.UserContext(), id)
		if err != nil {
			return err
		}
		return c.JSON(resp)
	})

	r.Get("/jwt/verify", func(c *fiber.Ctx) error {
		token := bearerFromHeader(c.Get("Authorization"))
		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		id, err := svc.ValidateAccessToken(token)
		if err != nil {
			return err
		}
		return c.JSON(id)
	})

	root.Get("/users/me/preferences", authMiddleware, func(c *fiber.Ctx) error {
		prefs, err := svc.Preferences(c.UserContext(), UserID(c))
		if err != nil {
			return err
		}
		return c.JSON(prefs)
	})

	root.Put("/users/me/preferences", authMiddleware, func(c *fiber.Ctx) error {
		var patch PreferencesPatch
		if err := c.BodyParser(&patch); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		prefs, err := svc.UpdatePreferences(c.UserContext(), UserID(c), patch)
		if err != nil {
			return err
		}
		return c.JSON(prefs)
	})

	root.Delete("/users/me", authMiddleware, func(c *fiber.Ctx) error {
		report, err := svc.DeleteAccount(c.UserContext(), UserID(c))
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"deleted": true, "files": report})
	})

	root.Put("/users/:id/role", authMiddleware, RequireRole(RoleAdmin), func(c *fiber.Ctx) error {
		var body struct {
			Role string `json:"role"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		if err := svc.SetRole(c.UserContext(), Role(c), c.Params("id"), body.Role); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"id": c.Params("id"), "role": body.Role})
	})

	root.Get("/users/:id", func(c *fiber.Ctx) error {
		profile, err := svc.Profile(c.UserContext(), c.Params("id"))
		if err != nil {
			return err
		}
		return c.JSON(profile)
	})
}
