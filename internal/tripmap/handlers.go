package tripmap

import (
	"github.com/apmanager001/tripmaps-sub000/internal/auth"
	"github.com/apmanager001/tripmaps-sub000/internal/shared/page"

	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes mounts /maps and /users/:id/maps on r.
func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware, optionalAuth fiber.Handler) {
	r.Post("/maps", authMiddleware, func(c *fiber.Ctx) error {
		var in CreateInput
		if err := c.BodyParser(&in); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid body")
		}
		m, err := svc.Create(c.UserContext(), auth.UserID(c), in)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(m)
	})

	r.Get("/maps/popular", func(c *fiber.Ctx) error {
		maps, err := svc.Popular(c.UserContext(), page.FromQuery(c))
		if err != nil {
			return err
		}
		return c.JSON(maps)
	})

	r.Get("/maps/search", func(c *fiber.Ctx) error {
		maps, err := svc.SearchByName(c.UserContext(), c.Query("q"), page.FromQuery(c))
		if err != nil {
			return err
		}
		return c.JSON(maps)
	})

	r.Get("/maps/:id", optionalAuth, func(c *fiber.Ctx) error {
		m, err := svc.Get(c.UserContext(), c.Params("id"), auth.UserID(c))
		if err != nil {
			return err
		}
		return c.JSON(m)
	})

	r.Put("/maps/:id", authMiddleware, func(c *fiber.Ctx) error {
		var patch Patch
		if err := c.BodyParser(&patch); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid body")
		}
		m, err := svc.Update(c.UserContext(), c.Params("id"), auth.UserID(c), patch)
		if err != nil {
			return err
		}
		return c.JSON(m)
	})

	r.Delete("/maps/:id", authMiddleware, func(c *fiber.Ctx) error {
		report, err := svc.Delete(c.UserContext(), c.Params("id"), auth.UserID(c), auth.Role(c))
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"deleted": true, "files": report})
	})

	r.Post("/maps/:id/like", authMiddleware, func(c *fiber.Ctx) error {
		state, err := svc.ToggleLike(c.UserContext(), c.Params("id"), auth.UserID(c))
		if err != nil {
			return err
		}
		return c.JSON(state)
	})

	r.Get("/users/:id/maps", optionalAuth, func(c *fiber.Ctx) error {
		maps, err := svc.ListByUser(c.UserContext(), c.Params("id"), auth.UserID(c), page.FromQuery(c))
		if err != nil {
			return err
		}
		return c.JSON(maps)
	})
}
