package moderation

import (
	"github.com/apmanager001/tripmaps-sub000/internal/auth"
	"github.com/apmanager001/tripmaps-sub000/internal/shared/page"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	staff := auth.RequireRole(auth.RoleModerator, auth.RoleAdmin)

	r.Post("/flags", authMiddleware, func(c *fiber.Ctx) error {
		var in FlagInput
		if err := c.BodyParser(&in); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid body")
		}
		f, err := svc.Flag(c.UserContext(), auth.UserID(c), in)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(f)
	})

	r.Get("/flags", authMiddleware, staff, func(c *fiber.Ctx) error {
		flags, err := svc.Flags(c.UserContext(), auth.Role(c), c.Query("status"), page.FromQuery(c))
		if err != nil {
			return err
		}
		return c.JSON(flags)
	})

	r.Put("/flags/:id", authMiddleware, staff, func(c *fiber.Ctx) error {
		var body struct {
			Status string `json:"status"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid body")
		}
		f, err := svc.Resolve(c.UserContext(), c.Params("id"), auth.UserID(c), auth.Role(c), body.Status)
		if err != nil {
			return err
		}
		return c.JSON(f)
	})

	r.Post("/contact", func(c *fiber.Ctx) error {
		var in ContactInput
		if err := c.BodyParser(&in); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid body")
		}
		contact, err := svc.Contact(c.UserContext(), in)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(contact)
	})

	r.Get("/contact", authMiddleware, auth.RequireRole(auth.RoleAdmin), func(c *fiber.Ctx) error {
		contacts, err := svc.Contacts(c.UserContext(), auth.Role(c), page.FromQuery(c))
		if err != nil {
			return err
		}
		return c.JSON(contacts)
	})
}
