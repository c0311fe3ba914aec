package alert

import (
	"github.com/apmanager001/tripmaps-sub000/internal/auth"
	"github.com/apmanager001/tripmaps-sub000/internal/shared/page"

	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes mounts the caller's alert inbox on r. Every route requires
// authMiddleware.
func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Use(authMiddleware)

	r.Get("/", func(c *fiber.Ctx) error {
		alerts, err := svc.List(c.UserContext(), auth.UserID(c), c.QueryBool("unread"), page.FromQuery(c))
		if err != nil {
			return err
		}
		return c.JSON(alerts)
	})

	r.Get("/unread-count", func(c *fiber.Ctx) error {
		n, err := svc.UnreadCount(c.UserContext(), auth.UserID(c))
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"unread": n})
	})

	r.Put("/read-all", func(c *fiber.Ctx) error {
		n, err := svc.MarkAllRead(c.UserContext(), auth.UserID(c))
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"updated": n})
	})

	r.Put("/:id/read", func(c *fiber.Ctx) error {
		if err := svc.MarkRead(c.UserContext(), c.Params("id"), auth.UserID(c)); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Delete("/:id", func(c *fiber.Ctx) error {
		if err := svc.Delete(c.UserContext(), c.Params("id"), auth.UserID(c)); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}
