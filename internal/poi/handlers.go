package poi

import (
	"strconv"

	"github.com/apmanager001/tripmaps-sub000/internal/auth"
	"github.com/apmanager001/tripmaps-sub000/internal/shared/page"

	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes mounts /pois and /users/:id/pois on r. optionalAuth sets the
// viewer when a token is present; authMiddleware requires one.
func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware, optionalAuth fiber.Handler) {
	r.Post("/pois", authMiddleware, func(c *fiber.Ctx) error {
		var in Input
		if err := c.BodyParser(&in); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid body")
		}
		p, err := svc.Create(c.UserContext(), auth.UserID(c), in)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(p)
	})

	r.Get("/pois/search", optionalAuth, func(c *fiber.Ctx) error {
		pois, err := svc.Search(c.UserContext(), c.Query("q"), auth.UserID(c), page.FromQuery(c))
		if err != nil {
			return err
		}
		return c.JSON(pois)
	})

	r.Get("/pois/search/name", optionalAuth, func(c *fiber.Ctx) error {
		pois, err := svc.SearchByName(c.UserContext(), c.Query("q"), auth.UserID(c), page.FromQuery(c))
		if err != nil {
			return err
		}
		return c.JSON(pois)
	})

	r.Get("/pois/nearby", optionalAuth, func(c *fiber.Ctx) error {
		lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
		lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
		if errLat != nil || errLng != nil {
			return fiber.NewError(fiber.StatusBadRequest, "lat and lng are required")
		}
		radius := 10.0
		if raw := c.Query("radius_km"); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "radius_km must be a number")
			}
			radius = v
		}
		pois, err := svc.Nearby(c.UserContext(), lat, lng, radius, auth.UserID(c), page.FromQuery(c))
		if err != nil {
			return err
		}
		return c.JSON(pois)
	})

	r.Get("/pois/:id", optionalAuth, func(c *fiber.Ctx) error {
		p, err := svc.Get(c.UserContext(), c.Params("id"), auth.UserID(c))
		if err != nil {
			return err
		}
		return c.JSON(p)
	})

	r.Put("/pois/:id", authMiddleware, func(c *fiber.Ctx) error {
		var patch Patch
		if err := c.BodyParser(&patch); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid body")
		}
		p, err := svc.Update(c.UserContext(), c.Params("id"), auth.UserID(c), patch)
		if err != nil {
			return err
		}
		return c.JSON(p)
	})

	r.Delete("/pois/:id", authMiddleware, func(c *fiber.Ctx) error {
		if _, err := svc.Delete(c.UserContext(), c.Params("id"), auth.UserID(c), auth.Role(c)); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Post("/pois/:id/like", authMiddleware, func(c *fiber.Ctx) error {
		state, err := svc.ToggleLike(c.UserContext(), c.Params("id"), auth.UserID(c))
		if err != nil {
			return err
		}
		return c.JSON(state)
	})

	r.Get("/pois/:id/history", optionalAuth, func(c *fiber.Ctx) error {
		entries, err := svc.History(c.UserContext(), c.Params("id"), auth.UserID(c), page.FromQuery(c))
		if err != nil {
			return err
		}
		return c.JSON(entries)
	})

	r.Get("/users/:id/pois", optionalAuth, func(c *fiber.Ctx) error {
		pois, err := svc.ListByUser(c.UserContext(), c.Params("id"), auth.UserID(c), page.FromQuery(c))
		if err != nil {
			return err
		}
		return c.JSON(pois)
	})
}
