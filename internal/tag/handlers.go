package tag

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service) {
	r.Get("/", func(c *fiber.Ctx) error {
		tags, err := svc.Suggest(c.UserContext(), c.Query("q"), queryLimit(c))
		if err != nil {
			return err
		}
		return c.JSON(tags)
	})

	r.Get("/popular", func(c *fiber.Ctx) error {
		tags, err := svc.Popular(c.UserContext(), queryLimit(c))
		if err != nil {
			return err
		}
		return c.JSON(tags)
	})
}

func queryLimit(c *fiber.Ctx) int {
	limit, _ := strconv.Atoi(c.Query("limit"))
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	return limit
}
