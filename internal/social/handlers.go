package social

import (
	"github.com/apmanager001/tripmaps-sub000/internal/auth"
	"github.com/apmanager001/tripmaps-sub000/internal/shared/page"

	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes mounts /social plus the comment routes under /maps/:id and
// /comments on r.
func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware, optionalAuth fiber.Handler) {
	r.Post("/social/follow/:userId", authMiddleware, func(c *fiber.Ctx) error {
		if err := svc.Follow(c.UserContext(), auth.UserID(c), c.Params("userId")); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"following": true})
	})

	r.Delete("/social/follow/:userId", authMiddleware, func(c *fiber.Ctx) error {
		if err := svc.Unfollow(c.UserContext(), auth.UserID(c), c.Params("userId")); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"following": false})
	})

	r.Get("/social/follow/:userId", authMiddleware, func(c *fiber.Ctx) error {
		ok, err := svc.IsFollowing(c.UserContext(), auth.UserID(c), c.Params("userId"))
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"following": ok})
	})

	r.Get("/social/feed", authMiddleware, func(c *fiber.Ctx) error {
		feed, err := svc.Feed(c.UserContext(), auth.UserID(c), page.FromQuery(c))
		if err != nil {
			return err
		}
		return c.JSON(feed)
	})

	r.Post("/social/bookmarks", authMiddleware, func(c *fiber.Ctx) error {
		var target BookmarkTarget
		if err := c.BodyParser(&target); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid body")
		}
		state, err := svc.ToggleBookmark(c.UserContext(), auth.UserID(c), target)
		if err != nil {
			return err
		}
		return c.JSON(state)
	})

	r.Get("/social/bookmarks", authMiddleware, func(c *fiber.Ctx) error {
		bookmarks, err := svc.Bookmarks(c.UserContext(), auth.UserID(c), page.FromQuery(c))
		if err != nil {
			return err
		}
		return c.JSON(bookmarks)
	})

	r.Get("/social/:userId/followers", func(c *fiber.Ctx) error {
		users, err := svc.Followers(c.UserContext(), c.Params("userId"), page.FromQuery(c))
		if err != nil {
			return err
		}
		return c.JSON(users)
	})

	r.Get("/social/:userId/following", func(c *fiber.Ctx) error {
		users, err := svc.Following(c.UserContext(), c.Params("userId"), page.FromQuery(c))
		if err != nil {
			return err
		}
		return c.JSON(users)
	})

	r.Post("/maps/:id/comments", authMiddleware, func(c *fiber.Ctx) error {
		var body struct {
			Body string `json:"body"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid body")
		}
		comment, err := svc.AddComment(c.UserContext(), c.Params("id"), auth.UserID(c), body.Body)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(comment)
	})

	r.Get("/maps/:id/comments", optionalAuth, func(c *fiber.Ctx) error {
		comments, err := svc.Comments(c.UserContext(), c.Params("id"), auth.UserID(c), page.FromQuery(c))
		if err != nil {
			return err
		}
		return c.JSON(comments)
	})

	r.Delete("/comments/:id", authMiddleware, func(c *fiber.Ctx) error {
		if err := svc.DeleteComment(c.UserContext(), c.Params("id"), auth.UserID(c), auth.Role(c)); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Post("/comments/:id/like", authMiddleware, func(c *fiber.Ctx) error {
		state, err := svc.ToggleCommentLike(c.UserContext(), c.Params("id"), auth.UserID(c))
		if err != nil {
			return err
		}
		return c.JSON(state)
	})
}
