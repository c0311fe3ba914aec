package auth

import "github.com/gofiber/fiber/v2"

const (
	RoleMember    = "member"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// UserID returns the caller set by JWTMiddleware or OptionalJWT, or "" for
// anonymous requests.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}

func Role(c *fiber.Ctx) string {
	role, _ := c.Locals("role").(string)
	if role == "" {
		return RoleMember
	}
	return role
}

// IsStaff reports whether role may moderate other users' content.
func IsStaff(role string) bool {
	return role == RoleModerator || role == RoleAdmin
}
