package auth

import (
	"strings"

	"github.com/apmanager001/tripmaps-sub000/internal/apperr"

	"github.com/gofiber/fiber/v2"
)

// JWTMiddleware validates bearer tokens and stores user_id and role in
// locals. Websocket clients that cannot set headers may pass access_token as
// a query parameter.
func JWTMiddleware(secret string) fiber.Handler {
	secretBytes := []byte(secret)
	return func(c *fiber.Ctx) error {
		token := requestToken(c)
		if token == "" {
			return apperr.Unauthorized("missing bearer token")
		}
		return authenticate(c, secretBytes, token)
	}
}

// OptionalJWT sets the caller when a token is present and lets anonymous
// requests through. A present but invalid token is still rejected.
func OptionalJWT(secret string) fiber.Handler {
	secretBytes := []byte(secret)
	return func(c *fiber.Ctx) error {
		token := requestToken(c)
		if token == "" {
			return c.Next()
		}
		return authenticate(c, secretBytes, token)
	}
}

// RequireRole must run after JWTMiddleware.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role := Role(c)
		for _, r := range roles {
			if r == role {
				return c.Next()
			}
		}
		return apperr.Forbidden("insufficient role")
	}
}

func authenticate(c *fiber.Ctx, secret []byte, token string) error {
	claims, err := parseClaims(secret, token)
	if err != nil {
		return apperr.Unauthorized("token invalid")
	}
	c.Locals("user_id", claims.UserID)
	c.Locals("role", claims.Role)
	return c.Next()
}

func requestToken(c *fiber.Ctx) string {
	if token := bearerFromHeader(c.Get("Authorization")); token != "" {
		return token
	}
	return c.Query("access_token")
}

func bearerFromHeader(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
