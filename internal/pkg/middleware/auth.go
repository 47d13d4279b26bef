package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/usercontext"
)

// RequireAPISessionAuth rejects requests without a logged-in session.
// API routes answer with JSON 401 instead of a redirect.
func RequireAPISessionAuth(c *fiber.Ctx) error {
	if !usercontext.GetUserContext(c).IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "login required",
		})
	}
	return c.Next()
}

// RequireAdminAPI rejects sessions without the admin role with JSON 403.
func RequireAdminAPI(c *fiber.Ctx) error {
	if !usercontext.GetUserContext(c).IsAdmin {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   "forbidden",
			"message": "admin role required",
		})
	}
	return c.Next()
}
