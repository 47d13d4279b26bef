package usercontext

import "github.com/gofiber/fiber/v2"

// Locals key under which the middleware stores the UserContext.
const ContextKey = "USER_CONTEXT"

// UserContext is the resolved identity of the current request.
type UserContext struct {
	UserID     uint   `json:"user_id"`
	Username   string `json:"username"`
	IsLoggedIn bool   `json:"is_logged_in"`
	IsAdmin    bool   `json:"is_admin"`
}

// GetUserContext returns the request's user context, or an anonymous
// context when the middleware has not set one.
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx, ok := c.Locals(ContextKey).(UserContext); ok {
		return ctx
	}
	return UserContext{}
}

// GetUserID returns the current user's ID, or 0 for anonymous requests.
func GetUserID(c *fiber.Ctx) uint {
	return GetUserContext(c).UserID
}
