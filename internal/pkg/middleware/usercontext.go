package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/UniversalLevi/E-CommerceStore-sub004/app/controllers"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/session"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/usercontext"
)

// UserContextMiddleware resolves the session into a UserContext once per
// request. Controllers read identity exclusively through usercontext, so
// session parsing never leaks into handler code.
func UserContextMiddleware(c *fiber.Ctx) error {
	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return anonymous(c)
	}

	userID := sess.Get(controllers.USER_ID)
	if userID == nil {
		return anonymous(c)
	}

	isAdmin, _ := sess.Get(controllers.USER_IS_ADMIN).(bool)
	userCtx := usercontext.UserContext{
		UserID:     userID.(uint),
		Username:   session.GetSessionValue(c, controllers.USER_NAME),
		IsLoggedIn: true,
		IsAdmin:    isAdmin,
	}
	c.Locals(usercontext.ContextKey, userCtx)

	c.Locals(controllers.FROM_PROTECTED, true)
	c.Locals(controllers.USER_ID, userCtx.UserID)
	c.Locals(controllers.USER_NAME, userCtx.Username)
	c.Locals(controllers.USER_IS_ADMIN, userCtx.IsAdmin)

	return c.Next()
}

func anonymous(c *fiber.Ctx) error {
	c.Locals(usercontext.ContextKey, usercontext.UserContext{})
	c.Locals(controllers.FROM_PROTECTED, false)
	c.Locals(controllers.USER_IS_ADMIN, false)
	return c.Next()
}
