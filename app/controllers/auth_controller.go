package controllers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/UniversalLevi/E-CommerceStore-sub004/app/models"
	"github.com/UniversalLevi/E-CommerceStore-sub004/app/repository"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/commission"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/session"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/usercontext"
)

const (
	AUTH_KEY      string = "authenticated"
	USER_ID       string = "user_id"
	USER_NAME     string = "username"
	USER_IS_ADMIN string = "isAdmin"

	FROM_PROTECTED string = "from_protected"
)

// AuthController handles registration, login and logout. Registration
// optionally binds the new tenant to an affiliate via referral code.
type AuthController struct {
	users  repository.UserRepository
	engine *commission.Engine
}

func NewAuthController(users repository.UserRepository, engine *commission.Engine) *AuthController {
	return &AuthController{users: users, engine: engine}
}

type registerRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	ReferralCode string `json:"referral_code"`
}

// HandleRegister creates the tenant account. A referral code is
// attributed first touch; an invalid code does not fail registration.
func (ac *AuthController) HandleRegister(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid JSON body"})
	}

	user, err := models.CreateUser(req.Name, strings.ToLower(strings.TrimSpace(req.Email)), req.Password)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}
	if err := ac.users.Create(user); err != nil {
		// Unique index on email; treat any create failure as a conflict
		// rather than leaking DB internals.
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": "account could not be created"})
	}

	if code := strings.TrimSpace(req.ReferralCode); code != "" {
		ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
		if rerr := ac.engine.RecordReferral(ctx, code, user.ID); rerr != nil {
			log.Warnf("[Auth] referral attribution for user %d failed: %v", user.ID, rerr)
		}
		cancel()
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"user": user})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin verifies credentials and opens a session.
func (ac *AuthController) HandleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid JSON body"})
	}

	// Same response for unknown email and wrong password.
	user, err := ac.users.GetByEmail(strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil || !models.CheckPasswordHash(req.Password, user.Password) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "invalid credentials"})
	}
	if !user.IsActive() {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "account is not active"})
	}

	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "session unavailable"})
	}
	sess.Set(AUTH_KEY, true)
	sess.Set(USER_ID, user.ID)
	sess.Set(USER_NAME, user.Name)
	sess.Set(USER_IS_ADMIN, user.IsAdmin())
	if err := sess.Save(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "session save failed"})
	}

	if err := ac.users.UpdateLastLogin(user.ID); err != nil {
		log.Warnf("[Auth] last login stamp for user %d failed: %v", user.ID, err)
	}

	return c.JSON(fiber.Map{"user": user})
}

// HandleLogout destroys the session.
func (ac *AuthController) HandleLogout(c *fiber.Ctx) error {
	sess, err := session.GetSessionStore().Get(c)
	if err == nil {
		_ = sess.Destroy()
	}
	c.Locals(FROM_PROTECTED, false)
	return c.JSON(fiber.Map{"ok": true})
}

// HandleMe returns the authenticated account.
func (ac *AuthController) HandleMe(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}
	user, err := ac.users.GetByID(userCtx.UserID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "user not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "failed to load user"})
	}
	return c.JSON(fiber.Map{"user": user})
}
