package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/commission"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/usercontext"
)

// AffiliateController serves the affiliate-facing endpoints: applying
// for the program, the commission dashboard and payout requests.
type AffiliateController struct {
	engine *commission.Engine
}

func NewAffiliateController(engine *commission.Engine) *AffiliateController {
	return &AffiliateController{engine: engine}
}

// HandleApply creates a pending affiliate profile. Re-applying returns
// the existing one.
func (ac *AffiliateController) HandleApply(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
	defer cancel()

	affiliate, err := ac.engine.ApplyAffiliate(ctx, userCtx.UserID)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"affiliate": affiliate})
}

// HandleSummary returns the affiliate dashboard: ledger, payouts and the
// currently payable pool.
func (ac *AffiliateController) HandleSummary(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
	defer cancel()

	summary, err := ac.engine.Summary(ctx, userCtx.UserID)
	if err != nil {
		return respondAppError(c, err)
	}
	if summary == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "no affiliate profile"})
	}
	return c.JSON(summary)
}

// HandleRequestPayout moves the whole approved pool into a requested
// payout, provided it clears the configured minimum.
func (ac *AffiliateController) HandleRequestPayout(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 15*time.Second)
	defer cancel()

	summary, err := ac.engine.Summary(ctx, userCtx.UserID)
	if err != nil {
		return respondAppError(c, err)
	}
	if summary == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "no affiliate profile"})
	}

	payout, err := ac.engine.RequestPayout(ctx, summary.Affiliate.ID)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"payout": payout})
}
