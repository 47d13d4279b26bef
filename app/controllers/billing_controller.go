package controllers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/UniversalLevi/E-CommerceStore-sub004/app/models"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/commission"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/entitlements"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/plancatalog"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/subscription"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/trial"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/usercontext"
)

// BillingController serves the tenant-facing subscription endpoints:
// plan listing, trial signup, direct checkout, the checkout success
// callback and entitlement queries.
type BillingController struct {
	workflow *trial.Workflow
	subs     *subscription.Service
	engine   *commission.Engine
	checker  *entitlements.Checker
	catalog  *plancatalog.Catalog
}

func NewBillingController(workflow *trial.Workflow, subs *subscription.Service, engine *commission.Engine, checker *entitlements.Checker, catalog *plancatalog.Catalog) *BillingController {
	return &BillingController{workflow: workflow, subs: subs, engine: engine, checker: checker, catalog: catalog}
}

// HandleListPlans returns the purchasable catalog.
func (bc *BillingController) HandleListPlans(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"plans": bc.catalog.All()})
}

type beginTrialRequest struct {
	PlanCode string `json:"plan_code"`
}

// HandleBeginTrial registers a recurring mandate and opens the trial.
func (bc *BillingController) HandleBeginTrial(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}

	var req beginTrialRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid JSON body"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 20*time.Second)
	defer cancel()

	result, err := bc.workflow.BeginTrial(ctx, userCtx.UserID, req.PlanCode)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// HandleBeginCheckout creates a full-price order for a plan bought
// without a trial.
func (bc *BillingController) HandleBeginCheckout(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}

	var req beginTrialRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid JSON body"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 20*time.Second)
	defer cancel()

	checkout, err := bc.workflow.BeginCheckout(ctx, userCtx.UserID, req.PlanCode)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"checkout": checkout})
}

type confirmCheckoutRequest struct {
	OrderID          string `json:"order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Signature        string `json:"signature"`
}

// HandleConfirmCheckout is the browser-side success callback. The
// signature binds order and payment ids; a mismatch marks the payment
// failed and returns 401.
func (bc *BillingController) HandleConfirmCheckout(c *fiber.Ctx) error {
	var req confirmCheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid JSON body"})
	}
	if strings.TrimSpace(req.OrderID) == "" || strings.TrimSpace(req.GatewayPaymentID) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "order_id and gateway_payment_id are required"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 20*time.Second)
	defer cancel()

	payment, err := bc.workflow.ConfirmCheckout(ctx, req.OrderID, req.GatewayPaymentID, req.Signature)
	if err != nil {
		return respondAppError(c, err)
	}

	if payment.Status == models.PaymentPaid {
		// Commission accrual is an effect of the payment, never a reason
		// to fail the checkout response.
		if _, cerr := bc.engine.ComputeCommission(ctx, payment); cerr != nil {
			log.Errorf("[Billing] commission accrual for payment %d failed: %v", payment.ID, cerr)
		}
	}
	return c.JSON(fiber.Map{"payment": payment})
}

// HandleMySubscription returns the caller's live subscription in a
// category, 404 when there is none.
func (bc *BillingController) HandleMySubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}
	category, err := plancatalog.ParseCategory(c.Query("category", string(plancatalog.CategoryPlatform)))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}

	sub, err := bc.subs.LiveSubscription(userCtx.UserID, category)
	if err != nil {
		return respondAppError(c, err)
	}
	if sub == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "no live subscription"})
	}
	return c.JSON(fiber.Map{"subscription": sub})
}

type cancelRequest struct {
	Category string `json:"category"`
	Reason   string `json:"reason"`
}

// HandleCancelSubscription cancels the caller's live subscription. The
// local record is authoritative; gateway mandate cleanup is best effort.
func (bc *BillingController) HandleCancelSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}
	var req cancelRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid JSON body"})
	}
	category, err := plancatalog.ParseCategory(req.Category)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 20*time.Second)
	defer cancel()

	if err := bc.subs.Cancel(ctx, userCtx.UserID, category, req.Reason); err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

// HandleEntitlement answers whether the caller may use a feature
// category right now, with quota diagnostics.
func (bc *BillingController) HandleEntitlement(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}
	category, err := plancatalog.ParseCategory(c.Params("category"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}

	decision := bc.checker.GetEntitlement(userCtx.UserID, userCtx.IsAdmin, category)
	return c.JSON(decision)
}

// HandleConsumeQuota burns one quota unit, e.g. for a product listing.
func (bc *BillingController) HandleConsumeQuota(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}
	category, err := plancatalog.ParseCategory(c.Params("category"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}
	if userCtx.IsAdmin {
		// Admin usage never counts against a plan.
		return c.JSON(fiber.Map{"ok": true, "admin_bypass": true})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
	defer cancel()

	if err := bc.subs.ConsumeQuotaUnit(ctx, userCtx.UserID, category); err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}
