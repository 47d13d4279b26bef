package controllers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/UniversalLevi/E-CommerceStore-sub004/app/models"
	"github.com/UniversalLevi/E-CommerceStore-sub004/app/repository"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/commission"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/plancatalog"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/subscription"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/sweep"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/usercontext"
)

// AdminController bundles the back-office operations: manual grants and
// revocations, subscription adjustments, affiliate review, commission
// adjustments, payout decisions and the audit trail.
type AdminController struct {
	subs    *subscription.Service
	engine  *commission.Engine
	sweeper *sweep.Sweeper
	audits  repository.AuditLogRepository
}

func NewAdminController(subs *subscription.Service, engine *commission.Engine, sweeper *sweep.Sweeper, audits repository.AuditLogRepository) *AdminController {
	return &AdminController{subs: subs, engine: engine, sweeper: sweeper, audits: audits}
}

func adminActor(c *fiber.Ctx) string {
	return fmt.Sprintf("admin:%d", usercontext.GetUserID(c))
}

type grantRequest struct {
	UserID       uint   `json:"user_id"`
	PlanCode     string `json:"plan_code"`
	DurationDays *int   `json:"duration_days,omitempty"`
	Note         string `json:"note"`
}

// HandleGrantSubscription creates a manually granted subscription,
// superseding whatever live subscription the tenant had in the category.
func (a *AdminController) HandleGrantSubscription(c *fiber.Ctx) error {
	var req grantRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid JSON body"})
	}
	if req.UserID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "user_id is required"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 15*time.Second)
	defer cancel()

	sub, err := a.subs.GrantManual(ctx, adminActor(c), req.UserID, req.PlanCode, req.DurationDays, req.Note)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"subscription": sub})
}

type revokeRequest struct {
	UserID   uint   `json:"user_id"`
	Category string `json:"category"`
	Reason   string `json:"reason"`
}

// HandleRevokeSubscription cancels the tenant's live subscription. The
// local cancel always wins; a failed gateway mandate cancel is recorded
// but does not fail the request.
func (a *AdminController) HandleRevokeSubscription(c *fiber.Ctx) error {
	var req revokeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid JSON body"})
	}
	category, err := plancatalog.ParseCategory(req.Category)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 15*time.Second)
	defer cancel()

	if err := a.subs.RevokeManual(ctx, adminActor(c), req.UserID, category, req.Reason); err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

type adjustSubscriptionRequest struct {
	UserID     uint    `json:"user_id"`
	Category   string  `json:"category"`
	PlanCode   *string `json:"plan_code,omitempty"`
	ExtendDays *int    `json:"extend_days,omitempty"`
	Note       *string `json:"note,omitempty"`
}

// HandleAdjustSubscription applies an admin adjustment: plan change
// within the category, a term extension, or an audit note.
func (a *AdminController) HandleAdjustSubscription(c *fiber.Ctx) error {
	var req adjustSubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid JSON body"})
	}
	category, err := plancatalog.ParseCategory(req.Category)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 15*time.Second)
	defer cancel()

	sub, err := a.subs.AdjustSubscription(ctx, adminActor(c), req.UserID, category, subscription.AdjustInput{
		PlanCode:   req.PlanCode,
		ExtendDays: req.ExtendDays,
		Note:       req.Note,
	})
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"subscription": sub})
}

// HandleListPendingAffiliates lists applications awaiting review.
func (a *AdminController) HandleListPendingAffiliates(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
	defer cancel()

	pending, err := a.engine.PendingAffiliates(ctx)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"affiliates": pending})
}

type reviewAffiliateRequest struct {
	Status string `json:"status"`
}

// HandleReviewAffiliate moves an application to active, suspended or
// rejected.
func (a *AdminController) HandleReviewAffiliate(c *fiber.Ctx) error {
	affiliateID, err := paramID(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}
	var req reviewAffiliateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid JSON body"})
	}
	status, err := models.ParseAffiliateStatus(req.Status)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
	defer cancel()

	affiliate, err := a.engine.SetAffiliateStatus(ctx, adminActor(c), affiliateID, status)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"affiliate": affiliate})
}

type adjustCommissionRequest struct {
	Action      string `json:"action"`
	AmountMinor *int64 `json:"amount_minor,omitempty"`
	Note        string `json:"note"`
}

// HandleAdjustCommission applies a manual commission correction.
func (a *AdminController) HandleAdjustCommission(c *fiber.Ctx) error {
	commissionID, err := paramID(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}
	var req adjustCommissionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid JSON body"})
	}
	action, err := models.ParseCommissionAdjustAction(req.Action)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
	defer cancel()

	commissionRow, err := a.engine.Adjust(ctx, adminActor(c), commissionID, action, req.AmountMinor, req.Note)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"commission": commissionRow})
}

type decidePayoutRequest struct {
	Approve bool   `json:"approve"`
	Note    string `json:"note"`
}

// HandleDecidePayout approves or rejects a requested payout. Rejection
// releases the attached commissions back into the payable pool.
func (a *AdminController) HandleDecidePayout(c *fiber.Ctx) error {
	payoutID, err := paramID(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}
	var req decidePayoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid JSON body"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 15*time.Second)
	defer cancel()

	payout, err := a.engine.DecidePayout(ctx, adminActor(c), payoutID, req.Approve, req.Note)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"payout": payout})
}

// HandleMarkPayoutPaid records the external transfer for an approved
// payout and settles its commissions.
func (a *AdminController) HandleMarkPayoutPaid(c *fiber.Ctx) error {
	payoutID, err := paramID(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 15*time.Second)
	defer cancel()

	payout, err := a.engine.MarkPayoutPaid(ctx, adminActor(c), payoutID)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"payout": payout})
}

// HandleRunSweep triggers an immediate expiry and maturation pass.
func (a *AdminController) HandleRunSweep(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 2*time.Minute)
	defer cancel()

	result, err := a.sweeper.RunOnce(ctx, time.Now())
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(result)
}

// HandleListAuditLog reads the audit trail. Without filters it returns
// the newest entries; entity_type plus entity_id narrows to one entity.
func (a *AdminController) HandleListAuditLog(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)
	if limit < 1 || limit > 500 {
		limit = 100
	}

	entityType := c.Query("entity_type")
	entityID := uint(c.QueryInt("entity_id", 0))

	var (
		entries []models.AuditLog
		err     error
	)
	if entityType != "" && entityID > 0 {
		entries, err = a.audits.ListByEntity(entityType, entityID, limit)
	} else {
		entries, err = a.audits.ListRecent(limit)
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "failed to load audit log"})
	}
	return c.JSON(fiber.Map{"entries": entries})
}

func paramID(c *fiber.Ctx, name string) (uint, error) {
	raw := c.Params(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return uint(id), nil
}
