package commission

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/UniversalLevi/E-CommerceStore-sub004/app/models"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/apperr"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/audit"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/notification"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/plancatalog"
)

// Engine turns qualifying paid payments into commissions, exactly once
// per (affiliate, payment), and owns the commission status lifecycle.
type Engine struct {
	repo    Repository
	catalog *plancatalog.Catalog
	audit   audit.Recorder
	notify  notification.Sink
}

func NewEngine(repo Repository, catalog *plancatalog.Catalog, rec audit.Recorder, sink notification.Sink) *Engine {
	return &Engine{repo: repo, catalog: catalog, audit: rec, notify: sink}
}

// ApplyAffiliate creates a pending affiliate profile with a fresh
// referral code. Re-applying returns the existing profile.
func (e *Engine) ApplyAffiliate(ctx context.Context, userID uint) (*models.Affiliate, error) {
	_ = ctx
	if existing, err := e.repo.AffiliateByUserID(userID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	a := &models.Affiliate{
		UserID:       userID,
		ReferralCode: newReferralCode(),
		Status:       models.AffiliatePending,
	}
	if err := e.repo.CreateAffiliate(a); err != nil {
		return nil, err
	}
	return a, nil
}

// SetAffiliateStatus is the admin review operation.
func (e *Engine) SetAffiliateStatus(ctx context.Context, actor string, affiliateID uint, status models.AffiliateStatus) (*models.Affiliate, error) {
	_ = ctx
	switch status {
	case models.AffiliateActive, models.AffiliateSuspended, models.AffiliateRejected:
	default:
		return nil, apperr.Validationf("cannot set affiliate status to %q", status)
	}
	a, err := e.repo.AffiliateByID(affiliateID)
	if err != nil {
		return nil, apperr.NotFoundf("affiliate %d not found", affiliateID)
	}
	prev := a.Status
	a.Status = status
	if err := e.repo.SaveAffiliate(a); err != nil {
		return nil, err
	}
	e.audit.Record(actor, "affiliate.set_status", "affiliate", a.ID, map[string]any{
		"from": prev, "to": status,
	})
	return a, nil
}

// RecordReferral binds a referred tenant to an affiliate by referral
// code. First touch wins; self-referral is rejected.
func (e *Engine) RecordReferral(ctx context.Context, referralCode string, referredUserID uint) error {
	_ = ctx
	code := strings.TrimSpace(referralCode)
	if code == "" {
		return apperr.Validationf("referral code is required")
	}
	a, err := e.repo.AffiliateByReferralCode(code)
	if err != nil {
		return apperr.NotFoundf("unknown referral code %q", code)
	}
	if a.UserID == referredUserID {
		return apperr.Validationf("self-referral is not allowed")
	}
	_, err = e.repo.CreateReferralIfNew(&models.Referral{
		AffiliateID:    a.ID,
		ReferredUserID: referredUserID,
	})
	return err
}

// ComputeCommission evaluates a paid payment against the qualification
// rules and accrues a pending commission when they hold. A nil result
// with nil error means the payment was skipped, not failed.
func (e *Engine) ComputeCommission(ctx context.Context, payment *models.Payment) (*models.Commission, error) {
	_ = ctx
	if payment == nil {
		return nil, apperr.Validationf("payment is required")
	}
	if payment.Status != models.PaymentPaid {
		return nil, apperr.Validationf("payment %d is not paid", payment.ID)
	}
	// Token charges activate mandates; they never accrue commission.
	if payment.Purpose == models.PaymentPurposeToken {
		return nil, nil
	}
	plan, ok := e.catalog.Get(payment.PlanCode)
	if !ok || !e.catalog.Commissionable(payment.PlanCode) {
		return nil, nil
	}

	affiliate, err := e.repo.AffiliateForReferredUser(payment.UserID)
	if err != nil {
		return nil, err
	}
	if affiliate == nil || affiliate.Status != models.AffiliateActive {
		return nil, nil
	}

	if !e.catalog.Config.RenewalCommission {
		prior, err := e.repo.HasCommissionForReferredUser(affiliate.ID, payment.UserID)
		if err != nil {
			return nil, err
		}
		if prior {
			return nil, nil
		}
	}

	rate := plan.CommissionRateBps
	if rate == 0 {
		rate = e.catalog.Config.DefaultCommissionRateBps
	}
	if affiliate.CommissionRateBps != nil {
		rate = *affiliate.CommissionRateBps
	}
	amount := payment.AmountMinor * int64(rate) / 10000 // floor to minor unit

	holdFrom := time.Now()
	if payment.PaidAt != nil {
		holdFrom = *payment.PaidAt
	}
	c := &models.Commission{
		AffiliateID:    affiliate.ID,
		PaymentID:      payment.ID,
		ReferredUserID: payment.UserID,
		PlanCode:       payment.PlanCode,
		AmountMinor:    amount,
		RateBps:        rate,
		Status:         models.CommissionPending,
		HoldUntil:      holdFrom.Add(time.Duration(e.catalog.Config.HoldingPeriodDays) * 24 * time.Hour),
	}
	created, err := e.repo.InsertCommissionIfNew(c)
	if err != nil {
		return nil, err
	}
	if !created {
		// Replayed payment event; the earlier accrual stands.
		return e.repo.CommissionByPaymentID(payment.ID)
	}
	e.notify.Notify(affiliate.UserID, notification.TypeCommissionAccrued,
		fmt.Sprintf("A commission of %d is pending on plan %s.", amount, payment.PlanCode))
	return c, nil
}

// RevokeForPayment revokes any pending or approved commission accrued on
// a payment, used when the underlying payment is refunded.
func (e *Engine) RevokeForPayment(ctx context.Context, actor string, paymentID uint, reason string) error {
	_ = ctx
	c, err := e.repo.CommissionByPaymentID(paymentID)
	if err != nil {
		return err
	}
	if c == nil {
		return nil
	}
	ok, err := e.repo.TransitionCommission(c.ID,
		[]models.CommissionStatus{models.CommissionPending, models.CommissionApproved},
		map[string]any{"status": models.CommissionRevoked, "revoked_reason": reason})
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Conflictf("commission %d cannot be revoked from its current status", c.ID)
	}
	e.audit.Record(actor, "commission.revoke", "commission", c.ID, map[string]any{
		"payment_id": paymentID, "reason": reason,
	})
	return nil
}

// Adjust applies an admin adjustment. The action set is closed; unknown
// values are rejected upstream by ParseCommissionAdjustAction. Set-amount
// preserves the prior amount in an adjustment row before overwriting.
func (e *Engine) Adjust(ctx context.Context, actor string, commissionID uint, action models.CommissionAdjustAction, newAmount *int64, note string) (*models.Commission, error) {
	_ = ctx
	c, err := e.repo.GetCommission(commissionID)
	if err != nil {
		return nil, apperr.NotFoundf("commission %d not found", commissionID)
	}

	adj := &models.CommissionAdjustment{
		CommissionID: c.ID,
		Action:       action,
		PrevAmount:   c.AmountMinor,
		PrevStatus:   c.Status,
		NewAmount:    c.AmountMinor,
		Actor:        actor,
		Note:         note,
	}

	switch action {
	case models.CommissionAdjustApprove:
		ok, err := e.repo.TransitionCommission(c.ID,
			[]models.CommissionStatus{models.CommissionPending},
			map[string]any{"status": models.CommissionApproved})
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.Conflictf("commission %d is not pending", c.ID)
		}
	case models.CommissionAdjustRevoke:
		ok, err := e.repo.TransitionCommission(c.ID,
			[]models.CommissionStatus{models.CommissionPending, models.CommissionApproved},
			map[string]any{"status": models.CommissionRevoked, "revoked_reason": note})
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.Conflictf("commission %d cannot be revoked", c.ID)
		}
	case models.CommissionAdjustSetAmount:
		if newAmount == nil || *newAmount < 0 {
			return nil, apperr.Validationf("set-amount requires a non-negative amount")
		}
		adj.NewAmount = *newAmount
		ok, err := e.repo.TransitionCommission(c.ID,
			[]models.CommissionStatus{models.CommissionPending, models.CommissionApproved},
			map[string]any{"amount_minor": *newAmount})
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.Conflictf("commission %d amount can no longer change", c.ID)
		}
	default:
		return nil, apperr.Validationf("unknown adjustment action %q", action)
	}

	if err := e.repo.CreateAdjustment(adj); err != nil {
		return nil, err
	}
	e.audit.Record(actor, "commission.adjust", "commission", c.ID, map[string]any{
		"action": action, "prev_amount": adj.PrevAmount, "new_amount": adj.NewAmount, "note": note,
	})
	return e.repo.GetCommission(c.ID)
}

// MatureDue approves pending commissions whose holding period elapsed
// without a refund. Idempotent: each row is moved by a guarded update.
func (e *Engine) MatureDue(now time.Time) ([]uint, error) {
	due, err := e.repo.ListPendingDue(now)
	if err != nil {
		return nil, err
	}
	var matured []uint
	for i := range due {
		ok, err := e.repo.TransitionCommission(due[i].ID,
			[]models.CommissionStatus{models.CommissionPending},
			map[string]any{"status": models.CommissionApproved})
		if err != nil {
			return matured, err
		}
		if ok {
			matured = append(matured, due[i].ID)
		}
	}
	return matured, nil
}

// AffiliateSummary is the affiliate's dashboard view: the full ledger
// plus the pool currently eligible for a payout request.
type AffiliateSummary struct {
	Affiliate        *models.Affiliate   `json:"affiliate"`
	Commissions      []models.Commission `json:"commissions"`
	Payouts          []models.Payout     `json:"payouts"`
	PayablePoolMinor int64               `json:"payable_pool_minor"`
	MinPayoutMinor   int64               `json:"min_payout_minor"`
}

// Summary assembles the affiliate dashboard for a user. Nil when the
// user has no affiliate profile.
func (e *Engine) Summary(ctx context.Context, userID uint) (*AffiliateSummary, error) {
	_ = ctx
	a, err := e.repo.AffiliateByUserID(userID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, nil
	}
	commissions, err := e.repo.ListCommissionsByAffiliate(a.ID)
	if err != nil {
		return nil, err
	}
	payouts, err := e.repo.ListPayoutsByAffiliate(a.ID)
	if err != nil {
		return nil, err
	}
	pool, err := e.repo.ListApprovedUnattached(a.ID)
	if err != nil {
		return nil, err
	}
	var poolSum int64
	for i := range pool {
		poolSum += pool[i].AmountMinor
	}
	return &AffiliateSummary{
		Affiliate:        a,
		Commissions:      commissions,
		Payouts:          payouts,
		PayablePoolMinor: poolSum,
		MinPayoutMinor:   e.catalog.Config.MinPayoutMinor,
	}, nil
}

// PendingAffiliates lists applications awaiting admin review.
func (e *Engine) PendingAffiliates(ctx context.Context) ([]models.Affiliate, error) {
	_ = ctx
	return e.repo.ListPendingAffiliates()
}

func newReferralCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
