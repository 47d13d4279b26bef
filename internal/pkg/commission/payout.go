package commission

import (
	"context"

	"github.com/UniversalLevi/E-CommerceStore-sub004/app/models"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/apperr"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/notification"
)

// RequestPayout converts the affiliate's entire approved pool into a
// payout request. Fails with BelowMinimum when the pool sum is under the
// configured threshold; commissions already attached to an unresolved
// payout are never part of the pool.
func (e *Engine) RequestPayout(ctx context.Context, affiliateID uint) (*models.Payout, error) {
	_ = ctx
	affiliate, err := e.repo.AffiliateByID(affiliateID)
	if err != nil {
		return nil, apperr.NotFoundf("affiliate %d not found", affiliateID)
	}
	if affiliate.Status != models.AffiliateActive {
		return nil, apperr.Conflictf("affiliate %d is not active", affiliateID)
	}

	pool, err := e.repo.ListApprovedUnattached(affiliateID)
	if err != nil {
		return nil, err
	}
	var total int64
	ids := make([]uint, 0, len(pool))
	for i := range pool {
		total += pool[i].AmountMinor
		ids = append(ids, pool[i].ID)
	}
	if total < e.catalog.Config.MinPayoutMinor {
		return nil, apperr.BelowMinimumf("approved pool %d is below the payout minimum %d",
			total, e.catalog.Config.MinPayoutMinor)
	}

	payout := &models.Payout{
		AffiliateID: affiliateID,
		AmountMinor: total,
		Status:      models.PayoutRequested,
	}
	if err := e.repo.CreatePayoutWithItems(payout, ids); err != nil {
		return nil, err
	}
	return e.repo.GetPayout(payout.ID)
}

// DecidePayout is the admin approval/rejection of a payout request.
// Rejection returns the attached commissions to the approved pool.
func (e *Engine) DecidePayout(ctx context.Context, actor string, payoutID uint, approve bool, note string) (*models.Payout, error) {
	_ = ctx
	payout, err := e.repo.GetPayout(payoutID)
	if err != nil {
		return nil, apperr.NotFoundf("payout %d not found", payoutID)
	}

	to := models.PayoutApproved
	if !approve {
		to = models.PayoutRejected
	}
	ok, err := e.repo.TransitionPayout(payout.ID, models.PayoutRequested, to, actor)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Conflictf("payout %d has already been decided", payout.ID)
	}
	if !approve {
		if err := e.repo.ReleasePayoutCommissions(payout.ID); err != nil {
			return nil, err
		}
	}

	e.audit.Record(actor, "payout.decide", "payout", payout.ID, map[string]any{
		"approved": approve, "amount": payout.AmountMinor, "note": note,
	})
	if affiliate, err := e.repo.AffiliateByID(payout.AffiliateID); err == nil {
		e.notify.Notify(affiliate.UserID, notification.TypePayoutDecided,
			"Your payout request has been reviewed.")
	}
	return e.repo.GetPayout(payout.ID)
}

// MarkPayoutPaid finalizes an approved payout: the payout and its
// attached commissions become paid. The actual money movement happens
// outside this core.
func (e *Engine) MarkPayoutPaid(ctx context.Context, actor string, payoutID uint) (*models.Payout, error) {
	_ = ctx
	ok, err := e.repo.TransitionPayout(payoutID, models.PayoutApproved, models.PayoutPaid, actor)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Conflictf("payout %d is not approved", payoutID)
	}
	if err := e.repo.MarkPayoutCommissionsPaid(payoutID); err != nil {
		return nil, err
	}
	e.audit.Record(actor, "payout.paid", "payout", payoutID, nil)
	return e.repo.GetPayout(payoutID)
}
