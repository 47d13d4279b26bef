package subscription

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/UniversalLevi/E-CommerceStore-sub004/app/models"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/apperr"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/audit"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/gateway"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/notification"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/plancatalog"
)

// Service is the single writer of subscription state. Controllers, the
// trial workflow and the sweep all mutate subscriptions through it.
type Service struct {
	repo    Repository
	catalog *plancatalog.Catalog
	gateway gateway.Client
	audit   audit.Recorder
	notify  notification.Sink

	locks tenantLocks
}

func NewService(repo Repository, catalog *plancatalog.Catalog, gw gateway.Client, rec audit.Recorder, sink notification.Sink) *Service {
	return &Service{repo: repo, catalog: catalog, gateway: gw, audit: rec, notify: sink}
}

// AdjustInput carries the optional fields of an admin adjustment.
type AdjustInput struct {
	PlanCode   *string
	ExtendDays *int
	Note       *string
}

func (s *Service) plan(code string) (plancatalog.Plan, error) {
	p, ok := s.catalog.Get(code)
	if !ok {
		return plancatalog.Plan{}, apperr.NotFoundf("unknown plan code %q", code)
	}
	return p, nil
}

// CreateTrial creates a trialing subscription bound to a freshly
// registered mandate. Called by the trial workflow under its own
// validation; the live-subscription invariant is enforced here.
func (s *Service) CreateTrial(ctx context.Context, userID uint, planCode, mandateID string, now time.Time) (*models.Subscription, error) {
	_ = ctx
	plan, err := s.plan(planCode)
	if err != nil {
		return nil, err
	}
	if plan.TrialDays <= 0 {
		return nil, apperr.Validationf("plan %s has no trial", planCode)
	}

	unlock := s.locks.lock(userID)
	defer unlock()

	if live, err := s.repo.LiveByUserAndCategory(userID, string(plan.Category)); err != nil {
		return nil, err
	} else if live != nil {
		return nil, apperr.Conflictf("tenant %d already has a live %s subscription", userID, plan.Category)
	}

	trialEnd := now.Add(time.Duration(plan.TrialDays) * 24 * time.Hour)
	sub := &models.Subscription{
		UserID:       userID,
		PlanCode:     plan.Code,
		PlanCategory: string(plan.Category),
		Status:       models.SubscriptionTrialing,
		Source:       models.SubscriptionSourceGateway,
		StartsAt:     now,
		TrialEndsAt:  &trialEnd,
		MandateID:    mandateID,
	}
	if err := s.repo.Create(sub); err != nil {
		return nil, err
	}
	s.appendHistory(sub.ID, models.HistoryTrialStarted, "system",
		fmt.Sprintf("trial until %s, mandate %s", trialEnd.Format(time.RFC3339), mandateID))
	return sub, nil
}

// FindByMandate returns the trialing or active subscription bound to a
// mandate; nil when none is live.
func (s *Service) FindByMandate(mandateID string) (*models.Subscription, error) {
	return s.repo.LiveByMandateID(mandateID)
}

// ActivateFromCapture applies a full-amount mandate capture. Correlation
// is by mandate ID; the capture carries different order/payment IDs than
// the token charge. On a trialing subscription this is the trial-to-paid
// conversion; on an active one it is a renewal extending the term.
// fromStatus is the status the caller observed when the capture was
// recorded: if the subscription has since moved on, for instance because
// a concurrent delivery of the same capture already applied it, the call
// surfaces a conflict instead of applying the capture twice.
func (s *Service) ActivateFromCapture(ctx context.Context, mandateID string, fromStatus models.SubscriptionStatus, amountMinor int64, capturedAt time.Time) (*models.Subscription, error) {
	_ = ctx
	sub, err := s.repo.LiveByMandateID(mandateID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, apperr.NotFoundf("no live subscription for mandate %s", mandateID)
	}

	unlock := s.locks.lock(sub.UserID)
	defer unlock()

	sub, err = s.repo.LiveByMandateID(mandateID)
	if err != nil {
		return nil, err
	}
	if sub == nil || sub.Status != fromStatus {
		return nil, apperr.Conflictf("subscription for mandate %s changed before capture applied", mandateID)
	}
	plan, err := s.plan(sub.PlanCode)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{
		"amount_paid": sub.AmountPaid + amountMinor,
	}
	if !plan.Lifetime {
		base := capturedAt
		if sub.Status == models.SubscriptionActive && sub.EndsAt != nil && sub.EndsAt.After(base) {
			base = *sub.EndsAt
		}
		updates["ends_at"] = base.Add(time.Duration(plan.DurationDays) * 24 * time.Hour)
	}
	ok, err := s.repo.TransitionStatus(sub.ID, sub.Status, models.SubscriptionActive, updates)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Conflictf("subscription %d changed before capture applied", sub.ID)
	}

	s.appendHistory(sub.ID, models.HistoryPaymentCaptured, "system",
		fmt.Sprintf("full capture of %d via mandate %s", amountMinor, mandateID))
	if sub.Status == models.SubscriptionTrialing {
		s.appendHistory(sub.ID, models.HistoryActivated, "system", "")
		s.notify.Notify(sub.UserID, notification.TypeSubscriptionActive,
			fmt.Sprintf("Your %s subscription is now active.", plan.Name))
	}
	return s.repo.GetByID(sub.ID)
}

// ReconcileTrialCapture finishes a trial activation whose original
// capture processing was interrupted after the payment row landed. The
// status is re-read under the tenant lock and only a still-trialing
// subscription transitions, so a replay can never extend an already
// active term a second time. The bool reports whether this call applied
// the activation.
func (s *Service) ReconcileTrialCapture(ctx context.Context, mandateID string, amountMinor int64, capturedAt time.Time) (*models.Subscription, bool, error) {
	_ = ctx
	sub, err := s.repo.LiveByMandateID(mandateID)
	if err != nil {
		return nil, false, err
	}
	if sub == nil {
		return nil, false, nil
	}

	unlock := s.locks.lock(sub.UserID)
	defer unlock()

	sub, err = s.repo.LiveByMandateID(mandateID)
	if err != nil {
		return nil, false, err
	}
	if sub == nil || sub.Status != models.SubscriptionTrialing {
		return sub, false, nil
	}
	plan, err := s.plan(sub.PlanCode)
	if err != nil {
		return nil, false, err
	}

	updates := map[string]any{
		"amount_paid": sub.AmountPaid + amountMinor,
	}
	if !plan.Lifetime {
		updates["ends_at"] = capturedAt.Add(time.Duration(plan.DurationDays) * 24 * time.Hour)
	}
	ok, err := s.repo.TransitionStatus(sub.ID, models.SubscriptionTrialing, models.SubscriptionActive, updates)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		current, err := s.repo.GetByID(sub.ID)
		if err != nil {
			return nil, false, err
		}
		return current, false, nil
	}

	s.appendHistory(sub.ID, models.HistoryPaymentCaptured, "system",
		fmt.Sprintf("full capture of %d via mandate %s (recovered)", amountMinor, mandateID))
	s.appendHistory(sub.ID, models.HistoryActivated, "system", "")
	s.notify.Notify(sub.UserID, notification.TypeSubscriptionActive,
		fmt.Sprintf("Your %s subscription is now active.", plan.Name))
	current, err := s.repo.GetByID(sub.ID)
	if err != nil {
		return nil, false, err
	}
	return current, true, nil
}

// FailCapture expires a trial whose full-amount capture failed.
func (s *Service) FailCapture(ctx context.Context, mandateID string) error {
	_ = ctx
	sub, err := s.repo.TrialingByMandateID(mandateID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFoundf("no trialing subscription for mandate %s", mandateID)
	}
	if err != nil {
		return err
	}

	unlock := s.locks.lock(sub.UserID)
	defer unlock()

	ok, err := s.repo.TransitionStatus(sub.ID, models.SubscriptionTrialing, models.SubscriptionExpired, nil)
	if err != nil {
		return err
	}
	if ok {
		s.appendHistory(sub.ID, models.HistoryExpired, "system", "mandate capture failed")
		s.notify.Notify(sub.UserID, notification.TypeTrialCaptureFailed,
			"We could not charge your saved payment method; your trial has ended.")
	}
	return nil
}

// ActivateFromDirectPayment creates an active subscription from a captured
// non-trial payment. Any live subscription in the category is superseded.
func (s *Service) ActivateFromDirectPayment(ctx context.Context, userID uint, planCode string, amountMinor int64, paidAt time.Time) (*models.Subscription, error) {
	plan, err := s.plan(planCode)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(userID)
	defer unlock()

	if err := s.supersedeLive(ctx, userID, string(plan.Category), "superseded by direct purchase of "+plan.Code); err != nil {
		return nil, err
	}

	sub := &models.Subscription{
		UserID:       userID,
		PlanCode:     plan.Code,
		PlanCategory: string(plan.Category),
		Status:       models.SubscriptionActive,
		Source:       models.SubscriptionSourceGateway,
		StartsAt:     paidAt,
		AmountPaid:   amountMinor,
	}
	if !plan.Lifetime {
		end := paidAt.Add(time.Duration(plan.DurationDays) * 24 * time.Hour)
		sub.EndsAt = &end
	}
	if err := s.repo.Create(sub); err != nil {
		return nil, err
	}
	s.appendHistory(sub.ID, models.HistoryCreated, "system", "direct payment")
	return sub, nil
}

// GrantManual creates a manually_granted subscription on behalf of an
// admin. A nil duration override on a lifetime plan (or explicitly zero
// days) yields no end date, which grants unconditionally.
func (s *Service) GrantManual(ctx context.Context, actor string, userID uint, planCode string, durationOverrideDays *int, note string) (*models.Subscription, error) {
	plan, err := s.plan(planCode)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(actor) == "" {
		return nil, apperr.Validationf("actor is required for manual grants")
	}

	unlock := s.locks.lock(userID)
	defer unlock()

	if err := s.supersedeLive(ctx, userID, string(plan.Category), "superseded by manual grant of "+plan.Code); err != nil {
		return nil, err
	}

	now := time.Now()
	sub := &models.Subscription{
		UserID:       userID,
		PlanCode:     plan.Code,
		PlanCategory: string(plan.Category),
		Status:       models.SubscriptionManuallyGranted,
		Source:       models.SubscriptionSourceManual,
		StartsAt:     now,
	}
	days := plan.DurationDays
	if durationOverrideDays != nil {
		days = *durationOverrideDays
	}
	if !plan.Lifetime && days > 0 {
		end := now.Add(time.Duration(days) * 24 * time.Hour)
		sub.EndsAt = &end
	}
	if err := s.repo.Create(sub); err != nil {
		return nil, err
	}
	s.appendHistory(sub.ID, models.HistoryManualGrant, actor, note)
	s.audit.Record(actor, "subscription.grant_manual", "subscription", sub.ID, map[string]any{
		"user_id": userID, "plan": plan.Code, "duration_days": days, "note": note,
	})
	return sub, nil
}

// RevokeManual cancels a tenant's live subscription in a category. The
// local transition is authoritative and commits first; the gateway
// mandate cancellation is best effort and its failure is recorded, not
// propagated.
func (s *Service) RevokeManual(ctx context.Context, actor string, userID uint, category plancatalog.Category, reason string) error {
	unlock := s.locks.lock(userID)
	defer unlock()

	live, err := s.repo.LiveByUserAndCategory(userID, string(category))
	if err != nil {
		return err
	}
	if live == nil {
		return apperr.NotFoundf("tenant %d has no live %s subscription", userID, category)
	}

	if err := checkTransition(live.Status, models.SubscriptionCancelled); err != nil {
		return err
	}
	ok, err := s.repo.TransitionStatus(live.ID, live.Status, models.SubscriptionCancelled, nil)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Conflictf("subscription %d changed concurrently during revoke", live.ID)
	}
	s.appendHistory(live.ID, models.HistoryManualRevoke, actor, reason)

	gatewayFailed := s.cancelMandateBestEffort(ctx, live)
	s.audit.Record(actor, "subscription.revoke_manual", "subscription", live.ID, map[string]any{
		"user_id": userID, "reason": reason, "gateway_cancel_failed": gatewayFailed,
	})
	return nil
}

// Cancel is the tenant-initiated cancellation; same mechanics as a manual
// revoke with the tenant as actor.
func (s *Service) Cancel(ctx context.Context, userID uint, category plancatalog.Category, reason string) error {
	return s.RevokeManual(ctx, fmt.Sprintf("user:%d", userID), userID, category, reason)
}

// AdjustSubscription applies an admin adjustment to a live subscription:
// switch plan code, extend the end date, or attach a note. Each provided
// field produces its own history entry.
func (s *Service) AdjustSubscription(ctx context.Context, actor string, userID uint, category plancatalog.Category, in AdjustInput) (*models.Subscription, error) {
	_ = ctx
	if in.PlanCode == nil && in.ExtendDays == nil && in.Note == nil {
		return nil, apperr.Validationf("adjustment requires at least one of plan_code, extend_days, note")
	}

	unlock := s.locks.lock(userID)
	defer unlock()

	live, err := s.repo.LiveByUserAndCategory(userID, string(category))
	if err != nil {
		return nil, err
	}
	if live == nil {
		return nil, apperr.NotFoundf("tenant %d has no live %s subscription", userID, category)
	}

	updates := map[string]any{}
	if in.PlanCode != nil {
		newPlan, err := s.plan(*in.PlanCode)
		if err != nil {
			return nil, err
		}
		if string(newPlan.Category) != live.PlanCategory {
			return nil, apperr.Validationf("cannot switch %s subscription to %s plan %s",
				live.PlanCategory, newPlan.Category, newPlan.Code)
		}
		updates["plan_code"] = newPlan.Code
	}
	if in.ExtendDays != nil {
		if *in.ExtendDays <= 0 {
			return nil, apperr.Validationf("extend_days must be positive")
		}
		base := time.Now()
		if live.EndsAt != nil && live.EndsAt.After(base) {
			base = *live.EndsAt
		}
		updates["ends_at"] = base.Add(time.Duration(*in.ExtendDays) * 24 * time.Hour)
	}

	if len(updates) > 0 {
		ok, err := s.repo.TransitionStatus(live.ID, live.Status, live.Status, updates)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.Conflictf("subscription %d changed concurrently during adjust", live.ID)
		}
	}

	if in.PlanCode != nil {
		s.appendHistory(live.ID, models.HistoryPlanChanged, actor, "plan set to "+*in.PlanCode)
	}
	if in.ExtendDays != nil {
		s.appendHistory(live.ID, models.HistoryManualExtension, actor, fmt.Sprintf("extended by %d days", *in.ExtendDays))
	}
	if in.Note != nil {
		s.appendHistory(live.ID, models.HistoryNoteAdded, actor, *in.Note)
	}
	s.audit.Record(actor, "subscription.adjust", "subscription", live.ID, map[string]any{
		"user_id": userID,
		"plan":    in.PlanCode, "extend_days": in.ExtendDays, "note": in.Note,
	})
	return s.repo.GetByID(live.ID)
}

// ExpireDue transitions overdue trials and subscriptions to expired and
// returns the affected IDs. Safe to call concurrently: the status CAS
// makes every row expire exactly once.
func (s *Service) ExpireDue(now time.Time) ([]uint, error) {
	var expired []uint

	trials, err := s.repo.ListTrialsDue(now)
	if err != nil {
		return nil, err
	}
	for i := range trials {
		sub := &trials[i]
		ok, err := s.repo.TransitionStatus(sub.ID, models.SubscriptionTrialing, models.SubscriptionExpired, nil)
		if err != nil {
			return expired, err
		}
		if ok {
			s.appendHistory(sub.ID, models.HistoryExpired, "system", "trial ended without capture")
			expired = append(expired, sub.ID)
		}
	}

	actives, err := s.repo.ListActiveDue(now)
	if err != nil {
		return expired, err
	}
	for i := range actives {
		sub := &actives[i]
		ok, err := s.repo.TransitionStatus(sub.ID, models.SubscriptionActive, models.SubscriptionExpired, nil)
		if err != nil {
			return expired, err
		}
		if ok {
			s.appendHistory(sub.ID, models.HistoryExpired, "system", "term ended")
			expired = append(expired, sub.ID)
		}
	}
	return expired, nil
}

// ConsumeQuotaUnit spends one quota unit for the tenant in a category.
// The counter is re-read at call time; callers must invoke this before
// each unit-consuming action rather than caching the result.
func (s *Service) ConsumeQuotaUnit(ctx context.Context, userID uint, category plancatalog.Category) error {
	_ = ctx
	unlock := s.locks.lock(userID)
	defer unlock()

	live, err := s.repo.LiveByUserAndCategory(userID, string(category))
	if err != nil {
		return err
	}
	if live == nil {
		return apperr.Conflictf("tenant %d has no live %s subscription", userID, category)
	}
	plan, err := s.plan(live.PlanCode)
	if err != nil {
		return err
	}
	if plan.ProductQuota != nil && live.QuotaUsed >= *plan.ProductQuota {
		return apperr.Conflictf("quota exhausted: %d of %d units used", live.QuotaUsed, *plan.ProductQuota)
	}
	ok, err := s.repo.IncrementQuota(live.ID, live.QuotaUsed)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Conflictf("quota counter moved concurrently, retry")
	}
	return nil
}

// LiveSubscription exposes the current live subscription for entitlement
// queries; nil when the tenant has none in the category.
func (s *Service) LiveSubscription(userID uint, category plancatalog.Category) (*models.Subscription, error) {
	return s.repo.LiveByUserAndCategory(userID, string(category))
}

// supersedeLive cancels an existing live subscription so a new grant can
// take its place without violating the one-live-per-category invariant.
func (s *Service) supersedeLive(ctx context.Context, userID uint, category, note string) error {
	live, err := s.repo.LiveByUserAndCategory(userID, category)
	if err != nil {
		return err
	}
	if live == nil {
		return nil
	}
	if err := checkTransition(live.Status, models.SubscriptionCancelled); err != nil {
		return err
	}
	ok, err := s.repo.TransitionStatus(live.ID, live.Status, models.SubscriptionCancelled, nil)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Conflictf("subscription %d changed concurrently", live.ID)
	}
	s.appendHistory(live.ID, models.HistoryCancelled, "system", note)
	s.cancelMandateBestEffort(ctx, live)
	return nil
}

// cancelMandateBestEffort attempts to cancel a live gateway mandate and
// reports whether the remote call failed. Local state is authoritative;
// a failure leaves a history entry and flags the row so the sweep
// retries the cancellation.
func (s *Service) cancelMandateBestEffort(ctx context.Context, sub *models.Subscription) bool {
	if sub.MandateID == "" {
		return false
	}
	callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.gateway.CancelMandateSubscription(callCtx, sub.MandateID); err != nil {
		s.appendHistory(sub.ID, models.HistoryMandateCancelFailed, "system", err.Error())
		if ferr := s.repo.SetMandateCancelPending(sub.ID, true); ferr != nil {
			log.Printf("mandate cancel retry flag for subscription %d failed: %v", sub.ID, ferr)
		}
		return true
	}
	return false
}

// RetryMandateCancellations re-attempts the gateway mandate cancellation
// for subscriptions flagged by an earlier failed cancel. Gateway errors
// leave the flag in place for the next pass; successes clear it and
// record the resolution. Returns the IDs whose mandate was cancelled.
func (s *Service) RetryMandateCancellations(ctx context.Context, limit int) ([]uint, error) {
	pending, err := s.repo.ListMandateCancelPending(limit)
	if err != nil {
		return nil, err
	}

	var cancelled []uint
	for i := range pending {
		sub := &pending[i]
		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := s.gateway.CancelMandateSubscription(callCtx, sub.MandateID)
		cancel()
		if err != nil {
			log.Printf("mandate cancel retry for subscription %d failed: %v", sub.ID, err)
			continue
		}
		if err := s.repo.SetMandateCancelPending(sub.ID, false); err != nil {
			return cancelled, err
		}
		s.appendHistory(sub.ID, models.HistoryMandateCancelled, "system", "gateway mandate cancelled on retry")
		cancelled = append(cancelled, sub.ID)
	}
	return cancelled, nil
}

func (s *Service) appendHistory(subID uint, action models.HistoryAction, actor, note string) {
	h := &models.SubscriptionHistory{
		SubscriptionID: subID,
		Action:         action,
		Actor:          actor,
		Note:           note,
	}
	if err := s.repo.AppendHistory(h); err != nil {
		// History writes must not fail business transitions; the audit
		// trail still captures privileged actions independently.
		log.Printf("subscription history append failed for %d: %v", subID, err)
	}
}
