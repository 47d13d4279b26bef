package subscription

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/UniversalLevi/E-CommerceStore-sub004/app/models"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/apperr"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/audit"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/gateway"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/notification"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/plancatalog"
	"gorm.io/gorm"
)

// fakeRepo is an in-memory Repository with the same CAS semantics as the
// GORM implementation.
type fakeRepo struct {
	mu      sync.Mutex
	nextID  uint
	subs    map[uint]*models.Subscription
	history []models.SubscriptionHistory

	// trialingErr, when set, is returned by TrialingByMandateID to
	// simulate a database failure.
	trialingErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{subs: make(map[uint]*models.Subscription)}
}

func (r *fakeRepo) Create(sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	sub.ID = r.nextID
	cp := *sub
	r.subs[sub.ID] = &cp
	return nil
}

func (r *fakeRepo) GetByID(id uint) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *sub
	return &cp, nil
}

func (r *fakeRepo) LiveByUserAndCategory(userID uint, category string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *models.Subscription
	for _, sub := range r.subs {
		if sub.UserID == userID && sub.PlanCategory == category && sub.Status.Live() {
			if best == nil || sub.ID > best.ID {
				best = sub
			}
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (r *fakeRepo) TrialingByMandateID(mandateID string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.trialingErr != nil {
		return nil, r.trialingErr
	}
	for _, sub := range r.subs {
		if sub.MandateID == mandateID && sub.Status == models.SubscriptionTrialing {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) LiveByMandateID(mandateID string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *models.Subscription
	for _, sub := range r.subs {
		if sub.MandateID != mandateID {
			continue
		}
		if sub.Status == models.SubscriptionTrialing || sub.Status == models.SubscriptionActive {
			if best == nil || sub.ID > best.ID {
				best = sub
			}
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (r *fakeRepo) TransitionStatus(id uint, from, to models.SubscriptionStatus, updates map[string]any) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok || sub.Status != from {
		return false, nil
	}
	sub.Status = to
	sub.Version++
	for k, v := range updates {
		switch k {
		case "ends_at":
			if end, ok := v.(time.Time); ok {
				sub.EndsAt = &end
			}
		case "amount_paid":
			if amt, ok := v.(int64); ok {
				sub.AmountPaid = amt
			}
		case "plan_code":
			if code, ok := v.(string); ok {
				sub.PlanCode = code
			}
		}
	}
	return true, nil
}

func (r *fakeRepo) AppendHistory(h *models.SubscriptionHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, *h)
	return nil
}

func (r *fakeRepo) IncrementQuota(id uint, prevUsed int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok || sub.QuotaUsed != prevUsed {
		return false, nil
	}
	sub.QuotaUsed++
	return true, nil
}

func (r *fakeRepo) ListTrialsDue(now time.Time) ([]models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Subscription
	for _, sub := range r.subs {
		if sub.Status == models.SubscriptionTrialing && sub.TrialEndsAt != nil && !sub.TrialEndsAt.After(now) {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListActiveDue(now time.Time) ([]models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Subscription
	for _, sub := range r.subs {
		if sub.Status == models.SubscriptionActive && sub.EndsAt != nil && !sub.EndsAt.After(now) {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (r *fakeRepo) SetMandateCancelPending(id uint, pending bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	sub.MandateCancelPending = pending
	return nil
}

func (r *fakeRepo) ListMandateCancelPending(limit int) ([]models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Subscription
	for _, sub := range r.subs {
		if sub.MandateCancelPending {
			out = append(out, *sub)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeRepo) historyActions(subID uint) []models.HistoryAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.HistoryAction
	for _, h := range r.history {
		if h.SubscriptionID == subID {
			out = append(out, h.Action)
		}
	}
	return out
}

// fakeGateway records mandate cancellations and can be told to fail them.
type fakeGateway struct {
	mu        sync.Mutex
	cancelErr error
	cancelled []string
}

func (g *fakeGateway) CreateOrder(context.Context, gateway.CreateOrderInput) (*gateway.Order, error) {
	return &gateway.Order{ID: "ord_test", Status: "created"}, nil
}

func (g *fakeGateway) CreateMandateSubscription(context.Context, gateway.CreateMandateInput) (*gateway.MandateSubscription, error) {
	return &gateway.MandateSubscription{ID: "mand_test", Status: "created"}, nil
}

func (g *fakeGateway) CancelMandateSubscription(_ context.Context, mandateID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancelErr != nil {
		return g.cancelErr
	}
	g.cancelled = append(g.cancelled, mandateID)
	return nil
}

func (g *fakeGateway) GetSubscriptionStatus(_ context.Context, mandateID string) (*gateway.MandateSubscription, error) {
	return &gateway.MandateSubscription{ID: mandateID, Status: "active"}, nil
}

func (g *fakeGateway) VerifySignature(string, string, string) bool { return true }
func (g *fakeGateway) CheckoutKeyID() string                       { return "key_test" }

func intPtr(v int) *int       { return &v }
func strPtr(s string) *string { return &s }

func testCatalog(t *testing.T) *plancatalog.Catalog {
	t.Helper()
	cfg := plancatalog.Config{
		TokenChargeMinor:         2000,
		HoldingPeriodDays:        14,
		MinPayoutMinor:           100000,
		DefaultCommissionRateBps: 1000,
		SettlementCurrency:       "INR",
	}
	c, err := plancatalog.NewCatalog(cfg, []plancatalog.Plan{
		{Code: "starter_30", Name: "Starter", Category: plancatalog.CategoryPlatform,
			PriceMinor: 99900, DurationDays: 30, ProductQuota: intPtr(2), CommissionRateBps: 1500},
		{Code: "growth_90", Name: "Growth", Category: plancatalog.CategoryPlatform,
			PriceMinor: 399900, DurationDays: 90, ProductQuota: intPtr(250), CommissionRateBps: 2500, TrialDays: 5},
		{Code: "lifetime", Name: "Lifetime", Category: plancatalog.CategoryPlatform,
			PriceMinor: 1999900, Lifetime: true, CommissionRateBps: 2000},
		{Code: "store_basic_30", Name: "Store Basic", Category: plancatalog.CategoryStore,
			PriceMinor: 49900, DurationDays: 30, ProductQuota: intPtr(50)},
	})
	if err != nil {
		t.Fatalf("test catalog: %v", err)
	}
	return c
}

func newTestService(t *testing.T) (*Service, *fakeRepo, *fakeGateway) {
	t.Helper()
	repo := newFakeRepo()
	gw := &fakeGateway{}
	svc := NewService(repo, testCatalog(t), gw, audit.NopRecorder{}, notification.NopSink{})
	return svc, repo, gw
}

func TestCreateTrial(t *testing.T) {
	t.Parallel()
	svc, repo, _ := newTestService(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	sub, err := svc.CreateTrial(context.Background(), 7, "growth_90", "mand_1", now)
	if err != nil {
		t.Fatalf("CreateTrial: %v", err)
	}
	if sub.Status != models.SubscriptionTrialing {
		t.Fatalf("expected trialing, got %s", sub.Status)
	}
	if sub.MandateID != "mand_1" {
		t.Fatalf("mandate not bound: %q", sub.MandateID)
	}
	wantEnd := now.Add(5 * 24 * time.Hour)
	if sub.TrialEndsAt == nil || !sub.TrialEndsAt.Equal(wantEnd) {
		t.Fatalf("trial end = %v, want %v", sub.TrialEndsAt, wantEnd)
	}
	actions := repo.historyActions(sub.ID)
	if len(actions) != 1 || actions[0] != models.HistoryTrialStarted {
		t.Fatalf("unexpected history: %v", actions)
	}
}

func TestCreateTrial_PlanWithoutTrial(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)

	_, err := svc.CreateTrial(context.Background(), 7, "starter_30", "mand_1", time.Now())
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateTrial_RejectsSecondLiveSubscription(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	if _, err := svc.CreateTrial(ctx, 7, "growth_90", "mand_1", now); err != nil {
		t.Fatalf("first trial: %v", err)
	}
	_, err := svc.CreateTrial(ctx, 7, "growth_90", "mand_2", now)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestActivateFromCapture_TrialConversion(t *testing.T) {
	t.Parallel()
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	trial, err := svc.CreateTrial(ctx, 7, "growth_90", "mand_1", now)
	if err != nil {
		t.Fatalf("CreateTrial: %v", err)
	}

	capturedAt := now.Add(5 * 24 * time.Hour)
	sub, err := svc.ActivateFromCapture(ctx, "mand_1", models.SubscriptionTrialing, 399900, capturedAt)
	if err != nil {
		t.Fatalf("ActivateFromCapture: %v", err)
	}
	if sub.ID != trial.ID {
		t.Fatalf("capture created a new row: %d != %d", sub.ID, trial.ID)
	}
	if sub.Status != models.SubscriptionActive {
		t.Fatalf("expected active, got %s", sub.Status)
	}
	if sub.AmountPaid != 399900 {
		t.Fatalf("amount paid = %d", sub.AmountPaid)
	}
	wantEnd := capturedAt.Add(90 * 24 * time.Hour)
	if sub.EndsAt == nil || !sub.EndsAt.Equal(wantEnd) {
		t.Fatalf("ends_at = %v, want %v", sub.EndsAt, wantEnd)
	}
	actions := repo.historyActions(sub.ID)
	want := []models.HistoryAction{models.HistoryTrialStarted, models.HistoryPaymentCaptured, models.HistoryActivated}
	if len(actions) != len(want) {
		t.Fatalf("history = %v, want %v", actions, want)
	}
	for i := range want {
		if actions[i] != want[i] {
			t.Fatalf("history[%d] = %s, want %s", i, actions[i], want[i])
		}
	}
}

func TestActivateFromCapture_RenewalExtendsFromCurrentEnd(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	if _, err := svc.CreateTrial(ctx, 7, "growth_90", "mand_1", now); err != nil {
		t.Fatalf("CreateTrial: %v", err)
	}
	first, err := svc.ActivateFromCapture(ctx, "mand_1", models.SubscriptionTrialing, 399900, now)
	if err != nil {
		t.Fatalf("first capture: %v", err)
	}

	// Renewal lands before the current term ends: the new term stacks on
	// top of the old end date instead of restarting from capture time.
	renewalAt := now.Add(85 * 24 * time.Hour)
	renewed, err := svc.ActivateFromCapture(ctx, "mand_1", models.SubscriptionActive, 399900, renewalAt)
	if err != nil {
		t.Fatalf("renewal capture: %v", err)
	}
	wantEnd := first.EndsAt.Add(90 * 24 * time.Hour)
	if renewed.EndsAt == nil || !renewed.EndsAt.Equal(wantEnd) {
		t.Fatalf("renewal ends_at = %v, want %v", renewed.EndsAt, wantEnd)
	}
	if renewed.AmountPaid != 799800 {
		t.Fatalf("amount paid after renewal = %d", renewed.AmountPaid)
	}
}

func TestActivateFromCapture_StaleObservedStatusConflicts(t *testing.T) {
	t.Parallel()
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	trial, err := svc.CreateTrial(ctx, 7, "growth_90", "mand_1", now)
	if err != nil {
		t.Fatalf("CreateTrial: %v", err)
	}
	if _, err := svc.ActivateFromCapture(ctx, "mand_1", models.SubscriptionTrialing, 399900, now); err != nil {
		t.Fatalf("first capture: %v", err)
	}

	// A caller that still believes the subscription is trialing raced a
	// concurrent application of the same capture; it must conflict, not
	// stack a renewal.
	_, err = svc.ActivateFromCapture(ctx, "mand_1", models.SubscriptionTrialing, 399900, now)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("stale capture: got %v, want conflict", err)
	}
	row, _ := repo.GetByID(trial.ID)
	if row.AmountPaid != 399900 {
		t.Fatalf("stale capture re-applied the amount: %d", row.AmountPaid)
	}
}

func TestActivateFromCapture_UnknownMandate(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)

	_, err := svc.ActivateFromCapture(context.Background(), "mand_ghost", models.SubscriptionTrialing, 100, time.Now())
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestFailCapture_ExpiresTrial(t *testing.T) {
	t.Parallel()
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	trial, err := svc.CreateTrial(ctx, 7, "growth_90", "mand_1", time.Now())
	if err != nil {
		t.Fatalf("CreateTrial: %v", err)
	}
	if err := svc.FailCapture(ctx, "mand_1"); err != nil {
		t.Fatalf("FailCapture: %v", err)
	}
	got, _ := repo.GetByID(trial.ID)
	if got.Status != models.SubscriptionExpired {
		t.Fatalf("expected expired, got %s", got.Status)
	}
}

func TestActivateFromDirectPayment_SupersedesLive(t *testing.T) {
	t.Parallel()
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	old, err := svc.ActivateFromDirectPayment(ctx, 7, "starter_30", 99900, now)
	if err != nil {
		t.Fatalf("first purchase: %v", err)
	}
	fresh, err := svc.ActivateFromDirectPayment(ctx, 7, "lifetime", 1999900, now)
	if err != nil {
		t.Fatalf("lifetime purchase: %v", err)
	}

	oldRow, _ := repo.GetByID(old.ID)
	if oldRow.Status != models.SubscriptionCancelled {
		t.Fatalf("old subscription not superseded: %s", oldRow.Status)
	}
	if fresh.EndsAt != nil {
		t.Fatalf("lifetime subscription must have no end date")
	}
	live, _ := svc.LiveSubscription(7, plancatalog.CategoryPlatform)
	if live == nil || live.ID != fresh.ID {
		t.Fatalf("live subscription is not the new one")
	}
}

func TestGrantManual(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	sub, err := svc.GrantManual(ctx, "admin:1", 9, "lifetime", nil, "support goodwill")
	if err != nil {
		t.Fatalf("GrantManual: %v", err)
	}
	if sub.Status != models.SubscriptionManuallyGranted || sub.Source != models.SubscriptionSourceManual {
		t.Fatalf("unexpected grant: %+v", sub)
	}
	if sub.EndsAt != nil {
		t.Fatalf("lifetime grant must not carry an end date")
	}

	if _, err := svc.GrantManual(ctx, "  ", 9, "lifetime", nil, ""); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error for blank actor, got %v", err)
	}
}

func TestGrantManual_DurationOverride(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)

	sub, err := svc.GrantManual(context.Background(), "admin:1", 9, "starter_30", intPtr(7), "")
	if err != nil {
		t.Fatalf("GrantManual: %v", err)
	}
	if sub.EndsAt == nil {
		t.Fatalf("expected end date on overridden grant")
	}
	got := time.Until(*sub.EndsAt)
	if got < 6*24*time.Hour || got > 8*24*time.Hour {
		t.Fatalf("override window off: %v", got)
	}
}

func TestRevokeManual(t *testing.T) {
	t.Parallel()
	svc, repo, gw := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	if _, err := svc.CreateTrial(ctx, 7, "growth_90", "mand_1", now); err != nil {
		t.Fatalf("CreateTrial: %v", err)
	}
	if err := svc.RevokeManual(ctx, "admin:1", 7, plancatalog.CategoryPlatform, "tos violation"); err != nil {
		t.Fatalf("RevokeManual: %v", err)
	}

	live, _ := svc.LiveSubscription(7, plancatalog.CategoryPlatform)
	if live != nil {
		t.Fatalf("subscription still live after revoke")
	}
	if len(gw.cancelled) != 1 || gw.cancelled[0] != "mand_1" {
		t.Fatalf("mandate not cancelled at gateway: %v", gw.cancelled)
	}

	for _, sub := range repo.subs {
		if sub.UserID == 7 && sub.Status != models.SubscriptionCancelled {
			t.Fatalf("expected cancelled, got %s", sub.Status)
		}
	}

	err := svc.RevokeManual(ctx, "admin:1", 7, plancatalog.CategoryPlatform, "again")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found on second revoke, got %v", err)
	}
}

func TestRevokeManual_GatewayFailureDoesNotPropagate(t *testing.T) {
	t.Parallel()
	svc, repo, gw := newTestService(t)
	ctx := context.Background()
	gw.cancelErr = errors.New("gateway down")

	trial, err := svc.CreateTrial(ctx, 7, "growth_90", "mand_1", time.Now())
	if err != nil {
		t.Fatalf("CreateTrial: %v", err)
	}
	if err := svc.RevokeManual(ctx, "admin:1", 7, plancatalog.CategoryPlatform, "cleanup"); err != nil {
		t.Fatalf("revoke must succeed locally despite gateway failure: %v", err)
	}

	var sawCancelFailure bool
	for _, a := range repo.historyActions(trial.ID) {
		if a == models.HistoryMandateCancelFailed {
			sawCancelFailure = true
		}
	}
	if !sawCancelFailure {
		t.Fatalf("expected mandate_cancel_failed history entry")
	}
}

func TestFailCapture_RepoErrorIsNotMaskedAsNotFound(t *testing.T) {
	t.Parallel()
	svc, repo, _ := newTestService(t)
	repo.trialingErr = errors.New("connection reset by peer")

	err := svc.FailCapture(context.Background(), "mand_1")
	if err == nil {
		t.Fatalf("expected repo error to propagate")
	}
	if errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("database failure reported as not found: %v", err)
	}
	if !errors.Is(err, repo.trialingErr) {
		t.Fatalf("repo error lost: %v", err)
	}
}

func TestFailCapture_UnknownMandate(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)

	err := svc.FailCapture(context.Background(), "mand_ghost")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRevokeManual_GatewayFailureFlagsRetry(t *testing.T) {
	t.Parallel()
	svc, repo, gw := newTestService(t)
	ctx := context.Background()
	gw.cancelErr = errors.New("gateway down")

	trial, err := svc.CreateTrial(ctx, 7, "growth_90", "mand_1", time.Now())
	if err != nil {
		t.Fatalf("CreateTrial: %v", err)
	}
	if err := svc.RevokeManual(ctx, "admin:1", 7, plancatalog.CategoryPlatform, "cleanup"); err != nil {
		t.Fatalf("RevokeManual: %v", err)
	}

	row, _ := repo.GetByID(trial.ID)
	if !row.MandateCancelPending {
		t.Fatalf("failed gateway cancel did not flag the subscription for retry")
	}
}

func TestRetryMandateCancellations(t *testing.T) {
	t.Parallel()
	svc, repo, gw := newTestService(t)
	ctx := context.Background()
	gw.cancelErr = errors.New("gateway down")

	trial, err := svc.CreateTrial(ctx, 7, "growth_90", "mand_1", time.Now())
	if err != nil {
		t.Fatalf("CreateTrial: %v", err)
	}
	if err := svc.RevokeManual(ctx, "admin:1", 7, plancatalog.CategoryPlatform, "cleanup"); err != nil {
		t.Fatalf("RevokeManual: %v", err)
	}

	// Gateway still down: the flag survives the pass.
	cancelled, err := svc.RetryMandateCancellations(ctx, 10)
	if err != nil {
		t.Fatalf("retry while gateway down: %v", err)
	}
	if len(cancelled) != 0 {
		t.Fatalf("expected no cancellations while gateway is down, got %v", cancelled)
	}
	row, _ := repo.GetByID(trial.ID)
	if !row.MandateCancelPending {
		t.Fatalf("retry flag dropped despite gateway failure")
	}

	// Gateway recovers: the retry cancels the mandate, clears the flag
	// and records the resolution.
	gw.cancelErr = nil
	cancelled, err = svc.RetryMandateCancellations(ctx, 10)
	if err != nil {
		t.Fatalf("retry after recovery: %v", err)
	}
	if len(cancelled) != 1 || cancelled[0] != trial.ID {
		t.Fatalf("cancelled = %v, want [%d]", cancelled, trial.ID)
	}
	if len(gw.cancelled) != 1 || gw.cancelled[0] != "mand_1" {
		t.Fatalf("gateway not called: %v", gw.cancelled)
	}
	row, _ = repo.GetByID(trial.ID)
	if row.MandateCancelPending {
		t.Fatalf("retry flag not cleared after successful cancel")
	}
	var sawCancelled bool
	for _, a := range repo.historyActions(trial.ID) {
		if a == models.HistoryMandateCancelled {
			sawCancelled = true
		}
	}
	if !sawCancelled {
		t.Fatalf("expected mandate_cancelled history entry")
	}

	// The pool is empty now; another pass is a no-op.
	cancelled, err = svc.RetryMandateCancellations(ctx, 10)
	if err != nil {
		t.Fatalf("idle retry pass: %v", err)
	}
	if len(cancelled) != 0 {
		t.Fatalf("expected empty pass, got %v", cancelled)
	}
}

func TestAdjustSubscription(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	if _, err := svc.ActivateFromDirectPayment(ctx, 7, "starter_30", 99900, now); err != nil {
		t.Fatalf("purchase: %v", err)
	}

	if _, err := svc.AdjustSubscription(ctx, "admin:1", 7, plancatalog.CategoryPlatform, AdjustInput{}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("empty adjustment must fail validation, got %v", err)
	}

	sub, err := svc.AdjustSubscription(ctx, "admin:1", 7, plancatalog.CategoryPlatform, AdjustInput{
		PlanCode: strPtr("growth_90"), ExtendDays: intPtr(10), Note: strPtr("upgrade"),
	})
	if err != nil {
		t.Fatalf("AdjustSubscription: %v", err)
	}
	if sub.PlanCode != "growth_90" {
		t.Fatalf("plan not switched: %s", sub.PlanCode)
	}

	_, err = svc.AdjustSubscription(ctx, "admin:1", 7, plancatalog.CategoryPlatform, AdjustInput{
		PlanCode: strPtr("store_basic_30"),
	})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("cross-category switch must fail validation, got %v", err)
	}

	_, err = svc.AdjustSubscription(ctx, "admin:1", 7, plancatalog.CategoryPlatform, AdjustInput{
		ExtendDays: intPtr(-3),
	})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("negative extension must fail validation, got %v", err)
	}
}

func TestExpireDue(t *testing.T) {
	t.Parallel()
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	trial, err := svc.CreateTrial(ctx, 1, "growth_90", "mand_1", start)
	if err != nil {
		t.Fatalf("CreateTrial: %v", err)
	}
	active, err := svc.ActivateFromDirectPayment(ctx, 2, "starter_30", 99900, start)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	forever, err := svc.ActivateFromDirectPayment(ctx, 3, "lifetime", 1999900, start)
	if err != nil {
		t.Fatalf("lifetime purchase: %v", err)
	}

	expired, err := svc.ExpireDue(start.Add(40 * 24 * time.Hour))
	if err != nil {
		t.Fatalf("ExpireDue: %v", err)
	}
	if len(expired) != 2 {
		t.Fatalf("expected 2 expired, got %v", expired)
	}

	trialRow, _ := repo.GetByID(trial.ID)
	activeRow, _ := repo.GetByID(active.ID)
	foreverRow, _ := repo.GetByID(forever.ID)
	if trialRow.Status != models.SubscriptionExpired || activeRow.Status != models.SubscriptionExpired {
		t.Fatalf("due subscriptions not expired: %s, %s", trialRow.Status, activeRow.Status)
	}
	if foreverRow.Status != models.SubscriptionActive {
		t.Fatalf("lifetime subscription must never expire, got %s", foreverRow.Status)
	}

	// Second pass is a no-op; every row expires exactly once.
	again, err := svc.ExpireDue(start.Add(41 * 24 * time.Hour))
	if err != nil {
		t.Fatalf("second ExpireDue: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no re-expiry, got %v", again)
	}
}

func TestConsumeQuotaUnit(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	// starter_30 carries a quota of 2 in the test catalog.
	if _, err := svc.ActivateFromDirectPayment(ctx, 7, "starter_30", 99900, time.Now()); err != nil {
		t.Fatalf("purchase: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := svc.ConsumeQuotaUnit(ctx, 7, plancatalog.CategoryPlatform); err != nil {
			t.Fatalf("consume %d: %v", i, err)
		}
	}
	err := svc.ConsumeQuotaUnit(ctx, 7, plancatalog.CategoryPlatform)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected quota exhaustion conflict, got %v", err)
	}

	err = svc.ConsumeQuotaUnit(ctx, 99, plancatalog.CategoryPlatform)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict without live subscription, got %v", err)
	}
}

func TestConsumeQuotaUnit_UnlimitedPlan(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.ActivateFromDirectPayment(ctx, 7, "lifetime", 1999900, time.Now()); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	for i := 0; i < 10; i++ {
		if err := svc.ConsumeQuotaUnit(ctx, 7, plancatalog.CategoryPlatform); err != nil {
			t.Fatalf("unlimited plan consume %d: %v", i, err)
		}
	}
}
