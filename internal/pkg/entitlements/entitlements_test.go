package entitlements

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/UniversalLevi/E-CommerceStore-sub004/app/models"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/audit"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/gateway"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/notification"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/plancatalog"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/subscription"
)

// memSubRepo is a minimal subscription.Repository for checker tests.
type memSubRepo struct {
	mu     sync.Mutex
	nextID uint
	subs   map[uint]*models.Subscription
}

func newMemSubRepo() *memSubRepo { return &memSubRepo{subs: make(map[uint]*models.Subscription)} }

func (r *memSubRepo) put(sub models.Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	sub.ID = r.nextID
	r.subs[sub.ID] = &sub
}

func (r *memSubRepo) Create(sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	sub.ID = r.nextID
	cp := *sub
	r.subs[sub.ID] = &cp
	return nil
}

func (r *memSubRepo) GetByID(id uint) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	cp := *sub
	return &cp, nil
}

func (r *memSubRepo) LiveByUserAndCategory(userID uint, category string) (*models.Subscription, error) {
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

func (r *memSubRepo) TrialingByMandateID(string) (*models.Subscription, error) {
	return nil, errors.New("record not found")
}
func (r *memSubRepo) LiveByMandateID(string) (*models.Subscription, error) { return nil, nil }

func (r *memSubRepo) TransitionStatus(id uint, from, to models.SubscriptionStatus, updates map[string]any) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok || sub.Status != from {
		return false, nil
	}
	sub.Status = to
	return true, nil
}

func (r *memSubRepo) AppendHistory(*models.SubscriptionHistory) error { return nil }

func (r *memSubRepo) IncrementQuota(id uint, prevUsed int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok || sub.QuotaUsed != prevUsed {
		return false, nil
	}
	sub.QuotaUsed++
	return true, nil
}

func (r *memSubRepo) ListTrialsDue(time.Time) ([]models.Subscription, error)  { return nil, nil }
func (r *memSubRepo) ListActiveDue(time.Time) ([]models.Subscription, error) { return nil, nil }

func (r *memSubRepo) SetMandateCancelPending(uint, bool) error { return nil }
func (r *memSubRepo) ListMandateCancelPending(int) ([]models.Subscription, error) {
	return nil, nil
}

type nopGateway struct{}

func (nopGateway) CreateOrder(context.Context, gateway.CreateOrderInput) (*gateway.Order, error) {
	return &gateway.Order{ID: "ord"}, nil
}
func (nopGateway) CreateMandateSubscription(context.Context, gateway.CreateMandateInput) (*gateway.MandateSubscription, error) {
	return &gateway.MandateSubscription{ID: "mand"}, nil
}
func (nopGateway) CancelMandateSubscription(context.Context, string) error { return nil }
func (nopGateway) GetSubscriptionStatus(_ context.Context, id string) (*gateway.MandateSubscription, error) {
	return &gateway.MandateSubscription{ID: id}, nil
}
func (nopGateway) VerifySignature(string, string, string) bool { return true }
func (nopGateway) CheckoutKeyID() string                       { return "key" }

func testCatalog(t *testing.T) *plancatalog.Catalog {
	t.Helper()
	quota := 25
	c, err := plancatalog.NewCatalog(plancatalog.Config{SettlementCurrency: "INR"}, []plancatalog.Plan{
		{Code: "starter_30", Name: "Starter", Category: plancatalog.CategoryPlatform,
			PriceMinor: 99900, DurationDays: 30, ProductQuota: &quota},
		{Code: "lifetime", Name: "Lifetime", Category: plancatalog.CategoryPlatform,
			PriceMinor: 1999900, Lifetime: true},
		{Code: "store_basic_30", Name: "Store Basic", Category: plancatalog.CategoryStore,
			PriceMinor: 49900, DurationDays: 30},
	})
	if err != nil {
		t.Fatalf("test catalog: %v", err)
	}
	return c
}

func newTestChecker(t *testing.T) (*Checker, *memSubRepo) {
	t.Helper()
	repo := newMemSubRepo()
	catalog := testCatalog(t)
	subs := subscription.NewService(repo, catalog, nopGateway{}, audit.NopRecorder{}, notification.NopSink{})
	return NewChecker(subs, catalog), repo
}

func TestGetEntitlement_AdminBypass(t *testing.T) {
	t.Parallel()
	checker, _ := newTestChecker(t)

	// Admins pass with no subscription row at all.
	d := checker.GetEntitlement(1, true, plancatalog.CategoryPlatform)
	if !d.Allowed || d.Quota != nil {
		t.Fatalf("admin decision = %+v", d)
	}
	if d.Reason != "admin" {
		t.Fatalf("admin reason = %q", d.Reason)
	}
}

func TestGetEntitlement_NoSubscription(t *testing.T) {
	t.Parallel()
	checker, _ := newTestChecker(t)

	d := checker.GetEntitlement(1, false, plancatalog.CategoryPlatform)
	if d.Allowed {
		t.Fatalf("no subscription must deny: %+v", d)
	}
	if d.Reason != "no subscription" {
		t.Fatalf("reason = %q", d.Reason)
	}
}

func TestGetEntitlement_ActiveWithinTerm(t *testing.T) {
	t.Parallel()
	checker, repo := newTestChecker(t)

	end := time.Now().Add(10 * 24 * time.Hour)
	repo.put(models.Subscription{
		UserID: 1, PlanCode: "starter_30", PlanCategory: "platform",
		Status: models.SubscriptionActive, StartsAt: time.Now().Add(-20 * 24 * time.Hour),
		EndsAt: &end, QuotaUsed: 3,
	})

	d := checker.GetEntitlement(1, false, plancatalog.CategoryPlatform)
	if !d.Allowed || d.PlanCode != "starter_30" {
		t.Fatalf("decision = %+v", d)
	}
	if d.Quota == nil || *d.Quota != 25 || d.Used != 3 {
		t.Fatalf("quota view = %+v", d)
	}
}

func TestGetEntitlement_Lifetime(t *testing.T) {
	t.Parallel()
	checker, repo := newTestChecker(t)

	repo.put(models.Subscription{
		UserID: 1, PlanCode: "lifetime", PlanCategory: "platform",
		Status: models.SubscriptionActive, StartsAt: time.Now().Add(-400 * 24 * time.Hour),
	})

	d := checker.GetEntitlement(1, false, plancatalog.CategoryPlatform)
	if !d.Allowed || d.Quota != nil {
		t.Fatalf("lifetime decision = %+v", d)
	}
}

func TestGetEntitlement_TrialWindow(t *testing.T) {
	t.Parallel()
	checker, repo := newTestChecker(t)

	future := time.Now().Add(48 * time.Hour)
	repo.put(models.Subscription{
		UserID: 1, PlanCode: "starter_30", PlanCategory: "platform",
		Status: models.SubscriptionTrialing, StartsAt: time.Now(), TrialEndsAt: &future,
	})
	if d := checker.GetEntitlement(1, false, plancatalog.CategoryPlatform); !d.Allowed {
		t.Fatalf("in-window trial denied: %+v", d)
	}

	past := time.Now().Add(-time.Hour)
	repo2 := newMemSubRepo()
	catalog := testCatalog(t)
	subs := subscription.NewService(repo2, catalog, nopGateway{}, audit.NopRecorder{}, notification.NopSink{})
	checker2 := NewChecker(subs, catalog)
	repo2.put(models.Subscription{
		UserID: 1, PlanCode: "starter_30", PlanCategory: "platform",
		Status: models.SubscriptionTrialing, StartsAt: time.Now().Add(-6 * 24 * time.Hour), TrialEndsAt: &past,
	})
	d := checker2.GetEntitlement(1, false, plancatalog.CategoryPlatform)
	if d.Allowed {
		t.Fatalf("lapsed trial allowed: %+v", d)
	}
	if d.Reason != "subscription lapsed" {
		t.Fatalf("reason = %q", d.Reason)
	}
}

func TestGetEntitlement_ManualGrant(t *testing.T) {
	t.Parallel()
	checker, repo := newTestChecker(t)

	// Open-ended manual grant allows unconditionally.
	repo.put(models.Subscription{
		UserID: 1, PlanCode: "starter_30", PlanCategory: "platform",
		Status: models.SubscriptionManuallyGranted, Source: models.SubscriptionSourceManual,
		StartsAt: time.Now().Add(-100 * 24 * time.Hour),
	})
	if d := checker.GetEntitlement(1, false, plancatalog.CategoryPlatform); !d.Allowed {
		t.Fatalf("open-ended grant denied: %+v", d)
	}

	// A dated grant lapses at its end.
	past := time.Now().Add(-time.Minute)
	repo.put(models.Subscription{
		UserID: 2, PlanCode: "starter_30", PlanCategory: "platform",
		Status: models.SubscriptionManuallyGranted, Source: models.SubscriptionSourceManual,
		StartsAt: time.Now().Add(-30 * 24 * time.Hour), EndsAt: &past,
	})
	if d := checker.GetEntitlement(2, false, plancatalog.CategoryPlatform); d.Allowed {
		t.Fatalf("lapsed grant allowed: %+v", d)
	}
}

func TestGetEntitlement_CategoryIsolation(t *testing.T) {
	t.Parallel()
	checker, repo := newTestChecker(t)

	end := time.Now().Add(10 * 24 * time.Hour)
	repo.put(models.Subscription{
		UserID: 1, PlanCode: "store_basic_30", PlanCategory: "store",
		Status: models.SubscriptionActive, StartsAt: time.Now(), EndsAt: &end,
	})

	// A store subscription never answers a platform query.
	if d := checker.GetEntitlement(1, false, plancatalog.CategoryPlatform); d.Allowed {
		t.Fatalf("store plan granted platform access: %+v", d)
	}
	if d := checker.GetEntitlement(1, false, plancatalog.CategoryStore); !d.Allowed {
		t.Fatalf("store access denied to store subscriber: %+v", d)
	}
}

func TestGetEntitlement_UnknownPlanFailsClosed(t *testing.T) {
	t.Parallel()
	checker, repo := newTestChecker(t)

	repo.put(models.Subscription{
		UserID: 1, PlanCode: "retired_plan", PlanCategory: "platform",
		Status: models.SubscriptionActive, StartsAt: time.Now(),
	})
	d := checker.GetEntitlement(1, false, plancatalog.CategoryPlatform)
	if d.Allowed {
		t.Fatalf("unknown plan must fail closed: %+v", d)
	}
	if d.Reason != "unknown plan" {
		t.Fatalf("reason = %q", d.Reason)
	}
}
