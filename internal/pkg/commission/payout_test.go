package commission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/UniversalLevi/E-CommerceStore-sub004/app/models"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/apperr"
)

// seedApprovedPool accrues and matures one commission per amount for the
// affiliate of user 10, referred users starting at 50.
func seedApprovedPool(t *testing.T, e *Engine, repo *fakeRepo, amounts []int64) *models.Affiliate {
	t.Helper()
	ctx := context.Background()
	a := activeAffiliate(t, e, repo, 10, 50)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, amount := range amounts {
		referred := uint(50 + i)
		if i > 0 {
			if err := e.RecordReferral(ctx, a.ReferralCode, referred); err != nil {
				t.Fatalf("referral %d: %v", i, err)
			}
		}
		c, err := e.ComputeCommission(ctx, paidCapture(uint(i+1), referred, "growth_90", amount, start))
		if err != nil || c == nil {
			t.Fatalf("accrual %d: %v, %v", i, c, err)
		}
	}
	if _, err := e.MatureDue(start.Add(15 * 24 * time.Hour)); err != nil {
		t.Fatalf("mature: %v", err)
	}
	return a
}

func TestRequestPayout_BelowMinimum(t *testing.T) {
	t.Parallel()
	e, repo := newTestEngine(t)

	// One matured commission of 320000 * 2500bps = 80000, under the
	// 100000 minimum.
	a := seedApprovedPool(t, e, repo, []int64{320000})

	_, err := e.RequestPayout(context.Background(), a.ID)
	if !errors.Is(err, apperr.ErrBelowMinimum) {
		t.Fatalf("expected below-minimum, got %v", err)
	}

	// The rejected request must leave the pool untouched.
	pool, _ := repo.ListApprovedUnattached(a.ID)
	if len(pool) != 1 || pool[0].PayoutID != nil {
		t.Fatalf("pool mutated by failed request: %+v", pool)
	}
	repo.mu.Lock()
	count := len(repo.payouts)
	repo.mu.Unlock()
	if count != 0 {
		t.Fatalf("failed request persisted a payout")
	}
}

func TestRequestPayout(t *testing.T) {
	t.Parallel()
	e, repo := newTestEngine(t)
	ctx := context.Background()

	// Two matured commissions: 99975 + 99975 = 199950.
	a := seedApprovedPool(t, e, repo, []int64{399900, 399900})

	payout, err := e.RequestPayout(ctx, a.ID)
	if err != nil {
		t.Fatalf("RequestPayout: %v", err)
	}
	if payout.Status != models.PayoutRequested || payout.AmountMinor != 199950 {
		t.Fatalf("payout = %+v", payout)
	}
	if len(payout.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(payout.Items))
	}

	// Attached commissions leave the pool; a second request has nothing
	// to draw on.
	if _, err := e.RequestPayout(ctx, a.ID); !errors.Is(err, apperr.ErrBelowMinimum) {
		t.Fatalf("second request: got %v", err)
	}
}

func TestRequestPayout_PoolRaceSurfacesConflict(t *testing.T) {
	t.Parallel()
	e, repo := newTestEngine(t)
	ctx := context.Background()
	a := seedApprovedPool(t, e, repo, []int64{399900, 399900})

	// A concurrent request claims one commission after the pool was read
	// but before the payout row lands; the caller must see a conflict it
	// can retry, not an internal failure.
	repo.payoutRace = func() {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		stolen := uint(777)
		for _, c := range repo.commissions {
			if c.Status == models.CommissionApproved && c.PayoutID == nil {
				c.PayoutID = &stolen
				break
			}
		}
	}
	_, err := e.RequestPayout(ctx, a.ID)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("racy payout request: got %v, want conflict", err)
	}
}

func TestRequestPayout_InactiveAffiliate(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	ctx := context.Background()

	a, _ := e.ApplyAffiliate(ctx, 10)
	if _, err := e.RequestPayout(ctx, a.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("pending affiliate payout: got %v", err)
	}
	if _, err := e.RequestPayout(ctx, 999); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unknown affiliate payout: got %v", err)
	}
}

func TestDecidePayout_Approve(t *testing.T) {
	t.Parallel()
	e, repo := newTestEngine(t)
	ctx := context.Background()
	a := seedApprovedPool(t, e, repo, []int64{399900, 399900})

	requested, err := e.RequestPayout(ctx, a.ID)
	if err != nil {
		t.Fatalf("RequestPayout: %v", err)
	}
	decided, err := e.DecidePayout(ctx, "admin:1", requested.ID, true, "ok")
	if err != nil {
		t.Fatalf("DecidePayout: %v", err)
	}
	if decided.Status != models.PayoutApproved || decided.DecidedBy != "admin:1" {
		t.Fatalf("decided payout = %+v", decided)
	}

	if _, err := e.DecidePayout(ctx, "admin:2", requested.ID, false, "flip"); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("re-deciding a decided payout: got %v", err)
	}
}

func TestDecidePayout_RejectReleasesPool(t *testing.T) {
	t.Parallel()
	e, repo := newTestEngine(t)
	ctx := context.Background()
	a := seedApprovedPool(t, e, repo, []int64{399900, 399900})

	requested, err := e.RequestPayout(ctx, a.ID)
	if err != nil {
		t.Fatalf("RequestPayout: %v", err)
	}
	rejected, err := e.DecidePayout(ctx, "admin:1", requested.ID, false, "bank detail mismatch")
	if err != nil {
		t.Fatalf("DecidePayout: %v", err)
	}
	if rejected.Status != models.PayoutRejected {
		t.Fatalf("status = %s", rejected.Status)
	}

	// Commissions return to the approved pool and can be re-requested.
	pool, _ := repo.ListApprovedUnattached(a.ID)
	if len(pool) != 2 {
		t.Fatalf("pool after rejection = %d commissions, want 2", len(pool))
	}
	again, err := e.RequestPayout(ctx, a.ID)
	if err != nil {
		t.Fatalf("re-request after rejection: %v", err)
	}
	if again.AmountMinor != 199950 {
		t.Fatalf("re-requested amount = %d", again.AmountMinor)
	}

	if _, err := e.DecidePayout(ctx, "admin:1", 999, true, ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unknown payout: got %v", err)
	}
}

func TestMarkPayoutPaid(t *testing.T) {
	t.Parallel()
	e, repo := newTestEngine(t)
	ctx := context.Background()
	a := seedApprovedPool(t, e, repo, []int64{399900, 399900})

	requested, err := e.RequestPayout(ctx, a.ID)
	if err != nil {
		t.Fatalf("RequestPayout: %v", err)
	}

	// Paying an undecided payout is rejected.
	if _, err := e.MarkPayoutPaid(ctx, "admin:1", requested.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("paying a requested payout: got %v", err)
	}

	if _, err := e.DecidePayout(ctx, "admin:1", requested.ID, true, ""); err != nil {
		t.Fatalf("approve: %v", err)
	}
	paid, err := e.MarkPayoutPaid(ctx, "admin:1", requested.ID)
	if err != nil {
		t.Fatalf("MarkPayoutPaid: %v", err)
	}
	if paid.Status != models.PayoutPaid {
		t.Fatalf("status = %s", paid.Status)
	}

	// Item snapshots survive; the attached commissions are paid out.
	commissions, _ := repo.ListCommissionsByAffiliate(a.ID)
	for _, c := range commissions {
		if c.Status != models.CommissionPaid {
			t.Fatalf("commission %d status = %s, want paid", c.ID, c.Status)
		}
	}
}
