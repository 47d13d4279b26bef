package subscription

import (
	"errors"
	"testing"

	"github.com/UniversalLevi/E-CommerceStore-sub004/app/models"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/apperr"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from models.SubscriptionStatus
		to   models.SubscriptionStatus
		want bool
	}{
		{StatusNone, models.SubscriptionTrialing, true},
		{StatusNone, models.SubscriptionActive, true},
		{StatusNone, models.SubscriptionManuallyGranted, true},
		{StatusNone, models.SubscriptionExpired, false},
		{models.SubscriptionTrialing, models.SubscriptionActive, true},
		{models.SubscriptionTrialing, models.SubscriptionExpired, true},
		{models.SubscriptionTrialing, models.SubscriptionCancelled, true},
		{models.SubscriptionTrialing, models.SubscriptionManuallyGranted, false},
		{models.SubscriptionActive, models.SubscriptionCancelled, true},
		{models.SubscriptionActive, models.SubscriptionExpired, true},
		{models.SubscriptionActive, models.SubscriptionTrialing, false},
		{models.SubscriptionManuallyGranted, models.SubscriptionCancelled, true},
		{models.SubscriptionManuallyGranted, models.SubscriptionExpired, true},
		{models.SubscriptionCancelled, models.SubscriptionActive, false},
		{models.SubscriptionCancelled, models.SubscriptionTrialing, false},
		{models.SubscriptionExpired, models.SubscriptionActive, false},
		{models.SubscriptionExpired, models.SubscriptionManuallyGranted, false},
	}

	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%q, %q) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestCheckTransition_ReturnsConflict(t *testing.T) {
	t.Parallel()

	err := checkTransition(models.SubscriptionExpired, models.SubscriptionActive)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if err := checkTransition(models.SubscriptionTrialing, models.SubscriptionActive); err != nil {
		t.Fatalf("legal transition rejected: %v", err)
	}
}

func TestStatusLive(t *testing.T) {
	t.Parallel()

	live := []models.SubscriptionStatus{
		models.SubscriptionTrialing,
		models.SubscriptionActive,
		models.SubscriptionManuallyGranted,
	}
	for _, s := range live {
		if !s.Live() {
			t.Fatalf("expected %q to be live", s)
		}
	}
	dead := []models.SubscriptionStatus{
		models.SubscriptionCancelled,
		models.SubscriptionExpired,
		StatusNone,
	}
	for _, s := range dead {
		if s.Live() {
			t.Fatalf("expected %q not to be live", s)
		}
	}
}
