package models

import (
	"fmt"
	"strings"
	"time"
)

// SubscriptionStatus is a closed enum; every transition goes through the
// subscription service's transition table.
type SubscriptionStatus string

const (
	SubscriptionTrialing        SubscriptionStatus = "trialing"
	SubscriptionActive          SubscriptionStatus = "active"
	SubscriptionManuallyGranted SubscriptionStatus = "manually_granted"
	SubscriptionCancelled       SubscriptionStatus = "cancelled"
	SubscriptionExpired         SubscriptionStatus = "expired"
)

// Live reports whether the status grants entitlements right now
// (subject to date windows checked by the entitlement query).
func (s SubscriptionStatus) Live() bool {
	switch s {
	case SubscriptionTrialing, SubscriptionActive, SubscriptionManuallyGranted:
		return true
	default:
		return false
	}
}

// ParseSubscriptionStatus rejects unknown values instead of coercing them.
func ParseSubscriptionStatus(raw string) (SubscriptionStatus, error) {
	s := SubscriptionStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case SubscriptionTrialing, SubscriptionActive, SubscriptionManuallyGranted,
		SubscriptionCancelled, SubscriptionExpired:
		return s, nil
	}
	return "", fmt.Errorf("unknown subscription status %q", raw)
}

const (
	SubscriptionSourceGateway = "gateway"
	SubscriptionSourceManual  = "manual"
)

// Subscription is the authoritative record of a tenant's platform or store
// plan. Rows are never deleted; dead subscriptions stay for audit.
type Subscription struct {
	ID            uint               `gorm:"primaryKey" json:"id"`
	UserID        uint               `gorm:"not null;index:idx_subscriptions_user_category,priority:1" json:"user_id"`
	PlanCode      string             `gorm:"type:varchar(50);not null;index" json:"plan_code"`
	PlanCategory  string             `gorm:"type:varchar(20);not null;index:idx_subscriptions_user_category,priority:2" json:"plan_category"`
	Status        SubscriptionStatus `gorm:"type:varchar(32);not null;index" json:"status"`
	Source        string             `gorm:"type:varchar(20);not null;default:'gateway'" json:"source"`
	StartsAt      time.Time          `gorm:"not null" json:"starts_at"`
	EndsAt        *time.Time         `gorm:"type:timestamp;default:null" json:"ends_at,omitempty"`
	TrialEndsAt   *time.Time         `gorm:"type:timestamp;default:null" json:"trial_ends_at,omitempty"`
	AmountPaid    int64              `gorm:"not null;default:0" json:"amount_paid"`
	MandateID     string             `gorm:"type:varchar(191);default:null;index" json:"mandate_id,omitempty"`
	QuotaUsed     int                `gorm:"not null;default:0" json:"quota_used"`
	Version       uint               `gorm:"not null;default:0" json:"-"`
	CreatedAt     time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time          `gorm:"autoUpdateTime" json:"updated_at"`

	// MandateCancelPending marks a dead subscription whose gateway
	// mandate cancellation failed and is still owed a retry.
	MandateCancelPending bool `gorm:"not null;default:false;index" json:"-"`

	History []SubscriptionHistory `gorm:"foreignKey:SubscriptionID" json:"history,omitempty"`
}

// HasExpiry reports whether the subscription carries an end date at all.
func (s *Subscription) HasExpiry() bool {
	return s.EndsAt != nil && !s.Lifetime()
}

// Lifetime is true for subscriptions with no end date.
func (s *Subscription) Lifetime() bool { return s.EndsAt == nil }
