package models

import (
	"fmt"
	"time"
)

type AffiliateStatus string

const (
	AffiliatePending   AffiliateStatus = "pending"
	AffiliateActive    AffiliateStatus = "active"
	AffiliateSuspended AffiliateStatus = "suspended"
	AffiliateRejected  AffiliateStatus = "rejected"
)

// ParseAffiliateStatus rejects anything outside the closed status set.
func ParseAffiliateStatus(raw string) (AffiliateStatus, error) {
	switch AffiliateStatus(raw) {
	case AffiliatePending, AffiliateActive, AffiliateSuspended, AffiliateRejected:
		return AffiliateStatus(raw), nil
	default:
		return "", fmt.Errorf("unknown affiliate status %q", raw)
	}
}

// Affiliate is one referring tenant. CommissionRateBps overrides the plan
// default when non-nil.
type Affiliate struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	UserID            uint            `gorm:"not null;uniqueIndex" json:"user_id"`
	ReferralCode      string          `gorm:"type:varchar(32);not null;uniqueIndex" json:"referral_code"`
	Status            AffiliateStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	CommissionRateBps *int            `gorm:"default:null" json:"commission_rate_bps,omitempty"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// Referral binds a referred tenant to the affiliate that brought them in.
// First touch wins; the unique index on referred_user_id makes re-recording
// a no-op.
type Referral struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	AffiliateID    uint      `gorm:"not null;index" json:"affiliate_id"`
	ReferredUserID uint      `gorm:"not null;uniqueIndex" json:"referred_user_id"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}
