package models

import (
	"fmt"
	"strings"
	"time"
)

type CommissionStatus string

const (
	CommissionPending  CommissionStatus = "pending"
	CommissionApproved CommissionStatus = "approved"
	CommissionPaid     CommissionStatus = "paid"
	CommissionRevoked  CommissionStatus = "revoked"
)

// Commission accrues for exactly one (affiliate, payment) pair; the unique
// composite index enforces that under concurrent webhook retries.
type Commission struct {
	ID             uint             `gorm:"primaryKey" json:"id"`
	AffiliateID    uint             `gorm:"not null;index;index:ux_commissions_affiliate_payment,unique,priority:1" json:"affiliate_id"`
	PaymentID      uint             `gorm:"not null;index:ux_commissions_affiliate_payment,unique,priority:2" json:"payment_id"`
	ReferredUserID uint             `gorm:"not null;index" json:"referred_user_id"`
	PlanCode       string           `gorm:"type:varchar(50);not null" json:"plan_code"`
	AmountMinor    int64            `gorm:"not null" json:"amount_minor"`
	RateBps        int              `gorm:"not null" json:"rate_bps"`
	Status         CommissionStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	HoldUntil      time.Time        `gorm:"not null;index" json:"hold_until"`
	PayoutID       *uint            `gorm:"index" json:"payout_id,omitempty"`
	RevokedReason  string           `gorm:"type:varchar(255)" json:"revoked_reason,omitempty"`
	CreatedAt      time.Time        `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// CommissionAdjustAction is the closed set of admin adjustments.
type CommissionAdjustAction string

const (
	CommissionAdjustApprove   CommissionAdjustAction = "approve"
	CommissionAdjustRevoke    CommissionAdjustAction = "revoke"
	CommissionAdjustSetAmount CommissionAdjustAction = "set-amount"
)

// ParseCommissionAdjustAction rejects unknown adjustment actions.
func ParseCommissionAdjustAction(raw string) (CommissionAdjustAction, error) {
	a := CommissionAdjustAction(strings.ToLower(strings.TrimSpace(raw)))
	switch a {
	case CommissionAdjustApprove, CommissionAdjustRevoke, CommissionAdjustSetAmount:
		return a, nil
	}
	return "", fmt.Errorf("unknown commission adjustment action %q", raw)
}

// CommissionAdjustment preserves the pre-adjustment amount and status
// before an admin overwrite lands on the commission row.
type CommissionAdjustment struct {
	ID           uint                   `gorm:"primaryKey" json:"id"`
	CommissionID uint                   `gorm:"not null;index" json:"commission_id"`
	Action       CommissionAdjustAction `gorm:"type:varchar(20);not null" json:"action"`
	PrevAmount   int64                  `gorm:"not null" json:"prev_amount"`
	PrevStatus   CommissionStatus       `gorm:"type:varchar(20);not null" json:"prev_status"`
	NewAmount    int64                  `gorm:"not null" json:"new_amount"`
	Actor        string                 `gorm:"type:varchar(100);not null" json:"actor"`
	Note         string                 `gorm:"type:text" json:"note"`
	CreatedAt    time.Time              `gorm:"autoCreateTime" json:"created_at"`
}
