package models

import "time"

type PayoutStatus string

const (
	PayoutRequested PayoutStatus = "requested"
	PayoutApproved  PayoutStatus = "approved"
	PayoutRejected  PayoutStatus = "rejected"
	PayoutPaid      PayoutStatus = "paid"
)

// Payout is one payout request over a snapshot of approved commissions.
type Payout struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	AffiliateID uint         `gorm:"not null;index" json:"affiliate_id"`
	AmountMinor int64        `gorm:"not null" json:"amount_minor"`
	Status      PayoutStatus `gorm:"type:varchar(20);not null;default:'requested';index" json:"status"`
	DecidedBy   string       `gorm:"type:varchar(100)" json:"decided_by,omitempty"`
	DecidedAt   *time.Time   `gorm:"type:timestamp;default:null" json:"decided_at,omitempty"`
	CreatedAt   time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"autoUpdateTime" json:"updated_at"`

	Items []PayoutItem `gorm:"foreignKey:PayoutID" json:"items,omitempty"`
}

// PayoutItem is the immutable snapshot of one commission at request time.
// Later commission adjustments do not rewrite this row.
type PayoutItem struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	PayoutID     uint      `gorm:"not null;index" json:"payout_id"`
	CommissionID uint      `gorm:"not null;uniqueIndex" json:"commission_id"`
	AmountMinor  int64     `gorm:"not null" json:"amount_minor"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}
