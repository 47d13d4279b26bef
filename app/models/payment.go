package models

import "time"

// PaymentStatus lifecycle: created -> paid|failed exactly once;
// refunded is reachable only from paid.
type PaymentStatus string

const (
	PaymentCreated  PaymentStatus = "created"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// PaymentPurpose distinguishes the small mandate-activation token charge
// from full-amount captures; commissions only ever come from the latter.
type PaymentPurpose string

const (
	PaymentPurposeToken   PaymentPurpose = "token"
	PaymentPurposeCapture PaymentPurpose = "capture"
	PaymentPurposeDirect  PaymentPurpose = "direct"
)

// Payment is one gateway charge attempt. GatewayPaymentID is the
// at-least-once webhook deduplication key.
type Payment struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	UserID           uint           `gorm:"not null;index" json:"user_id"`
	OrderID          string         `gorm:"type:varchar(191);not null;uniqueIndex" json:"order_id"`
	GatewayPaymentID *string        `gorm:"type:varchar(191);default:null;uniqueIndex" json:"gateway_payment_id,omitempty"`
	MandateID        string         `gorm:"type:varchar(191);default:null;index" json:"mandate_id,omitempty"`
	PlanCode         string         `gorm:"type:varchar(50);not null;index" json:"plan_code"`
	Purpose          PaymentPurpose `gorm:"type:varchar(20);not null;default:'direct'" json:"purpose"`
	Status           PaymentStatus  `gorm:"type:varchar(20);not null;default:'created';index" json:"status"`
	AmountMinor      int64          `gorm:"not null" json:"amount_minor"`
	Currency         string         `gorm:"type:varchar(8);not null;default:'INR'" json:"currency"`
	SubscriptionID   *uint          `gorm:"index" json:"subscription_id,omitempty"`
	PaidAt           *time.Time     `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}
