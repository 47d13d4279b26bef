package notification

import (
	"fmt"
	"log"

	"github.com/UniversalLevi/E-CommerceStore-sub004/app/models"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/mail"
	"gorm.io/gorm"
)

// Notification types emitted by the billing core.
const (
	TypeTrialCaptureFailed = "trial_capture_failed"
	TypeSubscriptionActive = "subscription_active"
	TypePayoutDecided      = "payout_decided"
	TypeCommissionAccrued  = "commission_accrued"
)

// Sink delivers a notification to a tenant. Delivery is best effort; the
// billing core never blocks on it.
type Sink interface {
	Notify(userID uint, notifType, message string)
}

// MailSink resolves the tenant's email and sends via SMTP.
type MailSink struct {
	db *gorm.DB
}

func NewMailSink(db *gorm.DB) *MailSink {
	return &MailSink{db: db}
}

func (s *MailSink) Notify(userID uint, notifType, message string) {
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		log.Printf("notification lookup failed for user %d: %v", userID, err)
		return
	}
	if err := models.CreateNotification(s.db, userID, notifType, message); err != nil {
		log.Printf("notification persist failed for user %d: %v", userID, err)
	}
	subject := fmt.Sprintf("Account update: %s", notifType)
	if err := mail.SendMail(user.Email, subject, message); err != nil {
		log.Printf("notification send failed for user %d (%s): %v", userID, notifType, err)
	}
}

// NopSink discards notifications; used in tests.
type NopSink struct{}

func (NopSink) Notify(uint, string, string) {}
