package trial

import (
	"errors"
	"time"

	"github.com/UniversalLevi/E-CommerceStore-sub004/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides the payment persistence used by the mandate/trial
// workflow. The gateway payment identifier's unique index is the webhook
// deduplication key.
type Repository interface {
	CreatePayment(p *models.Payment) error
	GetPaymentByOrderID(orderID string) (*models.Payment, error)
	// GetPaymentByGatewayID returns nil when the gateway payment id has
	// not been seen before.
	GetPaymentByGatewayID(gatewayPaymentID string) (*models.Payment, error)
	// MarkPaid binds the gateway payment id and flips created -> paid.
	// Reports false when the payment already left created.
	MarkPaid(paymentID uint, gatewayPaymentID string, paidAt time.Time) (bool, error)
	MarkFailed(paymentID uint) (bool, error)
	// MarkRefunded flips paid -> refunded; false when not currently paid.
	MarkRefunded(paymentID uint) (bool, error)
	LinkSubscription(paymentID, subscriptionID uint) error
	// InsertCaptureIfNew inserts a capture payment row keyed by its
	// gateway payment id; reports false on a duplicate delivery.
	InsertCaptureIfNew(p *models.Payment) (bool, error)
	// CreateWebhookEventIfNew persists a delivery keyed by
	// (provider, provider_event_id). On a duplicate it reports false and
	// returns the previously stored row.
	CreateWebhookEventIfNew(event *models.GatewayWebhookEvent) (bool, *models.GatewayWebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a payment repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreatePayment(p *models.Payment) error {
	return r.db.Create(p).Error
}

func (r *gormRepository) GetPaymentByOrderID(orderID string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.Where("order_id = ?", orderID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) GetPaymentByGatewayID(gatewayPaymentID string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Where("gateway_payment_id = ?", gatewayPaymentID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) MarkPaid(paymentID uint, gatewayPaymentID string, paidAt time.Time) (bool, error) {
	tx := r.db.Model(&models.Payment{}).
		Where("id = ? AND status = ?", paymentID, models.PaymentCreated).
		Updates(map[string]any{
			"status":             models.PaymentPaid,
			"gateway_payment_id": gatewayPaymentID,
			"paid_at":            paidAt,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) MarkFailed(paymentID uint) (bool, error) {
	tx := r.db.Model(&models.Payment{}).
		Where("id = ? AND status = ?", paymentID, models.PaymentCreated).
		Updates(map[string]any{"status": models.PaymentFailed})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) MarkRefunded(paymentID uint) (bool, error) {
	tx := r.db.Model(&models.Payment{}).
		Where("id = ? AND status = ?", paymentID, models.PaymentPaid).
		Updates(map[string]any{"status": models.PaymentRefunded})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) LinkSubscription(paymentID, subscriptionID uint) error {
	return r.db.Model(&models.Payment{}).
		Where("id = ?", paymentID).
		Updates(map[string]any{"subscription_id": subscriptionID}).Error
}

func (r *gormRepository) InsertCaptureIfNew(p *models.Payment) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "gateway_payment_id"}},
		DoNothing: true,
	}).Create(p)
	if tx.Error != nil {
		return false, tx.Error
	}
	if tx.RowsAffected == 0 {
		return false, nil
	}
	return true, nil
}

func (r *gormRepository) CreateWebhookEventIfNew(event *models.GatewayWebhookEvent) (bool, *models.GatewayWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.GatewayWebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]any{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.GatewayWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
