package subscription

import (
	"errors"
	"time"

	"github.com/UniversalLevi/E-CommerceStore-sub004/app/models"
	"gorm.io/gorm"
)

// Repository provides DB operations used by the subscription service.
type Repository interface {
	Create(sub *models.Subscription) error
	GetByID(id uint) (*models.Subscription, error)
	// LiveByUserAndCategory returns the tenant's live subscription in a
	// category, or nil when there is none.
	LiveByUserAndCategory(userID uint, category string) (*models.Subscription, error)
	TrialingByMandateID(mandateID string) (*models.Subscription, error)
	// LiveByMandateID returns the trialing or active subscription bound
	// to a mandate, or nil when none is live.
	LiveByMandateID(mandateID string) (*models.Subscription, error)
	// TransitionStatus applies a compare-and-swap on the status column;
	// it reports false when the row was not in `from` anymore.
	TransitionStatus(id uint, from, to models.SubscriptionStatus, updates map[string]any) (bool, error)
	AppendHistory(h *models.SubscriptionHistory) error
	// IncrementQuota bumps quota_used only if it still equals prevUsed.
	IncrementQuota(id uint, prevUsed int) (bool, error)
	ListTrialsDue(now time.Time) ([]models.Subscription, error)
	ListActiveDue(now time.Time) ([]models.Subscription, error)
	// SetMandateCancelPending flags or clears the gateway-cancel retry
	// marker on a subscription.
	SetMandateCancelPending(id uint, pending bool) error
	ListMandateCancelPending(limit int) ([]models.Subscription, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a subscription repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(sub *models.Subscription) error {
	return r.db.Create(sub).Error
}

func (r *gormRepository) GetByID(id uint) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.Preload("History").First(&sub, id).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) LiveByUserAndCategory(userID uint, category string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.
		Where("user_id = ? AND plan_category = ? AND status IN ?",
			userID, category,
			[]models.SubscriptionStatus{
				models.SubscriptionTrialing,
				models.SubscriptionActive,
				models.SubscriptionManuallyGranted,
			}).
		Order("id DESC").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) TrialingByMandateID(mandateID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.
		Where("mandate_id = ? AND status = ?", mandateID, models.SubscriptionTrialing).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) LiveByMandateID(mandateID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.
		Where("mandate_id = ? AND status IN ?", mandateID,
			[]models.SubscriptionStatus{models.SubscriptionTrialing, models.SubscriptionActive}).
		Order("id DESC").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) TransitionStatus(id uint, from, to models.SubscriptionStatus, updates map[string]any) (bool, error) {
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = to
	updates["version"] = gorm.Expr("version + 1")
	tx := r.db.Model(&models.Subscription{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) AppendHistory(h *models.SubscriptionHistory) error {
	return r.db.Create(h).Error
}

func (r *gormRepository) IncrementQuota(id uint, prevUsed int) (bool, error) {
	tx := r.db.Model(&models.Subscription{}).
		Where("id = ? AND quota_used = ?", id, prevUsed).
		Updates(map[string]any{"quota_used": prevUsed + 1})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) ListTrialsDue(now time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.
		Where("status = ? AND trial_ends_at IS NOT NULL AND trial_ends_at <= ?", models.SubscriptionTrialing, now).
		Find(&subs).Error
	return subs, err
}

func (r *gormRepository) ListActiveDue(now time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.
		Where("status = ? AND ends_at IS NOT NULL AND ends_at <= ?", models.SubscriptionActive, now).
		Find(&subs).Error
	return subs, err
}

func (r *gormRepository) SetMandateCancelPending(id uint, pending bool) error {
	return r.db.Model(&models.Subscription{}).
		Where("id = ?", id).
		Updates(map[string]any{"mandate_cancel_pending": pending}).Error
}

func (r *gormRepository) ListMandateCancelPending(limit int) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.
		Where("mandate_cancel_pending = ?", true).
		Order("id ASC").
		Limit(limit).
		Find(&subs).Error
	return subs, err
}
