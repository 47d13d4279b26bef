package commission

import (
	"errors"
	"time"

	"github.com/UniversalLevi/E-CommerceStore-sub004/app/models"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/apperr"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides the affiliate/commission/payout persistence used by
// the accrual engine and the payout gate.
type Repository interface {
	CreateAffiliate(a *models.Affiliate) error
	SaveAffiliate(a *models.Affiliate) error
	AffiliateByID(id uint) (*models.Affiliate, error)
	// AffiliateByUserID returns nil when the user has no affiliate profile.
	AffiliateByUserID(userID uint) (*models.Affiliate, error)
	AffiliateByReferralCode(code string) (*models.Affiliate, error)
	// AffiliateForReferredUser resolves the affiliate that referred a
	// tenant; nil when the tenant was not referred.
	AffiliateForReferredUser(referredUserID uint) (*models.Affiliate, error)
	CreateReferralIfNew(r *models.Referral) (bool, error)

	// InsertCommissionIfNew enforces the one-commission-per-(affiliate,
	// payment) invariant; false means a commission already existed.
	InsertCommissionIfNew(c *models.Commission) (bool, error)
	GetCommission(id uint) (*models.Commission, error)
	CommissionByPaymentID(paymentID uint) (*models.Commission, error)
	HasCommissionForReferredUser(affiliateID, referredUserID uint) (bool, error)
	// TransitionCommission applies a guarded status move; false when the
	// row was not in one of the expected statuses.
	TransitionCommission(id uint, from []models.CommissionStatus, updates map[string]any) (bool, error)
	CreateAdjustment(a *models.CommissionAdjustment) error
	ListPendingDue(now time.Time) ([]models.Commission, error)
	// ListApprovedUnattached returns the affiliate's payable pool:
	// approved commissions not held by any payout.
	ListApprovedUnattached(affiliateID uint) ([]models.Commission, error)
	ListCommissionsByAffiliate(affiliateID uint) ([]models.Commission, error)
	ListPayoutsByAffiliate(affiliateID uint) ([]models.Payout, error)
	ListPendingAffiliates() ([]models.Affiliate, error)

	CreatePayoutWithItems(p *models.Payout, commissionIDs []uint) error
	GetPayout(id uint) (*models.Payout, error)
	TransitionPayout(id uint, from, to models.PayoutStatus, decidedBy string) (bool, error)
	// ReleasePayoutCommissions returns a rejected payout's commissions to
	// the approved pool.
	ReleasePayoutCommissions(payoutID uint) error
	MarkPayoutCommissionsPaid(payoutID uint) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a commission repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateAffiliate(a *models.Affiliate) error {
	return r.db.Create(a).Error
}

func (r *gormRepository) SaveAffiliate(a *models.Affiliate) error {
	return r.db.Save(a).Error
}

func (r *gormRepository) AffiliateByID(id uint) (*models.Affiliate, error) {
	var a models.Affiliate
	if err := r.db.First(&a, id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *gormRepository) AffiliateByUserID(userID uint) (*models.Affiliate, error) {
	var a models.Affiliate
	err := r.db.Where("user_id = ?", userID).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *gormRepository) AffiliateByReferralCode(code string) (*models.Affiliate, error) {
	var a models.Affiliate
	if err := r.db.Where("referral_code = ?", code).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *gormRepository) AffiliateForReferredUser(referredUserID uint) (*models.Affiliate, error) {
	var ref models.Referral
	err := r.db.Where("referred_user_id = ?", referredUserID).First(&ref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.AffiliateByID(ref.AffiliateID)
}

func (r *gormRepository) CreateReferralIfNew(ref *models.Referral) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "referred_user_id"}},
		DoNothing: true,
	}).Create(ref)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) InsertCommissionIfNew(c *models.Commission) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "affiliate_id"},
			{Name: "payment_id"},
		},
		DoNothing: true,
	}).Create(c)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) GetCommission(id uint) (*models.Commission, error) {
	var c models.Commission
	if err := r.db.First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *gormRepository) CommissionByPaymentID(paymentID uint) (*models.Commission, error) {
	var c models.Commission
	err := r.db.Where("payment_id = ?", paymentID).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *gormRepository) HasCommissionForReferredUser(affiliateID, referredUserID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.Commission{}).
		Where("affiliate_id = ? AND referred_user_id = ? AND status <> ?",
			affiliateID, referredUserID, models.CommissionRevoked).
		Count(&count).Error
	return count > 0, err
}

func (r *gormRepository) TransitionCommission(id uint, from []models.CommissionStatus, updates map[string]any) (bool, error) {
	tx := r.db.Model(&models.Commission{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) CreateAdjustment(a *models.CommissionAdjustment) error {
	return r.db.Create(a).Error
}

func (r *gormRepository) ListPendingDue(now time.Time) ([]models.Commission, error) {
	var out []models.Commission
	err := r.db.
		Where("status = ? AND hold_until <= ?", models.CommissionPending, now).
		Find(&out).Error
	return out, err
}

func (r *gormRepository) ListApprovedUnattached(affiliateID uint) ([]models.Commission, error) {
	var out []models.Commission
	err := r.db.
		Where("affiliate_id = ? AND status = ? AND payout_id IS NULL", affiliateID, models.CommissionApproved).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

func (r *gormRepository) ListCommissionsByAffiliate(affiliateID uint) ([]models.Commission, error) {
	var out []models.Commission
	err := r.db.Where("affiliate_id = ?", affiliateID).Order("id DESC").Find(&out).Error
	return out, err
}

func (r *gormRepository) ListPayoutsByAffiliate(affiliateID uint) ([]models.Payout, error) {
	var out []models.Payout
	err := r.db.Where("affiliate_id = ?", affiliateID).Order("id DESC").Find(&out).Error
	return out, err
}

func (r *gormRepository) ListPendingAffiliates() ([]models.Affiliate, error) {
	var out []models.Affiliate
	err := r.db.Where("status = ?", models.AffiliatePending).Order("id ASC").Find(&out).Error
	return out, err
}

func (r *gormRepository) CreatePayoutWithItems(p *models.Payout, commissionIDs []uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(p).Error; err != nil {
			return err
		}
		for _, id := range commissionIDs {
			var c models.Commission
			if err := tx.First(&c, id).Error; err != nil {
				return err
			}
			res := tx.Model(&models.Commission{}).
				Where("id = ? AND status = ? AND payout_id IS NULL", id, models.CommissionApproved).
				Updates(map[string]any{"payout_id": p.ID})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return apperr.Conflictf("commission %d left the payable pool concurrently", id)
			}
			item := &models.PayoutItem{
				PayoutID:     p.ID,
				CommissionID: c.ID,
				AmountMinor:  c.AmountMinor,
			}
			if err := tx.Create(item).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *gormRepository) GetPayout(id uint) (*models.Payout, error) {
	var p models.Payout
	if err := r.db.Preload("Items").First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) TransitionPayout(id uint, from, to models.PayoutStatus, decidedBy string) (bool, error) {
	now := time.Now()
	tx := r.db.Model(&models.Payout{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "decided_by": decidedBy, "decided_at": now})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) ReleasePayoutCommissions(payoutID uint) error {
	return r.db.Model(&models.Commission{}).
		Where("payout_id = ? AND status = ?", payoutID, models.CommissionApproved).
		Updates(map[string]any{"payout_id": nil}).Error
}

func (r *gormRepository) MarkPayoutCommissionsPaid(payoutID uint) error {
	return r.db.Model(&models.Commission{}).
		Where("payout_id = ? AND status = ?", payoutID, models.CommissionApproved).
		Updates(map[string]any{"status": models.CommissionPaid}).Error
}
