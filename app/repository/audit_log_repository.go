package repository

import (
	"github.com/UniversalLevi/E-CommerceStore-sub004/app/models"
	"gorm.io/gorm"
)

// auditLogRepository implements the AuditLogRepository interface. The
// table is append-only; writes go through the audit recorder and this
// repository only reads.
type auditLogRepository struct {
	db *gorm.DB
}

// NewAuditLogRepository creates a new audit log repository instance
func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &auditLogRepository{db: db}
}

// ListByEntity returns the trail for one entity, newest first
func (r *auditLogRepository) ListByEntity(entityType string, entityID uint, limit int) ([]models.AuditLog, error) {
	var out []models.AuditLog
	err := r.db.Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}

// ListRecent returns the newest entries across all entities
func (r *auditLogRepository) ListRecent(limit int) ([]models.AuditLog, error) {
	var out []models.AuditLog
	err := r.db.Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}
