package audit

import (
	"encoding/json"
	"log"

	"github.com/UniversalLevi/E-CommerceStore-sub004/app/models"
	"gorm.io/gorm"
)

// Recorder is the audit sink consumed by every privileged operation.
// Implementations must be append-only; a single atomic insert per record.
type Recorder interface {
	Record(actor, action, entityType string, entityID uint, details map[string]any)
}

// GormRecorder writes audit rows to the audit_logs table.
type GormRecorder struct {
	db *gorm.DB
}

func NewRecorder(db *gorm.DB) *GormRecorder {
	return &GormRecorder{db: db}
}

// Record inserts one audit row. Audit failures are logged, never
// propagated: a failed audit write must not roll back the business action
// it describes.
func (r *GormRecorder) Record(actor, action, entityType string, entityID uint, details map[string]any) {
	payload := ""
	if len(details) > 0 {
		if b, err := json.Marshal(details); err == nil {
			payload = string(b)
		}
	}
	row := &models.AuditLog{
		Actor:      actor,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    payload,
	}
	if err := r.db.Create(row).Error; err != nil {
		log.Printf("audit record failed (actor=%s action=%s): %v", actor, action, err)
	}
}

// NopRecorder discards records; used in tests.
type NopRecorder struct{}

func (NopRecorder) Record(string, string, string, uint, map[string]any) {}
