package models

import "time"

// AuditLog is the append-only trail of privileged state transitions.
// Rows are inserted atomically and never updated.
type AuditLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Actor      string    `gorm:"type:varchar(100);not null;index" json:"actor"`
	Action     string    `gorm:"type:varchar(60);not null;index" json:"action"`
	EntityType string    `gorm:"type:varchar(40);not null;index:idx_audit_logs_entity,priority:1" json:"entity_type"`
	EntityID   uint      `gorm:"not null;index:idx_audit_logs_entity,priority:2" json:"entity_id"`
	Details    string    `gorm:"type:text" json:"details"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
