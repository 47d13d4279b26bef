package models

import (
	"time"

	"gorm.io/gorm"
)

// Notification is an in-app notice for a tenant, written alongside the
// email delivery so the dashboard can show a history.
type Notification struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UserID    uint           `gorm:"index" json:"user_id"`
	Type      string         `gorm:"type:varchar(50);index" json:"type"`
	Content   string         `gorm:"type:text" json:"content"`
	IsRead    bool           `gorm:"default:false" json:"is_read"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// MarkAsRead marks a notification as read.
func (n *Notification) MarkAsRead(db *gorm.DB) error {
	n.IsRead = true
	return db.Model(n).Update("is_read", true).Error
}

// CreateNotification stores a new notice for a tenant.
func CreateNotification(db *gorm.DB, userID uint, notificationType string, content string) error {
	notification := Notification{
		UserID:  userID,
		Type:    notificationType,
		Content: content,
		IsRead:  false,
	}

	return db.Create(&notification).Error
}
