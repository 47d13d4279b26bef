package repository

import (
	"github.com/UniversalLevi/E-CommerceStore-sub004/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	Update(user *models.User) error
	UpdateLastLogin(userID uint) error
	Delete(id uint) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
	Search(query string) ([]models.User, error)
}

// AuditLogRepository defines the interface for the append-only audit trail
type AuditLogRepository interface {
	ListByEntity(entityType string, entityID uint, limit int) ([]models.AuditLog, error)
	ListRecent(limit int) ([]models.AuditLog, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	User     UserRepository
	AuditLog AuditLogRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:     NewUserRepository(db),
		AuditLog: NewAuditLogRepository(db),
	}
}
