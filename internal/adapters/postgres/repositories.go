package postgres

import (
	"github.com/clinicdesk/session-gateway/internal/ports"
	"gorm.io/gorm"
)

// Repositories bundles the gateway's persistence ports over one GORM handle.
type Repositories struct {
	LoginAttempts ports.LoginAttemptRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		LoginAttempts: &loginAttemptRepository{db: db},
	}
}
