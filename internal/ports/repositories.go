package ports

import (
	"context"
	"time"

	"github.com/clinicdesk/session-gateway/internal/domain"
)

// LoginAttemptRepository persists authentication outcomes for the login-history
// surface. The gateway runs without it when no database is configured.
type LoginAttemptRepository interface {
	Insert(ctx context.Context, attempt domain.LoginAttempt) error
	ListByLogin(ctx context.Context, loginID string, limit, offset int, since *time.Time, status string) ([]domain.LoginAttempt, error)
}
