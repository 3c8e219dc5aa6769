// Package maintenance holds background loops that keep the workstation store
// clean without a browser attached.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/clinicdesk/session-gateway/internal/application"
)

// Sweeper periodically destroys expired session state. The guard already does
// this on access; the sweeper catches workstations that sit idle with nobody
// navigating, so stale records do not outlive the inactivity ceiling on disk.
type Sweeper struct {
	logger      *slog.Logger
	store       *application.SessionStore
	interval    time.Duration
	maxInactive int
}

// NewSweeper constructs the sweep loop with sane defaults.
func NewSweeper(logger *slog.Logger, store *application.SessionStore, interval time.Duration, maxInactiveMinutes int) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if maxInactiveMinutes <= 0 {
		maxInactiveMinutes = 30
	}
	return &Sweeper{
		logger:      logger.With("module", "maintenance.sweeper", "layer", "adapter"),
		store:       store,
		interval:    interval,
		maxInactive: maxInactiveMinutes,
	}
}

// Run executes the periodic sweep loop until context cancellation.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.sweepOnce(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	if !s.store.HasUserData(ctx) {
		return
	}
	if s.store.IsSessionValid(ctx, s.maxInactive) {
		return
	}

	age := s.store.SessionAgeMinutes(ctx)
	s.store.ClearAll(ctx)
	s.logger.InfoContext(ctx, "expired session swept",
		"operation", "sweep_once",
		"outcome", "success",
		"session_age_minutes", age,
	)
}
