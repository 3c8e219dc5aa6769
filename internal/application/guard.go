package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/clinicdesk/session-gateway/internal/domain"
)

// GuardState is the guard's position in its validation state machine.
type GuardState int32

const (
	StateUnvalidated GuardState = iota
	StateValidating
	StateAuthenticated
	StateUnauthenticated
)

func (s GuardState) String() string {
	switch s {
	case StateUnvalidated:
		return "unvalidated"
	case StateValidating:
		return "validating"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

const (
	// inactivityCeilingMinutes is the maximum gap between now and the last
	// observed activity before a session counts as expired.
	inactivityCeilingMinutes = 30
	// watchdogTimeout bounds the validating state. It is a liveness guarantee,
	// not a network timeout: validation is storage-bound in the default flow.
	watchdogTimeout = 10 * time.Second
	// redirectDebounce delays the login redirect briefly so rapid consecutive
	// state transitions do not cause a visible flicker; the pending redirect is
	// cancelled if the state flips back to authenticated first.
	redirectDebounce = 100 * time.Millisecond
	// staleRecheckInterval is the cadence of the session-monitoring loop that
	// runs while authenticated.
	staleRecheckInterval = 30 * time.Second
)

// Decision is the guard's verdict for one protected navigation.
type Decision struct {
	State GuardState
	// Bypass is set when the target route is the login entry point; the caller
	// renders it without any session logic.
	Bypass bool
	// RedirectTo is the login entry point when access is denied, empty otherwise.
	RedirectTo string
	// Reason is a human-readable denial message for display, never a stack trace.
	Reason string
	// User is the authenticated principal when access is granted.
	User *domain.SessionRecord
}

// AuthGuard gates access to protected routes. It is the sole mutator of the
// derived "is authenticated" state; the session store remains the sole owner of
// the persisted bytes. Every failure path terminates in a definite state,
// authenticated or unauthenticated, and nothing escapes as a panic or error to
// the caller.
type AuthGuard struct {
	store     *SessionStore
	tracker   *ActivityTracker
	logger    *slog.Logger
	nowFn     func() time.Time
	loginPath string
	watchdog  time.Duration
	debounce  time.Duration
	recheck   time.Duration

	mu            sync.Mutex
	state         GuardState
	redirectTimer *time.Timer
	redirectFn    func(target string)
	monitorStop   chan struct{}
	monitorDone   chan struct{}
}

// NewAuthGuard wires the guard over the store and tracker. loginPath is the
// designated bypass route, "/login" by convention.
func NewAuthGuard(store *SessionStore, tracker *ActivityTracker, logger *slog.Logger, loginPath string) *AuthGuard {
	if logger == nil {
		logger = slog.Default()
	}
	if loginPath == "" {
		loginPath = "/login"
	}
	return &AuthGuard{
		store:     store,
		tracker:   tracker,
		logger:    logger.With("module", "auth_guard", "layer", "application"),
		nowFn:     func() time.Time { return time.Now().UTC() },
		loginPath: loginPath,
		watchdog:  watchdogTimeout,
		debounce:  redirectDebounce,
		recheck:   staleRecheckInterval,
		state:     StateUnvalidated,
	}
}

// SetRedirectHandler installs the navigation sink invoked when a debounced
// redirect fires. Optional; the HTTP adapter issues redirects inline from the
// decision and leaves this for UI-push integrations.
func (g *AuthGuard) SetRedirectHandler(fn func(target string)) {
	g.mu.Lock()
	g.redirectFn = fn
	g.mu.Unlock()
}

// State returns the guard's current state.
func (g *AuthGuard) State() GuardState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Check runs the full transition logic for one entry to a protected route.
// The validation work runs under a watchdog so the caller can never hang in the
// validating state.
func (g *AuthGuard) Check(ctx context.Context, route string) Decision {
	if route == g.loginPath {
		return Decision{State: g.State(), Bypass: true}
	}

	g.setState(StateValidating)

	type outcome struct {
		record  *domain.SessionRecord
		expired bool
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("session validation panic: %v", r)}
			}
		}()
		record, expired := g.evaluate(ctx)
		done <- outcome{record: record, expired: expired}
	}()

	wd := time.NewTimer(g.watchdog)
	defer wd.Stop()

	select {
	case out := <-done:
		if out.err != nil {
			return g.failClosed(ctx, out.err)
		}
		if out.record != nil {
			return g.grant(ctx, out.record)
		}
		if out.expired {
			return g.deny(ctx, "session expired", true)
		}
		return g.deny(ctx, "", false)
	case <-wd.C:
		return g.failClosed(ctx, domain.ErrValidationTimeout)
	case <-ctx.Done():
		return g.failClosed(ctx, ctx.Err())
	}
}

// Revoke is the explicit logout transition: authenticated → unauthenticated with
// the session destroyed.
func (g *AuthGuard) Revoke(ctx context.Context) {
	g.stopMonitoring()
	g.store.ClearAll(ctx)
	g.setState(StateUnauthenticated)
}

// Admit moves the guard to authenticated after a successful login writes the
// session store, cancelling any pending redirect.
func (g *AuthGuard) Admit(ctx context.Context, record *domain.SessionRecord) {
	g.grant(ctx, record)
}

// Close releases every timer and background loop the guard owns. Safe to call
// more than once; required on every teardown path so no timer fires against a
// torn-down guard.
func (g *AuthGuard) Close() {
	g.stopMonitoring()
	g.cancelRedirect()
}

// RedirectPending reports whether a debounced redirect is armed.
func (g *AuthGuard) RedirectPending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.redirectTimer != nil
}

// evaluate tries each session source in order until one yields a usable record:
// the primary store (record + activity inside the ceiling), then the legacy
// single-blob format, which is adopted and migrated so subsequent checks take
// the primary path. An unreadable or unparseable legacy blob is purged on
// sight so it is never re-parsed on later checks. Returns (nil, true) when a
// record existed but the session had gone stale.
func (g *AuthGuard) evaluate(ctx context.Context) (*domain.SessionRecord, bool) {
	record := g.store.LoadUser(ctx)
	if record != nil && g.store.IsSessionValid(ctx, inactivityCeilingMinutes) {
		return record, false
	}

	legacy, ok, legacyErr := g.store.LoadLegacyRecord(ctx)
	if legacyErr != nil {
		g.store.PurgeLegacy(ctx)
		g.logger.WarnContext(ctx, "unusable legacy session purged",
			"operation", "legacy_migration",
			"outcome", "purged",
			"error", legacyErr,
		)
	}
	if ok {
		migrated := legacy.Normalize(g.nowFn())
		g.store.SaveUser(ctx, migrated)
		g.store.PurgeLegacy(ctx)
		g.logger.InfoContext(ctx, "legacy session adopted",
			"operation", "legacy_migration",
			"outcome", "success",
			"login_id", migrated.LoginID,
		)
		if saved := g.store.LoadUser(ctx); saved != nil {
			return saved, false
		}
		return &migrated, false
	}

	return nil, record != nil
}

func (g *AuthGuard) grant(ctx context.Context, record *domain.SessionRecord) Decision {
	g.store.UpdateLastActivity(ctx)
	g.store.SaveAuthState(ctx, domain.AuthState{
		User:             record,
		IsAuthenticated:  true,
		LastActivityTime: g.store.GetLastActivity(ctx),
	})
	g.cancelRedirect()
	g.setState(StateAuthenticated)
	g.startMonitoring()
	return Decision{State: StateAuthenticated, User: record}
}

func (g *AuthGuard) deny(ctx context.Context, reason string, destroy bool) Decision {
	g.stopMonitoring()
	if destroy {
		g.store.ClearAll(ctx)
	}
	g.setState(StateUnauthenticated)
	g.scheduleRedirect()
	return Decision{State: StateUnauthenticated, RedirectTo: g.loginPath, Reason: reason}
}

// failClosed handles every ambiguous or erroneous condition: degrade to
// unauthenticated and purge any partial legacy keys, never fail open.
func (g *AuthGuard) failClosed(ctx context.Context, err error) Decision {
	cleanup := context.WithoutCancel(ctx)
	g.store.PurgeLegacy(cleanup)
	g.logger.WarnContext(ctx, "session validation failed closed",
		"operation", "guard_check",
		"outcome", "unauthenticated",
		"error", err,
	)
	return g.deny(cleanup, "could not validate session", false)
}

func (g *AuthGuard) setState(next GuardState) {
	g.mu.Lock()
	prev := g.state
	g.state = next
	g.mu.Unlock()
	if prev != next {
		g.logger.Debug("guard state transition", "from", prev.String(), "to", next.String())
	}
}

// scheduleRedirect arms the debounced login redirect. An already-armed timer is
// left alone so bursts of denials collapse into one navigation.
func (g *AuthGuard) scheduleRedirect() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.redirectTimer != nil {
		return
	}
	g.redirectTimer = time.AfterFunc(g.debounce, g.fireRedirect)
}

func (g *AuthGuard) fireRedirect() {
	g.mu.Lock()
	g.redirectTimer = nil
	if g.state != StateUnauthenticated {
		g.mu.Unlock()
		return
	}
	fn := g.redirectFn
	target := g.loginPath
	g.mu.Unlock()
	if fn != nil {
		fn(target)
	}
}

func (g *AuthGuard) cancelRedirect() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.redirectTimer != nil {
		g.redirectTimer.Stop()
		g.redirectTimer = nil
	}
}

// startMonitoring attaches the activity tracker and the staleness loop. The loop
// runs only while authenticated and is torn down on every transition away.
func (g *AuthGuard) startMonitoring() {
	g.mu.Lock()
	if g.monitorStop != nil {
		g.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	g.monitorStop = stop
	g.monitorDone = done
	g.mu.Unlock()

	g.tracker.Start(context.Background())
	go g.monitor(stop, done)
}

func (g *AuthGuard) stopMonitoring() {
	g.mu.Lock()
	stop := g.monitorStop
	done := g.monitorDone
	g.monitorStop = nil
	g.monitorDone = nil
	g.mu.Unlock()

	g.tracker.Stop()
	if stop != nil {
		close(stop)
		<-done
	}
}

// monitor re-checks staleness on a fixed cadence while the session is live and
// forces the expiry transition the moment the ceiling is crossed, without
// waiting for the next navigation.
func (g *AuthGuard) monitor(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(g.recheck)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx := context.Background()
			if g.store.IsSessionValid(ctx, inactivityCeilingMinutes) {
				continue
			}
			g.logger.Info("session expired during monitoring",
				"operation", "session_monitor",
				"outcome", "unauthenticated",
				"session_age_minutes", g.store.SessionAgeMinutes(ctx),
			)
			g.tracker.Stop()
			g.store.ClearAll(ctx)
			g.mu.Lock()
			g.monitorStop = nil
			g.monitorDone = nil
			g.state = StateUnauthenticated
			g.mu.Unlock()
			g.scheduleRedirect()
			return
		}
	}
}
