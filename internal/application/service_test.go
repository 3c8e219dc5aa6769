package application

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/clinicdesk/session-gateway/internal/domain"
	"github.com/clinicdesk/session-gateway/internal/ports"
)

type fakeBackend struct {
	reply      ports.BackendLoginReply
	err        error
	loginCalls int
	logoutSID  string
}

func (f *fakeBackend) Login(_ context.Context, _ ports.BackendLoginRequest) (ports.BackendLoginReply, error) {
	f.loginCalls++
	return f.reply, f.err
}

func (f *fakeBackend) Logout(_ context.Context, sessionID string) error {
	f.logoutSID = sessionID
	return nil
}

func (f *fakeBackend) ValidateSession(context.Context, string) (bool, error) {
	return true, nil
}

type fakeSigner struct{}

func (fakeSigner) Sign(claims ports.GatewayClaims) (string, error) {
	return "token-for-" + claims.LoginID, nil
}

func (fakeSigner) ParseAndValidate(string) (ports.GatewayClaims, error) {
	return ports.GatewayClaims{}, errors.New("not used")
}

type fakeHasher struct{}

func (fakeHasher) Hash(password string) (string, error) { return "hash:" + password, nil }

func (fakeHasher) Compare(hash, password string) error {
	if hash != "hash:"+password {
		return errors.New("mismatch")
	}
	return nil
}

type fakeAttempts struct {
	inserted []domain.LoginAttempt
}

func (f *fakeAttempts) Insert(_ context.Context, attempt domain.LoginAttempt) error {
	f.inserted = append(f.inserted, attempt)
	return nil
}

func (f *fakeAttempts) ListByLogin(_ context.Context, loginID string, limit, offset int, since *time.Time, status string) ([]domain.LoginAttempt, error) {
	var out []domain.LoginAttempt
	for _, a := range f.inserted {
		if a.LoginID != loginID {
			continue
		}
		if status != "" && a.Status != status {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

type serviceFixture struct {
	service  *Service
	store    *SessionStore
	guard    *AuthGuard
	backend  *fakeBackend
	attempts *fakeAttempts
	kv       *memKV
}

func newServiceFixture(cfg Config) *serviceFixture {
	kv := newMemKV()
	store, _ := newTestStore(kv)
	tracker := NewActivityTracker(store)
	guard := NewAuthGuard(store, tracker, nil, "/login")
	guard.debounce = 10 * time.Millisecond
	backend := &fakeBackend{}
	attempts := &fakeAttempts{}

	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = time.Hour
	}
	svc := NewService(Dependencies{
		Config:   cfg,
		Store:    store,
		Guard:    guard,
		Backend:  backend,
		Signer:   fakeSigner{},
		Hasher:   fakeHasher{},
		Attempts: attempts,
	})
	return &serviceFixture{service: svc, store: store, guard: guard, backend: backend, attempts: attempts, kv: kv}
}

func TestLoginSuccessEstablishesSession(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(Config{})
	defer f.guard.Close()
	ctx := context.Background()

	f.backend.reply = ports.BackendLoginReply{
		LoginStatus: true,
		UserDetails: &ports.BackendUserDetails{
			LoginID:   "dr.patel",
			RoleName:  "DOCTOR",
			ClinicID:  "clinic-7",
			Active:    true,
			SessionID: "sid-42",
		},
	}

	res, err := f.service.Login(ctx, LoginRequest{LoginID: "dr.patel", Password: "secret"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if res.Token == "" || res.Offline {
		t.Fatalf("expected online token, got %+v", res)
	}

	if record := f.store.LoadUser(ctx); record == nil || record.LoginID != "dr.patel" {
		t.Fatalf("login must persist the session record")
	}
	if f.store.LoadSessionID(ctx) != "sid-42" {
		t.Fatalf("login must persist the backend session id")
	}
	if f.guard.State() != StateAuthenticated {
		t.Fatalf("login must admit the guard, state=%s", f.guard.State())
	}
	if len(f.attempts.inserted) != 1 || f.attempts.inserted[0].Status != "SUCCESS" {
		t.Fatalf("login must record a success attempt: %+v", f.attempts.inserted)
	}
}

func TestLoginRejectedCredentials(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(Config{})
	defer f.guard.Close()
	ctx := context.Background()

	f.backend.reply = ports.BackendLoginReply{LoginStatus: false, ErrorMessage: "bad password"}

	_, err := f.service.Login(ctx, LoginRequest{LoginID: "dr.patel", Password: "wrong"})
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if f.store.LoadUser(ctx) != nil {
		t.Fatalf("failed login must not persist a session")
	}
	if len(f.attempts.inserted) != 1 || f.attempts.inserted[0].Status != "FAILED" {
		t.Fatalf("failed login must record a failed attempt")
	}
}

func TestLoginValidatesInput(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(Config{})
	defer f.guard.Close()

	_, err := f.service.Login(context.Background(), LoginRequest{LoginID: "  ", Password: ""})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected input validation error, got %v", err)
	}
	if f.backend.loginCalls != 0 {
		t.Fatalf("invalid input must not reach the backend")
	}
}

func TestLoginBackendDownWithoutFallback(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(Config{OfflineFallback: false})
	defer f.guard.Close()

	f.backend.err = fmt.Errorf("%w: connection refused", domain.ErrBackendUnavailable)

	_, err := f.service.Login(context.Background(), LoginRequest{LoginID: "dr.patel", Password: "secret"})
	if !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Fatalf("expected backend unavailable, got %v", err)
	}
}

func TestOfflineFallbackLogin(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(Config{OfflineFallback: true})
	defer f.guard.Close()
	ctx := context.Background()

	// First: a successful online login seeds the record and credential cache.
	f.backend.reply = ports.BackendLoginReply{
		LoginStatus: true,
		UserDetails: &ports.BackendUserDetails{LoginID: "dr.patel", RoleName: "DOCTOR", Active: true},
	}
	if _, err := f.service.Login(ctx, LoginRequest{LoginID: "dr.patel", Password: "secret"}); err != nil {
		t.Fatalf("seed login failed: %v", err)
	}

	// Then the backend goes away.
	f.backend.err = fmt.Errorf("%w: timeout", domain.ErrBackendUnavailable)

	res, err := f.service.Login(ctx, LoginRequest{LoginID: "dr.patel", Password: "secret"})
	if err != nil {
		t.Fatalf("offline login failed: %v", err)
	}
	if !res.Offline {
		t.Fatalf("expected offline-marked response")
	}

	// Wrong password must still be rejected offline.
	if _, err := f.service.Login(ctx, LoginRequest{LoginID: "dr.patel", Password: "wrong"}); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("offline mismatch must reject, got %v", err)
	}
}

func TestDevBypassRequiresBothGates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	// Flag set but environment is production: no bypass, backend is consulted.
	f := newServiceFixture(Config{Env: "production"})
	f.kv.put("clinic:dev-bypass", []byte("1"))
	f.backend.reply = ports.BackendLoginReply{LoginStatus: false}
	if _, err := f.service.Login(ctx, LoginRequest{LoginID: "dev", Password: "x"}); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("production env must never bypass, got %v", err)
	}
	if f.backend.loginCalls != 1 {
		t.Fatalf("non-bypassed login must reach the backend")
	}
	f.guard.Close()

	// Development environment without the flag: still no bypass.
	f = newServiceFixture(Config{Env: "development"})
	f.backend.reply = ports.BackendLoginReply{LoginStatus: false}
	if _, err := f.service.Login(ctx, LoginRequest{LoginID: "dev", Password: "x"}); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("missing flag must never bypass, got %v", err)
	}
	f.guard.Close()

	// Both gates open: fabricated session, backend untouched.
	f = newServiceFixture(Config{Env: "development"})
	f.kv.put("clinic:dev-bypass", []byte("true"))
	res, err := f.service.Login(ctx, LoginRequest{LoginID: "dev", Password: "x"})
	if err != nil {
		t.Fatalf("dev bypass login failed: %v", err)
	}
	if res.Token == "" || f.backend.loginCalls != 0 {
		t.Fatalf("bypass must fabricate a session without the backend")
	}
	f.guard.Close()
}

func TestLogoutClearsEverything(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(Config{})
	defer f.guard.Close()
	ctx := context.Background()

	f.backend.reply = ports.BackendLoginReply{
		LoginStatus: true,
		UserDetails: &ports.BackendUserDetails{LoginID: "dr.patel", Active: true, SessionID: "sid-42"},
	}
	if _, err := f.service.Login(ctx, LoginRequest{LoginID: "dr.patel", Password: "secret"}); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := f.service.Logout(ctx); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if f.backend.logoutSID != "sid-42" {
		t.Fatalf("logout must notify the backend with the session id")
	}
	if f.kv.len() != 0 {
		t.Fatalf("logout must destroy all session state, %d keys remain", f.kv.len())
	}
	if f.guard.State() != StateUnauthenticated {
		t.Fatalf("logout must leave the guard unauthenticated")
	}
}

func TestSessionStatusProjection(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(Config{})
	defer f.guard.Close()
	ctx := context.Background()

	status := f.service.SessionStatus(ctx)
	if status.IsAuthenticated || status.User != nil {
		t.Fatalf("fresh gateway must report unauthenticated: %+v", status)
	}

	f.backend.reply = ports.BackendLoginReply{
		LoginStatus: true,
		UserDetails: &ports.BackendUserDetails{LoginID: "dr.patel", Active: true},
	}
	if _, err := f.service.Login(ctx, LoginRequest{LoginID: "dr.patel", Password: "secret"}); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	status = f.service.SessionStatus(ctx)
	if !status.IsAuthenticated || status.User == nil || status.User.LoginID != "dr.patel" {
		t.Fatalf("authenticated status must carry the principal: %+v", status)
	}
	if status.LastActivityTime == 0 {
		t.Fatalf("authenticated status must carry the activity timestamp")
	}
}

func TestLoginHistoryRequiresSession(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(Config{})
	defer f.guard.Close()
	ctx := context.Background()

	if _, err := f.service.ListLoginHistory(ctx, nil, LoginHistoryQuery{}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("history without a principal must be unauthorized, got %v", err)
	}
	if _, err := f.service.ListLoginHistory(ctx, &domain.SessionRecord{}, LoginHistoryQuery{}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("history for a blank principal must be unauthorized, got %v", err)
	}

	f.backend.reply = ports.BackendLoginReply{
		LoginStatus: true,
		UserDetails: &ports.BackendUserDetails{LoginID: "dr.patel", Active: true},
	}
	if _, err := f.service.Login(ctx, LoginRequest{LoginID: "dr.patel", Password: "secret"}); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	items, err := f.service.ListLoginHistory(ctx, &domain.SessionRecord{LoginID: "dr.patel"}, LoginHistoryQuery{})
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(items) != 1 || items[0].Status != "SUCCESS" {
		t.Fatalf("expected the success attempt in history: %+v", items)
	}
}
