package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/clinicdesk/session-gateway/internal/domain"
	"github.com/clinicdesk/session-gateway/internal/ports"
)

// Service orchestrates login and logout against the clinic backend and keeps the
// session store, guard, and audit trail in agreement.
type Service struct {
	cfg      Config
	store    *SessionStore
	guard    *AuthGuard
	backend  ports.BackendAuthenticator
	signer   ports.TokenSigner
	hasher   ports.PasswordHasher
	attempts ports.LoginAttemptRepository
	logger   *slog.Logger
	nowFn    func() time.Time
}

type Dependencies struct {
	Config   Config
	Store    *SessionStore
	Guard    *AuthGuard
	Backend  ports.BackendAuthenticator
	Signer   ports.TokenSigner
	Hasher   ports.PasswordHasher
	Attempts ports.LoginAttemptRepository
	Logger   *slog.Logger
}

func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:      deps.Config,
		store:    deps.Store,
		guard:    deps.Guard,
		backend:  deps.Backend,
		signer:   deps.Signer,
		hasher:   deps.Hasher,
		attempts: deps.Attempts,
		logger:   logger.With("module", "service", "layer", "application"),
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
}

// Guard exposes the guard for the HTTP adapter's navigation gate.
func (s *Service) Guard() *AuthGuard { return s.guard }

// Store exposes the session store for the activity and status endpoints.
func (s *Service) Store() *SessionStore { return s.store }

// Login authenticates against the clinic backend and, on success, creates the
// persisted session and admits the guard. Backend failures are classified at
// the adapter boundary: non-retryable rejections surface as invalid credentials,
// exhausted retryable failures as backend unavailability (optionally satisfied
// by the offline credential cache).
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResponse, error) {
	loginID := strings.TrimSpace(req.LoginID)
	if loginID == "" || req.Password == "" {
		return LoginResponse{}, fmt.Errorf("%w: loginId and password are required", domain.ErrInvalidInput)
	}
	languageID := req.LanguageID
	if languageID == 0 {
		languageID = s.cfg.LanguageID
	}

	if s.devBypass(ctx) {
		record := s.fabricateDevRecord(loginID, languageID)
		s.establishSession(ctx, record, req.Password)
		return s.issueToken(record, false, "development bypass session")
	}

	reply, err := s.backend.Login(ctx, ports.BackendLoginRequest{
		LoginID:    loginID,
		Password:   req.Password,
		TodaysDay:  s.nowFn().Weekday().String(),
		LanguageID: languageID,
	})
	if err != nil {
		if errors.Is(err, domain.ErrBackendUnavailable) {
			return s.loginOffline(ctx, loginID, req)
		}
		s.recordAttempt(ctx, loginID, req, "FAILED", "BACKEND_REJECTED")
		return LoginResponse{}, err
	}
	if !reply.LoginStatus || reply.UserDetails == nil {
		s.recordAttempt(ctx, loginID, req, "FAILED", "INVALID_CREDENTIALS")
		if msg := strings.TrimSpace(reply.ErrorMessage); msg != "" {
			return LoginResponse{}, fmt.Errorf("%w: %s", domain.ErrInvalidCredentials, msg)
		}
		return LoginResponse{}, domain.ErrInvalidCredentials
	}

	record := recordFromDetails(reply.UserDetails)
	s.establishSession(ctx, record, req.Password)
	s.recordAttempt(ctx, loginID, req, "SUCCESS", "")
	return s.issueToken(record, false, "")
}

// Logout tears the session down: best-effort backend notification, durable state
// destroyed, guard revoked. Never fails the caller over a backend hiccup.
func (s *Service) Logout(ctx context.Context) error {
	if sessionID := s.store.LoadSessionID(ctx); sessionID != "" {
		if err := s.backend.Logout(ctx, sessionID); err != nil {
			s.logger.WarnContext(ctx, "backend logout failed; clearing local session anyway",
				"operation", "logout",
				"outcome", "degraded",
				"error", err,
			)
		}
	}
	s.guard.Revoke(ctx)
	return nil
}

// SessionStatus returns the current auth-state projection, recomputed from the
// store rather than read back from the cached copy.
func (s *Service) SessionStatus(ctx context.Context) SessionStatus {
	state := s.guard.State()
	status := SessionStatus{
		State:             state.String(),
		IsAuthenticated:   state == StateAuthenticated,
		LastActivityTime:  s.store.GetLastActivity(ctx),
		SessionAgeMinutes: s.store.SessionAgeMinutes(ctx),
	}
	if status.IsAuthenticated {
		status.User = s.store.LoadUser(ctx)
	}
	return status
}

// ListLoginHistory pages the audit trail for the authenticated principal, as
// established by the guard for the request at hand.
func (s *Service) ListLoginHistory(ctx context.Context, principal *domain.SessionRecord, q LoginHistoryQuery) ([]LoginHistoryItem, error) {
	if principal == nil || principal.LoginID == "" {
		return nil, domain.ErrUnauthorized
	}
	if s.attempts == nil {
		return nil, fmt.Errorf("%w: login history requires a database", domain.ErrNotImplemented)
	}

	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	offset := (q.Page - 1) * q.Limit

	var since *time.Time
	if q.Days > 0 {
		t := s.nowFn().Add(-time.Duration(q.Days) * 24 * time.Hour)
		since = &t
	}

	attempts, err := s.attempts.ListByLogin(ctx, principal.LoginID, q.Limit, offset, since, strings.ToUpper(strings.TrimSpace(q.Status)))
	if err != nil {
		return nil, err
	}

	result := make([]LoginHistoryItem, 0, len(attempts))
	for _, attempt := range attempts {
		result = append(result, LoginHistoryItem{
			ID:            attempt.ID,
			Timestamp:     attempt.AttemptAt,
			Status:        attempt.Status,
			FailureReason: attempt.FailureReason,
			IPAddress:     attempt.IPAddress,
		})
	}
	return result, nil
}

// loginOffline satisfies a login from the cached credential hash when every
// backend attempt failed on the retryable class. Gated by configuration.
func (s *Service) loginOffline(ctx context.Context, loginID string, req LoginRequest) (LoginResponse, error) {
	if !s.cfg.OfflineFallback || s.hasher == nil {
		s.recordAttempt(ctx, loginID, req, "FAILED", "BACKEND_UNAVAILABLE")
		return LoginResponse{}, domain.ErrBackendUnavailable
	}
	cachedHash := s.store.LoadCredentialCache(ctx, loginID)
	if cachedHash == "" {
		s.recordAttempt(ctx, loginID, req, "FAILED", "BACKEND_UNAVAILABLE")
		return LoginResponse{}, domain.ErrBackendUnavailable
	}
	if err := s.hasher.Compare(cachedHash, req.Password); err != nil {
		s.recordAttempt(ctx, loginID, req, "FAILED", "OFFLINE_MISMATCH")
		return LoginResponse{}, domain.ErrInvalidCredentials
	}

	record := s.store.LoadUser(ctx)
	if record == nil || record.LoginID != loginID {
		s.recordAttempt(ctx, loginID, req, "FAILED", "OFFLINE_NO_RECORD")
		return LoginResponse{}, domain.ErrBackendUnavailable
	}

	s.store.SaveUser(ctx, *record)
	s.guard.Admit(ctx, record)
	s.recordAttempt(ctx, loginID, req, "SUCCESS", "OFFLINE")
	s.logger.InfoContext(ctx, "offline login accepted",
		"operation", "login",
		"outcome", "success",
		"offline", true,
		"login_id", loginID,
	)
	return s.issueToken(record, true, "backend unreachable; session restored from offline cache")
}

// establishSession writes the durable session, refreshes the offline credential
// cache, and admits the guard.
func (s *Service) establishSession(ctx context.Context, record *domain.SessionRecord, password string) {
	s.store.SaveUser(ctx, *record)
	if record.SessionID != "" {
		s.store.SaveSessionID(ctx, record.SessionID)
	}
	if s.cfg.OfflineFallback && s.hasher != nil {
		if hash, err := s.hasher.Hash(password); err == nil {
			s.store.SaveCredentialCache(ctx, record.LoginID, hash)
		}
	}
	s.guard.Admit(ctx, record)
}

func (s *Service) issueToken(record *domain.SessionRecord, offline bool, message string) (LoginResponse, error) {
	now := s.nowFn()
	token, err := s.signer.Sign(ports.GatewayClaims{
		LoginID:   record.LoginID,
		RoleName:  record.RoleName,
		SessionID: record.SessionID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.TokenTTL),
	})
	if err != nil {
		return LoginResponse{}, fmt.Errorf("sign gateway token: %w", err)
	}
	return LoginResponse{
		Token:     token,
		ExpiresIn: int64(s.cfg.TokenTTL.Seconds()),
		User:      record,
		Offline:   offline,
		Message:   message,
	}, nil
}

// devBypass is reachable only when the environment is development AND the
// storage flag is set; neither alone fabricates a session.
func (s *Service) devBypass(ctx context.Context) bool {
	return s.cfg.Env == "development" && s.store.DevBypassEnabled(ctx)
}

func (s *Service) fabricateDevRecord(loginID string, languageID int) *domain.SessionRecord {
	return &domain.SessionRecord{
		LoginID:     loginID,
		DisplayName: loginID,
		RoleName:    "ADMIN",
		RoleID:      1,
		LanguageID:  languageID,
		Active:      true,
	}
}

func (s *Service) recordAttempt(ctx context.Context, loginID string, req LoginRequest, status, reason string) {
	if s.attempts == nil {
		return
	}
	err := s.attempts.Insert(ctx, domain.LoginAttempt{
		LoginID:       loginID,
		AttemptAt:     s.nowFn(),
		IPAddress:     req.IPAddress,
		Status:        status,
		FailureReason: reason,
		UserAgent:     req.UserAgent,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "login attempt not recorded",
			"operation", "record_attempt",
			"outcome", "degraded",
			"login_id", loginID,
			"error", err,
		)
	}
}

func recordFromDetails(d *ports.BackendUserDetails) *domain.SessionRecord {
	return &domain.SessionRecord{
		LoginID:       d.LoginID,
		DisplayName:   d.DisplayName,
		RoleName:      d.RoleName,
		RoleID:        d.RoleID,
		DoctorID:      d.DoctorID,
		ClinicID:      d.ClinicID,
		DoctorName:    d.DoctorName,
		ClinicName:    d.ClinicName,
		LanguageID:    d.LanguageID,
		Active:        d.Active,
		FinancialYear: d.FinancialYear,
		SessionID:     d.SessionID,
	}
}
