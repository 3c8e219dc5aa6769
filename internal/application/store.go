package application

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/clinicdesk/session-gateway/internal/domain"
	"github.com/clinicdesk/session-gateway/internal/ports"
)

// Storage keys owned by the session store. Keeping the user record and the
// activity timestamp under separate keys lets activity update on every
// interaction burst without re-serializing the principal.
const (
	keyUserRecord   = "clinic:user-record"
	keyAuthState    = "clinic:auth-state"
	keySessionID    = "clinic:session-id"
	keyLastActivity = "clinic:last-activity"
	keyCredential   = "clinic:credential-cache"
	keyDevBypass    = "clinic:dev-bypass"

	// keyLegacyUser is the pre-namespacing single-blob format. Read once for
	// migration, purged afterwards.
	keyLegacyUser = "user"
)

// SessionStore owns the persisted session bytes. Every operation is best-effort:
// storage failures are logged and degrade to no-op or nil, never to an error the
// caller has to handle. Validity evaluation is a pure function of stored state
// and wall-clock time.
type SessionStore struct {
	kv     ports.KeyValueStore
	logger *slog.Logger
	nowFn  func() time.Time
}

// NewSessionStore builds a store over the given storage capability.
func NewSessionStore(kv ports.KeyValueStore, logger *slog.Logger) *SessionStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionStore{
		kv:     kv,
		logger: logger.With("module", "session_store", "layer", "application"),
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SaveUser persists the record verbatim except LastLoginTime, which is always
// overwritten with the save-time timestamp. The activity timestamp is bumped in
// the same operation so a fresh login never starts out stale.
func (s *SessionStore) SaveUser(ctx context.Context, record domain.SessionRecord) {
	record.LastLoginTime = s.nowFn().UnixMilli()
	s.setJSON(ctx, keyUserRecord, record, "save_user")
	s.UpdateLastActivity(ctx)
}

// LoadUser reads and deserializes the session record. Absent keys, storage
// failures and malformed payloads all return nil; corruption must degrade to
// "no session", not propagate.
func (s *SessionStore) LoadUser(ctx context.Context) *domain.SessionRecord {
	raw, err := s.kv.Get(ctx, keyUserRecord)
	if err != nil {
		s.logReadFailure(ctx, "load_user", keyUserRecord, err)
		return nil
	}
	var record domain.SessionRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		s.logger.WarnContext(ctx, "corrupt session record treated as absent",
			"operation", "load_user",
			"outcome", "degraded",
			"error", err,
		)
		return nil
	}
	if !record.Complete() {
		return nil
	}
	return &record
}

// SaveAuthState persists the derived projection. It is only ever a cache the
// guard may consult; validity is always recomputed from the record + activity.
func (s *SessionStore) SaveAuthState(ctx context.Context, state domain.AuthState) {
	s.setJSON(ctx, keyAuthState, state, "save_auth_state")
}

// LoadAuthState returns the cached projection, or nil when absent or corrupt.
func (s *SessionStore) LoadAuthState(ctx context.Context) *domain.AuthState {
	raw, err := s.kv.Get(ctx, keyAuthState)
	if err != nil {
		s.logReadFailure(ctx, "load_auth_state", keyAuthState, err)
		return nil
	}
	var state domain.AuthState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil
	}
	return &state
}

// SaveSessionID stores the opaque server-side correlation token.
func (s *SessionStore) SaveSessionID(ctx context.Context, id string) {
	if err := s.kv.Set(ctx, keySessionID, []byte(id)); err != nil {
		s.logWriteFailure(ctx, "save_session_id", keySessionID, err)
	}
}

// LoadSessionID returns the stored correlation token, "" when absent.
func (s *SessionStore) LoadSessionID(ctx context.Context) string {
	raw, err := s.kv.Get(ctx, keySessionID)
	if err != nil {
		s.logReadFailure(ctx, "load_session_id", keySessionID, err)
		return ""
	}
	return string(raw)
}

// UpdateLastActivity unconditionally overwrites the activity timestamp with now.
func (s *SessionStore) UpdateLastActivity(ctx context.Context) {
	millis := strconv.FormatInt(s.nowFn().UnixMilli(), 10)
	if err := s.kv.Set(ctx, keyLastActivity, []byte(millis)); err != nil {
		s.logWriteFailure(ctx, "update_last_activity", keyLastActivity, err)
	}
}

// GetLastActivity returns the stored activity timestamp in epoch milliseconds.
// Absent or unparseable values return 0, which every caller treats as
// "infinitely stale".
func (s *SessionStore) GetLastActivity(ctx context.Context) int64 {
	raw, err := s.kv.Get(ctx, keyLastActivity)
	if err != nil {
		if !errors.Is(err, ports.ErrKeyNotFound) {
			s.logReadFailure(ctx, "get_last_activity", keyLastActivity, err)
		}
		return 0
	}
	millis, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || millis < 0 {
		return 0
	}
	return millis
}

// IsSessionValid reports whether the gap between now and the last recorded
// activity is under the inactivity ceiling. No activity on record means invalid,
// regardless of the ceiling.
func (s *SessionStore) IsSessionValid(ctx context.Context, maxInactiveMinutes int) bool {
	last := s.GetLastActivity(ctx)
	if last == 0 {
		return false
	}
	elapsed := s.nowFn().UnixMilli() - last
	return elapsed < int64(maxInactiveMinutes)*60_000
}

// SessionAgeMinutes returns floor((now - lastActivity) / 1m), 0 when no activity
// was ever recorded.
func (s *SessionStore) SessionAgeMinutes(ctx context.Context) int64 {
	last := s.GetLastActivity(ctx)
	if last == 0 {
		return 0
	}
	elapsed := s.nowFn().UnixMilli() - last
	if elapsed < 0 {
		return 0
	}
	return elapsed / 60_000
}

// HasUserData reports key presence without paying the deserialization cost.
func (s *SessionStore) HasUserData(ctx context.Context) bool {
	_, err := s.kv.Get(ctx, keyUserRecord)
	return err == nil
}

// HasAuthState reports presence of the cached projection.
func (s *SessionStore) HasAuthState(ctx context.Context) bool {
	_, err := s.kv.Get(ctx, keyAuthState)
	return err == nil
}

// ClearAll deletes every key this store owns, including the legacy blob.
// Idempotent: clearing an already-empty store is a no-op.
func (s *SessionStore) ClearAll(ctx context.Context) {
	for _, key := range []string{keyUserRecord, keyAuthState, keySessionID, keyLastActivity, keyCredential, keyLegacyUser} {
		if err := s.kv.Remove(ctx, key); err != nil {
			s.logWriteFailure(ctx, "clear_all", key, err)
		}
	}
}

// LoadLegacyRecord reads the pre-namespacing blob. ok reports a usable record;
// err is non-nil when the key exists but could not be read or parsed, so the
// caller can purge the remnant. A plain miss is (zero, false, nil).
func (s *SessionStore) LoadLegacyRecord(ctx context.Context) (domain.LegacyRecord, bool, error) {
	raw, err := s.kv.Get(ctx, keyLegacyUser)
	if err != nil {
		if errors.Is(err, ports.ErrKeyNotFound) {
			return domain.LegacyRecord{}, false, nil
		}
		s.logReadFailure(ctx, "load_legacy_record", keyLegacyUser, err)
		return domain.LegacyRecord{}, false, err
	}
	legacy, ok := domain.ParseLegacyRecord(raw)
	if !ok {
		return domain.LegacyRecord{}, false, errors.New("legacy record unparseable")
	}
	return legacy, true, nil
}

// PurgeLegacy removes the legacy blob. Called after migration and on any
// fail-closed path so partial legacy state never lingers.
func (s *SessionStore) PurgeLegacy(ctx context.Context) {
	if err := s.kv.Remove(ctx, keyLegacyUser); err != nil {
		s.logWriteFailure(ctx, "purge_legacy", keyLegacyUser, err)
	}
}

// SaveCredentialCache stores the bcrypt hash backing the offline login fallback.
func (s *SessionStore) SaveCredentialCache(ctx context.Context, loginID, passwordHash string) {
	s.setJSON(ctx, keyCredential, credentialCache{LoginID: loginID, PasswordHash: passwordHash}, "save_credential_cache")
}

// LoadCredentialCache returns the cached credential hash for loginID, "" when
// absent, corrupt, or recorded for a different login.
func (s *SessionStore) LoadCredentialCache(ctx context.Context, loginID string) string {
	raw, err := s.kv.Get(ctx, keyCredential)
	if err != nil {
		return ""
	}
	var cached credentialCache
	if err := json.Unmarshal(raw, &cached); err != nil {
		return ""
	}
	if cached.LoginID != loginID {
		return ""
	}
	return cached.PasswordHash
}

// DevBypassEnabled reports whether the development bypass flag is set in storage.
// The flag alone is not sufficient; the environment gate lives in the service.
func (s *SessionStore) DevBypassEnabled(ctx context.Context) bool {
	raw, err := s.kv.Get(ctx, keyDevBypass)
	if err != nil {
		return false
	}
	return string(raw) == "1" || string(raw) == "true"
}

type credentialCache struct {
	LoginID      string `json:"loginId"`
	PasswordHash string `json:"passwordHash"`
}

func (s *SessionStore) setJSON(ctx context.Context, key string, value any, operation string) {
	raw, err := json.Marshal(value)
	if err != nil {
		s.logWriteFailure(ctx, operation, key, err)
		return
	}
	if err := s.kv.Set(ctx, key, raw); err != nil {
		s.logWriteFailure(ctx, operation, key, err)
	}
}

func (s *SessionStore) logWriteFailure(ctx context.Context, operation, key string, err error) {
	s.logger.ErrorContext(ctx, "session storage write failed",
		"operation", operation,
		"outcome", "degraded",
		"key", key,
		"error", err,
	)
}

func (s *SessionStore) logReadFailure(ctx context.Context, operation, key string, err error) {
	if errors.Is(err, ports.ErrKeyNotFound) {
		return
	}
	s.logger.WarnContext(ctx, "session storage read failed",
		"operation", operation,
		"outcome", "degraded",
		"key", key,
		"error", err,
	)
}
