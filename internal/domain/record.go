package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// SessionRecord is the persisted representation of the authenticated clinic
// principal and its tenancy context. A record is either fully absent or carries at
// minimum a login identifier and last-login timestamp; anything less is treated as
// absent by every consumer.
type SessionRecord struct {
	LoginID       string `json:"loginId"`
	DisplayName   string `json:"displayName,omitempty"`
	RoleName      string `json:"roleName,omitempty"`
	RoleID        int    `json:"roleId,omitempty"`
	DoctorID      string `json:"doctorId,omitempty"`
	ClinicID      string `json:"clinicId,omitempty"`
	DoctorName    string `json:"doctorName,omitempty"`
	ClinicName    string `json:"clinicName,omitempty"`
	LanguageID    int    `json:"languageId,omitempty"`
	Active        bool   `json:"active"`
	FinancialYear int    `json:"financialYear,omitempty"`
	// LastLoginTime is epoch milliseconds; it is overwritten on every save.
	LastLoginTime int64 `json:"lastLoginTime"`
	// SessionID is an opaque correlation token for the server-side session, empty
	// when the backend did not issue one.
	SessionID string `json:"sessionId,omitempty"`
}

// Complete reports whether the record satisfies the minimum-shape invariant.
// Partial records are indistinguishable from "no session" on purpose.
func (r SessionRecord) Complete() bool {
	return strings.TrimSpace(r.LoginID) != "" && r.LastLoginTime > 0
}

// AuthState is the derived projection consumed by the guard and the UI. It is
// recomputed from the session record plus the activity timestamp at check time;
// a persisted copy is only ever a cache, never the arbiter of validity.
type AuthState struct {
	User             *SessionRecord `json:"user"`
	IsAuthenticated  bool           `json:"isAuthenticated"`
	LastActivityTime int64          `json:"lastActivityTime"`
}

// LegacyRecord is the pre-namespacing single-blob session format: a plain "user"
// key with no timestamp semantics. It exists only so old installs migrate cleanly;
// once adopted it is rewritten in the current format and never read again.
type LegacyRecord struct {
	LoginID       string `json:"loginId"`
	DisplayName   string `json:"displayName,omitempty"`
	RoleName      string `json:"roleName,omitempty"`
	RoleID        int    `json:"roleId,omitempty"`
	DoctorID      string `json:"doctorId,omitempty"`
	ClinicID      string `json:"clinicId,omitempty"`
	LanguageID    int    `json:"languageId,omitempty"`
	Active        bool   `json:"active"`
	FinancialYear int    `json:"financialYear,omitempty"`
}

// ParseLegacyRecord deserializes a legacy blob. Unparseable payloads and records
// without a login identifier return (zero, false) so corruption degrades to
// "no session" rather than an error.
func ParseLegacyRecord(raw []byte) (LegacyRecord, bool) {
	var rec LegacyRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return LegacyRecord{}, false
	}
	if strings.TrimSpace(rec.LoginID) == "" {
		return LegacyRecord{}, false
	}
	return rec, true
}

// Normalize converts a legacy record into the current format. The last-login
// timestamp is stamped at migration time since the legacy format never carried one.
func (l LegacyRecord) Normalize(now time.Time) SessionRecord {
	return SessionRecord{
		LoginID:       strings.TrimSpace(l.LoginID),
		DisplayName:   l.DisplayName,
		RoleName:      l.RoleName,
		RoleID:        l.RoleID,
		DoctorID:      l.DoctorID,
		ClinicID:      l.ClinicID,
		LanguageID:    l.LanguageID,
		Active:        l.Active,
		FinancialYear: l.FinancialYear,
		LastLoginTime: now.UnixMilli(),
	}
}

// LoginAttempt records authentication outcomes for audit and history screens.
// The reason for this explicit model is to keep the login-history contract
// independent of how the clinic backend reports failures.
type LoginAttempt struct {
	ID            int64
	LoginID       string
	AttemptAt     time.Time
	IPAddress     string
	Status        string
	FailureReason string
	UserAgent     string
}
