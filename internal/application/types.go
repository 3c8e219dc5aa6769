package application

import (
	"time"

	"github.com/clinicdesk/session-gateway/internal/domain"
)

// Config carries the service-level knobs resolved at bootstrap.
type Config struct {
	// Env is the deployment environment; the development bypass is reachable
	// only when this is exactly "development".
	Env string
	// TokenTTL bounds the signed gateway token handed to the browser.
	TokenTTL time.Duration
	// OfflineFallback permits login against the cached credential hash when the
	// backend is unreachable. Off by default.
	OfflineFallback bool
	// LanguageID is the default language sent with backend logins when the
	// request does not carry one.
	LanguageID int
}

type LoginRequest struct {
	LoginID    string `json:"loginId"`
	Password   string `json:"password"`
	LanguageID int    `json:"languageId"`
	IPAddress  string `json:"-"`
	UserAgent  string `json:"-"`
}

type LoginResponse struct {
	Token     string                `json:"token"`
	ExpiresIn int64                 `json:"expires_in"`
	User      *domain.SessionRecord `json:"user"`
	// Offline marks a login satisfied by the cached credential because the
	// backend was unreachable.
	Offline bool `json:"offline,omitempty"`
	Message string `json:"message,omitempty"`
}

type SessionStatus struct {
	State             string                `json:"state"`
	IsAuthenticated   bool                  `json:"isAuthenticated"`
	User              *domain.SessionRecord `json:"user"`
	LastActivityTime  int64                 `json:"lastActivityTime"`
	SessionAgeMinutes int64                 `json:"sessionAgeMinutes"`
}

type LoginHistoryQuery struct {
	Page   int
	Limit  int
	Days   int
	Status string
}

type LoginHistoryItem struct {
	ID            int64     `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Status        string    `json:"status"`
	FailureReason string    `json:"failure_reason,omitempty"`
	IPAddress     string    `json:"ip_address"`
}
