package ports

import "context"

// BackendLoginRequest mirrors the clinic backend login contract.
type BackendLoginRequest struct {
	LoginID    string `json:"loginId"`
	Password   string `json:"password"`
	TodaysDay  string `json:"todaysDay"`
	LanguageID int    `json:"languageId"`
}

// BackendUserDetails is the principal payload the backend returns on success.
type BackendUserDetails struct {
	LoginID       string `json:"loginId"`
	DisplayName   string `json:"displayName"`
	RoleName      string `json:"roleName"`
	RoleID        int    `json:"roleId"`
	DoctorID      string `json:"doctorId"`
	ClinicID      string `json:"clinicId"`
	DoctorName    string `json:"doctorName"`
	ClinicName    string `json:"clinicName"`
	LanguageID    int    `json:"languageId"`
	Active        bool   `json:"active"`
	FinancialYear int    `json:"financialYear"`
	SessionID     string `json:"sessionId"`
}

// BackendLoginReply is the backend's login response envelope. Only its shape
// matters here; the backend's internals are an external collaborator.
type BackendLoginReply struct {
	LoginStatus  bool                `json:"loginStatus"`
	UserDetails  *BackendUserDetails `json:"userDetails"`
	ErrorMessage string              `json:"errorMessage,omitempty"`
}

// BackendAuthenticator is the outbound port to the clinic REST backend. Adapters
// own transport, timeout and retry classification; the application layer only sees
// domain errors (ErrInvalidCredentials vs ErrBackendUnavailable).
type BackendAuthenticator interface {
	Login(ctx context.Context, req BackendLoginRequest) (BackendLoginReply, error)
	Logout(ctx context.Context, sessionID string) error
	// ValidateSession asks the backend whether a session is still live.
	// Disabled in the default flow; when enabled the call must be raced against a
	// timeout so a hung backend cannot wedge the guard.
	ValidateSession(ctx context.Context, sessionID string) (bool, error)
}
