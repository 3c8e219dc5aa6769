package ports

import "time"

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// GatewayClaims is the token handed to the browser after login. It binds the UI
// to the stored session; the guard's validity decision still comes from the
// session store, not from the token.
type GatewayClaims struct {
	LoginID   string    `json:"login_id"`
	RoleName  string    `json:"role"`
	SessionID string    `json:"session_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	KeyID     string    `json:"kid"`
}

type TokenSigner interface {
	Sign(claims GatewayClaims) (string, error)
	ParseAndValidate(token string) (GatewayClaims, error)
}
