package security

import (
	"strings"
	"testing"
	"time"

	"github.com/clinicdesk/session-gateway/internal/ports"
)

func TestSignAndParseRoundTrip(t *testing.T) {
	t.Parallel()

	signer, err := NewEphemeralJWTSigner("test-key")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	issued := time.Now().UTC().Truncate(time.Second)
	token, err := signer.Sign(ports.GatewayClaims{
		LoginID:   "dr.patel",
		RoleName:  "DOCTOR",
		SessionID: "sid-42",
		IssuedAt:  issued,
		ExpiresAt: issued.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	claims, err := signer.ParseAndValidate(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.LoginID != "dr.patel" || claims.RoleName != "DOCTOR" || claims.SessionID != "sid-42" {
		t.Fatalf("claims lost in round trip: %+v", claims)
	}
	if claims.KeyID != "test-key" {
		t.Fatalf("expected kid in parsed claims, got %q", claims.KeyID)
	}
}

func TestTamperedTokenRejected(t *testing.T) {
	t.Parallel()

	signer, err := NewEphemeralJWTSigner("")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	token, err := signer.Sign(ports.GatewayClaims{
		LoginID:   "dr.patel",
		IssuedAt:  time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape")
	}
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if _, err := signer.ParseAndValidate(tampered); err == nil {
		t.Fatalf("tampered token must be rejected")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	t.Parallel()

	signer, err := NewEphemeralJWTSigner("test-key")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	token, err := signer.Sign(ports.GatewayClaims{
		LoginID:   "dr.patel",
		IssuedAt:  time.Now().UTC().Add(-2 * time.Hour),
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := signer.ParseAndValidate(token); err == nil {
		t.Fatalf("expired token must be rejected")
	}
}

func TestBcryptHasherRoundTrip(t *testing.T) {
	t.Parallel()

	hasher := NewBcryptHasher(4)
	hash, err := hasher.Hash("secret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := hasher.Compare(hash, "secret"); err != nil {
		t.Fatalf("compare matching password: %v", err)
	}
	if err := hasher.Compare(hash, "wrong"); err == nil {
		t.Fatalf("wrong password must not compare")
	}
}
