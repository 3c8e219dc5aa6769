package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clinicdesk/session-gateway/internal/domain"
	"github.com/clinicdesk/session-gateway/internal/ports"
)

func newTestClient(baseURL string, maxRetries int) *Client {
	return NewClient(baseURL, Options{
		Timeout:    2 * time.Second,
		MaxRetries: maxRetries,
		Backoff:    time.Millisecond,
	})
}

func TestLoginSuccess(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != loginPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"loginStatus":true,"userDetails":{"loginId":"dr.patel","roleName":"DOCTOR","active":true,"sessionId":"sid-1"}}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 1)
	reply, err := client.Login(context.Background(), ports.BackendLoginRequest{LoginID: "dr.patel", Password: "x"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !reply.LoginStatus || reply.UserDetails == nil || reply.UserDetails.SessionID != "sid-1" {
		t.Fatalf("reply lost fields: %+v", reply)
	}
}

func TestRejectionIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 3)
	_, err := client.Login(context.Background(), ports.BackendLoginRequest{LoginID: "x", Password: "y"})
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("4xx must not be retried, saw %d calls", got)
	}
}

func TestServerErrorsRetryThenCollapse(t *testing.T) {
	t.Parallel()

	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 2)
	_, err := client.Login(context.Background(), ports.BackendLoginRequest{LoginID: "x", Password: "y"})
	if !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Fatalf("exhausted retries must collapse to unavailable, got %v", err)
	}
	if got := atomic.LoadInt64(&calls); got != 3 {
		t.Fatalf("expected 1 attempt + 2 retries, saw %d calls", got)
	}
}

func TestRetrySucceedsAfterTransientFailure(t *testing.T) {
	t.Parallel()

	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"loginStatus":true,"userDetails":{"loginId":"dr.patel"}}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 2)
	reply, err := client.Login(context.Background(), ports.BackendLoginRequest{LoginID: "dr.patel", Password: "x"})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if !reply.LoginStatus {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestConnectionRefusedCollapsesToUnavailable(t *testing.T) {
	t.Parallel()

	// A closed server port yields transport errors, the retryable class.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	client := newTestClient(srv.URL, 1)
	_, err := client.Login(context.Background(), ports.BackendLoginRequest{LoginID: "x", Password: "y"})
	if !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestValidateSession(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != validatePath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"valid":true}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 1)
	valid, err := client.ValidateSession(context.Background(), "sid-1")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !valid {
		t.Fatalf("expected valid session")
	}
}
