// Package backend is the HTTP adapter to the clinic REST backend. The backend
// is an external collaborator; only the login/logout contract is modeled here.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/clinicdesk/session-gateway/internal/domain"
	"github.com/clinicdesk/session-gateway/internal/ports"
)

const (
	loginPath    = "/api/auth/login"
	logoutPath   = "/api/auth/logout"
	validatePath = "/api/auth/validate"
)

// Client talks to the clinic backend with bounded retries. Failures are
// classified at this boundary: network errors, timeouts and 5xx are retryable
// and collapse to ErrBackendUnavailable once the budget is spent; 4xx are
// non-retryable and collapse immediately to ErrInvalidCredentials.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
}

// Options tune the client; zero values fall back to defaults.
type Options struct {
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	Logger     *slog.Logger
}

// NewClient builds a backend client for baseURL.
func NewClient(baseURL string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 2
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 250 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: opts.Timeout},
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		logger:     logger.With("module", "backend_client", "layer", "adapter"),
	}
}

func (c *Client) Login(ctx context.Context, req ports.BackendLoginRequest) (ports.BackendLoginReply, error) {
	var reply ports.BackendLoginReply
	body, err := json.Marshal(req)
	if err != nil {
		return reply, fmt.Errorf("marshal login request: %w", err)
	}

	raw, err := c.post(ctx, loginPath, body)
	if err != nil {
		return reply, err
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return reply, fmt.Errorf("%w: malformed login response: %v", domain.ErrBackendUnavailable, err)
	}
	return reply, nil
}

func (c *Client) Logout(ctx context.Context, sessionID string) error {
	body, _ := json.Marshal(map[string]string{"sessionId": sessionID})
	_, err := c.post(ctx, logoutPath, body)
	return err
}

// ValidateSession races the backend round-trip against the request timeout so a
// hung backend cannot block the guard. Disabled in the default flow.
func (c *Client) ValidateSession(ctx context.Context, sessionID string) (bool, error) {
	body, _ := json.Marshal(map[string]string{"sessionId": sessionID})
	raw, err := c.post(ctx, validatePath, body)
	if err != nil {
		return false, err
	}
	var reply struct {
		Valid bool `json:"valid"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return false, fmt.Errorf("%w: malformed validate response: %v", domain.ErrBackendUnavailable, err)
	}
	return reply.Valid, nil
}

// post performs one retried POST. Only the retryable class re-attempts; each
// retry waits one backoff step longer than the last.
func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, ctx.Err())
			case <-time.After(time.Duration(attempt) * c.backoff):
			}
			c.logger.WarnContext(ctx, "retrying backend call",
				"operation", "backend_post",
				"path", path,
				"attempt", attempt,
				"error", lastErr,
			)
		}

		raw, retryable, err := c.postOnce(ctx, path, body)
		if err == nil {
			return raw, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, lastErr)
}

func (c *Client) postOnce(ctx context.Context, path string, body []byte) (raw []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("build backend request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		// Transport-level failures (connection refused, timeout) are retryable.
		return nil, true, err
	}
	defer res.Body.Close()

	raw, err = io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, true, err
	}

	switch {
	case res.StatusCode >= 200 && res.StatusCode < 300:
		return raw, false, nil
	case res.StatusCode >= 500:
		return nil, true, fmt.Errorf("backend status %d", res.StatusCode)
	case res.StatusCode == http.StatusUnauthorized, res.StatusCode == http.StatusForbidden:
		return nil, false, domain.ErrInvalidCredentials
	default:
		return nil, false, fmt.Errorf("%w: backend status %d", domain.ErrInvalidInput, res.StatusCode)
	}
}
