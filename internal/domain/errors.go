package domain

import "errors"

var (
	// ErrNotFound is returned when the requested resource does not exist.
	// Keeping this sentinel in domain allows adapters to map it consistently to 404/NOT_FOUND.
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidCredentials hides whether the login identifier or password failed.
	// The reason is to prevent account-enumeration side channels.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSessionExpired signals that the inactivity ceiling was exceeded.
	ErrSessionExpired = errors.New("session expired")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidInput   = errors.New("invalid input")
	// ErrBackendUnavailable classifies retryable backend failures (network, timeout, 5xx)
	// once the bounded retry budget is spent. Non-retryable 4xx collapse to
	// ErrInvalidCredentials instead.
	ErrBackendUnavailable = errors.New("clinic backend unavailable")
	// ErrValidationTimeout is the watchdog outcome; the guard converts it to an
	// unauthenticated decision so callers always receive a definite state.
	ErrValidationTimeout = errors.New("session validation timed out")
	ErrNotImplemented    = errors.New("not implemented")
)
