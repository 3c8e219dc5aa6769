package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RouterOptions carries optional extras the router can expose.
type RouterOptions struct {
	// JWKs publishes token verification keys when set.
	JWKs func() ([]map[string]any, error)
}

// NewRouter registers gateway HTTP routes and the middleware stack.
// Centralizing routes here ensures consistent guard and error behavior
// across endpoints.
func NewRouter(handler *Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)
	if opts.JWKs != nil {
		r.Get("/.well-known/jwks.json", handler.jwks(opts.JWKs))
	}

	r.Post("/auth/login", handler.login)

	r.Group(func(r chi.Router) {
		r.Use(handler.guardMiddleware)
		// The guard treats the login entry point as a bypass route, so a dead
		// session can always reach it.
		r.Get("/login", handler.loginPage)
		r.Get("/api/session", handler.sessionStatus)
		r.Post("/api/activity", handler.activityPing)
		r.Get("/api/login-history", handler.loginHistory)
		r.Post("/api/logout", handler.logout)
	})

	return r
}
