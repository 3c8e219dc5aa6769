package http

import (
	"net/http"

	"github.com/clinicdesk/session-gateway/internal/application"
)

// Handler is the HTTP adapter entrypoint for gateway use-cases.
// Keeping only application dependencies here preserves clean adapter boundaries.
type Handler struct {
	service *application.Service
	tracker *application.ActivityTracker
	ready   func() error
}

// NewHandler constructs an HTTP handler bound to the application layer.
// ready reports readiness of downstream dependencies, nil means always ready.
func NewHandler(service *application.Service, tracker *application.ActivityTracker, ready func() error) *Handler {
	return &Handler{service: service, tracker: tracker, ready: ready}
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeMessage(w, http.StatusOK, "ok")
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error())
			return
		}
	}
	writeMessage(w, http.StatusOK, "ready")
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req application.LoginRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "login", err)
		return
	}
	if req.IPAddress == "" {
		req.IPAddress = readIP(r)
	}
	if req.UserAgent == "" {
		req.UserAgent = r.UserAgent()
	}

	res, err := h.service.Login(r.Context(), req)
	if err != nil {
		writeMappedError(r.Context(), w, "login", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

// loginPage serves the login entry point for browser navigations. The route is
// the guard's bypass target, so it must answer even with no session at all.
func (h *Handler) loginPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("<!doctype html><title>Sign in</title><h1>Clinic sign in</h1>"))
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context()); err != nil {
		writeMappedError(r.Context(), w, "logout", err)
		return
	}
	writeMessage(w, http.StatusOK, "logged out")
}

func (h *Handler) sessionStatus(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, h.service.SessionStatus(r.Context()))
}

// activityPing lets the front end report user interaction explicitly. Writes
// are throttled by the tracker, so hammering this endpoint is harmless.
func (h *Handler) activityPing(w http.ResponseWriter, r *http.Request) {
	h.tracker.Observe(r.Context())
	writeMessage(w, http.StatusOK, "recorded")
}

func (h *Handler) loginHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(r.Context(), w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}
	q := application.LoginHistoryQuery{
		Page:   parseIntDefault(r.URL.Query().Get("page"), 1),
		Limit:  parseIntDefault(r.URL.Query().Get("limit"), 20),
		Days:   parseIntDefault(r.URL.Query().Get("days"), 0),
		Status: r.URL.Query().Get("status"),
	}
	items, err := h.service.ListLoginHistory(r.Context(), user, q)
	if err != nil {
		writeMappedError(r.Context(), w, "login_history", err)
		return
	}
	writeSuccess(w, http.StatusOK, items)
}

// jwks publishes the token verification keys for downstream consumers.
func (h *Handler) jwks(keys func() ([]map[string]any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		set, err := keys()
		if err != nil {
			writeMappedError(r.Context(), w, "jwks", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"keys": set})
	}
}
