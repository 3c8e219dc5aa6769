package http

import (
	"context"
	"net/http"

	"github.com/clinicdesk/session-gateway/internal/application"
)

// guardMiddleware asks the auth guard for a verdict on every protected request.
// Denials map to the transport: browser navigations get a 302 to the login
// page, API calls get a JSON 401. Granted requests also count as activity.
func (h *Handler) guardMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision := h.service.Guard().Check(r.Context(), r.URL.Path)
		if decision.Bypass {
			next.ServeHTTP(w, r)
			return
		}

		switch decision.State {
		case application.StateAuthenticated:
			h.tracker.Observe(r.Context())
			ctx := context.WithValue(r.Context(), ctxKeyUser, decision.User)
			next.ServeHTTP(w, r.WithContext(ctx))
		default:
			httpLogger().InfoContext(r.Context(), "access denied",
				"operation", "guard_check",
				"outcome", "denied",
				"path", r.URL.Path,
				"state", decision.State.String(),
				"reason", decision.Reason,
				"request_id", requestIDFromContext(r.Context()),
			)
			if wantsHTML(r) {
				http.Redirect(w, r, decision.RedirectTo, http.StatusFound)
				return
			}
			writeError(r.Context(), w, http.StatusUnauthorized, "UNAUTHORIZED", decision.Reason)
		}
	})
}
