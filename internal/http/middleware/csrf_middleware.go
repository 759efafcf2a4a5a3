package middleware

import (
	"net/http"

	"github.com/tradepost/tradepost/internal/http/response"
	"github.com/tradepost/tradepost/internal/observability"
	"github.com/tradepost/tradepost/internal/security"
)

// CSRFMiddleware enforces the double-submit check for state-changing
// methods. The authoritative token is the one stored with the server-side
// session; the cookie copy exists only so the frontend can read it into the
// header. Runs after SessionMiddleware. Rejections short-circuit before any
// handler work.
func CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		session, ok := SessionFromContext(r.Context())
		if !ok {
			response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
			return
		}
		presented := r.Header.Get(security.CSRFHeaderName)
		if presented == "" {
			rejectCSRF(w, r, "missing_header")
			return
		}
		if !security.TokensEqual(session.CSRFToken, presented) {
			rejectCSRF(w, r, "mismatch")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func rejectCSRF(w http.ResponseWriter, r *http.Request, reason string) {
	observability.RecordCSRFRejection(r.Context(), reason)
	observability.SecurityEvent(r, "csrf_rejected",
		"reason", reason,
		"method", r.Method,
		"path", r.URL.Path,
	)
	response.Error(w, r, http.StatusForbidden, "CSRF_REJECTED", "csrf token missing or invalid", nil)
}
