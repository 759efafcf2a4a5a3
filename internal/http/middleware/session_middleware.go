package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/tradepost/tradepost/internal/domain"
	"github.com/tradepost/tradepost/internal/http/response"
	"github.com/tradepost/tradepost/internal/security"
	"github.com/tradepost/tradepost/internal/service"
)

type contextKey string

const (
	SessionContextKey contextKey = "session"
)

// SessionMiddleware resolves the session cookie against the server-side
// store and refreshes its idle window. Requests with no cookie, an unknown
// id, or an expired session are refused with 401; the expired case also
// clears the client's stale cookies.
func SessionMiddleware(sessions *service.SessionService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := security.GetCookie(r, security.SessionCookieName)
			if sessionID == "" {
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
				return
			}
			session, err := sessions.Validate(r.Context(), sessionID)
			switch {
			case errors.Is(err, service.ErrSessionExpired):
				security.ClearSessionCookies(w)
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "session expired", nil)
				return
			case errors.Is(err, service.ErrSessionNotFound):
				security.ClearSessionCookies(w)
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
				return
			case err != nil:
				response.Internal(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), SessionContextKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func SessionFromContext(ctx context.Context) (*domain.Session, bool) {
	s, ok := ctx.Value(SessionContextKey).(*domain.Session)
	return s, ok
}

// RequireRole refuses authenticated requests whose session lacks the role.
// Runs after SessionMiddleware.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := SessionFromContext(r.Context())
			if !ok {
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
				return
			}
			if !session.HasRole(role) {
				response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "insufficient role", map[string]string{"required": role})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP is the throttle key for the request. RealIP runs earlier in the
// chain, so RemoteAddr already reflects trusted forwarding headers.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
