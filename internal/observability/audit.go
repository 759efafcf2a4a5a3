package observability

import (
	"log/slog"
	"net/http"
)

func Audit(r *http.Request, event string, attrs ...any) {
	base := []any{
		"event", event,
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", r.Header.Get("X-Request-Id"),
	}
	base = append(base, attrs...)
	slog.InfoContext(r.Context(), "audit", base...)
}

// SecurityEvent logs rejections with a security dimension (CSRF mismatch,
// login lockout, zombie session reuse) at warn level so they are separable
// from ordinary validation noise.
func SecurityEvent(r *http.Request, event string, attrs ...any) {
	base := []any{
		"event", event,
		"security", true,
		"method", r.Method,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr,
		"request_id", r.Header.Get("X-Request-Id"),
	}
	base = append(base, attrs...)
	slog.WarnContext(r.Context(), "security", base...)
}
