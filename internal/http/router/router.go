package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tradepost/tradepost/internal/health"
	"github.com/tradepost/tradepost/internal/http/handler"
	"github.com/tradepost/tradepost/internal/http/middleware"
	"github.com/tradepost/tradepost/internal/http/response"
	"github.com/tradepost/tradepost/internal/service"
)

type Dependencies struct {
	AuthHandler    *handler.AuthHandler
	PostHandler    *handler.PostHandler
	AdminHandler   *handler.AdminHandler
	Sessions       *service.SessionService
	MaxBodyBytes   int64
	PublicDir      string
	UploadDir      string
	Readiness      *health.ProbeRunner
	EnableOTelHTTP bool
}

func NewRouter(dep Dependencies) http.Handler {
	if dep.MaxBodyBytes <= 0 {
		dep.MaxBodyBytes = 100 << 20
	}

	r := chi.NewRouter()
	// RealIP trusts X-Forwarded-For, so the server must sit behind a proxy
	// that sets it; the login throttle keys on the resolved client address.
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.BodyLimit(dep.MaxBodyBytes))

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})

	sessionAuth := middleware.SessionMiddleware(dep.Sessions)

	r.Post("/signup", dep.AuthHandler.Signup)
	r.Post("/login", dep.AuthHandler.Login)
	// Logout stays outside session auth: a dead cookie still logs out with
	// a 200 instead of bouncing with a 401.
	r.Post("/logout", dep.AuthHandler.Logout)
	r.With(sessionAuth).Get("/check-session", dep.AuthHandler.CheckSession)

	r.Route("/posts", func(r chi.Router) {
		r.Get("/", dep.PostHandler.List)
		r.Group(func(r chi.Router) {
			r.Use(sessionAuth)
			r.Get("/mine", dep.PostHandler.ListMine)
			r.Group(func(r chi.Router) {
				r.Use(middleware.CSRFMiddleware)
				r.Post("/", dep.PostHandler.Create)
				r.Patch("/{id}", dep.PostHandler.Update)
				r.Delete("/{id}", dep.PostHandler.Delete)
			})
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(sessionAuth)
		r.Use(middleware.RequireRole("admin"))
		r.Get("/users", dep.AdminHandler.ListUsers)
		r.Get("/posts", dep.AdminHandler.ListPosts)
		r.Group(func(r chi.Router) {
			r.Use(middleware.CSRFMiddleware)
			r.Patch("/posts/{id}/status", dep.AdminHandler.SetPostStatus)
			r.Delete("/posts/{id}", dep.AdminHandler.DeletePost)
			r.Post("/users/{id}/sessions/revoke", dep.AdminHandler.RevokeUserSessions)
		})
	})

	if dep.UploadDir != "" {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(dep.UploadDir))))
	}
	if dep.PublicDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(dep.PublicDir)))
	}

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
