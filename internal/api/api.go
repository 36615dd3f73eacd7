package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/vindennt/outfred-gateway/internal/auth"
	"github.com/vindennt/outfred-gateway/internal/metrics"
	"github.com/vindennt/outfred-gateway/internal/nav"
	"github.com/vindennt/outfred-gateway/internal/notify"
)

// Deps are the collaborators the routes are wired to.
type Deps struct {
	Auth           *auth.Handlers
	Authenticator  *auth.Authenticator
	Email          http.Handler
	Header         *nav.Builder
	Languages      *nav.Languages
	Settings       *nav.SiteSettings
	Notifications  *notify.Service
	Push           http.Handler
	AllowedOrigins []string
	Logger         *zap.Logger
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	RegisterRoutes(r, d)
	return r
}

func RegisterRoutes(r chi.Router, d Deps) {
	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(d.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	// Health Check
	r.Get("/health/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message": "pong"}`))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	h := &handlers{
		scopes:        d.Auth,
		header:        d.Header,
		languages:     d.Languages,
		settings:      d.Settings,
		notifications: d.Notifications,
		logger:        d.Logger,
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", d.Auth.Login)
			r.Post("/register", d.Auth.Register)
			r.Post("/logout", d.Auth.Logout)
			r.Post("/verify", d.Auth.Verify)
			r.Get("/session", d.Auth.Session)
		})

		r.Group(func(r chi.Router) {
			r.Use(d.Authenticator.Optional)
			r.Get("/header", h.Header)
			r.Post("/language/toggle", h.ToggleLanguage)
		})

		r.Group(func(r chi.Router) {
			r.Use(d.Authenticator.Middleware)
			r.Method(http.MethodPost, "/email/send", d.Email)

			r.Get("/notifications", h.ListNotifications)
			r.Post("/notifications/read-all", h.MarkAllRead)
			r.Post("/notifications/{id}/read", h.MarkRead)

			r.With(auth.AdminOnly).Put("/admin/site-settings", h.UpdateSiteSettings)
		})
	})

	r.Method(http.MethodGet, "/ws/notifications", d.Push)
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
