package api

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tokbox/tokbox/internal/api/handler"
	mw "github.com/tokbox/tokbox/internal/api/middleware"
	"github.com/tokbox/tokbox/pkg/crypto"
)

// Handlers groups everything the router mounts. Objects is nil unless the
// filesystem storage backend is active.
type Handlers struct {
	Analyze *handler.AnalyzeHandler
	Upload  *handler.UploadHandler
	Account *handler.AccountHandler
	Moods   *handler.MoodHandler
	Health  *handler.HealthHandler
	Events  *handler.EventHandler
	Objects *handler.ObjectHandler
}

// RouterConfig holds the cross-cutting settings of the router.
type RouterConfig struct {
	OpsAPIKey      string
	AllowedOrigin  string
	RequestTimeout time.Duration
	Sessions       mw.SessionValidator
	Profiles       mw.PlanReader
	IPHasher       *crypto.IPHasher
}

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(h Handlers, cfg RouterConfig, logger *slog.Logger) *chi.Mux {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 120 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.CleanPath)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger(logger))
	r.Use(mw.Recovery(logger))
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(mw.CORS(cfg.AllowedOrigin))

	r.Get("/health", h.Health.Live)
	r.Get("/ready", h.Health.Ready)

	r.Route("/api", func(r chi.Router) {
		r.Get("/moods", h.Moods.List)
		r.Get("/moods/{moodID}", h.Moods.Get)
		r.Post("/upload-url", h.Upload.CreateURL)

		r.Group(func(r chi.Router) {
			r.Use(mw.Identity(cfg.Sessions, cfg.Profiles, cfg.IPHasher, logger))

			r.Post("/analyze", h.Analyze.Analyze)
			r.Get("/check-usage", h.Account.CheckUsage)
			r.Get("/history", h.Account.History)
		})

		r.Route("/v1", func(r chi.Router) {
			r.Use(mw.APIKeyAuth(cfg.OpsAPIKey))

			r.Get("/stats", h.Health.Stats)
			r.Get("/analyses", h.Health.Recent)
			r.Get("/events", h.Events.List)
			r.Get("/events/stats", h.Events.Stats)
			r.Get("/events/stream", h.Events.Stream)
		})
	})

	if h.Objects != nil {
		r.Put("/uploads/*", h.Objects.Put)
		r.Get("/uploads/*", h.Objects.Get)
	}

	return r
}
