package api

import (
	"net/http"

	"blockfall/internal/highscore"
	"blockfall/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SessionManager is the part of session.Manager the API uses.
type SessionManager interface {
	Create() (*session.Session, error)
	Get(id string) (*session.Session, bool)
	Remove(id string) bool
	Count() int
	IDs() []string
	Stats() session.Stats
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
//
// Example usage in tests:
//
//	cfg := api.RouterConfig{
//	    Sessions:   session.NewManager(session.ManagerOptions{}),
//	    HighScores: highscore.NewService(highscore.NewMemoryStore(), highscore.DefaultOptions()),
//	    RateLimitConfig: &api.RateLimitConfig{
//	        RequestsPerSecond: 1000, // High limit for tests
//	        Burst:             1000,
//	    },
//	}
//	router := api.NewRouter(cfg)
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Sessions is the live session set (required)
	Sessions SessionManager

	// HighScores is the high-score service. Score routes answer 503 when nil.
	HighScores *highscore.Service

	// Events is the session event log, reported by /api/stats when set.
	Events *session.EventLog

	// Hub receives session-closed notices and reports its client count.
	Hub *WebSocketHub

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is optional configuration for the rate limiter.
	// Only used if RateLimiter is nil. If both are nil, uses DefaultRateLimitConfig.
	RateLimitConfig *RateLimitConfig

	// Origins is the CORS policy. The zero value uses DefaultAllowedOrigins.
	Origins OriginPolicy

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool
}

// routerHandlers holds what the handler functions need.
type routerHandlers struct {
	sessions    SessionManager
	scores      *highscore.Service
	events      *session.EventLog
	hub         *WebSocketHub
	rateLimiter *IPRateLimiter
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// No listeners are opened; the only goroutine started is the cleanup loop of
// a rate limiter created here when none is supplied.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware - Order matters!
	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	// Rate limiting (BEFORE CORS to reject early and save CPU)
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	origins := cfg.Origins
	if len(origins.Origins()) == 0 {
		origins = NewOriginPolicy(nil)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins.Origins(),
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := &routerHandlers{
		sessions:    cfg.Sessions,
		scores:      cfg.HighScores,
		events:      cfg.Events,
		hub:         cfg.Hub,
		rateLimiter: rateLimiter,
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", h.handleListSessions)
			r.Post("/", h.handleCreateSession)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.handleGetSession)
				r.Delete("/", h.handleDeleteSession)
				r.Post("/commands", h.handleCommand)
				r.Post("/highscore", h.handleSubmitScore)
			})
		})

		r.Get("/highscores", h.handleGetHighScores)
		r.Get("/stats", h.handleGetStats)
		r.Get("/commands", h.handleListCommands)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	return r
}
