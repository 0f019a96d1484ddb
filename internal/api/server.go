package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"blockfall/internal/highscore"
	"blockfall/internal/session"

	"github.com/go-chi/chi/v5"
)

// ServerConfig assembles a Server.
type ServerConfig struct {
	Sessions   *session.Manager
	HighScores *highscore.Service
	Events     *session.EventLog
	RateLimit  RateLimitConfig
	WebSocket  WSConfig
	Origins    OriginPolicy
}

// Server is the HTTP API server with WebSocket support.
type Server struct {
	sessions    *session.Manager
	events      *session.EventLog
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *IPRateLimiter
	httpServer  *http.Server
	stopMetrics chan struct{}
	stopOnce    sync.Once
}

// NewServer creates the API server and hooks it to the session manager.
//
// Background workers do NOT start until Start() is called, apart from the
// rate limiter's cleanup loop. Tests can use Router() with httptest instead.
func NewServer(cfg ServerConfig) *Server {
	if cfg.RateLimit.RequestsPerSecond <= 0 {
		cfg.RateLimit = DefaultRateLimitConfig
	}

	s := &Server{
		sessions:    cfg.Sessions,
		events:      cfg.Events,
		rateLimiter: NewIPRateLimiter(cfg.RateLimit),
		stopMetrics: make(chan struct{}),
	}

	wsCfg := cfg.WebSocket
	if len(wsCfg.Origins.Origins()) == 0 {
		wsCfg.Origins = cfg.Origins
	}
	s.wsHub = NewWebSocketHub(cfg.Sessions, wsCfg)

	s.router = NewRouter(RouterConfig{
		Sessions:    cfg.Sessions,
		HighScores:  cfg.HighScores,
		Events:      cfg.Events,
		Hub:         s.wsHub,
		RateLimiter: s.rateLimiter,
		Origins:     cfg.Origins,
	})

	s.setupWebSocketRoutes()
	cfg.Sessions.OnUpdate(s.handleUpdate)
	cfg.Sessions.OnClosed(s.wsHub.PublishClosed)

	return s
}

// setupWebSocketRoutes adds routes that need the hub instance.
func (s *Server) setupWebSocketRoutes() {
	s.router.Get("/ws/{id}", s.handleWS)
}

// handleUpdate fans a session update out to metrics and WebSocket clients.
func (s *Server) handleUpdate(u session.Update) {
	RecordUpdate(u)
	s.wsHub.PublishUpdate(u)
}

// Start runs the hub and serves HTTP until Shutdown. It returns
// http.ErrServerClosed after a clean shutdown.
func (s *Server) Start(addr string) error {
	go s.wsHub.Run()
	go s.metricsLoop()

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("🌐 API server starting on %s", addr)
	return s.httpServer.ListenAndServe()
}

// metricsLoop refreshes gauges that are not driven by requests
func (s *Server) metricsLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopMetrics:
			return
		case <-ticker.C:
			UpdateSessionCount(s.sessions.Count())
			if s.events != nil {
				UpdateEventLogStats(s.events.Stats())
			}
		}
	}
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *WebSocketHub {
	return s.wsHub
}

// Shutdown stops accepting requests, closes WebSockets and background workers.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		if shutdownErr := s.httpServer.Shutdown(ctx); shutdownErr != nil && !errors.Is(shutdownErr, http.ErrServerClosed) {
			err = shutdownErr
		}
	}
	s.Stop()
	return err
}

// Stop releases background workers. Safe to call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.wsHub.Stop()
		s.rateLimiter.Stop()
		close(s.stopMetrics)
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.wsHub.HandleWebSocket(w, r, chi.URLParam(r, "id"))
}
