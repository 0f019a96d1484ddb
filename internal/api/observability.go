package api

import (
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"time"

	"blockfall/internal/input"
	"blockfall/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics with bounded cardinality (no per-session labels)
var (
	// Game metrics
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "blockfall_tick_duration_seconds",
		Help:    "Time spent inside the engine for one gravity tick",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005},
	})

	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "blockfall_sessions_active",
		Help: "Current number of live sessions",
	})

	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blockfall_commands_total",
		Help: "Commands applied to sessions",
	}, []string{"command", "accepted"}) // Bounded: command names, "true"/"false"

	locksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blockfall_locks_total",
		Help: "Pieces locked into boards",
	})

	linesClearedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blockfall_lines_cleared_total",
		Help: "Rows cleared across all sessions",
	})

	gameOversTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blockfall_game_overs_total",
		Help: "Games that reached the terminal state",
	})

	scoreSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blockfall_highscore_submissions_total",
		Help: "High-score submissions by result",
	}, []string{"result"}) // Bounded: "ok", "rejected", "error"

	// Event log metrics
	eventLogTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "blockfall_event_log_total",
		Help: "Events accepted by the event log",
	})

	eventLogDropped = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "blockfall_event_log_dropped",
		Help: "Events dropped due to rate limiting or buffer full",
	})

	// DoS detection metrics - use ONLY bounded label values
	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Connections rejected by rate limiter or origin check",
	}, []string{"reason"}) // Bounded: "rate_limit", "origin", "ws_ip_limit", "ws_total_limit", "ws_msg_limit"

	// HTTP metrics with bounded labels
	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"}) // endpoint is the route pattern, not the full URL

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	// WebSocket metrics
	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "websocket_messages_total",
		Help: "WebSocket messages by direction",
	}, []string{"direction"}) // Bounded: "in", "out"
)

// ObservabilityConfig configures the debug server
type ObservabilityConfig struct {
	Enabled       bool
	ListenAddr    string // must resolve to a loopback address unless ALLOW_DEBUG_EXTERNAL=true
	BasicAuthUser string // Optional basic auth
	BasicAuthPass string
}

// DefaultObservabilityConfig returns safe defaults
func DefaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060",
	}
}

// DebugHandler serves pprof, /metrics and /health.
func DebugHandler(cfg ObservabilityConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if cfg.BasicAuthUser != "" {
		return basicAuthMiddleware(cfg.BasicAuthUser, cfg.BasicAuthPass, mux)
	}
	return mux
}

// StartDebugServer starts the internal observability server.
// It binds to loopback only unless ALLOW_DEBUG_EXTERNAL=true.
func StartDebugServer(cfg ObservabilityConfig) error {
	if !cfg.Enabled {
		log.Println("📊 Debug server disabled")
		return nil
	}

	cfg.ListenAddr = debugListenAddr(cfg.ListenAddr)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return err
	}
	handler := DebugHandler(cfg)

	go func() {
		log.Printf("📊 Debug server starting on %s", cfg.ListenAddr)
		log.Printf("   - pprof:   http://%s/debug/pprof/", cfg.ListenAddr)
		log.Printf("   - metrics: http://%s/metrics", cfg.ListenAddr)

		if err := http.Serve(ln, handler); err != nil {
			log.Printf("⚠️ Debug server error: %v", err)
		}
	}()

	return nil
}

// debugListenAddr falls back to the default address when addr is empty or,
// unless ALLOW_DEBUG_EXTERNAL=true, not a loopback address.
func debugListenAddr(addr string) string {
	fallback := DefaultObservabilityConfig().ListenAddr
	if addr == "" {
		return fallback
	}
	if !isLoopback(addr) && os.Getenv("ALLOW_DEBUG_EXTERNAL") != "true" {
		log.Println("⚠️ Debug server forced to localhost for security")
		return fallback
	}
	return addr
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// basicAuthMiddleware adds basic authentication to the handler
func basicAuthMiddleware(user, pass string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="debug"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// metricsMiddleware records latency and totals per route pattern.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			endpoint = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RecordRequest(r.Method, endpoint, status, time.Since(start))
	})
}

// RecordUpdate records game metrics for one session update.
func RecordUpdate(u session.Update) {
	out := u.Outcome
	if out.Command == input.CmdTick {
		tickDuration.Observe(u.Elapsed.Seconds())
	} else {
		accepted := "false"
		if out.Accepted {
			accepted = "true"
		}
		commandsTotal.WithLabelValues(out.Command.String(), accepted).Inc()
	}

	if out.Drop.Locked {
		locksTotal.Inc()
	}
	if out.Drop.LinesCleared > 0 {
		linesClearedTotal.Add(float64(out.Drop.LinesCleared))
	}
	if out.Drop.GameOver {
		gameOversTotal.Inc()
	}
}

// UpdateSessionCount updates the live session gauge
func UpdateSessionCount(count int) {
	sessionsActive.Set(float64(count))
}

// RecordScoreSubmission counts a high-score submission.
// result must be one of: "ok", "rejected", "error"
func RecordScoreSubmission(result string) {
	scoreSubmissions.WithLabelValues(result).Inc()
}

// UpdateEventLogStats mirrors event log counters into gauges.
func UpdateEventLogStats(stats session.EventLogStats) {
	eventLogTotal.Set(float64(stats.Total))
	eventLogDropped.Set(float64(stats.Dropped))
}

// RecordConnectionRejected increments the rejection counter
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, endpoint string, status int, duration time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	requestTotal.WithLabelValues(method, endpoint, http.StatusText(status)).Inc()
}

// UpdateWSConnections updates WebSocket connection count
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

// IncrementWSMessages counts a WebSocket message; direction is "in" or "out".
func IncrementWSMessages(direction string) {
	wsMessagesTotal.WithLabelValues(direction).Inc()
}
