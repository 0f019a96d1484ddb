package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"blockfall/internal/api"
	"blockfall/internal/config"
	"blockfall/internal/highscore"
	"blockfall/internal/session"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file from parent directory
	if err := godotenv.Load("../.env"); err != nil {
		// Try current directory as fallback
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	} else {
		log.Println("✅ Loaded environment from ../.env")
	}

	log.Println("🧱 ================================")
	log.Println("🧱  BLOCKFALL - GO SERVER")
	log.Println("🧱 ================================")

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}
	gameCfg := appConfig.Game
	serverCfg := appConfig.Server

	log.Printf("🎮 Board %dx%d, gravity %v, max %d sessions", gameCfg.Width, gameCfg.Height, gameCfg.Gravity, serverCfg.MaxSessions)
	if gameCfg.Seed != 0 {
		log.Printf("🎲 Fixed seed: %d", gameCfg.Seed)
	}

	scores := highscore.NewService(highscore.NewMemoryStore(), highscore.Options{
		Capacity: appConfig.HighScore.Capacity,
		MinScore: appConfig.HighScore.MinScore,
	})
	log.Printf("🏆 High scores: top %d, minimum %d", scores.Capacity(), scores.MinScore())

	events := session.NewEventLog(session.EventLogOptions{
		BufferSize:          appConfig.EventLog.BufferSize,
		MaxEventsPerSec:     appConfig.EventLog.MaxEventsPerSec,
		MaxEventsPerSession: appConfig.EventLog.MaxEventsPerSession,
	})
	if err := events.Start(appConfig.EventLog.Path); err != nil {
		log.Printf("⚠️ Event log file disabled: %v", err)
		events.StartWriter(nil)
	} else if appConfig.EventLog.Path != "" {
		log.Printf("📝 Event log: %s", appConfig.EventLog.Path)
	}

	obs := appConfig.Observability
	if err := api.StartDebugServer(api.ObservabilityConfig{
		Enabled:       obs.Enabled,
		ListenAddr:    obs.ListenAddr,
		BasicAuthUser: obs.BasicAuthUser,
		BasicAuthPass: obs.BasicAuthPass,
	}); err != nil {
		log.Printf("⚠️ Debug server disabled: %v", err)
	}

	sessions := session.NewManager(session.ManagerOptions{
		Width:       gameCfg.Width,
		Height:      gameCfg.Height,
		Seed:        gameCfg.Seed,
		MaxSessions: serverCfg.MaxSessions,
		Gravity:     gameCfg.Gravity,
		IdleTTL:     serverCfg.SessionIdleTTL,
		GameOverTTL: serverCfg.SessionGameOverTTL,
		HighScores:  scores,
		Events:      events,
	})

	rl := appConfig.RateLimit
	origins := api.NewOriginPolicy(serverCfg.AllowedOrigins)
	server := api.NewServer(api.ServerConfig{
		Sessions:   sessions,
		HighScores: scores,
		Events:     events,
		RateLimit: api.RateLimitConfig{
			RequestsPerSecond: rl.RequestsPerSecond,
			Burst:             rl.Burst,
		},
		WebSocket: api.WSConfig{
			MaxPerIP:          rl.MaxWSPerIP,
			MaxTotal:          rl.MaxWSTotal,
			MessagesPerSecond: rl.WSMessagesPerSec,
			Origins:           origins,
		},
		Origins: origins,
	})

	go func() {
		addr := serverCfg.Addr()
		log.Printf("🌐 API server on http://localhost%s", addr)
		log.Printf("🔌 WebSocket: ws://localhost%s/ws/{sessionId}", addr)

		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Println("✅ Server ready! Press Ctrl+C to stop.")
	<-quit

	log.Println("🛑 Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️ HTTP shutdown: %v", err)
	}
	sessions.Close()
	events.Stop()
	log.Println("👋 Goodbye!")
}
