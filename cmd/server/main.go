package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/omega-realm/bossdrop/internal/auth"
	"github.com/omega-realm/bossdrop/internal/captcha"
	"github.com/omega-realm/bossdrop/internal/config"
	"github.com/omega-realm/bossdrop/internal/database"
	"github.com/omega-realm/bossdrop/internal/game"
	"github.com/omega-realm/bossdrop/internal/handlers"
	"github.com/omega-realm/bossdrop/internal/identity"
	"github.com/omega-realm/bossdrop/internal/logger"
	"github.com/omega-realm/bossdrop/internal/middleware"
	"github.com/omega-realm/bossdrop/internal/redis"
	"github.com/omega-realm/bossdrop/internal/scheduler"
	"github.com/omega-realm/bossdrop/internal/transactor"
)

func main() {
	// A missing .env is fine, the environment may already be set
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	log.Info("initializing database connection")
	db, err := database.NewConnection(ctx, &cfg.Database, log)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.InitSchema(ctx); err != nil {
		return err
	}
	store := database.NewStore(db)

	catalog, err := config.LoadCatalog(cfg.CatalogFile)
	if err != nil {
		return err
	}
	if catalog != nil {
		if err := store.SeedCatalog(ctx, *catalog); err != nil {
			return err
		}
	}

	log.Info("initializing redis connection")
	rdb, err := redis.NewClient(ctx, &cfg.Redis, log)
	if err != nil {
		return err
	}
	defer rdb.Close()

	chain, err := transactor.Dial(cfg.Transactor, log)
	if err != nil {
		return err
	}

	service := game.NewService(store, rdb, cfg.Game, log, game.WithScoreBoard(rdb))
	reconciler := game.NewReconciler(store, rdb, chain, cfg.Game, log)
	registry := identity.NewRegistry(store, log)
	issuer := auth.NewIssuer(cfg.Auth)

	var verifier handlers.CaptchaVerifier
	if cfg.Captcha.Secret != "" {
		verifier = captcha.NewVerifier(cfg.Captcha, nil)
	} else {
		log.Warn("CAPTCHA_SECRET not set, transfers are not captcha protected")
	}

	runner := scheduler.NewRunner(rdb, service, cfg.Scheduler, log)
	runnerDone := make(chan error, 1)
	go func() {
		runnerDone <- runner.Run(ctx)
	}()

	payloadHandler := handlers.NewPayloadHandler(registry, issuer, log)
	captchaHandler := handlers.NewCaptchaHandler(verifier, log)
	gameHandler := handlers.NewGameHandler(service, log)
	dropHandler := handlers.NewDropHandler(service, reconciler, verifier, log)
	playerHandler := handlers.NewPlayerHandler(service, log)
	leaderboardHandler := handlers.NewLeaderboardHandler(rdb, log)
	requireAuth := middleware.RequireAuth(issuer)

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status, code := "healthy", http.StatusOK
		if err := db.PingContext(r.Context()); err != nil {
			status, code = "database unavailable", http.StatusServiceUnavailable
		} else if err := rdb.Ping(r.Context()).Err(); err != nil {
			status, code = "redis unavailable", http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{
			"status": status,
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Sign-in routes
	mux.HandleFunc("/api/payload/get", payloadHandler.GetPayload)
	mux.HandleFunc("/api/payload/verify", payloadHandler.Verify)
	mux.HandleFunc("/api/captcha/verify", captchaHandler.Verify)

	// Game routes
	mux.HandleFunc("/api/game/start", requireAuth(gameHandler.Start))
	mux.HandleFunc("/api/game/pause", requireAuth(gameHandler.Pause))
	mux.HandleFunc("/api/game/unpause", requireAuth(gameHandler.Unpause))
	mux.HandleFunc("/api/game/end", requireAuth(gameHandler.End))
	mux.HandleFunc("/api/game/boss/kill", requireAuth(gameHandler.KillBoss))

	// Drop routes
	mux.HandleFunc("/api/drop/transfer", requireAuth(dropHandler.Transfer))
	mux.HandleFunc("/api/drop/get", requireAuth(dropHandler.Get))

	// Player routes
	mux.HandleFunc("/api/player/stats", requireAuth(playerHandler.Stats))
	mux.HandleFunc("/api/player/games/has-active", requireAuth(playerHandler.HasActive))

	// Leaderboard routes
	mux.HandleFunc("/api/leaderboard", leaderboardHandler.GetLeaderboard)
	mux.HandleFunc("/api/leaderboard/rank", requireAuth(leaderboardHandler.GetRank))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      corsMiddleware(cfg.AllowedOrigins, mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Game.TransferTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	case err := <-runnerDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("expiry scheduler: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// corsMiddleware adds CORS headers to all responses
func corsMiddleware(allowed []string, next http.Handler) http.Handler {
	wildcard := len(allowed) == 0 || slices.Contains(allowed, "*")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case wildcard:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(allowed, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
