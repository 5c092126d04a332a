// Package main is the entry point for the Seif server. It loads
// configuration, establishes database connections, runs migrations, wires
// together all plugins and starts the HTTP server with its background
// jobs.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/keyxmakerx/seif/internal/app"
	"github.com/keyxmakerx/seif/internal/config"
	"github.com/keyxmakerx/seif/internal/database"
	"github.com/keyxmakerx/seif/internal/session"
)

func main() {
	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	// Configure structured logging based on environment.
	setupLogging(cfg)

	slog.Info("starting Seif",
		slog.String("env", cfg.Env),
		slog.Int("port", cfg.Port),
	)

	// Cancelled on SIGINT/SIGTERM; stops the background jobs and the server.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Connect to MariaDB ---
	db, err := database.NewMariaDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to MariaDB", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to MariaDB")

	if err := database.RunMigrations(db, cfg.MigrationsPath); err != nil {
		slog.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	// --- Session Store ---
	var opts []app.Option
	var store session.Store
	switch cfg.Session.Store {
	case "memory":
		mem := session.NewMemoryStore(nil)
		go sweepSessions(ctx, mem, cfg.Session.TTL)
		store = mem
		slog.Warn("using in-memory sessions; sign-ins are lost on restart")
	default:
		rdb, err := database.NewRedis(ctx, cfg.Redis)
		if err != nil {
			slog.Error("failed to connect to Redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer rdb.Close()
		slog.Info("connected to Redis")

		store = session.NewRedisStore(rdb)
		opts = append(opts, app.WithHealthCheck("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}))
	}

	// --- Create Application ---
	application, err := app.New(cfg, db, store, opts...)
	if err != nil {
		slog.Error("failed to build application", slog.Any("error", err))
		os.Exit(1)
	}
	application.RegisterRoutes()

	// --- Background Jobs ---
	go application.Sweeper.Run(ctx)
	if application.Limiter != nil {
		go application.Limiter.RunCleanup(ctx)
	}

	// --- Graceful Shutdown ---
	// Drain in-flight requests once a signal arrives so container restarts
	// are seamless.
	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")

		// Give in-flight requests 10 seconds to complete.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := application.Echo.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced shutdown", slog.Any("error", err))
		}
	}()

	// --- Start Server ---
	if err := application.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// sweepSessions drops expired in-memory sessions once per TTL.
func sweepSessions(ctx context.Context, store *session.MemoryStore, ttl time.Duration) {
	if ttl <= 0 {
		ttl = 20 * time.Minute
	}
	ticker := time.NewTicker(ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := store.Sweep(); n > 0 {
				slog.Debug("swept expired sessions", slog.Int("count", n))
			}
		}
	}
}

// setupLogging configures the global slog logger. Development uses text
// format for readability. Production uses JSON for structured log
// aggregation.
func setupLogging(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}

	var handler slog.Handler
	if cfg.IsDevelopment() {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
