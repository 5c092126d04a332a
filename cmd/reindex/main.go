// Command reindex rebuilds the plaintext search tokens of every secret
// from its decrypted details. Run it after the tokenizer changes; rows
// whose tokens are already current are left alone.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keyxmakerx/seif/internal/config"
	"github.com/keyxmakerx/seif/internal/database"
	"github.com/keyxmakerx/seif/internal/envelope"
	"github.com/keyxmakerx/seif/internal/plugins/secrets"
)

func main() {
	timeout := flag.Duration("timeout", 30*time.Minute, "abort the run after this long")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	db, err := database.NewMariaDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to MariaDB", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	cipher, err := envelope.New(cfg.Security.MasterKeyBytes())
	if err != nil {
		slog.Error("invalid master key", slog.Any("error", err))
		os.Exit(1)
	}

	start := time.Now()
	res, err := secrets.Reindex(ctx, secrets.NewTokenStore(db), cipher)
	attrs := []any{
		slog.Int("scanned", res.Scanned),
		slog.Int("updated", res.Updated),
		slog.Int("failed", res.Failed),
		slog.Duration("elapsed", time.Since(start)),
	}
	if err != nil {
		slog.Error("reindex aborted", append(attrs, slog.Any("error", err))...)
		os.Exit(1)
	}
	slog.Info("reindex complete", attrs...)
}
