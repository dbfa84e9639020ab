package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/evanmorrow/mailpurge/internal/config"
	"github.com/evanmorrow/mailpurge/internal/purge"
	"github.com/evanmorrow/mailpurge/internal/rate"
	"github.com/evanmorrow/mailpurge/internal/retry"
	"github.com/evanmorrow/mailpurge/internal/runtime"
	"github.com/evanmorrow/mailpurge/internal/store"
	"github.com/evanmorrow/mailpurge/internal/undo"
)

type undoConfig struct {
	cfgPath string
	authDir string
	user    string
	id      string
	list    bool
}

func main() {
	cfg := parseUndoFlags()
	if err := run(cfg); err != nil {
		runtime.DefaultLogger().Error("mailpurge-undo failed", "error", err)
		os.Exit(1)
	}
}

func parseUndoFlags() undoConfig {
	cfgPath := flag.String("config", "", "path to mailpurge config file")
	authDir := flag.String("auth", os.ExpandEnv("$HOME/.gmailctl"), "gmailctl auth directory")
	user := flag.String("user", "local", "store key for undo history")
	id := flag.String("id", "", "undo point to execute")
	list := flag.Bool("list", false, "list available undo points")
	flag.Parse()

	return undoConfig{cfgPath: *cfgPath, authDir: *authDir, user: *user, id: *id, list: *list}
}

func run(cfg undoConfig) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fileCfg, err := config.Load(cfg.cfgPath)
	if err != nil {
		return err
	}

	logger := runtime.DefaultLogger()
	rdb, err := store.NewClient(ctx, fileCfg.Redis)
	if err != nil {
		return err
	}

	if cfg.list {
		ledger := undo.NewLedger(store.NewRedisUndoStore(rdb), nil, nil, logger)
		points, histErr := ledger.History(ctx, cfg.user)
		if histErr != nil {
			return histErr
		}
		if len(points) == 0 {
			fmt.Println("no undo points available")
			return nil
		}
		for _, p := range points {
			state := "available"
			if !p.CanUndo {
				state = "used"
			}
			fmt.Printf("%s  %-16s %-9s expires %s\n",
				p.ID, p.Kind, state, p.ExpiresAt.Format(time.RFC3339))
		}
		return nil
	}

	if cfg.id == "" {
		return fmt.Errorf("-id or -list is required")
	}

	client, err := runtime.NewLocalClient(ctx, cfg.authDir)
	if err != nil {
		return err
	}
	bucket := rate.NewTokenBucket(fileCfg.RPS)
	defer bucket.Stop()

	svc := purge.NewService(
		purge.StaticFactory(client),
		store.NewRedisUndoStore(rdb),
		nil,
		bucket,
		retry.NewPolicy(logger),
		logger,
	)
	svc.BatchSize = fileCfg.BatchSize

	result, err := svc.Undo(ctx, cfg.user, cfg.id)
	switch {
	case errors.Is(err, undo.ErrNotFound):
		return fmt.Errorf("no undo point %s", cfg.id)
	case errors.Is(err, undo.ErrExpired):
		return fmt.Errorf("undo point %s has expired (24 hour limit)", cfg.id)
	case errors.Is(err, undo.ErrAlreadyUsed):
		return fmt.Errorf("undo point %s was already used", cfg.id)
	case err != nil:
		return fmt.Errorf("undo: %w", err)
	}

	fmt.Printf("restored %d/%d messages (%d failed)\n",
		result.Successful, result.Total, result.Failed)
	return nil
}
