package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/evanmorrow/mailpurge/internal/config"
	"github.com/evanmorrow/mailpurge/internal/purge"
	"github.com/evanmorrow/mailpurge/internal/rate"
	"github.com/evanmorrow/mailpurge/internal/retry"
	"github.com/evanmorrow/mailpurge/internal/runtime"
	"github.com/evanmorrow/mailpurge/internal/stats"
	"github.com/evanmorrow/mailpurge/internal/store"
)

type statusConfig struct {
	cfgPath string
	authDir string
	user    string
	query   string
	exact   bool
}

func main() {
	cfg := parseStatusFlags()
	if err := run(cfg); err != nil {
		runtime.DefaultLogger().Error("mailpurge-status failed", "error", err)
		os.Exit(1)
	}
}

func parseStatusFlags() statusConfig {
	cfgPath := flag.String("config", "", "path to mailpurge config file")
	authDir := flag.String("auth", os.ExpandEnv("$HOME/.gmailctl"), "gmailctl auth directory")
	user := flag.String("user", "local", "store key for stats")
	query := flag.String("query", "", "optionally count messages matching this query")
	exact := flag.Bool("exact", false, "page through results for an exact count")
	flag.Parse()

	return statusConfig{cfgPath: *cfgPath, authDir: *authDir, user: *user, query: *query, exact: *exact}
}

func run(cfg statusConfig) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fileCfg, err := config.Load(cfg.cfgPath)
	if err != nil {
		return err
	}

	logger := runtime.DefaultLogger()
	client, err := runtime.NewLocalClient(ctx, cfg.authDir)
	if err != nil {
		return err
	}
	rdb, err := store.NewClient(ctx, fileCfg.Redis)
	if err != nil {
		return err
	}
	bucket := rate.NewTokenBucket(fileCfg.RPS)
	defer bucket.Stop()

	tracker := stats.NewTracker(store.NewRedisStatsStore(rdb), logger)
	svc := purge.NewService(
		purge.StaticFactory(client),
		store.NewRedisUndoStore(rdb),
		tracker,
		bucket,
		retry.NewPolicy(logger),
		logger,
	)

	profile, err := svc.Connectivity(ctx, cfg.user)
	if err != nil {
		return fmt.Errorf("gmail not reachable: %w", err)
	}
	fmt.Printf("connected as %s (%d messages, %d threads)\n",
		profile.Address, profile.TotalMessages, profile.TotalThreads)

	report, err := tracker.Summary(ctx, cfg.user)
	if err != nil {
		return err
	}
	fmt.Printf("deleted %d messages across %d sessions (avg %.1f/session, %.1f MB reclaimed)\n",
		report.TotalDeleted, report.Sessions, report.AvgPerSession,
		float64(report.ReclaimedBytes)/(1024*1024))

	if cfg.query != "" {
		count, countErr := svc.Count(ctx, cfg.user, cfg.query, cfg.exact)
		if countErr != nil {
			return countErr
		}
		kind := "estimated"
		if !count.Estimate {
			kind = "exact"
		}
		fmt.Printf("query %q matches %d messages (%s)\n", cfg.query, count.N, kind)
	}
	return nil
}
