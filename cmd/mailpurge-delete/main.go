package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/evanmorrow/mailpurge/internal/config"
	"github.com/evanmorrow/mailpurge/internal/gmail"
	"github.com/evanmorrow/mailpurge/internal/purge"
	"github.com/evanmorrow/mailpurge/internal/rate"
	"github.com/evanmorrow/mailpurge/internal/retry"
	"github.com/evanmorrow/mailpurge/internal/runtime"
	"github.com/evanmorrow/mailpurge/internal/stats"
	"github.com/evanmorrow/mailpurge/internal/store"
)

type deleteConfig struct {
	cfgPath   string
	authDir   string
	user      string
	query     string
	ids       string
	cap       int
	permanent bool
	preview   bool
}

func main() {
	cfg := parseDeleteFlags()
	if err := run(cfg); err != nil {
		runtime.DefaultLogger().Error("mailpurge-delete failed", "error", err)
		os.Exit(1)
	}
}

func parseDeleteFlags() deleteConfig {
	cfgPath := flag.String("config", "", "path to mailpurge config file")
	authDir := flag.String("auth", os.ExpandEnv("$HOME/.gmailctl"), "gmailctl auth directory")
	user := flag.String("user", "local", "store key for undo history and stats")
	query := flag.String("query", "", "Gmail search query selecting messages to delete")
	ids := flag.String("ids", "", "comma separated message ids (alternative to -query)")
	capFlag := flag.Int("cap", 1000, "maximum messages a query deletion may touch")
	permanent := flag.Bool("permanent", false, "delete permanently instead of trashing")
	preview := flag.Bool("preview", false, "show what would be deleted; mutate nothing")
	flag.Parse()

	return deleteConfig{
		cfgPath:   *cfgPath,
		authDir:   *authDir,
		user:      *user,
		query:     *query,
		ids:       *ids,
		cap:       *capFlag,
		permanent: *permanent,
		preview:   *preview,
	}
}

func run(cfg deleteConfig) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.query == "" && cfg.ids == "" {
		return fmt.Errorf("one of -query or -ids is required")
	}

	fileCfg, err := config.Load(cfg.cfgPath)
	if err != nil {
		return err
	}

	logger := runtime.DefaultLogger()
	svc, bucket, err := buildService(ctx, fileCfg, cfg.authDir)
	if err != nil {
		return err
	}
	defer bucket.Stop()

	if cfg.preview {
		if cfg.query == "" {
			return fmt.Errorf("-preview requires -query")
		}
		pv, previewErr := svc.PreviewQuery(ctx, cfg.user, cfg.query, purge.DefaultSampleSize)
		if previewErr != nil {
			return fmt.Errorf("preview: %w", previewErr)
		}
		printPreview(pv)
		return nil
	}

	progress := func(p purge.Progress) {
		logger.Info("progress", "current", p.Current, "total", p.Total,
			"successful", p.Successful, "failed", p.Failed)
	}

	var out purge.DeleteOutcome
	if cfg.query != "" {
		out, err = svc.DeleteByQuery(ctx, cfg.user, cfg.query, cfg.cap, cfg.permanent, progress)
	} else {
		out, err = svc.DeleteByIDs(ctx, cfg.user, splitIDs(cfg.ids), cfg.permanent, progress)
	}
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	r := out.Result
	fmt.Printf("%s: %d/%d succeeded, %d skipped, %d failed\n",
		r.Action, r.Successful, r.Total, r.Skipped, r.Failed)
	for _, e := range r.Errors {
		fmt.Printf("  %s: %s\n", e.Ref, e.Error)
	}
	if out.UndoID != "" && !cfg.permanent {
		fmt.Printf("undo within 24h: mailpurge-undo -id %s\n", out.UndoID)
	}
	return nil
}

func buildService(ctx context.Context, fileCfg config.Config, authDir string) (*purge.Service, *rate.TokenBucket, error) {
	slogger := runtime.DefaultLogger()

	client, err := runtime.NewLocalClient(ctx, authDir)
	if err != nil {
		return nil, nil, err
	}

	rdb, err := store.NewClient(ctx, fileCfg.Redis)
	if err != nil {
		return nil, nil, err
	}

	bucket := rate.NewTokenBucket(fileCfg.RPS)
	policy := retry.NewPolicy(slogger)
	tracker := stats.NewTracker(store.NewRedisStatsStore(rdb), slogger)

	svc := purge.NewService(
		purge.StaticFactory(client),
		store.NewRedisUndoStore(rdb),
		tracker,
		bucket,
		policy,
		slogger,
	)
	svc.BatchSize = fileCfg.BatchSize
	return svc, bucket, nil
}

func printPreview(pv purge.Preview) {
	exact := "~"
	if pv.CountIsExact {
		exact = "="
	}
	fmt.Printf("query %q matches %s%d messages (%0.1f MB estimated)\n",
		pv.Query, exact, pv.TotalCount, float64(pv.EstimatedBytes)/(1024*1024))
	for _, item := range pv.Items {
		fmt.Printf("  %-40s %s\n", truncate(item.From, 40), truncate(item.Subject, 60))
	}
}

func splitIDs(input string) []gmail.MessageID {
	parts := strings.Split(input, ",")
	out := make([]gmail.MessageID, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, gmail.MessageID(part))
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
