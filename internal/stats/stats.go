// Package stats accumulates per-user deletion accounting. It sits off the
// mutation critical path: a failed stats write never fails the operation.
package stats

import (
	"context"
	"fmt"
	"log/slog"
)

// Totals are the monotone per-user counters.
type Totals struct {
	TotalDeleted   int64 `json:"total_deleted"`
	ReclaimedBytes int64 `json:"reclaimed_bytes"`
	Sessions       int64 `json:"sessions"`
}

// Report adds the derived running average.
type Report struct {
	Totals
	AvgPerSession float64 `json:"avg_per_session"`
}

// Store persists totals with atomic per-user accumulation.
type Store interface {
	Add(ctx context.Context, user string, deleted, reclaimedBytes int64) error
	Get(ctx context.Context, user string) (Totals, error)
}

// Tracker records deletion sessions and summarizes them.
type Tracker struct {
	Store  Store
	Logger *slog.Logger
}

func NewTracker(store Store, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{Store: store, Logger: logger}
}

// RecordSession accumulates one finished destructive operation. Sessions with
// nothing deleted still count toward the session total.
func (t *Tracker) RecordSession(ctx context.Context, user string, deleted, reclaimedBytes int64) {
	if err := t.Store.Add(ctx, user, deleted, reclaimedBytes); err != nil {
		t.Logger.WarnContext(ctx, "record deletion stats", "user", user, "error", err)
	}
}

// Summary returns the user's accumulated totals and per-session average.
func (t *Tracker) Summary(ctx context.Context, user string) (Report, error) {
	totals, err := t.Store.Get(ctx, user)
	if err != nil {
		return Report{}, fmt.Errorf("load deletion stats: %w", err)
	}
	rep := Report{Totals: totals}
	if totals.Sessions > 0 {
		rep.AvgPerSession = float64(totals.TotalDeleted) / float64(totals.Sessions)
	}
	return rep, nil
}
