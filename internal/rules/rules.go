// Package rules manages named, recurring deletion rules per user. A scheduler
// (out of scope here) asks Due which rules to run and executes them through
// the bulk orchestrator.
package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/evanmorrow/mailpurge/internal/mutate"
)

// ruleCap bounds how many messages a single rule run may delete.
const ruleCap = 5000

var (
	ErrNotFound = errors.New("deletion rule not found")
	ErrDisabled = errors.New("deletion rule is disabled")
)

// Rule is a stored recurring deletion.
type Rule struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Query        string     `json:"query"`
	EveryDays    int        `json:"every_days"`
	Enabled      bool       `json:"enabled"`
	CreatedAt    time.Time  `json:"created_at"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	TotalDeleted int64      `json:"total_deleted"`
}

// Due reports whether the rule should run at now.
func (r Rule) Due(now time.Time) bool {
	if !r.Enabled || r.EveryDays <= 0 {
		return false
	}
	if r.LastRun == nil {
		return true
	}
	return now.Sub(*r.LastRun) >= time.Duration(r.EveryDays)*24*time.Hour
}

// Store persists per-user rules.
type Store interface {
	Save(ctx context.Context, user string, r Rule) error
	Get(ctx context.Context, user, id string) (Rule, bool, error)
	List(ctx context.Context, user string) ([]Rule, error)
	Delete(ctx context.Context, user, id string) error
}

// Executor runs a capped soft delete; satisfied by the purge service.
type Executor interface {
	DeleteRuleQuery(ctx context.Context, user, query string, cap int) (mutate.OperationResult, error)
}

// Manager creates, lists, and executes deletion rules.
type Manager struct {
	Store    Store
	Executor Executor
	Logger   *slog.Logger
	Clock    func() time.Time
}

func NewManager(store Store, exec Executor, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{Store: store, Executor: exec, Logger: logger, Clock: time.Now}
}

// Create validates and stores a new rule.
func (m *Manager) Create(ctx context.Context, user, name, query string, everyDays int, enabled bool) (Rule, error) {
	if name == "" || query == "" {
		return Rule{}, fmt.Errorf("rule name and query are required")
	}
	if everyDays <= 0 {
		return Rule{}, fmt.Errorf("rule interval must be positive, got %d days", everyDays)
	}
	r := Rule{
		ID:        uuid.NewString(),
		Name:      name,
		Query:     query,
		EveryDays: everyDays,
		Enabled:   enabled,
		CreatedAt: m.Clock(),
	}
	if err := m.Store.Save(ctx, user, r); err != nil {
		return Rule{}, fmt.Errorf("save rule: %w", err)
	}
	m.Logger.InfoContext(ctx, "deletion rule created",
		"user", user, "rule", r.Name, "every_days", everyDays, "enabled", enabled)
	return r, nil
}

// List returns the user's rules.
func (m *Manager) List(ctx context.Context, user string) ([]Rule, error) {
	return m.Store.List(ctx, user)
}

// Due returns the user's rules that should run at now.
func (m *Manager) Due(ctx context.Context, user string, now time.Time) ([]Rule, error) {
	all, err := m.Store.List(ctx, user)
	if err != nil {
		return nil, err
	}
	due := all[:0]
	for _, r := range all {
		if r.Due(now) {
			due = append(due, r)
		}
	}
	return due, nil
}

// Execute runs one rule now and folds the outcome back into the rule record.
func (m *Manager) Execute(ctx context.Context, user, id string) (mutate.OperationResult, error) {
	r, ok, err := m.Store.Get(ctx, user, id)
	if err != nil {
		return mutate.OperationResult{}, fmt.Errorf("load rule: %w", err)
	}
	if !ok {
		return mutate.OperationResult{}, ErrNotFound
	}
	if !r.Enabled {
		return mutate.OperationResult{}, ErrDisabled
	}

	result, err := m.Executor.DeleteRuleQuery(ctx, user, r.Query, ruleCap)
	if err != nil {
		return result, err
	}

	now := m.Clock()
	r.LastRun = &now
	r.TotalDeleted += int64(result.Successful)
	if saveErr := m.Store.Save(ctx, user, r); saveErr != nil {
		m.Logger.WarnContext(ctx, "update rule after run", "user", user, "rule", r.Name, "error", saveErr)
	}
	return result, nil
}
