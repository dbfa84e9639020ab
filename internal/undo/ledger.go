// Package undo records time-boxed, single-use undo points for destructive
// bulk operations and resolves an undo request back into a restore mutation.
package undo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/evanmorrow/mailpurge/internal/gmail"
	"github.com/evanmorrow/mailpurge/internal/mutate"
	"github.com/evanmorrow/mailpurge/internal/resolve"
)

// Kind distinguishes how the original deletion selected its messages.
type Kind string

const (
	KindIDList Kind = "id_list_delete"
	KindQuery  Kind = "query_delete"
)

const (
	// TTL is how long an undo point stays executable.
	TTL = 24 * time.Hour

	// RingSize caps retained undo points per user; the oldest is evicted.
	RingSize = 10
)

var (
	ErrNotFound        = errors.New("undo point not found")
	ErrExpired         = errors.New("undo point has expired")
	ErrAlreadyUsed     = errors.New("undo point already used")
	ErrUnsupportedKind = errors.New("unsupported undo operation kind")
)

// Payload is what Execute needs to reverse the original deletion: the id list
// for id-based deletes, the query and cap for query-based ones.
type Payload struct {
	IDs   []gmail.MessageID `json:"ids,omitempty"`
	Query string            `json:"query,omitempty"`
	Cap   int               `json:"cap,omitempty"`
}

// Point is one recorded undo opportunity.
type Point struct {
	ID         string     `json:"id"`
	User       string     `json:"user"`
	Kind       Kind       `json:"kind"`
	Payload    Payload    `json:"payload"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	CanUndo    bool       `json:"can_undo"`
	ExecutedAt *time.Time `json:"executed_at,omitempty"`
}

// Store is the per-user undo ring persistence. MarkUsed must flip CanUndo
// atomically: it reports false when the point was already used, so two racing
// undo requests cannot both execute.
type Store interface {
	Push(ctx context.Context, user string, p Point) error
	Get(ctx context.Context, user, id string) (Point, bool, error)
	MarkUsed(ctx context.Context, user, id string, executedAt time.Time) (bool, error)
	List(ctx context.Context, user string) ([]Point, error)
}

type mutator interface {
	Apply(ctx context.Context, ids []gmail.MessageID, action mutate.Action, opts mutate.Options) (mutate.OperationResult, error)
}

type resolver interface {
	IDs(ctx context.Context, q gmail.Query, cap int) (resolve.Resolution, error)
}

// Ledger creates and executes undo points.
type Ledger struct {
	Store    Store
	Mutator  mutator
	Resolver resolver
	Logger   *slog.Logger
	Clock    func() time.Time
}

func NewLedger(store Store, m mutator, r resolver, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{Store: store, Mutator: m, Resolver: r, Logger: logger, Clock: time.Now}
}

// Create records an undo point at the head of the user's ring. Callers must
// create the point before mutating, so a partially failed deletion is still
// reversible up to whatever succeeded.
func (l *Ledger) Create(ctx context.Context, user string, kind Kind, payload Payload) (Point, error) {
	now := l.Clock()
	p := Point{
		ID:        uuid.NewString(),
		User:      user,
		Kind:      kind,
		Payload:   payload,
		CreatedAt: now,
		ExpiresAt: now.Add(TTL),
		CanUndo:   true,
	}
	if err := l.Store.Push(ctx, user, p); err != nil {
		return Point{}, fmt.Errorf("record undo point: %w", err)
	}
	l.Logger.InfoContext(ctx, "undo point recorded",
		"user", user, "undo_id", p.ID, "kind", kind, "expires_at", p.ExpiresAt)
	return p, nil
}

// Execute runs the restore mutation for an undo point. The point is consumed
// the moment execution is authorized: even a partially failed restore leaves
// it spent.
func (l *Ledger) Execute(ctx context.Context, user, id string) (mutate.OperationResult, error) {
	p, ok, err := l.Store.Get(ctx, user, id)
	if err != nil {
		return mutate.OperationResult{}, fmt.Errorf("load undo point: %w", err)
	}
	if !ok {
		return mutate.OperationResult{}, ErrNotFound
	}
	if l.Clock().After(p.ExpiresAt) {
		return mutate.OperationResult{}, ErrExpired
	}
	if !p.CanUndo {
		return mutate.OperationResult{}, ErrAlreadyUsed
	}
	if p.Kind != KindIDList && p.Kind != KindQuery {
		return mutate.OperationResult{}, fmt.Errorf("%w: %s", ErrUnsupportedKind, p.Kind)
	}

	flipped, err := l.Store.MarkUsed(ctx, user, id, l.Clock())
	if err != nil {
		return mutate.OperationResult{}, fmt.Errorf("consume undo point: %w", err)
	}
	if !flipped {
		return mutate.OperationResult{}, ErrAlreadyUsed
	}

	ids := p.Payload.IDs
	if p.Kind == KindQuery {
		res, resErr := l.Resolver.IDs(ctx, gmail.Query{Raw: p.Payload.Query}.InTrash(), p.Payload.Cap)
		if resErr != nil {
			return mutate.OperationResult{}, fmt.Errorf("re-resolve undo query: %w", resErr)
		}
		ids = res.IDs
	}

	result, err := l.Mutator.Apply(ctx, ids, mutate.Untrash, mutate.Options{})
	if err != nil {
		return result, err
	}
	l.Logger.InfoContext(ctx, "undo executed",
		"user", user, "undo_id", id, "restored", result.Successful, "failed", result.Failed)
	return result, nil
}

// History lists the user's unexpired undo points, newest first.
func (l *Ledger) History(ctx context.Context, user string) ([]Point, error) {
	points, err := l.Store.List(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("list undo points: %w", err)
	}
	now := l.Clock()
	active := points[:0]
	for _, p := range points {
		if !now.After(p.ExpiresAt) {
			active = append(active, p)
		}
	}
	return active, nil
}
