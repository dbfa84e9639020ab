// Package purge composes credential supply, query resolution, batched
// mutation, the undo ledger, and statistics into the bulk mailbox operations
// exposed to callers.
package purge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/evanmorrow/mailpurge/internal/auth"
	"github.com/evanmorrow/mailpurge/internal/gmail"
	"github.com/evanmorrow/mailpurge/internal/mutate"
	"github.com/evanmorrow/mailpurge/internal/rate"
	"github.com/evanmorrow/mailpurge/internal/resolve"
	"github.com/evanmorrow/mailpurge/internal/retry"
	"github.com/evanmorrow/mailpurge/internal/runtime"
	"github.com/evanmorrow/mailpurge/internal/stats"
	"github.com/evanmorrow/mailpurge/internal/undo"
)

// sampleLimit bounds how many messages are inspected to estimate storage.
const sampleLimit = 20

// ClientFactory yields a freshly authorized client for one operation. No
// client is shared across operations, so a bulk run never starts on a token
// that is about to expire.
type ClientFactory func(ctx context.Context, user string) (gmail.Client, error)

// SupplierFactory builds clients from credentials obtained per user.
func SupplierFactory(supplier *auth.Supplier) ClientFactory {
	return func(ctx context.Context, user string) (gmail.Client, error) {
		cred, err := supplier.Obtain(ctx, user)
		if err != nil {
			return nil, err
		}
		return runtime.NewTokenClient(ctx, cred.TokenSource())
	}
}

// StaticFactory serves one fixed client regardless of user. Used by the CLI,
// which authorizes a single local mailbox.
func StaticFactory(client gmail.Client) ClientFactory {
	return func(context.Context, string) (gmail.Client, error) { return client, nil }
}

// Progress mirrors mutate.Progress for callers that only import this package.
type Progress = mutate.Progress

// DeleteOutcome is the result of one bulk deletion plus its undo handle.
type DeleteOutcome struct {
	Result     mutate.OperationResult `json:"result"`
	UndoID     string                 `json:"undo_id"`
	Resolved   int                    `json:"resolved"`
	Exhaustive bool                   `json:"exhaustive"`
}

// Service exposes the sanctioned bulk-mutation entry points.
type Service struct {
	Clients   ClientFactory
	UndoStore undo.Store
	Stats     *stats.Tracker
	Limiter   rate.Limiter
	Retry     *retry.Policy
	Logger    *slog.Logger
	Clock     func() time.Time
	BatchSize int
}

func NewService(clients ClientFactory, undoStore undo.Store, tracker *stats.Tracker, limiter rate.Limiter, policy *retry.Policy, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if limiter == nil {
		limiter = rate.Unlimited{}
	}
	return &Service{
		Clients:   clients,
		UndoStore: undoStore,
		Stats:     tracker,
		Limiter:   limiter,
		Retry:     policy,
		Logger:    logger,
		Clock:     time.Now,
		BatchSize: mutate.DefaultBatchSize,
	}
}

// components are built fresh per operation around a fresh client.
type components struct {
	client   gmail.Client
	resolver *resolve.Resolver
	mutator  *mutate.Mutator
	ledger   *undo.Ledger
}

func (s *Service) forUser(ctx context.Context, user string) (components, error) {
	client, err := s.Clients(ctx, user)
	if err != nil {
		return components{}, err
	}
	resolver := resolve.NewResolver(client, s.Limiter, s.Retry, s.Logger)
	mutator := mutate.NewMutator(client, s.Retry, s.Logger)
	ledger := undo.NewLedger(s.UndoStore, mutator, resolver, s.Logger)
	ledger.Clock = s.Clock
	return components{client: client, resolver: resolver, mutator: mutator, ledger: ledger}, nil
}

// DeleteByIDs trashes (or permanently deletes) an explicit id list. The undo
// point is recorded before the first batch runs.
func (s *Service) DeleteByIDs(ctx context.Context, user string, ids []gmail.MessageID, permanent bool, progress func(Progress)) (DeleteOutcome, error) {
	c, err := s.forUser(ctx, user)
	if err != nil {
		return DeleteOutcome{}, err
	}

	avgSize := s.sampleAverageSize(ctx, c.client, ids)

	point, err := c.ledger.Create(ctx, user, undo.KindIDList, undo.Payload{IDs: ids})
	if err != nil {
		return DeleteOutcome{}, err
	}

	result, err := c.mutator.Apply(ctx, ids, deleteAction(permanent), mutate.Options{
		BatchSize: s.BatchSize,
		Progress:  progress,
	})
	s.recordSession(ctx, user, result, avgSize)
	return DeleteOutcome{Result: result, UndoID: point.ID, Resolved: len(ids)}, err
}

// DeleteByQuery resolves a query to at most cap ids, records an undo point
// carrying the query itself, then trashes or permanently deletes the set.
func (s *Service) DeleteByQuery(ctx context.Context, user, query string, cap int, permanent bool, progress func(Progress)) (DeleteOutcome, error) {
	c, err := s.forUser(ctx, user)
	if err != nil {
		return DeleteOutcome{}, err
	}

	res, err := c.resolver.IDs(ctx, gmail.Query{Raw: query}, cap)
	if err != nil {
		return DeleteOutcome{}, err
	}

	avgSize := s.sampleAverageSize(ctx, c.client, res.IDs)

	point, err := c.ledger.Create(ctx, user, undo.KindQuery, undo.Payload{Query: query, Cap: cap})
	if err != nil {
		return DeleteOutcome{}, err
	}

	result, err := c.mutator.Apply(ctx, res.IDs, deleteAction(permanent), mutate.Options{
		BatchSize: s.BatchSize,
		Progress:  progress,
	})
	s.recordSession(ctx, user, result, avgSize)
	return DeleteOutcome{
		Result:     result,
		UndoID:     point.ID,
		Resolved:   len(res.IDs),
		Exhaustive: res.Exhaustive,
	}, err
}

// DeleteRuleQuery is the capped soft delete deletion rules run through.
func (s *Service) DeleteRuleQuery(ctx context.Context, user, query string, cap int) (mutate.OperationResult, error) {
	out, err := s.DeleteByQuery(ctx, user, query, cap, false, nil)
	return out.Result, err
}

// RecoverByIDs restores an explicit id list from the trash.
func (s *Service) RecoverByIDs(ctx context.Context, user string, ids []gmail.MessageID, progress func(Progress)) (mutate.OperationResult, error) {
	c, err := s.forUser(ctx, user)
	if err != nil {
		return mutate.OperationResult{}, err
	}
	return c.mutator.Apply(ctx, ids, mutate.Untrash, mutate.Options{
		BatchSize: s.BatchSize,
		Progress:  progress,
	})
}

// RecoverByQuery restores everything in the trash matching the query, up to
// cap.
func (s *Service) RecoverByQuery(ctx context.Context, user, query string, cap int, progress func(Progress)) (mutate.OperationResult, error) {
	c, err := s.forUser(ctx, user)
	if err != nil {
		return mutate.OperationResult{}, err
	}
	res, err := c.resolver.IDs(ctx, gmail.Query{Raw: query}.InTrash(), cap)
	if err != nil {
		return mutate.OperationResult{}, err
	}
	return c.mutator.Apply(ctx, res.IDs, mutate.Untrash, mutate.Options{
		BatchSize: s.BatchSize,
		Progress:  progress,
	})
}

// Undo consumes an undo point and runs its restore mutation.
func (s *Service) Undo(ctx context.Context, user, undoID string) (mutate.OperationResult, error) {
	c, err := s.forUser(ctx, user)
	if err != nil {
		return mutate.OperationResult{}, err
	}
	return c.ledger.Execute(ctx, user, undoID)
}

// UndoHistory lists the user's unexpired undo points. No remote client is
// needed, so credential failures cannot hide history.
func (s *Service) UndoHistory(ctx context.Context, user string) ([]undo.Point, error) {
	ledger := undo.NewLedger(s.UndoStore, nil, nil, s.Logger)
	ledger.Clock = s.Clock
	return ledger.History(ctx, user)
}

// Connectivity probes the remote account with a profile fetch.
func (s *Service) Connectivity(ctx context.Context, user string) (gmail.Profile, error) {
	c, err := s.forUser(ctx, user)
	if err != nil {
		return gmail.Profile{}, err
	}
	var profile gmail.Profile
	err = s.Retry.Do(ctx, "get profile", func(ctx context.Context) error {
		if waitErr := s.Limiter.Wait(ctx); waitErr != nil {
			return waitErr
		}
		var callErr error
		profile, callErr = c.client.GetProfile(ctx)
		return callErr
	})
	if err != nil {
		return gmail.Profile{}, fmt.Errorf("connectivity probe: %w", err)
	}
	return profile, nil
}

// Count returns how many messages match the query, exactly (bounded paging)
// or as a fast estimate.
func (s *Service) Count(ctx context.Context, user, query string, exact bool) (resolve.Count, error) {
	c, err := s.forUser(ctx, user)
	if err != nil {
		return resolve.Count{}, err
	}
	if exact {
		return c.resolver.ExactCount(ctx, gmail.Query{Raw: query})
	}
	return c.resolver.Estimate(ctx, gmail.Query{Raw: query})
}

func deleteAction(permanent bool) mutate.Action {
	if permanent {
		return mutate.PermanentDelete
	}
	return mutate.Trash
}

func (s *Service) recordSession(ctx context.Context, user string, result mutate.OperationResult, avgSize int64) {
	if s.Stats == nil {
		return
	}
	reclaimed := avgSize * int64(result.Successful)
	s.Stats.RecordSession(ctx, user, int64(result.Successful), reclaimed)
}

// sampleAverageSize inspects metadata for a bounded sample of ids to estimate
// the average message size. Failures degrade to zero rather than blocking the
// deletion.
func (s *Service) sampleAverageSize(ctx context.Context, client gmail.Client, ids []gmail.MessageID) int64 {
	if len(ids) == 0 {
		return 0
	}
	sample := ids
	if len(sample) > sampleLimit {
		sample = sample[:sampleLimit]
	}
	var total int64
	var counted int64
	for _, id := range sample {
		if err := s.Limiter.Wait(ctx); err != nil {
			return 0
		}
		meta, err := client.GetMetadata(ctx, id, nil)
		if err != nil {
			if gmail.IsNotFound(err) {
				continue
			}
			s.Logger.WarnContext(ctx, "sample metadata", "id", id, "error", err)
			continue
		}
		total += meta.SizeEstimate
		counted++
	}
	if counted == 0 {
		return 0
	}
	return total / counted
}
