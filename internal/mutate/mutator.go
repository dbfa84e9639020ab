// Package mutate applies a mutation to a large id set in bounded batches,
// best effort: a failed batch never blocks the ones after it.
package mutate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/evanmorrow/mailpurge/internal/gmail"
	"github.com/evanmorrow/mailpurge/internal/retry"
)

// Action is the mutation applied to every id.
type Action string

const (
	Trash           Action = "trash"
	Untrash         Action = "untrash"
	PermanentDelete Action = "permanent_delete"
)

// ResultTag is the action tag reported on the operation result.
func (a Action) ResultTag() string {
	switch a {
	case Trash:
		return "moved_to_trash"
	case Untrash:
		return "recovered_from_trash"
	case PermanentDelete:
		return "permanently_deleted"
	default:
		return string(a)
	}
}

const (
	// DefaultBatchSize matches the batchModify id limit.
	DefaultBatchSize = gmail.MaxBatchModify

	// maxErrorDetail bounds the per-item error sample on a result.
	maxErrorDetail = 10

	interBatchDelay = 100 * time.Millisecond
	deleteSpacing   = 10 * time.Millisecond
	rateLimitPause  = 2 * time.Second
)

// ItemError names a failed id or batch together with what went wrong.
type ItemError struct {
	Ref   string `json:"ref"`
	Error string `json:"error"`
}

// BatchOutcome is the immutable record of one batch's application.
type BatchOutcome struct {
	Index     int
	Attempted int
	Succeeded int
	Skipped   int
	Failed    int
	Errors    []ItemError
}

// OperationResult aggregates batch outcomes across one bulk mutation.
type OperationResult struct {
	Total      int         `json:"total"`
	Successful int         `json:"successful"`
	Skipped    int         `json:"skipped"`
	Failed     int         `json:"failed"`
	Errors     []ItemError `json:"errors"` // first maxErrorDetail only
	Action     string      `json:"action"`
}

func (r *OperationResult) absorb(b BatchOutcome) {
	r.Successful += b.Succeeded
	r.Skipped += b.Skipped
	r.Failed += b.Failed
	for _, e := range b.Errors {
		if len(r.Errors) == maxErrorDetail {
			break
		}
		r.Errors = append(r.Errors, e)
	}
}

// Progress reports how far a bulk mutation has come.
type Progress struct {
	Current    int
	Total      int
	Successful int
	Failed     int
}

// Options tunes one Apply call.
type Options struct {
	BatchSize int
	Progress  func(Progress) // optional
}

// Mutator partitions ids into batches and applies an action to each under the
// retry policy.
type Mutator struct {
	Client gmail.Client
	Retry  *retry.Policy
	Logger *slog.Logger

	// Sleep is swapped out in tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

func NewMutator(client gmail.Client, policy *retry.Policy, logger *slog.Logger) *Mutator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mutator{Client: client, Retry: policy, Logger: logger, Sleep: sleepCtx}
}

// Apply mutates ids in consecutive batches. Failures within a batch are
// recorded and the next batch still runs. Cancellation is honored between
// batches: an in-flight call completes, no further batch starts, and the
// partial result is returned alongside the context error.
func (m *Mutator) Apply(ctx context.Context, ids []gmail.MessageID, action Action, opts Options) (OperationResult, error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 || batchSize > gmail.MaxBatchModify {
		batchSize = DefaultBatchSize
	}

	result := OperationResult{Total: len(ids), Action: action.ResultTag()}
	if len(ids) == 0 {
		return result, nil
	}

	for i, index := 0, 0; i < len(ids); i, index = i+batchSize, index+1 {
		if err := ctx.Err(); err != nil {
			m.Logger.InfoContext(ctx, "bulk mutation canceled",
				"action", action, "applied", i, "total", len(ids))
			return result, err
		}
		if i > 0 {
			if err := m.Sleep(ctx, interBatchDelay); err != nil {
				return result, err
			}
		}

		end := i + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[i:end]

		var outcome BatchOutcome
		if action == PermanentDelete {
			outcome = m.deleteBatch(ctx, index, batch)
		} else {
			outcome = m.modifyBatch(ctx, index, batch, action)
		}
		result.absorb(outcome)

		if opts.Progress != nil {
			opts.Progress(Progress{
				Current:    end,
				Total:      len(ids),
				Successful: result.Successful + result.Skipped,
				Failed:     result.Failed,
			})
		}
	}

	m.Logger.InfoContext(ctx, "bulk mutation finished",
		"action", action, "total", result.Total,
		"successful", result.Successful, "skipped", result.Skipped, "failed", result.Failed)
	return result, nil
}

// modifyBatch applies trash/untrash label changes to a whole batch in one
// call. There is no per-id outcome from batchModify, so a failure marks the
// entire batch failed.
func (m *Mutator) modifyBatch(ctx context.Context, index int, batch []gmail.MessageID, action Action) BatchOutcome {
	ops := gmail.TrashOps()
	if action == Untrash {
		ops = gmail.UntrashOps()
	}

	outcome := BatchOutcome{Index: index, Attempted: len(batch)}
	err := m.Retry.Do(ctx, "batch modify", func(ctx context.Context) error {
		return m.Client.BatchModify(ctx, batch, ops)
	})
	if err != nil {
		outcome.Failed = len(batch)
		outcome.Errors = append(outcome.Errors, ItemError{
			Ref:   batchRef(index, batch),
			Error: err.Error(),
		})
		m.Logger.ErrorContext(ctx, "batch modify failed",
			"batch", index, "size", len(batch), "error", err)
		return outcome
	}
	outcome.Succeeded = len(batch)
	return outcome
}

// deleteBatch removes each id individually since the API has no batch delete.
// Ids the service no longer knows are skipped; a rate-limit failure pauses
// before the loop continues.
func (m *Mutator) deleteBatch(ctx context.Context, index int, batch []gmail.MessageID) BatchOutcome {
	outcome := BatchOutcome{Index: index, Attempted: len(batch)}
	for n, id := range batch {
		if n > 0 {
			if err := m.Sleep(ctx, deleteSpacing); err != nil {
				return outcome
			}
		}
		err := m.Retry.Do(ctx, "delete message", func(ctx context.Context) error {
			return m.Client.Delete(ctx, id)
		})
		switch {
		case err == nil:
			outcome.Succeeded++
		case gmail.IsNotFound(err):
			outcome.Skipped++
		default:
			outcome.Failed++
			outcome.Errors = append(outcome.Errors, ItemError{Ref: string(id), Error: err.Error()})
			if gmail.IsRateLimited(err) {
				if sleepErr := m.Sleep(ctx, rateLimitPause); sleepErr != nil {
					return outcome
				}
			}
		}
	}
	return outcome
}

func batchRef(index int, batch []gmail.MessageID) string {
	if len(batch) == 0 {
		return fmt.Sprintf("batch %d", index+1)
	}
	return fmt.Sprintf("batch %d (%s..%s)", index+1, batch[0], batch[len(batch)-1])
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
