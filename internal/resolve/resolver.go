// Package resolve turns a search query into a bounded, deduplicated set of
// message ids by driving list pagination.
package resolve

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/evanmorrow/mailpurge/internal/gmail"
	"github.com/evanmorrow/mailpurge/internal/rate"
	"github.com/evanmorrow/mailpurge/internal/retry"
)

// maxCountPages bounds exact counting; beyond this the count is an estimate.
const maxCountPages = 50

// exactCountThreshold: below this, Estimate materializes a page to return an
// exact count instead of trusting the service's estimate.
const exactCountThreshold = 100

// Resolution is the outcome of resolving a query to ids.
type Resolution struct {
	IDs []gmail.MessageID

	// Exhaustive is true when pagination ran out of results before the cap
	// was reached, so len(IDs) is the exact match count.
	Exhaustive bool
}

// Count is a match count that may be the service's own estimate.
type Count struct {
	N        int64
	Estimate bool
}

// Resolver drives paginated listing under the rate limiter and retry policy.
type Resolver struct {
	Client  gmail.Client
	Limiter rate.Limiter
	Retry   *retry.Policy
	Logger  *slog.Logger
}

func NewResolver(client gmail.Client, limiter rate.Limiter, policy *retry.Policy, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if limiter == nil {
		limiter = rate.Unlimited{}
	}
	return &Resolver{Client: client, Limiter: limiter, Retry: policy, Logger: logger}
}

// IDs accumulates up to cap ids matching q. Duplicate ids across pages are
// dropped. Resolution stops at the cap, at an empty page, or when no further
// page token is supplied.
func (r *Resolver) IDs(ctx context.Context, q gmail.Query, cap int) (Resolution, error) {
	if cap <= 0 {
		return Resolution{}, fmt.Errorf("cap must be positive, got %d", cap)
	}

	seen := make(map[gmail.MessageID]struct{}, cap)
	res := Resolution{}
	token := ""
	for len(res.IDs) < cap {
		pageSize := gmail.MaxPageSize
		if remaining := cap - len(res.IDs); remaining < pageSize {
			pageSize = remaining
		}

		page, err := r.list(ctx, q, token, pageSize)
		if err != nil {
			return Resolution{}, err
		}
		if len(page.IDs) == 0 {
			res.Exhaustive = true
			break
		}
		for _, id := range page.IDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			res.IDs = append(res.IDs, id)
			if len(res.IDs) == cap {
				break
			}
		}
		if page.NextPageToken == "" {
			res.Exhaustive = len(res.IDs) < cap
			break
		}
		token = page.NextPageToken
	}

	r.Logger.InfoContext(ctx, "resolved query",
		"query", q.Raw, "cap", cap, "ids", len(res.IDs), "exhaustive", res.Exhaustive)
	return res, nil
}

// ExactCount pages through results counting matches, bounded at maxCountPages
// pages. When pagination ends inside the bound the count is exact.
func (r *Resolver) ExactCount(ctx context.Context, q gmail.Query) (Count, error) {
	var total int64
	token := ""
	for pages := 0; pages < maxCountPages; pages++ {
		page, err := r.list(ctx, q, token, gmail.MaxPageSize)
		if err != nil {
			return Count{}, err
		}
		total += int64(len(page.IDs))
		if len(page.IDs) == 0 || page.NextPageToken == "" {
			return Count{N: total}, nil
		}
		token = page.NextPageToken
	}
	return Count{N: total, Estimate: true}, nil
}

// Estimate trusts the service's result-size estimate for large result sets
// and only materializes a page for small ones to return an exact count.
func (r *Resolver) Estimate(ctx context.Context, q gmail.Query) (Count, error) {
	probe, err := r.list(ctx, q, "", 1)
	if err != nil {
		return Count{}, err
	}
	if probe.SizeEstimate > exactCountThreshold {
		return Count{N: probe.SizeEstimate, Estimate: true}, nil
	}

	page, err := r.list(ctx, q, "", exactCountThreshold)
	if err != nil {
		return Count{}, err
	}
	if len(page.IDs) < exactCountThreshold && page.NextPageToken == "" {
		return Count{N: int64(len(page.IDs))}, nil
	}
	return Count{N: probe.SizeEstimate, Estimate: true}, nil
}

func (r *Resolver) list(ctx context.Context, q gmail.Query, token string, pageSize int) (gmail.ListPage, error) {
	var page gmail.ListPage
	err := r.Retry.Do(ctx, "list messages", func(ctx context.Context) error {
		if err := r.Limiter.Wait(ctx); err != nil {
			return err
		}
		var listErr error
		page, listErr = r.Client.List(ctx, q, token, pageSize)
		return listErr
	})
	if err != nil {
		return gmail.ListPage{}, fmt.Errorf("list %q: %w", q.Raw, err)
	}
	return page, nil
}
