package purge

import (
	"context"

	"github.com/evanmorrow/mailpurge/internal/gmail"
)

// DefaultSampleSize is how many messages Preview inspects.
const DefaultSampleSize = 20

func previewHeaders() []string {
	return []string{"From", "To", "Subject", "Date"}
}

// PreviewItem is one sampled message a deletion query would hit.
type PreviewItem struct {
	ID           gmail.MessageID `json:"id"`
	From         string          `json:"from"`
	Subject      string          `json:"subject"`
	Date         string          `json:"date"`
	Snippet      string          `json:"snippet"`
	SizeEstimate int64           `json:"size_estimate"`
}

// Preview summarizes what a deletion query would do before anything runs.
type Preview struct {
	Query          string        `json:"query"`
	TotalCount     int64         `json:"total_count"`
	CountIsExact   bool          `json:"count_is_exact"`
	Items          []PreviewItem `json:"items"`
	EstimatedBytes int64         `json:"estimated_bytes"` // avg sample size × total count
}

// PreviewQuery samples up to sampleSize matching messages and extrapolates
// the storage the full result set occupies. Messages that vanish between
// listing and metadata fetch are skipped.
func (s *Service) PreviewQuery(ctx context.Context, user, query string, sampleSize int) (Preview, error) {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	c, err := s.forUser(ctx, user)
	if err != nil {
		return Preview{}, err
	}

	q := gmail.Query{Raw: query}
	count, err := c.resolver.Estimate(ctx, q)
	if err != nil {
		return Preview{}, err
	}

	res, err := c.resolver.IDs(ctx, q, sampleSize)
	if err != nil {
		return Preview{}, err
	}

	preview := Preview{Query: query, TotalCount: count.N, CountIsExact: !count.Estimate}
	var sampleBytes int64
	for _, id := range res.IDs {
		if waitErr := s.Limiter.Wait(ctx); waitErr != nil {
			return Preview{}, waitErr
		}
		meta, metaErr := c.client.GetMetadata(ctx, id, previewHeaders())
		if metaErr != nil {
			if gmail.IsNotFound(metaErr) {
				continue
			}
			s.Logger.WarnContext(ctx, "preview metadata", "id", id, "error", metaErr)
			continue
		}
		preview.Items = append(preview.Items, PreviewItem{
			ID:           meta.ID,
			From:         meta.Headers["From"],
			Subject:      meta.Headers["Subject"],
			Date:         meta.Headers["Date"],
			Snippet:      meta.Snippet,
			SizeEstimate: meta.SizeEstimate,
		})
		sampleBytes += meta.SizeEstimate
	}

	if n := int64(len(preview.Items)); n > 0 {
		preview.EstimatedBytes = (sampleBytes / n) * preview.TotalCount
	}
	return preview, nil
}
