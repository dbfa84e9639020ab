package purge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/evanmorrow/mailpurge/internal/gmail"
	"github.com/evanmorrow/mailpurge/internal/rate"
	"github.com/evanmorrow/mailpurge/internal/retry"
	"github.com/evanmorrow/mailpurge/internal/stats"
	"github.com/evanmorrow/mailpurge/internal/undo"
)

// scriptedClient logs every call so tests can assert ordering across the
// resolution, undo-recording, and mutation phases.
type scriptedClient struct {
	pages    []gmail.ListPage
	metaSize int64
	profile  gmail.Profile

	events   *[]string
	batches  [][]gmail.MessageID
	batchOps []gmail.ModifyOps
	deleted  []gmail.MessageID
}

func (c *scriptedClient) log(ev string) {
	if c.events != nil {
		*c.events = append(*c.events, ev)
	}
}

func (c *scriptedClient) List(_ context.Context, q gmail.Query, _ string, _ int) (gmail.ListPage, error) {
	c.log("list " + q.Raw)
	if len(c.pages) == 0 {
		return gmail.ListPage{}, nil
	}
	page := c.pages[0]
	c.pages = c.pages[1:]
	return page, nil
}

func (c *scriptedClient) GetMetadata(_ context.Context, id gmail.MessageID, _ []string) (gmail.MessageMeta, error) {
	c.log("metadata")
	return gmail.MessageMeta{
		ID:           id,
		Snippet:      "snippet",
		Headers:      map[string]string{"From": "a@b.c", "Subject": "hi", "Date": "Mon"},
		SizeEstimate: c.metaSize,
	}, nil
}

func (c *scriptedClient) BatchModify(_ context.Context, ids []gmail.MessageID, ops gmail.ModifyOps) error {
	c.log("batchModify")
	c.batches = append(c.batches, ids)
	c.batchOps = append(c.batchOps, ops)
	return nil
}

func (c *scriptedClient) Delete(_ context.Context, id gmail.MessageID) error {
	c.log("delete")
	c.deleted = append(c.deleted, id)
	return nil
}

func (c *scriptedClient) GetProfile(context.Context) (gmail.Profile, error) {
	c.log("profile")
	return c.profile, nil
}

// memUndoStore logs pushes into the shared event stream.
type memUndoStore struct {
	points []undo.Point
	events *[]string
}

func (s *memUndoStore) Push(_ context.Context, _ string, p undo.Point) error {
	if s.events != nil {
		*s.events = append(*s.events, "undoPush")
	}
	s.points = append([]undo.Point{p}, s.points...)
	if len(s.points) > undo.RingSize {
		s.points = s.points[:undo.RingSize]
	}
	return nil
}

func (s *memUndoStore) Get(_ context.Context, _, id string) (undo.Point, bool, error) {
	for _, p := range s.points {
		if p.ID == id {
			return p, true, nil
		}
	}
	return undo.Point{}, false, nil
}

func (s *memUndoStore) MarkUsed(_ context.Context, _, id string, executedAt time.Time) (bool, error) {
	for i := range s.points {
		if s.points[i].ID != id {
			continue
		}
		if !s.points[i].CanUndo {
			return false, nil
		}
		s.points[i].CanUndo = false
		s.points[i].ExecutedAt = &executedAt
		return true, nil
	}
	return false, nil
}

func (s *memUndoStore) List(context.Context, string) ([]undo.Point, error) {
	return append([]undo.Point(nil), s.points...), nil
}

type memStatsStore struct {
	deleted   int64
	reclaimed int64
	sessions  int64
}

func (s *memStatsStore) Add(_ context.Context, _ string, deleted, reclaimedBytes int64) error {
	s.deleted += deleted
	s.reclaimed += reclaimedBytes
	s.sessions++
	return nil
}

func (s *memStatsStore) Get(context.Context, string) (stats.Totals, error) {
	return stats.Totals{TotalDeleted: s.deleted, ReclaimedBytes: s.reclaimed, Sessions: s.sessions}, nil
}

type harness struct {
	svc     *Service
	client  *scriptedClient
	undos   *memUndoStore
	stats   *memStatsStore
	events  []string
	factory int
}

func newHarness(t *testing.T, client *scriptedClient) *harness {
	t.Helper()
	h := &harness{client: client}
	client.events = &h.events
	h.undos = &memUndoStore{events: &h.events}
	h.stats = &memStatsStore{}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	policy := retry.NewPolicy(logger)
	policy.Sleep = func(context.Context, time.Duration) error { return nil }

	factory := func(context.Context, string) (gmail.Client, error) {
		h.factory++
		return client, nil
	}
	h.svc = NewService(factory, h.undos, stats.NewTracker(h.stats, logger), rate.Unlimited{}, policy, logger)
	h.svc.Clock = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return h
}

func pageOf(prefix string, n int, next string) gmail.ListPage {
	ids := make([]gmail.MessageID, n)
	for i := range ids {
		ids[i] = gmail.MessageID(fmt.Sprintf("%s-%02d", prefix, i))
	}
	return gmail.ListPage{IDs: ids, NextPageToken: next}
}

func TestDeleteByQueryTrashesResolvedSet(t *testing.T) {
	client := &scriptedClient{
		pages:    []gmail.ListPage{pageOf("a", 20, "p2"), pageOf("b", 17, "")},
		metaSize: 4096,
	}
	h := newHarness(t, client)

	out, err := h.svc.DeleteByQuery(context.Background(), "u", "label:promo older_than:30d", 500, false, nil)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if out.Resolved != 37 || !out.Exhaustive {
		t.Fatalf("expected 37 exhaustively resolved, got %+v", out)
	}
	if out.Result.Successful != 37 || out.Result.Action != "moved_to_trash" {
		t.Fatalf("unexpected result %+v", out.Result)
	}
	if out.UndoID == "" {
		t.Fatalf("deletion must hand back an undo id")
	}
	if len(client.batches) != 1 || len(client.batches[0]) != 37 {
		t.Fatalf("expected one batch of 37, got %v", client.batches)
	}
	if len(client.deleted) != 0 {
		t.Fatalf("soft delete must not call the delete endpoint")
	}
}

func TestDeleteByQueryRecordsUndoBeforeMutating(t *testing.T) {
	client := &scriptedClient{pages: []gmail.ListPage{pageOf("a", 3, "")}}
	h := newHarness(t, client)

	if _, err := h.svc.DeleteByQuery(context.Background(), "u", "q", 100, false, nil); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	pushAt, modifyAt := -1, -1
	for i, ev := range h.events {
		switch ev {
		case "undoPush":
			pushAt = i
		case "batchModify":
			if modifyAt < 0 {
				modifyAt = i
			}
		}
	}
	if pushAt < 0 || modifyAt < 0 || pushAt > modifyAt {
		t.Fatalf("undo point must be recorded before the mutation, events: %v", h.events)
	}

	p := h.undos.points[0]
	if p.Kind != undo.KindQuery || p.Payload.Query != "q" || p.Payload.Cap != 100 {
		t.Fatalf("query undo point must carry the query and cap, got %+v", p)
	}
}

func TestDeleteByIDsRecordsIDListUndo(t *testing.T) {
	client := &scriptedClient{metaSize: 1000}
	h := newHarness(t, client)

	ids := []gmail.MessageID{"m1", "m2", "m3"}
	out, err := h.svc.DeleteByIDs(context.Background(), "u", ids, false, nil)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if out.Result.Successful != 3 {
		t.Fatalf("unexpected result %+v", out.Result)
	}

	p := h.undos.points[0]
	if p.Kind != undo.KindIDList || len(p.Payload.IDs) != 3 {
		t.Fatalf("id-list undo point must carry the ids, got %+v", p)
	}
}

func TestDeleteRecordsStats(t *testing.T) {
	client := &scriptedClient{metaSize: 2048}
	h := newHarness(t, client)

	if _, err := h.svc.DeleteByIDs(context.Background(), "u", []gmail.MessageID{"m1", "m2"}, false, nil); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if h.stats.sessions != 1 || h.stats.deleted != 2 {
		t.Fatalf("unexpected stats: %+v", h.stats)
	}
	if h.stats.reclaimed != 2*2048 {
		t.Fatalf("reclaimed bytes should extrapolate from the sample, got %d", h.stats.reclaimed)
	}
}

func TestDeletePermanentUsesDeleteEndpoint(t *testing.T) {
	client := &scriptedClient{}
	h := newHarness(t, client)
	h.svc.BatchSize = 10

	out, err := h.svc.DeleteByIDs(context.Background(), "u", []gmail.MessageID{"m1", "m2"}, true, nil)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if out.Result.Action != "permanently_deleted" || out.Result.Successful != 2 {
		t.Fatalf("unexpected result %+v", out.Result)
	}
	if len(client.deleted) != 2 || len(client.batches) != 0 {
		t.Fatalf("permanent delete must go through the delete endpoint, got %v / %v", client.deleted, client.batches)
	}
}

func TestUndoRestoresDeletedIDs(t *testing.T) {
	client := &scriptedClient{}
	h := newHarness(t, client)

	out, err := h.svc.DeleteByIDs(context.Background(), "u", []gmail.MessageID{"m1", "m2"}, false, nil)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	res, err := h.svc.Undo(context.Background(), "u", out.UndoID)
	if err != nil {
		t.Fatalf("undo failed: %v", err)
	}
	if res.Successful != 2 || res.Action != "recovered_from_trash" {
		t.Fatalf("unexpected undo result %+v", res)
	}
	last := client.batchOps[len(client.batchOps)-1]
	if len(last.RemoveLabels) != 1 || last.RemoveLabels[0] != gmail.LabelTrash {
		t.Fatalf("undo must remove the trash label, got %+v", last)
	}

	if _, err := h.svc.Undo(context.Background(), "u", out.UndoID); !errors.Is(err, undo.ErrAlreadyUsed) {
		t.Fatalf("second undo should fail, got %v", err)
	}
}

func TestRecoverByQueryRestrictsToTrash(t *testing.T) {
	client := &scriptedClient{pages: []gmail.ListPage{pageOf("a", 2, "")}}
	h := newHarness(t, client)

	res, err := h.svc.RecoverByQuery(context.Background(), "u", "label:promo", 100, nil)
	if err != nil {
		t.Fatalf("recover failed: %v", err)
	}
	if res.Successful != 2 {
		t.Fatalf("unexpected result %+v", res)
	}

	var listed string
	for _, ev := range h.events {
		if len(ev) > 5 && ev[:5] == "list " {
			listed = ev[5:]
			break
		}
	}
	if listed != "in:trash (label:promo)" {
		t.Fatalf("recovery must search the trash, listed %q", listed)
	}
}

func TestUndoHistoryWithoutClient(t *testing.T) {
	client := &scriptedClient{}
	h := newHarness(t, client)
	h.svc.Clients = func(context.Context, string) (gmail.Client, error) {
		return nil, errors.New("credentials gone")
	}

	if err := h.undos.Push(context.Background(), "u", undo.Point{
		ID:        "p1",
		Kind:      undo.KindIDList,
		CreatedAt: h.svc.Clock(),
		ExpiresAt: h.svc.Clock().Add(undo.TTL),
		CanUndo:   true,
	}); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	points, err := h.svc.UndoHistory(context.Background(), "u")
	if err != nil {
		t.Fatalf("history must not need a client: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("expected 1 point, got %d", len(points))
	}
}

func TestConnectivity(t *testing.T) {
	client := &scriptedClient{profile: gmail.Profile{Address: "u@example.com", TotalMessages: 1234}}
	h := newHarness(t, client)

	profile, err := h.svc.Connectivity(context.Background(), "u")
	if err != nil {
		t.Fatalf("connectivity failed: %v", err)
	}
	if profile.Address != "u@example.com" {
		t.Fatalf("unexpected profile %+v", profile)
	}
}

func TestCount(t *testing.T) {
	client := &scriptedClient{pages: []gmail.ListPage{
		{IDs: []gmail.MessageID{"m1"}, SizeEstimate: 9000},
	}}
	h := newHarness(t, client)

	count, err := h.svc.Count(context.Background(), "u", "q", false)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count.N != 9000 || !count.Estimate {
		t.Fatalf("unexpected count %+v", count)
	}
}

func TestPreviewQuery(t *testing.T) {
	client := &scriptedClient{
		pages: []gmail.ListPage{
			{IDs: []gmail.MessageID{"m1"}, SizeEstimate: 1000},
			pageOf("a", 5, ""),
		},
		metaSize: 3000,
	}
	h := newHarness(t, client)

	preview, err := h.svc.PreviewQuery(context.Background(), "u", "label:promo", 5)
	if err != nil {
		t.Fatalf("preview failed: %v", err)
	}
	if preview.TotalCount != 1000 || preview.CountIsExact {
		t.Fatalf("unexpected count in preview: %+v", preview)
	}
	if len(preview.Items) != 5 {
		t.Fatalf("expected 5 sampled items, got %d", len(preview.Items))
	}
	if preview.Items[0].From != "a@b.c" || preview.Items[0].Subject != "hi" {
		t.Fatalf("unexpected item %+v", preview.Items[0])
	}
	if preview.EstimatedBytes != 3000*1000 {
		t.Fatalf("storage must extrapolate sample average over total, got %d", preview.EstimatedBytes)
	}
	if len(client.batches) != 0 && len(client.deleted) != 0 {
		t.Fatalf("preview must not mutate anything")
	}
}

func TestEachOperationGetsFreshClient(t *testing.T) {
	client := &scriptedClient{}
	h := newHarness(t, client)

	if _, err := h.svc.DeleteByIDs(context.Background(), "u", []gmail.MessageID{"m1"}, false, nil); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := h.svc.Connectivity(context.Background(), "u"); err != nil {
		t.Fatalf("connectivity failed: %v", err)
	}
	if h.factory != 2 {
		t.Fatalf("each operation must build its own client, factory calls: %d", h.factory)
	}
}
