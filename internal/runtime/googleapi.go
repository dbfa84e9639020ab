// Package runtime adapts the generated Google API client to the small
// interface the rest of mailpurge consumes.
package runtime

import (
	"context"

	gmailapi "google.golang.org/api/gmail/v1"

	gc "github.com/evanmorrow/mailpurge/internal/gmail"
)

type googleClient struct{ svc *gmailapi.Service }

// NewGoogleAPIClient wraps *gmail.Service in the gc.Client interface.
func NewGoogleAPIClient(svc *gmailapi.Service) gc.Client { return &googleClient{svc} }

func (g *googleClient) List(ctx context.Context, q gc.Query, pageToken string, pageSize int) (gc.ListPage, error) {
	if pageSize <= 0 || pageSize > gc.MaxPageSize {
		pageSize = gc.MaxPageSize
	}
	call := g.svc.Users.Messages.List("me").Q(q.Raw).MaxResults(int64(pageSize))
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	res, err := call.Context(ctx).Do()
	if err != nil {
		return gc.ListPage{}, gc.Classify("list messages", err)
	}
	page := gc.ListPage{
		NextPageToken: res.NextPageToken,
		SizeEstimate:  res.ResultSizeEstimate,
	}
	for _, m := range res.Messages {
		page.IDs = append(page.IDs, gc.MessageID(m.Id))
	}
	return page, nil
}

func (g *googleClient) GetMetadata(ctx context.Context, id gc.MessageID, headers []string) (gc.MessageMeta, error) {
	msg, err := g.svc.Users.Messages.Get("me", string(id)).
		Format("metadata").
		MetadataHeaders(headers...).
		Context(ctx).Do()
	if err != nil {
		return gc.MessageMeta{}, gc.Classify("get metadata", err)
	}
	meta := gc.MessageMeta{
		ID:           id,
		ThreadID:     msg.ThreadId,
		Snippet:      msg.Snippet,
		SizeEstimate: msg.SizeEstimate,
		Headers:      map[string]string{},
		Labels:       toLabelIDs(msg.LabelIds),
	}
	if msg.Payload != nil {
		for _, hd := range msg.Payload.Headers {
			meta.Headers[hd.Name] = hd.Value
		}
	}
	return meta, nil
}

func (g *googleClient) BatchModify(ctx context.Context, ids []gc.MessageID, ops gc.ModifyOps) error {
	req := &gmailapi.BatchModifyMessagesRequest{Ids: toStrings(ids)}
	if len(ops.AddLabels) > 0 {
		req.AddLabelIds = labelStrings(ops.AddLabels)
	}
	if len(ops.RemoveLabels) > 0 {
		req.RemoveLabelIds = labelStrings(ops.RemoveLabels)
	}
	err := g.svc.Users.Messages.BatchModify("me", req).Context(ctx).Do()
	return gc.Classify("batch modify", err)
}

func (g *googleClient) Delete(ctx context.Context, id gc.MessageID) error {
	err := g.svc.Users.Messages.Delete("me", string(id)).Context(ctx).Do()
	return gc.Classify("delete message", err)
}

func (g *googleClient) GetProfile(ctx context.Context) (gc.Profile, error) {
	res, err := g.svc.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return gc.Profile{}, gc.Classify("get profile", err)
	}
	return gc.Profile{
		Address:       res.EmailAddress,
		TotalMessages: res.MessagesTotal,
		TotalThreads:  res.ThreadsTotal,
	}, nil
}

func toStrings(ids []gc.MessageID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func labelStrings(labels []gc.LabelID) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = string(l)
	}
	return out
}

func toLabelIDs(raw []string) []gc.LabelID {
	if len(raw) == 0 {
		return nil
	}
	out := make([]gc.LabelID, len(raw))
	for i, l := range raw {
		out[i] = gc.LabelID(l)
	}
	return out
}
