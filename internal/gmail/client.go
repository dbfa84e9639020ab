package gmail

import "context"

// Client is the narrow Gmail surface required by mailpurge. Every method is a
// single remote round trip; Delete has no batch primitive, so bulk permanent
// deletion loops per id.
type Client interface {
	List(ctx context.Context, q Query, pageToken string, pageSize int) (ListPage, error)
	GetMetadata(ctx context.Context, id MessageID, headers []string) (MessageMeta, error)
	BatchModify(ctx context.Context, ids []MessageID, ops ModifyOps) error
	Delete(ctx context.Context, id MessageID) error
	GetProfile(ctx context.Context) (Profile, error)
}
