package gmail

import "time"

type MessageID string
type LabelID string

// System labels used by trash and restore operations.
const (
	LabelTrash  LabelID = "TRASH"
	LabelInbox  LabelID = "INBOX"
	LabelUnread LabelID = "UNREAD"
)

// MaxPageSize is the largest page the list endpoint accepts.
const MaxPageSize = 500

// MaxBatchModify is the largest id set a single batchModify call accepts.
const MaxBatchModify = 1000

type MessageMeta struct {
	ID           MessageID
	ThreadID     string
	Labels       []LabelID
	Snippet      string
	Headers      map[string]string // From, To, Subject, Date, etc.
	SizeEstimate int64
	Date         time.Time
}

type ModifyOps struct {
	AddLabels    []LabelID
	RemoveLabels []LabelID
}

// TrashOps moves messages to trash; UntrashOps restores them to the inbox.
func TrashOps() ModifyOps {
	return ModifyOps{AddLabels: []LabelID{LabelTrash}, RemoveLabels: []LabelID{LabelInbox}}
}

func UntrashOps() ModifyOps {
	return ModifyOps{AddLabels: []LabelID{LabelInbox}, RemoveLabels: []LabelID{LabelTrash}}
}

type Query struct {
	Raw string // Gmail query string, already formed (e.g., `label:promo older_than:30d`)
}

// InTrash restricts the query to messages currently in the trash.
func (q Query) InTrash() Query {
	if q.Raw == "" {
		return Query{Raw: "in:trash"}
	}
	return Query{Raw: "in:trash (" + q.Raw + ")"}
}

type ListPage struct {
	IDs           []MessageID
	NextPageToken string
	SizeEstimate  int64
}

type Profile struct {
	Address       string
	TotalMessages int64
	TotalThreads  int64
}
