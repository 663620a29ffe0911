// Package store is the only path to durable conversation state. It defines
// the adapter contract the sessions and directories use, the document
// parsing rules applied at the boundary, and the in-process change feed
// shared by every backend.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"fuwachat/internal/model"
)

var (
	// ErrStoreUnavailable is a transient infrastructure fault; retry.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrNotFound means the requested conversation does not exist.
	ErrNotFound = errors.New("conversation not found")
	// ErrMalformedDocument means a stored or pushed payload failed parsing.
	ErrMalformedDocument = errors.New("malformed conversation document")
)

// Adapter is the conversation store as seen by sessions and directories.
type Adapter interface {
	Get(ctx context.Context, id string) (model.Conversation, error)
	// Put upserts conv, merging per top-level field, and returns the stored
	// document. It never returns ErrNotFound.
	Put(ctx context.Context, conv model.Conversation) (model.Conversation, error)
	Exists(ctx context.Context, id string) (bool, error)
	// SubscribeConversation pushes the full document on every change. The
	// current state, when present, is pushed before it returns.
	SubscribeConversation(ctx context.Context, id string, fn func(model.Conversation)) (Cancel, error)
	// SubscribeConversationsOf pushes the full set of conversations the
	// participant belongs to whenever any of them changes. The current set
	// is pushed before it returns.
	SubscribeConversationsOf(ctx context.Context, participant string, fn func([]model.Conversation)) (Cancel, error)
}

// Documents is a raw durable backend. Save must merge with the stored
// document (see Merge) inside the backend's own critical section so that
// revisions are assigned without gaps or duplicates.
type Documents interface {
	Load(ctx context.Context, id string) (model.Conversation, error)
	Save(ctx context.Context, conv model.Conversation, now time.Time) (model.Conversation, error)
	Has(ctx context.Context, id string) (bool, error)
	ListByParticipant(ctx context.Context, participant string) ([]model.Conversation, error)
	Close() error
}

// Cancel stops a subscription. Calling it more than once is safe.
type Cancel func()

func once(f func()) Cancel {
	var o sync.Once
	return func() { o.Do(f) }
}
