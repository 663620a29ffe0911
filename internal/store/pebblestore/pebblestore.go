// Package pebblestore keeps conversation documents in an embedded Pebble
// database.
//
// Key layout:
//
//	conv:<id>                 JSON document
//	member:<participant>\x00<id>  empty marker for ListByParticipant
package pebblestore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/dustin/go-humanize"

	"fuwachat/internal/logger"
	"fuwachat/internal/model"
	"fuwachat/internal/store"
)

const (
	convPrefix   = "conv:"
	memberPrefix = "member:"
)

// Store implements store.Documents on Pebble. Writes are serialized by mu so
// that the read-merge-write cycle sees a stable revision.
type Store struct {
	mu sync.Mutex
	db *pebble.DB
}

var _ store.Documents = (*Store)(nil)

// Open opens (or creates) a Pebble database at path.
func Open(path string) (*Store, error) {
	logger.Info("opening_pebble_db", "path", path)
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, fmt.Errorf("open pebble %s: %w: %w", path, store.ErrStoreUnavailable, err)
	}
	logger.Info("pebble_opened", "path", path)
	return &Store{db: db}, nil
}

func convKey(id string) []byte { return []byte(convPrefix + id) }

func memberKey(participant, id string) []byte {
	return []byte(memberPrefix + participant + "\x00" + id)
}

func memberBounds(participant string) (lower, upper []byte) {
	p := memberPrefix + participant
	return []byte(p + "\x00"), []byte(p + "\x01")
}

func (s *Store) load(id string) (model.Conversation, error) {
	v, closer, err := s.db.Get(convKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return model.Conversation{}, fmt.Errorf("conversation %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return model.Conversation{}, fmt.Errorf("load conversation %s: %w: %w", id, store.ErrStoreUnavailable, err)
	}
	raw := append([]byte(nil), v...)
	closer.Close()
	return store.DecodeConversation(raw)
}

func (s *Store) Load(_ context.Context, id string) (model.Conversation, error) {
	return s.load(id)
}

func (s *Store) Has(_ context.Context, id string) (bool, error) {
	_, closer, err := s.db.Get(convKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check conversation %s: %w: %w", id, store.ErrStoreUnavailable, err)
	}
	closer.Close()
	return true, nil
}

func (s *Store) Save(_ context.Context, conv model.Conversation, now time.Time) (model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stored *model.Conversation
	c, err := s.load(conv.ID)
	switch {
	case err == nil:
		stored = &c
	case errors.Is(err, store.ErrNotFound):
		if conv.Participants == nil {
			return model.Conversation{}, err
		}
	default:
		return model.Conversation{}, err
	}

	merged := store.Merge(stored, conv, now)
	raw, err := store.EncodeConversation(merged)
	if err != nil {
		return model.Conversation{}, fmt.Errorf("encode conversation %s: %w", conv.ID, err)
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(convKey(merged.ID), raw, nil); err != nil {
		return model.Conversation{}, fmt.Errorf("batch conversation %s: %w", merged.ID, err)
	}
	for _, p := range merged.Participants {
		if err := b.Set(memberKey(p, merged.ID), nil, nil); err != nil {
			return model.Conversation{}, fmt.Errorf("batch membership %s: %w", merged.ID, err)
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return model.Conversation{}, fmt.Errorf("commit conversation %s: %w: %w", merged.ID, store.ErrStoreUnavailable, err)
	}
	logger.Debug("pebble_conversation_saved", "conversation", merged.ID, "revision", merged.Revision, "size", humanize.Bytes(uint64(len(raw))))
	return merged, nil
}

func (s *Store) ListByParticipant(_ context.Context, participant string) ([]model.Conversation, error) {
	lower, upper := memberBounds(participant)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, fmt.Errorf("list conversations of %s: %w: %w", participant, store.ErrStoreUnavailable, err)
	}
	defer iter.Close()

	out := make([]model.Conversation, 0)
	for iter.First(); iter.Valid(); iter.Next() {
		id := string(iter.Key()[len(lower):])
		conv, err := s.load(id)
		if err != nil {
			if errors.Is(err, store.ErrStoreUnavailable) {
				return nil, err
			}
			logger.Warn("pebble_conversation_skipped", "participant", participant, "conversation", id, "error", err)
			continue
		}
		out = append(out, conv)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("list conversations of %s: %w: %w", participant, store.ErrStoreUnavailable, err)
	}
	return out, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return err
	}
	s.db = nil
	logger.Info("pebble_closed")
	return nil
}
