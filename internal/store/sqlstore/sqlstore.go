// Package sqlstore keeps conversation documents in a SQL table, one JSON
// document per row, with a membership table for per-participant queries.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fuwachat/internal/logger"
	"fuwachat/internal/model"
	"fuwachat/internal/store"
)

// maxSaveAttempts bounds the compare-and-set retry loop in Save.
const maxSaveAttempts = 5

// Store implements store.Documents. The *sql.DB is owned by the caller.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// New wraps db. Call Migrate before first use.
func New(db *sql.DB, d Dialect) *Store {
	return &Store{db: db, dialect: d}
}

var _ store.Documents = (*Store)(nil)

// Migrate creates the tables when missing.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.Schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, store.ErrStoreUnavailable, err)
}

func (s *Store) Load(ctx context.Context, id string) (model.Conversation, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, "SELECT doc FROM conversations WHERE id = ?", id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Conversation{}, fmt.Errorf("conversation %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return model.Conversation{}, unavailable("load conversation "+id, err)
	}
	return store.DecodeConversation([]byte(doc))
}

func (s *Store) Has(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM conversations WHERE id = ?)", id).Scan(&exists)
	if err != nil {
		return false, unavailable("check conversation "+id, err)
	}
	return exists, nil
}

// Save merges conv into the stored row. Concurrent writers are serialized
// with a compare-and-set on the revision column; a lost race reloads and
// merges again.
func (s *Store) Save(ctx context.Context, conv model.Conversation, now time.Time) (model.Conversation, error) {
	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		merged, ok, err := s.trySave(ctx, conv, now)
		if err != nil {
			return model.Conversation{}, err
		}
		if ok {
			return merged, nil
		}
		logger.Debug("sql_save_conflict", "conversation", conv.ID, "attempt", attempt)
	}
	return model.Conversation{}, fmt.Errorf("save conversation %s: %w: too many concurrent writers", conv.ID, store.ErrStoreUnavailable)
}

func (s *Store) trySave(ctx context.Context, conv model.Conversation, now time.Time) (model.Conversation, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Conversation{}, false, unavailable("begin", err)
	}
	defer tx.Rollback()

	var stored *model.Conversation
	var doc string
	err = tx.QueryRowContext(ctx, "SELECT doc FROM conversations WHERE id = ?", conv.ID).Scan(&doc)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if conv.Participants == nil {
			return model.Conversation{}, false, fmt.Errorf("conversation %s: %w", conv.ID, store.ErrNotFound)
		}
	case err != nil:
		return model.Conversation{}, false, unavailable("load conversation "+conv.ID, err)
	default:
		c, err := store.DecodeConversation([]byte(doc))
		if err != nil {
			return model.Conversation{}, false, err
		}
		stored = &c
	}

	merged := store.Merge(stored, conv, now)
	raw, err := store.EncodeConversation(merged)
	if err != nil {
		return model.Conversation{}, false, fmt.Errorf("encode conversation %s: %w", conv.ID, err)
	}

	var res sql.Result
	if stored == nil {
		res, err = tx.ExecContext(ctx, s.dialect.InsertDoc, merged.ID, string(raw), merged.Revision, merged.UpdatedAt)
	} else {
		res, err = tx.ExecContext(ctx,
			"UPDATE conversations SET doc = ?, revision = ?, updated_at = ? WHERE id = ? AND revision = ?",
			string(raw), merged.Revision, merged.UpdatedAt, merged.ID, stored.Revision)
	}
	if err != nil {
		return model.Conversation{}, false, unavailable("write conversation "+conv.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Conversation{}, false, unavailable("write conversation "+conv.ID, err)
	}
	if n == 0 {
		return model.Conversation{}, false, nil
	}

	for _, p := range merged.Participants {
		if _, err := tx.ExecContext(ctx, s.dialect.InsertMember, p, merged.ID); err != nil {
			return model.Conversation{}, false, unavailable("write membership "+conv.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return model.Conversation{}, false, unavailable("commit conversation "+conv.ID, err)
	}
	return merged, true, nil
}

func (s *Store) ListByParticipant(ctx context.Context, participant string) ([]model.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.doc FROM conversations c
		JOIN conversation_members m ON m.conversation_id = c.id
		WHERE m.participant = ?
		ORDER BY c.id`, participant)
	if err != nil {
		return nil, unavailable("list conversations of "+participant, err)
	}
	defer rows.Close()

	out := make([]model.Conversation, 0)
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, unavailable("scan conversation", err)
		}
		conv, err := store.DecodeConversation([]byte(doc))
		if err != nil {
			logger.Warn("sql_conversation_skipped", "participant", participant, "error", err)
			continue
		}
		out = append(out, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list conversations of "+participant, err)
	}
	return out, nil
}

// Close is a no-op; the owner of the *sql.DB closes it.
func (s *Store) Close() error { return nil }
