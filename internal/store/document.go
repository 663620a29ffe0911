package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fuwachat/internal/model"
)

// Merge applies incoming over stored with last-writer-wins per top-level
// field. Empty optional strings and nil slices keep the stored value; a
// non-nil message slice replaces the stored sequence wholesale. stored is nil
// for a brand-new document.
func Merge(stored *model.Conversation, incoming model.Conversation, now time.Time) model.Conversation {
	now = now.UTC()
	if stored == nil {
		out := incoming.Clone()
		if out.Messages == nil {
			out.Messages = []model.Message{}
		}
		if out.CreatedAt.IsZero() {
			out.CreatedAt = now
		}
		out.UpdatedAt = now
		out.Revision = 1
		return out
	}

	out := stored.Clone()
	if incoming.Participants != nil {
		out.Participants = append([]string(nil), incoming.Participants...)
	}
	if incoming.Messages != nil {
		out.Messages = append([]model.Message(nil), incoming.Messages...)
	}
	if incoming.DisplayName != "" {
		out.DisplayName = incoming.DisplayName
	}
	if incoming.Description != "" {
		out.Description = incoming.Description
	}
	if incoming.Icon != "" {
		out.Icon = incoming.Icon
	}
	out.UpdatedAt = now
	out.Revision = stored.Revision + 1
	return out
}

// ValidatePut checks a document about to be written. Participants may be
// omitted only when the document already exists.
func ValidatePut(conv model.Conversation, exists bool) error {
	if strings.TrimSpace(conv.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrMalformedDocument)
	}
	if conv.Participants != nil || !exists {
		if err := validateParticipants(conv.Participants); err != nil {
			return err
		}
	}
	seen := make(map[string]bool, len(conv.Messages))
	for _, m := range conv.Messages {
		if m.ID == "" || seen[m.ID] {
			return fmt.Errorf("%w: missing or duplicate message id %q", ErrMalformedDocument, m.ID)
		}
		seen[m.ID] = true
	}
	return nil
}

func validateParticipants(ps []string) error {
	if len(ps) < 2 {
		return fmt.Errorf("%w: needs at least two participants", ErrMalformedDocument)
	}
	seen := make(map[string]bool, len(ps))
	for _, p := range ps {
		if p == "" || seen[p] {
			return fmt.Errorf("%w: empty or duplicate participant %q", ErrMalformedDocument, p)
		}
		seen[p] = true
	}
	return nil
}

// EncodeConversation renders the canonical JSON stored by the backends.
func EncodeConversation(conv model.Conversation) ([]byte, error) {
	return json.Marshal(conv)
}

type wireConversation struct {
	ID           string          `json:"id"`
	Participants []string        `json:"participants"`
	Messages     []wireMessage   `json:"messages"`
	DisplayName  string          `json:"display_name"`
	Description  string          `json:"description"`
	Icon         string          `json:"icon"`
	CreatedAt    json.RawMessage `json:"created_at"`
	UpdatedAt    json.RawMessage `json:"updated_at"`
	Revision     json.RawMessage `json:"revision"`
}

type wireMessage struct {
	ID        json.RawMessage `json:"id"`
	Content   string          `json:"content"`
	Sender    string          `json:"sender"`
	Timestamp json.RawMessage `json:"timestamp"`
	IsEdited  bool            `json:"is_edited"`
	IsDeleted bool            `json:"is_deleted"`
	Reply     json.RawMessage `json:"reply"`
}

// DecodeConversation parses a raw document into the strict model. Ids may be
// strings or numbers and timestamps RFC 3339 strings or Unix milliseconds;
// anything else that does not fit fails with ErrMalformedDocument.
func DecodeConversation(raw []byte) (model.Conversation, error) {
	var w wireConversation
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&w); err != nil {
		return model.Conversation{}, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if strings.TrimSpace(w.ID) == "" {
		return model.Conversation{}, fmt.Errorf("%w: empty id", ErrMalformedDocument)
	}
	if err := validateParticipants(w.Participants); err != nil {
		return model.Conversation{}, fmt.Errorf("conversation %s: %w", w.ID, err)
	}

	conv := model.Conversation{
		ID:           w.ID,
		Participants: w.Participants,
		Messages:     make([]model.Message, 0, len(w.Messages)),
		DisplayName:  w.DisplayName,
		Description:  w.Description,
		Icon:         w.Icon,
	}
	var err error
	if conv.CreatedAt, err = coerceTime(w.CreatedAt, true); err != nil {
		return model.Conversation{}, fmt.Errorf("conversation %s created_at: %w", w.ID, err)
	}
	if conv.UpdatedAt, err = coerceTime(w.UpdatedAt, true); err != nil {
		return model.Conversation{}, fmt.Errorf("conversation %s updated_at: %w", w.ID, err)
	}
	if len(w.Revision) > 0 && string(w.Revision) != "null" {
		if err := json.Unmarshal(w.Revision, &conv.Revision); err != nil {
			return model.Conversation{}, fmt.Errorf("%w: revision: %v", ErrMalformedDocument, err)
		}
	}

	seen := make(map[string]bool, len(w.Messages))
	for i, wm := range w.Messages {
		id, err := coerceString(wm.ID)
		if err != nil || id == "" {
			return model.Conversation{}, fmt.Errorf("%w: message %d has no usable id", ErrMalformedDocument, i)
		}
		if seen[id] {
			return model.Conversation{}, fmt.Errorf("%w: duplicate message id %s", ErrMalformedDocument, id)
		}
		seen[id] = true
		if wm.Sender == "" {
			return model.Conversation{}, fmt.Errorf("%w: message %s has no sender", ErrMalformedDocument, id)
		}
		ts, err := coerceTime(wm.Timestamp, false)
		if err != nil {
			return model.Conversation{}, fmt.Errorf("message %s timestamp: %w", id, err)
		}
		reply, err := coerceString(wm.Reply)
		if err != nil {
			return model.Conversation{}, fmt.Errorf("%w: message %s reply: %v", ErrMalformedDocument, id, err)
		}
		m := model.Message{
			ID:        id,
			Content:   wm.Content,
			Sender:    wm.Sender,
			Timestamp: ts,
			IsEdited:  wm.IsEdited,
			IsDeleted: wm.IsDeleted,
			Reply:     reply,
		}
		if m.IsDeleted {
			m.Content = model.Tombstone
		}
		conv.Messages = append(conv.Messages, m)
	}
	return conv, nil
}

func coerceString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("expected string or number, got %s", raw)
	}
	return n.String(), nil
}

func coerceTime(raw json.RawMessage, optional bool) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		if optional {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("%w: missing timestamp", ErrMalformedDocument)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
		}
		return t.UTC(), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return time.Time{}, fmt.Errorf("%w: unsupported timestamp %s", ErrMalformedDocument, raw)
	}
	ms, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}
