// Package ledger holds the ordered message list of one conversation and the
// mutations allowed on it.
package ledger

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"fuwachat/internal/model"
)

var (
	ErrMessageNotFound   = errors.New("message not found")
	ErrInvalidTransition = errors.New("message was deleted and cannot be changed")
	ErrEmptyContent      = errors.New("content is required")
)

// Ledger is not safe for concurrent use; the owning session serializes access.
type Ledger struct {
	messages []model.Message
	index    map[string]int
	now      func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides time.Now for id and timestamp assignment.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New builds a ledger over a copy of messages, keeping their order.
func New(messages []model.Message, opts ...Option) *Ledger {
	l := &Ledger{
		messages: append([]model.Message(nil), messages...),
		index:    make(map[string]int, len(messages)),
		now:      time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	for i, m := range l.messages {
		l.index[m.ID] = i
	}
	return l
}

// Append adds a new message at the tail. replyTo, when set, must name a
// message already in the ledger.
func (l *Ledger) Append(sender, content, replyTo string) (model.Message, error) {
	if content == "" {
		return model.Message{}, ErrEmptyContent
	}
	if replyTo != "" {
		if _, ok := l.index[replyTo]; !ok {
			return model.Message{}, fmt.Errorf("reply target %s: %w", replyTo, ErrMessageNotFound)
		}
	}

	ts := l.now().UTC()
	if last, ok := l.Last(); ok && !ts.After(last.Timestamp) {
		ts = last.Timestamp.Add(time.Nanosecond)
	}
	id := ts.UnixNano()
	for {
		if _, taken := l.index[strconv.FormatInt(id, 10)]; !taken {
			break
		}
		id++
	}

	m := model.Message{
		ID:        strconv.FormatInt(id, 10),
		Content:   content,
		Sender:    sender,
		Timestamp: ts,
		Reply:     replyTo,
	}
	l.index[m.ID] = len(l.messages)
	l.messages = append(l.messages, m)
	return m, nil
}

// Restore puts back a message created earlier, keeping its id and
// timestamp. It goes after every message not newer than it, so the
// sequence stays ordered by timestamp. It reports false when the id is
// already present.
func (l *Ledger) Restore(m model.Message) bool {
	if _, ok := l.index[m.ID]; ok {
		return false
	}
	at := len(l.messages)
	for at > 0 && l.messages[at-1].Timestamp.After(m.Timestamp) {
		at--
	}
	l.messages = append(l.messages, model.Message{})
	copy(l.messages[at+1:], l.messages[at:])
	l.messages[at] = m
	for i := at; i < len(l.messages); i++ {
		l.index[l.messages[i].ID] = i
	}
	return true
}

// EditOrDelete replaces the content of a message. Non-empty content is an
// edit; empty content tombstones the message.
func (l *Ledger) EditOrDelete(id, content string) (model.Message, error) {
	i, ok := l.index[id]
	if !ok {
		return model.Message{}, fmt.Errorf("message %s: %w", id, ErrMessageNotFound)
	}
	m := &l.messages[i]
	if m.IsDeleted {
		return model.Message{}, fmt.Errorf("message %s: %w", id, ErrInvalidTransition)
	}
	if content == "" {
		m.Content = model.Tombstone
		m.IsDeleted = true
	} else {
		m.Content = content
		m.IsEdited = true
	}
	return *m, nil
}

// ResolveReply returns the message m replies to. Missing targets are not an
// error: the reference may be stale or point into another conversation.
func (l *Ledger) ResolveReply(m model.Message) (model.Message, bool) {
	if m.Reply == "" {
		return model.Message{}, false
	}
	return l.Get(m.Reply)
}

// Get looks a message up by id.
func (l *Ledger) Get(id string) (model.Message, bool) {
	i, ok := l.index[id]
	if !ok {
		return model.Message{}, false
	}
	return l.messages[i], true
}

// Last returns the tail message.
func (l *Ledger) Last() (model.Message, bool) {
	if len(l.messages) == 0 {
		return model.Message{}, false
	}
	return l.messages[len(l.messages)-1], true
}

// Len returns the number of messages, deleted ones included.
func (l *Ledger) Len() int { return len(l.messages) }

// Messages returns a copy of the ordered message list. It is never nil.
func (l *Ledger) Messages() []model.Message {
	out := make([]model.Message, len(l.messages))
	copy(out, l.messages)
	return out
}
