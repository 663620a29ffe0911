package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fuwachat/internal/model"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestAppend(t *testing.T) {
	l := New(nil)
	m, err := l.Append("U1", "hello", "")
	require.NoError(t, err)

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "hello", m.Content)
	assert.Equal(t, "U1", m.Sender)
	assert.False(t, m.IsEdited)
	assert.False(t, m.IsDeleted)
	assert.False(t, m.Timestamp.IsZero())
	assert.Equal(t, 1, l.Len())
}

func TestAppend_EmptyContent(t *testing.T) {
	l := New(nil)
	_, err := l.Append("U1", "", "")
	assert.ErrorIs(t, err, ErrEmptyContent)
	assert.Equal(t, 0, l.Len())
}

func TestAppend_UnknownReplyTarget(t *testing.T) {
	l := New(nil)
	_, err := l.Append("U1", "hi", "does-not-exist")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestAppend_SameInstantStaysOrderedAndUnique(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	l := New(nil, WithClock(fixedClock(now)))

	ids := map[string]bool{}
	var prev time.Time
	for i := 0; i < 5; i++ {
		m, err := l.Append("U1", "x", "")
		require.NoError(t, err)
		assert.False(t, ids[m.ID], "duplicate id %s", m.ID)
		ids[m.ID] = true
		if i > 0 {
			assert.True(t, m.Timestamp.After(prev))
		}
		prev = m.Timestamp
	}
}

func TestAppend_ClockGoingBackwards(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	l := New([]model.Message{{ID: "1", Content: "old", Sender: "U2", Timestamp: base}},
		WithClock(fixedClock(base.Add(-time.Hour))))

	m, err := l.Append("U1", "new", "")
	require.NoError(t, err)
	assert.True(t, m.Timestamp.After(base))
	last, _ := l.Last()
	assert.Equal(t, m.ID, last.ID)
}

func TestResolveReply(t *testing.T) {
	l := New(nil)
	m1, err := l.Append("U1", "hello", "")
	require.NoError(t, err)
	m2, err := l.Append("U2", "hi", m1.ID)
	require.NoError(t, err)

	got, ok := l.ResolveReply(m2)
	require.True(t, ok)
	assert.Equal(t, m1, got)

	_, ok = l.ResolveReply(model.Message{Reply: "random-unknown-id"})
	assert.False(t, ok)

	_, ok = l.ResolveReply(m1)
	assert.False(t, ok)
}

func TestEdit(t *testing.T) {
	l := New(nil)
	m, _ := l.Append("U1", "helo", "")

	edited, err := l.EditOrDelete(m.ID, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", edited.Content)
	assert.True(t, edited.IsEdited)
	assert.False(t, edited.IsDeleted)
	assert.Equal(t, m.Timestamp, edited.Timestamp)
}

func TestDeleteThenEdit(t *testing.T) {
	l := New(nil)
	m, _ := l.Append("U1", "hello", "")

	deleted, err := l.EditOrDelete(m.ID, "")
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
	assert.Equal(t, model.Tombstone, deleted.Content)

	_, err = l.EditOrDelete(m.ID, "anything")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = l.EditOrDelete(m.ID, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, _ := l.Get(m.ID)
	assert.Equal(t, model.Tombstone, got.Content)
}

func TestEditOrDelete_NotFound(t *testing.T) {
	l := New(nil)
	_, err := l.EditOrDelete("missing", "x")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestReplyToDeletedStillResolves(t *testing.T) {
	l := New(nil)
	m1, _ := l.Append("U1", "hello", "")
	m2, _ := l.Append("U2", "hi", m1.ID)
	_, err := l.EditOrDelete(m1.ID, "")
	require.NoError(t, err)

	got, ok := l.ResolveReply(m2)
	require.True(t, ok)
	assert.True(t, got.IsDeleted)
}

func TestMessagesIsACopy(t *testing.T) {
	l := New(nil)
	_, _ = l.Append("U1", "hello", "")
	msgs := l.Messages()
	msgs[0].Content = "tampered"

	got, _ := l.Last()
	assert.Equal(t, "hello", got.Content)
	assert.NotNil(t, New(nil).Messages())
}

func TestRestoreKeepsIdentity(t *testing.T) {
	src := New(nil, WithClock(fixedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))))
	m, _ := src.Append("U1", "hello", "")

	l := New(nil)
	assert.True(t, l.Restore(m))
	assert.False(t, l.Restore(m), "already present")
	got, ok := l.Get(m.ID)
	require.True(t, ok)
	assert.Equal(t, m, got)
	assert.Equal(t, 1, l.Len())
}

func TestRestoreKeepsTimestampOrder(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	local := New(nil, WithClock(fixedClock(base.Add(time.Second))))
	mine, _ := local.Append("U1", "mine", "")

	remote := New(nil, WithClock(fixedClock(base)))
	early, _ := remote.Append("U2", "early", "")
	remote.now = fixedClock(base.Add(2 * time.Second))
	late, _ := remote.Append("U2", "late", "")

	l := New(remote.Messages())
	require.True(t, l.Restore(mine))

	ids := make([]string, 0, l.Len())
	for _, m := range l.Messages() {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{early.ID, mine.ID, late.ID}, ids)

	got, ok := l.Get(late.ID)
	require.True(t, ok)
	assert.Equal(t, "late", got.Content, "index follows the shifted slot")

	next, err := l.Append("U1", "after", "")
	require.NoError(t, err)
	assert.True(t, next.Timestamp.After(late.Timestamp))
}
