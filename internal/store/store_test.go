package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fuwachat/internal/metrics"
	"fuwachat/internal/model"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newConv(id string, ps ...string) model.Conversation {
	return model.Conversation{ID: id, Participants: ps}
}

func msg(id, sender, content string, ts time.Time) model.Message {
	return model.Message{ID: id, Sender: sender, Content: content, Timestamp: ts}
}

func TestMerge_NewDocument(t *testing.T) {
	got := Merge(nil, newConv("a:b", "a", "b"), t0)
	assert.Equal(t, int64(1), got.Revision)
	assert.NotNil(t, got.Messages)
	assert.Empty(t, got.Messages)
	assert.Equal(t, t0, got.CreatedAt)
	assert.Equal(t, t0, got.UpdatedAt)
}

func TestMerge_LastWriterWinsPerField(t *testing.T) {
	stored := Merge(nil, model.Conversation{
		ID:           "g1",
		Participants: []string{"a", "b", "c"},
		DisplayName:  "climbing",
		Description:  "weekend trips",
		Messages:     []model.Message{msg("1", "a", "hi", t0)},
	}, t0)

	later := t0.Add(time.Minute)
	got := Merge(&stored, model.Conversation{ID: "g1", DisplayName: "bouldering"}, later)
	assert.Equal(t, "bouldering", got.DisplayName)
	assert.Equal(t, "weekend trips", got.Description)
	assert.Equal(t, []string{"a", "b", "c"}, got.Participants)
	assert.Len(t, got.Messages, 1, "nil messages keep the stored sequence")
	assert.Equal(t, int64(2), got.Revision)
	assert.Equal(t, t0, got.CreatedAt)
	assert.Equal(t, later, got.UpdatedAt)

	got = Merge(&got, model.Conversation{ID: "g1", Messages: []model.Message{}}, later)
	assert.Empty(t, got.Messages, "non-nil messages replace wholesale")
}

func TestValidatePut(t *testing.T) {
	assert.ErrorIs(t, ValidatePut(model.Conversation{}, false), ErrMalformedDocument)
	assert.ErrorIs(t, ValidatePut(newConv("x", "a"), false), ErrMalformedDocument)
	assert.ErrorIs(t, ValidatePut(newConv("x", "a", "a"), false), ErrMalformedDocument)
	assert.NoError(t, ValidatePut(model.Conversation{ID: "x"}, true))

	dup := newConv("x", "a", "b")
	dup.Messages = []model.Message{msg("1", "a", "x", t0), msg("1", "b", "y", t0)}
	assert.ErrorIs(t, ValidatePut(dup, false), ErrMalformedDocument)
}

func TestDecodeConversation_Coerces(t *testing.T) {
	raw := `{
		"id": "a:b",
		"participants": ["a", "b"],
		"messages": [
			{"id": 1767268800000000000, "sender": "a", "content": "hello", "timestamp": 1767268800000},
			{"id": "2", "sender": "b", "content": "secret", "timestamp": "2026-01-01T12:00:01Z", "is_deleted": true, "reply": 1767268800000000000}
		],
		"revision": 4
	}`
	conv, err := DecodeConversation([]byte(raw))
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "1767268800000000000", conv.Messages[0].ID)
	assert.Equal(t, time.UnixMilli(1767268800000).UTC(), conv.Messages[0].Timestamp)
	assert.Equal(t, model.Tombstone, conv.Messages[1].Content)
	assert.Equal(t, "1767268800000000000", conv.Messages[1].Reply)
	assert.Equal(t, int64(4), conv.Revision)
}

func TestDecodeConversation_Rejects(t *testing.T) {
	cases := map[string]string{
		"not json":          `{`,
		"no id":             `{"participants":["a","b"]}`,
		"one participant":   `{"id":"x","participants":["a"]}`,
		"participants type": `{"id":"x","participants":"a,b"}`,
		"message no id":     `{"id":"x","participants":["a","b"],"messages":[{"sender":"a","timestamp":1}]}`,
		"message no sender": `{"id":"x","participants":["a","b"],"messages":[{"id":"1","timestamp":1}]}`,
		"no timestamp":      `{"id":"x","participants":["a","b"],"messages":[{"id":"1","sender":"a"}]}`,
		"bad timestamp":     `{"id":"x","participants":["a","b"],"messages":[{"id":"1","sender":"a","timestamp":true}]}`,
		"duplicate ids":     `{"id":"x","participants":["a","b"],"messages":[{"id":"1","sender":"a","timestamp":1},{"id":"1","sender":"b","timestamp":2}]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeConversation([]byte(raw))
			assert.ErrorIs(t, err, ErrMalformedDocument)
		})
	}
}

func TestEncodeDecodeKeepsDocument(t *testing.T) {
	conv := Merge(nil, newConv("a:b", "a", "b"), t0)
	conv.Messages = []model.Message{msg("10", "a", "hello", t0), {ID: "11", Sender: "b", Content: "hi", Timestamp: t0.Add(time.Second), Reply: "10", IsEdited: true}}
	raw, err := EncodeConversation(conv)
	require.NoError(t, err)
	got, err := DecodeConversation(raw)
	require.NoError(t, err)
	assert.Equal(t, conv, got)
}

func TestService_GetPutExists(t *testing.T) {
	ctx := context.Background()
	svc := New(NewMemory(), WithClock(func() time.Time { return t0 }))

	_, err := svc.Get(ctx, "a:b")
	assert.ErrorIs(t, err, ErrNotFound)
	ok, err := svc.Exists(ctx, "a:b")
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := svc.Put(ctx, newConv("a:b", "a", "b"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Revision)

	ok, _ = svc.Exists(ctx, "a:b")
	assert.True(t, ok)

	_, err = svc.Put(ctx, model.Conversation{ID: "ghost"})
	assert.ErrorIs(t, err, ErrMalformedDocument)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestService_SubscribeConversation(t *testing.T) {
	ctx := context.Background()
	svc := New(NewMemory())

	var pushes []model.Conversation
	cancel, err := svc.SubscribeConversation(ctx, "a:b", func(c model.Conversation) { pushes = append(pushes, c) })
	require.NoError(t, err)
	assert.Empty(t, pushes, "nothing to deliver before the document exists")

	_, err = svc.Put(ctx, newConv("a:b", "a", "b"))
	require.NoError(t, err)
	c := newConv("a:b", "a", "b")
	c.Messages = []model.Message{msg("1", "a", "hello", t0)}
	_, err = svc.Put(ctx, c)
	require.NoError(t, err)

	require.Len(t, pushes, 2)
	assert.Equal(t, int64(2), pushes[1].Revision)
	assert.Len(t, pushes[1].Messages, 1)

	cancel()
	cancel()
	_, _ = svc.Put(ctx, c)
	assert.Len(t, pushes, 2)
	assert.Equal(t, 0, svc.Feed().Watchers())

	var initial []model.Conversation
	cancel, err = svc.SubscribeConversation(ctx, "a:b", func(c model.Conversation) { initial = append(initial, c) })
	require.NoError(t, err)
	defer cancel()
	require.Len(t, initial, 1, "existing state is delivered on subscribe")
}

func TestService_SubscribeConversationsOf(t *testing.T) {
	ctx := context.Background()
	svc := New(NewMemory())
	_, _ = svc.Put(ctx, newConv("a:b", "a", "b"))

	var sets [][]model.Conversation
	cancel, err := svc.SubscribeConversationsOf(ctx, "a", func(cs []model.Conversation) { sets = append(sets, cs) })
	require.NoError(t, err)
	defer cancel()
	require.Len(t, sets, 1)
	assert.Len(t, sets[0], 1)

	_, _ = svc.Put(ctx, newConv("a:c", "a", "c"))
	_, _ = svc.Put(ctx, newConv("b:c", "b", "c"))
	require.Len(t, sets, 2, "b:c does not involve a")
	assert.Len(t, sets[1], 2)
}

type recordingRelay struct{ ids []string }

func (r *recordingRelay) Publish(_ context.Context, c model.Conversation) error {
	r.ids = append(r.ids, c.ID)
	return nil
}

func TestService_RelayAndNotify(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	relay := &recordingRelay{}
	writer := New(mem, WithRelay(relay))
	reader := New(mem)

	var pushes int
	cancel, _ := reader.SubscribeConversation(ctx, "a:b", func(model.Conversation) { pushes++ })
	defer cancel()

	_, err := writer.Put(ctx, newConv("a:b", "a", "b"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a:b"}, relay.ids)
	assert.Equal(t, 0, pushes, "separate feed, no relay wired to reader yet")

	require.NoError(t, reader.Notify(ctx, "a:b"))
	assert.Equal(t, 1, pushes)
	assert.ErrorIs(t, reader.Notify(ctx, "missing"), ErrNotFound)
}

func TestInstrumentCountsResults(t *testing.T) {
	ctx := context.Background()
	a := Instrument(New(NewMemory()), "memory-test")

	_, _ = a.Get(ctx, "missing")
	_, _ = a.Put(ctx, newConv("a:b", "a", "b"))
	_, _ = a.Get(ctx, "a:b")

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StoreOps.WithLabelValues("memory-test", "get", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StoreOps.WithLabelValues("memory-test", "get", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StoreOps.WithLabelValues("memory-test", "put", "ok")))
}
