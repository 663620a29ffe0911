package directory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fuwachat/internal/model"
	"fuwachat/internal/profile"
	"fuwachat/internal/session"
	"fuwachat/internal/store"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func profiles() *profile.Static {
	p := profile.NewStatic()
	p.Add(model.Profile{ID: "U1", Name: "Alice", Icon: "a.png"}, "U2", "U3", "U4")
	p.Add(model.Profile{ID: "U2", Name: "Bob", Icon: "b.png"}, "U1")
	p.Add(model.Profile{ID: "U3", Name: "Carol"}, "U1")
	p.Add(model.Profile{ID: "U4", Name: "Ann"}, "U1")
	return p
}

func conv(id string, last time.Time, ps ...string) model.Conversation {
	return model.Conversation{
		ID:           id,
		Participants: ps,
		Messages:     []model.Message{{ID: "1", Sender: ps[0], Content: "x", Timestamp: last}},
		Revision:     1,
	}
}

func titles(es []model.DirectoryEntry) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.Title
	}
	return out
}

func TestBuildOrderingAndPlaceholders(t *testing.T) {
	ctx := context.Background()
	convs := []model.Conversation{
		conv("U1:U3", t0, "U1", "U3"),
		conv("U1:U2", t0.Add(time.Minute), "U1", "U2"),
	}
	es := Build(ctx, "U1", convs, []string{"U2", "U3", "U4", "U5", "U4"}, profiles())

	assert.Equal(t, []string{"Bob", "Carol", "Ann", "U5"}, titles(es))
	assert.NotNil(t, es[0].Conversation)
	assert.Equal(t, "U2", es[0].OtherParticipant)
	assert.Equal(t, "b.png", es[0].Icon, "icon defaults to the other participant's")
	assert.Nil(t, es[2].Conversation)
	assert.Nil(t, es[3].Profile, "unknown friend still listed")
}

func TestBuildGroupDisplayName(t *testing.T) {
	g := conv("g1", t0, "U1", "U2", "U3")
	g.DisplayName = "climbing"
	g.Icon = "g.png"
	es := Build(context.Background(), "U1", []model.Conversation{g}, []string{"U2"}, profiles())

	require.Len(t, es, 2, "a group does not cover the 1:1 placeholder")
	assert.Equal(t, "climbing", es[0].Title)
	assert.Equal(t, "g.png", es[0].Icon)
	assert.Equal(t, "Bob", es[1].Title)
}

func TestListQueriesStore(t *testing.T) {
	ctx := context.Background()
	svc := store.New(store.NewMemory())
	_, err := svc.Put(ctx, model.Conversation{ID: "U1:U2", Participants: []string{"U1", "U2"}})
	require.NoError(t, err)

	d := New("U1", svc, profiles())
	es, err := d.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bob", "Ann", "Carol"}, titles(es))
	assert.Equal(t, 0, svc.Feed().Watchers(), "one-shot list does not keep a subscription")

	_, ok := d.Conversation("U1:U2")
	assert.True(t, ok)
}

func TestWatchFollowsStoreAndLocalAdoption(t *testing.T) {
	ctx := context.Background()
	svc := store.New(store.NewMemory())
	d := New("U1", svc, profiles())
	defer d.Close()

	var pushes [][]model.DirectoryEntry
	stop, err := d.Watch(ctx, func(es []model.DirectoryEntry) { pushes = append(pushes, es) })
	require.NoError(t, err)
	defer stop()
	require.Len(t, pushes, 1)
	assert.Len(t, pushes[0], 3, "three placeholders")

	s := session.New("U1", svc, session.WithCatalog(d))
	defer s.Close()
	_, err = s.OpenWith(ctx, "U2")
	require.NoError(t, err)

	last := pushes[len(pushes)-1]
	require.Len(t, last, 3, "Bob appears once, attached to the new conversation")
	assert.Equal(t, "Bob", last[0].Title)
	require.NotNil(t, last[0].Conversation)
	assert.Equal(t, "U1:U2", last[0].Conversation.ID)

	_, err = s.Send(ctx, "hello", "")
	require.NoError(t, err)
	last = pushes[len(pushes)-1]
	require.NotNil(t, last[0].Conversation)
	assert.Len(t, last[0].Conversation.Messages, 1)
}

func TestAdoptDeduplicatesByRevision(t *testing.T) {
	d := New("U1", store.New(store.NewMemory()), profiles())
	c := conv("U1:U2", t0, "U1", "U2")
	c.Revision = 3
	d.Adopt(c)

	older := c
	older.Revision = 2
	older.Messages = nil
	d.Adopt(older)

	got, ok := d.Conversation("U1:U2")
	require.True(t, ok)
	assert.Equal(t, int64(3), got.Revision)
	assert.Len(t, got.Messages, 1)

	d.Adopt(conv("U2:U3", t0, "U2", "U3"))
	_, ok = d.Conversation("U2:U3")
	assert.False(t, ok, "foreign conversations are ignored")
}

func TestCloseStopsWatch(t *testing.T) {
	ctx := context.Background()
	svc := store.New(store.NewMemory())
	d := New("U1", svc, profiles())

	var n int
	_, err := d.Watch(ctx, func([]model.DirectoryEntry) { n++ })
	require.NoError(t, err)
	d.Close()
	assert.Equal(t, 0, svc.Feed().Watchers())

	_, err = svc.Put(ctx, model.Conversation{ID: "U1:U2", Participants: []string{"U1", "U2"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
