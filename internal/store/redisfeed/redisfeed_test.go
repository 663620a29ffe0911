package redisfeed

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fuwachat/internal/model"
	"fuwachat/internal/store"
)

func TestEnvelopeOrigin(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()
	a := New(rdb, "")
	b := New(rdb, "")
	assert.NotEqual(t, a.Origin(), b.Origin())

	payload, err := a.Encode(model.Conversation{ID: "a:b", Participants: []string{"a", "b"}, Revision: 3})
	require.NoError(t, err)

	env, foreign, err := a.Decode(payload)
	require.NoError(t, err)
	assert.False(t, foreign, "own messages are skipped")
	assert.Equal(t, "a:b", env.ID)

	env, foreign, err = b.Decode(payload)
	require.NoError(t, err)
	assert.True(t, foreign)
	assert.Equal(t, int64(3), env.Revision)
	assert.Equal(t, []string{"a", "b"}, env.Participants)

	_, _, err = b.Decode([]byte(`{"origin":"x"}`))
	assert.Error(t, err)
	_, _, err = b.Decode([]byte(`nope`))
	assert.Error(t, err)
}

func TestRelayBetweenInstances(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping redis relay test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mem := store.NewMemory()
	relayA, err := Dial(ctx, addr, "fuwachat:test")
	require.NoError(t, err)
	defer relayA.Close()
	relayB, err := Dial(ctx, addr, "fuwachat:test")
	require.NoError(t, err)
	defer relayB.Close()

	writer := store.New(mem, store.WithRelay(relayA))
	reader := store.New(mem)

	got := make(chan model.Conversation, 4)
	unsub, err := reader.SubscribeConversation(ctx, "a:b", func(c model.Conversation) { got <- c })
	require.NoError(t, err)
	defer unsub()

	go relayB.Run(ctx, reader.Notify)
	time.Sleep(200 * time.Millisecond)

	_, err = writer.Put(ctx, model.Conversation{ID: "a:b", Participants: []string{"a", "b"}})
	require.NoError(t, err)

	select {
	case c := <-got:
		assert.Equal(t, "a:b", c.ID)
	case <-ctx.Done():
		t.Fatal("relayed change never arrived")
	}
}
