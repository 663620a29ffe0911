package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fuwachat/internal/config"
	"fuwachat/internal/model"
)

func roundTrip(t *testing.T, cfg config.Config) {
	t.Helper()
	ctx := context.Background()
	b, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer b.Close()

	_, err = b.Adapter.Put(ctx, model.Conversation{ID: "U1:U2", Participants: []string{"U1", "U2"}})
	require.NoError(t, err)
	ok, err := b.Adapter.Exists(ctx, "U1:U2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, b.Run(ctx), "no relay configured")
}

func TestOpenDrivers(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		roundTrip(t, config.Config{StoreDriver: "memory"})
	})
	t.Run("sqlite", func(t *testing.T) {
		roundTrip(t, config.Config{StoreDriver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "chat.db")})
	})
	t.Run("pebble", func(t *testing.T) {
		roundTrip(t, config.Config{StoreDriver: "pebble", PebblePath: t.TempDir()})
	})
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.Config{StoreDriver: "cassandra"})
	assert.Error(t, err)
}
