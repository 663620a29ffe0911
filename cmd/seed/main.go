// Command seed fills a store with fake participants, friendships and
// conversations, and writes the matching profiles fixture.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/joho/godotenv"

	"fuwachat/internal/backend"
	"fuwachat/internal/config"
	"fuwachat/internal/logger"
)

func main() {
	participants := flag.Int("participants", 10, "number of fake participants")
	friends := flag.Int("friends", 3, "friends per participant")
	messages := flag.Int("messages", 5, "messages per conversation")
	out := flag.String("profiles", "profiles.yaml", "where to write the profiles fixture")
	seedValue := flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	if err := logger.Init(cfg.LogLevel, cfg.LogSink); err != nil {
		log.Fatalf("❌ Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cfg.StoreDriver == "memory" {
		logger.Warn("seed_memory_store", "hint", "set STORE_DRIVER to mysql, sqlite or pebble to keep the data")
	}

	ctx := context.Background()
	b, err := backend.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ Failed to open store: %v", err)
	}
	defer b.Close()

	res, err := seed(ctx, b.Adapter, gofakeit.New(*seedValue), seedOptions{
		Participants: *participants,
		Friends:      *friends,
		Messages:     *messages,
	})
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	data, err := res.Profiles.Encode()
	if err != nil {
		log.Fatalf("❌ Failed to encode profiles: %v", err)
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		log.Fatalf("❌ Failed to write %s: %v", *out, err)
	}

	logger.Info("seed_done", "conversations", res.Conversations, "messages", res.Messages, "profiles", *out)
	log.Printf("✅ Seeded %d conversations with %d messages, profiles written to %s", res.Conversations, res.Messages, *out)
}
