// Package redisfeed relays conversation change notifications between server
// instances through Redis pub/sub. Only the conversation ID travels; each
// instance reloads the document from the shared backend.
package redisfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"fuwachat/internal/logger"
	"fuwachat/internal/model"
)

// DefaultChannel is the pub/sub channel used when none is configured.
const DefaultChannel = "fuwachat:conversations"

// Envelope is the payload published for each change.
type Envelope struct {
	Origin       string   `json:"origin"`
	ID           string   `json:"id"`
	Revision     int64    `json:"revision"`
	Participants []string `json:"participants"`
}

// Relay implements store.Relay.
type Relay struct {
	rdb     *redis.Client
	channel string
	origin  string
}

// Dial connects to addr. The connection is checked with PING.
func Dial(ctx context.Context, addr, channel string) (*Relay, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return New(rdb, channel), nil
}

// New wraps an existing client. Every Relay gets a fresh origin ID so it
// can ignore its own messages.
func New(rdb *redis.Client, channel string) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Relay{rdb: rdb, channel: channel, origin: uuid.NewString()}
}

// Origin identifies this instance on the channel.
func (r *Relay) Origin() string { return r.origin }

// Encode builds the wire payload for conv.
func (r *Relay) Encode(conv model.Conversation) ([]byte, error) {
	return json.Marshal(Envelope{Origin: r.origin, ID: conv.ID, Revision: conv.Revision, Participants: conv.Participants})
}

// Decode parses a payload. It reports false for payloads this relay
// published itself.
func (r *Relay) Decode(payload []byte) (Envelope, bool, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Envelope{}, false, fmt.Errorf("decode envelope: %w", err)
	}
	if env.ID == "" {
		return Envelope{}, false, fmt.Errorf("decode envelope: missing id")
	}
	return env, env.Origin != r.origin, nil
}

func (r *Relay) Publish(ctx context.Context, conv model.Conversation) error {
	payload, err := r.Encode(conv)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, r.channel, payload).Err()
}

// Run delivers foreign notifications to notify until ctx is done.
func (r *Relay) Run(ctx context.Context, notify func(ctx context.Context, id string) error) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", r.channel, err)
	}
	logger.Info("redis_relay_subscribed", "channel", r.channel, "origin", r.origin)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			env, foreign, err := r.Decode([]byte(msg.Payload))
			if err != nil {
				logger.Warn("redis_relay_bad_payload", "error", err)
				continue
			}
			if !foreign {
				continue
			}
			if err := notify(ctx, env.ID); err != nil {
				logger.Warn("redis_relay_notify_failed", "conversation", env.ID, "error", err)
			}
		}
	}
}

// Close closes the Redis client.
func (r *Relay) Close() error {
	return r.rdb.Close()
}
