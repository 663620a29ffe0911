package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fuwachat/internal/logger"
	"fuwachat/internal/model"
)

// Relay forwards change notifications to other server instances that share
// the same backend.
type Relay interface {
	Publish(ctx context.Context, conv model.Conversation) error
}

// Service implements Adapter over a Documents backend and an in-process Feed.
type Service struct {
	docs  Documents
	feed  *Feed
	relay Relay
	now   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithRelay publishes every successful put to r.
func WithRelay(r Relay) Option {
	return func(s *Service) { s.relay = r }
}

// WithClock overrides time.Now for created_at/updated_at stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New builds the adapter for docs.
func New(docs Documents, opts ...Option) *Service {
	s := &Service{docs: docs, feed: NewFeed(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

var _ Adapter = (*Service)(nil)

// Feed exposes the subscriber registry, mostly for metrics and tests.
func (s *Service) Feed() *Feed { return s.feed }

func (s *Service) Get(ctx context.Context, id string) (model.Conversation, error) {
	return s.docs.Load(ctx, id)
}

func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	return s.docs.Has(ctx, id)
}

func (s *Service) Put(ctx context.Context, conv model.Conversation) (model.Conversation, error) {
	exists := conv.Participants == nil
	if err := ValidatePut(conv, exists); err != nil {
		return model.Conversation{}, err
	}
	stored, err := s.docs.Save(ctx, conv, s.now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// participants were omitted for a document that does not exist
			return model.Conversation{}, fmt.Errorf("%w: participants required for new conversation %s", ErrMalformedDocument, conv.ID)
		}
		return model.Conversation{}, err
	}
	logger.Debug("conversation_put", "conversation", stored.ID, "revision", stored.Revision, "messages", len(stored.Messages))

	s.publish(ctx, stored)
	if s.relay != nil {
		if err := s.relay.Publish(ctx, stored); err != nil {
			logger.Warn("conversation_relay_failed", "conversation", stored.ID, "error", err)
		}
	}
	return stored, nil
}

func (s *Service) SubscribeConversation(ctx context.Context, id string, fn func(model.Conversation)) (Cancel, error) {
	cancel := s.feed.watchConversation(id, fn)
	conv, err := s.docs.Load(ctx, id)
	switch {
	case err == nil:
		fn(conv.Clone())
	case errors.Is(err, ErrNotFound):
	default:
		cancel()
		return nil, err
	}
	return cancel, nil
}

func (s *Service) SubscribeConversationsOf(ctx context.Context, participant string, fn func([]model.Conversation)) (Cancel, error) {
	cancel := s.feed.watchParticipant(participant, fn)
	convs, err := s.docs.ListByParticipant(ctx, participant)
	if err != nil {
		cancel()
		return nil, err
	}
	fn(convs)
	return cancel, nil
}

// Notify reloads id from the backend and pushes it to local subscribers.
// Relays call it for changes written by other instances.
func (s *Service) Notify(ctx context.Context, id string) error {
	conv, err := s.docs.Load(ctx, id)
	if err != nil {
		return err
	}
	s.publish(ctx, conv)
	return nil
}

// Close releases the backend.
func (s *Service) Close() error {
	return s.docs.Close()
}

func (s *Service) publish(ctx context.Context, conv model.Conversation) {
	for _, fn := range s.feed.conversationWatchers(conv.ID) {
		fn(conv.Clone())
	}
	for _, p := range conv.Participants {
		watchers := s.feed.participantWatchers(p)
		if len(watchers) == 0 {
			continue
		}
		convs, err := s.docs.ListByParticipant(ctx, p)
		if err != nil {
			logger.Warn("participant_feed_reload_failed", "participant", p, "error", err)
			continue
		}
		for _, fn := range watchers {
			fn(cloneAll(convs))
		}
	}
}

func cloneAll(convs []model.Conversation) []model.Conversation {
	out := make([]model.Conversation, len(convs))
	for i, c := range convs {
		out[i] = c.Clone()
	}
	return out
}
