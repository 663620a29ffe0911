package store

import (
	"context"
	"errors"
	"time"

	"fuwachat/internal/metrics"
	"fuwachat/internal/model"
)

type instrumented struct {
	next    Adapter
	backend string
}

// Instrument records Prometheus counters and latencies for every call on a.
func Instrument(a Adapter, backend string) Adapter {
	return &instrumented{next: a, backend: backend}
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	metrics.StoreLatency.WithLabelValues(i.backend, op).Observe(time.Since(start).Seconds())
	metrics.StoreOps.WithLabelValues(i.backend, op, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrStoreUnavailable):
		return "unavailable"
	case errors.Is(err, ErrMalformedDocument):
		return "malformed"
	default:
		return "error"
	}
}

func (i *instrumented) Get(ctx context.Context, id string) (model.Conversation, error) {
	start := time.Now()
	c, err := i.next.Get(ctx, id)
	i.observe("get", start, err)
	return c, err
}

func (i *instrumented) Put(ctx context.Context, conv model.Conversation) (model.Conversation, error) {
	start := time.Now()
	c, err := i.next.Put(ctx, conv)
	i.observe("put", start, err)
	return c, err
}

func (i *instrumented) Exists(ctx context.Context, id string) (bool, error) {
	start := time.Now()
	ok, err := i.next.Exists(ctx, id)
	i.observe("exists", start, err)
	return ok, err
}

func (i *instrumented) SubscribeConversation(ctx context.Context, id string, fn func(model.Conversation)) (Cancel, error) {
	start := time.Now()
	cancel, err := i.next.SubscribeConversation(ctx, id, func(c model.Conversation) {
		metrics.Pushes.WithLabelValues("conversation").Inc()
		fn(c)
	})
	i.observe("subscribe_conversation", start, err)
	return cancel, err
}

func (i *instrumented) SubscribeConversationsOf(ctx context.Context, participant string, fn func([]model.Conversation)) (Cancel, error) {
	start := time.Now()
	cancel, err := i.next.SubscribeConversationsOf(ctx, participant, func(cs []model.Conversation) {
		metrics.Pushes.WithLabelValues("participant").Inc()
		fn(cs)
	})
	i.observe("subscribe_participant", start, err)
	return cancel, err
}
