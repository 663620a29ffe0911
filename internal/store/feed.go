package store

import (
	"sync"

	"fuwachat/internal/model"
)

// Feed keeps the in-process subscribers of conversation documents and of
// per-participant conversation sets.
type Feed struct {
	mu            sync.Mutex
	next          uint64
	byConv        map[string]map[uint64]func(model.Conversation)
	byParticipant map[string]map[uint64]func([]model.Conversation)
}

// NewFeed returns an empty Feed.
func NewFeed() *Feed {
	return &Feed{
		byConv:        make(map[string]map[uint64]func(model.Conversation)),
		byParticipant: make(map[string]map[uint64]func([]model.Conversation)),
	}
}

func (f *Feed) watchConversation(id string, fn func(model.Conversation)) Cancel {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	key := f.next
	if f.byConv[id] == nil {
		f.byConv[id] = make(map[uint64]func(model.Conversation))
	}
	f.byConv[id][key] = fn
	return once(func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.byConv[id], key)
		if len(f.byConv[id]) == 0 {
			delete(f.byConv, id)
		}
	})
}

func (f *Feed) watchParticipant(p string, fn func([]model.Conversation)) Cancel {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	key := f.next
	if f.byParticipant[p] == nil {
		f.byParticipant[p] = make(map[uint64]func([]model.Conversation))
	}
	f.byParticipant[p][key] = fn
	return once(func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.byParticipant[p], key)
		if len(f.byParticipant[p]) == 0 {
			delete(f.byParticipant, p)
		}
	})
}

// conversationWatchers snapshots the callbacks so they run without f.mu held.
func (f *Feed) conversationWatchers(id string) []func(model.Conversation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]func(model.Conversation), 0, len(f.byConv[id]))
	for _, fn := range f.byConv[id] {
		out = append(out, fn)
	}
	return out
}

func (f *Feed) participantWatchers(p string) []func([]model.Conversation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]func([]model.Conversation), 0, len(f.byParticipant[p]))
	for _, fn := range f.byParticipant[p] {
		out = append(out, fn)
	}
	return out
}

// Watchers reports the number of active subscriptions.
func (f *Feed) Watchers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.byConv {
		n += len(m)
	}
	for _, m := range f.byParticipant {
		n += len(m)
	}
	return n
}
