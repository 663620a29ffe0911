package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"fuwachat/internal/model"
)

// Memory is a process-local Documents backend.
type Memory struct {
	mu    sync.Mutex
	docs  map[string]model.Conversation
	saves int
}

// NewMemory returns an empty backend.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]model.Conversation)}
}

var _ Documents = (*Memory)(nil)

func (m *Memory) Load(_ context.Context, id string) (model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.docs[id]
	if !ok {
		return model.Conversation{}, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return c.Clone(), nil
}

func (m *Memory) Save(_ context.Context, conv model.Conversation, now time.Time) (model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stored *model.Conversation
	if c, ok := m.docs[conv.ID]; ok {
		stored = &c
	} else if conv.Participants == nil {
		return model.Conversation{}, fmt.Errorf("conversation %s: %w", conv.ID, ErrNotFound)
	}
	merged := Merge(stored, conv, now)
	m.docs[conv.ID] = merged
	m.saves++
	return merged.Clone(), nil
}

func (m *Memory) Has(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.docs[id]
	return ok, nil
}

func (m *Memory) ListByParticipant(_ context.Context, participant string) ([]model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Conversation, 0)
	for _, c := range m.docs {
		if c.Has(participant) {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Close() error { return nil }

// Len returns the number of stored documents.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

// Saves returns how many writes reached the backend.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
