package handler

import (
	"context"
	"sync"

	"fuwachat/internal/directory"
	"fuwachat/internal/identity"
	"fuwachat/internal/profile"
	"fuwachat/internal/session"
	"fuwachat/internal/store"
)

// workspace is one participant's directory plus the sessions they have
// opened, shared by all of their HTTP requests and WebSocket connections.
type workspace struct {
	participant string
	store       store.Adapter
	dir         *directory.Directory

	mu       sync.Mutex
	sessions map[string]*session.Session
}

func newWorkspace(participant string, st store.Adapter, profiles profile.Lookup) *workspace {
	return &workspace{
		participant: participant,
		store:       st,
		dir:         directory.New(participant, st, profiles),
		sessions:    make(map[string]*session.Session),
	}
}

// open returns the open session for conversation id, opening it when needed.
func (ws *workspace) open(ctx context.Context, id string) (*session.Session, error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if s, ok := ws.sessions[id]; ok && s.State() == session.Open {
		return s, nil
	}
	s := session.New(ws.participant, ws.store, session.WithCatalog(ws.dir))
	if _, err := s.Open(ctx, id); err != nil {
		return nil, err
	}
	ws.sessions[id] = s
	return s, nil
}

// openWith returns the session for the 1:1 conversation with peer, creating
// the conversation when needed.
func (ws *workspace) openWith(ctx context.Context, peer string) (*session.Session, error) {
	id, err := identity.DeriveConversationID(ws.participant, peer)
	if err != nil {
		return nil, err
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if s, ok := ws.sessions[id]; ok && s.State() == session.Open {
		return s, nil
	}
	s := session.New(ws.participant, ws.store, session.WithCatalog(ws.dir))
	if _, err := s.OpenWith(ctx, peer); err != nil {
		return nil, err
	}
	ws.sessions[id] = s
	return s, nil
}

func (ws *workspace) close() {
	ws.mu.Lock()
	sessions := ws.sessions
	ws.sessions = make(map[string]*session.Session)
	ws.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
	ws.dir.Close()
}
