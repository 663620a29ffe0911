package handler

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"fuwachat/internal/logger"
	"fuwachat/internal/metrics"
	"fuwachat/internal/model"
	"fuwachat/internal/session"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
)

// Command is a client request received over the WebSocket.
type Command struct {
	Type           string `json:"type"`
	Ref            string `json:"ref,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Peer           string `json:"peer,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	Content        string `json:"content,omitempty"`
	ReplyTo        string `json:"reply_to,omitempty"`
}

// Client command types
const (
	CommandOpen           = "open"
	CommandSend           = "send"
	CommandEdit           = "edit"
	CommandDelete         = "delete"
	CommandWatchDirectory = "watch_directory"
)

// client is one WebSocket connection. Only the writer goroutine touches conn
// for writes.
type client struct {
	id          string
	participant string
	conn        *websocket.Conn
	send        chan model.Event
	closeOnce   sync.Once
	done        chan struct{}

	mu      sync.Mutex
	watches map[string]func()
}

func (c *client) push(ev model.Event) {
	select {
	case <-c.done:
	case c.send <- ev:
	default:
		logger.Warn("ws_client_too_slow", "client", c.id, "participant", c.participant)
		c.close()
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// watch records a cancel func under key, replacing an earlier one.
func (c *client) watch(key string, cancel func()) {
	c.mu.Lock()
	prev := c.watches[key]
	c.watches[key] = cancel
	c.mu.Unlock()
	if prev != nil {
		prev()
	}
}

func (c *client) stopWatches() {
	c.mu.Lock()
	ws := c.watches
	c.watches = map[string]func(){}
	c.mu.Unlock()
	for _, cancel := range ws {
		cancel()
	}
}

func (c *client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(ev); err != nil {
				logger.Info("ws_write_failed", "client", c.id, "error", err)
				c.close()
				return
			}
		}
	}
}

// createUpgrader creates a WebSocket upgrader with the given allowed origins
func createUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowedMap := make(map[string]bool)
	for _, origin := range allowedOrigins {
		allowedMap[origin] = true
	}

	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if allowedMap["*"] {
				return true
			}
			origin := r.Header.Get("Origin")
			return allowedMap[origin]
		},
	}
}

// HandleWebSocket handles GET /ws
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := createUpgrader(h.Config.AllowedOrigins)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Info("ws_upgrade_failed", "error", err)
		return
	}

	c := &client{
		id:          uuid.NewString(),
		participant: participantFrom(r.Context()),
		conn:        conn,
		send:        make(chan model.Event, sendBuffer),
		done:        make(chan struct{}),
		watches:     make(map[string]func()),
	}
	conn.SetReadLimit(h.Config.MaxBodySize)

	h.ClientMu.Lock()
	h.Clients[c] = true
	totalClients := len(h.Clients)
	h.ClientMu.Unlock()
	metrics.WebSocketClients.Inc()
	logger.Info("ws_connected", "client", c.id, "participant", c.participant, "clients", totalClients)

	go c.writeLoop()

	// The upgrade request context ends with the handler, so commands get
	// their own context tied to the connection.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer func() {
		cancel()
		c.stopWatches()
		c.close()
		h.ClientMu.Lock()
		delete(h.Clients, c)
		remainingClients := len(h.Clients)
		h.ClientMu.Unlock()
		metrics.WebSocketClients.Dec()
		logger.Info("ws_disconnected", "client", c.id, "clients", remainingClients)
	}()

	for {
		var cmd Command
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		h.dispatch(ctx, c, cmd)
	}
}

func (h *Handler) dispatch(ctx context.Context, c *client, cmd Command) {
	fail := func(err error) {
		c.push(model.Event{Type: model.EventError, Error: err.Error(), Ref: cmd.Ref})
	}

	switch cmd.Type {
	case CommandSend, CommandEdit, CommandDelete:
		if !h.Limiter.Allow(c.participant) {
			metrics.RateLimited.Inc()
			fail(errors.New("too many requests"))
			return
		}
	}

	ws := h.workspace(c.participant)
	switch cmd.Type {
	case CommandOpen:
		var s *session.Session
		var err error
		if cmd.Peer != "" {
			s, err = ws.openWith(ctx, cmd.Peer)
		} else {
			s, err = ws.open(ctx, cmd.ConversationID)
		}
		if err != nil {
			fail(err)
			return
		}
		snap := s.Snapshot()
		c.push(model.Event{Type: model.EventConversation, Conversation: &snap, Ref: cmd.Ref})
		c.watch("conv:"+snap.ID, s.Watch(func(conv model.Conversation) {
			c.push(model.Event{Type: model.EventConversation, Conversation: &conv})
		}))

	case CommandSend, CommandEdit, CommandDelete:
		s, err := ws.open(ctx, cmd.ConversationID)
		if err != nil {
			fail(err)
			return
		}
		switch cmd.Type {
		case CommandSend:
			_, err = s.Send(ctx, cmd.Content, cmd.ReplyTo)
		case CommandEdit:
			_, err = s.Edit(ctx, cmd.MessageID, cmd.Content)
		default:
			_, err = s.Delete(ctx, cmd.MessageID)
		}
		if err != nil {
			fail(err)
		}

	case CommandWatchDirectory:
		stop, err := ws.dir.Watch(ctx, func(entries []model.DirectoryEntry) {
			c.push(model.Event{Type: model.EventDirectory, Entries: entries, Ref: cmd.Ref})
		})
		if err != nil {
			fail(err)
			return
		}
		c.watch("directory", stop)

	default:
		fail(errors.New("unknown command " + cmd.Type))
	}
}
