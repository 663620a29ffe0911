package handler

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fuwachat/internal/auth"
	"fuwachat/internal/config"
	"fuwachat/internal/logger"
	"fuwachat/internal/metrics"
	"fuwachat/internal/profile"
	"fuwachat/internal/store"
)

type ctxKey int

const participantKey ctxKey = iota

// Handler holds application dependencies
type Handler struct {
	Config   config.Config
	Store    store.Adapter
	Profiles profile.Lookup
	Tokens   *auth.Tokens
	Limiter  *auth.Limiter

	mu         sync.Mutex
	workspaces map[string]*workspace

	Clients  map[*client]bool
	ClientMu sync.RWMutex
}

// New creates a new Handler with the given dependencies
func New(cfg config.Config, st store.Adapter, profiles profile.Lookup) *Handler {
	if profiles == nil {
		profiles = profile.NewStatic()
	}
	return &Handler{
		Config:     cfg,
		Store:      st,
		Profiles:   profiles,
		Tokens:     auth.NewTokens(cfg.JWTSecret, 0),
		Limiter:    auth.NewLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		workspaces: make(map[string]*workspace),
		Clients:    make(map[*client]bool),
	}
}

// SetupRouter configures and returns the HTTP router
func (h *Handler) SetupRouter() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", h.Health).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	if !h.Config.IsProduction() {
		r.HandleFunc("/dev/token", h.IssueToken).Methods("POST")
	}

	// REST API
	api := r.NewRoute().Subrouter()
	api.Use(h.authenticate, h.rateLimit)
	api.HandleFunc("/conversations", h.ListConversations).Methods("GET")
	api.HandleFunc("/conversations", h.OpenConversation).Methods("POST")
	api.HandleFunc("/conversations/{id}", h.GetConversation).Methods("GET")
	api.HandleFunc("/conversations/{id}/messages", h.SendMessage).Methods("POST")
	api.HandleFunc("/conversations/{id}/messages/{mid}", h.EditMessage).Methods("PATCH")
	api.HandleFunc("/conversations/{id}/messages/{mid}", h.DeleteMessage).Methods("DELETE")
	api.HandleFunc("/conversations/{id}/retry", h.RetryConversation).Methods("POST")

	// WebSocket
	api.HandleFunc("/ws", h.HandleWebSocket).Methods("GET")

	return r
}

// Close stops the limiter sweep and closes every open session and directory.
func (h *Handler) Close() {
	h.Limiter.Close()
	h.mu.Lock()
	wss := h.workspaces
	h.workspaces = make(map[string]*workspace)
	h.mu.Unlock()
	for _, ws := range wss {
		ws.close()
	}
}

func (h *Handler) workspace(participant string) *workspace {
	h.mu.Lock()
	defer h.mu.Unlock()
	ws, ok := h.workspaces[participant]
	if !ok {
		ws = newWorkspace(participant, h.Store, h.Profiles)
		h.workspaces[participant] = ws
	}
	return ws
}

func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		participant, err := h.Tokens.FromRequest(r)
		if err != nil {
			logger.Info("auth_rejected", "path", r.URL.Path, "remote", r.RemoteAddr, "error", err)
			writeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), participantKey, participant)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		p := participantFrom(r.Context())
		if !h.Limiter.Allow(p) {
			metrics.RateLimited.Inc()
			logger.Info("rate_limited", "participant", p, "path", r.URL.Path)
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "Too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func participantFrom(ctx context.Context) string {
	p, _ := ctx.Value(participantKey).(string)
	return p
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// IssueToken handles POST /dev/token. It is not routed in production.
func (h *Handler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Participant string `json:"participant"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if req.Participant == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "participant is required"})
		return
	}
	tok, err := h.Tokens.Issue(req.Participant)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": tok})
}
