package handler

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"fuwachat/internal/logger"
	"fuwachat/internal/model"
	"fuwachat/internal/session"
)

type pendingResponse struct {
	Message model.Message `json:"message"`
	Pending bool          `json:"pending"`
	Error   string        `json:"error"`
}

// writeMutation answers a send/edit/delete. A write that failed to persist
// is accepted (202) because the session keeps it for retry.
func writeMutation(w http.ResponseWriter, route string, ok int, m model.Message, err error) {
	if err == nil {
		logger.Info("message_mutated", "route", route, "message", m.ID)
		if ok == http.StatusNoContent {
			w.WriteHeader(ok)
			return
		}
		writeJSON(w, ok, m)
		return
	}
	if errors.Is(err, session.ErrPendingRetry) {
		logger.Warn("message_pending", "route", route, "message", m.ID, "error", err)
		writeJSON(w, http.StatusAccepted, pendingResponse{Message: m, Pending: true, Error: err.Error()})
		return
	}
	logger.Info("message_rejected", "route", route, "error", err)
	writeError(w, err)
}

// ListConversations handles GET /conversations
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	p := participantFrom(r.Context())
	entries, err := h.workspace(p).dir.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// OpenConversation handles POST /conversations
func (h *Handler) OpenConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Peer string `json:"peer"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	p := participantFrom(r.Context())
	s, err := h.workspace(p).openWith(r.Context(), req.Peer)
	if err != nil {
		logger.Info("open_failed", "participant", p, "peer", req.Peer, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// GetConversation handles GET /conversations/{id}
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s, err := h.workspace(participantFrom(r.Context())).open(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// SendMessage handles POST /conversations/{id}/messages
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		Content string `json:"content"`
		ReplyTo string `json:"reply_to"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	s, err := h.workspace(participantFrom(r.Context())).open(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	m, err := s.Send(r.Context(), req.Content, req.ReplyTo)
	writeMutation(w, "send", http.StatusCreated, m, err)
}

// EditMessage handles PATCH /conversations/{id}/messages/{mid}
func (h *Handler) EditMessage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var req struct {
		Content string `json:"content"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	s, err := h.workspace(participantFrom(r.Context())).open(r.Context(), vars["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	m, err := s.Edit(r.Context(), vars["mid"], req.Content)
	writeMutation(w, "edit", http.StatusOK, m, err)
}

// DeleteMessage handles DELETE /conversations/{id}/messages/{mid}
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s, err := h.workspace(participantFrom(r.Context())).open(r.Context(), vars["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	m, err := s.Delete(r.Context(), vars["mid"])
	writeMutation(w, "delete", http.StatusNoContent, m, err)
}

// RetryConversation handles POST /conversations/{id}/retry
func (h *Handler) RetryConversation(w http.ResponseWriter, r *http.Request) {
	s, err := h.workspace(participantFrom(r.Context())).open(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.Retry(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"pending": s.Pending()})
}
