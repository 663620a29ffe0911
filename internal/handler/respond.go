package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"fuwachat/internal/auth"
	"fuwachat/internal/identity"
	"fuwachat/internal/ledger"
	"fuwachat/internal/logger"
	"fuwachat/internal/session"
	"fuwachat/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("response_encode_failed", "error", err)
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, identity.ErrIdentityAmbiguous),
		errors.Is(err, identity.ErrInvalidParticipant),
		errors.Is(err, ledger.ErrEmptyContent):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotSender), errors.Is(err, session.ErrNotParticipant):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound), errors.Is(err, ledger.ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInvalidTransition),
		errors.Is(err, session.ErrNotOpen),
		errors.Is(err, session.ErrOpening):
		return http.StatusConflict
	case errors.Is(err, store.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("request_failed", "error", err)
		msg = "Internal server error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

// decode reads a JSON body capped at MAX_BODY_SIZE. It writes the 400
// response itself and reports false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	limit := h.Config.MaxBodySize
	if limit <= 0 {
		limit = 1 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		logger.Info("bad_request_body", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return false
	}
	return true
}
