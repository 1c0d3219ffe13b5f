package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/havenmind/haven/internal/session"
)

// Session validation constants.
const (
	MaxTitleLength   = 100
	DefaultListLimit = 50
	MaxListLimit     = 500
	MaxHistoryLimit  = 200
)

// SessionHandler serves session CRUD endpoints.
type SessionHandler struct {
	store  *session.Store
	logger *slog.Logger
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(store *session.Store, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{store: store, logger: logger}
}

// RegisterRoutes registers session routes on the given mux.
func (h *SessionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sessions", h.list)
	mux.HandleFunc("POST /api/sessions", h.create)
	mux.HandleFunc("GET /api/sessions/{id}", h.get)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.delete)
	mux.HandleFunc("GET /api/sessions/{id}/messages", h.messages)
}

// list returns a user's sessions, most recently active first.
func (h *SessionHandler) list(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}
	limit := parseIntParam(r, "limit", DefaultListLimit, 1, MaxListLimit)

	sessions, err := h.store.List(r.Context(), userID, int32(limit))
	if err != nil {
		h.logger.Error("failed to list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []session.Session{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

// CreateSessionRequest is the request body for creating a session.
type CreateSessionRequest struct {
	UserID string `json:"user_id"`
	Title  string `json:"title"`
}

// create starts a new session.
func (h *SessionHandler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body is not valid JSON")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}
	if len(req.Title) > MaxTitleLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "title too long (max 100 characters)")
		return
	}

	sess, err := h.store.Create(r.Context(), req.UserID, req.Title)
	if err != nil {
		h.logger.Error("failed to create session", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create session")
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// get fetches one session.
func (h *SessionHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	sess, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.sessionError(w, err, "failed to load session")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// delete removes a session and its messages.
func (h *SessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		h.sessionError(w, err, "failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// messages returns the most recent messages of a session.
func (h *SessionHandler) messages(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	limit := parseIntParam(r, "limit", 50, 1, MaxHistoryLimit)

	msgs, err := h.store.History(r.Context(), id, int32(limit))
	if err != nil {
		h.sessionError(w, err, "failed to load messages")
		return
	}
	if msgs == nil {
		msgs = []session.Message{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"messages": msgs,
		"total":    len(msgs),
	})
}

// sessionID parses the {id} path value, writing a 400 on failure.
func (h *SessionHandler) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "session id is not a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// sessionError maps store errors onto HTTP statuses.
func (h *SessionHandler) sessionError(w http.ResponseWriter, err error, message string) {
	if errors.Is(err, session.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "session not found")
		return
	}
	h.logger.Error(message, "error", err)
	writeError(w, http.StatusInternalServerError, "internal_error", message)
}

// parseIntParam parses an integer query parameter with bounds checking.
func parseIntParam(r *http.Request, name string, defaultVal, minVal, maxVal int) int {
	str := r.URL.Query().Get(name)
	if str == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return defaultVal
	}
	if val < minVal {
		return minVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}
