package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/havenmind/haven/internal/chat"
	"github.com/havenmind/haven/internal/session"
)

// MaxMessageLength bounds a single chat message.
const MaxMessageLength = 4000

// ChatHandler serves the chat endpoint.
type ChatHandler struct {
	svc    *chat.Service
	logger *slog.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(svc *chat.Service, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.chat)
}

// ChatRequest is the request body for one chat turn.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name,omitempty"`
	Location  string `json:"location,omitempty"`
	Message   string `json:"message"`
}

// ChatResponse is the reply body.
type ChatResponse struct {
	Reply     string          `json:"reply"`
	Rationale string          `json:"rationale"`
	Citations []chat.Citation `json:"citations"`
}

func (h *ChatHandler) chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body is not valid JSON")
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "message is required")
		return
	}
	if len(req.Message) > MaxMessageLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "message too long (max 4000 characters)")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "session_id is not a valid UUID")
		return
	}

	resp, err := h.svc.Respond(r.Context(), chat.Request{
		SessionID: sessionID,
		UserID:    req.UserID,
		UserName:  req.UserName,
		Location:  req.Location,
		Query:     req.Message,
	})
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrGenerationUnavailable):
			h.logger.Error("generation unavailable", "error", err)
			writeError(w, http.StatusServiceUnavailable, "model_unavailable",
				"the model is temporarily unavailable, please retry")
		case errors.Is(err, session.ErrSessionNotFound):
			writeError(w, http.StatusNotFound, "not_found", "session not found")
		default:
			h.logger.Error("chat turn failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to process message")
		}
		return
	}

	citations := resp.Citations
	if citations == nil {
		citations = []chat.Citation{}
	}
	writeJSON(w, http.StatusOK, ChatResponse{
		Reply:     resp.Reply,
		Rationale: resp.Rationale,
		Citations: citations,
	})
}
