package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/johnymontana/memory-graph-workshop/internal/agent"
	"github.com/johnymontana/memory-graph-workshop/internal/log"
	"github.com/johnymontana/memory-graph-workshop/internal/memory"
)

// MaxMessageLength bounds a submitted chat message.
const MaxMessageLength = 8000

// ChatHandler handles turn submission.
type ChatHandler struct {
	agent  *agent.Agent
	logger log.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(ag *agent.Agent, logger log.Logger) *ChatHandler {
	return &ChatHandler{agent: ag, logger: logger}
}

// RegisterRoutes registers chat routes.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /chat", h.chat)
}

// ChatRequest is a turn submission.
type ChatRequest struct {
	Message       string `json:"message"`
	MemoryEnabled bool   `json:"memory_enabled"`
	ThreadID      string `json:"thread_id,omitempty"`
}

func (h *ChatHandler) chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "message is required")
		return
	}
	if len(req.Message) > MaxMessageLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "message too long")
		return
	}

	result, err := h.agent.Run(r.Context(), agent.TurnRequest{
		ThreadID:      req.ThreadID,
		Message:       req.Message,
		MemoryEnabled: req.MemoryEnabled,
	})
	switch {
	case errors.Is(err, memory.ErrThreadBusy):
		writeError(w, http.StatusConflict, "thread_busy", "another turn is running on this thread")
		return
	case errors.Is(err, memory.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "unknown thread")
		return
	case err != nil:
		h.logger.Error("turn failed", "error", err)
		writeError(w, http.StatusInternalServerError, "turn_failed", "the turn could not be completed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
