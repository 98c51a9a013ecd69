package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/johnymontana/memory-graph-workshop/internal/log"
	"github.com/johnymontana/memory-graph-workshop/internal/memory"
)

// MaxTitleLength bounds a thread title.
const MaxTitleLength = 100

// ThreadHandler handles thread CRUD.
type ThreadHandler struct {
	repo   *memory.Repository
	logger log.Logger
}

// NewThreadHandler creates a thread handler.
func NewThreadHandler(repo *memory.Repository, logger log.Logger) *ThreadHandler {
	return &ThreadHandler{repo: repo, logger: logger}
}

// RegisterRoutes registers thread routes.
func (h *ThreadHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /threads", h.list)
	mux.HandleFunc("POST /threads", h.create)
	mux.HandleFunc("GET /threads/last-active", h.lastActive)
	mux.HandleFunc("GET /threads/{id}", h.get)
	mux.HandleFunc("PUT /threads/{id}/title", h.updateTitle)
	mux.HandleFunc("DELETE /threads/{id}", h.delete)
}

func (h *ThreadHandler) list(w http.ResponseWriter, r *http.Request) {
	threads, err := h.repo.ListThreads(r.Context())
	if err != nil {
		h.logger.Error("failed to list threads", "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"threads": threads,
		"total":   len(threads),
	})
}

func (h *ThreadHandler) create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
			return
		}
	}
	if len(req.Title) > MaxTitleLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "title too long")
		return
	}

	thread, err := h.repo.CreateThread(r.Context(), req.Title)
	if err != nil {
		h.logger.Error("failed to create thread", "error", err)
		writeError(w, http.StatusInternalServerError, "create_failed", "")
		return
	}
	writeJSON(w, http.StatusCreated, thread)
}

func (h *ThreadHandler) lastActive(w http.ResponseWriter, r *http.Request) {
	thread, err := h.repo.LastActiveThread(r.Context())
	if errors.Is(err, memory.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "no threads yet")
		return
	}
	if err != nil {
		h.logger.Error("failed to find last active thread", "error", err)
		writeError(w, http.StatusInternalServerError, "lookup_failed", "")
		return
	}
	writeJSON(w, http.StatusOK, thread)
}

func (h *ThreadHandler) get(w http.ResponseWriter, r *http.Request) {
	thread, err := h.repo.GetThread(r.Context(), r.PathValue("id"))
	if errors.Is(err, memory.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "unknown thread")
		return
	}
	if err != nil {
		h.logger.Error("failed to load thread", "error", err)
		writeError(w, http.StatusInternalServerError, "lookup_failed", "")
		return
	}
	writeJSON(w, http.StatusOK, thread)
}

func (h *ThreadHandler) updateTitle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if req.Title == "" || len(req.Title) > MaxTitleLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "title must be 1-100 characters")
		return
	}

	err := h.repo.UpdateTitle(r.Context(), r.PathValue("id"), req.Title)
	if errors.Is(err, memory.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "unknown thread")
		return
	}
	if err != nil {
		h.logger.Error("failed to update title", "error", err)
		writeError(w, http.StatusInternalServerError, "update_failed", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *ThreadHandler) delete(w http.ResponseWriter, r *http.Request) {
	err := h.repo.DeleteThread(r.Context(), r.PathValue("id"))
	if errors.Is(err, memory.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "unknown thread")
		return
	}
	if err != nil {
		h.logger.Error("failed to delete thread", "error", err)
		writeError(w, http.StatusInternalServerError, "delete_failed", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
