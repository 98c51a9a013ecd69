package api

import (
	"errors"
	"net/http"

	"github.com/johnymontana/memory-graph-workshop/internal/content"
	"github.com/johnymontana/memory-graph-workshop/internal/log"
	"github.com/johnymontana/memory-graph-workshop/internal/memory"
	"github.com/johnymontana/memory-graph-workshop/internal/preferences"
)

// PreferenceHandler handles declarative memory endpoints plus the
// memory graph export and the topic catalog.
type PreferenceHandler struct {
	prefs  *preferences.Store
	repo   *memory.Repository
	source content.Source
	logger log.Logger
}

// NewPreferenceHandler creates a preference handler. prefs may be nil
// when memory is disabled.
func NewPreferenceHandler(prefs *preferences.Store, repo *memory.Repository, source content.Source, logger log.Logger) *PreferenceHandler {
	return &PreferenceHandler{prefs: prefs, repo: repo, source: source, logger: logger}
}

// RegisterRoutes registers preference routes.
func (h *PreferenceHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /preferences/list", h.list)
	mux.HandleFunc("GET /preferences/status", h.status)
	mux.HandleFunc("POST /preferences/clear", h.clear)
	mux.HandleFunc("DELETE /preferences/{id}", h.delete)
	mux.HandleFunc("GET /preferences/graph", h.graph)
	mux.HandleFunc("GET /categories", h.categories)
}

func (h *PreferenceHandler) disabled(w http.ResponseWriter) bool {
	if h.prefs == nil {
		writeError(w, http.StatusServiceUnavailable, "memory_disabled", "preference memory is not enabled")
		return true
	}
	return false
}

func (h *PreferenceHandler) list(w http.ResponseWriter, r *http.Request) {
	if h.disabled(w) {
		return
	}
	prefs, err := h.prefs.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list preferences", "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"preferences": prefs,
		"total":       len(prefs),
	})
}

func (h *PreferenceHandler) status(w http.ResponseWriter, r *http.Request) {
	if h.disabled(w) {
		return
	}
	st, err := h.prefs.Status(r.Context())
	if err != nil {
		h.logger.Error("failed to read preference status", "error", err)
		writeError(w, http.StatusInternalServerError, "status_failed", "")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *PreferenceHandler) clear(w http.ResponseWriter, r *http.Request) {
	if h.disabled(w) {
		return
	}
	if err := h.prefs.Clear(r.Context()); err != nil {
		h.logger.Error("failed to clear preferences", "error", err)
		writeError(w, http.StatusInternalServerError, "clear_failed", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *PreferenceHandler) delete(w http.ResponseWriter, r *http.Request) {
	if h.disabled(w) {
		return
	}
	err := h.prefs.Delete(r.Context(), r.PathValue("id"))
	if errors.Is(err, preferences.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "unknown preference")
		return
	}
	if err != nil {
		h.logger.Error("failed to delete preference", "error", err)
		writeError(w, http.StatusInternalServerError, "delete_failed", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *PreferenceHandler) graph(w http.ResponseWriter, r *http.Request) {
	nodes, rels, err := h.repo.MemoryGraph(r.Context())
	if err != nil {
		h.logger.Error("failed to export memory graph", "error", err)
		writeError(w, http.StatusInternalServerError, "export_failed", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"nodes":         nodes,
		"relationships": rels,
	})
}

func (h *PreferenceHandler) categories(w http.ResponseWriter, r *http.Request) {
	topics, err := h.source.Topics(r.Context())
	if err != nil {
		h.logger.Error("failed to list topics", "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"categories": topics,
		"total":      len(topics),
	})
}
