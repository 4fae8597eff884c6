package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/aerodoc/aerodoc/internal/conversation"
	"github.com/aerodoc/aerodoc/internal/prompt"
	"github.com/aerodoc/aerodoc/internal/rag"
)

// Request body limits. Ingest carries whole documents, queries do not.
const (
	maxQueryBodyBytes  = 1 << 20  // 1 MiB
	maxIngestBodyBytes = 64 << 20 // 64 MiB
)

type queryHandler struct {
	pipeline Pipeline
	registry *prompt.Registry
	logger   *slog.Logger
}

type queryRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
	Strategy  string `json:"strategy"`
}

// query answers one question. An absent session_id starts a fresh session
// under a server-generated UUID, returned in the response. An absent
// strategy resolves to the catalog default before the pipeline runs; the
// pipeline itself never substitutes.
func (h *queryHandler) query(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxQueryBodyBytes)

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large", h.logger)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}

	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "missing_question", "question must not be empty", h.logger)
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}
	if req.Strategy == "" {
		req.Strategy = h.registry.Default().Name
	}

	answer, err := h.pipeline.Answer(r.Context(), req.Question, req.SessionID, req.Strategy)
	if err != nil {
		h.writePipelineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, answer, h.logger)
}

// writePipelineError maps pipeline failures to stable HTTP statuses: caller
// mistakes are 4xx, upstream model failures are 502, everything else 500.
func (h *queryHandler) writePipelineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, prompt.ErrUnknownStrategy):
		writeError(w, http.StatusBadRequest, "unknown_strategy", err.Error(), h.logger)
	case errors.Is(err, rag.ErrEmbedding):
		h.logger.Error("embedding failed", "error", err)
		writeError(w, http.StatusBadGateway, "embedding_failed", "embedding service failed", h.logger)
	case errors.Is(err, rag.ErrGeneration):
		h.logger.Error("generation failed", "error", err)
		writeError(w, http.StatusBadGateway, "generation_failed", "generation service failed", h.logger)
	case errors.Is(err, rag.ErrRetrieval):
		h.logger.Error("retrieval failed", "error", err)
		writeError(w, http.StatusInternalServerError, "retrieval_failed", "retrieval failed", h.logger)
	default:
		h.logger.Error("query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
	}
}

type ingestHandler struct {
	pipeline Pipeline
	logger   *slog.Logger
}

type ingestRequest struct {
	DocumentID string     `json:"document_id"`
	Pages      []rag.Page `json:"pages"`
}

type ingestResponse struct {
	DocumentID    string `json:"document_id"`
	ChunksIndexed int    `json:"chunks_indexed"`
}

func (h *ingestHandler) ingest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxIngestBodyBytes)

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large", h.logger)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}

	if strings.TrimSpace(req.DocumentID) == "" {
		writeError(w, http.StatusBadRequest, "missing_document_id", "document_id must not be empty", h.logger)
		return
	}

	indexed, err := h.pipeline.Ingest(r.Context(), req.DocumentID, req.Pages)
	if err != nil {
		if errors.Is(err, rag.ErrEmbedding) {
			h.logger.Error("ingest embedding failed", "document_id", req.DocumentID, "error", err)
			writeError(w, http.StatusBadGateway, "embedding_failed", "embedding service failed", h.logger)
			return
		}
		h.logger.Error("ingest failed", "document_id", req.DocumentID, "error", err)
		writeError(w, http.StatusInternalServerError, "ingest_failed", "ingest failed", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, ingestResponse{DocumentID: req.DocumentID, ChunksIndexed: indexed}, h.logger)
}

type strategiesHandler struct {
	registry *prompt.Registry
	logger   *slog.Logger
}

type strategyItem struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *strategiesHandler) list(w http.ResponseWriter, _ *http.Request) {
	names := h.registry.Names()
	items := make([]strategyItem, 0, len(names))
	for _, name := range names {
		s, err := h.registry.Get(name)
		if err != nil {
			h.logger.Error("listing strategies", "name", name, "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
			return
		}
		items = append(items, strategyItem{Name: s.Name, Description: s.Description})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"strategies": items,
		"default":    h.registry.Default().Name,
	}, h.logger)
}

type sessionsHandler struct {
	store  SessionStore
	logger *slog.Logger
}

func (h *sessionsHandler) list(w http.ResponseWriter, r *http.Request) {
	ids, err := h.store.ListIDs(r.Context())
	if err != nil {
		h.logger.Error("listing sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list sessions", h.logger)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": ids}, h.logger)
}

func (h *sessionsHandler) history(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	exists, err := h.store.Exists(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("checking session", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "history_failed", "failed to load history", h.logger)
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "session_not_found", "session not found", h.logger)
		return
	}

	turns, err := h.store.History(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("loading history", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "history_failed", "failed to load history", h.logger)
		return
	}
	if turns == nil {
		turns = []conversation.Turn{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "turns": turns}, h.logger)
}

func (h *sessionsHandler) delete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	if err := h.store.Delete(r.Context(), sessionID); err != nil {
		h.logger.Error("deleting session", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "delete_failed", "failed to delete session", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"}, h.logger)
}
