// Package server exposes the query pipeline over HTTP: the query endpoint,
// a metadata-only document listing, and health probes. Authentication and
// per-subject rate limiting run as middleware before any handler.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/answergate/answergate/internal/authn"
	"github.com/answergate/answergate/internal/corpus"
	"github.com/answergate/answergate/internal/pipeline"
	agerrors "github.com/answergate/answergate/pkg/errors"
	"github.com/answergate/answergate/pkg/logger"
)

const maxQuestionBytes = 8 << 10

type Handler struct {
	pipeline   *pipeline.Pipeline
	collection []corpus.Document
	logger     *slog.Logger
}

func New(p *pipeline.Pipeline, collection []corpus.Document) *Handler {
	return &Handler{
		pipeline:   p,
		collection: collection,
		logger:     slog.Default().With("component", "query-handler"),
	}
}

type queryRequest struct {
	Question string `json:"question"`
}

type errorResponse struct {
	Error   string   `json:"error"`
	Blocked []string `json:"blocked_documents,omitempty"`
}

// Query answers POST /api/v1/query for an authenticated caller. A request
// whose every candidate was blocked gets 404 with the blocked ids; an
// authorization-store outage gets 503 with no document ids at all.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	identity, ok := authn.IdentityFromContext(ctx)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
		return
	}

	var req queryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQuestionBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, errorResponse{Error: "request body must be JSON with a question field"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		h.writeError(w, http.StatusBadRequest, errorResponse{Error: "question must not be empty"})
		return
	}

	result, err := h.pipeline.Answer(ctx, identity, req.Question)
	if err != nil {
		status := agerrors.HTTPStatusCode(err)
		resp := errorResponse{Error: clientMessage(err)}
		if errors.Is(err, agerrors.ErrNoAuthorizedContent) {
			// Blocked ids are metadata, not content; surfacing them tells
			// the caller the documents exist without revealing their text.
			resp.Blocked = result.Blocked
		}
		if status >= http.StatusInternalServerError {
			log.Error("query failed", "subject", identity.Subject, "error", err)
		}
		h.writeError(w, status, resp)
		return
	}

	log.Info("query answered",
		"subject", identity.Subject,
		"used", len(result.Used),
		"blocked", len(result.Blocked),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, result)
}

type documentSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Documents answers GET /api/v1/documents with id and title only. Bodies
// are never listed here; they reach a caller only through the gated
// query path.
func (h *Handler) Documents(w http.ResponseWriter, r *http.Request) {
	if _, ok := authn.IdentityFromContext(r.Context()); !ok {
		h.writeError(w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
		return
	}
	summaries := make([]documentSummary, 0, len(h.collection))
	for _, doc := range h.collection {
		summaries = append(summaries, documentSummary{ID: doc.ID, Title: doc.Title})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"documents": summaries})
}

func clientMessage(err error) string {
	switch {
	case errors.Is(err, agerrors.ErrNoAuthorizedContent):
		return "no authorized content matches the question"
	case errors.Is(err, agerrors.ErrAuthorizationUnavailable):
		return "authorization service unavailable, try again later"
	case errors.Is(err, agerrors.ErrUnauthenticated):
		return "authentication required"
	default:
		return "internal error"
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encoding response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, resp errorResponse) {
	h.writeJSON(w, status, resp)
}
