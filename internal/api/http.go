// Package api exposes the question pipeline over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalambet/sqlrag/internal/history"
	"github.com/kalambet/sqlrag/internal/pipeline"
	"github.com/kalambet/sqlrag/internal/storage"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB
	maxQuestionLen     = 2000
	defaultListLimit   = 20
	maxListLimit       = 200
)

// Answerer answers one natural-language question.
type Answerer interface {
	Answer(ctx context.Context, question string) pipeline.Outcome
}

// HistoryLister lists recently cached question/query pairs.
type HistoryLister interface {
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
}

// RunStore reads the run audit log.
type RunStore interface {
	ListRuns(ctx context.Context, limit int, status string) ([]storage.Run, error)
	GetRun(ctx context.Context, id string) (storage.Run, error)
}

// Deps are the components behind the HTTP API. Gatherer may be nil, in
// which case /metrics is not served. APIToken enables bearer auth on /v1.
type Deps struct {
	Pipeline Answerer
	History  HistoryLister
	Runs     RunStore
	Gatherer prometheus.Gatherer
	APIToken string
}

// NewHandler returns the HTTP API router.
func NewHandler(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		if d.APIToken != "" {
			r.Use(BearerAuth(d.APIToken))
		}
		r.Post("/ask", handleAsk(d.Pipeline))
		r.Get("/history", handleHistory(d.History))
		r.Get("/runs", handleListRuns(d.Runs))
		r.Get("/runs/{id}", handleGetRun(d.Runs))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// AskRequest is the body of POST /v1/ask.
type AskRequest struct {
	Question string `json:"question"`
}

func handleAsk(p Answerer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req AskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: %v", err)
			return
		}
		q := strings.TrimSpace(req.Question)
		if q == "" {
			httpError(w, http.StatusBadRequest, codeBadRequest, "question is required")
			return
		}
		if len([]rune(q)) > maxQuestionLen {
			httpError(w, http.StatusBadRequest, codeBadRequest, "question exceeds %d characters", maxQuestionLen)
			return
		}

		writeJSON(w, http.StatusOK, p.Answer(r.Context(), q))
	}
}

func handleHistory(h HistoryLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := parseLimit(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, codeBadRequest, "%v", err)
			return
		}
		entries, err := h.Recent(r.Context(), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, codeInternal, "listing history: %v", err)
			return
		}
		if entries == nil {
			entries = []history.Entry{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
	}
}

// RunView is the JSON form of a stored run.
type RunView struct {
	ID            string          `json:"id"`
	CreatedAt     time.Time       `json:"created_at"`
	Question      string          `json:"question"`
	FinalQuery    string          `json:"final_query"`
	FromCache     bool            `json:"from_cache"`
	CacheDistance *float64        `json:"cache_distance,omitempty"`
	Attempts      json.RawMessage `json:"attempts"`
	Answer        string          `json:"answer"`
	Status        string          `json:"status"`
	HistoryID     string          `json:"history_id,omitempty"`
	DurationMs    int64           `json:"duration_ms"`
}

// NewRunView converts a stored run for display.
func NewRunView(r storage.Run) RunView {
	attempts := json.RawMessage(r.Attempts)
	if !json.Valid(attempts) {
		attempts = json.RawMessage("[]")
	}
	return RunView{
		ID:            r.ID,
		CreatedAt:     r.CreatedAt,
		Question:      r.Question,
		FinalQuery:    r.FinalQuery,
		FromCache:     r.FromCache,
		CacheDistance: r.CacheDistance,
		Attempts:      attempts,
		Answer:        r.Answer,
		Status:        r.Status,
		HistoryID:     r.HistoryID,
		DurationMs:    r.Duration.Milliseconds(),
	}
}

func handleListRuns(s RunStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := parseLimit(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, codeBadRequest, "%v", err)
			return
		}
		status := r.URL.Query().Get("status")
		switch status {
		case "", storage.RunDone, storage.RunFailed, storage.RunRejected:
		default:
			httpError(w, http.StatusBadRequest, codeBadRequest, "unknown status %q", status)
			return
		}

		runs, err := s.ListRuns(r.Context(), limit, status)
		if err != nil {
			httpError(w, http.StatusInternalServerError, codeInternal, "listing runs: %v", err)
			return
		}
		views := make([]RunView, len(runs))
		for i, run := range runs {
			views[i] = NewRunView(run)
		}
		writeJSON(w, http.StatusOK, map[string]any{"runs": views})
	}
}

func handleGetRun(s RunStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		run, err := s.GetRun(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, codeNotFound, "run %s not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, codeInternal, "loading run: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, NewRunView(run))
	}
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// Error codes carried in ErrorResponse.Code.
const (
	codeBadRequest   = "bad_request"
	codeUnauthorized = "unauthorized"
	codeNotFound     = "not_found"
	codeInternal     = "internal"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func httpError(w http.ResponseWriter, status int, code string, format string, args ...any) {
	writeJSON(w, status, ErrorResponse{Error: fmt.Sprintf(format, args...), Code: code})
}
