// Package server is the HTTP host for the council pipeline. It owns routing,
// CORS, request ids, and the mapping from taxonomy errors to status codes;
// all pipeline semantics live below it.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haricheung/council/internal/config"
	"github.com/haricheung/council/internal/errs"
	"github.com/haricheung/council/internal/pipeline"
	"github.com/haricheung/council/internal/types"
)

const version = "1.0.0"

// Server hosts the pipeline behind the HTTP API.
type Server struct {
	cfg      *config.Settings
	pipeline *pipeline.Pipeline
	registry *prometheus.Registry // nil when metrics are disabled
}

// New creates the HTTP host. registry may be nil (metrics disabled; /metrics
// is not mounted).
func New(cfg *config.Settings, p *pipeline.Pipeline, registry *prometheus.Registry) *Server {
	return &Server{cfg: cfg, pipeline: p, registry: registry}
}

// Handler builds the full route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	r.Get("/", s.handleRoot)
	r.Post("/api/query", s.handleQuery)
	r.Get("/api/health", s.handleHealth)
	r.Get("/api/models", s.handleModels)
	r.Get("/api/stats", s.handleStats)
	r.Post("/api/cache/clear", s.handleCacheClear)
	if s.registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "LLM Council API",
		"version": version,
		"status":  "operational",
	})
}

// queryRequest is the POST /api/query body. Options default per field when
// the object is partial or absent.
type queryRequest struct {
	Query   string          `json:"query"`
	Options json.RawMessage `json:"options"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := "req_" + uuid.New().String()

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.BadInput("invalid request body"), requestID, time.Since(start).Seconds())
		return
	}

	opts := types.DefaultOptions(int(s.cfg.RequestTimeout.Seconds()))
	if len(req.Options) > 0 {
		if err := json.Unmarshal(req.Options, &opts); err != nil {
			writeError(w, errs.BadInput("invalid options"), requestID, time.Since(start).Seconds())
			return
		}
	}

	slog.Info("[API] query received", "request_id", requestID, "query_len", len(req.Query))
	result, err := s.pipeline.Run(r.Context(), req.Query, opts, requestID)
	if err != nil {
		writeError(w, err, requestID, time.Since(start).Seconds())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()
	writeJSON(w, http.StatusOK, s.pipeline.CheckHealth(ctx))
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	cfg := s.cfg
	writeJSON(w, http.StatusOK, map[string]any{
		"stage1_models": []map[string]string{
			{"name": cfg.Stage1LocalLabel, "type": "local", "endpoint": cfg.Stage1LocalURL, "role": "first_opinion"},
			{"name": cfg.Stage1HostedLabel, "type": "remote", "endpoint": cfg.HostedAPIURL, "role": "first_opinion"},
		},
		"paraphrase_model": map[string]string{
			"name": cfg.ParaphraseLabel, "type": "local", "endpoint": cfg.ParaphraseURL, "role": "claim_extraction",
		},
		"reviewer_models": []map[string]string{
			{"name": cfg.ReviewerALabel, "type": "local", "endpoint": cfg.ReviewerAURL, "role": "reviewer_a"},
			{"name": cfg.ReviewerBLabel, "type": "local", "endpoint": cfg.ReviewerBURL, "role": "reviewer_b"},
		},
		"chairman_model": map[string]string{
			"name": cfg.ChairmanLabel, "type": "remote", "endpoint": cfg.ChairmanAPIURL, "role": "final_synthesis",
		},
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pipeline.Statistics())
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if err := s.pipeline.ClearCache(); err != nil {
		slog.Error("[API] cache clear failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to clear cache"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Cache cleared successfully"})
}

// errorEnvelope is the body of every failed /api/query response.
type errorEnvelope struct {
	Error          string  `json:"error"`
	Message        string  `json:"message"`
	RequestID      string  `json:"request_id"`
	ProcessingTime float64 `json:"processing_time"`
}

func writeError(w http.ResponseWriter, err error, requestID string, processing float64) {
	status := errs.HTTPStatus(err)
	slog.Error("[API] request failed", "request_id", requestID, "status", status, "error", err)
	writeJSON(w, status, errorEnvelope{
		Error:          string(errs.KindOf(err)),
		Message:        err.Error(),
		RequestID:      requestID,
		ProcessingTime: processing,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
