// Package api implements the HTTP API.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/soferos/govpulse/internal/agent"
	"github.com/soferos/govpulse/internal/buildinfo"
	"github.com/soferos/govpulse/internal/feedback"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response,
// which is not actionable but worth tracking for debugging.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Asker answers natural-language queries. Satisfied by
// *agent.Orchestrator.
type Asker interface {
	Ask(ctx context.Context, query string) (*agent.Answer, error)
}

// Server is the HTTP API server.
type Server struct {
	listen     string
	asker      Asker
	feedback   *feedback.Log
	logger     *slog.Logger
	askTimeout time.Duration
	server     *http.Server
}

// NewServer creates a new API server. askTimeout bounds a single /ask
// request end to end; zero means no deadline.
func NewServer(listen string, asker Asker, fb *feedback.Log, askTimeout time.Duration, logger *slog.Logger) *Server {
	return &Server{
		listen:     listen,
		asker:      asker,
		feedback:   fb,
		askTimeout: askTimeout,
		logger:     logger,
	}
}

// Handler returns the server's routing table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /ask", s.handleAsk)
	mux.HandleFunc("POST /feedback", s.handleFeedback)

	mux.HandleFunc("GET /version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /", s.handleRoot)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests. Blocks until the listener
// fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        s.listen,
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// Long enough for a full tool-calling round trip.
		WriteTimeout: 120 * time.Second,
	}

	s.logger.Info("starting API server", "listen", s.listen)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "GovPulse",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}

// QueryRequest is the /ask request body.
type QueryRequest struct {
	Query  string `json:"query"`
	UserID string `json:"user_id,omitempty"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		s.errorResponse(w, http.StatusBadRequest, "query is required")
		return
	}

	ctx := r.Context()
	if s.askTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.askTimeout)
		defer cancel()
	}

	answer, err := s.asker.Ask(ctx, req.Query)
	if err != nil {
		s.logger.Error("ask failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, answer, s.logger)
}

// FeedbackRequest is the /feedback request body.
type FeedbackRequest struct {
	Query    string `json:"query"`
	Response string `json:"response,omitempty"`
	Rating   string `json:"rating"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !feedback.ValidRating(req.Rating) {
		s.errorResponse(w, http.StatusBadRequest, "rating must be 'up' or 'down'")
		return
	}

	entry, err := s.feedback.Append(req.Rating, req.Query)
	if err != nil {
		s.logger.Error("feedback append failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to record feedback")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"status": "logged",
		"id":     entry.ID.String(),
	}, s.logger)
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}
