package dashboard

import (
	"bufio"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/gazette-watch/internal/gazette"
	"github.com/JakeFAU/gazette-watch/internal/metrics"
)

// Defaults for the run listing.
const (
	DefaultRunLimit = 50
	MaxRunLimit     = 500

	neverRun = "Never"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// Config controls the dashboard server.
type Config struct {
	APIKey         string
	RequestTimeout time.Duration
}

// Summary mirrors the counters shown at the top of the dashboard.
type Summary struct {
	TotalExecutions int    `json:"total_executions"`
	SuccessfulRuns  int    `json:"successful_runs"`
	MatchesToday    int    `json:"matches_today"`
	LastRun         string `json:"last_run"`
}

// Server wires HTTP handlers to the ledger.
type Server struct {
	router chi.Router
	ledger gazette.LedgerReader
	clock  gazette.Clock
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes. gatherer may be
// nil to expose only the default registry.
func NewServer(ledger gazette.LedgerReader, clock gazette.Clock, gatherer prometheus.Gatherer, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	s := &Server{
		ledger: ledger,
		clock:  clock,
		logger: logger.Named("dashboard"),
	}

	gatherers := prometheus.Gatherers{prometheus.DefaultGatherer}
	if gatherer != nil {
		gatherers = append(gatherers, gatherer)
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		if cfg.APIKey != "" {
			r.Use(apiKeyMiddleware(cfg.APIKey))
		}
		r.Get("/", s.index)
		r.Route("/v1", func(r chi.Router) {
			r.Get("/runs", s.listRuns)
			r.Get("/matches", s.listMatches)
			r.Get("/summary", s.summary)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.ledger.Ping(ctx); err != nil {
		s.logger.Warn("ledger not ready", zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "ledger unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	runs, err := s.ledger.RecentRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("list runs failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []gazette.RunRecord{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) listMatches(w http.ResponseWriter, r *http.Request) {
	day := s.clock.Now()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.ParseInLocation(gazette.DateLayout, raw, day.Location())
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		day = parsed
	}
	matches, err := s.ledger.MatchesOn(r.Context(), day)
	if err != nil {
		s.logger.Error("list matches failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list matches")
		return
	}
	if matches == nil {
		matches = []gazette.MatchRow{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"date":    day.Format(gazette.DateLayout),
		"matches": matches,
	})
}

func (s *Server) summary(w http.ResponseWriter, r *http.Request) {
	view, err := s.load(r.Context())
	if err != nil {
		s.logger.Error("summary failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to build summary")
		return
	}
	s.writeJSON(w, http.StatusOK, view.Summary)
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	view, err := s.load(r.Context())
	if err != nil {
		s.logger.Error("dashboard load failed", zap.Error(err))
		http.Error(w, "failed to load dashboard", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, view); err != nil {
		s.logger.Error("render dashboard failed", zap.Error(err))
	}
}

type pageView struct {
	Summary Summary
	Runs    []gazette.RunRecord
	Matches []gazette.MatchRow
	Today   string
}

// load reads the recent runs and today's matches the same way for the HTML
// page and the summary endpoint.
func (s *Server) load(ctx context.Context) (pageView, error) {
	now := s.clock.Now()
	runs, err := s.ledger.RecentRuns(ctx, DefaultRunLimit)
	if err != nil {
		return pageView{}, fmt.Errorf("recent runs: %w", err)
	}
	matches, err := s.ledger.MatchesOn(ctx, now)
	if err != nil {
		return pageView{}, fmt.Errorf("matches today: %w", err)
	}
	return pageView{
		Summary: Summarize(runs, matches),
		Runs:    runs,
		Matches: matches,
		Today:   now.Format(gazette.DateLayout),
	}, nil
}

// Summarize computes the dashboard counters from the recent runs (newest
// first) and today's matches.
func Summarize(runs []gazette.RunRecord, matchesToday []gazette.MatchRow) Summary {
	sum := Summary{
		TotalExecutions: len(runs),
		MatchesToday:    len(matchesToday),
		LastRun:         neverRun,
	}
	for _, run := range runs {
		if run.Status == gazette.RunStatusSuccess {
			sum.SuccessfulRuns++
		}
	}
	if len(runs) > 0 {
		sum.LastRun = runs[0].StartedAt.Format(time.RFC3339)
	}
	return sum
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return DefaultRunLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if limit > MaxRunLimit {
		limit = MaxRunLimit
	}
	return limit, nil
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Info("request completed",
			zap.String("request_id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeJSONTo(w, http.StatusForbidden, map[string]string{"error": "unauthorized"}, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	writeJSONTo(w, status, payload, s.logger)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSONTo(w http.ResponseWriter, status int, payload any, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil && logger != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}
