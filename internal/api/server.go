package api

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/broadcrawl-worker/internal/crawler"
	"github.com/JakeFAU/broadcrawl-worker/internal/metrics"
	"github.com/JakeFAU/broadcrawl-worker/internal/worker"
)

// requiredKeys must all be present in a POST /crawl body.
var requiredKeys = []string{"url", "collection", "id", "domain", "level", "retry"}

// JobExecutor runs one job end to end.
type JobExecutor interface {
	Prepare(job crawler.Job) (crawler.Job, error)
	Announce(ctx context.Context, job crawler.Job) error
	Execute(ctx context.Context, job crawler.Job) (worker.Result, error)
}

// Server wires HTTP handlers to the job executor.
type Server struct {
	router   chi.Router
	executor JobExecutor
	logger   *zap.Logger
	// slot admits one crawl at a time.
	slot chan struct{}
}

type crawlResponse struct {
	Message  string            `json:"message"`
	Event    crawler.EventType `json:"event"`
	CrawlID  string            `json:"crawlId"`
	ExitCode int               `json:"exitCode"`
	S3Path   string            `json:"s3Path,omitempty"`
}

// NewServer constructs a Server with middleware and routes.
func NewServer(executor JobExecutor, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	s := &Server{
		executor: executor,
		logger:   logger,
		slot:     make(chan struct{}, 1),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(metrics.Middleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Post("/crawl", s.crawl)

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) crawl(w http.ResponseWriter, r *http.Request) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("decode request: %v", err))
		return
	}
	if missing := missingKeys(raw); len(missing) > 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("missing required keys: %v", missing))
		return
	}
	var job crawler.Job
	if err := decodeFields(raw, &job); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	select {
	case s.slot <- struct{}{}:
		defer func() { <-s.slot }()
	case <-r.Context().Done():
		writeError(w, http.StatusInternalServerError, r.Context().Err().Error())
		return
	}

	job, err := s.executor.Prepare(job)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.executor.Announce(r.Context(), job); err != nil {
		s.logger.Warn("processing event not published", zap.String("crawl_id", job.ID), zap.Error(err))
	}
	res, err := s.executor.Execute(r.Context(), job)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, crawlResponse{
		Message:  fmt.Sprintf("crawl completed for %s", job.URL),
		Event:    res.Event,
		CrawlID:  job.ID,
		ExitCode: res.Crawl.ExitCode,
		S3Path:   res.Upload.BaseURI,
	})
}

func missingKeys(raw map[string]json.RawMessage) []string {
	var missing []string
	for _, k := range requiredKeys {
		if v, ok := raw[k]; !ok || string(v) == "null" {
			missing = append(missing, k)
		}
	}
	sort.Strings(missing)
	return missing
}

func decodeFields(raw map[string]json.RawMessage, job *crawler.Job) error {
	fields := []struct {
		key string
		dst any
	}{
		{"url", &job.URL},
		{"collection", &job.Collection},
		{"id", &job.ID},
		{"domain", &job.Domain},
		{"level", &job.Level},
		{"retry", &job.Retry},
	}
	for _, f := range fields {
		if err := json.Unmarshal(raw[f.key], f.dst); err != nil {
			return fmt.Errorf("decode %s: %w", f.key, err)
		}
	}
	return nil
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			reqID, _ := r.Context().Value(requestIDKey{}).(string)
			logger.Info("request completed",
				zap.String("request_id", reqID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
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

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
