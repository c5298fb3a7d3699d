// Package http implements the worker's operational HTTP endpoints: health
// checks, Prometheus metrics, sync queue inspection and scheduled job status.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/alem-hub/study-pace/internal/infrastructure/scheduler"
	"github.com/alem-hub/study-pace/internal/infrastructure/syncqueue"
	"github.com/alem-hub/study-pace/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Addr - address to listen on (default: ":9090").
	Addr string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         ":9090",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// QueueService is the part of the sync queue exposed over HTTP.
type QueueService interface {
	Pending(ctx context.Context) ([]syncqueue.Item, error)
	Drain(ctx context.Context) (syncqueue.DrainReport, error)
}

// JobsService is the read side of the scheduler.
type JobsService interface {
	ListJobs() []scheduler.JobInfo
	GetJobInfo(name string) (*scheduler.JobInfo, error)
	GetHistory(limit int) []scheduler.JobResult
}

// Dependencies contains all dependencies required by the handlers.
type Dependencies struct {
	Logger *zap.Logger

	// Health runs the registered checks. Nil reports healthy.
	Health *HealthChecker

	// Gatherer is served on /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer

	// Queue enables /queue endpoints when set.
	Queue QueueService

	// Jobs enables /jobs endpoints when set.
	Jobs JobsService
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     *http.ServeMux
	log        *zap.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	if config.Addr == "" {
		config.Addr = DefaultConfig().Addr
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Health == nil {
		deps.Health = NewHealthChecker("", 0)
	}

	s := &Server{
		config: config,
		deps:   deps,
		router: http.NewServeMux(),
		log:    deps.Logger.With(logger.Component("http")),
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
	}
	return s
}

// Handler returns the router wrapped with middleware.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.router)
	h = s.loggingMiddleware(h)
	h = s.requestIDMiddleware(h)
	h = s.recoveryMiddleware(h)
	return h
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes() {
	// Health & Status
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /healthz", s.handleHealth) // Kubernetes alias
	s.router.HandleFunc("GET /ready", s.handleHealth)
	s.router.HandleFunc("GET /live", s.handleLive)

	// Metrics
	if s.deps.Gatherer != nil {
		s.router.Handle("GET /metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}

	// Sync queue
	if s.deps.Queue != nil {
		s.router.HandleFunc("GET /queue", s.handleQueue)
		s.router.HandleFunc("POST /queue/drain", s.handleDrain)
	}

	// Scheduled jobs
	if s.deps.Jobs != nil {
		s.router.HandleFunc("GET /jobs", s.handleJobs)
		s.router.HandleFunc("GET /jobs/{name}", s.handleJob)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.Health.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// QueueResponse is the body of GET /queue.
type QueueResponse struct {
	Depth int              `json:"depth"`
	Items []syncqueue.Item `json:"items"`
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Queue.Pending(r.Context())
	if err != nil {
		s.log.Error("failed to read sync queue", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "queue_unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, QueueResponse{Depth: len(items), Items: items})
}

// DrainResponse is the body of POST /queue/drain.
type DrainResponse struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Retried   int `json:"retried"`
	Dropped   int `json:"dropped"`
	Remaining int `json:"remaining"`
}

func (s *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Queue.Drain(r.Context())
	if err != nil {
		s.log.Error("manual drain failed", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "drain_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, DrainResponse{
		Attempted: report.Attempted,
		Succeeded: report.Succeeded,
		Retried:   report.Retried,
		Dropped:   len(report.Dropped),
		Remaining: report.Remaining,
	})
}

// jobHistoryLimit caps the runs returned by GET /jobs.
const jobHistoryLimit = 50

// JobView is one registered job.
type JobView struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Schedule    string      `json:"schedule"`
	LastRun     *time.Time  `json:"last_run,omitempty"`
	NextRun     *time.Time  `json:"next_run,omitempty"`
	RunCount    int64       `json:"run_count"`
	FailCount   int64       `json:"fail_count"`
	LastResult  *JobRunView `json:"last_result,omitempty"`
}

// JobRunView is one finished run.
type JobRunView struct {
	Job        string    `json:"job"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
	Manual     bool      `json:"manual"`
	Error      string    `json:"error,omitempty"`
}

// JobsResponse is the body of GET /jobs.
type JobsResponse struct {
	Jobs    []JobView    `json:"jobs"`
	History []JobRunView `json:"history"`
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	infos := s.deps.Jobs.ListJobs()
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	resp := JobsResponse{Jobs: make([]JobView, 0, len(infos)), History: []JobRunView{}}
	for _, info := range infos {
		resp.Jobs = append(resp.Jobs, toJobView(info))
	}
	for _, run := range s.deps.Jobs.GetHistory(jobHistoryLimit) {
		resp.History = append(resp.History, toJobRunView(run))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	info, err := s.deps.Jobs.GetJobInfo(r.PathValue("name"))
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "job_not_found", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toJobView(*info))
}

func toJobView(info scheduler.JobInfo) JobView {
	v := JobView{
		Name:        info.Name,
		Description: info.Description,
		Schedule:    info.Schedule,
		LastRun:     optionalTime(info.LastRun),
		NextRun:     optionalTime(info.NextRun),
		RunCount:    info.RunCount,
		FailCount:   info.FailCount,
	}
	if info.LastResult != nil {
		run := toJobRunView(*info.LastResult)
		v.LastResult = &run
	}
	return v
}

func toJobRunView(res scheduler.JobResult) JobRunView {
	v := JobRunView{
		Job:        res.JobName,
		StartedAt:  res.StartedAt,
		DurationMs: res.Duration.Milliseconds(),
		Success:    res.Success,
		Manual:     res.Manual,
	}
	if res.Error != nil {
		v.Error = res.Error.Error()
	}
	return v
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

type contextKey string

const contextKeyRequestID contextKey = "request_id"

// requestIDMiddleware adds a unique request ID to each request.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), contextKeyRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs all HTTP requests. Probes log at debug.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rw.statusCode),
			logger.Latency(time.Since(start)),
			zap.String("request_id", requestID(r.Context())),
		}
		switch r.URL.Path {
		case "/health", "/healthz", "/ready", "/live", "/metrics":
			s.log.Debug("http request", fields...)
		default:
			s.log.Info("http request", fields...)
		}
	})
}

// recoveryMiddleware recovers from panics and returns 500.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.log.Error("panic recovered",
					zap.Any("error", err),
					zap.ByteString("stack", debug.Stack()),
					zap.String("path", r.URL.Path),
				)
				writeJSONError(w, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return id
	}
	return ""
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.log.Info("starting HTTP server", zap.String("address", s.config.Addr))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.log.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Address returns the server address.
func (s *Server) Address() string {
	return s.config.Addr
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSES
// ══════════════════════════════════════════════════════════════════════════════

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}
