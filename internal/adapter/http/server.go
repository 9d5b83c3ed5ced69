package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cwygoda/pagebrief/internal/domain"
	"github.com/cwygoda/pagebrief/internal/poller"
)

const maxRequestBytes = 64 << 10

// Server is the HTTP adapter for the extraction service.
type Server struct {
	svc     *domain.ExtractionService
	poller  *poller.Poller
	mux     *http.ServeMux
	server  *http.Server
	limiter *IPLimiter
	logger  *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithRateLimit limits each client IP to rps requests per second.
// A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = NewIPLimiter(rps, burst)
	}
}

// NewServer creates a new HTTP server.
func NewServer(svc *domain.ExtractionService, p *poller.Poller, addr string, opts ...Option) *Server {
	s := &Server{
		svc:    svc,
		poller: p,
		mux:    http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.routes()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/extract", s.handleExtract)
	s.mux.HandleFunc("GET /api/extract/{id}", s.handleGetExtract)
	s.mux.HandleFunc("GET /health", s.handleHealth)
}

// extractRequest is the request body for POST /api/extract.
// Wait defaults to true.
type extractRequest struct {
	URL  string `json:"url"`
	Wait *bool  `json:"wait,omitempty"`
}

// extractResponse is the JSON envelope for every extraction endpoint.
type extractResponse struct {
	Success bool                  `json:"success"`
	ID      string                `json:"id,omitempty"`
	Status  string                `json:"status,omitempty"`
	Data    *domain.ExtractedData `json:"data,omitempty"`
	Error   string                `json:"error,omitempty"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := domain.ValidateURL(req.URL); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid URL")
		return
	}

	if req.Wait != nil && !*req.Wait {
		job, err := s.svc.Submit(r.Context(), req.URL)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if job.Status == domain.StatusCompleted {
			s.writeJSON(w, http.StatusOK, extractResponse{Success: true, Data: job.Result})
			return
		}
		s.writeJSON(w, http.StatusAccepted, extractResponse{
			Success: true,
			ID:      job.ID,
			Status:  string(domain.StatusPending),
		})
		return
	}

	data, err := s.poller.ExtractAndWait(r.Context(), req.URL)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, extractResponse{Success: true, Data: data})
}

func (s *Server) handleGetExtract(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	job, err := s.svc.Poll(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	switch job.Status {
	case domain.StatusCompleted:
		data := job.Result
		if data == nil {
			data = &domain.ExtractedData{Keywords: []string{}}
		}
		s.writeJSON(w, http.StatusOK, extractResponse{
			Success: true,
			ID:      id,
			Status:  string(job.Status),
			Data:    data,
		})
	case domain.StatusFailed:
		reason := job.Error
		if reason == "" {
			reason = "remote job failed"
		}
		s.fail(w, r, fmt.Errorf("%w: %s", domain.ErrJobFailed, reason))
	default:
		s.writeJSON(w, http.StatusAccepted, extractResponse{
			Success: true,
			ID:      id,
			Status:  string(job.Status),
		})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// fail logs err and writes the caller-facing status and message for it.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	} else {
		s.logger.Info("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	}
	s.writeError(w, status, msg)
}

// errorStatus maps a domain error to an HTTP status and a message safe to
// return to clients.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "invalid URL"
	case errors.Is(err, domain.ErrConfiguration):
		return http.StatusInternalServerError, domain.ErrConfiguration.Error()
	case errors.Is(err, domain.ErrJobNotFound):
		return http.StatusNotFound, domain.ErrJobNotFound.Error()
	case errors.Is(err, domain.ErrJobFailed):
		return http.StatusBadGateway, err.Error()
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout, domain.ErrTimeout.Error()
	case errors.Is(err, domain.ErrSubmission):
		return http.StatusBadGateway, domain.ErrSubmission.Error()
	case errors.Is(err, domain.ErrPoll):
		return http.StatusBadGateway, domain.ErrPoll.Error()
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "request cancelled"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("write response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, extractResponse{Success: false, Error: msg})
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// ServeHTTP applies the middleware chain and dispatches to the routes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	begin := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	defer func() {
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(begin),
		)
	}()

	if s.limiter != nil && !s.limiter.Allow(clientIP(r)) {
		s.logger.Warn("rate limited", "ip", clientIP(r), "path", r.URL.Path)
		s.writeError(rec, http.StatusTooManyRequests, "too many requests")
		return
	}
	s.mux.ServeHTTP(rec, r)
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.server.Addr
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
