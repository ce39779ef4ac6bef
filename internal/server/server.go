package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jonathan/feedback-reviews/internal/config"
	"github.com/jonathan/feedback-reviews/internal/feedback"
	"github.com/jonathan/feedback-reviews/internal/notify"
	"github.com/jonathan/feedback-reviews/internal/server/middleware"
	"github.com/jonathan/feedback-reviews/internal/server/ratelimit"
	"github.com/jonathan/feedback-reviews/internal/types"
)

// SchedulerTokenHeader carries the scheduler invoker's shared token.
const SchedulerTokenHeader = "X-Scheduler-Token"

const maxBodyBytes = 1 << 20

// Pinger reports database reachability for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	httpServer         *http.Server
	service            *feedback.Service
	scheduler          *notify.Scheduler
	auth               func(http.Handler) http.Handler
	schedulerTokenHash string
	rateLimiter        *ratelimit.Limiter
	database           Pinger
	logger             *slog.Logger
	validator          *validator.Validate
	shutdownTimeout    time.Duration
}

// Config holds server dependencies and settings
type Config struct {
	Port               int
	ShutdownTimeout    time.Duration
	Service            *feedback.Service
	Scheduler          *notify.Scheduler
	Tokens             middleware.TokenValidator
	SchedulerTokenHash string
	RateLimit          *ratelimit.Config
	Database           Pinger // optional
	Logger             *slog.Logger
}

// New creates a new server instance
func New(cfg Config) (*Server, error) {
	if cfg.Service == nil {
		return nil, fmt.Errorf("server requires a feedback service")
	}
	if cfg.Scheduler == nil {
		return nil, fmt.Errorf("server requires a scheduler")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("server requires a token validator")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	s := &Server{
		service:            cfg.Service,
		scheduler:          cfg.Scheduler,
		auth:               middleware.AuthMiddleware(cfg.Tokens),
		schedulerTokenHash: cfg.SchedulerTokenHash,
		rateLimiter:        ratelimit.NewLimiter(cfg.RateLimit),
		database:           cfg.Database,
		logger:             cfg.Logger,
		validator:          validator.New(),
		shutdownTimeout:    cfg.ShutdownTimeout,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	// Reviewer routes
	s.handle(mux, "GET /assignments/{id}", s.handleGetAssignment)
	s.handle(mux, "POST /assignments/{id}/submission", s.handleSubmit)
	s.handle(mux, "POST /assignments/{id}/status", s.handleStatus)
	s.handle(mux, "GET /assignments/{id}/progress", s.handleLoadProgress)
	s.handle(mux, "POST /assignments/{id}/progress", s.handleSaveProgress)
	s.handle(mux, "PUT /assignments/{id}/progress", s.handleSaveProgress)
	s.handle(mux, "DELETE /assignments/{id}/progress", s.handleDiscardProgress)

	// Admin routes
	s.handleAdmin(mux, "POST /reviews", s.handleCreateReview)
	s.handleAdmin(mux, "GET /reviews/{id}", s.handleGetReview)
	s.handleAdmin(mux, "POST /reviews/{id}/close", s.handleCloseReview)
	s.handleAdmin(mux, "POST /reviews/{id}/nudge", s.handleNudgeReview)
	s.handleAdmin(mux, "POST /assignments/{id}/retract", s.handleRetract)

	// Scheduler invoker routes
	mux.Handle("POST /scheduler/due-soon", s.withSchedulerToken(s.withRateLimit("POST /scheduler/due-soon", http.HandlerFunc(s.handleDueSoon))))
	mux.Handle("POST /scheduler/overdue", s.withSchedulerToken(s.withRateLimit("POST /scheduler/overdue", http.HandlerFunc(s.handleOverdue))))

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.withLogging(s.withCORS(mux)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}
	return s, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, s.auth(s.withRateLimit(pattern, h)))
}

func (s *Server) handleAdmin(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, s.auth(s.requireAdmin(pattern, s.withRateLimit(pattern, h))))
}

// requireAdmin rejects callers without the admin role. It runs after auth.
func (s *Server) requireAdmin(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := middleware.GetIdentity(r)
		if err != nil {
			s.writeError(w, &ErrUnauthorized{Reason: err.Error()})
			return
		}
		if !identity.IsAdmin() {
			s.writeError(w, &ErrForbidden{Action: route})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start serves until ctx is cancelled or the process receives SIGINT or
// SIGTERM, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.rateLimiter.Stop()
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.rateLimiter.Stop()
	s.logger.Info("server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit limits each caller per route. Callers are identified by
// email when authenticated, by address otherwise.
func (s *Server) withRateLimit(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := s.extractClientID(r)
		allowed, info := s.rateLimiter.Allow(clientID, route)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, clientID, route, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withSchedulerToken admits only callers presenting the scheduler token.
func (s *Server) withSchedulerToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !config.VerifyToken(r.Header.Get(SchedulerTokenHeader), s.schedulerTokenHash) {
			s.writeError(w, &ErrUnauthorized{Reason: "invalid scheduler token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.database == nil {
		s.jsonResponse(w, http.StatusOK, types.HealthResponse{Status: "ok"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.database.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", "error", err)
		s.jsonResponse(w, http.StatusServiceUnavailable, types.HealthResponse{Status: "degraded", Database: "unreachable"})
		return
	}
	s.jsonResponse(w, http.StatusOK, types.HealthResponse{Status: "ok", Database: "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", "error", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, types.ErrorResponse{Error: message})
}

// writeError maps err to a status. Internal failures are logged and not
// echoed to the caller.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
		s.errorResponse(w, status, "internal server error")
		return
	}
	s.errorResponse(w, status, err.Error())
}

// extractClientID identifies the caller for rate limiting.
func (s *Server) extractClientID(r *http.Request) string {
	if identity, err := middleware.GetIdentity(r); err == nil {
		return identity.Email
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response.
func (s *Server) rateLimitResponse(w http.ResponseWriter, clientID, route string, info ratelimit.Info) {
	retryAfter := int(info.RetryAfter.Round(time.Second).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	s.logger.Warn("rate limit exceeded", "client", clientID, "route", route, "retry_after", retryAfter)
	s.jsonResponse(w, http.StatusTooManyRequests, map[string]any{
		"error":       "rate_limit_exceeded",
		"message":     "Rate limit exceeded. Please try again later.",
		"retry_after": retryAfter,
	})
}
