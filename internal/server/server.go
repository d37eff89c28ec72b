package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jonathan/job-matcher/internal/logging"
	"github.com/jonathan/job-matcher/internal/server/middleware"
	"github.com/jonathan/job-matcher/internal/server/ratelimit"
	"github.com/jonathan/job-matcher/internal/workflow"
	"go.uber.org/zap"
)

const (
	defaultPollInterval    = time.Second
	defaultShutdownTimeout = 30 * time.Second
	maxBodyBytes           = 1 << 20
)

// Options wires the server to its collaborators.
type Options struct {
	Port            int
	Service         *workflow.Service
	Tokens          middleware.TokenValidator
	StageSecret     string
	RateLimiter     *ratelimit.Limiter
	Logger          *zap.Logger
	PollInterval    time.Duration
	ShutdownTimeout time.Duration
}

// Server is the HTTP API.
type Server struct {
	httpServer      *http.Server
	svc             *workflow.Service
	rateLimiter     *ratelimit.Limiter
	validate        *validator.Validate
	logger          *zap.Logger
	pollInterval    time.Duration
	shutdownTimeout time.Duration
}

// New builds the server and its routes.
func New(opts Options) (*Server, error) {
	if opts.Service == nil {
		return nil, errors.New("server: workflow service is required")
	}
	if opts.Tokens == nil {
		return nil, errors.New("server: token validator is required")
	}

	s := &Server{
		svc:             opts.Service,
		rateLimiter:     opts.RateLimiter,
		validate:        validator.New(validator.WithRequiredStructEnabled()),
		logger:          logging.OrNop(opts.Logger),
		pollInterval:    opts.PollInterval,
		shutdownTimeout: opts.ShutdownTimeout,
	}
	if s.pollInterval <= 0 {
		s.pollInterval = defaultPollInterval
	}
	if s.shutdownTimeout <= 0 {
		s.shutdownTimeout = defaultShutdownTimeout
	}

	auth := middleware.AuthMiddleware(opts.Tokens)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.Handle("POST /workflows", auth(http.HandlerFunc(s.handleStartWorkflow)))
	mux.Handle("GET /workflows/{run_id}", auth(http.HandlerFunc(s.handleWorkflowStatus)))
	mux.Handle("GET /workflows/{run_id}/results", auth(http.HandlerFunc(s.handleSavedResults)))
	mux.Handle("GET /workflows/{run_id}/steps", auth(http.HandlerFunc(s.handleListSteps)))
	mux.Handle("POST /workflows/{run_id}/cancel", auth(http.HandlerFunc(s.handleCancelWorkflow)))
	mux.Handle("GET /progress/{tracking_id}", auth(http.HandlerFunc(s.handleProgress)))
	mux.Handle("GET /progress/{tracking_id}/stream", auth(http.HandlerFunc(s.handleProgressStream)))

	s.registerStageRoutes(mux, opts.StageSecret)

	var handler http.Handler = withCORS(mux)
	if s.rateLimiter != nil {
		handler = s.withRateLimit(handler)
	}
	handler = middleware.RequestLogger(s.logger)(handler)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// NewStageHandler serves only the internal stage routes. It backs deployments where
// each stage call lands on a function instance instead of the API server.
func NewStageHandler(svc *workflow.Service, stageSecret string, logger *zap.Logger) (http.Handler, error) {
	if svc == nil {
		return nil, errors.New("server: workflow service is required")
	}
	s := &Server{
		svc:      svc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logging.OrNop(logger),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	s.registerStageRoutes(mux, stageSecret)
	return middleware.RequestLogger(s.logger)(mux), nil
}

func (s *Server) registerStageRoutes(mux *http.ServeMux, secret string) {
	stageAuth := middleware.RequireSecret(middleware.StageSecretHeader, secret)
	mux.Handle("POST /internal/stages/{stage}", stageAuth(http.HandlerFunc(s.handleExecuteStage)))
	mux.Handle("POST /internal/stages/{stage}/fail", stageAuth(http.HandlerFunc(s.handleFailStage)))
}

// Handler returns the fully wrapped router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()
	if s.rateLimiter != nil {
		defer s.rateLimiter.Stop()
	}
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(clientID(r), r.URL.Path, r.Method)
		setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, r, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("failed to encode response", zap.Error(err))
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// serviceError maps a workflow service error onto a response.
func (s *Server) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	s.errorResponse(w, status, publicMessage(err, status))
}

// decodeBody reads a JSON body into dst and validates it.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		s.errorResponse(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Sprintf("validation error: %s - failed %q", fe.Field(), fe.Tag())
	}
	return err.Error()
}

// clientID identifies the caller for rate limiting by remote IP.
func clientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}
}

func (s *Server) rateLimitResponse(w http.ResponseWriter, r *http.Request, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}
	if info.RetryAfter > 0 {
		seconds := int(info.RetryAfter.Round(time.Second).Seconds())
		if seconds < 1 {
			seconds = 1
		}
		response["retry_after"] = seconds
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}

	s.logger.Warn("rate limit exceeded",
		zap.String("client", clientID(r)),
		zap.String("path", r.URL.Path),
		zap.Int("limit", info.Limit))
	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
