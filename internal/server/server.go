// Package server provides the HTTP API of the letter lab: participant
// endpoints under /lab and the admin console under /api/admin.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/jonathan/letterlab/internal/config"
	"github.com/jonathan/letterlab/internal/db"
	"github.com/jonathan/letterlab/internal/prompts"
	"github.com/jonathan/letterlab/internal/server/middleware"
	"github.com/jonathan/letterlab/internal/server/ratelimit"
	"github.com/jonathan/letterlab/internal/tokens"
	"github.com/jonathan/letterlab/internal/workflow"
)

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	store      db.Store
	workflow   *workflow.Service
	prompts    *prompts.Store
	tokens     *tokens.Service
	jwt        *JWTService
	admin      *config.AdminCredentials
	limiter    *ratelimit.Limiter
	validator  *validator.Validate
	logger     *zap.Logger
	opts       Options
}

// Deps are the services a Server routes requests to
type Deps struct {
	Store    db.Store
	Workflow *workflow.Service
	Prompts  *prompts.Store
	Tokens   *tokens.Service
	JWT      *JWTService
	Admin    *config.AdminCredentials
	Limiter  *ratelimit.Limiter
	Logger   *zap.Logger
}

// Options holds server configuration
type Options struct {
	Port           string
	AllowedOrigins []string
	CookieSecure   bool
}

// New creates a new server instance
func New(deps Deps, opts Options) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limiter := deps.Limiter
	if limiter == nil {
		limiter = ratelimit.NewLimiter(ratelimit.LoadConfig())
	}

	s := &Server{
		store:     deps.Store,
		workflow:  deps.Workflow,
		prompts:   deps.Prompts,
		tokens:    deps.Tokens,
		jwt:       deps.JWT,
		admin:     deps.Admin,
		limiter:   limiter,
		validator: validator.New(),
		logger:    logger,
		opts:      opts,
	}

	s.httpServer = &http.Server{
		Addr:         ":" + opts.Port,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // generation steps retry slow model calls
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the fully wrapped request handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	s.registerLabRoutes(mux)
	s.registerAdminRoutes(mux)

	return s.withRateLimit(middleware.Logging(s.logger)(middleware.CORS(s.opts.AllowedOrigins)(mux)))
}

// participantOnly requires a participant token whose access code is still active
func (s *Server) participantOnly(next http.HandlerFunc) http.Handler {
	return middleware.Auth(middleware.AuthOptions{
		Validator:  s.jwt.AsTokenValidator(),
		Role:       RoleParticipant,
		CookieName: ParticipantCookie,
		Check: func(ctx context.Context, p middleware.Principal) error {
			_, err := s.tokens.CheckActive(ctx, p.PrincipalSubject())
			return err
		},
	})(next)
}

// adminOnly requires an admin token
func (s *Server) adminOnly(next http.HandlerFunc) http.Handler {
	return middleware.Auth(middleware.AuthOptions{
		Validator:  s.jwt.AsTokenValidator(),
		Role:       RoleAdmin,
		CookieName: AdminCookie,
	})(next)
}

// Start begins listening for requests and blocks until SIGINT or SIGTERM
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := s.extractClientID(r)

		allowed, info := s.limiter.Allow(clientID, r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// successResponse writes {"success": true}
func (s *Server) successResponse(w http.ResponseWriter) {
	s.jsonResponse(w, http.StatusOK, map[string]bool{"success": true})
}

// extractClientID extracts the client identifier from the request.
// X-Forwarded-For is not trusted; deployments behind a proxy should set RemoteAddr.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}

	if info.RetryAfter > 0 {
		// Round up so clients never retry early
		seconds := int((info.RetryAfter + time.Second - 1) / time.Second)
		response["retry_after"] = seconds
		w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
	}

	s.logger.Warn("rate limit exceeded",
		zap.Int("limit", info.Limit),
		zap.Time("reset", info.ResetTime),
	)

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
