package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/datapilot-ai/datapilot/internal/auth"
	"github.com/datapilot-ai/datapilot/internal/engine"
	"github.com/datapilot-ai/datapilot/internal/ratelimit"
	"github.com/datapilot-ai/datapilot/internal/service/suggest"
	"github.com/datapilot-ai/datapilot/internal/storage"
)

// Server is the DataPilot HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Bootstrapper, SuggestSvc, AuthLimiter, AskLimiter.
type ServerConfig struct {
	// Required dependencies.
	DB     *storage.DB
	JWTMgr *auth.JWTManager
	Engine *engine.Engine
	Logger *slog.Logger

	// Optional dependencies (nil = disabled).
	Bootstrapper *engine.Bootstrapper
	SuggestSvc   *suggest.Service
	AuthLimiter  ratelimit.Limiter // credential endpoints, keyed by IP
	AskLimiter   ratelimit.Limiter // engine endpoints, keyed by user

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		DB:                  cfg.DB,
		JWTMgr:              cfg.JWTMgr,
		Engine:              cfg.Engine,
		Bootstrapper:        cfg.Bootstrapper,
		SuggestSvc:          cfg.SuggestSvc,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	// Request ID extractor for rate limit error responses.
	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}

	// Credential endpoints are limited by client IP, engine endpoints by the
	// authenticated user. Engine runs are minutes-long LLM pipelines, so the
	// ask limiter is expected to be far tighter than the auth one.
	authRL := ratelimit.Middleware(cfg.AuthLimiter, ratelimit.IPKeyFunc, reqIDFunc)
	askRL := ratelimit.Middleware(cfg.AskLimiter, userKeyFunc, reqIDFunc)

	mux := http.NewServeMux()

	// Account endpoints (no auth required, rate limited by IP).
	mux.Handle("POST /auth/register", authRL(http.HandlerFunc(h.HandleRegister)))
	mux.Handle("POST /auth/login", authRL(http.HandlerFunc(h.HandleLogin)))

	// Profile.
	mux.HandleFunc("GET /v1/me", h.HandleGetMe)
	mux.HandleFunc("PATCH /v1/me", h.HandleUpdateMe)

	// Folders.
	mux.HandleFunc("POST /v1/folders", h.HandleCreateFolder)
	mux.HandleFunc("GET /v1/folders", h.HandleListFolders)
	mux.HandleFunc("PATCH /v1/folders/{folder_id}", h.HandleRenameFolder)
	mux.HandleFunc("DELETE /v1/folders/{folder_id}", h.HandleDeleteFolder)

	// Question history. The mux prefers the literal "similar" segment over
	// the {question_id} wildcard.
	mux.HandleFunc("GET /v1/questions", h.HandleListQuestions)
	mux.HandleFunc("GET /v1/questions/similar", h.HandleSimilarQuestions)
	mux.HandleFunc("GET /v1/questions/{question_id}", h.HandleGetQuestion)
	mux.HandleFunc("DELETE /v1/questions/{question_id}", h.HandleDeleteQuestion)
	mux.HandleFunc("PATCH /v1/questions/{question_id}/like", h.HandleLikeQuestion)
	mux.HandleFunc("PATCH /v1/questions/{question_id}/folder", h.HandleMoveQuestion)

	// Decision engine endpoints (rate limited per user).
	mux.Handle("POST /v1/ask/metadata", askRL(http.HandlerFunc(h.HandleDiscoverMetadata)))
	mux.Handle("POST /v1/ask", askRL(http.HandlerFunc(h.HandleAsk)))

	// Health (no auth, no rate limit).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// userKeyFunc extracts the authenticated user ID for rate limiting.
// Returns empty string (skip) when the request carries no claims.
func userKeyFunc(r *http.Request) string {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		return ""
	}
	return claims.Subject
}

// Handlers returns the underlying Handlers.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
