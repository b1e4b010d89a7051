// Package api provides HTTP handlers and the main API server logic for Present Agent.
//
// It exposes the Instagram webhook (verification handshake and message events),
// the Twilio inbound webhook, session lifecycle endpoints, and a health check.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/presentagent/present-agent/internal/messaging"
	"github.com/presentagent/present-agent/internal/store"
)

// Constants for API server configuration
const (
	// DefaultAddr is the default listen address for the API server.
	DefaultAddr = ":8080"
	// DefaultReadHeaderTimeout bounds how long the server waits for request headers.
	DefaultReadHeaderTimeout = 10 * time.Second
	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr        string // listen address
	VerifyToken string // Instagram webhook verify token
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address for the API server.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithVerifyToken sets the Instagram webhook verification token.
func WithVerifyToken(token string) Option {
	return func(o *Opts) { o.VerifyToken = token }
}

// Server hosts the HTTP endpoints and owns their dependencies.
type Server struct {
	addr        string
	verifyToken string
	handler     messaging.MessageProcessor
	st          store.Store
	instagram   InstagramSender
	twilioSvc   *messaging.TwilioService
	httpServer  *http.Server
}

// NewServer creates an API server around the conversation core and store.
// The Instagram sender delivers webhook replies; it may be nil when the
// Instagram platform is not configured. The Twilio service may be nil when
// Twilio inbound is not used.
func NewServer(handler messaging.MessageProcessor, st store.Store, instagram InstagramSender, twilioSvc *messaging.TwilioService, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	slog.Debug("Server.NewServer: configured", "addr", cfg.Addr, "verify_token_set", cfg.VerifyToken != "", "instagram_set", instagram != nil, "twilio_set", twilioSvc != nil)
	return &Server{
		addr:        cfg.Addr,
		verifyToken: cfg.VerifyToken,
		handler:     handler,
		st:          st,
		instagram:   instagram,
		twilioSvc:   twilioSvc,
	}
}

// routes builds the request multiplexer for the server.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /webhook/instagram", s.verifyInstagramWebhookHandler)
	mux.HandleFunc("POST /webhook/instagram", s.instagramWebhookHandler)
	mux.HandleFunc("POST /webhook/twilio", s.twilioWebhookHandler)
	mux.HandleFunc("POST /sessions/{id}/complete", s.completeSessionHandler)
	mux.HandleFunc("POST /sessions/{id}/abandon", s.abandonSessionHandler)
	mux.HandleFunc("GET /health", s.healthHandler)
	return mux
}

// Start runs the HTTP server until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}
	slog.Info("Server.Start: API server listening", "addr", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	slog.Info("Server.Shutdown: stopping API server")
	shutdownCtx, cancel := context.WithTimeout(ctx, DefaultShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("API server shutdown failed: %w", err)
	}
	return nil
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "healthy"})
}
