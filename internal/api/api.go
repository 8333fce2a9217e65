// Package api provides the HTTP surface of the eligibility agent.
//
// It exposes RESTful endpoints for running text conversations, one-shot
// eligibility checks, and static reference data, plus an optional mount for
// the voice webhook handler.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/carelinq/eligibility-agent/internal/flow"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// Opts holds server configuration.
type Opts struct {
	Addr   string
	Engine *flow.Engine
	Voice  http.Handler
}

// Option configures the server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		if addr != "" {
			o.Addr = addr
		}
	}
}

// WithEngine sets the dialogue engine backing the conversation endpoints.
func WithEngine(engine *flow.Engine) Option {
	return func(o *Opts) { o.Engine = engine }
}

// WithVoiceHandler mounts a handler under /voice for telephony webhooks.
func WithVoiceHandler(h http.Handler) Option {
	return func(o *Opts) { o.Voice = h }
}

// Server serves the eligibility agent HTTP API.
type Server struct {
	addr   string
	engine *flow.Engine
	voice  http.Handler
}

// NewServer creates a server. A default engine is created when none is given.
func NewServer(options ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range options {
		opt(&cfg)
	}
	if cfg.Engine == nil {
		cfg.Engine = flow.NewEngine()
	}
	return &Server{
		addr:   cfg.Addr,
		engine: cfg.Engine,
		voice:  cfg.Voice,
	}
}

// Routes builds the router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.healthHandler)

	r.Route("/api", func(r chi.Router) {
		r.Post("/conversation/start", s.startConversationHandler)
		r.Post("/conversation/{conversationID}/message", s.messageHandler)
		r.Get("/conversation/{conversationID}", s.getConversationHandler)
		r.Delete("/conversation/{conversationID}", s.endConversationHandler)

		r.Post("/direct-eligibility-check", s.directCheckHandler)

		r.Get("/test-members", s.testMembersHandler)
		r.Get("/procedures", s.proceduresHandler)
		r.Get("/medications", s.medicationsHandler)
	})

	if s.voice != nil {
		r.Mount("/voice", s.voice)
	}

	return r
}

// Run starts the HTTP server and blocks until the context is canceled or the
// listener fails.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("Server.Run: shutting down")
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
