// Package api exposes the coaching agent over HTTP: JSON endpoints for
// sessions and quick actions, SSE for streamed replies and turn events, and
// a websocket for interactive chat.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/odvcencio/repcoach/pkg/agent"
	"github.com/odvcencio/repcoach/pkg/bus"
	"github.com/odvcencio/repcoach/pkg/memory"
	"github.com/odvcencio/repcoach/pkg/model"
	"github.com/odvcencio/repcoach/pkg/storage"
	"github.com/odvcencio/repcoach/pkg/telemetry"
	"github.com/odvcencio/repcoach/pkg/tool"
	"github.com/odvcencio/repcoach/pkg/workout"
)

const (
	defaultAddress  = "127.0.0.1:8080"
	shutdownTimeout = 10 * time.Second
	heartbeatPeriod = 30 * time.Second
	maxBodyBytes    = 64 << 10
)

// Coach is the part of the agent the API drives.
type Coach interface {
	StartSession(ctx context.Context, userID string) (*memory.Session, error)
	Resume(ctx context.Context, id, userID string) (*memory.Session, error)
	ProcessMessage(ctx context.Context, sess *memory.Session, input string) (*agent.Reply, error)
	StreamMessage(ctx context.Context, sess *memory.Session, input string, onChunk model.ChunkFunc) (*agent.Reply, error)
	History(ctx context.Context, sessionID string, limit int) ([]storage.Message, error)
	CurrentWorkout(id string) (*workout.Workout, bool)
	QuickAction(ctx context.Context, req agent.QuickActionRequest) agent.QuickActionResponse
	Tools() []tool.Info
}

// Server is the repcoach HTTP server.
type Server struct {
	coach     Coach
	events    bus.MessageBus
	busPrefix string
	logger    *zap.Logger
	// pingInterval paces websocket keepalive pings.
	pingInterval time.Duration
	httpServer   *http.Server
	handler      http.Handler
}

// ServerConfig configures the API server.
type ServerConfig struct {
	// Address to listen on (default: 127.0.0.1:8080)
	Address string

	ReadTimeout time.Duration

	// WriteTimeout of zero keeps long-lived streams open.
	WriteTimeout time.Duration

	// Coach answers messages. Required.
	Coach Coach

	// EventBus feeds the turn event stream (optional)
	EventBus bus.MessageBus

	// BusPrefix is the subject namespace the agent publishes under.
	BusPrefix string

	Logger *zap.Logger

	// Metrics mounts /metrics when set.
	Metrics bool

	// PingInterval paces websocket keepalive pings (default: 20s).
	PingInterval time.Duration
}

// NewServer creates a new API server.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Address == "" {
		cfg.Address = defaultAddress
	}
	if cfg.BusPrefix == "" {
		cfg.BusPrefix = bus.DefaultPrefix
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	s := &Server{
		coach:        cfg.Coach,
		events:       cfg.EventBus,
		busPrefix:    cfg.BusPrefix,
		logger:       cfg.Logger,
		pingInterval: cfg.PingInterval,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.withLogging)
	r.Use(withCORS)

	r.Get("/healthz", s.handleHealthz)
	if cfg.Metrics {
		r.Method(http.MethodGet, "/metrics", telemetry.MetricsHandler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/sessions", s.handleCreateSession)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Post("/messages", s.handlePostMessage)
			r.Get("/messages", s.handleListMessages)
			r.Get("/workout", s.handleGetWorkout)
			r.Get("/events", s.handleSessionEvents)
			r.Get("/ws", s.handleWebSocket)
		})
		r.Post("/quick-action", s.handleQuickAction)
		r.Get("/tools", s.handleListTools)
	})

	s.handler = r
	s.httpServer = &http.Server{
		Addr:              cfg.Address,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr is the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()
	s.logger.Info("api listening", zap.String("addr", s.httpServer.Addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
