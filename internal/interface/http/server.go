// Package http exposes the thesis lifecycle over a JSON REST API.
// Commands and queries are served by the application handlers; this package
// only authenticates callers, decodes requests and maps errors to statuses.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/deskinspect/thesis-lifecycle/internal/application/command"
	"github.com/deskinspect/thesis-lifecycle/internal/application/guidance"
	"github.com/deskinspect/thesis-lifecycle/internal/application/query"
	"github.com/deskinspect/thesis-lifecycle/internal/infrastructure/metrics"
	"github.com/deskinspect/thesis-lifecycle/internal/interface/http/handlers"
	"github.com/deskinspect/thesis-lifecycle/pkg/logger"
)

// ErrServerStarted is returned by a second Start.
var ErrServerStarted = errors.New("http server already started")

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	Host string
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	MaxHeaderBytes int

	// MaxBodyBytes caps command bodies. They only carry ids and a file
	// reference.
	MaxBodyBytes int64

	// RequestDeadline bounds every API request, lock waits included.
	RequestDeadline time.Duration

	// AllowedOrigins enables CORS for the listed origins ("*" for any).
	AllowedOrigins []string

	// RateLimitPerMinute is a per-IP budget. 0 disables limiting.
	RateLimitPerMinute int

	EnableMetrics bool

	// Version is reported by /health when no checker is configured.
	Version string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8080,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       15 * time.Second,
		IdleTimeout:        60 * time.Second,
		MaxHeaderBytes:     1 << 20,
		MaxBodyBytes:       64 << 10,
		RequestDeadline:    10 * time.Second,
		RateLimitPerMinute: 120,
		EnableMetrics:      true,
		Version:            "v1",
	}
}

// Address returns host:port.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Dependencies contains everything the API handlers call.
type Dependencies struct {
	SubmitThesis        *command.SubmitThesisHandler
	ReviewThesis        *command.ReviewThesisHandler
	RequestResubmission *command.RequestResubmissionHandler
	SubmitRevision      *command.SubmitRevisionHandler

	GetThesis        *query.GetThesisHandler
	GetVersion       *query.GetVersionHandler
	ListByStatus     *query.ListByStatusHandler
	CheckEligibility *query.CheckEligibilityHandler

	Auth          *handlers.Authenticator
	Guide         *guidance.Guide
	HealthChecker handlers.HealthChecker
	Metrics       *metrics.Metrics
	Logger        *logger.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server serves the API on one listener.
type Server struct {
	config  Config
	deps    Dependencies
	logger  *logger.Logger
	handler http.Handler
	srv     *http.Server
	started atomic.Bool
}

// NewServer wires the router. Nothing listens until Start.
func NewServer(config Config, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.Guide == nil {
		deps.Guide = guidance.Default()
	}

	s := &Server{
		config: config,
		deps:   deps,
		logger: deps.Logger.With(logger.Component("http")),
	}
	s.handler = s.routes()
	s.srv = &http.Server{
		Addr:           config.Address(),
		Handler:        s.handler,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}
	return s
}

// Handler returns the routed handler with middleware.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens and serves until Shutdown. A clean shutdown returns nil.
func (s *Server) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrServerStarted
	}

	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.srv.Addr, err)
	}
	s.logger.Info("http server listening", logger.String("address", ln.Addr().String()))

	if err := s.srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartAsync runs Start in a goroutine. The channel yields at most one error
// and is closed when serving stops.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := s.Start(); err != nil {
			errCh <- err
		}
	}()
	return errCh
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.started.Load() {
		return nil
	}
	s.logger.Info("http server shutting down")
	return s.srv.Shutdown(ctx)
}
