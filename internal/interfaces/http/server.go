// Package http exposes the ledger services over a gin router.
package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/office-ledger/internal/application/port"
	"github.com/garyjia/office-ledger/internal/application/service"
)

const shutdownGrace = 10 * time.Second

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig listens on all interfaces, port 8080
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Dependencies are the application services the server exposes
type Dependencies struct {
	Ledger    service.LedgerService
	Guard     service.GuardService
	Records   service.RecordService
	Users     port.UserRepository
	Scheduler Scheduler
	Gateway   port.MessagingGateway

	// Metrics serves /metrics when set
	Metrics http.Handler

	// Health reports component health on /health when set
	Health HealthProbe
}

// HealthProbe returns overall health and a status line per component
type HealthProbe func(ctx context.Context) (bool, map[string]string)

// Server owns the router and, once started, the listener
type Server struct {
	cfg    ServerConfig
	router *gin.Engine
	deps   Dependencies
	logger Logger

	srv *http.Server
}

type route struct {
	method  string
	path    string
	handler gin.HandlerFunc
}

// NewServer builds the router. Nothing listens until Start.
func NewServer(cfg ServerConfig, deps Dependencies, logger Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:    cfg,
		router: gin.New(),
		deps:   deps,
		logger: logger,
	}
	s.router.Use(gin.Recovery(), loggingMiddleware(logger))
	s.mount(NewHandlers(deps, logger))
	return s
}

func (s *Server) mount(h *Handlers) {
	s.router.GET("/health", h.HealthCheck)
	if s.deps.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.deps.Metrics))
	}

	// Every /api route acts on behalf of the user named by X-User-ID
	api := s.router.Group("/api", actorMiddleware(s.deps.Users, s.logger))
	for _, r := range apiRoutes(h) {
		api.Handle(r.method, r.path, r.handler)
	}
}

func apiRoutes(h *Handlers) []route {
	return []route{
		{http.MethodPost, "/transactions", h.CreateTransaction},
		{http.MethodGet, "/transactions", h.ListTransactions},
		{http.MethodGet, "/transactions/:id", h.GetTransaction},
		{http.MethodPost, "/transactions/:id/mark-paid", h.MarkPaid},
		{http.MethodPatch, "/transactions/:id/due-date", h.Reschedule},
		{http.MethodDelete, "/transactions/:id", h.DeleteTransaction},
		{http.MethodGet, "/transactions/:id/dispatches", h.ListDispatches},

		{http.MethodGet, "/clients/:id", h.GetClient},
		{http.MethodDelete, "/clients/:id", h.DeleteRecord("client")},
		{http.MethodDelete, "/processes/:id", h.DeleteRecord("process")},
		{http.MethodDelete, "/contracts/:id", h.DeleteRecord("contract")},

		{http.MethodPost, "/notifications/run-now", h.RunNow},
		{http.MethodGet, "/notifications/status", h.NotificationStatus},
	}
}

// Start binds the listener and serves until ctx is cancelled, then shuts
// down gracefully. A bind failure is returned immediately.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Address())
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the server on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.srv = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.logger.Info("HTTP server listening", "address", ln.Addr().String())

	served := make(chan error, 1)
	go func() { served <- s.srv.Serve(ln) }()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		s.logger.Error("HTTP server failed", "error", err)
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the gin engine, for tests
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address is the configured host:port
func (s *Server) Address() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}
