package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/office-ledger/internal/application/dispatcher"
	"github.com/garyjia/office-ledger/internal/application/port"
	"github.com/garyjia/office-ledger/internal/application/service"
	"github.com/garyjia/office-ledger/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/office-ledger/internal/infrastructure/worker"
	httpiface "github.com/garyjia/office-ledger/internal/interfaces/http"
	"github.com/garyjia/office-ledger/pkg/database"
)

// Container manages all application dependencies and lifecycle.
// Components are initialized in dependency order and torn down in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	database     *database.DB
	db           *sqlite.DB
	repositories *RepositoryBundle

	// Infrastructure - External
	external *ExternalBundle

	// Application
	dispatcher dispatcher.Dispatcher
	services   *ServiceBundle

	// Workers
	workers   *worker.Manager
	scheduler *worker.ReminderScheduler

	// Interface
	server *httpiface.Server

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Transaction port.TransactionRepository
	Dispatch    port.DispatchRepository
	Run         port.RunRepository
	Branch      port.BranchRepository
	User        port.UserRepository
	Record      port.RecordRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Ledger    service.LedgerService
	Guard     service.GuardService
	Records   service.RecordService
	Reminders service.ReminderService
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components and begins processing.
// Components are initialized in dependency order:
// 1. Database and repositories
// 2. External collaborators (clock, messaging, lease, metrics)
// 3. Event dispatcher
// 4. Application services
// 5. Workers
// 6. HTTP server (built, not listening)
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	// Step 1: Initialize database and repositories
	if err := c.initDatabase(); err != nil {
		return c.abort(fmt.Errorf("failed to initialize database: %w", err))
	}
	c.logger.Info("Database initialized")

	// Step 2: Initialize external collaborators
	if err := c.initExternal(); err != nil {
		return c.abort(fmt.Errorf("failed to initialize external clients: %w", err))
	}
	c.logger.Info("External clients initialized",
		zap.String("messaging_mode", c.external.Gateway.Mode()),
		zap.String("timezone", c.external.Clock.Location().String()))

	// Step 3: Initialize dispatcher
	if err := c.initDispatcher(); err != nil {
		return c.abort(fmt.Errorf("failed to initialize dispatcher: %w", err))
	}
	c.logger.Info("Dispatcher initialized")

	// Step 4: Initialize application services
	if err := c.initServices(); err != nil {
		return c.abort(fmt.Errorf("failed to initialize services: %w", err))
	}
	c.logger.Info("Application services initialized")

	// Step 5: Initialize and start workers
	if err := c.initWorkers(); err != nil {
		return c.abort(fmt.Errorf("failed to initialize workers: %w", err))
	}
	c.logger.Info("Workers initialized and started",
		zap.Strings("firing_times", c.config.Scheduler.FiringTimes),
		zap.Int("retention_days", c.config.Scheduler.RetentionDays))

	// Step 6: Build the HTTP server
	c.initServer()

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// abort releases whatever a failed Start had already opened.
func (c *Container) abort(err error) error {
	c.logger.Error("Container start failed", zap.Error(err))
	if c.cancel != nil {
		c.cancel()
	}
	if c.workers != nil {
		_ = c.workers.StopAll()
		c.workers = nil
	}
	if c.dispatcher != nil {
		_ = c.dispatcher.Close()
		c.dispatcher = nil
	}
	if c.external != nil && c.external.Redis != nil {
		_ = c.external.Redis.Close()
		c.external.Redis = nil
	}
	if c.database != nil {
		_ = c.database.Close()
		c.database = nil
	}
	return err
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	// Cancel context to signal all goroutines
	if c.cancel != nil {
		c.cancel()
	}

	// Step 1: Stop workers (reverse of step 5)
	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		} else {
			c.logger.Info("Workers stopped")
		}
	}

	// Step 2: Services don't need explicit cleanup (reverse of step 4)

	// Step 3: Close dispatcher (reverse of step 3)
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
	}

	// Step 4: Close the Redis lease client (reverse of step 2)
	if c.external != nil && c.external.Redis != nil {
		if err := c.external.Redis.Close(); err != nil {
			c.logger.Error("Failed to close redis", zap.Error(err))
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}

	// Step 5: Close database (reverse of step 1)
	if c.database != nil {
		if err := c.database.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	set := func(name string, healthy bool, message string) {
		status.Components[name] = ComponentHealth{Healthy: healthy, Message: message}
		if !healthy {
			status.Overall = false
		}
	}

	// Check database
	if c.database != nil {
		if err := c.database.PingContext(ctx); err != nil {
			set("database", false, fmt.Sprintf("ping failed: %v", err))
		} else {
			set("database", true, "")
		}
	} else {
		set("database", false, "not initialized")
	}

	// Check workers
	if c.workers != nil {
		running := c.workers.Running()
		set("workers", len(running) > 0, fmt.Sprintf("running: %v", running))
	} else {
		set("workers", false, "not initialized")
	}

	// Check dispatcher
	if c.dispatcher != nil {
		set("dispatcher", true, "")
	} else {
		set("dispatcher", false, "not initialized")
	}

	// Check messaging and the lease backend
	if c.external != nil {
		set("messaging", true, c.external.Gateway.Mode())
		if c.external.Redis != nil {
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := c.external.Redis.Ping(pingCtx).Err()
			cancel()
			if err != nil {
				set("lease", false, fmt.Sprintf("redis ping failed: %v", err))
			} else {
				set("lease", true, "redis")
			}
		} else {
			set("lease", true, "local")
		}
	} else {
		set("messaging", false, "not initialized")
	}

	return status
}

// healthProbe adapts Health to the HTTP layer's probe.
func (c *Container) healthProbe(ctx context.Context) (bool, map[string]string) {
	status := c.Health(ctx)
	components := make(map[string]string, len(status.Components))
	for name, h := range status.Components {
		line := "ok"
		if !h.Healthy {
			line = "unhealthy"
		}
		if h.Message != "" {
			line += ": " + h.Message
		}
		components[name] = line
	}
	return status.Overall, components
}

// initDatabase initializes the database and all repositories using providers.
func (c *Container) initDatabase() error {
	dbBundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}

	c.database = dbBundle.DB
	c.db = dbBundle.TransactionMgr

	repos, err := ProvideRepositories(c.database, c.logger)
	if err != nil {
		return err
	}

	c.repositories = repos
	return nil
}

// initExternal initializes the clock, gateway, lease and metrics.
func (c *Container) initExternal() error {
	external, err := ProvideExternal(c.config, c.logger)
	if err != nil {
		return err
	}
	c.external = external
	return nil
}

// initDispatcher initializes the event dispatcher and its subscribers.
func (c *Container) initDispatcher() error {
	disp, err := ProvideDispatcher(c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp
	return nil
}

// initServices initializes all application services using providers.
func (c *Container) initServices() error {
	services, err := ProvideServices(&ServiceDeps{
		Repos:      c.repositories,
		TxManager:  c.db,
		External:   c.external,
		Dispatcher: c.dispatcher,
		Scheduler:  &c.config.Scheduler,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}

	c.services = services
	return nil
}

// initWorkers initializes and starts all background workers using providers.
func (c *Container) initWorkers() error {
	workers, scheduler, err := ProvideWorkers(&WorkerDeps{
		Reminders: c.services.Reminders,
		Clock:     c.external.Clock,
		Scheduler: &c.config.Scheduler,
		Logger:    c.logger,
	})
	if err != nil {
		return err
	}
	c.workers = workers
	c.scheduler = scheduler

	if err := c.workers.StartAll(c.ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	return nil
}

// initServer builds the HTTP adapter over the services.
func (c *Container) initServer() {
	c.server = httpiface.NewServer(httpiface.ServerConfig{
		Host:         c.config.Server.Host,
		Port:         c.config.Server.Port,
		ReadTimeout:  c.config.Server.ReadTimeout,
		WriteTimeout: c.config.Server.WriteTimeout,
	}, httpiface.Dependencies{
		Ledger:    c.services.Ledger,
		Guard:     c.services.Guard,
		Records:   c.services.Records,
		Users:     c.repositories.User,
		Scheduler: c.scheduler,
		Gateway:   c.external.Gateway,
		Metrics:   c.external.Metrics.Handler(),
		Health:    c.healthProbe,
	}, &zapLoggerAdapter{logger: c.logger.Named("http")})
}

// Getters for accessing container components

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Gateway returns the messaging gateway.
func (c *Container) Gateway() port.MessagingGateway {
	if c.external == nil {
		return nil
	}
	return c.external.Gateway
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.Manager {
	return c.workers
}

// Scheduler returns the reminder scheduler.
func (c *Container) Scheduler() *worker.ReminderScheduler {
	return c.scheduler
}

// Server returns the HTTP server; it is nil before Start.
func (c *Container) Server() *httpiface.Server {
	return c.server
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}

// zapLoggerAdapter adapts zap.Logger to the Info/Error logger interfaces of
// the service, dispatcher and HTTP packages.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, isErr := keysAndValues[i+1].(error); isErr {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}

var (
	_ service.Logger    = (*zapLoggerAdapter)(nil)
	_ dispatcher.Logger = (*zapLoggerAdapter)(nil)
	_ httpiface.Logger  = (*zapLoggerAdapter)(nil)
)
