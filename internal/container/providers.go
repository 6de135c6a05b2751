package container

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/office-ledger/internal/application/dispatcher"
	"github.com/garyjia/office-ledger/internal/application/port"
	"github.com/garyjia/office-ledger/internal/application/service"
	"github.com/garyjia/office-ledger/internal/domain/event"
	"github.com/garyjia/office-ledger/internal/infrastructure/cache"
	"github.com/garyjia/office-ledger/internal/infrastructure/clock"
	"github.com/garyjia/office-ledger/internal/infrastructure/external/messaging"
	"github.com/garyjia/office-ledger/internal/infrastructure/metrics"
	"github.com/garyjia/office-ledger/internal/infrastructure/persistence/repository"
	"github.com/garyjia/office-ledger/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/office-ledger/internal/infrastructure/worker"
	"github.com/garyjia/office-ledger/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *sqlite.DB
}

// ExternalBundle holds the collaborators outside the ledger process.
type ExternalBundle struct {
	Clock   *clock.System
	Gateway port.MessagingGateway
	Locker  port.CycleLocker
	Metrics *metrics.Reminders

	// Redis is nil when the in-process lock is used
	Redis *redis.Client
}

// ProvideDatabase opens the SQLite database and applies the embedded
// migrations.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(db, logger).Run(database.Migrations()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("Database ready", zap.String("path", cfg.Path))

	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates every repository on the shared connection pool.
func ProvideRepositories(db *database.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}

	return &RepositoryBundle{
		Transaction: repository.NewTransactionRepository(db.DB, logger),
		Dispatch:    repository.NewDispatchRepository(db.DB, logger),
		Run:         repository.NewRunRepository(db.DB, logger),
		Branch:      repository.NewBranchRepository(db.DB, logger),
		User:        repository.NewUserRepository(db.DB, logger),
		Record:      repository.NewRecordRepository(db.DB, logger),
	}, nil
}

// ProvideExternal builds the clock, messaging gateway, cycle lease and
// metrics. A configured Redis that cannot be reached fails start-up.
func ProvideExternal(cfg *Config, logger *zap.Logger) (*ExternalBundle, error) {
	clk, err := clock.New(cfg.Scheduler.Timezone)
	if err != nil {
		return nil, err
	}

	gateway, err := messaging.New(messaging.Config{
		Mode:            cfg.Messaging.Mode,
		Timeout:         cfg.Messaging.Timeout,
		RatePerSecond:   cfg.Messaging.RatePerSecond,
		Burst:           cfg.Messaging.Burst,
		BreakerFailures: cfg.Messaging.BreakerFailures,
		BreakerCooldown: cfg.Messaging.BreakerCooldown,
		AppID:           cfg.Messaging.AppID,
		AppSecret:       cfg.Messaging.AppSecret,
		ReceiveIDType:   cfg.Messaging.ReceiveIDType,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create messaging gateway: %w", err)
	}

	bundle := &ExternalBundle{
		Clock:   clk,
		Gateway: gateway,
		Metrics: metrics.NewReminders(),
	}

	if cfg.Redis.Addr == "" {
		logger.Info("No Redis configured, using in-process cycle lock")
		bundle.Locker = cache.NewLocalLocker()
		return bundle, nil
	}

	client, err := cache.NewRedisClient(cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Using Redis cycle lease", zap.String("addr", cfg.Redis.Addr))

	bundle.Redis = client
	bundle.Locker = cache.NewRedisLocker(client, logger)
	return bundle, nil
}

// ProvideDispatcher creates the event dispatcher and subscribes the audit
// log to every ledger event.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	disp := dispatcher.NewDispatcher(dispatcher.WithLogger(&zapLoggerAdapter{logger: logger}))

	disp.SubscribeAll("audit_log", auditLogHandler(logger.Named("audit")))

	return disp, nil
}

// auditLogHandler writes one structured line per committed event.
func auditLogHandler(logger *zap.Logger) dispatcher.Handler {
	return func(ctx context.Context, evt *event.Event) error {
		fields := []zap.Field{
			zap.String("event_id", evt.ID),
			zap.String("type", evt.Type.String()),
			zap.Int64("branch_id", evt.BranchID),
			zap.Int64("entity_id", evt.EntityID),
			zap.Int64("actor_id", evt.ActorID),
			zap.Time("at", evt.Time),
		}
		for k, v := range evt.Payload {
			fields = append(fields, zap.Any(k, v))
		}
		logger.Info("Ledger event", fields...)
		return nil
	}
}

// ServiceDeps holds dependencies for creating services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	External   *ExternalBundle
	Dispatcher dispatcher.Dispatcher
	Scheduler  *SchedulerConfig
	Logger     *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service deps are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.External == nil {
		return nil, fmt.Errorf("external clients are required")
	}

	serviceLogger := &zapLoggerAdapter{logger: deps.Logger}
	repos := deps.Repos
	ext := deps.External

	guard := service.NewGuardService(
		repos.Record,
		repos.Transaction,
		deps.TxManager,
		deps.Dispatcher,
		ext.Clock,
		serviceLogger,
	)

	ledger := service.NewLedgerService(
		repos.Transaction,
		repos.Branch,
		repos.Record,
		repos.Dispatch,
		guard,
		deps.TxManager,
		deps.Dispatcher,
		ext.Clock,
		serviceLogger,
	)

	reminders := service.NewReminderService(
		ledger,
		repos.Branch,
		repos.Record,
		repos.Dispatch,
		repos.Run,
		ext.Gateway,
		ext.Locker,
		ext.Metrics,
		deps.Dispatcher,
		ext.Clock,
		service.ReminderConfig{
			Branches:      deps.Scheduler.Branches,
			LookaheadDays: deps.Scheduler.LookaheadDays,
			LeaseTTL:      deps.Scheduler.LeaseTTL,
		},
		serviceLogger,
	)

	return &ServiceBundle{
		Ledger:    ledger,
		Guard:     guard,
		Records:   service.NewRecordService(repos.Record),
		Reminders: reminders,
	}, nil
}

// WorkerDeps holds dependencies for creating workers.
type WorkerDeps struct {
	Reminders service.ReminderService
	Clock     *clock.System
	Scheduler *SchedulerConfig
	Logger    *zap.Logger
}

// ProvideWorkers creates the worker manager and registers the reminder
// scheduler. Workers are not started here.
func ProvideWorkers(deps *WorkerDeps) (*worker.Manager, *worker.ReminderScheduler, error) {
	if deps == nil || deps.Reminders == nil {
		return nil, nil, fmt.Errorf("reminder service is required")
	}

	firings, err := worker.ParseFiringTimes(deps.Scheduler.FiringTimes)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid firing times: %w", err)
	}

	scheduler := worker.NewReminderScheduler(
		deps.Reminders,
		deps.Clock,
		firings,
		deps.Clock.Location(),
		deps.Logger.Named("scheduler"),
	)

	manager := worker.NewManager(deps.Logger)
	manager.Register(scheduler)

	return manager, scheduler, nil
}
