package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/office-ledger/internal/application/dispatcher"
	"github.com/garyjia/office-ledger/internal/application/port"
	"github.com/garyjia/office-ledger/internal/domain/entity"
	"github.com/garyjia/office-ledger/internal/infrastructure/cache"
	"github.com/garyjia/office-ledger/internal/infrastructure/external/messaging"
	"github.com/garyjia/office-ledger/internal/infrastructure/persistence/repository"
	"github.com/garyjia/office-ledger/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/office-ledger/pkg/database"
)

type mockLogger struct {
	mu     sync.Mutex
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type mockGateway struct {
	sendFunc func(ctx context.Context, destination, body string) port.SendResult
}

func (m *mockGateway) Send(ctx context.Context, destination, body string) port.SendResult {
	return m.sendFunc(ctx, destination, body)
}

func (m *mockGateway) Mode() string { return "mock" }

// testEnv wires the services over a migrated SQLite file
type testEnv struct {
	clock      *fakeClock
	logger     *mockLogger
	events     dispatcher.Dispatcher
	branches   port.BranchRepository
	records    port.RecordRepository
	txns       port.TransactionRepository
	dispatches port.DispatchRepository
	runs       port.RunRepository
	gateway    *messaging.SimulationGateway
	ledger     LedgerService
	guard      GuardService
	reader     RecordService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "ledger.db"),
		MaxOpenConns: 1,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.NewMigrator(db, zap.NewNop()).Run(database.Migrations()))

	logger := zap.NewNop()
	env := &testEnv{
		clock:      &fakeClock{now: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)},
		logger:     &mockLogger{},
		events:     dispatcher.NewDispatcher(),
		branches:   repository.NewBranchRepository(db.DB, logger),
		records:    repository.NewRecordRepository(db.DB, logger),
		txns:       repository.NewTransactionRepository(db.DB, logger),
		dispatches: repository.NewDispatchRepository(db.DB, logger),
		runs:       repository.NewRunRepository(db.DB, logger),
		gateway:    messaging.NewSimulationGateway(logger),
	}
	t.Cleanup(func() { _ = env.events.Close() })

	txManager := sqlite.NewDB(db.DB, logger)
	env.guard = NewGuardService(env.records, env.txns, txManager, env.events, env.clock, env.logger)
	env.ledger = NewLedgerService(env.txns, env.branches, env.records, env.dispatches, env.guard,
		txManager, env.events, env.clock, env.logger)
	env.reader = NewRecordService(env.records)
	return env
}

func (e *testEnv) reminders(gateway port.MessagingGateway, locker port.CycleLocker) ReminderService {
	if gateway == nil {
		gateway = e.gateway
	}
	if locker == nil {
		locker = cache.NewLocalLocker()
	}
	return NewReminderService(e.ledger, e.branches, e.records, e.dispatches, e.runs,
		gateway, locker, nil, e.events, e.clock,
		ReminderConfig{LookaheadDays: 7, LeaseTTL: time.Minute}, e.logger)
}

func (e *testEnv) branch(t *testing.T, name string) *entity.Branch {
	t.Helper()
	b := &entity.Branch{Name: name, NotifyTarget: "oc_" + name}
	require.NoError(t, e.branches.Create(context.Background(), b))
	return b
}

func (e *testEnv) client(t *testing.T, branchID int64, contact string) *entity.Client {
	t.Helper()
	c := &entity.Client{BranchID: branchID, Name: "Acme", Contact: contact}
	require.NoError(t, e.records.CreateClient(context.Background(), c))
	return c
}

// txn creates a pending transaction due the given number of days from the
// clock's current date
func (e *testEnv) txn(t *testing.T, actor *entity.User, branchID int64, amount string, dueInDays int) *TransactionView {
	t.Helper()
	view, err := e.ledger.Create(context.Background(), actor, CreateTransactionInput{
		BranchID: branchID,
		Kind:     entity.KindRevenue,
		Amount:   decimal.RequireFromString(amount),
		DueDate:  e.clock.Now().AddDate(0, 0, dueInDays),
	})
	require.NoError(t, err)
	return view
}

func superAdmin() *entity.User {
	return &entity.User{ID: 1, Name: "root", Role: entity.RoleSuperAdmin, FinancialAccess: true, Active: true}
}

func staff(branchID int64, financial bool) *entity.User {
	return &entity.User{
		ID:              3,
		Name:            "clerk",
		Role:            entity.RoleStaff,
		BranchIDs:       []int64{branchID},
		FinancialAccess: financial,
		Active:          true,
	}
}

func branchAdmin(branchIDs ...int64) *entity.User {
	return &entity.User{
		ID:              2,
		Name:            "manager",
		Role:            entity.RoleBranchAdmin,
		BranchIDs:       branchIDs,
		FinancialAccess: true,
		Active:          true,
	}
}

func mustMoney(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
