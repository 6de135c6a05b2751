package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/garyjia/office-ledger/internal/domain/entity"
	"github.com/garyjia/office-ledger/pkg/database"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "ledger.db"),
		MaxOpenConns: 1,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.NewMigrator(db, zap.NewNop()).Run(database.Migrations()))
	return db.DB
}

func date(s string) time.Time {
	d, err := time.Parse(entity.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

type fixture struct {
	branches *BranchRepository
	records  *RecordRepository
	txns     *TransactionRepository
}

func newFixture(t *testing.T) (*fixture, *sql.DB) {
	db := newTestDB(t)
	logger := zap.NewNop()
	return &fixture{
		branches: NewBranchRepository(db, logger).(*BranchRepository),
		records:  NewRecordRepository(db, logger).(*RecordRepository),
		txns:     NewTransactionRepository(db, logger).(*TransactionRepository),
	}, db
}

func (f *fixture) branch(t *testing.T, name string) *entity.Branch {
	t.Helper()
	b := &entity.Branch{Name: name, NotifyTarget: "oc_" + name}
	require.NoError(t, f.branches.Create(context.Background(), b))
	return b
}

func (f *fixture) txn(t *testing.T, branchID int64, amount, due string) *entity.FinancialTransaction {
	t.Helper()
	txn := &entity.FinancialTransaction{
		BranchID:  branchID,
		Kind:      entity.KindRevenue,
		Amount:    decimal.RequireFromString(amount),
		DueDate:   date(due),
		CreatedBy: 1,
	}
	require.NoError(t, f.txns.Create(context.Background(), txn))
	return txn
}
