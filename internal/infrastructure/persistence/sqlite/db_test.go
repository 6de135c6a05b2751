package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWithTransaction_CommitsAndExposesTx(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE transactions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	db := NewDB(sqlDB, zap.NewNop())
	err = db.WithTransaction(context.Background(), func(ctx context.Context) error {
		_, isTx := Conn(ctx, sqlDB).(interface{ Commit() error })
		assert.True(t, isTx, "executor inside WithTransaction must be the transaction")

		_, err := Conn(ctx, sqlDB).ExecContext(ctx, "UPDATE transactions SET version = version + 1")
		return err
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTransaction_RollsBackOnError(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	db := NewDB(sqlDB, zap.NewNop())
	err = db.WithTransaction(context.Background(), func(ctx context.Context) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTransaction_NestedCallsJoinOuter(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectBegin()
	mock.ExpectCommit()

	db := NewDB(sqlDB, zap.NewNop())
	err = db.WithTransaction(context.Background(), func(ctx context.Context) error {
		return db.WithTransaction(ctx, func(ctx context.Context) error { return nil })
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConn_WithoutTransactionReturnsDB(t *testing.T) {
	sqlDB, _, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	assert.Same(t, sqlDB, Conn(context.Background(), sqlDB))
}

func TestWithTransaction_RetriesWhenBusy(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	busy := sqlite3.Error{Code: sqlite3.ErrBusy}
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO notification_dispatches").WillReturnError(busy)
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO notification_dispatches").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	db := NewDB(sqlDB, zap.NewNop())
	db.busyDelay = 0

	calls := 0
	err = db.WithTransaction(context.Background(), func(ctx context.Context) error {
		calls++
		_, err := Conn(ctx, sqlDB).ExecContext(ctx, "INSERT INTO notification_dispatches DEFAULT VALUES")
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTransaction_GivesUpAfterBusyAttempts(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db := NewDB(sqlDB, zap.NewNop())
	db.busyDelay = 0
	for i := 0; i < db.busyAttempts; i++ {
		mock.ExpectBegin()
		mock.ExpectRollback()
	}

	err = db.WithTransaction(context.Background(), func(ctx context.Context) error {
		return sqlite3.Error{Code: sqlite3.ErrLocked}
	})

	assert.True(t, IsBusy(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTransaction_DoesNotRetryOtherErrors(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	db := NewDB(sqlDB, zap.NewNop())
	calls := 0
	err = db.WithTransaction(context.Background(), func(ctx context.Context) error {
		calls++
		return sqlite3.Error{Code: sqlite3.ErrConstraint}
	})

	assert.Error(t, err)
	assert.False(t, IsBusy(err))
	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}
