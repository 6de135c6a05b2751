package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/office-ledger/internal/application/port"
	"github.com/garyjia/office-ledger/internal/domain/entity"
	"github.com/garyjia/office-ledger/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// DispatchRepository implements port.DispatchRepository on the
// notification_dispatches table, whose UNIQUE(transaction_id, dispatch_date)
// constraint is the de-duplication key.
type DispatchRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDispatchRepository creates a new dispatch repository
func NewDispatchRepository(db *sql.DB, logger *zap.Logger) port.DispatchRepository {
	return &DispatchRepository{
		db:     db,
		logger: logger,
	}
}

// Claim inserts a claimed record. It reports false without error when the
// key already exists, whatever the existing record's outcome.
func (r *DispatchRepository) Claim(ctx context.Context, rec *entity.DispatchRecord) (bool, error) {
	query := `
		INSERT INTO notification_dispatches (
			transaction_id, branch_id, dispatch_date, outcome, destination, run_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (transaction_id, dispatch_date) DO NOTHING
	`

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.Outcome = entity.DispatchClaimed

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		rec.TransactionID,
		rec.BranchID,
		rec.DispatchDate,
		rec.Outcome,
		rec.Destination,
		rec.RunID,
		rec.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to claim dispatch",
			zap.Int64("transaction_id", rec.TransactionID),
			zap.String("dispatch_date", rec.DispatchDate),
			zap.Error(err))
		return false, fmt.Errorf("failed to claim dispatch: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("failed to get last insert id: %w", err)
	}
	rec.ID = id
	return true, nil
}

// Finalize records the send outcome on a claimed record
func (r *DispatchRepository) Finalize(ctx context.Context, rec *entity.DispatchRecord) error {
	query := `
		UPDATE notification_dispatches
		SET outcome = ?, provider_reference = ?, error_message = ?, completed_at = ?
		WHERE id = ? AND outcome = 'claimed'
	`

	if rec.CompletedAt == nil {
		now := time.Now()
		rec.CompletedAt = &now
	}

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		rec.Outcome,
		rec.ProviderReference,
		rec.ErrorMessage,
		*rec.CompletedAt,
		rec.ID,
	)
	if err != nil {
		r.logger.Error("Failed to finalize dispatch", zap.Int64("id", rec.ID), zap.Error(err))
		return fmt.Errorf("failed to finalize dispatch: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("dispatch record %d is not claimed", rec.ID)
	}
	return nil
}

// GetByTransactionID returns the dispatch log of a transaction, oldest first
func (r *DispatchRepository) GetByTransactionID(ctx context.Context, transactionID int64) ([]*entity.DispatchRecord, error) {
	query := `
		SELECT id, transaction_id, branch_id, dispatch_date, outcome, destination,
			provider_reference, error_message, run_id, created_at, completed_at
		FROM notification_dispatches
		WHERE transaction_id = ?
		ORDER BY dispatch_date ASC, id ASC
	`

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, transactionID)
	if err != nil {
		r.logger.Error("Failed to get dispatches",
			zap.Int64("transaction_id", transactionID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get dispatches: %w", err)
	}
	defer rows.Close()

	records := make([]*entity.DispatchRecord, 0)
	for rows.Next() {
		var rec entity.DispatchRecord
		var completedAt sql.NullTime
		if err := rows.Scan(
			&rec.ID,
			&rec.TransactionID,
			&rec.BranchID,
			&rec.DispatchDate,
			&rec.Outcome,
			&rec.Destination,
			&rec.ProviderReference,
			&rec.ErrorMessage,
			&rec.RunID,
			&rec.CreatedAt,
			&completedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan dispatch: %w", err)
		}
		if completedAt.Valid {
			rec.CompletedAt = &completedAt.Time
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// CountForDate counts records of any outcome for a calendar date
func (r *DispatchRepository) CountForDate(ctx context.Context, date string) (int, error) {
	var n int
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notification_dispatches WHERE dispatch_date = ?`, date).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count dispatches: %w", err)
	}
	return n, nil
}

var _ port.DispatchRepository = (*DispatchRepository)(nil)
