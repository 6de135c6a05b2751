package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/office-ledger/internal/application/port"
	"github.com/garyjia/office-ledger/internal/domain/entity"
	"github.com/garyjia/office-ledger/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// RunRepository implements port.RunRepository
type RunRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRunRepository creates a new notification run repository
func NewRunRepository(db *sql.DB, logger *zap.Logger) port.RunRepository {
	return &RunRepository{
		db:     db,
		logger: logger,
	}
}

// Create records the start of a reminder cycle
func (r *RunRepository) Create(ctx context.Context, run *entity.NotificationRun) error {
	query := `
		INSERT INTO notification_runs (id, trigger_source, run_date, started_at, lease_skipped)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		run.ID, run.Trigger, run.RunDate, run.StartedAt.UTC(), run.LeaseSkipped)
	if err != nil {
		r.logger.Error("Failed to create notification run", zap.String("run_id", run.ID), zap.Error(err))
		return fmt.Errorf("failed to create notification run: %w", err)
	}
	return nil
}

// Finish stores the tally of a completed cycle
func (r *RunRepository) Finish(ctx context.Context, run *entity.NotificationRun) error {
	query := `
		UPDATE notification_runs
		SET finished_at = ?, attempted = ?, sent = ?, failed = ?, skipped = ?, lease_skipped = ?
		WHERE id = ?
	`

	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		run.FinishedAt,
		run.Tally.Attempted,
		run.Tally.Sent,
		run.Tally.Failed,
		run.Tally.Skipped,
		run.LeaseSkipped,
		run.ID,
	)
	if err != nil {
		r.logger.Error("Failed to finish notification run", zap.String("run_id", run.ID), zap.Error(err))
		return fmt.Errorf("failed to finish notification run: %w", err)
	}
	return nil
}

// Latest returns the most recently started run, or nil when none exists
func (r *RunRepository) Latest(ctx context.Context) (*entity.NotificationRun, error) {
	query := `
		SELECT id, trigger_source, run_date, started_at, finished_at,
			attempted, sent, failed, skipped, lease_skipped
		FROM notification_runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT 1
	`

	var run entity.NotificationRun
	var finishedAt sql.NullTime
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query).Scan(
		&run.ID,
		&run.Trigger,
		&run.RunDate,
		&run.StartedAt,
		&finishedAt,
		&run.Tally.Attempted,
		&run.Tally.Sent,
		&run.Tally.Failed,
		&run.Tally.Skipped,
		&run.LeaseSkipped,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get latest notification run", zap.Error(err))
		return nil, fmt.Errorf("failed to get latest notification run: %w", err)
	}

	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	return &run, nil
}

// CountForDate counts runs that did work on a calendar date. Runs that lost
// the lease to another instance are not counted.
func (r *RunRepository) CountForDate(ctx context.Context, date string) (int, error) {
	var n int
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notification_runs WHERE run_date = ? AND lease_skipped = 0`, date).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count notification runs: %w", err)
	}
	return n, nil
}

var _ port.RunRepository = (*RunRepository)(nil)
