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

// BranchRepository implements port.BranchRepository
type BranchRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewBranchRepository creates a new branch repository
func NewBranchRepository(db *sql.DB, logger *zap.Logger) port.BranchRepository {
	return &BranchRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new branch
func (r *BranchRepository) Create(ctx context.Context, branch *entity.Branch) error {
	if branch.CreatedAt.IsZero() {
		branch.CreatedAt = time.Now()
	}

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO branches (name, notify_target, created_at) VALUES (?, ?, ?)`,
		branch.Name, branch.NotifyTarget, branch.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create branch", zap.String("name", branch.Name), zap.Error(err))
		return fmt.Errorf("failed to create branch: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	branch.ID = id
	return nil
}

// GetByID retrieves a branch by ID
func (r *BranchRepository) GetByID(ctx context.Context, id int64) (*entity.Branch, error) {
	var branch entity.Branch
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT id, name, notify_target, created_at FROM branches WHERE id = ?`, id).Scan(
		&branch.ID,
		&branch.Name,
		&branch.NotifyTarget,
		&branch.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get branch", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get branch: %w", err)
	}
	return &branch, nil
}

// ListIDs returns every branch ID in ascending order
func (r *BranchRepository) ListIDs(ctx context.Context) ([]int64, error) {
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, `SELECT id FROM branches ORDER BY id`)
	if err != nil {
		r.logger.Error("Failed to list branches", zap.Error(err))
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan branch id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

var _ port.BranchRepository = (*BranchRepository)(nil)
