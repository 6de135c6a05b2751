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

// UserRepository implements port.UserRepository. Branch assignments live in
// user_branches.
type UserRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB, logger *zap.Logger) port.UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts the user and its branch assignments. Callers that need both
// writes to be atomic wrap the call in a transaction.
func (r *UserRepository) Create(ctx context.Context, user *entity.User) error {
	exec := sqlite.Conn(ctx, r.db)

	result, err := exec.ExecContext(ctx,
		`INSERT INTO users (name, role, financial_access, active, created_at) VALUES (?, ?, ?, ?, ?)`,
		user.Name, user.Role, user.FinancialAccess, user.Active, time.Now())
	if err != nil {
		r.logger.Error("Failed to create user", zap.String("name", user.Name), zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	user.ID = id

	for _, branchID := range user.BranchIDs {
		if _, err := exec.ExecContext(ctx,
			`INSERT INTO user_branches (user_id, branch_id) VALUES (?, ?)`, id, branchID); err != nil {
			return fmt.Errorf("failed to assign user %d to branch %d: %w", id, branchID, err)
		}
	}
	return nil
}

// GetByID retrieves a user with its branch assignments
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	exec := sqlite.Conn(ctx, r.db)

	var user entity.User
	err := exec.QueryRowContext(ctx,
		`SELECT id, name, role, financial_access, active FROM users WHERE id = ?`, id).Scan(
		&user.ID,
		&user.Name,
		&user.Role,
		&user.FinancialAccess,
		&user.Active,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get user", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	rows, err := exec.QueryContext(ctx,
		`SELECT branch_id FROM user_branches WHERE user_id = ? ORDER BY branch_id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user branches: %w", err)
	}
	defer rows.Close()

	user.BranchIDs = make([]int64, 0)
	for rows.Next() {
		var branchID int64
		if err := rows.Scan(&branchID); err != nil {
			return nil, fmt.Errorf("failed to scan user branch: %w", err)
		}
		user.BranchIDs = append(user.BranchIDs, branchID)
	}
	return &user, rows.Err()
}

// Deactivate soft-deletes a user
func (r *UserRepository) Deactivate(ctx context.Context, id int64) error {
	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, `UPDATE users SET active = 0 WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to deactivate user", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to deactivate user: %w", err)
	}
	return nil
}

var _ port.UserRepository = (*UserRepository)(nil)
