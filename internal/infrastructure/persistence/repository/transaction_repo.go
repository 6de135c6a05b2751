package repository

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/garyjia/office-ledger/internal/application/port"
	"github.com/garyjia/office-ledger/internal/domain/entity"
	"github.com/garyjia/office-ledger/internal/domain/lifecycle"
	"github.com/garyjia/office-ledger/internal/infrastructure/persistence/sqlite"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TransactionRepository implements port.TransactionRepository.
// Amounts are stored as integer cents and due dates as YYYY-MM-DD text so
// that date comparisons in SQL are plain string comparisons.
type TransactionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *sql.DB, logger *zap.Logger) port.TransactionRepository {
	return &TransactionRepository{
		db:     db,
		logger: logger,
	}
}

const transactionColumns = `id, branch_id, kind, amount_cents, due_date, status,
	client_id, process_id, description, paid_at, version, created_by, created_at, updated_at`

// Create inserts a new pending transaction
func (r *TransactionRepository) Create(ctx context.Context, txn *entity.FinancialTransaction) error {
	query := `
		INSERT INTO transactions (
			branch_id, kind, amount_cents, due_date, status,
			client_id, process_id, description, version, created_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
	`

	cents, err := toCents(txn.Amount)
	if err != nil {
		return err
	}

	now := time.Now()
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = now
	}
	txn.UpdatedAt = txn.CreatedAt
	txn.Status = lifecycle.StatePending
	txn.Version = 1

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		txn.BranchID,
		txn.Kind,
		cents,
		txn.DueDate.Format(entity.DateLayout),
		string(txn.Status),
		nullableID(txn.ClientID),
		nullableID(txn.ProcessID),
		txn.Description,
		txn.CreatedBy,
		txn.CreatedAt,
		txn.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create transaction",
			zap.Int64("branch_id", txn.BranchID),
			zap.Error(err))
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	txn.ID = id
	return nil
}

// GetByID retrieves a transaction by ID
func (r *TransactionRepository) GetByID(ctx context.Context, id int64) (*entity.FinancialTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`

	txn, err := scanTransaction(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get transaction", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return txn, nil
}

// List returns transactions in the filter's branches. The status filter is
// applied to the effective status as of filter.Today.
func (r *TransactionRepository) List(ctx context.Context, filter entity.TransactionFilter) ([]*entity.FinancialTransaction, error) {
	if len(filter.BranchIDs) == 0 {
		return []*entity.FinancialTransaction{}, nil
	}

	where, args := branchClause(filter.BranchIDs)
	today := lifecycle.DateOf(filter.Today).Format(entity.DateLayout)

	switch filter.Status {
	case "":
	case lifecycle.StatePaid:
		where += ` AND status = 'paid'`
	case lifecycle.StatePending:
		where += ` AND status = 'pending' AND due_date >= ?`
		args = append(args, today)
	case lifecycle.StateOverdue:
		where += ` AND status = 'pending' AND due_date < ?`
		args = append(args, today)
	default:
		return nil, fmt.Errorf("unsupported status filter %q", filter.Status)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` + where + ` ORDER BY due_date ASC, id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	return r.query(ctx, "list transactions", query, args...)
}

// ListUnpaidDueBy returns pending rows due on or before cutoff, oldest first
func (r *TransactionRepository) ListUnpaidDueBy(ctx context.Context, branchIDs []int64, cutoff time.Time) ([]*entity.FinancialTransaction, error) {
	if len(branchIDs) == 0 {
		return []*entity.FinancialTransaction{}, nil
	}

	where, args := branchClause(branchIDs)
	args = append(args, lifecycle.DateOf(cutoff).Format(entity.DateLayout))

	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE ` + where + ` AND status = 'pending' AND due_date <= ?
		ORDER BY due_date ASC, id ASC`

	return r.query(ctx, "list due transactions", query, args...)
}

// MarkPaid settles a pending row if it is still at the expected version
func (r *TransactionRepository) MarkPaid(ctx context.Context, id, version int64, paidAt time.Time) (bool, error) {
	query := `
		UPDATE transactions
		SET status = 'paid', paid_at = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ? AND status = 'pending'
	`
	return r.conditionalExec(ctx, "mark transaction paid", id, query, paidAt, paidAt, id, version)
}

// UpdateDueDate moves the due date of a pending row at the expected version
func (r *TransactionRepository) UpdateDueDate(ctx context.Context, id, version int64, dueDate, updatedAt time.Time) (bool, error) {
	query := `
		UPDATE transactions
		SET due_date = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ? AND status = 'pending'
	`
	return r.conditionalExec(ctx, "update due date", id, query,
		dueDate.Format(entity.DateLayout), updatedAt, id, version)
}

// DeleteUnpaid removes a pending row at the expected version
func (r *TransactionRepository) DeleteUnpaid(ctx context.Context, id, version int64) (bool, error) {
	query := `DELETE FROM transactions WHERE id = ? AND version = ? AND status = 'pending'`
	return r.conditionalExec(ctx, "delete transaction", id, query, id, version)
}

func (r *TransactionRepository) conditionalExec(ctx context.Context, op string, id int64, query string, args ...interface{}) (bool, error) {
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to "+op, zap.Int64("id", id), zap.Error(err))
		return false, fmt.Errorf("failed to %s: %w", op, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *TransactionRepository) query(ctx context.Context, op, query string, args ...interface{}) ([]*entity.FinancialTransaction, error) {
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to "+op, zap.Error(err))
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	defer rows.Close()

	txns := make([]*entity.FinancialTransaction, 0)
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*entity.FinancialTransaction, error) {
	var (
		txn       entity.FinancialTransaction
		cents     int64
		dueDate   string
		status    string
		clientID  sql.NullInt64
		processID sql.NullInt64
		paidAt    sql.NullTime
	)

	err := row.Scan(
		&txn.ID,
		&txn.BranchID,
		&txn.Kind,
		&cents,
		&dueDate,
		&status,
		&clientID,
		&processID,
		&txn.Description,
		&paidAt,
		&txn.Version,
		&txn.CreatedBy,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	due, err := time.Parse(entity.DateLayout, dueDate)
	if err != nil {
		return nil, fmt.Errorf("invalid stored due date %q: %w", dueDate, err)
	}

	txn.Amount = fromCents(cents)
	txn.DueDate = due
	txn.Status = lifecycle.State(status)
	txn.ClientID = idPtr(clientID)
	txn.ProcessID = idPtr(processID)
	if paidAt.Valid {
		txn.PaidAt = &paidAt.Time
	}
	return &txn, nil
}

func branchClause(branchIDs []int64) (string, []interface{}) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(branchIDs)), ",")
	args := make([]interface{}, 0, len(branchIDs)+2)
	for _, id := range branchIDs {
		args = append(args, id)
	}
	return "branch_id IN (" + placeholders + ")", args
}

var (
	minCents = decimal.NewFromInt(math.MinInt64)
	maxCents = decimal.NewFromInt(math.MaxInt64)
)

// toCents converts an amount to integer cents. Sub-cent digits and values
// outside int64 are rejected rather than truncated or wrapped.
func toCents(amount decimal.Decimal) (int64, error) {
	cents := amount.Shift(2)
	if !cents.IsInteger() {
		return 0, fmt.Errorf("amount %s has more than two decimal places", amount.String())
	}
	if cents.LessThan(minCents) || cents.GreaterThan(maxCents) {
		return 0, fmt.Errorf("amount %s is out of range", amount.String())
	}
	return cents.IntPart(), nil
}

func fromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func idPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

var _ port.TransactionRepository = (*TransactionRepository)(nil)
