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

// recordTables maps guarded record kinds to their tables
var recordTables = map[string]string{
	entity.RecordClient:      "clients",
	entity.RecordProcess:     "processes",
	entity.RecordContract:    "contracts",
	entity.RecordTransaction: "transactions",
}

// referenceQueries count, in one statement, every kind that points at a
// record. Contracts and transactions have no dependents here.
var referenceQueries = map[string]struct {
	kinds []string
	query string
}{
	entity.RecordClient: {
		kinds: []string{"processes", "contracts", "transactions"},
		query: `SELECT
			(SELECT COUNT(*) FROM processes WHERE client_id = ?1),
			(SELECT COUNT(*) FROM contracts WHERE client_id = ?1),
			(SELECT COUNT(*) FROM transactions WHERE client_id = ?1)`,
	},
	entity.RecordProcess: {
		kinds: []string{"transactions", "contracts"},
		query: `SELECT
			(SELECT COUNT(*) FROM transactions WHERE process_id = ?1),
			(SELECT COUNT(*) FROM contracts WHERE process_id = ?1)`,
	},
}

// RecordRepository implements port.RecordRepository over the client,
// process and contract tables
type RecordRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRecordRepository creates a new record repository
func NewRecordRepository(db *sql.DB, logger *zap.Logger) port.RecordRepository {
	return &RecordRepository{
		db:     db,
		logger: logger,
	}
}

// CreateClient creates a new client
func (r *RecordRepository) CreateClient(ctx context.Context, client *entity.Client) error {
	if client.CreatedAt.IsZero() {
		client.CreatedAt = time.Now()
	}
	id, err := r.insert(ctx, "client",
		`INSERT INTO clients (branch_id, name, contact, created_at) VALUES (?, ?, ?, ?)`,
		client.BranchID, client.Name, client.Contact, client.CreatedAt)
	if err != nil {
		return err
	}
	client.ID = id
	return nil
}

// CreateProcess creates a new process
func (r *RecordRepository) CreateProcess(ctx context.Context, process *entity.Process) error {
	if process.CreatedAt.IsZero() {
		process.CreatedAt = time.Now()
	}
	id, err := r.insert(ctx, "process",
		`INSERT INTO processes (branch_id, client_id, title, created_at) VALUES (?, ?, ?, ?)`,
		process.BranchID, nullableID(process.ClientID), process.Title, process.CreatedAt)
	if err != nil {
		return err
	}
	process.ID = id
	return nil
}

// CreateContract creates a new contract
func (r *RecordRepository) CreateContract(ctx context.Context, contract *entity.Contract) error {
	if contract.CreatedAt.IsZero() {
		contract.CreatedAt = time.Now()
	}
	id, err := r.insert(ctx, "contract",
		`INSERT INTO contracts (branch_id, client_id, process_id, title, created_at) VALUES (?, ?, ?, ?, ?)`,
		contract.BranchID, nullableID(contract.ClientID), nullableID(contract.ProcessID), contract.Title, contract.CreatedAt)
	if err != nil {
		return err
	}
	contract.ID = id
	return nil
}

// GetClient retrieves a client by ID
func (r *RecordRepository) GetClient(ctx context.Context, id int64) (*entity.Client, error) {
	var client entity.Client
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT id, branch_id, name, contact, created_at FROM clients WHERE id = ?`, id).Scan(
		&client.ID,
		&client.BranchID,
		&client.Name,
		&client.Contact,
		&client.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get client", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return &client, nil
}

// GetProcess retrieves a process by ID
func (r *RecordRepository) GetProcess(ctx context.Context, id int64) (*entity.Process, error) {
	var process entity.Process
	var clientID sql.NullInt64
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT id, branch_id, client_id, title, created_at FROM processes WHERE id = ?`, id).Scan(
		&process.ID,
		&process.BranchID,
		&clientID,
		&process.Title,
		&process.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get process", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get process: %w", err)
	}
	process.ClientID = idPtr(clientID)
	return &process, nil
}

// Locate returns the owning branch of a record, or nil when it does not exist
func (r *RecordRepository) Locate(ctx context.Context, kind string, id int64) (*entity.RecordRef, error) {
	table, ok := recordTables[kind]
	if !ok {
		return nil, fmt.Errorf("unknown record kind %q", kind)
	}

	ref := entity.RecordRef{Kind: kind, ID: id}
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT branch_id FROM `+table+` WHERE id = ?`, id).Scan(&ref.BranchID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to locate record", zap.String("kind", kind), zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to locate %s: %w", kind, err)
	}
	return &ref, nil
}

// CountReferences returns the nonzero counts of records referencing the
// given record, read in a single statement
func (r *RecordRepository) CountReferences(ctx context.Context, kind string, id int64) (map[string]int, error) {
	counts := make(map[string]int)
	if _, ok := recordTables[kind]; !ok {
		return nil, fmt.Errorf("unknown record kind %q", kind)
	}

	rq, ok := referenceQueries[kind]
	if !ok {
		return counts, nil
	}

	values := make([]int, len(rq.kinds))
	dest := make([]interface{}, len(values))
	for i := range values {
		dest[i] = &values[i]
	}

	if err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx, rq.query, id).Scan(dest...); err != nil {
		r.logger.Error("Failed to count references", zap.String("kind", kind), zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to count references to %s %d: %w", kind, id, err)
	}

	for i, k := range rq.kinds {
		if values[i] > 0 {
			counts[k] = values[i]
		}
	}
	return counts, nil
}

// Delete removes a client, process or contract. Transactions are deleted
// through the ledger only.
func (r *RecordRepository) Delete(ctx context.Context, kind string, id int64) (bool, error) {
	if kind == entity.RecordTransaction {
		return false, fmt.Errorf("transactions are deleted through the ledger")
	}
	table, ok := recordTables[kind]
	if !ok {
		return false, fmt.Errorf("unknown record kind %q", kind)
	}

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete record", zap.String("kind", kind), zap.Int64("id", id), zap.Error(err))
		return false, fmt.Errorf("failed to delete %s: %w", kind, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *RecordRepository) insert(ctx context.Context, kind, query string, args ...interface{}) (int64, error) {
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to create "+kind, zap.Error(err))
		return 0, fmt.Errorf("failed to create %s: %w", kind, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return id, nil
}

var _ port.RecordRepository = (*RecordRepository)(nil)
