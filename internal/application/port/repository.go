package port

import (
	"context"
	"time"

	"github.com/garyjia/office-ledger/internal/domain/entity"
)

// TransactionRepository defines persistence operations for FinancialTransaction.
// Getters return (nil, nil) when the row does not exist. Conditional writes
// report whether a row matched instead of failing, so callers can tell a lost
// race from a driver error.
type TransactionRepository interface {
	Create(ctx context.Context, txn *entity.FinancialTransaction) error
	GetByID(ctx context.Context, id int64) (*entity.FinancialTransaction, error)

	// List filters on the effective status as of filter.Today
	List(ctx context.Context, filter entity.TransactionFilter) ([]*entity.FinancialTransaction, error)

	// ListUnpaidDueBy returns unpaid transactions in the given branches due on
	// or before the cutoff date, ordered by due date then id
	ListUnpaidDueBy(ctx context.Context, branchIDs []int64, cutoff time.Time) ([]*entity.FinancialTransaction, error)

	// MarkPaid moves a pending row at the expected version to paid
	MarkPaid(ctx context.Context, id, version int64, paidAt time.Time) (bool, error)

	// UpdateDueDate changes the due date of a pending row at the expected version
	UpdateDueDate(ctx context.Context, id, version int64, dueDate, updatedAt time.Time) (bool, error)

	// DeleteUnpaid removes a pending row at the expected version
	DeleteUnpaid(ctx context.Context, id, version int64) (bool, error)
}

// DispatchRepository defines persistence operations for DispatchRecord.
// Records are never deleted.
type DispatchRepository interface {
	// Claim inserts a claimed record for (transaction, date). It returns false
	// when a record for the key already exists.
	Claim(ctx context.Context, rec *entity.DispatchRecord) (bool, error)

	// Finalize settles a claimed record as sent or failed, exactly once
	Finalize(ctx context.Context, rec *entity.DispatchRecord) error

	GetByTransactionID(ctx context.Context, transactionID int64) ([]*entity.DispatchRecord, error)
	CountForDate(ctx context.Context, date string) (int, error)
}

// RunRepository defines persistence operations for NotificationRun
type RunRepository interface {
	Create(ctx context.Context, run *entity.NotificationRun) error
	Finish(ctx context.Context, run *entity.NotificationRun) error
	Latest(ctx context.Context) (*entity.NotificationRun, error)
	CountForDate(ctx context.Context, date string) (int, error)
}

// BranchRepository defines persistence operations for Branch
type BranchRepository interface {
	Create(ctx context.Context, branch *entity.Branch) error
	GetByID(ctx context.Context, id int64) (*entity.Branch, error)
	ListIDs(ctx context.Context) ([]int64, error)
}

// UserRepository defines persistence operations for User
type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	Deactivate(ctx context.Context, id int64) error
}

// RecordRepository covers the client, process and contract stores the ledger
// and the dependency guard consult.
type RecordRepository interface {
	CreateClient(ctx context.Context, client *entity.Client) error
	CreateProcess(ctx context.Context, process *entity.Process) error
	CreateContract(ctx context.Context, contract *entity.Contract) error

	GetClient(ctx context.Context, id int64) (*entity.Client, error)
	GetProcess(ctx context.Context, id int64) (*entity.Process, error)

	// Locate returns the owning branch of any guarded record kind
	Locate(ctx context.Context, kind string, id int64) (*entity.RecordRef, error)

	// CountReferences counts every record kind referencing the given record.
	// Kinds with no references are omitted.
	CountReferences(ctx context.Context, kind string, id int64) (map[string]int, error)

	Delete(ctx context.Context, kind string, id int64) (bool, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
