package entity

import (
	"time"

	"github.com/garyjia/office-ledger/internal/domain/lifecycle"
	"github.com/shopspring/decimal"
)

// FinancialTransaction is a revenue or expense entry owned by a branch.
// Status holds only the stored value (pending or paid); use EffectiveStatus
// for anything shown to a reader.
type FinancialTransaction struct {
	ID          int64           `json:"id"`
	BranchID    int64           `json:"branch_id"`
	Kind        string          `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	DueDate     time.Time       `json:"due_date"`
	Status      lifecycle.State `json:"status"`
	ClientID    *int64          `json:"client_id,omitempty"`
	ProcessID   *int64          `json:"process_id,omitempty"`
	Description string          `json:"description,omitempty"`
	PaidAt      *time.Time      `json:"paid_at,omitempty"`
	Version     int64           `json:"version"`
	CreatedBy   int64           `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// EffectiveStatus derives the status as of today.
func (t *FinancialTransaction) EffectiveStatus(today time.Time) lifecycle.State {
	return lifecycle.Effective(t.Status, t.DueDate, today)
}

// TransactionFilter narrows ledger listings.
type TransactionFilter struct {
	BranchIDs []int64
	Status    lifecycle.State // empty means any
	Today     time.Time
	Limit     int
	Offset    int
}
