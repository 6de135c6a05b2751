package entity

import "time"

// DispatchRecord is the append-only proof that a reminder was attempted for
// a transaction on a calendar day. (TransactionID, DispatchDate) is unique.
type DispatchRecord struct {
	ID                int64      `json:"id"`
	TransactionID     int64      `json:"transaction_id"`
	BranchID          int64      `json:"branch_id"`
	DispatchDate      string     `json:"dispatch_date"`
	Outcome           string     `json:"outcome"`
	Destination       string     `json:"destination,omitempty"`
	ProviderReference string     `json:"provider_reference,omitempty"`
	ErrorMessage      string     `json:"error_message,omitempty"`
	RunID             string     `json:"run_id"`
	CreatedAt         time.Time  `json:"created_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// CycleTally aggregates the outcome of one reminder cycle.
type CycleTally struct {
	Attempted int `json:"attempted"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	// Skipped counts candidates already claimed for today.
	Skipped int `json:"skipped"`
}

// NotificationRun records one reminder cycle.
type NotificationRun struct {
	ID         string     `json:"id"`
	Trigger    string     `json:"trigger"`
	RunDate    string     `json:"run_date"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Tally      CycleTally `json:"tally"`
	// LeaseSkipped is set when another instance held the cycle lease.
	LeaseSkipped bool `json:"lease_skipped"`
}
