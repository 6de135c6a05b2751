package entity

import "time"

// Branch is the tenant partition every record belongs to.
type Branch struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	// NotifyTarget receives reminders for transactions without a client contact.
	NotifyTarget string    `json:"notify_target,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// User is an actor. Users are deactivated, never hard-deleted.
type User struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	Role            string  `json:"role"`
	BranchIDs       []int64 `json:"branch_ids"`
	FinancialAccess bool    `json:"financial_access"`
	Active          bool    `json:"active"`
}

// InBranch reports whether the user is assigned to the branch.
func (u *User) InBranch(branchID int64) bool {
	for _, id := range u.BranchIDs {
		if id == branchID {
			return true
		}
	}
	return false
}

// Client is a customer of the firm.
type Client struct {
	ID       int64  `json:"id"`
	BranchID int64  `json:"branch_id"`
	Name     string `json:"name"`
	// Contact is the messaging-channel identifier reminders are sent to.
	Contact   string    `json:"contact,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Process is a legal matter, optionally tied to a client.
type Process struct {
	ID        int64     `json:"id"`
	BranchID  int64     `json:"branch_id"`
	ClientID  *int64    `json:"client_id,omitempty"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Contract optionally references a client and a process.
type Contract struct {
	ID        int64     `json:"id"`
	BranchID  int64     `json:"branch_id"`
	ClientID  *int64    `json:"client_id,omitempty"`
	ProcessID *int64    `json:"process_id,omitempty"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// RecordRef identifies a guarded record and its owning branch.
type RecordRef struct {
	Kind     string
	ID       int64
	BranchID int64
}
