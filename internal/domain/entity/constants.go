package entity

// Role constants for User
const (
	RoleSuperAdmin  = "super_admin"
	RoleBranchAdmin = "branch_admin"
	RoleStaff       = "staff"
)

// Transaction kind constants
const (
	KindRevenue = "revenue"
	KindExpense = "expense"
)

// Dispatch outcome constants. A record is created as Claimed before the send
// and finalized exactly once as Sent or Failed.
const (
	DispatchClaimed = "claimed"
	DispatchSent    = "sent"
	DispatchFailed  = "failed"
)

// Reminder cycle trigger constants
const (
	TriggerScheduled = "scheduled"
	TriggerCatchUp   = "catch_up"
	TriggerManual    = "manual"
)

// Record kinds understood by the dependency guard
const (
	RecordClient      = "client"
	RecordProcess     = "process"
	RecordContract    = "contract"
	RecordTransaction = "transaction"
)

// DateLayout is the storage and wire format of calendar dates.
const DateLayout = "2006-01-02"
