package event

// Type identifies a ledger domain event
type Type string

const (
	TypeTransactionCreated     Type = "transaction.created"
	TypeTransactionPaid        Type = "transaction.paid"
	TypeTransactionRescheduled Type = "transaction.rescheduled"
	TypeTransactionDeleted     Type = "transaction.deleted"
	TypeRecordDeleted          Type = "record.deleted"
	TypeReminderCycleCompleted Type = "reminder.cycle_completed"
)

func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeTransactionCreated,
		TypeTransactionPaid,
		TypeTransactionRescheduled,
		TypeTransactionDeleted,
		TypeRecordDeleted,
		TypeReminderCycleCompleted:
		return true
	default:
		return false
	}
}
