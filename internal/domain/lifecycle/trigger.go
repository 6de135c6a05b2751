package lifecycle

// Trigger is an event that moves a transaction between states.
type Trigger string

const (
	// TriggerMarkPaid is the manual settlement action.
	TriggerMarkPaid Trigger = "MARK_PAID"
	// TriggerLapse is the passage of the due date.
	TriggerLapse Trigger = "LAPSE"
	// TriggerReschedule is an edit of the due date.
	TriggerReschedule Trigger = "RESCHEDULE"
	// TriggerDelete removes an unsettled transaction.
	TriggerDelete Trigger = "DELETE"
)

func (t Trigger) String() string {
	return string(t)
}
