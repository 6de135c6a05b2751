package lifecycle

import (
	"context"
	"time"
)

// Effective derives a transaction's status from its stored status and due
// date. A transaction is overdue iff it is not paid and its due date is
// strictly before today. Both dates are compared at day granularity.
func Effective(stored State, dueDate, today time.Time) State {
	if stored == StatePaid {
		return StatePaid
	}
	if DateOf(dueDate).Before(DateOf(today)) {
		return StateOverdue
	}
	return StatePending
}

// DateOf truncates t to its calendar date, keeping the calendar fields of
// t's own location and expressing the result in UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type dueKey struct{}

type dueWindow struct {
	due   time.Time
	today time.Time
}

// WithDueDate attaches the due date a reschedule moves to, and the current
// date, for the reschedule guards.
func WithDueDate(ctx context.Context, due, today time.Time) context.Context {
	return context.WithValue(ctx, dueKey{}, dueWindow{due: DateOf(due), today: DateOf(today)})
}

func dueNotPast(ctx context.Context) bool {
	w, ok := ctx.Value(dueKey{}).(dueWindow)
	return ok && !w.due.Before(w.today)
}

func duePast(ctx context.Context) bool {
	w, ok := ctx.Value(dueKey{}).(dueWindow)
	return ok && w.due.Before(w.today)
}

var transactionBuilder = newTransactionBuilder()

func newTransactionBuilder() Builder {
	b := NewBuilder()

	b.Configure(StatePending).
		Permit(TriggerMarkPaid, StatePaid).
		Permit(TriggerLapse, StateOverdue).
		PermitIf(TriggerReschedule, StatePending, dueNotPast).
		PermitIf(TriggerReschedule, StateOverdue, duePast).
		Permit(TriggerDelete, StatePending)

	b.Configure(StateOverdue).
		Permit(TriggerMarkPaid, StatePaid).
		PermitIf(TriggerReschedule, StatePending, dueNotPast).
		PermitIf(TriggerReschedule, StateOverdue, duePast).
		Permit(TriggerDelete, StateOverdue)

	return b
}

// NewTransactionMachine returns a machine for a transaction currently in the
// given effective state.
func NewTransactionMachine(current State) StateMachine {
	return transactionBuilder.Build(current)
}
