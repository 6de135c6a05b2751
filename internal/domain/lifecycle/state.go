package lifecycle

// State is a financial transaction status. Only StatePending and StatePaid
// are ever persisted; StateOverdue is derived from the due date at read time.
type State string

const (
	StatePending State = "pending"
	StateOverdue State = "overdue"
	StatePaid    State = "paid"
)

var validStates = map[State]bool{
	StatePending: true,
	StateOverdue: true,
	StatePaid:    true,
}

var terminalStates = map[State]bool{
	StatePaid: true,
}

// storableStates are the values the transactions.status column accepts.
var storableStates = map[State]bool{
	StatePending: true,
	StatePaid:    true,
}

// IsTerminal returns true if no transition may leave the state.
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known status.
func (s State) IsValid() bool {
	return validStates[s]
}

// IsStorable reports whether the state may be written to the store.
func (s State) IsStorable() bool {
	return storableStates[s]
}

// ParseState converts a query/status string into a State.
func ParseState(s string) (State, bool) {
	st := State(s)
	return st, st.IsValid()
}
