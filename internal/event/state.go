package event

// State is the lifecycle position of one event within its year.
//
//	CREATED -> QUEUED -> SHUFFLED -> DISPATCHED -> APPLIED | REJECTED
//
// APPLIED and REJECTED are terminal. Events never survive past their year.
type State uint8

const (
	StateCreated State = iota
	StateQueued
	StateShuffled
	StateDispatched
	StateApplied
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateQueued:
		return "QUEUED"
	case StateShuffled:
		return "SHUFFLED"
	case StateDispatched:
		return "DISPATCHED"
	case StateApplied:
		return "APPLIED"
	case StateRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateApplied || s == StateRejected
}

// Outcome maps a handler result onto its terminal state.
func Outcome(applied bool) State {
	if applied {
		return StateApplied
	}
	return StateRejected
}
