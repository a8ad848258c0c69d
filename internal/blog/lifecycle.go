package blog

// Event is an operator or discovery action applied to an existing record.
type Event string

// Lifecycle events.
const (
	EventEnable   Event = "enable"
	EventDisable  Event = "disable"
	EventDiscover Event = "discover"
	// EventVanish is raised when a refresh finds the blog gone from the platform.
	EventVanish Event = "vanish"
)

// Outcome classifies the result of Transition.
type Outcome int

// Transition outcomes.
const (
	// Changed means the record moves to a new state.
	Changed Outcome = iota
	// Unchanged means the record is already where the event would put it.
	Unchanged
	// Rejected means the current state does not accept the event.
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Changed:
		return "changed"
	case Unchanged:
		return "unchanged"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// transitions lists every legal move. Pairs missing from the table are rejected;
// pairs mapping to the current state are no-ops.
var transitions = map[State]map[Event]State{
	StateEnabled: {
		EventEnable:   StateEnabled,
		EventDisable:  StateDisabled,
		EventDiscover: StateEnabled,
		EventVanish:   StateNotFound,
	},
	StateDisabled: {
		EventEnable:   StateEnabled,
		EventDisable:  StateDisabled,
		EventDiscover: StateDisabled,
		EventVanish:   StateNotFound,
	},
	StatePotential: {
		EventEnable:   StateEnabled,
		EventDisable:  StateDisabled,
		EventDiscover: StatePotential,
		EventVanish:   StateNotFound,
	},
	StateNotFound: {},
}

// Transition returns the state reached by applying event to current.
// A rejected event leaves current unchanged.
func Transition(current State, event Event) (State, Outcome) {
	next, ok := transitions[current][event]
	switch {
	case !ok:
		return current, Rejected
	case next == current:
		return current, Unchanged
	default:
		return next, Changed
	}
}
