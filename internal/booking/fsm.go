// Package booking implements the booking form: the state machine, the form
// controller that drives the portal and the slot engine, and per-chat
// sessions.
package booking

// State is the lifecycle state of a booking form.
type State string

const (
	StateLoading    State = "loading"
	StateReady      State = "ready"
	StateSlotsReady State = "slots_ready"
	StateSubmitting State = "submitting"
	StateSuccess    State = "success"
	StateError      State = "error"
)

// FSM holds the allowed state transitions of a form.
type FSM struct {
	transitions map[State][]State
}

// NewFSM creates a new FSM with predefined transitions. Staying in ready or
// slots_ready is allowed since every selection recomputes.
func NewFSM() *FSM {
	return &FSM{
		transitions: map[State][]State{
			StateLoading:    {StateReady, StateError},
			StateReady:      {StateReady, StateSlotsReady, StateSubmitting, StateLoading, StateError},
			StateSlotsReady: {StateReady, StateSlotsReady, StateSubmitting, StateLoading, StateError},
			StateSubmitting: {StateSuccess, StateError},
			StateSuccess:    {StateReady, StateSlotsReady, StateSubmitting, StateLoading, StateError},
			StateError:      {StateReady, StateSlotsReady, StateSubmitting, StateLoading, StateError},
		},
	}
}

// CanTransition checks if transition is allowed.
func (f *FSM) CanTransition(from, to State) bool {
	allowed, ok := f.transitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}
