package queue

import (
	"fmt"
	"slices"
)

// stateMachine guards job state transitions.
type stateMachine struct {
	transitions map[State][]State
}

func newStateMachine() *stateMachine {
	return &stateMachine{
		transitions: map[State][]State{
			StateQueued:     {StateProcessing, StateDropped},
			StateProcessing: {StateCompleted, StateFailed},
			StateCompleted:  {},
			StateFailed:     {},
			StateDropped:    {},
		},
	}
}

// Transition moves job to the given state, recording err for failures.
func (sm *stateMachine) Transition(job *Job, to State, err error) error {
	if job == nil {
		return ErrNilJob
	}

	from := job.State()
	if !sm.CanTransition(from, to) {
		return fmt.Errorf("%w: job %s from %s to %s", ErrInvalidTransition, job.ID, from, to)
	}
	job.setState(to, err)
	return nil
}

// CanTransition checks if a transition is valid.
func (sm *stateMachine) CanTransition(from, to State) bool {
	return slices.Contains(sm.transitions[from], to)
}

// IsTerminal checks if a state has no outgoing transitions.
func (sm *stateMachine) IsTerminal(state State) bool {
	next, ok := sm.transitions[state]
	return ok && len(next) == 0
}
