package dialogue

import (
	"fmt"

	"github.com/Veraticus/gradebot/internal/session"
)

// rung orders the browsing states from the least to the most context they
// need. Falling back always moves to a lower rung.
var rung = map[session.State]int{
	session.StateSelectingMode:     0,
	session.StateTypingCourseQuery: 1,
	session.StateTypingProfQuery:   1,
	session.StateCourseResults:     2,
	session.StateProfResults:       2,
	session.StateProfCourseList:    3,
	session.StateYearSemesterList:  4,
	session.StateShowingGrades:     5,
}

// machine validates state transitions.
type machine struct {
	// transitions defines valid state transitions.
	transitions map[session.State][]session.State
}

// newMachine creates the dialogue transition table. Every state may also
// move to itself, to idle, to mode selection and to the feedback flow, and
// every browsing state may fall back to any lower rung.
func newMachine() *machine {
	m := &machine{
		transitions: map[session.State][]session.State{
			session.StateIdle:              {},
			session.StateSelectingMode:     {session.StateTypingCourseQuery, session.StateTypingProfQuery},
			session.StateTypingCourseQuery: {session.StateCourseResults, session.StateNoResults},
			session.StateTypingProfQuery:   {session.StateProfResults, session.StateNoResults},
			session.StateCourseResults:     {session.StateYearSemesterList, session.StateNoResults},
			session.StateProfResults:       {session.StateProfCourseList, session.StateNoResults},
			session.StateProfCourseList:    {session.StateYearSemesterList, session.StateNoResults},
			session.StateYearSemesterList:  {session.StateShowingGrades, session.StateNoResults},
			session.StateShowingGrades:     {},
			session.StateNoResults: {
				session.StateTypingCourseQuery, session.StateTypingProfQuery,
				session.StateCourseResults, session.StateProfResults,
				session.StateProfCourseList, session.StateYearSemesterList,
			},
			session.StateAskFeedbackType:       {session.StateTypingFeedbackMessage},
			session.StateTypingFeedbackMessage: {session.StateConfirmFeedback},
			session.StateConfirmFeedback:       {},
		},
	}

	universal := []session.State{session.StateIdle, session.StateSelectingMode, session.StateAskFeedbackType}
	for from := range m.transitions {
		m.transitions[from] = append(m.transitions[from], from)
		m.transitions[from] = append(m.transitions[from], universal...)
		if r, ok := rung[from]; ok {
			for to, lower := range rung {
				if lower < r {
					m.transitions[from] = append(m.transitions[from], to)
				}
			}
		}
	}
	return m
}

// CanTransition checks if a transition from one state to another is valid.
func (m *machine) CanTransition(from, to session.State) bool {
	for _, s := range m.transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a state ends the conversation.
func (m *machine) IsTerminal(s session.State) bool {
	return s == session.StateIdle
}

// Transition moves the session to a new state if the move is legal.
func (m *machine) Transition(s *session.Session, to session.State) error {
	if !m.CanTransition(s.State, to) {
		return fmt.Errorf("%w: %s to %s", ErrIllegalTransition, s.State, to)
	}
	s.State = to
	return nil
}
