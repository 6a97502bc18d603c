package dialogue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/gradebot/internal/action"
	"github.com/Veraticus/gradebot/internal/gateway"
	"github.com/Veraticus/gradebot/internal/paginate"
	"github.com/Veraticus/gradebot/internal/session"
)

func TestMachine_Transitions(t *testing.T) {
	m := newMachine()

	tests := []struct {
		from, to session.State
		want     bool
	}{
		{session.StateIdle, session.StateSelectingMode, true},
		{session.StateIdle, session.StateCourseResults, false},
		{session.StateSelectingMode, session.StateTypingCourseQuery, true},
		{session.StateSelectingMode, session.StateShowingGrades, false},
		{session.StateTypingCourseQuery, session.StateCourseResults, true},
		{session.StateTypingCourseQuery, session.StateProfResults, false},
		{session.StateTypingProfQuery, session.StateProfResults, true},
		{session.StateCourseResults, session.StateYearSemesterList, true},
		{session.StateCourseResults, session.StateProfCourseList, false},
		{session.StateProfResults, session.StateProfCourseList, true},
		{session.StateProfCourseList, session.StateYearSemesterList, true},
		{session.StateYearSemesterList, session.StateShowingGrades, true},
		{session.StateShowingGrades, session.StateYearSemesterList, true},
		{session.StateShowingGrades, session.StateTypingProfQuery, true},
		{session.StateTypingCourseQuery, session.StateShowingGrades, false},
		{session.StateNoResults, session.StateCourseResults, true},
		{session.StateNoResults, session.StateShowingGrades, false},
		{session.StateAskFeedbackType, session.StateTypingFeedbackMessage, true},
		{session.StateAskFeedbackType, session.StateConfirmFeedback, false},
		{session.StateTypingFeedbackMessage, session.StateConfirmFeedback, true},
		{session.StateConfirmFeedback, session.StateIdle, true},
		{session.StateConfirmFeedback, session.StateAskFeedbackType, true},
		{session.StateShowingGrades, session.StateIdle, true},
		{session.StateProfCourseList, session.StateProfCourseList, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, m.CanTransition(tt.from, tt.to))
		})
	}
}

func TestMachine_Transition(t *testing.T) {
	m := newMachine()
	s := session.New("u")

	require.NoError(t, m.Transition(s, session.StateSelectingMode))
	assert.Equal(t, session.StateSelectingMode, s.State)

	err := m.Transition(s, session.StateShowingGrades)
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, session.StateSelectingMode, s.State)

	assert.True(t, m.IsTerminal(session.StateIdle))
	assert.False(t, m.IsTerminal(session.StateShowingGrades))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"validation", invalid("too short"), ClassValidation},
		{"stale", stale(action.Must(action.KindNewSearch)), ClassValidation},
		{"malformed", fmt.Errorf("parse: %w", action.ErrMalformed), ClassValidation},
		{"page", fmt.Errorf("page: %w", paginate.ErrOutOfRange), ClassValidation},
		{"not found", notFound("nothing"), ClassNotFound},
		{"gateway not found", gateway.ErrNotFound, ClassNotFound},
		{"status", &gateway.StatusError{Status: 503}, ClassUpstream},
		{"transport", &gateway.TransportError{Err: errors.New("refused")}, ClassUpstream},
		{"deadline", fmt.Errorf("search: %w", context.DeadlineExceeded), ClassUpstream},
		{"mismatch", mismatch("offering %d", 3), ClassInvariant},
		{"illegal", fmt.Errorf("%w: a to b", ErrIllegalTransition), ClassInvariant},
		{"unknown", errors.New("boom"), ClassInvariant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "too short", userMessage(invalid("too short")))
	assert.Equal(t, defaultMessages[ClassUpstream], userMessage(&gateway.StatusError{Status: 500}))
	assert.Equal(t, defaultMessages[ClassInvariant], userMessage(errors.New("boom")))
	assert.Contains(t, userMessage(stale(action.Must(action.KindCancel))), "expired")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func courseSession() *session.Session {
	s := session.New("u")
	s.Mode = session.ModeCourse
	s.LastQuery = "MTH"
	s.SetResult(session.ListCourses, &session.ResultSet{
		Items:  []session.Item{{Label: "MTH101A: Mathematics I", Args: []string{"MTH101A"}}},
		Total:  1,
		Anchor: "MTH",
	})
	s.Trail = session.Trail{CourseCode: "MTH101A", CourseLabel: "MTH101A: Mathematics I"}
	s.SetResult(session.ListTerms, &session.ResultSet{
		Items:  []session.Item{{Label: "2023-2024 · Odd", Args: []string{"2023-2024", "Odd", "1"}}},
		Total:  1,
		Anchor: "MTH101A",
	})
	return s
}

func TestDescend_SkipsRungsWithoutData(t *testing.T) {
	e := &Engine{logger: discardLogger(), machine: newMachine()}

	s := courseSession()
	assert.Equal(t, session.StateYearSemesterList, e.descend(context.Background(), s, session.StateShowingGrades))

	s = courseSession()
	s.Trail.CourseCode = "MTH102A"
	assert.Equal(t, session.StateCourseResults, e.descend(context.Background(), s, session.StateShowingGrades),
		"terms were fetched for another course")

	s = courseSession()
	s.LastQuery = "PHY"
	assert.Equal(t, session.StateTypingCourseQuery, e.descend(context.Background(), s, session.StateCourseResults))

	s = session.New("u")
	s.Push(session.NavFrame{State: session.StateTypingProfQuery})
	assert.Equal(t, session.StateSelectingMode, e.descend(context.Background(), s, session.StateNoResults))
	assert.Empty(t, s.Nav)
	assert.Equal(t, session.ModeNone, s.Mode)
}

func TestScreen_IsDeterministic(t *testing.T) {
	e := &Engine{logger: discardLogger(), machine: newMachine()}
	s := courseSession()
	s.State = session.StateYearSemesterList

	first, err := e.screen(s)
	require.NoError(t, err)
	second, err := e.screen(s.Clone())
	require.NoError(t, err)
	assert.True(t, first.Equal(second))

	s.Trail.CourseCode = "OTHER"
	_, err = e.screen(s)
	assert.ErrorIs(t, err, ErrContextMismatch)
}
