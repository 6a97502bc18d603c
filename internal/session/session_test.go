package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/gradebot/internal/session"
)

func TestSession_MarkSeen(t *testing.T) {
	s := session.New("u1")

	assert.True(t, s.MarkSeen("a"))
	assert.False(t, s.MarkSeen("a"))
	assert.True(t, s.MarkSeen(""))
	assert.True(t, s.MarkSeen(""))

	for i := 0; i < 40; i++ {
		s.MarkSeen(string(rune('b' + i)))
	}
	assert.Len(t, s.Seen, 32)
	assert.True(t, s.MarkSeen("a"), "oldest ids fall out of the window")
}

func TestSession_NavStack(t *testing.T) {
	s := session.New("u1")

	_, ok := s.Pop()
	assert.False(t, ok)

	s.Push(session.NavFrame{State: session.StateCourseResults, List: session.ListCourses, Page: 2})
	s.Push(session.NavFrame{State: session.StateYearSemesterList, List: session.ListTerms})

	top, ok := s.Peek()
	require.True(t, ok)
	assert.Equal(t, session.StateYearSemesterList, top.State)

	f, ok := s.Pop()
	require.True(t, ok)
	assert.Equal(t, session.StateYearSemesterList, f.State)

	f, ok = s.Pop()
	require.True(t, ok)
	assert.Equal(t, 2, f.Page)
	assert.Empty(t, s.Nav)
}

func TestSession_Reset(t *testing.T) {
	s := session.New("u1")
	s.ChatID = "c1"
	s.PromptRef = "m1"
	s.State = session.StateShowingGrades
	s.Mode = session.ModeCourse
	s.Trail.CourseCode = "MTH101A"
	s.SetResult(session.ListCourses, &session.ResultSet{Items: []session.Item{{Label: "x", Args: []string{"x"}}}, Total: 1})
	s.SetPage(session.ListCourses, 3)
	s.Push(session.NavFrame{State: session.StateCourseResults})
	s.MarkSeen("up-1")
	s.LastToken = "cs|MTH101A"

	s.Reset()

	assert.Equal(t, session.StateIdle, s.State)
	assert.Equal(t, session.ModeNone, s.Mode)
	assert.Equal(t, session.Trail{}, s.Trail)
	assert.Nil(t, s.Result(session.ListCourses))
	assert.Equal(t, 0, s.Page(session.ListCourses))
	assert.Empty(t, s.Nav)
	assert.Empty(t, s.LastToken)

	assert.Equal(t, "u1", s.UserID)
	assert.Equal(t, "c1", s.ChatID)
	assert.Equal(t, "m1", s.PromptRef)
	assert.False(t, s.MarkSeen("up-1"))
}

func TestSession_CloneIsDeep(t *testing.T) {
	s := session.New("u1")
	s.SetResult(session.ListTerms, &session.ResultSet{
		Items:  []session.Item{{Label: "2023-2024 Odd", Args: []string{"2023-2024", "Odd", "7"}}},
		Total:  1,
		Anchor: "MTH101A",
	})
	s.Push(session.NavFrame{State: session.StateCourseResults})

	c := s.Clone()
	c.Result(session.ListTerms).Items[0].Args[2] = "8"
	c.Nav[0].Page = 4

	assert.Equal(t, "7", s.Result(session.ListTerms).Items[0].Args[2])
	assert.Equal(t, 0, s.Nav[0].Page)
}

func TestDecode_Defaults(t *testing.T) {
	s, err := session.Decode([]byte(`{"user_id":"u1"}`))
	require.NoError(t, err)
	assert.Equal(t, session.StateIdle, s.State)
	assert.NotNil(t, s.Results)
	assert.NotNil(t, s.Pages)

	_, err = session.Decode([]byte(`{`))
	assert.Error(t, err)
}
