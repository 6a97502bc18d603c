package dialogue

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Veraticus/gradebot/internal/action"
	"github.com/Veraticus/gradebot/internal/paginate"
	"github.com/Veraticus/gradebot/internal/render"
	"github.com/Veraticus/gradebot/internal/session"
)

// Back-button origins. A back token is only honoured on the screen that
// rendered it.
const (
	originQuery       = "q"
	originResults     = "r"
	originProfCourses = "pc"
	originTerms       = "t"
	originGrades      = "g"
	originNoResults   = "n"
)

// Feedback categories.
const (
	FeedbackBug        = "bug"
	FeedbackSuggestion = "suggestion"
	FeedbackOther      = "other"
)

// MaxFeedbackLen bounds a feedback message, in characters.
const MaxFeedbackLen = 2000

var feedbackLabels = map[string]string{
	FeedbackBug:        "🐞 Bug report",
	FeedbackSuggestion: "💡 Suggestion",
	FeedbackOther:      "💬 Other",
}

var (
	cancelButton    = render.NewButton("✖ Cancel", action.Must(action.KindCancel))
	newSearchButton = render.NewButton("🔎 New search", action.Must(action.KindNewSearch))
	restartButton   = render.NewButton("🔄 Restart", action.Must(action.KindRestart))
)

func backButton(origin string) render.Button {
	return render.NewButton("◀ Back", action.Must(action.KindBack, origin))
}

// originFor names the back origin of a state's screen.
func originFor(state session.State) string {
	switch state {
	case session.StateTypingCourseQuery, session.StateTypingProfQuery:
		return originQuery
	case session.StateCourseResults, session.StateProfResults:
		return originResults
	case session.StateProfCourseList:
		return originProfCourses
	case session.StateYearSemesterList:
		return originTerms
	case session.StateShowingGrades:
		return originGrades
	case session.StateNoResults:
		return originNoResults
	default:
		return ""
	}
}

// listFor names the list a state displays.
func listFor(state session.State) session.ListKind {
	switch state {
	case session.StateCourseResults:
		return session.ListCourses
	case session.StateProfResults:
		return session.ListInstructors
	case session.StateProfCourseList:
		return session.ListProfCourses
	case session.StateYearSemesterList:
		return session.ListTerms
	default:
		return ""
	}
}

// anchorFor identifies the selection a state's screen depends on.
func anchorFor(s *session.Session, state session.State) string {
	switch state {
	case session.StateCourseResults, session.StateProfResults:
		return s.LastQuery
	case session.StateProfCourseList:
		return s.Trail.InstructorID
	case session.StateYearSemesterList:
		if s.Mode == session.ModeInstructor {
			return s.Trail.InstructorID + "/" + s.Trail.CourseCode
		}
		return s.Trail.CourseCode
	case session.StateShowingGrades:
		return strconv.Itoa(s.Trail.OfferingID)
	default:
		return ""
	}
}

// frameFor captures the current screen.
func frameFor(s *session.Session) session.NavFrame {
	f := session.NavFrame{
		State:  s.State,
		List:   listFor(s.State),
		Mode:   s.Mode,
		Anchor: anchorFor(s, s.State),
	}
	if f.List != "" {
		f.Page = s.Page(f.List)
	}
	return f
}

func (e *Engine) listValid(s *session.Session, state session.State) bool {
	set := s.Result(listFor(state))
	return set != nil && set.Anchor == anchorFor(s, state)
}

// renderable reports whether the session holds everything needed to draw
// the screen of state without a backend call.
func (e *Engine) renderable(s *session.Session, state session.State) bool {
	switch state {
	case session.StateSelectingMode:
		return true
	case session.StateTypingCourseQuery:
		return s.Mode == session.ModeCourse
	case session.StateTypingProfQuery:
		return s.Mode == session.ModeInstructor
	case session.StateCourseResults:
		return s.Mode == session.ModeCourse && e.listValid(s, state)
	case session.StateProfResults, session.StateProfCourseList:
		return s.Mode == session.ModeInstructor && e.listValid(s, state)
	case session.StateYearSemesterList:
		if s.Trail.CourseCode == "" || !e.listValid(s, state) {
			return false
		}
		return s.Mode == session.ModeCourse || (s.Mode == session.ModeInstructor && s.Trail.InstructorID != "")
	case session.StateShowingGrades:
		return s.Body != "" && s.Trail.OfferingID != 0
	default:
		return false
	}
}

// frameValid reports whether a stacked frame still matches the session.
func (e *Engine) frameValid(s *session.Session, f session.NavFrame) bool {
	if _, nav := rung[f.State]; !nav {
		return false
	}
	return f.Mode == s.Mode && f.Anchor == anchorFor(s, f.State) && e.renderable(s, f.State)
}

// screen renders the current state from session data alone. Rendering
// the same session twice yields identical prompts.
func (e *Engine) screen(s *session.Session) (render.Prompt, error) {
	if _, nav := rung[s.State]; nav && !e.renderable(s, s.State) {
		return render.Prompt{}, mismatch("session lacks the data for %s", s.State)
	}

	switch s.State {
	case session.StateIdle:
		return render.Prompt{Text: "Send /start to look up a grade distribution, or /help to see what I can do."}, nil

	case session.StateSelectingMode:
		return render.Prompt{
			Text: "How would you like to search?",
			Keyboard: []render.Row{
				{
					render.NewButton("📚 By course", action.Must(action.KindMode, action.ModeCourse)),
					render.NewButton("👩‍🏫 By instructor", action.Must(action.KindMode, action.ModeInstructor)),
				},
				{cancelButton},
			},
		}, nil

	case session.StateTypingCourseQuery:
		return render.Prompt{
			Text:     fmt.Sprintf("Type a course code or title (at least %d characters), e.g. MTH101A or introduction.", MinCourseQuery),
			Keyboard: []render.Row{{backButton(originQuery), cancelButton}},
		}, nil

	case session.StateTypingProfQuery:
		return render.Prompt{
			Text:     fmt.Sprintf("Type the instructor's name (at least %d characters). Part of the name is fine.", MinInstructorQuery),
			Keyboard: []render.Row{{backButton(originQuery), cancelButton}},
		}, nil

	case session.StateCourseResults:
		set := s.Result(session.ListCourses)
		title := fmt.Sprintf("Courses matching \"%s\" (%d found). Pick one:", s.LastQuery, set.Total)
		return e.listScreen(s, session.ListCourses, action.KindSelectCourse, title, originResults)

	case session.StateProfResults:
		set := s.Result(session.ListInstructors)
		title := fmt.Sprintf("Instructors matching \"%s\" (%d found). Pick one:", s.LastQuery, set.Total)
		return e.listScreen(s, session.ListInstructors, action.KindSelectInstructor, title, originResults)

	case session.StateProfCourseList:
		title := fmt.Sprintf("Courses taught by %s. Pick one:", s.Trail.InstructorName)
		return e.listScreen(s, session.ListProfCourses, action.KindSelectCourse, title, originProfCourses)

	case session.StateYearSemesterList:
		title := fmt.Sprintf("Terms of %s. Pick one:", s.Trail.CourseLabel)
		if s.Mode == session.ModeInstructor {
			title = fmt.Sprintf("Terms of %s taught by %s. Pick one:", s.Trail.CourseLabel, s.Trail.InstructorName)
		}
		return e.listScreen(s, session.ListTerms, action.KindSelectTerm, title, originTerms)

	case session.StateShowingGrades:
		return render.Prompt{
			Text:     s.Body,
			Keyboard: []render.Row{{backButton(originGrades), newSearchButton}, {restartButton}},
		}, nil

	case session.StateNoResults:
		text := s.Body
		if text == "" {
			text = defaultMessages[ClassNotFound]
		}
		return render.Prompt{
			Text:     text + "\n\nGo back or start a new search.",
			Keyboard: []render.Row{{backButton(originNoResults), newSearchButton}},
		}, nil

	case session.StateAskFeedbackType:
		return render.Prompt{
			Text: "What kind of feedback would you like to send?",
			Keyboard: []render.Row{
				{
					render.NewButton(feedbackLabels[FeedbackBug], action.Must(action.KindFeedbackKind, FeedbackBug)),
					render.NewButton(feedbackLabels[FeedbackSuggestion], action.Must(action.KindFeedbackKind, FeedbackSuggestion)),
				},
				{
					render.NewButton(feedbackLabels[FeedbackOther], action.Must(action.KindFeedbackKind, FeedbackOther)),
					cancelButton,
				},
			},
		}, nil

	case session.StateTypingFeedbackMessage:
		label, ok := feedbackLabels[s.FeedbackKind]
		if !ok {
			return render.Prompt{}, mismatch("feedback kind %q", s.FeedbackKind)
		}
		return render.Prompt{
			Text:     fmt.Sprintf("%s: type your message (up to %d characters).", label, MaxFeedbackLen),
			Keyboard: []render.Row{{cancelButton}},
		}, nil

	case session.StateConfirmFeedback:
		label, ok := feedbackLabels[s.FeedbackKind]
		if !ok || s.FeedbackDraft == "" {
			return render.Prompt{}, mismatch("feedback draft missing")
		}
		return render.Prompt{
			Text: fmt.Sprintf("Please review your feedback.\n\nType: %s\n\n%s\n\nSend it?", label, s.FeedbackDraft),
			Keyboard: []render.Row{{
				render.NewButton("✅ Send", action.Must(action.KindFeedbackConfirm, action.ConfirmSend)),
				render.NewButton("✏️ Edit", action.Must(action.KindFeedbackConfirm, action.ConfirmEdit)),
				render.NewButton("✖ Cancel", action.Must(action.KindFeedbackConfirm, action.ConfirmCancel)),
			}},
		}, nil

	default:
		return render.Prompt{}, mismatch("no screen for state %q", s.State)
	}
}

// listScreen renders one page of a cached list: one button per item, the
// page controls, then back and new-search.
func (e *Engine) listScreen(s *session.Session, kind session.ListKind, tok action.Kind, title, origin string) (render.Prompt, error) {
	set := s.Result(kind)
	w, err := paginate.Page(set.Items, s.Page(kind), paginate.PageSize)
	if err != nil {
		return render.Prompt{}, err
	}

	var sb strings.Builder
	sb.WriteString(title)
	if caption := paginate.Caption(w); caption != "" {
		sb.WriteString("\n")
		sb.WriteString(caption)
	}

	rows := make([]render.Row, 0, len(w.Items)+2)
	for _, item := range w.Items {
		t, err := action.New(tok, item.Args...)
		if err != nil {
			return render.Prompt{}, fmt.Errorf("render %s item %q: %w", kind, item.Label, err)
		}
		rows = append(rows, render.Row{render.NewButton(item.Label, t)})
	}
	if controls := paginate.Controls(string(kind), w); len(controls) > 0 {
		rows = append(rows, controls)
	}
	rows = append(rows, render.Row{backButton(origin), newSearchButton})

	return render.Prompt{Text: sb.String(), Keyboard: rows}, nil
}
