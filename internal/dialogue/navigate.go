package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/Veraticus/gradebot/internal/action"
	"github.com/Veraticus/gradebot/internal/gateway"
	"github.com/Veraticus/gradebot/internal/paginate"
	"github.com/Veraticus/gradebot/internal/render"
	"github.com/Veraticus/gradebot/internal/session"
)

// Minimum query lengths, in characters, after trimming.
const (
	MinCourseQuery     = 2
	MinInstructorQuery = 3
)

// accepts lists the action kinds each screen offers. Cancel and restart
// are accepted everywhere.
var accepts = map[session.State][]action.Kind{
	session.StateSelectingMode:     {action.KindMode},
	session.StateTypingCourseQuery: {action.KindBack},
	session.StateTypingProfQuery:   {action.KindBack},
	session.StateCourseResults:     {action.KindSelectCourse, action.KindPage, action.KindBack, action.KindNewSearch},
	session.StateProfResults:       {action.KindSelectInstructor, action.KindPage, action.KindBack, action.KindNewSearch},
	session.StateProfCourseList:    {action.KindSelectCourse, action.KindPage, action.KindBack, action.KindNewSearch},
	session.StateYearSemesterList:  {action.KindSelectTerm, action.KindPage, action.KindBack, action.KindNewSearch},
	session.StateShowingGrades:     {action.KindBack, action.KindNewSearch},
	session.StateNoResults:         {action.KindBack, action.KindNewSearch},
	session.StateAskFeedbackType:   {action.KindFeedbackKind},
	session.StateConfirmFeedback:   {action.KindFeedbackConfirm},
}

func accepted(state session.State, kind action.Kind) bool {
	if kind == action.KindCancel || kind == action.KindRestart {
		return true
	}
	for _, k := range accepts[state] {
		if k == kind {
			return true
		}
	}
	return false
}

func (e *Engine) onAction(ctx context.Context, s *session.Session, ev Event, tok action.Token) (Outcome, error) {
	if !accepted(s.State, tok.Kind) {
		return Outcome{}, stale(tok)
	}

	switch tok.Kind {
	case action.KindCancel:
		return e.cancel(s), nil
	case action.KindRestart:
		s.Reset()
		return moveTo(session.StateSelectingMode), nil
	case action.KindMode:
		return e.chooseMode(s, tok.Arg(0)), nil
	case action.KindPage:
		return e.turnPage(s, tok)
	case action.KindBack:
		if tok.Arg(0) != originFor(s.State) {
			return Outcome{}, stale(tok)
		}
		return e.back(ctx, s), nil
	case action.KindNewSearch:
		return e.newSearch(s), nil
	case action.KindSelectCourse:
		if s.State == session.StateProfCourseList {
			return e.selectProfCourse(s, tok)
		}
		return e.selectCourse(ctx, s, tok)
	case action.KindSelectInstructor:
		return e.selectInstructor(ctx, s, tok)
	case action.KindSelectTerm:
		return e.selectTerm(ctx, s, tok)
	case action.KindFeedbackKind:
		return e.chooseFeedbackKind(s, tok.Arg(0))
	case action.KindFeedbackConfirm:
		return e.confirmFeedback(ctx, s, ev, tok.Arg(0))
	default:
		return Outcome{}, stale(tok)
	}
}

func (e *Engine) onText(ctx context.Context, s *session.Session, ev Event) (Outcome, error) {
	switch s.State {
	case session.StateTypingCourseQuery:
		return e.search(ctx, s, ev.Text, gateway.SearchCourses)
	case session.StateTypingProfQuery:
		return e.search(ctx, s, ev.Text, gateway.SearchInstructors)
	case session.StateTypingFeedbackMessage:
		return e.draftFeedback(s, ev.Text)
	case session.StateIdle:
		return Outcome{Next: session.StateIdle, Reply: true}, nil
	default:
		return Outcome{}, invalid("Please use the buttons below.")
	}
}

func (e *Engine) cancel(s *session.Session) Outcome {
	s.Reset()
	return Outcome{
		Next:   session.StateIdle,
		Prompt: &render.Prompt{Text: "Cancelled. Send /start whenever you want to search again."},
		End:    true,
	}
}

// clearSearch forgets everything selected so far.
func clearSearch(s *session.Session) {
	s.LastQuery = ""
	s.Trail = session.Trail{}
	s.Results = make(map[session.ListKind]*session.ResultSet)
	s.Pages = make(map[session.ListKind]int)
	s.Body = ""
	s.Nav = nil
}

func (e *Engine) chooseMode(s *session.Session, mode string) Outcome {
	clearSearch(s)
	if mode == action.ModeInstructor {
		s.Mode = session.ModeInstructor
		return moveTo(session.StateTypingProfQuery)
	}
	s.Mode = session.ModeCourse
	return moveTo(session.StateTypingCourseQuery)
}

func (e *Engine) newSearch(s *session.Session) Outcome {
	clearSearch(s)
	switch s.Mode {
	case session.ModeCourse:
		return moveTo(session.StateTypingCourseQuery)
	case session.ModeInstructor:
		return moveTo(session.StateTypingProfQuery)
	default:
		return moveTo(session.StateSelectingMode)
	}
}

func (e *Engine) turnPage(s *session.Session, tok action.Token) (Outcome, error) {
	kind := session.ListKind(tok.Arg(0))
	if kind != listFor(s.State) {
		return Outcome{}, stale(tok)
	}
	index, err := tok.Int(1)
	if err != nil {
		return Outcome{}, err
	}
	set := s.Result(kind)
	if set == nil {
		return Outcome{}, mismatch("no cached %s list", kind)
	}
	if _, err := paginate.Page(set.Items, index, paginate.PageSize); err != nil {
		return Outcome{}, err
	}
	s.SetPage(kind, index)
	return stay(s), nil
}

// back returns to the screen the user came from. A query prompt always
// leads to mode selection. Other screens pop their frame and redraw it
// from the cache when it still matches the session, and descend the
// recovery ladder otherwise.
func (e *Engine) back(ctx context.Context, s *session.Session) Outcome {
	from := s.State
	if from == session.StateTypingCourseQuery || from == session.StateTypingProfQuery {
		clearSearch(s)
		s.Mode = session.ModeNone
		return moveTo(session.StateSelectingMode)
	}

	if f, ok := s.Pop(); ok {
		if e.frameValid(s, f) {
			if f.List != "" {
				s.SetPage(f.List, paginate.Clamp(f.Page, len(s.Result(f.List).Items), paginate.PageSize))
			}
			return moveTo(f.State)
		}
		e.logger.DebugContext(ctx, "Back frame no longer matches the session",
			slog.String("user_id", s.UserID),
			slog.String("frame_state", string(f.State)),
			slog.String("frame_anchor", f.Anchor))
	}
	return moveTo(e.descend(ctx, s, from))
}

func (e *Engine) search(ctx context.Context, s *session.Session, text string, kind gateway.SearchKind) (Outcome, error) {
	query := strings.Join(strings.Fields(text), " ")
	least, noun, list, next, tok := MinCourseQuery, "courses", session.ListCourses, session.StateCourseResults, action.KindSelectCourse
	if kind == gateway.SearchInstructors {
		least, noun, list, next, tok = MinInstructorQuery, "instructors", session.ListInstructors, session.StateProfResults, action.KindSelectInstructor
	}
	if utf8.RuneCountInString(query) < least {
		return Outcome{}, invalid(fmt.Sprintf("Please type at least %d characters.", least))
	}

	hits, err := e.backend.Search(ctx, s.UserID, query, kind)
	if err != nil && !errors.Is(err, gateway.ErrNotFound) {
		return Outcome{}, err
	}

	items := make([]session.Item, 0, len(hits))
	for _, hit := range hits {
		if !e.usable(ctx, tok, hit.Label, hit.ID) {
			continue
		}
		items = append(items, session.Item{Label: hit.Label, Args: []string{hit.ID}})
	}
	if len(items) == 0 {
		return Outcome{}, notFound(fmt.Sprintf("No %s found for \"%s\".", noun, query))
	}

	s.LastQuery = query
	s.SetResult(list, &session.ResultSet{Items: items, Total: len(items), Anchor: query})
	return Outcome{Next: next, Push: true}, nil
}

// usable reports whether a button can be built for args, logging the
// entries that cannot.
func (e *Engine) usable(ctx context.Context, kind action.Kind, label string, args ...string) bool {
	if _, err := action.New(kind, args...); err != nil {
		e.logger.WarnContext(ctx, "Skipping entry that cannot be encoded",
			slog.String("label", label),
			slog.Any("error", err))
		return false
	}
	return true
}

// find returns the cached item of kind whose arguments equal args.
func find(s *session.Session, kind session.ListKind, args ...string) (session.Item, bool) {
	set := s.Result(kind)
	if set == nil {
		return session.Item{}, false
	}
	for _, item := range set.Items {
		if len(item.Args) < len(args) {
			continue
		}
		match := true
		for i, a := range args {
			if item.Args[i] != a {
				match = false
				break
			}
		}
		if match {
			return item, true
		}
	}
	return session.Item{}, false
}

func termLabel(year, semester string) string {
	return year + " · " + semester
}

func (e *Engine) selectCourse(ctx context.Context, s *session.Session, tok action.Token) (Outcome, error) {
	code := tok.Arg(0)
	item, ok := find(s, session.ListCourses, code)
	if !ok {
		return Outcome{}, stale(tok)
	}

	terms, err := e.backend.TermsForCourse(ctx, s.UserID, code)
	if err != nil && !errors.Is(err, gateway.ErrNotFound) {
		return Outcome{}, err
	}

	items := make([]session.Item, 0, len(terms))
	for _, t := range terms {
		args := []string{t.Year, t.Semester, strconv.Itoa(t.OfferingID)}
		label := termLabel(t.Year, t.Semester)
		if !e.usable(ctx, action.KindSelectTerm, label, args...) {
			continue
		}
		items = append(items, session.Item{Label: label, Args: args})
	}
	if len(items) == 0 {
		return Outcome{}, notFound(fmt.Sprintf("No grade records were found for %s.", item.Label))
	}

	s.Trail = session.Trail{CourseCode: code, CourseLabel: item.Label}
	s.Body = ""
	s.SetResult(session.ListTerms, &session.ResultSet{Items: items, Total: len(items), Anchor: code})
	return Outcome{Next: session.StateYearSemesterList, Push: true}, nil
}

func (e *Engine) selectInstructor(ctx context.Context, s *session.Session, tok action.Token) (Outcome, error) {
	id := tok.Arg(0)
	item, ok := find(s, session.ListInstructors, id)
	if !ok {
		return Outcome{}, stale(tok)
	}

	terms, err := e.backend.TermsForInstructor(ctx, s.UserID, id)
	if err != nil && !errors.Is(err, gateway.ErrNotFound) {
		return Outcome{}, err
	}

	var (
		courses []session.Item
		all     []session.Item
		seen    = make(map[string]bool)
	)
	for _, t := range terms {
		if len(t.Instructors) > 0 && !t.TaughtBy(id) {
			e.logger.DebugContext(ctx, "Skipping term taught by someone else",
				slog.String("instructor_id", id),
				slog.Int("offering_id", t.OfferingID))
			continue
		}
		code := t.Course.Code
		args := []string{t.Year, t.Semester, strconv.Itoa(t.OfferingID)}
		label := termLabel(t.Year, t.Semester)
		if !e.usable(ctx, action.KindSelectTerm, label, args...) || !e.usable(ctx, action.KindSelectCourse, t.Course.Label(), code) {
			continue
		}
		all = append(all, session.Item{Label: label, Args: append(args, code)})
		if !seen[code] {
			seen[code] = true
			courses = append(courses, session.Item{Label: t.Course.Label(), Args: []string{code}})
		}
	}
	if len(courses) == 0 {
		return Outcome{}, notFound(fmt.Sprintf("No graded courses were found for %s.", item.Label))
	}

	s.Trail = session.Trail{InstructorID: id, InstructorName: item.Label}
	s.Body = ""
	s.DropResult(session.ListTerms)
	s.SetResult(session.ListProfCourses, &session.ResultSet{Items: courses, Total: len(courses), Anchor: id})
	s.SetResult(session.ListProfTerms, &session.ResultSet{Items: all, Total: len(all), Anchor: id})
	return Outcome{Next: session.StateProfCourseList, Push: true}, nil
}

// selectProfCourse narrows the cached terms of the selected instructor to
// one course. No backend call is needed.
func (e *Engine) selectProfCourse(s *session.Session, tok action.Token) (Outcome, error) {
	code := tok.Arg(0)
	item, ok := find(s, session.ListProfCourses, code)
	if !ok {
		return Outcome{}, stale(tok)
	}

	cached := s.Result(session.ListProfTerms)
	if cached == nil || s.Trail.InstructorID == "" || cached.Anchor != s.Trail.InstructorID {
		return Outcome{}, mismatch("cached terms do not belong to instructor %q", s.Trail.InstructorID)
	}

	var items []session.Item
	for _, t := range cached.Items {
		if len(t.Args) == 4 && t.Args[3] == code {
			items = append(items, session.Item{Label: t.Label, Args: t.Args[:3]})
		}
	}
	if len(items) == 0 {
		return Outcome{}, notFound(fmt.Sprintf("No terms of %s were found for %s.", item.Label, s.Trail.InstructorName))
	}

	s.Trail.CourseCode = code
	s.Trail.CourseLabel = item.Label
	s.Trail.Year, s.Trail.Semester, s.Trail.OfferingID = "", "", 0
	s.Body = ""
	s.SetResult(session.ListTerms, &session.ResultSet{
		Items:  items,
		Total:  len(items),
		Anchor: s.Trail.InstructorID + "/" + code,
	})
	return Outcome{Next: session.StateYearSemesterList, Push: true}, nil
}

func (e *Engine) selectTerm(ctx context.Context, s *session.Session, tok action.Token) (Outcome, error) {
	if _, ok := find(s, session.ListTerms, tok.Args...); !ok {
		return Outcome{}, stale(tok)
	}
	offeringID, err := tok.Int(2)
	if err != nil {
		return Outcome{}, err
	}

	report, err := e.backend.GradeReport(ctx, s.UserID, offeringID)
	if errors.Is(err, gateway.ErrNotFound) {
		return Outcome{}, notFound(fmt.Sprintf("No grade distribution was found for %s.", termLabel(tok.Arg(0), tok.Arg(1))))
	}
	if err != nil {
		return Outcome{}, err
	}

	if code := report.Offering.Course.Code; code != "" && code != s.Trail.CourseCode {
		return Outcome{}, mismatch("offering %d is for %q, trail has %q", offeringID, code, s.Trail.CourseCode)
	}
	if s.Mode == session.ModeInstructor && len(report.Offering.Instructors) > 0 {
		taught := false
		for _, in := range report.Offering.Instructors {
			if in.Key() == s.Trail.InstructorID {
				taught = true
				break
			}
		}
		if !taught {
			return Outcome{}, mismatch("offering %d was not taught by %q", offeringID, s.Trail.InstructorID)
		}
	}

	s.Trail.Year = tok.Arg(0)
	s.Trail.Semester = tok.Arg(1)
	s.Trail.OfferingID = offeringID
	s.Body = render.GradeReport(report)
	return Outcome{Next: session.StateShowingGrades, Push: true}, nil
}
