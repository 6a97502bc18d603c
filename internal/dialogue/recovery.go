package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/gradebot/internal/action"
	"github.com/Veraticus/gradebot/internal/gateway"
	"github.com/Veraticus/gradebot/internal/paginate"
	"github.com/Veraticus/gradebot/internal/render"
	"github.com/Veraticus/gradebot/internal/session"
)

// Class is the recovery category of a transition failure.
type Class int

const (
	// ClassInvariant represents a programming or context-invariant violation.
	ClassInvariant Class = iota
	// ClassValidation represents bad input that can be corrected in place.
	ClassValidation
	// ClassNotFound represents an empty search or missing record.
	ClassNotFound
	// ClassUpstream represents an unreachable or failing backend.
	ClassUpstream
)

// String returns the class name used in logs.
func (c Class) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassNotFound:
		return "not_found"
	case ClassUpstream:
		return "upstream"
	default:
		return "invariant"
	}
}

var (
	// ErrContextMismatch indicates the session trail no longer matches the
	// data a screen was built from.
	ErrContextMismatch = errors.New("context mismatch")

	// ErrIllegalTransition indicates a handler asked for a move the
	// transition table forbids.
	ErrIllegalTransition = errors.New("illegal transition")

	// ErrStaleAction indicates a well-formed button that does not belong to
	// the current screen.
	ErrStaleAction = errors.New("stale action")

	// ErrPanic indicates a transition handler panicked.
	ErrPanic = errors.New("transition panicked")
)

// userError carries a class and the message shown to the user.
type userError struct {
	class Class
	msg   string
	err   error
}

func (e *userError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *userError) Unwrap() error {
	return e.err
}

func invalid(msg string) error {
	return &userError{class: ClassValidation, msg: msg}
}

func notFound(msg string) error {
	return &userError{class: ClassNotFound, msg: msg, err: gateway.ErrNotFound}
}

func stale(tok action.Token) error {
	return &userError{
		class: ClassValidation,
		msg:   "That button has expired. Here is where you are now:",
		err:   fmt.Errorf("%w: %s", ErrStaleAction, tok),
	}
}

func mismatch(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrContextMismatch, fmt.Sprintf(format, args...))
}

// Classify maps a failure onto its recovery class.
func Classify(err error) Class {
	var ue *userError
	switch {
	case errors.As(err, &ue):
		return ue.class
	case errors.Is(err, ErrContextMismatch), errors.Is(err, ErrIllegalTransition), errors.Is(err, ErrPanic):
		return ClassInvariant
	case errors.Is(err, action.ErrMalformed), errors.Is(err, paginate.ErrOutOfRange):
		return ClassValidation
	case errors.Is(err, gateway.ErrNotFound):
		return ClassNotFound
	case gateway.IsUpstream(err), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ClassUpstream
	default:
		return ClassInvariant
	}
}

var defaultMessages = map[Class]string{
	ClassValidation: "Sorry, I couldn't use that. Please try again.",
	ClassNotFound:   "Nothing was found.",
	ClassUpstream:   "Sorry, the grades service is unavailable right now. Please try again in a moment.",
	ClassInvariant:  "Something went wrong and your search was reset. Send /start to begin again.",
}

// userMessage returns the text shown for err.
func userMessage(err error) string {
	var ue *userError
	if errors.As(err, &ue) && ue.msg != "" {
		return ue.msg
	}
	if errors.Is(err, action.ErrMalformed) {
		return "That button could not be read. Here is where you are now:"
	}
	if errors.Is(err, paginate.ErrOutOfRange) {
		return "That page no longer exists."
	}
	return defaultMessages[Classify(err)]
}

// recoverFrom turns a failed transition into a well-defined state and a
// prompt. before is the screen the event started from. The flag reports a
// prompt meant as a separate reply that leaves the current screen alone.
func (e *Engine) recoverFrom(ctx context.Context, s *session.Session, before session.NavFrame, err error) (render.Prompt, bool) {
	class := Classify(err)
	logger := e.logger.With(
		slog.String("user_id", s.UserID),
		slog.String("state", string(s.State)),
		slog.String("class", class.String()),
		slog.Any("error", err))

	switch class {
	case ClassValidation:
		logger.DebugContext(ctx, "Input rejected")
		p, renderErr := e.screen(s)
		if renderErr != nil {
			return e.fallback(ctx, s, s.State, userMessage(err)), false
		}
		return p.WithNotice(userMessage(err)), false

	case ClassNotFound:
		logger.InfoContext(ctx, "Nothing found")
		if _, browsing := rung[before.State]; !browsing {
			return render.Prompt{Text: userMessage(err)}, true
		}
		if !e.machine.CanTransition(before.State, session.StateNoResults) {
			return e.fallback(ctx, s, s.State, userMessage(err)), false
		}
		s.Push(before)
		s.State = session.StateNoResults
		s.Body = userMessage(err)
		p, _ := e.screen(s)
		return p, false

	case ClassUpstream:
		logger.WarnContext(ctx, "Backend unavailable, resetting conversation")
		s.Reset()
		return render.Prompt{
			Text:     userMessage(err),
			Keyboard: []render.Row{{render.NewButton("🔄 Restart", action.Must(action.KindRestart))}},
		}, false

	default:
		logger.ErrorContext(ctx, "Dialogue invariant violated, resetting conversation")
		s.Reset()
		return render.Prompt{Text: defaultMessages[ClassInvariant]}, false
	}
}

// fallback moves the session down the recovery ladder and renders the
// screen it lands on.
func (e *Engine) fallback(ctx context.Context, s *session.Session, from session.State, notice string) render.Prompt {
	s.State = e.descend(ctx, s, from)
	p, err := e.screen(s)
	if err != nil {
		s.Reset()
		s.State = session.StateSelectingMode
		p, _ = e.screen(s)
	}
	return p.WithNotice(notice)
}

// descend walks the recovery ladder down from the rung below from and
// returns the first state the session still has the data for. Frames at
// or above that rung are dropped. Mode selection needs nothing, so the walk
// always ends.
func (e *Engine) descend(ctx context.Context, s *session.Session, from session.State) session.State {
	top, ok := rung[from]
	if !ok {
		top = len(ladder)
	}

	target := session.StateSelectingMode
	for _, candidate := range ladder {
		if rung[candidate] < top && e.renderable(s, candidate) {
			target = candidate
			break
		}
	}

	for {
		f, ok := s.Peek()
		if !ok {
			break
		}
		if r, nav := rung[f.State]; nav && r < rung[target] {
			break
		}
		s.Pop()
	}
	if target == session.StateSelectingMode {
		s.Mode = session.ModeNone
	}

	e.logger.DebugContext(ctx, "Falling back",
		slog.String("user_id", s.UserID),
		slog.String("from", string(from)),
		slog.String("to", string(target)))
	return target
}

// ladder lists the fallback targets from the most specific screen down.
var ladder = []session.State{
	session.StateYearSemesterList,
	session.StateProfCourseList,
	session.StateCourseResults,
	session.StateProfResults,
	session.StateTypingCourseQuery,
	session.StateTypingProfQuery,
	session.StateSelectingMode,
}
