// Package dialogue drives the per-user conversation: search, selection,
// pagination, term selection, grade display, back-navigation, the feedback
// flow and admin commands.
package dialogue

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/Veraticus/gradebot/internal/action"
	"github.com/Veraticus/gradebot/internal/command"
	"github.com/Veraticus/gradebot/internal/gateway"
	"github.com/Veraticus/gradebot/internal/render"
	"github.com/Veraticus/gradebot/internal/session"
)

const (
	// DefaultTransitionTimeout bounds a single event, backend calls included.
	DefaultTransitionTimeout = 20 * time.Second

	// deliverTimeout bounds sending the reply once the transition is over.
	deliverTimeout = 10 * time.Second

	// gateShare is the fraction of the transition timeout the access gate
	// may spend on a block lookup.
	gateShare = 4
)

// Backend is the grades service as seen by the dialogue.
type Backend interface {
	Search(ctx context.Context, userID, query string, kind gateway.SearchKind) ([]gateway.Hit, error)
	TermsForCourse(ctx context.Context, userID, code string) ([]gateway.Term, error)
	TermsForInstructor(ctx context.Context, userID, instructorID string) ([]gateway.Term, error)
	GradeReport(ctx context.Context, userID string, offeringID int) (*gateway.GradeReport, error)
	Subscribe(ctx context.Context, p gateway.Profile) (*gateway.User, error)
	Unsubscribe(ctx context.Context, userID string) (*gateway.User, error)
	SubmitFeedback(ctx context.Context, userID, kind, text string) (*gateway.Receipt, error)
	UserStatus(ctx context.Context, adminID, identifier string) (*gateway.User, error)
	SetBlocked(ctx context.Context, adminID, identifier string, blocked bool, reason string) (*gateway.User, error)
	EnqueueBroadcast(ctx context.Context, adminID, text string) (*gateway.BroadcastTask, error)
	BroadcastStatus(ctx context.Context, adminID, taskID string) (*gateway.BroadcastStatus, error)
}

// Messenger delivers prompts to a chat. Send returns a reference that Edit
// accepts later.
type Messenger interface {
	Send(ctx context.Context, chatID string, p render.Prompt) (string, error)
	Edit(ctx context.Context, chatID, ref string, p render.Prompt) error
}

// Gate decides who may talk to the bot and who may moderate it.
type Gate interface {
	Allow(ctx context.Context, userID string) bool
	IsAdmin(userID string) bool
}

type openGate struct{}

func (openGate) Allow(context.Context, string) bool { return true }
func (openGate) IsAdmin(string) bool                { return false }

// Engine applies inbound events to sessions.
type Engine struct {
	sessions     *session.Manager
	backend      Backend
	messenger    Messenger
	gate         Gate
	adminChannel string
	timeout      time.Duration
	logger       *slog.Logger
	machine      *machine
}

// Option configures an Engine.
type Option func(*Engine) error

// New creates an engine.
func New(sessions *session.Manager, backend Backend, messenger Messenger, opts ...Option) (*Engine, error) {
	if sessions == nil {
		return nil, fmt.Errorf("engine creation failed: session manager is required")
	}
	if backend == nil {
		return nil, fmt.Errorf("engine creation failed: backend is required")
	}
	if messenger == nil {
		return nil, fmt.Errorf("engine creation failed: messenger is required")
	}

	e := &Engine{
		sessions:  sessions,
		backend:   backend,
		messenger: messenger,
		gate:      openGate{},
		timeout:   DefaultTransitionTimeout,
		logger:    slog.Default().With(slog.String("component", "dialogue")),
		machine:   newMachine(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return e, nil
}

// WithGate sets the access gate.
func WithGate(g Gate) Option {
	return func(e *Engine) error {
		if g == nil {
			return fmt.Errorf("gate cannot be nil")
		}
		e.gate = g
		return nil
	}
}

// WithAdminChannel sets the chat that receives feedback copies.
func WithAdminChannel(chatID string) Option {
	return func(e *Engine) error {
		e.adminChannel = chatID
		return nil
	}
}

// WithTransitionTimeout bounds each event.
func WithTransitionTimeout(d time.Duration) Option {
	return func(e *Engine) error {
		if d <= 0 {
			return fmt.Errorf("transition timeout must be positive")
		}
		e.timeout = d
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		e.logger = logger.With(slog.String("component", "dialogue"))
		return nil
	}
}

// Handle applies one event. Events from blocked users and redelivered
// updates are dropped without a reply. The returned error covers only
// session storage; dialogue failures are recovered and answered.
func (e *Engine) Handle(ctx context.Context, ev Event) (err error) {
	if ev.UserID == "" {
		return fmt.Errorf("dialogue: event has no user id")
	}

	if !e.admit(ctx, ev.UserID) {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	lease, err := e.sessions.Acquire(ctx, ev.UserID)
	if err != nil {
		e.unavailable(ctx, ev, err)
		return fmt.Errorf("acquire session: %w", err)
	}
	defer func() {
		if relErr := lease.Release(ctx); relErr != nil && err == nil {
			err = fmt.Errorf("release session: %w", relErr)
		}
	}()
	s := lease.Session

	if ev.ChatID != "" {
		s.ChatID = ev.ChatID
	} else if s.ChatID == "" {
		s.ChatID = ev.UserID
	}

	if !s.MarkSeen(ev.UpdateID) {
		e.logger.DebugContext(ctx, "Dropping redelivered update",
			slog.String("user_id", ev.UserID),
			slog.String("update_id", ev.UpdateID))
		return nil
	}

	t := e.step(ctx, s, ev)
	e.deliver(ctx, s, ev, t.prompt, t.edit)
	if t.end {
		lease.Discard()
	}
	return nil
}

// admit runs the access gate under its own, shorter deadline so a hanging
// block lookup leaves the transition its full budget.
func (e *Engine) admit(ctx context.Context, userID string) bool {
	ctx, cancel := context.WithTimeout(ctx, e.timeout/gateShare)
	defer cancel()
	return e.gate.Allow(ctx, userID)
}

// unavailable answers an event whose session could not be loaded.
func (e *Engine) unavailable(ctx context.Context, ev Event, cause error) {
	chatID := ev.ChatID
	if chatID == "" {
		chatID = ev.UserID
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliverTimeout)
	defer cancel()

	logger := e.logger.With(slog.String("user_id", ev.UserID), slog.String("chat_id", chatID))
	logger.WarnContext(ctx, "Session unavailable", slog.Any("error", cause))
	if _, err := e.messenger.Send(ctx, chatID, render.Prompt{Text: defaultMessages[ClassUpstream]}); err != nil {
		logger.ErrorContext(ctx, "Failed to send prompt", slog.Any("error", err))
	}
}

// turn is what one event produces.
type turn struct {
	prompt render.Prompt
	// edit replaces the message the event came from.
	edit   bool
	// end deletes the session once the prompt is delivered.
	end    bool
}

// step runs the handler for ev. A panicking handler is treated as an
// invariant violation.
func (e *Engine) step(ctx context.Context, s *session.Session, ev Event) (t turn) {
	before := frameFor(s)
	t.edit = ev.Kind == EventAction

	defer func() {
		if r := recover(); r != nil {
			s.LastToken = ""
			var asReply bool
			t.prompt, asReply = e.recoverFrom(ctx, s, before, fmt.Errorf("%w: %v\n%s", ErrPanic, r, debug.Stack()))
			t.edit = t.edit && !asReply
			t.end = false
		}
	}()

	var (
		out Outcome
		err error
		tok action.Token
	)
	switch ev.Kind {
	case EventAction:
		tok, err = action.Parse(ev.Data)
		if err != nil {
			break
		}
		if s.LastToken != "" && tok.String() == s.LastToken {
			e.logger.DebugContext(ctx, "Repeated action, re-rendering",
				slog.String("user_id", s.UserID),
				slog.String("token", s.LastToken))
			p, renderErr := e.screen(s)
			if renderErr == nil {
				t.prompt = p
				return t
			}
			err = renderErr
			break
		}
		out, err = e.onAction(ctx, s, ev, tok)
	case EventCommand, EventText:
		if cmd, ok := command.Parse(ev.Text); ok {
			out, err = e.onCommand(ctx, s, ev, cmd)
		} else {
			out, err = e.onText(ctx, s, ev)
		}
	default:
		err = mismatch("unknown event kind %q", ev.Kind)
	}

	if err == nil {
		t.prompt, err = e.apply(s, before, out)
	}
	if err != nil {
		s.LastToken = ""
		var asReply bool
		t.prompt, asReply = e.recoverFrom(ctx, s, before, err)
		t.edit = t.edit && !asReply
		return t
	}

	if ev.Kind == EventAction && !out.Reply {
		s.LastToken = tok.String()
	} else {
		s.LastToken = ""
	}
	t.edit = t.edit && !out.Reply
	t.end = out.End
	return t
}

// apply validates and commits an outcome, then renders the new screen.
func (e *Engine) apply(s *session.Session, before session.NavFrame, out Outcome) (render.Prompt, error) {
	from := s.State
	if err := e.machine.Transition(s, out.Next); err != nil {
		return render.Prompt{}, err
	}
	if out.Push {
		s.Push(before)
	}
	if e.machine.IsTerminal(s.State) {
		s.Reset()
	}

	var (
		p   render.Prompt
		err error
	)
	if out.Prompt != nil {
		p = *out.Prompt
	} else if p, err = e.screen(s); err != nil {
		return render.Prompt{}, err
	}

	if from != s.State {
		e.logger.Debug("Transition",
			slog.String("user_id", s.UserID),
			slog.String("from", string(from)),
			slog.String("to", string(s.State)))
	}
	return p.WithNotice(out.Notice), nil
}

// deliver shows p to the user. Button presses edit the message they came
// from; everything else, or a failed edit, sends a new message.
func (e *Engine) deliver(ctx context.Context, s *session.Session, ev Event, p render.Prompt, edit bool) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliverTimeout)
	defer cancel()

	logger := e.logger.With(slog.String("user_id", s.UserID), slog.String("chat_id", s.ChatID))

	if edit {
		ref := ev.MessageRef
		if ref == "" {
			ref = s.PromptRef
		}
		if ref != "" {
			err := e.messenger.Edit(ctx, s.ChatID, ref, p)
			if err == nil {
				if len(p.Keyboard) > 0 {
					s.PromptRef = ref
				}
				return
			}
			logger.WarnContext(ctx, "Failed to edit prompt, sending a new one",
				slog.String("ref", ref),
				slog.Any("error", err))
		}
	}

	ref, err := e.messenger.Send(ctx, s.ChatID, p)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to send prompt", slog.Any("error", err))
		return
	}
	if len(p.Keyboard) > 0 {
		s.PromptRef = ref
	}
}

// notifyAdmins posts text to the admin channel. Failures are logged only.
func (e *Engine) notifyAdmins(ctx context.Context, text string) {
	if e.adminChannel == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliverTimeout)
	defer cancel()

	if _, err := e.messenger.Send(ctx, e.adminChannel, render.Prompt{Text: text}); err != nil {
		e.logger.WarnContext(ctx, "Failed to notify admin channel",
			slog.String("channel", e.adminChannel),
			slog.Any("error", err))
	}
}
