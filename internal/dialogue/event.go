package dialogue

import (
	"github.com/Veraticus/gradebot/internal/render"
	"github.com/Veraticus/gradebot/internal/session"
)

// EventKind distinguishes the three inbound event shapes.
type EventKind string

// Event kinds.
const (
	EventCommand EventKind = "command"
	EventText    EventKind = "text"
	EventAction  EventKind = "action"
)

// Event is one inbound update from a user.
type Event struct {
	// UpdateID identifies the delivery; redelivered updates carry the same id.
	UpdateID   string
	UserID     string
	ChatID     string
	Username   string
	FirstName  string
	Kind       EventKind
	// Text holds the typed message, including the command for EventCommand.
	Text       string
	// Data is the encoded action token for EventAction.
	Data       string
	// MessageRef is the message whose button produced an EventAction.
	MessageRef string
}

// Outcome is the explicit result of a successful transition.
type Outcome struct {
	// Next is the state the session moves to.
	Next   session.State
	// Push stacks a frame for the screen being left.
	Push   bool
	// Prompt overrides the screen rendered for Next.
	Prompt *render.Prompt
	// Notice is prepended to the rendered screen.
	Notice string
	// Reply sends a new message even for button presses.
	Reply  bool
	// End deletes the session after the prompt is delivered.
	End    bool
}

func stay(s *session.Session) Outcome {
	return Outcome{Next: s.State}
}

func moveTo(next session.State) Outcome {
	return Outcome{Next: next}
}

func reply(s *session.Session, text string) Outcome {
	return Outcome{Next: s.State, Prompt: &render.Prompt{Text: text}, Reply: true}
}
