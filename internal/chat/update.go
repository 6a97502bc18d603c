// Package chat is the websocket chat transport: clients connect per chat,
// send commands, text and button presses, and receive prompts that the bot
// may later edit in place.
package chat

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/gradebot/internal/dialogue"
	"github.com/Veraticus/gradebot/internal/render"
)

// Frame types.
const (
	frameCommand = "command"
	frameText    = "text"
	frameAction  = "action"
	framePing    = "ping"
	framePong    = "pong"
	frameSend    = "send"
	frameEdit    = "edit"
	frameError   = "error"
)

// Transport errors.
var (
	// ErrNoConnection indicates the chat has no open connection.
	ErrNoConnection = errors.New("chat not connected")

	// ErrUnknownMessage indicates an edit of a message this connection never received.
	ErrUnknownMessage = errors.New("unknown message")

	// ErrAlreadySubscribed indicates Subscribe was called twice.
	ErrAlreadySubscribed = errors.New("already subscribed")

	// ErrBadFrame indicates an inbound frame that cannot become an update.
	ErrBadFrame = errors.New("bad frame")
)

// Update is one inbound event from a connected client.
type Update struct {
	ID         string
	UserID     string
	ChatID     string
	Username   string
	FirstName  string
	Kind       dialogue.EventKind
	Text       string
	Data       string
	MessageRef string
	Received   time.Time
}

// Event converts the update for the dialogue engine.
func (u Update) Event() dialogue.Event {
	return dialogue.Event{
		UpdateID:   u.ID,
		UserID:     u.UserID,
		ChatID:     u.ChatID,
		Username:   u.Username,
		FirstName:  u.FirstName,
		Kind:       u.Kind,
		Text:       u.Text,
		Data:       u.Data,
		MessageRef: u.MessageRef,
	}
}

// inbound is a frame sent by a client.
type inbound struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	Text string `json:"text,omitempty"`
	Data string `json:"data,omitempty"`
	Ref  string `json:"ref,omitempty"`
}

// outbound is a frame sent to a client.
type outbound struct {
	Type     string       `json:"type"`
	Ref      string       `json:"ref,omitempty"`
	Text     string       `json:"text,omitempty"`
	Keyboard []render.Row `json:"keyboard,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// kind validates an inbound frame and maps it to an event kind.
func (f inbound) kind() (dialogue.EventKind, error) {
	switch f.Type {
	case frameCommand:
		if !strings.HasPrefix(strings.TrimSpace(f.Text), "/") {
			return "", fmt.Errorf("%w: command must start with /", ErrBadFrame)
		}
		return dialogue.EventCommand, nil
	case frameText:
		if f.Text == "" {
			return "", fmt.Errorf("%w: empty text", ErrBadFrame)
		}
		return dialogue.EventText, nil
	case frameAction:
		if f.Data == "" {
			return "", fmt.Errorf("%w: action without data", ErrBadFrame)
		}
		return dialogue.EventAction, nil
	default:
		return "", fmt.Errorf("%w: unknown type %q", ErrBadFrame, f.Type)
	}
}
