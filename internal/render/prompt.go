// Package render holds the transport-neutral form of everything the bot
// shows: prompt text plus an inline keyboard of action buttons.
package render

import (
	"strings"

	"github.com/Veraticus/gradebot/internal/action"
)

// Button is a single inline control. Data is the encoded action token.
type Button struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

// Row is one line of buttons.
type Row []Button

// Prompt is a rendered screen.
type Prompt struct {
	Text     string `json:"text"`
	Keyboard []Row  `json:"keyboard,omitempty"`
}

// NewButton encodes tok into a button.
func NewButton(label string, tok action.Token) Button {
	return Button{Label: label, Data: tok.String()}
}

// Buttons returns every button of the keyboard in row order.
func (p Prompt) Buttons() []Button {
	var out []Button
	for _, row := range p.Keyboard {
		out = append(out, row...)
	}
	return out
}

// Find returns the first button whose data equals data.
func (p Prompt) Find(data string) (Button, bool) {
	for _, b := range p.Buttons() {
		if b.Data == data {
			return b, true
		}
	}
	return Button{}, false
}

// Equal reports whether two prompts render identically.
func (p Prompt) Equal(other Prompt) bool {
	return p.Fingerprint() == other.Fingerprint()
}

// Fingerprint is a stable textual form of the prompt, text and keyboard
// included.
func (p Prompt) Fingerprint() string {
	var sb strings.Builder
	sb.WriteString(p.Text)
	for _, row := range p.Keyboard {
		sb.WriteString("\n#")
		for _, b := range row {
			sb.WriteString("[")
			sb.WriteString(b.Label)
			sb.WriteString("=")
			sb.WriteString(b.Data)
			sb.WriteString("]")
		}
	}
	return sb.String()
}

// WithNotice returns a copy of p with notice prepended to the text.
func (p Prompt) WithNotice(notice string) Prompt {
	if notice == "" {
		return p
	}
	out := Prompt{Text: notice + "\n\n" + p.Text, Keyboard: make([]Row, len(p.Keyboard))}
	copy(out.Keyboard, p.Keyboard)
	return out
}
