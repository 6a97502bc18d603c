package command

import (
	"fmt"
	"strings"
	"unicode"
)

// Prefix introduces a command.
const Prefix = "/"

// Command names.
const (
	Start           = "start"
	Help            = "help"
	Cancel          = "cancel"
	Subscribe       = "subscribe"
	Unsubscribe     = "unsubscribe"
	Feedback        = "feedback"
	Block           = "block"
	Unblock         = "unblock"
	Status          = "status"
	Broadcast       = "broadcast"
	BroadcastStatus = "broadcast_status"
)

// Command is a parsed slash command.
type Command struct {
	Name string
	Args []string
	raw  string
}

// Parse recognises a slash command. It returns false for ordinary text.
func Parse(text string) (Command, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, Prefix) || len(text) == len(Prefix) {
		return Command{}, false
	}

	head, rest := text[len(Prefix):], ""
	if i := strings.IndexFunc(head, unicode.IsSpace); i >= 0 {
		head, rest = head[:i], head[i:]
	}
	name, _, _ := strings.Cut(head, "@")
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || strings.IndexFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	}) >= 0 {
		return Command{}, false
	}

	rest = strings.TrimSpace(rest)
	return Command{Name: name, Args: strings.Fields(rest), raw: rest}, true
}

// New builds a command from a name and its raw argument text.
func New(name, rest string) Command {
	rest = strings.TrimSpace(rest)
	return Command{Name: strings.ToLower(name), Args: strings.Fields(rest), raw: rest}
}

// Arg returns the i-th argument or "".
func (c Command) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}

// Tail returns the raw text after the first n arguments, with its inner
// whitespace preserved.
func (c Command) Tail(n int) string {
	rest := c.raw
	for i := 0; i < n; i++ {
		rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
		idx := strings.IndexFunc(rest, unicode.IsSpace)
		if idx < 0 {
			return ""
		}
		rest = rest[idx:]
	}
	return strings.TrimSpace(rest)
}

// String renders the command as typed.
func (c Command) String() string {
	if c.raw == "" {
		return Prefix + c.Name
	}
	return Prefix + c.Name + " " + c.raw
}

// Spec describes a known command.
type Spec struct {
	Name    string
	Usage   string
	Summary string
	Admin   bool
	MinArgs int
}

// Catalogue lists every command in help order.
var Catalogue = []Spec{
	{Name: Start, Summary: "Start a new search"},
	{Name: Help, Summary: "Show how to use the bot"},
	{Name: Cancel, Summary: "Cancel the current conversation"},
	{Name: Subscribe, Summary: "Receive announcements"},
	{Name: Unsubscribe, Summary: "Stop receiving announcements"},
	{Name: Feedback, Summary: "Report a bug or suggest an improvement"},
	{Name: Block, Usage: "<user id|username> [reason]", Summary: "Block a user", Admin: true, MinArgs: 1},
	{Name: Unblock, Usage: "<user id|username>", Summary: "Unblock a user", Admin: true, MinArgs: 1},
	{Name: Status, Usage: "<user id|username>", Summary: "Show a user's subscription and block status", Admin: true, MinArgs: 1},
	{Name: Broadcast, Usage: "<message>", Summary: "Send a message to every subscriber", Admin: true, MinArgs: 1},
	{Name: BroadcastStatus, Usage: "<task id>", Summary: "Show the delivery report of a broadcast", Admin: true, MinArgs: 1},
}

// Lookup returns the spec of a known command.
func Lookup(name string) (Spec, bool) {
	for _, s := range Catalogue {
		if s.Name == name {
			return s, true
		}
	}
	return Spec{}, false
}

// Validate checks the argument count of c against its spec.
func (s Spec) Validate(c Command) error {
	if len(c.Args) < s.MinArgs {
		return fmt.Errorf("usage: %s", s.Line())
	}
	return nil
}

// Line renders "/name usage".
func (s Spec) Line() string {
	if s.Usage == "" {
		return Prefix + s.Name
	}
	return Prefix + s.Name + " " + s.Usage
}

// HelpText lists the commands available to a user.
func HelpText(admin bool) string {
	var sb strings.Builder
	sb.WriteString("Commands:\n")
	for _, s := range Catalogue {
		if s.Admin {
			continue
		}
		fmt.Fprintf(&sb, "%s - %s\n", s.Line(), s.Summary)
	}
	if admin {
		sb.WriteString("\nAdmin commands:\n")
		for _, s := range Catalogue {
			if s.Admin {
				fmt.Fprintf(&sb, "%s - %s\n", s.Line(), s.Summary)
			}
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
