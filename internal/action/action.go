// Package action models the structured instructions carried by interactive
// chat controls. A Token is parsed once at the transport boundary and only
// encoded back to its wire string when a keyboard is rendered.
package action

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxLen bounds the encoded size of a token. Chat platforms reject callback
// payloads above 64 bytes.
const MaxLen = 64

// Separator splits a prefix from its arguments. It never appears in course
// codes, instructor ids, academic years or semester names.
const Separator = "|"

// ErrMalformed is returned for tokens with an unknown prefix, wrong arity,
// empty or invalid arguments, or an over-length encoding.
var ErrMalformed = errors.New("malformed action token")

// Kind identifies what an action token asks the engine to do.
type Kind string

const (
	// KindMode selects the search mode (course or instructor).
	KindMode Kind = "m"
	// KindSelectCourse picks a course by code.
	KindSelectCourse Kind = "cs"
	// KindSelectInstructor picks an instructor by id.
	KindSelectInstructor Kind = "ps"
	// KindSelectTerm picks an academic year, semester and offering.
	KindSelectTerm Kind = "ys"
	// KindPage jumps to an absolute page of a list.
	KindPage Kind = "pg"
	// KindBack returns to the previous screen; the argument names the origin.
	KindBack Kind = "bk"
	// KindNewSearch returns to the query prompt of the current mode.
	KindNewSearch Kind = "nw"
	// KindRestart returns to mode selection.
	KindRestart Kind = "rs"
	// KindCancel ends the conversation.
	KindCancel Kind = "x"
	// KindFeedbackKind picks the feedback category.
	KindFeedbackKind Kind = "fk"
	// KindFeedbackConfirm answers the feedback confirmation screen.
	KindFeedbackConfirm Kind = "fc"
)

// Search modes carried by KindMode.
const (
	ModeCourse     = "course"
	ModeInstructor = "prof"
)

// Feedback confirmation choices carried by KindFeedbackConfirm.
const (
	ConfirmSend   = "send"
	ConfirmEdit   = "edit"
	ConfirmCancel = "cancel"
)

type kindSpec struct {
	arity    int
	validate func(args []string) error
}

var specs = map[Kind]kindSpec{
	KindMode:             {arity: 1, validate: oneOf(0, ModeCourse, ModeInstructor)},
	KindSelectCourse:     {arity: 1},
	KindSelectInstructor: {arity: 1},
	KindSelectTerm:       {arity: 3, validate: nonNegativeInt(2)},
	KindPage:             {arity: 2, validate: nonNegativeInt(1)},
	KindBack:             {arity: 1},
	KindNewSearch:        {arity: 0},
	KindRestart:          {arity: 0},
	KindCancel:           {arity: 0},
	KindFeedbackKind:     {arity: 1},
	KindFeedbackConfirm:  {arity: 1, validate: oneOf(0, ConfirmSend, ConfirmEdit, ConfirmCancel)},
}

// Token is the typed form of an action token.
type Token struct {
	Kind Kind
	Args []string
}

// New builds a token and checks it would survive a round trip.
func New(kind Kind, args ...string) (Token, error) {
	t := Token{Kind: kind, Args: args}
	if err := t.validate(); err != nil {
		return Token{}, err
	}
	if len(t.String()) > MaxLen {
		return Token{}, fmt.Errorf("%w: encoded length exceeds %d bytes", ErrMalformed, MaxLen)
	}
	return t, nil
}

// Must is like New but panics on error. It is meant for tokens built from
// constants.
func Must(kind Kind, args ...string) Token {
	t, err := New(kind, args...)
	if err != nil {
		panic(err)
	}
	return t
}

// Parse converts a wire string into a Token.
func Parse(raw string) (Token, error) {
	if raw == "" {
		return Token{}, fmt.Errorf("%w: empty", ErrMalformed)
	}
	if len(raw) > MaxLen {
		return Token{}, fmt.Errorf("%w: %d bytes exceeds %d", ErrMalformed, len(raw), MaxLen)
	}

	parts := strings.Split(raw, Separator)
	t := Token{Kind: Kind(parts[0])}
	if len(parts) > 1 {
		t.Args = parts[1:]
	}
	if err := t.validate(); err != nil {
		return Token{}, err
	}
	return t, nil
}

// String encodes the token for transport.
func (t Token) String() string {
	if len(t.Args) == 0 {
		return string(t.Kind)
	}
	return string(t.Kind) + Separator + strings.Join(t.Args, Separator)
}

// Arg returns the i-th argument or "" when absent.
func (t Token) Arg(i int) string {
	if i < 0 || i >= len(t.Args) {
		return ""
	}
	return t.Args[i]
}

// Int returns the i-th argument as an integer.
func (t Token) Int(i int) (int, error) {
	n, err := strconv.Atoi(t.Arg(i))
	if err != nil {
		return 0, fmt.Errorf("%w: argument %d of %q is not an integer", ErrMalformed, i, t.Kind)
	}
	return n, nil
}

// Equal reports whether two tokens encode identically.
func (t Token) Equal(other Token) bool {
	return t.String() == other.String()
}

func (t Token) validate() error {
	spec, ok := specs[t.Kind]
	if !ok {
		return fmt.Errorf("%w: unknown prefix %q", ErrMalformed, t.Kind)
	}
	if len(t.Args) != spec.arity {
		return fmt.Errorf("%w: %q expects %d arguments, got %d", ErrMalformed, t.Kind, spec.arity, len(t.Args))
	}
	for i, arg := range t.Args {
		if arg == "" {
			return fmt.Errorf("%w: argument %d of %q is empty", ErrMalformed, i, t.Kind)
		}
		if strings.Contains(arg, Separator) {
			return fmt.Errorf("%w: argument %d of %q contains separator", ErrMalformed, i, t.Kind)
		}
	}
	if spec.validate != nil {
		return spec.validate(t.Args)
	}
	return nil
}

func oneOf(i int, allowed ...string) func([]string) error {
	return func(args []string) error {
		for _, a := range allowed {
			if args[i] == a {
				return nil
			}
		}
		return fmt.Errorf("%w: %q is not one of %v", ErrMalformed, args[i], allowed)
	}
}

func nonNegativeInt(i int) func([]string) error {
	return func(args []string) error {
		n, err := strconv.Atoi(args[i])
		if err != nil || n < 0 {
			return fmt.Errorf("%w: %q is not a non-negative integer", ErrMalformed, args[i])
		}
		return nil
	}
}
