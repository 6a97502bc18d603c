package action_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/Veraticus/gradebot/internal/action"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken_RoundTrip(t *testing.T) {
	tokens := []action.Token{
		action.Must(action.KindMode, action.ModeCourse),
		action.Must(action.KindMode, action.ModeInstructor),
		action.Must(action.KindSelectCourse, "MTH101A"),
		action.Must(action.KindSelectInstructor, "42"),
		action.Must(action.KindSelectTerm, "2023-2024", "Odd", "7"),
		action.Must(action.KindPage, "course", "3"),
		action.Must(action.KindBack, "terms"),
		action.Must(action.KindNewSearch),
		action.Must(action.KindRestart),
		action.Must(action.KindCancel),
		action.Must(action.KindFeedbackKind, "bug"),
		action.Must(action.KindFeedbackConfirm, action.ConfirmSend),
	}

	for _, tok := range tokens {
		t.Run(tok.String(), func(t *testing.T) {
			parsed, err := action.Parse(tok.String())
			require.NoError(t, err)
			assert.True(t, tok.Equal(parsed))
			assert.Equal(t, tok.Kind, parsed.Kind)
			assert.LessOrEqual(t, len(tok.String()), action.MaxLen)
		})
	}
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"unknown prefix", "zz|1"},
		{"missing argument", "cs"},
		{"extra argument", "cs|MTH101A|extra"},
		{"empty argument", "ps|"},
		{"term wrong arity", "ys|2023-2024|Odd"},
		{"page index not numeric", "pg|course|next"},
		{"page index negative", "pg|course|-1"},
		{"bad mode", "m|lecturer"},
		{"bad confirm", "fc|maybe"},
		{"arguments on nullary", "x|now"},
		{"too long", "cs|" + strings.Repeat("A", action.MaxLen)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := action.Parse(tt.raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, action.ErrMalformed))
		})
	}
}

func TestNew_RejectsSeparatorInArgument(t *testing.T) {
	_, err := action.New(action.KindSelectCourse, "MTH|101")
	require.ErrorIs(t, err, action.ErrMalformed)
}

func TestToken_Int(t *testing.T) {
	tok := action.Must(action.KindPage, "prof", "12")
	n, err := tok.Int(1)
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	_, err = tok.Int(0)
	assert.ErrorIs(t, err, action.ErrMalformed)
	assert.Equal(t, "", tok.Arg(5))
}
