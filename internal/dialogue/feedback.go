package dialogue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/Veraticus/gradebot/internal/action"
	"github.com/Veraticus/gradebot/internal/render"
	"github.com/Veraticus/gradebot/internal/session"
)

func (e *Engine) startFeedback(s *session.Session) Outcome {
	clearSearch(s)
	s.Mode = session.ModeNone
	s.FeedbackKind = ""
	s.FeedbackDraft = ""
	return moveTo(session.StateAskFeedbackType)
}

func (e *Engine) chooseFeedbackKind(s *session.Session, kind string) (Outcome, error) {
	if _, ok := feedbackLabels[kind]; !ok {
		return Outcome{}, invalid("Please pick one of the feedback types below.")
	}
	s.FeedbackKind = kind
	return moveTo(session.StateTypingFeedbackMessage), nil
}

func (e *Engine) draftFeedback(s *session.Session, text string) (Outcome, error) {
	text = strings.TrimSpace(text)
	n := utf8.RuneCountInString(text)
	switch {
	case n == 0:
		return Outcome{}, invalid("Your feedback is empty. Please type a message.")
	case n > MaxFeedbackLen:
		return Outcome{}, invalid(fmt.Sprintf("Your feedback is %d characters long; the limit is %d. Please shorten it.", n, MaxFeedbackLen))
	}
	s.FeedbackDraft = text
	return moveTo(session.StateConfirmFeedback), nil
}

func (e *Engine) confirmFeedback(ctx context.Context, s *session.Session, ev Event, choice string) (Outcome, error) {
	switch choice {
	case action.ConfirmEdit:
		s.FeedbackKind = ""
		s.FeedbackDraft = ""
		return moveTo(session.StateAskFeedbackType), nil
	case action.ConfirmCancel:
		s.Reset()
		return Outcome{Next: session.StateIdle, Prompt: &render.Prompt{Text: "Feedback discarded."}, End: true}, nil
	}

	kind, text := s.FeedbackKind, s.FeedbackDraft
	if kind == "" || text == "" {
		return Outcome{}, mismatch("confirming feedback without a draft")
	}

	logger := e.logger.With(slog.String("user_id", s.UserID), slog.String("kind", kind))
	receipt, err := e.backend.SubmitFeedback(ctx, s.UserID, kind, text)
	if err != nil {
		logger.WarnContext(ctx, "Failed to submit feedback", slog.Any("error", err))
		return Outcome{
			Next:   session.StateIdle,
			Prompt: &render.Prompt{Text: "Sorry, your feedback could not be saved right now. Please try again later with /feedback."},
		}, nil
	}

	logger.InfoContext(ctx, "Feedback submitted", slog.Int("feedback_id", receipt.ID))
	e.notifyAdmins(ctx, fmt.Sprintf("📝 New feedback #%d (%s) from %s\n\n%s", receipt.ID, kind, sender(ev), text))

	return Outcome{
		Next:   session.StateIdle,
		Prompt: &render.Prompt{Text: fmt.Sprintf("Thank you! Your feedback was recorded as #%d.", receipt.ID)},
	}, nil
}

// sender names the author of an event for admin messages.
func sender(ev Event) string {
	switch {
	case ev.Username != "":
		return fmt.Sprintf("@%s (%s)", ev.Username, ev.UserID)
	case ev.FirstName != "":
		return fmt.Sprintf("%s (%s)", ev.FirstName, ev.UserID)
	default:
		return ev.UserID
	}
}
