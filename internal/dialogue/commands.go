package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/gradebot/internal/command"
	"github.com/Veraticus/gradebot/internal/gateway"
	"github.com/Veraticus/gradebot/internal/session"
)

func (e *Engine) onCommand(ctx context.Context, s *session.Session, ev Event, cmd command.Command) (Outcome, error) {
	spec, ok := command.Lookup(cmd.Name)
	if !ok {
		return Outcome{}, invalid(fmt.Sprintf("Unknown command %s%s. Send /help to see what I can do.", command.Prefix, cmd.Name))
	}
	if spec.Admin {
		return e.onAdminCommand(ctx, s, spec, cmd), nil
	}

	switch cmd.Name {
	case command.Start:
		return e.start(ctx, s, ev), nil
	case command.Help:
		return reply(s, command.HelpText(e.gate.IsAdmin(s.UserID))), nil
	case command.Cancel:
		return e.cancel(s), nil
	case command.Feedback:
		return e.startFeedback(s), nil
	case command.Subscribe:
		if _, err := e.backend.Subscribe(ctx, profile(ev)); err != nil {
			return Outcome{}, err
		}
		return reply(s, "You are subscribed to announcements. Send /unsubscribe to stop them."), nil
	case command.Unsubscribe:
		if _, err := e.backend.Unsubscribe(ctx, s.UserID); err != nil {
			if errors.Is(err, gateway.ErrNotFound) {
				return reply(s, "You were not subscribed."), nil
			}
			return Outcome{}, err
		}
		return reply(s, "You will no longer receive announcements. Send /subscribe to resume."), nil
	default:
		return Outcome{}, mismatch("command %q has no handler", cmd.Name)
	}
}

func profile(ev Event) gateway.Profile {
	return gateway.Profile{UserID: ev.UserID, FirstName: ev.FirstName, Username: ev.Username}
}

// start registers the user best-effort and opens mode selection.
func (e *Engine) start(ctx context.Context, s *session.Session, ev Event) Outcome {
	if _, err := e.backend.Subscribe(ctx, profile(ev)); err != nil {
		e.logger.WarnContext(ctx, "Failed to register user",
			slog.String("user_id", s.UserID),
			slog.Any("error", err))
	}

	s.Reset()
	greeting := "Hi!"
	if ev.FirstName != "" {
		greeting = fmt.Sprintf("Hi %s!", ev.FirstName)
	}
	return Outcome{
		Next:   session.StateSelectingMode,
		Notice: greeting + " I can show you how grades were distributed in any course offering.",
	}
}

// onAdminCommand runs a moderation command. Its replies never change the
// admin's own dialogue state, and backend failures are reported in the
// reply instead of resetting the conversation.
func (e *Engine) onAdminCommand(ctx context.Context, s *session.Session, spec command.Spec, cmd command.Command) Outcome {
	logger := e.logger.With(slog.String("user_id", s.UserID), slog.String("command", cmd.Name))
	if !e.gate.IsAdmin(s.UserID) {
		logger.InfoContext(ctx, "Refusing admin command")
		return reply(s, "Sorry, that command is only available to administrators.")
	}
	if err := spec.Validate(cmd); err != nil {
		return reply(s, err.Error())
	}

	text, err := e.runAdmin(ctx, s.UserID, cmd)
	switch {
	case errors.Is(err, gateway.ErrNotFound):
		logger.InfoContext(ctx, "Admin command target not found", slog.String("target", cmd.Arg(0)))
		return reply(s, fmt.Sprintf("Nothing was found for %q.", cmd.Arg(0)))
	case err != nil:
		logger.WarnContext(ctx, "Admin command failed", slog.Any("error", err))
		return reply(s, fmt.Sprintf("%s failed: %s", cmd.String(), userMessage(err)))
	}
	logger.InfoContext(ctx, "Admin command completed", slog.String("target", cmd.Arg(0)))
	return reply(s, text)
}

func (e *Engine) runAdmin(ctx context.Context, adminID string, cmd command.Command) (string, error) {
	switch cmd.Name {
	case command.Block, command.Unblock:
		blocked := cmd.Name == command.Block
		user, err := e.backend.SetBlocked(ctx, adminID, cmd.Arg(0), blocked, cmd.Tail(1))
		if err != nil {
			return "", err
		}
		if blocked {
			return fmt.Sprintf("User %s is now blocked.", describe(user, cmd.Arg(0))), nil
		}
		return fmt.Sprintf("User %s is no longer blocked.", describe(user, cmd.Arg(0))), nil

	case command.Status:
		user, err := e.backend.UserStatus(ctx, adminID, cmd.Arg(0))
		if err != nil {
			return "", err
		}
		return userReport(user, cmd.Arg(0)), nil

	case command.Broadcast:
		task, err := e.backend.EnqueueBroadcast(ctx, adminID, cmd.Tail(0))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("📣 Broadcast queued as task %s.\nCheck delivery with %s%s %s", task.ID, command.Prefix, command.BroadcastStatus, task.ID), nil

	case command.BroadcastStatus:
		status, err := e.backend.BroadcastStatus(ctx, adminID, cmd.Arg(0))
		if err != nil {
			return "", err
		}
		return broadcastReport(status), nil

	default:
		return "", mismatch("admin command %q has no handler", cmd.Name)
	}
}

func describe(u *gateway.User, fallback string) string {
	if u == nil {
		return fallback
	}
	if u.Username != "" {
		return fmt.Sprintf("@%s (%d)", u.Username, u.UserID)
	}
	return fmt.Sprintf("%d", u.UserID)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func userReport(u *gateway.User, fallback string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "👤 %s\n", describe(u, fallback))
	if u.FirstName != "" {
		fmt.Fprintf(&sb, "Name: %s\n", u.FirstName)
	}
	fmt.Fprintf(&sb, "Subscribed: %s\n", yesNo(u.Subscribed))
	fmt.Fprintf(&sb, "Blocked: %s", yesNo(u.Blocked))
	if u.Blocked && u.BlockReason != "" {
		fmt.Fprintf(&sb, " (%s)", u.BlockReason)
	}
	if !u.SubscribedAt.IsZero() {
		fmt.Fprintf(&sb, "\nSince: %s", u.SubscribedAt.Format("2006-01-02"))
	}
	if u.LastActiveAt != nil {
		fmt.Fprintf(&sb, "\nLast active: %s", u.LastActiveAt.Format("2006-01-02 15:04"))
	}
	return sb.String()
}

func broadcastReport(st *gateway.BroadcastStatus) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📣 Broadcast %s: %s", st.TaskID, st.State)
	r := st.Report
	if r == nil {
		sb.WriteString("\nNo delivery report yet.")
		return sb.String()
	}
	fmt.Fprintf(&sb, "\nTargeted: %d\nDelivered: %d\nRefused: %d\nFailed: %d", r.Targeted, r.Delivered, r.Refused, r.Failed)
	if r.Complete() {
		sb.WriteString("\nEvery recipient has been processed.")
	} else {
		fmt.Fprintf(&sb, "\n%d recipients still pending.", r.Targeted-r.Delivered-r.Refused-r.Failed)
	}
	return sb.String()
}
