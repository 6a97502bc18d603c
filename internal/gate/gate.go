// Package gate filters inbound events from blocked users before they reach
// the dialogue engine.
package gate

import (
	"context"
	"log/slog"
	"strings"
)

// StatusChecker reports whether a user is blocked.
type StatusChecker interface {
	BlockStatus(ctx context.Context, userID string) (bool, error)
}

// Gate decides whether an event may be processed.
type Gate struct {
	admins  map[string]struct{}
	checker StatusChecker
	logger  *slog.Logger
}

// New creates a gate. Admins bypass the block check entirely.
func New(admins []string, checker StatusChecker, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	set := make(map[string]struct{}, len(admins))
	for _, id := range admins {
		if id = strings.TrimSpace(id); id != "" {
			set[id] = struct{}{}
		}
	}
	return &Gate{
		admins:  set,
		checker: checker,
		logger:  logger.With(slog.String("component", "gate")),
	}
}

// IsAdmin reports whether userID is a configured administrator.
func (g *Gate) IsAdmin(userID string) bool {
	_, ok := g.admins[userID]
	return ok
}

// Allow reports whether an event from userID should be processed. A failed
// lookup lets the event through.
func (g *Gate) Allow(ctx context.Context, userID string) bool {
	if g.IsAdmin(userID) {
		return true
	}

	blocked, err := g.checker.BlockStatus(ctx, userID)
	if err != nil {
		g.logger.WarnContext(ctx, "Block status lookup failed, allowing event",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return true
	}
	if blocked {
		g.logger.DebugContext(ctx, "Dropping event from blocked user",
			slog.String("user_id", userID))
		return false
	}
	return true
}
