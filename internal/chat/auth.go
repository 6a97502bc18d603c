package chat

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
)

// SignatureParam is the query parameter carrying the identity signature.
const SignatureParam = "sig"

// MinSecretLength is the shortest accepted signing secret.
const MinSecretLength = 16

// ErrUnauthenticated indicates a connection whose identity could not be
// verified.
var ErrUnauthenticated = errors.New("unauthenticated")

// Identity is a verified chat participant.
type Identity struct {
	UserID string
	ChatID string
}

type contextKey int

const identityKey contextKey = iota

// IdentityFromContext returns the identity stored by RequireIdentity.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// Sign returns the signature a client presents for userID and chatID: the
// hex HMAC-SHA256 of "user_id\x00chat_id" under secret.
func Sign(secret []byte, userID, chatID string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(userID))
	mac.Write([]byte{0})
	mac.Write([]byte(chatID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the signed identity in q. chat_id defaults to user_id.
func Verify(secret []byte, q url.Values) (Identity, error) {
	id := Identity{UserID: q.Get("user_id"), ChatID: q.Get("chat_id")}
	if id.UserID == "" {
		return Identity{}, fmt.Errorf("%w: user_id is required", ErrUnauthenticated)
	}
	if id.ChatID == "" {
		id.ChatID = id.UserID
	}

	got, err := hex.DecodeString(q.Get(SignatureParam))
	if err != nil || len(got) == 0 {
		return Identity{}, fmt.Errorf("%w: missing or malformed signature", ErrUnauthenticated)
	}
	want, _ := hex.DecodeString(Sign(secret, id.UserID, id.ChatID))
	if !hmac.Equal(got, want) {
		return Identity{}, fmt.Errorf("%w: signature does not match user %s", ErrUnauthenticated, id.UserID)
	}
	return id, nil
}

// RequireIdentity rejects requests whose user_id and chat_id are not signed
// with secret and stores the verified identity in the request context.
func RequireIdentity(secret []byte, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := Verify(secret, r.URL.Query())
			if err != nil {
				logger.WarnContext(r.Context(), "Rejected chat connection",
					slog.String("remote_addr", r.RemoteAddr),
					slog.Any("error", err))
				http.Error(w, "unauthenticated", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, id)))
		})
	}
}
