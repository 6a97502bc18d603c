package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/Veraticus/gradebot/internal/render"
)

const (
	// updateBuffer is how many inbound updates may wait for the subscriber.
	updateBuffer = 256

	// maxRefs bounds the editable messages remembered per connection.
	maxRefs = 512

	defaultWriteTimeout = 5 * time.Second
)

// Hub keeps one websocket connection per chat. It delivers prompts to chats
// and turns client frames into Updates.
type Hub struct {
	mu           sync.RWMutex
	clients      map[string]*client
	updates      chan Update
	subscribed   atomic.Bool
	origins      []string
	writeTimeout time.Duration
	logger       *slog.Logger
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithOriginPatterns sets the origins allowed to connect.
func WithOriginPatterns(patterns ...string) HubOption {
	return func(h *Hub) {
		h.origins = patterns
	}
}

// WithWriteTimeout bounds a single frame write.
func WithWriteTimeout(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

// WithHubLogger sets the hub's logger.
func WithHubLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		clients:      make(map[string]*client),
		updates:      make(chan Update, updateBuffer),
		writeTimeout: defaultWriteTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With(slog.String("component", "chat_hub"))
	return h
}

type client struct {
	conn      *websocket.Conn
	userID    string
	chatID    string
	username  string
	firstName string

	mu   sync.Mutex
	refs map[string]struct{}
	seq  []string
}

func (c *client) remember(ref string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refs[ref] = struct{}{}
	c.seq = append(c.seq, ref)
	if len(c.seq) > maxRefs {
		delete(c.refs, c.seq[0])
		c.seq = c.seq[1:]
	}
}

func (c *client) knows(ref string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.refs[ref]
	return ok
}

// Subscribe returns the stream of inbound updates. Only one subscriber is
// allowed; the channel stays open for the life of the hub.
func (h *Hub) Subscribe(_ context.Context) (<-chan Update, error) {
	if !h.subscribed.CompareAndSwap(false, true) {
		return nil, ErrAlreadySubscribed
	}
	return h.updates, nil
}

// Send delivers a new message to chatID and returns its reference.
func (h *Hub) Send(ctx context.Context, chatID string, p render.Prompt) (string, error) {
	c := h.client(chatID)
	if c == nil {
		return "", fmt.Errorf("send to %s: %w", chatID, ErrNoConnection)
	}
	ref := uuid.NewString()
	if err := h.write(ctx, c, outbound{Type: frameSend, Ref: ref, Text: p.Text, Keyboard: p.Keyboard}); err != nil {
		return "", fmt.Errorf("send to %s: %w", chatID, err)
	}
	c.remember(ref)
	return ref, nil
}

// Edit replaces the content of a message sent earlier on the same
// connection.
func (h *Hub) Edit(ctx context.Context, chatID, ref string, p render.Prompt) error {
	c := h.client(chatID)
	if c == nil {
		return fmt.Errorf("edit in %s: %w", chatID, ErrNoConnection)
	}
	if !c.knows(ref) {
		return fmt.Errorf("edit %s in %s: %w", ref, chatID, ErrUnknownMessage)
	}
	if err := h.write(ctx, c, outbound{Type: frameEdit, Ref: ref, Text: p.Text, Keyboard: p.Keyboard}); err != nil {
		return fmt.Errorf("edit in %s: %w", chatID, err)
	}
	return nil
}

// Connected reports whether chatID has an open connection.
func (h *Hub) Connected(chatID string) bool {
	return h.client(chatID) != nil
}

// Connections returns the number of open connections.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*client)
	h.mu.Unlock()

	for _, c := range clients {
		if err := c.conn.Close(websocket.StatusGoingAway, "server shutting down"); err != nil {
			h.logger.Debug("Failed to close websocket", slog.String("chat_id", c.chatID), slog.Any("error", err))
		}
	}
}

// ServeHTTP upgrades the request and reads frames until the client leaves.
// It must run behind RequireIdentity; the query may add username and
// first_name.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	q := r.URL.Query()
	userID, chatID := id.UserID, id.ChatID

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.logger.Error("Failed to accept websocket", slog.String("user_id", userID), slog.Any("error", err))
		return
	}

	c := &client{
		conn:      conn,
		userID:    userID,
		chatID:    chatID,
		username:  q.Get("username"),
		firstName: q.Get("first_name"),
		refs:      make(map[string]struct{}),
	}
	h.register(c)
	defer h.unregister(c)

	h.logger.Info("Chat connected", slog.String("chat_id", chatID), slog.String("user_id", userID))
	h.readLoop(r.Context(), c)
	h.logger.Info("Chat disconnected", slog.String("chat_id", chatID), slog.String("user_id", userID))
}

func (h *Hub) readLoop(ctx context.Context, c *client) {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				h.logger.Warn("Websocket read error", slog.String("chat_id", c.chatID), slog.Any("error", err))
			}
			return
		}
		if typ != websocket.MessageText {
			h.reject(ctx, c, fmt.Errorf("%w: binary frames are not supported", ErrBadFrame))
			continue
		}

		var f inbound
		if err := json.Unmarshal(data, &f); err != nil {
			h.reject(ctx, c, fmt.Errorf("%w: %w", ErrBadFrame, err))
			continue
		}
		if f.Type == framePing {
			if err := h.write(ctx, c, outbound{Type: framePong}); err != nil {
				h.logger.Debug("Failed to send pong", slog.Any("error", err))
			}
			continue
		}

		kind, err := f.kind()
		if err != nil {
			h.reject(ctx, c, err)
			continue
		}
		id := f.ID
		if id == "" {
			id = uuid.NewString()
		}
		u := Update{
			ID:         id,
			UserID:     c.userID,
			ChatID:     c.chatID,
			Username:   c.username,
			FirstName:  c.firstName,
			Kind:       kind,
			Text:       f.Text,
			Data:       f.Data,
			MessageRef: f.Ref,
			Received:   time.Now(),
		}

		select {
		case h.updates <- u:
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) reject(ctx context.Context, c *client, err error) {
	h.logger.Debug("Rejected frame", slog.String("chat_id", c.chatID), slog.Any("error", err))
	if werr := h.write(ctx, c, outbound{Type: frameError, Error: err.Error()}); werr != nil {
		h.logger.Debug("Failed to send error frame", slog.Any("error", werr))
	}
}

func (h *Hub) write(ctx context.Context, c *client, f outbound) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (h *Hub) client(chatID string) *client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[chatID]
}

// register makes c the connection of its chat, closing any previous one.
func (h *Hub) register(c *client) {
	h.mu.Lock()
	old := h.clients[c.chatID]
	h.clients[c.chatID] = c
	h.mu.Unlock()

	if old != nil {
		if err := old.conn.Close(websocket.StatusPolicyViolation, "replaced by a newer connection"); err != nil {
			h.logger.Debug("Failed to close replaced websocket", slog.String("chat_id", c.chatID), slog.Any("error", err))
		}
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if h.clients[c.chatID] == c {
		delete(h.clients, c.chatID)
	}
	h.mu.Unlock()

	if err := c.conn.Close(websocket.StatusNormalClosure, "bye"); err != nil {
		h.logger.Debug("Failed to close websocket", slog.String("chat_id", c.chatID), slog.Any("error", err))
	}
}
