// Package gateway is the HTTP client for the grades backend: search,
// offerings, grade reports, subscriptions, feedback and admin moderation.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTimeout bounds a single HTTP attempt.
	DefaultTimeout = 15 * time.Second

	// DefaultMaxRetries is the number of extra attempts for idempotent calls.
	DefaultMaxRetries = 2

	// UserHeader carries the acting chat user to the backend.
	UserHeader = "X-Telegram-User-ID"

	maxErrorBody = 512
)

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the grades backend.
type Client struct {
	base    *url.URL
	http    *http.Client
	timeout time.Duration
	retries int
	logger  *slog.Logger
	group   singleflight.Group
	delay   func(attempt int) time.Duration
}

// New creates a backend client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("gateway: base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("gateway: parse base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("gateway: base URL %q must be absolute", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		base:    base,
		http:    httpClient,
		timeout: timeout,
		retries: retries,
		logger:  logger.With(slog.String("component", "gateway")),
		delay:   RetryDelay,
	}, nil
}

// Search returns catalogue entries matching query. Concurrent identical
// searches by the same user share one backend request, which outlives the
// caller that started it so the others still get an answer.
func (c *Client) Search(ctx context.Context, userID, query string, kind SearchKind) ([]Hit, error) {
	key := userID + ":" + string(kind) + ":" + strings.ToLower(strings.TrimSpace(query))
	ch := c.group.DoChan(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.budget())
		defer cancel()
		return c.search(ctx, userID, query, kind)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		hits, _ := res.Val.([]Hit)
		out := make([]Hit, len(hits))
		copy(out, hits)
		return out, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("gateway: search %q: %w", query, ctx.Err())
	}
}

// budget bounds a detached call: every attempt plus the backoff between
// them.
func (c *Client) budget() time.Duration {
	return c.timeout*time.Duration(c.retries+1) + maxRetryDelay*time.Duration(c.retries)
}

func (c *Client) search(ctx context.Context, userID, query string, kind SearchKind) ([]Hit, error) {
	q := url.Values{"q": {query}}
	switch kind {
	case SearchCourses:
		var courses []Course
		if err := c.get(ctx, userID, "/search/course", q, &courses); err != nil {
			return nil, err
		}
		hits := make([]Hit, 0, len(courses))
		for _, course := range courses {
			hits = append(hits, Hit{ID: course.Code, Label: course.Label()})
		}
		return hits, nil
	case SearchInstructors:
		var instructors []Instructor
		if err := c.get(ctx, userID, "/search/prof", q, &instructors); err != nil {
			return nil, err
		}
		hits := make([]Hit, 0, len(instructors))
		for _, in := range instructors {
			hits = append(hits, Hit{ID: in.Key(), Label: in.Name})
		}
		return hits, nil
	default:
		return nil, fmt.Errorf("gateway: unknown search kind %q", kind)
	}
}

// TermsForCourse lists the offerings of a course.
func (c *Client) TermsForCourse(ctx context.Context, userID, code string) ([]Term, error) {
	var terms []Term
	if err := c.get(ctx, userID, "/grades/offering/by_course/"+url.PathEscape(code), nil, &terms); err != nil {
		return nil, err
	}
	for i := range terms {
		if terms[i].Course.Code == "" {
			terms[i].Course.Code = code
		}
	}
	return terms, nil
}

// TermsForInstructor lists every offering taught by an instructor.
func (c *Client) TermsForInstructor(ctx context.Context, userID, instructorID string) ([]Term, error) {
	var terms []Term
	if err := c.get(ctx, userID, "/grades/offering/by_instructor/"+url.PathEscape(instructorID), nil, &terms); err != nil {
		return nil, err
	}
	return terms, nil
}

// GradeReport fetches the grade distribution of an offering.
func (c *Client) GradeReport(ctx context.Context, userID string, offeringID int) (*GradeReport, error) {
	var report GradeReport
	if err := c.get(ctx, userID, "/grades/offering/"+strconv.Itoa(offeringID), nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Subscribe creates or refreshes the user's profile.
func (c *Client) Subscribe(ctx context.Context, p Profile) (*User, error) {
	id, err := strconv.ParseInt(p.UserID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("gateway: user id %q is not numeric: %w", p.UserID, err)
	}
	body := map[string]any{
		"telegram_user_id": id,
		"first_name":       p.FirstName,
		"username":         p.Username,
	}
	var user User
	if err := c.do(ctx, http.MethodPost, p.UserID, "/users/subscribe", nil, body, &user, true); err != nil {
		return nil, err
	}
	return &user, nil
}

// Unsubscribe marks the user as no longer subscribed.
func (c *Client) Unsubscribe(ctx context.Context, userID string) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodPost, userID, "/users/"+url.PathEscape(userID)+"/unsubscribe", nil, nil, &user, true); err != nil {
		return nil, err
	}
	return &user, nil
}

// SubmitFeedback stores a feedback message.
func (c *Client) SubmitFeedback(ctx context.Context, userID, kind, text string) (*Receipt, error) {
	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("gateway: user id %q is not numeric: %w", userID, err)
	}
	body := map[string]any{
		"telegram_user_id": id,
		"feedback_type":    kind,
		"message_text":     text,
	}
	var receipt Receipt
	// Not retried: a lost response would otherwise store the feedback twice.
	if err := c.do(ctx, http.MethodPost, userID, "/feedback/", nil, body, &receipt, false); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// UserStatus fetches a user's record by numeric id or username.
func (c *Client) UserStatus(ctx context.Context, adminID, identifier string) (*User, error) {
	var user User
	if err := c.get(ctx, adminID, "/admin/users/"+url.PathEscape(identifier), nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// BlockStatus reports whether a user is blocked. Unknown users are not.
func (c *Client) BlockStatus(ctx context.Context, userID string) (bool, error) {
	user, err := c.UserStatus(ctx, userID, userID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return user.Blocked, nil
}

// SetBlocked blocks or unblocks a user.
func (c *Client) SetBlocked(ctx context.Context, adminID, identifier string, blocked bool, reason string) (*User, error) {
	body := map[string]any{"is_blocked": blocked}
	if blocked && reason != "" {
		body["block_reason"] = reason
	}
	var user User
	if err := c.do(ctx, http.MethodPut, adminID, "/admin/users/"+url.PathEscape(identifier)+"/block", nil, body, &user, true); err != nil {
		return nil, err
	}
	return &user, nil
}

// EnqueueBroadcast queues a message for every subscribed user. It is never
// retried.
func (c *Client) EnqueueBroadcast(ctx context.Context, adminID, text string) (*BroadcastTask, error) {
	var task BroadcastTask
	if err := c.do(ctx, http.MethodPost, adminID, "/admin/broadcast/", nil, map[string]string{"message_text": text}, &task, false); err != nil {
		return nil, err
	}
	return &task, nil
}

// BroadcastStatus fetches the state and report of a broadcast task.
func (c *Client) BroadcastStatus(ctx context.Context, adminID, taskID string) (*BroadcastStatus, error) {
	var status BroadcastStatus
	if err := c.get(ctx, adminID, "/admin/broadcast/"+url.PathEscape(taskID), nil, &status); err != nil {
		return nil, err
	}
	if status.TaskID == "" {
		status.TaskID = taskID
	}
	return &status, nil
}

func (c *Client) get(ctx context.Context, userID, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, userID, path, query, nil, out, true)
}

// do performs a request, retrying idempotent calls on transport failures
// and temporary statuses until the retry budget or the context runs out.
func (c *Client) do(ctx context.Context, method, userID, path string, query url.Values, body, out any, idempotent bool) error {
	attempts := 1
	if idempotent {
		attempts += c.retries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, c.delay(attempt-1)); err != nil {
				break
			}
			c.logger.DebugContext(ctx, "retrying backend request",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("attempt", attempt+1))
		}

		lastErr = c.once(ctx, method, userID, path, query, body, out)
		if lastErr == nil || !retryable(lastErr) {
			return lastErr
		}
	}

	c.logger.WarnContext(ctx, "backend request failed",
		slog.String("method", method),
		slog.String("path", path),
		slog.Any("error", lastErr))
	return lastErr
}

func (c *Client) once(ctx context.Context, method, userID, path string, query url.Values, body, out any) error {
	u := *c.base
	u.Path = c.base.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("gateway: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("gateway: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(UserHeader, userID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Method: method, Path: path, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("backend %s %s: %w", method, path, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	case resp.StatusCode == http.StatusNoContent || out == nil:
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("backend %s %s: %w: %v", method, path, ErrBadResponse, err)
	}
	return nil
}
