// Package mocks provides mock implementations for testing.
package mocks

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Veraticus/gradebot/internal/dialogue"
	"github.com/Veraticus/gradebot/internal/gate"
	"github.com/Veraticus/gradebot/internal/gateway"
	"github.com/Veraticus/gradebot/internal/render"
)

// Compile-time checks to ensure mocks implement their interfaces.
var (
	_ dialogue.Messenger = (*MockMessenger)(nil)
	_ dialogue.Backend   = (*MockBackend)(nil)
	_ gate.StatusChecker = (*MockBackend)(nil)
)

// MockMessenger is a test implementation of the Messenger interface. It
// records every message and keeps the latest content of each one.
type MockMessenger struct {
	sendErr  error
	editErr  error
	sent     []SentMessage
	edits    []SentMessage
	messages map[string]SentMessage
	nextRef  int
	seq      int
	mu       sync.Mutex
}

// SentMessage records a sent or edited message.
type SentMessage struct {
	Seq       int
	Timestamp time.Time
	ChatID    string
	Ref       string
	Prompt    render.Prompt
}

// NewMockMessenger creates a new mock messenger.
func NewMockMessenger() *MockMessenger {
	return &MockMessenger{
		sent:     make([]SentMessage, 0),
		edits:    make([]SentMessage, 0),
		messages: make(map[string]SentMessage),
	}
}

// Send implements the Messenger interface.
func (m *MockMessenger) Send(_ context.Context, chatID string, p render.Prompt) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sendErr != nil {
		return "", m.sendErr
	}

	m.nextRef++
	m.seq++
	msg := SentMessage{
		Seq:       m.seq,
		Timestamp: time.Now(),
		ChatID:    chatID,
		Ref:       "msg-" + strconv.Itoa(m.nextRef),
		Prompt:    p,
	}
	m.sent = append(m.sent, msg)
	m.messages[msg.Ref] = msg
	return msg.Ref, nil
}

// Edit implements the Messenger interface.
func (m *MockMessenger) Edit(_ context.Context, chatID, ref string, p render.Prompt) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.editErr != nil {
		return m.editErr
	}
	if _, ok := m.messages[ref]; !ok {
		return fmt.Errorf("message %s not found", ref)
	}

	m.seq++
	msg := SentMessage{Seq: m.seq, Timestamp: time.Now(), ChatID: chatID, Ref: ref, Prompt: p}
	m.edits = append(m.edits, msg)
	m.messages[ref] = msg
	return nil
}

// GetSentMessages returns all sent messages.
func (m *MockMessenger) GetSentMessages() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	messages := make([]SentMessage, len(m.sent))
	copy(messages, m.sent)
	return messages
}

// GetEdits returns all edits.
func (m *MockMessenger) GetEdits() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	edits := make([]SentMessage, len(m.edits))
	copy(edits, m.edits)
	return edits
}

// SentTo returns the messages sent to chatID.
func (m *MockMessenger) SentTo(chatID string) []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SentMessage
	for _, msg := range m.sent {
		if msg.ChatID == chatID {
			out = append(out, msg)
		}
	}
	return out
}

// Message returns the current content of a message.
func (m *MockMessenger) Message(ref string) (SentMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[ref]
	return msg, ok
}

// Latest returns the most recently sent or edited message of chatID.
func (m *MockMessenger) Latest(chatID string) (SentMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var (
		latest SentMessage
		found  bool
	)
	for _, list := range [][]SentMessage{m.sent, m.edits} {
		for _, msg := range list {
			if msg.ChatID == chatID && (!found || msg.Seq > latest.Seq) {
				latest, found = msg, true
			}
		}
	}
	return latest, found
}

// Count returns the number of sends and edits.
func (m *MockMessenger) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent) + len(m.edits)
}

// SetSendError sets an error to be returned on send.
func (m *MockMessenger) SetSendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// SetEditError sets an error to be returned on edit.
func (m *MockMessenger) SetEditError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.editErr = err
}

// BackendCall records a call to the backend.
type BackendCall struct {
	Method string
	UserID string
	Args   []string
}

// MockBackend is an in-memory grades service.
type MockBackend struct {
	courses     []gateway.Course
	instructors []gateway.Instructor
	terms       []gateway.Term
	reports     map[int]*gateway.GradeReport
	users       map[string]*gateway.User
	feedback    []gateway.Receipt
	broadcasts  map[string]*gateway.BroadcastStatus
	errs        map[string]error
	calls       []BackendCall
	mu          sync.Mutex
}

// NewMockBackend creates an empty backend.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		reports:    make(map[int]*gateway.GradeReport),
		users:      make(map[string]*gateway.User),
		broadcasts: make(map[string]*gateway.BroadcastStatus),
		errs:       make(map[string]error),
	}
}

// AddCourse adds a course to the catalogue.
func (m *MockBackend) AddCourse(c gateway.Course) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.courses = append(m.courses, c)
}

// AddInstructor adds an instructor to the catalogue.
func (m *MockBackend) AddInstructor(in gateway.Instructor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instructors = append(m.instructors, in)
}

// AddOffering adds a term together with its grade report.
func (m *MockBackend) AddOffering(t gateway.Term, report *gateway.GradeReport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terms = append(m.terms, t)
	if report != nil {
		m.reports[t.OfferingID] = report
	}
}

// AddUser registers a user record.
func (m *MockBackend) AddUser(u gateway.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[strconv.FormatInt(u.UserID, 10)] = &u
}

// SetBroadcast registers the status of a broadcast task.
func (m *MockBackend) SetBroadcast(st gateway.BroadcastStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcasts[st.TaskID] = &st
}

// SetError makes method fail with err. A nil err clears it.
func (m *MockBackend) SetError(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errs, method)
		return
	}
	m.errs[method] = err
}

// Calls returns the recorded calls of method, or all calls when method is
// empty.
func (m *MockBackend) Calls(method string) []BackendCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []BackendCall
	for _, c := range m.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Feedback returns the stored feedback receipts.
func (m *MockBackend) Feedback() []gateway.Receipt {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]gateway.Receipt, len(m.feedback))
	copy(out, m.feedback)
	return out
}

// User returns the stored record of userID.
func (m *MockBackend) User(userID string) (gateway.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return gateway.User{}, false
	}
	return *u, true
}

// record logs a call and returns the injected error of method. The caller
// must hold m.mu.
func (m *MockBackend) record(method, userID string, args ...string) error {
	m.calls = append(m.calls, BackendCall{Method: method, UserID: userID, Args: args})
	return m.errs[method]
}

func (m *MockBackend) lookup(identifier string) *gateway.User {
	if u, ok := m.users[identifier]; ok {
		return u
	}
	name := strings.TrimPrefix(identifier, "@")
	for _, u := range m.users {
		if u.Username != "" && strings.EqualFold(u.Username, name) {
			return u
		}
	}
	return nil
}

// Search implements the Backend interface. Courses match on code or name;
// instructors must match every word of the query.
func (m *MockBackend) Search(_ context.Context, userID, query string, kind gateway.SearchKind) ([]gateway.Hit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("Search", userID, query, string(kind)); err != nil {
		return nil, err
	}

	q := strings.ToLower(query)
	var hits []gateway.Hit
	switch kind {
	case gateway.SearchCourses:
		for _, c := range m.courses {
			if strings.Contains(strings.ToLower(c.Code), q) || strings.Contains(strings.ToLower(c.Name), q) {
				hits = append(hits, gateway.Hit{ID: c.Code, Label: c.Label()})
			}
		}
	case gateway.SearchInstructors:
		for _, in := range m.instructors {
			name := strings.ToLower(in.Name)
			match := true
			for _, word := range strings.Fields(q) {
				if !strings.Contains(name, word) {
					match = false
					break
				}
			}
			if match {
				hits = append(hits, gateway.Hit{ID: in.Key(), Label: in.Name})
			}
		}
	}
	return hits, nil
}

// TermsForCourse implements the Backend interface.
func (m *MockBackend) TermsForCourse(_ context.Context, userID, code string) ([]gateway.Term, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("TermsForCourse", userID, code); err != nil {
		return nil, err
	}
	var out []gateway.Term
	for _, t := range m.terms {
		if t.Course.Code == code {
			out = append(out, t)
		}
	}
	return out, nil
}

// TermsForInstructor implements the Backend interface. Like the real
// service it returns every term the instructor appears on, with the full
// instructor list of each.
func (m *MockBackend) TermsForInstructor(_ context.Context, userID, instructorID string) ([]gateway.Term, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("TermsForInstructor", userID, instructorID); err != nil {
		return nil, err
	}
	var out []gateway.Term
	for _, t := range m.terms {
		if t.TaughtBy(instructorID) {
			out = append(out, t)
		}
	}
	return out, nil
}

// GradeReport implements the Backend interface.
func (m *MockBackend) GradeReport(_ context.Context, userID string, offeringID int) (*gateway.GradeReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("GradeReport", userID, strconv.Itoa(offeringID)); err != nil {
		return nil, err
	}
	report, ok := m.reports[offeringID]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	out := *report
	return &out, nil
}

// Subscribe implements the Backend interface.
func (m *MockBackend) Subscribe(_ context.Context, p gateway.Profile) (*gateway.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("Subscribe", p.UserID); err != nil {
		return nil, err
	}
	u, ok := m.users[p.UserID]
	if !ok {
		id, err := strconv.ParseInt(p.UserID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("user id %q is not numeric", p.UserID)
		}
		u = &gateway.User{UserID: id, SubscribedAt: time.Now()}
		m.users[p.UserID] = u
	}
	u.FirstName = p.FirstName
	u.Username = p.Username
	u.Subscribed = true
	out := *u
	return &out, nil
}

// Unsubscribe implements the Backend interface.
func (m *MockBackend) Unsubscribe(_ context.Context, userID string) (*gateway.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("Unsubscribe", userID); err != nil {
		return nil, err
	}
	u, ok := m.users[userID]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	u.Subscribed = false
	out := *u
	return &out, nil
}

// SubmitFeedback implements the Backend interface.
func (m *MockBackend) SubmitFeedback(_ context.Context, userID, kind, text string) (*gateway.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("SubmitFeedback", userID, kind, text); err != nil {
		return nil, err
	}
	id, _ := strconv.ParseInt(userID, 10, 64)
	r := gateway.Receipt{
		ID:          len(m.feedback) + 1,
		Kind:        kind,
		Text:        text,
		UserID:      id,
		SubmittedAt: time.Now(),
		Status:      "new",
	}
	m.feedback = append(m.feedback, r)
	return &r, nil
}

// UserStatus implements the Backend interface.
func (m *MockBackend) UserStatus(_ context.Context, adminID, identifier string) (*gateway.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("UserStatus", adminID, identifier); err != nil {
		return nil, err
	}
	u := m.lookup(identifier)
	if u == nil {
		return nil, gateway.ErrNotFound
	}
	out := *u
	return &out, nil
}

// BlockStatus implements the StatusChecker interface.
func (m *MockBackend) BlockStatus(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("BlockStatus", userID); err != nil {
		return false, err
	}
	u, ok := m.users[userID]
	return ok && u.Blocked, nil
}

// SetBlocked implements the Backend interface.
func (m *MockBackend) SetBlocked(_ context.Context, adminID, identifier string, blocked bool, reason string) (*gateway.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("SetBlocked", adminID, identifier, strconv.FormatBool(blocked), reason); err != nil {
		return nil, err
	}
	u := m.lookup(identifier)
	if u == nil {
		return nil, gateway.ErrNotFound
	}
	u.Blocked = blocked
	u.BlockReason = ""
	if blocked {
		u.BlockReason = reason
	}
	out := *u
	return &out, nil
}

// EnqueueBroadcast implements the Backend interface.
func (m *MockBackend) EnqueueBroadcast(_ context.Context, adminID, text string) (*gateway.BroadcastTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("EnqueueBroadcast", adminID, text); err != nil {
		return nil, err
	}
	id := fmt.Sprintf("task-%d", len(m.broadcasts)+1)
	m.broadcasts[id] = &gateway.BroadcastStatus{TaskID: id, State: "PENDING"}
	return &gateway.BroadcastTask{ID: id, Message: text}, nil
}

// BroadcastStatus implements the Backend interface.
func (m *MockBackend) BroadcastStatus(_ context.Context, adminID, taskID string) (*gateway.BroadcastStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("BroadcastStatus", adminID, taskID); err != nil {
		return nil, err
	}
	st, ok := m.broadcasts[taskID]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	out := *st
	return &out, nil
}
