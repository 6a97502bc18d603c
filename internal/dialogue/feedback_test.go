package dialogue_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/gradebot/internal/dialogue"
	"github.com/Veraticus/gradebot/internal/gateway"
	"github.com/Veraticus/gradebot/internal/mocks"
	"github.com/Veraticus/gradebot/internal/session"
)

func TestFeedback_SubmitOnce(t *testing.T) {
	h := newHarness(t)
	h.handle(mocks.NewEventBuilder(student, mocks.WithCommand("/feedback"), mocks.WithSender("Asha", "asha")).Build())

	p := h.latest(student).Prompt
	assert.Contains(t, p.Text, "What kind of feedback")
	p = h.press(student, "fk|bug")
	assert.Contains(t, p.Text, "🐞 Bug report: type your message")

	p = h.send(student, "  The back button skips a page.  ")
	assert.Contains(t, p.Text, "Type: 🐞 Bug report")
	assert.Contains(t, p.Text, "The back button skips a page.")
	assert.Equal(t, session.StateConfirmFeedback, h.session(student).State)

	ref := h.latest(student).Ref
	h.handle(mocks.NewEventBuilder(student, mocks.WithAction("fc|send", ref), mocks.WithSender("Asha", "asha")).Build())
	p = h.latest(student).Prompt
	assert.Contains(t, p.Text, "recorded as #1")
	assert.Empty(t, p.Keyboard)

	// A second tap on the same button must not submit again.
	h.handle(mocks.NewEventBuilder(student, mocks.WithAction("fc|send", ref)).Build())

	receipts := h.backend.Feedback()
	require.Len(t, receipts, 1)
	assert.Equal(t, "bug", receipts[0].Kind)
	assert.Equal(t, "The back button skips a page.", receipts[0].Text)

	notes := h.messenger.SentTo(adminChannel)
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0].Prompt.Text, "New feedback #1 (bug) from @asha (1001)")
	assert.Contains(t, notes[0].Prompt.Text, "The back button skips a page.")

	s := h.session(student)
	assert.Equal(t, session.StateIdle, s.State)
	assert.Empty(t, s.FeedbackDraft)
}

func TestFeedback_EditDiscardsDraft(t *testing.T) {
	h := newHarness(t)
	h.send(student, "/feedback")
	h.press(student, "fk|suggestion")
	h.send(student, "Add dark mode")

	p := h.press(student, "fc|edit")
	assert.Contains(t, p.Text, "What kind of feedback")
	s := h.session(student)
	assert.Equal(t, session.StateAskFeedbackType, s.State)
	assert.Empty(t, s.FeedbackDraft)
	assert.Empty(t, s.FeedbackKind)
	assert.Empty(t, h.backend.Feedback())
}

func TestFeedback_Cancel(t *testing.T) {
	h := newHarness(t)
	h.send(student, "/feedback")
	h.press(student, "fk|other")
	h.send(student, "hello")

	p := h.press(student, "fc|cancel")
	assert.Contains(t, p.Text, "Feedback discarded.")
	assert.Nil(t, h.stored(student))
	assert.Equal(t, session.StateIdle, h.session(student).State)
	assert.Empty(t, h.backend.Feedback())
	assert.Empty(t, h.messenger.SentTo(adminChannel))
}

func TestFeedback_LengthLimits(t *testing.T) {
	h := newHarness(t)
	h.send(student, "/feedback")
	h.press(student, "fk|bug")

	p := h.send(student, "   ")
	assert.Contains(t, p.Text, "Your feedback is empty.")
	assert.Equal(t, session.StateTypingFeedbackMessage, h.session(student).State)

	p = h.send(student, strings.Repeat("é", dialogue.MaxFeedbackLen+1))
	assert.Contains(t, p.Text, "the limit is 2000")
	assert.Equal(t, session.StateTypingFeedbackMessage, h.session(student).State)

	p = h.send(student, strings.Repeat("é", dialogue.MaxFeedbackLen))
	assert.Contains(t, p.Text, "Send it?")
}

func TestFeedback_SubmitFailureEndsIdle(t *testing.T) {
	h := newHarness(t)
	h.backend.SetError("SubmitFeedback", &gateway.StatusError{Method: "POST", Path: "/feedback/", Status: 500})
	h.send(student, "/feedback")
	h.press(student, "fk|bug")
	h.send(student, "crash")

	p := h.press(student, "fc|send")
	assert.Contains(t, p.Text, "could not be saved")
	assert.Equal(t, session.StateIdle, h.session(student).State)
	assert.Empty(t, h.messenger.SentTo(adminChannel))
}

func TestFeedback_AdminNotificationIsBestEffort(t *testing.T) {
	h := newHarness(t, dialogue.WithAdminChannel("missing"))
	h.send(student, "/feedback")
	h.press(student, "fk|bug")
	h.send(student, "crash")

	h.messenger.SetSendError(errors.New("chat not found"))
	h.press(student, "fc|send")
	h.messenger.SetSendError(nil)

	assert.Len(t, h.backend.Feedback(), 1)
	assert.Equal(t, session.StateIdle, h.session(student).State)
}

func TestAdmin_Commands(t *testing.T) {
	h := newHarness(t)
	h.backend.AddUser(gateway.User{UserID: 1001, Username: "alice", Subscribed: true})

	p := h.send(student, "/block 1002")
	assert.Contains(t, p.Text, "only available to administrators")
	assert.Empty(t, h.backend.Calls("SetBlocked"))

	p = h.send(adminID, "/block")
	assert.Equal(t, "usage: /block <user id|username> [reason]", p.Text)

	p = h.send(adminID, "/block @alice posting  spam")
	assert.Equal(t, "User @alice (1001) is now blocked.", p.Text)
	calls := h.backend.Calls("SetBlocked")
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"@alice", "true", "posting  spam"}, calls[0].Args)

	p = h.send(adminID, "/status 1001")
	assert.Contains(t, p.Text, "Subscribed: yes")
	assert.Contains(t, p.Text, "Blocked: yes (posting  spam)")

	before := h.messenger.Count()
	h.handle(mocks.NewEventBuilder(student, mocks.WithCommand("/start")).Build())
	assert.Equal(t, before, h.messenger.Count(), "blocked user is ignored")

	p = h.send(adminID, "/unblock alice")
	assert.Equal(t, "User @alice (1001) is no longer blocked.", p.Text)
	p = h.send(student, "/start")
	assert.Contains(t, p.Text, "How would you like to search?")

	p = h.send(adminID, "/status 999")
	assert.Equal(t, `Nothing was found for "999".`, p.Text)
}

func TestAdmin_Broadcast(t *testing.T) {
	h := newHarness(t)

	p := h.send(adminID, "/broadcast Exams moved to Monday")
	assert.Contains(t, p.Text, "task-1")
	calls := h.backend.Calls("EnqueueBroadcast")
	require.Len(t, calls, 1)
	assert.Equal(t, "Exams moved to Monday", calls[0].Args[0])

	p = h.send(adminID, "/broadcast_status task-1")
	assert.Contains(t, p.Text, "No delivery report yet.")

	h.backend.SetBroadcast(gateway.BroadcastStatus{
		TaskID: "task-1",
		State:  "SUCCESS",
		Report: &gateway.BroadcastReport{Targeted: 10, Delivered: 7, Refused: 2, Failed: 1},
	})
	p = h.send(adminID, "/broadcast_status task-1")
	assert.Contains(t, p.Text, "Delivered: 7")
	assert.Contains(t, p.Text, "Every recipient has been processed.")

	h.backend.SetBroadcast(gateway.BroadcastStatus{
		TaskID: "task-2",
		State:  "PROGRESS",
		Report: &gateway.BroadcastReport{Targeted: 10, Delivered: 3},
	})
	p = h.send(adminID, "/broadcast_status task-2")
	assert.Contains(t, p.Text, "7 recipients still pending.")
}

func TestAdmin_BackendFailureKeepsState(t *testing.T) {
	h := newHarness(t)
	h.send(adminID, "/start")
	h.press(adminID, "m|course")
	h.backend.SetError("EnqueueBroadcast", &gateway.StatusError{Method: "POST", Path: "/admin/broadcast/", Status: 502})

	p := h.send(adminID, "/broadcast hello")
	assert.Contains(t, p.Text, "/broadcast hello failed")
	assert.Equal(t, session.StateTypingCourseQuery, h.session(adminID).State)
}
