package gateway

import (
	"strconv"
	"time"
)

// SearchKind selects which catalogue a search runs against.
type SearchKind string

const (
	// SearchCourses matches course codes and titles.
	SearchCourses SearchKind = "course"
	// SearchInstructors matches instructor names.
	SearchInstructors SearchKind = "prof"
)

// Hit is one search result.
type Hit struct {
	ID    string
	Label string
}

// Course is a catalogue course.
type Course struct {
	Code string `json:"code"`
	Name string `json:"name,omitempty"`
}

// Label renders "CODE: Name", or just the code.
func (c Course) Label() string {
	if c.Name == "" {
		return c.Code
	}
	return c.Code + ": " + c.Name
}

// Instructor is a teaching staff member.
type Instructor struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Key returns the instructor id in token form.
func (i Instructor) Key() string {
	return strconv.Itoa(i.ID)
}

// Term is one offering of a course in an academic year and semester.
type Term struct {
	OfferingID  int          `json:"id"`
	Year        string       `json:"academic_year"`
	Semester    string       `json:"semester"`
	Course      Course       `json:"course"`
	Instructors []Instructor `json:"instructors"`
}

// TaughtBy reports whether the instructor with id taught this term.
func (t Term) TaughtBy(id string) bool {
	for _, in := range t.Instructors {
		if in.Key() == id {
			return true
		}
	}
	return false
}

// GradeCount is the number of students awarded a grade.
type GradeCount struct {
	Label      string  `json:"grade_type"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Offering is the detailed view of a term.
type Offering struct {
	ID                int          `json:"id"`
	Year              string       `json:"academic_year"`
	Semester          string       `json:"semester"`
	Course            Course       `json:"course"`
	Instructors       []Instructor `json:"instructors"`
	CurrentRegistered *int         `json:"current_registered,omitempty"`
}

// GradeReport is the grade distribution of a single offering.
type GradeReport struct {
	Offering    Offering     `json:"offering"`
	Grades      []GradeCount `json:"grades"`
	TotalGraded int          `json:"total_graded_students"`
}

// Profile identifies a chat user to the backend.
type Profile struct {
	UserID    string `json:"-"`
	FirstName string `json:"first_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// User is the backend's record of a chat user.
type User struct {
	UserID       int64      `json:"telegram_user_id"`
	FirstName    string     `json:"first_name,omitempty"`
	Username     string     `json:"username,omitempty"`
	Subscribed   bool       `json:"is_subscribed"`
	Blocked      bool       `json:"is_blocked"`
	BlockReason  string     `json:"block_reason,omitempty"`
	SubscribedAt time.Time  `json:"subscribed_at"`
	LastActiveAt *time.Time `json:"last_active_at,omitempty"`
}

// Receipt acknowledges a stored feedback submission.
type Receipt struct {
	ID          int       `json:"id"`
	Kind        string    `json:"feedback_type"`
	Text        string    `json:"message_text"`
	UserID      int64     `json:"telegram_user_id"`
	SubmittedAt time.Time `json:"submitted_at"`
	Status      string    `json:"status"`
}

// BroadcastTask references a queued broadcast.
type BroadcastTask struct {
	ID      string `json:"task_id"`
	Message string `json:"message"`
}

// BroadcastReport aggregates per-recipient delivery outcomes.
type BroadcastReport struct {
	Targeted  int `json:"total_targeted"`
	Delivered int `json:"sent"`
	Refused   int `json:"blocked"`
	Failed    int `json:"failed"`
}

// Complete reports whether every targeted recipient has an outcome.
func (r BroadcastReport) Complete() bool {
	return r.Targeted == r.Delivered+r.Refused+r.Failed
}

// BroadcastStatus is the dispatcher's view of a broadcast task.
type BroadcastStatus struct {
	TaskID string           `json:"task_id"`
	State  string           `json:"status"`
	Report *BroadcastReport `json:"report,omitempty"`
}
