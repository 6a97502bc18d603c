// Package session owns the per-user conversation record and serializes
// access to it.
package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// State is the node of the dialogue graph a session is at.
type State string

// Dialogue states.
const (
	StateIdle                  State = "idle"
	StateSelectingMode         State = "selecting_mode"
	StateTypingCourseQuery     State = "typing_course_query"
	StateTypingProfQuery       State = "typing_prof_query"
	StateCourseResults         State = "course_results"
	StateProfResults           State = "prof_results"
	StateProfCourseList        State = "prof_course_list"
	StateYearSemesterList      State = "year_semester_list"
	StateShowingGrades         State = "showing_grades"
	StateNoResults             State = "no_results"
	StateAskFeedbackType       State = "ask_feedback_type"
	StateTypingFeedbackMessage State = "typing_feedback_message"
	StateConfirmFeedback       State = "confirm_feedback"
)

// Mode is the search mode chosen by the user.
type Mode string

// Search modes.
const (
	ModeNone       Mode = ""
	ModeCourse     Mode = "course"
	ModeInstructor Mode = "prof"
)

// ListKind names a cached result list. The value travels inside page
// tokens, so it is kept short.
type ListKind string

// List kinds.
const (
	ListCourses     ListKind = "c"
	ListInstructors ListKind = "p"
	ListProfCourses ListKind = "pc"
	ListTerms       ListKind = "t"
	// ListProfTerms caches every term of the selected instructor. It is
	// never displayed.
	ListProfTerms ListKind = "pt"
)

// maxSeen bounds the update ids remembered for de-duplication.
const maxSeen = 32

// Item is one entry of a result list. Args is the action payload that
// selects it.
type Item struct {
	Label string   `json:"label"`
	Args  []string `json:"args"`
}

// ResultSet is a cached backend list. Anchor identifies what the list was
// fetched for: the query, the course code or the instructor id.
type ResultSet struct {
	Items  []Item `json:"items"`
	Total  int    `json:"total"`
	Anchor string `json:"anchor"`
}

// Trail records the entities selected so far.
type Trail struct {
	CourseCode     string `json:"course_code,omitempty"`
	CourseLabel    string `json:"course_label,omitempty"`
	InstructorID   string `json:"instructor_id,omitempty"`
	InstructorName string `json:"instructor_name,omitempty"`
	Year           string `json:"year,omitempty"`
	Semester       string `json:"semester,omitempty"`
	OfferingID     int    `json:"offering_id,omitempty"`
}

// NavFrame is what is needed to redraw a screen the user left.
type NavFrame struct {
	State  State    `json:"state"`
	List   ListKind `json:"list,omitempty"`
	Page   int      `json:"page"`
	Mode   Mode     `json:"mode"`
	Anchor string   `json:"anchor,omitempty"`
}

// Session is the conversational context of one user.
type Session struct {
	UserID        string                  `json:"user_id"`
	ChatID        string                  `json:"chat_id"`
	State         State                   `json:"state"`
	Mode          Mode                    `json:"mode"`
	LastQuery     string                  `json:"last_query,omitempty"`
	Trail         Trail                   `json:"trail"`
	Results       map[ListKind]*ResultSet `json:"results,omitempty"`
	Pages         map[ListKind]int        `json:"pages,omitempty"`
	Body          string                  `json:"body,omitempty"`
	PromptRef     string                  `json:"prompt_ref,omitempty"`
	Nav           []NavFrame              `json:"nav,omitempty"`
	FeedbackKind  string                  `json:"feedback_kind,omitempty"`
	FeedbackDraft string                  `json:"feedback_draft,omitempty"`
	Seen          []string                `json:"seen,omitempty"`
	LastToken     string                  `json:"last_token,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

// New returns an idle session for userID.
func New(userID string) *Session {
	now := time.Now()
	return &Session{
		UserID:    userID,
		State:     StateIdle,
		Results:   make(map[ListKind]*ResultSet),
		Pages:     make(map[ListKind]int),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Reset clears the dialogue back to idle. Identity, the chat, the prompt
// handle and the de-duplication window survive.
func (s *Session) Reset() {
	s.State = StateIdle
	s.Mode = ModeNone
	s.LastQuery = ""
	s.Trail = Trail{}
	s.Results = make(map[ListKind]*ResultSet)
	s.Pages = make(map[ListKind]int)
	s.Body = ""
	s.Nav = nil
	s.FeedbackKind = ""
	s.FeedbackDraft = ""
	s.LastToken = ""
}

// MarkSeen records an update id. It returns false when the id was already
// processed.
func (s *Session) MarkSeen(updateID string) bool {
	if updateID == "" {
		return true
	}
	for _, id := range s.Seen {
		if id == updateID {
			return false
		}
	}
	s.Seen = append(s.Seen, updateID)
	if len(s.Seen) > maxSeen {
		s.Seen = s.Seen[len(s.Seen)-maxSeen:]
	}
	return true
}

// Result returns the cached list of kind, or nil.
func (s *Session) Result(kind ListKind) *ResultSet {
	if s.Results == nil {
		return nil
	}
	return s.Results[kind]
}

// SetResult caches a list and resets its page.
func (s *Session) SetResult(kind ListKind, set *ResultSet) {
	if s.Results == nil {
		s.Results = make(map[ListKind]*ResultSet)
	}
	if s.Pages == nil {
		s.Pages = make(map[ListKind]int)
	}
	s.Results[kind] = set
	s.Pages[kind] = 0
}

// DropResult forgets a cached list and its page.
func (s *Session) DropResult(kind ListKind) {
	delete(s.Results, kind)
	delete(s.Pages, kind)
}

// Page returns the current page of a list.
func (s *Session) Page(kind ListKind) int {
	return s.Pages[kind]
}

// SetPage stores the current page of a list.
func (s *Session) SetPage(kind ListKind, index int) {
	if s.Pages == nil {
		s.Pages = make(map[ListKind]int)
	}
	s.Pages[kind] = index
}

// Push stacks a navigation frame.
func (s *Session) Push(f NavFrame) {
	s.Nav = append(s.Nav, f)
}

// Pop removes and returns the top frame.
func (s *Session) Pop() (NavFrame, bool) {
	if len(s.Nav) == 0 {
		return NavFrame{}, false
	}
	f := s.Nav[len(s.Nav)-1]
	s.Nav = s.Nav[:len(s.Nav)-1]
	return f, true
}

// Peek returns the top frame without removing it.
func (s *Session) Peek() (NavFrame, bool) {
	if len(s.Nav) == 0 {
		return NavFrame{}, false
	}
	return s.Nav[len(s.Nav)-1], true
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	data, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("session: marshal: %v", err))
	}
	out, err := Decode(data)
	if err != nil {
		panic(fmt.Sprintf("session: unmarshal: %v", err))
	}
	return out
}

// Decode parses a session previously produced by json.Marshal.
func Decode(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if s.Results == nil {
		s.Results = make(map[ListKind]*ResultSet)
	}
	if s.Pages == nil {
		s.Pages = make(map[ListKind]int)
	}
	if s.State == "" {
		s.State = StateIdle
	}
	return &s, nil
}
