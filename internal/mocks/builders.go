package mocks

import (
	"github.com/google/uuid"

	"github.com/Veraticus/gradebot/internal/dialogue"
	"github.com/Veraticus/gradebot/internal/gateway"
)

// EventBuilder creates dialogue.Event instances for testing.
type EventBuilder struct {
	ev dialogue.Event
}

// EventOption is a functional option for EventBuilder.
type EventOption func(*EventBuilder)

// NewEventBuilder creates a text event from userID with a fresh update id.
func NewEventBuilder(userID string, opts ...EventOption) *EventBuilder {
	b := &EventBuilder{
		ev: dialogue.Event{
			UpdateID:  uuid.NewString(),
			UserID:    userID,
			ChatID:    userID,
			FirstName: "Test",
			Kind:      dialogue.EventText,
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// WithText makes the event a typed message.
func WithText(text string) EventOption {
	return func(b *EventBuilder) {
		b.ev.Kind = dialogue.EventText
		b.ev.Text = text
	}
}

// WithCommand makes the event a slash command.
func WithCommand(text string) EventOption {
	return func(b *EventBuilder) {
		b.ev.Kind = dialogue.EventCommand
		b.ev.Text = text
	}
}

// WithAction makes the event a button press on message ref.
func WithAction(data, ref string) EventOption {
	return func(b *EventBuilder) {
		b.ev.Kind = dialogue.EventAction
		b.ev.Data = data
		b.ev.MessageRef = ref
	}
}

// WithUpdateID fixes the update id.
func WithUpdateID(id string) EventOption {
	return func(b *EventBuilder) {
		b.ev.UpdateID = id
	}
}

// WithSender sets the display names.
func WithSender(firstName, username string) EventOption {
	return func(b *EventBuilder) {
		b.ev.FirstName = firstName
		b.ev.Username = username
	}
}

// Build returns the event.
func (b *EventBuilder) Build() dialogue.Event {
	return b.ev
}

// Grade builds a grade count.
func Grade(label string, count int) gateway.GradeCount {
	return gateway.GradeCount{Label: label, Count: count}
}

// Term builds an offering summary.
func Term(id int, course gateway.Course, year, semester string, instructors ...gateway.Instructor) gateway.Term {
	return gateway.Term{
		OfferingID:  id,
		Year:        year,
		Semester:    semester,
		Course:      course,
		Instructors: instructors,
	}
}

// Report builds the grade report of a term. registered may be nil.
func Report(t gateway.Term, registered *int, grades ...gateway.GradeCount) *gateway.GradeReport {
	total := 0
	for _, g := range grades {
		total += g.Count
	}
	return &gateway.GradeReport{
		Offering: gateway.Offering{
			ID:                t.OfferingID,
			Year:              t.Year,
			Semester:          t.Semester,
			Course:            t.Course,
			Instructors:       t.Instructors,
			CurrentRegistered: registered,
		},
		Grades:      grades,
		TotalGraded: total,
	}
}

// Catalogue fixtures shared by the dialogue tests.
var (
	CourseMTH101 = gateway.Course{Code: "MTH101A", Name: "Mathematics I"}
	CourseMTH102 = gateway.Course{Code: "MTH102A", Name: "Linear Algebra"}
	CoursePHY101 = gateway.Course{Code: "PHY101", Name: "Physics I"}

	Sharma = gateway.Instructor{ID: 7, Name: "Anita Sharma"}
	Verma  = gateway.Instructor{ID: 9, Name: "Rahul Verma"}
	Singh  = gateway.Instructor{ID: 11, Name: "Anita Singh"}
)

// SeedCatalogue fills b with a small catalogue. MTH101A has two terms:
// offering 1 taught by Sharma and Verma with 90 registered, and offering 2
// taught by Verma alone. MTH102A has offering 3 taught by Sharma.
// PHY101 has no terms.
func SeedCatalogue(b *MockBackend) {
	registered := 90

	b.AddCourse(CourseMTH101)
	b.AddCourse(CourseMTH102)
	b.AddCourse(CoursePHY101)
	b.AddInstructor(Sharma)
	b.AddInstructor(Verma)
	b.AddInstructor(Singh)

	t1 := Term(1, CourseMTH101, "2023-2024", "Odd", Sharma, Verma)
	b.AddOffering(t1, Report(t1, &registered,
		Grade("B", 30), Grade("A", 20), Grade("A*", 10), Grade("C", 15), Grade("F", 5)))

	t2 := Term(2, CourseMTH101, "2022-2023", "Even", Verma)
	b.AddOffering(t2, Report(t2, nil, Grade("A", 3), Grade("B", 3), Grade("C", 3)))

	t3 := Term(3, CourseMTH102, "2023-2024", "Even", Sharma)
	b.AddOffering(t3, Report(t3, nil, Grade("A", 4), Grade("B", 6)))
}
