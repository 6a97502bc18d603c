package render_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/gradebot/internal/gateway"
	"github.com/Veraticus/gradebot/internal/render"
)

func intPtr(n int) *int { return &n }

func sampleReport(registered *int) *gateway.GradeReport {
	return &gateway.GradeReport{
		Offering: gateway.Offering{
			ID:                7,
			Year:              "2023-2024",
			Semester:          "Odd",
			Course:            gateway.Course{Code: "MTH101A", Name: "Mathematics I"},
			Instructors:       []gateway.Instructor{{ID: 1, Name: "R. Sharma"}},
			CurrentRegistered: registered,
		},
		Grades: []gateway.GradeCount{
			{Label: "W", Count: 1},
			{Label: "B", Count: 3},
			{Label: "A*", Count: 1},
			{Label: "Z", Count: 1},
			{Label: "A", Count: 3},
		},
		TotalGraded: 9,
	}
}

func TestDenominator(t *testing.T) {
	tests := []struct {
		name       string
		registered *int
		want       int
	}{
		{name: "registered present", registered: intPtr(12), want: 12},
		{name: "registered missing", registered: nil, want: 9},
		{name: "registered zero", registered: intPtr(0), want: 9},
		{name: "registered below graded", registered: intPtr(5), want: 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, render.Denominator(sampleReport(tt.registered)))
		})
	}
}

func TestDistribution_OrderAndPercentages(t *testing.T) {
	got := render.Distribution(sampleReport(nil))
	require.Len(t, got, 5)

	labels := make([]string, 0, len(got))
	sum := 0.0
	for _, g := range got {
		labels = append(labels, g.Label)
		sum += g.Percentage
	}
	assert.Equal(t, []string{"A*", "A", "B", "W", "Z"}, labels)
	assert.InDelta(t, 33.3, got[1].Percentage, 0.001)
	assert.InDelta(t, 11.1, got[0].Percentage, 0.001)
	assert.LessOrEqual(t, sum, 100.0)
}

func TestDistribution_SumNeverExceedsHundred(t *testing.T) {
	for n := 1; n <= 40; n++ {
		report := &gateway.GradeReport{}
		for i := 0; i < n; i++ {
			report.Grades = append(report.Grades, gateway.GradeCount{Label: string(rune('A' + i%26)), Count: 1 + i%3})
		}
		sum := 0.0
		for _, g := range render.Distribution(report) {
			sum += g.Percentage
		}
		assert.LessOrEqual(t, sum, 100.0+1e-9, "n=%d", n)
	}
}

func TestDistribution_Empty(t *testing.T) {
	assert.Empty(t, render.Distribution(&gateway.GradeReport{}))
	assert.Equal(t, 0, render.Denominator(&gateway.GradeReport{}))
}

func TestGradeReport_Text(t *testing.T) {
	text := render.GradeReport(sampleReport(intPtr(12)))

	assert.Contains(t, text, "MTH101A: Mathematics I")
	assert.Contains(t, text, "2023-2024 · Odd semester")
	assert.Contains(t, text, "Instructors: R. Sharma")
	assert.Contains(t, text, "25.0%")
	assert.Contains(t, text, "Graded: 9 · Registered: 12")
	assert.Contains(t, text, "Percentages are of 12 students.")

	empty := render.GradeReport(&gateway.GradeReport{Offering: gateway.Offering{Course: gateway.Course{Code: "X"}}})
	assert.Contains(t, empty, "No grades have been published")
}
