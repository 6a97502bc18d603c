package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Veraticus/gradebot/internal/gateway"
)

// gradeOrder is the display order of grade labels. Labels not listed sort
// after these, alphabetically.
var gradeOrder = []string{"A*", "A", "B+", "B", "C+", "C", "D+", "D", "F", "E", "S", "X", "W"}

var gradeRank = func() map[string]int {
	m := make(map[string]int, len(gradeOrder))
	for i, g := range gradeOrder {
		m[g] = i
	}
	return m
}()

// Denominator returns the base used for grade percentages: the current
// registration count when the backend reports one that covers every graded
// student, otherwise the number of graded students.
func Denominator(report *gateway.GradeReport) int {
	graded := graded(report)
	if reg := report.Offering.CurrentRegistered; reg != nil && *reg > 0 && *reg >= graded {
		return *reg
	}
	return graded
}

func graded(report *gateway.GradeReport) int {
	sum := 0
	for _, g := range report.Grades {
		sum += g.Count
	}
	if report.TotalGraded > sum {
		return report.TotalGraded
	}
	return sum
}

// Distribution returns the grades in display order with percentages
// recomputed against Denominator. Percentages are truncated to one decimal
// place so they never sum past 100.
func Distribution(report *gateway.GradeReport) []gateway.GradeCount {
	base := Denominator(report)
	out := make([]gateway.GradeCount, 0, len(report.Grades))
	for _, g := range report.Grades {
		pct := 0.0
		if base > 0 {
			pct = float64(g.Count*1000/base) / 10
		}
		out = append(out, gateway.GradeCount{Label: g.Label, Count: g.Count, Percentage: pct})
	}

	sort.SliceStable(out, func(i, j int) bool {
		ri, iok := gradeRank[out[i].Label]
		rj, jok := gradeRank[out[j].Label]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		default:
			return out[i].Label < out[j].Label
		}
	})
	return out
}

// GradeReport renders the body of the grade distribution screen.
func GradeReport(report *gateway.GradeReport) string {
	var sb strings.Builder
	off := report.Offering

	fmt.Fprintf(&sb, "📊 %s\n", off.Course.Label())
	fmt.Fprintf(&sb, "%s · %s semester\n", off.Year, off.Semester)
	if len(off.Instructors) > 0 {
		names := make([]string, 0, len(off.Instructors))
		for _, in := range off.Instructors {
			names = append(names, in.Name)
		}
		fmt.Fprintf(&sb, "Instructors: %s\n", strings.Join(names, ", "))
	}
	sb.WriteString("\n")

	grades := Distribution(report)
	if len(grades) == 0 {
		sb.WriteString("No grades have been published for this offering.")
		return sb.String()
	}

	width := 0
	for _, g := range grades {
		if len(g.Label) > width {
			width = len(g.Label)
		}
	}
	for _, g := range grades {
		fmt.Fprintf(&sb, "%-*s  %4d  %5.1f%%\n", width, g.Label, g.Count, g.Percentage)
	}

	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Graded: %d", graded(report))
	if reg := off.CurrentRegistered; reg != nil && *reg > 0 {
		fmt.Fprintf(&sb, " · Registered: %d", *reg)
	}
	fmt.Fprintf(&sb, "\nPercentages are of %d students.", Denominator(report))
	return sb.String()
}
