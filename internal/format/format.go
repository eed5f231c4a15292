// Package format turns raw portal class and assignment records into
// Telegram-sized message chunks. It is pure: callers fetch, it formats.
package format

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rvazquez/aspen-grade-bot/pkg/aspen"
)

// MaxChunkLen is the contract bound on a single message chunk, in characters.
const MaxChunkLen = 3000

const maxRecentAssignments = 3

const noContentMessage = "No grades or assignments found for the current term."

// ClassDetail pairs a class with its pre-fetched assignment list. Assignments
// may be nil when the per-class fetch failed or the class has no grade.
type ClassDetail struct {
	Class       aspen.Class
	Assignments []aspen.Assignment
}

// Messages greedily packs class blocks into chunks of at most MaxChunkLen
// characters. Classes with neither a display grade nor a percentage are
// skipped; if nothing survives the filter a single no-content chunk is
// returned.
func Messages(studentName string, classes []ClassDetail, title string) []string {
	var messages []string

	current := title
	if studentName != "" {
		current += " for " + studentName
	}
	current += ":\n\n"

	hasContent := false
	for _, cd := range classes {
		c := cd.Class
		if c.TermAverage == "" && c.Percentage == nil {
			continue
		}
		hasContent = true

		block := classBlock(cd)
		if utf8.RuneCountInString(current)+utf8.RuneCountInString(block) > MaxChunkLen {
			messages = append(messages, current)
			current = block
		} else {
			current += block
		}
	}

	if !hasContent {
		return []string{noContentMessage}
	}
	return append(messages, current)
}

func classBlock(cd ClassDetail) string {
	c := cd.Class

	var b strings.Builder
	fmt.Fprintf(&b, "📘 <b>%s</b>\n", c.CourseName)
	b.WriteString("------------------------------\n")

	grade := c.TermAverage
	if grade == "" {
		grade = "No grade"
	}
	fmt.Fprintf(&b, "Grade: %s\n", MarkScore(grade, c.Percentage))
	fmt.Fprintf(&b, "Teacher: %s\n", c.TeacherName)

	if c.Percentage != nil && len(cd.Assignments) > 0 {
		b.WriteString("\nRecent Assignments:\n")
		for _, a := range TopRecent(cd.Assignments, maxRecentAssignments) {
			dateStr := ""
			if a.DueDate != nil {
				dateStr = time.UnixMilli(*a.DueDate).Format("2006-01-02")
			}
			score, pct := assignmentScore(a)
			fmt.Fprintf(&b, "• %s\n", a.Name)
			fmt.Fprintf(&b, "  📅 Due: %s\n", dateStr)
			fmt.Fprintf(&b, "  📝 %s: %s\n", a.Category, MarkScore(score, pct))
		}
	}

	b.WriteString("\n")
	return b.String()
}

// MarkScore prefixes a score with a tier marker when a percentage is known:
// 👏 at 90 and above, ⚠️ for 80–89.99, ‼️ below 80. Without a percentage the
// raw label passes through unmarked.
func MarkScore(text string, pct *float64) string {
	if pct == nil {
		return text
	}
	switch {
	case *pct >= 90:
		return "👏 " + text
	case *pct >= 80:
		return "⚠️ " + text
	default:
		return "‼️ " + text
	}
}

// TopRecent returns the n most recent assignments by due date, descending.
// Assignments without a due date sort after dated ones.
func TopRecent(assignments []aspen.Assignment, n int) []aspen.Assignment {
	sorted := slices.Clone(assignments)
	slices.SortStableFunc(sorted, func(a, b aspen.Assignment) int {
		switch {
		case a.DueDate == nil && b.DueDate == nil:
			return 0
		case a.DueDate == nil:
			return 1
		case b.DueDate == nil:
			return -1
		default:
			return cmp.Compare(*b.DueDate, *a.DueDate)
		}
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func assignmentScore(a aspen.Assignment) (string, *float64) {
	if len(a.ScoreElements) == 0 || a.ScoreElements[0].Score == nil {
		return "Not graded", nil
	}
	el := a.ScoreElements[0]
	if f, ok := el.Score.(float64); ok {
		return strconv.FormatFloat(f, 'f', -1, 64), el.ScorePercent
	}
	return fmt.Sprint(el.Score), el.ScorePercent
}
