package format

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rvazquez/aspen-grade-bot/pkg/aspen"
)

func ptr[T any](v T) *T { return &v }

func TestMessages_NoContent(t *testing.T) {
	classes := []ClassDetail{
		{Class: aspen.Class{CourseName: "Art"}},
		{Class: aspen.Class{CourseName: "Gym"}},
	}

	got := Messages("Jane Doe", classes, "📚 Current Grades")
	if len(got) != 1 {
		t.Fatalf("want exactly 1 chunk, got %d", len(got))
	}
	if got[0] != noContentMessage {
		t.Fatalf("want no-content message, got %q", got[0])
	}
}

func TestMessages_SkipsGradelessClasses(t *testing.T) {
	classes := []ClassDetail{
		{Class: aspen.Class{CourseName: "Math", TermAverage: "A", Percentage: ptr(95.0)}},
		{Class: aspen.Class{CourseName: "Gym"}},
	}

	got := Messages("Jane", classes, "Grades")
	if len(got) != 1 {
		t.Fatalf("want 1 chunk, got %d", len(got))
	}
	if !strings.Contains(got[0], "Math") {
		t.Fatal("graded class missing from output")
	}
	if strings.Contains(got[0], "Gym") {
		t.Fatal("gradeless class must be skipped")
	}
}

func TestMessages_TitleAndStudentName(t *testing.T) {
	classes := []ClassDetail{
		{Class: aspen.Class{CourseName: "Math", TermAverage: "B+"}},
	}

	got := Messages("Jane Doe", classes, "📚 Daily Grade Update")
	if !strings.HasPrefix(got[0], "📚 Daily Grade Update for Jane Doe:\n\n") {
		t.Fatalf("unexpected header: %q", got[0][:60])
	}
}

func TestMessages_ChunkBoundAndOrdering(t *testing.T) {
	var classes []ClassDetail
	longTeacher := strings.Repeat("x", 400)
	for i := 0; i < 10; i++ {
		classes = append(classes, ClassDetail{Class: aspen.Class{
			CourseName:  fmt.Sprintf("Course-%02d", i),
			TermAverage: "B",
			TeacherName: longTeacher,
		}})
	}

	got := Messages("Jane", classes, "Grades")
	if len(got) < 2 {
		t.Fatalf("combined text exceeds the bound, want multiple chunks, got %d", len(got))
	}

	var all strings.Builder
	for i, chunk := range got {
		if n := utf8.RuneCountInString(chunk); n > MaxChunkLen {
			t.Fatalf("chunk %d has %d chars, bound is %d", i, n, MaxChunkLen)
		}
		all.WriteString(chunk)
	}

	joined := all.String()
	last := -1
	for i := 0; i < 10; i++ {
		idx := strings.Index(joined, fmt.Sprintf("Course-%02d", i))
		if idx < 0 {
			t.Fatalf("Course-%02d missing from output", i)
		}
		if idx <= last {
			t.Fatalf("Course-%02d out of order", i)
		}
		last = idx
	}
}

func TestMessages_AssignmentSectionNeedsPercentage(t *testing.T) {
	assignments := []aspen.Assignment{{Name: "HW 1", Category: "Homework"}}

	// No percentage: assignments are omitted even when present.
	got := Messages("", []ClassDetail{{
		Class:       aspen.Class{CourseName: "Math", TermAverage: "A"},
		Assignments: assignments,
	}}, "Grades")
	if strings.Contains(got[0], "Recent Assignments") {
		t.Fatal("assignments must be omitted without a percentage")
	}

	got = Messages("", []ClassDetail{{
		Class:       aspen.Class{CourseName: "Math", TermAverage: "A", Percentage: ptr(91.0)},
		Assignments: assignments,
	}}, "Grades")
	if !strings.Contains(got[0], "Recent Assignments") {
		t.Fatal("assignments missing for graded class")
	}
	if !strings.Contains(got[0], "Not graded") {
		t.Fatal("scoreless assignment should read Not graded")
	}
}

func TestTopRecent_OrderingWithMissingDates(t *testing.T) {
	assignments := []aspen.Assignment{
		{Name: "a", DueDate: ptr(int64(100))},
		{Name: "b", DueDate: ptr(int64(300))},
		{Name: "c"},
		{Name: "d", DueDate: ptr(int64(200))},
	}

	top := TopRecent(assignments, 3)
	want := []string{"b", "d", "a"}
	if len(top) != 3 {
		t.Fatalf("want 3 assignments, got %d", len(top))
	}
	for i, name := range want {
		if top[i].Name != name {
			t.Fatalf("position %d: want %s, got %s", i, name, top[i].Name)
		}
	}
}

func TestTopRecent_UndatedSortLast(t *testing.T) {
	assignments := []aspen.Assignment{
		{Name: "undated"},
		{Name: "dated", DueDate: ptr(int64(1))},
	}

	top := TopRecent(assignments, 2)
	if top[0].Name != "dated" || top[1].Name != "undated" {
		t.Fatalf("undated must sort last, got [%s %s]", top[0].Name, top[1].Name)
	}
}

func TestMarkScore(t *testing.T) {
	cases := []struct {
		pct  *float64
		want string
	}{
		{ptr(95.0), "👏 A"},
		{ptr(90.0), "👏 A"},
		{ptr(89.99), "⚠️ A"},
		{ptr(80.0), "⚠️ A"},
		{ptr(79.99), "‼️ A"},
		{nil, "A"},
	}

	for _, tc := range cases {
		if got := MarkScore("A", tc.pct); got != tc.want {
			t.Fatalf("MarkScore(A, %v): want %q, got %q", tc.pct, tc.want, got)
		}
	}
}
