package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rvazquez/aspen-grade-bot/pkg/aspen"
)

const loginPage = `<input type="hidden" name="org.apache.struts.taglib.html.TOKEN" value="tok"/>`

// newPortal serves a full happy-path portal where one class's assignment
// endpoint fails.
func newPortal(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/logon.do", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusOK)
			return
		}
		_, _ = w.Write([]byte(loginPage))
	})
	mux.HandleFunc("/home.do", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<a>Log Off</a>`))
	})
	mux.HandleFunc("/rest/users/students", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"studentOid":"STD-1","name":"Jane Doe"}]`))
	})
	mux.HandleFunc("/rest/students/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[
			{"courseName":"Algebra","sectionTermAverage":"A","percentageValue":94.5,"teacherName":"Smith","studentScheduleOid":"SCH-OK"},
			{"courseName":"History","sectionTermAverage":"B","percentageValue":85.0,"teacherName":"Jones","studentScheduleOid":"SCH-BROKEN"}
		]`))
	})
	mux.HandleFunc("/rest/studentSchedule/SCH-OK/assignments", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"name":"Quiz 1","category":"Assessment","dueDate":1714953600000,"scoreElements":[{"score":18,"scorePercent":90.0}]}]`))
	})
	mux.HandleFunc("/rest/studentSchedule/SCH-BROKEN/assignments", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	return httptest.NewServer(mux)
}

func TestFetchGrades_AssignmentFailureDegradesSingleClass(t *testing.T) {
	srv := newPortal(t)
	defer srv.Close()

	svc := NewService(nil, aspen.Config{BaseURL: srv.URL}, "America/Chicago", "15:00")

	chunks, err := svc.FetchGrades(context.Background(), aspen.Credentials{Username: "u", Password: "p"}, "Grades")
	if err != nil {
		t.Fatalf("fetch grades: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("want 1 chunk, got %d", len(chunks))
	}

	out := chunks[0]
	if !strings.Contains(out, "Jane Doe") {
		t.Fatal("student name missing from title")
	}
	if !strings.Contains(out, "Algebra") || !strings.Contains(out, "Quiz 1") {
		t.Fatal("healthy class lost its assignment detail")
	}
	if !strings.Contains(out, "History") {
		t.Fatal("class with failing assignments must still be reported")
	}
	if strings.Count(out, "Recent Assignments") != 1 {
		t.Fatal("broken class must degrade to its summary line")
	}
}

func TestFetchGrades_LoginFailureAborts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/logon.do", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusOK)
			return
		}
		_, _ = w.Write([]byte(loginPage))
	})
	mux.HandleFunc("/home.do", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`Invalid login`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	svc := NewService(nil, aspen.Config{BaseURL: srv.URL}, "America/Chicago", "15:00")

	_, err := svc.FetchGrades(context.Background(), aspen.Credentials{Username: "u", Password: "bad"}, "Grades")
	if err == nil {
		t.Fatal("want login error")
	}
}
