package aspen

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://aspen.cps.edu/aspen"
	tokenField     = "org.apache.struts.taglib.html.TOKEN"
)

// tokenRe pulls the hidden anti-forgery token out of the login form.
var tokenRe = regexp.MustCompile(`name="org\.apache\.struts\.taglib\.html\.TOKEN"\s+value="([^"]+)"`)

// loginMarkers are page fragments that only appear after a successful login.
var loginMarkers = []string{"userPreferenceMenu", "Log Off", "confirmLogout"}

type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Session is a fetch-scoped authenticated portal session: one cookie jar,
// one CSRF token, one resolved student. It is created empty, populated by
// Login and ResolveStudent, and discarded at the end of the fetch. Sessions
// are never reused across users or scheduled runs.
type Session struct {
	cfg         Config
	httpClient  *http.Client
	studentOID  string
	studentName string
}

func NewSession(cfg Config) (*Session, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	return &Session{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
		},
	}, nil
}

func (s *Session) StudentOID() string  { return s.studentOID }
func (s *Session) StudentName() string { return s.studentName }

// Login performs the struts form handshake: fetch the login page, extract
// the anti-forgery token, post credentials, then verify the landing page
// carries authenticated markers.
func (s *Session) Login(ctx context.Context, creds Credentials) error {
	loginPage, err := s.getText(ctx, s.cfg.BaseURL+"/logon.do")
	if err != nil {
		return fmt.Errorf("fetch login page: %w: %w", ErrPortalUnreachable, err)
	}

	m := tokenRe.FindStringSubmatch(loginPage)
	if m == nil {
		return ErrTokenNotFound
	}
	token := m[1]

	form := url.Values{
		tokenField:       {token},
		"userEvent":      {"930"},
		"userParam":      {""},
		"operationId":    {""},
		"deploymentId":   {"aspen"},
		"scrollX":        {"0"},
		"scrollY":        {"0"},
		"formFocusField": {"username"},
		"mobile":         {"false"},
		"SSOLoginDone":   {""},
		"username":       {creds.Username},
		"password":       {creds.Password},
		"submit":         {"Log On"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/logon.do", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create login request: %w", err)
	}
	s.setHeaders(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("submit login form: %w: %w", ErrPortalUnreachable, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	home, err := s.getText(ctx, s.cfg.BaseURL+"/home.do")
	if err != nil {
		return fmt.Errorf("fetch home page: %w: %w", ErrPortalUnreachable, err)
	}

	for _, marker := range loginMarkers {
		if strings.Contains(home, marker) {
			return nil
		}
	}
	if strings.Contains(home, "Invalid login") {
		return ErrInvalidCredentials
	}
	return ErrLoginRejected
}

// ResolveStudent looks up the authenticated principal's student list and
// takes the first entry as the active subject.
func (s *Session) ResolveStudent(ctx context.Context) error {
	var students []Student
	if err := s.getJSON(ctx, s.cfg.BaseURL+"/rest/users/students", nil, &students); err != nil {
		return fmt.Errorf("resolve student: %w", err)
	}
	if len(students) == 0 {
		return ErrNoStudentFound
	}

	s.studentOID = students[0].OID
	s.studentName = students[0].Name
	return nil
}

// ListClasses returns the class list for the current grading term.
func (s *Session) ListClasses(ctx context.Context) ([]Class, error) {
	if s.studentOID == "" {
		return nil, fmt.Errorf("list classes: %w", ErrNoStudentFound)
	}

	var classes []Class
	u := fmt.Sprintf("%s/rest/students/%s/academicClasses", s.cfg.BaseURL, s.studentOID)
	if err := s.getJSON(ctx, u, termParams(), &classes); err != nil {
		return nil, fmt.Errorf("list classes (student_oid: %s): %w", s.studentOID, err)
	}
	return classes, nil
}

// ListAssignments returns the assignment list for one class schedule entry.
// A failure here is per-class and must not abort sibling calls.
func (s *Session) ListAssignments(ctx context.Context, scheduleOID string) ([]Assignment, error) {
	var assignments []Assignment
	u := fmt.Sprintf("%s/rest/studentSchedule/%s/assignments", s.cfg.BaseURL, scheduleOID)
	if err := s.getJSON(ctx, u, termParams(), &assignments); err != nil {
		return nil, fmt.Errorf("list assignments (schedule_oid: %s): %w", scheduleOID, err)
	}
	return assignments, nil
}

func termParams() url.Values {
	return url.Values{
		"gradeTerm": {"current"},
		"year":      {"current"},
	}
}

func (s *Session) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Cache-Control", "no-store,no-cache")
	req.Header.Set("Pragma", "no-cache")
}

func (s *Session) getText(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request (url: %s): %w", url, err)
	}
	s.setHeaders(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request (url: %s): %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response body (url: %s): %w", url, err)
	}
	return string(body), nil
}

func (s *Session) getJSON(ctx context.Context, rawURL string, params url.Values, result any) error {
	if len(params) > 0 {
		rawURL = rawURL + "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request (url: %s): %w", rawURL, err)
	}
	s.setHeaders(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request (url: %s): %w: %w", rawURL, ErrPortalUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{Code: resp.StatusCode, URL: rawURL}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response (url: %s): %w", rawURL, ErrMalformedResponse)
	}
	return nil
}
