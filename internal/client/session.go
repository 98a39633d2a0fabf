package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"rollbook/internal/model"
	"rollbook/internal/report"
)

// Session is a logged-in teacher. It is torn down by Logout or by the first
// 401/403 from the server; every later call returns ErrSessionExpired.
type Session struct {
	client    *Client
	TeacherID string
	Name      string
	Email     string

	mu    sync.Mutex
	token string
}

// Active reports whether the session still holds a token.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != ""
}

// Token returns the bearer token, empty once torn down.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Logout discards the token.
func (s *Session) Logout() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}

func (s *Session) call(ctx context.Context, method, path string, in, out any) (string, error) {
	token := s.Token()
	if token == "" {
		return "", ErrSessionExpired
	}
	msg, err := s.client.call(ctx, method, path, token, in, out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden) {
		s.Logout()
		return "", ErrSessionExpired
	}
	return msg, err
}

// Students returns the roster, newest first.
func (s *Session) Students(ctx context.Context) ([]model.RosterEntry, error) {
	var roster []model.RosterEntry
	if _, err := s.call(ctx, http.MethodGet, "/api/students", nil, &roster); err != nil {
		return nil, err
	}
	return roster, nil
}

// NewStudent is the payload for AddStudent. Grade may be empty.
type NewStudent struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Grade    string `json:"grade,omitempty"`
}

func (s *Session) AddStudent(ctx context.Context, in NewStudent) (model.Student, error) {
	var st model.Student
	_, err := s.call(ctx, http.MethodPost, "/api/students", in, &st)
	return st, err
}

func (s *Session) DeleteStudent(ctx context.Context, id string) error {
	_, err := s.call(ctx, http.MethodDelete, "/api/students/"+url.PathEscape(id), nil, nil)
	return err
}

// Mark records today's status and returns the server message with the record.
func (s *Session) Mark(ctx context.Context, studentID string, status model.Status) (string, model.AttendanceRecord, error) {
	var rec model.AttendanceRecord
	msg, err := s.call(ctx, http.MethodPost, "/api/students/"+url.PathEscape(studentID)+"/attendance",
		map[string]string{"status": string(status)}, &rec)
	return msg, rec, err
}

// StudentHistory is a student's recent records.
type StudentHistory struct {
	Student struct {
		Username string `json:"username"`
		Email    string `json:"email"`
	} `json:"student"`
	Records []model.AttendanceRecord `json:"records"`
}

// History fetches up to days records; days <= 0 uses the server default.
func (s *Session) History(ctx context.Context, studentID string, days int) (StudentHistory, error) {
	path := "/api/students/" + url.PathEscape(studentID) + "/attendance/history"
	if days > 0 {
		path += "?days=" + strconv.Itoa(days)
	}
	var h StudentHistory
	_, err := s.call(ctx, http.MethodGet, path, nil, &h)
	return h, err
}

// Report fetches the roster and summarizes it locally.
func (s *Session) Report(ctx context.Context, period report.Period) (report.Report, error) {
	roster, err := s.Students(ctx)
	if err != nil {
		return report.Report{}, err
	}
	return report.Generate(roster, period, s.client.now())
}
