// Package report builds point-in-time attendance summaries from a roster
// snapshot.
//
// The period is a label only. Every report reflects the latest known status
// of each student, whatever period is selected.
package report

import (
	"strings"
	"time"

	"rollbook/internal/apperr"
	"rollbook/internal/model"
)

// Period is the report period selected by the user.
type Period string

const (
	Daily   Period = "daily"
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
)

var (
	ErrNoStudents   = apperr.New(apperr.ErrPrecondition, "No students found. Add students first!")
	ErrNoAttendance = apperr.New(apperr.ErrPrecondition, "No attendance marked yet. Mark attendance for students first!")
)

// ParsePeriod accepts a period label case-insensitively. Empty means Daily.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return Daily, nil
	case Daily, Weekly, Monthly:
		return p, nil
	}
	return "", apperr.Newf(apperr.ErrInvalidInput, "Invalid period %q", s)
}

// Label is the capitalized period, e.g. "Weekly".
func (p Period) Label() string {
	if p == "" {
		return ""
	}
	return strings.ToUpper(string(p[:1])) + string(p[1:])
}

// Stats counts the roster. Total is the full roster size; the other counts
// only cover marked students.
type Stats struct {
	Total   int `json:"total"`
	Present int `json:"present"`
	Absent  int `json:"absent"`
	Late    int `json:"late"`
}

// Row is one marked student in a report.
type Row struct {
	ID         string       `json:"id"`
	Username   string       `json:"username"`
	Email      string       `json:"email"`
	Attendance model.Status `json:"attendance"`
	MarkedOn   time.Time    `json:"markedOn"`
}

// Report is an ephemeral summary; it is never persisted.
type Report struct {
	Stats       Stats     `json:"stats"`
	Students    []Row     `json:"students"`
	Period      string    `json:"period"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Generate summarizes roster at now. It fails with a precondition error when
// the roster is empty or nobody has been marked.
func Generate(roster []model.RosterEntry, period Period, now time.Time) (Report, error) {
	if len(roster) == 0 {
		return Report{}, ErrNoStudents
	}

	r := Report{
		Stats:       Stats{Total: len(roster)},
		Students:    make([]Row, 0, len(roster)),
		Period:      period.Label(),
		GeneratedAt: now,
	}
	for _, entry := range roster {
		if !entry.Marked() {
			continue
		}
		status := *entry.Attendance
		switch status {
		case model.StatusPresent:
			r.Stats.Present++
		case model.StatusAbsent:
			r.Stats.Absent++
		case model.StatusLate:
			r.Stats.Late++
		}
		markedOn := now
		if entry.AttendanceUpdatedAt != nil {
			markedOn = *entry.AttendanceUpdatedAt
		}
		r.Students = append(r.Students, Row{
			ID:         entry.ID,
			Username:   entry.Username,
			Email:      entry.Email,
			Attendance: status,
			MarkedOn:   markedOn,
		})
	}
	if len(r.Students) == 0 {
		return Report{}, ErrNoAttendance
	}
	return r, nil
}
