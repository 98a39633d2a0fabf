package attendance

import (
	"context"
	"fmt"
	"time"

	"rollbook/internal/apperr"
	"rollbook/internal/model"
)

const (
	DefaultHistoryDays = 30
	MaxHistoryDays     = 365
)

// Store is the persistence the engine needs. Both store.Postgres and
// store.Memory satisfy it.
type Store interface {
	GetStudent(ctx context.Context, ownerID, id string) (model.Student, error)
	ListStudents(ctx context.Context, ownerID string) ([]model.Student, error)
	UpsertDailyAttendance(ctx context.Context, studentID string, status model.Status, at time.Time, day model.DayWindow) (model.AttendanceRecord, bool, error)
	LatestAttendance(ctx context.Context, ownerID string) (map[string]model.AttendanceRecord, error)
	AttendanceHistory(ctx context.Context, studentID string, limit int) ([]model.AttendanceRecord, error)
}

// Recorder observes mark outcomes. metrics.Recorder implements it.
type Recorder interface {
	AttendanceMarked(status model.Status, created bool)
}

// MarkResult is the outcome of a mark call.
type MarkResult struct {
	Record  model.AttendanceRecord
	Created bool
	Student model.Student
}

// Message is the user facing summary, e.g. "Marked as LATE".
func (r MarkResult) Message() string {
	if r.Created {
		return "Marked as " + r.Record.Status.Upper()
	}
	return "Updated to " + r.Record.Status.Upper()
}

// History is a student's recent attendance, newest first.
type History struct {
	Student model.Student
	Records []model.AttendanceRecord
}

// Service enforces one attendance record per student per day and builds the
// roster view.
type Service struct {
	store    Store
	loc      *time.Location
	now      func() time.Time
	recorder Recorder
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// NewService creates a service. Calendar days are computed in loc; nil means local time.
func NewService(store Store, loc *time.Location, opts ...Option) *Service {
	if loc == nil {
		loc = time.Local
	}
	s := &Service{store: store, loc: loc, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mark records status as the student's attendance for today. A second mark
// on the same day updates the existing record in place.
func (s *Service) Mark(ctx context.Context, ownerID, studentID string, status model.Status) (MarkResult, error) {
	if !status.Valid() {
		return MarkResult{}, apperr.New(apperr.ErrInvalidInput, "Invalid status")
	}
	st, err := s.store.GetStudent(ctx, ownerID, studentID)
	if err != nil {
		return MarkResult{}, err
	}

	now := s.now().In(s.loc)
	rec, created, err := s.store.UpsertDailyAttendance(ctx, st.ID, status, now, model.DayOf(now, s.loc))
	if err != nil {
		return MarkResult{}, fmt.Errorf("upsert attendance: %w", err)
	}
	if s.recorder != nil {
		s.recorder.AttendanceMarked(status, created)
	}
	return MarkResult{Record: rec, Created: created, Student: st}, nil
}

// Roster returns the owner's students, newest first, each annotated with the
// status and date of its most recent attendance record.
func (s *Service) Roster(ctx context.Context, ownerID string) ([]model.RosterEntry, error) {
	students, err := s.store.ListStudents(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	latest, err := s.store.LatestAttendance(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("latest attendance: %w", err)
	}
	return Annotate(students, latest), nil
}

// Annotate joins students with their latest records, keeping student order.
func Annotate(students []model.Student, latest map[string]model.AttendanceRecord) []model.RosterEntry {
	roster := make([]model.RosterEntry, 0, len(students))
	for _, st := range students {
		entry := model.RosterEntry{Student: st}
		if rec, ok := latest[st.ID]; ok {
			status, date := rec.Status, rec.Date
			entry.Attendance = &status
			entry.AttendanceUpdatedAt = &date
		}
		roster = append(roster, entry)
	}
	return roster
}

// History returns up to days records of an owned student, newest first.
// days <= 0 selects DefaultHistoryDays.
func (s *Service) History(ctx context.Context, ownerID, studentID string, days int) (History, error) {
	if days <= 0 {
		days = DefaultHistoryDays
	}
	if days > MaxHistoryDays {
		days = MaxHistoryDays
	}
	st, err := s.store.GetStudent(ctx, ownerID, studentID)
	if err != nil {
		return History{}, err
	}
	records, err := s.store.AttendanceHistory(ctx, st.ID, days)
	if err != nil {
		return History{}, fmt.Errorf("attendance history: %w", err)
	}
	if records == nil {
		records = []model.AttendanceRecord{}
	}
	return History{Student: st, Records: records}, nil
}
