package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"rollbook/internal/apperr"
	"rollbook/internal/model"
)

// Memory is a mutex-guarded store for dev and tests. Every operation holds
// the lock for its whole read-modify-write, so the daily upsert is atomic.
type Memory struct {
	mu         sync.Mutex
	seq        int64
	now        func() time.Time
	teachers   map[string]model.Teacher
	students   map[string]memStudent
	attendance map[string][]model.AttendanceRecord // by student id
}

type memStudent struct {
	model.Student
	seq int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		now:        time.Now,
		teachers:   make(map[string]model.Teacher),
		students:   make(map[string]memStudent),
		attendance: make(map[string][]model.AttendanceRecord),
	}
}

// -------- Teachers --------

func (m *Memory) CreateTeacher(_ context.Context, t model.Teacher) (model.Teacher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.teachers {
		if existing.Email == t.Email {
			return model.Teacher{}, apperr.New(apperr.ErrConflict, "User already exists with this email")
		}
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = m.now().UTC()
	m.teachers[t.ID] = t
	return t, nil
}

func (m *Memory) TeacherByEmail(_ context.Context, email string) (model.Teacher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.teachers {
		if t.Email == email {
			return t, nil
		}
	}
	return model.Teacher{}, apperr.New(apperr.ErrNotFound, "User not found")
}

func (m *Memory) TeacherByID(_ context.Context, id string) (model.Teacher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teachers[id]
	if !ok {
		return model.Teacher{}, apperr.New(apperr.ErrNotFound, "User not found")
	}
	return t, nil
}

func (m *Memory) UpdateTeacherPassword(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teachers[id]
	if !ok {
		return apperr.New(apperr.ErrNotFound, "User not found")
	}
	t.PasswordHash = hash
	m.teachers[id] = t
	return nil
}

// -------- Students --------

func (m *Memory) CreateStudent(_ context.Context, st model.Student) (model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.students {
		if existing.Username == st.Username || existing.Email == st.Email {
			return model.Student{}, apperr.New(apperr.ErrConflict, "Username or email exists")
		}
	}
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	now := m.now().UTC()
	st.CreatedAt, st.UpdatedAt = now, now
	m.seq++
	m.students[st.ID] = memStudent{Student: st, seq: m.seq}
	return st, nil
}

func (m *Memory) ListStudents(_ context.Context, ownerID string) ([]model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	owned := make([]memStudent, 0, len(m.students))
	for _, st := range m.students {
		if st.OwnerID == ownerID {
			owned = append(owned, st)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		if !owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].CreatedAt.After(owned[j].CreatedAt)
		}
		return owned[i].seq > owned[j].seq
	})
	out := make([]model.Student, len(owned))
	for i, st := range owned {
		out[i] = st.Student
	}
	return out, nil
}

func (m *Memory) GetStudent(_ context.Context, ownerID, id string) (model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.students[id]
	if !ok || st.OwnerID != ownerID {
		return model.Student{}, apperr.New(apperr.ErrNotFound, "Student not found")
	}
	return st.Student, nil
}

func (m *Memory) DeleteStudent(_ context.Context, ownerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.students[id]
	if !ok || st.OwnerID != ownerID {
		return apperr.New(apperr.ErrNotFound, "Student not found")
	}
	delete(m.students, id)
	delete(m.attendance, id)
	return nil
}

// -------- Attendance --------

func (m *Memory) UpsertDailyAttendance(_ context.Context, studentID string, status model.Status, at time.Time, day model.DayWindow) (model.AttendanceRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := m.attendance[studentID]
	key := day.Key()
	for i, rec := range records {
		if model.DayOf(rec.Date, day.Start.Location()).Key() == key {
			rec.Status = status
			rec.Date = at
			rec.UpdatedAt = at
			records[i] = rec
			return rec, false, nil
		}
	}
	rec := model.AttendanceRecord{
		ID:        uuid.NewString(),
		StudentID: studentID,
		Status:    status,
		Date:      at,
		CreatedAt: at,
		UpdatedAt: at,
	}
	m.attendance[studentID] = append(records, rec)
	return rec, true, nil
}

func (m *Memory) LatestAttendance(_ context.Context, ownerID string) (map[string]model.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	latest := make(map[string]model.AttendanceRecord)
	for studentID, records := range m.attendance {
		st, ok := m.students[studentID]
		if !ok || st.OwnerID != ownerID {
			continue
		}
		for _, rec := range records {
			if cur, ok := latest[studentID]; !ok || rec.Date.After(cur.Date) {
				latest[studentID] = rec
			}
		}
	}
	return latest, nil
}

func (m *Memory) AttendanceHistory(_ context.Context, studentID string, limit int) ([]model.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := append([]model.AttendanceRecord(nil), m.attendance[studentID]...)
	sort.Slice(records, func(i, j int) bool { return records[i].Date.After(records[j].Date) })
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// PutAttendance stores a record as is, bypassing the daily upsert. Used to
// seed history.
func (m *Memory) PutAttendance(rec model.AttendanceRecord) model.AttendanceRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = rec.Date
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.Date
	}
	m.attendance[rec.StudentID] = append(m.attendance[rec.StudentID], rec)
	return rec
}

// CountAttendance returns how many records a student has.
func (m *Memory) CountAttendance(studentID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.attendance[studentID])
}

// SetClock replaces the clock used for created_at stamps.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}
