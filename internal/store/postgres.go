package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"rollbook/internal/apperr"
	"rollbook/internal/model"
)

const uniqueViolation = "23505"

// Postgres persists teachers, students and attendance in Postgres.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a store over an open pool.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// -------- Teachers --------

// CreateTeacher inserts a teacher account.
func (p *Postgres) CreateTeacher(ctx context.Context, t model.Teacher) (model.Teacher, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	row := p.db.QueryRowContext(ctx, `
		INSERT INTO teachers (id, name, email, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, t.ID, t.Name, t.Email, t.PasswordHash)
	if err := row.Scan(&t.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return model.Teacher{}, apperr.New(apperr.ErrConflict, "User already exists with this email")
		}
		return model.Teacher{}, err
	}
	return t, nil
}

// TeacherByEmail looks a teacher up by normalized email.
func (p *Postgres) TeacherByEmail(ctx context.Context, email string) (model.Teacher, error) {
	return p.scanTeacher(p.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, created_at FROM teachers WHERE email = $1
	`, email))
}

// TeacherByID looks a teacher up by id.
func (p *Postgres) TeacherByID(ctx context.Context, id string) (model.Teacher, error) {
	return p.scanTeacher(p.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, created_at FROM teachers WHERE id = $1
	`, id))
}

// UpdateTeacherPassword replaces the stored password hash.
func (p *Postgres) UpdateTeacherPassword(ctx context.Context, id, hash string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE teachers SET password_hash = $2 WHERE id = $1`, id, hash)
	if err != nil {
		return err
	}
	return expectAffected(res, "User not found")
}

func (p *Postgres) scanTeacher(row *sql.Row) (model.Teacher, error) {
	var t model.Teacher
	if err := row.Scan(&t.ID, &t.Name, &t.Email, &t.PasswordHash, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Teacher{}, apperr.New(apperr.ErrNotFound, "User not found")
		}
		return model.Teacher{}, err
	}
	return t, nil
}

// -------- Students --------

// CreateStudent inserts a student. Username and email must already be normalized.
func (p *Postgres) CreateStudent(ctx context.Context, st model.Student) (model.Student, error) {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	row := p.db.QueryRowContext(ctx, `
		INSERT INTO students (id, username, email, password_hash, grade, owner_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, st.ID, st.Username, st.Email, st.PasswordHash, st.Grade, st.OwnerID)
	if err := row.Scan(&st.CreatedAt, &st.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return model.Student{}, apperr.New(apperr.ErrConflict, "Username or email exists")
		}
		return model.Student{}, err
	}
	return st, nil
}

// ListStudents returns the owner's students, newest first.
func (p *Postgres) ListStudents(ctx context.Context, ownerID string) ([]model.Student, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, username, email, password_hash, grade, owner_id, created_at, updated_at
		FROM students
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []model.Student
	for rows.Next() {
		var st model.Student
		if err := rows.Scan(&st.ID, &st.Username, &st.Email, &st.PasswordHash, &st.Grade, &st.OwnerID, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, err
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

// GetStudent returns a student only when it belongs to ownerID. Missing and
// foreign students are indistinguishable to the caller.
func (p *Postgres) GetStudent(ctx context.Context, ownerID, id string) (model.Student, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, grade, owner_id, created_at, updated_at
		FROM students
		WHERE id = $1 AND owner_id = $2
	`, id, ownerID)
	var st model.Student
	if err := row.Scan(&st.ID, &st.Username, &st.Email, &st.PasswordHash, &st.Grade, &st.OwnerID, &st.CreatedAt, &st.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Student{}, apperr.New(apperr.ErrNotFound, "Student not found")
		}
		return model.Student{}, err
	}
	return st, nil
}

// DeleteStudent removes a student and all of its attendance in one transaction.
func (p *Postgres) DeleteStudent(ctx context.Context, ownerID, id string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var found string
	err = tx.QueryRowContext(ctx, `SELECT id FROM students WHERE id = $1 AND owner_id = $2 FOR UPDATE`, id, ownerID).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.New(apperr.ErrNotFound, "Student not found")
	}
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM attendance WHERE student_id = $1`, id); err != nil {
		return fmt.Errorf("delete attendance: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	return tx.Commit()
}

// -------- Attendance --------

// UpsertDailyAttendance inserts or updates the student's record for day in
// one statement. created is false when an existing record was updated.
func (p *Postgres) UpsertDailyAttendance(ctx context.Context, studentID string, status model.Status, at time.Time, day model.DayWindow) (model.AttendanceRecord, bool, error) {
	rec := model.AttendanceRecord{}
	var created bool
	row := p.db.QueryRowContext(ctx, `
		INSERT INTO attendance (id, student_id, status, date, attendance_day)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (student_id, attendance_day) DO UPDATE
		SET status = EXCLUDED.status, date = EXCLUDED.date, updated_at = NOW()
		RETURNING id, student_id, status, date, created_at, updated_at, (xmax = 0)
	`, uuid.NewString(), studentID, status, at, day.Key())
	if err := row.Scan(&rec.ID, &rec.StudentID, &rec.Status, &rec.Date, &rec.CreatedAt, &rec.UpdatedAt, &created); err != nil {
		return model.AttendanceRecord{}, false, err
	}
	return rec, created, nil
}

// LatestAttendance returns, per student of ownerID, the record with the
// greatest date. Students never marked are absent from the map.
func (p *Postgres) LatestAttendance(ctx context.Context, ownerID string) (map[string]model.AttendanceRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT DISTINCT ON (a.student_id)
			a.id, a.student_id, a.status, a.date, a.created_at, a.updated_at
		FROM attendance a
		JOIN students s ON s.id = a.student_id
		WHERE s.owner_id = $1
		ORDER BY a.student_id, a.date DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	latest := make(map[string]model.AttendanceRecord)
	for rows.Next() {
		var rec model.AttendanceRecord
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.Status, &rec.Date, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		latest[rec.StudentID] = rec
	}
	return latest, rows.Err()
}

// AttendanceHistory returns up to limit records of a student, newest first.
func (p *Postgres) AttendanceHistory(ctx context.Context, studentID string, limit int) ([]model.AttendanceRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, student_id, status, date, created_at, updated_at
		FROM attendance
		WHERE student_id = $1
		ORDER BY date DESC
		LIMIT $2
	`, studentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.AttendanceRecord
	for rows.Next() {
		var rec model.AttendanceRecord
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.Status, &rec.Date, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func expectAffected(res sql.Result, notFound string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.New(apperr.ErrNotFound, notFound)
	}
	return nil
}
