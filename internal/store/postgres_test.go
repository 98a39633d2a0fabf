package store_test

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollbook/internal/apperr"
	"rollbook/internal/model"
	"rollbook/internal/store"
)

func newMockPostgres(t *testing.T) (*store.Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return store.NewPostgres(db), mock
}

var upsertSQL = regexp.QuoteMeta(`ON CONFLICT (student_id, attendance_day) DO UPDATE`)

func TestPostgresUpsertReportsCreated(t *testing.T) {
	p, mock := newMockPostgres(t)
	ctx := context.Background()
	morning := time.Date(2024, 3, 9, 8, 0, 0, 0, time.UTC)
	noon := morning.Add(4 * time.Hour)
	day := model.DayOf(morning, time.UTC)
	cols := []string{"id", "student_id", "status", "date", "created_at", "updated_at", "created"}

	mock.ExpectQuery(upsertSQL).
		WithArgs(sqlmock.AnyArg(), "s1", "present", morning, "2024-03-09").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("a1", "s1", "present", morning, morning, morning, true))
	mock.ExpectQuery(upsertSQL).
		WithArgs(sqlmock.AnyArg(), "s1", "late", noon, "2024-03-09").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("a1", "s1", "late", noon, morning, noon, false))

	first, created, err := p.UpsertDailyAttendance(ctx, "s1", model.StatusPresent, morning, day)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.StatusPresent, first.Status)

	second, created, err := p.UpsertDailyAttendance(ctx, "s1", model.StatusLate, noon, day)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, model.StatusLate, second.Status)
	assert.Equal(t, noon, second.Date)
}

func TestPostgresUpsertPropagatesErrors(t *testing.T) {
	p, mock := newMockPostgres(t)
	at := time.Date(2024, 3, 9, 8, 0, 0, 0, time.UTC)
	boom := errors.New("connection reset")
	mock.ExpectQuery(upsertSQL).WillReturnError(boom)

	_, created, err := p.UpsertDailyAttendance(context.Background(), "s1", model.StatusAbsent, at, model.DayOf(at, time.UTC))
	assert.ErrorIs(t, err, boom)
	assert.False(t, created)
}

func TestPostgresLatestAttendance(t *testing.T) {
	p, mock := newMockPostgres(t)
	mon := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	tue := mon.AddDate(0, 0, 1)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT DISTINCT ON (a.student_id)`)).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "status", "date", "created_at", "updated_at"}).
			AddRow("a2", "s1", "late", tue, tue, tue).
			AddRow("a3", "s2", "absent", mon, mon, mon))

	latest, err := p.LatestAttendance(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "a2", latest["s1"].ID)
	assert.Equal(t, model.StatusLate, latest["s1"].Status)
	assert.Equal(t, model.StatusAbsent, latest["s2"].Status)
}

func TestPostgresUniqueViolationIsConflict(t *testing.T) {
	p, mock := newMockPostgres(t)
	ctx := context.Background()
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "students_email_key"}

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO students`)).WillReturnError(dup)
	_, err := p.CreateStudent(ctx, model.Student{Username: "alice", Email: "alice@school.test", OwnerID: "t1"})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, "Username or email exists", apperr.Message(err, ""))

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO teachers`)).WillReturnError(dup)
	_, err = p.CreateTeacher(ctx, model.Teacher{Name: "Ms. Rivera", Email: "rivera@school.test"})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	other := &pgconn.PgError{Code: "23503"}
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO students`)).WillReturnError(other)
	_, err = p.CreateStudent(ctx, model.Student{Username: "bob", Email: "bob@school.test", OwnerID: "ghost"})
	assert.False(t, errors.Is(err, apperr.ErrConflict))
}

func TestPostgresDeleteStudentCascades(t *testing.T) {
	p, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM students WHERE id = $1 AND owner_id = $2 FOR UPDATE`)).
		WithArgs("s1", "t1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("s1"))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM attendance WHERE student_id = $1`)).
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM students WHERE id = $1`)).
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, p.DeleteStudent(context.Background(), "t1", "s1"))
}

func TestPostgresDeleteStudentRollsBack(t *testing.T) {
	t.Run("foreign student", func(t *testing.T) {
		p, mock := newMockPostgres(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
			WithArgs("s1", "t2").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectRollback()

		err := p.DeleteStudent(context.Background(), "t2", "s1")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("attendance delete fails", func(t *testing.T) {
		p, mock := newMockPostgres(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("s1"))
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM attendance`)).
			WillReturnError(sql.ErrConnDone)
		mock.ExpectRollback()

		err := p.DeleteStudent(context.Background(), "t1", "s1")
		assert.ErrorIs(t, err, sql.ErrConnDone)
	})
}

func TestPostgresTeacherLookups(t *testing.T) {
	p, mock := newMockPostgres(t)
	ctx := context.Background()
	created := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM teachers WHERE email = $1`)).
		WithArgs("rivera@school.test").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "password_hash", "created_at"}).
			AddRow("t1", "Ms. Rivera", "rivera@school.test", "h", created))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM teachers WHERE id = $1`)).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "password_hash", "created_at"}))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE teachers SET password_hash = $2 WHERE id = $1`)).
		WithArgs("ghost", "h2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	got, err := p.TeacherByEmail(ctx, "rivera@school.test")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.ID)

	_, err = p.TeacherByID(ctx, "ghost")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, p.UpdateTeacherPassword(ctx, "ghost", "h2"), apperr.ErrNotFound)
}
