package store

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied on startup. attendance_day is the local calendar day of
// date; the unique index is what keeps one record per student per day.
const schema = `
CREATE TABLE IF NOT EXISTS teachers (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS students (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL,
	email         TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	grade         TEXT NOT NULL DEFAULT 'Grade 10',
	owner_id      TEXT NOT NULL REFERENCES teachers(id),
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT students_username_key UNIQUE (username),
	CONSTRAINT students_email_key UNIQUE (email)
);

CREATE INDEX IF NOT EXISTS idx_students_owner ON students(owner_id, created_at DESC);

CREATE TABLE IF NOT EXISTS attendance (
	id             TEXT PRIMARY KEY,
	student_id     TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
	status         TEXT NOT NULL CHECK (status IN ('present', 'absent', 'late')),
	date           TIMESTAMPTZ NOT NULL,
	attendance_day DATE NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT attendance_student_day_key UNIQUE (student_id, attendance_day)
);

CREATE INDEX IF NOT EXISTS idx_attendance_student_date ON attendance(student_id, date DESC);
`

// Migrate creates the tables when they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
