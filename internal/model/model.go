package model

import (
	"strings"
	"time"
)

// Status is the attendance state recorded for a student on a given day.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusLate    Status = "late"
)

// Statuses lists every accepted attendance status.
var Statuses = []Status{StatusPresent, StatusAbsent, StatusLate}

// Valid reports whether s is one of the accepted statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate:
		return true
	}
	return false
}

// Upper returns the status as shown in user facing messages.
func (s Status) Upper() string { return strings.ToUpper(string(s)) }

// MinPasswordLen is the shortest password accepted for teachers and students.
const MinPasswordLen = 6

// Grade is the class level of a student.
type Grade string

const (
	Grade7  Grade = "Grade 7"
	Grade8  Grade = "Grade 8"
	Grade9  Grade = "Grade 9"
	Grade10 Grade = "Grade 10"
	Grade11 Grade = "Grade 11"
	Grade12 Grade = "Grade 12"

	DefaultGrade = Grade10
)

// Grades lists every accepted grade.
var Grades = []Grade{Grade7, Grade8, Grade9, Grade10, Grade11, Grade12}

// Valid reports whether g is one of the accepted grades.
func (g Grade) Valid() bool {
	for _, v := range Grades {
		if g == v {
			return true
		}
	}
	return false
}

// Teacher owns a roster of students.
type Teacher struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Student is a roster entry owned by exactly one teacher.
type Student struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Grade        Grade     `json:"grade"`
	OwnerID      string    `json:"ownerId"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// AttendanceRecord is one marking of a student. At most one record exists
// per student per calendar day.
type AttendanceRecord struct {
	ID        string    `json:"id"`
	StudentID string    `json:"studentId"`
	Status    Status    `json:"status"`
	Date      time.Time `json:"date"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RosterEntry is a student annotated with its latest known attendance.
// Attendance and AttendanceUpdatedAt are nil when the student was never marked.
type RosterEntry struct {
	Student
	Attendance          *Status    `json:"attendance"`
	AttendanceUpdatedAt *time.Time `json:"attendanceUpdatedAt"`
}

// Marked reports whether the entry carries an attendance status.
func (e RosterEntry) Marked() bool { return e.Attendance != nil }
