package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"rollbook/internal/account"
	"rollbook/internal/attendance"
	"rollbook/internal/auth"
	"rollbook/internal/handler"
	"rollbook/internal/httpmiddleware"
	"rollbook/internal/mailer"
	"rollbook/internal/metrics"
	"rollbook/internal/model"
	"rollbook/internal/student"
	"rollbook/internal/store"
)

type outbox struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func (o *outbox) Email(_ context.Context, msg mailer.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return nil
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type api struct {
	t      *testing.T
	router *gin.Engine
	mail   *outbox
	token  string
}

var fixedNow = time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)

const resetAttempts = 5

func newAPI(t *testing.T) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mem := store.NewMemory()
	issuer := auth.NewIssuer("test-secret", "rollbook", time.Hour)
	mail := &outbox{}
	h := handler.New(handler.Deps{
		Accounts: account.NewService(mem, issuer, account.NewMemoryOTPs(),
			httpmiddleware.NewMemoryWindow(3, 15*time.Minute), mail,
			account.Options{BcryptCost: bcrypt.MinCost}),
		Students:   student.NewService(mem, bcrypt.MinCost),
		Attendance: attendance.NewService(mem, time.UTC, attendance.WithClock(func() time.Time { return fixedNow })),
		Issuer:     issuer,
		Metrics:    metrics.New(prometheus.NewRegistry()),
		Now:        func() time.Time { return fixedNow },

		ResetLimiter: httpmiddleware.NewMemoryWindow(resetAttempts, 15*time.Minute),
	})
	r := gin.New()
	h.Register(r)
	return &api{t: t, router: r, mail: mail}
}

func (a *api) do(method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func (a *api) login() {
	a.t.Helper()
	rec, _ := a.do(http.MethodPost, "/api/auth/signup", gin.H{"name": "Ms. Rivera", "email": "rivera@school.test", "password": "secret1"})
	require.Equal(a.t, http.StatusCreated, rec.Code)

	rec, env := a.do(http.MethodPost, "/api/auth/login", gin.H{"email": "rivera@school.test", "password": "secret1"})
	require.Equal(a.t, http.StatusOK, rec.Code)
	var sess account.Session
	require.NoError(a.t, json.Unmarshal(env.Data, &sess))
	a.token = sess.Token
}

func (a *api) addStudent(username string) model.Student {
	a.t.Helper()
	rec, env := a.do(http.MethodPost, "/api/students", gin.H{"username": username, "email": username + "@school.test", "password": "secret1"})
	require.Equal(a.t, http.StatusCreated, rec.Code, env.Message)
	var st model.Student
	require.NoError(a.t, json.Unmarshal(env.Data, &st))
	return st
}

func TestAuthRequired(t *testing.T) {
	a := newAPI(t)

	rec, env := a.do(http.MethodGet, "/api/students", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "No token provided", env.Message)

	a.token = "garbage"
	rec, env = a.do(http.MethodGet, "/api/students", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Invalid token", env.Message)
}

func TestLoginWrongPassword(t *testing.T) {
	a := newAPI(t)
	a.login()
	a.token = ""
	rec, env := a.do(http.MethodPost, "/api/auth/login", gin.H{"email": "rivera@school.test", "password": "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "Invalid email or password", env.Message)
}

func TestStudentLifecycle(t *testing.T) {
	a := newAPI(t)
	a.login()

	rec, env := a.do(http.MethodGet, "/api/students", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, string(env.Data))

	st := a.addStudent("alice")
	assert.Equal(t, model.Grade10, st.Grade)

	rec, env = a.do(http.MethodPost, "/api/students", gin.H{"username": "ALICE", "email": "other@school.test", "password": "secret1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Username or email exists", env.Message)

	rec, env = a.do(http.MethodPost, "/api/students", gin.H{"username": "bob", "email": "bob@school.test", "password": "123"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "password must be at least 6 characters", env.Message)

	rec, _ = a.do(http.MethodDelete, "/api/students/"+st.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = a.do(http.MethodDelete, "/api/students/"+st.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Student not found", env.Message)
}

func TestMarkAttendance(t *testing.T) {
	a := newAPI(t)
	a.login()
	st := a.addStudent("alice")
	path := "/api/students/" + st.ID + "/attendance"

	rec, env := a.do(http.MethodPost, path, gin.H{"status": "present"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Marked as PRESENT", env.Message)

	rec, env = a.do(http.MethodPost, path, gin.H{"status": "late"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Updated to LATE", env.Message)

	rec, env = a.do(http.MethodPost, path, gin.H{"status": "sick"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid status", env.Message)

	rec, env = a.do(http.MethodPost, "/api/students/missing/attendance", gin.H{"status": "present"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Student not found", env.Message)

	rec, env = a.do(http.MethodGet, "/api/students", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var roster []model.RosterEntry
	require.NoError(t, json.Unmarshal(env.Data, &roster))
	require.Len(t, roster, 1)
	require.NotNil(t, roster[0].Attendance)
	assert.Equal(t, model.StatusLate, *roster[0].Attendance)
}

func TestAttendanceHistory(t *testing.T) {
	a := newAPI(t)
	a.login()
	st := a.addStudent("alice")
	a.do(http.MethodPost, "/api/students/"+st.ID+"/attendance", gin.H{"status": "absent"})

	rec, env := a.do(http.MethodGet, "/api/students/"+st.ID+"/attendance/history?days=7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Student struct {
			Username string `json:"username"`
			Email    string `json:"email"`
		} `json:"student"`
		Records []model.AttendanceRecord `json:"records"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, "alice", body.Student.Username)
	require.Len(t, body.Records, 1)
	assert.Equal(t, model.StatusAbsent, body.Records[0].Status)

	for _, days := range []string{"0", "-3", "abc"} {
		rec, env = a.do(http.MethodGet, "/api/students/"+st.ID+"/attendance/history?days="+days, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, days)
		assert.Equal(t, "days must be a positive integer", env.Message)
	}
}

func TestReport(t *testing.T) {
	a := newAPI(t)
	a.login()

	rec, env := a.do(http.MethodGet, "/api/reports", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "No students found. Add students first!", env.Message)

	alice := a.addStudent("alice")
	a.addStudent("bob")
	rec, _ = a.do(http.MethodGet, "/api/reports", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	a.do(http.MethodPost, "/api/students/"+alice.ID+"/attendance", gin.H{"status": "present"})
	rec, env = a.do(http.MethodGet, "/api/reports?period=weekly", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rep struct {
		Stats struct {
			Total, Present, Absent, Late int
		} `json:"stats"`
		Period string `json:"period"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &rep))
	assert.Equal(t, 2, rep.Stats.Total)
	assert.Equal(t, 1, rep.Stats.Present)
	assert.Equal(t, "Weekly", rep.Period)

	rec, _ = a.do(http.MethodGet, "/api/reports?period=weekly&format=xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attendance-report-weekly-2024-03-04.xlsx")
	assert.NotZero(t, rec.Body.Len())

	rec, _ = a.do(http.MethodGet, "/api/reports?period=yearly", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = a.do(http.MethodGet, "/api/reports?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestForgotAndResetPassword(t *testing.T) {
	a := newAPI(t)
	a.login()
	a.token = ""

	rec, env := a.do(http.MethodPost, "/api/auth/forgot-password", gin.H{"email": "ghost@school.test"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	rec, _ = a.do(http.MethodPost, "/api/auth/forgot-password", gin.H{"email": "rivera@school.test"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, a.mail.sent, 1)

	rec, env = a.do(http.MethodPost, "/api/auth/reset-password", gin.H{"token": "000000x", "newPassword": "brand-new"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid or expired OTP", env.Message)

	for i := 0; i < 2; i++ {
		a.do(http.MethodPost, "/api/auth/forgot-password", gin.H{"email": "rivera@school.test"})
	}
	rec, _ = a.do(http.MethodPost, "/api/auth/forgot-password", gin.H{"email": "rivera@school.test"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestResetPasswordIsRateLimitedPerIP(t *testing.T) {
	a := newAPI(t)
	for i := 0; i < resetAttempts; i++ {
		rec, env := a.do(http.MethodPost, "/api/auth/reset-password", gin.H{"token": "123456", "newPassword": "brand-new"})
		require.Equal(t, http.StatusBadRequest, rec.Code, "attempt %d", i+1)
		assert.Equal(t, "Invalid or expired OTP", env.Message)
	}

	rec, env := a.do(http.MethodPost, "/api/auth/reset-password", gin.H{"token": "654321", "newPassword": "brand-new"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.False(t, env.Success)

	// Other auth routes share no budget with reset-password.
	rec, _ = a.do(http.MethodPost, "/api/auth/signup", gin.H{"name": "Mr. Okafor", "email": "okafor@school.test", "password": "secret1"})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

type brokenStore struct{ attendance.Store }

func (brokenStore) ListStudents(context.Context, string) ([]model.Student, error) {
	return nil, errors.New("connection refused")
}

func TestInternalErrorsAreHidden(t *testing.T) {
	gin.SetMode(gin.TestMode)
	issuer := auth.NewIssuer("test-secret", "rollbook", time.Hour)
	h := handler.New(handler.Deps{
		Attendance: attendance.NewService(brokenStore{}, time.UTC),
		Issuer:     issuer,
	})
	r := gin.New()
	h.Register(r)

	tok, err := issuer.Issue("t1", "t@school.test")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/students", nil)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"message":"Server error"}`, rec.Body.String())
}

type checker bool

func (c checker) Healthy(context.Context) bool { return bool(c) }

func TestHealthz(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := handler.New(handler.Deps{Checks: map[string]handler.HealthChecker{"db": checker(true), "redis": checker(false)}})
	r := gin.New()
	h.Register(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"degraded","db":true,"redis":false}`, rec.Body.String())
}
