package handler

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"rollbook/internal/auth"
	"rollbook/internal/model"
	"rollbook/internal/report"
	"rollbook/internal/student"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ---------- Students ----------

func (h *Handler) ListStudents(c *gin.Context) {
	roster, err := h.Attendance.Roster(c.Request.Context(), auth.OwnerID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "", roster)
}

type createStudentRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Grade    string `json:"grade"`
}

func (h *Handler) CreateStudent(c *gin.Context) {
	var req createStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, badBody)
		return
	}
	st, err := h.Students.Create(c.Request.Context(), auth.OwnerID(c), student.CreateInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Grade:    req.Grade,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusCreated, "Student added", st)
}

func (h *Handler) DeleteStudent(c *gin.Context) {
	if _, err := h.Students.Delete(c.Request.Context(), auth.OwnerID(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "Student deleted", nil)
}

// ---------- Attendance ----------

func (h *Handler) MarkAttendance(c *gin.Context) {
	var req struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, badBody)
		return
	}
	res, err := h.Attendance.Mark(c.Request.Context(), auth.OwnerID(c), c.Param("id"), model.Status(req.Status))
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, res.Message(), res.Record)
}

type historyStudent struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

func (h *Handler) AttendanceHistory(c *gin.Context) {
	days := 0
	if v := c.Query("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			fail(c, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = parsed
	}
	hist, err := h.Attendance.History(c.Request.Context(), auth.OwnerID(c), c.Param("id"), days)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "", gin.H{
		"student": historyStudent{Username: hist.Student.Username, Email: hist.Student.Email},
		"records": hist.Records,
	})
}

// ---------- Reports ----------

func (h *Handler) Report(c *gin.Context) {
	period, err := report.ParsePeriod(c.Query("period"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	format := c.DefaultQuery("format", "json")
	if format != "json" && format != "xlsx" {
		fail(c, http.StatusBadRequest, "format must be json or xlsx")
		return
	}

	roster, err := h.Attendance.Roster(c.Request.Context(), auth.OwnerID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	rep, err := report.Generate(roster, period, h.Now())
	if err != nil {
		h.respondError(c, err)
		return
	}
	if h.Metrics != nil {
		h.Metrics.ReportGenerated(string(period), format)
	}

	if format == "json" {
		ok(c, http.StatusOK, "", rep)
		return
	}
	var buf bytes.Buffer
	if err := report.WriteXLSX(&buf, rep); err != nil {
		h.respondError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+report.Filename(rep)+`"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
