// Package handler exposes the HTTP API over gin.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"rollbook/internal/account"
	"rollbook/internal/apperr"
	"rollbook/internal/attendance"
	"rollbook/internal/auth"
	"rollbook/internal/httpmiddleware"
	"rollbook/internal/metrics"
	"rollbook/internal/student"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Healthy(ctx context.Context) bool
}

// Deps are the services the handlers call. Metrics, Gatherer, Checks and
// ResetLimiter are optional.
type Deps struct {
	Accounts   *account.Service
	Students   *student.Service
	Attendance *attendance.Service
	Issuer     *auth.Issuer
	Metrics    *metrics.Recorder
	Gatherer   prometheus.Gatherer
	Checks     map[string]HealthChecker
	Log        *zap.Logger
	Now        func() time.Time

	// ResetLimiter throttles reset-password attempts per client IP.
	ResetLimiter httpmiddleware.Limiter
}

type Handler struct {
	Deps
}

func New(d Deps) *Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Handler{Deps: d}
}

// Register mounts every route on r.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/healthz", h.Healthz)
	if h.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{})))
	}

	authGroup := r.Group("/api/auth")
	authGroup.POST("/signup", h.Signup)
	authGroup.POST("/login", h.Login)
	authGroup.POST("/forgot-password", h.ForgotPassword)
	if h.ResetLimiter != nil {
		authGroup.POST("/reset-password", httpmiddleware.RateLimit(h.ResetLimiter), h.ResetPassword)
	} else {
		authGroup.POST("/reset-password", h.ResetPassword)
	}

	api := r.Group("/api", auth.OwnerAuth(h.Issuer))
	api.GET("/students", h.ListStudents)
	api.POST("/students", h.CreateStudent)
	api.DELETE("/students/:id", h.DeleteStudent)
	api.POST("/students/:id/attendance", h.MarkAttendance)
	api.GET("/students/:id/attendance/history", h.AttendanceHistory)
	api.GET("/reports", h.Report)
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	body := gin.H{"status": "ok"}
	code := http.StatusOK
	for name, check := range h.Checks {
		up := check.Healthy(c.Request.Context())
		body[name] = up
		if !up {
			code = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(code, body)
}

// ---------- Responses ----------

func ok(c *gin.Context, code int, message string, data any) {
	body := gin.H{"success": true}
	if message != "" {
		body["message"] = message
	}
	if data != nil {
		body["data"] = data
	}
	c.JSON(code, body)
}

func fail(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, gin.H{"success": false, "message": message})
}

// respondError maps an apperr kind to a status. Anything unclassified is a
// 500 whose detail only goes to the log.
func (h *Handler) respondError(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrInvalidInput):
		code = http.StatusBadRequest
	case errors.Is(err, apperr.ErrUnauthorized):
		code = http.StatusUnauthorized
	case errors.Is(err, apperr.ErrForbidden):
		code = http.StatusForbidden
	case errors.Is(err, apperr.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict):
		code = http.StatusConflict
	case errors.Is(err, apperr.ErrPrecondition):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrTooManyRequests):
		code = http.StatusTooManyRequests
	}
	if code == http.StatusInternalServerError {
		h.Log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Error(err))
		_ = c.Error(err)
		fail(c, code, "Server error")
		return
	}
	fail(c, code, apperr.Message(err, http.StatusText(code)))
}
