package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"rollbook/internal/model"
)

// Recorder owns the application's Prometheus collectors.
type Recorder struct {
	marks    *prometheus.CounterVec
	reports  *prometheus.CounterVec
	emails   *prometheus.CounterVec
	requests *prometheus.HistogramVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		marks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollbook_attendance_marks_total",
			Help: "Attendance marks by status and whether a new daily record was created.",
		}, []string{"status", "outcome"}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollbook_reports_generated_total",
			Help: "Reports generated by period and format.",
		}, []string{"period", "format"}),
		emails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollbook_emails_total",
			Help: "Outgoing emails by result.",
		}, []string{"result"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rollbook_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status code.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "code"}),
	}
	reg.MustRegister(r.marks, r.reports, r.emails, r.requests)
	return r
}

// AttendanceMarked counts a mark call.
func (r *Recorder) AttendanceMarked(status model.Status, created bool) {
	outcome := "updated"
	if created {
		outcome = "created"
	}
	r.marks.WithLabelValues(string(status), outcome).Inc()
}

// ReportGenerated counts a generated report.
func (r *Recorder) ReportGenerated(period, format string) {
	r.reports.WithLabelValues(period, format).Inc()
}

// EmailSent counts a delivery attempt.
func (r *Recorder) EmailSent(err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	r.emails.WithLabelValues(result).Inc()
}

// GinMiddleware observes request latency labelled by the matched route.
func (r *Recorder) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		r.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
