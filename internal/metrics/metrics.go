// Package metrics holds the Prometheus collectors for attempts, logins,
// gradebook passback and HTTP handling.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mind-engage/mindengage-courses/internal/errs"
)

const (
	KindQuiz = "quiz"
	KindExam = "exam"
)

var (
	attemptsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessment_attempts_started_total",
			Help: "Total number of attempts started",
		},
		[]string{"kind"},
	)

	attemptsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessment_attempts_completed_total",
			Help: "Total number of attempts completed, by outcome",
		},
		[]string{"kind", "outcome"},
	)

	attemptsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessment_attempt_rejections_total",
			Help: "Attempt operations refused with an expected error code",
		},
		[]string{"kind", "code"},
	)

	attemptScore = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assessment_attempt_score_percent",
			Help:    "Distribution of completed attempt scores",
			Buckets: prometheus.LinearBuckets(10, 10, 10),
		},
		[]string{"kind"},
	)

	loginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Total number of login attempts",
		},
		[]string{"status"},
	)

	gradeSyncs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gradebook_sync_total",
			Help: "Gradebook score pushes, by result",
		},
		[]string{"status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Time spent serving HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

func AttemptStarted(kind string) { attemptsStarted.WithLabelValues(kind).Inc() }

func AttemptCompleted(kind string, score int, passed bool) {
	outcome := "failed"
	if passed {
		outcome = "passed"
	}
	attemptsCompleted.WithLabelValues(kind, outcome).Inc()
	attemptScore.WithLabelValues(kind).Observe(float64(score))
}

// AttemptRejected counts expected failures by their stable code.
// Fatal errors are counted under "internal".
func AttemptRejected(kind string, err error) {
	if err == nil {
		return
	}
	attemptsRejected.WithLabelValues(kind, errs.CodeOf(err)).Inc()
}

func Login(ok bool) {
	if ok {
		loginAttempts.WithLabelValues("success").Inc()
		return
	}
	loginAttempts.WithLabelValues("failure").Inc()
}

func GradeSync(ok bool) {
	if ok {
		gradeSyncs.WithLabelValues("ok").Inc()
		return
	}
	gradeSyncs.WithLabelValues("failed").Inc()
}

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }

// Middleware records request latency labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}
