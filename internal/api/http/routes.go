package http

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-courses/internal/access"
	auth "github.com/mind-engage/mindengage-courses/internal/auth/middleware"
	"github.com/mind-engage/mindengage-courses/internal/catalog"
	"github.com/mind-engage/mindengage-courses/internal/exam"
	"github.com/mind-engage/mindengage-courses/internal/gradesync"
	"github.com/mind-engage/mindengage-courses/internal/metrics"
	"github.com/mind-engage/mindengage-courses/internal/progress"
	"github.com/mind-engage/mindengage-courses/internal/quiz"
	"github.com/mind-engage/mindengage-courses/internal/rbac"
)

// Deps is everything the routes need. Gradebook is nil when passback is
// disabled.
type Deps struct {
	DB                 *sql.DB
	Auth               *auth.AuthService
	EnableLocalAuth    bool
	AllowClaimFallback bool

	Catalog   *catalog.SQLStore
	Access    *access.Gate
	Progress  *progress.Gate
	Quiz      *quiz.Service
	Exam      *exam.Service
	Gradebook *gradesync.Syncer
}

// Mount registers the public ops endpoints and the authenticated API on r.
func Mount(r chi.Router, d Deps) {
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := d.DB.PingContext(ctx); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", metrics.Handler())

	if d.EnableLocalAuth {
		r.Post("/auth/login", auth.LoginHandler(d.Auth, d.DB))
	}

	// Protected API (JWT -> subject+role in context -> role from DB -> RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(d.Auth))
		pr.Use(auth.AttachRoleFromDB(d.DB, d.AllowClaimFallback))

		graded := access.CapGradedAttempt

		// Access tier
		pr.With(rbac.Require("access:self")).Get("/me/access", MyAccessHandler(d.Access))
		pr.With(rbac.Require("access:self")).Post("/me/trial", StartTrialHandler(d.Access))

		// Catalog
		pr.Get("/courses/{courseID}", GetCourseHandler(d.Catalog))
		pr.Get("/courses/{courseID}/exams", ListCourseExamsHandler(d.Catalog))
		pr.With(rbac.Require("course:import")).Put("/courses/{courseID}", ImportCourseHandler(d.Catalog))

		// Progression
		pr.With(rbac.Require("progress:self")).Get("/courses/{courseID}/outline", OutlineHandler(d.Progress))
		pr.With(rbac.Require("progress:self")).Get("/courses/{courseID}/chapters/{position}/access", ChapterAccessHandler(d.Progress))
		pr.With(rbac.Require("progress:self")).Post("/chapters/{chapterID}/complete", MarkChapterCompleteHandler(d.Progress))

		// Quizzes
		pr.With(rbac.Require("quiz:view")).Get("/quizzes/{quizID}", GetQuizHandler(d.Catalog, d.Quiz))
		pr.With(rbac.Require("quiz:view")).Get("/quizzes/{quizID}/attempts", ListQuizAttemptsHandler(d.Quiz))
		pr.With(rbac.Require("quiz:view")).Get("/quiz-attempts/{attemptID}", GetQuizAttemptHandler(d.Quiz))
		pr.Group(func(g chi.Router) {
			g.Use(rbac.Require("quiz:attempt"), RequireCapability(d.Access, graded))
			g.Post("/quizzes/{quizID}/attempts", StartQuizAttemptHandler(d.Quiz))
			g.Post("/quiz-attempts/{attemptID}/submit", SubmitQuizAttemptHandler(d.Quiz))
		})

		// Exams
		pr.With(rbac.Require("exam:view")).Get("/exams/{examID}", GetExamHandler(d.Catalog))
		pr.With(rbac.Require("exam:stats")).Get("/exams/{examID}/stats", ExamStatsHandler(d.Exam))
		pr.With(rbac.Require("exam:view")).Get("/exam-attempts", ListExamAttemptsHandler(d.Exam))
		pr.With(rbac.Require("exam:view")).Get("/exam-attempts/{attemptID}", GetExamAttemptHandler(d.Exam))
		pr.Group(func(g chi.Router) {
			g.Use(rbac.Require("exam:attempt"), RequireCapability(d.Access, graded))
			g.Post("/exams/{examID}/attempts", StartExamAttemptHandler(d.Exam))
			g.Put("/exam-attempts/{attemptID}/answers/{questionID}", SubmitExamAnswerHandler(d.Exam))
			g.Post("/exam-attempts/{attemptID}/complete", CompleteExamAttemptHandler(d.Exam))
		})

		// Users (teacher/admin)
		pr.With(rbac.Require("users:bulk_upsert")).Post("/users/bulk", BulkUpsertUsersHandler(d.DB))
		pr.With(rbac.Require("users:list")).Get("/users", ListUsersHandler(d.DB))
		pr.With(rbac.Require("user:change_password")).Post("/users/change-password", ChangePasswordHandler(d.DB))
		pr.With(rbac.Require("access:admin")).Patch("/admin/users/{userID}/access", AdminUpdateAccessHandler(d.Access))
		pr.With(rbac.Require("users:manage")).Patch("/admin/users/{userID}/role", AdminUpdateUserRoleHandler(d.DB))
		pr.With(rbac.Require("users:manage")).Get("/admin/users/{userID}/export", AdminExportUserHandler(d.DB))
		pr.With(rbac.Require("users:manage")).Delete("/admin/users/{userID}", AdminDeleteUserHandler(d.DB))
		pr.With(rbac.Require("events:read")).Get("/admin/audit", AdminAuditSearchHandler(d.DB))

		// Outbox and gradebook
		pr.With(rbac.Require("events:read")).Get("/events", EventsSinceHandler(d.DB))
		if d.Gradebook != nil {
			pr.With(rbac.Require("gradebook:resync")).Post("/gradebook/resync", GradebookResyncHandler(d.Gradebook))
			pr.With(rbac.Require("gradebook:resync")).Get("/gradebook/status/{attemptID}", GradebookStatusHandler(d.Gradebook))
		}
	})
}
