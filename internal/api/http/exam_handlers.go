package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-courses/internal/catalog"
	"github.com/mind-engage/mindengage-courses/internal/exam"
	"github.com/mind-engage/mindengage-courses/internal/rbac"
)

var checker = rbac.NewChecker(nil)

// GET /exams/{examID}
func GetExamHandler(cat *catalog.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := cat.GetExam(r.Context(), chi.URLParam(r, "examID"))
		if err != nil {
			writeErr(w, r, err)
			return
		}
		if !checker.Has(rbac.RoleFromContext(r.Context()), "course:import") {
			if !e.IsPublished {
				writeErr(w, r, exam.ErrExamNotPublished)
				return
			}
			e.Questions = catalog.StudentView(e.Questions)
		}
		writeJSON(w, http.StatusOK, e)
	}
}

// GET /courses/{courseID}/exams
func ListCourseExamsHandler(cat *catalog.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authoring := checker.Has(rbac.RoleFromContext(r.Context()), "course:import")
		list, err := cat.ListExams(r.Context(), chi.URLParam(r, "courseID"), !authoring)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		if list == nil {
			list = []catalog.Exam{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// POST /exams/{examID}/attempts
func StartExamAttemptHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, ok := subject(w, r)
		if !ok {
			return
		}
		a, err := svc.StartAttempt(r.Context(), sub, chi.URLParam(r, "examID"))
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, a)
	}
}

// PUT /exam-attempts/{attemptID}/answers/{questionID}  { "selected_option_id": "..." | null }
func SubmitExamAnswerHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, ok := subject(w, r)
		if !ok {
			return
		}
		var req struct {
			SelectedOptionID *string `json:"selected_option_id"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		qa, err := svc.SubmitAnswer(r.Context(), sub, chi.URLParam(r, "attemptID"), chi.URLParam(r, "questionID"), req.SelectedOptionID)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, qa)
	}
}

// POST /exam-attempts/{attemptID}/complete
func CompleteExamAttemptHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, ok := subject(w, r)
		if !ok {
			return
		}
		res, err := svc.CompleteAttempt(r.Context(), sub, chi.URLParam(r, "attemptID"))
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// GET /exam-attempts/{attemptID}
func GetExamAttemptHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, ok := subject(w, r)
		if !ok {
			return
		}
		a, err := svc.GetAttempt(r.Context(), sub, chi.URLParam(r, "attemptID"))
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// GET /exam-attempts?exam_id=...&user_id=...&status=...&limit=50&offset=0
// Roles without exam:stats only ever see their own attempts.
func ListExamAttemptsHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, ok := subject(w, r)
		if !ok {
			return
		}
		q := r.URL.Query()
		userID := strings.TrimSpace(q.Get("user_id"))
		if !checker.Has(rbac.RoleFromContext(r.Context()), "exam:stats") {
			userID = sub
		}
		list, err := svc.ListAttempts(r.Context(), exam.AttemptListOpts{
			ExamID: strings.TrimSpace(q.Get("exam_id")),
			UserID: userID,
			Status: strings.TrimSpace(q.Get("status")),
			Limit:  parseIntDefault(q.Get("limit"), 50),
			Offset: parseIntDefault(q.Get("offset"), 0),
		})
		if err != nil {
			writeErr(w, r, err)
			return
		}
		if list == nil {
			list = []exam.Attempt{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /exams/{examID}/stats
func ExamStatsHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := svc.Stats(r.Context(), chi.URLParam(r, "examID"))
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}
