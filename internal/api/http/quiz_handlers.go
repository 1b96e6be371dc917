package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-courses/internal/catalog"
	"github.com/mind-engage/mindengage-courses/internal/quiz"
)

// GET /quizzes/{quizID}: questions without answer keys, plus the caller's standing.
func GetQuizHandler(cat *catalog.SQLStore, svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, ok := subject(w, r)
		if !ok {
			return
		}
		qz, err := cat.GetQuiz(r.Context(), chi.URLParam(r, "quizID"))
		if err != nil {
			writeErr(w, r, err)
			return
		}
		if !qz.IsPublished {
			writeErr(w, r, quiz.ErrQuizNotPublished)
			return
		}
		st, err := svc.Status(r.Context(), sub, qz.ID)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		qz.Questions = catalog.StudentView(qz.Questions)
		writeJSON(w, http.StatusOK, map[string]any{"quiz": qz, "status": st})
	}
}

// POST /quizzes/{quizID}/attempts
func StartQuizAttemptHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, ok := subject(w, r)
		if !ok {
			return
		}
		a, err := svc.StartAttempt(r.Context(), sub, chi.URLParam(r, "quizID"))
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, a)
	}
}

// POST /quiz-attempts/{attemptID}/submit  { "answers": [{ "question_id", "selected_option_id" }] }
func SubmitQuizAttemptHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, ok := subject(w, r)
		if !ok {
			return
		}
		var req struct {
			Answers json.RawMessage `json:"answers"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		res, err := svc.SubmitAttempt(r.Context(), sub, chi.URLParam(r, "attemptID"), req.Answers)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// GET /quiz-attempts/{attemptID}
func GetQuizAttemptHandler(svc *quiz.Service) http.HandlerFunc {
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

// GET /quizzes/{quizID}/attempts: the caller's own history.
func ListQuizAttemptsHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, ok := subject(w, r)
		if !ok {
			return
		}
		out, err := svc.ListAttempts(r.Context(), sub, chi.URLParam(r, "quizID"))
		if err != nil {
			writeErr(w, r, err)
			return
		}
		if out == nil {
			out = []quiz.Attempt{}
		}
		writeJSON(w, http.StatusOK, out)
	}
}
