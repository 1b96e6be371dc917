package http

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-courses/internal/access"
	auth "github.com/mind-engage/mindengage-courses/internal/auth/middleware"
	"github.com/mind-engage/mindengage-courses/internal/catalog"
	"github.com/mind-engage/mindengage-courses/internal/db/dbtest"
	"github.com/mind-engage/mindengage-courses/internal/events"
	"github.com/mind-engage/mindengage-courses/internal/exam"
	"github.com/mind-engage/mindengage-courses/internal/progress"
	"github.com/mind-engage/mindengage-courses/internal/quiz"
)

type testEnv struct {
	t    *testing.T
	d    *sql.DB
	auth *auth.AuthService
	h    http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	d := dbtest.Open(t)
	dbtest.Exec(t, d, `INSERT INTO users (id, username, role, access_tier, created_at) VALUES
		('stu','stu','student','no_access',0),
		('tch','tch','teacher','no_access',0),
		('adm','adm','admin','full_access',0)`)

	rec := events.NewRecorder("test", nil)
	cat := catalog.NewSQLStore(d)
	pg := progress.NewGate(d, cat, rec)
	a := auth.NewAuthService("test-secret")

	r := chi.NewRouter()
	Mount(r, Deps{
		DB:              d,
		Auth:            a,
		EnableLocalAuth: true,
		Catalog:         cat,
		Access:          access.NewGate(d, 0, rec),
		Progress:        pg,
		Quiz:            quiz.NewService(d, cat, pg, rec),
		Exam:            exam.NewService(exam.NewSQLStore(d), cat, rec, 70),
	})
	return &testEnv{t: t, d: d, auth: a, h: r}
}

func (e *testEnv) do(method, path, sub string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			e.t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if sub != "" {
		// the role claim is replaced by the stored role
		tok, err := e.auth.IssueJWT(sub, "student")
		if err != nil {
			e.t.Fatalf("token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) expect(rec *httptest.ResponseRecorder, status int) map[string]any {
	e.t.Helper()
	if rec.Code != status {
		e.t.Fatalf("status %d want %d: %s", rec.Code, status, rec.Body.String())
	}
	out := map[string]any{}
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return out
}

func (e *testEnv) importCourse() {
	e.t.Helper()
	course := map[string]any{
		"title": "Go 101",
		"chapters": []any{
			map[string]any{
				"id": "ch1", "position": 1, "title": "Basics", "is_published": true,
				"quiz": map[string]any{
					"id": "q1", "title": "Basics quiz", "required_score": 100, "attempt_ceiling": 3, "is_published": true,
					"questions": []any{
						map[string]any{"id": "q1-1", "prompt": "2+2?", "points": 1, "options": []any{
							map[string]any{"id": "a", "label": "4", "is_correct": true},
							map[string]any{"id": "b", "label": "5"},
						}},
					},
				},
			},
			map[string]any{"id": "ch2", "position": 2, "title": "Types", "is_published": true},
		},
		"exams": []any{
			map[string]any{
				"id": "e1", "title": "Final", "pass_score": 50, "is_published": true,
				"questions": []any{
					map[string]any{"id": "e1-1", "prompt": "x", "points": 1, "options": []any{
						map[string]any{"id": "o1", "label": "yes", "is_correct": true},
						map[string]any{"id": "o2", "label": "no"},
					}},
					map[string]any{"id": "e1-2", "prompt": "y", "points": 1, "options": []any{
						map[string]any{"id": "o3", "label": "yes", "is_correct": true},
						map[string]any{"id": "o4", "label": "no"},
					}},
				},
			},
		},
	}
	e.expect(e.do(http.MethodPut, "/courses/c1", "stu", course), http.StatusForbidden)
	e.expect(e.do(http.MethodPut, "/courses/c1", "tch", course), http.StatusOK)
}

func TestAPI_QuizProgression(t *testing.T) {
	e := newTestEnv(t)
	e.importCourse()

	// no tier yet
	body := e.expect(e.do(http.MethodPost, "/quizzes/q1/attempts", "stu", nil), http.StatusConflict)
	if body["code"] != "access_denied" {
		t.Fatalf("code = %v", body["code"])
	}

	acc := e.expect(e.do(http.MethodPost, "/me/trial", "stu", nil), http.StatusOK)
	if acc["tier"] != "free_trial" || acc["can_attempt_graded"] != true {
		t.Fatalf("trial access = %+v", acc)
	}
	if b := e.expect(e.do(http.MethodPost, "/me/trial", "stu", nil), http.StatusConflict); b["code"] != "trial_already_used" {
		t.Fatalf("second trial code = %v", b["code"])
	}

	if b := e.expect(e.do(http.MethodGet, "/courses/c1/chapters/2/access", "stu", nil), http.StatusOK); b["can_access"] != false {
		t.Fatalf("chapter 2 must be locked: %+v", b)
	}

	view := e.do(http.MethodGet, "/quizzes/q1", "stu", nil)
	e.expect(view, http.StatusOK)
	if strings.Contains(view.Body.String(), "is_correct") {
		t.Fatalf("student view leaks answer keys: %s", view.Body.String())
	}

	first := e.expect(e.do(http.MethodPost, "/quizzes/q1/attempts", "stu", nil), http.StatusCreated)
	res := e.expect(e.do(http.MethodPost, "/quiz-attempts/"+first["id"].(string)+"/submit", "stu",
		map[string]any{"answers": []any{map[string]any{"question_id": "q1-1", "selected_option_id": "b"}}}), http.StatusOK)
	if res["score"] != 0.0 || res["passed"] != false {
		t.Fatalf("wrong answer result = %+v", res)
	}

	second := e.expect(e.do(http.MethodPost, "/quizzes/q1/attempts", "stu", nil), http.StatusCreated)
	res = e.expect(e.do(http.MethodPost, "/quiz-attempts/"+second["id"].(string)+"/submit", "stu",
		map[string]any{"answers": []any{
			map[string]any{"question_id": "q1-1", "selected_option_id": "a"},
			"garbage",
		}}), http.StatusOK)
	if res["score"] != 100.0 || res["passed"] != true || res["chapter_completed"] != true || res["dropped_answers"] != 1.0 {
		t.Fatalf("right answer result = %+v", res)
	}
	e.expect(e.do(http.MethodPost, "/quiz-attempts/"+second["id"].(string)+"/submit", "stu",
		map[string]any{"answers": []any{}}), http.StatusConflict)

	if b := e.expect(e.do(http.MethodGet, "/courses/c1/chapters/2/access", "stu", nil), http.StatusOK); b["can_access"] != true {
		t.Fatalf("chapter 2 must unlock: %+v", b)
	}

	var outline []progress.ChapterStatus
	rec := e.do(http.MethodGet, "/courses/c1/outline", "stu", nil)
	e.expect(rec, http.StatusOK)
	if err := json.Unmarshal(rec.Body.Bytes(), &outline); err != nil || len(outline) != 2 || !outline[1].Unlocked {
		t.Fatalf("outline = %+v err=%v", outline, err)
	}

	// someone else's attempt looks like a missing one
	if b := e.expect(e.do(http.MethodGet, "/quiz-attempts/"+second["id"].(string), "tch", nil), http.StatusNotFound); b["code"] != "attempt_not_found" {
		t.Fatalf("foreign attempt code = %v", b["code"])
	}
	e.expect(e.do(http.MethodGet, "/quiz-attempts/"+second["id"].(string), "stu", nil), http.StatusOK)
}

func TestAPI_ExamLifecycle(t *testing.T) {
	e := newTestEnv(t)
	e.importCourse()

	e.expect(e.do(http.MethodPatch, "/admin/users/stu/access", "tch", map[string]any{"tier": "full_access"}), http.StatusForbidden)
	u := e.expect(e.do(http.MethodPatch, "/admin/users/stu/access", "adm", map[string]any{"tier": "full_access"}), http.StatusOK)
	if u["access_tier"] != "full_access" {
		t.Fatalf("user = %+v", u)
	}
	e.expect(e.do(http.MethodPatch, "/admin/users/stu/access", "adm", map[string]any{"tier": "gold"}), http.StatusBadRequest)

	at := e.expect(e.do(http.MethodPost, "/exams/e1/attempts", "stu", nil), http.StatusCreated)
	id := at["id"].(string)
	e.expect(e.do(http.MethodPost, "/exams/e1/attempts", "stu", nil), http.StatusConflict)

	e.expect(e.do(http.MethodPut, "/exam-attempts/"+id+"/answers/e1-1", "stu", map[string]any{"selected_option_id": "o2"}), http.StatusOK)
	e.expect(e.do(http.MethodPut, "/exam-attempts/"+id+"/answers/e1-1", "stu", map[string]any{"selected_option_id": "o1"}), http.StatusOK)
	if b := e.expect(e.do(http.MethodPut, "/exam-attempts/"+id+"/answers/e1-2", "stu", map[string]any{"selected_option_id": "o1"}), http.StatusBadRequest); b["code"] != "option_not_in_question" {
		t.Fatalf("foreign option code = %v", b["code"])
	}
	e.expect(e.do(http.MethodPut, "/exam-attempts/"+id+"/answers/nope", "stu", map[string]any{"selected_option_id": "o1"}), http.StatusNotFound)

	res := e.expect(e.do(http.MethodPost, "/exam-attempts/"+id+"/complete", "stu", nil), http.StatusOK)
	if res["score"] != 50.0 || res["passed"] != true || res["threshold"] != 50.0 {
		t.Fatalf("result = %+v", res)
	}
	e.expect(e.do(http.MethodPost, "/exam-attempts/"+id+"/complete", "stu", nil), http.StatusConflict)

	e.expect(e.do(http.MethodGet, "/exams/e1/stats", "stu", nil), http.StatusForbidden)
	st := e.expect(e.do(http.MethodGet, "/exams/e1/stats", "tch", nil), http.StatusOK)
	if st["completed"] != 1.0 || st["passed"] != 1.0 {
		t.Fatalf("stats = %+v", st)
	}

	var list []exam.Attempt
	rec := e.do(http.MethodGet, "/exam-attempts?exam_id=e1", "stu", nil)
	e.expect(rec, http.StatusOK)
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list) != 1 || list[0].ID != id {
		t.Fatalf("attempts = %+v err=%v", list, err)
	}

	// banning revokes graded attempts
	e.expect(e.do(http.MethodPatch, "/admin/users/stu/access", "adm", map[string]any{"banned": true}), http.StatusOK)
	e.expect(e.do(http.MethodPost, "/exams/e1/attempts", "stu", nil), http.StatusConflict)
}

func TestAPI_UsersEventsAndOps(t *testing.T) {
	e := newTestEnv(t)

	e.expect(e.do(http.MethodGet, "/healthz", "", nil), http.StatusOK)
	e.expect(e.do(http.MethodGet, "/readyz", "", nil), http.StatusOK)
	e.expect(e.do(http.MethodGet, "/me/access", "", nil), http.StatusUnauthorized)

	res := e.expect(e.do(http.MethodPost, "/users/bulk", "tch", []map[string]string{
		{"username": "bob", "password": "pw"},
		{"id": "stu", "username": "stu", "role": "student"},
	}), http.StatusOK)
	if res["inserted"] != 1.0 || res["updated"] != 1.0 {
		t.Fatalf("bulk = %+v", res)
	}
	e.expect(e.do(http.MethodPost, "/users/bulk", "tch", []map[string]string{{"username": "eve"}}), http.StatusBadRequest)
	e.expect(e.do(http.MethodPost, "/users/bulk", "stu", []map[string]string{}), http.StatusForbidden)

	rec := e.do(http.MethodGet, "/users?role=student", "tch", nil)
	e.expect(rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), `"bob"`) {
		t.Fatalf("users = %s", rec.Body.String())
	}

	login := e.expect(e.do(http.MethodPost, "/auth/login", "", map[string]string{"username": "bob", "password": "pw"}), http.StatusOK)
	if login["access_token"] == "" {
		t.Fatalf("login = %+v", login)
	}

	e.expect(e.do(http.MethodPost, "/me/trial", "stu", nil), http.StatusOK)
	e.expect(e.do(http.MethodGet, "/events?since=0", "stu", nil), http.StatusForbidden)
	rec = e.do(http.MethodGet, "/events?since=0", "tch", nil)
	e.expect(rec, http.StatusOK)
	var evs []events.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &evs); err != nil || len(evs) != 1 || evs[0].Type != events.TypeTrialStarted {
		t.Fatalf("events = %s err=%v", rec.Body.String(), err)
	}
	rec = e.do(http.MethodGet, "/events?since="+jsonNum(evs[0].Seq), "tch", nil)
	e.expect(rec, http.StatusOK)
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("events after last seq = %s", rec.Body.String())
	}
}

func jsonNum(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestAPI_AdminCompliance(t *testing.T) {
	e := newTestEnv(t)
	e.importCourse()
	e.expect(e.do(http.MethodPost, "/me/trial", "stu", nil), http.StatusOK)
	at := e.expect(e.do(http.MethodPost, "/quizzes/q1/attempts", "stu", nil), http.StatusCreated)
	e.expect(e.do(http.MethodPost, "/quiz-attempts/"+at["id"].(string)+"/submit", "stu",
		map[string]any{"answers": []any{map[string]any{"question_id": "q1-1", "selected_option_id": "a"}}}), http.StatusOK)

	e.expect(e.do(http.MethodGet, "/admin/users/stu/export", "tch", nil), http.StatusForbidden)
	rec := e.do(http.MethodGet, "/admin/users/stu/export", "adm", nil)
	out := e.expect(rec, http.StatusOK)
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "learner_stu.json") {
		t.Fatalf("disposition = %q", rec.Header().Get("Content-Disposition"))
	}
	user, _ := out["user"].(map[string]any)
	if user["username"] != "stu" || user["access_tier"] != "free_trial" {
		t.Fatalf("user = %+v", out["user"])
	}
	if qa, _ := out["quiz_attempts"].([]any); len(qa) != 1 {
		t.Fatalf("quiz attempts = %+v", out["quiz_attempts"])
	}
	if pr, _ := out["progress"].([]any); len(pr) != 1 {
		t.Fatalf("progress = %+v", out["progress"])
	}

	rec = e.do(http.MethodGet, "/admin/audit?q=trial", "adm", nil)
	e.expect(rec, http.StatusOK)
	var evs []events.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &evs); err != nil || len(evs) != 1 || evs[0].Key != "stu" {
		t.Fatalf("audit = %s err=%v", rec.Body.String(), err)
	}

	e.expect(e.do(http.MethodDelete, "/admin/users/stu", "adm", nil), http.StatusOK)
	e.expect(e.do(http.MethodGet, "/admin/users/stu/export", "adm", nil), http.StatusNotFound)
	e.expect(e.do(http.MethodDelete, "/admin/users/stu", "adm", nil), http.StatusNotFound)
	var n int
	if err := e.d.QueryRow(`SELECT COUNT(*) FROM quiz_attempts WHERE user_id='stu'`).Scan(&n); err != nil || n != 0 {
		t.Fatalf("attempts left = %d err=%v", n, err)
	}
}
