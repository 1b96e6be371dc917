package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/mind-engage/mindengage-courses/internal/catalog"
	"github.com/mind-engage/mindengage-courses/internal/db/dbtest"
	"github.com/mind-engage/mindengage-courses/internal/errs"
	"github.com/mind-engage/mindengage-courses/internal/events"
	"github.com/mind-engage/mindengage-courses/internal/progress"
)

func twoQuestions() []catalog.Question {
	return []catalog.Question{
		{ID: "q1", Points: 1, Options: []catalog.Option{{ID: "q1a", IsCorrect: true}, {ID: "q1b"}}},
		{ID: "q2", Points: 1, Options: []catalog.Option{{ID: "q2a", IsCorrect: true}, {ID: "q2b"}}},
	}
}

type fixture struct {
	svc  *Service
	gate *progress.Gate
	db   *sql.DB
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	d := dbtest.Open(t)
	cat := catalog.NewSQLStore(d)
	_, err := cat.ImportCourse(context.Background(), catalog.CourseImport{
		Course: catalog.Course{ID: "c1", Title: "Course"},
		Chapters: []catalog.ChapterImport{
			{Chapter: catalog.Chapter{ID: "ch1", Position: 1, Title: "One", IsPublished: true},
				Quiz: &catalog.Quiz{ID: "qz1", Title: "Gate", RequiredScore: 70, AttemptCeiling: 2, IsPublished: true, Questions: twoQuestions()}},
			{Chapter: catalog.Chapter{ID: "ch2", Position: 2, Title: "Two", IsPublished: true},
				Quiz: &catalog.Quiz{ID: "qz2", Title: "Draft", RequiredScore: 70, AttemptCeiling: 2, Questions: nil}},
			{Chapter: catalog.Chapter{ID: "ch3", Position: 3, Title: "Three", IsPublished: true},
				Quiz: &catalog.Quiz{ID: "qz3", Title: "Practice", RequiredScore: 50, AttemptCeiling: -1, IsPublished: true,
					Questions: []catalog.Question{{ID: "q3", Points: 1, Options: []catalog.Option{{ID: "q3a", IsCorrect: true}, {ID: "q3b"}}}}}},
			{Chapter: catalog.Chapter{ID: "ch4", Position: 4, Title: "Four", IsPublished: true},
				Quiz: &catalog.Quiz{ID: "qz4", Title: "Closed", RequiredScore: 50, AttemptCeiling: 0, IsPublished: true,
					Questions: []catalog.Question{{ID: "q4", Points: 1, Options: []catalog.Option{{ID: "q4a", IsCorrect: true}}}}}},
		},
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	rec := events.NewRecorder("test", nil)
	gate := progress.NewGate(d, cat, rec)
	return fixture{svc: NewService(d, cat, gate, rec), gate: gate, db: d}
}

func answersJSON(t *testing.T, pairs ...string) json.RawMessage {
	t.Helper()
	var as []Answer
	for i := 0; i+1 < len(pairs); i += 2 {
		opt := pairs[i+1]
		as = append(as, Answer{QuestionID: pairs[i], SelectedOptionID: &opt})
	}
	b, err := json.Marshal(as)
	if err != nil {
		t.Fatalf("marshal answers: %v", err)
	}
	return b
}

func countRows(t *testing.T, d *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	if err := d.QueryRowContext(context.Background(), query, args...).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestScenario_FailThenPassUnlocksNextChapter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	a1, err := f.svc.StartAttempt(ctx, "u1", "qz1")
	if err != nil {
		t.Fatalf("start #1: %v", err)
	}
	if !a1.IsFreeAttempt {
		t.Fatalf("first attempt under the ceiling should be free")
	}
	r1, err := f.svc.SubmitAttempt(ctx, "u1", a1.ID, answersJSON(t, "q1", "q1a", "q2", "q2b"))
	if err != nil {
		t.Fatalf("submit #1: %v", err)
	}
	if *r1.Score != 50 || *r1.Passed || r1.ChapterCompleted {
		t.Fatalf("attempt #1 = score %d passed %v", *r1.Score, *r1.Passed)
	}
	if n := countRows(t, f.db, `SELECT COUNT(*) FROM quiz_attempts WHERE user_id='u1' AND quiz_id='qz1'`); n != 1 {
		t.Fatalf("attempt count = %d", n)
	}
	if ok, _ := f.gate.CanAccessChapter(ctx, "u1", "c1", 2); ok {
		t.Fatalf("chapter 2 unlocked after a failed attempt")
	}

	a2, err := f.svc.StartAttempt(ctx, "u1", "qz1")
	if err != nil {
		t.Fatalf("start #2: %v", err)
	}
	r2, err := f.svc.SubmitAttempt(ctx, "u1", a2.ID, answersJSON(t, "q1", "q1a", "q2", "q2a"))
	if err != nil {
		t.Fatalf("submit #2: %v", err)
	}
	if *r2.Score != 100 || !*r2.Passed || !r2.ChapterCompleted {
		t.Fatalf("attempt #2 = score %d passed %v", *r2.Score, *r2.Passed)
	}
	if ok, err := f.gate.CanAccessChapter(ctx, "u1", "c1", 2); err != nil || !ok {
		t.Fatalf("chapter 2 should be unlocked: ok=%v err=%v", ok, err)
	}

	if _, err := f.svc.StartAttempt(ctx, "u1", "qz1"); !errors.Is(err, ErrAlreadyPassed) {
		t.Fatalf("start #3: want ErrAlreadyPassed, got %v", err)
	}
	if errs.KindOf(ErrAlreadyPassed) != errs.KindPrecondition {
		t.Fatalf("already passed must be a precondition failure")
	}

	got, err := f.svc.GetAttempt(ctx, "u1", a2.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Questions) != 2 || !got.Questions[0].IsCorrect || got.Questions[1].PointsEarned != 1 {
		t.Fatalf("question attempts = %+v", got.Questions)
	}
}

func TestStartAttempt_Preconditions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.svc.StartAttempt(ctx, "u1", "missing"); !errors.Is(err, catalog.ErrQuizNotFound) {
		t.Fatalf("missing quiz: %v", err)
	}
	if _, err := f.svc.StartAttempt(ctx, "u1", "qz2"); !errors.Is(err, ErrQuizNotPublished) {
		t.Fatalf("draft quiz: %v", err)
	}
	if _, err := f.svc.StartAttempt(ctx, "u1", "qz4"); !errors.Is(err, ErrNoAttemptsRemaining) {
		t.Fatalf("zero ceiling: %v", err)
	}
	if _, err := f.svc.StartAttempt(ctx, "u1", "qz3"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.svc.StartAttempt(ctx, "u1", "qz3"); !errors.Is(err, errs.ErrAttemptAlreadyActive) {
		t.Fatalf("second start while in progress: %v", err)
	}
	// a different user is independent
	if _, err := f.svc.StartAttempt(ctx, "u2", "qz3"); err != nil {
		t.Fatalf("other user: %v", err)
	}
}

func TestCeilingIsNeverExceeded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for i := 0; i < 2; i++ {
		a, err := f.svc.StartAttempt(ctx, "u1", "qz1")
		if err != nil {
			t.Fatalf("start #%d: %v", i+1, err)
		}
		if _, err := f.svc.SubmitAttempt(ctx, "u1", a.ID, nil); err != nil {
			t.Fatalf("submit #%d: %v", i+1, err)
		}
	}
	for i := 0; i < 3; i++ {
		if _, err := f.svc.StartAttempt(ctx, "u1", "qz1"); !errors.Is(err, ErrNoAttemptsRemaining) {
			t.Fatalf("over ceiling: %v", err)
		}
	}
	if n := countRows(t, f.db, `SELECT COUNT(*) FROM quiz_attempts WHERE user_id='u1' AND quiz_id='qz1'`); n != 2 {
		t.Fatalf("attempts = %d, want 2", n)
	}
	st, err := f.svc.Status(ctx, "u1", "qz1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.AttemptsUsed != 2 || st.AttemptsRemaining != 0 || st.Passed || st.ActiveAttemptID != "" {
		t.Fatalf("status = %+v", st)
	}
}

func TestConcurrentStartYieldsOneActiveAttempt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		ok, blocked int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.StartAttempt(ctx, "u1", "qz3")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, errs.ErrAttemptAlreadyActive):
				blocked++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if ok != 1 || blocked != 4 {
		t.Fatalf("ok=%d blocked=%d", ok, blocked)
	}
	st, _ := f.svc.Status(ctx, "u1", "qz3")
	if st.AttemptsUsed != 1 || st.AttemptsRemaining != -1 {
		t.Fatalf("quota after race = %+v", st)
	}
}

func TestConcurrentSubmitIsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, err := f.svc.StartAttempt(ctx, "u1", "qz1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, done int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.SubmitAttempt(ctx, "u1", a.ID, answersJSON(t, "q1", "q1a"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, errs.ErrAlreadyCompleted):
				done++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if ok != 1 || done != 3 {
		t.Fatalf("ok=%d already_completed=%d", ok, done)
	}
	if n := countRows(t, f.db, `SELECT COUNT(*) FROM quiz_question_attempts WHERE attempt_id=$1`, a.ID); n != 2 {
		t.Fatalf("question attempts = %d, want 2", n)
	}
}

func TestSubmitAttempt_OwnershipAndDroppedAnswers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, err := f.svc.StartAttempt(ctx, "u1", "qz1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	_, err = f.svc.SubmitAttempt(ctx, "intruder", a.ID, nil)
	if !errors.Is(err, errs.ErrNotOwner) || errs.KindOf(err) != errs.KindNotFound {
		t.Fatalf("non-owner: %v", err)
	}
	if _, err := f.svc.SubmitAttempt(ctx, "u1", "nope", nil); !errors.Is(err, errs.ErrAttemptNotFound) {
		t.Fatalf("missing attempt: %v", err)
	}
	if _, err := f.svc.SubmitAttempt(ctx, "u1", a.ID, json.RawMessage(`{"q1":"q1a"}`)); errs.KindOf(err) != errs.KindValidation {
		t.Fatalf("non-array payload: %v", err)
	}

	raw := json.RawMessage(`[
		{"question_id":"q1","selected_option_id":"q1a"},
		{"question_id":"q2","selected_option_id":"q1b"},
		{"question_id":"zz","selected_option_id":"x"},
		{"question_id":"q1","selected_option_id":"q1b"},
		{"selected_option_id":"q2a"},
		42
	]`)
	res, err := f.svc.SubmitAttempt(ctx, "u1", a.ID, raw)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	// foreign option, unknown question, repeat, missing id, wrong type
	if res.DroppedAnswers != 5 {
		t.Fatalf("dropped = %d, want 5", res.DroppedAnswers)
	}
	if *res.Score != 50 || res.CorrectCount != 1 || res.TotalCount != 2 {
		t.Fatalf("result = %+v", res)
	}
	if _, err := f.svc.SubmitAttempt(ctx, "u1", a.ID, nil); !errors.Is(err, errs.ErrAlreadyCompleted) {
		t.Fatalf("resubmit: %v", err)
	}
}

func TestUnlimitedQuizKeepsAttemptsFree(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		a, err := f.svc.StartAttempt(ctx, "u1", "qz3")
		if err != nil {
			t.Fatalf("start #%d: %v", i+1, err)
		}
		if !a.IsFreeAttempt {
			t.Fatalf("unlimited quiz attempt not free")
		}
		if _, err := f.svc.SubmitAttempt(ctx, "u1", a.ID, answersJSON(t, "q3", "q3b")); err != nil {
			t.Fatalf("submit #%d: %v", i+1, err)
		}
	}
	list, err := f.svc.ListAttempts(ctx, "u1", "qz3")
	if err != nil || len(list) != 3 {
		t.Fatalf("list = %d err=%v", len(list), err)
	}
}
