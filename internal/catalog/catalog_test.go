package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mind-engage/mindengage-courses/internal/db/dbtest"
	"github.com/mind-engage/mindengage-courses/internal/errs"
)

func sampleCourse() CourseImport {
	limit := 30
	return CourseImport{
		Course: Course{ID: "c1", Title: "Algebra"},
		Chapters: []ChapterImport{
			{Chapter: Chapter{ID: "ch1", Position: 1, Title: "Basics", IsPublished: true},
				Quiz: &Quiz{ID: "qz1", Title: "Basics quiz", RequiredScore: 70, AttemptCeiling: 2, IsPublished: true,
					Questions: []Question{
						{ID: "q1", Prompt: "1+1", Points: 1, Options: []Option{{ID: "q1a", Label: "2", IsCorrect: true}, {ID: "q1b", Label: "3"}}},
						{ID: "q2", Prompt: "2+2", Points: 1, Options: []Option{{ID: "q2a", Label: "4", IsCorrect: true}, {ID: "q2b", Label: "5"}}},
					}}},
			{Chapter: Chapter{ID: "ch2", Position: 2, Title: "Equations", IsPublished: true}},
		},
		Exams: []Exam{{ID: "e1", Title: "Final", TimeLimitMin: &limit, IsPublished: true,
			Questions: []Question{{ID: "eq1", Prompt: "x=?", Points: 2, Options: []Option{{ID: "eq1a", Label: "1", IsCorrect: true}}}}}},
	}
}

func TestImportCourse_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewSQLStore(dbtest.Open(t))
	if _, err := s.ImportCourse(ctx, sampleCourse()); err != nil {
		t.Fatalf("import: %v", err)
	}

	qz, err := s.GetQuiz(ctx, "qz1")
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if qz.ChapterID != "ch1" || qz.AttemptCeiling != 2 || len(qz.Questions) != 2 {
		t.Fatalf("unexpected quiz: %+v", qz)
	}
	if got := qz.Questions[0].CorrectOptionIDs(); len(got) != 1 || got[0] != "q1a" {
		t.Fatalf("correct options = %v", got)
	}

	e, err := s.GetExam(ctx, "e1")
	if err != nil {
		t.Fatalf("get exam: %v", err)
	}
	if e.TimeLimitMin == nil || *e.TimeLimitMin != 30 || e.PassScore != nil {
		t.Fatalf("unexpected exam: %+v", e)
	}
	if e.Threshold(70) != 70 {
		t.Fatalf("threshold fallback")
	}
	if e.Questions[0].Points != 2 {
		t.Fatalf("points = %v", e.Questions[0].Points)
	}

	ch, ok, err := s.ChapterAt(ctx, "c1", 2, true)
	if err != nil || !ok || ch.ID != "ch2" {
		t.Fatalf("chapter at 2: %+v ok=%v err=%v", ch, ok, err)
	}
	if _, ok, _ := s.ChapterAt(ctx, "c1", 3, false); ok {
		t.Fatalf("no chapter at 3")
	}
	if _, ok, _ := s.QuizForChapter(ctx, "ch2"); ok {
		t.Fatalf("ch2 has no quiz")
	}
}

func TestImportCourse_ReorderAndReplaceQuestions(t *testing.T) {
	ctx := context.Background()
	s := NewSQLStore(dbtest.Open(t))
	in := sampleCourse()
	if _, err := s.ImportCourse(ctx, in); err != nil {
		t.Fatalf("import: %v", err)
	}
	in.Chapters[0].Position, in.Chapters[1].Position = 2, 1
	in.Chapters[0].Quiz.Questions = in.Chapters[0].Quiz.Questions[:1]
	if _, err := s.ImportCourse(ctx, in); err != nil {
		t.Fatalf("reimport: %v", err)
	}
	chs, err := s.ListChapters(ctx, "c1", false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(chs) != 2 || chs[0].ID != "ch2" || chs[1].ID != "ch1" {
		t.Fatalf("order after reimport: %+v", chs)
	}
	qz, _ := s.GetQuiz(ctx, "qz1")
	if len(qz.Questions) != 1 {
		t.Fatalf("questions not replaced: %d", len(qz.Questions))
	}
}

func TestImportCourse_RejectsUnpublishableQuiz(t *testing.T) {
	s := NewSQLStore(dbtest.Open(t))
	in := sampleCourse()
	in.Chapters[0].Quiz.Questions[1].Options[0].IsCorrect = false
	_, err := s.ImportCourse(context.Background(), in)
	if errs.KindOf(err) != errs.KindValidation || errs.CodeOf(err) != "publish_invalid" {
		t.Fatalf("expected publish_invalid, got %v", err)
	}
	if _, err := s.GetCourse(context.Background(), "c1"); !errors.Is(err, ErrCourseNotFound) {
		t.Fatalf("nothing should be written, got %v", err)
	}
}

func TestValidateQuizForPublish(t *testing.T) {
	if err := ValidateQuizForPublish(Quiz{ID: "x"}); err == nil {
		t.Fatalf("empty quiz must not publish")
	}
	ok := Quiz{ID: "x", Questions: []Question{{ID: "a", Options: []Option{{ID: "o", IsCorrect: true}}}}}
	if err := ValidateQuizForPublish(ok); err != nil {
		t.Fatalf("valid quiz rejected: %v", err)
	}
	dup := Quiz{ID: "x", Questions: []Question{ok.Questions[0], ok.Questions[0]}}
	if err := ValidateQuizForPublish(dup); err == nil {
		t.Fatalf("duplicate question ids must not publish")
	}
}

func TestGetQuiz_NotFound(t *testing.T) {
	s := NewSQLStore(dbtest.Open(t))
	if _, err := s.GetQuiz(context.Background(), "nope"); !errors.Is(err, ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

func TestStudentViewAndScoringItems(t *testing.T) {
	qs := sampleCourse().Chapters[0].Quiz.Questions
	for _, q := range StudentView(qs) {
		for _, o := range q.Options {
			if o.IsCorrect {
				t.Fatalf("answer key leaked in student view")
			}
		}
	}
	if !qs[0].Options[0].IsCorrect {
		t.Fatalf("StudentView must not mutate its input")
	}
	items := ScoringItems(qs, map[string]string{"q2": "q2a"})
	if items[0].Selected != nil || items[1].Selected == nil || *items[1].Selected != "q2a" {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestImportCourse_PointsDefaultOnlyWhenAbsent(t *testing.T) {
	ctx := context.Background()
	s := NewSQLStore(dbtest.Open(t))
	var in CourseImport
	err := json.Unmarshal([]byte(`{"id":"c1","title":"Weights","exams":[{"id":"e1","title":"Final","is_published":true,
		"questions":[
			{"id":"scored","options":[{"id":"a","is_correct":true}]},
			{"id":"bonus","points":0,"options":[{"id":"b","is_correct":true}]}
		]}]}`), &in)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, err := s.ImportCourse(ctx, in); err != nil {
		t.Fatalf("import: %v", err)
	}
	e, err := s.GetExam(ctx, "e1")
	if err != nil {
		t.Fatalf("get exam: %v", err)
	}
	if e.Questions[0].Points != 1 || e.Questions[1].Points != 0 {
		t.Fatalf("points = %v, %v; want 1, 0", e.Questions[0].Points, e.Questions[1].Points)
	}
}
