// Package catalog is the read model over authored course content plus a
// bulk import used to seed it. Attempt engines only ever read from here.
package catalog

import (
	"encoding/json"

	"github.com/mind-engage/mindengage-courses/internal/errs"
	"github.com/mind-engage/mindengage-courses/internal/scoring"
)

var (
	ErrCourseNotFound   = errs.NotFound("course_not_found", "course not found")
	ErrChapterNotFound  = errs.NotFound("chapter_not_found", "chapter not found")
	ErrQuizNotFound     = errs.NotFound("quiz_not_found", "quiz not found")
	ErrExamNotFound     = errs.NotFound("exam_not_found", "exam not found")
	ErrQuestionNotFound = errs.NotFound("question_not_found", "question not found")
)

type Course struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt int64  `json:"created_at,omitempty"`
}

type Chapter struct {
	ID          string `json:"id"`
	CourseID    string `json:"course_id"`
	Position    int    `json:"position"`
	Title       string `json:"title"`
	IsPublished bool   `json:"is_published"`
}

type Option struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	IsCorrect bool   `json:"is_correct,omitempty"`
}

type Question struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Points  float64  `json:"points"`
	Options []Option `json:"options"`
}

// UnmarshalJSON defaults a missing "points" to 1. An explicit 0 is kept
// and makes the question zero-weight.
func (q *Question) UnmarshalJSON(b []byte) error {
	type plain Question
	p := plain{Points: 1}
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*q = Question(p)
	return nil
}

// CorrectOptionIDs lists the ids of options marked correct.
func (q Question) CorrectOptionIDs() []string {
	var out []string
	for _, o := range q.Options {
		if o.IsCorrect {
			out = append(out, o.ID)
		}
	}
	return out
}

func (q Question) HasOption(optionID string) bool {
	for _, o := range q.Options {
		if o.ID == optionID {
			return true
		}
	}
	return false
}

type Quiz struct {
	ID             string     `json:"id"`
	ChapterID      string     `json:"chapter_id"`
	Title          string     `json:"title"`
	RequiredScore  int        `json:"required_score"`
	AttemptCeiling int        `json:"attempt_ceiling"` // -1 = unlimited
	IsPublished    bool       `json:"is_published"`
	Questions      []Question `json:"questions,omitempty"`
}

// Unlimited reports whether the quiz has no free-attempt ceiling.
func (q Quiz) Unlimited() bool { return q.AttemptCeiling < 0 }

type Exam struct {
	ID           string     `json:"id"`
	CourseID     string     `json:"course_id"`
	ChapterID    *string    `json:"chapter_id,omitempty"`
	Title        string     `json:"title"`
	TimeLimitMin *int       `json:"time_limit_min,omitempty"`
	PassScore    *int       `json:"pass_score,omitempty"`
	IsPublished  bool       `json:"is_published"`
	Questions    []Question `json:"questions,omitempty"`
}

// Threshold is the exam's stored pass score, or def when none is stored.
func (e Exam) Threshold(def int) int {
	if e.PassScore != nil {
		return *e.PassScore
	}
	return def
}

// FindQuestion looks a question up by id.
func FindQuestion(qs []Question, id string) (Question, bool) {
	for _, q := range qs {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// ScoringItems pairs each question, in order, with the selected option
// (if any) from selected.
func ScoringItems(qs []Question, selected map[string]string) []scoring.Item {
	items := make([]scoring.Item, 0, len(qs))
	for _, q := range qs {
		it := scoring.Item{QuestionID: q.ID, CorrectOptions: q.CorrectOptionIDs(), Points: q.Points}
		if opt, ok := selected[q.ID]; ok {
			o := opt
			it.Selected = &o
		}
		items = append(items, it)
	}
	return items
}

// StudentView strips answer keys.
func StudentView(qs []Question) []Question {
	out := make([]Question, len(qs))
	for i, q := range qs {
		opts := make([]Option, len(q.Options))
		for j, o := range q.Options {
			opts[j] = Option{ID: o.ID, Label: o.Label}
		}
		q.Options = opts
		out[i] = q
	}
	return out
}
