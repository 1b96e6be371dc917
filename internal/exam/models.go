package exam

import (
	"time"

	"github.com/mind-engage/mindengage-courses/internal/errs"
)

var (
	ErrExamNotPublished = errs.Precondition("exam_not_published", "exam is not published")
	ErrOptionMismatch   = errs.Validation("option_not_in_question", "option does not belong to the question")
)

type Attempt struct {
	ID          string            `json:"id"`
	ExamID      string            `json:"exam_id"`
	UserID      string            `json:"user_id"`
	StartedAt   int64             `json:"started_at"`
	DeadlineAt  *int64            `json:"deadline_at,omitempty"` // nil = no time limit
	CompletedAt *int64            `json:"completed_at,omitempty"`
	Score       *int              `json:"score,omitempty"`
	Passed      *bool             `json:"passed,omitempty"`
	IsLate      bool              `json:"is_late"`
	Answers     []QuestionAttempt `json:"answers,omitempty"`
}

func (a Attempt) Completed() bool { return a.CompletedAt != nil }

// Expired reports whether now is past the time-limit snapshot. Expiry is
// only ever checked lazily, at completion.
func (a Attempt) Expired(now time.Time) bool {
	return a.DeadlineAt != nil && now.Unix() > *a.DeadlineAt
}

// QuestionAttempt is one recorded answer. Correctness is filled in when
// the attempt completes.
type QuestionAttempt struct {
	QuestionID       string   `json:"question_id"`
	SelectedOptionID *string  `json:"selected_option_id"`
	IsCorrect        *bool    `json:"is_correct,omitempty"`
	PointsEarned     *float64 `json:"points_earned,omitempty"`
	AnsweredAt       int64    `json:"answered_at"`
}

type Result struct {
	Attempt
	EarnedPoints float64 `json:"earned_points"`
	TotalPoints  float64 `json:"total_points"`
	CorrectCount int     `json:"correct_count"`
	TotalCount   int     `json:"total_count"`
	Threshold    int     `json:"threshold"`
}

// Stats backs the teacher dashboard for one exam.
type Stats struct {
	ExamID       string  `json:"exam_id"`
	Attempts     int     `json:"attempts"`
	Completed    int     `json:"completed"`
	Passed       int     `json:"passed"`
	AverageScore float64 `json:"average_score"`
	PassRate     float64 `json:"pass_rate"` // percent of completed
	Threshold    int     `json:"threshold"`
}
