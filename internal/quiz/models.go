// Package quiz runs chapter quiz attempts: start under a free-attempt
// ceiling, submit exactly once, and unlock progression on a pass.
package quiz

import "github.com/mind-engage/mindengage-courses/internal/errs"

var (
	ErrQuizNotPublished    = errs.Precondition("quiz_not_published", "quiz is not published")
	ErrNoAttemptsRemaining = errs.Precondition("no_attempts_remaining", "no attempts remaining for this quiz")
	ErrAlreadyPassed       = errs.Precondition("already_passed", "quiz already passed")
)

type Attempt struct {
	ID             string            `json:"id"`
	UserID         string            `json:"user_id"`
	QuizID         string            `json:"quiz_id"`
	CreatedAt      int64             `json:"created_at"`
	CompletedAt    *int64            `json:"completed_at,omitempty"`
	Score          *int              `json:"score,omitempty"`
	Passed         *bool             `json:"passed,omitempty"`
	IsFreeAttempt  bool              `json:"is_free_attempt"`
	DroppedAnswers int               `json:"dropped_answers"`
	Questions      []QuestionAttempt `json:"questions,omitempty"`
}

func (a Attempt) Completed() bool { return a.CompletedAt != nil }

type QuestionAttempt struct {
	QuestionID       string  `json:"question_id"`
	SelectedOptionID *string `json:"selected_option_id"`
	IsCorrect        bool    `json:"is_correct"`
	PointsEarned     float64 `json:"points_earned"`
}

// Result is what a submission returns to the caller.
type Result struct {
	Attempt
	EarnedPoints     float64 `json:"earned_points"`
	TotalPoints      float64 `json:"total_points"`
	CorrectCount     int     `json:"correct_count"`
	TotalCount       int     `json:"total_count"`
	ChapterCompleted bool    `json:"chapter_completed"`
}

// Status summarizes a user's standing on one quiz.
type Status struct {
	QuizID            string `json:"quiz_id"`
	AttemptsUsed      int    `json:"attempts_used"`
	AttemptsRemaining int    `json:"attempts_remaining"` // -1 = unlimited
	Passed            bool   `json:"passed"`
	ActiveAttemptID   string `json:"active_attempt_id,omitempty"`
}
