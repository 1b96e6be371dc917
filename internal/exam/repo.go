package exam

import (
	"context"

	"github.com/mind-engage/mindengage-courses/internal/db"
)

type AttemptListOpts struct {
	ExamID string // filter by exam
	UserID string // filter by student
	Status string // optional: in_progress|completed
	Limit  int
	Offset int
}

// TxHook runs inside a store transaction, after the state change and
// before commit. The service uses it to append outbox events.
type TxHook func(ctx context.Context, q db.Querier) error

// Grader scores the answers recorded when the attempt is claimed for
// completion. It runs inside the completion transaction, so no answer can
// land between the read and the write.
type Grader func(recorded []QuestionAttempt) (graded []QuestionAttempt, score int, passed bool)

type Store interface {
	CreateAttempt(ctx context.Context, a Attempt, hook TxHook) error
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	SaveAnswer(ctx context.Context, attemptID string, ans QuestionAttempt) error
	Answers(ctx context.Context, attemptID string) ([]QuestionAttempt, error)
	Complete(ctx context.Context, a Attempt, grade Grader, hook TxHook) error
	ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error)
	Stats(ctx context.Context, examID string) (Stats, error)
}
