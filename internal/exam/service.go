package exam

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-courses/internal/catalog"
	"github.com/mind-engage/mindengage-courses/internal/db"
	"github.com/mind-engage/mindengage-courses/internal/errs"
	"github.com/mind-engage/mindengage-courses/internal/events"
	"github.com/mind-engage/mindengage-courses/internal/metrics"
	"github.com/mind-engage/mindengage-courses/internal/scoring"
)

type Catalog interface {
	GetExam(ctx context.Context, id string) (catalog.Exam, error)
}

// CompletionHook is called after a completion has committed. It must not
// fail the request; gradebook passback hangs off it.
type CompletionHook func(ctx context.Context, r Result)

type Service struct {
	store       Store
	catalog     Catalog
	events      *events.Recorder
	defaultPass int
	hooks       []CompletionHook
	now         func() time.Time
	newID       func() string
}

// NewService wires the engine. defaultPass is the platform threshold for
// exams that store no pass score of their own.
func NewService(store Store, c Catalog, rec *events.Recorder, defaultPass int) *Service {
	return &Service{store: store, catalog: c, events: rec, defaultPass: defaultPass, now: time.Now, newID: uuid.NewString}
}

func (s *Service) OnComplete(h CompletionHook) { s.hooks = append(s.hooks, h) }

func (s *Service) StartAttempt(ctx context.Context, userID, examID string) (Attempt, error) {
	a, err := s.startAttempt(ctx, userID, examID)
	if err != nil {
		metrics.AttemptRejected(metrics.KindExam, err)
		return Attempt{}, err
	}
	metrics.AttemptStarted(metrics.KindExam)
	return a, nil
}

func (s *Service) startAttempt(ctx context.Context, userID, examID string) (Attempt, error) {
	e, err := s.catalog.GetExam(ctx, examID)
	if err != nil {
		return Attempt{}, err
	}
	if !e.IsPublished {
		return Attempt{}, ErrExamNotPublished
	}
	now := s.now()
	a := Attempt{ID: s.newID(), ExamID: examID, UserID: userID, StartedAt: now.Unix()}
	if e.TimeLimitMin != nil {
		deadline := now.Add(time.Duration(*e.TimeLimitMin) * time.Minute).Unix()
		a.DeadlineAt = &deadline
	}

	var ev events.Event
	err = s.store.CreateAttempt(ctx, a, func(ctx context.Context, q db.Querier) error {
		var err error
		ev, err = s.events.Append(ctx, q, events.TypeExamAttemptStarted, a.ID,
			map[string]any{"attempt_id": a.ID, "user_id": userID, "exam_id": examID, "deadline_at": a.DeadlineAt})
		return err
	})
	if err != nil {
		return Attempt{}, err
	}
	s.events.Publish(ctx, ev)
	return a, nil
}

// SubmitAnswer records (or overwrites) the caller's choice for one
// question. A nil optionID clears the answer. Answers after the deadline
// are still accepted; lateness is judged at completion.
func (s *Service) SubmitAnswer(ctx context.Context, callerID, attemptID, questionID string, optionID *string) (QuestionAttempt, error) {
	a, err := s.ownedAttempt(ctx, callerID, attemptID)
	if err != nil {
		return QuestionAttempt{}, err
	}
	if a.Completed() {
		return QuestionAttempt{}, errs.ErrAlreadyCompleted
	}
	e, err := s.catalog.GetExam(ctx, a.ExamID)
	if err != nil {
		return QuestionAttempt{}, err
	}
	q, ok := catalog.FindQuestion(e.Questions, questionID)
	if !ok {
		return QuestionAttempt{}, catalog.ErrQuestionNotFound
	}
	if optionID != nil && !q.HasOption(*optionID) {
		return QuestionAttempt{}, ErrOptionMismatch
	}
	ans := QuestionAttempt{QuestionID: questionID, SelectedOptionID: optionID, AnsweredAt: s.now().Unix()}
	if err := s.store.SaveAnswer(ctx, attemptID, ans); err != nil {
		return QuestionAttempt{}, err
	}
	return ans, nil
}

// CompleteAttempt scores every exam question against the recorded answers
// (unanswered = incorrect) and completes the attempt exactly once.
func (s *Service) CompleteAttempt(ctx context.Context, callerID, attemptID string) (Result, error) {
	res, err := s.completeAttempt(ctx, callerID, attemptID)
	if err != nil {
		metrics.AttemptRejected(metrics.KindExam, err)
		return Result{}, err
	}
	metrics.AttemptCompleted(metrics.KindExam, *res.Score, *res.Passed)
	for _, h := range s.hooks {
		h(ctx, res)
	}
	return res, nil
}

func (s *Service) completeAttempt(ctx context.Context, callerID, attemptID string) (Result, error) {
	a, err := s.ownedAttempt(ctx, callerID, attemptID)
	if err != nil {
		return Result{}, err
	}
	if a.Completed() {
		return Result{}, errs.ErrAlreadyCompleted
	}
	e, err := s.catalog.GetExam(ctx, a.ExamID)
	if err != nil {
		return Result{}, err
	}
	threshold := e.Threshold(s.defaultPass)
	now := s.now()
	completedAt := now.Unix()
	a.CompletedAt = &completedAt
	a.IsLate = a.Expired(now)

	var (
		sc     scoring.Result
		passed bool
		graded []QuestionAttempt
	)
	grade := func(recorded []QuestionAttempt) ([]QuestionAttempt, int, bool) {
		selected := map[string]string{}
		answeredAt := map[string]int64{}
		for _, r := range recorded {
			answeredAt[r.QuestionID] = r.AnsweredAt
			if r.SelectedOptionID == nil {
				continue
			}
			// content may have been re-imported since the answer was saved
			if q, ok := catalog.FindQuestion(e.Questions, r.QuestionID); ok && q.HasOption(*r.SelectedOptionID) {
				selected[r.QuestionID] = *r.SelectedOptionID
			}
		}
		sc = scoring.Score(catalog.ScoringItems(e.Questions, selected))
		passed = scoring.Passed(sc.Percentage, threshold)
		graded = make([]QuestionAttempt, 0, len(sc.Items))
		for _, g := range sc.Items {
			correct, earned := g.Correct, g.Earned
			at, ok := answeredAt[g.QuestionID]
			if !ok {
				at = completedAt
			}
			graded = append(graded, QuestionAttempt{
				QuestionID: g.QuestionID, SelectedOptionID: g.Selected, IsCorrect: &correct, PointsEarned: &earned, AnsweredAt: at,
			})
		}
		return graded, sc.Percentage, passed
	}

	var ev events.Event
	err = s.store.Complete(ctx, a, grade, func(ctx context.Context, q db.Querier) error {
		var err error
		ev, err = s.events.Append(ctx, q, events.TypeExamAttemptCompleted, a.ID, map[string]any{
			"attempt_id": a.ID, "user_id": a.UserID, "exam_id": a.ExamID,
			"score": sc.Percentage, "passed": passed, "is_late": a.IsLate,
		})
		return err
	})
	if err != nil {
		return Result{}, err
	}
	a.Score = &sc.Percentage
	a.Passed = &passed
	s.events.Publish(ctx, ev)
	if a.IsLate {
		log.Printf("exam: attempt %s completed after its deadline", a.ID)
	}

	a.Answers = graded
	return Result{
		Attempt:      a,
		EarnedPoints: sc.EarnedPoints,
		TotalPoints:  sc.TotalPoints,
		CorrectCount: sc.CorrectCount,
		TotalCount:   sc.TotalCount,
		Threshold:    threshold,
	}, nil
}

// GetAttempt returns the caller's own attempt with its answers.
func (s *Service) GetAttempt(ctx context.Context, callerID, attemptID string) (Attempt, error) {
	a, err := s.ownedAttempt(ctx, callerID, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Answers, err = s.store.Answers(ctx, a.ID); err != nil {
		return Attempt{}, err
	}
	return a, nil
}

func (s *Service) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error) {
	return s.store.ListAttempts(ctx, opts)
}

func (s *Service) Stats(ctx context.Context, examID string) (Stats, error) {
	e, err := s.catalog.GetExam(ctx, examID)
	if err != nil {
		return Stats{}, err
	}
	st, err := s.store.Stats(ctx, examID)
	if err != nil {
		return Stats{}, err
	}
	st.Threshold = e.Threshold(s.defaultPass)
	return st, nil
}

func (s *Service) ownedAttempt(ctx context.Context, callerID, attemptID string) (Attempt, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.UserID != callerID {
		return Attempt{}, errs.ErrNotOwner
	}
	return a, nil
}
