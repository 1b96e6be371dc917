package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
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
	GetQuiz(ctx context.Context, id string) (catalog.Quiz, error)
}

// Progress records chapter completion inside the submit transaction.
type Progress interface {
	MarkChapterCompleteTx(ctx context.Context, q db.Querier, userID, chapterID, source string) (*events.Event, error)
}

type Service struct {
	db       *sql.DB
	catalog  Catalog
	progress Progress
	events   *events.Recorder
	now      func() time.Time
	newID    func() string
}

func NewService(d *sql.DB, c Catalog, p Progress, rec *events.Recorder) *Service {
	return &Service{db: d, catalog: c, progress: p, events: rec, now: time.Now, newID: uuid.NewString}
}

// StartAttempt opens an InProgress attempt. The attempt counter lives in
// quiz_attempt_quota and is claimed by a conditional upsert in the same
// transaction as the insert; the partial unique index on in-progress
// attempts catches a concurrent second start.
func (s *Service) StartAttempt(ctx context.Context, userID, quizID string) (Attempt, error) {
	a, err := s.startAttempt(ctx, userID, quizID)
	if err != nil {
		metrics.AttemptRejected(metrics.KindQuiz, err)
		return Attempt{}, err
	}
	metrics.AttemptStarted(metrics.KindQuiz)
	return a, nil
}

func (s *Service) startAttempt(ctx context.Context, userID, quizID string) (Attempt, error) {
	qz, err := s.catalog.GetQuiz(ctx, quizID)
	if err != nil {
		return Attempt{}, err
	}
	if !qz.IsPublished {
		return Attempt{}, ErrQuizNotPublished
	}

	a := Attempt{ID: s.newID(), UserID: userID, QuizID: quizID, CreatedAt: s.now().Unix()}
	var ev events.Event
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		qt, err := readQuota(ctx, tx, userID, quizID)
		if err != nil {
			return err
		}
		if qt.passed {
			return ErrAlreadyPassed
		}
		active, err := activeAttemptID(ctx, tx, userID, quizID)
		if err != nil {
			return err
		}
		if active != "" {
			return errs.ErrAttemptAlreadyActive
		}
		if !qz.Unlimited() && qt.used >= qz.AttemptCeiling {
			return ErrNoAttemptsRemaining
		}

		used, ok, err := claimQuota(ctx, tx, userID, quizID, qz.AttemptCeiling)
		if err != nil {
			return err
		}
		if !ok {
			// lost a race against a pass or the last free attempt
			if qt, err := readQuota(ctx, tx, userID, quizID); err == nil && qt.passed {
				return ErrAlreadyPassed
			}
			return ErrNoAttemptsRemaining
		}
		prior := used - 1
		a.IsFreeAttempt = qz.Unlimited() || prior < qz.AttemptCeiling

		if err := insertAttempt(ctx, tx, a); err != nil {
			if db.IsUniqueViolation(err) {
				return errs.ErrAttemptAlreadyActive
			}
			return err
		}
		ev, err = s.events.Append(ctx, tx, events.TypeQuizAttemptStarted, a.ID,
			map[string]any{"attempt_id": a.ID, "user_id": userID, "quiz_id": quizID, "attempt_number": used})
		return err
	})
	if err != nil {
		return Attempt{}, errs.Fatal("start quiz attempt", err)
	}
	s.events.Publish(ctx, ev)
	return a, nil
}

// SubmitAttempt scores and completes an attempt exactly once. The attempt
// row, its question attempts and (on pass) chapter progress are written
// in one transaction.
func (s *Service) SubmitAttempt(ctx context.Context, callerID, attemptID string, raw json.RawMessage) (Result, error) {
	res, err := s.submitAttempt(ctx, callerID, attemptID, raw)
	if err != nil {
		metrics.AttemptRejected(metrics.KindQuiz, err)
		return Result{}, err
	}
	metrics.AttemptCompleted(metrics.KindQuiz, *res.Score, *res.Passed)
	return res, nil
}

func (s *Service) submitAttempt(ctx context.Context, callerID, attemptID string, raw json.RawMessage) (Result, error) {
	a, err := getAttempt(ctx, s.db, attemptID)
	if err != nil {
		return Result{}, err
	}
	if a.UserID != callerID {
		return Result{}, errs.ErrNotOwner
	}
	if a.Completed() {
		return Result{}, errs.ErrAlreadyCompleted
	}
	answers, dropped, err := DecodeAnswers(raw)
	if err != nil {
		return Result{}, err
	}
	qz, err := s.catalog.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return Result{}, err
	}
	selected, unmatched := matchAnswers(qz.Questions, answers)

	sc := scoring.Score(catalog.ScoringItems(qz.Questions, selected))
	passed := scoring.Passed(sc.Percentage, qz.RequiredScore)
	now := s.now().Unix()
	a.CompletedAt = &now
	a.Score = &sc.Percentage
	a.Passed = &passed
	a.DroppedAnswers = dropped + unmatched
	a.Questions = make([]QuestionAttempt, 0, len(sc.Items))
	for _, g := range sc.Items {
		a.Questions = append(a.Questions, QuestionAttempt{
			QuestionID: g.QuestionID, SelectedOptionID: g.Selected, IsCorrect: g.Correct, PointsEarned: g.Earned,
		})
	}

	var (
		evs       []events.Event
		chapterEv *events.Event
	)
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		ok, err := completeAttempt(ctx, tx, a)
		if err != nil {
			return err
		}
		if !ok {
			return errs.ErrAlreadyCompleted
		}
		if err := insertQuestionAttempts(ctx, tx, a.ID, a.Questions, s.newID); err != nil {
			return err
		}
		if passed {
			if err := markQuotaPassed(ctx, tx, a.UserID, a.QuizID); err != nil {
				return err
			}
			if chapterEv, err = s.progress.MarkChapterCompleteTx(ctx, tx, a.UserID, qz.ChapterID, "quiz"); err != nil {
				return err
			}
		}
		ev, err := s.events.Append(ctx, tx, events.TypeQuizAttemptCompleted, a.ID, map[string]any{
			"attempt_id": a.ID, "user_id": a.UserID, "quiz_id": a.QuizID, "chapter_id": qz.ChapterID,
			"score": sc.Percentage, "passed": passed,
		})
		evs = append(evs, ev)
		return err
	})
	if err != nil {
		return Result{}, errs.Fatal("submit quiz attempt", err)
	}
	if chapterEv != nil {
		evs = append(evs, *chapterEv)
	}
	s.events.Publish(ctx, evs...)

	return Result{
		Attempt:          a,
		EarnedPoints:     sc.EarnedPoints,
		TotalPoints:      sc.TotalPoints,
		CorrectCount:     sc.CorrectCount,
		TotalCount:       sc.TotalCount,
		ChapterCompleted: passed,
	}, nil
}

// GetAttempt returns the caller's own attempt with its graded questions.
func (s *Service) GetAttempt(ctx context.Context, callerID, attemptID string) (Attempt, error) {
	a, err := getAttempt(ctx, s.db, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.UserID != callerID {
		return Attempt{}, errs.ErrNotOwner
	}
	if a.Completed() {
		if a.Questions, err = loadQuestionAttempts(ctx, s.db, a.ID); err != nil {
			return Attempt{}, errs.Fatal("load question attempts", err)
		}
	}
	return a, nil
}

func (s *Service) ListAttempts(ctx context.Context, userID, quizID string) ([]Attempt, error) {
	out, err := listAttempts(ctx, s.db, userID, quizID)
	return out, errs.Fatal("list quiz attempts", err)
}

func (s *Service) Status(ctx context.Context, userID, quizID string) (Status, error) {
	qz, err := s.catalog.GetQuiz(ctx, quizID)
	if err != nil {
		return Status{}, err
	}
	qt, err := readQuota(ctx, s.db, userID, quizID)
	if err != nil {
		return Status{}, errs.Fatal("read quiz quota", err)
	}
	active, err := activeAttemptID(ctx, s.db, userID, quizID)
	if err != nil {
		return Status{}, errs.Fatal("read active attempt", err)
	}
	st := Status{QuizID: quizID, AttemptsUsed: qt.used, Passed: qt.passed, ActiveAttemptID: active, AttemptsRemaining: -1}
	if !qz.Unlimited() {
		st.AttemptsRemaining = max(qz.AttemptCeiling-qt.used, 0)
	}
	return st, nil
}
