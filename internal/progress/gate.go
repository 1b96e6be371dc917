// Package progress decides chapter unlocking and records chapter
// completion for a user.
package progress

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mind-engage/mindengage-courses/internal/catalog"
	"github.com/mind-engage/mindengage-courses/internal/db"
	"github.com/mind-engage/mindengage-courses/internal/errs"
	"github.com/mind-engage/mindengage-courses/internal/events"
)

// Catalog is the slice of the content read model the gate needs.
type Catalog interface {
	GetChapter(ctx context.Context, id string) (catalog.Chapter, error)
	ChapterAt(ctx context.Context, courseID string, position int, publishedOnly bool) (catalog.Chapter, bool, error)
	ListChapters(ctx context.Context, courseID string, publishedOnly bool) ([]catalog.Chapter, error)
	QuizForChapter(ctx context.Context, chapterID string) (catalog.Quiz, bool, error)
}

type Gate struct {
	db      *sql.DB
	catalog Catalog
	events  *events.Recorder
}

func NewGate(d *sql.DB, c Catalog, rec *events.Recorder) *Gate {
	return &Gate{db: d, catalog: c, events: rec}
}

// CanAccessChapter: the chapter at position is open when there is no
// published chapter at position-1, or when that chapter is completed and,
// if it carries a published quiz, the user holds a passed attempt on it.
// A manual completion alone does not satisfy a quiz-gated chapter.
func (g *Gate) CanAccessChapter(ctx context.Context, userID, courseID string, position int) (bool, error) {
	prev, ok, err := g.catalog.ChapterAt(ctx, courseID, position-1, true)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	completed, err := isCompleted(ctx, g.db, userID, prev.ID)
	if err != nil {
		return false, errs.Fatal("read progress", err)
	}
	if !completed {
		return false, nil
	}
	qz, hasQuiz, err := g.catalog.QuizForChapter(ctx, prev.ID)
	if err != nil {
		return false, err
	}
	if !hasQuiz || !qz.IsPublished {
		return true, nil
	}
	passed, err := hasPassedQuiz(ctx, g.db, userID, qz.ID)
	if err != nil {
		return false, errs.Fatal("read quiz attempts", err)
	}
	return passed, nil
}

// MarkChapterComplete is the manual "mark complete" action.
func (g *Gate) MarkChapterComplete(ctx context.Context, userID, chapterID string) error {
	if _, err := g.catalog.GetChapter(ctx, chapterID); err != nil {
		return err
	}
	var ev *events.Event
	err := db.WithTx(ctx, g.db, func(tx *sql.Tx) error {
		var err error
		ev, err = g.MarkChapterCompleteTx(ctx, tx, userID, chapterID, "manual")
		return err
	})
	if err != nil {
		return errs.Fatal("mark chapter complete", err)
	}
	if ev != nil {
		g.events.Publish(ctx, *ev)
	}
	return nil
}

// MarkChapterCompleteTx upserts completion through the caller's
// transaction. It returns the recorded event, or nil when the chapter was
// already complete; the caller publishes it after commit.
func (g *Gate) MarkChapterCompleteTx(ctx context.Context, q db.Querier, userID, chapterID, source string) (*events.Event, error) {
	done, err := isCompleted(ctx, q, userID, chapterID)
	if err != nil {
		return nil, err
	}
	if _, err := q.ExecContext(ctx, `INSERT INTO user_progress (user_id, chapter_id, is_completed, completed_at)
		VALUES ($1,$2,TRUE,$3)
		ON CONFLICT (user_id, chapter_id) DO UPDATE SET is_completed=TRUE,
			completed_at=COALESCE(user_progress.completed_at, EXCLUDED.completed_at)`,
		userID, chapterID, time.Now().Unix()); err != nil {
		return nil, err
	}
	if done || g.events == nil {
		return nil, nil
	}
	ev, err := g.events.Append(ctx, q, events.TypeChapterCompleted, userID,
		map[string]string{"user_id": userID, "chapter_id": chapterID, "source": source})
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func isCompleted(ctx context.Context, q db.Querier, userID, chapterID string) (bool, error) {
	var done bool
	err := q.QueryRowContext(ctx, `SELECT is_completed FROM user_progress WHERE user_id=$1 AND chapter_id=$2`,
		userID, chapterID).Scan(&done)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return done, err
}

func hasPassedQuiz(ctx context.Context, q db.Querier, userID, quizID string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM quiz_attempts WHERE user_id=$1 AND quiz_id=$2 AND passed = TRUE LIMIT 1`,
		userID, quizID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}
