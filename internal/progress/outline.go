package progress

import (
	"context"

	"github.com/mind-engage/mindengage-courses/internal/errs"
)

// ChapterStatus is one row of a student's course navigation.
type ChapterStatus struct {
	ChapterID  string `json:"chapter_id"`
	Position   int    `json:"position"`
	Title      string `json:"title"`
	Completed  bool   `json:"completed"`
	Unlocked   bool   `json:"unlocked"`
	QuizID     string `json:"quiz_id,omitempty"`
	QuizPassed bool   `json:"quiz_passed,omitempty"`
}

// Outline lists the published chapters of a course with the user's
// completion and the same unlock rule CanAccessChapter applies.
func (g *Gate) Outline(ctx context.Context, userID, courseID string) ([]ChapterStatus, error) {
	chapters, err := g.catalog.ListChapters(ctx, courseID, true)
	if err != nil {
		return nil, err
	}
	completed, err := g.completedIn(ctx, userID, courseID)
	if err != nil {
		return nil, errs.Fatal("outline progress", err)
	}
	passed, err := g.passedQuizzesIn(ctx, userID, courseID)
	if err != nil {
		return nil, errs.Fatal("outline quizzes", err)
	}

	out := make([]ChapterStatus, 0, len(chapters))
	byPos := make(map[int]ChapterStatus, len(chapters))
	gated := make(map[int]bool, len(chapters)) // position -> carries a published quiz
	for _, ch := range chapters {
		st := ChapterStatus{ChapterID: ch.ID, Position: ch.Position, Title: ch.Title, Completed: completed[ch.ID]}
		qz, ok, err := g.catalog.QuizForChapter(ctx, ch.ID)
		if err != nil {
			return nil, err
		}
		if ok && qz.IsPublished {
			st.QuizID = qz.ID
			st.QuizPassed = passed[qz.ID]
			gated[ch.Position] = true
		}
		byPos[ch.Position] = st
		out = append(out, st)
	}
	for i := range out {
		prev, ok := byPos[out[i].Position-1]
		switch {
		case !ok:
			out[i].Unlocked = true
		case !prev.Completed:
		case gated[prev.Position] && !prev.QuizPassed:
		default:
			out[i].Unlocked = true
		}
	}
	return out, nil
}

func (g *Gate) completedIn(ctx context.Context, userID, courseID string) (map[string]bool, error) {
	rows, err := g.db.QueryContext(ctx, `SELECT up.chapter_id FROM user_progress up
		JOIN chapters c ON c.id = up.chapter_id
		WHERE up.user_id=$1 AND c.course_id=$2 AND up.is_completed = TRUE`, userID, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

func (g *Gate) passedQuizzesIn(ctx context.Context, userID, courseID string) (map[string]bool, error) {
	rows, err := g.db.QueryContext(ctx, `SELECT DISTINCT qa.quiz_id FROM quiz_attempts qa
		JOIN quizzes q ON q.id = qa.quiz_id
		JOIN chapters c ON c.id = q.chapter_id
		WHERE qa.user_id=$1 AND c.course_id=$2 AND qa.passed = TRUE`, userID, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}
