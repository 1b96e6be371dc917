package quiz

import (
	"context"
	"database/sql"
	"errors"

	"github.com/mind-engage/mindengage-courses/internal/db"
	"github.com/mind-engage/mindengage-courses/internal/errs"
)

const attemptCols = `id, user_id, quiz_id, created_at, completed_at, score, passed, is_free_attempt, dropped_answers`

type quota struct {
	used   int
	passed bool
}

func readQuota(ctx context.Context, q db.Querier, userID, quizID string) (quota, error) {
	var qt quota
	err := q.QueryRowContext(ctx, `SELECT used, passed FROM quiz_attempt_quota WHERE user_id=$1 AND quiz_id=$2`,
		userID, quizID).Scan(&qt.used, &qt.passed)
	if errors.Is(err, sql.ErrNoRows) {
		return quota{}, nil
	}
	return qt, err
}

// claimQuota atomically consumes one attempt. ok is false when the
// conditional upsert matched no row (ceiling reached or quiz passed).
func claimQuota(ctx context.Context, q db.Querier, userID, quizID string, ceiling int) (used int, ok bool, err error) {
	var row *sql.Row
	if ceiling < 0 {
		row = q.QueryRowContext(ctx, `INSERT INTO quiz_attempt_quota (user_id, quiz_id, used, passed)
			VALUES ($1,$2,1,FALSE)
			ON CONFLICT (user_id, quiz_id) DO UPDATE SET used = quiz_attempt_quota.used + 1
			WHERE quiz_attempt_quota.passed = FALSE
			RETURNING used`, userID, quizID)
	} else {
		row = q.QueryRowContext(ctx, `INSERT INTO quiz_attempt_quota (user_id, quiz_id, used, passed)
			VALUES ($1,$2,1,FALSE)
			ON CONFLICT (user_id, quiz_id) DO UPDATE SET used = quiz_attempt_quota.used + 1
			WHERE quiz_attempt_quota.passed = FALSE AND quiz_attempt_quota.used < $3
			RETURNING used`, userID, quizID, ceiling)
	}
	err = row.Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return used, true, nil
}

func activeAttemptID(ctx context.Context, q db.Querier, userID, quizID string) (string, error) {
	var id string
	err := q.QueryRowContext(ctx, `SELECT id FROM quiz_attempts WHERE user_id=$1 AND quiz_id=$2 AND completed_at IS NULL`,
		userID, quizID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, err
}

func insertAttempt(ctx context.Context, q db.Querier, a Attempt) error {
	_, err := q.ExecContext(ctx, `INSERT INTO quiz_attempts (id, user_id, quiz_id, created_at, is_free_attempt)
		VALUES ($1,$2,$3,$4,$5)`, a.ID, a.UserID, a.QuizID, a.CreatedAt, a.IsFreeAttempt)
	return err
}

// completeAttempt is the InProgress -> Completed transition. It reports
// false when another submission got there first.
func completeAttempt(ctx context.Context, q db.Querier, a Attempt) (bool, error) {
	res, err := q.ExecContext(ctx, `UPDATE quiz_attempts
		SET completed_at=$1, score=$2, passed=$3, dropped_answers=$4
		WHERE id=$5 AND completed_at IS NULL`,
		*a.CompletedAt, *a.Score, *a.Passed, a.DroppedAnswers, a.ID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func insertQuestionAttempts(ctx context.Context, q db.Querier, attemptID string, qas []QuestionAttempt, newID func() string) error {
	for _, qa := range qas {
		if _, err := q.ExecContext(ctx, `INSERT INTO quiz_question_attempts
			(id, attempt_id, question_id, selected_option_id, is_correct, points_earned)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			newID(), attemptID, qa.QuestionID, qa.SelectedOptionID, qa.IsCorrect, qa.PointsEarned); err != nil {
			return err
		}
	}
	return nil
}

func markQuotaPassed(ctx context.Context, q db.Querier, userID, quizID string) error {
	_, err := q.ExecContext(ctx, `UPDATE quiz_attempt_quota SET passed=TRUE WHERE user_id=$1 AND quiz_id=$2`, userID, quizID)
	return err
}

func getAttempt(ctx context.Context, q db.Querier, id string) (Attempt, error) {
	a, err := scanAttempt(q.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM quiz_attempts WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, errs.ErrAttemptNotFound
	}
	if err != nil {
		return Attempt{}, errs.Fatal("get quiz attempt", err)
	}
	return a, nil
}

func listAttempts(ctx context.Context, q db.Querier, userID, quizID string) ([]Attempt, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+attemptCols+` FROM quiz_attempts
		WHERE user_id=$1 AND quiz_id=$2 ORDER BY created_at, id`, userID, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func loadQuestionAttempts(ctx context.Context, q db.Querier, attemptID string) ([]QuestionAttempt, error) {
	rows, err := q.QueryContext(ctx, `SELECT qqa.question_id, qqa.selected_option_id, qqa.is_correct, qqa.points_earned
		FROM quiz_question_attempts qqa
		LEFT JOIN questions qn ON qn.id = qqa.question_id
		WHERE qqa.attempt_id=$1 ORDER BY qn.position, qqa.question_id`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []QuestionAttempt
	for rows.Next() {
		var (
			qa  QuestionAttempt
			sel sql.NullString
		)
		if err := rows.Scan(&qa.QuestionID, &sel, &qa.IsCorrect, &qa.PointsEarned); err != nil {
			return nil, err
		}
		if sel.Valid {
			qa.SelectedOptionID = &sel.String
		}
		out = append(out, qa)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(r rowScanner) (Attempt, error) {
	var (
		a         Attempt
		completed sql.NullInt64
		score     sql.NullInt64
		passed    sql.NullBool
	)
	if err := r.Scan(&a.ID, &a.UserID, &a.QuizID, &a.CreatedAt, &completed, &score, &passed,
		&a.IsFreeAttempt, &a.DroppedAnswers); err != nil {
		return Attempt{}, err
	}
	if completed.Valid {
		a.CompletedAt = &completed.Int64
	}
	if score.Valid {
		v := int(score.Int64)
		a.Score = &v
	}
	if passed.Valid {
		a.Passed = &passed.Bool
	}
	return a, nil
}
