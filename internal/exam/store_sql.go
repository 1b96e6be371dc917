package exam

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mind-engage/mindengage-courses/internal/db"
	"github.com/mind-engage/mindengage-courses/internal/errs"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(d *sql.DB) *SQLStore {
	return &SQLStore{db: d}
}

const attemptCols = `id, exam_id, user_id, started_at, deadline_at, completed_at, score, passed, is_late`

// CreateAttempt inserts an InProgress attempt. The partial unique index
// uq_exam_attempts_active is the real guard; the read first only gives a
// clean error without relying on the driver's constraint message.
func (s *SQLStore) CreateAttempt(ctx context.Context, a Attempt, hook TxHook) error {
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var existing string
		err := tx.QueryRowContext(ctx, `SELECT id FROM exam_attempts WHERE user_id=$1 AND exam_id=$2 AND completed_at IS NULL`,
			a.UserID, a.ExamID).Scan(&existing)
		if err == nil {
			return errs.ErrAttemptAlreadyActive
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO exam_attempts (id, exam_id, user_id, started_at, deadline_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$4)`, a.ID, a.ExamID, a.UserID, a.StartedAt, a.DeadlineAt); err != nil {
			if db.IsUniqueViolation(err) {
				return errs.ErrAttemptAlreadyActive
			}
			return err
		}
		if hook != nil {
			return hook(ctx, tx)
		}
		return nil
	})
	return errs.Fatal("create exam attempt", err)
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	a, err := scanAttempt(s.db.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM exam_attempts WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, errs.ErrAttemptNotFound
	}
	if err != nil {
		return Attempt{}, errs.Fatal("get exam attempt", err)
	}
	return a, nil
}

// SaveAnswer upserts one answer. The attempt row is touched first with a
// completed_at IS NULL guard; Complete claims the same row before reading
// answers, so the two serialize on it.
func (s *SQLStore) SaveAnswer(ctx context.Context, attemptID string, ans QuestionAttempt) error {
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE exam_attempts SET updated_at=$1 WHERE id=$2 AND completed_at IS NULL`,
			ans.AnsweredAt, attemptID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return errs.ErrAlreadyCompleted
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO exam_question_attempts (attempt_id, question_id, selected_option_id, answered_at)
			VALUES ($1,$2,$3,$4)
			ON CONFLICT (attempt_id, question_id) DO UPDATE SET
				selected_option_id=EXCLUDED.selected_option_id, answered_at=EXCLUDED.answered_at`,
			attemptID, ans.QuestionID, ans.SelectedOptionID, ans.AnsweredAt)
		return err
	})
	return errs.Fatal("save exam answer", err)
}

func (s *SQLStore) Answers(ctx context.Context, attemptID string) ([]QuestionAttempt, error) {
	out, err := loadAnswers(ctx, s.db, attemptID)
	return out, errs.Fatal("load exam answers", err)
}

// Complete is the InProgress -> Completed transition in one transaction:
// claim the row, read the answers under that claim, grade, then write the
// score and the graded per-question rows.
func (s *SQLStore) Complete(ctx context.Context, a Attempt, grade Grader, hook TxHook) error {
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE exam_attempts
			SET completed_at=$1, is_late=$2, updated_at=$1
			WHERE id=$3 AND completed_at IS NULL`,
			*a.CompletedAt, a.IsLate, a.ID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return errs.ErrAlreadyCompleted
		}
		recorded, err := loadAnswers(ctx, tx, a.ID)
		if err != nil {
			return err
		}
		graded, score, passed := grade(recorded)
		if _, err := tx.ExecContext(ctx, `UPDATE exam_attempts SET score=$1, passed=$2 WHERE id=$3`,
			score, passed, a.ID); err != nil {
			return err
		}
		for _, g := range graded {
			if _, err := tx.ExecContext(ctx, `INSERT INTO exam_question_attempts
				(attempt_id, question_id, selected_option_id, is_correct, points_earned, answered_at)
				VALUES ($1,$2,$3,$4,$5,$6)
				ON CONFLICT (attempt_id, question_id) DO UPDATE SET
					selected_option_id=EXCLUDED.selected_option_id,
					is_correct=EXCLUDED.is_correct, points_earned=EXCLUDED.points_earned`,
				a.ID, g.QuestionID, g.SelectedOptionID, g.IsCorrect, g.PointsEarned, g.AnsweredAt); err != nil {
				return err
			}
		}
		if hook != nil {
			return hook(ctx, tx)
		}
		return nil
	})
	return errs.Fatal("complete exam attempt", err)
}

func (s *SQLStore) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if opts.ExamID != "" {
		add("exam_id=$%d", opts.ExamID)
	}
	if opts.UserID != "" {
		add("user_id=$%d", opts.UserID)
	}
	switch opts.Status {
	case "in_progress":
		where = append(where, "completed_at IS NULL")
	case "completed":
		where = append(where, "completed_at IS NOT NULL")
	}
	q := `SELECT ` + attemptCols + ` FROM exam_attempts`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	limit := opts.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := max(opts.Offset, 0)
	args = append(args, limit, offset)
	q += fmt.Sprintf(" ORDER BY started_at DESC, id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errs.Fatal("list exam attempts", err)
	}
	defer rows.Close()
	var out []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, errs.Fatal("list exam attempts", err)
		}
		out = append(out, a)
	}
	return out, errs.Fatal("list exam attempts", rows.Err())
}

func (s *SQLStore) Stats(ctx context.Context, examID string) (Stats, error) {
	var (
		st     = Stats{ExamID: examID}
		avg    sql.NullFloat64
		passed sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COUNT(completed_at), AVG(CAST(score AS REAL)),
			SUM(CASE WHEN passed THEN 1 ELSE 0 END)
		FROM exam_attempts WHERE exam_id=$1`, examID).
		Scan(&st.Attempts, &st.Completed, &avg, &passed)
	if err != nil {
		return Stats{}, errs.Fatal("exam stats", err)
	}
	st.AverageScore = avg.Float64
	st.Passed = int(passed.Int64)
	if st.Completed > 0 {
		st.PassRate = 100 * float64(st.Passed) / float64(st.Completed)
	}
	return st, nil
}

func loadAnswers(ctx context.Context, q db.Querier, attemptID string) ([]QuestionAttempt, error) {
	rows, err := q.QueryContext(ctx, `SELECT eqa.question_id, eqa.selected_option_id, eqa.is_correct, eqa.points_earned, eqa.answered_at
		FROM exam_question_attempts eqa
		LEFT JOIN questions qn ON qn.id = eqa.question_id
		WHERE eqa.attempt_id=$1 ORDER BY qn.position, eqa.question_id`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []QuestionAttempt
	for rows.Next() {
		var (
			qa      QuestionAttempt
			sel     sql.NullString
			correct sql.NullBool
			points  sql.NullFloat64
		)
		if err := rows.Scan(&qa.QuestionID, &sel, &correct, &points, &qa.AnsweredAt); err != nil {
			return nil, err
		}
		if sel.Valid {
			qa.SelectedOptionID = &sel.String
		}
		if correct.Valid {
			qa.IsCorrect = &correct.Bool
		}
		if points.Valid {
			qa.PointsEarned = &points.Float64
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
		a                   Attempt
		deadline, completed sql.NullInt64
		score               sql.NullInt64
		passed              sql.NullBool
	)
	if err := r.Scan(&a.ID, &a.ExamID, &a.UserID, &a.StartedAt, &deadline, &completed, &score, &passed, &a.IsLate); err != nil {
		return Attempt{}, err
	}
	if deadline.Valid {
		a.DeadlineAt = &deadline.Int64
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
