package gradesync

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mind-engage/mindengage-courses/internal/errs"
)

type SQLStore struct{ DB *sql.DB }

func (s *SQLStore) GetExam(ctx context.Context, id string) (Exam, error) {
	var ex Exam
	err := s.DB.QueryRowContext(ctx, `SELECT id, title FROM exams WHERE id=$1`, id).Scan(&ex.ID, &ex.Title)
	return ex, err
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	var (
		a         Attempt
		score     sql.NullInt64
		completed sql.NullInt64
	)
	err := s.DB.QueryRowContext(ctx, `SELECT id, exam_id, user_id, score, completed_at FROM exam_attempts WHERE id=$1`, id).
		Scan(&a.ID, &a.ExamID, &a.UserID, &score, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, errs.ErrAttemptNotFound
	}
	if err != nil {
		return Attempt{}, err
	}
	a.Score = int(score.Int64)
	if completed.Valid {
		t := time.Unix(completed.Int64, 0)
		a.CompletedAt = &t
	}
	return a, nil
}

func (s *SQLStore) FindLineItem(ctx context.Context, examID string) (LineItem, error) {
	var li LineItem
	err := s.DB.QueryRowContext(ctx, `SELECT exam_id, label, score_max, line_item_url FROM gradebook_lineitems WHERE exam_id=$1`, examID).
		Scan(&li.ExamID, &li.Label, &li.ScoreMax, &li.URL)
	return li, err
}

func (s *SQLStore) UpsertLineItem(ctx context.Context, li LineItem) (LineItem, error) {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO gradebook_lineitems (exam_id, label, score_max, line_item_url, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (exam_id)
		DO UPDATE SET
			label=EXCLUDED.label,
			score_max=EXCLUDED.score_max,
			line_item_url=EXCLUDED.line_item_url,
			updated_at=EXCLUDED.updated_at`,
		li.ExamID, li.Label, li.ScoreMax, li.URL, time.Now().Unix())
	return li, err
}

func (s *SQLStore) MarkSyncPending(ctx context.Context, attemptID string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO grade_sync_status (attempt_id, status, retries, updated_at)
		VALUES ($1,'pending',0,$2)
		ON CONFLICT (attempt_id)
		DO UPDATE SET status='pending', updated_at=EXCLUDED.updated_at`,
		attemptID, time.Now().Unix())
	return err
}

func (s *SQLStore) MarkSyncOK(ctx context.Context, attemptID string) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE grade_sync_status
		   SET status='ok', last_error=NULL, updated_at=$2
		 WHERE attempt_id=$1`, attemptID, time.Now().Unix())
	return err
}

func (s *SQLStore) MarkSyncFailed(ctx context.Context, attemptID, lastErr string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO grade_sync_status (attempt_id, status, retries, last_error, updated_at)
		VALUES ($1,'failed',1,$2,$3)
		ON CONFLICT (attempt_id)
		DO UPDATE SET
			status='failed',
			retries=grade_sync_status.retries+1,
			last_error=EXCLUDED.last_error,
			updated_at=EXCLUDED.updated_at`,
		attemptID, lastErr, time.Now().Unix())
	return err
}

func (s *SQLStore) GetSyncStatus(ctx context.Context, attemptID string) (SyncStatus, error) {
	var (
		st      SyncStatus
		lastErr sql.NullString
	)
	err := s.DB.QueryRowContext(ctx, `SELECT attempt_id, status, retries, last_error, updated_at
		FROM grade_sync_status WHERE attempt_id=$1`, attemptID).
		Scan(&st.AttemptID, &st.Status, &st.Retries, &lastErr, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SyncStatus{AttemptID: attemptID, Status: "none"}, nil
	}
	st.LastError = lastErr.String
	return st, err
}
