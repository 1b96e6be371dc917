package http

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-courses/internal/db"
	"github.com/mind-engage/mindengage-courses/internal/errs"
	"github.com/mind-engage/mindengage-courses/internal/events"
)

// -----------------------------
// Admin: Compliance & Audit
// -----------------------------

// userRecordQueries lists everything stored about one learner.
var userRecordQueries = []struct{ key, q string }{
	{"user", `SELECT id, username, role, access_tier, trial_start_at, trial_end_at, trial_used, banned, created_at FROM users WHERE id=$1`},
	{"quiz_attempts", `SELECT id, quiz_id, created_at, completed_at, score, passed, is_free_attempt, dropped_answers FROM quiz_attempts WHERE user_id=$1 ORDER BY created_at`},
	{"quiz_quota", `SELECT quiz_id, used, passed FROM quiz_attempt_quota WHERE user_id=$1 ORDER BY quiz_id`},
	{"exam_attempts", `SELECT id, exam_id, started_at, deadline_at, completed_at, score, passed, is_late FROM exam_attempts WHERE user_id=$1 ORDER BY started_at`},
	{"progress", `SELECT chapter_id, is_completed, completed_at FROM user_progress WHERE user_id=$1 ORDER BY chapter_id`},
}

// GET /admin/users/{userID}/export: the learner's full record as a download.
func AdminExportUserHandler(d *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		resp := map[string]any{}
		for _, rq := range userRecordQueries {
			rows, err := queryMaps(r.Context(), d, rq.q, userID)
			if err != nil {
				writeErr(w, r, err)
				return
			}
			resp[rq.key] = rows
		}
		if len(resp["user"].([]map[string]any)) == 0 {
			writeErr(w, r, errs.ErrUserNotFound)
			return
		}
		resp["user"] = resp["user"].([]map[string]any)[0]

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "learner_"+userID+".json"))
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// DELETE /admin/users/{userID}: removes the user and every attempt,
// quota and progress row keyed by them. The event log is append-only and
// is left alone.
func AdminDeleteUserHandler(d *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		ctx := r.Context()
		err := db.WithTx(ctx, d, func(tx *sql.Tx) error {
			for _, q := range []string{
				`DELETE FROM quiz_question_attempts WHERE attempt_id IN (SELECT id FROM quiz_attempts WHERE user_id=$1)`,
				`DELETE FROM quiz_attempts WHERE user_id=$1`,
				`DELETE FROM quiz_attempt_quota WHERE user_id=$1`,
				`DELETE FROM grade_sync_status WHERE attempt_id IN (SELECT id FROM exam_attempts WHERE user_id=$1)`,
				`DELETE FROM exam_question_attempts WHERE attempt_id IN (SELECT id FROM exam_attempts WHERE user_id=$1)`,
				`DELETE FROM exam_attempts WHERE user_id=$1`,
				`DELETE FROM user_progress WHERE user_id=$1`,
			} {
				if _, err := tx.ExecContext(ctx, q, userID); err != nil {
					return err
				}
			}
			res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, userID)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return errs.ErrUserNotFound
			}
			return nil
		})
		if err != nil {
			writeErr(w, r, errs.Fatal("delete user", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

// GET /admin/audit?q=quiz: recent outbox events whose type or key contains q.
func AdminAuditSearchHandler(d *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		rows, err := d.QueryContext(r.Context(),
			`SELECT seq, site_id, typ, key, data, created_at FROM event_log
			 WHERE typ LIKE '%'||$1||'%' OR key LIKE '%'||$1||'%'
			 ORDER BY seq DESC LIMIT 100`, q)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		defer rows.Close()

		out := []events.Event{}
		for rows.Next() {
			var (
				ev   events.Event
				data string
			)
			if err := rows.Scan(&ev.Seq, &ev.SiteID, &ev.Type, &ev.Key, &data, &ev.CreatedAt); err != nil {
				writeErr(w, r, err)
				return
			}
			ev.Data = json.RawMessage(data)
			out = append(out, ev)
		}
		if err := rows.Err(); err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// queryMaps scans every row into a column->value map.
func queryMaps(ctx context.Context, q db.Querier, query string, args ...any) ([]map[string]any, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := []map[string]any{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		m := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				m[c] = string(b)
				continue
			}
			m[c] = vals[i]
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
