package http

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-courses/internal/db"
	"github.com/mind-engage/mindengage-courses/internal/errs"
)

const bcryptCost = 12

type userRow struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`               // usually "student"
	Password string `json:"password,omitempty"` // plaintext, hashed on the way in
}

func validRole(role string) bool {
	return role == "student" || role == "teacher" || role == "admin"
}

// POST /users/bulk: JSON array body, or multipart file= holding CSV/JSON.
func BulkUpsertUsersHandler(d *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rows []userRow
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			f, _, err := r.FormFile("file")
			if err != nil {
				badRequest(w, "file required")
				return
			}
			defer f.Close()
			rows, err = parseUserFile(f)
			if err != nil {
				badRequest(w, err.Error())
				return
			}
		} else if !decodeJSON(w, r, &rows) {
			return
		}
		if len(rows) == 0 {
			writeJSON(w, http.StatusOK, map[string]int{"inserted": 0, "updated": 0})
			return
		}

		ins, upd, err := upsertUsers(r.Context(), d, rows)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"inserted": ins, "updated": upd})
	}
}

// GET /users?role=student
func ListUsersHandler(d *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := r.URL.Query().Get("role")
		q := `SELECT id, username, role, access_tier, banned FROM users`
		var args []any
		if role != "" {
			q += ` WHERE role=$1`
			args = append(args, role)
		}
		rows, err := d.QueryContext(r.Context(), q+` ORDER BY username`, args...)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		defer rows.Close()
		type user struct {
			ID       string `json:"id"`
			Username string `json:"username"`
			Role     string `json:"role"`
			Tier     string `json:"access_tier"`
			Banned   bool   `json:"banned"`
		}
		out := []user{}
		for rows.Next() {
			var u user
			if err := rows.Scan(&u.ID, &u.Username, &u.Role, &u.Tier, &u.Banned); err != nil {
				writeErr(w, r, err)
				return
			}
			out = append(out, u)
		}
		if err := rows.Err(); err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// parseUserFile sniffs JSON vs CSV by the first non-space byte.
func parseUserFile(r io.Reader) ([]userRow, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, errors.New("empty file")
	}
	if trimmed[0] == '[' {
		var rows []userRow
		if err := json.Unmarshal([]byte(trimmed), &rows); err != nil {
			return nil, errors.New("bad json")
		}
		return rows, nil
	}
	rows, err := parseCSV(strings.NewReader(trimmed))
	if err != nil {
		return nil, errors.New("bad csv: " + err.Error())
	}
	return rows, nil
}

func parseCSV(r io.Reader) ([]userRow, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	hdr, err := cr.Read()
	if err != nil {
		return nil, err
	}
	idx := map[string]int{}
	for i, h := range hdr {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, k := range []string{"username", "role"} {
		if _, ok := idx[k]; !ok {
			return nil, errors.New("missing column: " + k)
		}
	}
	var rows []userRow
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		row := userRow{
			Username: rec[idx["username"]],
			Role:     strings.ToLower(rec[idx["role"]]),
		}
		if i, ok := idx["id"]; ok {
			row.ID = rec[i]
		}
		if i, ok := idx["password"]; ok {
			row.Password = rec[i]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// upsertUsers matches rows by id, then username. New users need a password;
// existing users keep theirs unless one is given. Access tier is never
// touched here.
func upsertUsers(ctx context.Context, d *sql.DB, rows []userRow) (inserted, updated int, err error) {
	now := time.Now().Unix()
	err = db.WithTx(ctx, d, func(tx *sql.Tx) error {
		for _, r := range rows {
			r.Username = strings.TrimSpace(r.Username)
			if r.Username == "" {
				return errs.Validation("invalid_user", "username required")
			}
			if r.Role == "" {
				r.Role = "student"
			}
			if !validRole(r.Role) {
				return errs.Validationf("invalid_role", "invalid role: %s", r.Role)
			}
			var phash string
			if r.Password != "" {
				b, err := bcrypt.GenerateFromPassword([]byte(r.Password), bcryptCost)
				if err != nil {
					return err
				}
				phash = string(b)
			}

			var id string
			err := tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id=$1 OR username=$2`, r.ID, r.Username).Scan(&id)
			switch {
			case err == nil:
				if phash != "" {
					_, err = tx.ExecContext(ctx, `UPDATE users SET username=$1, role=$2, password_hash=$3 WHERE id=$4`,
						r.Username, r.Role, phash, id)
				} else {
					_, err = tx.ExecContext(ctx, `UPDATE users SET username=$1, role=$2 WHERE id=$3`,
						r.Username, r.Role, id)
				}
				if err != nil {
					if db.IsUniqueViolation(err) {
						return errs.Validationf("username_taken", "username already taken: %s", r.Username)
					}
					return err
				}
				updated++
			case errors.Is(err, sql.ErrNoRows):
				if phash == "" {
					return errs.Validationf("password_required", "password required for new user: %s", r.Username)
				}
				if r.ID == "" {
					r.ID = uuid.NewString()
				}
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO users (id, username, password_hash, role, created_at) VALUES ($1,$2,$3,$4,$5)`,
					r.ID, r.Username, phash, r.Role, now); err != nil {
					return err
				}
				inserted++
			default:
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, errs.Fatal("upsert users", err)
	}
	return inserted, updated, nil
}
