package http

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-courses/internal/errs"
)

type updateUserRoleReq struct {
	Role string `json:"role"`
}

// PATCH /admin/users/{userID}/role
func AdminUpdateUserRoleHandler(d *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := chi.URLParam(r, "userID")
		var req updateUserRoleReq
		if !decodeJSON(w, r, &req) {
			return
		}
		role := strings.ToLower(strings.TrimSpace(req.Role))
		if !validRole(role) {
			badRequest(w, "invalid role")
			return
		}

		var curRole string
		err := d.QueryRowContext(r.Context(), `SELECT role FROM users WHERE id=$1`, target).Scan(&curRole)
		if errors.Is(err, sql.ErrNoRows) {
			writeErr(w, r, errs.ErrUserNotFound)
			return
		}
		if err != nil {
			writeErr(w, r, err)
			return
		}
		// never demote the last admin
		if curRole == "admin" && role != "admin" {
			var admins int
			if err := d.QueryRowContext(r.Context(), `SELECT COUNT(1) FROM users WHERE role='admin'`).Scan(&admins); err != nil {
				writeErr(w, r, err)
				return
			}
			if admins <= 1 {
				writeErr(w, r, errs.Precondition("last_admin", "cannot demote the last admin"))
				return
			}
		}
		if _, err := d.ExecContext(r.Context(), `UPDATE users SET role=$2 WHERE id=$1`, target, role); err != nil {
			writeErr(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
