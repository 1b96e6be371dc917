package auth

import (
	"database/sql"
	"errors"
	"log"
	"net/http"

	"github.com/mind-engage/mindengage-courses/internal/rbac"
)

// AttachRoleFromDB replaces the token's role claim with the role stored
// on the user row, so demotions apply before the token expires.
// allowClaimFallback=true in offline/dev; false in online mode.
func AttachRoleFromDB(db *sql.DB, allowClaimFallback bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sub := rbac.SubjectFromContext(ctx)
			claimRole := rbac.RoleFromContext(ctx)

			var role string
			err := db.QueryRowContext(ctx, `SELECT role FROM users WHERE id=$1`, sub).Scan(&role)
			switch {
			case err == nil && role != "":
				next.ServeHTTP(w, r.WithContext(rbac.WithRole(ctx, role)))
			case errors.Is(err, sql.ErrNoRows):
				http.Error(w, "unknown user", http.StatusUnauthorized)
			default:
				if allowClaimFallback && claimRole != "" {
					next.ServeHTTP(w, r)
					return
				}
				log.Printf("attach role: %v", err)
				http.Error(w, "forbidden", http.StatusForbidden)
			}
		})
	}
}
