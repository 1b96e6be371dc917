package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-courses/internal/access"
)

// RequireCapability is the single access check in front of every graded
// attempt entry point.
func RequireCapability(gate *access.Gate, cp access.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sub, ok := subject(w, r)
			if !ok {
				return
			}
			if err := gate.Require(r.Context(), sub, cp); err != nil {
				writeErr(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GET /me/access
func MyAccessHandler(gate *access.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, ok := subject(w, r)
		if !ok {
			return
		}
		a, err := gate.ResolveUser(r.Context(), sub)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// POST /me/trial
func StartTrialHandler(gate *access.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, ok := subject(w, r)
		if !ok {
			return
		}
		a, err := gate.StartTrial(r.Context(), sub)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

type updateAccessReq struct {
	Tier   *string `json:"tier"`
	Banned *bool   `json:"banned"`
}

// PATCH /admin/users/{userID}/access  { "tier": "full_access", "banned": false }
func AdminUpdateAccessHandler(gate *access.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := chi.URLParam(r, "userID")
		var req updateAccessReq
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Tier == nil && req.Banned == nil {
			badRequest(w, "tier or banned required")
			return
		}
		if req.Tier != nil {
			tier, err := access.ParseTier(*req.Tier)
			if err != nil {
				writeErr(w, r, err)
				return
			}
			if err := gate.SetTier(r.Context(), target, tier); err != nil {
				writeErr(w, r, err)
				return
			}
		}
		if req.Banned != nil {
			if err := gate.SetBanned(r.Context(), target, *req.Banned); err != nil {
				writeErr(w, r, err)
				return
			}
		}
		u, err := gate.GetUser(r.Context(), target)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}
