// Package http exposes the engines over JSON/HTTP. Handlers are thin: they
// read the principal from the context, call one engine operation and map
// its error kind onto a status code.
package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/mind-engage/mindengage-courses/internal/errs"
	"github.com/mind-engage/mindengage-courses/internal/rbac"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps an engine error onto 404/409/400/500. Only fatal errors
// are logged; the cause never reaches the client.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch errs.KindOf(err) {
	case errs.KindNotFound:
		status = http.StatusNotFound
	case errs.KindPrecondition:
		status = http.StatusConflict
	case errs.KindValidation:
		status = http.StatusBadRequest
	default:
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
		writeJSON(w, status, map[string]string{"code": "internal", "error": "internal error"})
		return
	}
	var e *errs.Error
	msg := err.Error()
	if errors.As(err, &e) {
		msg = e.Msg
	}
	writeJSON(w, status, map[string]string{"code": errs.CodeOf(err), "error": msg})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"code": "bad_request", "error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "bad json")
		return false
	}
	return true
}

// subject returns the authenticated user id, answering 401 when absent.
func subject(w http.ResponseWriter, r *http.Request) (string, bool) {
	sub := rbac.SubjectFromContext(r.Context())
	if sub == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"code": "unauthorized", "error": "unauthorized"})
		return "", false
	}
	return sub, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}
