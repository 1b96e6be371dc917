package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-courses/internal/progress"
)

// GET /courses/{courseID}/chapters/{position}/access
func ChapterAccessHandler(g *progress.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, ok := subject(w, r)
		if !ok {
			return
		}
		pos, err := strconv.Atoi(chi.URLParam(r, "position"))
		if err != nil {
			badRequest(w, "position must be an integer")
			return
		}
		allowed, err := g.CanAccessChapter(r.Context(), sub, chi.URLParam(r, "courseID"), pos)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"position": pos, "can_access": allowed})
	}
}

// GET /courses/{courseID}/outline
func OutlineHandler(g *progress.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, ok := subject(w, r)
		if !ok {
			return
		}
		out, err := g.Outline(r.Context(), sub, chi.URLParam(r, "courseID"))
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// POST /chapters/{chapterID}/complete
func MarkChapterCompleteHandler(g *progress.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, ok := subject(w, r)
		if !ok {
			return
		}
		if err := g.MarkChapterComplete(r.Context(), sub, chi.URLParam(r, "chapterID")); err != nil {
			writeErr(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
