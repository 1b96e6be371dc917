package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-courses/internal/catalog"
	"github.com/mind-engage/mindengage-courses/internal/rbac"
)

// PUT /courses/{courseID}: replaces the whole authored tree of one course.
func ImportCourseHandler(cat *catalog.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in catalog.CourseImport
		if !decodeJSON(w, r, &in) {
			return
		}
		in.ID = chi.URLParam(r, "courseID")
		out, err := cat.ImportCourse(r.Context(), in)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GET /courses/{courseID}: course header and its chapters. Authors also
// see unpublished chapters.
func GetCourseHandler(cat *catalog.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "courseID")
		c, err := cat.GetCourse(r.Context(), id)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		authoring := checker.Has(rbac.RoleFromContext(r.Context()), "course:import")
		chapters, err := cat.ListChapters(r.Context(), id, !authoring)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		if chapters == nil {
			chapters = []catalog.Chapter{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"course": c, "chapters": chapters})
	}
}
