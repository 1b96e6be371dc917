package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChecker_Has(t *testing.T) {
	c := NewChecker(map[string][]string{
		"student": {"quiz:attempt"},
		"grader":  {"exam:*"},
		"admin":   {"*"},
	})
	cases := []struct {
		role, perm string
		want       bool
	}{
		{"student", "quiz:attempt", true},
		{"student", "exam:stats", false},
		{"grader", "exam:stats", true},
		{"grader", "quiz:view", false},
		{"admin", "anything:at-all", true},
		{"ghost", "quiz:attempt", false},
	}
	for _, tc := range cases {
		if got := c.Has(tc.role, tc.perm); got != tc.want {
			t.Errorf("Has(%q,%q)=%v want %v", tc.role, tc.perm, got, tc.want)
		}
	}
	if !c.Any("student", "exam:stats", "quiz:attempt") {
		t.Errorf("Any should match the second permission")
	}
}

func TestDefaultPolicy(t *testing.T) {
	c := NewChecker(nil)
	if c.Has("student", "course:import") || c.Has("student", "exam:stats") {
		t.Fatalf("student must not import or read stats")
	}
	if !c.Has("teacher", "course:import") || !c.Has("teacher", "gradebook:resync") {
		t.Fatalf("teacher must import and resync")
	}
	if !c.Has("admin", "access:admin") {
		t.Fatalf("admin holds everything")
	}
}

func TestRequireMiddleware(t *testing.T) {
	h := Require("exam:stats")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	for role, want := range map[string]int{
		"":        http.StatusForbidden,
		"student": http.StatusForbidden,
		"teacher": http.StatusTeapot,
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithRole(context.Background(), role))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Errorf("role %q: status %d want %d", role, rec.Code, want)
		}
	}
}

func TestSubjectContext(t *testing.T) {
	ctx := WithSubject(WithRole(context.Background(), "student"), "u1")
	if SubjectFromContext(ctx) != "u1" || RoleFromContext(ctx) != "student" {
		t.Fatalf("principal not round-tripped")
	}
	if SubjectFromContext(context.Background()) != "" {
		t.Fatalf("empty context must yield empty subject")
	}
}
