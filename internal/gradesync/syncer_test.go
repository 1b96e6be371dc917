package gradesync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-courses/internal/db/dbtest"
	"github.com/mind-engage/mindengage-courses/internal/errs"
)

// fakeGradebook serves a token endpoint, a line items container and a
// scores endpoint per line item.
type fakeGradebook struct {
	mu        sync.Mutex
	items     []remoteItem
	scores    []map[string]any
	tokens    int
	failScore bool
	srv       *httptest.Server
}

func newFakeGradebook(t *testing.T) *fakeGradebook {
	t.Helper()
	f := &fakeGradebook{}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.tokens++
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"tok","token_type":"bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/lineitems", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(f.items)
		case http.MethodPost:
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			it := remoteItem{
				ID:           f.srv.URL + "/lineitems/" + body["resourceId"].(string),
				Label:        body["label"].(string),
				ScoreMaximum: body["scoreMaximum"].(float64),
				ResourceID:   body["resourceId"].(string),
			}
			f.items = append(f.items, it)
			_ = json.NewEncoder(w).Encode(it)
		}
	})
	mux.HandleFunc("/lineitems/", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/scores") || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failScore {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		body["path"] = r.URL.Path
		f.scores = append(f.scores, body)
		w.WriteHeader(http.StatusOK)
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func newSyncer(t *testing.T, f *fakeGradebook) (*Syncer, *SQLStore) {
	t.Helper()
	d := dbtest.Open(t)
	now := time.Now().Unix()
	dbtest.Exec(t, d, `INSERT INTO courses (id,title,created_at) VALUES ('c1','Course',$1)`, now)
	dbtest.Exec(t, d, `INSERT INTO exams (id,course_id,title,is_published) VALUES ('e1','c1','Final',TRUE)`)
	dbtest.Exec(t, d, `INSERT INTO exam_attempts (id,user_id,exam_id,started_at,completed_at,score,passed,updated_at)
		VALUES ('a1','u1','e1',$1,$1,80,TRUE,$1)`, now)
	dbtest.Exec(t, d, `INSERT INTO exam_attempts (id,user_id,exam_id,started_at,updated_at) VALUES ('a2','u2','e1',$1,$1)`, now)

	store := &SQLStore{DB: d}
	client := NewHTTPClient(ClientConfig{TokenURL: f.srv.URL + "/token", ClientID: "id", ClientSecret: "secret"})
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return New(store, client, f.srv.URL+"/lineitems", func() time.Time { return fixed }), store
}

func TestSyncAttempt_CreatesLineItemAndPostsScore(t *testing.T) {
	ctx := context.Background()
	f := newFakeGradebook(t)
	s, store := newSyncer(t, f)

	if err := s.SyncAttempt(ctx, "a1"); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(f.items) != 1 || f.items[0].Label != "Final" || f.items[0].ScoreMaximum != 100 {
		t.Fatalf("line items = %+v", f.items)
	}
	if len(f.scores) != 1 {
		t.Fatalf("scores posted = %d", len(f.scores))
	}
	sc := f.scores[0]
	if sc["userId"] != "u1" || sc["scoreGiven"] != 80.0 || sc["path"] != "/lineitems/e1/scores" {
		t.Fatalf("score body = %+v", sc)
	}
	if sc["timestamp"] != "2026-01-02T03:04:05Z" {
		t.Fatalf("timestamp = %v", sc["timestamp"])
	}

	st, err := store.GetSyncStatus(ctx, "a1")
	if err != nil || st.Status != "ok" {
		t.Fatalf("status = %+v err=%v", st, err)
	}

	// second sync reuses the cached line item
	if err := s.SyncAttempt(ctx, "a1"); err != nil {
		t.Fatalf("resync: %v", err)
	}
	if len(f.items) != 1 || len(f.scores) != 2 {
		t.Fatalf("items=%d scores=%d", len(f.items), len(f.scores))
	}
	if f.tokens == 0 {
		t.Fatalf("client never fetched a token")
	}
}

func TestSyncAttempt_FailureIsRecorded(t *testing.T) {
	ctx := context.Background()
	f := newFakeGradebook(t)
	f.failScore = true
	s, store := newSyncer(t, f)

	if err := s.SyncAttempt(ctx, "a1"); err == nil {
		t.Fatalf("expected failure")
	}
	if err := s.SyncAttempt(ctx, "a1"); err == nil {
		t.Fatalf("expected failure")
	}
	st, err := store.GetSyncStatus(ctx, "a1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Status != "failed" || st.Retries != 2 || !strings.Contains(st.LastError, "502") {
		t.Fatalf("status = %+v", st)
	}
}

func TestSyncAttempt_RejectsIncompleteAttempt(t *testing.T) {
	f := newFakeGradebook(t)
	s, store := newSyncer(t, f)
	if err := s.SyncAttempt(context.Background(), "a2"); !errors.Is(err, ErrNotCompleted) {
		t.Fatalf("in-progress attempt must not sync")
	}
	if st, _ := store.GetSyncStatus(context.Background(), "a2"); st.Status != "none" {
		t.Fatalf("status = %+v", st)
	}
}

func TestSyncAttempt_UnknownAttempt(t *testing.T) {
	f := newFakeGradebook(t)
	s, _ := newSyncer(t, f)
	if err := s.SyncAttempt(context.Background(), "nope"); !errors.Is(err, errs.ErrAttemptNotFound) {
		t.Fatalf("err = %v", err)
	}
}
