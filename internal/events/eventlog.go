// Package events records domain events in the event_log table inside the
// caller's transaction and forwards them to a broker after commit.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/mind-engage/mindengage-courses/internal/db"
)

const (
	TypeTrialStarted         = "access.trial.started"
	TypeQuizAttemptStarted   = "quiz.attempt.started"
	TypeQuizAttemptCompleted = "quiz.attempt.completed"
	TypeExamAttemptStarted   = "exam.attempt.started"
	TypeExamAttemptCompleted = "exam.attempt.completed"
	TypeChapterCompleted     = "progress.chapter.completed"
)

type Event struct {
	Seq       int64           `json:"seq"`
	SiteID    string          `json:"site_id"`
	Type      string          `json:"type"`
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	CreatedAt int64           `json:"created_at"`
}

// Recorder appends to the outbox and, after commit, publishes.
type Recorder struct {
	siteID string
	pub    Publisher
}

// NewRecorder returns a recorder for siteID. A nil pub only writes the log.
func NewRecorder(siteID string, pub Publisher) *Recorder {
	if siteID == "" {
		siteID = "local"
	}
	return &Recorder{siteID: siteID, pub: pub}
}

// Append writes one event through q (normally the caller's *sql.Tx).
// A nil recorder records nothing.
func (r *Recorder) Append(ctx context.Context, q db.Querier, typ, key string, payload any) (Event, error) {
	if r == nil {
		return Event{}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s: %w", typ, err)
	}
	ev := Event{SiteID: r.siteID, Type: typ, Key: key, Data: data, CreatedAt: time.Now().Unix()}
	if err := q.QueryRowContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, data, created_at) VALUES ($1,$2,$3,$4,$5) RETURNING seq`,
		ev.SiteID, ev.Type, ev.Key, string(ev.Data), ev.CreatedAt).Scan(&ev.Seq); err != nil {
		return Event{}, fmt.Errorf("append %s: %w", typ, err)
	}
	return ev, nil
}

// Publish forwards committed events. Broker failures are logged; the
// event_log row stays the source of truth.
func (r *Recorder) Publish(ctx context.Context, evs ...Event) {
	if r == nil || r.pub == nil {
		return
	}
	for _, ev := range evs {
		if ev.Type == "" {
			continue
		}
		if err := r.pub.Publish(ctx, ev); err != nil {
			log.Printf("events: publish %s %s: %v", ev.Type, ev.Key, err)
		}
	}
}

// Since lists events with seq > after, oldest first.
func Since(ctx context.Context, q db.Querier, after int64, limit int) ([]Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := q.QueryContext(ctx,
		`SELECT seq, site_id, typ, key, data, created_at FROM event_log WHERE seq > $1 ORDER BY seq LIMIT $2`,
		after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var (
			ev   Event
			data string
		)
		if err := rows.Scan(&ev.Seq, &ev.SiteID, &ev.Type, &ev.Key, &data, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.Data = json.RawMessage(data)
		out = append(out, ev)
	}
	return out, rows.Err()
}
