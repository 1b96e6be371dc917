package gradesync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mind-engage/mindengage-courses/internal/errs"
	"github.com/mind-engage/mindengage-courses/internal/metrics"
)

var ErrNotCompleted = errs.Precondition("attempt_not_completed", "attempt is not completed")

type Clock func() time.Time

// Syncer posts exam scores as percentages (scoreMaximum 100) into one
// configured line items container.
type Syncer struct {
	Store        Store
	Client       Client
	LineItemsURL string
	Now          Clock
}

func New(store Store, client Client, lineItemsURL string, now Clock) *Syncer {
	if now == nil {
		now = time.Now
	}
	return &Syncer{Store: store, Client: client, LineItemsURL: lineItemsURL, Now: now}
}

// EnsureLineItem finds or creates the remote line item for an exam and
// caches its URL locally.
func (s *Syncer) EnsureLineItem(ctx context.Context, examID string) (LineItem, error) {
	if li, err := s.Store.FindLineItem(ctx, examID); err == nil && li.URL != "" {
		return li, nil
	}
	if s.LineItemsURL == "" {
		return LineItem{}, errors.New("missing lineitems url")
	}
	ex, err := s.Store.GetExam(ctx, examID)
	if err != nil {
		return LineItem{}, fmt.Errorf("exam: %w", err)
	}

	items, err := s.Client.ListLineItems(ctx, s.LineItemsURL, map[string]string{"resource_id": ex.ID})
	if err == nil {
		for _, it := range items {
			if it.ResourceID == ex.ID {
				return s.Store.UpsertLineItem(ctx, LineItem{ExamID: ex.ID, Label: it.Label, ScoreMax: it.ScoreMaximum, URL: it.ID})
			}
		}
	}
	created, err := s.Client.CreateLineItem(ctx, s.LineItemsURL, CreateLineItemReq{
		Label: ex.Title, ScoreMaximum: 100, ResourceID: ex.ID,
	})
	if err != nil {
		return LineItem{}, fmt.Errorf("create line item: %w", err)
	}
	return s.Store.UpsertLineItem(ctx, LineItem{ExamID: ex.ID, Label: created.Label, ScoreMax: created.ScoreMaximum, URL: created.ID})
}

// SyncAttempt pushes one completed attempt. The outcome is recorded in
// grade_sync_status either way.
func (s *Syncer) SyncAttempt(ctx context.Context, attemptID string) (err error) {
	defer func() { metrics.GradeSync(err == nil) }()

	at, err := s.Store.GetAttempt(ctx, attemptID)
	if err != nil {
		return err
	}
	if at.CompletedAt == nil {
		return ErrNotCompleted
	}
	_ = s.Store.MarkSyncPending(ctx, at.ID)

	li, err := s.EnsureLineItem(ctx, at.ExamID)
	if err != nil {
		_ = s.Store.MarkSyncFailed(ctx, at.ID, err.Error())
		return err
	}
	scoreMax := li.ScoreMax
	if scoreMax <= 0 {
		scoreMax = 100
	}
	if err := s.Client.PostScore(ctx, li.URL, Score{
		UserID: at.UserID, ScoreGiven: float64(at.Score) * scoreMax / 100, ScoreMaximum: scoreMax,
		ActivityProgress: "Completed", GradingProgress: "FullyGraded",
		Timestamp: s.Now(),
	}); err != nil {
		_ = s.Store.MarkSyncFailed(ctx, at.ID, err.Error())
		return err
	}
	return s.Store.MarkSyncOK(ctx, at.ID)
}
