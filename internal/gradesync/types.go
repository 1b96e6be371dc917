// Package gradesync pushes completed exam scores to an external gradebook
// (IMS AGS line items and scores) and tracks per-attempt sync status.
package gradesync

import (
	"context"
	"time"
)

type Exam struct {
	ID    string
	Title string
}

type Attempt struct {
	ID, ExamID, UserID string
	Score              int // percentage
	CompletedAt        *time.Time
}

// LineItem is the local record of the remote column an exam posts into.
type LineItem struct {
	ExamID   string
	Label    string
	ScoreMax float64
	URL      string // absolute line item URL
}

type SyncStatus struct {
	AttemptID string `json:"attempt_id"`
	Status    string `json:"status"` // pending|ok|failed
	Retries   int    `json:"retries"`
	LastError string `json:"last_error,omitempty"`
	UpdatedAt int64  `json:"updated_at"`
}

type Store interface {
	GetExam(ctx context.Context, id string) (Exam, error)
	GetAttempt(ctx context.Context, id string) (Attempt, error)

	FindLineItem(ctx context.Context, examID string) (LineItem, error)
	UpsertLineItem(ctx context.Context, li LineItem) (LineItem, error)

	MarkSyncPending(ctx context.Context, attemptID string) error
	MarkSyncOK(ctx context.Context, attemptID string) error
	MarkSyncFailed(ctx context.Context, attemptID, lastErr string) error
	GetSyncStatus(ctx context.Context, attemptID string) (SyncStatus, error)
}

type RemoteLineItem struct {
	ID, Label, ResourceID string
	ScoreMaximum          float64
}

type CreateLineItemReq struct {
	Label        string
	ScoreMaximum float64
	ResourceID   string
}

type Score struct {
	UserID, ActivityProgress, GradingProgress string
	ScoreGiven, ScoreMaximum                  float64
	Timestamp                                 time.Time
}

type Client interface {
	ListLineItems(ctx context.Context, lineItemsURL string, q map[string]string) ([]RemoteLineItem, error)
	CreateLineItem(ctx context.Context, lineItemsURL string, req CreateLineItemReq) (RemoteLineItem, error)
	PostScore(ctx context.Context, lineItemURL string, s Score) error
}
