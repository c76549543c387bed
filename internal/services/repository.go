package services

import (
	"context"

	"github.com/Lllllllleong/pagecapture/internal/models"
)

// RecordRepository is the status store seen by the capture pipeline.
type RecordRepository interface {
	FindPending(ctx context.Context, batchID string) ([]models.DocumentRecord, error)
	UpdateStatus(ctx context.Context, caseID string, uploadTimestamp int64, changes models.Changes) error
}

// SweepRepository adds the operator-only queries used by Sweeper.
type SweepRepository interface {
	RecordRepository
	FindByStatus(ctx context.Context, status models.Status, batchID string) ([]models.DocumentRecord, error)
	Reopen(ctx context.Context, caseID string, uploadTimestamp int64) error
}

// ObjectStore reads and writes whole objects in the configured bucket.
type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Notifier is told about the documents a run processed.
type Notifier interface {
	NotifyProcessed(ctx context.Context, runID string, objectKeys []string) error
}
