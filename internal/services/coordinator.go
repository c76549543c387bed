package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Lllllllleong/pagecapture/internal/metrics"
	"github.com/Lllllllleong/pagecapture/internal/models"
	"github.com/Lllllllleong/pagecapture/internal/workpool"
	"github.com/google/uuid"
)

// DocumentProcessor runs one document. DocumentPipeline is the production implementation.
type DocumentProcessor interface {
	Process(ctx context.Context, rec models.DocumentRecord) (*DocumentOutcome, error)
}

// CoordinatorDeps are the collaborators of BatchCoordinator.
type CoordinatorDeps struct {
	Repository   RecordRepository
	Processor    DocumentProcessor
	BatchPool    *workpool.Pool
	DocumentPool *workpool.Pool
	Notifier     Notifier
	Metrics      *metrics.Metrics
}

// BatchCoordinator scans each batch for open records and captures them.
type BatchCoordinator struct {
	repo      RecordRepository
	processor DocumentProcessor
	batchPool *workpool.Pool
	docPool   *workpool.Pool
	notifier  Notifier
	metrics   *metrics.Metrics
}

func NewBatchCoordinator(deps CoordinatorDeps) *BatchCoordinator {
	if deps.BatchPool == nil {
		deps.BatchPool = workpool.New(1)
	}
	if deps.DocumentPool == nil {
		deps.DocumentPool = workpool.New(1)
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(nil)
	}
	return &BatchCoordinator{
		repo:      deps.Repository,
		processor: deps.Processor,
		batchPool: deps.BatchPool,
		docPool:   deps.DocumentPool,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
	}
}

type batchOutcome struct {
	result models.BatchResult
	err    error
}

// Run captures every batch independently. The response is 500 when any
// batch could not be scanned; documents from the other batches are still
// processed and reported.
func (c *BatchCoordinator) Run(ctx context.Context, batchIDs []string) models.CaptureResponse {
	runID := uuid.NewString()
	logCtx := slog.With("runId", runID)
	if len(batchIDs) == 0 {
		batchIDs = []string{""}
	}
	logCtx.Info("Starting capture run.", "batchCount", len(batchIDs))

	outcomes := workpool.Map(ctx, c.batchPool, batchIDs, func(ctx context.Context, _ int, batchID string) batchOutcome {
		result, err := c.RunBatch(ctx, batchID)
		return batchOutcome{result: result, err: err}
	})

	processed := []string{}
	var errs []error
	for _, o := range outcomes {
		processed = append(processed, o.result.Processed...)
		if o.err != nil {
			errs = append(errs, o.err)
		}
	}

	if len(processed) > 0 && c.notifier != nil {
		if err := c.notifier.NotifyProcessed(ctx, runID, processed); err != nil {
			logCtx.Error("Failed to notify downstream workflow", "error", err, "processedCount", len(processed))
		}
	}

	if len(errs) > 0 {
		err := errors.Join(errs...)
		logCtx.Error("Capture run finished with errors.", "error", err, "processedCount", len(processed))
		return models.CaptureResponse{
			StatusCode: http.StatusInternalServerError,
			RunID:      runID,
			Processed:  processed,
			Error:      err.Error(),
		}
	}

	logCtx.Info("Capture run complete.", "processedCount", len(processed))
	return models.CaptureResponse{
		StatusCode: http.StatusOK,
		RunID:      runID,
		Processed:  processed,
	}
}

// RunBatch captures the open records of one batch. An empty batchID scans
// all open records. Only a failed scan is returned as an error; document
// failures are counted in the result.
func (c *BatchCoordinator) RunBatch(ctx context.Context, batchID string) (models.BatchResult, error) {
	result := models.BatchResult{BatchID: batchID, Processed: []string{}}
	logCtx := slog.With("batchId", batchID)

	records, err := c.repo.FindPending(ctx, batchID)
	if err != nil {
		c.metrics.Batch("scan_failed")
		logCtx.Error("Failed to query pending documents", "error", err)
		return result, fmt.Errorf("batch %q: %w", batchID, err)
	}
	if len(records) == 0 {
		c.metrics.Batch("empty")
		logCtx.Info("No pending documents found.")
		return result, nil
	}

	var pdfs []models.DocumentRecord
	for _, rec := range records {
		if !rec.IsPDF() {
			c.metrics.Document(metrics.DocumentSkipped)
			logCtx.Info("Skipping non-PDF object.", "caseId", rec.CaseID, "objectKey", rec.ObjectKey)
			result.Skipped++
			continue
		}
		pdfs = append(pdfs, rec)
	}
	logCtx.Info("Found pending documents.", "pending", len(records), "pdfs", len(pdfs))

	keys := workpool.Map(ctx, c.docPool, pdfs, func(ctx context.Context, _ int, rec models.DocumentRecord) string {
		if _, err := c.processor.Process(ctx, rec); err != nil {
			// Already logged with document context by the pipeline.
			return ""
		}
		return rec.ObjectKey
	})
	for _, key := range keys {
		if key == "" {
			result.Failed++
			continue
		}
		result.Processed = append(result.Processed, key)
	}

	c.metrics.Batch("ok")
	logCtx.Info("Batch complete.", "processed", len(result.Processed), "failed", result.Failed, "skipped", result.Skipped)
	return result, nil
}
