package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/pagecapture/internal/models"
)

// SweepAction is what an operator sweep does with stuck records.
type SweepAction string

const (
	SweepList   SweepAction = "list"
	SweepReopen SweepAction = "reopen"
	SweepFail   SweepAction = "fail"
)

// Sweeper finds records left in processing_capture by aborted runs.
type Sweeper struct {
	repo SweepRepository
}

func NewSweeper(repo SweepRepository) *Sweeper {
	return &Sweeper{repo: repo}
}

// Sweep returns the stuck records of batchID (all batches when empty) and
// applies action to each. Records that could not be changed are left out of
// the result and reported through the returned error.
func (s *Sweeper) Sweep(ctx context.Context, batchID string, action SweepAction) ([]models.DocumentRecord, error) {
	stuck, err := s.repo.FindByStatus(ctx, models.StatusProcessingCapture, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stuck documents: %w", err)
	}
	if action == SweepList {
		return stuck, nil
	}

	var (
		swept []models.DocumentRecord
		errs  []error
	)
	for _, rec := range stuck {
		logCtx := slog.With("caseId", rec.CaseID, "objectKey", rec.ObjectKey, "action", string(action))
		var err error
		switch action {
		case SweepReopen:
			err = s.repo.Reopen(ctx, rec.CaseID, rec.UploadTimestamp)
			rec.Status = models.StatusOpen
		case SweepFail:
			err = s.repo.UpdateStatus(ctx, rec.CaseID, rec.UploadTimestamp, models.SetStatus(models.StatusFailedCapture))
			rec.Status = models.StatusFailedCapture
		default:
			return nil, fmt.Errorf("unknown sweep action %q", action)
		}
		if err != nil {
			logCtx.Error("Failed to sweep document", "error", err)
			errs = append(errs, err)
			continue
		}
		logCtx.Info("Swept document.")
		swept = append(swept, rec)
	}
	return swept, errors.Join(errs...)
}
