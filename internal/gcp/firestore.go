package gcp

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/pagecapture/internal/models"
	"google.golang.org/api/iterator"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// FirestoreRepository stores capture records in one Firestore collection.
// Each record lives at DocumentID(caseId, uploadTimestamp).
type FirestoreRepository struct {
	client     *firestore.Client
	collection string
}

func NewFirestoreRepository(client *firestore.Client, collection string) *FirestoreRepository {
	return &FirestoreRepository{client: client, collection: collection}
}

// DocumentID is the Firestore document ID for a record key.
func DocumentID(caseID string, uploadTimestamp int64) string {
	return fmt.Sprintf("%s_%d", caseID, uploadTimestamp)
}

// FindPending returns open records, restricted to batchID when it is set.
func (r *FirestoreRepository) FindPending(ctx context.Context, batchID string) ([]models.DocumentRecord, error) {
	return r.FindByStatus(ctx, models.StatusOpen, batchID)
}

// FindByStatus returns records in status, restricted to batchID when it is set.
func (r *FirestoreRepository) FindByStatus(ctx context.Context, status models.Status, batchID string) ([]models.DocumentRecord, error) {
	query := r.client.Collection(r.collection).Where(models.FieldStatus, "==", string(status))
	if batchID != "" {
		query = query.Where(models.FieldBatchID, "==", batchID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var records []models.DocumentRecord
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: failed to query %s records: %w", models.ErrRepository, status, err)
		}
		var rec models.DocumentRecord
		if err := doc.DataTo(&rec); err != nil {
			return nil, fmt.Errorf("%w: failed to decode record %s: %w", models.ErrRepository, doc.Ref.ID, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// UpdateStatus applies changes inside a transaction, only when the stored
// status can advance to the new one. No other fields are written.
func (r *FirestoreRepository) UpdateStatus(ctx context.Context, caseID string, uploadTimestamp int64, changes models.Changes) error {
	if err := changes.Validate(); err != nil {
		return fmt.Errorf("%w: %w", models.ErrRepository, err)
	}
	next := changes.Status()
	return r.transition(ctx, caseID, uploadTimestamp, func(current models.Status) bool {
		return current.CanAdvanceTo(next)
	}, ToFirestoreUpdates(changes))
}

// Reopen moves a record stuck in processing_capture back to open so the
// next scan picks it up again.
func (r *FirestoreRepository) Reopen(ctx context.Context, caseID string, uploadTimestamp int64) error {
	updates := ToFirestoreUpdates(models.SetStatus(models.StatusOpen))
	return r.transition(ctx, caseID, uploadTimestamp, func(current models.Status) bool {
		return current == models.StatusProcessingCapture
	}, updates)
}

func (r *FirestoreRepository) transition(ctx context.Context, caseID string, uploadTimestamp int64, allowed func(models.Status) bool, updates []firestore.Update) error {
	ref := r.client.Collection(r.collection).Doc(DocumentID(caseID, uploadTimestamp))

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		raw, err := snap.DataAt(models.FieldStatus)
		if err != nil {
			return err
		}
		current, _ := raw.(string)
		if !allowed(models.Status(current)) {
			return fmt.Errorf("%w: record is %q", models.ErrConditionFail, current)
		}
		return tx.Update(ref, updates)
	})
	if err != nil {
		if errors.Is(err, models.ErrConditionFail) {
			return fmt.Errorf("%w: %s: %w", models.ErrRepository, ref.ID, err)
		}
		return fmt.Errorf("%w: failed to update %s: %w", models.ErrRepository, ref.ID, err)
	}
	return nil
}

// ToFirestoreUpdates translates a change set into Firestore field updates.
func ToFirestoreUpdates(changes models.Changes) []firestore.Update {
	fields := changes.Fields()
	updates := make([]firestore.Update, 0, len(fields))
	for _, f := range fields {
		updates = append(updates, firestore.Update{Path: f.Field, Value: f.Value})
	}
	return updates
}
