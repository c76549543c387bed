package models

import (
	"fmt"
	"path"
	"strings"
)

// Status is the capture workflow state stored on each record.
type Status string

const (
	StatusOpen              Status = "open"
	StatusProcessingCapture Status = "processing_capture"
	StatusProcessedCapture  Status = "processed_capture"
	StatusFailedCapture     Status = "failed_capture"
)

// Firestore field names touched by status updates.
const (
	FieldStatus     = "status"
	FieldBatchID    = "batchId"
	FieldImagePaths = "imagePaths"
)

// DocumentRecord is one uploaded PDF tracked in the status store.
// A record is addressed by (CaseID, UploadTimestamp).
type DocumentRecord struct {
	CaseID          string   `firestore:"caseId"`
	UploadTimestamp int64    `firestore:"uploadTimestamp"`
	ObjectKey       string   `firestore:"objKey"`
	BatchID         string   `firestore:"batchId,omitempty"`
	Status          Status   `firestore:"status"`
	ImagePaths      []string `firestore:"imagePaths,omitempty"`
}

// IsPDF reports whether the record points at a PDF object.
func (r DocumentRecord) IsPDF() bool {
	return strings.EqualFold(path.Ext(r.ObjectKey), ".pdf")
}

// CanAdvanceTo reports whether moving from s to next is a forward transition.
func (s Status) CanAdvanceTo(next Status) bool {
	switch s {
	case StatusOpen:
		return next == StatusProcessingCapture
	case StatusProcessingCapture:
		return next == StatusProcessedCapture || next == StatusFailedCapture
	default:
		return false
	}
}

// Valid reports whether s is one of the known workflow states.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusProcessingCapture, StatusProcessedCapture, StatusFailedCapture:
		return true
	}
	return false
}

// FieldChange is a single field assignment produced by Changes.
type FieldChange struct {
	Field string
	Value any
}

// Changes describes a status update: the new status and, optionally, the
// image paths produced by the capture. Repositories translate it into the
// store's native update form.
type Changes struct {
	status        Status
	imagePaths    []string
	setImagePaths bool
}

// SetStatus starts a change set that moves a record to status.
func SetStatus(status Status) Changes {
	return Changes{status: status}
}

// WithImagePaths adds the ordered image keys to the change set.
func (c Changes) WithImagePaths(paths []string) Changes {
	c.imagePaths = append([]string{}, paths...)
	c.setImagePaths = true
	return c
}

func (c Changes) Status() Status { return c.status }

// ImagePaths returns the image keys and whether they are part of the change.
func (c Changes) ImagePaths() ([]string, bool) {
	return c.imagePaths, c.setImagePaths
}

// Fields returns the field assignments in a stable order.
func (c Changes) Fields() []FieldChange {
	fields := []FieldChange{{Field: FieldStatus, Value: string(c.status)}}
	if c.setImagePaths {
		fields = append(fields, FieldChange{Field: FieldImagePaths, Value: c.imagePaths})
	}
	return fields
}

// Validate rejects change sets that would break the record invariants.
func (c Changes) Validate() error {
	if !c.status.Valid() {
		return fmt.Errorf("unknown status %q", c.status)
	}
	if c.setImagePaths && len(c.imagePaths) > 0 && c.status != StatusProcessedCapture {
		return fmt.Errorf("image paths can only be set with status %q, got %q", StatusProcessedCapture, c.status)
	}
	return nil
}
