package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCanAdvanceTo(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusOpen, StatusProcessingCapture, true},
		{StatusOpen, StatusProcessedCapture, false},
		{StatusProcessingCapture, StatusProcessedCapture, true},
		{StatusProcessingCapture, StatusFailedCapture, true},
		{StatusProcessingCapture, StatusOpen, false},
		{StatusProcessedCapture, StatusOpen, false},
		{StatusProcessedCapture, StatusProcessingCapture, false},
		{StatusFailedCapture, StatusProcessedCapture, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanAdvanceTo(tt.to))
		})
	}
}

func TestDocumentRecordIsPDF(t *testing.T) {
	assert.True(t, DocumentRecord{ObjectKey: "uploads/c1/scan.pdf"}.IsPDF())
	assert.True(t, DocumentRecord{ObjectKey: "uploads/c1/SCAN.PDF"}.IsPDF())
	assert.False(t, DocumentRecord{ObjectKey: "uploads/c1/notes.txt"}.IsPDF())
	assert.False(t, DocumentRecord{ObjectKey: "uploads/c1/pdf"}.IsPDF())
}

func TestChangesFields(t *testing.T) {
	c := SetStatus(StatusProcessingCapture)
	assert.Equal(t, []FieldChange{{Field: FieldStatus, Value: "processing_capture"}}, c.Fields())
	_, ok := c.ImagePaths()
	assert.False(t, ok)

	paths := []string{"processed/c1/a_page_1.jpg", "processed/c1/a_page_2.jpg"}
	done := SetStatus(StatusProcessedCapture).WithImagePaths(paths)
	paths[0] = "mutated"

	got, ok := done.ImagePaths()
	require.True(t, ok)
	assert.Equal(t, "processed/c1/a_page_1.jpg", got[0])
	assert.Equal(t, []FieldChange{
		{Field: FieldStatus, Value: "processed_capture"},
		{Field: FieldImagePaths, Value: []string{"processed/c1/a_page_1.jpg", "processed/c1/a_page_2.jpg"}},
	}, done.Fields())
}

func TestChangesValidate(t *testing.T) {
	assert.NoError(t, SetStatus(StatusProcessingCapture).Validate())
	assert.NoError(t, SetStatus(StatusProcessedCapture).WithImagePaths([]string{"k"}).Validate())
	assert.NoError(t, SetStatus(StatusProcessedCapture).WithImagePaths(nil).Validate())
	assert.Error(t, SetStatus("done").Validate())
	assert.Error(t, SetStatus(StatusProcessingCapture).WithImagePaths([]string{"k"}).Validate())
}

func TestTriggerRequestBatches(t *testing.T) {
	tests := []struct {
		name string
		req  TriggerRequest
		want []string
	}{
		{
			name: "queued messages",
			req: TriggerRequest{Records: []TriggerRecord{
				{Body: `{"batch_id":"b1"}`},
				{Body: `{"batch_id":" b2 "}`},
			}},
			want: []string{"b1", "b2"},
		},
		{
			name: "malformed and missing ids fall back to unfiltered",
			req: TriggerRequest{Records: []TriggerRecord{
				{Body: `not json`},
				{Body: `{}`},
				{Body: `{"batch_id":42}`},
				{Body: `{"batch_id":null}`},
			}},
			want: []string{"", "", "", ""},
		},
		{
			name: "explicit ids",
			req:  TriggerRequest{BatchIDs: []string{"b3"}},
			want: []string{"b3"},
		},
		{
			name: "empty request",
			req:  TriggerRequest{},
			want: []string{""},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.req.Batches())
		})
	}
}
