package models

import (
	"encoding/json"
	"strings"
)

// These structs define the trigger payloads accepted by the capture entry
// points and the response they return.

// TriggerRecord is one queued message; Body holds a JSON BatchMessage.
type TriggerRecord struct {
	Body string `json:"body"`
}

// TriggerRequest is the HTTP request body. Either field may be used.
type TriggerRequest struct {
	Records  []TriggerRecord `json:"Records"`
	BatchIDs []string        `json:"batchIds"`
}

// BatchMessage is the message body carrying a batch identifier.
type BatchMessage struct {
	BatchID string `json:"batch_id"`
}

// PubSubMessage is the data payload of a Pub/Sub CloudEvent.
type PubSubMessage struct {
	Message struct {
		Data       []byte            `json:"data"`
		Attributes map[string]string `json:"attributes"`
		MessageID  string            `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// Batches returns one batch identifier per message. An empty identifier
// means "all open records". A request without messages yields a single
// unfiltered batch.
func (r TriggerRequest) Batches() []string {
	var ids []string
	for _, rec := range r.Records {
		ids = append(ids, ParseBatchID([]byte(rec.Body)))
	}
	for _, id := range r.BatchIDs {
		ids = append(ids, strings.TrimSpace(id))
	}
	if len(ids) == 0 {
		return []string{""}
	}
	return ids
}

// ParseBatchID extracts batch_id from a message body. Malformed bodies,
// missing keys and non-string values all map to the unfiltered case.
func ParseBatchID(body []byte) string {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return ""
	}
	id, ok := raw["batch_id"].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(id)
}

// CaptureResponse is returned by every capture entry point.
type CaptureResponse struct {
	StatusCode int      `json:"statusCode"`
	RunID      string   `json:"runId,omitempty"`
	Processed  []string `json:"processed"`
	Error      string   `json:"error,omitempty"`
}

// BatchResult holds the object keys fully processed for one batch.
type BatchResult struct {
	BatchID   string   `json:"batchId"`
	Processed []string `json:"processed"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
}
