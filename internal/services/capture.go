package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/pagecapture/internal/gcp"
	"github.com/Lllllllleong/pagecapture/internal/metrics"
	"github.com/Lllllllleong/pagecapture/internal/models"
	"github.com/Lllllllleong/pagecapture/internal/s3store"
	"github.com/Lllllllleong/pagecapture/internal/workpool"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/prometheus/client_golang/prometheus"
)

const maxTriggerBodyBytes = 1 << 20

// CaptureFunction holds the wired capture service used by every entry point.
type CaptureFunction struct {
	coordinator *BatchCoordinator
	sweeper     *Sweeper
	config      Config
	closers     []func() error
}

// NewCapture loads the configuration from the environment and creates all clients.
func NewCapture(ctx context.Context) (*CaptureFunction, error) {
	config, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return NewCaptureWithConfig(ctx, config, prometheus.DefaultRegisterer)
}

// NewCaptureWithConfig creates the Firestore, object storage and optional
// workflow clients for config and registers metrics with reg.
func NewCaptureWithConfig(ctx context.Context, config *Config, reg prometheus.Registerer) (*CaptureFunction, error) {
	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	closers := []func() error{firestoreClient.Close}
	repo := gcp.NewFirestoreRepository(firestoreClient, config.CollectionName)

	var store ObjectStore
	switch config.StorageBackend {
	case StorageBackendS3:
		s3Client, err := s3store.NewClient(ctx, config.S3Region, config.S3Endpoint)
		if err != nil {
			return nil, errors.Join(err, closeAll(closers))
		}
		store = s3store.New(s3Client, config.Bucket)
	default:
		storageClient, err := storage.NewClient(ctx)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("failed to create Storage client: %w", err), closeAll(closers))
		}
		closers = append(closers, storageClient.Close)
		store = gcp.NewGCSStore(storageClient, config.Bucket)
	}

	var notifier Notifier
	if config.WorkflowID != "" {
		workflowNotifier, err := gcp.NewWorkflowNotifier(ctx, config.ProjectID, config.WorkflowLocation, config.WorkflowID)
		if err != nil {
			return nil, errors.Join(err, closeAll(closers))
		}
		closers = append(closers, workflowNotifier.Close)
		notifier = workflowNotifier
	}

	f := newCaptureFunction(*config, repo, store, NewFitzRasterizer(""), notifier, metrics.New(reg))
	f.closers = closers
	slog.Info("Capture service initialized.",
		"collection", config.CollectionName,
		"bucket", config.Bucket,
		"storageBackend", config.StorageBackend,
		"destinationRoot", config.DestinationRoot,
		"workflowId", config.WorkflowID,
	)
	return f, nil
}

func newCaptureFunction(config Config, repo SweepRepository, store ObjectStore, rasterizer Rasterizer, notifier Notifier, m *metrics.Metrics) *CaptureFunction {
	pipeline := NewDocumentPipeline(PipelineDeps{
		Repository: repo,
		Store:      store,
		Rasterizer: rasterizer,
		Compressor: NewCompressor(config.CompressorConfig()),
		Uploader: NewPageUploader(store, UploaderConfig{
			DestinationRoot: config.DestinationRoot,
			MaxAttempts:     config.UploadMaxAttempts,
			InitialBackoff:  time.Second,
		}),
		PagePool: workpool.New(config.PageWorkers),
		Metrics:  m,
	}, config.RasterDPI)

	coordinator := NewBatchCoordinator(CoordinatorDeps{
		Repository:   repo,
		Processor:    pipeline,
		BatchPool:    workpool.New(config.BatchWorkers),
		DocumentPool: workpool.New(config.DocumentWorkers),
		Notifier:     notifier,
		Metrics:      m,
	})

	return &CaptureFunction{
		coordinator: coordinator,
		sweeper:     NewSweeper(repo),
		config:      config,
	}
}

// Process captures the given batches. An empty slice scans all open records.
func (f *CaptureFunction) Process(ctx context.Context, batchIDs []string) models.CaptureResponse {
	return f.coordinator.Run(ctx, batchIDs)
}

// Sweep applies action to records stuck in processing_capture.
func (f *CaptureFunction) Sweep(ctx context.Context, batchID string, action SweepAction) ([]models.DocumentRecord, error) {
	return f.sweeper.Sweep(ctx, batchID, action)
}

// ServeHTTP decodes a trigger request and writes the capture response.
// Unreadable bodies are treated as a single unfiltered batch.
func (f *CaptureFunction) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req models.TriggerRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxTriggerBodyBytes))
	if err != nil {
		slog.Warn("Could not read request body, scanning all open records", "error", err)
	} else if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			slog.Warn("Could not decode request body, scanning all open records", "error", err)
			req = models.TriggerRequest{}
		}
	}

	res := f.Process(r.Context(), req.Batches())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(res.StatusCode)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Failed to write response", "error", err, "runId", res.RunID)
	}
}

// HandleCloudEvent captures the batch named in a Pub/Sub CloudEvent. The
// event data may also be a bare {"batch_id": ...} message.
func (f *CaptureFunction) HandleCloudEvent(ctx context.Context, e cloudevents.Event) error {
	batchID := BatchIDFromEvent(e)
	res := f.Process(ctx, []string{batchID})
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("capture run %s failed: %s", res.RunID, res.Error)
	}
	return nil
}

// BatchIDFromEvent extracts the batch identifier from a CloudEvent.
func BatchIDFromEvent(e cloudevents.Event) string {
	var msg models.PubSubMessage
	if err := json.Unmarshal(e.Data(), &msg); err != nil {
		slog.Warn("Failed to unmarshal event data, scanning all open records", "error", err, "eventId", e.ID())
		return ""
	}
	if len(msg.Message.Data) > 0 {
		return models.ParseBatchID(msg.Message.Data)
	}
	return models.ParseBatchID(e.Data())
}

// Close releases every client created by NewCaptureWithConfig.
func (f *CaptureFunction) Close() error {
	return closeAll(f.closers)
}

// closeAll runs closers in reverse creation order and joins their errors.
func closeAll(closers []func() error) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
