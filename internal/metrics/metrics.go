package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Page outcomes.
const (
	PageUploaded     = "uploaded"
	PageSizeExceeded = "size_exceeded"
	PageEncodeFailed = "encode_failed"
	PageUploadFailed = "upload_failed"
)

// Document outcomes.
const (
	DocumentProcessed          = "processed"
	DocumentSkipped            = "skipped"
	DocumentStatusUpdateFailed = "status_update_failed"
	DocumentDownloadFailed     = "download_failed"
	DocumentDecodeFailed       = "decode_failed"
	DocumentCompletionFailed   = "completion_update_failed"
)

// Metrics groups the capture pipeline collectors.
type Metrics struct {
	PagesTotal         *prometheus.CounterVec
	DocumentsTotal     *prometheus.CounterVec
	BatchesTotal       *prometheus.CounterVec
	CompressionQuality prometheus.Histogram
	DocumentDuration   prometheus.Histogram
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capture_pages_total",
				Help: "Pages handled by the capture pipeline, by outcome",
			},
			[]string{"outcome"},
		),
		DocumentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capture_documents_total",
				Help: "Documents handled by the capture pipeline, by outcome",
			},
			[]string{"outcome"},
		),
		BatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capture_batches_total",
				Help: "Batches scanned, by status",
			},
			[]string{"status"},
		),
		CompressionQuality: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "capture_compression_quality",
				Help:    "JPEG quality level that satisfied the size budget",
				Buckets: []float64{50, 60, 70, 80, 90, 95, 100},
			},
		),
		DocumentDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "capture_document_duration_seconds",
				Help:    "Time taken to capture one document",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.PagesTotal,
			m.DocumentsTotal,
			m.BatchesTotal,
			m.CompressionQuality,
			m.DocumentDuration,
		)
	}
	return m
}

func (m *Metrics) Page(outcome string) {
	m.PagesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Document(outcome string) {
	m.DocumentsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Batch(status string) {
	m.BatchesTotal.WithLabelValues(status).Inc()
}
