package services

import (
	"fmt"
	"strings"

	"github.com/Lllllllleong/pagecapture/internal/gcp"
)

const (
	defaultMaxImageSide    = 4096
	defaultRasterDPI       = 150
	defaultMaxOutputSizeMB = 4.5
	defaultQualityFloor    = 50
	defaultQualityStep     = 5
	defaultDestinationRoot = "processed"
	bytesPerMB             = 1024 * 1024

	StorageBackendGCS = "gcs"
	StorageBackendS3  = "s3"
)

// Config holds all configuration for the capture service.
type Config struct {
	ProjectID       string
	Bucket          string
	CollectionName  string
	StorageBackend  string
	S3Region        string
	S3Endpoint      string
	DestinationRoot string

	MaxImageWidth   int
	MaxImageHeight  int
	RasterDPI       float64
	MaxOutputSizeMB float64
	QualityFloor    int
	QualityStep     int

	BatchWorkers    int
	DocumentWorkers int
	PageWorkers     int

	UploadMaxAttempts int

	WorkflowID       string
	WorkflowLocation string
}

// LoadConfig loads and validates the capture configuration from the environment.
func LoadConfig() (*Config, error) {
	config := &Config{
		ProjectID:       gcp.GetEnv("PROJECT_ID", ""),
		Bucket:          gcp.GetEnv("BUCKET_NAME", ""),
		CollectionName:  gcp.GetEnv("FIRESTORE_COLLECTION", "capture_documents"),
		StorageBackend:  strings.ToLower(gcp.GetEnv("STORAGE_BACKEND", StorageBackendGCS)),
		S3Region:        gcp.GetEnv("S3_REGION", "us-east-1"),
		S3Endpoint:      gcp.GetEnv("S3_ENDPOINT", ""),
		DestinationRoot: gcp.GetEnv("DESTINATION_ROOT", defaultDestinationRoot),

		MaxImageWidth:   gcp.GetEnvInt("MAX_IMAGE_WIDTH", defaultMaxImageSide),
		MaxImageHeight:  gcp.GetEnvInt("MAX_IMAGE_HEIGHT", defaultMaxImageSide),
		RasterDPI:       gcp.GetEnvFloat("RASTER_DPI", defaultRasterDPI),
		MaxOutputSizeMB: gcp.GetEnvFloat("MAX_OUTPUT_SIZE_MB", defaultMaxOutputSizeMB),
		QualityFloor:    gcp.GetEnvInt("COMPRESSION_QUALITY_FLOOR", defaultQualityFloor),
		QualityStep:     gcp.GetEnvInt("COMPRESSION_QUALITY_STEP", defaultQualityStep),

		BatchWorkers:    gcp.GetEnvInt("BATCH_WORKERS", 4),
		DocumentWorkers: gcp.GetEnvInt("DOCUMENT_WORKERS", 4),
		PageWorkers:     gcp.GetEnvInt("PAGE_WORKERS", 8),

		UploadMaxAttempts: gcp.GetEnvInt("UPLOAD_MAX_ATTEMPTS", 4),

		WorkflowID:       gcp.GetEnv("WORKFLOW_ID", ""),
		WorkflowLocation: gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks required settings and numeric ranges.
func (c *Config) Validate() error {
	if c.ProjectID == "" {
		return fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	if c.Bucket == "" {
		return fmt.Errorf("BUCKET_NAME environment variable must be set")
	}
	if c.StorageBackend != StorageBackendGCS && c.StorageBackend != StorageBackendS3 {
		return fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q", StorageBackendGCS, StorageBackendS3, c.StorageBackend)
	}
	if c.MaxImageWidth <= 0 || c.MaxImageHeight <= 0 {
		return fmt.Errorf("MAX_IMAGE_WIDTH and MAX_IMAGE_HEIGHT must be positive")
	}
	if c.RasterDPI <= 0 {
		return fmt.Errorf("RASTER_DPI must be positive")
	}
	if c.MaxOutputSizeMB <= 0 {
		return fmt.Errorf("MAX_OUTPUT_SIZE_MB must be positive")
	}
	if c.QualityFloor < 1 || c.QualityFloor > startQuality {
		return fmt.Errorf("COMPRESSION_QUALITY_FLOOR must be between 1 and 100, got %d", c.QualityFloor)
	}
	if c.QualityStep < 1 {
		return fmt.Errorf("COMPRESSION_QUALITY_STEP must be positive, got %d", c.QualityStep)
	}
	if c.BatchWorkers < 1 || c.DocumentWorkers < 1 || c.PageWorkers < 1 {
		return fmt.Errorf("worker pool sizes must be positive")
	}
	return nil
}

// MaxOutputBytes converts the configured size budget into bytes.
func (c *Config) MaxOutputBytes() int {
	return int(c.MaxOutputSizeMB * bytesPerMB)
}

func (c *Config) CompressorConfig() CompressorConfig {
	return CompressorConfig{
		MaxWidth:     c.MaxImageWidth,
		MaxHeight:    c.MaxImageHeight,
		MaxBytes:     c.MaxOutputBytes(),
		QualityFloor: c.QualityFloor,
		QualityStep:  c.QualityStep,
	}
}
