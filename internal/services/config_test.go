package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PROJECT_ID", "proj")
	t.Setenv("BUCKET_NAME", "docs")

	config, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "capture_documents", config.CollectionName)
	assert.Equal(t, StorageBackendGCS, config.StorageBackend)
	assert.Equal(t, "processed", config.DestinationRoot)
	assert.Equal(t, 4096, config.MaxImageWidth)
	assert.Equal(t, 4096, config.MaxImageHeight)
	assert.Equal(t, 150.0, config.RasterDPI)
	assert.Equal(t, int(4.5*1024*1024), config.MaxOutputBytes())
	assert.Equal(t, 4, config.UploadMaxAttempts)
	assert.Equal(t, "us-central1", config.WorkflowLocation)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("PROJECT_ID", "proj")
	t.Setenv("BUCKET_NAME", "docs")
	t.Setenv("STORAGE_BACKEND", "S3")
	t.Setenv("MAX_IMAGE_WIDTH", "2048")
	t.Setenv("MAX_OUTPUT_SIZE_MB", "1")
	t.Setenv("COMPRESSION_QUALITY_FLOOR", "30")
	t.Setenv("PAGE_WORKERS", "not-a-number")

	config, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, StorageBackendS3, config.StorageBackend)
	assert.Equal(t, 8, config.PageWorkers)

	cc := config.CompressorConfig()
	assert.Equal(t, 2048, cc.MaxWidth)
	assert.Equal(t, 4096, cc.MaxHeight)
	assert.Equal(t, 1024*1024, cc.MaxBytes)
	assert.Equal(t, 30, cc.QualityFloor)
}

func TestLoadConfigRequiresProjectAndBucket(t *testing.T) {
	t.Setenv("PROJECT_ID", "")
	t.Setenv("BUCKET_NAME", "docs")
	_, err := LoadConfig()
	assert.ErrorContains(t, err, "PROJECT_ID")

	t.Setenv("PROJECT_ID", "proj")
	t.Setenv("BUCKET_NAME", "")
	_, err = LoadConfig()
	assert.ErrorContains(t, err, "BUCKET_NAME")
}

func TestConfigValidateRanges(t *testing.T) {
	valid := func() Config {
		return Config{
			ProjectID: "p", Bucket: "b", StorageBackend: StorageBackendGCS,
			MaxImageWidth: 10, MaxImageHeight: 10, RasterDPI: 72, MaxOutputSizeMB: 1,
			QualityFloor: 50, QualityStep: 5,
			BatchWorkers: 1, DocumentWorkers: 1, PageWorkers: 1,
		}
	}
	c := valid()
	require.NoError(t, c.Validate())

	cases := map[string]func(*Config){
		"backend": func(c *Config) { c.StorageBackend = "azure" },
		"width":   func(c *Config) { c.MaxImageWidth = 0 },
		"dpi":     func(c *Config) { c.RasterDPI = -1 },
		"size":    func(c *Config) { c.MaxOutputSizeMB = 0 },
		"floor":   func(c *Config) { c.QualityFloor = 101 },
		"step":    func(c *Config) { c.QualityStep = 0 },
		"workers": func(c *Config) { c.DocumentWorkers = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
