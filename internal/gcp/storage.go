package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetEnvInt reads an integer environment variable. Unparsable values fall
// back to the default and are logged.
func GetEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("Ignoring invalid integer environment variable.", "key", key, "value", value)
		return fallback
	}
	return n
}

// GetEnvFloat reads a float environment variable with the same fallback rules as GetEnvInt.
func GetEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		slog.Warn("Ignoring invalid numeric environment variable.", "key", key, "value", value)
		return fallback
	}
	return f
}

// GCSStore reads and writes whole objects in a single GCS bucket.
type GCSStore struct {
	bucket     *storage.BucketHandle
	bucketName string
}

func NewGCSStore(client *storage.Client, bucketName string) *GCSStore {
	return &GCSStore{
		bucket:     client.Bucket(bucketName),
		bucketName: bucketName,
	}
}

// Get downloads the whole object into memory.
func (s *GCSStore) Get(ctx context.Context, key string) ([]byte, error) {
	reader, err := s.bucket.Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("object gs://%s/%s does not exist: %w", s.bucketName, key, err)
		}
		return nil, fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", s.bucketName, key, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", s.bucketName, key, err)
	}
	return data, nil
}

// Put writes data to key, replacing any existing object.
func (s *GCSStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	writer := s.bucket.Object(key).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return describeGCSError("write", s.bucketName, key, err)
	}
	if err := writer.Close(); err != nil {
		return describeGCSError("finalize", s.bucketName, key, err)
	}
	return nil
}

func describeGCSError(op, bucket, key string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return fmt.Errorf("failed to %s gs://%s/%s (HTTP %d): %w", op, bucket, key, gerr.Code, err)
	}
	return fmt.Errorf("failed to %s gs://%s/%s: %w", op, bucket, key, err)
}
