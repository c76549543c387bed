package services

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/Lllllllleong/pagecapture/internal/models"
)

const (
	pageImageExt         = "jpg"
	pageImageContentType = "image/jpeg"
)

// UploaderConfig controls where pages go and how uploads are retried.
type UploaderConfig struct {
	DestinationRoot string
	MaxAttempts     int
	InitialBackoff  time.Duration
}

// PageUploader writes compressed pages to deterministic keys.
type PageUploader struct {
	store  ObjectStore
	config UploaderConfig
}

func NewPageUploader(store ObjectStore, config UploaderConfig) *PageUploader {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = time.Second
	}
	return &PageUploader{store: store, config: config}
}

// BaseName is the source object's file name without its extension.
func BaseName(objectKey string) string {
	base := path.Base(objectKey)
	return strings.TrimSuffix(base, path.Ext(base))
}

// PageKey builds <root>/<caseId>/<baseName>_page_<index>.jpg.
func PageKey(destinationRoot, caseID, baseName string, index int) string {
	name := fmt.Sprintf("%s_page_%d.%s", baseName, index, pageImageExt)
	root := strings.Trim(destinationRoot, "/")
	if root == "" {
		return caseID + "/" + name
	}
	return root + "/" + caseID + "/" + name
}

// Upload stores page under its page key and returns the key. Transport
// failures are retried with doubling backoff before ErrStorageWrite is returned.
func (u *PageUploader) Upload(ctx context.Context, caseID, baseName string, index int, page *CompressedPage) (string, error) {
	key := PageKey(u.config.DestinationRoot, caseID, baseName, index)
	backoff := u.config.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= u.config.MaxAttempts; attempt++ {
		err := u.store.Put(ctx, key, page.Data, pageImageContentType)
		if err == nil {
			return key, nil
		}
		lastErr = err
		if attempt == u.config.MaxAttempts {
			break
		}

		slog.Warn(
			"Upload failed, will retry.",
			"object", key,
			"attempt", attempt,
			"maxAttempts", u.config.MaxAttempts,
			"backoff", backoff.String(),
			"error", err,
		)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %s: %w", models.ErrStorageWrite, key, ctx.Err())
		}
	}
	return "", fmt.Errorf("%w: %s failed after %d attempts: %w", models.ErrStorageWrite, key, u.config.MaxAttempts, lastErr)
}
