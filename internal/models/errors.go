package models

import "errors"

// Document-scoped failures abort the document; page-scoped failures only drop the page.
var (
	ErrDownload      = errors.New("download failed")
	ErrDecode        = errors.New("pdf decode failed")
	ErrSizeExceeded  = errors.New("page exceeds size budget")
	ErrStorageWrite  = errors.New("storage write failed")
	ErrStatusUpdate  = errors.New("status update failed")
	ErrRepository    = errors.New("record repository error")
	ErrConditionFail = errors.New("conditional check failed")
)
