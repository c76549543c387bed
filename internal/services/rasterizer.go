package services

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Lllllllleong/pagecapture/internal/models"
	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Rasterizer opens a PDF for page-by-page rendering. Open fails with
// ErrDecode when the document cannot be read or has no pages.
type Rasterizer interface {
	Open(ctx context.Context, pdf []byte) (PageSource, error)
}

// PageSource renders the pages of one open document on demand. Pages are
// 1-indexed. Render may be called concurrently; a failed render wraps
// ErrDecode. Close releases the document and its scratch files.
type PageSource interface {
	PageCount() int
	Render(ctx context.Context, index int, dpi float64) (image.Image, error)
	Close() error
}

// FitzRasterizer validates PDFs with pdfcpu and renders them with MuPDF.
type FitzRasterizer struct {
	tempRoot string
}

// NewFitzRasterizer creates a rasterizer whose scratch directories live
// under tempRoot, or the system temp directory when it is empty.
func NewFitzRasterizer(tempRoot string) *FitzRasterizer {
	return &FitzRasterizer{tempRoot: tempRoot}
}

func (r *FitzRasterizer) Open(ctx context.Context, pdf []byte) (PageSource, error) {
	if len(pdf) == 0 {
		return nil, fmt.Errorf("%w: empty document", models.ErrDecode)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tempDir, err := os.MkdirTemp(r.tempRoot, "page-capture-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	src, err := openFitz(tempDir, pdf)
	if err != nil {
		os.RemoveAll(tempDir)
		return nil, err
	}
	return src, nil
}

func openFitz(tempDir string, pdf []byte) (*fitzSource, error) {
	sourcePdfPath := filepath.Join(tempDir, "source.pdf")
	if err := os.WriteFile(sourcePdfPath, pdf, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write temp file at %s: %w", sourcePdfPath, err)
	}

	pageCount, err := validatePDF(sourcePdfPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrDecode, err)
	}

	doc, err := fitz.New(sourcePdfPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open PDF: %w", models.ErrDecode, err)
	}

	if n := doc.NumPage(); n != pageCount {
		slog.Warn("Page count mismatch between validator and renderer.", "validatorPages", pageCount, "rendererPages", n)
		pageCount = n
	}
	if pageCount == 0 {
		doc.Close()
		return nil, fmt.Errorf("%w: document has no pages", models.ErrDecode)
	}
	return &fitzSource{doc: doc, tempDir: tempDir, pageCount: pageCount}, nil
}

// fitzSource renders from an open MuPDF document. fitz.Document serializes
// its own calls, so concurrent Render calls are safe.
type fitzSource struct {
	doc       *fitz.Document
	tempDir   string
	pageCount int
}

func (s *fitzSource) PageCount() int { return s.pageCount }

func (s *fitzSource) Render(ctx context.Context, index int, dpi float64) (image.Image, error) {
	if index < 1 || index > s.pageCount {
		return nil, fmt.Errorf("%w: page %d out of range 1..%d", models.ErrDecode, index, s.pageCount)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := s.doc.ImageDPI(index-1, dpi)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to render page %d: %w", models.ErrDecode, index, err)
	}
	return img, nil
}

func (s *fitzSource) Close() error {
	err := s.doc.Close()
	if rmErr := os.RemoveAll(s.tempDir); rmErr != nil && err == nil {
		err = rmErr
	}
	return err
}

// validatePDF checks the file in relaxed mode and returns its page count.
func validatePDF(path string) (int, error) {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	if err := api.ValidateFile(path, cfg); err != nil {
		return 0, fmt.Errorf("invalid PDF: %w", err)
	}
	pageCount, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	return pageCount, nil
}
