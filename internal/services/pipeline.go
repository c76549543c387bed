package services

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"slices"
	"time"

	"github.com/Lllllllleong/pagecapture/internal/metrics"
	"github.com/Lllllllleong/pagecapture/internal/models"
	"github.com/Lllllllleong/pagecapture/internal/workpool"
)

// PageResult is the outcome of one page: a storage key or an error.
type PageResult struct {
	Index int
	Key   string
	Err   error
}

// DocumentOutcome summarizes one document run.
type DocumentOutcome struct {
	ObjectKey  string
	PageCount  int
	ImagePaths []string
	Failed     []PageResult
}

// PipelineDeps are the collaborators of DocumentPipeline.
type PipelineDeps struct {
	Repository RecordRepository
	Store      ObjectStore
	Rasterizer Rasterizer
	Compressor PageEncoder
	Uploader   *PageUploader
	PagePool   *workpool.Pool
	Metrics    *metrics.Metrics
}

// PageEncoder turns a decoded page into bytes that fit the size budget.
// Compressor is the production implementation.
type PageEncoder interface {
	Compress(img image.Image) (*CompressedPage, error)
}

// DocumentPipeline captures one document: status, download, rasterize,
// compress and upload every page, final status.
type DocumentPipeline struct {
	repo       RecordRepository
	store      ObjectStore
	rasterizer Rasterizer
	compressor PageEncoder
	uploader   *PageUploader
	pagePool   *workpool.Pool
	metrics    *metrics.Metrics
	dpi        float64
}

func NewDocumentPipeline(deps PipelineDeps, dpi float64) *DocumentPipeline {
	if dpi <= 0 {
		dpi = defaultRasterDPI
	}
	if deps.PagePool == nil {
		deps.PagePool = workpool.New(1)
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(nil)
	}
	return &DocumentPipeline{
		repo:       deps.Repository,
		store:      deps.Store,
		rasterizer: deps.Rasterizer,
		compressor: deps.Compressor,
		uploader:   deps.Uploader,
		pagePool:   deps.PagePool,
		metrics:    deps.Metrics,
		dpi:        dpi,
	}
}

// Process runs one record end to end. Document-level failures (status,
// download, decode) return an error and stop the document. Page failures
// are reported in the outcome and do not stop sibling pages.
func (p *DocumentPipeline) Process(ctx context.Context, rec models.DocumentRecord) (*DocumentOutcome, error) {
	start := time.Now()
	logCtx := slog.With("caseId", rec.CaseID, "uploadTimestamp", rec.UploadTimestamp, "objectKey", rec.ObjectKey)
	logCtx.Info("Processing document.")

	processing := models.SetStatus(models.StatusProcessingCapture)
	if err := p.repo.UpdateStatus(ctx, rec.CaseID, rec.UploadTimestamp, processing); err != nil {
		return nil, p.fail(logCtx, metrics.DocumentStatusUpdateFailed, "failed to mark document as processing", fmt.Errorf("%w: %w", models.ErrStatusUpdate, err))
	}

	pdf, err := p.store.Get(ctx, rec.ObjectKey)
	if err != nil {
		// Status stays at processing_capture so the stuck record is visible.
		return nil, p.fail(logCtx, metrics.DocumentDownloadFailed, "failed to download source PDF", fmt.Errorf("%w: %w", models.ErrDownload, err))
	}

	src, err := p.rasterizer.Open(ctx, pdf)
	if err != nil {
		return nil, p.fail(logCtx, metrics.DocumentDecodeFailed, "failed to open PDF", asDecodeError(err))
	}
	defer src.Close()
	pageCount := src.PageCount()
	logCtx = logCtx.With("pageCount", pageCount)

	// Pages are rendered and compressed inside the page pool, so at most
	// PagePool decoded images are alive at once. Only compressed bytes are
	// kept until every page has rendered.
	renderCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	encoded := workpool.Map(renderCtx, p.pagePool, pageIndexes(pageCount), func(ctx context.Context, _ int, index int) encodedPage {
		return p.encodePage(ctx, cancel, logCtx, src, index)
	})
	if renderCtx.Err() != nil {
		return nil, p.fail(logCtx, metrics.DocumentDecodeFailed, "failed to rasterize PDF", asDecodeError(context.Cause(renderCtx)))
	}

	baseName := BaseName(rec.ObjectKey)
	results := workpool.Map(ctx, p.pagePool, encoded, func(ctx context.Context, i int, page encodedPage) PageResult {
		encoded[i].page = nil
		if page.err != nil {
			return PageResult{Index: page.index, Err: page.err}
		}
		return p.uploadPage(ctx, logCtx, rec.CaseID, baseName, page)
	})

	outcome := collectPages(rec.ObjectKey, results)
	if len(outcome.Failed) > 0 {
		logCtx.Warn("Some pages could not be captured.", "failedPages", len(outcome.Failed), "uploadedPages", len(outcome.ImagePaths))
	}

	done := models.SetStatus(models.StatusProcessedCapture).WithImagePaths(outcome.ImagePaths)
	if err := p.repo.UpdateStatus(ctx, rec.CaseID, rec.UploadTimestamp, done); err != nil {
		// Uploaded pages are kept; the record needs an operator sweep.
		return outcome, p.fail(logCtx, metrics.DocumentCompletionFailed, "failed to mark document as processed", fmt.Errorf("%w: %w", models.ErrStatusUpdate, err))
	}

	p.metrics.Document(metrics.DocumentProcessed)
	p.metrics.DocumentDuration.Observe(time.Since(start).Seconds())
	logCtx.Info("Document captured.", "uploadedPages", len(outcome.ImagePaths), "duration", time.Since(start).String())
	return outcome, nil
}

// encodedPage is a compressed page waiting for upload, or a page-scoped
// compression failure.
type encodedPage struct {
	index int
	page  *CompressedPage
	err   error
}

func pageIndexes(n int) []int {
	indexes := make([]int, n)
	for i := range indexes {
		indexes[i] = i + 1
	}
	return indexes
}

// encodePage renders one page and compresses it right away. A render
// failure cancels the remaining renders through cancel; the decoded image
// is dropped when this returns.
func (p *DocumentPipeline) encodePage(ctx context.Context, cancel context.CancelCauseFunc, logCtx *slog.Logger, src PageSource, index int) encodedPage {
	pageLog := logCtx.With("page", index)

	img, err := src.Render(ctx, index, p.dpi)
	if err != nil {
		if ctx.Err() == nil {
			pageLog.Error("Failed to render page", "error", err)
			cancel(fmt.Errorf("page %d: %w", index, err))
		}
		return encodedPage{index: index}
	}

	compressed, err := p.compressor.Compress(img)
	if err != nil {
		outcome := metrics.PageEncodeFailed
		if errors.Is(err, models.ErrSizeExceeded) {
			outcome = metrics.PageSizeExceeded
		}
		p.metrics.Page(outcome)
		pageLog.Error("Failed to compress page", "error", err)
		return encodedPage{index: index, err: err}
	}
	p.metrics.CompressionQuality.Observe(float64(compressed.Quality))
	return encodedPage{index: index, page: compressed}
}

func (p *DocumentPipeline) uploadPage(ctx context.Context, logCtx *slog.Logger, caseID, baseName string, page encodedPage) PageResult {
	pageLog := logCtx.With("page", page.index)

	key, err := p.uploader.Upload(ctx, caseID, baseName, page.index, page.page)
	if err != nil {
		p.metrics.Page(metrics.PageUploadFailed)
		pageLog.Error("Failed to upload page", "error", err)
		return PageResult{Index: page.index, Err: err}
	}

	p.metrics.Page(metrics.PageUploaded)
	pageLog.Debug("Page uploaded.", "object", key, "quality", page.page.Quality, "bytes", len(page.page.Data))
	return PageResult{Index: page.index, Key: key}
}

func asDecodeError(err error) error {
	if errors.Is(err, models.ErrDecode) {
		return err
	}
	return fmt.Errorf("%w: %w", models.ErrDecode, err)
}

// collectPages splits page results into ordered keys and failures.
func collectPages(objectKey string, results []PageResult) *DocumentOutcome {
	sorted := slices.Clone(results)
	slices.SortFunc(sorted, func(a, b PageResult) int { return a.Index - b.Index })

	outcome := &DocumentOutcome{ObjectKey: objectKey, PageCount: len(results), ImagePaths: []string{}}
	for _, r := range sorted {
		if r.Err != nil {
			outcome.Failed = append(outcome.Failed, r)
			continue
		}
		outcome.ImagePaths = append(outcome.ImagePaths, r.Key)
	}
	return outcome
}

func (p *DocumentPipeline) fail(logCtx *slog.Logger, outcome, message string, err error) error {
	p.metrics.Document(outcome)
	logCtx.Error(message, "error", err)
	return fmt.Errorf("%s: %w", message, err)
}
