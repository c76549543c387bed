package services

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math/rand"
	"sync"
	"time"

	"github.com/Lllllllleong/pagecapture/internal/metrics"
	"github.com/Lllllllleong/pagecapture/internal/models"
	"github.com/Lllllllleong/pagecapture/internal/workpool"
)

type recordKey struct {
	caseID string
	ts     int64
}

// fakeRepo is an in-memory RecordRepository that enforces forward transitions.
type fakeRepo struct {
	mu        sync.Mutex
	records   map[recordKey]*models.DocumentRecord
	order     []recordKey
	findErr   error
	failOn    map[models.Status]error
	updates   []models.Changes
	findCalls int
}

func newFakeRepo(records ...models.DocumentRecord) *fakeRepo {
	r := &fakeRepo{records: map[recordKey]*models.DocumentRecord{}, failOn: map[models.Status]error{}}
	for _, rec := range records {
		rec := rec
		k := recordKey{rec.CaseID, rec.UploadTimestamp}
		r.records[k] = &rec
		r.order = append(r.order, k)
	}
	return r
}

func (r *fakeRepo) FindPending(ctx context.Context, batchID string) ([]models.DocumentRecord, error) {
	return r.FindByStatus(ctx, models.StatusOpen, batchID)
}

func (r *fakeRepo) FindByStatus(_ context.Context, status models.Status, batchID string) ([]models.DocumentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.findCalls++
	if r.findErr != nil {
		return nil, r.findErr
	}
	var out []models.DocumentRecord
	for _, k := range r.order {
		rec := r.records[k]
		if rec.Status != status {
			continue
		}
		if batchID != "" && rec.BatchID != batchID {
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (r *fakeRepo) UpdateStatus(_ context.Context, caseID string, ts int64, changes models.Changes) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, changes)
	if err := r.failOn[changes.Status()]; err != nil {
		return fmt.Errorf("%w: %w", models.ErrRepository, err)
	}
	rec, ok := r.records[recordKey{caseID, ts}]
	if !ok {
		return fmt.Errorf("%w: no record %s_%d", models.ErrRepository, caseID, ts)
	}
	if !rec.Status.CanAdvanceTo(changes.Status()) {
		return fmt.Errorf("%w: %w", models.ErrRepository, models.ErrConditionFail)
	}
	rec.Status = changes.Status()
	if paths, ok := changes.ImagePaths(); ok {
		rec.ImagePaths = paths
	}
	return nil
}

func (r *fakeRepo) Reopen(_ context.Context, caseID string, ts int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[recordKey{caseID, ts}]
	if !ok || rec.Status != models.StatusProcessingCapture {
		return fmt.Errorf("%w: %w", models.ErrRepository, models.ErrConditionFail)
	}
	rec.Status = models.StatusOpen
	return nil
}

func (r *fakeRepo) get(caseID string, ts int64) models.DocumentRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.records[recordKey{caseID, ts}]
}

// fakeStore is an in-memory ObjectStore with call counters.
type fakeStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	types    map[string]string
	getCalls int
	putCalls int
	failPut  func(key string, attempt int) error
	attempts map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}, types: map[string]string{}, attempts: map[string]int{}}
}

func (s *fakeStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return data, nil
}

func (s *fakeStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putCalls++
	s.attempts[key]++
	if s.failPut != nil {
		if err := s.failPut(key, s.attempts[key]); err != nil {
			return err
		}
	}
	s.objects[key] = data
	s.types[key] = contentType
	return nil
}

func (s *fakeStore) calls() (gets, puts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getCalls, s.putCalls
}

// fakeRasterizer opens the pages registered for a given PDF payload and
// tracks how many rendered images are alive at once. An image counts as
// alive from Render until countingEncoder has compressed it.
type fakeRasterizer struct {
	mu       sync.Mutex
	docs     map[string][]image.Image
	failPage map[int]error
	calls    int
	renders  int
	closed   int
	live     int
	peak     int
}

func newFakeRasterizer() *fakeRasterizer {
	return &fakeRasterizer{docs: map[string][]image.Image{}, failPage: map[int]error{}}
}

func (r *fakeRasterizer) Open(_ context.Context, pdf []byte) (PageSource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	imgs, ok := r.docs[string(pdf)]
	if !ok {
		return nil, fmt.Errorf("%w: not a PDF", models.ErrDecode)
	}
	return &fakeSource{r: r, pages: imgs}, nil
}

func (r *fakeRasterizer) release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live--
}

type fakeSource struct {
	r     *fakeRasterizer
	pages []image.Image
}

func (s *fakeSource) PageCount() int { return len(s.pages) }

func (s *fakeSource) Render(ctx context.Context, index int, _ float64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	s.r.renders++
	if err := s.r.failPage[index]; err != nil {
		return nil, fmt.Errorf("%w: page %d: %w", models.ErrDecode, index, err)
	}
	s.r.live++
	s.r.peak = max(s.r.peak, s.r.live)
	return s.pages[index-1], nil
}

func (s *fakeSource) Close() error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	s.r.closed++
	return nil
}

// countingEncoder marks each rendered image as released once compressed.
type countingEncoder struct {
	inner PageEncoder
	r     *fakeRasterizer
}

func (e countingEncoder) Compress(img image.Image) (*CompressedPage, error) {
	page, err := e.inner.Compress(img)
	e.r.release()
	return page, err
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (n *fakeNotifier) NotifyProcessed(_ context.Context, _ string, keys []string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, keys)
	return n.err
}

// flatImage is a small uniform page that compresses well below any test budget.
func flatImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 240, G: 240, B: 235, A: 255})
		}
	}
	return img
}

// noiseImage is random noise that stays large even at low JPEG quality.
func noiseImage(w, h int, seed int64) image.Image {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	return img
}

const testBudget = 8 * 1024

type harness struct {
	repo       *fakeRepo
	store      *fakeStore
	rasterizer *fakeRasterizer
	metrics    *metrics.Metrics
	pipeline   *DocumentPipeline
}

func newHarness(records ...models.DocumentRecord) *harness {
	h := &harness{
		repo:       newFakeRepo(records...),
		store:      newFakeStore(),
		rasterizer: newFakeRasterizer(),
		metrics:    metrics.New(nil),
	}
	h.pipeline = h.newPipeline(4)
	return h
}

// newPipeline wires a pipeline over the harness fakes with a page pool of
// the given size.
func (h *harness) newPipeline(pageWorkers int) *DocumentPipeline {
	return NewDocumentPipeline(PipelineDeps{
		Repository: h.repo,
		Store:      h.store,
		Rasterizer: h.rasterizer,
		Compressor: countingEncoder{
			inner: NewCompressor(CompressorConfig{MaxWidth: 4096, MaxHeight: 4096, MaxBytes: testBudget}),
			r:     h.rasterizer,
		},
		Uploader: NewPageUploader(h.store, UploaderConfig{
			DestinationRoot: "processed",
			MaxAttempts:     2,
			InitialBackoff:  time.Millisecond,
		}),
		PagePool: workpool.New(pageWorkers),
		Metrics:  h.metrics,
	}, 150)
}

// addPDF registers a source object and the pages the rasterizer yields for it.
func (h *harness) addPDF(key string, pages ...image.Image) {
	payload := "pdf:" + key
	h.store.objects[key] = []byte(payload)
	h.rasterizer.docs[payload] = pages
}

var errBoom = errors.New("boom")
