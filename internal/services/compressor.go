package services

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/Lllllllleong/pagecapture/internal/models"
	"golang.org/x/image/draw"
)

const startQuality = 100

// CompressorConfig bounds the output of Compressor.
type CompressorConfig struct {
	MaxWidth     int
	MaxHeight    int
	MaxBytes     int
	QualityFloor int
	QualityStep  int
}

// CompressedPage is an encoded page that fits the size budget.
type CompressedPage struct {
	Data    []byte
	Quality int
}

// Compressor downsizes page images and re-encodes them until they fit a byte budget.
type Compressor struct {
	config CompressorConfig
}

// NewCompressor fills unset limits with the defaults from Config.
func NewCompressor(config CompressorConfig) *Compressor {
	if config.MaxWidth <= 0 {
		config.MaxWidth = defaultMaxImageSide
	}
	if config.MaxHeight <= 0 {
		config.MaxHeight = defaultMaxImageSide
	}
	if config.MaxBytes <= 0 {
		config.MaxBytes = int(defaultMaxOutputSizeMB * bytesPerMB)
	}
	if config.QualityFloor <= 0 || config.QualityFloor > startQuality {
		config.QualityFloor = defaultQualityFloor
	}
	if config.QualityStep <= 0 {
		config.QualityStep = defaultQualityStep
	}
	return &Compressor{config: config}
}

func (c *Compressor) Config() CompressorConfig { return c.config }

// Compress scales img into the bounding box and encodes it as JPEG, starting
// at quality 100 and stepping down to the floor. It returns ErrSizeExceeded
// when even the floor quality is over budget.
func (c *Compressor) Compress(img image.Image) (*CompressedPage, error) {
	scaled := fitWithin(img, c.config.MaxWidth, c.config.MaxHeight)

	var buf bytes.Buffer
	lastSize, lastQuality := -1, startQuality
	for quality := startQuality; quality >= c.config.QualityFloor; quality -= c.config.QualityStep {
		buf.Reset()
		if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("jpeg encode at quality %d: %w", quality, err)
		}
		if buf.Len() <= c.config.MaxBytes {
			return &CompressedPage{Data: bytes.Clone(buf.Bytes()), Quality: quality}, nil
		}
		lastSize, lastQuality = buf.Len(), quality
	}
	return nil, fmt.Errorf("%w: %d bytes at quality %d, budget %d bytes",
		models.ErrSizeExceeded, lastSize, lastQuality, c.config.MaxBytes)
}

// fitWithin downsizes img so neither side exceeds the bounds, keeping the
// aspect ratio. Images already inside the box are returned as is.
func fitWithin(img image.Image, maxWidth, maxHeight int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxWidth && h <= maxHeight {
		return img
	}

	scale := min(float64(maxWidth)/float64(w), float64(maxHeight)/float64(h))
	nw := max(1, int(float64(w)*scale+0.5))
	nh := max(1, int(float64(h)*scale+0.5))
	nw, nh = min(nw, maxWidth), min(nh, maxHeight)

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
