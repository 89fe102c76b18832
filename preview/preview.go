// Package preview turns a photo on disk into the images the pipeline needs:
// a small JPEG for the vision model and, optionally, an embedded thumbnail.
package preview

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const (
	// DefaultModelSize is the bounding box for the image sent to the model.
	DefaultModelSize = 672

	// DefaultPreviewSize is the bounding box for embedded thumbnails.
	// EXIF thumbnails share a 64 KiB segment with the rest of the metadata.
	DefaultPreviewSize = 160

	// DefaultQuality is the JPEG quality used for re-encoding.
	DefaultQuality = 85
)

var (
	// ErrUnsupportedFormat is returned for extensions no decoder handles.
	ErrUnsupportedFormat = errors.New("unsupported image format")

	// ErrPreviewTooLarge is returned when the encoded thumbnail cannot fit in an EXIF segment.
	ErrPreviewTooLarge = errors.New("preview too large")
)

// maxPreviewBytes leaves room for the other tags in the APP1 segment.
const maxPreviewBytes = 60 * 1024

// Options control Prepare.
type Options struct {
	ModelSize   int  // Bounding box edge for the model image
	PreviewSize int  // Bounding box edge for the thumbnail
	Quality     int  // JPEG quality, 1-100
	WithPreview bool // Also produce a thumbnail
}

// DefaultOptions returns the options used by the pipeline.
func DefaultOptions() Options {
	return Options{
		ModelSize:   DefaultModelSize,
		PreviewSize: DefaultPreviewSize,
		Quality:     DefaultQuality,
	}
}

// Thumbnail is an encoded JPEG and its pixel size.
type Thumbnail struct {
	JPEG   []byte
	Width  int
	Height int
}

// Result holds everything derived from one source image.
type Result struct {
	Model        []byte     // Oriented JPEG fit into the model box
	SourceWidth  int        // Stored pixel width of the source, before orientation
	SourceHeight int        // Stored pixel height of the source, before orientation
	Preview      *Thumbnail // Set when Options.WithPreview is true
}

// Prepare decodes the file at path and builds the model input and, when
// requested, the thumbnail. The thumbnail keeps the stored orientation so the
// Orientation tag applies to it like it does to the main image.
func Prepare(path string, opts Options) (*Result, error) {
	if opts.ModelSize <= 0 {
		opts.ModelSize = DefaultModelSize
	}
	if opts.PreviewSize <= 0 {
		opts.PreviewSize = DefaultPreviewSize
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultQuality
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	oriented, err := decode(path, data, true)
	if err != nil {
		return nil, err
	}
	model, err := encodeJPEG(imaging.Fit(oriented, opts.ModelSize, opts.ModelSize, imaging.Lanczos), opts.Quality)
	if err != nil {
		return nil, fmt.Errorf("encode model image: %w", err)
	}

	res := &Result{Model: model}

	if !opts.WithPreview {
		res.SourceWidth, res.SourceHeight = storedSize(data, oriented)
		return res, nil
	}

	raw := oriented
	if needsRawDecode(path) {
		if raw, err = decode(path, data, false); err != nil {
			return nil, err
		}
	}
	res.SourceWidth, res.SourceHeight = raw.Bounds().Dx(), raw.Bounds().Dy()

	thumb, err := thumbnail(raw, opts.PreviewSize, opts.Quality)
	if err != nil {
		return nil, err
	}
	res.Preview = thumb
	return res, nil
}

func storedSize(data []byte, decoded image.Image) (int, int) {
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		return cfg.Width, cfg.Height
	}
	return decoded.Bounds().Dx(), decoded.Bounds().Dy()
}

func thumbnail(img image.Image, size, quality int) (*Thumbnail, error) {
	fitted := imaging.Fit(img, size, size, imaging.Lanczos)
	for q := quality; q >= 30; q -= 15 {
		data, err := encodeJPEG(fitted, q)
		if err != nil {
			return nil, fmt.Errorf("encode preview: %w", err)
		}
		if len(data) <= maxPreviewBytes {
			return &Thumbnail{JPEG: data, Width: fitted.Bounds().Dx(), Height: fitted.Bounds().Dy()}, nil
		}
	}
	return nil, ErrPreviewTooLarge
}

func decode(path string, data []byte, orient bool) (image.Image, error) {
	if isHEIC(path) {
		return decodeHEIC(data)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(orient))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnsupportedFormat, filepath.Base(path), err)
	}
	return img, nil
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// needsRawDecode reports whether orientation may have changed the decoded
// image. Only JPEG sources carry an Orientation tag imaging applies.
func needsRawDecode(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".jpg" || ext == ".jpeg"
}

func isHEIC(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".heic" || ext == ".heif"
}
