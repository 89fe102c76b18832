// Package exif stores photo descriptions in the EXIF segment of JPEG files.
//
// Descriptions are written to both ImageDescription and the Windows
// XPComment tag. When a preview is supplied it becomes the IFD1 thumbnail,
// and the dimension tags are rewritten so they agree with the stored image
// and the thumbnail. Files are replaced atomically.
package exif

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	goexif "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure/v2"

	"github.com/poiesic/photoscan/core"
	"github.com/poiesic/photoscan/metadata"
)

const (
	tagImageDescription = "ImageDescription"
	tagXPComment        = "XPComment"
	tagPixelXDimension  = "PixelXDimension"
	tagPixelYDimension  = "PixelYDimension"
	tagImageWidth       = "ImageWidth"
	tagImageLength      = "ImageLength"
	tagCompression      = "Compression"
	tagGPSLatitude      = "GPSLatitude"
	tagGPSLatitudeRef   = "GPSLatitudeRef"
	tagGPSLongitude     = "GPSLongitude"
	tagGPSLongitudeRef  = "GPSLongitudeRef"

	// compressionJPEG marks an IFD1 thumbnail as JPEG data.
	compressionJPEG = 6
)

var (
	// ErrNotJPEG is returned for files without a JPEG start-of-image marker.
	ErrNotJPEG = errors.New("not a JPEG file")

	jpegSOI = []byte{0xFF, 0xD8}
)

// Store reads and writes EXIF metadata in JPEG files.
type Store struct {
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates an EXIF store.
func New(opts ...Option) *Store {
	s := &Store{
		logger: slog.Default().With("component", "metadata-exif"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ metadata.Store = (*Store)(nil)

// Close is a no-op; the store holds no resources.
func (s *Store) Close() error {
	return nil
}

// ReadDescription returns the stored description, preferring
// ImageDescription over XPComment.
func (s *Store) ReadDescription(ctx context.Context, path string) (*core.Description, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	root, err := s.load(path)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, nil
	}
	text := description(root)
	if text == "" {
		return nil, nil
	}
	return &core.Description{Text: text}, nil
}

// ReadHints returns the GPS position as a location hint. EXIF carries no
// face region names.
func (s *Store) ReadHints(ctx context.Context, path string) (metadata.Hints, error) {
	if err := ctx.Err(); err != nil {
		return metadata.Hints{}, err
	}
	root, err := s.load(path)
	if err != nil || root == nil {
		return metadata.Hints{}, err
	}
	return metadata.Hints{Location: s.location(path, root)}, nil
}

// Inspect reports the description, recorded dimensions and thumbnail.
func (s *Store) Inspect(ctx context.Context, path string) (*metadata.Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info := &metadata.Info{Path: path}
	root, err := s.load(path)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return info, nil
	}

	info.Description = description(root)
	info.Hints.Location = s.location(path, root)

	if exifIfd, err := root.ChildWithIfdPath(exifcommon.IfdExifStandardIfdIdentity); err == nil {
		info.Width = uintTag(exifIfd, tagPixelXDimension)
		info.Height = uintTag(exifIfd, tagPixelYDimension)
	}
	if thumbIfd := root.NextIfd(); thumbIfd != nil {
		info.PreviewWidth = uintTag(thumbIfd, tagImageWidth)
		info.PreviewHeight = uintTag(thumbIfd, tagImageLength)
		if data, err := thumbIfd.Thumbnail(); err == nil {
			info.PreviewBytes = len(data)
		}
	}
	return info, nil
}

// WriteDescription rewrites the EXIF segment with the update and atomically
// replaces the file. The original is unchanged if anything fails.
func (s *Store) WriteDescription(ctx context.Context, path string, update metadata.Update) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", core.ErrMetadataWriteFailed, path, err)
	}
	if !bytes.HasPrefix(data, jpegSOI) {
		return fmt.Errorf("%w: %s: %w", core.ErrMetadataWriteFailed, path, ErrNotJPEG)
	}

	out, err := rewrite(data, update)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", core.ErrMetadataWriteFailed, path, err)
	}
	if err := metadata.WriteFileAtomic(path, out); err != nil {
		return fmt.Errorf("%w: %s: %w", core.ErrMetadataWriteFailed, path, err)
	}

	s.logger.Debug("wrote metadata",
		"path", path,
		"bytes", len(out),
		"preview", update.Preview != nil)
	return nil
}

// load parses the EXIF block of the file. A JPEG without EXIF yields nil, nil.
func (s *Store) load(path string) (root *goexif.Ifd, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrMetadataUnreadable, path, err)
	}
	if !bytes.HasPrefix(data, jpegSOI) {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrMetadataUnreadable, path, ErrNotJPEG)
	}

	defer func() {
		if r := recover(); r != nil {
			root = nil
			err = fmt.Errorf("%w: %s: %v", core.ErrMetadataUnreadable, path, r)
		}
	}()

	raw, err := goexif.SearchAndExtractExif(data)
	if err != nil {
		if errors.Is(err, goexif.ErrNoExif) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s: %w", core.ErrMetadataUnreadable, path, err)
	}

	im, err := exifcommon.NewIfdMappingWithStandard()
	if err != nil {
		return nil, fmt.Errorf("ifd mapping: %w", err)
	}
	_, index, err := goexif.Collect(im, goexif.NewTagIndex(), raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrMetadataUnreadable, path, err)
	}
	return index.RootIfd, nil
}

func (s *Store) location(path string, root *goexif.Ifd) string {
	gpsIfd, err := root.ChildWithIfdPath(exifcommon.IfdGpsInfoStandardIfdIdentity)
	if err != nil {
		return ""
	}
	lat, latErr := coordinate(gpsIfd, tagGPSLatitude, tagGPSLatitudeRef)
	lon, lonErr := coordinate(gpsIfd, tagGPSLongitude, tagGPSLongitudeRef)
	if latErr != nil || lonErr != nil {
		s.logger.Debug("ignoring incomplete GPS data", "path", path, "lat_err", latErr, "lon_err", lonErr)
		return ""
	}
	return metadata.FormatLocation(lat, lon)
}

func description(root *goexif.Ifd) string {
	if v, ok := tagValue(root, tagImageDescription); ok {
		if text, ok := v.(string); ok {
			if text = metadata.CleanDescription(text); text != "" {
				return text
			}
		}
	}
	if v, ok := tagValue(root, tagXPComment); ok {
		if raw, ok := v.([]byte); ok {
			if text, err := metadata.DecodeUCS2(raw); err == nil {
				return metadata.CleanDescription(text)
			}
		}
	}
	return ""
}

func coordinate(gpsIfd *goexif.Ifd, valueTag, refTag string) (float64, error) {
	v, ok := tagValue(gpsIfd, valueTag)
	if !ok {
		return 0, fmt.Errorf("%s missing", valueTag)
	}
	rationals, ok := v.([]exifcommon.Rational)
	if !ok {
		return 0, fmt.Errorf("%s has type %T", valueTag, v)
	}
	dms := make([]metadata.Rational, len(rationals))
	for i, r := range rationals {
		dms[i] = metadata.Rational{Numerator: r.Numerator, Denominator: r.Denominator}
	}
	ref := ""
	if v, ok := tagValue(gpsIfd, refTag); ok {
		if s, ok := v.(string); ok {
			ref = strings.TrimSpace(s)
		}
	}
	return metadata.DMSToDecimal(dms, ref)
}

func tagValue(ifd *goexif.Ifd, name string) (any, bool) {
	entries, err := ifd.FindTagWithName(name)
	if err != nil || len(entries) == 0 {
		return nil, false
	}
	v, err := entries[0].Value()
	if err != nil {
		return nil, false
	}
	return v, true
}

func uintTag(ifd *goexif.Ifd, name string) int {
	v, ok := tagValue(ifd, name)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case []uint16:
		if len(n) > 0 {
			return int(n[0])
		}
	case []uint32:
		if len(n) > 0 {
			return int(n[0])
		}
	}
	return 0
}

// rewrite returns data with its EXIF segment replaced by one carrying update.
func rewrite(data []byte, update metadata.Update) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("exif encoder: %v", r)
		}
	}()

	parsed, err := jpegstructure.NewJpegMediaParser().ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse jpeg: %w", err)
	}
	sl, ok := parsed.(*jpegstructure.SegmentList)
	if !ok {
		return nil, fmt.Errorf("parse jpeg: unexpected media context %T", parsed)
	}

	rootIb, err := builder(sl)
	if err != nil {
		return nil, err
	}

	ifd0, err := goexif.GetOrCreateIbFromRootIb(rootIb, "IFD0")
	if err != nil {
		return nil, fmt.Errorf("ifd0: %w", err)
	}
	if err := ifd0.SetStandardWithName(tagImageDescription, update.Description); err != nil {
		return nil, fmt.Errorf("set %s: %w", tagImageDescription, err)
	}
	if err := ifd0.SetStandardWithName(tagXPComment, metadata.EncodeUCS2(update.Description)); err != nil {
		return nil, fmt.Errorf("set %s: %w", tagXPComment, err)
	}

	if update.SourceWidth > 0 && update.SourceHeight > 0 {
		exifIb, err := goexif.GetOrCreateIbFromRootIb(rootIb, "IFD/Exif")
		if err != nil {
			return nil, fmt.Errorf("exif ifd: %w", err)
		}
		if err := exifIb.SetStandardWithName(tagPixelXDimension, []uint32{uint32(update.SourceWidth)}); err != nil {
			return nil, fmt.Errorf("set %s: %w", tagPixelXDimension, err)
		}
		if err := exifIb.SetStandardWithName(tagPixelYDimension, []uint32{uint32(update.SourceHeight)}); err != nil {
			return nil, fmt.Errorf("set %s: %w", tagPixelYDimension, err)
		}
	}

	if p := update.Preview; p != nil && len(p.JPEG) > 0 {
		thumbIb, err := goexif.GetOrCreateIbFromRootIb(rootIb, "IFD1")
		if err != nil {
			return nil, fmt.Errorf("ifd1: %w", err)
		}
		if err := thumbIb.SetStandardWithName(tagCompression, []uint16{compressionJPEG}); err != nil {
			return nil, fmt.Errorf("set %s: %w", tagCompression, err)
		}
		if err := thumbIb.SetStandardWithName(tagImageWidth, []uint32{uint32(p.Width)}); err != nil {
			return nil, fmt.Errorf("set %s: %w", tagImageWidth, err)
		}
		if err := thumbIb.SetStandardWithName(tagImageLength, []uint32{uint32(p.Height)}); err != nil {
			return nil, fmt.Errorf("set %s: %w", tagImageLength, err)
		}
		if err := thumbIb.SetThumbnail(p.JPEG); err != nil {
			return nil, fmt.Errorf("set thumbnail: %w", err)
		}
	}

	if err := sl.SetExif(rootIb); err != nil {
		return nil, fmt.Errorf("set exif: %w", err)
	}
	var buf bytes.Buffer
	if err := sl.Write(&buf); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// builder returns an IFD builder seeded with the existing EXIF data, or an
// empty one when the file has none.
func builder(sl *jpegstructure.SegmentList) (*goexif.IfdBuilder, error) {
	if _, _, err := sl.FindExif(); err == nil {
		rootIb, err := sl.ConstructExifBuilder()
		if err != nil {
			return nil, fmt.Errorf("load exif: %w", err)
		}
		return rootIb, nil
	}

	im, err := exifcommon.NewIfdMappingWithStandard()
	if err != nil {
		return nil, fmt.Errorf("ifd mapping: %w", err)
	}
	return goexif.NewIfdBuilder(im, goexif.NewTagIndex(), exifcommon.IfdStandardIfdIdentity, exifcommon.EncodeDefaultByteOrder), nil
}

// Supports reports whether the store can handle the file at path.
func Supports(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return true
	}
	return false
}
