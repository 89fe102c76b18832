// Package exiftool stores photo descriptions through a long-running
// exiftool process. It handles every format exiftool can write and reads
// face region names for prompt hints, but cannot embed previews.
package exiftool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/barasher/go-exiftool"

	"github.com/poiesic/photoscan/core"
	"github.com/poiesic/photoscan/metadata"
)

// Tag names as exiftool reports them with print conversion disabled.
const (
	fieldDescription      = "Description"
	fieldImageDescription = "ImageDescription"
	fieldRegionName       = "RegionName"
	fieldPersonInImage    = "PersonInImage"
	fieldExifImageWidth   = "ExifImageWidth"
	fieldExifImageHeight  = "ExifImageHeight"
	fieldThumbnailLength  = "ThumbnailLength"
	fieldGPSLatitude      = "GPSLatitude"
	fieldGPSLatitudeRef   = "GPSLatitudeRef"
	fieldGPSLongitude     = "GPSLongitude"
	fieldGPSLongitudeRef  = "GPSLongitudeRef"
	fieldError            = "Error"

	writeXMPDescription  = "XMP-dc:Description"
	writeEXIFDescription = "EXIF:ImageDescription"
	writeExifImageWidth  = "ExifIFD:ExifImageWidth"
	writeExifImageHeight = "ExifIFD:ExifImageHeight"
)

// ErrPreviewUnsupported is logged when an update carries a preview.
var ErrPreviewUnsupported = errors.New("exiftool store cannot embed previews")

// Store reads and writes metadata with exiftool.
type Store struct {
	et     *exiftool.Exiftool
	logger *slog.Logger
	binary string
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithBinary sets the path of the exiftool executable.
func WithBinary(path string) Option {
	return func(s *Store) {
		s.binary = path
	}
}

// New starts an exiftool process. It fails when the binary cannot be run.
func New(opts ...Option) (*Store, error) {
	s := &Store{
		logger: slog.Default().With("component", "metadata-exiftool"),
	}
	for _, opt := range opts {
		opt(s)
	}

	etOpts := []func(*exiftool.Exiftool) error{
		exiftool.NoPrintConversion(),
		exiftool.Charset("filename=utf8"),
	}
	if s.binary != "" {
		etOpts = append(etOpts, exiftool.SetExiftoolBinaryPath(s.binary))
	}
	et, err := exiftool.NewExiftool(etOpts...)
	if err != nil {
		return nil, fmt.Errorf("start exiftool: %w", err)
	}
	s.et = et
	return s, nil
}

var _ metadata.Store = (*Store)(nil)

// Close stops the exiftool process.
func (s *Store) Close() error {
	return s.et.Close()
}

// ReadDescription returns the XMP description, falling back to the EXIF
// ImageDescription.
func (s *Store) ReadDescription(ctx context.Context, path string) (*core.Description, error) {
	fm, err := s.extract(ctx, path)
	if err != nil {
		return nil, err
	}
	text := description(fm)
	if text == "" {
		return nil, nil
	}
	return &core.Description{Text: text}, nil
}

// ReadHints returns face region names and the GPS position.
func (s *Store) ReadHints(ctx context.Context, path string) (metadata.Hints, error) {
	fm, err := s.extract(ctx, path)
	if err != nil {
		return metadata.Hints{}, err
	}
	return hints(fm), nil
}

// Inspect reports the description, recorded dimensions and thumbnail size.
func (s *Store) Inspect(ctx context.Context, path string) (*metadata.Info, error) {
	fm, err := s.extract(ctx, path)
	if err != nil {
		return nil, err
	}
	info := &metadata.Info{
		Path:        path,
		Description: description(fm),
		Hints:       hints(fm),
	}
	if v, err := fm.GetInt(fieldExifImageWidth); err == nil {
		info.Width = int(v)
	}
	if v, err := fm.GetInt(fieldExifImageHeight); err == nil {
		info.Height = int(v)
	}
	if v, err := fm.GetInt(fieldThumbnailLength); err == nil {
		info.PreviewBytes = int(v)
	}
	return info, nil
}

// WriteDescription writes the description to XMP and EXIF and records the
// source dimensions. exiftool writes to a temporary file and renames it over
// the original.
func (s *Store) WriteDescription(ctx context.Context, path string, update metadata.Update) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if update.Preview != nil {
		s.logger.Debug("dropping preview", "path", path, "err", ErrPreviewUnsupported)
	}

	// exiftool reads arguments line by line.
	text := strings.Join(strings.Fields(update.Description), " ")

	fm := exiftool.EmptyFileMetadata()
	fm.File = path
	fm.SetString(writeXMPDescription, text)
	fm.SetString(writeEXIFDescription, text)
	if update.SourceWidth > 0 && update.SourceHeight > 0 {
		fm.SetInt(writeExifImageWidth, int64(update.SourceWidth))
		fm.SetInt(writeExifImageHeight, int64(update.SourceHeight))
	}

	fms := []exiftool.FileMetadata{fm}
	s.et.WriteMetadata(fms)
	if err := fms[0].Err; err != nil {
		return fmt.Errorf("%w: %s: %w", core.ErrMetadataWriteFailed, path, err)
	}
	s.logger.Debug("wrote metadata", "path", path)
	return nil
}

func (s *Store) extract(ctx context.Context, path string) (exiftool.FileMetadata, error) {
	if err := ctx.Err(); err != nil {
		return exiftool.FileMetadata{}, err
	}
	fm := s.et.ExtractMetadata(path)[0]
	if fm.Err != nil {
		return fm, fmt.Errorf("%w: %s: %w", core.ErrMetadataUnreadable, path, fm.Err)
	}
	if msg, err := fm.GetString(fieldError); err == nil && msg != "" {
		return fm, fmt.Errorf("%w: %s: %s", core.ErrMetadataUnreadable, path, msg)
	}
	return fm, nil
}

func description(fm exiftool.FileMetadata) string {
	for _, field := range []string{fieldDescription, fieldImageDescription} {
		if v, err := fm.GetString(field); err == nil {
			if text := metadata.CleanDescription(v); text != "" {
				return text
			}
		}
	}
	return ""
}

func hints(fm exiftool.FileMetadata) metadata.Hints {
	var names []string
	for _, field := range []string{fieldRegionName, fieldPersonInImage} {
		if v, err := fm.GetStrings(field); err == nil {
			names = append(names, v...)
		}
	}
	h := metadata.Hints{Persons: metadata.Persons(names)}

	lat, latErr := coordinate(fm, fieldGPSLatitude, fieldGPSLatitudeRef)
	lon, lonErr := coordinate(fm, fieldGPSLongitude, fieldGPSLongitudeRef)
	if latErr == nil && lonErr == nil {
		h.Location = metadata.FormatLocation(lat, lon)
	}
	return h
}

// coordinate reads a decimal coordinate. Depending on which tag exiftool
// reports the value may already be signed, so the sign is taken from the
// hemisphere reference when one exists.
func coordinate(fm exiftool.FileMetadata, valueField, refField string) (float64, error) {
	v, err := fm.GetFloat(valueField)
	if err != nil {
		return 0, err
	}
	ref, err := fm.GetString(refField)
	if err != nil {
		return v, nil
	}
	v = math.Abs(v)
	if r := strings.ToUpper(strings.TrimSpace(ref)); r == "S" || r == "W" {
		v = -v
	}
	return v, nil
}
