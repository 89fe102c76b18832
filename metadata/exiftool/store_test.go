package exiftool

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/barasher/go-exiftool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/photoscan/core"
	"github.com/poiesic/photoscan/internal/testimage"
	"github.com/poiesic/photoscan/metadata"
)

func fields(kv map[string]interface{}) exiftool.FileMetadata {
	fm := exiftool.EmptyFileMetadata()
	for k, v := range kv {
		fm.Fields[k] = v
	}
	return fm
}

func TestDescriptionPrefersXMP(t *testing.T) {
	fm := fields(map[string]interface{}{
		fieldDescription:      "From XMP.",
		fieldImageDescription: "From EXIF.",
	})
	assert.Equal(t, "From XMP.", description(fm))

	fm = fields(map[string]interface{}{fieldImageDescription: " From EXIF. "})
	assert.Equal(t, "From EXIF.", description(fm))

	assert.Equal(t, "", description(fields(nil)))
}

func TestHints(t *testing.T) {
	fm := fields(map[string]interface{}{
		fieldRegionName:      []interface{}{"Anna", "Ben"},
		fieldPersonInImage:   "Anna",
		fieldGPSLatitude:     38.11,
		fieldGPSLatitudeRef:  "N",
		fieldGPSLongitude:    -13.36,
		fieldGPSLongitudeRef: "W",
	})
	h := hints(fm)
	assert.Equal(t, []string{"Anna", "Ben"}, h.Persons)
	assert.Equal(t, "38.11,-13.36", h.Location)
}

func TestHints_SouthernReferenceSignsValue(t *testing.T) {
	fm := fields(map[string]interface{}{
		fieldGPSLatitude:     33.5,
		fieldGPSLatitudeRef:  "S",
		fieldGPSLongitude:    151.0,
		fieldGPSLongitudeRef: "E",
	})
	assert.Equal(t, "-33.5,151", hints(fm).Location)
}

func TestHints_IncompleteGPS(t *testing.T) {
	fm := fields(map[string]interface{}{fieldGPSLatitude: 38.11})
	assert.True(t, hints(fm).Empty())
}

func newStore(t *testing.T) *Store {
	t.Helper()
	if _, err := exec.LookPath("exiftool"); err != nil {
		t.Skip("exiftool not installed")
	}
	s, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_WriteThenRead(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	path := testimage.WriteJPEG(t, filepath.Join(t.TempDir(), "a.jpg"), 64, 48)

	desc, err := s.ReadDescription(ctx, path)
	require.NoError(t, err)
	assert.Nil(t, desc)

	err = s.WriteDescription(ctx, path, metadata.Update{
		Description:  "Snow settles on a\ngolden temple roof.",
		SourceWidth:  64,
		SourceHeight: 48,
	})
	require.NoError(t, err)

	desc, err = s.ReadDescription(ctx, path)
	require.NoError(t, err)
	require.NotNil(t, desc)
	assert.Equal(t, "Snow settles on a golden temple roof.", desc.Text)

	info, err := s.Inspect(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 64, info.Width)
	assert.Equal(t, 48, info.Height)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no backup file should be left behind")
}

func TestStore_PNG(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	path := testimage.WritePNG(t, filepath.Join(t.TempDir(), "a.png"), 32, 32)

	require.NoError(t, s.WriteDescription(ctx, path, metadata.Update{Description: "A gradient."}))
	desc, err := s.ReadDescription(ctx, path)
	require.NoError(t, err)
	require.NotNil(t, desc)
	assert.Equal(t, "A gradient.", desc.Text)
}

func TestStore_Unreadable(t *testing.T) {
	s := newStore(t)
	_, err := s.ReadDescription(context.Background(), filepath.Join(t.TempDir(), "missing.jpg"))
	assert.ErrorIs(t, err, core.ErrMetadataUnreadable)
}

func TestStore_WriteMissingFile(t *testing.T) {
	s := newStore(t)
	err := s.WriteDescription(context.Background(), filepath.Join(t.TempDir(), "missing.jpg"), metadata.Update{Description: "x"})
	assert.ErrorIs(t, err, core.ErrMetadataWriteFailed)
}
