// Package metadata defines how photo descriptions and related tags are read
// from and written back into image files.
//
// Two stores implement these interfaces: metadata/exif, a pure Go EXIF
// rewriter for JPEG files, and metadata/exiftool, which drives an exiftool
// process and understands every format exiftool can write.
package metadata

import (
	"context"
	"strings"

	"github.com/poiesic/photoscan/core"
)

// Reader reads the description stored in a file.
//
// ReadDescription returns nil, nil when the file carries no description.
// Errors caused by unparseable metadata wrap core.ErrMetadataUnreadable.
type Reader interface {
	ReadDescription(ctx context.Context, path string) (*core.Description, error)
}

// Writer commits a new description to a file.
//
// Implementations must leave the original file untouched on failure.
// Errors wrap core.ErrMetadataWriteFailed.
type Writer interface {
	WriteDescription(ctx context.Context, path string, update Update) error
}

// HintReader extracts context that improves generated descriptions.
type HintReader interface {
	ReadHints(ctx context.Context, path string) (Hints, error)
}

// Inspector reports what a store recorded in a file.
type Inspector interface {
	Inspect(ctx context.Context, path string) (*Info, error)
}

// Store is the full set of metadata operations a backend provides.
type Store interface {
	Reader
	Writer
	HintReader
	Inspector
	Close() error
}

// Update is everything written for one photo in a single commit.
type Update struct {
	Description  string
	SourceWidth  int      // Stored pixel width of the full image
	SourceHeight int      // Stored pixel height of the full image
	Preview      *Preview // Optional embedded thumbnail
}

// Preview is an encoded JPEG thumbnail and its pixel size.
type Preview struct {
	JPEG   []byte
	Width  int
	Height int
}

// Hints are facts already present in a file's metadata.
type Hints struct {
	Persons  []string // Names from face regions
	Location string   // "lat,lon" in decimal degrees
}

// Empty reports whether no hint was found.
func (h Hints) Empty() bool {
	return len(h.Persons) == 0 && h.Location == ""
}

// Info is the inspection view of a file.
type Info struct {
	Path          string
	Description   string
	Width         int // Recorded full image width, 0 when absent
	Height        int // Recorded full image height, 0 when absent
	PreviewWidth  int
	PreviewHeight int
	PreviewBytes  int
	Hints         Hints
}

// HasPreview reports whether an embedded thumbnail was found.
func (i *Info) HasPreview() bool {
	return i != nil && i.PreviewBytes > 0
}

// CleanDescription trims whitespace and NUL padding some writers leave behind.
func CleanDescription(s string) string {
	return strings.TrimSpace(strings.TrimRight(s, "\x00"))
}

// Persons normalizes person names read from face regions, dropping empty
// and repeated entries while keeping first-seen order.
func Persons(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
