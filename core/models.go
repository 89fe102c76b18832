package core

import (
	"encoding/binary"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing so that the same input
// always maps to the same identifier.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// CanonicalPath returns the absolute, cleaned form of path.
func CanonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

// PhotoID derives the vector index identifier for a photo from its path.
// Paths are case-folded on platforms whose default filesystems are case-insensitive,
// so the same file reached with different casing maps to the same entry.
func PhotoID(path string) ID {
	key := filepath.Clean(path)
	if caseInsensitiveFS() {
		key = strings.ToLower(key)
	}
	return IDFromContent(key)
}

func caseInsensitiveFS() bool {
	return runtime.GOOS == "darwin" || runtime.GOOS == "windows"
}

// Description is a generated natural-language caption for a photo.
type Description struct {
	Text        string
	Model       string        // Model identifier that produced the text (empty when read back from a file)
	Duration    time.Duration // Time spent generating the text
	GeneratedAt time.Time
}

// genericOpeners are caption prefixes produced by models that ignored the
// "do not refer to the image" instruction. Such captions get regenerated.
var genericOpeners = []string{
	"The image",
	"The photo",
	"The scene",
	"This image",
	"In the image",
	"This scene",
}

// IsGeneric reports whether the description opens with a generic reference
// to the picture itself rather than describing its content.
func (d *Description) IsGeneric() bool {
	if d == nil {
		return false
	}
	text := strings.TrimSpace(d.Text)
	for _, opener := range genericOpeners {
		if strings.HasPrefix(text, opener) {
			return true
		}
	}
	return false
}

// PhotoRecord is the transient view of one image file during a pass.
// It is owned by a single worker for the duration of its processing.
type PhotoRecord struct {
	Path     string
	ModTime  time.Time
	Existing *Description // Description already stored in the file's metadata, if any
	Indexed  bool         // An index entry with a matching description exists
}

// ID returns the vector index identifier for the record.
func (r *PhotoRecord) ID() ID {
	return PhotoID(r.Path)
}

// Folder returns the name of the directory containing the photo.
func (r *PhotoRecord) Folder() string {
	return filepath.Base(filepath.Dir(r.Path))
}

// OutcomeKind classifies how processing of a single item ended.
type OutcomeKind int

const (
	// OutcomeSkipped means the item needed no work or could not be inspected.
	OutcomeSkipped OutcomeKind = iota + 1
	// OutcomeSucceeded means the item was described and/or indexed.
	OutcomeSucceeded
	// OutcomeFailed means a per-item error stopped processing.
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result for one item. Outcomes are aggregated into
// run-level counters and are not retained after the run.
type Outcome struct {
	Kind        OutcomeKind
	Path        string
	Reason      string       // Skip reason
	Err         error        // Failure cause
	Description *Description // Set on success
	PointID     ID           // Set on success
}

// SearchResult is a vector index match resolved to a photo.
type SearchResult struct {
	ID          ID
	Path        string
	Description string
	Folder      string
	Score       float32
}
