package storage

import (
	"fmt"
	"math"
	"time"

	"github.com/poiesic/photoscan/core"
)

// Payload field names, shared by every backend.
const (
	FieldPath        = "path"
	FieldDescription = "description"
	FieldFolder      = "folder"
	FieldModel       = "model"
	FieldGeneratedAt = "generated_at"
)

// DefaultCollection is the collection name used when none is configured.
const DefaultCollection = "photos"

// Payload is the metadata stored next to each vector.
type Payload struct {
	Path        string
	Description string
	Folder      string
	Model       string
	GeneratedAt time.Time
}

// Point is one entry in the vector index.
type Point struct {
	ID      core.ID
	Vector  []float32
	Payload Payload
}

// Match is a search hit.
type Match struct {
	ID      core.ID
	Score   float32
	Payload Payload
}

// Result converts the match into the domain search result.
func (m Match) Result() *core.SearchResult {
	return &core.SearchResult{
		ID:          m.ID,
		Path:        m.Payload.Path,
		Description: m.Payload.Description,
		Folder:      m.Payload.Folder,
		Score:       m.Score,
	}
}

// NewPoint builds the index entry for a described photo.
func NewPoint(rec *core.PhotoRecord, desc *core.Description, vector []float32) Point {
	p := Point{
		ID:     rec.ID(),
		Vector: vector,
		Payload: Payload{
			Path:   rec.Path,
			Folder: rec.Folder(),
		},
	}
	if desc != nil {
		p.Payload.Description = desc.Text
		p.Payload.Model = desc.Model
		p.Payload.GeneratedAt = desc.GeneratedAt
	}
	return p
}

// Validate checks the point against the collection dimensionality.
func (p Point) Validate(dim int) error {
	if err := core.ValidateVector(p.Vector, dim); err != nil {
		if dim > 0 && len(p.Vector) > 0 {
			return fmt.Errorf("%w: %w", core.ErrIndexSchemaMismatch, err)
		}
		return err
	}
	return nil
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when either is empty, zero or the lengths differ.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
