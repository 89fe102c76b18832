// Package pgvector implements storage.VectorIndex on PostgreSQL with the
// pgvector extension. Each collection is a table with a vector(dim) column
// and an HNSW index using cosine distance.
package pgvector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/poiesic/photoscan/core"
	"github.com/poiesic/photoscan/retry"
	"github.com/poiesic/photoscan/storage"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// row is the table layout. IDs are stored bit-for-bit in a bigint.
type row struct {
	ID          int64 `gorm:"primaryKey;autoIncrement:false"`
	Path        string
	Description string
	Folder      string
	Model       string
	GeneratedAt *time.Time
	Embedding   pgvector.Vector
}

type matchRow struct {
	row
	Score float32
}

func toRow(p storage.Point) row {
	r := row{
		ID:          int64(p.ID),
		Path:        p.Payload.Path,
		Description: p.Payload.Description,
		Folder:      p.Payload.Folder,
		Model:       p.Payload.Model,
		Embedding:   pgvector.NewVector(p.Vector),
	}
	if !p.Payload.GeneratedAt.IsZero() {
		t := p.Payload.GeneratedAt.UTC()
		r.GeneratedAt = &t
	}
	return r
}

func (r row) payload() storage.Payload {
	p := storage.Payload{
		Path:        r.Path,
		Description: r.Description,
		Folder:      r.Folder,
		Model:       r.Model,
	}
	if r.GeneratedAt != nil {
		p.GeneratedAt = r.GeneratedAt.UTC()
	}
	return p
}

// Index stores points in one PostgreSQL table.
type Index struct {
	db     *gorm.DB
	table  string
	logger *slog.Logger

	mu  sync.RWMutex
	dim int
}

var _ storage.VectorIndex = (*Index)(nil)

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the logger used for the index and for gorm.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Index) {
		i.logger = logger
	}
}

// Open connects to PostgreSQL with dsn and returns an index over the
// collection table.
func Open(dsn, collection string, opts ...Option) (*Index, error) {
	if !tableName.MatchString(collection) {
		return nil, fmt.Errorf("%w: invalid collection name %q", storage.ErrInvalidQuery, collection)
	}
	i := &Index{
		table:  collection,
		logger: slog.Default().With("component", "pgvector"),
	}
	for _, opt := range opts {
		opt(i)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: newGormLogger(i.logger),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	i.db = db
	return i, nil
}

// Close closes the connection pool.
func (i *Index) Close() error {
	sqlDB, err := i.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// EnsureCollection creates the extension, table and index, or checks the
// dimension of an existing embedding column.
func (i *Index) EnsureCollection(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", storage.ErrInvalidQuery, dim)
	}
	db := i.db.WithContext(ctx)

	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return classify(err)
	}

	var typmods []int
	err := db.Raw(
		"SELECT atttypmod FROM pg_attribute WHERE attrelid = to_regclass(?) AND attname = 'embedding' AND NOT attisdropped",
		i.table,
	).Scan(&typmods).Error
	if err != nil {
		return classify(err)
	}

	if len(typmods) == 0 {
		create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id bigint PRIMARY KEY,
			path text NOT NULL,
			description text NOT NULL DEFAULT '',
			folder text NOT NULL DEFAULT '',
			model text NOT NULL DEFAULT '',
			generated_at timestamptz,
			embedding vector(%d) NOT NULL
		)`, i.table, dim)
		if err := db.Exec(create).Error; err != nil {
			return classify(err)
		}
		index := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)", i.table, i.table)
		if err := db.Exec(index).Error; err != nil {
			return classify(err)
		}
		i.logger.Info("created collection", "collection", i.table, "dimensions", dim)
	} else if typmods[0] != dim {
		return fmt.Errorf("%w: collection %s has %d dimensions, embeddings have %d",
			core.ErrIndexSchemaMismatch, i.table, typmods[0], dim)
	}

	i.mu.Lock()
	i.dim = dim
	i.mu.Unlock()
	return nil
}

func (i *Index) dimension() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.dim
}

// Upsert inserts p or updates the row with the same ID.
func (i *Index) Upsert(ctx context.Context, p storage.Point) error {
	if err := p.Validate(i.dimension()); err != nil {
		return err
	}
	r := toRow(p)
	err := i.db.WithContext(ctx).Table(i.table).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&r).Error
	return classify(err)
}

// Get retrieves a point by ID.
func (i *Index) Get(ctx context.Context, id core.ID) (*storage.Point, error) {
	var r row
	err := i.db.WithContext(ctx).Table(i.table).Where("id = ?", int64(id)).Take(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	return &storage.Point{
		ID:      core.ID(uint64(r.ID)),
		Vector:  r.Embedding.Slice(),
		Payload: r.payload(),
	}, nil
}

// Search orders rows by cosine distance to vector.
func (i *Index) Search(ctx context.Context, vector []float32, limit int, minScore float32) ([]storage.Match, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", storage.ErrInvalidQuery, limit)
	}
	if err := core.ValidateVector(vector, i.dimension()); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrInvalidQuery, err)
	}

	q := pgvector.NewVector(vector)
	query := fmt.Sprintf(`SELECT id, path, description, folder, model, generated_at, 1 - (embedding <=> ?) AS score
		FROM %s
		WHERE 1 - (embedding <=> ?) >= ?
		ORDER BY embedding <=> ?
		LIMIT ?`, i.table)

	var rows []matchRow
	if err := i.db.WithContext(ctx).Raw(query, q, q, minScore, q, limit).Scan(&rows).Error; err != nil {
		return nil, classify(err)
	}
	matches := make([]storage.Match, 0, len(rows))
	for _, r := range rows {
		matches = append(matches, storage.Match{
			ID:      core.ID(uint64(r.ID)),
			Score:   r.Score,
			Payload: r.payload(),
		})
	}
	return matches, nil
}

// classify marks SQL errors that retrying cannot fix: data exceptions,
// integrity violations, syntax and access errors.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case "22", "23", "28", "42":
			return retry.Permanent(err)
		}
	}
	return err
}
