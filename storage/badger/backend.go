package badger

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/poiesic/photoscan/storage"
)

// Backend owns the BadgerDB handle shared by the collections stored in it.
type Backend struct {
	db     *badger.DB
	logger *slog.Logger
}

// BackendOption configures OpenBackend.
type BackendOption func(*backendConfig)

type backendConfig struct {
	inMemory   bool
	syncWrites bool
	logger     *slog.Logger
}

// WithInMemory keeps the database in memory. The path is ignored.
func WithInMemory() BackendOption {
	return func(c *backendConfig) {
		c.inMemory = true
	}
}

// WithSyncWrites flushes every commit to disk before returning.
func WithSyncWrites(sync bool) BackendOption {
	return func(c *backendConfig) {
		c.syncWrites = sync
	}
}

// WithBackendLogger routes badger's own log output to logger.
func WithBackendLogger(logger *slog.Logger) BackendOption {
	return func(c *backendConfig) {
		c.logger = logger
	}
}

// slogAdapter satisfies badger.Logger. Badger is chatty at info level, so
// its info lines are demoted to debug.
type slogAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*slogAdapter)(nil)

func (a *slogAdapter) Errorf(format string, args ...any) {
	a.logger.Error(fmt.Sprintf(format, args...))
}

func (a *slogAdapter) Warningf(format string, args ...any) {
	a.logger.Warn(fmt.Sprintf(format, args...))
}

func (a *slogAdapter) Infof(format string, args ...any) {
	a.logger.Debug(fmt.Sprintf(format, args...))
}

func (a *slogAdapter) Debugf(format string, args ...any) {
	a.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenBackend opens the index database in dir, creating the directory when
// it does not exist.
func OpenBackend(dir string, opts ...BackendOption) (*Backend, error) {
	cfg := backendConfig{logger: slog.Default().With("component", "badger")}
	for _, opt := range opts {
		opt(&cfg)
	}

	var bopts badger.Options
	if cfg.inMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := ensureDir(dir); err != nil {
			return nil, fmt.Errorf("index directory: %w", err)
		}
		bopts = badger.DefaultOptions(dir).WithSyncWrites(cfg.syncWrites)
	}
	// Points are protobuf-encoded float vectors, which do not compress.
	bopts.Compression = options.None
	bopts.Logger = &slogAdapter{logger: cfg.logger}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open index database: %w", err)
	}
	return &Backend{db: db, logger: cfg.logger}, nil
}

func ensureDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("no path given")
	}
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}

// Close closes the database.
func (b *Backend) Close() error {
	return b.db.Close()
}

// Closed reports whether Close has been called.
func (b *Backend) Closed() bool {
	return b.db.IsClosed()
}

// View runs fn in a read-only transaction.
func (b *Backend) View(fn func(tx *badger.Txn) error) error {
	if b.Closed() {
		return storage.ErrStorageClosed
	}
	return b.db.View(fn)
}

// Update runs fn in a read-write transaction and commits it when fn
// returns nil.
func (b *Backend) Update(fn func(tx *badger.Txn) error) error {
	if b.Closed() {
		return storage.ErrStorageClosed
	}
	return b.db.Update(fn)
}
