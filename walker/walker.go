// Package walker enumerates image files below a library root.
//
// Traversal is lazy and depth-first. Entries are visited in lexical order,
// directories are tracked by their resolved path so symlink cycles end, and
// hidden entries are skipped.
package walker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/poiesic/photoscan/core"
)

// DefaultExtensions are the extensions matched when none are configured.
var DefaultExtensions = []string{"jpg", "jpeg"}

// SupportedExtensions are all extensions the preview decoder can read.
var SupportedExtensions = []string{"jpg", "jpeg", "png", "gif", "bmp", "webp", "heic"}

// ErrUnsupportedExtension is returned by New for an extension outside
// SupportedExtensions.
var ErrUnsupportedExtension = errors.New("unsupported extension")

// SkipAll stops a walk early without an error when returned from a WalkFunc.
var SkipAll = fs.SkipAll

// WalkFunc is called with the absolute path of each matching file.
type WalkFunc func(path string) error

// Walker walks one root directory.
type Walker struct {
	root       string
	extensions map[string]struct{}
	logger     *slog.Logger
}

// Option configures a Walker.
type Option func(*Walker) error

// WithExtensions replaces the extension allow-list. Extensions may be given
// with or without a leading dot and are matched case-insensitively.
func WithExtensions(exts ...string) Option {
	return func(w *Walker) error {
		set := make(map[string]struct{}, len(exts))
		for _, ext := range exts {
			ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
			if ext == "" {
				continue
			}
			if !slices.Contains(SupportedExtensions, ext) {
				return fmt.Errorf("%w: %s", ErrUnsupportedExtension, ext)
			}
			set[ext] = struct{}{}
		}
		if len(set) == 0 {
			return fmt.Errorf("%w: empty extension list", ErrUnsupportedExtension)
		}
		w.extensions = set
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Walker) error {
		if logger != nil {
			w.logger = logger
		}
		return nil
	}
}

// New creates a walker for root. It fails with core.ErrInvalidRoot when root
// does not exist or does not resolve to a directory.
func New(root string, opts ...Option) (*Walker, error) {
	abs, err := core.CanonicalPath(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrInvalidRoot, root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrInvalidRoot, root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", core.ErrInvalidRoot, root)
	}

	w := &Walker{
		root:   abs,
		logger: slog.Default().With("component", "walker"),
	}
	if err := WithExtensions(DefaultExtensions...)(w); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// Root returns the absolute root directory.
func (w *Walker) Root() string {
	return w.root
}

// Matches reports whether path has an allowed extension.
func (w *Walker) Matches(path string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	_, ok := w.extensions[ext]
	return ok
}

// Walk calls fn for every matching file. It stops at the first error
// returned by fn, or when ctx is done. Returning SkipAll from fn ends the
// walk with a nil error.
func (w *Walker) Walk(ctx context.Context, fn WalkFunc) error {
	seen := make(map[string]struct{})
	err := w.walkDir(ctx, w.root, seen, fn)
	if errors.Is(err, SkipAll) {
		return nil
	}
	return err
}

func (w *Walker) walkDir(ctx context.Context, dir string, seen map[string]struct{}, fn WalkFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		w.logger.Warn("cannot resolve directory", "path", dir, "err", err)
		return nil
	}
	if _, ok := seen[resolved]; ok {
		w.logger.Debug("directory already visited", "path", dir, "target", resolved)
		return nil
	}
	seen[resolved] = struct{}{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		w.logger.Warn("cannot read directory", "path", dir, "err", err)
		return nil
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(dir, name)

		mode := entry.Type()
		if mode&fs.ModeSymlink != 0 {
			info, err := os.Stat(path)
			if err != nil {
				w.logger.Debug("dangling symlink", "path", path, "err", err)
				continue
			}
			mode = info.Mode().Type()
		}

		switch {
		case mode.IsDir():
			if err := w.walkDir(ctx, path, seen, fn); err != nil {
				return err
			}
		case mode.IsRegular():
			if !w.Matches(name) {
				continue
			}
			if err := fn(path); err != nil {
				return err
			}
		}
	}
	return nil
}
