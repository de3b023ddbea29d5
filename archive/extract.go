package archive

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/meigma/rbafs/internal/osfile"
)

// extractConfig holds configuration for extraction.
type extractConfig struct {
	progress       ProgressFunc
	logger         *slog.Logger
	maxFileSize    uint64
	maxFileSizeSet bool
}

// ExtractOption configures extraction.
type ExtractOption func(*extractConfig)

// ExtractWithProgress sets a callback to receive progress events.
func ExtractWithProgress(fn ProgressFunc) ExtractOption {
	return func(cfg *extractConfig) {
		cfg.progress = fn
	}
}

// ExtractWithMaxFileSize limits the size of any single entry. Archives holding
// a larger entry are rejected before anything is written. Set limit to 0 to
// disable the limit. The default is DefaultMaxFileSize.
func ExtractWithMaxFileSize(limit uint64) ExtractOption {
	return func(cfg *extractConfig) {
		cfg.maxFileSize = limit
		cfg.maxFileSizeSet = true
	}
}

// ExtractWithLogger sets the logger for extraction.
func ExtractWithLogger(logger *slog.Logger) ExtractOption {
	return func(cfg *extractConfig) {
		cfg.logger = logger
	}
}

// log returns the logger, falling back to a discard logger if nil.
func (c *extractConfig) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// Extract writes every entry of the archive at archivePath below destDir.
//
// Parent directories are created as needed and existing files are
// overwritten. The first failing entry aborts extraction; files already
// written are left in place. Callers needing atomicity should extract into a
// temporary directory and rename it.
func Extract(ctx context.Context, archivePath, destDir string, opts ...ExtractOption) error {
	cfg := extractConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	ropts := []ReaderOption{WithLogger(cfg.logger)}
	if cfg.maxFileSizeSet {
		ropts = append(ropts, WithMaxFileSize(cfg.maxFileSize))
	}
	r, err := Open(archivePath, ropts...)
	if err != nil {
		return err
	}
	defer r.Close()

	return r.extract(ctx, destDir, &cfg)
}

// ExtractTo writes every entry of r below destDir. It behaves like Extract.
func (r *Reader) ExtractTo(ctx context.Context, destDir string, opts ...ExtractOption) error {
	cfg := extractConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return r.extract(ctx, destDir, &cfg)
}

func (r *Reader) extract(ctx context.Context, destDir string, cfg *extractConfig) error {
	cfg.log().Info("extracting archive", "archive", r.name, "dest", destDir, "entries", r.Len())

	total := r.Len()
	for i, e := range r.Entries() {
		if err := ctx.Err(); err != nil {
			return err
		}
		rel := filepath.FromSlash(e.Path)
		if !filepath.IsLocal(rel) {
			return &fs.PathError{Op: "extract", Path: e.Path, Err: fs.ErrInvalid}
		}

		content, err := r.ReadEntry(i)
		if err != nil {
			return err
		}
		if err := osfile.WriteFile(filepath.Join(destDir, rel), content); err != nil {
			return fmt.Errorf("extract %s: %w", e.Path, err)
		}
		if cfg.progress != nil {
			cfg.progress(ProgressEvent{Stage: StageExtracting, Path: e.Path, FilesDone: i + 1, FilesTotal: total})
		}
		cfg.log().Debug("extracted file", "path", e.Path, "size", len(content))
	}
	return nil
}
