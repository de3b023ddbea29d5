package rbafs

import (
	"log/slog"
	"strings"

	"github.com/meigma/rbafs/archive"
)

// config holds settings shared by a FileSystem and the mount points it
// creates.
type config struct {
	logger         *slog.Logger
	extension      string
	maxFileSize    uint64
	maxFileSizeSet bool
}

func newConfig(opts []Option) config {
	cfg := config{extension: archive.Extension}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// log returns the logger, falling back to a discard logger if nil.
func (c *config) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// readerOptions returns the options for opening archives.
func (c *config) readerOptions() []archive.ReaderOption {
	opts := []archive.ReaderOption{archive.WithLogger(c.logger)}
	if c.maxFileSizeSet {
		opts = append(opts, archive.WithMaxFileSize(c.maxFileSize))
	}
	return opts
}

// isArchive reports whether path carries the archive extension.
func (c *config) isArchive(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), c.extension)
}

// Option configures a FileSystem or a mount point.
type Option func(*config)

// WithLogger sets the logger for mount, unmount and lookup events.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		cfg.logger = logger
	}
}

// WithArchiveExtension sets the file extension that marks a path as an
// archive. Matching is case-insensitive. The default is ".rba".
func WithArchiveExtension(ext string) Option {
	return func(cfg *config) {
		if ext == "" {
			return
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		cfg.extension = strings.ToLower(ext)
	}
}

// WithMaxFileSize limits the size of any single archive entry. Archives
// holding a larger entry fail to mount. Set limit to 0 to disable the limit.
// The default is archive.DefaultMaxFileSize.
func WithMaxFileSize(limit uint64) Option {
	return func(cfg *config) {
		cfg.maxFileSize = limit
		cfg.maxFileSizeSet = true
	}
}
