package archive

import "log/slog"

// DefaultWorkers is the number of files read and compressed concurrently
// when no CreateWithWorkers option is set.
const DefaultWorkers = 4

// createConfig holds configuration for archive creation.
type createConfig struct {
	contentVersion     uint8
	compress           bool
	minCompressBiasSet bool
	minCompressBiasVal int64
	virtualDir         string
	name               string
	skipCompression    []SkipCompressionFunc
	maxEntries         int
	workers            int
	progress           ProgressFunc
	logger             *slog.Logger

	// exclude is the slash-separated path of the output file inside the
	// source tree, if it lies there.
	exclude string
}

func (c *createConfig) minCompressBias() int64 {
	if !c.minCompressBiasSet {
		return DefaultMinCompressBias
	}
	return c.minCompressBiasVal
}

func (c *createConfig) limit() int {
	if c.maxEntries <= 0 || c.maxEntries > MaxEntries {
		return MaxEntries
	}
	return c.maxEntries
}

// log returns the logger, falling back to a discard logger if nil.
func (c *createConfig) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

func (c *createConfig) report(stage ProgressStage, path string, done, total int) {
	if c.progress == nil {
		return
	}
	c.progress(ProgressEvent{Stage: stage, Path: path, FilesDone: done, FilesTotal: total})
}

// CreateOption configures archive creation.
type CreateOption func(*createConfig)

// CreateWithContentVersion sets the header's content version, which is also
// the archive's mount priority.
func CreateWithContentVersion(v uint8) CreateOption {
	return func(cfg *createConfig) {
		cfg.contentVersion = v
	}
}

// CreateWithCompression enables zlib compression of files larger than the
// minimum compress bias. Files are stored raw by default.
func CreateWithCompression(enabled bool) CreateOption {
	return func(cfg *createConfig) {
		cfg.compress = enabled
	}
}

// CreateWithMinCompressBias sets the size a file must exceed before it is
// compressed. The default is DefaultMinCompressBias.
func CreateWithMinCompressBias(n int64) CreateOption {
	return func(cfg *createConfig) {
		cfg.minCompressBiasVal = max(n, 0)
		cfg.minCompressBiasSet = true
	}
}

// CreateWithVirtualDir sets the source folder recorded in the header.
// The default is the base name of the source directory.
func CreateWithVirtualDir(dir string) CreateOption {
	return func(cfg *createConfig) {
		cfg.virtualDir = dir
	}
}

// CreateWithName sets the archive name recorded in the header.
// The default is the base name of the output file.
func CreateWithName(name string) CreateOption {
	return func(cfg *createConfig) {
		cfg.name = name
	}
}

// CreateWithSkipCompression adds predicates that decide to store a file
// uncompressed. If any predicate returns true, compression is skipped for
// that file.
func CreateWithSkipCompression(fns ...SkipCompressionFunc) CreateOption {
	return func(cfg *createConfig) {
		cfg.skipCompression = append(cfg.skipCompression, fns...)
	}
}

// CreateWithMaxEntries lowers the number of files an archive may hold.
// Zero or values above MaxEntries use MaxEntries.
func CreateWithMaxEntries(n int) CreateOption {
	return func(cfg *createConfig) {
		cfg.maxEntries = n
	}
}

// CreateWithWorkers sets how many files are read and compressed
// concurrently. Output is identical for any worker count.
func CreateWithWorkers(n int) CreateOption {
	return func(cfg *createConfig) {
		cfg.workers = n
	}
}

// CreateWithProgress sets a callback to receive progress events.
func CreateWithProgress(fn ProgressFunc) CreateOption {
	return func(cfg *createConfig) {
		cfg.progress = fn
	}
}

// CreateWithLogger sets the logger for archive creation.
func CreateWithLogger(logger *slog.Logger) CreateOption {
	return func(cfg *createConfig) {
		cfg.logger = logger
	}
}
