package archive

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/rbafs/internal/deflate"
	"github.com/meigma/rbafs/internal/osfile"
	"github.com/meigma/rbafs/internal/pathutil"
)

// DefaultMaxFileSize is the default limit on an entry's stored and
// uncompressed size.
const DefaultMaxFileSize = 256 << 20

// ByteSource provides random access to archive bytes.
type ByteSource interface {
	io.ReaderAt
	Size() int64
}

// Reader provides random access to the entries of an archive.
//
// Entries are validated against the source size when the Reader is created
// and normalized to canonical paths. Reader is safe for concurrent reads.
type Reader struct {
	source  ByteSource
	closer  io.Closer
	name    string
	header  Header
	entries []Entry
	maxSize uint64
	logger  *slog.Logger
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithLogger sets the logger used by the Reader.
func WithLogger(logger *slog.Logger) ReaderOption {
	return func(r *Reader) {
		r.logger = logger
	}
}

// WithMaxFileSize limits the size of any single entry, compressed and
// uncompressed. Archives holding a larger entry fail to open. Set limit to 0
// to disable the limit. The default is DefaultMaxFileSize.
func WithMaxFileSize(limit uint64) ReaderOption {
	return func(r *Reader) {
		r.maxSize = limit
	}
}

// fileSource wraps an osfile.File to implement ByteSource.
// The size is cached at construction since archives are immutable.
type fileSource struct {
	*osfile.File
	size int64
}

func (s *fileSource) Size() int64 {
	return s.size
}

// Open opens the archive at path.
//
// The header and directory are decoded eagerly; payloads are read on demand.
// The returned Reader must be closed to release the file.
func Open(path string, opts ...ReaderOption) (*Reader, error) {
	f, err := osfile.OpenRead(path)
	if err != nil {
		return nil, err
	}
	size, err := f.Size()
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	r, err := NewReader(&fileSource{File: f, size: size}, opts...)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	r.closer = f
	r.name = path
	return r, nil
}

// NewReader decodes the archive held by source.
func NewReader(source ByteSource, opts ...ReaderOption) (*Reader, error) {
	r := &Reader{source: source, maxSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(r)
	}

	size := source.Size()
	h, entries, err := ReadDirectory(io.NewSectionReader(source, 0, size))
	if err != nil {
		return nil, err
	}

	dataStart := DataOffset(len(entries))
	for i := range entries {
		e := &entries[i]
		if int64(e.Offset) < dataStart {
			return nil, fmt.Errorf("%w: %s: offset %d inside directory", ErrInvalidEntry, e.Path, e.Offset)
		}
		if int64(e.Offset)+int64(e.CompressedSize) > size {
			return nil, fmt.Errorf("%w: %s: payload exceeds archive size", ErrInvalidEntry, e.Path)
		}
		if r.maxSize > 0 && (uint64(e.UncompressedSize) > r.maxSize || uint64(e.CompressedSize) > r.maxSize) {
			return nil, fmt.Errorf("%w: %s: size %d exceeds limit %d", ErrInvalidEntry, e.Path,
				max(e.UncompressedSize, e.CompressedSize), r.maxSize)
		}
		e.Path = pathutil.Normalize(e.Path)
		if e.Path == "" {
			return nil, fmt.Errorf("%w: entry %d has an empty path", ErrInvalidEntry, i)
		}
	}
	SortEntries(entries)

	r.header = h
	r.entries = entries
	r.log().Debug("archive opened", "name", h.Name, "content_version", h.ContentVersion, "entries", len(entries))
	return r, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (r *Reader) log() *slog.Logger {
	if r.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.logger
}

// Name returns the path the archive was opened from, if any.
func (r *Reader) Name() string {
	return r.name
}

// Header returns the archive header.
func (r *Reader) Header() Header {
	return r.header
}

// Len returns the number of entries.
func (r *Reader) Len() int {
	return len(r.entries)
}

// Entry returns the i-th entry in directory order.
func (r *Reader) Entry(i int) (Entry, bool) {
	if i < 0 || i >= len(r.entries) {
		return Entry{}, false
	}
	return r.entries[i], true
}

// Entries returns an iterator over all entries in directory order.
func (r *Reader) Entries() iter.Seq2[int, Entry] {
	return func(yield func(int, Entry) bool) {
		for i, e := range r.entries {
			if !yield(i, e) {
				return
			}
		}
	}
}

// Lookup returns the index of the entry for name. The name is normalized
// before searching.
func (r *Reader) Lookup(name string) (int, bool) {
	return Search(r.entries, pathutil.Normalize(name))
}

// ReadRaw returns the stored payload of entry i, compressed or not.
func (r *Reader) ReadRaw(i int) ([]byte, error) {
	e, ok := r.Entry(i)
	if !ok {
		return nil, fmt.Errorf("%w: index %d out of range", ErrInvalidEntry, i)
	}
	buf := make([]byte, e.CompressedSize)
	n, err := r.source.ReadAt(buf, int64(e.Offset))
	if n == len(buf) {
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return nil, fmt.Errorf("read %s: %w", e.Path, err)
}

// ReadEntry returns the uncompressed content of entry i. Compressed payloads
// are decompressed in one shot into a buffer of the entry's uncompressed
// size.
func (r *Reader) ReadEntry(i int) ([]byte, error) {
	raw, err := r.ReadRaw(i)
	if err != nil {
		return nil, err
	}
	e := r.entries[i]
	if !e.Compressed {
		return raw, nil
	}

	content := make([]byte, e.UncompressedSize)
	if _, err := deflate.Decompress(content, raw); err != nil {
		r.log().Warn("decompress failed", "path", e.Path, "error", err)
		return nil, fmt.Errorf("read %s: %w: %w", e.Path, ErrCorrupt, err)
	}
	return content, nil
}

// ReadEntryAt reads from the payload of the uncompressed entry i starting at
// off within the entry. Reads are clamped to the entry's end; a short read
// returns io.EOF.
func (r *Reader) ReadEntryAt(i int, p []byte, off int64) (int, error) {
	e, ok := r.Entry(i)
	if !ok {
		return 0, fmt.Errorf("%w: index %d out of range", ErrInvalidEntry, i)
	}
	if e.Compressed {
		return 0, fmt.Errorf("read at %s: entry is compressed", e.Path)
	}
	if off < 0 {
		return 0, fmt.Errorf("read at %s: negative offset", e.Path)
	}
	size := int64(e.UncompressedSize)
	if off >= size {
		return 0, io.EOF
	}

	want := len(p)
	if remaining := size - off; remaining < int64(want) {
		want = int(remaining)
	}
	n, err := r.source.ReadAt(p[:want], int64(e.Offset)+off)
	if err == io.EOF && n == want {
		err = nil
	}
	if err != nil {
		return n, err
	}
	if want < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Digest returns the sha256 digest of the whole archive.
func (r *Reader) Digest() (digest.Digest, error) {
	return digest.Canonical.FromReader(io.NewSectionReader(r.source, 0, r.source.Size()))
}

// Close releases the archive file opened by Open.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
