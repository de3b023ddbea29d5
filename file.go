package rbafs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/meigma/rbafs/internal/osfile"
	"github.com/meigma/rbafs/internal/pathutil"
)

// File is an open logical file.
//
// Callers must not assume whether a File is backed by a loose file or an
// archive entry. A File is not safe for concurrent use: archive-backed files
// fill their decompression cache on first read.
type File interface {
	fs.File
	io.ReaderAt
	io.Seeker
	io.Writer

	// Name returns the canonical logical path the file was opened with.
	Name() string

	// Size returns the uncompressed size of the file.
	Size() int64

	// Tell returns the current read position.
	Tell() int64

	// EOF reports whether the read position is at or past the end.
	EOF() bool

	// Source returns the mount point that issued the file.
	Source() MountPoint
}

// Interface compliance.
var (
	_ File = (*dirFile)(nil)
	_ File = (*archiveFile)(nil)
)

// dirFile is a loose file opened read-only.
type dirFile struct {
	file   *osfile.File
	name   string
	size   int64
	mount  *dirMount
	closed bool
}

func (f *dirFile) Name() string       { return f.name }
func (f *dirFile) Size() int64        { return f.size }
func (f *dirFile) Tell() int64        { return f.file.Tell() }
func (f *dirFile) EOF() bool          { return f.file.Tell() >= f.size }
func (f *dirFile) Source() MountPoint { return f.mount }

func (f *dirFile) check(op string) error {
	if f.closed {
		return &fs.PathError{Op: op, Path: f.name, Err: fs.ErrClosed}
	}
	if err := f.mount.check(); err != nil {
		return &fs.PathError{Op: op, Path: f.name, Err: err}
	}
	return nil
}

// Read reads up to len(p) bytes. A short read at the end of the file
// returns the bytes read and a nil error; the next read returns io.EOF.
func (f *dirFile) Read(p []byte) (int, error) {
	if err := f.check("read"); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	n, err := f.file.Read(p)
	switch {
	case n > 0 && errors.Is(err, io.ErrUnexpectedEOF):
		return n, nil
	case n == 0 && (errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)):
		return 0, io.EOF
	}
	return n, err
}

func (f *dirFile) ReadAt(p []byte, off int64) (int, error) {
	if err := f.check("read"); err != nil {
		return 0, err
	}
	return f.file.ReadAt(p, off)
}

func (f *dirFile) Seek(offset int64, whence int) (int64, error) {
	if err := f.check("seek"); err != nil {
		return 0, err
	}
	return f.file.Seek(offset, whence)
}

// Write always fails; files are opened read-only.
func (f *dirFile) Write([]byte) (int, error) {
	return 0, &fs.PathError{Op: "write", Path: f.name, Err: errors.ErrUnsupported}
}

func (f *dirFile) Stat() (fs.FileInfo, error) {
	if err := f.check("stat"); err != nil {
		return nil, err
	}
	return &fileInfo{name: pathutil.Base(f.name), size: f.size}, nil
}

func (f *dirFile) Close() error {
	if f.closed {
		return &fs.PathError{Op: "close", Path: f.name, Err: fs.ErrClosed}
	}
	f.closed = true
	f.mount.release()
	return f.file.Close()
}

// archiveFile is an archive entry opened for reading. It refers to its entry
// by index and validates the index against its mount point on every read.
type archiveFile struct {
	mount *archiveMount
	index int
	name  string
	size  int64
	pos   int64

	// cache holds the decompressed content of a compressed entry. It is
	// filled at most once; a failure is sticky.
	cache    []byte
	cacheErr error
	cached   bool

	closed bool
}

func (f *archiveFile) Name() string       { return f.name }
func (f *archiveFile) Size() int64        { return f.size }
func (f *archiveFile) Tell() int64        { return f.pos }
func (f *archiveFile) EOF() bool          { return f.pos >= f.size }
func (f *archiveFile) Source() MountPoint { return f.mount }

// Read reads up to len(p) bytes from the current position. Reads are
// clamped to the end of the entry; a read at the end returns 0, io.EOF.
func (f *archiveFile) Read(p []byte) (int, error) {
	n, err := f.readAt("read", p, f.pos)
	f.pos += int64(n)
	if n > 0 && errors.Is(err, io.EOF) {
		err = nil
	}
	return n, err
}

// ReadAt reads len(p) bytes at off without moving the read position.
func (f *archiveFile) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, &fs.PathError{Op: "readat", Path: f.name, Err: errors.New("negative offset")}
	}
	return f.readAt("readat", p, off)
}

func (f *archiveFile) readAt(op string, p []byte, off int64) (int, error) {
	if f.closed {
		return 0, &fs.PathError{Op: op, Path: f.name, Err: fs.ErrClosed}
	}
	r, e, err := f.mount.entry(f.index, f.name)
	if err != nil {
		return 0, &fs.PathError{Op: op, Path: f.name, Err: err}
	}
	if off >= f.size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	if !e.Compressed {
		n, err := r.ReadEntryAt(f.index, p, off)
		if err != nil && !errors.Is(err, io.EOF) {
			return n, &fs.PathError{Op: op, Path: f.name, Err: err}
		}
		return n, err
	}

	if !f.cached {
		f.cached = true
		f.cache, f.cacheErr = r.ReadEntry(f.index)
		if f.cacheErr == nil {
			f.mount.cfg.log().Debug("entry decompressed", "mount", f.mount.path, "path", f.name, "size", len(f.cache))
		}
	}
	if f.cacheErr != nil {
		return 0, &fs.PathError{Op: op, Path: f.name, Err: f.cacheErr}
	}
	n := copy(p, f.cache[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Seek sets the read position. Positions past the end are allowed; reads
// there return io.EOF.
func (f *archiveFile) Seek(offset int64, whence int) (int64, error) {
	if f.closed {
		return 0, &fs.PathError{Op: "seek", Path: f.name, Err: fs.ErrClosed}
	}
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = f.pos + offset
	case io.SeekEnd:
		abs = f.size + offset
	default:
		return 0, &fs.PathError{Op: "seek", Path: f.name, Err: fmt.Errorf("invalid whence %d", whence)}
	}
	if abs < 0 {
		return 0, &fs.PathError{Op: "seek", Path: f.name, Err: errors.New("negative position")}
	}
	f.pos = abs
	return abs, nil
}

// Write always fails; archives are read-only.
func (f *archiveFile) Write([]byte) (int, error) {
	return 0, &fs.PathError{Op: "write", Path: f.name, Err: errors.ErrUnsupported}
}

func (f *archiveFile) Stat() (fs.FileInfo, error) {
	if f.closed {
		return nil, &fs.PathError{Op: "stat", Path: f.name, Err: fs.ErrClosed}
	}
	return &fileInfo{name: pathutil.Base(f.name), size: f.size}, nil
}

// Close releases the decompression cache.
func (f *archiveFile) Close() error {
	if f.closed {
		return &fs.PathError{Op: "close", Path: f.name, Err: fs.ErrClosed}
	}
	f.closed = true
	f.cache = nil
	f.mount.release()
	return nil
}
