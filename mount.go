package rbafs

import (
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sync/atomic"
)

// MountKind identifies the backing store of a mount point.
type MountKind uint8

const (
	// MountDirectory is a directory of loose files.
	MountDirectory MountKind = iota

	// MountArchive is an RBA archive file.
	MountArchive
)

// String returns the string representation of the kind.
func (k MountKind) String() string {
	switch k {
	case MountDirectory:
		return "directory"
	case MountArchive:
		return "archive"
	default:
		return "unknown"
	}
}

// DirectoryOrder is the order of every directory mount point. Archive orders
// range from 0 to 255, so any archive shadows loose files.
const DirectoryOrder = -1

// MountPoint is a backing store searchable by logical path.
//
// The names passed to HasFile, Stat and GetFile must already be canonical
// (see NormalizePath); FileSystem normalizes once before querying.
// The only implementations are the directory and archive mount points
// returned by NewMountPoint.
type MountPoint interface {
	// Kind reports the backing store.
	Kind() MountKind

	// Path returns the absolute physical path of the backing store.
	Path() string

	// Order returns the mount priority. Higher orders are searched first.
	Order() int

	// Load indexes the backing store. A mount point is unusable until Load
	// succeeds.
	Load() error

	// HasFile reports whether the store holds name.
	HasFile(name string) bool

	// Stat returns file info for name without opening it.
	Stat(name string) (fs.FileInfo, error)

	// GetFile opens name for reading.
	GetFile(name string) (File, error)

	// Files yields every logical path in the store in descending order.
	Files() iter.Seq[string]

	// OpenFiles returns the number of handles issued and not yet closed.
	OpenFiles() int

	// Close releases the backing store. Reads through handles issued by the
	// mount point fail with ErrClosed afterwards.
	Close() error

	sealed()
}

// NewMountPoint creates an unloaded mount point for path. The kind is chosen
// by path: a name with the archive extension is an archive, an existing
// directory is a directory, and anything else fails with
// ErrUnsupportedMount.
func NewMountPoint(path string, opts ...Option) (MountPoint, error) {
	return newMountPoint(path, newConfig(opts))
}

func newMountPoint(path string, cfg config) (MountPoint, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	if cfg.isArchive(abs) {
		return &archiveMount{path: abs, cfg: cfg}, nil
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &fs.PathError{Op: "mount", Path: path, Err: ErrUnsupportedMount}
	}
	return &dirMount{path: abs, cfg: cfg}, nil
}

// handles tracks the files issued by a mount point.
type handles struct {
	open   atomic.Int64
	closed atomic.Bool
}

func (h *handles) OpenFiles() int {
	return int(h.open.Load())
}

func (h *handles) acquire() error {
	if h.closed.Load() {
		return ErrClosed
	}
	h.open.Add(1)
	return nil
}

func (h *handles) release() {
	h.open.Add(-1)
}

// check fails once the mount point is closed.
func (h *handles) check() error {
	if h.closed.Load() {
		return ErrClosed
	}
	return nil
}
