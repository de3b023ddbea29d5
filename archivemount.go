package rbafs

import (
	"fmt"
	"io/fs"
	"iter"
	"sync"

	"github.com/meigma/rbafs/archive"
	"github.com/meigma/rbafs/internal/pathutil"
)

// archiveMount serves the entries of an archive file. Its order is the
// archive's content version.
type archiveMount struct {
	handles

	path string
	cfg  config

	mu sync.RWMutex
	r  *archive.Reader
}

func (m *archiveMount) sealed() {}

func (m *archiveMount) Kind() MountKind { return MountArchive }
func (m *archiveMount) Path() string    { return m.path }

func (m *archiveMount) Order() int {
	r := m.reader()
	if r == nil {
		return 0
	}
	return int(r.Header().ContentVersion)
}

// Header returns the archive header. It is the zero Header before Load.
func (m *archiveMount) Header() archive.Header {
	r := m.reader()
	if r == nil {
		return archive.Header{}
	}
	return r.Header()
}

// Load opens the archive and decodes its header and directory. A wrong magic
// or format version fails the load.
func (m *archiveMount) Load() error {
	r, err := archive.Open(m.path, m.cfg.readerOptions()...)
	if err != nil {
		return err
	}

	m.mu.Lock()
	prev := m.r
	m.r = r
	m.mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}

	h := r.Header()
	m.cfg.log().Debug("archive indexed", "mount", m.path, "name", h.Name,
		"content_version", h.ContentVersion, "entries", r.Len())
	return nil
}

func (m *archiveMount) reader() *archive.Reader {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.r
}

// lookup returns the reader and the index of name.
func (m *archiveMount) lookup(name string) (*archive.Reader, int, bool) {
	r := m.reader()
	if r == nil {
		return nil, 0, false
	}
	i, ok := r.Lookup(name)
	return r, i, ok
}

func (m *archiveMount) HasFile(name string) bool {
	_, _, ok := m.lookup(name)
	return ok
}

func (m *archiveMount) Stat(name string) (fs.FileInfo, error) {
	r, i, ok := m.lookup(name)
	if !ok {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
	}
	e, _ := r.Entry(i)
	return &fileInfo{name: pathutil.Base(name), size: int64(e.UncompressedSize)}, nil
}

func (m *archiveMount) GetFile(name string) (File, error) {
	r, i, ok := m.lookup(name)
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	if err := m.acquire(); err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	e, _ := r.Entry(i)
	return &archiveFile{mount: m, index: i, name: name, size: int64(e.UncompressedSize)}, nil
}

func (m *archiveMount) Files() iter.Seq[string] {
	return func(yield func(string) bool) {
		r := m.reader()
		if r == nil {
			return
		}
		for _, e := range r.Entries() {
			if !yield(e.Path) {
				return
			}
		}
	}
}

// entry returns entry i after checking that the mount point is still open
// and that i still names the entry the handle was issued for.
func (m *archiveMount) entry(i int, name string) (*archive.Reader, archive.Entry, error) {
	if err := m.check(); err != nil {
		return nil, archive.Entry{}, err
	}
	r := m.reader()
	if r == nil {
		return nil, archive.Entry{}, ErrNotMounted
	}
	e, ok := r.Entry(i)
	if !ok || e.Path != name {
		return nil, archive.Entry{}, fmt.Errorf("%w: %s", archive.ErrInvalidEntry, name)
	}
	return r, e, nil
}

// Close closes the archive file. Reads through open handles fail with
// ErrClosed afterwards.
func (m *archiveMount) Close() error {
	m.closed.Store(true)
	m.mu.Lock()
	r := m.r
	m.r = nil
	m.mu.Unlock()
	if r == nil {
		return nil
	}
	return r.Close()
}
