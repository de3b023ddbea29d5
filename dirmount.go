package rbafs

import (
	"cmp"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/meigma/rbafs/internal/osfile"
	"github.com/meigma/rbafs/internal/pathutil"
)

// dirMount serves loose files below a directory.
type dirMount struct {
	handles

	path string
	cfg  config

	mu    sync.RWMutex
	names []string          // canonical, descending
	rel   map[string]string // canonical name to slash-separated relative path
}

func (m *dirMount) sealed() {}

func (m *dirMount) Kind() MountKind { return MountDirectory }
func (m *dirMount) Path() string    { return m.path }
func (m *dirMount) Order() int      { return DirectoryOrder }

// Load walks the directory and records every regular file. Symbolic links
// and other non-regular files are skipped.
func (m *dirMount) Load() error {
	root, err := os.OpenRoot(m.path)
	if err != nil {
		return err
	}
	defer root.Close()

	var (
		names []string
		rel   = make(map[string]string)
	)
	err = fs.WalkDir(root.FS(), ".", func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == "." {
				return walkErr
			}
			m.cfg.log().Warn("skipping unreadable path", "mount", m.path, "path", path, "error", walkErr)
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		name := pathutil.Normalize(path)
		if prev, dup := rel[name]; dup {
			m.cfg.log().Warn("skipping file with duplicate canonical path", "mount", m.path, "path", path, "kept", prev)
			return nil
		}
		rel[name] = path
		names = append(names, name)
		return nil
	})
	if err != nil {
		return fmt.Errorf("index %s: %w", m.path, err)
	}
	slices.SortFunc(names, func(a, b string) int { return cmp.Compare(b, a) })

	m.mu.Lock()
	m.names = names
	m.rel = rel
	m.mu.Unlock()

	m.cfg.log().Debug("directory indexed", "mount", m.path, "files", len(names))
	return nil
}

// lookup returns the physical path of name.
func (m *dirMount) lookup(name string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := slices.BinarySearchFunc(m.names, name, func(e, target string) int {
		return cmp.Compare(target, e)
	}); !ok {
		return "", false
	}
	return filepath.Join(m.path, filepath.FromSlash(m.rel[name])), true
}

func (m *dirMount) HasFile(name string) bool {
	_, ok := m.lookup(name)
	return ok
}

func (m *dirMount) Stat(name string) (fs.FileInfo, error) {
	physical, ok := m.lookup(name)
	if !ok {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
	}
	info, err := os.Stat(physical)
	if err != nil {
		return nil, err
	}
	return &fileInfo{name: pathutil.Base(name), size: info.Size()}, nil
}

func (m *dirMount) GetFile(name string) (File, error) {
	physical, ok := m.lookup(name)
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	if err := m.acquire(); err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	f, err := osfile.OpenRead(physical)
	if err != nil {
		m.release()
		return nil, err
	}
	size, err := f.Size()
	if err != nil {
		_ = f.Close()
		m.release()
		return nil, err
	}
	return &dirFile{file: f, name: name, size: size, mount: m}, nil
}

func (m *dirMount) Files() iter.Seq[string] {
	m.mu.RLock()
	names := m.names
	m.mu.RUnlock()
	return slices.Values(names)
}

// Close drops the index. Open handles keep their files but further reads
// fail with ErrClosed.
func (m *dirMount) Close() error {
	m.closed.Store(true)
	m.mu.Lock()
	m.names = nil
	m.rel = nil
	m.mu.Unlock()
	return nil
}
