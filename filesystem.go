package rbafs

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// FileSystem resolves logical paths across an ordered set of mount points.
//
// Mount points are kept sorted by descending order; mount points with equal
// order are searched in the order they were mounted. FileSystem is safe for
// concurrent use. Files it returns are not.
type FileSystem struct {
	cfg config

	mu        sync.RWMutex
	mounts    []MountPoint
	locations map[string]struct{}
	origins   map[string]string // archive path -> location that mounted it
}

// Interface compliance.
var (
	_ fs.FS         = (*FileSystem)(nil)
	_ fs.StatFS     = (*FileSystem)(nil)
	_ fs.ReadFileFS = (*FileSystem)(nil)
)

// New creates an empty FileSystem.
func New(opts ...Option) *FileSystem {
	return &FileSystem{
		cfg:       newConfig(opts),
		locations: make(map[string]struct{}),
		origins:   make(map[string]string),
	}
}

// Mount creates a mount point for path, loads it, and inserts it by order.
//
// A path with the archive extension is mounted as an archive and an existing
// directory as a directory. On failure the mount set is unchanged. Mounting
// the same path twice adds a second mount point.
func (fsys *FileSystem) Mount(path string) error {
	mp, err := newMountPoint(path, fsys.cfg)
	if err != nil {
		fsys.cfg.log().Warn("mount failed", "path", path, "error", err)
		return err
	}
	if err := mp.Load(); err != nil {
		fsys.cfg.log().Warn("mount failed", "path", path, "error", err)
		return fmt.Errorf("mount %s: %w", path, err)
	}
	fsys.insert(mp)
	fsys.cfg.log().Info("mounted", "path", mp.Path(), "kind", mp.Kind().String(), "order", mp.Order())
	return nil
}

func (fsys *FileSystem) insert(mp MountPoint) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	fsys.mounts = append(fsys.mounts, mp)
	slices.SortStableFunc(fsys.mounts, func(a, b MountPoint) int {
		return cmp.Compare(b.Order(), a.Order())
	})
}

// AddArchiveLocation mounts every archive found below path, or path itself
// if it is an archive file. It returns the number of archives mounted.
//
// Archives are discovered recursively in lexical order. An archive that
// fails to mount is logged and skipped, and archives already mounted are
// left alone. Repeated calls with the same location do nothing until one of
// the archives it mounted is unmounted. A single archive that fails to mount
// does not count as added.
func (fsys *FileSystem) AddArchiveLocation(path string) (int, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return 0, err
	}

	fsys.mu.Lock()
	if _, seen := fsys.locations[abs]; seen {
		fsys.mu.Unlock()
		fsys.cfg.log().Debug("archive location already added", "path", abs)
		return 0, nil
	}
	fsys.locations[abs] = struct{}{}
	fsys.mu.Unlock()

	if !info.IsDir() {
		if err := fsys.Mount(abs); err != nil {
			fsys.mu.Lock()
			delete(fsys.locations, abs)
			fsys.mu.Unlock()
			return 0, err
		}
		fsys.recordOrigin(abs, abs)
		return 1, nil
	}

	var archives []string
	err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if p == abs {
				return walkErr
			}
			fsys.cfg.log().Warn("skipping unreadable path", "path", p, "error", walkErr)
			return nil
		}
		if d.Type().IsRegular() && fsys.cfg.isArchive(p) {
			archives = append(archives, p)
		}
		return nil
	})
	if err != nil {
		fsys.mu.Lock()
		delete(fsys.locations, abs)
		fsys.mu.Unlock()
		return 0, fmt.Errorf("scan %s: %w", abs, err)
	}

	mounted := 0
	for _, p := range archives {
		if fsys.isMounted(p) {
			fsys.cfg.log().Debug("archive already mounted", "path", p)
			continue
		}
		if err := fsys.Mount(p); err != nil {
			continue
		}
		fsys.recordOrigin(p, abs)
		mounted++
	}
	fsys.cfg.log().Info("archive location added", "path", abs, "found", len(archives), "mounted", mounted)
	return mounted, nil
}

func (fsys *FileSystem) recordOrigin(archivePath, location string) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	fsys.origins[archivePath] = location
}

func (fsys *FileSystem) isMounted(path string) bool {
	fsys.mu.RLock()
	defer fsys.mu.RUnlock()
	return slices.ContainsFunc(fsys.mounts, func(mp MountPoint) bool {
		return mp.Path() == path
	})
}

// snapshot returns the current mount points in search order.
func (fsys *FileSystem) snapshot() []MountPoint {
	fsys.mu.RLock()
	defer fsys.mu.RUnlock()
	return slices.Clone(fsys.mounts)
}

// resolve returns the first mount point holding the canonical name.
func (fsys *FileSystem) resolve(name string) (MountPoint, bool) {
	for _, mp := range fsys.snapshot() {
		if mp.HasFile(name) {
			return mp, true
		}
	}
	return nil, false
}

// GetFile opens the logical path name from the highest-order mount point
// that holds it. A missing file is reported as an *fs.PathError wrapping
// fs.ErrNotExist.
func (fsys *FileSystem) GetFile(name string) (File, error) {
	canonical := NormalizePath(name)
	mp, ok := fsys.resolve(canonical)
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return mp.GetFile(canonical)
}

// HasFile reports whether any mount point holds the logical path name.
func (fsys *FileSystem) HasFile(name string) bool {
	_, ok := fsys.resolve(NormalizePath(name))
	return ok
}

// Open implements fs.FS. Only regular files can be opened.
func (fsys *FileSystem) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	return fsys.GetFile(name)
}

// Stat implements fs.StatFS.
func (fsys *FileSystem) Stat(name string) (fs.FileInfo, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrInvalid}
	}
	canonical := NormalizePath(name)
	mp, ok := fsys.resolve(canonical)
	if !ok {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
	}
	return mp.Stat(canonical)
}

// ReadFile implements fs.ReadFileFS.
func (fsys *FileSystem) ReadFile(name string) ([]byte, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: fs.ErrInvalid}
	}
	f, err := fsys.GetFile(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	content := make([]byte, f.Size())
	if _, err := io.ReadFull(f, content); err != nil {
		return nil, err
	}
	return content, nil
}

// Mounts returns the mount points in search order.
func (fsys *FileSystem) Mounts() []MountPoint {
	return fsys.snapshot()
}

// Files yields every logical path visible through the file system once,
// walking mount points in search order.
func (fsys *FileSystem) Files() iter.Seq[string] {
	return func(yield func(string) bool) {
		seen := make(map[string]struct{})
		for _, mp := range fsys.snapshot() {
			for name := range mp.Files() {
				if _, dup := seen[name]; dup {
					continue
				}
				seen[name] = struct{}{}
				if !yield(name) {
					return
				}
			}
		}
	}
}

// Unmount removes every mount point for the physical path and closes it.
// It fails with ErrMountBusy, leaving the mount set unchanged, while any
// file issued by those mount points is open. The archive location that
// mounted path is forgotten, so AddArchiveLocation can mount it again.
func (fsys *FileSystem) Unmount(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}

	fsys.mu.Lock()
	var removed, kept []MountPoint
	for _, mp := range fsys.mounts {
		if mp.Path() == abs {
			removed = append(removed, mp)
		} else {
			kept = append(kept, mp)
		}
	}
	if len(removed) == 0 {
		fsys.mu.Unlock()
		return &fs.PathError{Op: "unmount", Path: path, Err: fs.ErrNotExist}
	}
	for _, mp := range removed {
		if n := mp.OpenFiles(); n > 0 {
			fsys.mu.Unlock()
			return &fs.PathError{Op: "unmount", Path: path, Err: fmt.Errorf("%w: %d open", ErrMountBusy, n)}
		}
	}
	fsys.mounts = kept
	if loc, ok := fsys.origins[abs]; ok {
		delete(fsys.locations, loc)
		delete(fsys.origins, abs)
	}
	delete(fsys.locations, abs)
	fsys.mu.Unlock()

	var errs []error
	for _, mp := range removed {
		errs = append(errs, mp.Close())
	}
	fsys.cfg.log().Info("unmounted", "path", abs, "mount_points", len(removed))
	return errors.Join(errs...)
}

// Close closes every mount point and empties the file system. Files still
// open fail with ErrClosed on their next read.
func (fsys *FileSystem) Close() error {
	fsys.mu.Lock()
	mounts := fsys.mounts
	fsys.mounts = nil
	clear(fsys.locations)
	clear(fsys.origins)
	fsys.mu.Unlock()

	var errs []error
	for _, mp := range mounts {
		errs = append(errs, mp.Close())
	}
	return errors.Join(errs...)
}
