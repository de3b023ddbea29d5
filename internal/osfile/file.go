// Package osfile implements random-access reads and writes against native
// files. It is the only package that opens files on the host filesystem for
// archive and mount-point I/O.
package osfile

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// File is an open native file with a tracked file pointer.
//
// Read and Write loop until the request is satisfied or the OS stops making
// progress. ReadAt does not move the file pointer and is safe for concurrent
// use. Close is idempotent.
type File struct {
	f    *os.File
	path string
	pos  int64

	closeOnce sync.Once
	closeErr  error
}

// Interface compliance.
var (
	_ io.ReadWriteSeeker = (*File)(nil)
	_ io.ReaderAt        = (*File)(nil)
	_ io.Closer          = (*File)(nil)
)

// OpenRead opens path for reading. A missing file is reported as an
// *fs.PathError wrapping fs.ErrNotExist.
func OpenRead(path string) (*File, error) {
	f, err := os.Open(path) //nolint:gosec // caller-provided path is intentional
	if err != nil {
		return nil, err
	}
	return &File{f: f, path: path}, nil
}

// OpenWrite opens path for writing, creating it and any missing parent
// directories. When appending, the file pointer starts at the current end;
// otherwise the file is truncated.
func OpenWrite(path string, appendMode bool) (*File, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644) //nolint:gosec // caller-provided path is intentional
	if err != nil {
		return nil, err
	}

	file := &File{f: f, path: path}
	if appendMode {
		info, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		file.pos = info.Size()
	}
	return file, nil
}

// Name returns the path the file was opened with.
func (f *File) Name() string {
	return f.path
}

// Read reads up to len(p) bytes at the file pointer. A short count is
// returned with io.EOF or io.ErrUnexpectedEOF when the file ends first.
func (f *File) Read(p []byte) (int, error) {
	n, err := io.ReadFull(f.f, p)
	f.pos += int64(n)
	return n, err
}

// ReadAt reads len(p) bytes starting at off without moving the file pointer.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	return f.f.ReadAt(p, off)
}

// Write writes p at the file pointer, looping until every byte is accepted
// or the OS reports no progress.
func (f *File) Write(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := f.f.Write(p[total:])
		total += n
		f.pos += int64(n)
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.ErrShortWrite
		}
	}
	return total, nil
}

// Seek implements io.Seeker.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	pos, err := f.f.Seek(offset, whence)
	if err != nil {
		return f.pos, err
	}
	f.pos = pos
	return pos, nil
}

// Tell returns the current file pointer.
func (f *File) Tell() int64 {
	return f.pos
}

// Size returns the current size of the file.
func (f *File) Size() (int64, error) {
	info, err := f.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Stat returns the file's info.
func (f *File) Stat() (fs.FileInfo, error) {
	return f.f.Stat()
}

// Close closes the file. Subsequent calls return the first result.
func (f *File) Close() error {
	f.closeOnce.Do(func() {
		f.closeErr = f.f.Close()
	})
	return f.closeErr
}

// ReadFile reads the whole file at path.
func ReadFile(path string) ([]byte, error) {
	f, err := OpenRead(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	size, err := f.Size()
	if err != nil {
		return nil, err
	}
	data := make([]byte, size)
	n, err := f.Read(data)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return data[:n], nil
}

// WriteFile writes data to path, creating parent directories as needed.
func WriteFile(path string, data []byte) error {
	f, err := OpenWrite(path, false)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
