package testutil

import (
	"errors"
	"io"
)

// ErrInjected is returned by a MockByteSource read that was set to fail.
var ErrInjected = errors.New("testutil: injected read failure")

// MockByteSource is an in-memory byte source whose reads can be made to fail
// past a given offset.
type MockByteSource struct {
	data   []byte
	failAt int64
	reads  int
}

// NewMockByteSource returns a byte source backed by the provided data.
func NewMockByteSource(data []byte) *MockByteSource {
	return &MockByteSource{data: data, failAt: -1}
}

// FailFrom makes every read that touches off or beyond fail with ErrInjected.
func (m *MockByteSource) FailFrom(off int64) {
	m.failAt = off
}

// ReadAt implements io.ReaderAt semantics over the backing slice.
func (m *MockByteSource) ReadAt(p []byte, off int64) (int, error) {
	m.reads++
	if m.failAt >= 0 && off+int64(len(p)) > m.failAt {
		return 0, ErrInjected
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the total size of the backing data.
func (m *MockByteSource) Size() int64 {
	return int64(len(m.data))
}

// Reads returns the number of ReadAt calls so far.
func (m *MockByteSource) Reads() int {
	return m.reads
}
