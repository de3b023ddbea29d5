package stream

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// ErrNotSeekable is returned by the pointer operations when the underlying
// source does not implement io.Seeker.
var ErrNotSeekable = errors.New("stream: source is not seekable")

// Reader decodes values from an io.Reader.
type Reader struct {
	r   io.Reader
	eof bool
	buf [8]byte
}

// NewReader returns a Reader decoding from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Read reads up to len(p) bytes, looping until p is full or the source stops
// making progress. A short count is returned with io.EOF or
// io.ErrUnexpectedEOF.
func (r *Reader) Read(p []byte) (int, error) {
	n, err := io.ReadFull(r.r, p)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		r.eof = true
	}
	return n, err
}

func (r *Reader) fill(size int) ([]byte, error) {
	b := r.buf[:size]
	if _, err := r.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// ReadUint8 reads one byte.
func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.fill(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadBool reads one byte and reports whether it is non-zero.
func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadUint8()
	return v != 0, err
}

// ReadUint16 reads a little-endian uint16.
func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.fill(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadUint32 reads a little-endian uint32.
func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.fill(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadUint64 reads a little-endian uint64.
func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.fill(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadInt32 reads a little-endian int32.
func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err //nolint:gosec // two's complement reinterpretation
}

// ReadInt64 reads a little-endian int64.
func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err //nolint:gosec // two's complement reinterpretation
}

// ReadFloat32 reads a little-endian IEEE 754 float32.
func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()
	return math.Float32frombits(v), err
}

// ReadFloat64 reads a little-endian IEEE 754 float64.
func (r *Reader) ReadFloat64() (float64, error) {
	v, err := r.ReadUint64()
	return math.Float64frombits(v), err
}

// ReadCString reads bytes up to and including a NUL terminator and returns
// them without the terminator.
func (r *Reader) ReadCString() (string, error) {
	var out []byte
	for {
		c, err := r.ReadUint8()
		if err != nil {
			if len(out) > 0 && errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return string(out), err
		}
		if c == 0 {
			return string(out), nil
		}
		out = append(out, c)
	}
}

// ReadFixedString reads a width-byte NUL-padded field and returns the bytes
// before the first NUL.
func (r *Reader) ReadFixedString(width int) (string, error) {
	b := make([]byte, width)
	if _, err := r.Read(b); err != nil {
		return "", err
	}
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b), nil
}

// ReadString reads a string prefixed by its uint32 byte length.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := r.Read(b); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return "", err
	}
	return string(b), nil
}

// ReadLine reads bytes up to a '\n' and returns them without the newline.
// Carriage returns are dropped wherever they appear. The final line of a
// source need not be terminated; io.EOF is returned only when no bytes remain.
func (r *Reader) ReadLine() (string, error) {
	var out []byte
	read := false
	for {
		c, err := r.ReadUint8()
		if err != nil {
			if errors.Is(err, io.EOF) && read {
				return string(out), nil
			}
			return string(out), err
		}
		read = true
		switch c {
		case '\n':
			return string(out), nil
		case '\r':
			continue
		default:
			out = append(out, c)
		}
	}
}

// SetPointer moves the read position to off bytes from the start.
func (r *Reader) SetPointer(off int64) (int64, error) {
	return r.seek(off, io.SeekStart)
}

// SetPointerFromEnd moves the read position to off bytes before the end.
func (r *Reader) SetPointerFromEnd(off int64) (int64, error) {
	return r.seek(-off, io.SeekEnd)
}

// MovePointer moves the read position by delta bytes.
func (r *Reader) MovePointer(delta int64) (int64, error) {
	return r.seek(delta, io.SeekCurrent)
}

// Pointer returns the current read position.
func (r *Reader) Pointer() (int64, error) {
	return r.seek(0, io.SeekCurrent)
}

func (r *Reader) seek(off int64, whence int) (int64, error) {
	s, ok := r.r.(io.Seeker)
	if !ok {
		return 0, ErrNotSeekable
	}
	pos, err := s.Seek(off, whence)
	if err == nil {
		r.eof = false
	}
	return pos, err
}

// EOF reports whether the source is exhausted. For seekable sources the
// position is compared against the end; otherwise EOF reports whether a
// previous read came up short.
func (r *Reader) EOF() bool {
	s, ok := r.r.(io.Seeker)
	if !ok {
		return r.eof
	}
	cur, err := s.Seek(0, io.SeekCurrent)
	if err != nil {
		return r.eof
	}
	end, err := s.Seek(0, io.SeekEnd)
	if err != nil {
		return r.eof
	}
	if _, err := s.Seek(cur, io.SeekStart); err != nil {
		return true
	}
	return cur >= end
}
