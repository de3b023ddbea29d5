package stream

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// ErrTooLong is returned when a string does not fit its fixed-width field.
var ErrTooLong = errors.New("stream: string too long for field")

// Writer encodes values to an io.Writer.
type Writer struct {
	w   io.Writer
	n   int64
	buf [8]byte
}

// NewWriter returns a Writer encoding to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Written returns the number of bytes written so far.
func (w *Writer) Written() int64 {
	return w.n
}

// Write writes p, looping until all bytes are accepted or the sink stops
// making progress. A short count is returned with io.ErrShortWrite or the
// sink's error.
func (w *Writer) Write(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := w.w.Write(p[total:])
		total += n
		w.n += int64(n)
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.ErrShortWrite
		}
	}
	return total, nil
}

func (w *Writer) flush(size int) error {
	_, err := w.Write(w.buf[:size])
	return err
}

// WriteUint8 writes one byte.
func (w *Writer) WriteUint8(v uint8) error {
	w.buf[0] = v
	return w.flush(1)
}

// WriteBool writes 1 for true and 0 for false.
func (w *Writer) WriteBool(v bool) error {
	if v {
		return w.WriteUint8(1)
	}
	return w.WriteUint8(0)
}

// WriteUint16 writes a little-endian uint16.
func (w *Writer) WriteUint16(v uint16) error {
	binary.LittleEndian.PutUint16(w.buf[:2], v)
	return w.flush(2)
}

// WriteUint32 writes a little-endian uint32.
func (w *Writer) WriteUint32(v uint32) error {
	binary.LittleEndian.PutUint32(w.buf[:4], v)
	return w.flush(4)
}

// WriteUint64 writes a little-endian uint64.
func (w *Writer) WriteUint64(v uint64) error {
	binary.LittleEndian.PutUint64(w.buf[:8], v)
	return w.flush(8)
}

// WriteInt32 writes a little-endian int32.
func (w *Writer) WriteInt32(v int32) error {
	return w.WriteUint32(uint32(v)) //nolint:gosec // two's complement reinterpretation
}

// WriteInt64 writes a little-endian int64.
func (w *Writer) WriteInt64(v int64) error {
	return w.WriteUint64(uint64(v)) //nolint:gosec // two's complement reinterpretation
}

// WriteFloat32 writes a little-endian IEEE 754 float32.
func (w *Writer) WriteFloat32(v float32) error {
	return w.WriteUint32(math.Float32bits(v))
}

// WriteFloat64 writes a little-endian IEEE 754 float64.
func (w *Writer) WriteFloat64(v float64) error {
	return w.WriteUint64(math.Float64bits(v))
}

// WriteCString writes s followed by a NUL terminator.
func (w *Writer) WriteCString(s string) error {
	if _, err := w.Write([]byte(s)); err != nil {
		return err
	}
	return w.WriteUint8(0)
}

// WriteFixedString writes s into a width-byte field padded with NULs.
// At least one NUL is always written, so s may hold at most width-1 bytes.
func (w *Writer) WriteFixedString(s string, width int) error {
	if len(s) >= width {
		return ErrTooLong
	}
	field := make([]byte, width)
	copy(field, s)
	_, err := w.Write(field)
	return err
}

// WriteString writes s prefixed by its uint32 byte length.
func (w *Writer) WriteString(s string) error {
	if uint64(len(s)) > math.MaxUint32 {
		return ErrTooLong
	}
	if err := w.WriteUint32(uint32(len(s))); err != nil { //nolint:gosec // checked above
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

// WriteLine writes s followed by '\n'.
func (w *Writer) WriteLine(s string) error {
	if _, err := w.Write([]byte(s)); err != nil {
		return err
	}
	return w.WriteUint8('\n')
}
