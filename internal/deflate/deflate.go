// Package deflate provides single-shot, whole-buffer zlib compression with
// compress/uncompress status semantics.
package deflate

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"
)

var (
	// ErrBufferTooSmall is returned when decompressed data does not fit the
	// destination buffer.
	ErrBufferTooSmall = errors.New("deflate: destination buffer too small")

	// ErrCorrupt is returned when the compressed stream is malformed, fails its
	// checksum, or ends before filling the destination buffer.
	ErrCorrupt = errors.New("deflate: corrupt data")
)

// Level is the compression level used by Compress.
const Level = zlib.DefaultCompression

var writerPool = sync.Pool{
	New: func() any {
		w, err := zlib.NewWriterLevel(io.Discard, Level)
		if err != nil {
			return nil
		}
		return w
	},
}

var readerPool sync.Pool

// Compress returns the zlib encoding of src.
func Compress(src []byte) ([]byte, error) {
	var out bytes.Buffer
	out.Grow(len(src)/2 + 64)

	zw, release, err := getWriter(&out)
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := zw.Write(src); err != nil {
		return nil, fmt.Errorf("deflate: compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("deflate: compress: %w", err)
	}
	return out.Bytes(), nil
}

// Decompress decodes src into dst and returns the number of bytes produced.
// The stream must decode to exactly len(dst) bytes: fewer bytes yield
// ErrCorrupt and more yield ErrBufferTooSmall.
func Decompress(dst, src []byte) (int, error) {
	zr, release, err := getReader(bytes.NewReader(src))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer release()

	n, err := io.ReadFull(zr, dst)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return n, fmt.Errorf("%w: decoded %d of %d bytes", ErrCorrupt, n, len(dst))
		}
		return n, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	// Drain to the end of the stream so the checksum is verified and any
	// surplus output is detected.
	var scratch [1]byte
	for {
		m, err := zr.Read(scratch[:])
		if m > 0 {
			return n, ErrBufferTooSmall
		}
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
	}
}

func getWriter(w io.Writer) (*zlib.Writer, func(), error) {
	if zw, ok := writerPool.Get().(*zlib.Writer); ok {
		zw.Reset(w)
		return zw, func() { writerPool.Put(zw) }, nil
	}
	zw, err := zlib.NewWriterLevel(w, Level)
	if err != nil {
		return nil, nil, fmt.Errorf("deflate: create writer: %w", err)
	}
	return zw, func() {}, nil
}

func getReader(r io.Reader) (io.ReadCloser, func(), error) {
	if zr, ok := readerPool.Get().(io.ReadCloser); ok {
		if resetter, ok := zr.(zlib.Resetter); ok && resetter.Reset(r, nil) == nil {
			return zr, func() { readerPool.Put(zr) }, nil
		}
	}
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, nil, err
	}
	return zr, func() { readerPool.Put(zr) }, nil
}
