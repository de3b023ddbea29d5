package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/meigma/rbafs/internal/stream"
)

// Magic identifies an RBA archive.
const Magic = "RBA\x00"

// FormatVersion is the only format version this package reads or writes.
const FormatVersion uint8 = 2

// Extension is the conventional file extension for archives.
const Extension = ".rba"

// Field widths of the fixed-size records.
const (
	SourceFolderWidth = 100
	ArchiveNameWidth  = 50
	PathWidth         = 256
)

const (
	// HeaderSize is the encoded size of a Header.
	HeaderSize = len(Magic) + 1 + 1 + SourceFolderWidth + ArchiveNameWidth + 4

	// EntrySize is the encoded size of an Entry.
	EntrySize = PathWidth + 1 + 4 + 4 + 4

	// MaxEntries is the largest number of entries an archive may hold.
	MaxEntries = 1<<16 - 1
)

// Header describes an archive.
type Header struct {
	// FormatVersion is the layout version; must equal FormatVersion.
	FormatVersion uint8

	// ContentVersion orders archives against each other when mounted.
	ContentVersion uint8

	// SourceFolder is the virtual folder the archive was built from.
	SourceFolder string

	// Name is the archive's name.
	Name string

	// EntryCount is the number of directory entries that follow the header.
	EntryCount uint32
}

// Entry describes one packed file.
type Entry struct {
	// Path is the canonical logical path.
	Path string

	// Compressed reports whether the payload is zlib-compressed.
	Compressed bool

	// UncompressedSize is the size of the original file.
	UncompressedSize uint32

	// CompressedSize is the size of the payload. Equal to UncompressedSize
	// when Compressed is false.
	CompressedSize uint32

	// Offset is the absolute byte offset of the payload in the archive file.
	Offset uint32
}

// DataOffset returns the offset of the payload region in an archive holding
// n entries.
func DataOffset(n int) int64 {
	return int64(HeaderSize) + int64(n)*int64(EntrySize)
}

// EncodeHeader returns the fixed-size encoding of h.
func EncodeHeader(h Header) ([]byte, error) {
	if h.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.FormatVersion)
	}
	if h.EntryCount > MaxEntries {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyEntries, h.EntryCount, MaxEntries)
	}

	var buf bytes.Buffer
	buf.Grow(HeaderSize)
	w := stream.NewWriter(&buf)
	_, _ = w.Write([]byte(Magic))
	_ = w.WriteUint8(h.FormatVersion)
	_ = w.WriteUint8(h.ContentVersion)
	if err := w.WriteFixedString(h.SourceFolder, SourceFolderWidth); err != nil {
		return nil, fieldErr("source folder", h.SourceFolder, err)
	}
	if err := w.WriteFixedString(h.Name, ArchiveNameWidth); err != nil {
		return nil, fieldErr("archive name", h.Name, err)
	}
	_ = w.WriteUint32(h.EntryCount)
	return buf.Bytes(), nil
}

// DecodeHeader parses a header from the first HeaderSize bytes of b.
// It rejects a wrong magic id and any format version other than
// FormatVersion.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: header is %d bytes, want %d", ErrTruncated, len(b), HeaderSize)
	}
	if string(b[:len(Magic)]) != Magic {
		return Header{}, fmt.Errorf("%w: %q", ErrBadMagic, b[:len(Magic)])
	}

	r := stream.NewReader(bytes.NewReader(b[len(Magic):HeaderSize]))
	var h Header
	var err error
	if h.FormatVersion, err = r.ReadUint8(); err != nil {
		return Header{}, truncated(err)
	}
	if h.FormatVersion != FormatVersion {
		return Header{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.FormatVersion)
	}
	if h.ContentVersion, err = r.ReadUint8(); err != nil {
		return Header{}, truncated(err)
	}
	if h.SourceFolder, err = r.ReadFixedString(SourceFolderWidth); err != nil {
		return Header{}, truncated(err)
	}
	if h.Name, err = r.ReadFixedString(ArchiveNameWidth); err != nil {
		return Header{}, truncated(err)
	}
	if h.EntryCount, err = r.ReadUint32(); err != nil {
		return Header{}, truncated(err)
	}
	if h.EntryCount > MaxEntries {
		return Header{}, fmt.Errorf("%w: %d > %d", ErrTooManyEntries, h.EntryCount, MaxEntries)
	}
	return h, nil
}

// EncodeEntry returns the fixed-size encoding of e.
func EncodeEntry(e Entry) ([]byte, error) {
	if !e.Compressed && e.CompressedSize != e.UncompressedSize {
		return nil, fmt.Errorf("%w: %s: stored entry sizes differ", ErrInvalidEntry, e.Path)
	}

	var buf bytes.Buffer
	buf.Grow(EntrySize)
	w := stream.NewWriter(&buf)
	if err := w.WriteFixedString(e.Path, PathWidth); err != nil {
		return nil, fieldErr("path", e.Path, err)
	}
	_ = w.WriteBool(e.Compressed)
	_ = w.WriteUint32(e.UncompressedSize)
	_ = w.WriteUint32(e.CompressedSize)
	_ = w.WriteUint32(e.Offset)
	return buf.Bytes(), nil
}

// DecodeEntry parses an entry from the first EntrySize bytes of b.
// The path is returned exactly as stored.
func DecodeEntry(b []byte) (Entry, error) {
	if len(b) < EntrySize {
		return Entry{}, fmt.Errorf("%w: entry is %d bytes, want %d", ErrTruncated, len(b), EntrySize)
	}

	r := stream.NewReader(bytes.NewReader(b[:EntrySize]))
	var e Entry
	var err error
	if e.Path, err = r.ReadFixedString(PathWidth); err != nil {
		return Entry{}, truncated(err)
	}
	if e.Compressed, err = r.ReadBool(); err != nil {
		return Entry{}, truncated(err)
	}
	if e.UncompressedSize, err = r.ReadUint32(); err != nil {
		return Entry{}, truncated(err)
	}
	if e.CompressedSize, err = r.ReadUint32(); err != nil {
		return Entry{}, truncated(err)
	}
	if e.Offset, err = r.ReadUint32(); err != nil {
		return Entry{}, truncated(err)
	}
	if !e.Compressed && e.CompressedSize != e.UncompressedSize {
		return Entry{}, fmt.Errorf("%w: %s: stored entry sizes differ", ErrInvalidEntry, e.Path)
	}
	return e, nil
}

func fieldErr(field, value string, err error) error {
	if errors.Is(err, stream.ErrTooLong) {
		return fmt.Errorf("%w: %s %q", ErrFieldTooLong, field, value)
	}
	return err
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	return err
}
