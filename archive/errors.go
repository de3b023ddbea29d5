package archive

import "errors"

var (
	// ErrBadMagic is returned when the header does not start with "RBA\x00".
	ErrBadMagic = errors.New("rba: bad magic")

	// ErrUnsupportedVersion is returned when the header's format version is
	// not FormatVersion.
	ErrUnsupportedVersion = errors.New("rba: unsupported format version")

	// ErrTruncated is returned when a header or directory is shorter than its
	// fixed size.
	ErrTruncated = errors.New("rba: truncated archive")

	// ErrInvalidEntry is returned when an entry's metadata is inconsistent
	// with the archive it was read from.
	ErrInvalidEntry = errors.New("rba: invalid entry")

	// ErrCorrupt is returned when an entry's payload fails to decompress to
	// its recorded size.
	ErrCorrupt = errors.New("rba: corrupt entry data")

	// ErrTooManyEntries is returned when an archive would hold more entries
	// than allowed.
	ErrTooManyEntries = errors.New("rba: too many entries")

	// ErrFieldTooLong is returned when a string does not fit its fixed-width
	// field.
	ErrFieldTooLong = errors.New("rba: field too long")

	// ErrSizeOverflow is returned when a size or offset does not fit the
	// format's 32-bit fields.
	ErrSizeOverflow = errors.New("rba: size overflow")
)
