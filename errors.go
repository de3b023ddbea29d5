package rbafs

import (
	"errors"

	"github.com/meigma/rbafs/archive"
)

var (
	// ErrUnsupportedMount is returned when a path is neither an archive nor a
	// directory.
	ErrUnsupportedMount = errors.New("rbafs: unsupported mount path")

	// ErrMountBusy is returned when unmounting a mount point with open files.
	ErrMountBusy = errors.New("rbafs: mount point has open files")

	// ErrClosed is returned when reading through a mount point that has been
	// closed.
	ErrClosed = errors.New("rbafs: mount point closed")

	// ErrNotMounted is returned when a mount point is used before Load.
	ErrNotMounted = errors.New("rbafs: mount point not loaded")
)

// Errors re-exported from archive.
var (
	// ErrBadMagic is returned when mounting a file that is not an archive.
	ErrBadMagic = archive.ErrBadMagic

	// ErrUnsupportedVersion is returned when mounting an archive with an
	// unknown format version.
	ErrUnsupportedVersion = archive.ErrUnsupportedVersion

	// ErrInvalidEntry is returned when mounting an archive whose directory
	// holds an entry that is malformed or larger than the configured limit.
	ErrInvalidEntry = archive.ErrInvalidEntry

	// ErrCorrupt is returned when an archive entry fails to decompress.
	ErrCorrupt = archive.ErrCorrupt
)
