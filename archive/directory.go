package archive

import (
	"cmp"
	"fmt"
	"io"
	"slices"

	"github.com/meigma/rbafs/internal/stream"
)

// ReadDirectory decodes the header and the entry directory from the start of
// r. Entry paths are returned exactly as stored.
func ReadDirectory(r io.Reader) (Header, []Entry, error) {
	sr := stream.NewReader(r)

	hbuf := make([]byte, HeaderSize)
	if _, err := sr.Read(hbuf); err != nil {
		return Header{}, nil, truncated(err)
	}
	h, err := DecodeHeader(hbuf)
	if err != nil {
		return Header{}, nil, err
	}

	entries := make([]Entry, 0, h.EntryCount)
	ebuf := make([]byte, EntrySize)
	for i := range h.EntryCount {
		if _, err := sr.Read(ebuf); err != nil {
			return Header{}, nil, fmt.Errorf("entry %d: %w", i, truncated(err))
		}
		e, err := DecodeEntry(ebuf)
		if err != nil {
			return Header{}, nil, fmt.Errorf("entry %d: %w", i, err)
		}
		entries = append(entries, e)
	}
	return h, entries, nil
}

// WriteDirectory encodes h followed by entries. h.EntryCount must equal
// len(entries).
func WriteDirectory(w io.Writer, h Header, entries []Entry) error {
	if int64(h.EntryCount) != int64(len(entries)) {
		return fmt.Errorf("%w: header count %d, %d entries", ErrInvalidEntry, h.EntryCount, len(entries))
	}
	sw := stream.NewWriter(w)

	hbuf, err := EncodeHeader(h)
	if err != nil {
		return err
	}
	if _, err := sw.Write(hbuf); err != nil {
		return err
	}
	for _, e := range entries {
		ebuf, err := EncodeEntry(e)
		if err != nil {
			return err
		}
		if _, err := sw.Write(ebuf); err != nil {
			return err
		}
	}
	return nil
}

// SortEntries sorts entries by path in descending order.
func SortEntries(entries []Entry) {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		return cmp.Compare(b.Path, a.Path)
	})
}

// Search returns the index of the entry whose path equals path in entries
// sorted by SortEntries.
func Search(entries []Entry, path string) (int, bool) {
	return slices.BinarySearchFunc(entries, path, func(e Entry, target string) int {
		return cmp.Compare(target, e.Path)
	})
}
