package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/errgroup"

	"github.com/meigma/rbafs/internal/deflate"
	"github.com/meigma/rbafs/internal/osfile"
	"github.com/meigma/rbafs/internal/pathutil"
	"github.com/meigma/rbafs/internal/sizing"
)

// Report describes an archive written by Create.
type Report struct {
	// Path is the archive file that was written.
	Path string

	// Header is the header that was written.
	Header Header

	// Entries are the directory entries in stored (descending path) order.
	Entries []Entry

	// Skipped lists source paths that could not be packed.
	Skipped []string

	// Size is the size of the archive file in bytes.
	Size int64

	// Digest is the sha256 digest of the archive file.
	Digest digest.Digest
}

// source is a regular file selected for packing.
type source struct {
	path string
	name string
	info fs.FileInfo
}

// packed is a source file's payload ready for assembly.
type packed struct {
	entry Entry
	data  []byte
	ok    bool
}

// Create builds an archive from the contents of srcDir and writes it to dst.
//
// Create walks srcDir recursively, including all regular files. Symbolic
// links and empty directories are not preserved. Entry paths are the
// canonical form of each file's path relative to srcDir. When dst lies
// inside srcDir, the file at dst is left out so that repacking in place does
// not pack the previous archive.
//
// Source files that cannot be read are logged and skipped; they are listed
// in the returned Report. Failures that affect the archive as a whole (too
// many entries, unwritable output, sizes beyond the format's 32-bit fields)
// abort creation and leave no output file behind.
//
// Create builds the payload in memory before writing it.
func Create(ctx context.Context, srcDir, dst string, opts ...CreateOption) (*Report, error) {
	cfg := createConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	absSrc, err := filepath.Abs(srcDir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", srcDir, err)
	}
	if cfg.virtualDir == "" {
		cfg.virtualDir = filepath.Base(absSrc)
	}
	if absDst, err := filepath.Abs(dst); err == nil {
		if rel, err := filepath.Rel(absSrc, absDst); err == nil && filepath.IsLocal(rel) {
			cfg.exclude = filepath.ToSlash(rel)
		}
	}

	root, err := os.OpenRoot(srcDir)
	if err != nil {
		return nil, err
	}
	defer root.Close()

	return create(ctx, root.FS(), dst, &cfg)
}

// CreateFromFS builds an archive from the contents of fsys and writes it to
// dst. It behaves like Create.
func CreateFromFS(ctx context.Context, fsys fs.FS, dst string, opts ...CreateOption) (*Report, error) {
	cfg := createConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return create(ctx, fsys, dst, &cfg)
}

func create(ctx context.Context, fsys fs.FS, dst string, cfg *createConfig) (*Report, error) {
	if cfg.name == "" {
		cfg.name = filepath.Base(dst)
	}
	header := Header{
		FormatVersion:  FormatVersion,
		ContentVersion: cfg.contentVersion,
		SourceFolder:   cfg.virtualDir,
		Name:           cfg.name,
	}
	if _, err := EncodeHeader(header); err != nil {
		return nil, err
	}

	cfg.log().Info("creating archive", "dst", dst, "content_version", cfg.contentVersion,
		"compress", cfg.compress, "min_compress_bias", cfg.minCompressBias())

	cfg.report(StageEnumerating, "", 0, 0)
	sources, skipped, err := cfg.collect(ctx, fsys)
	if err != nil {
		return nil, err
	}
	if len(sources) > cfg.limit() {
		return nil, fmt.Errorf("%w: %d files, limit %d", ErrTooManyEntries, len(sources), cfg.limit())
	}

	results, err := cfg.packAll(ctx, fsys, sources)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(results))
	var payload bytes.Buffer
	for i, p := range results {
		if !p.ok {
			skipped = append(skipped, sources[i].path)
			continue
		}
		off, err := sizing.ToUint32(int64(payload.Len()), ErrSizeOverflow)
		if err != nil {
			return nil, err
		}
		p.entry.Offset = off
		payload.Write(p.data)
		entries = append(entries, p.entry)
	}

	base, err := sizing.ToUint32(DataOffset(len(entries)), ErrSizeOverflow)
	if err != nil {
		return nil, err
	}
	if _, err := sizing.ToUint32(int64(base)+int64(payload.Len()), ErrSizeOverflow); err != nil {
		return nil, fmt.Errorf("archive exceeds 4 GiB: %w", err)
	}
	for i := range entries {
		off, ok := sizing.AddUint32(entries[i].Offset, base)
		if !ok {
			return nil, fmt.Errorf("%s: %w", entries[i].Path, ErrSizeOverflow)
		}
		entries[i].Offset = off
	}
	SortEntries(entries)
	header.EntryCount = uint32(len(entries)) //nolint:gosec // bounded by limit

	cfg.report(StageWriting, dst, len(entries), len(entries))
	size, dgst, err := writeArchive(dst, header, entries, payload.Bytes())
	if err != nil {
		return nil, err
	}

	cfg.log().Info("archive created", "dst", dst, "entries", len(entries),
		"skipped", len(skipped), "size", size, "digest", dgst.String())

	return &Report{
		Path:    dst,
		Header:  header,
		Entries: entries,
		Skipped: skipped,
		Size:    size,
		Digest:  dgst,
	}, nil
}

// collect walks fsys and returns the regular files to pack in walk order.
func (c *createConfig) collect(ctx context.Context, fsys fs.FS) ([]source, []string, error) {
	var (
		sources []source
		skipped []string
		seen    = make(map[string]string)
	)
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == "." {
				return walkErr
			}
			c.log().Warn("skipping unreadable path", "path", path, "error", walkErr)
			skipped = append(skipped, path)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			c.log().Debug("skipping non-regular file", "path", path, "type", d.Type().String())
			return nil
		}
		if path == c.exclude {
			c.log().Debug("skipping output file", "path", path)
			return nil
		}

		name := pathutil.Normalize(path)
		if len(name) >= PathWidth {
			c.log().Warn("skipping file with path too long", "path", path, "limit", PathWidth-1)
			skipped = append(skipped, path)
			return nil
		}
		if prev, dup := seen[name]; dup {
			c.log().Warn("skipping file with duplicate canonical path", "path", path, "kept", prev)
			skipped = append(skipped, path)
			return nil
		}
		info, err := d.Info()
		if err != nil {
			c.log().Warn("skipping file", "path", path, "error", err)
			skipped = append(skipped, path)
			return nil
		}
		seen[name] = path
		sources = append(sources, source{path: path, name: name, info: info})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return sources, skipped, nil
}

// packAll reads and optionally compresses every source with bounded
// concurrency. Results are indexed like sources.
func (c *createConfig) packAll(ctx context.Context, fsys fs.FS, sources []source) ([]packed, error) {
	results := make([]packed, len(sources))
	workers := c.workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range sources {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := c.pack(fsys, sources[i])
			if err != nil {
				return err
			}
			results[i] = p
			c.report(StageCompressing, sources[i].path, int(done.Add(1)), len(sources))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// pack reads one source file. Read failures are logged and reported as a
// skipped result; compression failures are returned.
func (c *createConfig) pack(fsys fs.FS, src source) (packed, error) {
	data, err := fs.ReadFile(fsys, src.path)
	if err != nil {
		c.log().Warn("skipping unreadable file", "path", src.path, "error", err)
		return packed{}, nil
	}
	size, err := sizing.ToUint32(int64(len(data)), ErrSizeOverflow)
	if err != nil {
		c.log().Warn("skipping file larger than 4 GiB", "path", src.path, "size", len(data))
		return packed{}, nil
	}

	entry := Entry{
		Path:             src.name,
		UncompressedSize: size,
		CompressedSize:   size,
	}
	if c.shouldCompress(src.path, src.info, int64(len(data))) {
		compressed, err := deflate.Compress(data)
		if err != nil {
			return packed{}, fmt.Errorf("compress %s: %w", src.path, err)
		}
		csize, err := sizing.ToUint32(int64(len(compressed)), ErrSizeOverflow)
		if err != nil {
			return packed{}, fmt.Errorf("compress %s: %w", src.path, err)
		}
		entry.Compressed = true
		entry.CompressedSize = csize
		data = compressed
	}
	c.log().Debug("packed file", "path", src.name, "size", entry.UncompressedSize,
		"stored", entry.CompressedSize, "compressed", entry.Compressed)
	return packed{entry: entry, data: data, ok: true}, nil
}

// writeArchive writes the header, directory, and payload to dst. A partial
// file is removed on failure.
func writeArchive(dst string, h Header, entries []Entry, payload []byte) (size int64, dgst digest.Digest, err error) {
	f, err := osfile.OpenWrite(dst, false)
	if err != nil {
		return 0, "", fmt.Errorf("create archive file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(dst)
		}
	}()

	digester := digest.Canonical.Digester()
	w := io.MultiWriter(f, digester.Hash())
	if err := WriteDirectory(w, h, entries); err != nil {
		return 0, "", fmt.Errorf("write directory: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return 0, "", fmt.Errorf("write payload: %w", err)
	}
	size = f.Tell()
	if err := f.Close(); err != nil {
		return 0, "", fmt.Errorf("close archive file: %w", err)
	}
	if size != DataOffset(len(entries))+int64(len(payload)) {
		return 0, "", errors.New("archive size does not match its layout")
	}
	return size, digester.Digest(), nil
}
