package main

import (
	"context"
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/docker/go-units"
	"github.com/spf13/pflag"

	"github.com/meigma/rbafs"
	"github.com/meigma/rbafs/archive"
	"github.com/meigma/rbafs/internal/stream"
)

func runPack(ctx context.Context, e *env, args []string) error {
	var (
		verbose        bool
		contentVersion uint8
		compress       bool
		minCompress    string
		virtualDir     string
		name           string
		maxEntries     int
		workers        int
		skipKnown      bool
	)
	fset := newFlagSet("pack", e, &verbose)
	fset.Uint8Var(&contentVersion, "content-version", 0, "content version, also the mount order")
	fset.BoolVar(&compress, "compress", false, "compress files larger than --min-compress")
	fset.StringVar(&minCompress, "min-compress", units.BytesSize(archive.DefaultMinCompressBias), "size a file must exceed to be compressed")
	fset.StringVar(&virtualDir, "virtual-dir", "", "source folder recorded in the header (default: base name of SRC)")
	fset.StringVar(&name, "name", "", "archive name recorded in the header (default: base name of DST)")
	fset.IntVar(&maxEntries, "max-entries", archive.MaxEntries, "maximum number of files")
	fset.IntVar(&workers, "workers", archive.DefaultWorkers, "files read and compressed concurrently")
	fset.BoolVar(&skipKnown, "skip-compressed-formats", true, "store already-compressed formats raw")

	rest, err := parse(fset, e, &verbose, args, 2)
	if err != nil {
		return err
	}
	bias, err := units.RAMInBytes(minCompress)
	if err != nil {
		return fmt.Errorf("--min-compress: %w", err)
	}

	opts := []archive.CreateOption{
		archive.CreateWithContentVersion(contentVersion),
		archive.CreateWithCompression(compress),
		archive.CreateWithMinCompressBias(bias),
		archive.CreateWithVirtualDir(virtualDir),
		archive.CreateWithName(name),
		archive.CreateWithMaxEntries(maxEntries),
		archive.CreateWithWorkers(workers),
		archive.CreateWithLogger(e.logger),
	}
	if skipKnown {
		opts = append(opts, archive.CreateWithSkipCompression(archive.DefaultSkipCompression()))
	}

	report, err := archive.Create(ctx, rest[0], rest[1], opts...)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%s: %d entries, %s, %s\n", report.Path, len(report.Entries),
		units.BytesSize(float64(report.Size)), report.Digest)
	for _, p := range report.Skipped {
		fmt.Fprintf(e.stdout, "skipped: %s\n", p)
	}
	return nil
}

func runUnpack(ctx context.Context, e *env, args []string) error {
	var (
		verbose bool
		maxSize string
	)
	fset := newFlagSet("unpack", e, &verbose)
	maxFileSizeFlag(fset, &maxSize)
	rest, err := parse(fset, e, &verbose, args, 2)
	if err != nil {
		return err
	}
	limit, err := parseMaxFileSize(maxSize)
	if err != nil {
		return err
	}
	return archive.Extract(ctx, rest[0], rest[1],
		archive.ExtractWithLogger(e.logger),
		archive.ExtractWithMaxFileSize(limit))
}

func maxFileSizeFlag(fset *pflag.FlagSet, p *string) {
	fset.StringVar(p, "max-file-size", units.BytesSize(archive.DefaultMaxFileSize), "reject archives with a larger entry (0 disables)")
}

func parseMaxFileSize(s string) (uint64, error) {
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, fmt.Errorf("--max-file-size: %w", err)
	}
	if n < 0 {
		return 0, fmt.Errorf("--max-file-size: negative size %q", s)
	}
	return uint64(n), nil
}

func runList(_ context.Context, e *env, args []string) error {
	var (
		verbose bool
		long    bool
	)
	fset := newFlagSet("list", e, &verbose)
	fset.BoolVarP(&long, "long", "l", false, "show sizes, offsets and compression")
	rest, err := parse(fset, e, &verbose, args, 1)
	if err != nil {
		return err
	}

	r, err := archive.Open(rest[0], archive.WithLogger(e.logger), archive.WithMaxFileSize(0))
	if err != nil {
		return err
	}
	defer r.Close()

	if !long {
		for _, entry := range r.Entries() {
			fmt.Fprintln(e.stdout, entry.Path)
		}
		return nil
	}

	tw := tabwriter.NewWriter(e.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tSIZE\tSTORED\tOFFSET\tCOMPRESSED")
	for _, entry := range r.Entries() {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%t\n", entry.Path, entry.UncompressedSize,
			entry.CompressedSize, entry.Offset, entry.Compressed)
	}
	return tw.Flush()
}

func runInfo(_ context.Context, e *env, args []string) error {
	var verbose bool
	fset := newFlagSet("info", e, &verbose)
	rest, err := parse(fset, e, &verbose, args, 1)
	if err != nil {
		return err
	}

	r, err := archive.Open(rest[0], archive.WithLogger(e.logger), archive.WithMaxFileSize(0))
	if err != nil {
		return err
	}
	defer r.Close()

	dgst, err := r.Digest()
	if err != nil {
		return err
	}
	var raw, stored int64
	compressed := 0
	for _, entry := range r.Entries() {
		raw += int64(entry.UncompressedSize)
		stored += int64(entry.CompressedSize)
		if entry.Compressed {
			compressed++
		}
	}

	h := r.Header()
	tw := tabwriter.NewWriter(e.stdout, 0, 0, 1, ' ', 0)
	fmt.Fprintf(tw, "name:\t%s\n", h.Name)
	fmt.Fprintf(tw, "source folder:\t%s\n", h.SourceFolder)
	fmt.Fprintf(tw, "format version:\t%d\n", h.FormatVersion)
	fmt.Fprintf(tw, "content version:\t%d\n", h.ContentVersion)
	fmt.Fprintf(tw, "entries:\t%d (%d compressed)\n", h.EntryCount, compressed)
	fmt.Fprintf(tw, "content size:\t%s\n", units.BytesSize(float64(raw)))
	fmt.Fprintf(tw, "stored size:\t%s\n", units.BytesSize(float64(stored)))
	fmt.Fprintf(tw, "digest:\t%s\n", dgst)
	return tw.Flush()
}

func runCat(ctx context.Context, e *env, args []string) error {
	var (
		verbose    bool
		configPath string
		mounts     []string
		maxSize    string
	)
	fset := newFlagSet("cat", e, &verbose)
	maxFileSizeFlag(fset, &maxSize)
	fset.StringVarP(&configPath, "config", "c", "", "mount layout YAML file")
	fset.StringSliceVarP(&mounts, "mount", "m", nil, "extra directory or archive to mount (repeatable)")
	rest, err := parse(fset, e, &verbose, args, 1)
	if err != nil {
		return err
	}

	limit, err := parseMaxFileSize(maxSize)
	if err != nil {
		return err
	}

	cfg := &rbafs.Config{}
	if configPath != "" {
		if cfg, err = rbafs.LoadConfig(configPath); err != nil {
			return err
		}
	}
	for _, m := range mounts {
		abs, err := filepath.Abs(m)
		if err != nil {
			return err
		}
		cfg.Mounts = append(cfg.Mounts, abs)
	}

	fsys, err := rbafs.NewFromConfig(cfg, rbafs.WithLogger(e.logger), rbafs.WithMaxFileSize(limit))
	if err != nil {
		return err
	}
	defer fsys.Close()

	f, err := fsys.GetFile(rest[0])
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = stream.CopyContext(ctx, e.stdout, f, nil)
	return err
}
