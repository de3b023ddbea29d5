package rbafs

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meigma/rbafs/archive"
	"github.com/meigma/rbafs/internal/testutil"
)

// writeArchive packs files into dir/name and returns the archive path.
func writeArchive(t *testing.T, dir, name string, contentVersion uint8, files map[string][]byte, opts ...archive.CreateOption) string {
	t.Helper()
	src := t.TempDir()
	testutil.WriteTree(t, src, files)
	dst := filepath.Join(dir, name)
	opts = append([]archive.CreateOption{archive.CreateWithContentVersion(contentVersion)}, opts...)
	_, err := archive.Create(context.Background(), src, dst, opts...)
	require.NoError(t, err)
	return dst
}

// writeDir writes files into a new directory and returns it.
func writeDir(t *testing.T, files map[string][]byte) string {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteTree(t, dir, files)
	return dir
}

// compressAll makes Create compress every file.
func compressAll() []archive.CreateOption {
	return []archive.CreateOption{archive.CreateWithCompression(true), archive.CreateWithMinCompressBias(0)}
}
