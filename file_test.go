package rbafs

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/rbafs/archive"
	"github.com/meigma/rbafs/internal/testutil"
)

// openers returns a file with the given content from each kind of mount
// point, stored raw and compressed.
func openers(t *testing.T, content []byte) map[string]File {
	t.Helper()

	dir := t.TempDir()
	files := map[string][]byte{"data/file.bin": content}
	stored := writeArchive(t, dir, "stored.rba", 0, files)
	compressed := writeArchive(t, dir, "compressed.rba", 0, files, compressAll()...)
	loose := writeDir(t, files)

	out := make(map[string]File)
	for name, path := range map[string]string{
		"archive stored":     stored,
		"archive compressed": compressed,
		"directory":          loose,
	} {
		mp, err := NewMountPoint(path)
		require.NoError(t, err)
		require.NoError(t, mp.Load())
		t.Cleanup(func() { _ = mp.Close() })

		f, err := mp.GetFile("data/file.bin")
		require.NoError(t, err)
		t.Cleanup(func() { _ = f.Close() })
		out[name] = f
	}
	return out
}

func TestFileReadClamping(t *testing.T) {
	t.Parallel()

	content := testutil.Compressible(100)
	for name, f := range openers(t, content) {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, int64(100), f.Size())
			assert.Equal(t, "data/file.bin", f.Name())

			_, err := f.Seek(90, io.SeekStart)
			require.NoError(t, err)

			buf := make([]byte, 32)
			n, err := f.Read(buf)
			require.NoError(t, err)
			assert.Equal(t, 10, n)
			assert.Equal(t, content[90:], buf[:n])
			assert.True(t, f.EOF())
			assert.Equal(t, int64(100), f.Tell())

			n, err = f.Read(buf)
			assert.Zero(t, n)
			assert.ErrorIs(t, err, io.EOF)
		})
	}
}

func TestFileSequentialRead(t *testing.T) {
	t.Parallel()

	content := testutil.Random(t, 1000)
	for name, f := range openers(t, content) {
		t.Run(name, func(t *testing.T) {
			var got []byte
			buf := make([]byte, 64)
			for !f.EOF() {
				n, err := f.Read(buf)
				require.NoError(t, err)
				got = append(got, buf[:n]...)
			}
			assert.Equal(t, content, got)
		})
	}
}

func TestFileSeek(t *testing.T) {
	t.Parallel()

	content := []byte("0123456789abcdefghij")
	for name, f := range openers(t, content) {
		t.Run(name, func(t *testing.T) {
			buf := make([]byte, 3)

			pos, err := f.Seek(-5, io.SeekEnd)
			require.NoError(t, err)
			assert.Equal(t, int64(15), pos)
			_, err = io.ReadFull(f, buf)
			require.NoError(t, err)
			assert.Equal(t, "fgh", string(buf))

			pos, err = f.Seek(-8, io.SeekCurrent)
			require.NoError(t, err)
			assert.Equal(t, int64(10), pos)
			_, err = io.ReadFull(f, buf)
			require.NoError(t, err)
			assert.Equal(t, "abc", string(buf))

			pos, err = f.Seek(2, io.SeekStart)
			require.NoError(t, err)
			assert.Equal(t, int64(2), pos)
			assert.Equal(t, int64(2), f.Tell())
			assert.False(t, f.EOF())

			_, err = f.Seek(-1, io.SeekStart)
			assert.Error(t, err)
		})
	}
}

func TestFileReadAt(t *testing.T) {
	t.Parallel()

	content := testutil.Compressible(64)
	for name, f := range openers(t, content) {
		t.Run(name, func(t *testing.T) {
			buf := make([]byte, 10)
			n, err := f.ReadAt(buf, 5)
			require.NoError(t, err)
			assert.Equal(t, content[5:15], buf[:n])
			assert.Zero(t, f.Tell())

			n, err = f.ReadAt(buf, 60)
			assert.ErrorIs(t, err, io.EOF)
			assert.Equal(t, content[60:], buf[:n])
		})
	}
}

func TestFileWriteUnsupported(t *testing.T) {
	t.Parallel()

	for name, f := range openers(t, []byte("read only")) {
		t.Run(name, func(t *testing.T) {
			n, err := f.Write([]byte("x"))
			assert.Zero(t, n)
			assert.ErrorIs(t, err, errors.ErrUnsupported)
		})
	}
}

func TestFileCloseTwice(t *testing.T) {
	t.Parallel()

	for name, f := range openers(t, []byte("abc")) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, f.Close())
			assert.Zero(t, f.Source().OpenFiles())
			assert.ErrorIs(t, f.Close(), fs.ErrClosed)

			_, err := f.Read(make([]byte, 1))
			assert.ErrorIs(t, err, fs.ErrClosed)
		})
	}
}

func TestFileEmpty(t *testing.T) {
	t.Parallel()

	for name, f := range openers(t, []byte{}) {
		t.Run(name, func(t *testing.T) {
			assert.Zero(t, f.Size())
			assert.True(t, f.EOF())
			n, err := f.Read(make([]byte, 8))
			assert.Zero(t, n)
			assert.ErrorIs(t, err, io.EOF)
		})
	}
}

func TestArchiveFileCorruptEntry(t *testing.T) {
	t.Parallel()

	path := writeArchive(t, t.TempDir(), "bad.rba", 0,
		map[string][]byte{"a.bin": testutil.Compressible(500)}, compressAll()...)

	r, err := archive.Open(path)
	require.NoError(t, err)
	e, ok := r.Entry(0)
	require.True(t, ok)
	require.True(t, e.Compressed)
	require.NoError(t, r.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[e.Offset] ^= 0xFF
	raw[e.Offset+1] ^= 0xFF
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	fsys := New()
	defer fsys.Close()
	require.NoError(t, fsys.Mount(path))

	f, err := fsys.GetFile("a.bin")
	require.NoError(t, err)
	defer f.Close()

	buf := make([]byte, 16)
	n, err := f.Read(buf)
	assert.Zero(t, n)
	assert.ErrorIs(t, err, ErrCorrupt)

	// The failure is sticky for the handle.
	_, err = f.Read(buf)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestArchiveFileDecompressesOnce(t *testing.T) {
	t.Parallel()

	content := testutil.Compressible(4096)
	path := writeArchive(t, t.TempDir(), "cached.rba", 0,
		map[string][]byte{"a.bin": content}, compressAll()...)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	src := testutil.NewMockByteSource(raw)
	r, err := archive.NewReader(src)
	require.NoError(t, err)
	m := &archiveMount{path: path, r: r}
	defer m.Close()

	f, err := m.GetFile("a.bin")
	require.NoError(t, err)
	defer f.Close()

	buf := make([]byte, 1)
	_, err = f.Read(buf)
	require.NoError(t, err)
	reads := src.Reads()
	require.NotNil(t, f.(*archiveFile).cache)

	got := append([]byte(nil), buf...)
	chunk := make([]byte, 100)
	for {
		n, err := f.Read(chunk)
		got = append(got, chunk[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
	}
	_, err = f.ReadAt(chunk, 1000)
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.Equal(t, reads, src.Reads(), "source read again after the first decompression")

	// A second handle keeps its own cache.
	g, err := m.GetFile("a.bin")
	require.NoError(t, err)
	defer g.Close()
	_, err = g.Read(buf)
	require.NoError(t, err)
	assert.Greater(t, src.Reads(), reads)
}

func TestMountPointFactory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	pack := writeArchive(t, dir, "Pack.RBA", 9, map[string][]byte{"a": []byte("a")})

	mp, err := NewMountPoint(pack)
	require.NoError(t, err)
	assert.Equal(t, MountArchive, mp.Kind())
	assert.Zero(t, mp.Order())
	assert.False(t, mp.HasFile("a"))
	require.NoError(t, mp.Load())
	assert.Equal(t, 9, mp.Order())
	assert.True(t, mp.HasFile("a"))
	require.NoError(t, mp.Close())

	mp, err = NewMountPoint(dir)
	require.NoError(t, err)
	assert.Equal(t, MountDirectory, mp.Kind())
	assert.Equal(t, DirectoryOrder, mp.Order())
	assert.Equal(t, dir, mp.Path())

	_, err = NewMountPoint(pack, WithArchiveExtension(".pak"))
	assert.ErrorIs(t, err, ErrUnsupportedMount)

	assert.Equal(t, "directory", MountDirectory.String())
	assert.Equal(t, "archive", MountArchive.String())
}

func TestDirMountSkipsSymlinks(t *testing.T) {
	t.Parallel()

	dir := writeDir(t, map[string][]byte{"real.txt": []byte("real")})
	if err := os.Symlink("real.txt", dir+"/link.txt"); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	mp, err := NewMountPoint(dir)
	require.NoError(t, err)
	require.NoError(t, mp.Load())
	defer mp.Close()

	assert.True(t, mp.HasFile("real.txt"))
	assert.False(t, mp.HasFile("link.txt"))
}
