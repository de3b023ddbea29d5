package rbafs

import (
	"encoding/binary"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/rbafs/archive"
	"github.com/meigma/rbafs/internal/testutil"
)

func readAll(t *testing.T, f File) []byte {
	t.Helper()
	content, err := io.ReadAll(f)
	require.NoError(t, err)
	return content
}

func TestFileSystemArchiveShadowsDirectory(t *testing.T) {
	t.Parallel()

	dirContent := testutil.Compressible(50)
	archiveContent := testutil.Random(t, 80)

	assets := writeDir(t, map[string][]byte{"shaders/basic.glsl": dirContent})
	patch := writeArchive(t, t.TempDir(), "patch.rba", 5,
		map[string][]byte{"shaders/basic.glsl": archiveContent}, compressAll()...)

	fsys := New()
	defer fsys.Close()
	require.NoError(t, fsys.Mount(assets))
	require.NoError(t, fsys.Mount(patch))

	f, err := fsys.GetFile("shaders/basic.glsl")
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, int64(80), f.Size())
	assert.Equal(t, MountArchive, f.Source().Kind())
	assert.Equal(t, 5, f.Source().Order())
	assert.Equal(t, archiveContent, readAll(t, f))
}

func TestFileSystemMountOrder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	base := writeArchive(t, dir, "base.rba", 1, map[string][]byte{
		"data/a.txt":    []byte("base a"),
		"data/base.txt": []byte("only base"),
	})
	patch := writeArchive(t, dir, "patch.rba", 3, map[string][]byte{
		"data/a.txt": []byte("patch a"),
	})
	loose := writeDir(t, map[string][]byte{
		"data/a.txt":     []byte("loose a"),
		"data/loose.txt": []byte("only loose"),
	})

	fsys := New()
	defer fsys.Close()
	// Mount order does not matter; order does.
	require.NoError(t, fsys.Mount(patch))
	require.NoError(t, fsys.Mount(loose))
	require.NoError(t, fsys.Mount(base))

	var orders []int
	for _, mp := range fsys.Mounts() {
		orders = append(orders, mp.Order())
	}
	assert.Equal(t, []int{3, 1, DirectoryOrder}, orders)

	for name, want := range map[string]string{
		"data/a.txt":     "patch a",
		"data/base.txt":  "only base",
		"data/loose.txt": "only loose",
	} {
		content, err := fsys.ReadFile(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, string(content), name)
	}
}

func TestFileSystemEqualOrderFirstMountWins(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := writeArchive(t, filepath.Join(dir, "one"), "same.rba", 2, map[string][]byte{"x.txt": []byte("first")})
	second := writeArchive(t, filepath.Join(dir, "two"), "same.rba", 2, map[string][]byte{"x.txt": []byte("second")})

	fsys := New()
	defer fsys.Close()
	require.NoError(t, fsys.Mount(first))
	require.NoError(t, fsys.Mount(second))

	content, err := fsys.ReadFile("x.txt")
	require.NoError(t, err)
	assert.Equal(t, "first", string(content))
}

func TestFileSystemMountSamePathTwice(t *testing.T) {
	t.Parallel()

	assets := writeDir(t, map[string][]byte{"a.txt": []byte("a")})
	fsys := New()
	defer fsys.Close()
	require.NoError(t, fsys.Mount(assets))
	require.NoError(t, fsys.Mount(assets))
	assert.Len(t, fsys.Mounts(), 2)
}

func TestFileSystemNormalizedLookup(t *testing.T) {
	t.Parallel()

	assets := writeDir(t, map[string][]byte{"Textures/Wall.PNG": []byte("loose")})
	pack := writeArchive(t, t.TempDir(), "pack.rba", 0, map[string][]byte{"Shaders/Basic.glsl": []byte("packed")})

	fsys := New()
	defer fsys.Close()
	require.NoError(t, fsys.Mount(assets))
	require.NoError(t, fsys.Mount(pack))

	for _, name := range []string{
		"textures/wall.png",
		"TEXTURES/WALL.png",
		`textures\wall.png`,
		"/textures//wall.png/",
		"shaders/basic.glsl",
		`Shaders\Basic.GLSL`,
		"./shaders/basic.glsl",
	} {
		assert.True(t, fsys.HasFile(name), name)
		f, err := fsys.GetFile(name)
		require.NoError(t, err, name)
		assert.Equal(t, NormalizePath(name), f.Name())
		require.NoError(t, f.Close())
	}
}

func TestFileSystemNotFound(t *testing.T) {
	t.Parallel()

	fsys := New()
	defer fsys.Close()
	require.NoError(t, fsys.Mount(writeDir(t, map[string][]byte{"a.txt": []byte("a")})))

	assert.False(t, fsys.HasFile("b.txt"))
	_, err := fsys.GetFile("b.txt")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	_, err = fsys.Stat("b.txt")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	_, err = fsys.ReadFile("b.txt")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, err = New().GetFile("a.txt")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestFileSystemMountFailures(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good := writeArchive(t, dir, "good.rba", 1, map[string][]byte{"a.txt": []byte("a")})
	raw, err := os.ReadFile(good)
	require.NoError(t, err)

	badMagic := filepath.Join(dir, "badmagic.rba")
	corrupt := slices.Clone(raw)
	copy(corrupt, "XXXX")
	require.NoError(t, os.WriteFile(badMagic, corrupt, 0o644))

	badVersion := filepath.Join(dir, "badversion.rba")
	corrupt = slices.Clone(raw)
	corrupt[4] = 1
	require.NoError(t, os.WriteFile(badVersion, corrupt, 0o644))

	plain := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(plain, []byte("hello"), 0o644))

	fsys := New()
	defer fsys.Close()
	require.NoError(t, fsys.Mount(good))

	tests := []struct {
		path string
		err  error
	}{
		{badMagic, ErrBadMagic},
		{badVersion, ErrUnsupportedVersion},
		{plain, ErrUnsupportedMount},
		{filepath.Join(dir, "missing"), fs.ErrNotExist},
		{filepath.Join(dir, "missing.rba"), fs.ErrNotExist},
	}
	for _, tt := range tests {
		err := fsys.Mount(tt.path)
		assert.ErrorIs(t, err, tt.err, tt.path)
		assert.Len(t, fsys.Mounts(), 1, tt.path)
	}
	assert.True(t, fsys.HasFile("a.txt"))
}

func TestFileSystemMountRejectsOversizedEntry(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeArchive(t, dir, "bomb.rba", 1, map[string][]byte{"bomb.bin": testutil.Compressible(4096)}, compressAll()...)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, byte(1), raw[archive.HeaderSize+archive.PathWidth], "entry should be compressed")
	binary.LittleEndian.PutUint32(raw[archive.HeaderSize+archive.PathWidth+1:], 0xF0000000)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	fsys := New()
	defer fsys.Close()
	err = fsys.Mount(path)
	require.ErrorIs(t, err, ErrInvalidEntry)
	assert.Empty(t, fsys.Mounts())

	limited := New(WithMaxFileSize(32))
	defer limited.Close()
	good := writeArchive(t, dir, "good.rba", 1, map[string][]byte{"big.txt": testutil.Compressible(64)})
	require.ErrorIs(t, limited.Mount(good), ErrInvalidEntry)

	unlimited := New(WithMaxFileSize(0))
	defer unlimited.Close()
	require.NoError(t, unlimited.Mount(path))
	assert.True(t, unlimited.HasFile("bomb.bin"))
}

func TestFileSystemAddArchiveLocation(t *testing.T) {
	t.Parallel()

	packs := t.TempDir()
	writeArchive(t, packs, "base.rba", 1, map[string][]byte{"a.txt": []byte("base")})
	writeArchive(t, filepath.Join(packs, "dlc"), "Extra.RBA", 2, map[string][]byte{"b.txt": []byte("dlc")})
	require.NoError(t, os.WriteFile(filepath.Join(packs, "broken.rba"), []byte("garbage"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(packs, "readme.txt"), []byte("not an archive"), 0o644))

	fsys := New()
	defer fsys.Close()

	n, err := fsys.AddArchiveLocation(packs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, fsys.Mounts(), 2)
	assert.True(t, fsys.HasFile("a.txt"))
	assert.True(t, fsys.HasFile("b.txt"))

	// Repeated calls are no-ops, including through a different spelling.
	n, err = fsys.AddArchiveLocation(packs)
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = fsys.AddArchiveLocation(filepath.Join(packs, "dlc", ".."))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, fsys.Mounts(), 2)
}

func TestFileSystemAddArchiveLocationSingleFile(t *testing.T) {
	t.Parallel()

	pack := writeArchive(t, t.TempDir(), "single.rba", 4, map[string][]byte{"x.bin": []byte("x")})

	fsys := New()
	defer fsys.Close()
	n, err := fsys.AddArchiveLocation(pack)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = fsys.AddArchiveLocation(pack)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, fsys.Mounts(), 1)

	_, err = fsys.AddArchiveLocation(filepath.Join(t.TempDir(), "nowhere"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestFileSystemAddArchiveLocationAfterUnmount(t *testing.T) {
	t.Parallel()

	packs := t.TempDir()
	base := writeArchive(t, packs, "base.rba", 1, map[string][]byte{"a.txt": []byte("base")})
	writeArchive(t, packs, "patch.rba", 2, map[string][]byte{"b.txt": []byte("patch")})

	fsys := New()
	defer fsys.Close()

	n, err := fsys.AddArchiveLocation(packs)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.NoError(t, fsys.Unmount(base))
	assert.False(t, fsys.HasFile("a.txt"))

	// Only the unmounted archive comes back; patch.rba is not mounted twice.
	n, err = fsys.AddArchiveLocation(packs)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, fsys.Mounts(), 2)
	assert.True(t, fsys.HasFile("a.txt"))

	single := writeArchive(t, t.TempDir(), "single.rba", 3, map[string][]byte{"c.txt": []byte("c")})
	n, err = fsys.AddArchiveLocation(single)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoError(t, fsys.Unmount(single))

	n, err = fsys.AddArchiveLocation(single)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, fsys.HasFile("c.txt"))
}

func TestFileSystemAddArchiveLocationRetriesFailedArchive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good := writeArchive(t, t.TempDir(), "good.rba", 1, map[string][]byte{"a.txt": []byte("a")})
	raw, err := os.ReadFile(good)
	require.NoError(t, err)

	pack := filepath.Join(dir, "late.rba")
	require.NoError(t, os.WriteFile(pack, make([]byte, archive.HeaderSize), 0o644))

	fsys := New()
	defer fsys.Close()

	n, err := fsys.AddArchiveLocation(pack)
	require.ErrorIs(t, err, ErrBadMagic)
	assert.Zero(t, n)
	assert.Empty(t, fsys.Mounts())

	require.NoError(t, os.WriteFile(pack, raw, 0o644))
	n, err = fsys.AddArchiveLocation(pack)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, fsys.HasFile("a.txt"))
}

func TestFileSystemCustomExtension(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeArchive(t, dir, "data.pak", 1, map[string][]byte{"a.txt": []byte("a")})
	writeArchive(t, dir, "other.rba", 1, map[string][]byte{"b.txt": []byte("b")})

	fsys := New(WithArchiveExtension("PAK"))
	defer fsys.Close()
	n, err := fsys.AddArchiveLocation(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, fsys.HasFile("a.txt"))
	assert.False(t, fsys.HasFile("b.txt"))
}

func TestFileSystemFiles(t *testing.T) {
	t.Parallel()

	pack := writeArchive(t, t.TempDir(), "pack.rba", 1, map[string][]byte{
		"a.txt": []byte("packed"),
		"c.txt": []byte("packed"),
	})
	loose := writeDir(t, map[string][]byte{
		"a.txt": []byte("loose"),
		"b.txt": []byte("loose"),
	})

	fsys := New()
	defer fsys.Close()
	require.NoError(t, fsys.Mount(loose))
	require.NoError(t, fsys.Mount(pack))

	assert.Equal(t, []string{"c.txt", "a.txt", "b.txt"}, slices.Collect(fsys.Files()))
}

func TestFileSystemStat(t *testing.T) {
	t.Parallel()

	pack := writeArchive(t, t.TempDir(), "pack.rba", 1,
		map[string][]byte{"dir/packed.bin": testutil.Compressible(300)}, compressAll()...)
	loose := writeDir(t, map[string][]byte{"dir/loose.bin": []byte("12345")})

	fsys := New()
	defer fsys.Close()
	require.NoError(t, fsys.Mount(loose))
	require.NoError(t, fsys.Mount(pack))

	info, err := fsys.Stat("dir/packed.bin")
	require.NoError(t, err)
	assert.Equal(t, "packed.bin", info.Name())
	assert.Equal(t, int64(300), info.Size())
	assert.False(t, info.IsDir())

	info, err = fsys.Stat("dir/loose.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())

	_, err = fsys.Stat("../escape")
	assert.ErrorIs(t, err, fs.ErrInvalid)
}

func TestFileSystemFSInterface(t *testing.T) {
	t.Parallel()

	pack := writeArchive(t, t.TempDir(), "pack.rba", 1, map[string][]byte{"cfg/app.json": []byte(`{"ok":true}`)})
	fsys := New()
	defer fsys.Close()
	require.NoError(t, fsys.Mount(pack))

	content, err := fs.ReadFile(fsys, "cfg/app.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(content))

	f, err := fsys.Open("cfg/app.json")
	require.NoError(t, err)
	info, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, "app.json", info.Name())
	require.NoError(t, f.Close())

	_, err = fsys.Open("/abs")
	assert.ErrorIs(t, err, fs.ErrInvalid)
}

func TestFileSystemUnmount(t *testing.T) {
	t.Parallel()

	pack := writeArchive(t, t.TempDir(), "pack.rba", 1, map[string][]byte{"a.txt": []byte("packed")})
	loose := writeDir(t, map[string][]byte{"a.txt": []byte("loose")})

	fsys := New()
	defer fsys.Close()
	require.NoError(t, fsys.Mount(loose))
	require.NoError(t, fsys.Mount(pack))

	f, err := fsys.GetFile("a.txt")
	require.NoError(t, err)
	assert.Equal(t, 1, f.Source().OpenFiles())

	err = fsys.Unmount(pack)
	require.ErrorIs(t, err, ErrMountBusy)
	assert.Len(t, fsys.Mounts(), 2)

	// The handle still reads while the mount is busy.
	assert.Equal(t, "packed", string(readAll(t, f)))
	require.NoError(t, f.Close())
	assert.Zero(t, f.Source().OpenFiles())

	require.NoError(t, fsys.Unmount(pack))
	assert.Len(t, fsys.Mounts(), 1)
	content, err := fsys.ReadFile("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "loose", string(content))

	err = fsys.Unmount(pack)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestFileSystemCloseInvalidatesHandles(t *testing.T) {
	t.Parallel()

	pack := writeArchive(t, t.TempDir(), "pack.rba", 1, map[string][]byte{"a.txt": []byte("packed")})
	loose := writeDir(t, map[string][]byte{"b.txt": []byte("loose")})

	fsys := New()
	require.NoError(t, fsys.Mount(pack))
	require.NoError(t, fsys.Mount(loose))

	fa, err := fsys.GetFile("a.txt")
	require.NoError(t, err)
	fb, err := fsys.GetFile("b.txt")
	require.NoError(t, err)

	require.NoError(t, fsys.Close())
	assert.Empty(t, fsys.Mounts())

	buf := make([]byte, 4)
	_, err = fa.Read(buf)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = fb.Read(buf)
	assert.ErrorIs(t, err, ErrClosed)

	assert.NoError(t, fa.Close())
	assert.NoError(t, fb.Close())
}
