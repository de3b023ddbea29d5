package archive

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// DefaultMinCompressBias is the default size a file must exceed before it is
// compressed.
const DefaultMinCompressBias = 512 << 10

// SkipCompressionFunc returns true when a file should be stored uncompressed.
// It is called once per file and should be inexpensive.
type SkipCompressionFunc func(path string, info fs.FileInfo) bool

// DefaultSkipCompression returns a SkipCompressionFunc that skips known
// already-compressed formats.
func DefaultSkipCompression() SkipCompressionFunc {
	return func(path string, _ fs.FileInfo) bool {
		ext := strings.ToLower(filepath.Ext(path))
		_, ok := defaultSkipCompressionExts[ext]
		return ok
	}
}

// shouldCompress decides whether a file of the given size is compressed.
func (c *createConfig) shouldCompress(path string, info fs.FileInfo, size int64) bool {
	if !c.compress || size <= c.minCompressBias() {
		return false
	}
	for _, fn := range c.skipCompression {
		if fn != nil && fn(path, info) {
			return false
		}
	}
	return true
}

var defaultSkipCompressionExts = map[string]struct{}{
	".7z":   {},
	".bz2":  {},
	".dds":  {},
	".gif":  {},
	".gz":   {},
	".jpeg": {},
	".jpg":  {},
	".ktx2": {},
	".mp3":  {},
	".mp4":  {},
	".ogg":  {},
	".opus": {},
	".png":  {},
	".rar":  {},
	".rba":  {},
	".webm": {},
	".webp": {},
	".xz":   {},
	".zip":  {},
	".zst":  {},
}
