package archive

import "github.com/meigma/rbafs/internal/pathutil"

// NormalizePath returns the canonical logical form of a path: forward
// slashes, lower case, no empty or "." segments, and no leading or trailing
// slash. Every entry path is stored in this form.
func NormalizePath(p string) string {
	return pathutil.Normalize(p)
}
