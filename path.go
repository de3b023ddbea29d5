package rbafs

import "github.com/meigma/rbafs/internal/pathutil"

// NormalizePath returns the canonical logical form of p: forward slashes,
// lower case, no empty or "." segments, and no leading or trailing slash.
// NormalizePath is idempotent.
func NormalizePath(p string) string {
	return pathutil.Normalize(p)
}
