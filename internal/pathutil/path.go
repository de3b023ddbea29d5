// Package pathutil provides the canonical form of logical archive paths.
//
// Every path that is stored in an archive directory, indexed by a mount point,
// or used as a lookup key passes through Normalize exactly once at the boundary.
package pathutil

import (
	"strings"
	"unicode"
)

// Normalize returns the canonical logical form of p.
//
// It performs the following transformations:
//   - Converts backslashes to forward slashes: `Shaders\Basic.glsl` → "shaders/basic.glsl"
//   - Folds case: "Textures/Grass.PNG" → "textures/grass.png"
//   - Collapses consecutive slashes: "a//b" → "a/b"
//   - Strips leading and trailing slashes: "/a/b/" → "a/b"
//   - Drops "." segments: "./a/./b" → "a/b"
//
// ".." segments are preserved; callers that write to disk reject them.
// Normalize is idempotent.
func Normalize(p string) string {
	if p == "" {
		return ""
	}
	p = strings.Map(func(r rune) rune {
		if r == '\\' {
			return '/'
		}
		return unicode.ToLower(r)
	}, p)

	parts := strings.Split(p, "/")
	result := parts[:0]
	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}
		result = append(result, part)
	}
	return strings.Join(result, "/")
}

// Base returns the last element of a slash-separated path.
// If path is empty, it returns ".".
func Base(path string) string {
	if path == "" || path == "." {
		return "."
	}
	path = strings.TrimSuffix(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}
