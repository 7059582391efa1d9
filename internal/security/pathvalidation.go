// Package security guards filesystem access driven by user input: replay
// input paths are confined to the configured data directory, and arbitrary
// identifiers are reduced to safe file names before they touch the disk.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidatePathWithinDirectory reports whether filePath stays inside safeDir
// once relative components and symlinks are resolved. Paths that do not exist
// yet are canonicalized through their nearest existing ancestor, so a
// symlinked parent cannot smuggle a file outside the tree.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	target, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("resolving %q: %w", filePath, err)
	}
	rootAbs, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("resolving allowed directory %q: %w", safeDir, err)
	}
	root, err := filepath.EvalSymlinks(rootAbs)
	if err != nil {
		return fmt.Errorf("resolving allowed directory symlinks: %w", err)
	}

	rel, err := filepath.Rel(root, canonicalize(target))
	if err != nil {
		return fmt.Errorf("relating %q to %q: %w", filePath, safeDir, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%s escapes %s", filePath, safeDir)
	}
	return nil
}

// canonicalize resolves symlinks in absPath. When the path itself does not
// exist, the nearest existing ancestor is resolved instead and the remaining
// components reattached.
func canonicalize(absPath string) string {
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		return resolved
	}
	for dir := filepath.Dir(absPath); ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rel, _ := filepath.Rel(dir, absPath)
			return filepath.Join(resolved, rel)
		}
		if dir == filepath.Dir(dir) {
			// Walked past the root without finding anything on disk.
			return absPath
		}
	}
}

// SanitizeFilename reduces an arbitrary identifier (an MMSI, a run id) to a
// string safe to embed in a file name. ASCII letters, digits, dot, underscore
// and dash survive; any other run of characters collapses to one underscore.
// The result is capped at 128 bytes, trimmed of edge dots and underscores,
// and never empty.
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	pendingGap := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
			pendingGap = false
		default:
			if !pendingGap {
				b.WriteRune('_')
				pendingGap = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
