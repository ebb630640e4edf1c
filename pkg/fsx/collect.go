// Package fsx holds the filesystem helpers behind folder indexing: glob
// expansion of the configured document paths and gitignore-aware skipping.
package fsx

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// CollectFiles expands patterns (plain files, directories, or doublestar
// globs) into a deduplicated list of absolute file paths. Paths that do not
// exist are skipped rather than failing the whole collection. shouldIgnore,
// when non-nil, prunes files and whole directories (return true to skip).
func CollectFiles(patterns []string, shouldIgnore func(path string) bool) ([]string, error) {
	var files []string
	seen := make(map[string]bool)

	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}

	for _, pattern := range patterns {
		expanded, err := expandPattern(pattern)
		if err != nil {
			return nil, err
		}

		for _, entry := range expanded {
			entry = normalizePath(entry)
			if shouldIgnore != nil && shouldIgnore(entry) {
				continue
			}

			info, err := os.Stat(entry)
			switch {
			case os.IsNotExist(err):
				continue
			case err != nil:
				return nil, fmt.Errorf("stat %s: %w", entry, err)
			case !info.IsDir():
				add(entry)
				continue
			}

			walkErr := filepath.WalkDir(entry, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if shouldIgnore != nil && shouldIgnore(path) {
					if d.IsDir() {
						return fs.SkipDir
					}
					return nil
				}
				if !d.IsDir() {
					add(normalizePath(path))
				}
				return nil
			})
			if walkErr != nil {
				return nil, fmt.Errorf("walking %s: %w", entry, walkErr)
			}
		}
	}

	return files, nil
}

// Matches reports whether path matches any configured path or glob pattern:
// glob patterns match the full path, directory patterns match everything
// under them, file patterns match exactly. File watchers use this to decide
// whether a changed file belongs to the indexed set.
func Matches(path string, patterns []string) (bool, error) {
	cleanPath := normalizePath(path)

	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		normalized := normalizePath(pattern)

		if hasGlob(pattern) {
			match, err := doublestar.PathMatch(normalized, cleanPath)
			if err != nil {
				return false, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
			}
			if match {
				return true, nil
			}
			continue
		}

		info, err := os.Stat(normalized)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("stat %s: %w", normalized, err)
		}

		if info.IsDir() {
			if cleanPath == normalized || strings.HasPrefix(cleanPath, normalized+string(os.PathSeparator)) {
				return true, nil
			}
			continue
		}
		if cleanPath == normalized {
			return true, nil
		}
	}

	return false, nil
}

// expandPattern resolves a doublestar glob to its matches; non-glob
// patterns pass through as-is so missing paths can be skipped by the caller.
func expandPattern(pattern string) ([]string, error) {
	if !hasGlob(pattern) {
		return []string{pattern}, nil
	}

	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
	}
	return matches, nil
}

func hasGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}

func normalizePath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return filepath.Clean(abs)
	}
	return filepath.Clean(p)
}
