package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// skipDirs are never searched for scenario files.
var skipDirs = []string{".git", ".hddl", "node_modules"}

// ContainsGlob reports whether pattern contains glob metacharacters.
func ContainsGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

// ResolveScenarioFiles expands patterns into a sorted, de-duplicated list of
// absolute file paths. Relative patterns are resolved against root. Patterns
// support ** for recursive matching. A pattern without glob characters must
// name an existing file, or a directory whose scenario files are included.
func ResolveScenarioFiles(root string, patterns []string, dirPattern string) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}

	seen := make(map[string]bool)
	var files []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, pattern := range patterns {
		abs := pattern
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(absRoot, pattern)
		}

		if !ContainsGlob(pattern) {
			info, err := os.Stat(abs)
			if err != nil {
				return nil, fmt.Errorf("resolve %q: %w", pattern, err)
			}
			if !info.IsDir() {
				add(filepath.Clean(abs))
				continue
			}
			abs = filepath.Join(abs, filepath.FromSlash(dirPattern))
		}

		matches, err := doublestar.FilepathGlob(abs, doublestar.WithFilesOnly(), doublestar.WithNoFollow())
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		for _, m := range matches {
			if inSkippedDir(m) {
				continue
			}
			add(m)
		}
	}

	slices.Sort(files)
	return files, nil
}

func inSkippedDir(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(filepath.Dir(path)), "/") {
		if slices.Contains(skipDirs, part) {
			return true
		}
	}
	return false
}
