// Package pathutil locates scenario files and guards where merged scenarios
// may be written.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

var (
	// ErrOutsideRoots is returned when an output path escapes every allowed root.
	ErrOutsideRoots = errors.New("outside allowed directories")

	// ErrNotScenarioFile is returned when an output path has no scenario extension.
	ErrNotScenarioFile = errors.New("not a scenario file")
)

// ScenarioExtensions are the file extensions a scenario may be written as.
var ScenarioExtensions = []string{".json", ".yaml", ".yml"}

// RedactPath shortens a path to .../<parent>/<base> for error messages.
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	parent := filepath.Base(filepath.Dir(cleaned))
	if parent == "." || parent == string(filepath.Separator) {
		return filepath.Base(cleaned)
	}
	return ".../" + parent + "/" + filepath.Base(cleaned)
}

// ValidateOutputPath checks that path may receive a merged scenario: it must
// carry one of ScenarioExtensions, must not be an existing directory, and,
// once symlinks in its existing ancestors are resolved, must sit below one of
// roots.
func ValidateOutputPath(path string, roots []string) error {
	switch {
	case path == "":
		return errors.New("output path is empty")
	case strings.ContainsRune(path, 0):
		return errors.New("output path contains null byte")
	case len(roots) == 0:
		return errors.New("no allowed output directories configured")
	}

	if !slices.Contains(ScenarioExtensions, strings.ToLower(filepath.Ext(path))) {
		return fmt.Errorf("%s: %w (want one of %s)", RedactPath(path), ErrNotScenarioFile, strings.Join(ScenarioExtensions, ", "))
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving output path: %w", err)
	}
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		return fmt.Errorf("%s is a directory", RedactPath(abs))
	}

	target, err := resolveExisting(abs)
	if err != nil {
		return err
	}

	for _, root := range roots {
		rootAbs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		resolvedRoot, err := resolveExisting(rootAbs)
		if err != nil {
			continue
		}
		if within(target, resolvedRoot) {
			return nil
		}
	}
	return fmt.Errorf("%q is %w", RedactPath(abs), ErrOutsideRoots)
}

// resolveExisting evaluates symlinks on the deepest existing ancestor of
// path and re-appends the components that do not exist yet.
func resolveExisting(path string) (string, error) {
	var tail []string
	cur := filepath.Clean(path)
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			slices.Reverse(tail)
			return filepath.Join(append([]string{resolved}, tail...)...), nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", fmt.Errorf("cannot resolve %s", RedactPath(path))
		}
		tail = append(tail, filepath.Base(cur))
		cur = parent
	}
}

func within(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// DefaultOutputRoots returns where merged scenarios may be written from
// untrusted callers: the project root and ~/.hddl.
func DefaultOutputRoots(projectRoot string) ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return []string{projectRoot, filepath.Join(homeDir, ".hddl")}, nil
}
