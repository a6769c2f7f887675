package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/nvandessel/hddl-sim/internal/models"
)

// suffixes are stripped from file names, longest first.
var suffixes = []string{
	".scenario.json", ".scenario.yaml", ".scenario.yml",
	".patch.json", ".patch.yaml", ".patch.yml",
	".json", ".yaml", ".yml",
}

// NameForPath derives a catalog name from a file path:
// "scenarios/customer-support.scenario.json" becomes "customer-support".
func NameForPath(path string) string {
	base := filepath.Base(path)
	lower := strings.ToLower(base)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s) && len(base) > len(s) {
			return base[:len(base)-len(s)]
		}
	}
	return base
}

// KindForPath returns KindPatch for "*.patch.*" files and KindScenario otherwise.
func KindForPath(path string) Kind {
	lower := strings.ToLower(filepath.Base(path))
	if strings.Contains(lower, ".patch.") {
		return KindPatch
	}
	return KindScenario
}

// LoadFiles reads each path and registers it under NameForPath. It stops at
// the first file that cannot be read or registered and returns the entries
// registered so far.
func LoadFiles(ctx context.Context, c Catalog, paths []string) ([]Entry, error) {
	loaded := make([]Entry, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return loaded, err
		}

		s, err := models.ReadFile(path)
		if err != nil {
			return loaded, fmt.Errorf("loading %s: %w", path, err)
		}

		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		e := Entry{Name: NameForPath(path), Kind: KindForPath(path), Scenario: s, Source: abs}
		if err := c.Register(ctx, e); err != nil {
			return loaded, fmt.Errorf("registering %s: %w", path, err)
		}
		loaded = append(loaded, e)
	}
	return loaded, nil
}
