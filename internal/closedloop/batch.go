package closedloop

import (
	"context"
	"runtime"

	"github.com/nvandessel/hddl-sim/internal/models"
	"golang.org/x/sync/errgroup"
)

// FileReport is the validation outcome for one scenario file.
type FileReport struct {
	Path       string `json:"path"`
	ScenarioID string `json:"scenario_id,omitempty"`
	Report

	// LoadError is set when the file could not be read or parsed. Such a
	// file has no findings and always counts as failing.
	LoadError string `json:"load_error,omitempty"`
}

// Failed reports whether the file should break a CI-style gate. With strict
// set, warnings fail the file as well.
func (f FileReport) Failed(strict bool) bool {
	if f.LoadError != "" || len(f.Errors) > 0 {
		return true
	}
	return strict && len(f.Warnings) > 0
}

// ValidateFiles loads and validates every path with at most workers files
// in flight (workers <= 0 uses GOMAXPROCS). Reports are returned in the
// order of paths. Per-file load failures are recorded in the report; the
// returned error is only non-nil when ctx is cancelled.
func ValidateFiles(ctx context.Context, paths []string, workers int) ([]FileReport, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	reports := make([]FileReport, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			reports[i] = validateFile(path)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return reports, err
	}
	return reports, nil
}

func validateFile(path string) FileReport {
	s, err := models.ReadFile(path)
	if err != nil {
		return FileReport{
			Path:      path,
			Report:    Report{Errors: []string{}, Warnings: []string{}},
			LoadError: err.Error(),
		}
	}
	return FileReport{
		Path:       path,
		ScenarioID: s.ID,
		Report:     Validate(s),
	}
}

// BatchSummary totals a set of file reports.
type BatchSummary struct {
	Files    int `json:"files"`
	Passed   int `json:"passed"`
	Failed   int `json:"failed"`
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
}

// Summarize totals reports. A file fails on load errors, integrity errors,
// or, when strict is set, warnings.
func Summarize(reports []FileReport, strict bool) BatchSummary {
	sum := BatchSummary{Files: len(reports)}
	for _, r := range reports {
		sum.Errors += len(r.Errors)
		sum.Warnings += len(r.Warnings)
		if r.LoadError != "" {
			sum.Errors++
		}
		if r.Failed(strict) {
			sum.Failed++
		} else {
			sum.Passed++
		}
	}
	return sum
}
