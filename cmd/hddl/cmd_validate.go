package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/nvandessel/hddl-sim/internal/closedloop"
	"github.com/nvandessel/hddl-sim/internal/config"
	"github.com/nvandessel/hddl-sim/internal/models"
	"github.com/nvandessel/hddl-sim/internal/pathutil"
	"github.com/nvandessel/hddl-sim/internal/watch"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [paths...]",
		Short: "Check scenario files for closed-loop integrity",
		Long: `Check scenario files for closed-loop integrity.

Errors (exit status 1):
  - Boundary interactions and revisions without a matching embedding
  - Retrievals of unknown embeddings or of embeddings from the future

Warnings:
  - Boundary interactions without a retrieval by the same actor in the
    preceding half hour
  - No historical baseline (no embedding before hour 0)
  - Steward decisions that are never captured as embeddings

Paths may be files, directories, or doublestar globs. With no paths, the
validate.patterns from config are resolved against --root.

Examples:
  hddl validate                                  # All **/*.scenario.json under --root
  hddl validate scenarios/insurance.scenario.json
  hddl validate 'scenarios/**/*.scenario.yaml' --strict
  hddl validate --watch                          # Re-validate on change`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			watchMode, _ := cmd.Flags().GetBool("watch")

			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cmd, cfg)

			strict := cfg.Validation.Strict
			if cmd.Flags().Changed("strict") {
				strict, _ = cmd.Flags().GetBool("strict")
			}
			workers := cfg.Validation.Workers
			if cmd.Flags().Changed("workers") {
				workers, _ = cmd.Flags().GetInt("workers")
			}
			patterns := cfg.Validation.Patterns
			if cmd.Flags().Changed("pattern") {
				patterns, _ = cmd.Flags().GetStringArray("pattern")
			}

			var files []string
			if len(args) > 0 {
				files, err = pathutil.ResolveScenarioFiles(".", args, config.DefaultScenarioPattern)
			} else {
				files, err = pathutil.ResolveScenarioFiles(root, patterns, config.DefaultScenarioPattern)
			}
			if err != nil {
				return err
			}
			logger.Debug("resolved scenario files", "count", len(files), "workers", workers, "strict", strict)

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			failed, err := validateAndPrint(ctx, cmd, files, workers, strict, jsonOut)
			if err != nil {
				return err
			}

			if watchMode {
				match := scenarioMatcher(root, args, patterns)
				return watchAndValidate(ctx, cmd, logger, root, match, workers, strict, jsonOut)
			}

			if failed {
				return errValidationFailed
			}
			return nil
		},
	}

	cmd.Flags().StringArray("pattern", nil, "Doublestar glob relative to --root (repeatable; default from config)")
	cmd.Flags().Int("workers", 0, "Files validated concurrently (0 = GOMAXPROCS; default from config)")
	cmd.Flags().Bool("strict", false, "Fail on warnings as well as errors")
	cmd.Flags().Bool("watch", false, "Keep running and re-validate files as they change")

	return cmd
}

// validateAndPrint validates files and prints the results. It reports
// whether any file failed.
func validateAndPrint(ctx context.Context, cmd *cobra.Command, files []string, workers int, strict, jsonOut bool) (bool, error) {
	reports, err := closedloop.ValidateFiles(ctx, files, workers)
	if err != nil {
		return false, err
	}
	summary := closedloop.Summarize(reports, strict)

	if jsonOut {
		if reports == nil {
			reports = []closedloop.FileReport{}
		}
		if err := writeJSON(cmd.OutOrStdout(), map[string]any{
			"summary": summary,
			"strict":  strict,
			"files":   reports,
		}); err != nil {
			return false, err
		}
		return summary.Failed > 0, nil
	}

	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	if len(files) == 0 {
		fmt.Fprintln(out, "No scenario files found.")
		return false, nil
	}
	for _, r := range reports {
		printFileReport(out, errOut, r, strict)
	}
	fmt.Fprintf(out, "\n%d file(s): %d passed, %d failed (%d error(s), %d warning(s))\n",
		summary.Files, summary.Passed, summary.Failed, summary.Errors, summary.Warnings)

	return summary.Failed > 0, nil
}

// printFileReport prints one file's banner, its errors to errOut and its
// warnings to out.
func printFileReport(out, errOut io.Writer, r closedloop.FileReport, strict bool) {
	status := "PASS"
	if r.Failed(strict) {
		status = "FAIL"
	}
	label := r.Path
	if r.ScenarioID != "" {
		label = fmt.Sprintf("%s (%s)", r.Path, r.ScenarioID)
	}
	fmt.Fprintf(out, "\n[%s] %s\n", status, label)

	if r.LoadError != "" {
		fmt.Fprintf(errOut, "  error: %s\n", r.LoadError)
		return
	}
	for _, e := range r.Errors {
		fmt.Fprintf(errOut, "  error: %s\n", e)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(out, "  warning: %s\n", w)
	}
}

// scenarioMatcher builds the watch filter from the same targets validate
// resolved: explicit paths, directories, or globs.
func scenarioMatcher(root string, args, patterns []string) func(string) bool {
	base := root
	targets := patterns
	if len(args) > 0 {
		base = "."
		targets = args
	}
	absBase, err := filepath.Abs(base)
	if err != nil {
		absBase = base
	}

	globs := make([]string, 0, len(targets))
	for _, t := range targets {
		abs := t
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(absBase, t)
		}
		if !pathutil.ContainsGlob(t) {
			// Plain files match themselves; directories their scenario files.
			globs = append(globs, filepath.ToSlash(abs), filepath.ToSlash(filepath.Join(abs, config.DefaultScenarioPattern)))
			continue
		}
		globs = append(globs, filepath.ToSlash(abs))
	}

	return func(path string) bool {
		p := filepath.ToSlash(path)
		for _, g := range globs {
			if ok, _ := doublestar.Match(g, p); ok {
				return true
			}
		}
		return false
	}
}

// watchAndValidate re-validates changed files until ctx is cancelled.
func watchAndValidate(ctx context.Context, cmd *cobra.Command, logger *slog.Logger, root string, match func(string) bool, workers int, strict, jsonOut bool) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolving root: %w", err)
	}
	w, err := watch.New(watch.Config{
		Root:   absRoot,
		Match:  match,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	if !jsonOut {
		fmt.Fprintf(cmd.OutOrStdout(), "\nWatching %s for scenario changes (Ctrl+C to stop)...\n", absRoot)
	}

	for batch := range w.Batches() {
		if !jsonOut {
			for _, p := range batch.Removed {
				fmt.Fprintf(cmd.OutOrStdout(), "\n[GONE] %s\n", p)
			}
		}
		if len(batch.Changed) == 0 {
			continue
		}
		if _, err := validateAndPrint(ctx, cmd, batch.Changed, workers, strict, jsonOut); err != nil && ctx.Err() == nil {
			return err
		}
	}

	return <-errCh
}

// fileReportFor wraps an in-memory validation for printing.
func fileReportFor(label string, s *models.Scenario, r closedloop.Report) closedloop.FileReport {
	return closedloop.FileReport{Path: label, ScenarioID: s.ID, Report: r}
}
