package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/nvandessel/hddl-sim/internal/catalog"
	"github.com/nvandessel/hddl-sim/internal/config"
	"github.com/nvandessel/hddl-sim/internal/logging"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// errValidationFailed is returned when at least one scenario fails its gate.
// The findings themselves have already been printed.
var errValidationFailed = errors.New("validation failed")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hddl",
		Short: "HDDL Sim scenario tooling",
		Long: `hddl validates and patches HDDL Sim scenario documents.

It checks that every boundary interaction and revision leaves a memory
trace, that retrievals only recall earlier memories, and merges additive
patches onto base scenarios.`,
		SilenceUsage: true,
	}

	addPersistentFlags(rootCmd)

	rootCmd.AddCommand(
		newVersionCmd(),
		newValidateCmd(),
		newMergeCmd(),
		newApplyCmd(),
		newStatsCmd(),
		newCatalogCmd(),
		newConfigCmd(),
		newMCPServerCmd(),
	)

	return rootCmd
}

// addPersistentFlags registers the global flags.
func addPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	cmd.PersistentFlags().String("root", ".", "Project root directory")
	cmd.PersistentFlags().String("log-level", "", "Log level: info, debug, or trace (default from config)")
}

// loadSettings loads the configuration and applies the --log-level flag.
func loadSettings(cmd *cobra.Command) (*config.HDDLConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger creates the operational logger on the command's stderr.
func newLogger(cmd *cobra.Command, cfg *config.HDDLConfig) *slog.Logger {
	return logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
}

// openAudit opens <root>/.hddl/audit.jsonl when the level enables it.
func openAudit(root string, cfg *config.HDDLConfig) *logging.AuditLog {
	return logging.NewAuditLog(filepath.Join(root, ".hddl"), cfg.Logging.Level)
}

// openCatalog opens the project's SQLite catalog.
func openCatalog(ctx context.Context, root string, cfg *config.HDDLConfig) (*catalog.SQLiteCatalog, error) {
	cat, err := catalog.OpenSQLite(ctx, cfg.CatalogPath(root))
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	return cat, nil
}

// writeJSON writes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// signalContext returns a context cancelled on interrupt.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}
