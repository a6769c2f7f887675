package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/nvandessel/hddl-sim/internal/config"
	"github.com/nvandessel/hddl-sim/internal/merge"
	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage hddl configuration",
		Long: `View and modify hddl configuration settings.

Configuration is stored in ~/.hddl/config.yaml. Environment variables
(HDDL_LOG_LEVEL, HDDL_ENVELOPE_POLICY, HDDL_VALIDATE_WORKERS,
HDDL_VALIDATE_STRICT, HDDL_CATALOG_PATH) override the file.

Examples:
  hddl config list                               # Show all settings
  hddl config get merge.envelope_policy          # Get a specific setting
  hddl config set merge.envelope_policy patch_wins
  hddl config set validate.patterns 'scenarios/**/*.scenario.json,generated/*.scenario.yaml'`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigGetCmd(),
		newConfigSetCmd(),
	)

	return cmd
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), cfg)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Configuration (~/.hddl/config.yaml):")
			fmt.Fprintln(out)
			for _, key := range configKeys {
				value, _ := getConfigValue(cfg, key)
				fmt.Fprintf(out, "  %-24s %v\n", key+":", value)
			}
			return nil
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key := args[0]

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			value, found := getConfigValue(cfg, key)
			if !found {
				return fmt.Errorf("unknown configuration key: %s (valid: %s)", key, strings.Join(configKeys, ", "))
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"key":   key,
					"value": value,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, value)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key, value := args[0], args[1]

			path, err := config.GlobalConfigPath()
			if err != nil {
				return err
			}
			// Start from the file alone so environment overrides are not persisted.
			cfg := config.Default()
			if _, statErr := os.Stat(path); statErr == nil {
				if cfg, err = config.LoadFromFile(path); err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
			}

			if err := setConfigValue(cfg, key, value); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.Save(path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"status": "updated",
					"key":    key,
					"value":  value,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
			return nil
		},
	}
}

// configKeys lists the dot-notation keys in display order.
var configKeys = []string{
	"logging.level",
	"merge.envelope_policy",
	"validate.patterns",
	"validate.workers",
	"validate.strict",
	"catalog.path",
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.HDDLConfig, key string) (any, bool) {
	switch key {
	case "logging.level":
		return valueOrDefault(cfg.Logging.Level, "info"), true
	case "merge.envelope_policy":
		return string(cfg.EnvelopePolicy()), true
	case "validate.patterns":
		return strings.Join(cfg.Validation.Patterns, ","), true
	case "validate.workers":
		return cfg.Validation.Workers, true
	case "validate.strict":
		return cfg.Validation.Strict, true
	case "catalog.path":
		return valueOrDefault(cfg.Catalog.Path, "(default)"), true
	default:
		return nil, false
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.HDDLConfig, key, value string) error {
	switch key {
	case "logging.level":
		cfg.Logging.Level = value
	case "merge.envelope_policy":
		p, err := merge.ParseEnvelopePolicy(value)
		if err != nil {
			return err
		}
		cfg.Merge.EnvelopePolicy = string(p)
	case "validate.patterns":
		var patterns []string
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				patterns = append(patterns, p)
			}
		}
		if len(patterns) == 0 {
			return fmt.Errorf("validate.patterns needs at least one pattern")
		}
		cfg.Validation.Patterns = patterns
	case "validate.workers":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid worker count: %s", value)
		}
		cfg.Validation.Workers = n
	case "validate.strict":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %s", value)
		}
		cfg.Validation.Strict = b
	case "catalog.path":
		cfg.Catalog.Path = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

// valueOrDefault returns the value if non-empty, otherwise the default.
func valueOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}
