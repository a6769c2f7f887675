package main

import (
	"errors"
	"fmt"

	"github.com/nvandessel/hddl-sim/internal/catalog"
	"github.com/nvandessel/hddl-sim/internal/models"
	"github.com/nvandessel/hddl-sim/internal/pathutil"
	"github.com/spf13/cobra"
)

// importPattern matches scenario and patch files in both formats.
const importPattern = "**/*.{scenario,patch}.{json,yaml,yml}"

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the project's scenario and patch catalog",
		Long: `Manage the project's scenario and patch catalog.

The catalog is stored in .hddl/catalog.db under --root (or catalog.path
from config). Files are registered by name: insurance.scenario.json becomes
"insurance", steward-memory.patch.json becomes the patch "steward-memory".

Examples:
  hddl catalog import                        # All scenario and patch files under --root
  hddl catalog import scenarios/ patches/
  hddl catalog list --kind patch
  hddl catalog show insurance`,
	}

	cmd.AddCommand(
		newCatalogImportCmd(),
		newCatalogListCmd(),
		newCatalogShowCmd(),
		newCatalogRemoveCmd(),
		newCatalogClearCmd(),
	)

	return cmd
}

func newCatalogImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [paths...]",
		Short: "Register scenario and patch files",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}

			var files []string
			if len(args) > 0 {
				files, err = pathutil.ResolveScenarioFiles(".", args, importPattern)
			} else {
				files, err = pathutil.ResolveScenarioFiles(root, []string{importPattern}, importPattern)
			}
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			cat, err := openCatalog(ctx, root, cfg)
			if err != nil {
				return err
			}
			defer cat.Close()

			entries, err := catalog.LoadFiles(ctx, cat, files)
			if err != nil {
				return err
			}
			newLogger(cmd, cfg).Debug("imported catalog entries", "count", len(entries), "catalog", cat.Path())

			if jsonOut {
				imported := make([]map[string]string, 0, len(entries))
				for _, e := range entries {
					imported = append(imported, map[string]string{
						"name":   e.Name,
						"kind":   string(e.Kind),
						"source": e.Source,
					})
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"imported": imported,
					"count":    len(entries),
				})
			}

			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-8s %s\n", e.Kind, e.Name)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d file(s)\n", len(entries))
			return nil
		},
	}
}

func newCatalogListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			kindFlag, _ := cmd.Flags().GetString("kind")

			kind, err := catalog.ParseKind(kindFlag)
			if err != nil {
				return err
			}
			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			cat, err := openCatalog(ctx, root, cfg)
			if err != nil {
				return err
			}
			defer cat.Close()

			infos, err := cat.List(ctx, kind)
			if err != nil {
				return err
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"entries": infos,
					"count":   len(infos),
				})
			}

			if len(infos) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Catalog is empty. Run 'hddl catalog import' to add files.")
				return nil
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Catalog entries (%d):\n\n", len(infos))
			for i, info := range infos {
				fmt.Fprintf(out, "%d. [%s] %s\n", i+1, info.Kind, info.Name)
				fmt.Fprintf(out, "   Scenario: %s, %d events\n", valueOrDefault(info.ScenarioID, "-"), info.Events)
				if info.Source != "" {
					fmt.Fprintf(out, "   Source:   %s\n", info.Source)
				}
				fmt.Fprintf(out, "   Updated:  %s\n", info.UpdatedAt.Local().Format("2006-01-02 15:04"))
			}
			return nil
		},
	}

	cmd.Flags().String("kind", "", "Only list this kind: scenario or patch")

	return cmd
}

func newCatalogShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Print a catalog entry as scenario JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")

			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			cat, err := openCatalog(ctx, root, cfg)
			if err != nil {
				return err
			}
			defer cat.Close()

			e, err := cat.Get(ctx, args[0])
			if err != nil {
				if errors.Is(err, catalog.ErrNotFound) {
					return fmt.Errorf("no catalog entry named %q", args[0])
				}
				return err
			}

			data, err := models.Marshal(e.Scenario)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newCatalogRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a catalog entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			cat, err := openCatalog(ctx, root, cfg)
			if err != nil {
				return err
			}
			defer cat.Close()

			if err := cat.Remove(ctx, args[0]); err != nil {
				if errors.Is(err, catalog.ErrNotFound) {
					return fmt.Errorf("no catalog entry named %q", args[0])
				}
				return err
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"status": "removed", "name": args[0]})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
			return nil
		},
	}
}

func newCatalogClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every catalog entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			yes, _ := cmd.Flags().GetBool("yes")

			if !yes {
				return fmt.Errorf("refusing to clear the catalog without --yes")
			}

			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			cat, err := openCatalog(ctx, root, cfg)
			if err != nil {
				return err
			}
			defer cat.Close()

			if err := cat.Clear(ctx); err != nil {
				return err
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"status": "cleared"})
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Catalog cleared")
			return nil
		},
	}

	cmd.Flags().Bool("yes", false, "Confirm removal of every entry")

	return cmd
}
