package main

import (
	"fmt"

	"github.com/nvandessel/hddl-sim/internal/merge"
	"github.com/nvandessel/hddl-sim/internal/models"
	"github.com/nvandessel/hddl-sim/internal/session"
	"github.com/spf13/cobra"
)

func newApplyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply <scenario>",
		Short: "Apply catalog patches to a catalog scenario in order",
		Long: `Apply catalog patches to a catalog scenario in order.

Each patch is merged onto the result of the previous one and the scenario
is validated after every step. Import files first with 'hddl catalog import'.

Examples:
  hddl apply insurance --patch add-baseline --patch steward-memory
  hddl apply insurance --patch add-baseline -o merged.scenario.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			patches, _ := cmd.Flags().GetStringArray("patch")
			output, _ := cmd.Flags().GetString("output")

			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cmd, cfg)
			audit := openAudit(root, cfg)
			defer audit.Close()

			ctx := cmd.Context()
			cat, err := openCatalog(ctx, root, cfg)
			if err != nil {
				return err
			}
			defer cat.Close()

			sess := session.New(cat, session.Options{
				Merger:   merge.NewMerger(merge.Config{EnvelopePolicy: cfg.EnvelopePolicy(), Logger: logger}),
				Logger:   logger,
				AuditLog: audit,
			})
			if err := sess.Load(ctx, args[0]); err != nil {
				return fmt.Errorf("loading %s: %w", args[0], err)
			}

			outcomes := make([]session.Outcome, 0, len(patches))
			for _, name := range patches {
				outcome, err := sess.ApplyPatch(ctx, name)
				if err != nil {
					return fmt.Errorf("applying %s: %w", name, err)
				}
				outcomes = append(outcomes, outcome)
			}

			report, err := sess.Validate()
			if err != nil {
				return err
			}
			current := sess.Current()

			if output != "" {
				if err := models.WriteFile(output, current); err != nil {
					return err
				}
			}

			if jsonOut {
				result := map[string]any{
					"session_id": sess.ID(),
					"base":       args[0],
					"outcomes":   outcomes,
					"report":     report,
				}
				if output != "" {
					result["output"] = output
				}
				if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Loaded %s\n", args[0])
				for _, o := range outcomes {
					fmt.Fprintf(out, "Applied %s: %d events, %d error(s), %d warning(s)",
						o.Patch, o.Events, len(o.Report.Errors), len(o.Report.Warnings))
					if n := len(o.EnvelopeConflicts) + len(o.RekeyedEvents); n > 0 {
						fmt.Fprintf(out, ", %d envelope conflict(s), %d re-keyed event(s)", len(o.EnvelopeConflicts), len(o.RekeyedEvents))
					}
					fmt.Fprintln(out)
				}
				printFileReport(out, cmd.ErrOrStderr(), fileReportFor(args[0], current, report), false)
				if output != "" {
					fmt.Fprintf(out, "\nWrote %s\n", output)
				}
			}

			if !report.Valid() {
				return errValidationFailed
			}
			return nil
		},
	}

	cmd.Flags().StringArray("patch", nil, "Catalog patch to apply (repeatable, applied in order)")
	cmd.Flags().StringP("output", "o", "", "Write the resulting scenario to this file")

	return cmd
}
