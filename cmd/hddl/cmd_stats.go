package main

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/nvandessel/hddl-sim/internal/models"
	"github.com/nvandessel/hddl-sim/internal/stats"
	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <file>",
		Short: "Summarize a scenario file",
		Long: `Summarize a scenario file: event counts by type, boundary kinds,
embedding types, hour span, fleets and steward roles.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			sc, err := models.ReadFile(args[0])
			if err != nil {
				return err
			}
			sum := stats.Summarize(sc)

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), sum)
			}
			printSummary(cmd.OutOrStdout(), sum)
			return nil
		},
	}
}

func printSummary(w io.Writer, s stats.Summary) {
	title := s.ScenarioID
	if s.Title != "" {
		title = fmt.Sprintf("%s (%s)", s.Title, s.ScenarioID)
	}
	fmt.Fprintf(w, "Scenario: %s\n", title)
	fmt.Fprintf(w, "Duration: %sh\n", models.FormatHour(s.DurationHours))
	fmt.Fprintf(w, "Events:   %d (hours %s to %s", s.Events, models.FormatHour(s.FirstHour), models.FormatHour(s.LastHour))
	if s.OutOfRange > 0 {
		fmt.Fprintf(w, ", %d after end", s.OutOfRange)
	}
	fmt.Fprintln(w, ")")

	printCounts(w, "By type", s.EventsByType)
	printCounts(w, "Boundary kinds", s.BoundaryKinds)
	if s.UnknownKinds > 0 {
		fmt.Fprintf(w, "  %d boundary interaction(s) with an unrecognized kind\n", s.UnknownKinds)
	}
	printCounts(w, "Embedding types", s.EmbeddingTypes)
	fmt.Fprintf(w, "Baseline embeddings: %d\n", s.Baseline)

	fmt.Fprintf(w, "\nEnvelopes: %d\n", s.Envelopes)
	fmt.Fprintf(w, "Fleets:    %d (%d agents)\n", len(s.Fleets), s.Agents)
	for _, f := range s.Fleets {
		fmt.Fprintf(w, "  %-30s %d agent(s)\n", f.StewardRole, f.Agents)
	}
	if len(s.StewardRoles) > 0 {
		fmt.Fprintf(w, "Steward roles: %s\n", strings.Join(s.StewardRoles, ", "))
	}
	if s.StewardLimitExceeded {
		fmt.Fprintf(w, "  exceeds the limit of %d steward roles\n", models.MaxStewardRoles)
	}
}

func printCounts(w io.Writer, label string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	fmt.Fprintf(w, "%s:\n", label)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-24s %d\n", k, counts[k])
	}
}
