package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ericksa/clauseguard/internal/analyzer"
	"github.com/ericksa/clauseguard/pkg/mcp"
)

func newBatchCmd() *cobra.Command {
	var (
		noRetrieval bool
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "batch <file.json>",
		Short: "Analyze a JSON file of clauses",
		Long: `Analyze every clause in a JSON file of the form [{"text": "...", "category": "..."}].
Clauses are analyzed concurrently and reported in file order. Use "-" to read
the file from standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return fmt.Errorf("read clauses: %w", err)
			}
			var clauses []analyzer.ClauseInput
			if err := json.Unmarshal(data, &clauses); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			in := mcp.AnalyzeClausesInput{Clauses: clauses}
			if noRetrieval {
				in.UseRetrieval = new(bool)
			}
			res, err := a.Tools.AnalyzeClauses(cmd.Context(), in)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, res)
			}
			for _, r := range res.Results {
				if err := analyzer.WriteReport(out, r); err != nil {
					return err
				}
			}
			writeSummary(out, res)
			return nil
		},
	}

	cmd.Flags().BoolVar(&noRetrieval, "no-retrieval", false, "Skip reference clause context")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print run ID, results and summary as JSON")
	return cmd
}

func writeSummary(w io.Writer, res mcp.BatchResult) {
	s := res.Summary
	fmt.Fprintf(w, "\nRUN %s\n", res.RunID)
	fmt.Fprintf(w, "  Clauses: %d (%d failed)\n", s.Total, s.Failed)
	for _, k := range sortedKeys(s.ByLevel) {
		fmt.Fprintf(w, "  Risk %s: %d\n", k, s.ByLevel[k])
	}
	for _, k := range sortedKeys(s.ByAction) {
		fmt.Fprintf(w, "  Action %s: %d\n", k, s.ByAction[k])
	}
	fmt.Fprintf(w, "  Dealbreakers: %d\n", s.Dealbreakers)
	fmt.Fprintf(w, "  Highest score: %d/10\n", s.HighestScore)
	if res.ArchiveKey != "" {
		fmt.Fprintf(w, "  Archived: %s\n", res.ArchiveKey)
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
