package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ericksa/clauseguard/internal/retrieval"
	"github.com/ericksa/clauseguard/pkg/mcp"
)

func newCompareCmd() *cobra.Command {
	var (
		category string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "compare [clause text]",
		Short: "Compare a clause with standard reference clauses",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := clauseText(cmd, args)
			if err != nil {
				return err
			}

			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Tools.CompareClause(cmd.Context(), mcp.CompareClauseInput{Clause: text, Category: category})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, res)
			}
			fmt.Fprintln(out, res.Summary)
			if !res.FoundAny {
				return nil
			}
			fmt.Fprintf(out, "\nAverage fairness: %.1f/10 (%d rated)\n", res.AverageFairness, res.RatedCount)
			for i, c := range res.Candidates {
				fmt.Fprintf(out, "\n%d. [%s / %s] fairness %s, similarity %.4f\n   %s\n",
					i+1, orNA(c.ContractType), orNA(c.ClauseCategory),
					retrieval.FormatRating(c.FairnessRating), c.SimilarityScore, c.Text)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "Clause category used as a search hint")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the comparison as JSON")
	return cmd
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
