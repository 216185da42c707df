package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ericksa/clauseguard/internal/analyzer"
	"github.com/ericksa/clauseguard/pkg/mcp"
)

func newAnalyzeCmd() *cobra.Command {
	var (
		category    string
		noRetrieval bool
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "analyze [clause text]",
		Short: "Analyze one clause",
		Long: `Analyze one contract clause and print the risk report. With no argument, or "-",
the clause is read from standard input.`,
		Args: cobra.MaximumNArgs(1),
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

			in := mcp.AnalyzeClauseInput{Clause: text, Category: category}
			if noRetrieval {
				in.UseRetrieval = new(bool)
			}
			res, err := a.Tools.AnalyzeClause(cmd.Context(), in)
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			return analyzer.WriteReport(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "Clause category, e.g. termination or payment")
	cmd.Flags().BoolVar(&noRetrieval, "no-retrieval", false, "Skip reference clause context")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the analysis as JSON")
	return cmd
}

func clauseText(cmd *cobra.Command, args []string) (string, error) {
	var text string
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read clause: %w", err)
		}
		text = string(data)
	} else {
		text = args[0]
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("clause text is required")
	}
	return text, nil
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
