package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ericksa/clauseguard/internal/retrieval"
)

// referenceClause is one record of an index source file.
type referenceClause struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	ContractType  string `json:"contract_type"`
	ClauseType    string `json:"clause_type"`
	FairnessScore *int   `json:"fairness_score,omitempty"`
}

func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index <file.json>",
		Short: "Load standard reference clauses into the index",
		Long: `Embed the reference clauses in a JSON file of the form
[{"id": "...", "text": "...", "contract_type": "...", "clause_type": "...", "fairness_score": 8}]
and store them in the configured index. Records with an existing id are replaced.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return fmt.Errorf("read reference clauses: %w", err)
			}
			var records []referenceClause
			if err := json.Unmarshal(data, &records); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			if cfg.Retrieval.IndexPath == "" {
				return errors.New("retrieval index_path is required to build an index")
			}
			embedder, err := retrieval.NewEmbedder(cfg.Retrieval)
			if err != nil {
				return err
			}

			if err := os.MkdirAll(filepath.Dir(cfg.Retrieval.IndexPath), 0o755); err != nil {
				return fmt.Errorf("create index directory: %w", err)
			}
			db, err := sql.Open("sqlite3", cfg.Retrieval.IndexPath)
			if err != nil {
				return fmt.Errorf("open index: %w", err)
			}
			idx := retrieval.NewSQLiteIndex(db, embedder)
			defer idx.Close()

			ctx := cmd.Context()
			if err := idx.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("create index schema: %w", err)
			}
			for i, rec := range records {
				if rec.Text == "" {
					return fmt.Errorf("record %d has no text", i)
				}
				id := rec.ID
				if id == "" {
					id = fmt.Sprintf("clause-%d", i)
				}
				meta := map[string]any{
					"contract_type": rec.ContractType,
					"clause_type":   rec.ClauseType,
				}
				if rec.FairnessScore != nil {
					meta["fairness_score"] = *rec.FairnessScore
				}
				if err := idx.Upsert(ctx, id, rec.Text, meta); err != nil {
					return err
				}
			}

			n, err := idx.Count(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d clauses into %s (%d total)\n", len(records), cfg.Retrieval.IndexPath, n)
			return nil
		},
	}
}
