package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/easyfix/easyfix-go/internal/graph"
)

var importDir string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load the bug graph from CSV exports",
	Long: `Import reads bugs.csv, topics.csv, developers.csv, and optionally
similar.csv from the given directory, ensures the graph constraints and
full-text index, and merges nodes and relationships in batched
transactions. Re-running with unchanged input changes nothing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Neo4j.URI == "" || cfg.Neo4j.User == "" || cfg.Neo4j.Password == "" {
			return fmt.Errorf("missing Neo4j configuration (NEO4J_URI, NEO4J_USER, NEO4J_PASSWORD)")
		}

		connectCtx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		client, err := graph.NewClient(connectCtx,
			cfg.Neo4j.URI, cfg.Neo4j.User, cfg.Neo4j.Password, cfg.Neo4j.Database)
		if err != nil {
			return fmt.Errorf("graph client: %w", err)
		}
		defer client.Close(context.Background())

		importer := graph.NewImporter(client, graph.DefaultBatchConfig())

		start := time.Now()
		stats, err := importer.Run(cmd.Context(), importDir)
		if err != nil {
			return err
		}

		logger.WithFields(map[string]any{
			"bugs":       stats.Bugs,
			"topics":     stats.Topics,
			"developers": stats.Developers,
			"edges":      stats.Edges,
			"took":       time.Since(start).Round(time.Millisecond).String(),
		}).Info("Import complete")
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importDir, "dir", "out_lda", "directory containing the CSV exports")
	rootCmd.AddCommand(importCmd)
}
