package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/easyfix/easyfix-go/internal/audit"
	"github.com/easyfix/easyfix-go/internal/graph"
	"github.com/easyfix/easyfix-go/internal/identity"
	"github.com/easyfix/easyfix-go/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		gateway, err := identity.NewClient(
			cfg.Firebase.APIKey, cfg.Firebase.ProjectID, cfg.Firebase.ServiceToken)
		if err != nil {
			return fmt.Errorf("identity gateway: %w", err)
		}

		graphClient, err := graph.NewClient(ctx,
			cfg.Neo4j.URI, cfg.Neo4j.User, cfg.Neo4j.Password, cfg.Neo4j.Database)
		if err != nil {
			return fmt.Errorf("graph client: %w", err)
		}
		defer graphClient.Close(context.Background())

		recorder, err := audit.NewPostgresRecorder(ctx, cfg.Audit.PostgresDSN)
		if err != nil {
			return fmt.Errorf("audit recorder: %w", err)
		}
		defer recorder.Close()

		srv := server.New(cfg, gateway, graphClient, recorder, Version)
		return srv.Run()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
