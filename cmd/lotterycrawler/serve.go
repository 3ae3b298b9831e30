package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/lottery-crawler/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serves the HTTP API and runs the crawl and cleanup schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			app, err := server.Build(cmd.Context(), e.cfg, e.logger)
			if err != nil {
				return fmt.Errorf("build application: %w", err)
			}
			defer app.Close()
			return app.Run(cmd.Context())
		},
	}
}
