package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/lottery-crawler/internal/server"
)

func newCrawlCmd() *cobra.Command {
	var (
		force bool
		codes []string
	)
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs one crawl pass over the configured lottery types",
		Long: `Runs the gate, fetch, normalize and save pipeline once for every
configured lottery type (or the ones given with --code) and prints the
per-type results as JSON. Exits non-zero if any type failed.`,
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

			orch := app.Orchestrator()
			if len(codes) == 0 {
				codes = orch.Codes()
			}
			summary := orch.Run(cmd.Context(), codes, force, e.cfg.Crawler.PageSize)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(summary); err != nil {
				return fmt.Errorf("encode summary: %w", err)
			}
			if !summary.OK() {
				return errors.New("one or more lottery types failed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "crawl even if a successful crawl already ran today")
	cmd.Flags().StringSliceVar(&codes, "code", nil, "lottery codes to crawl (default: crawler.codes)")
	return cmd
}

func newCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Backs up every draw and deletes those older than the retention window",
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

			res, err := app.Cleaner().Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("cleanup: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d rows before %s; backup: %s\n",
				res.DeletedRows, res.Cutoff.Format("2006-01-02"), res.BackupFile)
			return nil
		},
	}
}
