package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/lottery-crawler/internal/config"
	pgstore "github.com/JakeFAU/lottery-crawler/internal/storage/postgres"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manages the Postgres schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Applies all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := postgresEnv(cmd)
			if err != nil {
				return err
			}
			changed, err := pgstore.MigrateUp(e.cfg.DB.DSN)
			if err != nil {
				return err
			}
			e.logger.Info("migrate up complete", zap.Bool("changed", changed))
			return nil
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Rolls back migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := postgresEnv(cmd)
			if err != nil {
				return err
			}
			if err := pgstore.MigrateDown(e.cfg.DB.DSN, steps); err != nil {
				return err
			}
			e.logger.Info("migrate down complete", zap.Int("steps", steps))
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Prints the current schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := postgresEnv(cmd)
			if err != nil {
				return err
			}
			st, err := pgstore.Status(e.cfg.DB.DSN)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t applied=%t\n", st.Version, st.Dirty, st.Applied)
			return nil
		},
	})
	return cmd
}

func postgresEnv(cmd *cobra.Command) (*env, error) {
	e, err := resolveEnv(cmd.Context())
	if err != nil {
		return nil, err
	}
	if e.cfg.DB.Driver != config.DriverPostgres {
		return nil, errors.New("migrations require db.driver=postgres")
	}
	return e, nil
}
