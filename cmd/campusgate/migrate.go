package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/campusgate/internal/db"
)

func migrateCommand() *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQLite migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			// Open applies migrations itself.
			sqlDB, err := db.Open(ctx, db.Config{Path: cfg.Store.DBPath, Env: cfg.Env})
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			if seed {
				if err := db.SeedDev(ctx, sqlDB); err != nil {
					return fmt.Errorf("seed: %w", err)
				}
			}
			logger.Info("database ready", "path", cfg.Store.DBPath, "seeded", seed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "insert development gates and subjects")
	return cmd
}
