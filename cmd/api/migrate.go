package main

import (
	"fmt"

	"species-catalog/internal/database"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down|status]",
	Short:     "Apply, roll back or inspect the database schema",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down", "status"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		dbService, err := database.New(cfg.Database)
		if err != nil {
			return err
		}
		defer dbService.Close()

		action := "up"
		if len(args) == 1 {
			action = args[0]
		}

		switch action {
		case "up":
			return database.RunMigrations(dbService.DB(), log)
		case "down":
			return database.RollbackMigration(dbService.DB(), log)
		case "status":
			return database.GetMigrationStatus(dbService.DB())
		}
		return fmt.Errorf("unknown migrate action %q", action)
	},
}
