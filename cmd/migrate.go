package cmd

import (
	"fmt"
	"log"

	"github.com/psds-microservice/ticket-bridge/internal/config"
	"github.com/psds-microservice/ticket-bridge/internal/database"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations (postgres store)",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE:  runMigrateUp,
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.StoreDriver != config.StorePostgres {
		log.Printf("migrate up: nothing to do for STORE_DRIVER=%s", cfg.StoreDriver)
		return nil
	}
	if err := database.MigrateUp(cfg.DatabaseURL()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Println("migrate up: ok")
	return nil
}
