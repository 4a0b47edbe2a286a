package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/psds-microservice/ticket-bridge/internal/application"
	"github.com/psds-microservice/ticket-bridge/internal/config"
	"github.com/psds-microservice/ticket-bridge/internal/importer"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "Import archived transcripts (<number>.json) as closed tickets",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	ctx := context.Background()
	store, err := application.OpenStore(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer store.Close(ctx)

	res, err := importer.New(store).ImportDir(ctx, args[0])
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	log.Printf("import: imported %d, skipped %d, failed %d, counter >= %d", res.Imported, res.Skipped, res.Failed, res.MaxID)
	return nil
}
