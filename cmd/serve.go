package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/psds-microservice/ticket-bridge/internal/application"
	"github.com/psds-microservice/ticket-bridge/internal/config"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run Discord and Telegram bots with the HTTP API (default)",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bridge, err := application.NewBridge(ctx, cfg)
	if err != nil {
		return err
	}
	return bridge.Run(ctx)
}
