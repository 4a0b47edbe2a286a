package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ticket-bridge",
	Short: "Support tickets bridge: Telegram chats and Discord ticket channels",
	RunE:  runServe,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(reindexSearchCmd)
}
