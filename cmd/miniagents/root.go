package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"miniagents/internal/config"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "miniagents",
		Short:         "Compose streaming LLM agents into replayable dialogs",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newReplayCmd())
	return cmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}
