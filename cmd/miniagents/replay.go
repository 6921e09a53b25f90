package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"miniagents/internal/chathistory"
)

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay [path]",
		Short: "Replay a markdown chat history file by iterating its promise",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "CHAT.md"
			if len(args) == 1 {
				path = args[0]
			} else {
				cfg, err := loadConfig()
				if err == nil {
					path = cfg.ChatHistoryPath
				}
			}
			return runReplay(cmd, path)
		},
	}
	return cmd
}

func runReplay(cmd *cobra.Command, path string) error {
	p := chathistory.Open(path)
	cur := p.Iterate()
	for {
		msg, err := cur.Next(cmd.Context())
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("replaying %s: %w", path, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "## %s\n\n%s\n\n", msg.Role, msg.Text)
	}
}
