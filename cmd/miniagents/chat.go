package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"miniagents/internal/agent"
	"miniagents/internal/chathistory"
	"miniagents/internal/config"
	"miniagents/internal/gateway"
	"miniagents/internal/llm/anthropic"
	"miniagents/internal/llm/openai"
	"miniagents/internal/logging"
)

func newChatCmd() *cobra.Command {
	var serve bool
	var systemPrompt string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive console dialog with the configured LLM agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), serve, systemPrompt)
		},
	}
	cmd.Flags().BoolVar(&serve, "serve", false, "also start the WebSocket gateway so browsers can watch the dialog live")
	cmd.Flags().StringVar(&systemPrompt, "system", "", "system prompt for the assistant agent")
	return cmd
}

func runChat(ctx context.Context, serve bool, systemPrompt string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	defer log.Sync()

	history, err := chathistory.NewStore(cfg.ChatHistoryPath, nil)
	if err != nil {
		return fmt.Errorf("opening chat history: %w", err)
	}
	defer history.Close()

	assistant, err := buildAssistant(cfg, systemPrompt)
	if err != nil {
		return err
	}

	user := agent.NewConsoleUserAgent(history)

	if serve {
		gw, err := gateway.New(cfg, log)
		if err != nil {
			return fmt.Errorf("starting gateway: %w", err)
		}
		assistant = publishingAgent(assistant, gw)

		go func() {
			if err := gw.ListenAndServe(); err != nil {
				log.Error("gateway stopped", logging.Error(err))
			}
		}()
		defer gw.Shutdown(ctx)
		log.Info("gateway listening", logging.String("addr", cfg.GatewayAddr))
	}

	recordingAssistant := recordingAgent(assistant, history)

	if err := agent.RunDialog(ctx, user, recordingAssistant); err != nil {
		return fmt.Errorf("dialog: %w", err)
	}
	return nil
}

func buildAssistant(cfg *config.Config, systemPrompt string) (*agent.MiniAgent, error) {
	switch cfg.Provider {
	case "anthropic":
		return anthropic.NewAgent(anthropic.Config{
			APIKey: cfg.AnthropicKey,
			Model:  cfg.AnthropicModel,
			Stream: cfg.StreamTokens,
			System: systemPrompt,
		}), nil
	case "openai":
		return openai.NewAgent(openai.Config{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.OpenAIModel,
			Stream: cfg.StreamTokens,
			System: systemPrompt,
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// publishingAgent wraps inner so every reply it registers is also published
// to gw, letting any number of browser tabs watch the same turn stream
// live while RunDialog separately collects its whole.
func publishingAgent(inner *agent.MiniAgent, gw *gateway.Gateway) *agent.MiniAgent {
	return agent.New(inner.Alias, func(ctx context.Context, ictx *agent.InteractionContext) error {
		if err := inner.Run(ctx, ictx); err != nil {
			return err
		}
		if reply := ictx.CurrentReply(); reply != nil {
			gw.Publish(reply)
		}
		return nil
	})
}

// recordingAgent wraps inner so its collected reply is appended to history
// after the turn completes, mirroring what the console user agent already
// does for its own turns.
func recordingAgent(inner *agent.MiniAgent, history *chathistory.Store) *agent.MiniAgent {
	return agent.New(inner.Alias, func(ctx context.Context, ictx *agent.InteractionContext) error {
		if err := inner.Run(ctx, ictx); err != nil {
			return err
		}
		reply := ictx.CurrentReply()
		if reply == nil {
			return nil
		}
		msg, err := reply.CollectWhole(ctx)
		if err != nil {
			return err
		}
		return history.Record(ctx, msg)
	})
}
