package main

import (
	"context"
	"path/filepath"
	"testing"

	"miniagents/internal/agent"
	"miniagents/internal/chathistory"
	"miniagents/internal/message"
)

func TestRecordingAgentAppendsCollectedReply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.md")
	store, err := chathistory.NewStore(path, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	inner := agent.New("ASSISTANT_AGENT", func(ctx context.Context, ictx *agent.InteractionContext) error {
		ictx.Reply(agent.ReplyText(message.RoleAssistant, "hello"))
		return nil
	})

	wrapped := recordingAgent(inner, store)
	ictx := agent.NewInteractionContext(nil)
	if err := wrapped.Run(context.Background(), ictx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	loaded, err := chathistory.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Text != "hello" {
		t.Fatalf("expected the assistant's reply recorded, got %+v", loaded)
	}
}
