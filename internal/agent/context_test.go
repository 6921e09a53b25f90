package agent

import (
	"context"
	"testing"

	"miniagents/internal/message"
)

func TestReplyTextAssemblesMessage(t *testing.T) {
	reply := ReplyText(message.RoleAssistant, "hello there")
	msg, err := reply.CollectWhole(context.Background())
	if err != nil {
		t.Fatalf("CollectWhole: %v", err)
	}
	if msg.Role != message.RoleAssistant {
		t.Fatalf("expected role assistant, got %q", msg.Role)
	}
	if msg.Text != "hello there" {
		t.Fatalf("expected text %q, got %q", "hello there", msg.Text)
	}
}

func TestInteractionContextCollectMessages(t *testing.T) {
	history := []message.Message{
		message.New(message.RoleUser, "hi"),
		message.New(message.RoleAssistant, "hello"),
	}
	ictx := newInteractionContext(historyPromise(history))

	msgs, err := ictx.CollectMessages(context.Background())
	if err != nil {
		t.Fatalf("CollectMessages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Text != "hi" || msgs[1].Text != "hello" {
		t.Fatalf("unexpected messages: %v", msgs)
	}
}
