package anthropic

import (
	"context"
	"io"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"

	"miniagents/internal/message"
)

func TestBuildParamsPutsSystemMessagesAside(t *testing.T) {
	cfg := Config{Model: "claude-3-5-sonnet-latest", System: "be terse"}
	history := []message.Message{
		message.New(message.RoleUser, "hi"),
		message.New(message.RoleSystem, "ignore bees"),
		message.New(message.RoleAssistant, "hello"),
	}

	params, err := buildParams(cfg, history)
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("expected system messages stripped out, got %d messages", len(params.Messages))
	}
	if len(params.System) != 1 || params.System[0].Text != "be terse\n\nignore bees" {
		t.Fatalf("expected combined system prompt, got %+v", params.System)
	}
}

func TestBuildParamsInjectsFakeFirstUserMessage(t *testing.T) {
	cfg := Config{Model: "claude-3-5-sonnet-latest"}
	history := []message.Message{
		message.New(message.RoleAssistant, "hello, I'm first"),
	}

	params, err := buildParams(cfg, history)
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("expected a fake leading user turn, got %d messages", len(params.Messages))
	}
}

func TestBuildParamsMergesConsecutiveSameRoleTurns(t *testing.T) {
	cfg := Config{Model: "claude-3-5-sonnet-latest"}
	history := []message.Message{
		message.New(message.RoleUser, "first"),
		message.New(message.RoleUser, "second"),
		message.New(message.RoleAssistant, "reply"),
	}

	params, err := buildParams(cfg, history)
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("expected consecutive user turns merged into one, got %d messages", len(params.Messages))
	}
}

// fakeMessageStream satisfies the messageStream interface without touching
// the network, yielding a fixed sequence of events.
type fakeMessageStream struct {
	events []anthropic.MessageStreamEventUnion
	idx    int
	err    error
}

func (f *fakeMessageStream) Next() bool {
	if f.idx >= len(f.events) {
		return false
	}
	f.idx++
	return true
}

func (f *fakeMessageStream) Current() anthropic.MessageStreamEventUnion {
	return f.events[f.idx-1]
}

func (f *fakeMessageStream) Err() error { return f.err }

func (f *fakeMessageStream) Close() error { return nil }

func TestWholeIteratorYieldsOnce(t *testing.T) {
	it := &wholeIterator{text: "entire reply"}

	tok, err := it.Next(context.Background())
	if err != nil || tok != "entire reply" {
		t.Fatalf("unexpected first Next: %q, %v", tok, err)
	}
	_, err = it.Next(context.Background())
	if err != io.EOF {
		t.Fatalf("expected io.EOF on second Next, got %v", err)
	}
}

func TestStreamIteratorPropagatesStreamError(t *testing.T) {
	boom := io.ErrUnexpectedEOF
	stream := &fakeMessageStream{err: boom}
	it := &streamIterator{stream: stream, meta: &metadataHolder{data: map[string]any{}}}

	_, err := it.Next(context.Background())
	if err != boom {
		t.Fatalf("expected %v, got %v", boom, err)
	}
}
