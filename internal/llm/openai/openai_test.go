package openai

import (
	"context"
	"io"
	"testing"

	"github.com/openai/openai-go/v2"

	"miniagents/internal/message"
)

func TestBuildParamsMapsRolesAndForcesSingleChoice(t *testing.T) {
	cfg := Config{Model: "gpt-4o-mini", System: "be terse"}
	history := []message.Message{
		message.New(message.RoleUser, "hi"),
		message.New(message.RoleAssistant, "hello"),
		message.New(message.RoleSystem, "ignore bees"),
	}

	params := buildParams(cfg, history)

	if string(params.Model) != "gpt-4o-mini" {
		t.Fatalf("unexpected model: %v", params.Model)
	}
	if params.N.Value != 1 {
		t.Fatalf("expected N to be pinned to 1, got %+v", params.N)
	}
	// system prompt + 3 history messages
	if len(params.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(params.Messages))
	}
}

// fakeChatStream satisfies the chatStream interface without touching the
// network, yielding a fixed sequence of chunks.
type fakeChatStream struct {
	chunks []openai.ChatCompletionChunk
	idx    int
	err    error
}

func (f *fakeChatStream) Next() bool {
	if f.idx >= len(f.chunks) {
		return false
	}
	f.idx++
	return true
}

func (f *fakeChatStream) Current() openai.ChatCompletionChunk {
	return f.chunks[f.idx-1]
}

func (f *fakeChatStream) Err() error { return f.err }

func (f *fakeChatStream) Close() error { return nil }

func chunkWithContent(model, content, finish string) openai.ChatCompletionChunk {
	chunk := openai.ChatCompletionChunk{Model: model}
	choice := openai.ChatCompletionChunkChoice{}
	choice.Delta.Content = content
	choice.Delta.Role = "assistant"
	choice.FinishReason = finish
	chunk.Choices = []openai.ChatCompletionChunkChoice{choice}
	return chunk
}

func TestStreamIteratorYieldsTokensAndMetadata(t *testing.T) {
	stream := &fakeChatStream{chunks: []openai.ChatCompletionChunk{
		chunkWithContent("gpt-4o-mini", "hel", ""),
		chunkWithContent("gpt-4o-mini", "lo", "stop"),
	}}
	meta := &metadataHolder{data: map[string]any{}}
	it := &streamIterator{stream: stream, meta: meta}

	var got string
	for {
		tok, err := it.Next(context.Background())
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got += tok
	}

	if got != "hello" {
		t.Fatalf("expected %q, got %q", "hello", got)
	}
	if meta.data["model"] != "gpt-4o-mini" || meta.data["finish_reason"] != "stop" || meta.data["role"] != "assistant" {
		t.Fatalf("unexpected metadata: %+v", meta.data)
	}
}

func TestStreamIteratorPropagatesStreamError(t *testing.T) {
	boom := io.ErrUnexpectedEOF
	stream := &fakeChatStream{err: boom}
	it := &streamIterator{stream: stream, meta: &metadataHolder{data: map[string]any{}}}

	_, err := it.Next(context.Background())
	if err != boom {
		t.Fatalf("expected %v, got %v", boom, err)
	}
}

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
