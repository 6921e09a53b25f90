// Package openai wires OpenAI's chat-completions API into a MiniAgent,
// translating the original Python streaming token producer
// (miniagents/ext/llm/openai.py) into a promise.Producer[string] factory.
package openai

import (
	"context"
	"fmt"
	"io"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"miniagents/internal/agent"
	"miniagents/internal/message"
	"miniagents/internal/promise"
)

// Config configures the OpenAI-backed assistant agent.
type Config struct {
	APIKey string
	Model  string
	Stream bool
	System string
}

// NewAgent builds a MiniAgent that sends the accumulated dialog history to
// OpenAI and replies with a streamed (or, if Stream is false, whole-at-once)
// assistant Message. Only a single choice is ever requested: MiniAgents has
// no notion of multi-choice upstream responses, matching openai.py's
// explicit n=1 enforcement.
func NewAgent(cfg Config) *agent.MiniAgent {
	client := openai.NewClient(option.WithAPIKey(cfg.APIKey))

	return agent.New("OPENAI_AGENT", func(ctx context.Context, ictx *agent.InteractionContext) error {
		history, err := ictx.CollectMessages(ctx)
		if err != nil {
			return fmt.Errorf("collecting dialog history: %w", err)
		}
		params := buildParams(cfg, history)

		meta := &metadataHolder{data: map[string]any{}}
		producer := func() (promise.PieceIterator[string], error) {
			if cfg.Stream {
				return newStreamIterator(ctx, client, params, meta)
			}
			return newWholeIterator(ctx, client, params, meta)
		}
		packager := func(ctx context.Context, pieces promise.PieceSource[string]) (message.Message, error) {
			msg, err := agent.AssembleMessage(ctx, message.RoleAssistant, pieces)
			if err != nil {
				return message.Message{}, err
			}
			msg.Metadata = meta.data
			return msg, nil
		}

		ictx.Reply(promise.New(producer, packager, true))
		return nil
	})
}

func buildParams(cfg Config, history []message.Message) openai.ChatCompletionNewParams {
	var msgs []openai.ChatCompletionMessageParamUnion
	if cfg.System != "" {
		msgs = append(msgs, openai.SystemMessage(cfg.System))
	}
	for _, m := range history {
		param := m.ToChatParam()
		switch message.Role(param.Role) {
		case message.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(param.Content))
		case message.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(param.Content))
		default:
			msgs = append(msgs, openai.UserMessage(param.Content))
		}
	}
	return openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(cfg.Model),
		Messages: msgs,
		N:        openai.Int(1),
	}
}

// metadataHolder carries response metadata (model, finish reason, role)
// from whichever iterator drove production to the packager that reads it
// after the stream is exhausted — the Go shape of _merge_openai_dicts'
// accumulation in the original openai.py.
type metadataHolder struct {
	data map[string]any
}

// chatStream is the subset of *ssestream.Stream[openai.ChatCompletionChunk]
// this package needs; declaring it locally avoids importing the ssestream
// package just for a type name.
type chatStream interface {
	Next() bool
	Current() openai.ChatCompletionChunk
	Err() error
	Close() error
}

type streamIterator struct {
	stream chatStream
	meta   *metadataHolder
}

func newStreamIterator(ctx context.Context, client openai.Client, params openai.ChatCompletionNewParams, meta *metadataHolder) (promise.PieceIterator[string], error) {
	stream := client.Chat.Completions.NewStreaming(ctx, params)
	return &streamIterator{stream: stream, meta: meta}, nil
}

func (it *streamIterator) Next(ctx context.Context) (string, error) {
	for it.stream.Next() {
		chunk := it.stream.Current()
		if len(chunk.Choices) != 1 {
			return "", fmt.Errorf("exactly one choice was expected from OpenAI, but %d were returned instead", len(chunk.Choices))
		}
		choice := chunk.Choices[0]
		if choice.Delta.Role != "" {
			it.meta.data["role"] = choice.Delta.Role
		}
		if chunk.Model != "" {
			it.meta.data["model"] = chunk.Model
		}
		if choice.FinishReason != "" {
			it.meta.data["finish_reason"] = string(choice.FinishReason)
		}
		if token := choice.Delta.Content; token != "" {
			return token, nil
		}
	}
	if err := it.stream.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

type wholeIterator struct {
	text  string
	taken bool
}

func newWholeIterator(ctx context.Context, client openai.Client, params openai.ChatCompletionNewParams, meta *metadataHolder) (promise.PieceIterator[string], error) {
	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) != 1 {
		return nil, fmt.Errorf("exactly one choice was expected from OpenAI, but %d were returned instead", len(resp.Choices))
	}
	meta.data["role"] = string(resp.Choices[0].Message.Role)
	meta.data["model"] = resp.Model
	meta.data["finish_reason"] = string(resp.Choices[0].FinishReason)
	return &wholeIterator{text: resp.Choices[0].Message.Content}, nil
}

func (it *wholeIterator) Next(ctx context.Context) (string, error) {
	if it.taken {
		return "", io.EOF
	}
	it.taken = true
	return it.text, nil
}
