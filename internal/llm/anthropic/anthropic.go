// Package anthropic wires Anthropic's Messages API into a MiniAgent,
// translating the original Python streaming token producer
// (miniagents/ext/llm/anthropic.py) into a promise.Producer[string]
// factory. Anthropic requires conversations to start with a user turn and
// to strictly alternate roles, unlike OpenAI; buildParams enforces both
// constraints the way _fix_message_dicts does.
package anthropic

import (
	"context"
	"fmt"
	"io"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"miniagents/internal/agent"
	"miniagents/internal/message"
	"miniagents/internal/promise"
)

// Config configures the Anthropic-backed assistant agent.
type Config struct {
	APIKey string
	Model  string
	Stream bool
	System string

	// MaxTokens is required by the Anthropic API, unlike OpenAI's.
	MaxTokens int64

	// FakeFirstUserMessage is injected as a leading user turn when history
	// begins with a non-user message, matching fake_first_user_message in
	// the original streamer.
	FakeFirstUserMessage string

	// MessageDelimiter joins consecutive same-role messages when collapsing
	// them into the single turn Anthropic requires.
	MessageDelimiter string
}

const (
	defaultFakeFirstUserMessage = "/start"
	defaultMessageDelimiter     = "\n\n"
)

// NewAgent builds a MiniAgent that sends the accumulated dialog history to
// Anthropic and replies with a streamed (or, if Stream is false,
// whole-at-once) assistant Message.
func NewAgent(cfg Config) *agent.MiniAgent {
	if cfg.FakeFirstUserMessage == "" {
		cfg.FakeFirstUserMessage = defaultFakeFirstUserMessage
	}
	if cfg.MessageDelimiter == "" {
		cfg.MessageDelimiter = defaultMessageDelimiter
	}

	client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))

	return agent.New("ANTHROPIC_AGENT", func(ctx context.Context, ictx *agent.InteractionContext) error {
		history, err := ictx.CollectMessages(ctx)
		if err != nil {
			return fmt.Errorf("collecting dialog history: %w", err)
		}
		params, err := buildParams(cfg, history)
		if err != nil {
			return fmt.Errorf("preparing anthropic request: %w", err)
		}

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

// turn is one already-collapsed role/content pair ready to send upstream.
type turn struct {
	role    anthropic.MessageParamRole
	content string
}

// buildParams maps dialog history onto anthropic.MessageNewParams, applying
// the same three fixups as _fix_message_dicts/the trailing-system-message
// handling in anthropic.py: system messages are pulled out of the turn list
// entirely (Anthropic takes system as a separate top-level parameter),
// the first turn is forced to be a user turn, and consecutive same-role
// turns are merged rather than sent as separate messages (Anthropic
// rejects back-to-back turns with the same role).
func buildParams(cfg Config, history []message.Message) (anthropic.MessageNewParams, error) {
	if cfg.MessageDelimiter == "" {
		cfg.MessageDelimiter = defaultMessageDelimiter
	}
	var turns []turn
	var systemParts []string

	for _, m := range history {
		param := m.ToChatParam()
		switch message.Role(param.Role) {
		case message.RoleSystem:
			systemParts = append(systemParts, param.Content)
		case message.RoleAssistant:
			turns = appendTurn(turns, anthropic.MessageParamRoleAssistant, param.Content, cfg.MessageDelimiter)
		default:
			turns = appendTurn(turns, anthropic.MessageParamRoleUser, param.Content, cfg.MessageDelimiter)
		}
	}

	if len(turns) > 0 && turns[0].role != anthropic.MessageParamRoleUser {
		turns = append([]turn{{role: anthropic.MessageParamRoleUser, content: cfg.FakeFirstUserMessage}}, turns...)
	}

	system := cfg.System
	for _, part := range systemParts {
		if system == "" {
			system = part
		} else {
			system += cfg.MessageDelimiter + part
		}
	}

	messages := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		switch t.role {
		case anthropic.MessageParamRoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(t.content)))
		}
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(cfg.Model),
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return params, nil
}

func appendTurn(turns []turn, role anthropic.MessageParamRole, content, delimiter string) []turn {
	if len(turns) > 0 && turns[len(turns)-1].role == role {
		turns[len(turns)-1].content += delimiter + content
		return turns
	}
	return append(turns, turn{role: role, content: content})
}

// metadataHolder carries response metadata (model, stop reason) from
// whichever iterator drove production to the packager that reads it after
// the stream is exhausted, the Go shape of anthropic_final_message.model_dump
// in the original streamer.
type metadataHolder struct {
	data map[string]any
}

// messageStream is the subset of *anthropic.MessageStream this package
// needs, declared locally so callers never have to reach into the SDK's
// streaming internals directly.
type messageStream interface {
	Next() bool
	Current() anthropic.MessageStreamEventUnion
	Err() error
	Close() error
}

type streamIterator struct {
	stream messageStream
	meta   *metadataHolder
}

func newStreamIterator(ctx context.Context, client anthropic.Client, params anthropic.MessageNewParams, meta *metadataHolder) (promise.PieceIterator[string], error) {
	stream := client.Messages.NewStreaming(ctx, params)
	return &streamIterator{stream: stream, meta: meta}, nil
}

func (it *streamIterator) Next(ctx context.Context) (string, error) {
	for it.stream.Next() {
		event := it.stream.Current()
		switch variant := event.AsAny().(type) {
		case anthropic.MessageStartEvent:
			it.meta.data["model"] = string(variant.Message.Model)
		case anthropic.ContentBlockDeltaEvent:
			if variant.Delta.Text != "" {
				return variant.Delta.Text, nil
			}
		case anthropic.MessageDeltaEvent:
			if variant.Delta.StopReason != "" {
				it.meta.data["stop_reason"] = string(variant.Delta.StopReason)
			}
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

func newWholeIterator(ctx context.Context, client anthropic.Client, params anthropic.MessageNewParams, meta *metadataHolder) (promise.PieceIterator[string], error) {
	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(resp.Content) != 1 {
		return nil, fmt.Errorf("exactly one TextBlock was expected from Anthropic, but %d were returned instead", len(resp.Content))
	}
	meta.data["model"] = string(resp.Model)
	meta.data["stop_reason"] = string(resp.StopReason)
	return &wholeIterator{text: resp.Content[0].Text}, nil
}

func (it *wholeIterator) Next(ctx context.Context) (string, error) {
	if it.taken {
		return "", io.EOF
	}
	it.taken = true
	return it.text, nil
}
