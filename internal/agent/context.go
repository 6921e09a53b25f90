package agent

import (
	"context"
	"errors"
	"io"

	"miniagents/internal/message"
	"miniagents/internal/promise"
)

// Reply is a streamed assistant/user turn: a token-by-token promise whose
// packager assembles the final Message once the stream ends. Wrapping a
// reply as a promise (rather than a bare Message) is what lets a gateway
// consumer stream the same turn live while the dialog loop separately
// collects its whole.
type Reply = *promise.Promise[string, message.Message]

// InteractionContext is handed to a MiniAgent's Func for one turn. It
// exposes the accumulated dialog history as a replayable message promise
// and collects the single reply the agent produces.
type InteractionContext struct {
	input *promise.Promise[message.Message, []message.Message]
	reply Reply
}

func newInteractionContext(input *promise.Promise[message.Message, []message.Message]) *InteractionContext {
	return &InteractionContext{input: input}
}

// NewInteractionContext builds an InteractionContext seeded with history,
// for callers outside this package that need to drive a MiniAgent directly
// (wrapping agents, tests) rather than through RunDialog.
func NewInteractionContext(history []message.Message) *InteractionContext {
	return newInteractionContext(historyPromise(history))
}

// Messages returns the promise of prior dialog turns, replayable
// independently of CollectMessages.
func (ic *InteractionContext) Messages() *promise.Promise[message.Message, []message.Message] {
	return ic.input
}

// CollectMessages drains the accumulated history into a slice, the Go
// analogue of `ctx.messages.acollect_messages()`.
func (ic *InteractionContext) CollectMessages(ctx context.Context) ([]message.Message, error) {
	return ic.input.CollectWhole(ctx)
}

// Reply registers this turn's output. A MiniAgent must call it at most
// once.
func (ic *InteractionContext) Reply(reply Reply) {
	ic.reply = reply
}

// CurrentReply returns whatever reply has been registered so far (nil
// before the agent calls Reply), letting a wrapping MiniAgent observe the
// turn's streamed output without intercepting Reply itself — the gateway's
// publish-as-you-go hook uses this.
func (ic *InteractionContext) CurrentReply() Reply {
	return ic.reply
}

// ReplyText is a convenience for agents whose entire reply is already known
// (the console user agent, for instance): it wraps text in an eager promise
// whose only piece is text.
func ReplyText(role message.Role, text string) Reply {
	producer := func() (promise.PieceIterator[string], error) {
		return &onceIterator{text: text}, nil
	}
	return promise.New(producer, func(ctx context.Context, pieces promise.PieceSource[string]) (message.Message, error) {
		return AssembleMessage(ctx, role, pieces)
	}, true)
}

type onceIterator struct {
	text  string
	taken bool
}

func (it *onceIterator) Next(ctx context.Context) (string, error) {
	if it.taken {
		return "", io.EOF
	}
	it.taken = true
	return it.text, nil
}

// AssembleMessage concatenates every token piece into one Message, the
// shared packager shape used both by ReplyText and by the streaming LLM
// adapters in internal/llm.
func AssembleMessage(ctx context.Context, role message.Role, pieces promise.PieceSource[string]) (message.Message, error) {
	var text string
	cur := pieces.Iterate()
	for {
		tok, err := cur.Next(ctx)
		if errors.Is(err, io.EOF) {
			return message.New(role, text), nil
		}
		if err != nil {
			return message.Message{}, err
		}
		text += tok
	}
}
