package agent

import (
	"context"
	"errors"
	"fmt"
	"io"

	"miniagents/internal/message"
	"miniagents/internal/promise"
)

// ErrDialogEnded is returned by a MiniAgent's Func to stop RunDialog
// gracefully (e.g. the console user agent on Ctrl-C or Ctrl-D). RunDialog
// treats it as a normal, non-error termination.
var ErrDialogEnded = errors.New("agent: dialog ended")

// RunDialog alternates user and assistant turn by turn, starting with
// user, the Go analogue of `dialog_loop.fork(...).inquire()`. Each turn's
// InteractionContext sees every prior message as a replayable promise;
// RunDialog collects each turn's whole Message before handing control to
// the other agent. The loop ends when either agent returns ErrDialogEnded,
// any other error propagates to the caller, or ctx is done.
func RunDialog(ctx context.Context, user, assistant *MiniAgent) error {
	var history []message.Message
	current, other := user, assistant

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ictx := newInteractionContext(historyPromise(history))
		if err := current.Run(ctx, ictx); err != nil {
			if errors.Is(err, ErrDialogEnded) {
				return nil
			}
			return fmt.Errorf("agent %q: %w", current.Alias, err)
		}
		if ictx.reply == nil {
			return fmt.Errorf("agent %q returned without replying", current.Alias)
		}

		msg, err := ictx.reply.CollectWhole(ctx)
		if err != nil {
			return fmt.Errorf("agent %q: collecting reply: %w", current.Alias, err)
		}
		history = append(history, msg)

		current, other = other, current
	}
}

// historyPromise wraps an already-known slice of messages as a Promise,
// eagerly (there is nothing to wait for) so CollectMessages/Iterate never
// block on production.
func historyPromise(history []message.Message) *promise.Promise[message.Message, []message.Message] {
	snapshot := append([]message.Message(nil), history...)
	producer := func() (promise.PieceIterator[message.Message], error) {
		return &historyIterator{items: snapshot}, nil
	}
	return promise.New(producer, collectMessages, true)
}

type historyIterator struct {
	items []message.Message
	idx   int
}

func (it *historyIterator) Next(ctx context.Context) (message.Message, error) {
	if it.idx >= len(it.items) {
		return message.Message{}, io.EOF
	}
	v := it.items[it.idx]
	it.idx++
	return v, nil
}

func collectMessages(ctx context.Context, pieces promise.PieceSource[message.Message]) ([]message.Message, error) {
	var out []message.Message
	cur := pieces.Iterate()
	for {
		m, err := cur.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
}
