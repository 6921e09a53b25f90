// Package agent implements MiniAgent: a named function that consumes one
// dialog turn's accumulated history and replies with a streamed message,
// plus the dialog loop that alternates two agents (typically a console
// user and an LLM assistant) turn by turn.
package agent

import "context"

// Func is the behavior a MiniAgent runs for one turn. It must call
// InteractionContext.Reply exactly once before returning nil, unless it
// returns ErrDialogEnded to stop the dialog loop gracefully.
type Func func(ctx context.Context, ictx *InteractionContext) error

// MiniAgent is a named participant in a dialog.
type MiniAgent struct {
	Alias string
	Run   Func
}

// New constructs a MiniAgent from alias and run.
func New(alias string, run Func) *MiniAgent {
	return &MiniAgent{Alias: alias, Run: run}
}
