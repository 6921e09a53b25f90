package promise

import (
	"context"
	"errors"
	"io"
	"sync"

	"miniagents/internal/queue"
)

// AppendFeeder adapts imperative push-style code into the pull-side
// Producer interface a Promise expects. Outside code opens it within a
// scoped acquisition (Use, or manual Open/Close), appends pieces, and
// closes it; the Promise consumes it via Producer.
//
// The zero value is not usable; construct with NewAppendFeeder.
type AppendFeeder[P any] struct {
	mu            sync.Mutex
	queue         *queue.Queue[piece[P]]
	opened        bool
	closed        bool
	captureErrors bool
}

// NewAppendFeeder constructs a feeder. When captureErrors is set, Use
// appends a non-protocol error returned by its callback as a final piece
// instead of propagating it.
func NewAppendFeeder[P any](captureErrors bool) *AppendFeeder[P] {
	return &AppendFeeder[P]{
		queue:         queue.New[piece[P]](),
		captureErrors: captureErrors,
	}
}

// Open marks the feeder open for appending. It fails if the feeder was
// already closed; a feeder can be opened at most once.
func (f *AppendFeeder[P]) Open() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrAppendClosed
	}
	f.opened = true
	return nil
}

// Append enqueues piece for delivery to whatever Promise consumes this
// feeder's Producer. It fails with ErrAppendNotOpen if Open has not been
// called, or ErrAppendClosed if Close has.
func (f *AppendFeeder[P]) Append(value P) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.opened {
		return ErrAppendNotOpen
	}
	if f.closed {
		return ErrAppendClosed
	}
	f.queue.Push(valuePiece(value))
	return nil
}

// appendError enqueues a captured error as a data piece, silently dropped
// if the feeder is already closed (Use always closes before returning, so
// this only matters for races against a concurrent Close).
func (f *AppendFeeder[P]) appendError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.queue.Push(errorPiece[P](err))
}

// Close enqueues the terminal end marker and marks the feeder closed. It is
// idempotent: calling it more than once has no further effect.
func (f *AppendFeeder[P]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.queue.Push(endPiece[P]())
}

// Use runs fn within a scoped open/close acquisition, the Go equivalent of
// Python's `with AppendProducer(...) as feeder:`. The feeder is always
// closed on return, even if fn panics. If captureErrors is set and fn
// returns a non-protocol error, that error is appended as the feeder's
// final piece and Use returns nil; ErrAppendNotOpen and ErrAppendClosed are
// never swallowed.
func (f *AppendFeeder[P]) Use(ctx context.Context, fn func(*AppendFeeder[P]) error) (err error) {
	if err := f.Open(); err != nil {
		return err
	}
	defer f.Close()

	fnErr := fn(f)
	if fnErr == nil {
		return nil
	}
	if errors.Is(fnErr, ErrAppendNotOpen) || errors.Is(fnErr, ErrAppendClosed) {
		return fnErr
	}
	if f.captureErrors {
		f.appendError(fnErr)
		return nil
	}
	return fnErr
}

// Producer returns a Producer that consumes this feeder's queue. It is
// normally passed straight to New.
func (f *AppendFeeder[P]) Producer() Producer[P] {
	return func() (PieceIterator[P], error) {
		return &feederIterator[P]{queue: f.queue}, nil
	}
}

type feederIterator[P any] struct {
	queue *queue.Queue[piece[P]]
}

func (it *feederIterator[P]) Next(ctx context.Context) (P, error) {
	pc, err := it.queue.Pop(ctx)
	if err != nil {
		var zero P
		return zero, err
	}
	switch pc.kind {
	case pieceEnd:
		var zero P
		return zero, io.EOF
	case pieceError:
		var zero P
		return zero, pc.err
	default:
		return pc.value, nil
	}
}
