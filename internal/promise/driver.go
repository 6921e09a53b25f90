package promise

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// PieceIterator is the minimal pull-based interface a producer's iterator
// must satisfy: single-step advancement, io.EOF signalling the end. Any
// other error is demoted to a data piece and does not stop iteration.
type PieceIterator[P any] interface {
	Next(ctx context.Context) (P, error)
}

// Producer lazily constructs a Promise's piece iterator. It is invoked at
// most once per Promise, on the first advance.
type Producer[P any] func() (PieceIterator[P], error)

type driverState int

const (
	driverUninitialized driverState = iota
	driverLive
	driverFailedToStart
)

// driver holds the producer-iterator state machine described in spec.md
// §4.1: uninitialized / live / failed-to-start. All access happens while
// the owning Promise's producerMu is held, so no additional locking is
// needed here.
type driver[P any] struct {
	state    driverState
	iterator PieceIterator[P]
	producer Producer[P]
}

func newDriver[P any](producer Producer[P]) *driver[P] {
	return &driver[P]{producer: producer}
}

// advance pulls the next piece, starting the underlying iterator on first
// use. Must be called with the owning Promise's producerMu held.
//
// The second return value is false when the underlying iterator's Next
// call was unblocked by ctx cancellation rather than by a real producer
// event. In that case no state was mutated and no piece should be recorded
// anywhere: cancelling one caller's context must only stop that caller, per
// spec.md §5, never poison the shared history for other consumers who may
// retry the same advance later with a fresh context.
func (d *driver[P]) advance(ctx context.Context) (piece[P], bool) {
	switch d.state {
	case driverUninitialized:
		iter, err := d.producer()
		if err != nil {
			d.state = driverFailedToStart
			return errorPiece[P](fmt.Errorf("%w: %v", ErrProducerFailedToStart, err)), true
		}
		if iter == nil {
			d.state = driverFailedToStart
			return errorPiece[P](fmt.Errorf("%w: producer returned a nil iterator", ErrProducerFailedToStart)), true
		}
		d.iterator = iter
		d.state = driverLive
		return d.step(ctx)
	case driverFailedToStart:
		return endPiece[P](), true
	default: // driverLive
		return d.step(ctx)
	}
}

func (d *driver[P]) step(ctx context.Context) (piece[P], bool) {
	v, err := d.iterator.Next(ctx)
	if err == nil {
		return valuePiece(v), true
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return piece[P]{}, false
	}
	if errors.Is(err, io.EOF) {
		return endPiece[P](), true
	}
	return errorPiece[P](err), true
}
