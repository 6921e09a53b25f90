// Package promise implements a replayable streaming promise: one producer,
// any number of independent replay consumers, exceptions preserved as data
// at their true position, and an idempotent "collect the whole" memoizer.
//
// A Promise wraps a Producer (a pull-side iterator factory) or an
// AppendFeeder (a push-side adapter, see feeder.go) and exposes two views:
// Iterate, for replaying the piece stream from the beginning, and
// CollectWhole, for computing a single aggregated value once.
package promise

import (
	"context"
	"sync"

	"miniagents/internal/queue"
)

// PieceSource is the narrow view of a Promise a Packager consumes: it can
// start an independent replay of the piece stream without seeing anything
// else about the Promise (in particular, not its WHOLE type parameter).
type PieceSource[P any] interface {
	Iterate() *Cursor[P]
}

// Packager computes a Promise's single WHOLE value from its piece stream.
// It may fully iterate, partially iterate, or ignore the stream entirely.
// It must not call CollectWhole on the very Promise it is packaging; doing
// so returns ErrPackagerReentry.
type Packager[P, W any] func(ctx context.Context, pieces PieceSource[P]) (W, error)

// Promise is a lazily-produced, piece-by-piece stream with a memoized whole
// value. The zero value is not usable; construct with New.
type Promise[P, W any] struct {
	packager Packager[P, W]
	eager    bool

	producerMu sync.Mutex // serializes producer advancement and append
	driver     *driver[P]
	eagerQueue *queue.Queue[piece[P]]

	historyMu sync.RWMutex
	history   []piece[P]
	terminal  bool

	packagerMu    sync.Mutex
	wholeComputed bool
	whole         W
	wholeErr      error
}

// New constructs a Promise around producer and packager. When eager is
// true, a single background goroutine starts draining the producer at
// once, buffering pieces for whichever consumer asks for them later; when
// false, production advances only on demand, driven by whichever cursor
// first needs an uncached piece.
func New[P, W any](producer Producer[P], packager Packager[P, W], eager bool) *Promise[P, W] {
	p := &Promise[P, W]{
		packager: packager,
		eager:    eager,
		driver:   newDriver(producer),
	}
	if eager {
		p.eagerQueue = queue.New[piece[P]]()
		go p.drainEager()
	}
	return p
}

// Iterate returns a fresh Cursor over the piece stream, starting at index
// zero. Any number of cursors may coexist and progress independently; each
// sees every piece from the beginning in the same order.
func (p *Promise[P, W]) Iterate() *Cursor[P] {
	return &Cursor[P]{src: p}
}

// CollectWhole returns the memoized WHOLE value, invoking the packager on
// the first call only. Concurrent callers block on the first call and then
// observe the same stored value (or the same stored error — packager
// failures are memoized and re-raised, matching the at-most-once packaging
// invariant). Calling CollectWhole from within the packager itself returns
// ErrPackagerReentry rather than deadlocking.
func (p *Promise[P, W]) CollectWhole(ctx context.Context) (W, error) {
	if reentered, _ := ctx.Value(p).(bool); reentered {
		var zero W
		return zero, ErrPackagerReentry
	}

	p.packagerMu.Lock()
	defer p.packagerMu.Unlock()

	if p.wholeComputed {
		return p.whole, p.wholeErr
	}

	whole, err := p.packager(context.WithValue(ctx, p, true), p)
	p.whole = whole
	p.wholeErr = err
	p.wholeComputed = true
	return whole, err
}

// pieceAt implements the Replay Cursor algorithm from spec.md §4.1: take an
// already-appended piece without locking the producer, re-raise the stored
// end signal once terminal, or else drive production under producerMu and
// append the result.
func (p *Promise[P, W]) pieceAt(ctx context.Context, idx int) (piece[P], error) {
	if pc, ok := p.cachedAt(idx); ok {
		return pc, nil
	}

	p.producerMu.Lock()
	defer p.producerMu.Unlock()

	// Re-check under the lock: another cursor may have produced this piece
	// (or the stream may have terminated) while we were waiting.
	if pc, ok := p.cachedAt(idx); ok {
		return pc, nil
	}

	var pc piece[P]
	if p.eager {
		got, err := p.eagerQueue.Pop(ctx)
		if err != nil {
			var zero piece[P]
			return zero, err
		}
		pc = got
	} else {
		got, ok := p.driver.advance(ctx)
		if !ok {
			// ctx was cancelled mid-advance: nothing was produced or
			// mutated, so this caller alone observes the cancellation and
			// a later caller with a fresh context may retry the advance.
			var zero piece[P]
			return zero, ctx.Err()
		}
		pc = got
	}

	p.historyMu.Lock()
	p.history = append(p.history, pc)
	if pc.kind == pieceEnd {
		p.terminal = true
	}
	p.historyMu.Unlock()

	return pc, nil
}

// cachedAt returns a piece that is already in the history buffer, either
// because idx falls within it or because the stream is terminal (in which
// case the stored end signal is replayed, per spec.md's Replay Cursor
// algorithm step 2).
func (p *Promise[P, W]) cachedAt(idx int) (piece[P], bool) {
	p.historyMu.RLock()
	defer p.historyMu.RUnlock()

	if idx < len(p.history) {
		return p.history[idx], true
	}
	if p.terminal {
		return p.history[len(p.history)-1], true
	}
	return piece[P]{}, false
}

func (p *Promise[P, W]) drainEager() {
	ctx := context.Background()
	for {
		// ctx is never cancelled here, so advance always reports ok=true.
		pc, _ := p.driver.advance(ctx)
		p.eagerQueue.Push(pc)
		if pc.kind == pieceEnd {
			return
		}
	}
}
