package promise

import "context"

// pieceSource is implemented by *Promise[P, W] for every W; it lets a
// Cursor fetch pieces without needing to know the promise's whole type.
type pieceSource[P any] interface {
	pieceAt(ctx context.Context, idx int) (piece[P], error)
}

// Cursor is one consumer's independent position in a Promise's piece
// stream. Construct with Promise.Iterate; a Cursor is not safe for
// concurrent use by multiple goroutines, but any number of Cursors over the
// same Promise may progress concurrently with each other.
type Cursor[P any] struct {
	src pieceSource[P]
	idx int
}

// Next returns the piece at the cursor's current position, advancing it by
// one. It returns io.EOF once the stream is exhausted. An error stored as a
// piece (a producer exception that is not the end signal) is returned here
// at its true position and does not stop the cursor from subsequently
// observing io.EOF.
func (c *Cursor[P]) Next(ctx context.Context) (P, error) {
	pc, err := c.src.pieceAt(ctx, c.idx)
	if err != nil {
		var zero P
		return zero, err
	}
	c.idx++

	if pc.kind == pieceValue {
		return pc.value, nil
	}
	var zero P
	return zero, pc.err
}
