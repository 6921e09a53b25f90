package promise

import "errors"

var (
	// ErrProducerFailedToStart is stored as the first piece when a producer
	// factory returns an error (or a nil iterator) instead of a valid
	// iterator. Wrap with %w to retain the original cause.
	ErrProducerFailedToStart = errors.New("promise: producer failed to start")

	// ErrAppendNotOpen is returned by AppendFeeder.Append when called before
	// Open.
	ErrAppendNotOpen = errors.New("promise: append before open")

	// ErrAppendClosed is returned by AppendFeeder.Append or Open once the
	// feeder has been closed. Reopening a closed feeder is also rejected
	// with this error.
	ErrAppendClosed = errors.New("promise: append-feeder is closed")

	// ErrPackagerReentry is returned when a packager calls CollectWhole on
	// the very Promise it is packaging. Acquiring the packager mutex twice
	// from the same call chain would deadlock, so this is detected and
	// reported instead.
	ErrPackagerReentry = errors.New("promise: collect_whole called re-entrantly from its own packager")
)
