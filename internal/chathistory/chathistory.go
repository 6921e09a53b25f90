// Package chathistory persists a dialog's turns to a durable, human-readable
// markdown file and replays them back as a promise, the same append-then-
// replay shape the live dialog loop uses for a single turn's reply, just
// applied to an entire conversation. It is grounded on the teacher's
// internal/replay writer/recorder pair (mutex-guarded *os.File, an injected
// clock for testability, a durable flush after every write) adapted from
// binary replay frames to markdown chat turns.
package chathistory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"miniagents/internal/message"
	"miniagents/internal/promise"
)

const entryDelimiter = "\n---\n"

// Store appends dialog turns to a markdown file, one entry per message.
// It implements agent.HistoryRecorder.
type Store struct {
	mu   sync.Mutex
	file *os.File
	now  func() time.Time
}

// NewStore opens (creating if necessary) the markdown file at path for
// appending. clock defaults to time.Now; tests inject a fixed clock.
func NewStore(path string, clock func() time.Time) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("chathistory: path must be provided")
	}
	if clock == nil {
		clock = time.Now
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("chathistory: creating directory: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("chathistory: opening %s: %w", path, err)
	}
	return &Store{file: file, now: clock}, nil
}

// Record appends m as a durable markdown entry: a "## role (timestamp)"
// header line followed by the message text and a delimiter, then fsyncs so
// a crash mid-dialog never loses the last turn.
func (s *Store) Record(ctx context.Context, m message.Message) error {
	if s == nil {
		return fmt.Errorf("chathistory: store not initialised")
	}
	captured := s.now().UTC().Format(time.RFC3339Nano)

	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "## %s (%s)\n\n%s\n%s", m.Role, captured, m.Text, entryDelimiter)
	if _, err := s.file.WriteString(b.String()); err != nil {
		return fmt.Errorf("chathistory: writing entry: %w", err)
	}
	return s.file.Sync()
}

// Close releases the underlying file handle.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.file.Close()
}

// Load reads every entry from path, in recorded order.
func Load(path string) ([]message.Message, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("chathistory: opening %s: %w", path, err)
	}
	defer file.Close()
	return parseEntries(file)
}

// Open builds a replayable promise over path's entries so callers can reuse
// the same Cursor-based replay machinery a live dialog reply uses, instead
// of a one-shot Load. Production is lazy: the file is only read on the
// first Next call.
func Open(path string) *promise.Promise[message.Message, []message.Message] {
	producer := func() (promise.PieceIterator[message.Message], error) {
		msgs, err := Load(path)
		if err != nil {
			return nil, err
		}
		return &sliceIterator{items: msgs}, nil
	}
	return promise.New(producer, collectAll, false)
}

func parseEntries(r io.Reader) ([]message.Message, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var out []message.Message
	for _, chunk := range strings.Split(string(data), entryDelimiter) {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		m, err := parseEntry(chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func parseEntry(chunk string) (message.Message, error) {
	header, text, ok := strings.Cut(chunk, "\n\n")
	if !ok {
		return message.Message{}, fmt.Errorf("chathistory: malformed entry %q", chunk)
	}
	header = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(header), "## "))
	role := header
	if paren := strings.LastIndex(header, "("); paren >= 0 {
		role = strings.TrimSpace(header[:paren])
	}
	return message.New(message.Role(role), strings.TrimRight(text, "\n")), nil
}

type sliceIterator struct {
	items []message.Message
	idx   int
}

func (it *sliceIterator) Next(ctx context.Context) (message.Message, error) {
	if it.idx >= len(it.items) {
		return message.Message{}, io.EOF
	}
	v := it.items[it.idx]
	it.idx++
	return v, nil
}

func collectAll(ctx context.Context, pieces promise.PieceSource[message.Message]) ([]message.Message, error) {
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
