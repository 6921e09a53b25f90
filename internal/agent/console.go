package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"miniagents/internal/message"
)

// HistoryRecorder persists one dialog turn, the narrow
// interface the console agent needs from a chat-history store without
// importing it directly.
type HistoryRecorder interface {
	Record(ctx context.Context, m message.Message) error
}

// NewConsoleUserAgent builds the interactive "user" side of a dialog: it
// prompts on stdout, reads one line of input from stdin (using raw mode
// when stdin is a terminal, so Ctrl-C can be handled before the line is
// submitted), and replies with that line as a single user Message.
// Ctrl-C or EOF returns ErrDialogEnded. If recorder is non-nil, every line
// is recorded before the agent replies.
func NewConsoleUserAgent(recorder HistoryRecorder) *MiniAgent {
	return New("USER_AGENT", func(ctx context.Context, ictx *InteractionContext) error {
		fmt.Print("\nUSER: ")
		line, err := readLine(os.Stdin)
		if err != nil {
			return err
		}

		msg := message.New(message.RoleUser, line)
		if recorder != nil {
			if err := recorder.Record(ctx, msg); err != nil {
				return fmt.Errorf("recording user turn: %w", err)
			}
		}
		ictx.Reply(ReplyText(message.RoleUser, line))
		return nil
	})
}

// readLine reads one line from f, echoing as it goes and supporting
// backspace. When f is a terminal it is switched to raw mode for the
// duration of the read so Ctrl-C can be caught as a clean dialog-end signal
// rather than killing the process; otherwise it falls back to a plain
// buffered line read (piped input, tests).
func readLine(f *os.File) (string, error) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		reader := bufio.NewReader(f)
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) && line != "" {
				return trimNewline(line), nil
			}
			if errors.Is(err, io.EOF) {
				return "", ErrDialogEnded
			}
			return "", err
		}
		return trimNewline(line), nil
	}

	state, err := term.MakeRaw(fd)
	if err != nil {
		return "", fmt.Errorf("entering raw terminal mode: %w", err)
	}
	defer term.Restore(fd, state)

	var buf []byte
	one := make([]byte, 1)
	for {
		if _, err := f.Read(one); err != nil {
			return "", err
		}
		switch one[0] {
		case '\r', '\n':
			fmt.Print("\r\n")
			return string(buf), nil
		case 0x03: // Ctrl-C
			fmt.Print("\r\n")
			return "", ErrDialogEnded
		case 0x04: // Ctrl-D
			if len(buf) == 0 {
				fmt.Print("\r\n")
				return "", ErrDialogEnded
			}
		case 0x7f, 0x08: // Backspace/Delete
			if len(buf) > 0 {
				buf = buf[:len(buf)-1]
				fmt.Print("\b \b")
			}
		default:
			buf = append(buf, one[0])
			fmt.Printf("%c", one[0])
		}
	}
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
