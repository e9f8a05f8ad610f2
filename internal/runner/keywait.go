package runner

import (
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// KeyWaiter blocks until the operator presses a key.
type KeyWaiter interface {
	WaitForKey(ctx context.Context) error
}

// TerminalKeyWaiter reads a single key from in. When in is a terminal it
// is switched to raw mode for the read so no Enter is needed.
type TerminalKeyWaiter struct {
	In *os.File
}

// WaitForKey implements KeyWaiter.
func (w TerminalKeyWaiter) WaitForKey(ctx context.Context) error {
	in := w.In
	if in == nil {
		in = os.Stdin
	}
	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		old, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("raw mode: %w", err)
		}
		defer func() { _ = term.Restore(fd, old) }()
	}
	return readOne(ctx, in)
}

// ReaderKeyWaiter waits for one byte from R. Tests use it with a
// strings.Reader.
type ReaderKeyWaiter struct {
	R io.Reader
}

// WaitForKey implements KeyWaiter.
func (w ReaderKeyWaiter) WaitForKey(ctx context.Context) error {
	return readOne(ctx, w.R)
}

func readOne(ctx context.Context, r io.Reader) error {
	done := make(chan error, 1)
	go func() {
		var b [1]byte
		_, err := io.ReadFull(r, b[:])
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}
		return nil
	case <-ctx.Done():
		// The reader goroutine stays blocked until input arrives; the
		// process exits right after the reset.
		return ctx.Err()
	}
}
