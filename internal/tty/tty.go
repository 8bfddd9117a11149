// Package tty adapts a host terminal to the sandbox's console, putting
// stdin in raw mode and relaying bytes between it and the guest's console
// file-store entry. It has no notion of instructions, syscalls, or kernel
// tables -- only bytes in, bytes out.
package tty

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Console is a raw-mode terminal session, the same host-I/O pattern as the
// teacher's tty.Console, generalized away from the LC-3 keyboard/display
// devices: callers read guest-bound keystrokes from Keys and write
// guest-produced output through Writer.
type Console struct {
	in    *os.File
	out   *term.Terminal
	fd    int
	state *term.State

	keyCh chan byte
}

// ErrNoTTY is returned if standard input is not a terminal.
var ErrNoTTY = errors.New("console: not a TTY")

// NewConsole puts sin into raw mode and wraps sout as a terminal writer.
// Callers must call Restore to return the terminal to its original state.
func NewConsole(sin, sout *os.File) (*Console, error) {
	fd := int(sin.Fd())

	if !term.IsTerminal(fd) {
		return nil, ErrNoTTY
	}

	saved, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoTTY, err)
	}

	return &Console{
		fd:    fd,
		in:    sin,
		out:   term.NewTerminal(sout, ""),
		state: saved,
		keyCh: make(chan byte, 64),
	}, nil
}

// Size reports the terminal's current column/row geometry.
func (c *Console) Size() (cols, rows int, err error) {
	ws, err := unix.IoctlGetWinsize(c.fd, unix.TIOCGWINSZ)
	if err != nil {
		return 0, 0, err
	}

	return int(ws.Col), int(ws.Row), nil
}

// Keys returns the channel keystrokes are delivered on.
func (c *Console) Keys() <-chan byte { return c.keyCh }

// Writer returns an io.Writer that writes to the terminal.
func (c *Console) Writer() io.Writer { return c.out }

// Restore returns the terminal to its state prior to NewConsole.
func (c *Console) Restore() error {
	return term.Restore(c.fd, c.state)
}

// ReadKeys copies bytes from the terminal into Keys until ctx is cancelled
// or the underlying read fails, in which case it reports the failure via
// cancel.
func (c *Console) ReadKeys(ctx context.Context, cancel context.CancelCauseFunc) {
	r := bufio.NewReader(c.in)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		b, err := r.ReadByte()
		if err != nil {
			cancel(err)
			return
		}

		select {
		case <-ctx.Done():
			return
		case c.keyCh <- b:
		}
	}
}
