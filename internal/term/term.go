// ABOUTME: Pseudo-terminal channel owning one pty pair and the child attached to it.
// ABOUTME: Provides write, resize, blocking read, and close over the pty master.

package term

import (
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
)

// Default geometry for newly opened channels.
const (
	DefaultRows = 24
	DefaultCols = 80
)

// Options describes the child process to attach to a new pty.
type Options struct {
	// Command is the executable to launch. Resolved via PATH if not absolute.
	Command string

	// Args are passed to the child after the command name.
	Args []string

	// Dir is the working directory for the child. Empty means inherit.
	Dir string

	// Env holds extra KEY=VALUE pairs appended to the inherited environment.
	Env []string

	// Rows and Cols set the initial terminal geometry. Zero values fall back
	// to DefaultRows/DefaultCols.
	Rows uint16
	Cols uint16
}

// Channel is one pty pair plus the OS child attached to its slave end.
// Reads and writes go through the master side. A Channel is owned by exactly
// one caller; the write path is not internally serialized.
type Channel struct {
	master *os.File
	cmd    *exec.Cmd

	closeOnce sync.Once
	closeErr  error
}

// Open allocates a pty, launches opts.Command attached to the slave side, and
// returns the channel. TERM and COLORTERM are set so interactive CLIs render
// correctly. On failure nothing is retained.
func Open(opts Options) (*Channel, error) {
	if opts.Command == "" {
		return nil, fmt.Errorf("opening pty channel: no command given")
	}

	rows, cols := opts.Rows, opts.Cols
	if rows == 0 {
		rows = DefaultRows
	}
	if cols == 0 {
		cols = DefaultCols
	}

	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Dir = opts.Dir
	cmd.Env = append(os.Environ(),
		"TERM=xterm-256color",
		"COLORTERM=truecolor",
	)
	cmd.Env = append(cmd.Env, opts.Env...)

	master, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: rows, Cols: cols})
	if err != nil {
		return nil, fmt.Errorf("launching %s: %w", opts.Command, err)
	}

	return &Channel{master: master, cmd: cmd}, nil
}

// Write sends bytes to the child's input.
func (c *Channel) Write(p []byte) (int, error) {
	return c.master.Write(p)
}

// Read blocks until the child produces output on its combined stream.
// Returns io.EOF-equivalent errors once the slave side is gone.
func (c *Channel) Read(p []byte) (int, error) {
	return c.master.Read(p)
}

// Resize changes the terminal geometry. The kernel delivers SIGWINCH to the
// child's foreground process group.
func (c *Channel) Resize(rows, cols uint16) error {
	if err := pty.Setsize(c.master, &pty.Winsize{Rows: rows, Cols: cols}); err != nil {
		return fmt.Errorf("resizing pty: %w", err)
	}
	return nil
}

// Pid returns the child's process id, or -1 if the child never started.
func (c *Channel) Pid() int {
	if c.cmd.Process == nil {
		return -1
	}
	return c.cmd.Process.Pid
}

// Close releases the master side of the pty. The child's session loses its
// controlling terminal (it receives SIGHUP) and any blocked Read returns.
// Safe to call more than once.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.master.Close()
		// Reap the child once it exits so it does not linger as a zombie.
		go func() { _ = c.cmd.Wait() }()
	})
	return c.closeErr
}
