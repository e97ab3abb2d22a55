// ABOUTME: One supervised agent: a pty-backed child plus its status and output plumbing.
// ABOUTME: Owns the background read loop and the two-phase kill sequence.

package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"sync"
	"syscall"
	"time"

	"github.com/conductor-max/conductor/internal/bus"
	"github.com/conductor-max/conductor/internal/term"
)

// Control bytes sent during the kill sequence.
const (
	ctrlInterrupt  = 0x03 // ETX, ^C
	ctrlEndOfInput = 0x04 // EOT, ^D
)

// Defaults for process plumbing, overridable via ProcessParams.
const (
	DefaultChunkBuffer = 100
	DefaultLineBuffer  = 10000
	DefaultKillGrace   = 500 * time.Millisecond
)

// readChunkSize is the pty read buffer size.
const readChunkSize = 4096

// ProcessParams configures a new Process.
type ProcessParams struct {
	ID        string
	Type      Type
	Command   string // executable launched on the pty slave side
	Workspace string
	Rows      uint16
	Cols      uint16

	// ChunkBuffer bounds the output channel depth. When the consumer stops
	// draining, the read loop blocks rather than dropping data; that
	// backpressure propagates to the child's own write buffer.
	ChunkBuffer int

	// LineBuffer bounds the retained recent-output lines (drop-oldest).
	LineBuffer int

	// KillGrace is the pause between the interrupt and end-of-input bytes.
	KillGrace time.Duration

	// Notify, when set, receives bus messages for output, errors, and the
	// final status flip. Must not block.
	Notify func(bus.Message)

	Logger *slog.Logger
}

// Process wraps exactly one pty channel for its lifetime. The write path and
// status block are serialized per agent; different agents share nothing.
type Process struct {
	id        string
	agentType Type
	ch        *term.Channel
	out       chan []byte
	lines     *lineBuffer
	grace     time.Duration
	notify    func(bus.Message)
	logger    *slog.Logger

	mu      sync.Mutex
	status  Status
	stopped bool
}

// Start launches the agent executable on a fresh pty and begins the
// background read loop. On failure no resources are retained.
func Start(params ProcessParams) (*Process, error) {
	if params.ChunkBuffer <= 0 {
		params.ChunkBuffer = DefaultChunkBuffer
	}
	if params.LineBuffer <= 0 {
		params.LineBuffer = DefaultLineBuffer
	}
	if params.KillGrace <= 0 {
		params.KillGrace = DefaultKillGrace
	}
	if params.Logger == nil {
		params.Logger = slog.Default()
	}

	ch, err := term.Open(term.Options{
		Command: params.Command,
		Dir:     params.Workspace,
		Rows:    params.Rows,
		Cols:    params.Cols,
	})
	if err != nil {
		return nil, fmt.Errorf("spawning agent %s: %w", params.ID, err)
	}

	now := time.Now().UTC()
	p := &Process{
		id:        params.ID,
		agentType: params.Type,
		ch:        ch,
		out:       make(chan []byte, params.ChunkBuffer),
		lines:     newLineBuffer(params.LineBuffer),
		grace:     params.KillGrace,
		notify:    params.Notify,
		logger:    params.Logger.With("agent_id", params.ID),
		status: Status{
			ID:           params.ID,
			AgentType:    params.Type.String(),
			Running:      true,
			StartTime:    now,
			LastActivity: now,
			Workspace:    params.Workspace,
		},
	}

	go p.readLoop()

	p.logger.Info("agent process started",
		"agent_type", p.agentType,
		"pid", ch.Pid(),
		"workspace", params.Workspace,
	)
	return p, nil
}

// ID returns the agent id.
func (p *Process) ID() string {
	return p.id
}

// Type returns the agent type.
func (p *Process) Type() Type {
	return p.agentType
}

// SendCommand writes a newline-terminated command to the agent's input and
// bumps the command counter. A write failure leaves the agent registered;
// the caller decides whether to kill it.
func (p *Process) SendCommand(text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.ch.Write(append([]byte(text), '\n')); err != nil {
		return p.wrapWriteErr(err)
	}

	p.status.CommandsSent++
	p.status.LastActivity = time.Now().UTC()
	p.logger.Debug("command sent", "command", text)
	return nil
}

// SendRaw writes unmodified bytes, used for control sequences. Does not
// count as a command.
func (p *Process) SendRaw(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.ch.Write(data); err != nil {
		return p.wrapWriteErr(err)
	}

	p.status.LastActivity = time.Now().UTC()
	return nil
}

// Resize changes the agent's terminal geometry. Status is unaffected on
// failure.
func (p *Process) Resize(rows, cols uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ch.Resize(rows, cols); err != nil {
		return fmt.Errorf("agent %s: %w", p.id, err)
	}
	return nil
}

// NextOutput waits for the next chunk produced by the read loop. Returns
// io.EOF once the loop has terminated and every buffered chunk has been
// drained.
func (p *Process) NextOutput(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case chunk, ok := <-p.out:
		if !ok {
			return nil, io.EOF
		}
		return chunk, nil
	}
}

// Lines returns up to max of the most recent output lines, oldest first.
func (p *Process) Lines(max int) []string {
	return p.lines.Lines(max)
}

// Kill performs the two-phase shutdown: interrupt byte, grace interval,
// end-of-input byte, then release of the pty master so the read loop always
// unblocks. The agent is marked not running unconditionally, whether or not
// the child has actually exited. Idempotent beyond resending the signals.
func (p *Process) Kill() {
	p.logger.Info("killing agent", "grace", p.grace)

	// Both control bytes are always sent; errors here mean the channel is
	// already gone, which is fine.
	if _, err := p.ch.Write([]byte{ctrlInterrupt}); err != nil {
		p.logger.Debug("interrupt write failed", "error", err)
	}
	time.Sleep(p.grace)
	if _, err := p.ch.Write([]byte{ctrlEndOfInput}); err != nil {
		p.logger.Debug("end-of-input write failed", "error", err)
	}

	p.markStopped()

	// Dropping the master detaches the controlling terminal (the child's
	// session gets SIGHUP) and forces the read loop out of its blocking read.
	if err := p.ch.Close(); err != nil {
		p.logger.Debug("pty close failed", "error", err)
	}
}

// Status returns an immutable snapshot. Never blocks on I/O.
func (p *Process) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// readLoop pulls raw bytes off the pty and fans them out: recent-line buffer,
// bus notification, bounded output channel. It runs until the pty stream
// ends, then drains via the channel close and flips the agent to stopped.
func (p *Process) readLoop() {
	defer close(p.out)

	buf := make([]byte, readChunkSize)
	for {
		n, err := p.ch.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])

			p.lines.Append(chunk)
			p.touch()
			if p.notify != nil {
				p.notify(bus.Output(p.id, string(chunk)))
			}

			// Blocking send: backpressure instead of data loss.
			p.out <- chunk
		}
		if err != nil {
			if !isStreamEnd(err) {
				p.logger.Warn("agent read loop error", "error", err)
				if p.notify != nil {
					p.notify(bus.Error(p.id, err.Error()))
				}
			}
			break
		}
	}

	p.lines.Flush()
	p.markStopped()
	_ = p.ch.Close()
	p.logger.Info("agent output stream ended")
}

// markStopped flips Running to false exactly once and publishes the status
// change. Running == false is terminal.
func (p *Process) markStopped() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.status.Running = false
	p.mu.Unlock()

	if p.notify != nil {
		p.notify(bus.Status(p.id, false))
	}
}

func (p *Process) touch() {
	p.mu.Lock()
	p.status.LastActivity = time.Now().UTC()
	p.mu.Unlock()
}

func (p *Process) wrapWriteErr(err error) error {
	if errors.Is(err, fs.ErrClosed) {
		return fmt.Errorf("agent %s: %w", p.id, ErrAgentClosed)
	}
	return fmt.Errorf("agent %s: writing to pty: %w", p.id, err)
}

// isStreamEnd reports whether a read error is the normal end of a pty
// stream: EOF, a closed master, or the EIO a pty master returns once the
// slave side is gone.
func isStreamEnd(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, fs.ErrClosed) ||
		errors.Is(err, syscall.EIO)
}
