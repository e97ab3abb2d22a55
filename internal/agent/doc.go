// Package agent supervises long-lived interactive CLI processes over
// pseudo-terminals.
//
// # Overview
//
// The agent package owns the full lifecycle of supervised agents: spawning a
// pty-backed child, streaming its output, tracking per-agent status under
// concurrent access, and the two-phase kill sequence on teardown.
//
// # Manager
//
// The Manager is the sole entry point for callers:
//
//	mgr := agent.NewManager(agent.ManagerParams{Logger: logger})
//
// Key operations:
//
//   - Spawn(cfg): Launch and register a new agent
//   - SendCommand(id, text): Write a command, record it in the ledger
//   - SendRaw(id, bytes): Write control sequences verbatim
//   - Resize(id, rows, cols): Change terminal geometry
//   - Kill(id): Remove from the registry, then two-phase shutdown
//   - Status(id) / List(): Read-only snapshots
//   - Output(id, maxLines): Most recent buffered output lines
//   - Broadcast(text): Best-effort fan-out to every agent
//   - Shutdown(ctx): Kill everything; also wired to the signal path
//
// # Process
//
// Process wraps exactly one pty channel for its lifetime. A dedicated
// goroutine performs the blocking pty reads and fans each chunk out three
// ways: a bounded output channel consumed via NextOutput (a full channel
// blocks the loop — deliberate backpressure that couples back to the child's
// own write buffer), a drop-oldest ring of recent lines served by Output,
// and the notification bus.
//
// The read loop is a three-state machine. It Runs until a zero-length read
// or read error, then Drains (the channel is closed but buffered chunks
// remain readable), then is Closed: NextOutput returns io.EOF permanently.
// Leaving the Running state eagerly marks the agent not running and
// publishes a status event.
//
// # Registry
//
// Live agents sit in a sharded lock map. Insert and remove-and-return are
// atomic per shard, so a reader never observes an id without a process or a
// half-killed agent, while operations on different agents proceed in
// parallel with no shared lock.
//
// # Kill sequence
//
// Kill writes an interrupt byte (^C), waits a grace interval (default
// 500ms), writes an end-of-input byte (^D), marks the agent stopped, and
// closes the pty master. Closing the master is what guarantees the read
// loop unblocks and the child's session is signalled even when the child
// ignores both control bytes.
//
// # Thread safety
//
// Each Process serializes its write path and status block behind one mutex;
// nothing is shared between different agents. One agent's stalled consumer
// or read-loop error never blocks another agent or the Manager's own
// bookkeeping.
package agent
