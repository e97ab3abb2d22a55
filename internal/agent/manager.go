// ABOUTME: Manages supervised agent processes: registration, routing, and teardown.
// ABOUTME: Sole entry point for spawn/send/kill/list/status/output operations.

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conductor-max/conductor/internal/bus"
	"github.com/conductor-max/conductor/internal/session"
)

// ManagerParams configures a new Manager.
type ManagerParams struct {
	// Commands maps each agent type to the executable it launches. Missing
	// entries fall back to the type's own name.
	Commands map[Type]string

	// DefaultWorkspace is used when a spawn config names no workspace.
	DefaultWorkspace string

	// Terminal geometry and process plumbing applied to every agent.
	Rows        uint16
	Cols        uint16
	ChunkBuffer int
	LineBuffer  int
	KillGrace   time.Duration

	Bus    *bus.Bus
	Logger *slog.Logger
}

// Manager coordinates all supervised agents: a sharded registry of live
// processes, the session ledger, and the notification bus.
type Manager struct {
	registry *registry
	session  *session.State
	bus      *bus.Bus
	params   ManagerParams
	logger   *slog.Logger

	shutdownOnce sync.Once
}

// NewManager creates a Manager with a fresh session ledger.
func NewManager(params ManagerParams) *Manager {
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	if params.Bus == nil {
		params.Bus = bus.New(params.Logger)
	}
	return &Manager{
		registry: newRegistry(),
		session:  session.New(),
		bus:      params.Bus,
		params:   params,
		logger:   params.Logger.With("component", "manager"),
	}
}

// Bus returns the notification bus for subscribers.
func (m *Manager) Bus() *bus.Bus {
	return m.bus
}

// SessionID returns the id of the session ledger.
func (m *Manager) SessionID() string {
	return m.session.ID()
}

// Spawn launches a new agent from config and registers it. Returns the agent
// id. An explicit id colliding with a live agent fails with
// ErrAgentAlreadyRegistered and leaves the existing agent untouched; on any
// failure no partial agent stays registered.
func (m *Manager) Spawn(cfg Config) (string, error) {
	if _, err := ParseType(cfg.Type.String()); err != nil {
		return "", err
	}

	agentID := cfg.ID
	if agentID == "" {
		agentID = uuid.New().String()
	}

	if _, exists := m.registry.Get(agentID); exists {
		return "", fmt.Errorf("agent %s: %w", agentID, ErrAgentAlreadyRegistered)
	}

	workspace := cfg.Workspace
	if workspace == "" {
		workspace = m.params.DefaultWorkspace
	}

	m.logger.Info("spawning agent",
		"agent_id", agentID,
		"agent_type", cfg.Type,
		"workspace", workspace,
	)

	proc, err := Start(ProcessParams{
		ID:          agentID,
		Type:        cfg.Type,
		Command:     m.command(cfg.Type),
		Workspace:   workspace,
		Rows:        m.params.Rows,
		Cols:        m.params.Cols,
		ChunkBuffer: m.params.ChunkBuffer,
		LineBuffer:  m.params.LineBuffer,
		KillGrace:   m.params.KillGrace,
		Notify:      m.bus.Publish,
		Logger:      m.params.Logger,
	})
	if err != nil {
		return "", err
	}

	// Insert is atomic with respect to concurrent lookups; a lost race with
	// another spawn of the same id tears the fresh process down again.
	if !m.registry.Insert(agentID, proc) {
		proc.Kill()
		return "", fmt.Errorf("agent %s: %w", agentID, ErrAgentAlreadyRegistered)
	}
	m.session.RegisterAgent(agentID, cfg.Type.String())

	m.logger.Info("=== AGENT SPAWNED ===",
		"agent_id", agentID,
		"agent_type", cfg.Type,
		"total_agents", m.registry.Len(),
	)
	m.bus.Publish(bus.System(agentID, "spawned"))

	return agentID, nil
}

// SendCommand routes a command to an agent and records it in the session
// ledger. Returns ErrAgentNotFound for unknown ids.
func (m *Manager) SendCommand(agentID, text string) error {
	proc, ok := m.registry.Get(agentID)
	if !ok {
		return fmt.Errorf("agent %s: %w", agentID, ErrAgentNotFound)
	}

	if err := proc.SendCommand(text); err != nil {
		return err
	}

	m.session.LogCommand(agentID, text)
	m.bus.Publish(bus.Input(agentID, text))
	return nil
}

// SendRaw routes unmodified bytes to an agent. Not recorded as a command.
func (m *Manager) SendRaw(agentID string, data []byte) error {
	proc, ok := m.registry.Get(agentID)
	if !ok {
		return fmt.Errorf("agent %s: %w", agentID, ErrAgentNotFound)
	}
	return proc.SendRaw(data)
}

// Resize changes an agent's terminal geometry.
func (m *Manager) Resize(agentID string, rows, cols uint16) error {
	proc, ok := m.registry.Get(agentID)
	if !ok {
		return fmt.Errorf("agent %s: %w", agentID, ErrAgentNotFound)
	}
	return proc.Resize(rows, cols)
}

// Kill removes an agent from the registry and runs its two-phase shutdown.
// The entry disappears before the signals go out, so concurrent lookups never
// observe a half-killed agent. Killing an unknown id is a no-op.
func (m *Manager) Kill(agentID string) error {
	proc, ok := m.registry.Remove(agentID)
	if !ok {
		return nil
	}

	m.logger.Info("=== AGENT KILLED ===",
		"agent_id", agentID,
		"total_agents", m.registry.Len(),
	)

	proc.Kill()
	m.session.UnregisterAgent(agentID)
	m.bus.Publish(bus.System(agentID, "killed"))
	return nil
}

// Status returns a snapshot of one agent's state.
func (m *Manager) Status(agentID string) (Status, error) {
	proc, ok := m.registry.Get(agentID)
	if !ok {
		return Status{}, fmt.Errorf("agent %s: %w", agentID, ErrAgentNotFound)
	}
	return proc.Status(), nil
}

// List returns the status of every registered agent in no guaranteed order.
func (m *Manager) List() []Status {
	procs := m.registry.List()
	statuses := make([]Status, 0, len(procs))
	for _, p := range procs {
		statuses = append(statuses, p.Status())
	}
	return statuses
}

// Output returns up to maxLines of the agent's most recent output lines.
func (m *Manager) Output(agentID string, maxLines int) ([]string, error) {
	proc, ok := m.registry.Get(agentID)
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", agentID, ErrAgentNotFound)
	}
	return proc.Lines(maxLines), nil
}

// NextOutput waits for the agent's next raw output chunk; io.EOF once the
// stream has ended and drained.
func (m *Manager) NextOutput(ctx context.Context, agentID string) ([]byte, error) {
	proc, ok := m.registry.Get(agentID)
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", agentID, ErrAgentNotFound)
	}
	return proc.NextOutput(ctx)
}

// Broadcast sends the same command to every registered agent. Best-effort:
// a failure for one agent is logged and recorded on the bus, and delivery to
// the others continues. Successful sends are recorded in the ledger like any
// other command.
func (m *Manager) Broadcast(text string) {
	for _, proc := range m.registry.List() {
		if err := proc.SendCommand(text); err != nil {
			m.logger.Error("broadcast delivery failed",
				"agent_id", proc.ID(),
				"error", err,
			)
			m.bus.Publish(bus.Error(proc.ID(), err.Error()))
			continue
		}
		m.session.LogCommand(proc.ID(), text)
		m.bus.Publish(bus.Input(proc.ID(), text))
	}
}

// Export serializes the session ledger.
func (m *Manager) Export() ([]byte, error) {
	return m.session.ExportJSON()
}

// Snapshot returns the session ledger as a value.
func (m *Manager) Snapshot() session.Snapshot {
	return m.session.Snapshot()
}

// Shutdown gives every owned agent the two-phase kill treatment and closes
// the bus. Runs at most once; later calls return immediately. The kills run
// in parallel and the wait is bounded by ctx.
func (m *Manager) Shutdown(ctx context.Context) {
	m.shutdownOnce.Do(func() {
		procs := m.registry.List()
		m.logger.Info("shutting down manager", "agents", len(procs))

		var wg sync.WaitGroup
		for _, proc := range procs {
			if p, ok := m.registry.Remove(proc.ID()); ok {
				wg.Add(1)
				go func() {
					defer wg.Done()
					p.Kill()
				}()
				m.session.UnregisterAgent(p.ID())
			}
		}

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			m.logger.Warn("shutdown wait cancelled", "error", ctx.Err())
		}

		m.bus.Close()
		m.logger.Info("manager stopped")
	})
}

// command resolves the executable for an agent type.
func (m *Manager) command(t Type) string {
	if cmd, ok := m.params.Commands[t]; ok && cmd != "" {
		return cmd
	}
	return t.String()
}
