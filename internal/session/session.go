// ABOUTME: Append-only session ledger of agent registrations and command history
// ABOUTME: Pure bookkeeping with no I/O; exports a serializable JSON snapshot

package session

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AgentSession is the per-agent bookkeeping entry. Entries are removed when
// the agent is unregistered; the task history is not.
type AgentSession struct {
	ID           string    `json:"id"`
	AgentType    string    `json:"agent_type"`
	StartedAt    time.Time `json:"started_at"`
	CommandsSent int       `json:"commands_sent"`
	LastActivity time.Time `json:"last_activity"`
}

// TaskRecord is one command sent to one agent. Records are retained for the
// life of the session so the audit trail survives agent death.
type TaskRecord struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	Command   string    `json:"command"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is a deep copy of the ledger at one observation point.
type Snapshot struct {
	ID            string                  `json:"id"`
	StartedAt     time.Time               `json:"started_at"`
	Agents        map[string]AgentSession `json:"agents"`
	TaskHistory   []TaskRecord            `json:"task_history"`
	TotalCommands int                     `json:"total_commands"`
}

// State is the session ledger. One logical writer at a time; reads take
// concurrent snapshots. TotalCommands always equals len(TaskHistory).
type State struct {
	mu sync.RWMutex

	id            string
	startedAt     time.Time
	agents        map[string]AgentSession
	taskHistory   []TaskRecord
	totalCommands int
}

// New creates an empty session ledger with a generated session id.
func New() *State {
	return &State{
		id:        uuid.New().String(),
		startedAt: time.Now().UTC(),
		agents:    make(map[string]AgentSession),
	}
}

// ID returns the session id.
func (s *State) ID() string {
	return s.id
}

// RegisterAgent records a newly spawned agent. Re-registering an id replaces
// the previous entry.
func (s *State) RegisterAgent(agentID, agentType string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	s.agents[agentID] = AgentSession{
		ID:           agentID,
		AgentType:    agentType,
		StartedAt:    now,
		CommandsSent: 0,
		LastActivity: now,
	}
}

// UnregisterAgent drops the per-agent entry. Task history is untouched.
func (s *State) UnregisterAgent(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.agents, agentID)
}

// LogCommand appends a TaskRecord and bumps the per-agent and global
// counters.
func (s *State) LogCommand(agentID, command string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if a, ok := s.agents[agentID]; ok {
		a.CommandsSent++
		a.LastActivity = now
		s.agents[agentID] = a
	}

	s.taskHistory = append(s.taskHistory, TaskRecord{
		ID:        uuid.New().String(),
		AgentID:   agentID,
		Command:   command,
		Timestamp: now,
	})
	s.totalCommands++
}

// TotalCommands returns the global command counter.
func (s *State) TotalCommands() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalCommands
}

// Snapshot returns a deep copy of the ledger.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agents := make(map[string]AgentSession, len(s.agents))
	for id, a := range s.agents {
		agents[id] = a
	}
	history := make([]TaskRecord, len(s.taskHistory))
	copy(history, s.taskHistory)

	return Snapshot{
		ID:            s.id,
		StartedAt:     s.startedAt,
		Agents:        agents,
		TaskHistory:   history,
		TotalCommands: s.totalCommands,
	}
}

// ExportJSON serializes the full ledger.
func (s *State) ExportJSON() ([]byte, error) {
	snap := s.Snapshot()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("exporting session %s: %w", s.id, err)
	}
	return data, nil
}
