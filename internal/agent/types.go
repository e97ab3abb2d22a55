// ABOUTME: Core agent types: agent kind enumeration, spawn config, status snapshot.
// ABOUTME: Status is mutated only by the owning Process and read via copies.

package agent

import (
	"fmt"
	"time"
)

// Type identifies which external CLI an agent runs. The set is closed:
// anything outside it is a construction error, never a silent default.
type Type string

const (
	TypeClaude Type = "claude"
	TypeGemini Type = "gemini"
)

// ParseType validates a caller-supplied agent type string.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeClaude:
		return TypeClaude, nil
	case TypeGemini:
		return TypeGemini, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAgentType, s)
	}
}

// String returns the lowercase serialized name.
func (t Type) String() string {
	return string(t)
}

// Config describes one agent to spawn. Immutable once passed to Spawn.
type Config struct {
	// Type selects the external executable.
	Type Type

	// ID is optional; a uuid is generated when empty. Must be unique among
	// currently running agents.
	ID string

	// Workspace is an optional directory the child runs in.
	Workspace string

	// APIKey is accepted for caller compatibility only. The supervised CLIs
	// manage their own authentication; the value carries no behavior and is
	// never logged.
	APIKey string
}

// Status is a read-mostly snapshot of one agent's state. Running == false is
// terminal: once an agent stops it never reports running again.
type Status struct {
	ID           string    `json:"id"`
	AgentType    string    `json:"agent_type"`
	Running      bool      `json:"running"`
	StartTime    time.Time `json:"start_time"`
	LastActivity time.Time `json:"last_activity"`
	CommandsSent int       `json:"commands_sent"`
	Workspace    string    `json:"workspace,omitempty"`
}
