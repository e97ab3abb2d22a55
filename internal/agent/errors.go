// ABOUTME: Sentinel errors for the agent supervision layer.
// ABOUTME: Callers branch on these with errors.Is; everything else is wrapped.

package agent

import "errors"

// ErrAgentAlreadyRegistered indicates an explicit agent ID collides with a
// live agent. The existing agent is left untouched.
var ErrAgentAlreadyRegistered = errors.New("agent already registered")

// ErrAgentNotFound indicates the specified agent is not currently registered.
var ErrAgentNotFound = errors.New("agent not found")

// ErrAgentClosed indicates a write to an agent whose channel has been torn
// down. The agent is not automatically removed; the caller decides whether to
// kill it.
var ErrAgentClosed = errors.New("agent channel closed")

// ErrUnknownAgentType indicates an agent type outside the supported set.
var ErrUnknownAgentType = errors.New("unknown agent type")
