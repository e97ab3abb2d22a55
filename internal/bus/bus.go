// ABOUTME: In-memory fan-out bus for structured supervisor events
// ABOUTME: Publishes agent output/status/error messages to all subscribers

package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	// A subscriber that falls this far behind observes a gap, not a stall.
	subscriberBufferSize = 64
)

// MessageType classifies a bus message.
type MessageType string

const (
	TypeOutput      MessageType = "output"
	TypeInput       MessageType = "input"
	TypeStatus      MessageType = "status"
	TypeError       MessageType = "error"
	TypeSystemEvent MessageType = "system_event"
)

// Message is one structured event emitted by the supervisor. Messages are
// ephemeral: subscribers only see messages published after they attach.
type Message struct {
	AgentID   string          `json:"agent_id"`
	Type      MessageType     `json:"message_type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Output builds an output message carrying a chunk of agent output.
func Output(agentID string, text string) Message {
	return newMessage(agentID, TypeOutput, map[string]string{"text": text})
}

// Input builds an input message recording a command sent to an agent.
func Input(agentID string, text string) Message {
	return newMessage(agentID, TypeInput, map[string]string{"text": text})
}

// Error builds an error message for the given agent.
func Error(agentID string, errText string) Message {
	return newMessage(agentID, TypeError, map[string]string{"error": errText})
}

// Status builds a status-change message.
func Status(agentID string, running bool) Message {
	return newMessage(agentID, TypeStatus, map[string]bool{"running": running})
}

// System builds a system event not tied to a single agent's stream.
func System(agentID string, event string) Message {
	return newMessage(agentID, TypeSystemEvent, map[string]string{"event": event})
}

func newMessage(agentID string, mt MessageType, payload any) Message {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = json.RawMessage(`{}`)
	}
	return Message{
		AgentID:   agentID,
		Type:      mt,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}
}

// Bus provides in-memory pub/sub for Messages. Publish never blocks the
// publisher: slow subscribers drop messages rather than stalling the
// supervisor.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan Message // subID -> ch
	logger      *slog.Logger
}

// New creates a bus. Pass nil logger for default.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subscribers: make(map[string]chan Message),
		logger:      logger.With("component", "bus"),
	}
}

// Subscribe registers a subscriber and returns its channel plus a
// subscription ID for later unsubscription. The subscription is automatically
// cleaned up when ctx is cancelled. Only messages published after the call
// are delivered.
func (b *Bus) Subscribe(ctx context.Context) (<-chan Message, string) {
	subID := uuid.New().String()
	ch := make(chan Message, subscriberBufferSize)

	b.mu.Lock()
	b.subscribers[subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(subID)
	}()

	return ch, subID
}

// Publish sends a message to every subscriber. Non-blocking: the message is
// dropped for subscribers whose channels are full. Messages for the same
// agent reach a given subscriber in publish order.
func (b *Bus) Publish(msg Message) {
	b.mu.RLock()
	targets := make([]chan Message, 0, len(b.subscribers))
	for _, ch := range b.subscribers {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- msg:
		default:
			b.logger.Debug("dropped message for slow subscriber",
				"agent_id", msg.AgentID,
				"message_type", msg.Type)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[subID]
	if !ok {
		return
	}

	delete(b.subscribers, subID)
	close(ch)

	b.logger.Debug("subscriber removed", "sub_id", subID)
}

// Close shuts down the bus and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subID, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, subID)
	}

	b.logger.Debug("bus closed")
}
