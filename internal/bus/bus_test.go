// ABOUTME: Tests for the notification bus fan-out
// ABOUTME: Covers subscribe, publish, slow subscribers, ordering, and close

package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_SingleSubscriberReceivesMessage(t *testing.T) {
	b := New(nil)
	defer b.Close()

	ch, _ := b.Subscribe(testContext(t))

	b.Publish(Output("agent-1", "hello"))

	select {
	case received := <-ch:
		assert.Equal(t, "agent-1", received.AgentID)
		assert.Equal(t, TypeOutput, received.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestBus_MultipleSubscribersReceiveSameMessage(t *testing.T) {
	b := New(nil)
	defer b.Close()

	ch1, _ := b.Subscribe(testContext(t))
	ch2, _ := b.Subscribe(testContext(t))
	ch3, _ := b.Subscribe(testContext(t))

	b.Publish(Status("agent-1", false))

	for i, ch := range []<-chan Message{ch1, ch2, ch3} {
		select {
		case received := <-ch:
			assert.Equal(t, TypeStatus, received.Type, "subscriber %d got wrong type", i)
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d timed out", i)
		}
	}
}

func TestBus_LateSubscriberSeesNoReplay(t *testing.T) {
	b := New(nil)
	defer b.Close()

	b.Publish(Output("agent-1", "before subscription"))

	ch, _ := b.Subscribe(testContext(t))

	select {
	case msg := <-ch:
		t.Fatalf("late subscriber received replayed message: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_PublishNeverBlocks(t *testing.T) {
	b := New(nil)
	defer b.Close()

	// Subscriber that never drains.
	_, _ = b.Subscribe(testContext(t))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBufferSize*4; i++ {
			b.Publish(Output("agent-1", fmt.Sprintf("chunk %d", i)))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestBus_PerAgentPublishOrderPreserved(t *testing.T) {
	b := New(nil)
	defer b.Close()

	ch, _ := b.Subscribe(testContext(t))

	const n = 32
	for i := 0; i < n; i++ {
		b.Publish(Output("agent-1", fmt.Sprintf("%d", i)))
	}

	for i := 0; i < n; i++ {
		select {
		case msg := <-ch:
			var payload struct {
				Text string `json:"text"`
			}
			require.NoError(t, json.Unmarshal(msg.Payload, &payload))
			assert.Equal(t, fmt.Sprintf("%d", i), payload.Text)
		case <-time.After(time.Second):
			t.Fatalf("timed out at message %d", i)
		}
	}
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	b := New(nil)
	defer b.Close()

	ch, subID := b.Subscribe(context.Background())
	b.Unsubscribe(subID)

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "expected closed channel")
	case <-time.After(time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}

	// Unsubscribing twice is harmless.
	b.Unsubscribe(subID)
}

func TestBus_ContextCancellationUnsubscribes(t *testing.T) {
	b := New(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx)
	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after context cancellation")
		}
	}
}

func TestBus_CloseShutsAllSubscribers(t *testing.T) {
	b := New(nil)

	ch1, _ := b.Subscribe(context.Background())
	ch2, _ := b.Subscribe(context.Background())

	b.Close()

	for i, ch := range []<-chan Message{ch1, ch2} {
		select {
		case _, ok := <-ch:
			assert.False(t, ok, "subscriber %d channel not closed", i)
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d channel not closed", i)
		}
	}
}

func TestMessageConstructors(t *testing.T) {
	msg := Error("agent-9", "boom")
	assert.Equal(t, "agent-9", msg.AgentID)
	assert.Equal(t, TypeError, msg.Type)
	assert.False(t, msg.Timestamp.IsZero())
	assert.Equal(t, time.UTC, msg.Timestamp.Location())

	var payload struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, "boom", payload.Error)

	var sys struct {
		Event string `json:"event"`
	}
	require.NoError(t, json.Unmarshal(System("agent-9", "spawned").Payload, &sys))
	assert.Equal(t, "spawned", sys.Event)
}

// testContext mirrors Go 1.24's t.Context: a context canceled when the test ends.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
