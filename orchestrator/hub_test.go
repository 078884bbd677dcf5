package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// chanSink records delivered events; fails every Send when broken.
type chanSink struct {
	mu     sync.Mutex
	events []AllocationEvent
	broken bool
}

func (c *chanSink) Send(ctx context.Context, ev AllocationEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken {
		return errors.New("transport write failed")
	}
	c.events = append(c.events, ev)
	return nil
}

func (c *chanSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestHub_SubscribeUnsubscribe(t *testing.T) {
	h := NewHub()

	h.Subscribe(42, 1, &chanSink{})
	h.Subscribe(42, 2, &chanSink{})
	if got := h.SubscriberCount(42); got != 2 {
		t.Errorf("SubscriberCount(42) = %d, want 2", got)
	}

	h.Unsubscribe(42, 1)
	if got := h.SubscriberCount(42); got != 1 {
		t.Errorf("SubscriberCount(42) after unsubscribe = %d, want 1", got)
	}

	// Last subscriber out tears down the lobby registration.
	h.Unsubscribe(42, 2)
	h.mu.RLock()
	_, retained := h.sinks[42]
	h.mu.RUnlock()
	if retained {
		t.Error("empty subscriber set retained")
	}
}

func TestHub_UnsubscribeUnknownIsNoop(t *testing.T) {
	h := NewHub()
	h.Unsubscribe(42, 1)
	if got := h.SubscriberCount(42); got != 0 {
		t.Errorf("SubscriberCount(42) = %d, want 0", got)
	}
}

func TestHub_BroadcastDeliversToAll(t *testing.T) {
	h := NewHub()
	sinks := []*chanSink{{}, {}, {}}
	for i, s := range sinks {
		h.Subscribe(42, i, s)
	}

	ev := AllocationEvent{Type: EventAllocationDeleted, AllocationID: "m1", LobbyID: 42, Timestamp: time.Now().UTC()}
	h.Broadcast(context.Background(), 42, ev)

	for i, s := range sinks {
		if s.count() != 1 {
			t.Errorf("sink %d received %d events, want 1", i, s.count())
		}
	}
}

func TestHub_BroadcastPrunesFailedSubscriber(t *testing.T) {
	h := NewHub()
	good1 := &chanSink{}
	bad := &chanSink{broken: true}
	good2 := &chanSink{}
	h.Subscribe(42, 1, good1)
	h.Subscribe(42, 2, bad)
	h.Subscribe(42, 3, good2)

	h.Broadcast(context.Background(), 42, AllocationEvent{Type: EventAllocationDeleted, LobbyID: 42})

	if good1.count() != 1 || good2.count() != 1 {
		t.Errorf("healthy sinks received %d and %d events, want 1 and 1", good1.count(), good2.count())
	}
	if got := h.SubscriberCount(42); got != 2 {
		t.Errorf("SubscriberCount(42) after prune = %d, want 2", got)
	}

	// The pruned subscriber stays gone on the next broadcast.
	h.Broadcast(context.Background(), 42, AllocationEvent{Type: EventAllocationDeleted, LobbyID: 42})
	if good1.count() != 2 || good2.count() != 2 {
		t.Errorf("healthy sinks received %d and %d events, want 2 and 2", good1.count(), good2.count())
	}
}

func TestHub_BroadcastPruneEmptiesRegistration(t *testing.T) {
	h := NewHub()
	h.Subscribe(42, 1, &chanSink{broken: true})

	h.Broadcast(context.Background(), 42, AllocationEvent{Type: EventAllocationDeleted, LobbyID: 42})

	h.mu.RLock()
	_, retained := h.sinks[42]
	h.mu.RUnlock()
	if retained {
		t.Error("registration retained after pruning last subscriber")
	}
}

func TestHub_BroadcastNoRegistrationIsNoop(t *testing.T) {
	h := NewHub()
	// Must not panic or block.
	h.Broadcast(context.Background(), 42, AllocationEvent{Type: EventAllocationDeleted, LobbyID: 42})
}
