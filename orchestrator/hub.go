package orchestrator

import (
	"context"
	"sync"

	"agones-session-orchestrator/metrics"

	"github.com/rs/zerolog/log"
)

// Hub holds per-lobby sets of live subscriber sinks. A lobby's set is
// created lazily on first subscription and removed with its last
// subscriber, so the map never retains an empty set.
type Hub struct {
	mu    sync.RWMutex
	sinks map[int]map[int]Sink
}

func NewHub() *Hub {
	return &Hub{sinks: make(map[int]map[int]Sink)}
}

func (h *Hub) Subscribe(lobbyID, clientID int, sink Sink) {
	h.mu.Lock()
	lobby, ok := h.sinks[lobbyID]
	if !ok {
		lobby = make(map[int]Sink)
		h.sinks[lobbyID] = lobby
	}
	lobby[clientID] = sink
	h.mu.Unlock()

	log.Info().Int("lobbyId", lobbyID).Int("clientId", clientID).Msg("hub: added allocation event sink")
}

func (h *Hub) Unsubscribe(lobbyID, clientID int) {
	h.mu.Lock()
	if lobby, ok := h.sinks[lobbyID]; ok {
		delete(lobby, clientID)
		if len(lobby) == 0 {
			delete(h.sinks, lobbyID)
		}
	}
	h.mu.Unlock()

	log.Info().Int("lobbyId", lobbyID).Int("clientId", clientID).Msg("hub: removed allocation event sink")
}

func (h *Hub) SubscriberCount(lobbyID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sinks[lobbyID])
}

// Broadcast delivers the event to a snapshot of the lobby's current
// subscribers, each in its own goroutine. Subscribers whose delivery
// fails are removed from the live registration; one bad subscriber
// never fails the broadcast. No registration means a silent no-op.
func (h *Hub) Broadcast(ctx context.Context, lobbyID int, ev AllocationEvent) {
	h.mu.RLock()
	lobby, ok := h.sinks[lobbyID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	snapshot := make(map[int]Sink, len(lobby))
	for clientID, sink := range lobby {
		snapshot[clientID] = sink
	}
	h.mu.RUnlock()

	var (
		wg       sync.WaitGroup
		failedMu sync.Mutex
		failed   []int
	)
	for clientID, sink := range snapshot {
		wg.Add(1)
		go func(clientID int, sink Sink) {
			defer wg.Done()
			if err := sink.Send(ctx, ev); err != nil {
				log.Warn().Err(err).Int("lobbyId", lobbyID).Int("clientId", clientID).Msg("hub: subscriber delivery failed; pruning")
				failedMu.Lock()
				failed = append(failed, clientID)
				failedMu.Unlock()
			}
		}(clientID, sink)
	}
	wg.Wait()

	if len(failed) == 0 {
		return
	}
	h.mu.Lock()
	if lobby, ok := h.sinks[lobbyID]; ok {
		for _, clientID := range failed {
			delete(lobby, clientID)
		}
		if len(lobby) == 0 {
			delete(h.sinks, lobbyID)
		}
	}
	h.mu.Unlock()
	metrics.BroadcastPrunes.Add(float64(len(failed)))
}
