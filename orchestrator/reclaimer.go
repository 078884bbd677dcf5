package orchestrator

import (
	"context"
	"time"

	"agones-session-orchestrator/metrics"
	"agones-session-orchestrator/provision"
	"agones-session-orchestrator/queues"

	"github.com/rs/zerolog/log"
)

// Reclaimer tears down an unattended lobby's allocation: provisioner
// delete, subscriber broadcast, outward publish, registry cleanup,
// session tombstoning. It is the only component that talks to the
// provisioning service. Failures are logged and never retried.
type Reclaimer struct {
	registry    *Registry
	sessions    *SessionStore
	hub         *Hub
	provisioner provision.Provisioner
	publisher   queues.Publisher
}

func NewReclaimer(registry *Registry, sessions *SessionStore, hub *Hub, p provision.Provisioner, pub queues.Publisher) *Reclaimer {
	return &Reclaimer{registry: registry, sessions: sessions, hub: hub, provisioner: p, publisher: pub}
}

// Reclaim deallocates the lobby's match. A provisioning failure aborts
// before any local cleanup, leaving the registry entry in place for an
// operator or a later client action.
func (r *Reclaimer) Reclaim(ctx context.Context, lobbyID int) {
	match, ok := r.registry.MatchByLobby(lobbyID)
	if !ok {
		log.Warn().Int("lobbyId", lobbyID).Msg("reclaimer: no match for lobby, nothing to reclaim")
		return
	}

	start := time.Now()
	log.Info().Str("matchId", match.MatchID).Int("lobbyId", lobbyID).Msg("reclaimer: deallocating allocation due to inactivity")

	if err := r.provisioner.DeleteAllocation(ctx, match.MatchID); err != nil {
		log.Error().Err(err).Str("matchId", match.MatchID).Int("lobbyId", lobbyID).Msg("reclaimer: allocation delete failed")
		metrics.ReclamationsTotal.WithLabelValues("failure").Inc()
		return
	}

	ev := AllocationEvent{
		Type:         EventAllocationDeleted,
		AllocationID: match.MatchID,
		LobbyID:      lobbyID,
		Timestamp:    time.Now().UTC(),
	}
	r.hub.Broadcast(ctx, lobbyID, ev)

	if r.publisher != nil {
		env := &queues.AllocationEventEnvelope{
			EnvelopeVersion: "1.0",
			Type:            "allocation-event",
			Event:           string(ev.Type),
			AllocationID:    ev.AllocationID,
			LobbyID:         ev.LobbyID,
			Timestamp:       ev.Timestamp,
		}
		if err := r.publisher.PublishEvent(ctx, env); err != nil {
			log.Error().Err(err).Str("matchId", match.MatchID).Msg("reclaimer: failed to publish allocation event")
		}
	}

	r.registry.Unregister(match.MatchID)
	tagged := r.sessions.ExpireLobby(lobbyID)

	duration := time.Since(start)
	metrics.ReclamationsTotal.WithLabelValues("success").Inc()
	metrics.ReclamationDuration.Observe(duration.Seconds())
	log.Info().Str("matchId", match.MatchID).Int("lobbyId", lobbyID).Int("sessionsExpired", tagged).Dur("duration", duration).Msg("reclaimer: allocation reclaimed")
}
