// Package orchestrator tracks which game-server allocation backs which
// lobby, keeps per-client session continuity across reconnects, and
// reclaims allocations from unattended lobbies. All state is in-memory
// and authoritative only for the process lifetime.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"agones-session-orchestrator/provision"
	"agones-session-orchestrator/queues"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultGracePeriod is the reconnect window after a disconnect.
	DefaultGracePeriod = 5 * time.Minute
	// DefaultIdleDeallocDelay is how long a lobby with no sessions at
	// all may stay allocated after its last activity.
	DefaultIdleDeallocDelay = 5 * time.Minute
)

// Options tunes the orchestrator's timing. Zero values fall back to
// the defaults.
type Options struct {
	GracePeriod      time.Duration
	IdleDeallocDelay time.Duration
}

// Manager composes the registry, session store, event hub, dealloc
// scheduler and reclaimer behind one concurrency-safe API.
type Manager struct {
	registry  *Registry
	sessions  *SessionStore
	hub       *Hub
	scheduler *Scheduler
	reclaimer *Reclaimer
}

func New(p provision.Provisioner, pub queues.Publisher, opts Options) *Manager {
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.IdleDeallocDelay <= 0 {
		opts.IdleDeallocDelay = DefaultIdleDeallocDelay
	}

	m := &Manager{
		registry: NewRegistry(),
		sessions: NewSessionStore(opts.GracePeriod),
		hub:      NewHub(),
	}
	m.reclaimer = NewReclaimer(m.registry, m.sessions, m.hub, p, pub)
	m.scheduler = NewScheduler(opts.IdleDeallocDelay, m.sessions.Snapshot, m.sessions.LastActivity, m.reclaimer.Reclaim)
	return m
}

func (m *Manager) RegisterMatch(match MatchInfo) {
	m.registry.Register(match)
}

func (m *Manager) UnregisterMatch(matchID string) {
	m.registry.Unregister(matchID)
}

func (m *Manager) Match(matchID string) (MatchInfo, bool) {
	return m.registry.Match(matchID)
}

func (m *Manager) MatchByLobby(lobbyID int) (MatchInfo, bool) {
	return m.registry.MatchByLobby(lobbyID)
}

func (m *Manager) UpdateServerStatus(lobbyID int, status ServerStatusInfo) {
	m.registry.UpdateStatus(lobbyID, status)
}

func (m *Manager) ServerStatus(lobbyID int) ServerStatusInfo {
	return m.registry.Status(lobbyID)
}

func (m *Manager) AddAllocationEventSink(lobbyID, clientID int, sink Sink) {
	m.hub.Subscribe(lobbyID, clientID, sink)
}

func (m *Manager) RemoveAllocationEventSink(lobbyID, clientID int) {
	m.hub.Unsubscribe(lobbyID, clientID)
}

func (m *Manager) SubscriberCount(lobbyID int) int {
	return m.hub.SubscriberCount(lobbyID)
}

func (m *Manager) BroadcastAllocationEvent(ctx context.Context, lobbyID int, ev AllocationEvent) {
	m.hub.Broadcast(ctx, lobbyID, ev)
}

// TouchLobbyActivity refreshes the lobby's activity timestamp and then
// cancels any pending dealloc timer. Touch-then-cancel ordering keeps a
// racing timer from reading stale inactivity after a reconnect.
func (m *Manager) TouchLobbyActivity(lobbyID int) {
	m.sessions.Touch(lobbyID)
	m.scheduler.Cancel(lobbyID)
}

// ResumeOrIssueSession is the single entry point for every (re)connect
// attempt. A rejected token is unrecoverable for that token; the client
// must reconnect fresh.
func (m *Manager) ResumeOrIssueSession(lobbyID, clientID int, providedToken string) ResumeResult {
	d := m.sessions.ResumeOrIssue(lobbyID, clientID, providedToken)
	if !d.OK {
		return ResumeResult{Reason: d.Reason}
	}

	// Renewed activity: the lobby must not be reclaimed out from under
	// this session.
	m.scheduler.Cancel(lobbyID)

	res := ResumeResult{
		OK:      true,
		Resumed: d.Resumed,
		Token:   d.Token,
		Status:  m.registry.Status(lobbyID),
	}
	if match, ok := m.registry.MatchByLobby(lobbyID); ok {
		res.Match = &match
	}
	return res
}

// OnStreamAdded is invoked by the transport when a subscriber stream
// opens. Idempotent.
func (m *Manager) OnStreamAdded(lobbyID, clientID int) {
	m.sessions.MarkStreamAdded(lobbyID, clientID)
	m.scheduler.Cancel(lobbyID)
}

// OnStreamRemoved is invoked by the transport when a subscriber stream
// closes. The session enters Grace and a dealloc timer is armed if the
// lobby is now unattended. Idempotent.
func (m *Manager) OnStreamRemoved(lobbyID, clientID int) {
	m.sessions.MarkStreamRemoved(lobbyID, clientID)
	m.scheduler.Arm(lobbyID)
}

// HandleEnvelope applies one inbound message from the backend fleet.
func (m *Manager) HandleEnvelope(ctx context.Context, env *queues.MatchEnvelope) error {
	switch env.Type {
	case queues.TypeMatchRegistered:
		m.registry.Register(MatchInfo{
			MatchID:    env.MatchID,
			ServerID:   env.ServerID,
			ServerIP:   env.ServerIP,
			ServerPort: env.ServerPort,
			LobbyID:    env.LobbyID,
			ClientIDs:  env.ClientIDs,
		})
		m.hub.Broadcast(ctx, env.LobbyID, AllocationEvent{
			Type:         EventAllocationCreated,
			AllocationID: env.MatchID,
			LobbyID:      env.LobbyID,
			Timestamp:    time.Now().UTC(),
		})
		return nil
	case queues.TypeMatchUnregistered:
		m.registry.Unregister(env.MatchID)
		return nil
	case queues.TypeServerStatus:
		if env.Status == nil {
			return fmt.Errorf("server-status envelope for lobby %d has no status payload", env.LobbyID)
		}
		m.registry.UpdateStatus(env.LobbyID, ServerStatusInfo{
			Status:       GameplayStatus(env.Status.Status),
			TotalPlayers: env.Status.TotalPlayers,
			MaxPlayers:   env.Status.MaxPlayers,
		})
		return nil
	default:
		return fmt.Errorf("unknown envelope type %q", env.Type)
	}
}

// Shutdown cancels all outstanding dealloc timers without attempting
// reclamation and waits for the timer goroutines to exit.
func (m *Manager) Shutdown() {
	log.Info().Msg("orchestrator: shutting down, cancelling dealloc timers")
	m.scheduler.Shutdown()
}
