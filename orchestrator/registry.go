package orchestrator

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Registry maps match ids to allocation metadata and lobby ids to the
// last reported server status. Statuses are never removed; a stale
// entry is superseded when the lobby is reused.
type Registry struct {
	mu       sync.RWMutex
	matches  map[string]MatchInfo
	statuses map[int]ServerStatusInfo
}

func NewRegistry() *Registry {
	return &Registry{
		matches:  make(map[string]MatchInfo),
		statuses: make(map[int]ServerStatusInfo),
	}
}

// Register inserts a match and seeds an Unknown status for its lobby.
// Any existing match for the same lobby is retired first, so lookup by
// lobby stays single-valued.
func (r *Registry) Register(m MatchInfo) {
	r.mu.Lock()
	for id, existing := range r.matches {
		if existing.LobbyID == m.LobbyID && id != m.MatchID {
			delete(r.matches, id)
			log.Warn().Str("matchId", id).Int("lobbyId", m.LobbyID).Msg("registry: replaced live match for lobby")
		}
	}
	r.matches[m.MatchID] = m
	r.statuses[m.LobbyID] = ServerStatusInfo{Status: GameplayUnknown}
	r.mu.Unlock()

	log.Info().Str("matchId", m.MatchID).Int("lobbyId", m.LobbyID).Msg("registry: registered match")
}

// Unregister removes a match by id; no-op if absent.
func (r *Registry) Unregister(matchID string) {
	r.mu.Lock()
	_, existed := r.matches[matchID]
	delete(r.matches, matchID)
	r.mu.Unlock()

	if existed {
		log.Info().Str("matchId", matchID).Msg("registry: unregistered match")
	}
}

func (r *Registry) Match(matchID string) (MatchInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.matches[matchID]
	return m, ok
}

// MatchByLobby returns the live match for a lobby, if any.
func (r *Registry) MatchByLobby(lobbyID int) (MatchInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.matches {
		if m.LobbyID == lobbyID {
			return m, true
		}
	}
	return MatchInfo{}, false
}

func (r *Registry) UpdateStatus(lobbyID int, status ServerStatusInfo) {
	r.mu.Lock()
	r.statuses[lobbyID] = status
	r.mu.Unlock()
}

// Status returns the last reported status for a lobby, defaulting to a
// zero-valued Unknown status for lobbies never seen.
func (r *Registry) Status(lobbyID int) ServerStatusInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.statuses[lobbyID]; ok {
		return s
	}
	return ServerStatusInfo{Status: GameplayUnknown}
}
