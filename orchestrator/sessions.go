package orchestrator

import (
	"fmt"
	"sync"
	"time"

	"agones-session-orchestrator/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type sessionKey struct {
	LobbyID  int
	ClientID int
}

// SessionStore holds per (lobby, client) session records and per-lobby
// activity timestamps. Records are only ever replaced wholesale under
// the store lock; expired records stay behind as tombstones so a late
// resume cannot revive a reclaimed lobby.
type SessionStore struct {
	mu           sync.RWMutex
	sessions     map[sessionKey]SessionInfo
	lastActivity map[int]time.Time

	grace time.Duration
	now   func() time.Time
}

func NewSessionStore(grace time.Duration) *SessionStore {
	return &SessionStore{
		sessions:     make(map[sessionKey]SessionInfo),
		lastActivity: make(map[int]time.Time),
		grace:        grace,
		now:          time.Now,
	}
}

func newSessionToken() string {
	return fmt.Sprintf("%x", [16]byte(uuid.New()))
}

// Touch records activity for a lobby.
func (s *SessionStore) Touch(lobbyID int) {
	now := s.now().UTC()
	s.mu.Lock()
	s.lastActivity[lobbyID] = now
	s.mu.Unlock()
}

// LastActivity reports when the lobby last saw any activity.
func (s *SessionStore) LastActivity(lobbyID int) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.lastActivity[lobbyID]
	return t, ok
}

// SessionDecision is the session-level outcome of a resume attempt; the
// manager layers the current match and status on top.
type SessionDecision struct {
	OK      bool
	Resumed bool
	Token   string
	Reason  string
}

// ResumeOrIssue evaluates a (re)connect attempt. Activity is touched
// before any session inspection so a racing deallocation re-check
// always observes fresh activity.
func (s *SessionStore) ResumeOrIssue(lobbyID, clientID int, providedToken string) SessionDecision {
	key := sessionKey{LobbyID: lobbyID, ClientID: clientID}
	now := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity[lobbyID] = now

	sess, exists := s.sessions[key]
	if !exists {
		sess = SessionInfo{
			LobbyID:  lobbyID,
			ClientID: clientID,
			Token:    newSessionToken(),
			State:    SessionActive,
			LastSeen: now,
		}
		s.sessions[key] = sess
		metrics.SessionsIssued.Inc()
		log.Info().Int("lobbyId", lobbyID).Int("clientId", clientID).Msg("sessions: issued new session")
		return SessionDecision{OK: true, Token: sess.Token}
	}

	if providedToken != "" && providedToken == sess.Token {
		switch {
		case sess.State == SessionGrace && !now.After(sess.ReconnectDeadline):
			sess.State = SessionActive
			sess.LastSeen = now
			sess.ReconnectDeadline = time.Time{}
			s.sessions[key] = sess
			metrics.SessionsResumed.Inc()
			log.Info().Int("lobbyId", lobbyID).Int("clientId", clientID).Msg("sessions: resumed session")
			return SessionDecision{OK: true, Resumed: true, Token: sess.Token}
		case sess.State == SessionActive:
			// Already Active: treat the matching token as a re-auth.
			sess.LastSeen = now
			s.sessions[key] = sess
			metrics.SessionsResumed.Inc()
			return SessionDecision{OK: true, Resumed: true, Token: sess.Token}
		default:
			// Expired, or Grace past its deadline.
			metrics.SessionRejections.Inc()
			log.Info().Int("lobbyId", lobbyID).Int("clientId", clientID).Str("state", string(sess.State)).Msg("sessions: rejected expired session")
			return SessionDecision{Reason: "Session expired"}
		}
	}

	// Token mismatch (or none provided): reissue under the same client
	// id. A client that lost its token rejoins as a new session.
	sess.Token = newSessionToken()
	sess.State = SessionActive
	sess.LastSeen = now
	sess.ReconnectDeadline = time.Time{}
	s.sessions[key] = sess
	metrics.SessionsIssued.Inc()
	log.Info().Int("lobbyId", lobbyID).Int("clientId", clientID).Msg("sessions: reissued session token")
	return SessionDecision{OK: true, Token: sess.Token}
}

// MarkStreamAdded upserts the session to Active when a subscriber
// stream opens. Idempotent.
func (s *SessionStore) MarkStreamAdded(lobbyID, clientID int) {
	key := sessionKey{LobbyID: lobbyID, ClientID: clientID}
	now := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity[lobbyID] = now

	sess, ok := s.sessions[key]
	if !ok {
		sess = SessionInfo{
			LobbyID:  lobbyID,
			ClientID: clientID,
			Token:    newSessionToken(),
			State:    SessionActive,
			LastSeen: now,
		}
		s.sessions[key] = sess
		return
	}
	sess.State = SessionActive
	sess.LastSeen = now
	sess.ReconnectDeadline = time.Time{}
	s.sessions[key] = sess
}

// MarkStreamRemoved moves the session to Grace with a fresh reconnect
// deadline when a subscriber stream closes. A session is synthesized if
// none existed so the lobby snapshot stays consistent. Idempotent.
func (s *SessionStore) MarkStreamRemoved(lobbyID, clientID int) {
	key := sessionKey{LobbyID: lobbyID, ClientID: clientID}
	now := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity[lobbyID] = now

	sess, ok := s.sessions[key]
	if !ok {
		sess = SessionInfo{
			LobbyID:  lobbyID,
			ClientID: clientID,
			Token:    newSessionToken(),
		}
	}
	sess.State = SessionGrace
	sess.LastSeen = now
	sess.ReconnectDeadline = now.Add(s.grace)
	s.sessions[key] = sess
}

// Snapshot counts the lobby's Active and still-valid Grace sessions and
// reports the latest Grace deadline. Grace sessions found past their
// own deadline are tagged Expired during the scan.
func (s *SessionStore) Snapshot(lobbyID int) LobbySnapshot {
	now := s.now().UTC()
	var snap LobbySnapshot

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, sess := range s.sessions {
		if key.LobbyID != lobbyID {
			continue
		}
		switch sess.State {
		case SessionActive:
			snap.Active++
		case SessionGrace:
			if now.After(sess.ReconnectDeadline) {
				sess.State = SessionExpired
				s.sessions[key] = sess
				continue
			}
			snap.Grace++
			if sess.ReconnectDeadline.After(snap.LatestGraceDeadline) {
				snap.LatestGraceDeadline = sess.ReconnectDeadline
			}
		}
	}
	return snap
}

// ExpireLobby tombstones every session of a lobby and returns how many
// records were tagged.
func (s *SessionStore) ExpireLobby(lobbyID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, sess := range s.sessions {
		if key.LobbyID != lobbyID || sess.State == SessionExpired {
			continue
		}
		sess.State = SessionExpired
		s.sessions[key] = sess
		n++
	}
	return n
}

// Session returns a copy of one session record.
func (s *SessionStore) Session(lobbyID, clientID int) (SessionInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionKey{LobbyID: lobbyID, ClientID: clientID}]
	return sess, ok
}
