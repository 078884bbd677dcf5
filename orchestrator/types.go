package orchestrator

import (
	"context"
	"time"
)

// MatchInfo identifies one provisioned game-server allocation and the
// lobby it serves. At most one live match exists per lobby.
type MatchInfo struct {
	MatchID    string
	ServerID   int64
	ServerIP   string
	ServerPort uint32
	LobbyID    int
	ClientIDs  []int
}

// GameplayStatus is the last known phase reported by a backend server.
type GameplayStatus string

const (
	GameplayUnknown    GameplayStatus = "Unknown"
	GameplayStarting   GameplayStatus = "Starting"
	GameplayReady      GameplayStatus = "Ready"
	GameplayEnding     GameplayStatus = "Ending"
	GameplayTerminated GameplayStatus = "Terminated"
)

// ServerStatusInfo is overwritten wholesale on every status update.
type ServerStatusInfo struct {
	Status       GameplayStatus
	TotalPlayers int
	MaxPlayers   int
}

// SessionState is the lifecycle of one (lobby, client) session.
type SessionState string

const (
	SessionActive  SessionState = "Active"
	SessionGrace   SessionState = "Grace"
	SessionExpired SessionState = "Expired"
)

// SessionInfo is one session record. Records are replaced wholesale on
// every transition; Expired records remain as tombstones.
type SessionInfo struct {
	LobbyID           int
	ClientID          int
	Token             string
	State             SessionState
	LastSeen          time.Time
	ReconnectDeadline time.Time
}

// EventType classifies allocation lifecycle events.
type EventType string

const (
	EventAllocationCreated EventType = "AllocationCreated"
	EventAllocationDeleted EventType = "AllocationDeleted"
)

// AllocationEvent is broadcast to every subscriber of a lobby.
type AllocationEvent struct {
	Type         EventType
	AllocationID string
	LobbyID      int
	Timestamp    time.Time
}

// Sink is one subscriber's outbound event channel, owned by the
// streaming transport. A failed Send marks the subscriber dead; the hub
// prunes it without closing the transport.
type Sink interface {
	Send(ctx context.Context, ev AllocationEvent) error
}

// ResumeResult is the outcome of a resume-or-issue call. Match is nil
// when no allocation is currently registered for the lobby.
type ResumeResult struct {
	OK      bool
	Resumed bool
	Token   string
	Match   *MatchInfo
	Status  ServerStatusInfo
	Reason  string
}

// LobbySnapshot summarises one lobby's sessions at a point in time.
// Grace counts only sessions still within their reconnect deadline;
// LatestGraceDeadline is zero when there are none.
type LobbySnapshot struct {
	Active              int
	Grace               int
	LatestGraceDeadline time.Time
}
