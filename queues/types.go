package queues

import (
	"context"
	"time"
)

// EnvelopeType classifies inbound messages from the backend fleet.
type EnvelopeType string

const (
	TypeMatchRegistered   EnvelopeType = "match-registered"
	TypeMatchUnregistered EnvelopeType = "match-unregistered"
	TypeServerStatus      EnvelopeType = "server-status"
)

// ServerStatusPayload carries a gameplay phase report for a lobby.
type ServerStatusPayload struct {
	Status       string `json:"status"`
	TotalPlayers int    `json:"totalPlayers"`
	MaxPlayers   int    `json:"maxPlayers"`
}

// MatchEnvelope is one message from a backend game server announcing a
// match registration, unregistration, or status change.
type MatchEnvelope struct {
	EnvelopeVersion string               `json:"envelopeVersion"`
	Type            EnvelopeType         `json:"type"`
	MatchID         string               `json:"matchId,omitempty"`
	LobbyID         int                  `json:"lobbyId"`
	ServerID        int64                `json:"serverId,omitempty"`
	ServerIP        string               `json:"serverIp,omitempty"`
	ServerPort      uint32               `json:"serverPort,omitempty"`
	ClientIDs       []int                `json:"clientIds,omitempty"`
	Status          *ServerStatusPayload `json:"status,omitempty"`
}

// AllocationEventEnvelope mirrors a broadcast allocation event for
// services that are not stream subscribers.
type AllocationEventEnvelope struct {
	EnvelopeVersion string    `json:"envelopeVersion"`
	Type            string    `json:"type"`
	Event           string    `json:"event"`
	AllocationID    string    `json:"allocationId"`
	LobbyID         int       `json:"lobbyId"`
	Timestamp       time.Time `json:"timestamp"`
}

type Subscriber interface {
	Start(ctx context.Context, handler func(context.Context, *MatchEnvelope) error) error
}

type Publisher interface {
	PublishEvent(ctx context.Context, ev *AllocationEventEnvelope) error
}
