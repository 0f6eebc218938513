package types

import (
	"time"

	"github.com/mrassell/haxball-solo/internal/shared/geom"
)

// PlayerInput is the per-tick control input for the human player.
// Kick and Pass are edge-triggered: the server consumes them once and the
// client clears them after sending.
type PlayerInput struct {
	Sequence uint64    `json:"sequence"`
	Move     geom.Vec2 `json:"move"` // normalized steering direction, -1..1 per axis
	Kick     bool      `json:"kick"`
	Pass     bool      `json:"pass"`
	ClientMS int64     `json:"client_ms"`
}

// PlayerState is the authoritative replicated state for one roster slot.
type PlayerState struct {
	Index       int       `json:"index"` // slot within the team roster, 0 = lead
	Team        string    `json:"team"`  // home|away
	DisplayName string    `json:"display_name,omitempty"`
	IsHuman     bool      `json:"is_human"`
	Position    geom.Vec2 `json:"position"`
	Velocity    geom.Vec2 `json:"velocity"`
	Radius      float64   `json:"radius"`
}

// BallState is the authoritative state for the ball.
type BallState struct {
	Position   geom.Vec2 `json:"position"`
	Velocity   geom.Vec2 `json:"velocity"`
	Radius     float64   `json:"radius"`
	Frozen     bool      `json:"frozen"`
	FreezeLeft float64   `json:"freeze_left"` // seconds until kickoff freeze ends
}

// ScoreState tracks goals per side.
type ScoreState struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

// MatchState is replicated to all clients.
type MatchState struct {
	MatchID   string          `json:"match_id"`
	Mode      string          `json:"mode"` // 1v1|2v2|3v3
	Tick      uint64          `json:"tick"`
	Paused    bool            `json:"paused"`
	CreatedAt time.Time       `json:"created_at"`
	Players   []PlayerState   `json:"players"`
	Ball      BallState       `json:"ball"`
	Score     ScoreState      `json:"score"`
	Events    []GameplayEvent `json:"events"`
}

// GameplayEvent tracks state changes worth UI/audio feedback.
type GameplayEvent struct {
	Type        string `json:"type"` // goal|kickoff|kick|pass|pause|resume
	Team        string `json:"team,omitempty"`
	PlayerIndex int    `json:"player_index,omitempty"`
	OccurredMS  int64  `json:"occurred_ms"`
}

// ClientEnvelope is sent from client to server.
type ClientEnvelope struct {
	Type   string       `json:"type"` // hello|input|pause|ping
	Input  *PlayerInput `json:"input,omitempty"`
	Paused *bool        `json:"paused,omitempty"`
}

// ServerEnvelope is sent from server to client.
type ServerEnvelope struct {
	Type     string      `json:"type"` // welcome|state|pong|error
	Tick     uint64      `json:"tick,omitempty"`
	State    *MatchState `json:"state,omitempty"`
	ServerMS int64       `json:"server_ms,omitempty"`
	Message  string      `json:"message,omitempty"`
	AckSeq   uint64      `json:"ack_seq,omitempty"`
}

// QueueJoinRequest requests matchmaking entry.
type QueueJoinRequest struct {
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
	Region      string `json:"region"`
	Playlist    string `json:"playlist"` // casual-1v1|casual-2v2|casual-3v3
	MMR         int    `json:"mmr"`
}

// QueueJoinResponse returns a ticket for polling.
type QueueJoinResponse struct {
	TicketID string `json:"ticket_id"`
	Status   string `json:"status"`
}

// MatchAssignment is returned once a ticket is assigned a match.
type MatchAssignment struct {
	TicketID    string  `json:"ticket_id"`
	MatchID     string  `json:"match_id"`
	Region      string  `json:"region"`
	Playlist    string  `json:"playlist"`
	Mode        string  `json:"mode"`       // derived from playlist
	Difficulty  float64 `json:"difficulty"` // 0..1 bot difficulty derived from MMR
	ServerAddr  string  `json:"server_addr"`
	FoundAtUnix int64   `json:"found_at_unix"`
}

// QueuePollResponse represents current matchmaking status.
type QueuePollResponse struct {
	TicketID   string           `json:"ticket_id"`
	Status     string           `json:"status"` // searching|matched|not_found
	Assignment *MatchAssignment `json:"assignment,omitempty"`
}

// GuestAuthRequest requests a guest player token.
type GuestAuthRequest struct {
	DisplayName string `json:"display_name"`
}

// GuestAuthResponse returns signed auth details.
type GuestAuthResponse struct {
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
	Token       string `json:"token"`
	ExpiresAt   int64  `json:"expires_at"`
}

// TelemetryEvent represents a gameplay/platform event.
type TelemetryEvent struct {
	EventID   string                 `json:"event_id"`
	EventType string                 `json:"event_type"`
	MatchID   string                 `json:"match_id,omitempty"`
	Team      string                 `json:"team,omitempty"`
	Timestamp int64                  `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload"`
}
