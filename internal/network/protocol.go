package network

import (
	"encoding/json"

	"github.com/gravitas-games/cellplan/internal/cluster"
	"github.com/gravitas-games/cellplan/internal/pattern"
	"github.com/gravitas-games/cellplan/pkg/models"
)

// Message types - Client → Server
const (
	MsgTypeSubmit         = "submit"
	MsgTypeSetClusterSize = "set_cluster_size"
	MsgTypeGetPlane       = "get_plane"
	MsgTypePing           = "ping"
)

// Message types - Server → Client
const (
	MsgTypeWelcome  = "welcome"
	MsgTypePlane    = "plane"
	MsgTypeRejected = "rejected"
	MsgTypeError    = "error"
	MsgTypePong     = "pong"
)

// Error codes
const (
	CodeInvalidMessage     = "invalid_message"
	CodeUnknownMessageType = "unknown_message_type"
	CodeInvalidClusterSize = "invalid_cluster_size"
	CodeForbidden          = "forbidden"
	CodeSubmitFailed       = "submit_failed"
)

// ClientMessage represents any message from client to server
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ServerMessage represents any message from server to client
type ServerMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// --- Client Message Payloads ---

// SubmitPayload carries the whole parameter form
type SubmitPayload struct {
	Parameters models.Parameters `json:"parameters"`
}

// SetClusterSizePayload carries only the raw reuse factor
type SetClusterSizePayload struct {
	Value string `json:"value"`
}

// --- Server Message Payloads ---

// WelcomePayload is sent to client after successful connection
type WelcomePayload struct {
	ConnectionID string       `json:"connection_id"`
	PlannerID    string       `json:"planner_id"`
	Username     string       `json:"username"`
	SessionID    string       `json:"session_id"`
	Plane        PlanePayload `json:"plane"`
}

// CellPayload is one hex as the renderer draws it
type CellPayload struct {
	Q           int    `json:"q"`
	R           int    `json:"r"`
	S           int    `json:"s"`
	Color       int    `json:"color"`
	Hex         string `json:"hex"`
	BaseCluster bool   `json:"base_cluster"`
}

// PlanePayload is a full plan
type PlanePayload struct {
	Version    uint64            `json:"version"`
	N          int               `json:"n"`
	Tiled      bool              `json:"tiled"`
	Parameters models.Parameters `json:"parameters"`
	Stats      cluster.Stats     `json:"stats"`
	Cells      []CellPayload     `json:"cells"`
}

// RejectedPayload tells the submitter its cluster size was refused
type RejectedPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Input   string `json:"input"`
}

// ErrorPayload contains error information
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewPlanePayload converts a snapshot for the wire
func NewPlanePayload(snap pattern.Snapshot) PlanePayload {
	cells := make([]CellPayload, len(snap.Cells))
	for i, c := range snap.Cells {
		cells[i] = CellPayload{
			Q:           c.Coord.Q,
			R:           c.Coord.R,
			S:           c.Coord.S(),
			Color:       int(c.Color),
			Hex:         c.Color.Hex(),
			BaseCluster: c.Seed,
		}
	}
	return PlanePayload{
		Version:    snap.Version,
		N:          snap.N,
		Tiled:      snap.Tiled,
		Parameters: snap.Parameters,
		Stats:      snap.Stats,
		Cells:      cells,
	}
}
