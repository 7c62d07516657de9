package models

import "time"

// Planner represents an authenticated user of the planning session
type Planner struct {
	// From JWT claims
	ID          string `json:"id"`          // Converted from int64 user_id
	Username    string `json:"username"`    // JWT claim
	Email       string `json:"email"`       // JWT claim
	Permissions int64  `json:"permissions"` // JWT claim: bitwise permission flags
	Activated   int64  `json:"activated"`   // JWT claim: activation timestamp or ban status
	AuthMethod  string `json:"auth_method"` // JWT claim: "password" or "oauth"

	// Connection state
	Connected   bool      `json:"connected"`
	ConnectedAt time.Time `json:"connected_at"`
	SessionID   string    `json:"session_id"`
}

// Permission bits carried in the permissions claim.
const (
	PermView int64 = 1 << iota
	PermEdit
)

// IsActive checks if the planner account is activated and not banned
func (p *Planner) IsActive() bool {
	// activated > 0 means activated
	// activated == 0 means not activated
	// activated == -1 means banned
	return p.Activated > 0
}

// IsBanned checks if the planner is banned
func (p *Planner) IsBanned() bool {
	return p.Activated == -1
}

// CanEdit reports whether the planner may change the shared plan.
// A zero permissions claim grants everything.
func (p *Planner) CanEdit() bool {
	return p.Permissions == 0 || p.Permissions&PermEdit != 0
}
