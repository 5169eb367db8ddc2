// Package types provides the shared data model for the session supervisor:
// session records, messages, events, permission requests and audit entries.
package types

import "time"

// SessionMode selects whether a session's stdio is attached to the human
// terminal (local) or captured and mediated by the supervisor (remote).
type SessionMode string

const (
	ModeLocal  SessionMode = "local"
	ModeRemote SessionMode = "remote"
)

// SwitchState is the finite-state tag a session presents during a mode
// transition.
type SwitchState string

const (
	StateRunning   SwitchState = "running"
	StateDraining  SwitchState = "draining"
	StateSwitching SwitchState = "switching"
	StateError     SwitchState = "error"
)

// SessionRecord is the in-memory entity owned by the SessionManager.
type SessionRecord struct {
	ID           string
	Provider     string
	Cwd          string
	Mode         SessionMode
	OwnerID      string
	PID          int
	SwitchState  SwitchState
	CreatedAt    time.Time
	LastActivity time.Time
}

// PersistedSession is the durable projection of a SessionRecord written to
// sessions.json. No other state survives a restart.
type PersistedSession struct {
	ID        string      `json:"id"`
	Provider  string      `json:"provider"`
	Cwd       string      `json:"cwd"`
	PID       int         `json:"pid"`
	OwnerID   string      `json:"ownerId"`
	Mode      SessionMode `json:"mode"`
	CreatedAt time.Time   `json:"createdAt"`
}

// ToPersisted projects a SessionRecord to its durable form.
func (r *SessionRecord) ToPersisted() PersistedSession {
	return PersistedSession{
		ID:        r.ID,
		Provider:  r.Provider,
		Cwd:       r.Cwd,
		PID:       r.PID,
		OwnerID:   r.OwnerID,
		Mode:      r.Mode,
		CreatedAt: r.CreatedAt,
	}
}
