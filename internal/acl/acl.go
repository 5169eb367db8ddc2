// Package acl records user-to-session ownership and rejects non-owner
// access.
package acl

import (
	"sync"

	"github.com/happyclaw/supervisor/internal/types"
)

// ACL is an in-memory session-id -> owner-user-id mapping.
type ACL struct {
	mu     sync.RWMutex
	owners map[string]string
}

// New creates an empty ACL.
func New() *ACL {
	return &ACL{owners: make(map[string]string)}
}

// Record sets the owner of sessionID. Called once at spawn/resume; ownership
// is immutable thereafter (callers must not call Record twice for the same
// id with a different owner).
func (a *ACL) Record(sessionID, ownerID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.owners[sessionID] = ownerID
}

// Clear removes the ownership entry for sessionID, called on stop.
func (a *ACL) Clear(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.owners, sessionID)
}

// Owner returns the recorded owner of sessionID, or "" if unknown.
func (a *ACL) Owner(sessionID string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	owner, ok := a.owners[sessionID]
	return owner, ok
}

// CanAccess reports whether user owns sessionID.
func (a *ACL) CanAccess(user, sessionID string) bool {
	owner, ok := a.Owner(sessionID)
	return ok && owner == user
}

// AssertOwner fails with UnknownSessionError if sessionID is unrecorded, or
// NotOwnerError if user isn't the recorded owner.
func (a *ACL) AssertOwner(user, sessionID string) error {
	owner, ok := a.Owner(sessionID)
	if !ok {
		return &types.UnknownSessionError{SessionID: sessionID}
	}
	if owner != user {
		return &types.NotOwnerError{SessionID: sessionID, UserID: user}
	}
	return nil
}
