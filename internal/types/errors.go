package types

import "fmt"

// PathDeniedError is returned when a cwd falls outside the whitelist.
type PathDeniedError struct {
	Path string
}

func (e *PathDeniedError) Error() string {
	return fmt.Sprintf("path denied: %s is not in the cwd whitelist", e.Path)
}

// UnknownSessionError is returned when a session id has no ACL entry.
type UnknownSessionError struct {
	SessionID string
}

func (e *UnknownSessionError) Error() string {
	return fmt.Sprintf("unknown session: %s", e.SessionID)
}

// NotOwnerError is returned when a caller doesn't own the session it's addressing.
type NotOwnerError struct {
	SessionID string
	UserID    string
}

func (e *NotOwnerError) Error() string {
	return fmt.Sprintf("user %s does not own session %s", e.UserID, e.SessionID)
}

// SessionStoppedError is returned when an operation targets a dead session.
type SessionStoppedError struct {
	SessionID string
}

func (e *SessionStoppedError) Error() string {
	return fmt.Sprintf("session %s is stopped", e.SessionID)
}

// SessionBusyError is returned when a session is draining or switching.
type SessionBusyError struct {
	SessionID string
	State     SwitchState
}

func (e *SessionBusyError) Error() string {
	return fmt.Sprintf("session %s is busy (state=%s)", e.SessionID, e.State)
}

// NotSupportedError is returned when an operation is illegal in the current mode.
type NotSupportedError struct {
	Op   string
	Mode SessionMode
}

func (e *NotSupportedError) Error() string {
	return fmt.Sprintf("%s is not supported in %s mode", e.Op, e.Mode)
}

// InputBlockedError is returned when the PTY input filter rejects input.
type InputBlockedError struct {
	Reason string
}

func (e *InputBlockedError) Error() string {
	return fmt.Sprintf("input blocked: %s", e.Reason)
}

// RpcError is returned when an MCP child responds with a JSON-RPC error.
type RpcError struct {
	Code    int
	Message string
}

func (e *RpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// TimeoutError is returned when a blocking call exceeds its deadline.
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout waiting for %s", e.Op)
}

// TransportClosedError is returned when the child exits before responding.
type TransportClosedError struct {
	Reason string
}

func (e *TransportClosedError) Error() string {
	if e.Reason == "" {
		return "transport closed"
	}
	return fmt.Sprintf("transport closed: %s", e.Reason)
}

// CorruptStoreError is returned when the persistence file can't be parsed.
type CorruptStoreError struct {
	Path string
	Err  error
}

func (e *CorruptStoreError) Error() string {
	return fmt.Sprintf("corrupt store at %s: %v", e.Path, e.Err)
}

func (e *CorruptStoreError) Unwrap() error { return e.Err }

// SpawnFailedError is returned when a provider session's child process could
// not be started.
type SpawnFailedError struct {
	Provider string
	Err      error
}

func (e *SpawnFailedError) Error() string {
	return fmt.Sprintf("failed to spawn %s session: %v", e.Provider, e.Err)
}

func (e *SpawnFailedError) Unwrap() error { return e.Err }

// IsNotOwner reports whether err is a NotOwnerError.
func IsNotOwner(err error) bool {
	_, ok := err.(*NotOwnerError)
	return ok
}

// IsPathDenied reports whether err is a PathDeniedError.
func IsPathDenied(err error) bool {
	_, ok := err.(*PathDeniedError)
	return ok
}
