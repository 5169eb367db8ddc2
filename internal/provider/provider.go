// Package provider defines the ProviderSession contract implemented by
// each backend kind (sdk, mcp, pty) and a name-keyed registry for
// constructing them.
package provider

import (
	"context"

	"github.com/happyclaw/supervisor/internal/types"
)

// Kind names a provider backend.
type Kind string

const (
	KindSDK Kind = "sdk"
	KindMCP Kind = "mcp"
	KindPTY Kind = "pty"
)

// Session is the uniform interface the session manager drives regardless
// of which backend kind actually owns the child process.
type Session interface {
	// ID is the session's supervisor-assigned id.
	ID() string
	// Provider names the backend kind.
	Provider() Kind
	// PID is the child process id, or 0 if the provider has none.
	PID() int
	// Cwd is the working directory the session was spawned in.
	Cwd() string
	// Mode is the current local/remote mode.
	Mode() types.SessionMode

	// Send delivers user input to the session. Implementations must run
	// it through ptyparser.FilterInput (or an equivalent guard) before
	// writing to a real child.
	Send(ctx context.Context, text string) error
	// RespondToPermission resolves an outstanding permission request.
	// The sdk provider returns an error if requestID has already been
	// resolved or is unknown; the mcp provider forwards the answer to the
	// child, and the pty provider types y/n without checking requestID.
	RespondToPermission(ctx context.Context, requestID string, allow bool) error
	// SwitchMode transitions between local and remote mode. Returns
	// NotSupportedError if the provider kind doesn't support the
	// requested mode.
	SwitchMode(ctx context.Context, mode types.SessionMode) error
	// Stop terminates the underlying child and releases resources. Safe
	// to call more than once.
	Stop(ctx context.Context) error

	// OnMessage registers a callback invoked for every SessionMessage the
	// provider produces. Only one callback is retained; later calls
	// replace it.
	OnMessage(func(types.SessionMessage))
	// OnEvent registers a callback invoked for every SessionEvent the
	// provider produces (errors, readiness, permission requests). Only
	// one callback is retained; later calls replace it.
	OnEvent(func(types.SessionEvent))
}

// Factory constructs a Session for a given spawn request.
type Factory func(ctx context.Context, req SpawnRequest) (Session, error)

// SpawnRequest carries everything a Factory needs to create a Session.
type SpawnRequest struct {
	SessionID string
	Cwd       string
	OwnerID   string
	// Command is the child argv for mcp/pty providers. Unused by sdk.
	Command []string
	// Env is an environment overlay for mcp/pty providers.
	Env map[string]string
}

// Registry maps provider kind names to their Factory.
type Registry struct {
	factories map[Kind]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Kind]Factory)}
}

// Register associates kind with a Factory, replacing any existing one.
func (r *Registry) Register(kind Kind, f Factory) {
	r.factories[kind] = f
}

// Spawn looks up kind's Factory and invokes it.
func (r *Registry) Spawn(ctx context.Context, kind Kind, req SpawnRequest) (Session, error) {
	f, ok := r.factories[kind]
	if !ok {
		return nil, &types.NotSupportedError{Op: "spawn provider " + string(kind)}
	}
	return f(ctx, req)
}
