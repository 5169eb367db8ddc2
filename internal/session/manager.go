// Package session implements the SessionManager: the top-level registry
// that owns every session's lifecycle, ownership, persistence, and the
// local/remote switch-state machine described in the component design.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/happyclaw/supervisor/internal/acl"
	"github.com/happyclaw/supervisor/internal/audit"
	"github.com/happyclaw/supervisor/internal/command"
	"github.com/happyclaw/supervisor/internal/cwdwhitelist"
	"github.com/happyclaw/supervisor/internal/eventbus"
	"github.com/happyclaw/supervisor/internal/health"
	"github.com/happyclaw/supervisor/internal/logging"
	"github.com/happyclaw/supervisor/internal/persistence"
	"github.com/happyclaw/supervisor/internal/provider"
	"github.com/happyclaw/supervisor/internal/types"
)

// Manager satisfies health.Manager so a Checker can probe and reap the
// sessions this package owns.
var _ health.Manager = (*Manager)(nil)

const (
	// DefaultStopGrace bounds how long a graceful Stop's context gives the
	// provider's Stop to let the child exit on its own before the caller
	// moves on; escalation past that point is each provider's concern.
	DefaultStopGrace = 5 * time.Second
	// DefaultDrainTimeout bounds how long SwitchMode's draining step waits
	// for the old child to exit before spawning the replacement anyway.
	DefaultDrainTimeout = 5 * time.Second
	// DefaultReadLimit is applied when ReadMessages is called with limit<=0.
	DefaultReadLimit = 50

	// resumeEnvKey is the environment-variable convention mcp/pty child
	// commands receive on resume/switch so an agent CLI that supports it
	// can reload its own history for this session id.
	resumeEnvKey = "HAPPYCLAW_RESUME_SESSION_ID"
)

// entry is the manager's bookkeeping for one session: the mutable record,
// the live provider.Session, and the per-session message read buffer. All
// three are guarded by mu so Send/Read/SwitchMode/Stop never race for the
// same session, generalizing the teacher's Service.active bookkeeping
// (internal/session/service.go) into a single per-session lock.
type entry struct {
	mu         sync.Mutex
	record     types.SessionRecord
	session    provider.Session
	messages   []types.SessionMessage
	cancelTurn context.CancelFunc
}

// Manager is the SessionManager described in the component design: the
// registry of every live session, wired to the ACL, the cwd whitelist,
// persistence, the provider registry and the event bus.
type Manager struct {
	acl       *acl.ACL
	whitelist *cwdwhitelist.Whitelist
	store     *persistence.Store
	registry  *provider.Registry
	bus       *eventbus.Bus
	audit     *audit.Logger

	stopGrace    time.Duration
	drainTimeout time.Duration
	intercept    command.Interceptor

	mu       sync.RWMutex
	sessions map[string]*entry
}

// Option configures a Manager.
type Option func(*Manager)

// WithStopGrace overrides the default 5s grace window a graceful Stop
// gives the provider to tear its child down.
func WithStopGrace(d time.Duration) Option {
	return func(m *Manager) { m.stopGrace = d }
}

// WithDrainTimeout overrides the default 5s SwitchMode drain timeout.
func WithDrainTimeout(d time.Duration) Option {
	return func(m *Manager) { m.drainTimeout = d }
}

// WithInterceptor overrides the default command.DefaultInterceptor used to
// recognize reserved control strings passed to Send.
func WithInterceptor(i command.Interceptor) Option {
	return func(m *Manager) { m.intercept = i }
}

// New creates a Manager. al (the audit logger) may be nil, in which case
// audit entries are silently skipped.
func New(a *acl.ACL, wl *cwdwhitelist.Whitelist, store *persistence.Store, reg *provider.Registry, bus *eventbus.Bus, al *audit.Logger, opts ...Option) *Manager {
	m := &Manager{
		acl:          a,
		whitelist:    wl,
		store:        store,
		registry:     reg,
		bus:          bus,
		audit:        al,
		stopGrace:    DefaultStopGrace,
		drainTimeout: DefaultDrainTimeout,
		intercept:    command.DefaultInterceptor,
		sessions:     make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SpawnOptions carries the caller-supplied parameters for Spawn.
type SpawnOptions struct {
	Cwd string
	// Mode, if empty, keeps the provider's own default (local for mcp/pty,
	// remote for sdk).
	Mode types.SessionMode
	// Command is the child argv for mcp/pty providers. Ignored by sdk.
	Command []string
	// Env is an environment overlay forwarded to mcp/pty child processes.
	Env map[string]string
}

// ListFilter narrows List to sessions matching the given fields; zero
// values are wildcards.
type ListFilter struct {
	Cwd      string
	Provider string
}

// newSessionID returns a unique, provider-prefixed, time-sortable session
// id, mirroring the teacher's ulid.Make()-based id generation
// (internal/session/service.go's generateID) with a provider-kind prefix
// so ids are self-describing.
func newSessionID(kind provider.Kind) string {
	return fmt.Sprintf("%s_%s", kind, ulid.Make().String())
}

// Spawn validates cwd against the whitelist, spawns a new provider session
// of kind, records ownership, persists the record, and audits the call.
func (m *Manager) Spawn(ctx context.Context, kind provider.Kind, opts SpawnOptions, ownerID string) (*types.SessionRecord, error) {
	cwd := cwdwhitelist.Canonical(opts.Cwd)
	if err := m.whitelist.Assert(cwd); err != nil {
		return nil, err
	}

	id := newSessionID(kind)

	sess, err := m.registry.Spawn(ctx, kind, provider.SpawnRequest{
		SessionID: id,
		Cwd:       cwd,
		OwnerID:   ownerID,
		Command:   opts.Command,
		Env:       opts.Env,
	})
	if err != nil {
		return nil, err
	}

	// An unset Mode keeps whatever the freshly spawned provider defaults
	// to (e.g. the SDK provider has no local variant to default away
	// from); only an explicit request forces a switch.
	mode := opts.Mode
	if mode != "" && mode != sess.Mode() {
		if err := sess.SwitchMode(ctx, mode); err != nil {
			_ = sess.Stop(ctx)
			return nil, err
		}
	}

	now := time.Now()
	record := types.SessionRecord{
		ID:           id,
		Provider:     string(kind),
		Cwd:          cwd,
		Mode:         sess.Mode(),
		OwnerID:      ownerID,
		PID:          sess.PID(),
		SwitchState:  types.StateRunning,
		CreatedAt:    now,
		LastActivity: now,
	}

	e := &entry{record: record, session: sess}
	m.wireSession(e)

	m.mu.Lock()
	m.sessions[id] = e
	m.mu.Unlock()

	m.acl.Record(id, ownerID)

	if err := m.store.Add(record.ToPersisted()); err != nil {
		logging.Logger().Error().Err(err).Str("session", id).Msg("session: persist spawn failed")
	}
	m.logAudit(ownerID, "session.spawn", id, map[string]any{
		"provider": string(kind), "cwd": cwd, "mode": string(record.Mode),
	})

	out := record
	return &out, nil
}

// Resume reattaches to sessionID: if it is already live in this process,
// it's returned as-is (after an ownership check); otherwise the manager
// consults persistence and re-spawns the provider with the same id so an
// agent CLI that keeps its own history can reload it.
func (m *Manager) Resume(ctx context.Context, userID, sessionID string, mode types.SessionMode) (*types.SessionRecord, error) {
	m.mu.RLock()
	e, live := m.sessions[sessionID]
	m.mu.RUnlock()

	if live {
		if err := m.acl.AssertOwner(userID, sessionID); err != nil {
			return nil, err
		}
		e.mu.Lock()
		out := e.record
		e.mu.Unlock()
		return &out, nil
	}

	persisted, err := m.findPersisted(sessionID)
	if err != nil {
		return nil, err
	}
	if persisted == nil {
		return nil, &types.UnknownSessionError{SessionID: sessionID}
	}
	if persisted.OwnerID != userID {
		return nil, &types.NotOwnerError{SessionID: sessionID, UserID: userID}
	}

	if mode == "" {
		mode = persisted.Mode
	}

	kind := provider.Kind(persisted.Provider)
	sess, err := m.registry.Spawn(ctx, kind, provider.SpawnRequest{
		SessionID: sessionID,
		Cwd:       persisted.Cwd,
		OwnerID:   userID,
		Env:       map[string]string{resumeEnvKey: sessionID},
	})
	if err != nil {
		return nil, err
	}

	if mode != sess.Mode() {
		if err := sess.SwitchMode(ctx, mode); err != nil {
			_ = sess.Stop(ctx)
			return nil, err
		}
	}

	now := time.Now()
	record := types.SessionRecord{
		ID:           sessionID,
		Provider:     persisted.Provider,
		Cwd:          persisted.Cwd,
		Mode:         sess.Mode(),
		OwnerID:      userID,
		PID:          sess.PID(),
		SwitchState:  types.StateRunning,
		CreatedAt:    persisted.CreatedAt,
		LastActivity: now,
	}

	ne := &entry{record: record, session: sess}
	m.wireSession(ne)

	m.mu.Lock()
	m.sessions[sessionID] = ne
	m.mu.Unlock()

	m.acl.Record(sessionID, userID)
	if err := m.store.Update(record.ToPersisted()); err != nil {
		logging.Logger().Error().Err(err).Str("session", sessionID).Msg("session: persist resume failed")
	}
	m.logAudit(userID, "session.resume", sessionID, map[string]any{"provider": persisted.Provider})

	out := record
	return &out, nil
}

// Get returns userID's session record for sessionID.
func (m *Manager) Get(userID, sessionID string) (*types.SessionRecord, error) {
	e, err := m.authorize(userID, sessionID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	rec := e.record
	e.mu.Unlock()
	return &rec, nil
}

// List returns every session owned by userID, narrowed by filter.
func (m *Manager) List(userID string, filter ListFilter) []types.SessionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]types.SessionRecord, 0, len(m.sessions))
	for id, e := range m.sessions {
		if !m.acl.CanAccess(userID, id) {
			continue
		}
		e.mu.Lock()
		rec := e.record
		e.mu.Unlock()

		if filter.Cwd != "" && rec.Cwd != filter.Cwd {
			continue
		}
		if filter.Provider != "" && rec.Provider != filter.Provider {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// ReadMessages returns a contiguous slice of sessionID's message buffer
// starting at cursor (default 0), up to limit entries (default
// DefaultReadLimit). It never blocks and never removes entries. nextCursor
// is the exclusive upper bound the caller should pass back as cursor on
// the next call.
func (m *Manager) ReadMessages(userID, sessionID string, cursor, limit int) (msgs []types.SessionMessage, nextCursor int, err error) {
	e, err := m.authorize(userID, sessionID)
	if err != nil {
		return nil, 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.record.SwitchState != types.StateRunning {
		return nil, 0, &types.SessionBusyError{SessionID: sessionID, State: e.record.SwitchState}
	}
	if e.record.Mode == types.ModeLocal {
		return nil, 0, &types.NotSupportedError{Op: "read", Mode: types.ModeLocal}
	}

	if limit <= 0 {
		limit = DefaultReadLimit
	}
	if cursor < 0 {
		cursor = 0
	}
	total := len(e.messages)
	if cursor >= total {
		return []types.SessionMessage{}, total, nil
	}

	end := cursor + limit
	if end > total {
		end = total
	}
	out := make([]types.SessionMessage, end-cursor)
	copy(out, e.messages[cursor:end])
	return out, end, nil
}

// Send delivers text to sessionID, refusing if the session is busy
// switching modes or is in local mode (stdio attached to a human
// terminal, per the provider contract). Before reaching the provider,
// text passes through the manager's command interceptor: a match cancels
// the session's in-flight turn (if any) instead of being forwarded.
func (m *Manager) Send(ctx context.Context, userID, sessionID, text string) error {
	e, err := m.authorize(userID, sessionID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.record.SwitchState != types.StateRunning {
		st := e.record.SwitchState
		e.mu.Unlock()
		return &types.SessionBusyError{SessionID: sessionID, State: st}
	}
	if e.record.Mode == types.ModeLocal {
		e.mu.Unlock()
		return &types.NotSupportedError{Op: "send", Mode: types.ModeLocal}
	}

	if m.intercept != nil && m.intercept(text) {
		cancel := e.cancelTurn
		e.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		m.logAudit(userID, "session.abort", sessionID, nil)
		return nil
	}

	sess := e.session
	turnCtx, cancel := context.WithCancel(ctx)
	e.cancelTurn = cancel
	e.mu.Unlock()

	if err := sess.Send(turnCtx, text); err != nil {
		return err
	}

	e.mu.Lock()
	e.record.LastActivity = time.Now()
	e.mu.Unlock()

	m.logAudit(userID, "session.send", sessionID, nil)
	return nil
}

// Summarize returns message-count/byte statistics over sessionID's current
// read buffer, without consuming or resetting the cursor ReadMessages
// callers track themselves.
func (m *Manager) Summarize(userID, sessionID string) (command.Stats, error) {
	e, err := m.authorize(userID, sessionID)
	if err != nil {
		return command.Stats{}, err
	}
	e.mu.Lock()
	msgs := make([]types.SessionMessage, len(e.messages))
	copy(msgs, e.messages)
	e.mu.Unlock()

	return command.Summarize(msgs), nil
}

// RespondToPermission resolves a pending permission request on sessionID.
func (m *Manager) RespondToPermission(ctx context.Context, userID, sessionID, requestID string, allow bool) error {
	e, err := m.authorize(userID, sessionID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.record.SwitchState != types.StateRunning {
		st := e.record.SwitchState
		e.mu.Unlock()
		return &types.SessionBusyError{SessionID: sessionID, State: st}
	}
	if e.record.Mode == types.ModeLocal {
		e.mu.Unlock()
		return &types.NotSupportedError{Op: "respond", Mode: types.ModeLocal}
	}
	sess := e.session
	e.mu.Unlock()

	if err := sess.RespondToPermission(ctx, requestID, allow); err != nil {
		return err
	}

	m.logAudit(userID, "session.respond", sessionID, map[string]any{"requestId": requestID, "allow": allow})
	return nil
}

// SwitchMode drives the running -> draining -> switching -> {running,error}
// state machine: it stops the current child, then spawns a replacement in
// target mode under the same session id. The record's id and ownership
// survive the switch regardless of outcome.
func (m *Manager) SwitchMode(ctx context.Context, userID, sessionID string, target types.SessionMode) (*types.SessionRecord, error) {
	e, err := m.authorize(userID, sessionID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.record.SwitchState != types.StateRunning {
		st := e.record.SwitchState
		e.mu.Unlock()
		return nil, &types.SessionBusyError{SessionID: sessionID, State: st}
	}
	if e.record.Mode == target {
		rec := e.record
		e.mu.Unlock()
		return &rec, nil
	}

	oldSession := e.session
	kind := provider.Kind(e.record.Provider)
	cwd := e.record.Cwd
	owner := e.record.OwnerID
	e.record.SwitchState = types.StateDraining
	e.mu.Unlock()

	drainCtx, cancel := context.WithTimeout(ctx, m.drainTimeout)
	if err := oldSession.Stop(drainCtx); err != nil {
		logging.Logger().Debug().Str("session", sessionID).Err(err).Msg("session: switch drain stop returned error")
	}
	cancel()

	e.mu.Lock()
	e.record.SwitchState = types.StateSwitching
	e.mu.Unlock()

	newSess, spawnErr := m.registry.Spawn(ctx, kind, provider.SpawnRequest{
		SessionID: sessionID,
		Cwd:       cwd,
		OwnerID:   owner,
		Env:       map[string]string{resumeEnvKey: sessionID},
	})
	if spawnErr != nil {
		e.mu.Lock()
		e.record.SwitchState = types.StateError
		rec := e.record
		e.mu.Unlock()
		m.logAudit(userID, "session.switch_failed", sessionID, map[string]any{"target": string(target), "error": spawnErr.Error()})
		return &rec, spawnErr
	}

	if target != newSess.Mode() {
		if err := newSess.SwitchMode(ctx, target); err != nil {
			_ = newSess.Stop(ctx)
			e.mu.Lock()
			e.record.SwitchState = types.StateError
			rec := e.record
			e.mu.Unlock()
			m.logAudit(userID, "session.switch_failed", sessionID, map[string]any{"target": string(target), "error": err.Error()})
			return &rec, err
		}
	}

	e.mu.Lock()
	e.session = newSess
	e.record.Mode = newSess.Mode()
	e.record.PID = newSess.PID()
	e.record.SwitchState = types.StateRunning
	e.record.LastActivity = time.Now()
	e.messages = nil // the new child starts a fresh read buffer
	rec := e.record
	e.mu.Unlock()

	m.wireSession(e)

	if err := m.store.Update(rec.ToPersisted()); err != nil {
		logging.Logger().Error().Err(err).Str("session", sessionID).Msg("session: persist switch failed")
	}
	m.logAudit(userID, "session.switch", sessionID, map[string]any{"target": string(target)})

	return &rec, nil
}

// Stop is the ACL-free form used internally (the HealthChecker calls this
// directly, since a dead child's owner is irrelevant to reaping it).
// graceful=true gives the provider's Stop a bounded grace window;
// graceful=false asks it to tear the child down immediately. It never
// returns an error for a process that's already gone.
func (m *Manager) Stop(sessionID string, graceful bool) error {
	m.mu.Lock()
	e, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	if !ok {
		return &types.UnknownSessionError{SessionID: sessionID}
	}

	e.mu.Lock()
	sess := e.session
	id := e.record.ID
	owner := e.record.OwnerID
	e.mu.Unlock()

	// graceful gives the provider's TERM-then-KILL escalation the full
	// stop grace window to let the child exit on its own; force collapses
	// that window to nothing so the escalation to KILL happens immediately.
	grace := m.stopGrace
	if !graceful {
		grace = 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := sess.Stop(ctx); err != nil {
		logging.Logger().Debug().Str("session", id).Err(err).Msg("session: provider stop returned error")
	}

	m.acl.Clear(id)
	m.bus.RemoveSession(id)
	if err := m.store.Remove(id); err != nil {
		logging.Logger().Error().Err(err).Str("session", id).Msg("session: persist stop failed")
	}
	m.logAudit(owner, "session.stop", id, map[string]any{"graceful": graceful})
	return nil
}

// StopAsOwner is the ACL-checked tool-surface form of Stop: force=true
// kills the child immediately, force=false gives it the grace window.
func (m *Manager) StopAsOwner(userID, sessionID string, force bool) error {
	if _, err := m.authorize(userID, sessionID); err != nil {
		return err
	}
	return m.Stop(sessionID, !force)
}

// Shutdown gracefully stops every live session, for use on the process's
// own shutdown path. It does not dispose the event bus or audit
// logger — callers own closing those.
func (m *Manager) Shutdown() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if err := m.Stop(id, true); err != nil {
			logging.Logger().Debug().Str("session", id).Err(err).Msg("session: shutdown stop failed")
		}
	}
}

// Emit publishes ev to the event bus. It is the entry point providers and
// the HealthChecker use to surface state transitions.
func (m *Manager) Emit(ev types.SessionEvent) {
	m.bus.Publish(ev)
}

// GetSwitchState returns sessionID's current switch state.
func (m *Manager) GetSwitchState(sessionID string) (types.SwitchState, error) {
	m.mu.RLock()
	e, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return "", &types.UnknownSessionError{SessionID: sessionID}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record.SwitchState, nil
}

// GetLastActivity returns sessionID's last-activity timestamp.
func (m *Manager) GetLastActivity(sessionID string) (time.Time, error) {
	m.mu.RLock()
	e, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return time.Time{}, &types.UnknownSessionError{SessionID: sessionID}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record.LastActivity, nil
}

// LivePIDs satisfies health.Manager: a snapshot of every live session's
// (id, pid) pair, including zero pids for SDK-backed sessions that have no
// real process for the checker to skip.
func (m *Manager) LivePIDs() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]int, len(m.sessions))
	for id, e := range m.sessions {
		e.mu.Lock()
		out[id] = e.record.PID
		e.mu.Unlock()
	}
	return out
}

func (m *Manager) wireSession(e *entry) {
	e.session.OnMessage(func(msg types.SessionMessage) {
		e.mu.Lock()
		e.messages = append(e.messages, msg)
		e.record.LastActivity = time.Now()
		e.mu.Unlock()
	})
	e.session.OnEvent(func(ev types.SessionEvent) {
		m.bus.Publish(ev)
	})
}

func (m *Manager) authorize(userID, sessionID string) (*entry, error) {
	if err := m.acl.AssertOwner(userID, sessionID); err != nil {
		return nil, err
	}
	m.mu.RLock()
	e, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, &types.UnknownSessionError{SessionID: sessionID}
	}
	return e, nil
}

func (m *Manager) findPersisted(id string) (*types.PersistedSession, error) {
	list, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].ID == id {
			return &list[i], nil
		}
	}
	return nil, nil
}

func (m *Manager) logAudit(userID, action, sessionID string, details map[string]any) {
	if m.audit == nil {
		return
	}
	entry := types.AuditEntry{
		Timestamp: time.Now(),
		UserID:    userID,
		Action:    action,
		SessionID: sessionID,
		Details:   details,
	}
	if err := m.audit.Log(entry); err != nil {
		logging.Logger().Error().Err(err).Str("action", action).Msg("session: audit log failed")
	}
}
