// Package health periodically probes every live session's process for
// liveness and reaps sessions whose process has disappeared out from
// under the supervisor.
package health

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/happyclaw/supervisor/internal/logging"
	"github.com/happyclaw/supervisor/internal/types"
)

// DefaultInterval is how often the checker sweeps live sessions.
const DefaultInterval = 30 * time.Second

// Manager is the subset of the session manager the checker needs: a
// snapshot of live (id, pid) pairs, and the ability to force-stop one
// that's gone dead.
type Manager interface {
	LivePIDs() map[string]int
	Stop(sessionID string, graceful bool) error
}

// Checker runs a ticker that probes each live session's pid with a
// signal-0 liveness check: the same unix.Kill call the procutil package's
// TerminateGroup uses to actually terminate a child, except the signal is
// 0, so the kernel only validates the pid exists and is ours without
// affecting it.
type Checker struct {
	mgr      Manager
	interval time.Duration
	bus      EventEmitter

	mu     sync.Mutex
	ticker *time.Ticker
	done   chan struct{}
}

// EventEmitter is the narrow slice of eventbus.Bus the checker needs.
type EventEmitter interface {
	Publish(ev types.SessionEvent)
}

// New creates a Checker. Call Start to begin probing.
func New(mgr Manager, bus EventEmitter, interval time.Duration) *Checker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Checker{mgr: mgr, bus: bus, interval: interval}
}

// Start begins the probe ticker. Safe to call once; a second call is a
// no-op.
func (c *Checker) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ticker != nil {
		return
	}
	c.ticker = time.NewTicker(c.interval)
	c.done = make(chan struct{})

	ticker := c.ticker
	done := c.done
	go func() {
		for {
			select {
			case <-ticker.C:
				c.sweep()
			case <-done:
				return
			}
		}
	}()
}

// Stop halts the probe ticker. Safe to call more than once.
func (c *Checker) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ticker == nil {
		return
	}
	c.ticker.Stop()
	close(c.done)
	c.ticker = nil
}

func (c *Checker) sweep() {
	for id, pid := range c.mgr.LivePIDs() {
		if pid <= 0 {
			continue // SDK-backed sessions have no process to probe
		}
		if isAlive(pid) {
			continue
		}

		logging.Logger().Warn().Str("session", id).Int("pid", pid).Msg("health check: process not found, reaping session")

		c.bus.Publish(types.SessionEvent{
			Kind:      types.EventError,
			Severity:  types.SeverityUrgent,
			SessionID: id,
			Timestamp: time.Now(),
			Summary:   "session process is no longer running",
		})

		if err := c.mgr.Stop(id, false); err != nil {
			logging.Logger().Debug().Str("session", id).Err(err).Msg("health check: stop after reap failed")
		}
	}
}

// isAlive probes pid with signal 0: ESRCH means the process doesn't
// exist, EPERM means it exists but we can't signal it (still alive from
// our point of view), anything else is treated as alive to avoid
// false-positive reaping.
func isAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	return err != unix.ESRCH
}
