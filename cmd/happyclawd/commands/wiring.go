package commands

import (
	"fmt"
	"os"

	"github.com/happyclaw/supervisor/internal/acl"
	"github.com/happyclaw/supervisor/internal/audit"
	"github.com/happyclaw/supervisor/internal/config"
	"github.com/happyclaw/supervisor/internal/cwdwhitelist"
	"github.com/happyclaw/supervisor/internal/eventbus"
	"github.com/happyclaw/supervisor/internal/health"
	"github.com/happyclaw/supervisor/internal/logging"
	"github.com/happyclaw/supervisor/internal/persistence"
	"github.com/happyclaw/supervisor/internal/provider"
	"github.com/happyclaw/supervisor/internal/session"
)

// supervisor bundles every long-lived component wired into a single
// SessionManager, assembled in the order the teacher's serveCmd
// documents.
type supervisor struct {
	paths   *config.Paths
	cfg     config.Config
	store   *persistence.Store
	auditLg *audit.Logger
	bus     *eventbus.Bus
	mgr     *session.Manager
	checker *health.Checker
}

// buildSupervisor resolves the data directory, loads config.yaml, and
// wires ACL, whitelist, persistence, audit, the provider registry, the
// event bus and a health checker into a SessionManager. No SDK-backed
// AgentStream is registered here: this CLI only drives mcp/pty-backed
// sessions directly; embedding happyclaw as a library with a real
// completion engine is how SDK sessions get wired.
func buildSupervisor() (*supervisor, error) {
	paths := config.GetPaths()
	if dataDir != "" {
		paths.Data = dataDir
	}
	if err := paths.Ensure(); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	cfg, err := config.Load(paths.ConfigPath())
	if err != nil {
		return nil, err
	}

	store := persistence.New(paths.Data)
	auditLg, err := audit.Open(paths.Data)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	a := acl.New()
	wl := cwdwhitelist.New(cfg.Whitelist...)
	bus := eventbus.New()
	reg := provider.NewDefaultRegistry(nil)

	mgr := session.New(a, wl, store, reg, bus, auditLg)
	checker := health.New(mgr, bus, health.DefaultInterval)

	return &supervisor{
		paths:   paths,
		cfg:     cfg,
		store:   store,
		auditLg: auditLg,
		bus:     bus,
		mgr:     mgr,
		checker: checker,
	}, nil
}

// Close stops the health checker, every live session, and the event bus
// and audit log file handles, in that order.
func (s *supervisor) Close() {
	s.checker.Stop()
	s.mgr.Shutdown()
	s.bus.Dispose()
	if err := s.auditLg.Close(); err != nil {
		logging.Logger().Warn().Err(err).Msg("happyclawd: error closing audit log")
	}
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
