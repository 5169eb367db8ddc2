package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/happyclaw/supervisor/internal/debugws"
	"github.com/happyclaw/supervisor/internal/logging"
)

var (
	debugWS     bool
	debugWSAddr string
	debugOwner  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the session supervisor as a long-lived daemon",
	Long: `Run happyclawd as a long-lived daemon: wire config, logging,
persistence, the ACL and cwd whitelist, the audit log, the provider
registry, the event bus and the health checker into a SessionManager, then
block until SIGINT or SIGTERM triggers a graceful shutdown.

The SessionManager itself is consumed by an external host process (a
plugin registration layer outside this module's scope); serve's job is
only to keep that manager's supporting infrastructure alive.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&debugWS, "debug-ws", false, "Expose a read-only WebSocket mirror of session output for local inspection")
	serveCmd.Flags().StringVar(&debugWSAddr, "debug-ws-addr", "127.0.0.1:7631", "Address for the debug WebSocket server")
	serveCmd.Flags().StringVar(&debugOwner, "owner", "local", "User id the debug WebSocket is allowed to mirror sessions for")
}

func runServe(cmd *cobra.Command, args []string) error {
	logging.Logger().Info().
		Str("version", Version).
		Msg("starting happyclawd")

	sup, err := buildSupervisor()
	if err != nil {
		return err
	}
	logging.Logger().Info().Str("dataDir", sup.paths.Data).Msg("data directory resolved")

	sup.checker.Start()

	var debugSrv *http.Server
	if debugWS {
		mux := http.NewServeMux()
		mux.Handle("/debug/ws", debugws.NewHandler(sup.mgr, debugOwner))
		debugSrv = &http.Server{Addr: debugWSAddr, Handler: mux}

		go func() {
			logging.Logger().Info().Str("addr", debugWSAddr).Msg("debug websocket listening")
			if err := debugSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logging.Logger().Error().Err(err).Msg("debug websocket server error")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Logger().Info().Msg("shutting down")

	if debugSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := debugSrv.Shutdown(shutdownCtx); err != nil {
			logging.Logger().Warn().Err(err).Msg("debug websocket shutdown error")
		}
		cancel()
	}

	sup.Close()
	logging.Logger().Info().Msg("happyclawd stopped")
	return nil
}
