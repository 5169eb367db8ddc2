// Package commands provides the happyclawd CLI commands.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/happyclaw/supervisor/internal/config"
	"github.com/happyclaw/supervisor/internal/logging"
)

var (
	// Version is set at build time via -ldflags.
	Version   = "0.1.0"
	BuildTime = "dev"
)

var (
	printLogs bool
	logLevel  string
	logFile   bool
	dataDir   string
)

var rootCmd = &cobra.Command{
	Use:   "happyclawd",
	Short: "happyclawd supervises AI-agent child processes on behalf of a host",
	Long: `happyclawd is a session supervisor: it spawns, tracks, and mediates
AI-agent child processes (SDK streams, MCP stdio bridges, PTY-wrapped CLIs)
behind a uniform session API, enforcing per-user ownership and a working-
directory whitelist.

Run 'happyclawd serve' to start the supervisor.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logDir := dataDir
		if logDir == "" {
			logDir = config.DataDir()
		}
		if logFile {
			_ = os.MkdirAll(logDir, 0o755)
		}
		logCfg := logging.Config{
			Level:     logging.ParseLevel(logLevel),
			Output:    os.Stderr,
			Pretty:    printLogs,
			LogToFile: logFile,
			LogDir:    logDir,
		}
		if !printLogs && !logFile {
			logCfg.Level = logging.FatalLevel
		}
		logging.Init(logCfg)

		if logFile {
			logging.Logger().Info().
				Str("version", Version).
				Str("logFile", logging.GetLogFilePath()).
				Msg("happyclawd started with file logging")
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().BoolVar(&logFile, "log-file", false, "Write logs to a timestamped file under the data directory")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Override the data directory (default: $HAPPYCLAW_DATA_HOME or ~/.happyclaw)")

	rootCmd.SetVersionTemplate(fmt.Sprintf("happyclawd %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(serveCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
