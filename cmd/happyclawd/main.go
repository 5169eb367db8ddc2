// Command happyclawd runs the session supervisor: a local daemon that
// spawns, tracks, and mediates AI-agent child processes (SDK streams,
// MCP stdio bridges, PTY-wrapped CLIs) on behalf of an external host.
package main

import (
	"fmt"
	"os"

	"github.com/happyclaw/supervisor/cmd/happyclawd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
