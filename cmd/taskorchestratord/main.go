// Command taskorchestratord wires an OrchestratorAPI instance over a Store
// (SQLite for a database file path, the in-memory backend for ":memory:",
// which is the default) and blocks, waiting for an external collaborator
// (an MCP server process, a test harness) to drive it; this binary is
// intentionally thin, per spec.md's CLI/wire-transport non-goals.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "taskorchestratord",
	Short: "Task orchestration server: role-based work item lifecycle over a dependency DAG",
	Long: `taskorchestratord hosts the OrchestratorAPI: a role-based (QUEUE/WORK/
REVIEW/BLOCKED/TERMINAL) work item lifecycle with bounded-depth trees,
typed dependency edges, note gates, and config-driven cascades.

Environment variables:
  AGENT_CONFIG_DIR   directory .taskorchestrator/config.yaml is resolved under
  DATABASE_PATH      SQLite database file, or ":memory:" for an ephemeral store
  LOG_LEVEL          debug, info, warn, or error (default info)`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
