package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/taskgraph/orchestrator/internal/config"
	"github.com/taskgraph/orchestrator/internal/lockmanager"
	"github.com/taskgraph/orchestrator/internal/orchestrator"
	"github.com/taskgraph/orchestrator/internal/store"
	"github.com/taskgraph/orchestrator/internal/store/memory"
	"github.com/taskgraph/orchestrator/internal/store/sqlite"
)

// defaultSweepInterval governs how often LockManager.Sweep() runs to clear
// expired locks in the background, per spec.md §4.7.
const defaultSweepInterval = 30 * time.Minute

// defaultBusyTimeout bounds how long a sqlite writer waits on SQLITE_BUSY.
const defaultBusyTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the orchestrator, wiring config/store/locks and blocking until signaled",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("database-path", "", "SQLite database file, or \":memory:\" (env DATABASE_PATH)")
	serveCmd.Flags().String("log-level", "", "debug, info, warn, error (env LOG_LEVEL)")
	serveCmd.Flags().String("log-file", "", "optional rotating log file path")
	serveCmd.Flags().String("config-dir", "", "directory .taskorchestrator/config.yaml resolves under (env AGENT_CONFIG_DIR)")

	v := viper.New()
	_ = v.BindPFlag("database-path", serveCmd.Flags().Lookup("database-path"))
	_ = v.BindPFlag("log-level", serveCmd.Flags().Lookup("log-level"))
	_ = v.BindPFlag("log-file", serveCmd.Flags().Lookup("log-file"))
	_ = v.BindPFlag("config-dir", serveCmd.Flags().Lookup("config-dir"))
	_ = v.BindEnv("database-path", "DATABASE_PATH")
	_ = v.BindEnv("log-level", "LOG_LEVEL")
	_ = v.BindEnv("config-dir", "AGENT_CONFIG_DIR")
	v.SetDefault("database-path", ":memory:")
	v.SetDefault("log-level", "info")
	serveViper = v

	rootCmd.AddCommand(serveCmd)
}

var serveViper *viper.Viper

func runServe(cmd *cobra.Command, args []string) error {
	databasePath := serveViper.GetString("database-path")
	logLevel := serveViper.GetString("log-level")
	logFile := serveViper.GetString("log-file")
	configDir := serveViper.GetString("config-dir")
	if configDir == "" {
		configDir = config.ConfigRoot()
	}

	logger, rotator := setupLogger(logFile, logLevel)
	if rotator != nil {
		defer rotator.Close()
	}

	cfgManager, err := config.NewManager(configDir, logger)
	if err != nil {
		return fmt.Errorf("failed to load workflow config: %w", err)
	}

	var backend store.Store
	if databasePath == ":memory:" {
		backend = memory.New()
	} else {
		sqliteStore, err := sqlite.New(cmd.Context(), databasePath, defaultBusyTimeout)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		backend = sqliteStore
	}
	defer backend.Close()

	locks := lockmanager.New()
	api := orchestrator.New(backend, cfgManager, locks)
	_ = api // held alive for the external MCP collaborator to dispatch against

	logger.Info("taskorchestratord starting",
		"databasePath", databasePath,
		"configDir", configDir,
	)

	stop := make(chan struct{})
	go cfgManager.RunReloadLoop(stop)
	go runSweepLoop(locks, logger, stop)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	signal.Stop(quit)
	close(stop)

	logger.Info("taskorchestratord shutting down")
	return nil
}

// runSweepLoop periodically clears LockManager entries past their TTL so a
// crashed or stalled caller never leaves a permanent lock behind.
func runSweepLoop(locks *lockmanager.Manager, logger *slog.Logger, stop <-chan struct{}) {
	ticker := time.NewTicker(defaultSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if n := locks.Sweep(); n > 0 {
				logger.Debug("lock sweep cleared expired locks", "count", n)
			}
		}
	}
}
