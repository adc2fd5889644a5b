// Package cmd provides the CLI commands for stratoindex.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/stratoindex/internal/config"
	"github.com/Aman-CERP/stratoindex/internal/logging"
	"github.com/Aman-CERP/stratoindex/internal/profiling"
	"github.com/Aman-CERP/stratoindex/pkg/version"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	dataDir    string
	debug      bool
	profile    profiling.Options
}

// NewRootCmd creates the root command for the stratoindex CLI.
func NewRootCmd() *cobra.Command {
	var (
		flags          globalFlags
		session        *profiling.Session
		loggingCleanup func()
	)

	cmd := &cobra.Command{
		Use:   "stratoindex",
		Short: "Embedding queue and hybrid search for analyzed files",
		Long: `stratoindex keeps the vectors produced by a document-analysis pipeline
in a durable queue and store, and answers hybrid (vector + BM25) searches
over them and the analysis history.

Run 'stratoindex serve' to start the HTTP API, or
'stratoindex serve --transport stdio' to speak MCP on stdin/stdout.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.SetVersionTemplate("stratoindex version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Config file (default: <data_dir>/config.yaml)")
	cmd.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "Data directory (overrides config)")
	cmd.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Enable debug logging to ~/.stratoindex/logs/")
	cmd.PersistentFlags().StringVar(&flags.profile.CPUPath, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&flags.profile.HeapPath, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&flags.profile.TracePath, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		if flags.debug {
			logger, cleanup, err := logging.Setup(logging.DebugConfig())
			if err != nil {
				return fmt.Errorf("failed to setup debug logging: %w", err)
			}
			loggingCleanup = cleanup
			slog.SetDefault(logger)
			slog.Info("Debug logging enabled",
				slog.String("log_file", logging.DefaultLogPath()),
				slog.String("version", version.Version))
		}
		if flags.profile.Enabled() {
			s, err := profiling.Start(flags.profile)
			if err != nil {
				return err
			}
			session = s
		}
		return nil
	}

	cmd.PersistentPostRunE = func(_ *cobra.Command, _ []string) error {
		var err error
		if session != nil {
			if err = session.Stop(); err != nil {
				err = fmt.Errorf("failed to write profiles: %w", err)
			}
			session = nil
		}
		if loggingCleanup != nil {
			slog.Info("Debug logging stopped")
			loggingCleanup()
			loggingCleanup = nil
		}
		return err
	}

	cmd.AddCommand(newServeCmd(&flags))
	cmd.AddCommand(newSearchCmd(&flags))
	cmd.AddCommand(newQueueCmd(&flags))
	cmd.AddCommand(newStatusCmd(&flags))
	cmd.AddCommand(newRebuildCmd(&flags))
	cmd.AddCommand(newConfigCmd(&flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig resolves the effective configuration for a command.
func (f *globalFlags) loadConfig() (*config.Config, error) {
	path := f.configPath
	if path == "" && f.dataDir != "" {
		if candidate := filepath.Join(f.dataDir, config.ConfigFileName); fileExists(candidate) {
			path = candidate
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if f.dataDir != "" {
		cfg.Paths.DataDir = f.dataDir
	}
	return cfg, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
