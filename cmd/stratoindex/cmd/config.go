package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/stratoindex/configs"
	"github.com/Aman-CERP/stratoindex/internal/config"
	"github.com/Aman-CERP/stratoindex/internal/output"
	"github.com/Aman-CERP/stratoindex/internal/persist"
)

// configBackupSuffix names copies made by 'config init --force'.
const configBackupSuffix = ".bak-"

func newConfigCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage the configuration file.

Configuration precedence (lowest to highest):
  1. Built-in defaults
  2. User config (~/.config/stratoindex/config.yaml)
  3. --config, or <data_dir>/config.yaml
  4. Environment variables (STRATOINDEX_*)`,
		Example: `  # Write the defaults to the user config
  stratoindex config init

  # Show effective configuration
  stratoindex config show --json`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd(flags))
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var (
		force bool
		path  string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write an annotated configuration file with the defaults",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())
			if path == "" {
				path = config.GetUserConfigPath()
			}

			if fileExists(path) {
				if !force {
					out.Warning("Configuration already exists")
					out.Statusf("📁", "Location: %s", path)
					out.Status("💡", "Use --force to overwrite (a backup is kept)")
					return nil
				}
				backup, err := persist.BackupFile(path, configBackupSuffix)
				if err != nil {
					return fmt.Errorf("failed to backup config: %w", err)
				}
				out.Statusf("💾", "Backup: %s", backup)
			}

			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}
			if err := os.WriteFile(path, []byte(configs.ConfigTemplate), 0o600); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
			out.Success("Created configuration")
			out.Statusf("📁", "Location: %s", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.Flags().StringVar(&path, "path", "", "Target file (default: user config path)")
	return cmd
}

func newConfigShowCmd(flags *globalFlags) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long: `Show the effective configuration after merging all sources.
Secrets (server token, Neo4j password) are omitted from JSON output.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), cfg)
			}
			redacted := *cfg
			if redacted.Server.Token != "" {
				redacted.Server.Token = "<redacted>"
			}
			if redacted.Graph.Neo4jPassword != "" {
				redacted.Graph.Neo4jPassword = "<redacted>"
			}
			data, err := yaml.Marshal(&redacted)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print user config file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return err
		},
	}
}
