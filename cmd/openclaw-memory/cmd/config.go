package cmd

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/openclaw/openclaw-memory/internal/config"
	"github.com/openclaw/openclaw-memory/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())
	cmd.AddCommand(newConfigBackupCmd())
	cmd.AddCommand(newConfigRestoreCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration as TOML",
		Long: `Print the configuration after all layers merge: built-in defaults,
the global config.toml, the project .openclaw_memory.toml, and
OPENCLAW_* environment variables.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "# global root:  %s\n", cfg.GlobalRoot)
			if cfg.ProjectRoot != "" {
				_, _ = fmt.Fprintf(w, "# project root: %s\n", cfg.ProjectRoot)
			} else {
				_, _ = fmt.Fprintln(w, "# project root: (none, global-only mode)")
			}
			_, _ = fmt.Fprintln(w)

			// Never print secrets.
			redacted := *cfg
			if redacted.Embedding.APIKey != "" {
				redacted.Embedding.APIKey = "(set)"
			}
			return toml.NewEncoder(w).Encode(redacted)
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file locations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load("")
			if err != nil {
				return err
			}

			w := output.New(cmd.OutOrStdout())
			w.Field("global", describePath(cfg.GlobalConfigPath()))
			if cfg.ProjectRoot != "" {
				w.Field("project", describePath(cfg.ProjectConfigPath()))
			} else {
				w.Field("project", "(no project detected)")
			}
			return nil
		},
	}
}

func newConfigBackupCmd() *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Back up the global config file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := output.New(cmd.OutOrStdout())

			if list {
				backups, err := config.ListGlobalConfigBackups()
				if err != nil {
					return err
				}
				if len(backups) == 0 {
					w.Status("No backups found.")
					return nil
				}
				for _, b := range backups {
					w.Status(b)
				}
				return nil
			}

			path, err := config.BackupGlobalConfig()
			if err != nil {
				return err
			}
			if path == "" {
				w.Status("No global config to back up.")
				return nil
			}
			w.Successf("backed up to %s", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "list existing backups instead of creating one")
	return cmd
}

func newConfigRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <backup-file>",
		Short: "Restore the global config from a backup",
		Long: `Restore the global config.toml from a backup created by
'openclaw-memory config backup'. The current config, if present, is
backed up first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.RestoreGlobalConfig(args[0]); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("restored from %s", args[0])
			return nil
		},
	}
}

// describePath marks config files that do not exist yet.
func describePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path + " (missing)"
	}
	return path
}
