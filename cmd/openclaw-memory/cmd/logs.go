package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openclaw/openclaw-memory/internal/logging"
)

func newLogsCmd() *cobra.Command {
	var file string
	var lines int
	var pathOnly bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent server log lines",
		Long: `Print the tail of the server log. In stdio mode the server cannot
write to the terminal, so this is the only place its output goes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			explicit := file
			if explicit == "" {
				explicit = cfg.LogPath()
			}
			path, err := logging.FindLogFile(explicit)
			if err != nil {
				return err
			}

			if pathOnly {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
				return err
			}

			content, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			for _, line := range tailLines(string(content), lines) {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Log file to read (default: the configured log path)")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().BoolVar(&pathOnly, "path", false, "Print only the log file path")

	return cmd
}

// tailLines returns the last n non-empty-terminated lines of content.
func tailLines(content string, n int) []string {
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil
	}
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}
