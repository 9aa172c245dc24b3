package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openclaw/openclaw-memory/internal/memory"
)

func newPrimerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "primer",
		Short: "Print the session-start context block",
		Long: `Render the same Markdown block the memory_primer tool returns at
session start: user preferences, project context, active tasks, and the
most recent journal entries.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			svc := memory.New(cfg)
			defer func() { _ = svc.Close() }()

			text, err := svc.Primer(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
			return err
		},
	}
}
