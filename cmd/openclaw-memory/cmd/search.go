package cmd

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openclaw/openclaw-memory/internal/memory"
	"github.com/openclaw/openclaw-memory/internal/output"
	"github.com/openclaw/openclaw-memory/internal/search"
)

func newSearchCmd() *cobra.Command {
	var scope string
	var maxTokens int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Query the memory corpus from the shell",
		Long: `Run the same three-stage retrieval the memory_search tool uses:
canonical-file fast path, journal timeline, then hybrid vector plus
full-text search with salience rescoring.`,
		Example: `  openclaw-memory search "how do we handle auth retries"
  openclaw-memory search --scope journal "what did we do yesterday"
  openclaw-memory search --max-tokens 500 "code style preferences"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), scope, maxTokens, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "", "Restrict to a scope or folder (global, project, journal, agent, user)")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Result token budget (default from config)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query, scope string, maxTokens int, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	svc := memory.New(cfg)
	defer func() { _ = svc.Close() }()

	resp, err := svc.Search(ctx, query, search.Options{
		Scope:     scope,
		MaxTokens: maxTokens,
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	w := output.New(cmd.OutOrStdout())
	if len(resp.Results) == 0 {
		w.Status("No memories found.")
		return nil
	}

	if resp.Partial {
		w.Warning("embedding provider unavailable; full-text results only")
	}
	for _, r := range resp.Results {
		w.Statusf("[salience: %.2f | reinforcement: %d | %s]", r.Salience, r.Reinforcement, r.URI)
		w.Status(r.Content)
		w.Newline()
	}
	w.Statusf("[total tokens: %d | budget remaining: %d]", resp.TotalTokens, resp.BudgetRemaining)
	return nil
}
