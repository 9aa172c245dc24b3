package cmd

import (
	"encoding/json"
	"sort"

	"github.com/spf13/cobra"

	"github.com/openclaw/openclaw-memory/internal/memory"
	"github.com/openclaw/openclaw-memory/internal/output"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show per-scope index statistics",
		Long: `Break down each scope's index by memory type: chunk and token
counts, vector entries, and the highest reinforcement score seen.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatsCmd(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

type scopeStatsJSON struct {
	Scope            string              `json:"scope"`
	Root             string              `json:"root"`
	Files            int                 `json:"files"`
	Chunks           int                 `json:"chunks"`
	Tokens           int                 `json:"tokens"`
	Vectors          int                 `json:"vectors"`
	MaxReinforcement int                 `json:"max_reinforcement"`
	ByType           map[string]typeJSON `json:"by_type,omitempty"`
}

type typeJSON struct {
	Chunks int `json:"chunks"`
	Tokens int `json:"tokens"`
}

func runStatsCmd(cmd *cobra.Command, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	svc := memory.New(cfg)
	defer func() { _ = svc.Close() }()

	stats, err := svc.Stats(cmd.Context())
	if err != nil {
		return err
	}

	if jsonOutput {
		var payload []scopeStatsJSON
		for _, s := range stats {
			entry := scopeStatsJSON{
				Scope:            string(s.Scope.Kind),
				Root:             s.Scope.Root,
				Files:            s.Stats.TotalFiles,
				Chunks:           s.Stats.TotalChunks,
				Tokens:           s.Stats.TotalTokens,
				Vectors:          s.Stats.Vectors,
				MaxReinforcement: s.Stats.MaxReinforcement,
			}
			if len(s.Stats.ByType) > 0 {
				entry.ByType = make(map[string]typeJSON, len(s.Stats.ByType))
				for k, v := range s.Stats.ByType {
					entry.ByType[k] = typeJSON{Chunks: v.Chunks, Tokens: v.Tokens}
				}
			}
			payload = append(payload, entry)
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	}

	w := output.New(cmd.OutOrStdout())
	for i, s := range stats {
		if i > 0 {
			w.Newline()
		}
		w.Header(string(s.Scope.Kind) + " scope")
		w.Field("root", s.Scope.Root)
		w.Fieldf("files", "%d", s.Stats.TotalFiles)
		w.Fieldf("chunks", "%d (%d tokens)", s.Stats.TotalChunks, s.Stats.TotalTokens)
		w.Fieldf("vectors", "%d", s.Stats.Vectors)
		w.Fieldf("max reinforcement", "%d", s.Stats.MaxReinforcement)

		types := make([]string, 0, len(s.Stats.ByType))
		for k := range s.Stats.ByType {
			types = append(types, k)
		}
		sort.Strings(types)
		for _, k := range types {
			t := s.Stats.ByType[k]
			w.Fieldf("  "+k, "%d chunks, %d tokens", t.Chunks, t.Tokens)
		}
	}
	return nil
}
