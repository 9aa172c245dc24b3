package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openclaw/openclaw-memory/internal/memory"
	"github.com/openclaw/openclaw-memory/internal/output"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show embedder and store health",
		Long: `Report the active embedding model, whether its provider currently
answers, and the file and chunk counts of every open scope.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatusCmd(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// statusJSON is the machine-readable shape of the status report.
type statusJSON struct {
	Embedder struct {
		Model     string `json:"model"`
		Dims      int    `json:"dims"`
		Available bool   `json:"available"`
	} `json:"embedder"`
	Watching bool              `json:"watching"`
	Scopes   []scopeStatusJSON `json:"scopes"`
}

type scopeStatusJSON struct {
	Kind   string `json:"kind"`
	Root   string `json:"root"`
	Files  int    `json:"files"`
	Chunks int    `json:"chunks"`
	Tokens int    `json:"tokens"`
}

func runStatusCmd(cmd *cobra.Command, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	svc := memory.New(cfg)
	defer func() { _ = svc.Close() }()

	status, err := svc.Status(cmd.Context())
	if err != nil {
		return err
	}

	if jsonOutput {
		var payload statusJSON
		payload.Embedder.Model = status.EmbedderModel
		payload.Embedder.Dims = status.EmbedderDims
		payload.Embedder.Available = status.EmbedderAvailable
		payload.Watching = status.Watching
		for _, s := range status.Scopes {
			payload.Scopes = append(payload.Scopes, scopeStatusJSON{
				Kind:   string(s.Kind),
				Root:   s.Root,
				Files:  s.Files,
				Chunks: s.Chunks,
				Tokens: s.Tokens,
			})
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	}

	w := output.New(cmd.OutOrStdout())
	w.Header("Memory Status")

	availability := "available"
	if !status.EmbedderAvailable {
		availability = "unavailable (full-text fallback)"
	}
	w.Field("embedder", fmt.Sprintf("%s (%d dims, %s)", status.EmbedderModel, status.EmbedderDims, availability))
	w.Field("watching", fmt.Sprintf("%t", status.Watching))

	for _, s := range status.Scopes {
		w.Newline()
		w.Header(string(s.Kind) + " scope")
		w.Field("root", s.Root)
		w.Fieldf("files", "%d", s.Files)
		w.Fieldf("chunks", "%d", s.Chunks)
		w.Fieldf("tokens", "%d", s.Tokens)
	}
	return nil
}
