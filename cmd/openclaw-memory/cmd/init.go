package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openclaw/openclaw-memory/configs"
	"github.com/openclaw/openclaw-memory/internal/config"
	"github.com/openclaw/openclaw-memory/internal/output"
)

func newInitCmd() *cobra.Command {
	var globalOnly bool
	var name string
	var provider string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the memory store layout and config files",
		Long: `Scaffold the global store under ~/.openclaw_memory and, unless
--global-only is given, a project config in the current directory. The
project config marks this directory as a project root; existing files
are never overwritten.`,
		Example: `  # set up global and project stores
  openclaw-memory init

  # global store only
  openclaw-memory init --global-only

  # pin the project name and embedding provider
  openclaw-memory init --name billing-api --provider local`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, globalOnly, name, provider)
		},
	}

	cmd.Flags().BoolVar(&globalOnly, "global-only", false, "Skip the project config")
	cmd.Flags().StringVar(&name, "name", "", "Project name (default: directory name)")
	cmd.Flags().StringVar(&provider, "provider", "", "Embedding provider (auto, openai, ollama, local)")

	return cmd
}

func runInit(cmd *cobra.Command, globalOnly bool, name, provider string) error {
	w := output.New(cmd.OutOrStdout())

	if provider != "" {
		switch provider {
		case config.ProviderAuto, config.ProviderOpenAI, config.ProviderOllama, config.ProviderLocal:
		default:
			return fmt.Errorf("invalid provider %q (want auto, openai, ollama, or local)", provider)
		}
	}

	globalRoot := config.DefaultGlobalRoot()
	globalScope := config.Scope{Kind: config.ScopeGlobal, Root: globalRoot}
	if err := globalScope.EnsureLayout(); err != nil {
		return fmt.Errorf("create global store: %w", err)
	}
	w.Successf("global store ready at %s", globalRoot)

	globalConfig := filepath.Join(globalRoot, config.GlobalConfigName)
	if _, err := os.Stat(globalConfig); os.IsNotExist(err) {
		if err := os.WriteFile(globalConfig, []byte(configs.GlobalConfigTemplate), 0o644); err != nil {
			return fmt.Errorf("write global config: %w", err)
		}
		w.Successf("wrote %s", globalConfig)
	} else {
		w.Statusf("  %s already exists, leaving it alone", globalConfig)
	}

	if globalOnly {
		return nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	if name == "" {
		name = filepath.Base(cwd)
	}

	projectConfig := filepath.Join(cwd, config.ProjectConfigName)
	if _, err := os.Stat(projectConfig); os.IsNotExist(err) {
		content := renderProjectConfig(name, provider)
		if err := os.WriteFile(projectConfig, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write project config: %w", err)
		}
		w.Successf("wrote %s", projectConfig)
	} else {
		w.Statusf("  %s already exists, leaving it alone", projectConfig)
	}

	projectScope := config.Scope{Kind: config.ScopeProject, Root: filepath.Join(cwd, config.StoreDirName)}
	if err := projectScope.EnsureLayout(); err != nil {
		return fmt.Errorf("create project store: %w", err)
	}
	w.Successf("project store ready at %s", projectScope.Root)

	w.Newline()
	w.Status("Add the server to your agent's MCP config:")
	w.Code(`"openclaw-memory": { "command": "openclaw-memory" }`)
	return nil
}

// renderProjectConfig fills the embedded template with the chosen name
// and, when given, an explicit embedding provider.
func renderProjectConfig(name, provider string) string {
	content := strings.Replace(configs.ProjectConfigTemplate,
		`name = "my-project"`, fmt.Sprintf("name = %q", name), 1)
	if provider != "" {
		content = strings.Replace(content,
			"# [embedding]\n# provider = \"local\"",
			fmt.Sprintf("[embedding]\nprovider = %q", provider), 1)
	}
	return content
}
