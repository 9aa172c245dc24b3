// Package cmd provides the CLI commands for openclaw-memory.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/openclaw/openclaw-memory/internal/config"
	"github.com/openclaw/openclaw-memory/internal/errors"
	"github.com/openclaw/openclaw-memory/internal/logging"
	"github.com/openclaw/openclaw-memory/internal/profiling"
	"github.com/openclaw/openclaw-memory/pkg/version"
)

// Profiling and debug state shared by the pre/post run hooks.
var (
	profileCPU string
	profileMem string
	debugMode  bool

	profiler       = profiling.NewProfiler()
	cpuCleanup     func()
	loggingCleanup func()
)

// NewRootCmd builds the root command. Running the bare binary serves MCP
// over stdio, so agents can point at the binary with no arguments.
func NewRootCmd() *cobra.Command {
	var transport string
	var port int

	cmd := &cobra.Command{
		Use:   "openclaw-memory",
		Short: "Local memory service for AI coding agents",
		Long: `openclaw-memory gives coding agents a persistent memory: preferences,
decisions, and session history stored as Markdown, retrieved by hybrid
vector and full-text search, and served over the Model Context Protocol.

Memories live in two scopes: a global store under ~/.openclaw_memory and
a per-project store next to your code. Run the bare binary from a project
directory to serve MCP over stdio.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return cmd.Help()
			}
			return runServe(cmd.Context(), transport, port)
		},
	}

	cmd.SetVersionTemplate("openclaw-memory version {{.Version}}\n")

	cmd.Flags().StringVar(&transport, "transport", "", "MCP transport (stdio or sse)")
	cmd.Flags().IntVar(&port, "port", 0, "SSE port (sse transport only)")

	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write a CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write a heap profile to file on exit")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to the log file")

	cmd.PersistentPreRunE = startDiagnostics
	cmd.PersistentPostRunE = stopDiagnostics

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newPrimerCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startDiagnostics wires the --debug and profiling flags before any
// command runs.
func startDiagnostics(_ *cobra.Command, _ []string) error {
	if debugMode {
		logger, cleanup, err := logging.Setup(logging.DebugConfig())
		if err != nil {
			return fmt.Errorf("setup debug logging: %w", err)
		}
		loggingCleanup = cleanup
		slog.SetDefault(logger)
		slog.Debug("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	}

	if profileCPU != "" {
		cleanup, err := profiler.StartCPU(profileCPU)
		if err != nil {
			return fmt.Errorf("start cpu profile: %w", err)
		}
		cpuCleanup = cleanup
	}
	return nil
}

// stopDiagnostics flushes profiles and closes the debug log.
func stopDiagnostics(_ *cobra.Command, _ []string) error {
	if cpuCleanup != nil {
		cpuCleanup()
		cpuCleanup = nil
	}
	if profileMem != "" {
		if err := profiler.WriteHeap(profileMem); err != nil {
			return fmt.Errorf("write heap profile: %w", err)
		}
	}
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command. Errors render through the house format
// (message, hint, code) instead of cobra's bare "Error: ..." line.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		fmt.Fprint(os.Stderr, errors.FormatForCLI(err))
	}
	return err
}

// loadConfig builds the merged config for the working directory.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
