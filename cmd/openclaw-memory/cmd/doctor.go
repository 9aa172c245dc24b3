package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/openclaw/openclaw-memory/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var verbose bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the environment and diagnose problems",
		Long: `Run the environment checks the server runs on first start: config
validity, scope layout and write permission, free disk space, the
descriptor limit, and embedding provider reachability. Provider checks
are warnings only; retrieval works without vectors.`,
		Example: `  openclaw-memory doctor
  openclaw-memory doctor --verbose
  openclaw-memory doctor --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, verbose, jsonOutput)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show per-check details")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// doctorJSON is the machine-readable report.
type doctorJSON struct {
	Status string            `json:"status"`
	Checks []doctorCheckJSON `json:"checks"`
	Errors []string          `json:"errors,omitempty"`
}

type doctorCheckJSON struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	Required bool   `json:"required"`
	Details  string `json:"details,omitempty"`
}

func runDoctor(cmd *cobra.Command, verbose, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	checker := preflight.New(
		preflight.WithVerbose(verbose),
		preflight.WithOutput(cmd.OutOrStdout()),
	)
	results := checker.RunAll(cmd.Context(), cfg)

	if jsonOutput {
		payload := doctorJSON{
			Status: checker.SummaryStatus(results),
			Checks: make([]doctorCheckJSON, len(results)),
		}
		for i, r := range results {
			payload.Checks[i] = doctorCheckJSON{
				Name:     r.Name,
				Status:   r.Status.String(),
				Message:  r.Message,
				Required: r.Required,
				Details:  r.Details,
			}
			if r.IsCritical() {
				payload.Errors = append(payload.Errors, r.Name+": "+r.Message)
			}
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(payload); err != nil {
			return err
		}
	} else {
		checker.PrintResults(results)
		if age := preflight.MarkerAge(cfg.GlobalRoot); age > 0 {
			cmd.Printf("\nLast successful check: %s ago\n", formatAge(age))
		}
	}

	if checker.HasCriticalFailures(results) {
		return fmt.Errorf("environment check failed")
	}

	// A clean run refreshes the marker so serve skips the checks.
	_ = preflight.MarkPassed(cfg.GlobalRoot)
	return nil
}

// formatAge renders a marker age in coarse human units.
func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "less than a minute"
	case d < time.Hour:
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d hours", int(d.Hours()))
	default:
		return fmt.Sprintf("%d days", int(d.Hours()/24))
	}
}
