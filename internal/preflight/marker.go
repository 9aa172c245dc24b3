package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// MarkerFile records that the environment checks passed, so serve does
// not re-run them on every start.
const MarkerFile = ".doctor-passed"

// NeedsCheck reports whether checks should run for this store root.
func NeedsCheck(root string) bool {
	_, err := os.Stat(filepath.Join(root, MarkerFile))
	return os.IsNotExist(err)
}

// MarkPassed writes the marker with the current timestamp.
func MarkPassed(root string) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create marker directory: %w", err)
	}

	content := []byte(time.Now().Format(time.RFC3339))
	return os.WriteFile(filepath.Join(root, MarkerFile), content, 0o644)
}

// ClearMarker removes the marker, forcing a re-check on next start.
func ClearMarker(root string) error {
	err := os.Remove(filepath.Join(root, MarkerFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("remove marker: %w", err)
	}
	return nil
}

// MarkerAge returns how long ago the checks passed, zero when unknown.
func MarkerAge(root string) time.Duration {
	content, err := os.ReadFile(filepath.Join(root, MarkerFile))
	if err != nil {
		return 0
	}

	t, err := time.Parse(time.RFC3339, string(content))
	if err != nil {
		return 0
	}
	return time.Since(t)
}
