package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLogDir(t *testing.T) {
	dir := DefaultLogDir()
	require.NotEmpty(t, dir)
	assert.Contains(t, dir, ".openclaw_memory")
	assert.Contains(t, dir, "logs")
}

func TestDefaultLogPath(t *testing.T) {
	path := DefaultLogPath()
	require.NotEmpty(t, path)
	assert.Equal(t, "server.log", filepath.Base(path))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, 10, cfg.MaxSizeMB)
	assert.Equal(t, 5, cfg.MaxFiles)
	assert.True(t, cfg.WriteToStderr)
}

func TestDebugConfig(t *testing.T) {
	assert.Equal(t, "debug", DebugConfig().Level)
}

func TestSetupWritesToFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	logger, cleanup, err := Setup(Config{
		Level:     "debug",
		FilePath:  logPath,
		MaxSizeMB: 1,
		MaxFiles:  3,
	})
	require.NoError(t, err)
	defer cleanup()
	require.NotNil(t, logger)

	logger.Info("test message")

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "test message")
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"debug", "DEBUG"},
		{"DEBUG", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"unknown", "INFO"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, LevelFromString(tc.input).String(), "input %q", tc.input)
	}
}

func TestFindLogFileNotFound(t *testing.T) {
	_, err := FindLogFile("/nonexistent/path/to/log.log")
	assert.Error(t, err)
}

func TestFindLogFileExplicitPath(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	require.NoError(t, os.WriteFile(logPath, []byte("test"), 0o644))

	found, err := FindLogFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, logPath, found)
}

func TestRotatingWriterSyncsEachWrite(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	w, err := NewRotatingWriter(logPath, 1, 3)
	require.NoError(t, err)
	defer w.Close()

	entry := []byte(`{"level":"INFO","msg":"test"}` + "\n")
	n, err := w.Write(entry)
	require.NoError(t, err)
	assert.Equal(t, len(entry), n)

	// Visible on disk without closing the writer.
	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, entry, content)
}

func TestRotatingWriterRotation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "rotate.log")

	// Zero max size forces rotation on every write.
	w, err := NewRotatingWriter(logPath, 0, 3)
	require.NoError(t, err)
	defer w.Close()

	chunk := make([]byte, 2048)
	_, err = w.Write(chunk)
	require.NoError(t, err)
	_, err = w.Write(chunk)
	require.NoError(t, err)

	assert.FileExists(t, logPath)
	assert.FileExists(t, logPath+".1")
}

func TestRotatingWriterDropsOldGenerations(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "maxfiles.log")

	w, err := NewRotatingWriter(logPath, 0, 2)
	require.NoError(t, err)
	defer w.Close()

	chunk := make([]byte, 1024)
	for i := 0; i < 5; i++ {
		_, _ = w.Write(chunk)
	}

	assert.NoFileExists(t, logPath+".3")
}

func TestRotatingWriterClose(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "close.log")

	w, err := NewRotatingWriter(logPath, 1, 3)
	require.NoError(t, err)

	_, err = w.Write([]byte("test data\n"))
	require.NoError(t, err)
	assert.NoError(t, w.Close())
}

func TestRotatingWriterConcurrentWrites(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "concurrent.log")

	w, err := NewRotatingWriter(logPath, 10, 3)
	require.NoError(t, err)
	defer w.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = w.Write([]byte(fmt.Sprintf(`{"id":%d,"iter":%d}`, id, j) + "\n"))
			}
		}(i)
	}
	wg.Wait()

	info, err := os.Stat(logPath)
	require.NoError(t, err)
	assert.NotZero(t, info.Size())
}

func TestSetupServeModeNeverTouchesStderr(t *testing.T) {
	// Stdio transport owns stdout for JSON-RPC and the client may surface
	// stderr, so serve-mode logging goes to the file only.
	logPath := filepath.Join(t.TempDir(), "serve-test.log")

	cleanup, err := SetupServeMode("debug", logPath)
	require.NoError(t, err)
	defer cleanup()

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "serve mode logging initialized")
}
