package logging

import (
	"log/slog"
)

// SetupServeMode initializes logging for MCP serve mode. In stdio mode
// stdout carries the JSON-RPC stream, so serve-mode logs go to the file
// only; any stray write to stdout corrupts the protocol stream.
func SetupServeMode(level, filePath string) (func(), error) {
	cfg := Config{
		Level:         level,
		FilePath:      filePath,
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: false,
	}

	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	slog.Info("serve mode logging initialized",
		slog.String("log_file", cfg.FilePath),
		slog.String("level", cfg.Level))
	return cleanup, nil
}
