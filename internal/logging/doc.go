// Package logging provides opt-in file-based logging with rotation for
// OpenClaw Memory. When the --debug flag is set, comprehensive logs are
// written to ~/.openclaw_memory/logs/ for debugging and troubleshooting.
//
// In serve mode logs go to file only: stdout carries the JSON-RPC stream and
// must never receive log output.
package logging
