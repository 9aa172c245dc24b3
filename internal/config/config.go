// Package config loads and merges OpenClaw Memory configuration.
//
// Configuration is TOML on disk with four layers, lowest precedence first:
// built-in defaults, the global file at ~/.openclaw_memory/config.toml, the
// project file at <project>/.openclaw_memory.toml, and OPENCLAW_* environment
// variables. A file layer only overrides keys it actually defines, so a
// project file that sets privacy.enabled = false wins over the default even
// though false is the zero value.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Provider names accepted for embedding.provider. "auto" probes for an
// OpenAI key, then a reachable Ollama server, then falls back to local.
const (
	ProviderAuto   = "auto"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderLocal  = "local"
)

// Transport names accepted for server.transport.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// ProjectConfig carries project metadata surfaced in the primer.
type ProjectConfig struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
}

// EmbeddingConfig selects and tunes the embedding provider. Empty model and
// zero dimension mean "use the provider's default".
type EmbeddingConfig struct {
	Provider       string `toml:"provider"`
	Model          string `toml:"model"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Dimension      int    `toml:"dimension"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// PrivacyConfig controls the pre-write privacy filter. A non-empty Patterns
// list replaces the built-in defaults rather than extending them.
type PrivacyConfig struct {
	Enabled  bool     `toml:"enabled"`
	Patterns []string `toml:"patterns"`
}

// SearchConfig tunes retrieval budgets and scoring.
type SearchConfig struct {
	DefaultMaxTokens    int     `toml:"default_max_tokens"`
	RecencyHalfLifeDays float64 `toml:"recency_half_life_days"`
	DefaultTopK         int     `toml:"default_top_k"`
}

// WriterConfig carries the similarity thresholds for the write pipeline.
type WriterConfig struct {
	ReinforceThreshold float64 `toml:"reinforce_threshold"`
	ConflictThreshold  float64 `toml:"conflict_threshold"`
}

// ServerConfig selects the MCP transport.
type ServerConfig struct {
	Transport string `toml:"transport"`
	SSEPort   int    `toml:"sse_port"`
}

// LogConfig controls file logging. Empty File resolves to
// <global root>/logs/server.log.
type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// Config is the merged configuration for one process.
type Config struct {
	Project   ProjectConfig   `toml:"project"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Privacy   PrivacyConfig   `toml:"privacy"`
	Search    SearchConfig    `toml:"search"`
	Writer    WriterConfig    `toml:"writer"`
	Server    ServerConfig    `toml:"server"`
	Log       LogConfig       `toml:"log"`

	// Resolved at load time, never serialized.
	GlobalRoot  string `toml:"-"`
	ProjectRoot string `toml:"-"` // empty = no project detected (global-only mode)
}

// NewConfig returns a Config populated with built-in defaults.
func NewConfig() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Provider:       ProviderAuto,
			TimeoutSeconds: 30,
		},
		Privacy: PrivacyConfig{
			Enabled: true,
		},
		Search: SearchConfig{
			DefaultMaxTokens:    1500,
			RecencyHalfLifeDays: 30,
			DefaultTopK:         10,
		},
		Writer: WriterConfig{
			ReinforceThreshold: 0.92,
			ConflictThreshold:  0.85,
		},
		Server: ServerConfig{
			Transport: TransportStdio,
			SSEPort:   8765,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultPrivacyPatterns returns the built-in redaction patterns applied when
// privacy.patterns is not configured.
func DefaultPrivacyPatterns() []string {
	return []string{
		`sk-[a-zA-Z0-9]{20,}`,   // OpenAI API keys
		`ghp_[a-zA-Z0-9]{36}`,   // GitHub tokens
		`password\s*[:=]\s*\S+`, // password assignments
		`secret\s*[:=]\s*\S+`,   // secret assignments
		`192\.168\.\d+\.\d+`,    // internal IPs
		`10\.\d+\.\d+\.\d+`,     // internal IPs
		`localhost:\d+`,         // local service endpoints
	}
}

// PrivacyPatterns returns the effective pattern list: the configured patterns
// when present, otherwise the built-in defaults.
func (c *Config) PrivacyPatterns() []string {
	if len(c.Privacy.Patterns) > 0 {
		return c.Privacy.Patterns
	}
	return DefaultPrivacyPatterns()
}

// Load builds the merged configuration for startDir. An empty startDir means
// the current working directory. Missing files are not errors; a file that
// exists but fails to parse is.
func Load(startDir string) (*Config, error) {
	if startDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		startDir = wd
	}

	cfg := NewConfig()
	cfg.GlobalRoot = DefaultGlobalRoot()
	cfg.ProjectRoot = FindProjectRoot(startDir)

	if path := cfg.GlobalConfigPath(); fileExists(path) {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if cfg.ProjectRoot != "" {
		if path := projectConfigFile(cfg.ProjectRoot); path != "" {
			if err := cfg.loadFile(path); err != nil {
				return nil, err
			}
		}
		// Best-effort .env so API keys need not be exported. Existing
		// environment variables are never overwritten.
		_ = godotenv.Load(filepath.Join(cfg.ProjectRoot, ".env"))
	}

	cfg.applyEnvOverrides()

	if cfg.Project.Name == "" && cfg.ProjectRoot != "" {
		cfg.Project.Name = filepath.Base(cfg.ProjectRoot)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// projectConfigFile returns the project config path that exists, trying
// <root>/.openclaw_memory.toml then <root>/.openclaw_memory/.openclaw_memory.toml.
func projectConfigFile(projectRoot string) string {
	candidates := []string{
		filepath.Join(projectRoot, ProjectConfigName),
		filepath.Join(projectRoot, StoreDirName, ProjectConfigName),
	}
	for _, path := range candidates {
		if fileExists(path) {
			return path
		}
	}
	return ""
}

// loadFile merges one TOML file into c, overriding only keys the file defines.
func (c *Config) loadFile(path string) error {
	var src Config
	md, err := toml.DecodeFile(path, &src)
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	c.applyDefined(&src, md)
	return nil
}

func (c *Config) applyDefined(src *Config, md toml.MetaData) {
	def := func(keys ...string) bool { return md.IsDefined(keys...) }

	if def("project", "name") {
		c.Project.Name = src.Project.Name
	}
	if def("project", "description") {
		c.Project.Description = src.Project.Description
	}

	if def("embedding", "provider") {
		c.Embedding.Provider = src.Embedding.Provider
	}
	if def("embedding", "model") {
		c.Embedding.Model = src.Embedding.Model
	}
	if def("embedding", "api_key") {
		c.Embedding.APIKey = src.Embedding.APIKey
	}
	if def("embedding", "base_url") {
		c.Embedding.BaseURL = src.Embedding.BaseURL
	}
	if def("embedding", "dimension") {
		c.Embedding.Dimension = src.Embedding.Dimension
	}
	if def("embedding", "timeout_seconds") {
		c.Embedding.TimeoutSeconds = src.Embedding.TimeoutSeconds
	}

	if def("privacy", "enabled") {
		c.Privacy.Enabled = src.Privacy.Enabled
	}
	if def("privacy", "patterns") {
		c.Privacy.Patterns = src.Privacy.Patterns
	}

	if def("search", "default_max_tokens") {
		c.Search.DefaultMaxTokens = src.Search.DefaultMaxTokens
	}
	if def("search", "recency_half_life_days") {
		c.Search.RecencyHalfLifeDays = src.Search.RecencyHalfLifeDays
	}
	if def("search", "default_top_k") {
		c.Search.DefaultTopK = src.Search.DefaultTopK
	}

	if def("writer", "reinforce_threshold") {
		c.Writer.ReinforceThreshold = src.Writer.ReinforceThreshold
	}
	if def("writer", "conflict_threshold") {
		c.Writer.ConflictThreshold = src.Writer.ConflictThreshold
	}

	if def("server", "transport") {
		c.Server.Transport = src.Server.Transport
	}
	if def("server", "sse_port") {
		c.Server.SSEPort = src.Server.SSEPort
	}

	if def("log", "level") {
		c.Log.Level = src.Log.Level
	}
	if def("log", "file") {
		c.Log.File = src.Log.File
	}
}

// applyEnvOverrides applies OPENCLAW_<SECTION>_<FIELD> environment variables.
// Privacy patterns are newline-separated since regexes may contain commas.
func (c *Config) applyEnvOverrides() {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setFloat := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	setString("OPENCLAW_PROJECT_NAME", &c.Project.Name)
	setString("OPENCLAW_PROJECT_DESCRIPTION", &c.Project.Description)

	setString("OPENCLAW_EMBEDDING_PROVIDER", &c.Embedding.Provider)
	setString("OPENCLAW_EMBEDDING_MODEL", &c.Embedding.Model)
	setString("OPENCLAW_EMBEDDING_API_KEY", &c.Embedding.APIKey)
	setString("OPENCLAW_EMBEDDING_BASE_URL", &c.Embedding.BaseURL)
	setInt("OPENCLAW_EMBEDDING_DIMENSION", &c.Embedding.Dimension)
	setInt("OPENCLAW_EMBEDDING_TIMEOUT_SECONDS", &c.Embedding.TimeoutSeconds)

	setBool("OPENCLAW_PRIVACY_ENABLED", &c.Privacy.Enabled)
	if v := os.Getenv("OPENCLAW_PRIVACY_PATTERNS"); v != "" {
		var patterns []string
		for _, line := range strings.Split(v, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				patterns = append(patterns, line)
			}
		}
		c.Privacy.Patterns = patterns
	}

	setInt("OPENCLAW_SEARCH_DEFAULT_MAX_TOKENS", &c.Search.DefaultMaxTokens)
	setFloat("OPENCLAW_SEARCH_RECENCY_HALF_LIFE_DAYS", &c.Search.RecencyHalfLifeDays)
	setInt("OPENCLAW_SEARCH_DEFAULT_TOP_K", &c.Search.DefaultTopK)

	setFloat("OPENCLAW_WRITER_REINFORCE_THRESHOLD", &c.Writer.ReinforceThreshold)
	setFloat("OPENCLAW_WRITER_CONFLICT_THRESHOLD", &c.Writer.ConflictThreshold)

	setString("OPENCLAW_SERVER_TRANSPORT", &c.Server.Transport)
	setInt("OPENCLAW_SERVER_SSE_PORT", &c.Server.SSEPort)

	setString("OPENCLAW_LOG_LEVEL", &c.Log.Level)
	setString("OPENCLAW_LOG_FILE", &c.Log.File)

	// Conventional fallback when no key is configured anywhere else.
	if c.Embedding.APIKey == "" {
		c.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

// Validate checks the merged configuration for values no layer may set.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case ProviderAuto, ProviderOpenAI, ProviderOllama, ProviderLocal:
	default:
		return fmt.Errorf("invalid embedding.provider %q (want auto, openai, ollama, or local)", c.Embedding.Provider)
	}
	if c.Embedding.Dimension < 0 {
		return fmt.Errorf("embedding.dimension must be >= 0, got %d", c.Embedding.Dimension)
	}
	if c.Embedding.TimeoutSeconds <= 0 {
		return fmt.Errorf("embedding.timeout_seconds must be positive, got %d", c.Embedding.TimeoutSeconds)
	}

	for _, pattern := range c.Privacy.Patterns {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("invalid privacy pattern %q: %w", pattern, err)
		}
	}

	if c.Search.DefaultMaxTokens <= 0 {
		return fmt.Errorf("search.default_max_tokens must be positive, got %d", c.Search.DefaultMaxTokens)
	}
	if c.Search.RecencyHalfLifeDays <= 0 {
		return fmt.Errorf("search.recency_half_life_days must be positive, got %g", c.Search.RecencyHalfLifeDays)
	}
	if c.Search.DefaultTopK <= 0 {
		return fmt.Errorf("search.default_top_k must be positive, got %d", c.Search.DefaultTopK)
	}

	if c.Writer.ReinforceThreshold <= 0 || c.Writer.ReinforceThreshold > 1 {
		return fmt.Errorf("writer.reinforce_threshold must be in (0, 1], got %g", c.Writer.ReinforceThreshold)
	}
	if c.Writer.ConflictThreshold <= 0 || c.Writer.ConflictThreshold > 1 {
		return fmt.Errorf("writer.conflict_threshold must be in (0, 1], got %g", c.Writer.ConflictThreshold)
	}
	if c.Writer.ConflictThreshold > c.Writer.ReinforceThreshold {
		return fmt.Errorf("writer.conflict_threshold (%g) must not exceed writer.reinforce_threshold (%g)",
			c.Writer.ConflictThreshold, c.Writer.ReinforceThreshold)
	}

	switch c.Server.Transport {
	case TransportStdio, TransportSSE:
	default:
		return fmt.Errorf("invalid server.transport %q (want stdio or sse)", c.Server.Transport)
	}
	if c.Server.SSEPort <= 0 || c.Server.SSEPort > 65535 {
		return fmt.Errorf("server.sse_port must be in 1..65535, got %d", c.Server.SSEPort)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level %q (want debug, info, warn, or error)", c.Log.Level)
	}

	return nil
}

// WriteTOML writes c to path, creating parent directories as needed.
func (c *Config) WriteTOML(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	var buf strings.Builder
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, []byte(buf.String()), 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
