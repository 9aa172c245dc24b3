// Package configs embeds the configuration templates the init command
// scaffolds from. Embedding keeps the templates in every distribution,
// whether installed from source or a release binary.
//
// The merge order at load time is: built-in defaults, then the global
// config.toml, then the project .openclaw_memory.toml, then OPENCLAW_*
// environment variables.
package configs

import _ "embed"

// GlobalConfigTemplate seeds ~/.openclaw_memory/config.toml. Written by
// `openclaw-memory init --global-only` when no global config exists.
//
//go:embed global-config.example.toml
var GlobalConfigTemplate string

// ProjectConfigTemplate seeds <project>/.openclaw_memory.toml. Written
// by `openclaw-memory init`; its presence marks the project root.
//
//go:embed project-config.example.toml
var ProjectConfigTemplate string
