// Package config's global half covers machine-wide daemon settings,
// loaded once at process start and shared by every project the daemon
// serves.
//
// Configuration hierarchy (highest to lowest priority):
//  1. Environment variables (CODRAG_*)
//  2. Global config (~/.codrag/config.yml)
//  3. Built-in defaults
//
// Per-project settings (Config, above) are layered separately per
// project and are not part of this hierarchy.
package config

// GlobalConfig holds machine-wide settings: where the daemon keeps
// standalone-mode project data and the durable registry, and the
// default embedding settings new projects inherit absent an explicit
// override (spec.md §4.7 "registry lives in a separate durable store").
type GlobalConfig struct {
	DataDir   string          `yaml:"data_dir" mapstructure:"data_dir"`
	Registry  RegistryConfig  `yaml:"registry" mapstructure:"registry"`
	Embedding EmbeddingConfig `yaml:"embedding" mapstructure:"embedding"`
	LogLevel  string          `yaml:"log_level" mapstructure:"log_level"`
}

// RegistryConfig locates the durable project registry database.
type RegistryConfig struct {
	DBPath string `yaml:"db_path" mapstructure:"db_path"`
}
