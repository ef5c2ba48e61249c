package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader loads a single project's Config from its root directory.
type Loader interface {
	// Load loads configuration from file and environment variables.
	// Priority: defaults -> config file -> environment variables (env wins).
	Load() (*Config, error)
}

type loader struct {
	rootDir string
}

// NewLoader creates a configuration loader for the given project root.
func NewLoader(rootDir string) Loader {
	return &loader{rootDir: rootDir}
}

// Load loads configuration with the following priority (highest to
// lowest): environment variables (CODRAG_*), .codrag/config.yml, then
// built-in defaults.
func (l *loader) Load() (*Config, error) {
	v := viper.New()

	configDir := filepath.Join(l.rootDir, ".codrag")
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	v.SetEnvPrefix("CODRAG")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindProjectEnvVars(v)

	setProjectDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func bindProjectEnvVars(v *viper.Viper) {
	v.BindEnv("max_file_bytes")
	v.BindEnv("embedding.model")
	v.BindEnv("embedding.dimensions")
	v.BindEnv("trace.enabled")
	v.BindEnv("trace.max_files")
	v.BindEnv("trace.max_nodes")
	v.BindEnv("trace.max_edges")
	v.BindEnv("watcher.enabled")
	v.BindEnv("watcher.debounce_ms")
	v.BindEnv("watcher.min_rebuild_gap_ms")
	v.BindEnv("primer.enabled")
}

func setProjectDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("include_globs", d.IncludeGlobs)
	v.SetDefault("exclude_globs", d.ExcludeGlobs)
	v.SetDefault("max_file_bytes", d.MaxFileBytes)

	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)

	v.SetDefault("trace.enabled", d.Trace.Enabled)
	v.SetDefault("trace.max_file_bytes", d.Trace.MaxFileBytes)
	v.SetDefault("trace.max_files", d.Trace.MaxFiles)
	v.SetDefault("trace.max_nodes", d.Trace.MaxNodes)
	v.SetDefault("trace.max_edges", d.Trace.MaxEdges)
	v.SetDefault("trace.max_failures", d.Trace.MaxFailures)

	v.SetDefault("watcher.enabled", d.Watcher.Enabled)
	v.SetDefault("watcher.debounce_ms", d.Watcher.DebounceMs)
	v.SetDefault("watcher.min_rebuild_gap_ms", d.Watcher.MinRebuildGapMs)

	v.SetDefault("primer.enabled", d.Primer.Enabled)
	v.SetDefault("primer.filenames", d.Primer.Filenames)
	v.SetDefault("primer.score_boost", d.Primer.ScoreBoost)
	v.SetDefault("primer.always_include", d.Primer.AlwaysInclude)
	v.SetDefault("primer.max_primer_chars", d.Primer.MaxPrimerChars)
}

// LoadConfig loads project configuration using the current working
// directory as the project root.
func LoadConfig() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return NewLoader(wd).Load()
}

// LoadConfigFromDir loads project configuration from a specific
// directory.
func LoadConfigFromDir(rootDir string) (*Config, error) {
	return NewLoader(rootDir).Load()
}
