// Package config loads ambient configuration for the daemon: a
// machine-wide GlobalConfig (data directory, registry location, default
// embedding settings) and a per-project Config (include/exclude globs,
// trace/watcher/primer tuning) layered as defaults -> config file ->
// environment variables, the same three-tier priority and
// github.com/spf13/viper plumbing the teacher's internal/config package
// used for its own (differently shaped) settings.
package config

import (
	"github.com/EricBintner/codrag/internal/trace"
	"github.com/EricBintner/codrag/internal/watcher"
)

// Config is one project's tunable settings (spec.md §3 "Config carries
// include/exclude globs, max file size, trace.enabled, watcher tuning,
// primer settings").
type Config struct {
	IncludeGlobs []string        `yaml:"include_globs" mapstructure:"include_globs"`
	ExcludeGlobs []string        `yaml:"exclude_globs" mapstructure:"exclude_globs"`
	MaxFileBytes int64           `yaml:"max_file_bytes" mapstructure:"max_file_bytes"`
	Embedding    EmbeddingConfig `yaml:"embedding" mapstructure:"embedding"`
	Trace        TraceConfig     `yaml:"trace" mapstructure:"trace"`
	Watcher      WatcherConfig   `yaml:"watcher" mapstructure:"watcher"`
	Primer       PrimerConfig    `yaml:"primer" mapstructure:"primer"`
}

// EmbeddingConfig names the embedding capability a project's index was
// (or will be) built against. CoDRAG's engine consumes an injected
// embedcap.Provider (spec.md §6.2) rather than constructing one from
// this config — Model/Dimensions exist so the manifest and status
// aggregation can report what a project expects without the config
// package depending on any concrete provider.
type EmbeddingConfig struct {
	Model      string `yaml:"model" mapstructure:"model"`
	Dimensions int    `yaml:"dimensions" mapstructure:"dimensions"`
}

// TraceConfig controls the trace builder's caps and whether trace
// building runs at all for a project (spec.md §4.5).
type TraceConfig struct {
	Enabled      bool  `yaml:"enabled" mapstructure:"enabled"`
	MaxFileBytes int64 `yaml:"max_file_bytes" mapstructure:"max_file_bytes"`
	MaxFiles     int   `yaml:"max_files" mapstructure:"max_files"`
	MaxNodes     int   `yaml:"max_nodes" mapstructure:"max_nodes"`
	MaxEdges     int   `yaml:"max_edges" mapstructure:"max_edges"`
	MaxFailures  int   `yaml:"max_failures" mapstructure:"max_failures"`
}

// WatcherConfig controls the filesystem watcher's debounce/throttle
// tuning (spec.md §4.6).
type WatcherConfig struct {
	Enabled         bool `yaml:"enabled" mapstructure:"enabled"`
	DebounceMs      int  `yaml:"debounce_ms" mapstructure:"debounce_ms"`
	MinRebuildGapMs int  `yaml:"min_rebuild_gap_ms" mapstructure:"min_rebuild_gap_ms"`
}

// PrimerConfig mirrors repopolicy.PrimerConfig's shape so a project's
// config file can override the profiler-recommended primer settings
// without this package importing repopolicy (which itself depends on
// repoprofile) — internal/engine translates between the two at the
// point it builds a repopolicy.Policy.
type PrimerConfig struct {
	Enabled        bool     `yaml:"enabled" mapstructure:"enabled"`
	Filenames      []string `yaml:"filenames" mapstructure:"filenames"`
	ScoreBoost     float64  `yaml:"score_boost" mapstructure:"score_boost"`
	AlwaysInclude  bool     `yaml:"always_include" mapstructure:"always_include"`
	MaxPrimerChars int      `yaml:"max_primer_chars" mapstructure:"max_primer_chars"`
}

// Default returns a project configuration with sensible defaults, with
// trace and watcher caps matching internal/trace's and
// internal/watcher's own package defaults so a project that never
// customizes its config still behaves identically to one that sets
// these values explicitly.
func Default() *Config {
	return &Config{
		IncludeGlobs: nil,
		ExcludeGlobs: []string{
			"**/.git/**",
			"**/node_modules/**",
			"**/__pycache__/**",
			"**/dist/**",
			"**/build/**",
			"**/target/**",
		},
		MaxFileBytes: 1_000_000,
		Embedding: EmbeddingConfig{
			Model:      "fake-embed",
			Dimensions: 256,
		},
		Trace: TraceConfig{
			Enabled:      true,
			MaxFileBytes: trace.DefaultMaxFileBytes,
			MaxFiles:     trace.DefaultMaxFiles,
			MaxNodes:     trace.DefaultMaxNodes,
			MaxEdges:     trace.DefaultMaxEdges,
			MaxFailures:  trace.DefaultMaxFailures,
		},
		Watcher: WatcherConfig{
			Enabled:         true,
			DebounceMs:      watcher.DefaultDebounceMs,
			MinRebuildGapMs: watcher.DefaultMinRebuildGapMs,
		},
		Primer: PrimerConfig{
			Enabled:        true,
			Filenames:      []string{"AGENTS.md", "CODRAG_PRIMER.md", "PROJECT_PRIMER.md"},
			ScoreBoost:     0.25,
			AlwaysInclude:  false,
			MaxPrimerChars: 2000,
		},
	}
}
