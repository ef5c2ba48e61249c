package config

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidMaxFileBytes indicates a non-positive max_file_bytes.
	ErrInvalidMaxFileBytes = errors.New("invalid max_file_bytes")

	// ErrInvalidDimensions indicates invalid embedding dimensions.
	ErrInvalidDimensions = errors.New("invalid embedding dimensions")

	// ErrEmptyModel indicates a missing embedding model tag.
	ErrEmptyModel = errors.New("empty embedding model")

	// ErrInvalidTraceCaps indicates a non-positive trace cap.
	ErrInvalidTraceCaps = errors.New("invalid trace caps")

	// ErrInvalidWatcherTuning indicates a non-positive watcher timing
	// value.
	ErrInvalidWatcherTuning = errors.New("invalid watcher tuning")

	// ErrInvalidPrimerConfig indicates an out-of-range primer setting.
	ErrInvalidPrimerConfig = errors.New("invalid primer config")
)

// Validate checks that a project Config is complete and internally
// consistent.
func Validate(cfg *Config) error {
	var errs []error

	if err := validateEmbedding(&cfg.Embedding); err != nil {
		errs = append(errs, err)
	}
	if cfg.MaxFileBytes <= 0 {
		errs = append(errs, fmt.Errorf("%w: must be positive, got %d", ErrInvalidMaxFileBytes, cfg.MaxFileBytes))
	}
	if err := validateTrace(&cfg.Trace); err != nil {
		errs = append(errs, err)
	}
	if err := validateWatcher(&cfg.Watcher); err != nil {
		errs = append(errs, err)
	}
	if err := validatePrimer(&cfg.Primer); err != nil {
		errs = append(errs, err)
	}

	return joinErrors(errs)
}

func validateEmbedding(cfg *EmbeddingConfig) error {
	var errs []error
	if strings.TrimSpace(cfg.Model) == "" {
		errs = append(errs, fmt.Errorf("%w: model is required", ErrEmptyModel))
	}
	if cfg.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("%w: dimensions must be positive, got %d", ErrInvalidDimensions, cfg.Dimensions))
	}
	return joinErrors(errs)
}

func validateTrace(cfg *TraceConfig) error {
	if !cfg.Enabled {
		return nil
	}
	var errs []error
	if cfg.MaxFileBytes <= 0 {
		errs = append(errs, fmt.Errorf("%w: max_file_bytes must be positive, got %d", ErrInvalidTraceCaps, cfg.MaxFileBytes))
	}
	if cfg.MaxFiles <= 0 {
		errs = append(errs, fmt.Errorf("%w: max_files must be positive, got %d", ErrInvalidTraceCaps, cfg.MaxFiles))
	}
	if cfg.MaxNodes <= 0 {
		errs = append(errs, fmt.Errorf("%w: max_nodes must be positive, got %d", ErrInvalidTraceCaps, cfg.MaxNodes))
	}
	if cfg.MaxEdges <= 0 {
		errs = append(errs, fmt.Errorf("%w: max_edges must be positive, got %d", ErrInvalidTraceCaps, cfg.MaxEdges))
	}
	if cfg.MaxFailures <= 0 {
		errs = append(errs, fmt.Errorf("%w: max_failures must be positive, got %d", ErrInvalidTraceCaps, cfg.MaxFailures))
	}
	return joinErrors(errs)
}

func validateWatcher(cfg *WatcherConfig) error {
	if !cfg.Enabled {
		return nil
	}
	var errs []error
	if cfg.DebounceMs <= 0 {
		errs = append(errs, fmt.Errorf("%w: debounce_ms must be positive, got %d", ErrInvalidWatcherTuning, cfg.DebounceMs))
	}
	if cfg.MinRebuildGapMs <= 0 {
		errs = append(errs, fmt.Errorf("%w: min_rebuild_gap_ms must be positive, got %d", ErrInvalidWatcherTuning, cfg.MinRebuildGapMs))
	}
	return joinErrors(errs)
}

func validatePrimer(cfg *PrimerConfig) error {
	if !cfg.Enabled {
		return nil
	}
	var errs []error
	if cfg.ScoreBoost < 0 || cfg.ScoreBoost > 1 {
		errs = append(errs, fmt.Errorf("%w: score_boost must be within [0,1], got %.2f", ErrInvalidPrimerConfig, cfg.ScoreBoost))
	}
	if cfg.MaxPrimerChars <= 0 {
		errs = append(errs, fmt.Errorf("%w: max_primer_chars must be positive, got %d", ErrInvalidPrimerConfig, cfg.MaxPrimerChars))
	}
	return joinErrors(errs)
}

// joinErrors combines multiple errors into a single error with clear
// formatting, or returns nil for an empty slice.
func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	format := "validation failed:" + strings.Repeat("\n  - %w", len(errs))
	args := make([]any, len(errs))
	for i, err := range errs {
		args[i] = err
	}
	return fmt.Errorf(format, args...)
}
