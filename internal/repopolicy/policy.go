// Package repopolicy persists the repo profiler's output per index
// directory and reconciles it with the live repo root (spec.md §4.8).
// Grounded on core/repo_policy.py.
package repopolicy

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/EricBintner/codrag/internal/repoprofile"
)

const PolicyFilename = "repo_policy.json"

// PrimerConfig controls which repo-root documents receive a score boost
// or are always prepended to assembled context, per spec.md §3/§4.3.
// Defaults ported from core/repo_policy.py's DEFAULT_PRIMER_CONFIG.
type PrimerConfig struct {
	Enabled        bool     `json:"enabled"`
	Filenames      []string `json:"filenames"`
	ScoreBoost     float64  `json:"score_boost"`
	AlwaysInclude  bool     `json:"always_include"`
	MaxPrimerChars int      `json:"max_primer_chars"`
}

// DefaultPrimerConfig matches core/repo_policy.py's DEFAULT_PRIMER_CONFIG.
func DefaultPrimerConfig() PrimerConfig {
	return PrimerConfig{
		Enabled:        true,
		Filenames:      []string{"AGENTS.md", "CODRAG_PRIMER.md", "PROJECT_PRIMER.md"},
		ScoreBoost:     0.25,
		AlwaysInclude:  false,
		MaxPrimerChars: 2000,
	}
}

// Policy is the persisted per-project repo policy (spec.md §3).
type Policy struct {
	Version           string                 `json:"version"`
	CreatedAt         string                 `json:"created_at"`
	RepoRoot          string                 `json:"repo_root"`
	IncludeGlobs      []string               `json:"include_globs"`
	ExcludeGlobs      []string               `json:"exclude_globs"`
	RoleWeights       map[string]float64     `json:"role_weights"`
	Primer            PrimerConfig           `json:"primer"`
	PathRoles         []repoprofile.PathRole `json:"path_roles"`
	DetectedLanguages []string               `json:"detected_languages"`
	MarkerFiles       []string               `json:"marker_files"`
}

// PathForIndex returns the policy file path for a given index directory.
func PathForIndex(indexDir string) string {
	return filepath.Join(indexDir, PolicyFilename)
}

// Load reads and parses a policy file, returning nil (not an error) if it
// is missing, unreadable, or not a JSON object — per spec.md's
// "regenerate on mismatch" contract, a corrupt policy is just absent.
func Load(path string) *Policy {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return nil
	}
	return &p
}

// Write persists policy to path, creating parent directories as needed.
func Write(path string, policy *Policy) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(policy, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func normalizeGlobs(v []string) []string {
	var out []string
	for _, s := range v {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func normalizeRoleWeights(v map[string]float64) map[string]float64 {
	if len(v) == 0 {
		return defaultRoleWeightsStr()
	}
	return v
}

func defaultRoleWeightsStr() map[string]float64 {
	out := make(map[string]float64, len(repoprofile.DefaultRoleWeights))
	for k, v := range repoprofile.DefaultRoleWeights {
		out[string(k)] = v
	}
	return out
}

func normalizePrimerConfig(v PrimerConfig) PrimerConfig {
	out := DefaultPrimerConfig()
	out.Enabled = v.Enabled
	if len(v.Filenames) > 0 {
		out.Filenames = normalizeGlobs(v.Filenames)
	}
	if v.ScoreBoost != 0 {
		out.ScoreBoost = clamp(v.ScoreBoost, 0.0, 1.0)
	}
	out.AlwaysInclude = v.AlwaysInclude
	if v.MaxPrimerChars != 0 {
		out.MaxPrimerChars = maxInt(100, v.MaxPrimerChars)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// FromProfile builds a fresh Policy from a profiler Profile.
func FromProfile(p *repoprofile.Profile, repoRoot string) *Policy {
	return &Policy{
		Version:           "1.0",
		CreatedAt:         time.Now().UTC().Format(time.RFC3339),
		RepoRoot:          repoRoot,
		IncludeGlobs:      normalizeGlobs(p.Recommended.IncludeGlobs),
		ExcludeGlobs:      normalizeGlobs(p.Recommended.ExcludeGlobs),
		RoleWeights:       normalizeRoleWeights(p.Recommended.RoleWeights),
		Primer:            DefaultPrimerConfig(),
		PathRoles:         p.PathRoles,
		DetectedLanguages: p.DetectedLanguages,
		MarkerFiles:       p.MarkerFiles,
	}
}

// Ensure loads the existing policy for indexDir if its repo_root matches
// repoRoot and force is false; otherwise it regenerates the policy by
// re-profiling repoRoot and persisting the result. Per spec.md §4.8:
// "On load, its repo_root must match the live root — otherwise
// regenerate. ensure_policy(force=true) unconditionally regenerates."
func Ensure(indexDir, repoRoot string, force bool) (*Policy, error) {
	absRoot, err := filepath.Abs(repoRoot)
	if err != nil {
		return nil, err
	}
	path := PathForIndex(indexDir)

	if !force {
		if existing := Load(path); existing != nil && existing.RepoRoot == absRoot {
			existing.IncludeGlobs = normalizeGlobs(existing.IncludeGlobs)
			existing.ExcludeGlobs = normalizeGlobs(existing.ExcludeGlobs)
			existing.RoleWeights = normalizeRoleWeights(existing.RoleWeights)
			existing.Primer = normalizePrimerConfig(existing.Primer)
			return existing, nil
		}
	}

	profile, err := repoprofile.Profile(absRoot, repoprofile.DefaultMaxDepth, repoprofile.DefaultMaxFiles)
	if err != nil {
		return nil, err
	}
	policy := FromProfile(profile, absRoot)
	if err := Write(path, policy); err != nil {
		return nil, err
	}
	return policy, nil
}
