package repoprofile

// PathRole is a profiler recommendation for a top-level directory.
type PathRole struct {
	Path       string  `json:"path"`
	Role       string  `json:"role"`
	Confidence float64 `json:"confidence"`
}

// Recommended holds the profiler's derived policy recommendation.
type Recommended struct {
	IncludeGlobs []string           `json:"include_globs"`
	ExcludeGlobs []string           `json:"exclude_globs"`
	RoleWeights  map[string]float64 `json:"role_weights"`
}

// Profile is the full deterministic inspection result for a repo root.
type Profile struct {
	RepoRoot          string         `json:"repo_root"`
	TopLevelDirs      []string       `json:"top_level_dirs"`
	MarkerFiles       []string       `json:"marker_files"`
	ExtensionCounts   map[string]int `json:"extension_counts"`
	DetectedLanguages []string       `json:"detected_languages"`
	PathRoles         []PathRole     `json:"path_roles"`
	Recommended       Recommended    `json:"recommended"`
}
