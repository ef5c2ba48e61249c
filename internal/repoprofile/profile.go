package repoprofile

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	DefaultMaxDepth = 4
	DefaultMaxFiles = 5000
)

// Profile walks repoRoot once, collecting top-level directories, marker
// files, extension counts, detected languages, recommended globs, and
// per-top-level-dir role recommendations. Per spec.md §4.8, ported from
// profile_repo.
func Profile(repoRoot string, maxDepth, maxFiles int) (*Profile, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}

	absRoot, err := filepath.Abs(repoRoot)
	if err != nil {
		return nil, err
	}

	topLevelDirs, err := collectTopLevelDirs(absRoot)
	if err != nil {
		return nil, err
	}

	var foundMarkers []string
	for _, m := range markerFiles {
		if _, statErr := os.Stat(filepath.Join(absRoot, m)); statErr == nil {
			foundMarkers = append(foundMarkers, m)
		}
	}
	markerSet := toSet(foundMarkers)

	extCounts, err := walkExtensionCounts(absRoot, maxDepth, maxFiles)
	if err != nil {
		return nil, err
	}

	languages := detectLanguages(markerSet, extCounts)
	includeGlobs := recommendIncludeGlobs(absRoot, languages, extCounts)
	excludeGlobs := []string{
		"**/.git/**", "**/node_modules/**", "**/__pycache__/**",
		"**/.venv/**", "**/venv/**", "**/dist/**", "**/build/**",
		"**/target/**", "**/.next/**", "**/.cache/**",
	}

	var pathRoles []PathRole
	for _, d := range topLevelDirs {
		role, confidence := ClassifyDirName(d)
		pathRoles = append(pathRoles, PathRole{Path: d + "/**", Role: string(role), Confidence: confidence})
	}

	roleWeights := make(map[string]float64, len(DefaultRoleWeights))
	for k, v := range DefaultRoleWeights {
		roleWeights[string(k)] = v
	}

	return &Profile{
		RepoRoot:          absRoot,
		TopLevelDirs:      topLevelDirs,
		MarkerFiles:       foundMarkers,
		ExtensionCounts:   extCounts,
		DetectedLanguages: languages,
		PathRoles:         pathRoles,
		Recommended: Recommended{
			IncludeGlobs: includeGlobs,
			ExcludeGlobs: excludeGlobs,
			RoleWeights:  roleWeights,
		},
	}, nil
}

func collectTopLevelDirs(absRoot string) ([]string, error) {
	entries, err := os.ReadDir(absRoot)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") || defaultExcludeDirNames[name] {
			continue
		}
		dirs = append(dirs, name)
	}
	sort.Strings(dirs)
	return dirs, nil
}

func walkExtensionCounts(absRoot string, maxDepth, maxFiles int) (map[string]int, error) {
	counts := make(map[string]int)
	seen := 0
	err := filepath.Walk(absRoot, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return nil
			}
			return walkErr
		}
		if seen >= maxFiles {
			return filepath.SkipAll
		}
		rel, relErr := filepath.Rel(absRoot, p)
		if relErr != nil {
			return nil
		}
		if rel == "." {
			return nil
		}
		depth := len(strings.Split(filepath.ToSlash(rel), "/"))

		if info.IsDir() {
			name := info.Name()
			if defaultExcludeDirNames[name] || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			if depth >= maxDepth {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(info.Name(), ".") {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(info.Name()))
		if ext != "" {
			counts[ext]++
		}
		seen++
		if seen >= maxFiles {
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func detectLanguages(markerSet map[string]bool, extCounts map[string]int) []string {
	langs := map[string]bool{}

	if markerSet["pyproject.toml"] || markerSet["requirements.txt"] || extCounts[".py"] > 0 {
		langs["python"] = true
	}
	if markerSet["package.json"] || extCounts[".ts"] > 0 || extCounts[".tsx"] > 0 {
		langs["typescript"] = true
	} else if extCounts[".js"] > 0 || extCounts[".jsx"] > 0 {
		langs["javascript"] = true
	}
	if markerSet["go.mod"] || extCounts[".go"] > 0 {
		langs["go"] = true
	}
	if markerSet["Cargo.toml"] || extCounts[".rs"] > 0 {
		langs["rust"] = true
	}
	if markerSet["pom.xml"] || markerSet["build.gradle"] || extCounts[".java"] > 0 {
		langs["java"] = true
	}

	var out []string
	for l := range langs {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func recommendIncludeGlobs(absRoot string, languages []string, extCounts map[string]int) []string {
	langSet := toSet(languages)
	var globs []string

	_, readmeErr := os.Stat(filepath.Join(absRoot, "README.md"))
	_, docsErr := os.Stat(filepath.Join(absRoot, "docs"))
	if extCounts[".md"] > 0 || readmeErr == nil || docsErr == nil {
		globs = append(globs, "**/*.md", "**/*.markdown")
	}
	if extCounts[".rst"] > 0 {
		globs = append(globs, "**/*.rst")
	}
	if langSet["python"] {
		globs = append(globs, "**/*.py")
	}
	if langSet["typescript"] {
		globs = append(globs, "**/*.ts", "**/*.tsx")
	}
	if langSet["javascript"] {
		globs = append(globs, "**/*.js", "**/*.jsx")
	}
	if langSet["go"] {
		globs = append(globs, "**/*.go")
	}
	if langSet["rust"] {
		globs = append(globs, "**/*.rs")
	}
	if langSet["java"] {
		globs = append(globs, "**/*.java", "**/*.kt", "**/*.kts")
	}

	return sortedUnique(globs)
}

func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, i := range items {
		s[i] = true
	}
	return s
}

func sortedUnique(items []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, i := range items {
		if !seen[i] {
			seen[i] = true
			out = append(out, i)
		}
	}
	sort.Strings(out)
	return out
}
