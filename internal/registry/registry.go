// Package registry implements the durable, cross-project mapping of
// project id to root path, mode, and per-project config (spec.md §4.7).
// It is the only cross-project shared structure in the daemon; every
// other structure (embedding index, trace index, watcher) is owned
// exclusively by a single project inside internal/engine.
//
// Grounded on core/project_registry.py's ProjectRegistry (schema, the
// add/get/list/update/remove operations, the UNIQUE-path-violation and
// purge-safety containment rules) with the Go database/sql + PRAGMA
// open pattern taken from the teacher's internal/cache/cache.go
// (foreign_keys + WAL pragmas, sql.Open("sqlite3", ...)). The teacher's
// git-remote cache-migration logic has no analogue here: CoDRAG
// projects are addressed by a fixed absolute path, not a relocatable
// git-identity cache key.
package registry

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Mode is a project's index placement mode (spec.md §4.7).
type Mode string

const (
	ModeEmbedded   Mode = "embedded"
	ModeStandalone Mode = "standalone"
)

// Project is one registered project record.
type Project struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Path      string                 `json:"path"`
	Mode      Mode                   `json:"mode"`
	Config    map[string]interface{} `json:"config"`
	CreatedAt string                 `json:"created_at"`
	UpdatedAt string                 `json:"updated_at"`
}

// ErrAlreadyExists is returned by Add when path is already registered.
var ErrAlreadyExists = errors.New("registry: project already exists for this path")

// ErrNotFound is returned by Get/Update/Remove for an unknown id.
var ErrNotFound = errors.New("registry: project not found")

// ErrPurgeRefused is returned by Remove(purge=true) when the resolved
// index directory falls outside the containment boundary for the
// project's mode.
var ErrPurgeRefused = errors.New("registry: refusing to purge index directory outside its containment boundary")

// Registry is a SQLite-backed durable store of registered projects,
// opened with WAL journaling so reads do not queue behind a writer
// (spec.md §5 "non-blocking journal mode"), and with a 5-second busy
// timeout for lock contention.
type Registry struct {
	db *sql.DB
}

// Open opens (creating if necessary) the registry database at dbPath,
// running schema migration idempotently.
func Open(dbPath string) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("creating registry directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening registry database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	r := &Registry{db: db}
	if err := r.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// Close closes the underlying database connection.
func (r *Registry) Close() error {
	return r.db.Close()
}

func (r *Registry) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			path TEXT NOT NULL UNIQUE,
			mode TEXT NOT NULL DEFAULT 'standalone',
			config TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS builds (
			id TEXT PRIMARY KEY,
			project_id TEXT REFERENCES projects(id),
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at TEXT,
			completed_at TEXT,
			stats TEXT,
			error TEXT
		)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.Exec(stmt); err != nil {
			return fmt.Errorf("initializing registry schema: %w", err)
		}
	}
	return nil
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Add registers a project at absPath. absPath must already be an
// absolute, resolved path; callers are responsible for path
// normalization (the engine layer does this before calling in). If name
// is empty, the path's base name is used.
func (r *Registry) Add(absPath, name string, mode Mode, config map[string]interface{}) (Project, error) {
	if mode == "" {
		mode = ModeStandalone
	}
	if config == nil {
		config = map[string]interface{}{}
	}
	if name == "" {
		name = filepath.Base(absPath)
	}

	id := uuid.NewString()
	now := nowISO()
	cfgJSON, err := json.Marshal(config)
	if err != nil {
		return Project{}, fmt.Errorf("encoding project config: %w", err)
	}

	_, err = r.db.Exec(
		`INSERT INTO projects (id, name, path, mode, config, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, name, absPath, string(mode), string(cfgJSON), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Project{}, ErrAlreadyExists
		}
		return Project{}, fmt.Errorf("inserting project: %w", err)
	}

	return Project{ID: id, Name: name, Path: absPath, Mode: mode, Config: config, CreatedAt: now, UpdatedAt: now}, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Get looks up a project by id.
func (r *Registry) Get(id string) (Project, error) {
	row := r.db.QueryRow(
		`SELECT id, name, path, mode, config, created_at, updated_at FROM projects WHERE id = ?`, id,
	)
	return scanProject(row)
}

func scanProject(row *sql.Row) (Project, error) {
	var (
		p       Project
		mode    string
		cfgJSON sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Path, &mode, &cfgJSON, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Project{}, ErrNotFound
		}
		return Project{}, fmt.Errorf("scanning project: %w", err)
	}
	p.Mode = Mode(mode)
	p.Config = map[string]interface{}{}
	if cfgJSON.Valid && cfgJSON.String != "" {
		_ = json.Unmarshal([]byte(cfgJSON.String), &p.Config)
	}
	return p, nil
}

// List returns every registered project ordered by updated_at
// descending (spec.md §4.7).
func (r *Registry) List() ([]Project, error) {
	rows, err := r.db.Query(
		`SELECT id, name, path, mode, config, created_at, updated_at FROM projects ORDER BY updated_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var (
			p       Project
			mode    string
			cfgJSON sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Path, &mode, &cfgJSON, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning project row: %w", err)
		}
		p.Mode = Mode(mode)
		p.Config = map[string]interface{}{}
		if cfgJSON.Valid && cfgJSON.String != "" {
			_ = json.Unmarshal([]byte(cfgJSON.String), &p.Config)
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt > out[j].UpdatedAt })
	return out, rows.Err()
}

// Update changes a project's name and/or config, bumping updated_at.
// Passing nil for config leaves it unchanged; an empty non-nil map
// clears it.
func (r *Registry) Update(id string, name *string, config map[string]interface{}) (Project, error) {
	existing, err := r.Get(id)
	if err != nil {
		return Project{}, err
	}

	newName := existing.Name
	if name != nil {
		newName = *name
	}
	newConfig := existing.Config
	if config != nil {
		newConfig = config
	}
	now := nowISO()

	cfgJSON, err := json.Marshal(newConfig)
	if err != nil {
		return Project{}, fmt.Errorf("encoding project config: %w", err)
	}

	if _, err := r.db.Exec(
		`UPDATE projects SET name = ?, config = ?, updated_at = ? WHERE id = ?`,
		newName, string(cfgJSON), now, id,
	); err != nil {
		return Project{}, fmt.Errorf("updating project: %w", err)
	}

	return r.Get(id)
}

// IndexDir resolves a project's index directory per spec.md §4.7:
// embedded mode -> <root>/.codrag; standalone mode -> <dataDir>/projects/<id>.
func IndexDir(p Project, dataDir string) string {
	if p.Mode == ModeEmbedded {
		return filepath.Join(p.Path, ".codrag")
	}
	return filepath.Join(dataDir, "projects", p.ID)
}

// Remove deletes a project's registry row, optionally purging its index
// directory first. Purge is refused when the resolved directory falls
// outside the project root (embedded mode) or the data directory's
// projects/ tree (standalone mode) — a guard against a corrupted or
// hand-edited config pointing removal at an unrelated path.
func (r *Registry) Remove(id string, purge bool, dataDir string) error {
	p, err := r.Get(id)
	if err != nil {
		return err
	}

	if purge {
		indexDir := IndexDir(p, dataDir)
		resolved, err := filepath.Abs(indexDir)
		if err != nil {
			return fmt.Errorf("resolving index directory: %w", err)
		}

		var boundary string
		if p.Mode == ModeEmbedded {
			boundary, err = filepath.Abs(p.Path)
		} else {
			boundary, err = filepath.Abs(filepath.Join(dataDir, "projects"))
		}
		if err != nil {
			return fmt.Errorf("resolving containment boundary: %w", err)
		}

		if !isContained(boundary, resolved) {
			return ErrPurgeRefused
		}

		if info, statErr := os.Stat(resolved); statErr == nil && info.IsDir() {
			if err := os.RemoveAll(resolved); err != nil {
				return fmt.Errorf("purging index directory: %w", err)
			}
		}
	}

	if _, err := r.db.Exec(`DELETE FROM projects WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting project row: %w", err)
	}
	return nil
}

// isContained reports whether target is boundary itself or a descendant
// of it.
func isContained(boundary, target string) bool {
	rel, err := filepath.Rel(boundary, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// RecordBuildStart inserts an audit row marking a build's start (spec.md
// §6.1's builds table).
func (r *Registry) RecordBuildStart(buildID, projectID, kind string) error {
	_, err := r.db.Exec(
		`INSERT INTO builds (id, project_id, kind, status, started_at) VALUES (?, ?, ?, 'running', ?)`,
		buildID, projectID, kind, nowISO(),
	)
	if err != nil {
		return fmt.Errorf("recording build start: %w", err)
	}
	return nil
}

// RecordBuildComplete finalizes an audit row with status, a JSON-encoded
// stats payload, and an optional error message.
func (r *Registry) RecordBuildComplete(buildID, status, statsJSON, buildErr string) error {
	var errArg interface{}
	if buildErr != "" {
		errArg = buildErr
	}
	_, err := r.db.Exec(
		`UPDATE builds SET status = ?, completed_at = ?, stats = ?, error = ? WHERE id = ?`,
		status, nowISO(), statsJSON, errArg, buildID,
	)
	if err != nil {
		return fmt.Errorf("recording build completion: %w", err)
	}
	return nil
}
