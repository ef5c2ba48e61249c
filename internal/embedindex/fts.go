package embedindex

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// ftsSchema matches spec.md §6.1's fts.sqlite3 contract and core/index.py's
// _ensure_fts_schema byte-for-byte: a single FTS5 virtual table named
// "fts" with one unindexed column carrying the chunk id.
const ftsSchema = `CREATE VIRTUAL TABLE IF NOT EXISTS fts USING fts5(
	chunk_id UNINDEXED,
	content,
	source_path,
	section
)`

// rebuildFTS drops and repopulates the FTS index from the given documents.
// A failure here is non-fatal to the build (spec.md's keyword facility is
// an optional boost source), matching core/index.py's "continuing without
// keyword index" behavior — callers remove the partial file and proceed.
func rebuildFTS(ftsPath string, docs []Document) error {
	if err := os.MkdirAll(filepath.Dir(ftsPath), 0755); err != nil {
		return err
	}
	db, err := sql.Open("sqlite3", ftsPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.Exec(ftsSchema); err != nil {
		return fmt.Errorf("ensure fts schema: %w", err)
	}
	if _, err := db.Exec("DELETE FROM fts"); err != nil {
		return fmt.Errorf("clear fts: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare("INSERT INTO fts(chunk_id, content, source_path, section) VALUES (?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	for _, d := range docs {
		if _, err := stmt.Exec(d.ID, d.Content, d.SourcePath, d.Section); err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("insert fts row for %s: %w", d.ID, err)
		}
	}
	stmt.Close()
	return tx.Commit()
}

// ftsRank is one (chunk_id, bm25 rank) row from the keyword facility.
type ftsRank struct {
	ChunkID string
	Rank    float64
}

// queryFTS runs the keyword search described in spec.md §6.4, tolerating
// a missing file, a broken connection, or a MATCH syntax error by
// returning no rows rather than propagating an error — query() is a best-
// effort boost source, not a hard dependency.
func queryFTS(ftsPath, query string, limit int) []ftsRank {
	if _, err := os.Stat(ftsPath); err != nil {
		return nil
	}
	db, err := sql.Open("sqlite3", ftsPath)
	if err != nil {
		return nil
	}
	defer db.Close()

	if _, err := db.Exec(ftsSchema); err != nil {
		return nil
	}

	rows, err := db.Query("SELECT chunk_id, bm25(fts) AS rank FROM fts WHERE fts MATCH ? ORDER BY rank LIMIT ?", query, limit)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []ftsRank
	for rows.Next() {
		var id string
		var rank sql.NullFloat64
		if err := rows.Scan(&id, &rank); err != nil {
			continue
		}
		r := 0.0
		if rank.Valid {
			r = rank.Float64
		}
		out = append(out, ftsRank{ChunkID: id, Rank: r})
	}
	return out
}
