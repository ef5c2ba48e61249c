// Package ids generates stable, content-addressed identifiers for files,
// chunks, trace nodes, and trace edges. Every function here is pure and
// deterministic: the same input always yields the same id, so ids can be
// recomputed by any process without coordination.
package ids

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// StableSHA256 returns the first length hex characters of the SHA-256 digest
// of text.
func StableSHA256(text string, length int) string {
	sum := sha256.Sum256([]byte(text))
	h := hex.EncodeToString(sum[:])
	if length < len(h) {
		return h[:length]
	}
	return h
}

// StableFileHash hashes a file's full content for change detection.
func StableFileHash(content string) string {
	return StableSHA256(content, 16)
}

// StableMarkdownChunkID derives a chunk id from a markdown section's
// position: source path, heading chain, and ordinal within the file.
func StableMarkdownChunkID(sourcePath, section string, idx int) string {
	return StableSHA256(fmt.Sprintf("%s:%s:%d", sourcePath, section, idx), 16)
}

// StableCodeChunkID derives a chunk id from a code chunk's position: source
// path and ordinal within the file.
func StableCodeChunkID(sourcePath string, idx int) string {
	return StableSHA256(fmt.Sprintf("%s:%d", sourcePath, idx), 16)
}

// StableFileNodeID builds the trace node id for a file.
func StableFileNodeID(filePath string) string {
	return "file:" + filePath
}

// StableSymbolNodeID builds the trace node id for a symbol.
func StableSymbolNodeID(qualname, filePath string, startLine int) string {
	return fmt.Sprintf("sym:%s@%s:%d", qualname, filePath, startLine)
}

// StableExternalModuleID builds the trace node id for an unresolved import.
func StableExternalModuleID(moduleName string) string {
	return "ext:" + moduleName
}

// StableEdgeID builds a trace edge id, optionally disambiguated (e.g. by
// line number) when multiple edges would otherwise collide.
func StableEdgeID(kind, source, target, disambiguator string) string {
	if disambiguator != "" {
		return fmt.Sprintf("edge:%s:%s:%s:%s", kind, source, target, disambiguator)
	}
	return fmt.Sprintf("edge:%s:%s:%s", kind, source, target)
}
