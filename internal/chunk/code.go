package chunk

import (
	"strings"

	"github.com/EricBintner/codrag/internal/ids"
)

const (
	DefaultCodeMaxChars     = 2000
	DefaultCodeOverlapChars = 200
)

// ChunkCode splits code text into a single chunk if it fits within
// maxChars, else a sliding window advancing by maxChars-overlapChars. Line
// numbers are derived from newline counts; an end offset landing exactly
// on a newline decrements end_line by one. Per spec.md §4.1.
func ChunkCode(text, sourcePath, fileHash string, maxChars, overlapChars int) []Chunk {
	if maxChars <= 0 {
		maxChars = DefaultCodeMaxChars
	}
	if overlapChars < 0 {
		overlapChars = DefaultCodeOverlapChars
	}

	if len(text) <= maxChars {
		endLine := strings.Count(text, "\n")
		if !strings.HasSuffix(text, "\n") || endLine == 0 {
			endLine++
		}
		if endLine < 1 {
			endLine = 1
		}
		return []Chunk{{
			ChunkID:    ids.StableCodeChunkID(sourcePath, 0),
			SourcePath: sourcePath,
			FileHash:   fileHash,
			Content:    text,
			Span:       Span{StartLine: 1, EndLine: endLine},
		}}
	}

	var chunks []Chunk
	start := 0
	idx := 0
	step := maxChars - overlapChars
	if step <= 0 {
		step = maxChars
	}

	for start < len(text) {
		end := start + maxChars
		if end > len(text) {
			end = len(text)
		}
		chunkText := text[start:end]

		startLine := strings.Count(text[:start], "\n") + 1
		endLine := strings.Count(text[:end], "\n") + 1
		if end > 0 && text[end-1] == '\n' {
			endLine--
		}
		if endLine < 1 {
			endLine = 1
		}

		chunks = append(chunks, Chunk{
			ChunkID:    ids.StableCodeChunkID(sourcePath, idx),
			SourcePath: sourcePath,
			FileHash:   fileHash,
			Content:    chunkText,
			Span:       Span{StartLine: startLine, EndLine: endLine},
		})

		start += step
		idx++
	}

	return chunks
}
