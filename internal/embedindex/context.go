package embedindex

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/EricBintner/codrag/internal/repopolicy"
)

const blockSeparator = "\n\n---\n\n"

// ContextBlock is one assembled block of context, with the metadata
// structured mode additionally returns (spec.md §4.3 "Context assembly").
type ContextBlock struct {
	ChunkID       string  `json:"chunk_id"`
	SourcePath    string  `json:"source_path"`
	Section       string  `json:"section,omitempty"`
	Span          Span    `json:"span"`
	Score         float64 `json:"score"`
	Truncated     bool    `json:"truncated"`
	TraceExpanded bool    `json:"trace_expanded,omitempty"`
	text          string
}

// Span mirrors chunk.Span's json shape for the context package boundary.
type Span struct {
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`
}

// StructuredContext is the get_context_structured response shape.
type StructuredContext struct {
	Context         string         `json:"context"`
	Chunks          []ContextBlock `json:"chunks"`
	TotalChars      int            `json:"total_chars"`
	EstimatedTokens int            `json:"estimated_tokens"`
}

// ContextOptions carries context-assembly tunables (spec.md §4.3).
type ContextOptions struct {
	K                  int
	MaxChars           int
	MinScore           float64
	Primer             *repopolicy.PrimerConfig
	TraceExpand        TraceExpander
	MaxAdditionalChars int
	NodeCap            int
}

// TraceExpander resolves a source_path's related file paths via the
// trace graph, for optional context expansion (spec.md §4.3 "Trace
// expansion"). Kept as an interface so embedindex does not depend on
// internal/trace directly.
type TraceExpander interface {
	RelatedFiles(sourcePath string, nodeCap int) []string
}

func blockHeader(section, sourcePath string) string {
	var bits []string
	if section != "" {
		bits = append(bits, section)
	}
	if sourcePath != "" {
		bits = append(bits, "@"+sourcePath)
	}
	if len(bits) == 0 {
		return sourcePath
	}
	return strings.Join(bits, " | ")
}

// GetContextStructured implements spec.md §4.3's full context-assembly
// contract: optional always-include primer chunks in their own budget,
// then search results packed into char-budgeted blocks with an ellipsis
// truncation when the remaining budget is still usable, then optional
// trace-expanded chunks appended from related files.
func (idx *Index) GetContextStructured(ctx context.Context, query string, opts ContextOptions) (StructuredContext, error) {
	maxChars := opts.MaxChars
	if maxChars <= 0 {
		maxChars = 6000
	}
	k := opts.K
	if k <= 0 {
		k = 5
	}

	var blocks []ContextBlock
	total := 0
	includedPaths := map[string]bool{}

	if opts.Primer != nil && opts.Primer.Enabled && opts.Primer.AlwaysInclude {
		primerBudget := opts.Primer.MaxPrimerChars
		if primerBudget <= 0 {
			primerBudget = 2000
		}
		primerBlocks, primerTotal := idx.primerBlocks(opts.Primer, primerBudget)
		blocks = append(blocks, primerBlocks...)
		total += primerTotal
		for _, b := range primerBlocks {
			includedPaths[b.SourcePath] = true
		}
	}

	searchOpts := SearchOptions{K: k, MinScore: opts.MinScore, Primer: opts.Primer, ExcludePrimerFiles: opts.Primer != nil && opts.Primer.AlwaysInclude}
	results, err := idx.Search(ctx, query, searchOpts)
	if err != nil {
		return StructuredContext{}, err
	}

	for _, r := range results {
		d := r.Document
		includedPaths[d.SourcePath] = true
		header := blockHeader(d.Section, d.SourcePath)
		text := "[" + header + "]\n" + d.Content
		block := ContextBlock{ChunkID: d.ID, SourcePath: d.SourcePath, Section: d.Section, Span: Span(d.Span), Score: r.Score}

		if total+len(text) > maxChars {
			remaining := maxChars - total
			if remaining <= 200 {
				break
			}
			text = text[:remaining] + "..."
			block.Truncated = true
		}
		block.text = text
		blocks = append(blocks, block)
		total += len(text)
		if block.Truncated {
			break
		}
	}

	if opts.TraceExpand != nil {
		nodeCap := opts.NodeCap
		if nodeCap <= 0 {
			nodeCap = 5
		}
		additionalBudget := opts.MaxAdditionalChars
		if additionalBudget <= 0 {
			additionalBudget = 2000
		}
		for path := range includedPaths {
			for _, related := range opts.TraceExpand.RelatedFiles(path, nodeCap) {
				if includedPaths[related] {
					continue
				}
				doc, ok := idx.firstDocumentForPath(related)
				if !ok {
					continue
				}
				includedPaths[related] = true
				content := doc.Content
				if len(content) > additionalBudget {
					content = content[:additionalBudget] + "..."
				}
				header := blockHeader(doc.Section, doc.SourcePath)
				text := "[" + header + "]\n" + content
				blocks = append(blocks, ContextBlock{
					ChunkID: doc.ID, SourcePath: doc.SourcePath, Section: doc.Section,
					Span: Span(doc.Span), TraceExpanded: true, text: text,
				})
				total += len(text)
			}
		}
	}

	var parts []string
	for _, b := range blocks {
		parts = append(parts, b.text)
	}
	contextStr := strings.Join(parts, blockSeparator)

	return StructuredContext{
		Context:         contextStr,
		Chunks:          blocks,
		TotalChars:      total,
		EstimatedTokens: total / 4,
	}, nil
}

// GetContext returns just the assembled context string.
func (idx *Index) GetContext(ctx context.Context, query string, opts ContextOptions) (string, error) {
	sc, err := idx.GetContextStructured(ctx, query, opts)
	if err != nil {
		return "", err
	}
	return sc.Context, nil
}

func (idx *Index) primerBlocks(primer *repopolicy.PrimerConfig, budget int) ([]ContextBlock, int) {
	idx.mu.RLock()
	docs := idx.documents
	idx.mu.RUnlock()

	used := 0
	var out []ContextBlock
	for _, name := range primer.Filenames {
		// A primer file may be split into several markdown-section
		// chunks; include every chunk belonging to it, in chunk order,
		// as long as budget remains, not just the first.
		for _, d := range docs {
			if filepath.Base(d.SourcePath) != name {
				continue
			}
			remaining := budget - used
			if remaining <= 0 {
				return out, used
			}
			content := d.Content
			if len(content) > remaining {
				content = content[:remaining]
			}
			header := blockHeader(d.Section, d.SourcePath)
			text := "[" + header + "]\n" + content
			out = append(out, ContextBlock{ChunkID: d.ID, SourcePath: d.SourcePath, Section: d.Section, Span: Span(d.Span), text: text})
			used += len(text)
		}
	}
	return out, used
}

func (idx *Index) firstDocumentForPath(sourcePath string) (Document, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	for _, d := range idx.documents {
		if d.SourcePath == sourcePath {
			return d, true
		}
	}
	return Document{}, false
}
