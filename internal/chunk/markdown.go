package chunk

import (
	"regexp"
	"strings"

	"github.com/EricBintner/codrag/internal/ids"
)

const (
	DefaultMaxChars = 1800
	DefaultMinChars = 350
)

var atxHeadingRe = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)

type mdSection struct {
	headings  []string
	text      string
	startLine int
	endLine   int
}

// iterMarkdownSections walks text line by line, maintaining a heading
// stack: a heading of level L pops the stack to depth L-1 then pushes
// itself. Each run of non-heading lines between headings is yielded as one
// section, tagged with the heading chain active at that point.
func iterMarkdownSections(text string) []mdSection {
	lines := strings.Split(text, "\n")
	var headings []string
	var current []string
	var sections []mdSection
	currentStart := 0
	currentEnd := 0

	flush := func(lineNo int) {
		if len(current) == 0 {
			return
		}
		start := currentStart
		if start == 0 {
			start = 1
		}
		end := currentEnd
		if end == 0 {
			end = lineNo - 1
			if end < 1 {
				end = 1
			}
		}
		sections = append(sections, mdSection{
			headings:  append([]string(nil), headings...),
			text:      strings.TrimSpace(strings.Join(current, "\n")),
			startLine: start,
			endLine:   end,
		})
		current = nil
		currentStart = 0
		currentEnd = 0
	}

	for i, line := range lines {
		lineNo := i + 1
		if m := atxHeadingRe.FindStringSubmatch(line); m != nil {
			flush(lineNo)
			level := len(m[1])
			title := strings.TrimSpace(m[2])
			for len(headings) >= level {
				headings = headings[:len(headings)-1]
			}
			headings = append(headings, title)
			continue
		}
		if currentStart == 0 {
			currentStart = lineNo
		}
		currentEnd = lineNo
		current = append(current, line)
	}

	if len(current) > 0 {
		end := currentEnd
		if end == 0 {
			end = len(lines)
			if end < 1 {
				end = 1
			}
		}
		start := currentStart
		if start == 0 {
			start = 1
		}
		sections = append(sections, mdSection{
			headings:  append([]string(nil), headings...),
			text:      strings.TrimSpace(strings.Join(current, "\n")),
			startLine: start,
			endLine:   end,
		})
	}

	return sections
}

// splitLongText splits oversized text at blank-line paragraph boundaries,
// hard-splitting any paragraph that itself exceeds maxChars.
func splitLongText(text string, maxChars int) []string {
	if len(text) <= maxChars {
		return []string{text}
	}

	paragraphs := splitBlankLines(text)
	var chunks []string
	var current []string
	currentLen := 0

	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, "\n\n"))
			current = nil
			currentLen = 0
		}
	}

	for _, para := range paragraphs {
		paraLen := len(para)
		if currentLen+paraLen+2 > maxChars && len(current) > 0 {
			flush()
		}

		if paraLen > maxChars {
			flush()
			for i := 0; i < paraLen; i += maxChars {
				end := i + maxChars
				if end > paraLen {
					end = paraLen
				}
				chunks = append(chunks, para[i:end])
			}
			continue
		}

		current = append(current, para)
		currentLen += paraLen + 2
	}
	flush()

	return chunks
}

var blankLineRe = regexp.MustCompile(`\n\n+`)

func splitBlankLines(text string) []string {
	return blankLineRe.Split(text, -1)
}

// ChunkMarkdown chunks markdown text by ATX heading, coalescing sections
// smaller than minChars into the following section and splitting sections
// larger than maxChars at paragraph boundaries. Per spec.md §4.1.
func ChunkMarkdown(text, sourcePath, fileHash string, maxChars, minChars int) []Chunk {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if minChars <= 0 {
		minChars = DefaultMinChars
	}

	var out []Chunk
	idx := 0

	var pending []string
	var pendingSection string
	pendingStart, pendingEnd := 0, 0
	havePending := false

	emit := func(content, section string, startLine, endLine int) {
		content = strings.TrimSpace(content)
		if content == "" {
			return
		}
		c := Chunk{
			ChunkID:    ids.StableMarkdownChunkID(sourcePath, section, idx),
			SourcePath: sourcePath,
			FileHash:   fileHash,
			Section:    section,
			Span:       Span{StartLine: startLine, EndLine: endLine},
			Content:    content,
		}
		out = append(out, c)
		idx++
	}

	flushPending := func() {
		if len(pending) == 0 {
			return
		}
		combined := strings.TrimSpace(strings.Join(pending, "\n\n"))
		if combined != "" {
			emit(combined, pendingSection, pendingStart, pendingEnd)
		}
		pending = nil
		havePending = false
	}

	for _, sec := range iterMarkdownSections(text) {
		if sec.text == "" {
			continue
		}
		section := strings.Join(sec.headings, " > ")

		if len(pending) > 0 {
			candidate := strings.Join(append(append([]string{}, pending...), sec.text), "\n\n")
			if len(candidate) <= maxChars {
				pending = append(pending, sec.text)
				pendingSection = section
				pendingEnd = sec.endLine
				continue
			}
			flushPending()
		}

		if len(sec.text) < minChars {
			pending = []string{sec.text}
			pendingSection = section
			pendingStart = sec.startLine
			pendingEnd = sec.endLine
			havePending = true
			continue
		}

		if len(sec.text) <= maxChars {
			emit(sec.text, section, sec.startLine, sec.endLine)
			continue
		}

		for _, part := range splitLongText(sec.text, maxChars) {
			emit(part, section, sec.startLine, sec.endLine)
		}
	}

	if havePending {
		flushPending()
	}

	return out
}
