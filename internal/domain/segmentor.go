package domain

import (
	"strings"
)

// Segmentor names.
const (
	SegmentorMarkdownHeader = "markdown_header"
	SegmentorWindow         = "window"
	SegmentorSentence       = "sentence"
)

// Segmentor splits a document's raw text into ordered chunks.
type Segmentor interface {
	Segment(documentName, content string) ([]TextChunk, error)
	Name() string
}

// SegmentorFactory builds a segmentor.
type SegmentorFactory func() Segmentor

// DefaultSegmentors returns a registry holding every built-in strategy.
func DefaultSegmentors() *Registry[SegmentorFactory] {
	r := NewRegistry[SegmentorFactory]()
	r.Register(SegmentorMarkdownHeader, func() Segmentor { return NewMarkdownHeaderSegmentor() })
	r.Register(SegmentorWindow, func() Segmentor { return NewWindowSegmentor(DefaultWindowSize, DefaultWindowOverlap) })
	r.Register(SegmentorSentence, func() Segmentor { return NewSentenceSegmentor(MaxChunkLength) })
	r.Register(SegmentorParagraph, func() Segmentor { return NewParagraphSegmentor(MinChunkLength, MaxChunkLength) })
	return r
}

// maxHeaderLevel is the deepest header level that starts a new section.
const maxHeaderLevel = 3

type markdownHeaderSegmentor struct{}

// NewMarkdownHeaderSegmentor splits on level 1, 2 and 3 markdown headers.
// Header lines are not part of the chunk content. Text before the first
// header becomes its own chunk when it is not blank. A header with an
// empty body still yields a chunk.
func NewMarkdownHeaderSegmentor() Segmentor {
	return &markdownHeaderSegmentor{}
}

func (s *markdownHeaderSegmentor) Name() string {
	return SegmentorMarkdownHeader
}

func (s *markdownHeaderSegmentor) Segment(documentName, content string) ([]TextChunk, error) {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")

	var (
		sections []string
		current  []string
		started  bool // a header has been seen
		fence    string
	)

	flush := func() {
		body := strings.TrimSpace(strings.Join(current, "\n"))
		if started || body != "" {
			sections = append(sections, body)
		}
		current = current[:0]
	}

	for _, line := range strings.Split(normalized, "\n") {
		trimmed := strings.TrimSpace(line)

		// Headers inside fenced code blocks are content.
		if fence == "" {
			if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
				fence = trimmed[:3]
			}
		} else if strings.HasPrefix(trimmed, fence) {
			fence = ""
			current = append(current, line)
			continue
		}

		if fence == "" && isSectionHeader(trimmed) {
			flush()
			started = true
			continue
		}
		current = append(current, line)
	}
	flush()

	chunks := make([]TextChunk, len(sections))
	for i, body := range sections {
		chunks[i] = TextChunk{
			Content:       body,
			DocumentName:  documentName,
			ChunkLocation: i,
		}
	}
	return chunks, nil
}

// isSectionHeader reports whether line is an ATX header of level 1 to 3.
func isSectionHeader(line string) bool {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level == 0 || level > maxHeaderLevel {
		return false
	}
	return level == len(line) || line[level] == ' ' || line[level] == '\t'
}
