package domain

import (
	"strings"
	"unicode/utf8"
)

// SegmentorParagraph is the paragraph-packing strategy.
const SegmentorParagraph = "paragraph"

// MinChunkLength is the minimum paragraph chunk length in characters.
// Shorter paragraphs are merged into a neighbour.
const MinChunkLength = 80

type paragraphSegmentor struct {
	minLength int
	maxLength int
}

// NewParagraphSegmentor splits on blank lines, merges paragraphs shorter than
// minLength into their neighbours and splits paragraphs longer than maxLength
// at sentence boundaries.
func NewParagraphSegmentor(minLength, maxLength int) Segmentor {
	if maxLength <= 0 {
		maxLength = MaxChunkLength
	}
	if minLength < 0 || minLength > maxLength {
		minLength = 0
	}
	return &paragraphSegmentor{minLength: minLength, maxLength: maxLength}
}

func (s *paragraphSegmentor) Name() string {
	return SegmentorParagraph
}

func (s *paragraphSegmentor) Segment(documentName, content string) ([]TextChunk, error) {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")

	var paragraphs []string
	for _, part := range strings.Split(normalized, "\n\n") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}

	var out []string
	for _, para := range s.mergeShort(paragraphs) {
		if utf8.RuneCountInString(para) <= s.maxLength {
			out = append(out, para)
			continue
		}
		out = append(out, packSentences(splitIntoSentences(para), s.maxLength)...)
	}
	return toChunks(documentName, out), nil
}

// mergeShort folds runs of short paragraphs together. A run that is still short
// is appended to the previous paragraph, or prepended to the next one when it
// leads the document.
func (s *paragraphSegmentor) mergeShort(paragraphs []string) []string {
	var (
		merged  []string
		pending string
	)
	join := func(a, b string) string {
		if a == "" {
			return b
		}
		return a + "\n\n" + b
	}

	for _, para := range paragraphs {
		if utf8.RuneCountInString(para) < s.minLength {
			pending = join(pending, para)
			continue
		}
		if pending != "" {
			switch {
			case utf8.RuneCountInString(pending) >= s.minLength:
				merged = append(merged, pending)
			case len(merged) > 0:
				merged[len(merged)-1] = join(merged[len(merged)-1], pending)
			default:
				para = join(pending, para)
			}
			pending = ""
		}
		merged = append(merged, para)
	}

	if pending != "" {
		if utf8.RuneCountInString(pending) < s.minLength && len(merged) > 0 {
			merged[len(merged)-1] = join(merged[len(merged)-1], pending)
		} else {
			merged = append(merged, pending)
		}
	}
	return merged
}
