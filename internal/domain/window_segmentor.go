package domain

import (
	"fmt"
	"strings"
)

// Defaults for the fixed-window segmentor, in runes.
const (
	DefaultWindowSize    = 800
	DefaultWindowOverlap = 100
)

type windowSegmentor struct {
	size    int
	overlap int
}

// NewWindowSegmentor cuts content into fixed-size rune windows. Consecutive
// windows share overlap runes.
func NewWindowSegmentor(size, overlap int) Segmentor {
	if size <= 0 {
		size = DefaultWindowSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return &windowSegmentor{size: size, overlap: overlap}
}

func (s *windowSegmentor) Name() string {
	return fmt.Sprintf("%s(%d/%d)", SegmentorWindow, s.size, s.overlap)
}

func (s *windowSegmentor) Segment(documentName, content string) ([]TextChunk, error) {
	runes := []rune(content)
	if strings.TrimSpace(content) == "" {
		return []TextChunk{}, nil
	}

	var windows []string
	step := s.size - s.overlap
	for start := 0; start < len(runes); start += step {
		end := start + s.size
		if end > len(runes) {
			end = len(runes)
		}
		windows = append(windows, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return toChunks(documentName, windows), nil
}
