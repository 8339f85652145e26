package domain

import (
	"strings"
	"unicode/utf8"
)

// MaxChunkLength is the default maximum chunk length in characters for
// sentence packing.
const MaxChunkLength = 1000

type sentenceSegmentor struct {
	maxLength int
}

// NewSentenceSegmentor packs consecutive sentences into chunks of at most
// maxLength runes. A single sentence longer than maxLength becomes its own chunk.
func NewSentenceSegmentor(maxLength int) Segmentor {
	if maxLength <= 0 {
		maxLength = MaxChunkLength
	}
	return &sentenceSegmentor{maxLength: maxLength}
}

func (s *sentenceSegmentor) Name() string {
	return SegmentorSentence
}

func (s *sentenceSegmentor) Segment(documentName, content string) ([]TextChunk, error) {
	packed := packSentences(splitIntoSentences(content), s.maxLength)
	return toChunks(documentName, packed), nil
}

// packSentences greedily joins sentences with a space while the result fits maxLength.
func packSentences(sentences []string, maxLength int) []string {
	var (
		result  []string
		current strings.Builder
		curLen  int
	)
	for _, sentence := range sentences {
		sentenceLen := utf8.RuneCountInString(sentence)
		if curLen > 0 && curLen+1+sentenceLen > maxLength {
			result = append(result, current.String())
			current.Reset()
			curLen = 0
		}
		if curLen > 0 {
			current.WriteByte(' ')
			curLen++
		}
		current.WriteString(sentence)
		curLen += sentenceLen
	}
	if curLen > 0 {
		result = append(result, current.String())
	}
	return result
}

// splitIntoSentences splits text at . ! ? and the Japanese full stop when
// followed by whitespace or the end of text.
func splitIntoSentences(text string) []string {
	var (
		sentences []string
		current   strings.Builder
	)
	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		if !isSentenceTerminator(r) {
			continue
		}
		if i+1 < len(runes) && !isSpaceRune(runes[i+1]) {
			continue
		}
		if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
			sentences = append(sentences, trimmed)
		}
		current.Reset()
	}
	if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
		sentences = append(sentences, trimmed)
	}
	return sentences
}

func isSentenceTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

func isSpaceRune(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t'
}

func toChunks(documentName string, contents []string) []TextChunk {
	chunks := make([]TextChunk, len(contents))
	for i, c := range contents {
		chunks[i] = TextChunk{Content: c, DocumentName: documentName, ChunkLocation: i}
	}
	return chunks
}
