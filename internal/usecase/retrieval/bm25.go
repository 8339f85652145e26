package retrieval

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode"

	"pdf-rag/internal/domain"
)

// Okapi BM25 parameters.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// BM25Index is an immutable in-memory Okapi BM25 index over a chunk snapshot.
type BM25Index struct {
	chunks    []domain.TextChunk
	termFreqs []map[string]int
	docLens   []int
	avgDocLen float64
	idf       map[string]float64
	k         int
}

// NewBM25Index indexes chunks and answers queries with the top k matches.
func NewBM25Index(chunks []domain.TextChunk, k int) *BM25Index {
	idx := &BM25Index{
		chunks:    chunks,
		termFreqs: make([]map[string]int, len(chunks)),
		docLens:   make([]int, len(chunks)),
		idf:       make(map[string]float64),
		k:         k,
	}

	docFreq := make(map[string]int)
	totalLen := 0
	for i, c := range chunks {
		terms := tokenize(c.Content)
		idx.docLens[i] = len(terms)
		totalLen += len(terms)

		tf := make(map[string]int, len(terms))
		for _, term := range terms {
			tf[term]++
		}
		idx.termFreqs[i] = tf
		for term := range tf {
			docFreq[term]++
		}
	}

	if len(chunks) > 0 {
		idx.avgDocLen = float64(totalLen) / float64(len(chunks))
	}
	n := float64(len(chunks))
	for term, df := range docFreq {
		idx.idf[term] = math.Log((n-float64(df)+0.5)/(float64(df)+0.5) + 1.0)
	}
	return idx
}

// Len returns the number of indexed chunks.
func (idx *BM25Index) Len() int {
	return len(idx.chunks)
}

// Score returns the BM25 score of every indexed chunk for query.
func (idx *BM25Index) Score(query string) []float64 {
	queryTerms := tokenize(query)
	scores := make([]float64, len(idx.chunks))
	if idx.avgDocLen == 0 {
		return scores
	}

	for i, tf := range idx.termFreqs {
		docLen := float64(idx.docLens[i])
		score := 0.0
		for _, term := range queryTerms {
			f, ok := tf[term]
			if !ok {
				continue
			}
			num := float64(f) * (bm25K1 + 1.0)
			den := float64(f) + bm25K1*(1.0-bm25B+bm25B*docLen/idx.avgDocLen)
			score += idx.idf[term] * num / den
		}
		scores[i] = score
	}
	return scores
}

// Retrieve returns the k best chunks. Every chunk is a candidate, so a query
// with no matching terms still yields min(k, Len()) documents.
func (idx *BM25Index) Retrieve(ctx context.Context, query string) ([]domain.RetrievedDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scores := idx.Score(query)

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	limit := idx.k
	if limit <= 0 || limit > len(order) {
		limit = len(order)
	}
	docs := make([]domain.RetrievedDocument, limit)
	for i := 0; i < limit; i++ {
		c := idx.chunks[order[i]]
		docs[i] = domain.NewRetrievedDocument(c.Content, c.Metadata())
	}
	return docs, nil
}

// tokenize lower-cases text and splits it on anything that is not a letter or digit.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

var _ domain.Retriever = (*BM25Index)(nil)
