package domain

// RAGAnswer is the result of one query, with per-strategy provenance.
type RAGAnswer struct {
	Answer           string
	KeywordContext   string
	KeywordMetadata  string
	SemanticContext  string
	SemanticMetadata string
}

// NewRAGAnswer formats the raw retriever outputs next to the generated answer.
// Contexts are newline-joined chunk contents, metadata lines follow the same order.
func NewRAGAnswer(answer string, keyword, semantic []RetrievedDocument) *RAGAnswer {
	return &RAGAnswer{
		Answer:           answer,
		KeywordContext:   JoinContents(keyword, "\n"),
		KeywordMetadata:  JoinProvenance(keyword),
		SemanticContext:  JoinContents(semantic, "\n"),
		SemanticMetadata: JoinProvenance(semantic),
	}
}
