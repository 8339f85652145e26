package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// TextChunk represents a contiguous span of a document after segmentation.
type TextChunk struct {
	Content       string
	DocumentName  string
	ChunkLocation int // 0-indexed position within the document
}

// ID returns the storage identifier of the chunk.
func (c TextChunk) ID() string {
	return ChunkID(c.DocumentName, c.ChunkLocation)
}

// Metadata returns the metadata persisted next to the chunk content.
func (c TextChunk) Metadata() ChunkMetadata {
	return ChunkMetadata{Source: c.DocumentName, Location: c.ChunkLocation}
}

// ChunkID builds the "{documentName}_{location}" identifier.
func ChunkID(documentName string, location int) string {
	return fmt.Sprintf("%s_%d", documentName, location)
}

// ChunkMetadata is what a chunk store keeps about each chunk besides its text.
type ChunkMetadata struct {
	Source   string
	Location int
}

// DocumentMetadata is the metadata of a retrieved document.
// Location is textual so that the empty-store placeholder can leave it blank.
type DocumentMetadata struct {
	Source   string
	Location string
}

// RetrievedDocument is a chunk as returned by a retriever.
type RetrievedDocument struct {
	Content  string
	Metadata DocumentMetadata
}

// NewRetrievedDocument projects a stored chunk into a retrieval result.
func NewRetrievedDocument(content string, meta ChunkMetadata) RetrievedDocument {
	return RetrievedDocument{
		Content: content,
		Metadata: DocumentMetadata{
			Source:   meta.Source,
			Location: strconv.Itoa(meta.Location),
		},
	}
}

// PlaceholderDocument is returned by retrievers built over an empty store.
func PlaceholderDocument() RetrievedDocument {
	return RetrievedDocument{}
}

// IsPlaceholder reports whether the document is the empty-store placeholder.
func (d RetrievedDocument) IsPlaceholder() bool {
	return d.Content == "" && d.Metadata.Source == "" && d.Metadata.Location == ""
}

// Provenance renders "{source} (Chunk: {location})".
func (d RetrievedDocument) Provenance() string {
	return fmt.Sprintf("%s (Chunk: %s)", d.Metadata.Source, d.Metadata.Location)
}

// JoinContents joins document contents with the given separator.
func JoinContents(docs []RetrievedDocument, sep string) string {
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = d.Content
	}
	return strings.Join(parts, sep)
}

// JoinProvenance joins the provenance line of every document with "\n".
func JoinProvenance(docs []RetrievedDocument) string {
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = d.Provenance()
	}
	return strings.Join(parts, "\n")
}
