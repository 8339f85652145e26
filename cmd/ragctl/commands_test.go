package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-rag/internal/domain"
)

type stubData struct {
	added   []string
	removed []string
	docs    []string
	err     error
}

func (s *stubData) AddDocument(ctx context.Context, path string) ([]domain.TextChunk, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.added = append(s.added, path)
	return make([]domain.TextChunk, 2), nil
}

func (s *stubData) RemoveDocument(ctx context.Context, path string) error {
	s.removed = append(s.removed, path)
	return s.err
}

func (s *stubData) ListDocuments(ctx context.Context) ([]string, error) {
	return s.docs, s.err
}

type stubRAG struct {
	question string
	model    string
	rebuilds int
	err      error
}

func (s *stubRAG) Invoke(ctx context.Context, question, modelName string) (*domain.RAGAnswer, error) {
	s.question, s.model = question, modelName
	if s.err != nil {
		return nil, s.err
	}
	return &domain.RAGAnswer{
		Answer:           "Revenue grew 10%.",
		KeywordMetadata:  "doc1.md (Chunk: 0)",
		SemanticMetadata: "doc1.md (Chunk: 0)",
	}, nil
}

func (s *stubRAG) Rebuild(ctx context.Context) error {
	s.rebuilds++
	return nil
}

type stubQueue struct {
	jobs []*domain.IngestJob
}

func (s *stubQueue) Enqueue(ctx context.Context, job *domain.IngestJob) error {
	s.jobs = append(s.jobs, job)
	return nil
}

type harness struct {
	data   *stubData
	rag    *stubRAG
	queue  *stubQueue
	closed bool
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(func(ctx context.Context, verbose bool) (*services, error) {
		return &services{Data: h.data, RAG: h.rag, Queue: h.queue, Close: func() { h.closed = true }}, nil
	})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func newHarness() *harness {
	return &harness{data: &stubData{}, rag: &stubRAG{}, queue: &stubQueue{}}
}

func TestAdd(t *testing.T) {
	h := newHarness()
	out, err := h.run(t, "add", "a.md", "b.md")
	require.NoError(t, err)

	assert.Equal(t, []string{"a.md", "b.md"}, h.data.added)
	assert.Equal(t, 1, h.rag.rebuilds)
	assert.Contains(t, out, "added a.md (2 chunks)")
	assert.True(t, h.closed)

	h = newHarness()
	_, err = h.run(t, "add", "--no-rebuild", "a.md")
	require.NoError(t, err)
	assert.Equal(t, 0, h.rag.rebuilds)
}

func TestAdd_RequiresPath(t *testing.T) {
	h := newHarness()
	_, err := h.run(t, "add")
	assert.Error(t, err)
}

func TestRemove(t *testing.T) {
	h := newHarness()
	out, err := h.run(t, "rm", "a.md")
	require.NoError(t, err)

	assert.Equal(t, []string{"a.md"}, h.data.removed)
	assert.Equal(t, 1, h.rag.rebuilds)
	assert.Contains(t, out, "removed a.md")
}

func TestList(t *testing.T) {
	h := newHarness()
	h.data.docs = []string{"doc1.md", "doc2.md"}
	out, err := h.run(t, "list")
	require.NoError(t, err)
	assert.Equal(t, "doc1.md\ndoc2.md\n", out)
}

func TestQuery(t *testing.T) {
	h := newHarness()
	out, err := h.run(t, "query", "--model", "openai", "What", "happened?")
	require.NoError(t, err)

	assert.Equal(t, "What happened?", h.rag.question)
	assert.Equal(t, "openai", h.rag.model)
	assert.True(t, strings.HasPrefix(out, "Revenue grew 10%.\n"))
	assert.Contains(t, out, "keyword:  doc1.md (Chunk: 0)")
}

func TestQuery_JSONAndDefaultModel(t *testing.T) {
	h := newHarness()
	out, err := h.run(t, "query", "--json", "revenue?")
	require.NoError(t, err)

	assert.Equal(t, "gemini", h.rag.model)
	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "Revenue grew 10%.", got["answer"])
	assert.Equal(t, "doc1.md (Chunk: 0)", got["semantic_metadata"])
}

func TestQuery_PropagatesErrors(t *testing.T) {
	h := newHarness()
	h.rag.err = domain.ErrUnknownModel
	_, err := h.run(t, "query", "--model", "nope", "q")
	assert.ErrorIs(t, err, domain.ErrUnknownModel)
}

func TestEnqueue(t *testing.T) {
	h := newHarness()
	out, err := h.run(t, "enqueue", "report.pdf")
	require.NoError(t, err)

	require.Len(t, h.queue.jobs, 1)
	assert.Equal(t, "report.pdf", h.queue.jobs[0].Payload["name"])
	assert.Equal(t, h.queue.jobs[0].ID+"\n", out)
}

func TestOpenFailureStopsCommand(t *testing.T) {
	root := newRootCmd(func(ctx context.Context, verbose bool) (*services, error) {
		return nil, errors.New("no database")
	})
	root.SetArgs([]string{"list"})
	var out bytes.Buffer
	root.SetOut(&out)
	assert.EqualError(t, root.ExecuteContext(context.Background()), "no database")
}
