package usecase

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/valyala/fasttemplate"
)

// DefaultPromptTemplate is the question-answering prompt used unless a file overrides it.
const DefaultPromptTemplate = "You are an assistant for question-answering tasks. " +
	"Use the following pieces of retrieved context to answer the question. " +
	"If you don't know the answer, just say that you don't know. " +
	"Use three sentences maximum and keep the answer concise.\n" +
	"Question: {question} \n" +
	"Context: {context} \n" +
	"Answer:"

// PromptTemplate renders a template with {context} and {question} placeholders.
type PromptTemplate struct {
	tpl *fasttemplate.Template
}

// NewPromptTemplate parses text. Both placeholders must be present.
func NewPromptTemplate(text string) (*PromptTemplate, error) {
	for _, tag := range []string{"{context}", "{question}"} {
		if !strings.Contains(text, tag) {
			return nil, fmt.Errorf("prompt template is missing %s", tag)
		}
	}
	tpl, err := fasttemplate.NewTemplate(text, "{", "}")
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template: %w", err)
	}
	return &PromptTemplate{tpl: tpl}, nil
}

// LoadPromptTemplate reads the template from path, or returns the default when path is empty.
func LoadPromptTemplate(path string) (*PromptTemplate, error) {
	if path == "" {
		return NewPromptTemplate(DefaultPromptTemplate)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt template: %w", err)
	}
	return NewPromptTemplate(string(data))
}

// Render substitutes the placeholders. Unknown {tags} are left as written.
func (p *PromptTemplate) Render(contextText, question string) string {
	values := map[string]string{
		"context":  contextText,
		"question": question,
	}
	return p.tpl.ExecuteFuncString(func(w io.Writer, tag string) (int, error) {
		if v, ok := values[tag]; ok {
			return w.Write([]byte(v))
		}
		return w.Write([]byte("{" + tag + "}"))
	})
}
