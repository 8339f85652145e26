package domain

import "errors"

var (
	// ErrMissingCredential is returned at construction when a provider credential is absent.
	ErrMissingCredential = errors.New("missing credential")
	// ErrUnknownModel is returned when a requested chat model is not configured.
	ErrUnknownModel = errors.New("unknown model")
	// ErrStoreUnavailable wraps chunk store backend failures.
	ErrStoreUnavailable = errors.New("chunk store unavailable")
	// ErrInvocationFailure wraps any failure during a RAG invocation.
	ErrInvocationFailure = errors.New("rag invocation failed")
	// ErrUnknownStrategy is returned by registries for names nobody registered.
	ErrUnknownStrategy = errors.New("unknown strategy")
	// ErrEmptyDocument is returned when a document segments into no chunks.
	ErrEmptyDocument = errors.New("document has no content")
)
