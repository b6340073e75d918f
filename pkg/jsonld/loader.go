package jsonld

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// RemoteDocument is a document returned by a DocumentLoader.
type RemoteDocument struct {
	// DocumentURL is the final URL after redirects.
	DocumentURL string
	// Document is the parsed JSON tree.
	Document any
	// ContextURL is the context referenced by an HTTP Link header, if any.
	ContextURL  string
	ContentType string
	Profile     string
}

// DocumentLoader resolves remote documents and contexts. Implementations
// own timeouts and retries.
type DocumentLoader interface {
	LoadDocument(ctx context.Context, url string) (*RemoteDocument, error)
}

// DocumentLoaderFunc adapts a function to DocumentLoader
type DocumentLoaderFunc func(ctx context.Context, url string) (*RemoteDocument, error)

func (f DocumentLoaderFunc) LoadDocument(ctx context.Context, url string) (*RemoteDocument, error) {
	return f(ctx, url)
}

type noLoader struct{}

func (noLoader) LoadDocument(_ context.Context, url string) (*RemoteDocument, error) {
	return nil, fmt.Errorf("no document loader configured, cannot load %s", url)
}

// StaticLoader serves documents from memory. It is safe for concurrent use.
type StaticLoader struct {
	mu   sync.RWMutex
	docs map[string]any
}

// NewStaticLoader creates a loader over url -> document (parsed JSON or raw JSON text)
func NewStaticLoader(docs map[string]any) *StaticLoader {
	l := &StaticLoader{docs: make(map[string]any, len(docs))}
	for url, doc := range docs {
		l.docs[url] = doc
	}
	return l
}

// Add registers a document
func (l *StaticLoader) Add(url string, doc any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.docs[url] = doc
}

func (l *StaticLoader) LoadDocument(_ context.Context, url string) (*RemoteDocument, error) {
	l.mu.RLock()
	doc, ok := l.docs[url]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("document %s not found", url)
	}

	switch d := doc.(type) {
	case string:
		parsed, err := ParseJSON(strings.NewReader(d))
		if err != nil {
			return nil, err
		}
		doc = parsed
	case []byte:
		parsed, err := ParseJSON(strings.NewReader(string(d)))
		if err != nil {
			return nil, err
		}
		doc = parsed
	case json.RawMessage:
		parsed, err := ParseJSON(strings.NewReader(string(d)))
		if err != nil {
			return nil, err
		}
		doc = parsed
	default:
		doc = cloneValue(doc)
	}

	return &RemoteDocument{
		DocumentURL: url,
		Document:    doc,
		ContentType: "application/ld+json",
	}, nil
}
