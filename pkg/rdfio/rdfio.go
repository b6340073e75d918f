package rdfio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/aleksaelezovic/jsonld/pkg/jsonld"
	"github.com/aleksaelezovic/jsonld/pkg/rdf"
)

// Media types handled by this package
const (
	ContentTypeNQuads   = "application/n-quads"
	ContentTypeNTriples = "application/n-triples"
	ContentTypeJSONLD   = "application/ld+json"
)

// Parser reads a dataset in one format
type Parser interface {
	// Parse reads all of r and returns its quads
	Parse(ctx context.Context, r io.Reader) ([]*rdf.Quad, error)

	// ContentType returns the MIME type this parser handles
	ContentType() string
}

// Serializer writes a dataset in one format
type Serializer interface {
	Serialize(ctx context.Context, w io.Writer, quads []*rdf.Quad) error
	ContentType() string
}

// NormalizeContentType lowercases ct and strips parameters like charset
func NormalizeContentType(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(ct, ";"); idx != -1 {
		ct = strings.TrimSpace(ct[:idx])
	}
	return ct
}

// NewParser creates a parser for contentType. opts configures the JSON-LD
// parser and may be nil.
func NewParser(contentType string, opts *jsonld.Options) (Parser, error) {
	switch NormalizeContentType(contentType) {
	case ContentTypeNTriples, "text/plain":
		return &NTriplesParser{}, nil
	case ContentTypeNQuads, "text/x-nquads":
		return &NQuadsParser{}, nil
	case ContentTypeJSONLD, "application/json":
		return &JSONLDParser{Options: opts}, nil
	default:
		return nil, fmt.Errorf("unsupported content type: %s", contentType)
	}
}

// NewSerializer creates a serializer for contentType
func NewSerializer(contentType string, opts *jsonld.Options) (Serializer, error) {
	switch NormalizeContentType(contentType) {
	case ContentTypeNQuads, "text/x-nquads":
		return &NQuadsSerializer{}, nil
	case ContentTypeNTriples, "text/plain":
		return &NQuadsSerializer{triplesOnly: true}, nil
	case ContentTypeJSONLD, "application/json":
		return &JSONLDSerializer{Options: opts, Indent: "  "}, nil
	default:
		return nil, fmt.Errorf("unsupported content type: %s", contentType)
	}
}

// SupportedContentTypes lists every media type NewParser accepts
func SupportedContentTypes() []string {
	return []string{
		ContentTypeNQuads,
		ContentTypeNTriples,
		ContentTypeJSONLD,
		"application/json",
		"text/x-nquads",
		"text/plain", // alias for N-Triples
	}
}

// NQuadsParser parses N-Quads (quads with optional graph)
type NQuadsParser struct{}

func (p *NQuadsParser) ContentType() string {
	return ContentTypeNQuads
}

func (p *NQuadsParser) Parse(_ context.Context, r io.Reader) ([]*rdf.Quad, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("error reading input: %w", err)
	}
	quads, err := rdf.ParseNQuads(string(data))
	if err != nil {
		return nil, fmt.Errorf("error parsing N-Quads: %w", err)
	}
	return quads, nil
}

// NTriplesParser parses N-Triples: N-Quads without graph names
type NTriplesParser struct{}

func (p *NTriplesParser) ContentType() string {
	return ContentTypeNTriples
}

func (p *NTriplesParser) Parse(_ context.Context, r io.Reader) ([]*rdf.Quad, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("error reading input: %w", err)
	}
	quads, err := rdf.ParseNQuads(string(data))
	if err != nil {
		return nil, fmt.Errorf("error parsing N-Triples: %w", err)
	}
	for i, q := range quads {
		if !q.InDefaultGraph() {
			return nil, fmt.Errorf("error parsing N-Triples: statement %d names a graph: %w", i+1, rdf.ErrInvalidQuad)
		}
	}
	return quads, nil
}

// JSONLDParser reads a JSON-LD document and converts it to quads
type JSONLDParser struct {
	Options *jsonld.Options
}

func (p *JSONLDParser) ContentType() string {
	return ContentTypeJSONLD
}

func (p *JSONLDParser) Parse(ctx context.Context, r io.Reader) ([]*rdf.Quad, error) {
	doc, err := jsonld.ParseJSON(r)
	if err != nil {
		return nil, err
	}
	return jsonld.ToRDF(ctx, doc, p.Options)
}

// NQuadsSerializer writes N-Quads, or N-Triples when triplesOnly is set
type NQuadsSerializer struct {
	triplesOnly bool
}

func (s *NQuadsSerializer) ContentType() string {
	if s.triplesOnly {
		return ContentTypeNTriples
	}
	return ContentTypeNQuads
}

func (s *NQuadsSerializer) Serialize(_ context.Context, w io.Writer, quads []*rdf.Quad) error {
	for _, q := range quads {
		if s.triplesOnly && !q.InDefaultGraph() {
			continue
		}
		if _, err := io.WriteString(w, rdf.SerializeQuad(q)); err != nil {
			return err
		}
	}
	return nil
}

// JSONLDSerializer converts quads to expanded JSON-LD
type JSONLDSerializer struct {
	Options *jsonld.Options
	Indent  string
}

func (s *JSONLDSerializer) ContentType() string {
	return ContentTypeJSONLD
}

func (s *JSONLDSerializer) Serialize(ctx context.Context, w io.Writer, quads []*rdf.Quad) error {
	doc, err := jsonld.FromRDF(ctx, quads, s.Options)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if s.Indent != "" {
		enc.SetIndent("", s.Indent)
	}
	return enc.Encode(doc)
}
