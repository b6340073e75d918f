package jsonld

import (
	"context"

	"go.uber.org/zap"

	"github.com/aleksaelezovic/jsonld/internal/encoding"
	"github.com/aleksaelezovic/jsonld/pkg/rdf"
)

// remoteContext is a loaded @context value and the URL it came from
type remoteContext struct {
	context any
	url     string
}

// session carries the state owned by one top-level call: options, the
// blank node issuer, memoized scoped contexts and loaded remote contexts.
type session struct {
	ctx    context.Context
	opts   *Options
	logger *zap.Logger
	loader DocumentLoader
	issuer *IdentifierIssuer
	scoped map[scopedKey]*Context
	remote map[[16]byte]*remoteContext
	keys   *encoding.KeyEncoder
}

func newSession(ctx context.Context, opts *Options) *session {
	opts = opts.clone()
	var loader DocumentLoader = noLoader{}
	if opts.DocumentLoader != nil {
		loader = opts.DocumentLoader
	}
	return &session{
		ctx:    ctx,
		opts:   opts,
		logger: opts.Logger,
		loader: loader,
		issuer: NewIdentifierIssuer("_:b"),
		scoped: map[scopedKey]*Context{},
		remote: map[[16]byte]*remoteContext{},
		keys:   encoding.NewKeyEncoder(),
	}
}

// loadContext fetches a remote context once per session
func (s *session) loadContext(iri string) (*remoteContext, error) {
	key := s.keys.Hash128(iri)
	if rc, ok := s.remote[key]; ok {
		return rc, nil
	}

	s.logger.Debug("loading remote context", zap.String("url", iri))
	doc, err := s.loader.LoadDocument(s.ctx, iri)
	if err != nil {
		return nil, wrapError(LoadingRemoteContextFailed, err, "%s", iri)
	}
	normalized, err := normalize(doc.Document)
	if err != nil {
		return nil, wrapError(InvalidRemoteContext, err, "%s", iri)
	}
	m, ok := normalized.(map[string]any)
	if !ok {
		return nil, newError(InvalidRemoteContext, "%s is not a JSON object", iri)
	}
	local, ok := m["@context"]
	if !ok {
		return nil, newError(InvalidRemoteContext, "%s has no @context entry", iri)
	}
	url := doc.DocumentURL
	if url == "" {
		url = iri
	}

	rc := &remoteContext{context: local, url: url}
	s.remote[key] = rc
	return rc, nil
}

// loadedInput is a document ready for expansion
type loadedInput struct {
	document    any
	documentURL string
	contextURL  string
}

// loadInput resolves a string input through the document loader and
// normalizes inline documents.
func (s *session) loadInput(input any) (*loadedInput, error) {
	url, isURL := input.(string)
	if !isURL {
		doc, err := normalize(input)
		if err != nil {
			return nil, err
		}
		return &loadedInput{document: doc}, nil
	}

	s.logger.Debug("loading document", zap.String("url", url))
	remote, err := s.loader.LoadDocument(s.ctx, url)
	if err != nil {
		if CodeOf(err) != "" {
			return nil, err
		}
		return nil, wrapError(LoadingDocumentFailed, err, "%s", url)
	}
	doc, err := normalize(remote.Document)
	if err != nil {
		return nil, err
	}
	documentURL := remote.DocumentURL
	if documentURL == "" {
		documentURL = url
	}
	return &loadedInput{document: doc, documentURL: documentURL, contextURL: remote.ContextURL}, nil
}

func (s *session) base(in *loadedInput) string {
	if s.opts.Base != "" {
		return s.opts.Base
	}
	return in.documentURL
}

// expandInput runs the expansion entry point: load, apply the
// expandContext option and any Link header context, expand.
func (s *session) expandInput(input any) ([]any, *loadedInput, error) {
	in, err := s.loadInput(input)
	if err != nil {
		return nil, nil, err
	}
	base := s.base(in)
	active := NewContext(base, s.opts)

	if s.opts.ExpandContext != nil {
		ec, err := normalize(s.opts.ExpandContext)
		if err != nil {
			return nil, nil, err
		}
		if m, ok := ec.(map[string]any); ok {
			if inner, has := m["@context"]; has {
				ec = inner
			}
		}
		if active, err = s.processContext(active, ec, base, nil, false, true, true); err != nil {
			return nil, nil, err
		}
	}
	if in.contextURL != "" {
		if active, err = s.processContext(active, in.contextURL, in.contextURL, nil, false, true, true); err != nil {
			return nil, nil, err
		}
	}

	expanded, err := s.expandDocument(active, in.document, base, false)
	if err != nil {
		return nil, nil, err
	}
	return expanded, in, nil
}

// compactionContext extracts the local context from a context document and
// processes it.
func (s *session) compactionContext(local any, base string) (*Context, any, error) {
	if url, ok := local.(string); ok {
		local = []any{url}
	}
	normalized, err := normalize(local)
	if err != nil {
		return nil, nil, err
	}
	if m, ok := normalized.(map[string]any); ok {
		if inner, has := m["@context"]; has {
			normalized = inner
		}
	}
	active, err := s.processContext(NewContext(base, s.opts), normalized, base, nil, false, true, true)
	if err != nil {
		return nil, nil, err
	}
	return active, normalized, nil
}

// compactDocument compacts expanded against active and shapes the top
// level: arrays are wrapped in @graph (always when forceGraph), and the
// non-empty local context is attached as @context.
func (s *session) compactDocument(active *Context, local any, expanded []any, forceGraph bool) (map[string]any, error) {
	compacted, err := s.compact(active, "", expanded)
	if err != nil {
		return nil, err
	}

	if arr, isArr := compacted.([]any); isArr && s.opts.CompactArrays && !forceGraph {
		switch len(arr) {
		case 0:
			compacted = map[string]any{}
		case 1:
			compacted = arr[0]
		}
	} else if m, isMap := compacted.(map[string]any); isMap && forceGraph {
		compacted = []any{m}
	}
	if compacted == nil {
		compacted = map[string]any{}
	}

	var contexts []any
	for _, item := range asArray(local) {
		if isEmptyMap(item) {
			continue
		}
		contexts = append(contexts, item)
	}
	var outContext any = contexts
	if len(contexts) == 1 {
		outContext = contexts[0]
	}

	result, isMap := compacted.(map[string]any)
	if !isMap {
		result = map[string]any{s.mustCompactIRI(active, "@graph"): compacted}
	}
	if len(contexts) > 0 {
		result["@context"] = cloneValue(outContext)
	}
	return result, nil
}

// Processor runs the JSON-LD algorithms with a fixed option set. It is
// safe for concurrent use; every call gets its own session state.
type Processor struct {
	opts *Options
}

// NewProcessor creates a processor. A nil opts means NewOptions().
func NewProcessor(opts *Options) *Processor {
	if opts == nil {
		opts = NewOptions()
	}
	return &Processor{opts: opts.clone()}
}

// Options returns a copy of the processor's options
func (p *Processor) Options() Options {
	return *p.opts
}

// Expand removes the context from input and returns the expanded document.
// A string input is loaded through the document loader.
func (p *Processor) Expand(ctx context.Context, input any) ([]any, error) {
	s := newSession(ctx, p.opts)
	expanded, _, err := s.expandInput(input)
	return expanded, err
}

// Compact expands input and compacts it against localContext
func (p *Processor) Compact(ctx context.Context, input, localContext any) (map[string]any, error) {
	s := newSession(ctx, p.opts)
	expanded, in, err := s.expandInput(input)
	if err != nil {
		return nil, err
	}
	active, local, err := s.compactionContext(localContext, s.base(in))
	if err != nil {
		return nil, err
	}
	return s.compactDocument(active, local, expanded, false)
}

// Flatten returns all nodes of input at the top level with embedded nodes
// replaced by references. Without a context the result is the flattened
// array; with one it is compacted and wrapped in @graph.
func (p *Processor) Flatten(ctx context.Context, input, localContext any) (any, error) {
	s := newSession(ctx, p.opts)
	expanded, in, err := s.expandInput(input)
	if err != nil {
		return nil, err
	}
	flattened, err := s.flatten(expanded)
	if err != nil {
		return nil, err
	}
	if localContext == nil {
		return flattened, nil
	}
	active, local, err := s.compactionContext(localContext, s.base(in))
	if err != nil {
		return nil, err
	}
	return s.compactDocument(active, local, flattened, true)
}

// Frame reshapes input into the tree described by frame and compacts it
// with the frame's @context.
func (p *Processor) Frame(ctx context.Context, input, frame any) (map[string]any, error) {
	s := newSession(ctx, p.opts)
	expanded, _, err := s.expandInput(input)
	if err != nil {
		return nil, err
	}

	fin, err := s.loadInput(frame)
	if err != nil {
		return nil, err
	}
	frameDoc, ok := fin.document.(map[string]any)
	if !ok {
		return nil, newError(InvalidFrame, "frame must be a JSON object, got %s", describe(fin.document))
	}
	var frameContext any = map[string]any{}
	if c, has := frameDoc["@context"]; has {
		frameContext = c
	}
	frameBase := s.base(fin)
	active, local, err := s.compactionContext(frameContext, frameBase)
	if err != nil {
		return nil, err
	}

	merged := true
	for key := range frameDoc {
		if key == "@graph" || s.mustExpandIRI(active, key, false, true) == "@graph" {
			merged = false
		}
	}

	expandedFrame, err := s.expandDocument(NewContext(frameBase, s.opts), frameDoc, frameBase, true)
	if err != nil {
		return nil, err
	}

	framed, err := s.frameDocument(expanded, expandedFrame, merged)
	if err != nil {
		return nil, err
	}

	result, err := s.compactDocument(active, local, framed, !s.opts.omitGraph())
	if err != nil {
		return nil, err
	}
	cleaned, _ := cleanupPreserve(result).(map[string]any)
	return cleaned, nil
}

// ToRDF expands input and converts it into quads
func (p *Processor) ToRDF(ctx context.Context, input any) ([]*rdf.Quad, error) {
	s := newSession(ctx, p.opts)
	expanded, _, err := s.expandInput(input)
	if err != nil {
		return nil, err
	}
	return s.toRDF(expanded)
}

// FromRDF converts quads into expanded JSON-LD
func (p *Processor) FromRDF(ctx context.Context, quads []*rdf.Quad) ([]any, error) {
	s := newSession(ctx, p.opts)
	return s.fromRDF(quads)
}

// Parse merges localContext into c and returns the new snapshot; c is left
// unchanged.
func (c *Context) Parse(ctx context.Context, localContext any, opts *Options) (*Context, error) {
	s := newSession(ctx, opts)
	local, err := normalize(localContext)
	if err != nil {
		return nil, err
	}
	return s.processContext(c, local, c.base, nil, false, true, true)
}

// Expand runs Processor.Expand with opts
func Expand(ctx context.Context, input any, opts *Options) ([]any, error) {
	return NewProcessor(opts).Expand(ctx, input)
}

// Compact runs Processor.Compact with opts
func Compact(ctx context.Context, input, localContext any, opts *Options) (map[string]any, error) {
	return NewProcessor(opts).Compact(ctx, input, localContext)
}

// Flatten runs Processor.Flatten with opts
func Flatten(ctx context.Context, input, localContext any, opts *Options) (any, error) {
	return NewProcessor(opts).Flatten(ctx, input, localContext)
}

// Frame runs Processor.Frame with opts
func Frame(ctx context.Context, input, frame any, opts *Options) (map[string]any, error) {
	return NewProcessor(opts).Frame(ctx, input, frame)
}

// ToRDF runs Processor.ToRDF with opts
func ToRDF(ctx context.Context, input any, opts *Options) ([]*rdf.Quad, error) {
	return NewProcessor(opts).ToRDF(ctx, input)
}

// FromRDF runs Processor.FromRDF with opts
func FromRDF(ctx context.Context, quads []*rdf.Quad, opts *Options) ([]any, error) {
	return NewProcessor(opts).FromRDF(ctx, quads)
}
