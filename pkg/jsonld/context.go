package jsonld

import (
	"reflect"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// maxRemoteContexts bounds the depth of nested remote context loads
const maxRemoteContexts = 32

// TermDefinition is one entry of an active context.
type TermDefinition struct {
	// IRI is the expanded mapping; empty means the term is mapped to null.
	IRI     string
	Reverse bool
	Type    string

	Language    string
	HasLanguage bool

	Direction    string
	HasDirection bool

	// Container is kept sorted.
	Container []string
	Index     string
	Nest      string
	Prefix    bool
	Protected bool

	// Context is the property-scoped context, which may be null.
	Context    any
	HasContext bool
	BaseURL    string
}

// HasContainer reports whether the container mapping includes c
func (d *TermDefinition) HasContainer(c string) bool {
	if d == nil {
		return false
	}
	for _, item := range d.Container {
		if item == c {
			return true
		}
	}
	return false
}

// sameDefinition compares everything but the protected flag
func (d *TermDefinition) sameDefinition(o *TermDefinition) bool {
	a, b := *d, *o
	a.Protected, b.Protected = false, false
	a.BaseURL, b.BaseURL = "", ""
	return reflect.DeepEqual(a, b)
}

// Context is an immutable active context snapshot. Every update produces a
// new snapshot; the inverse context is derived lazily once per snapshot.
type Context struct {
	base             string
	originalBase     string
	vocab            string
	defaultLanguage  string
	defaultDirection string
	processingMode   string
	terms            map[string]*TermDefinition
	previous         *Context

	inv *lazyInverse
}

type lazyInverse struct {
	once  sync.Once
	value inverseContext
}

// NewContext returns an empty active context rooted at base
func NewContext(base string, opts *Options) *Context {
	opts = opts.clone()
	return &Context{
		base:           base,
		originalBase:   base,
		processingMode: opts.ProcessingMode,
		terms:          map[string]*TermDefinition{},
		inv:            &lazyInverse{},
	}
}

func (c *Context) clone() *Context {
	out := *c
	out.terms = make(map[string]*TermDefinition, len(c.terms))
	for k, v := range c.terms {
		out.terms[k] = v
	}
	out.inv = &lazyInverse{}
	return &out
}

// Base returns the base IRI, "" when none is set
func (c *Context) Base() string { return c.base }

// Vocab returns the vocabulary mapping, "" when none is set
func (c *Context) Vocab() string { return c.vocab }

// DefaultLanguage returns the default language, "" when none is set
func (c *Context) DefaultLanguage() string { return c.defaultLanguage }

// Term returns the definition of term, or nil
func (c *Context) Term(term string) *TermDefinition {
	return c.terms[term]
}

// Terms returns the defined terms in sorted order
func (c *Context) Terms() []string {
	out := make([]string, 0, len(c.terms))
	for k := range c.terms {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (c *Context) is10() bool {
	return c.processingMode == ProcessingMode10
}

func (c *Context) hasProtected() bool {
	for _, def := range c.terms {
		if def != nil && def.Protected {
			return true
		}
	}
	return false
}

func (c *Context) inverse() inverseContext {
	c.inv.once.Do(func() {
		c.inv.value = buildInverse(c)
	})
	return c.inv.value
}

// processContext merges local into active and returns the new snapshot.
func (s *session) processContext(active *Context, local any, baseURL string, stack []string, overrideProtected, propagate, validateScoped bool) (*Context, error) {
	if err := s.ctx.Err(); err != nil {
		return nil, err
	}

	result := active.clone()

	if m, ok := local.(map[string]any); ok {
		if p, has := m["@propagate"]; has {
			b, isBool := p.(bool)
			if !isBool {
				return nil, newError(InvalidPropagateValue, "@propagate must be a boolean, got %s", describe(p))
			}
			propagate = b
		}
	}
	if !propagate && result.previous == nil {
		result.previous = active
	}

	items := asArray(local)
	if local == nil {
		items = []any{nil}
	}
	for _, item := range items {
		switch ctx := item.(type) {
		case nil:
			if !overrideProtected && result.hasProtected() {
				return nil, newError(InvalidContextNullification, "cannot nullify a context with protected terms")
			}
			prev := result
			result = NewContext(active.originalBase, s.opts)
			result.processingMode = active.processingMode
			if !propagate {
				result.previous = prev
			}

		case string:
			iri := ResolveIRI(baseURL, ctx)
			if !IsAbsoluteIRI(iri) {
				return nil, newError(LoadingDocumentFailed, "cannot resolve context %q", ctx)
			}
			onStack := false
			for _, seen := range stack {
				if seen == iri {
					onStack = true
					break
				}
			}
			if onStack && !validateScoped {
				continue
			}
			if onStack {
				return nil, newError(RecursiveContextInclusion, "%s", iri)
			}
			if len(stack) >= maxRemoteContexts {
				return nil, newError(ContextOverflow, "too many nested remote contexts at %s", iri)
			}

			doc, err := s.loadContext(iri)
			if err != nil {
				return nil, err
			}
			nested := append(append([]string(nil), stack...), iri)
			result, err = s.processContext(result, doc.context, doc.url, nested, overrideProtected, propagate, validateScoped)
			if err != nil {
				return nil, err
			}

		case map[string]any:
			var err error
			result, err = s.processContextMap(result, ctx, baseURL, stack, overrideProtected, validateScoped)
			if err != nil {
				return nil, err
			}

		default:
			return nil, newError(InvalidLocalContext, "context must be a map, string or null, got %s", describe(item))
		}
	}

	return result, nil
}

func (s *session) processContextMap(result *Context, ctx map[string]any, baseURL string, stack []string, overrideProtected, validateScoped bool) (*Context, error) {
	if v, has := ctx["@version"]; has {
		if f, ok := v.(float64); !ok || f != 1.1 {
			return nil, newError(InvalidVersionValue, "@version must be 1.1, got %s", describe(v))
		}
		if result.is10() {
			return nil, newError(ProcessingModeConflict, "@version 1.1 in json-ld-1.0 mode")
		}
	}

	if v, has := ctx["@import"]; has {
		if result.is10() {
			return nil, newError(InvalidContextEntry, "@import is not supported in json-ld-1.0 mode")
		}
		ref, ok := v.(string)
		if !ok {
			return nil, newError(InvalidImportValue, "@import must be a string, got %s", describe(v))
		}
		iri := ResolveIRI(baseURL, ref)
		doc, err := s.loadContext(iri)
		if err != nil {
			return nil, err
		}
		imported, ok := doc.context.(map[string]any)
		if !ok {
			return nil, newError(InvalidRemoteContext, "imported context %s is not a map", iri)
		}
		if _, nested := imported["@import"]; nested {
			return nil, newError(InvalidContextEntry, "imported context %s contains @import", iri)
		}
		merged := make(map[string]any, len(imported)+len(ctx))
		for k, val := range imported {
			merged[k] = val
		}
		for k, val := range ctx {
			merged[k] = val
		}
		delete(merged, "@import")
		ctx = merged
	}

	if v, has := ctx["@base"]; has && len(stack) == 0 {
		switch b := v.(type) {
		case nil:
			result.base = ""
		case string:
			switch {
			case IsAbsoluteIRI(b):
				result.base = ResolveIRI("", b)
			case result.base != "":
				result.base = ResolveIRI(result.base, b)
			default:
				return nil, newError(InvalidBaseIRI, "relative @base %q without a document base", b)
			}
		default:
			return nil, newError(InvalidBaseIRI, "@base must be a string or null, got %s", describe(v))
		}
	}

	protected := false
	if v, has := ctx["@protected"]; has {
		if result.is10() {
			return nil, newError(InvalidContextEntry, "@protected is not supported in json-ld-1.0 mode")
		}
		b, ok := v.(bool)
		if !ok {
			return nil, newError(InvalidProtectedValue, "@protected must be a boolean, got %s", describe(v))
		}
		protected = b
	}

	defs := &termBuilder{
		session:           s,
		active:            result,
		local:             ctx,
		defined:           map[string]bool{},
		baseURL:           baseURL,
		protected:         protected,
		overrideProtected: overrideProtected,
		stack:             stack,
	}

	if v, has := ctx["@vocab"]; has {
		switch vocab := v.(type) {
		case nil:
			result.vocab = ""
		case string:
			if result.is10() && !IsAbsoluteIRI(vocab) && !isBlankNodeID(vocab) {
				return nil, newError(InvalidVocabMapping, "@vocab must be an absolute IRI in json-ld-1.0 mode, got %q", vocab)
			}
			// terms of this local context may be used as the vocabulary
			expanded, err := s.expandIRI(result, vocab, true, true, defs)
			if err != nil {
				return nil, err
			}
			if expanded != "" && !IsAbsoluteIRI(expanded) && !isBlankNodeID(expanded) {
				return nil, newError(InvalidVocabMapping, "cannot resolve @vocab %q", vocab)
			}
			result.vocab = expanded
		default:
			return nil, newError(InvalidVocabMapping, "@vocab must be a string or null, got %s", describe(v))
		}
	}

	if v, has := ctx["@language"]; has {
		switch lang := v.(type) {
		case nil:
			result.defaultLanguage = ""
		case string:
			if !wellFormedLanguage(lang) {
				s.logger.Debug("language tag is not well-formed", zap.String("language", lang))
			}
			result.defaultLanguage = strings.ToLower(lang)
		default:
			return nil, newError(InvalidDefaultLanguage, "@language must be a string or null, got %s", describe(v))
		}
	}

	if v, has := ctx["@direction"]; has {
		if result.is10() {
			return nil, newError(InvalidContextEntry, "@direction is not supported in json-ld-1.0 mode")
		}
		switch dir := v.(type) {
		case nil:
			result.defaultDirection = ""
		case string:
			if dir != "ltr" && dir != "rtl" {
				return nil, newError(InvalidBaseDirection, "@direction must be ltr or rtl, got %q", dir)
			}
			result.defaultDirection = dir
		default:
			return nil, newError(InvalidBaseDirection, "@direction must be a string or null, got %s", describe(v))
		}
	}

	if v, has := ctx["@propagate"]; has {
		if result.is10() {
			return nil, newError(InvalidContextEntry, "@propagate is not supported in json-ld-1.0 mode")
		}
		if _, ok := v.(bool); !ok {
			return nil, newError(InvalidPropagateValue, "@propagate must be a boolean, got %s", describe(v))
		}
	}

	for _, term := range sortedKeys(ctx) {
		switch term {
		case "@base", "@direction", "@import", "@language", "@propagate", "@protected", "@version", "@vocab":
			continue
		}
		if err := defs.define(term); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// termBuilder carries the state of term definition creation for one local
// context map.
type termBuilder struct {
	session           *session
	active            *Context
	local             map[string]any
	defined           map[string]bool
	baseURL           string
	protected         bool
	overrideProtected bool
	stack             []string
}

var termDefinitionKeys = map[string]bool{
	"@id": true, "@reverse": true, "@container": true, "@context": true,
	"@direction": true, "@index": true, "@language": true, "@nest": true,
	"@prefix": true, "@protected": true, "@type": true,
}

func (b *termBuilder) define(term string) error {
	if done, seen := b.defined[term]; seen {
		if done {
			return nil
		}
		return newError(CyclicIRIMapping, "term %q", term)
	}
	if term == "" {
		return newError(InvalidTermDefinition, "empty term")
	}
	b.defined[term] = false

	active := b.active
	value := b.local[term]

	if term == "@type" && !active.is10() {
		if m, ok := value.(map[string]any); ok && len(m) > 0 {
			valid := true
			for k, v := range m {
				switch k {
				case "@container":
					if v != "@set" {
						valid = false
					}
				case "@protected":
				default:
					valid = false
				}
			}
			if !valid {
				return newError(KeywordRedefinition, "@type may only be given a @set container")
			}
		} else {
			return newError(KeywordRedefinition, "%s", term)
		}
	} else if isKeyword(term) {
		return newError(KeywordRedefinition, "%s", term)
	} else if looksLikeKeyword(term) {
		b.session.logger.Debug("ignoring keyword-like term", zap.String("term", term))
		b.defined[term] = true
		return nil
	}

	previous := active.terms[term]
	delete(active.terms, term)

	simpleTerm := false
	var def map[string]any
	switch v := value.(type) {
	case nil:
		def = map[string]any{"@id": nil}
	case string:
		def = map[string]any{"@id": v}
		simpleTerm = true
	case map[string]any:
		def = v
	default:
		return newError(InvalidTermDefinition, "term %q must be a string, map or null", term)
	}

	d := &TermDefinition{Protected: b.protected}

	if v, has := def["@protected"]; has {
		if active.is10() {
			return newError(InvalidTermDefinition, "@protected in json-ld-1.0 mode")
		}
		p, ok := v.(bool)
		if !ok {
			return newError(InvalidProtectedValue, "term %q", term)
		}
		d.Protected = p
	}

	if v, has := def["@type"]; has {
		typ, ok := v.(string)
		if !ok {
			return newError(InvalidTypeMapping, "term %q: @type must be a string", term)
		}
		expanded, err := b.session.expandIRI(active, typ, false, true, b)
		if err != nil {
			return err
		}
		if (expanded == "@json" || expanded == "@none") && active.is10() {
			return newError(InvalidTypeMapping, "term %q: %s in json-ld-1.0 mode", term, expanded)
		}
		switch expanded {
		case "@id", "@json", "@none", "@vocab":
		default:
			if !IsAbsoluteIRI(expanded) {
				return newError(InvalidTypeMapping, "term %q: %q is not an absolute IRI", term, typ)
			}
		}
		d.Type = expanded
	}

	if v, has := def["@reverse"]; has {
		if _, hasID := def["@id"]; hasID {
			return newError(InvalidReverseProperty, "term %q has both @reverse and @id", term)
		}
		if _, hasNest := def["@nest"]; hasNest {
			return newError(InvalidReverseProperty, "term %q has both @reverse and @nest", term)
		}
		rev, ok := v.(string)
		if !ok {
			return newError(InvalidIRIMapping, "term %q: @reverse must be a string", term)
		}
		if looksLikeKeyword(rev) {
			b.session.logger.Debug("ignoring keyword-like @reverse", zap.String("term", term))
			b.defined[term] = true
			return nil
		}
		iri, err := b.session.expandIRI(active, rev, false, true, b)
		if err != nil {
			return err
		}
		if !IsAbsoluteIRI(iri) && !isBlankNodeID(iri) {
			return newError(InvalidIRIMapping, "term %q: reverse IRI %q", term, rev)
		}
		d.IRI = iri
		if c, has := def["@container"]; has {
			switch c {
			case "@set", "@index", nil:
				if c != nil {
					d.Container = []string{c.(string)}
				}
			default:
				return newError(InvalidReverseProperty, "term %q: reverse container must be @set or @index", term)
			}
		}
		d.Reverse = true
		return b.finish(term, d, previous)
	}

	idValue, hasID := def["@id"]
	switch {
	case hasID && idValue != term:
		if idValue == nil {
			// null mapping, kept to block @vocab expansion
			break
		}
		id, ok := idValue.(string)
		if !ok {
			return newError(InvalidIRIMapping, "term %q: @id must be a string", term)
		}
		if !isKeyword(id) && looksLikeKeyword(id) {
			b.session.logger.Debug("ignoring keyword-like @id", zap.String("term", term))
			b.defined[term] = true
			return nil
		}
		iri, err := b.session.expandIRI(active, id, false, true, b)
		if err != nil {
			return err
		}
		if !isKeyword(iri) && !IsAbsoluteIRI(iri) && !isBlankNodeID(iri) {
			return newError(InvalidIRIMapping, "term %q maps to %q", term, id)
		}
		if iri == "@context" {
			return newError(InvalidKeywordAlias, "term %q aliases @context", term)
		}
		d.IRI = iri

		colon := strings.Index(term[1:], ":")
		hasInnerColon := colon >= 0 && colon+2 < len(term)
		if hasInnerColon || strings.Contains(term, "/") {
			b.defined[term] = true
			check, err := b.session.expandIRI(active, term, false, true, b)
			if err != nil {
				return err
			}
			if check != iri {
				return newError(InvalidIRIMapping, "term %q looks like an IRI that expands differently", term)
			}
		}
		if !strings.ContainsAny(term, ":/") && simpleTerm {
			d.Prefix = isBlankNodeID(iri) || endsWithGenDelim(iri)
		}

	case strings.Contains(term[1:], ":"):
		i := strings.Index(term[1:], ":") + 1
		prefix, suffix := term[:i], term[i+1:]
		if _, local := b.local[prefix]; local {
			if err := b.define(prefix); err != nil {
				return err
			}
		}
		if pd := active.terms[prefix]; pd != nil && pd.IRI != "" {
			d.IRI = pd.IRI + suffix
		} else {
			d.IRI = term
		}

	case strings.Contains(term, "/"):
		iri, err := b.session.expandIRI(active, term, false, true, nil)
		if err != nil {
			return err
		}
		if !IsAbsoluteIRI(iri) {
			return newError(InvalidIRIMapping, "term %q is a relative IRI", term)
		}
		d.IRI = iri

	case term == "@type":
		d.IRI = "@type"

	default:
		if active.vocab == "" {
			return newError(InvalidIRIMapping, "term %q has no @id and there is no @vocab", term)
		}
		d.IRI = active.vocab + term
	}

	if active.is10() && d.IRI != "" && !strings.ContainsAny(term, ":/") {
		d.Prefix = true
	}

	if v, has := def["@container"]; has {
		container, err := parseContainer(active, v)
		if err != nil {
			return wrapError(InvalidContainerMapping, err, "term %q", term)
		}
		d.Container = container
		if d.HasContainer("@type") {
			switch d.Type {
			case "":
				d.Type = "@id"
			case "@id", "@vocab":
			default:
				return newError(InvalidTypeMapping, "term %q: @type container requires @id or @vocab type", term)
			}
		}
	}

	if v, has := def["@index"]; has {
		if active.is10() || !d.HasContainer("@index") {
			return newError(InvalidTermDefinition, "term %q: @index without @index container", term)
		}
		idx, ok := v.(string)
		if !ok {
			return newError(InvalidTermDefinition, "term %q: @index must be a string", term)
		}
		expanded, err := b.session.expandIRI(active, idx, false, true, b)
		if err != nil {
			return err
		}
		if isKeyword(expanded) || !IsAbsoluteIRI(expanded) {
			return newError(InvalidTermDefinition, "term %q: @index %q is not a property", term, idx)
		}
		d.Index = idx
	}

	if v, has := def["@context"]; has {
		if active.is10() {
			return newError(InvalidTermDefinition, "term %q: scoped context in json-ld-1.0 mode", term)
		}
		if _, err := b.session.processContext(active, v, b.baseURL, b.stack, true, true, false); err != nil {
			return wrapError(InvalidScopedContext, err, "term %q", term)
		}
		d.Context = v
		d.HasContext = true
		d.BaseURL = b.baseURL
	}

	if v, has := def["@language"]; has {
		if _, typed := def["@type"]; !typed {
			switch lang := v.(type) {
			case nil:
				d.HasLanguage = true
			case string:
				d.Language = strings.ToLower(lang)
				d.HasLanguage = true
			default:
				return newError(InvalidLanguageMapping, "term %q", term)
			}
		}
	}

	if v, has := def["@direction"]; has {
		if active.is10() {
			return newError(InvalidTermDefinition, "term %q: @direction in json-ld-1.0 mode", term)
		}
		if _, typed := def["@type"]; !typed {
			switch v {
			case nil:
				d.HasDirection = true
			case "ltr", "rtl":
				d.Direction = v.(string)
				d.HasDirection = true
			default:
				return newError(InvalidBaseDirection, "term %q: %s", term, describe(v))
			}
		}
	}

	if v, has := def["@nest"]; has {
		if active.is10() {
			return newError(InvalidTermDefinition, "term %q: @nest in json-ld-1.0 mode", term)
		}
		nest, ok := v.(string)
		if !ok || (isKeyword(nest) && nest != "@nest") {
			return newError(InvalidNestValue, "term %q: %s", term, describe(v))
		}
		d.Nest = nest
	}

	if v, has := def["@prefix"]; has {
		if active.is10() || strings.ContainsAny(term, ":/") {
			return newError(InvalidTermDefinition, "term %q cannot carry @prefix", term)
		}
		p, ok := v.(bool)
		if !ok {
			return newError(InvalidPrefixValue, "term %q", term)
		}
		d.Prefix = p
		if p && isKeyword(d.IRI) {
			return newError(InvalidTermDefinition, "keyword alias %q cannot be a prefix", term)
		}
	}

	for k := range def {
		if !termDefinitionKeys[k] {
			return newError(InvalidTermDefinition, "term %q has unknown entry %q", term, k)
		}
	}

	return b.finish(term, d, previous)
}

func (b *termBuilder) finish(term string, d, previous *TermDefinition) error {
	if !b.overrideProtected && previous != nil && previous.Protected {
		if !d.sameDefinition(previous) {
			return newError(ProtectedTermRedefinition, "%s", term)
		}
		d = previous
	}
	b.active.terms[term] = d
	b.defined[term] = true
	return nil
}

func endsWithGenDelim(iri string) bool {
	if iri == "" {
		return false
	}
	return strings.ContainsRune(":/?#[]@", rune(iri[len(iri)-1]))
}

var containerKeywords = map[string]bool{
	"@graph": true, "@id": true, "@index": true, "@language": true,
	"@list": true, "@set": true, "@type": true,
}

func parseContainer(active *Context, v any) ([]string, error) {
	var items []string
	switch c := v.(type) {
	case nil:
		return nil, nil
	case string:
		items = []string{c}
	case []any:
		if active.is10() {
			return nil, newError(InvalidContainerMapping, "array containers need json-ld-1.1")
		}
		for _, item := range c {
			s, ok := item.(string)
			if !ok {
				return nil, newError(InvalidContainerMapping, "%s", describe(item))
			}
			items = append(items, s)
		}
	default:
		return nil, newError(InvalidContainerMapping, "%s", describe(v))
	}

	set := map[string]bool{}
	for _, item := range items {
		if !containerKeywords[item] || set[item] {
			return nil, newError(InvalidContainerMapping, "%q", item)
		}
		set[item] = true
	}
	if active.is10() {
		switch items[0] {
		case "@graph", "@id", "@type":
			return nil, newError(InvalidContainerMapping, "%s needs json-ld-1.1", items[0])
		}
	}

	var rest []string
	for item := range set {
		if item != "@set" && item != "@graph" {
			rest = append(rest, item)
		}
	}
	switch {
	case set["@list"]:
		if len(set) != 1 {
			return nil, newError(InvalidContainerMapping, "@list cannot be combined")
		}
	case set["@graph"]:
		if len(rest) > 1 || (len(rest) == 1 && rest[0] != "@id" && rest[0] != "@index") {
			return nil, newError(InvalidContainerMapping, "@graph combines only with @id, @index and @set")
		}
	default:
		if len(rest) > 1 {
			return nil, newError(InvalidContainerMapping, "%v", items)
		}
	}

	sort.Strings(items)
	return items, nil
}
