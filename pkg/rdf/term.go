package rdf

import (
	"fmt"
	"strings"
)

// TermType represents the type of an RDF term
type TermType byte

const (
	TermTypeNamedNode TermType = iota + 1
	TermTypeBlankNode
	TermTypeLiteral
	TermTypeDefaultGraph
)

func (t TermType) String() string {
	switch t {
	case TermTypeNamedNode:
		return "IRI"
	case TermTypeBlankNode:
		return "blank node"
	case TermTypeLiteral:
		return "literal"
	case TermTypeDefaultGraph:
		return "default graph"
	default:
		return "unknown"
	}
}

// Term represents an RDF term (IRI, blank node, literal or the default graph)
type Term interface {
	Type() TermType
	String() string
	Equals(other Term) bool
}

// NamedNode represents an IRI
type NamedNode struct {
	IRI string
}

func NewNamedNode(iri string) *NamedNode {
	return &NamedNode{IRI: iri}
}

func (n *NamedNode) Type() TermType {
	return TermTypeNamedNode
}

func (n *NamedNode) String() string {
	return fmt.Sprintf("<%s>", n.IRI)
}

func (n *NamedNode) Equals(other Term) bool {
	if on, ok := other.(*NamedNode); ok {
		return n.IRI == on.IRI
	}
	return false
}

// BlankNode represents a blank node. ID is the label without the "_:" prefix.
type BlankNode struct {
	ID string
}

// NewBlankNode creates a blank node; a leading "_:" on id is stripped.
func NewBlankNode(id string) *BlankNode {
	return &BlankNode{ID: strings.TrimPrefix(id, "_:")}
}

func (b *BlankNode) Type() TermType {
	return TermTypeBlankNode
}

func (b *BlankNode) String() string {
	return "_:" + b.ID
}

func (b *BlankNode) Equals(other Term) bool {
	if ob, ok := other.(*BlankNode); ok {
		return b.ID == ob.ID
	}
	return false
}

// Literal represents an RDF literal. Datatype is never nil for literals
// built through the constructors in this package.
type Literal struct {
	Value     string
	Language  string // for language-tagged strings
	Direction string // base direction ("ltr" or "rtl"), RDF 1.2
	Datatype  *NamedNode
}

// NewLiteral creates an xsd:string literal
func NewLiteral(value string) *Literal {
	return &Literal{Value: value, Datatype: XSDString}
}

// NewLiteralWithLanguage creates an rdf:langString literal
func NewLiteralWithLanguage(value, language string) *Literal {
	return &Literal{Value: value, Language: language, Datatype: RDFLangString}
}

// NewLiteralWithLanguageAndDirection creates an rdf:dirLangString literal
func NewLiteralWithLanguageAndDirection(value, language, direction string) *Literal {
	return &Literal{Value: value, Language: language, Direction: direction, Datatype: RDFDirLangString}
}

// NewLiteralWithDatatype creates a typed literal
func NewLiteralWithDatatype(value string, datatype *NamedNode) *Literal {
	return &Literal{Value: value, Datatype: datatype}
}

// DatatypeIRI returns the literal's datatype, applying the RDF defaults
// when Datatype was left nil.
func (l *Literal) DatatypeIRI() string {
	switch {
	case l.Datatype != nil:
		return l.Datatype.IRI
	case l.Language != "" && l.Direction != "":
		return RDFDirLangString.IRI
	case l.Language != "":
		return RDFLangString.IRI
	default:
		return XSDString.IRI
	}
}

func (l *Literal) Type() TermType {
	return TermTypeLiteral
}

func (l *Literal) String() string {
	return serializeLiteral(l)
}

func (l *Literal) Equals(other Term) bool {
	ol, ok := other.(*Literal)
	if !ok {
		return false
	}
	return l.Value == ol.Value &&
		strings.EqualFold(l.Language, ol.Language) &&
		l.Direction == ol.Direction &&
		l.DatatypeIRI() == ol.DatatypeIRI()
}

// DefaultGraph represents the default graph
type DefaultGraph struct{}

func NewDefaultGraph() *DefaultGraph {
	return &DefaultGraph{}
}

func (d *DefaultGraph) Type() TermType {
	return TermTypeDefaultGraph
}

func (d *DefaultGraph) String() string {
	return "DEFAULT"
}

func (d *DefaultGraph) Equals(other Term) bool {
	_, ok := other.(*DefaultGraph)
	return ok
}

// Quad represents an RDF quad (subject, predicate, object, graph).
// Graph is *DefaultGraph (or nil) for the default graph.
type Quad struct {
	Subject   Term
	Predicate Term
	Object    Term
	Graph     Term
}

func NewQuad(subject, predicate, object, graph Term) *Quad {
	if graph == nil {
		graph = NewDefaultGraph()
	}
	return &Quad{
		Subject:   subject,
		Predicate: predicate,
		Object:    object,
		Graph:     graph,
	}
}

// InDefaultGraph reports whether the quad belongs to the default graph
func (q *Quad) InDefaultGraph() bool {
	if q.Graph == nil {
		return true
	}
	_, ok := q.Graph.(*DefaultGraph)
	return ok
}

// Equals compares all four positions
func (q *Quad) Equals(other *Quad) bool {
	if other == nil {
		return false
	}
	if q.InDefaultGraph() != other.InDefaultGraph() {
		return false
	}
	if !q.InDefaultGraph() && !q.Graph.Equals(other.Graph) {
		return false
	}
	return q.Subject.Equals(other.Subject) &&
		q.Predicate.Equals(other.Predicate) &&
		q.Object.Equals(other.Object)
}

// String returns the quad as one N-Quads statement without the trailing newline
func (q *Quad) String() string {
	return strings.TrimSuffix(SerializeQuad(q), "\n")
}

// Vocabulary IRIs used by the JSON-LD <-> RDF mapping
const (
	RDFNamespace = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	XSDNamespace = "http://www.w3.org/2001/XMLSchema#"
	I18NBase     = "https://www.w3.org/ns/i18n#"
)

var (
	XSDString   = NewNamedNode(XSDNamespace + "string")
	XSDInteger  = NewNamedNode(XSDNamespace + "integer")
	XSDDecimal  = NewNamedNode(XSDNamespace + "decimal")
	XSDDouble   = NewNamedNode(XSDNamespace + "double")
	XSDBoolean  = NewNamedNode(XSDNamespace + "boolean")
	XSDDateTime = NewNamedNode(XSDNamespace + "dateTime")

	RDFType          = NewNamedNode(RDFNamespace + "type")
	RDFFirst         = NewNamedNode(RDFNamespace + "first")
	RDFRest          = NewNamedNode(RDFNamespace + "rest")
	RDFNil           = NewNamedNode(RDFNamespace + "nil")
	RDFList          = NewNamedNode(RDFNamespace + "List")
	RDFValue         = NewNamedNode(RDFNamespace + "value")
	RDFLanguage      = NewNamedNode(RDFNamespace + "language")
	RDFDirection     = NewNamedNode(RDFNamespace + "direction")
	RDFLangString    = NewNamedNode(RDFNamespace + "langString")
	RDFDirLangString = NewNamedNode(RDFNamespace + "dirLangString")
	RDFJSON          = NewNamedNode(RDFNamespace + "JSON")
)
