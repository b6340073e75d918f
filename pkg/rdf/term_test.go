package rdf

import (
	"testing"
)

func TestNamedNode_Equals(t *testing.T) {
	node1 := NewNamedNode("http://example.org/resource")
	node2 := NewNamedNode("http://example.org/resource")
	node3 := NewNamedNode("http://example.org/different")

	if !node1.Equals(node2) {
		t.Error("Expected equal NamedNodes to be equal")
	}
	if node1.Equals(node3) {
		t.Error("Expected different NamedNodes to not be equal")
	}
	if node1.Equals(NewLiteral("http://example.org/resource")) {
		t.Error("NamedNode should not equal Literal")
	}
	if node1.String() != "<http://example.org/resource>" {
		t.Errorf("unexpected string form %s", node1.String())
	}
}

func TestBlankNode_StripsPrefix(t *testing.T) {
	node := NewBlankNode("_:b1")
	if node.ID != "b1" {
		t.Errorf("Expected ID b1, got %s", node.ID)
	}
	if node.String() != "_:b1" {
		t.Errorf("Expected _:b1, got %s", node.String())
	}
	if !node.Equals(NewBlankNode("b1")) {
		t.Error("Expected blank nodes with the same label to be equal")
	}
}

func TestLiteral_DatatypeDefaults(t *testing.T) {
	tests := []struct {
		name    string
		literal *Literal
		want    string
	}{
		{"plain", NewLiteral("x"), XSDString.IRI},
		{"language", NewLiteralWithLanguage("x", "en"), RDFLangString.IRI},
		{"direction", NewLiteralWithLanguageAndDirection("x", "ar", "rtl"), RDFDirLangString.IRI},
		{"typed", NewLiteralWithDatatype("1", XSDInteger), XSDInteger.IRI},
		{"zero value", &Literal{Value: "x"}, XSDString.IRI},
		{"zero value with language", &Literal{Value: "x", Language: "en"}, RDFLangString.IRI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.literal.DatatypeIRI(); got != tt.want {
				t.Errorf("DatatypeIRI() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestLiteral_Equals(t *testing.T) {
	if !NewLiteral("x").Equals(&Literal{Value: "x"}) {
		t.Error("explicit and implicit xsd:string literals should be equal")
	}
	if !NewLiteralWithLanguage("x", "en-US").Equals(NewLiteralWithLanguage("x", "en-us")) {
		t.Error("language tags compare case-insensitively")
	}
	if NewLiteral("1").Equals(NewLiteralWithDatatype("1", XSDInteger)) {
		t.Error("literals with different datatypes should differ")
	}
}

func TestLiteral_String(t *testing.T) {
	tests := []struct {
		literal *Literal
		want    string
	}{
		{NewLiteral("hello"), `"hello"`},
		{NewLiteralWithLanguage("hello", "en"), `"hello"@en`},
		{NewLiteralWithLanguageAndDirection("hello", "en", "ltr"), `"hello"@en--ltr`},
		{NewLiteralWithDatatype("5", XSDInteger), `"5"^^<http://www.w3.org/2001/XMLSchema#integer>`},
		{NewLiteral("a \"quoted\"\nline"), `"a \"quoted\"\nline"`},
	}

	for _, tt := range tests {
		if got := tt.literal.String(); got != tt.want {
			t.Errorf("String() = %s, want %s", got, tt.want)
		}
	}
}

func TestQuad_DefaultGraph(t *testing.T) {
	s := NewNamedNode("http://example.org/s")
	p := NewNamedNode("http://example.org/p")
	o := NewLiteral("o")

	q1 := NewQuad(s, p, o, nil)
	q2 := NewQuad(s, p, o, NewDefaultGraph())
	q3 := NewQuad(s, p, o, NewNamedNode("http://example.org/g"))

	if !q1.InDefaultGraph() || !q2.InDefaultGraph() {
		t.Error("expected quads to be in the default graph")
	}
	if q3.InDefaultGraph() {
		t.Error("expected quad in a named graph")
	}
	if !q1.Equals(q2) {
		t.Error("nil graph and DefaultGraph should be equal")
	}
	if q1.Equals(q3) {
		t.Error("default and named graph quads should differ")
	}
	if q3.String() != `<http://example.org/s> <http://example.org/p> "o" <http://example.org/g> .` {
		t.Errorf("unexpected quad string %s", q3.String())
	}
}
