package rdf

import (
	"fmt"
	"strings"
)

// SerializeNQuads serializes quads to N-Quads, one statement per line.
// Input order is preserved. The output parses back with ParseNQuads to
// the same quads.
func SerializeNQuads(quads []*Quad) string {
	var builder strings.Builder
	for _, quad := range quads {
		builder.WriteString(SerializeQuad(quad))
	}
	return builder.String()
}

// SerializeQuad serializes one quad followed by a newline
func SerializeQuad(quad *Quad) string {
	var builder strings.Builder
	builder.WriteString(serializeTerm(quad.Subject))
	builder.WriteString(" ")
	builder.WriteString(serializeTerm(quad.Predicate))
	builder.WriteString(" ")
	builder.WriteString(serializeTerm(quad.Object))
	if !quad.InDefaultGraph() {
		builder.WriteString(" ")
		builder.WriteString(serializeTerm(quad.Graph))
	}
	builder.WriteString(" .\n")
	return builder.String()
}

func serializeTerm(term Term) string {
	switch t := term.(type) {
	case *NamedNode:
		return "<" + escapeIRI(t.IRI) + ">"
	case *BlankNode:
		return "_:" + t.ID
	case *Literal:
		return serializeLiteral(t)
	default:
		return ""
	}
}

func serializeLiteral(lit *Literal) string {
	escaped := escapeString(lit.Value)

	if lit.Language != "" {
		if lit.Direction != "" {
			return fmt.Sprintf(`"%s"@%s--%s`, escaped, lit.Language, lit.Direction)
		}
		return fmt.Sprintf(`"%s"@%s`, escaped, lit.Language)
	}

	if datatype := lit.DatatypeIRI(); datatype != XSDString.IRI {
		return fmt.Sprintf(`"%s"^^<%s>`, escaped, escapeIRI(datatype))
	}

	return `"` + escaped + `"`
}

// escapeString escapes a literal value: named escapes for \t \b \n \r \f \" \\,
// \uXXXX for the remaining control characters
func escapeString(s string) string {
	var builder strings.Builder
	builder.Grow(len(s))

	for _, r := range s {
		switch r {
		case '\t':
			builder.WriteString(`\t`)
		case '\b':
			builder.WriteString(`\b`)
		case '\n':
			builder.WriteString(`\n`)
		case '\r':
			builder.WriteString(`\r`)
		case '\f':
			builder.WriteString(`\f`)
		case '"':
			builder.WriteString(`\"`)
		case '\\':
			builder.WriteString(`\\`)
		default:
			if r < 0x20 || r == 0x7F {
				fmt.Fprintf(&builder, `\u%04X`, r)
			} else {
				builder.WriteRune(r)
			}
		}
	}

	return builder.String()
}

// escapeIRI escapes the characters that may not appear literally inside <...>
func escapeIRI(iri string) string {
	if !strings.ContainsAny(iri, "<>\"{}|^`\\ ") && !hasControl(iri) {
		return iri
	}
	var builder strings.Builder
	for _, r := range iri {
		if r <= 0x20 || strings.ContainsRune("<>\"{}|^`\\", r) {
			fmt.Fprintf(&builder, `\u%04X`, r)
			continue
		}
		builder.WriteRune(r)
	}
	return builder.String()
}

func hasControl(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 {
			return true
		}
	}
	return false
}
