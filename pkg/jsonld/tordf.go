package jsonld

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"

	"go.uber.org/zap"

	"github.com/aleksaelezovic/jsonld/pkg/rdf"
)

// toRDF turns expanded input into quads. Graphs, subjects and properties
// are visited in sorted order so blank node labels are stable.
func (s *session) toRDF(expanded []any) ([]*rdf.Quad, error) {
	nodes := nodeMap{"@default": {}}
	if err := s.generateNodeMap(expanded, nodes, "@default", "", "", nil); err != nil {
		return nil, err
	}

	var quads []*rdf.Quad
	for _, graphName := range sortedGraphNames(nodes) {
		var graphTerm rdf.Term = rdf.NewDefaultGraph()
		if graphName != "@default" {
			graphTerm = resourceTerm(graphName)
			if graphTerm == nil {
				s.logger.Debug("skipping graph with relative name", zap.String("graph", graphName))
				continue
			}
		}

		graph := nodes[graphName]
		for _, id := range sortedNodeIDs(graph) {
			subject := resourceTerm(id)
			if subject == nil {
				s.logger.Debug("skipping subject without a usable IRI", zap.String("subject", id))
				continue
			}
			node := graph[id]

			for _, property := range sortedKeys(node) {
				switch {
				case property == "@type":
					for _, t := range asArray(node[property]) {
						str, _ := t.(string)
						if object := resourceTerm(str); object != nil {
							quads = append(quads, rdf.NewQuad(subject, rdf.RDFType, object, graphTerm))
						}
					}
					continue
				case isKeyword(property):
					continue
				case isBlankNodeID(property) && !s.opts.ProduceGeneralizedRdf:
					continue
				}

				predicate := resourceTerm(property)
				if predicate == nil {
					continue
				}

				for _, item := range asArray(node[property]) {
					var extra []*rdf.Quad
					object, err := s.objectToRDF(item, graphTerm, &extra)
					if err != nil {
						return nil, err
					}
					if object != nil {
						quads = append(quads, rdf.NewQuad(subject, predicate, object, graphTerm))
					}
					quads = append(quads, extra...)
				}
			}
		}
	}
	return quads, nil
}

// resourceTerm maps a node identifier to an IRI or blank node term, or nil
// for relative or malformed IRIs.
func resourceTerm(id string) rdf.Term {
	switch {
	case isBlankNodeID(id):
		return rdf.NewBlankNode(id[2:])
	case wellFormedIRI(id):
		return rdf.NewNamedNode(id)
	}
	return nil
}

// objectToRDF converts one expanded value. Lists and compound literals
// append their auxiliary quads to extra.
func (s *session) objectToRDF(item any, graph rdf.Term, extra *[]*rdf.Quad) (rdf.Term, error) {
	m, ok := item.(map[string]any)
	if !ok {
		return nil, nil
	}

	switch classify(m) {
	case kindList:
		return s.listToRDF(asArray(m["@list"]), graph, extra)
	case kindValue:
	default:
		id, _ := m["@id"].(string)
		return resourceTerm(id), nil
	}

	value := m["@value"]
	datatype, _ := m["@type"].(string)
	if datatype != "" && datatype != "@json" && !wellFormedIRI(datatype) {
		return nil, nil
	}
	language, hasLanguage := m["@language"].(string)
	if hasLanguage && !wellFormedLanguage(language) {
		return nil, nil
	}

	var lexical string
	switch v := value.(type) {
	case bool:
		lexical = strconv.FormatBool(v)
		if datatype == "" {
			datatype = rdf.XSDBoolean.IRI
		}
	case float64:
		if datatype == "@json" {
			lexical = canonicalJSON(v)
			break
		}
		if v != math.Trunc(v) || math.Abs(v) >= 1e21 || datatype == rdf.XSDDouble.IRI {
			lexical = canonicalDouble(v)
			if datatype == "" {
				datatype = rdf.XSDDouble.IRI
			}
		} else {
			lexical = canonicalInteger(v)
			if datatype == "" {
				datatype = rdf.XSDInteger.IRI
			}
		}
	case string:
		if datatype == "@json" {
			lexical = canonicalJSON(v)
			break
		}
		lexical = v
	default:
		if datatype != "@json" {
			return nil, nil
		}
		lexical = canonicalJSON(v)
	}
	if datatype == "@json" {
		datatype = rdf.RDFJSON.IRI
	}

	direction, hasDirection := m["@direction"].(string)
	if hasDirection && s.opts.RdfDirection != "" {
		switch s.opts.RdfDirection {
		case RdfDirectionI18NDatatype:
			dt := rdf.I18NBase + strings.ToLower(language) + "_" + direction
			return rdf.NewLiteralWithDatatype(lexical, rdf.NewNamedNode(dt)), nil
		case RdfDirectionCompoundLiteral:
			node := rdf.NewBlankNode(s.issuer.Issue("")[2:])
			*extra = append(*extra, rdf.NewQuad(node, rdf.RDFValue, rdf.NewLiteral(lexical), graph))
			if hasLanguage {
				*extra = append(*extra, rdf.NewQuad(node, rdf.RDFLanguage, rdf.NewLiteral(strings.ToLower(language)), graph))
			}
			*extra = append(*extra, rdf.NewQuad(node, rdf.RDFDirection, rdf.NewLiteral(direction), graph))
			return node, nil
		}
	}

	switch {
	case hasLanguage:
		return rdf.NewLiteralWithLanguage(lexical, language), nil
	case datatype == "":
		return rdf.NewLiteral(lexical), nil
	default:
		return rdf.NewLiteralWithDatatype(lexical, rdf.NewNamedNode(datatype)), nil
	}
}

// listToRDF emits an rdf:first/rdf:rest chain and returns its head
func (s *session) listToRDF(list []any, graph rdf.Term, extra *[]*rdf.Quad) (rdf.Term, error) {
	if len(list) == 0 {
		return rdf.RDFNil, nil
	}

	nodes := make([]*rdf.BlankNode, len(list))
	for i := range list {
		nodes[i] = rdf.NewBlankNode(s.issuer.Issue("")[2:])
	}

	for i, item := range list {
		var nested []*rdf.Quad
		object, err := s.objectToRDF(item, graph, &nested)
		if err != nil {
			return nil, err
		}
		if object != nil {
			*extra = append(*extra, rdf.NewQuad(nodes[i], rdf.RDFFirst, object, graph))
		}
		*extra = append(*extra, nested...)

		var rest rdf.Term = rdf.RDFNil
		if i+1 < len(nodes) {
			rest = nodes[i+1]
		}
		*extra = append(*extra, rdf.NewQuad(nodes[i], rdf.RDFRest, rest, graph))
	}
	return nodes[0], nil
}

// canonicalDouble formats v as an xsd:double canonical lexical form,
// e.g. 1.1E0 or 5.3E-7.
func canonicalDouble(v float64) string {
	formatted := strconv.FormatFloat(v, 'E', 15, 64)
	mantissa, exponent, _ := strings.Cut(formatted, "E")
	if strings.Contains(mantissa, ".") {
		mantissa = strings.TrimRight(mantissa, "0")
		if strings.HasSuffix(mantissa, ".") {
			mantissa += "0"
		}
	}
	exp, err := strconv.Atoi(exponent)
	if err != nil {
		return formatted
	}
	return mantissa + "E" + strconv.Itoa(exp)
}

func canonicalInteger(v float64) string {
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// canonicalJSON serializes v with the JSON Canonicalization Scheme (RFC
// 8785): sorted keys, no insignificant whitespace, ECMAScript numbers.
func canonicalJSON(v any) string {
	var b strings.Builder
	writeCanonicalJSON(&b, v)
	return b.String()
}

func writeCanonicalJSON(b *strings.Builder, v any) {
	switch t := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		b.WriteString(strconv.FormatBool(t))
	case float64:
		// encoding/json formats float64 the way ECMAScript does
		data, err := json.Marshal(t)
		if err != nil {
			b.WriteString("null")
			return
		}
		b.Write(data)
	case string:
		writeCanonicalString(b, t)
	case []any:
		b.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonicalJSON(b, item)
		}
		b.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return lessUTF16(keys[i], keys[j]) })
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonicalString(b, k)
			b.WriteByte(':')
			writeCanonicalJSON(b, t[k])
		}
		b.WriteByte('}')
	}
}

func writeCanonicalString(b *strings.Builder, s string) {
	const hex = "0123456789abcdef"
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				b.WriteString(`\u00`)
				b.WriteByte(hex[r>>4])
				b.WriteByte(hex[r&0xF])
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
}

// lessUTF16 orders strings by UTF-16 code units as RFC 8785 requires
func lessUTF16(a, b string) bool {
	ua, ub := utf16.Encode([]rune(a)), utf16.Encode([]rune(b))
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			return ua[i] < ub[i]
		}
	}
	return len(ua) < len(ub)
}
