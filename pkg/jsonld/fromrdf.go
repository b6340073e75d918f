package jsonld

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/aleksaelezovic/jsonld/pkg/rdf"
)

var (
	integerLexical = regexp.MustCompile(`^[+-]?[0-9]+$`)
	doubleLexical  = regexp.MustCompile(`^(\+|-)?([0-9]+(\.[0-9]*)?|\.[0-9]+)([Ee](\+|-)?[0-9]+)?$`)
)

// usage records where a blank node or rdf:nil is referenced: the value
// map stored under property of node.
type usage struct {
	node     map[string]any
	property string
	value    map[string]any
}

// rdfGraph keeps node objects together with their first-seen order.
// references counts blank node objects over the whole dataset and is
// shared by every graph of one conversion.
type rdfGraph struct {
	nodes      map[string]map[string]any
	order      []string
	usages     map[string][]usage
	references map[string]int
}

func newRDFGraph(references map[string]int) *rdfGraph {
	return &rdfGraph{
		nodes:      map[string]map[string]any{},
		usages:     map[string][]usage{},
		references: references,
	}
}

func (g *rdfGraph) node(id string) map[string]any {
	n, ok := g.nodes[id]
	if !ok {
		n = map[string]any{"@id": id}
		g.nodes[id] = n
		g.order = append(g.order, id)
	}
	return n
}

func (g *rdfGraph) ids(ordered bool) []string {
	ids := make([]string, 0, len(g.order))
	for _, id := range g.order {
		if _, ok := g.nodes[id]; ok {
			ids = append(ids, id)
		}
	}
	if ordered {
		sort.Strings(ids)
	}
	return ids
}

func termID(t rdf.Term) string {
	switch v := t.(type) {
	case *rdf.NamedNode:
		return v.IRI
	case *rdf.BlankNode:
		return "_:" + v.ID
	}
	return ""
}

// fromRDF builds expanded JSON-LD from quads
func (s *session) fromRDF(quads []*rdf.Quad) ([]any, error) {
	references := map[string]int{}
	graphs := map[string]*rdfGraph{"@default": newRDFGraph(references)}
	graphOrder := []string{"@default"}
	defaultGraph := graphs["@default"]
	compoundLiterals := map[string]map[string]bool{}

	for _, quad := range quads {
		if err := s.ctx.Err(); err != nil {
			return nil, err
		}
		name := "@default"
		if !quad.InDefaultGraph() {
			name = termID(quad.Graph)
		}
		graph, ok := graphs[name]
		if !ok {
			graph = newRDFGraph(references)
			graphs[name] = graph
			graphOrder = append(graphOrder, name)
		}
		if name != "@default" {
			defaultGraph.node(name)
		}

		subject := termID(quad.Subject)
		predicate := termID(quad.Predicate)
		if subject == "" || predicate == "" {
			continue
		}
		node := graph.node(subject)

		if s.opts.RdfDirection == RdfDirectionCompoundLiteral && predicate == rdf.RDFDirection.IRI {
			if compoundLiterals[name] == nil {
				compoundLiterals[name] = map[string]bool{}
			}
			compoundLiterals[name][subject] = true
		}

		objectID := termID(quad.Object)
		if objectID != "" {
			graph.node(objectID)
			if predicate == rdf.RDFType.IRI && !s.opts.UseRdfType {
				if isBlankNodeID(objectID) && !containsValue(asArray(node["@type"]), objectID) {
					references[objectID]++
				}
				addValue(node, "@type", objectID, true, false)
				continue
			}
		}

		value, err := s.rdfToObject(quad.Object)
		if err != nil {
			return nil, err
		}
		if existing, has := node[predicate]; has && containsValue(asArray(existing), value) {
			continue
		}
		addValue(node, predicate, value, true, true)
		if isBlankNodeID(objectID) {
			references[objectID]++
		}

		if objectID == rdf.RDFNil.IRI || isBlankNodeID(objectID) {
			graph.usages[objectID] = append(graph.usages[objectID], usage{node: node, property: predicate, value: value})
		}
	}

	for _, name := range graphOrder {
		graph := graphs[name]
		for cl := range compoundLiterals[name] {
			s.foldCompoundLiteral(graph, cl)
		}
		s.convertLists(graph)
	}

	result := []any{}
	for _, id := range defaultGraph.ids(s.opts.Ordered) {
		node := defaultGraph.nodes[id]
		if named, ok := graphs[id]; ok && id != "@default" {
			members := []any{}
			for _, member := range named.ids(s.opts.Ordered) {
				n := named.nodes[member]
				if isNodeReference(n) {
					continue
				}
				members = append(members, n)
			}
			node["@graph"] = members
		}
		if isNodeReference(node) {
			continue
		}
		result = append(result, node)
	}
	return result, nil
}

// foldCompoundLiteral replaces references to a compound literal node
// with the value object it describes.
func (s *session) foldCompoundLiteral(graph *rdfGraph, id string) {
	node, ok := graph.nodes[id]
	if !ok {
		return
	}
	value, _ := firstValue(node, rdf.RDFValue.IRI)["@value"]
	language, _ := firstValue(node, rdf.RDFLanguage.IRI)["@value"].(string)
	direction, _ := firstValue(node, rdf.RDFDirection.IRI)["@value"].(string)

	for _, use := range graph.usages[id] {
		delete(use.value, "@id")
		use.value["@value"] = value
		if language != "" {
			use.value["@language"] = language
		}
		if direction != "" {
			use.value["@direction"] = direction
		}
	}
	delete(graph.nodes, id)
	delete(graph.usages, id)
}

func firstValue(node map[string]any, property string) map[string]any {
	values := asArray(node[property])
	if len(values) == 0 {
		return map[string]any{}
	}
	m, _ := values[0].(map[string]any)
	return m
}

// convertLists turns well-formed rdf:first/rdf:rest chains ending in
// rdf:nil into list objects, walking each chain back from its end. A chain
// whose head sits in another list's rdf:first becomes a nested list.
// Anything irregular stays as node objects.
func (s *session) convertLists(graph *rdfGraph) {
	if _, ok := graph.nodes[rdf.RDFNil.IRI]; !ok {
		return
	}

	for _, use := range graph.usages[rdf.RDFNil.IRI] {
		node, property, head := use.node, use.property, use.value
		var list []any
		var listNodes []string

		for property == rdf.RDFRest.IRI && s.wellFormedListNode(graph, node) {
			list = append(list, asArray(node[rdf.RDFFirst.IRI])[0])
			id, _ := node["@id"].(string)
			listNodes = append(listNodes, id)

			next := graph.usages[id][0]
			node, property, head = next.node, next.property, next.value
			if nextID, _ := node["@id"].(string); !isBlankNodeID(nextID) {
				break
			}
		}

		delete(head, "@id")
		for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
			list[i], list[j] = list[j], list[i]
		}
		head["@list"] = append([]any{}, list...)
		for _, id := range listNodes {
			delete(graph.nodes, id)
		}
	}
}

// wellFormedListNode reports a blank node referenced exactly once in the
// whole dataset whose only properties are one rdf:first, one rdf:rest and
// optionally @type rdf:List.
func (s *session) wellFormedListNode(graph *rdfGraph, node map[string]any) bool {
	id, _ := node["@id"].(string)
	if !isBlankNodeID(id) || len(graph.usages[id]) != 1 || graph.references[id] != 1 {
		return false
	}
	for key, value := range node {
		switch key {
		case "@id":
		case rdf.RDFFirst.IRI, rdf.RDFRest.IRI:
			if len(asArray(value)) != 1 {
				return false
			}
		case "@type":
			types := asArray(value)
			if len(types) != 1 || types[0] != rdf.RDFList.IRI {
				return false
			}
		default:
			return false
		}
	}
	_, hasFirst := node[rdf.RDFFirst.IRI]
	_, hasRest := node[rdf.RDFRest.IRI]
	if !hasFirst || !hasRest {
		s.logger.Debug("leaving malformed list node", zap.String("node", id))
		return false
	}
	return true
}

// rdfToObject converts an RDF term into an expanded value
func (s *session) rdfToObject(term rdf.Term) (map[string]any, error) {
	lit, ok := term.(*rdf.Literal)
	if !ok {
		return map[string]any{"@id": termID(term)}, nil
	}

	result := map[string]any{}
	var converted any = lit.Value
	datatype := lit.DatatypeIRI()
	typ := ""

	switch {
	case s.opts.UseNativeTypes && datatype == rdf.XSDString.IRI:
	case s.opts.UseNativeTypes && datatype == rdf.XSDBoolean.IRI:
		switch lit.Value {
		case "true":
			converted = true
		case "false":
			converted = false
		default:
			typ = datatype
		}
	case s.opts.UseNativeTypes && (datatype == rdf.XSDInteger.IRI && integerLexical.MatchString(lit.Value) ||
		datatype == rdf.XSDDouble.IRI && doubleLexical.MatchString(lit.Value)):
		f, err := strconv.ParseFloat(lit.Value, 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			typ = datatype
		} else {
			converted = f
		}
	case s.opts.RdfDirection == RdfDirectionI18NDatatype && strings.HasPrefix(datatype, rdf.I18NBase):
		language, direction, _ := strings.Cut(datatype[len(rdf.I18NBase):], "_")
		if language != "" {
			result["@language"] = language
		}
		if direction != "" {
			result["@direction"] = direction
		}
	case lit.Language != "":
		result["@language"] = lit.Language
		if lit.Direction != "" {
			result["@direction"] = lit.Direction
		}
	case datatype == rdf.RDFJSON.IRI && !s.opts.is10():
		parsed, err := ParseJSON(strings.NewReader(lit.Value))
		if err != nil {
			return nil, wrapError(InvalidJSONLiteral, err, "%q", lit.Value)
		}
		converted = parsed
		typ = "@json"
	case datatype != rdf.XSDString.IRI:
		typ = datatype
	}

	result["@value"] = converted
	if typ != "" {
		result["@type"] = typ
	}
	return result, nil
}
