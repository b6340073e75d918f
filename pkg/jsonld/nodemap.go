package jsonld

import (
	"reflect"
	"strconv"
)

// IdentifierIssuer hands out fresh blank node labels (_:b0, _:b1, ...) and
// remembers the mapping from labels found in the input.
type IdentifierIssuer struct {
	prefix   string
	counter  int
	existing map[string]string
}

// NewIdentifierIssuer creates an issuer whose labels start with prefix
func NewIdentifierIssuer(prefix string) *IdentifierIssuer {
	return &IdentifierIssuer{prefix: prefix, existing: map[string]string{}}
}

// Issue returns the label for old, minting one on first sight. An empty old
// always mints a new label.
func (i *IdentifierIssuer) Issue(old string) string {
	if old != "" {
		if id, ok := i.existing[old]; ok {
			return id
		}
	}
	id := i.prefix + strconv.Itoa(i.counter)
	i.counter++
	if old != "" {
		i.existing[old] = id
	}
	return id
}

// nodeMap is graph name -> subject -> node object
type nodeMap map[string]map[string]map[string]any

func (m nodeMap) graph(name string) map[string]map[string]any {
	g, ok := m[name]
	if !ok {
		g = map[string]map[string]any{}
		m[name] = g
	}
	return g
}

// generateNodeMap collects every node object of element into nodes, keyed
// by graph and subject, replacing embedded nodes with references and
// relabelling blank nodes through the issuer. activeSubject is either a
// subject id ("" for none) or, under @reverse, the referencing node.
func (s *session) generateNodeMap(element any, nodes nodeMap, activeGraph string, activeSubject any, activeProperty string, list map[string]any) error {
	if arr, ok := element.([]any); ok {
		for _, item := range arr {
			if err := s.generateNodeMap(item, nodes, activeGraph, activeSubject, activeProperty, list); err != nil {
				return err
			}
		}
		return nil
	}

	el, ok := element.(map[string]any)
	if !ok {
		return nil
	}
	graph := nodes.graph(activeGraph)
	var subjectNode map[string]any
	if id, ok := activeSubject.(string); ok && id != "" {
		subjectNode = graph[id]
	}

	if types, has := el["@type"]; has {
		relabelled := make([]any, 0)
		for _, t := range asArray(types) {
			if str, ok := t.(string); ok && isBlankNodeID(str) {
				t = s.issuer.Issue(str)
			}
			relabelled = append(relabelled, t)
		}
		if _, isArr := types.([]any); isArr {
			el["@type"] = relabelled
		} else if len(relabelled) == 1 {
			el["@type"] = relabelled[0]
		}
	}

	switch classify(el) {
	case kindValue:
		if list == nil {
			if subjectNode == nil {
				return nil
			}
			addValue(subjectNode, activeProperty, el, true, false)
		} else {
			list["@list"] = append(asArray(list["@list"]), el)
		}
		return nil

	case kindList:
		result := map[string]any{"@list": []any{}}
		if err := s.generateNodeMap(el["@list"], nodes, activeGraph, activeSubject, activeProperty, result); err != nil {
			return err
		}
		if list == nil {
			if subjectNode == nil {
				return nil
			}
			addValue(subjectNode, activeProperty, result, true, true)
		} else {
			list["@list"] = append(asArray(list["@list"]), result)
		}
		return nil
	}

	id, _ := el["@id"].(string)
	switch {
	case id == "":
		if _, has := el["@id"]; has && el["@id"] != nil {
			return newError(InvalidIDValue, "%s", describe(el["@id"]))
		}
		id = s.issuer.Issue("")
	case isBlankNodeID(id):
		id = s.issuer.Issue(id)
	}

	node, exists := graph[id]
	if !exists {
		node = map[string]any{"@id": id}
		graph[id] = node
	}

	switch subject := activeSubject.(type) {
	case map[string]any:
		addValue(node, activeProperty, subject, true, false)
	default:
		if activeProperty != "" {
			reference := map[string]any{"@id": id}
			switch {
			case list != nil:
				list["@list"] = append(asArray(list["@list"]), reference)
			case subjectNode != nil:
				addValue(subjectNode, activeProperty, reference, true, false)
			}
		}
	}

	if types, has := el["@type"]; has {
		addValue(node, "@type", asArray(types), true, false)
	}

	if idx, has := el["@index"]; has {
		if existing, ok := node["@index"]; ok && !reflect.DeepEqual(existing, idx) {
			return newError(ConflictingIndexes, "node %s has indexes %s and %s", id, describe(existing), describe(idx))
		}
		node["@index"] = idx
	}

	if rev, has := el["@reverse"].(map[string]any); has {
		referenced := map[string]any{"@id": id}
		for _, property := range sortedKeys(rev) {
			for _, value := range asArray(rev[property]) {
				if err := s.generateNodeMap(value, nodes, activeGraph, referenced, property, nil); err != nil {
					return err
				}
			}
		}
	}

	if g, has := el["@graph"]; has {
		if err := s.generateNodeMap(g, nodes, id, "", "", nil); err != nil {
			return err
		}
	}

	if inc, has := el["@included"]; has {
		if err := s.generateNodeMap(inc, nodes, activeGraph, "", "", nil); err != nil {
			return err
		}
	}

	for _, property := range sortedKeys(el) {
		switch property {
		case "@id", "@type", "@index", "@reverse", "@graph", "@included":
			continue
		}
		value := el[property]
		if isBlankNodeID(property) {
			property = s.issuer.Issue(property)
		}
		if _, has := node[property]; !has {
			node[property] = []any{}
		}
		if err := s.generateNodeMap(value, nodes, activeGraph, id, property, nil); err != nil {
			return err
		}
	}
	return nil
}

// mergeNodeMaps folds every graph into a single @merged graph
func mergeNodeMaps(nodes nodeMap) map[string]map[string]any {
	merged := map[string]map[string]any{}
	for _, graphName := range sortedGraphNames(nodes) {
		graph := nodes[graphName]
		for _, id := range sortedNodeIDs(graph) {
			node := graph[id]
			target, ok := merged[id]
			if !ok {
				target = map[string]any{"@id": id}
				merged[id] = target
			}
			for _, property := range sortedKeys(node) {
				switch property {
				case "@id":
					continue
				case "@type":
					addValue(target, property, cloneValue(node[property]), true, false)
				default:
					if isKeyword(property) {
						target[property] = cloneValue(node[property])
						continue
					}
					addValue(target, property, cloneValue(node[property]), true, false)
				}
			}
		}
	}
	return merged
}

func sortedGraphNames(nodes nodeMap) []string {
	names := make([]string, 0, len(nodes))
	for name := range nodes {
		names = append(names, name)
	}
	sortSubjects(names)
	return names
}

func sortedNodeIDs(graph map[string]map[string]any) []string {
	ids := make([]string, 0, len(graph))
	for id := range graph {
		ids = append(ids, id)
	}
	sortSubjects(ids)
	return ids
}
