package jsonld

// flatten collapses expanded input into a single array of top-level node
// objects. Named graphs are attached to the default-graph node of the same
// id under @graph.
func (s *session) flatten(expanded []any) ([]any, error) {
	nodes := nodeMap{"@default": {}}
	if err := s.generateNodeMap(expanded, nodes, "@default", "", "", nil); err != nil {
		return nil, err
	}

	defaultGraph := nodes["@default"]
	for _, graphName := range sortedGraphNames(nodes) {
		if graphName == "@default" {
			continue
		}
		entry, ok := defaultGraph[graphName]
		if !ok {
			entry = map[string]any{"@id": graphName}
			defaultGraph[graphName] = entry
		}
		graph := nodes[graphName]
		members := make([]any, 0, len(graph))
		for _, id := range sortedNodeIDs(graph) {
			node := graph[id]
			if isNodeReference(node) {
				continue
			}
			members = append(members, node)
		}
		entry["@graph"] = members
	}

	flattened := make([]any, 0, len(defaultGraph))
	for _, id := range sortedNodeIDs(defaultGraph) {
		node := defaultGraph[id]
		if isNodeReference(node) {
			continue
		}
		flattened = append(flattened, node)
	}
	return flattened, nil
}
