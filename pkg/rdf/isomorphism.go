package rdf

import (
	"sort"
	"strings"
)

// AreQuadsIsomorphic checks if two quad sets describe the same dataset,
// accounting for blank node label differences in subjects, objects and
// graph names. Duplicate quads are ignored (datasets are sets).
func AreQuadsIsomorphic(expected, actual []*Quad) bool {
	expected = dedupeQuads(expected)
	actual = dedupeQuads(actual)

	if len(expected) != len(actual) {
		return false
	}

	expectedBlanks := extractBlankNodeLabels(expected)
	actualBlanks := extractBlankNodeLabels(actual)
	if len(expectedBlanks) != len(actualBlanks) {
		return false
	}

	if len(expectedBlanks) == 0 {
		return verifyMapping(expected, actual, nil)
	}

	expectedDegrees := blankDegrees(expected)
	actualDegrees := blankDegrees(actual)

	// match highly connected nodes first
	sort.SliceStable(expectedBlanks, func(i, j int) bool {
		return expectedDegrees[expectedBlanks[i]] > expectedDegrees[expectedBlanks[j]]
	})

	actualKeys := make(map[string]bool, len(actual))
	for _, quad := range actual {
		actualKeys[quadKey(quad, nil)] = true
	}

	m := &isoMatcher{
		expected:        expected,
		actualKeys:      actualKeys,
		expectedBlanks:  expectedBlanks,
		actualBlanks:    actualBlanks,
		expectedDegrees: expectedDegrees,
		actualDegrees:   actualDegrees,
		mapping:         make(map[string]string),
		usedTargets:     make(map[string]bool),
	}
	return m.backtrack(0)
}

type isoMatcher struct {
	expected        []*Quad
	actualKeys      map[string]bool
	expectedBlanks  []string
	actualBlanks    []string
	expectedDegrees map[string]int
	actualDegrees   map[string]int
	mapping         map[string]string
	usedTargets     map[string]bool
}

// backtrack recursively tries to find a valid mapping between blank nodes
func (m *isoMatcher) backtrack(index int) bool {
	if index == len(m.expectedBlanks) {
		return m.consistent()
	}

	current := m.expectedBlanks[index]
	for _, candidate := range m.actualBlanks {
		if m.usedTargets[candidate] || m.expectedDegrees[current] != m.actualDegrees[candidate] {
			continue
		}

		m.mapping[current] = candidate
		m.usedTargets[candidate] = true

		if m.consistent() && m.backtrack(index+1) {
			return true
		}

		delete(m.mapping, current)
		delete(m.usedTargets, candidate)
	}

	return false
}

// consistent checks every expected quad whose blank nodes are all mapped
func (m *isoMatcher) consistent() bool {
	for _, quad := range m.expected {
		if !isMapped(quad.Subject, m.mapping) || !isMapped(quad.Object, m.mapping) || !isMapped(quad.Graph, m.mapping) {
			continue
		}
		if !m.actualKeys[quadKey(quad, m.mapping)] {
			return false
		}
	}
	return true
}

func isMapped(term Term, mapping map[string]string) bool {
	if b, ok := term.(*BlankNode); ok {
		_, exists := mapping[b.ID]
		return exists
	}
	return true
}

func dedupeQuads(quads []*Quad) []*Quad {
	seen := make(map[string]bool, len(quads))
	result := make([]*Quad, 0, len(quads))
	for _, quad := range quads {
		key := quadKey(quad, nil)
		if seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, quad)
	}
	return result
}

// extractBlankNodeLabels extracts all unique blank node labels, sorted
func extractBlankNodeLabels(quads []*Quad) []string {
	blanks := make(map[string]bool)
	for _, quad := range quads {
		for _, term := range []Term{quad.Subject, quad.Object, quad.Graph} {
			if b, ok := term.(*BlankNode); ok {
				blanks[b.ID] = true
			}
		}
	}

	result := make([]string, 0, len(blanks))
	for label := range blanks {
		result = append(result, label)
	}
	sort.Strings(result)
	return result
}

// blankDegrees counts in how many positions each blank node occurs
func blankDegrees(quads []*Quad) map[string]int {
	degrees := make(map[string]int)
	for _, quad := range quads {
		for _, term := range []Term{quad.Subject, quad.Object, quad.Graph} {
			if b, ok := term.(*BlankNode); ok {
				degrees[b.ID]++
			}
		}
	}
	return degrees
}

// verifyMapping checks that mapped expected quads equal the actual quads
func verifyMapping(expected, actual []*Quad, mapping map[string]string) bool {
	actualSet := make(map[string]bool, len(actual))
	for _, quad := range actual {
		actualSet[quadKey(quad, nil)] = true
	}
	for _, quad := range expected {
		if !actualSet[quadKey(quad, mapping)] {
			return false
		}
	}
	return len(expected) == len(actual)
}

// quadKey creates a string key for a quad, applying blank node mapping if provided
func quadKey(quad *Quad, mapping map[string]string) string {
	graph := "DEFAULT"
	if !quad.InDefaultGraph() {
		graph = termString(quad.Graph, mapping)
	}
	return strings.Join([]string{
		termString(quad.Subject, mapping),
		termString(quad.Predicate, mapping),
		termString(quad.Object, mapping),
		graph,
	}, "|")
}

// termString converts a term to string, applying blank node mapping if applicable
func termString(term Term, mapping map[string]string) string {
	if b, ok := term.(*BlankNode); ok && mapping != nil {
		if mapped, exists := mapping[b.ID]; exists {
			return "_:" + mapped
		}
	}
	if lit, ok := term.(*Literal); ok {
		// language tags compare case-insensitively
		normalized := *lit
		normalized.Language = strings.ToLower(lit.Language)
		normalized.Datatype = NewNamedNode(lit.DatatypeIRI())
		return normalized.String()
	}
	return term.String()
}
