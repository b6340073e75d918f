package testsuite

import (
	"bytes"
	"encoding/json"

	"github.com/google/go-cmp/cmp"

	"github.com/aleksaelezovic/jsonld/pkg/jsonld"
)

// JSONEqual compares two JSON trees. Arrays match as multisets except the
// values of @list entries, whose order is significant.
func JSONEqual(expected, actual any) bool {
	return equalJSON(expected, actual, false)
}

func equalJSON(a, b any, ordered bool) bool {
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			w, has := bv[k]
			if !has || !equalJSON(v, w, k == "@list") {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		if ordered {
			for i := range av {
				if !equalJSON(av[i], bv[i], false) {
					return false
				}
			}
			return true
		}
		used := make([]bool, len(bv))
		for _, v := range av {
			found := false
			for j, w := range bv {
				if !used[j] && equalJSON(v, w, false) {
					used[j] = true
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	default:
		return cmp.Equal(a, b)
	}
}

// canonicalTree converts any processor result to the generic JSON tree so
// it compares against a parsed expected file
func canonicalTree(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonld.ParseJSON(bytes.NewReader(data))
}

// diff describes how actual departs from expected
func diff(expected, actual any) string {
	return cmp.Diff(expected, actual)
}
