package jsonld

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"regexp"
	"sort"
	"strings"
)

var keywords = map[string]bool{
	"@base":        true,
	"@container":   true,
	"@context":     true,
	"@default":     true,
	"@direction":   true,
	"@embed":       true,
	"@explicit":    true,
	"@graph":       true,
	"@id":          true,
	"@import":      true,
	"@included":    true,
	"@index":       true,
	"@json":        true,
	"@language":    true,
	"@list":        true,
	"@nest":        true,
	"@none":        true,
	"@omitDefault": true,
	"@prefix":      true,
	"@preserve":    true,
	"@propagate":   true,
	"@protected":   true,
	"@requireAll":  true,
	"@reverse":     true,
	"@set":         true,
	"@type":        true,
	"@value":       true,
	"@version":     true,
	"@vocab":       true,
}

var keywordForm = regexp.MustCompile(`^@[a-zA-Z]+$`)

func isKeyword(s string) bool {
	return keywords[s]
}

// looksLikeKeyword reports strings of the form "@" ALPHA+ that are not
// keywords. Processors ignore them.
func looksLikeKeyword(s string) bool {
	return keywordForm.MatchString(s) && !keywords[s]
}

// ParseJSON decodes a JSON document into the generic tree used by the
// algorithms. Numbers become float64.
func ParseJSON(r io.Reader) (any, error) {
	dec := json.NewDecoder(r)
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, wrapError(LoadingDocumentFailed, err, "invalid JSON")
	}
	if dec.More() {
		return nil, newError(LoadingDocumentFailed, "trailing data after JSON document")
	}
	return v, nil
}

// normalize converts any Go value into the canonical JSON tree: maps with
// string keys, []any, string, float64, bool and nil.
func normalize(v any) (any, error) {
	switch t := v.(type) {
	case nil, string, bool, float64:
		return t, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			n, err := normalize(item)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			n, err := normalize(item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, wrapError(InvalidInput, err, "invalid number %q", t.String())
		}
		return f, nil
	case int:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case uint:
		return float64(t), nil
	case uint32:
		return float64(t), nil
	case uint64:
		return float64(t), nil
	case float32:
		return float64(t), nil
	case json.RawMessage:
		return ParseJSON(strings.NewReader(string(t)))
	}

	// Structs, typed maps and slices go through encoding/json.
	data, err := json.Marshal(v)
	if err != nil {
		return nil, wrapError(InvalidInput, err, "cannot encode %T as JSON", v)
	}
	return ParseJSON(strings.NewReader(string(data)))
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func asArray(v any) []any {
	if v == nil {
		return []any{}
	}
	if arr, ok := v.([]any); ok {
		return arr
	}
	return []any{v}
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, float64:
		return true
	}
	return false
}

func isEmptyMap(v any) bool {
	m, ok := v.(map[string]any)
	return ok && len(m) == 0
}

// Object kinds, decided once per object by classify.
type objectKind int

const (
	kindNone objectKind = iota
	kindNode
	kindValue
	kindList
	kindSet
	kindGraph
)

func classify(v any) objectKind {
	m, ok := v.(map[string]any)
	if !ok {
		return kindNone
	}
	if _, ok := m["@value"]; ok {
		return kindValue
	}
	if _, ok := m["@list"]; ok {
		return kindList
	}
	if _, ok := m["@set"]; ok {
		return kindSet
	}
	if _, ok := m["@graph"]; ok {
		for k := range m {
			if k != "@graph" && k != "@id" && k != "@index" {
				return kindNode
			}
		}
		return kindGraph
	}
	return kindNode
}

func isValueObject(v any) bool { return classify(v) == kindValue }
func isListObject(v any) bool  { return classify(v) == kindList }
func isGraphObject(v any) bool { return classify(v) == kindGraph }

func isNodeReference(v any) bool {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return false
	}
	_, ok = m["@id"]
	return ok
}

func isNodeObject(v any) bool {
	return classify(v) == kindNode
}

func isBlankNodeID(s string) bool {
	return strings.HasPrefix(s, "_:")
}

// sameValue compares property values the way merges do: value objects by
// their literal parts, node objects by @id, everything else structurally.
// Lists never compare equal.
func sameValue(a, b any) bool {
	if isListObject(a) || isListObject(b) {
		return false
	}
	ma, aok := a.(map[string]any)
	mb, bok := b.(map[string]any)
	if !aok || !bok {
		return reflect.DeepEqual(a, b)
	}
	if isValueObject(ma) && isValueObject(mb) {
		for _, k := range []string{"@type", "@language", "@direction", "@index"} {
			if !reflect.DeepEqual(ma[k], mb[k]) {
				return false
			}
		}
		return reflect.DeepEqual(ma["@value"], mb["@value"])
	}
	ida, aok := ma["@id"].(string)
	idb, bok := mb["@id"].(string)
	if aok && bok {
		return ida == idb
	}
	return false
}

func containsValue(values []any, v any) bool {
	for _, item := range values {
		if sameValue(item, v) {
			return true
		}
	}
	return false
}

// addValue appends value under property. A slice value is spread. With
// asArray the entry is always an array; without allowDuplicate values
// already present are skipped.
func addValue(subject map[string]any, property string, value any, asArray, allowDuplicate bool) {
	if arr, ok := value.([]any); ok {
		if len(arr) == 0 && asArray {
			if _, exists := subject[property]; !exists {
				subject[property] = []any{}
			}
		}
		for _, item := range arr {
			addValue(subject, property, item, asArray, allowDuplicate)
		}
		return
	}

	existing, exists := subject[property]
	if !exists {
		if asArray {
			subject[property] = []any{value}
		} else {
			subject[property] = value
		}
		return
	}

	values, isArr := existing.([]any)
	if !isArr {
		values = []any{existing}
	}
	if !allowDuplicate && containsValue(values, value) {
		subject[property] = values
		if !isArr && !asArray {
			subject[property] = existing
		}
		return
	}
	subject[property] = append(values, value)
}

// lessSubject orders IRIs before blank node identifiers, then by string.
func lessSubject(a, b string) bool {
	ab, bb := isBlankNodeID(a), isBlankNodeID(b)
	if ab != bb {
		return !ab
	}
	return a < b
}

func sortSubjects(ids []string) {
	sort.Slice(ids, func(i, j int) bool { return lessSubject(ids[i], ids[j]) })
}

func describe(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	if len(data) > 80 {
		return string(data[:77]) + "..."
	}
	return string(data)
}
