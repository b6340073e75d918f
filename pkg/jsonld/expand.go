package jsonld

import (
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
)

var languageTag = regexp.MustCompile(`^[a-zA-Z]{1,8}(-[a-zA-Z0-9]{1,8})*$`)

func wellFormedLanguage(tag string) bool {
	return languageTag.MatchString(tag)
}

type scopedKey struct {
	active    *Context
	def       *TermDefinition
	override  bool
	propagate bool
}

// scopedContext applies the local context of def to active. Results are
// memoized per call since snapshots and definitions are immutable.
func (s *session) scopedContext(active *Context, def *TermDefinition, override, propagate bool) (*Context, error) {
	key := scopedKey{active: active, def: def, override: override, propagate: propagate}
	if c, ok := s.scoped[key]; ok {
		return c, nil
	}
	c, err := s.processContext(active, def.Context, def.BaseURL, nil, override, propagate, true)
	if err != nil {
		return nil, err
	}
	s.scoped[key] = c
	return c, nil
}

// expandDocument runs expansion over a whole document and normalizes the
// result to an array.
func (s *session) expandDocument(active *Context, document any, baseURL string, frameExpansion bool) ([]any, error) {
	expanded, err := s.expand(active, "", document, baseURL, frameExpansion, false)
	if err != nil {
		return nil, err
	}
	if m, ok := expanded.(map[string]any); ok && len(m) == 1 {
		if g, has := m["@graph"]; has {
			expanded = g
		}
	}
	if expanded == nil {
		return []any{}, nil
	}
	return asArray(expanded), nil
}

// expand is the recursive expansion step. activeProperty "" stands for null.
func (s *session) expand(active *Context, activeProperty string, element any, baseURL string, frameExpansion, fromMap bool) (any, error) {
	if element == nil {
		return nil, nil
	}
	if err := s.ctx.Err(); err != nil {
		return nil, err
	}
	if activeProperty == "@default" {
		frameExpansion = false
	}
	propertyDef := active.terms[activeProperty]

	switch el := element.(type) {
	case []any:
		out := make([]any, 0, len(el))
		listContainer := propertyDef.HasContainer("@list")
		for _, item := range el {
			e, err := s.expand(active, activeProperty, item, baseURL, frameExpansion, fromMap)
			if err != nil {
				return nil, err
			}
			if arr, ok := e.([]any); ok {
				if listContainer {
					return nil, newError(ListOfLists, "nested array under list property %q", activeProperty)
				}
				out = append(out, arr...)
				continue
			}
			if listContainer && isListObject(e) {
				return nil, newError(ListOfLists, "list object inside list property %q", activeProperty)
			}
			if e != nil {
				out = append(out, e)
			}
		}
		return out, nil

	case map[string]any:
		return s.expandMap(active, propertyDef, activeProperty, el, baseURL, frameExpansion, fromMap)

	default:
		if activeProperty == "" || activeProperty == "@graph" {
			s.logger.Debug("dropping free-floating scalar", zap.Any("value", el))
			return nil, nil
		}
		if propertyDef != nil && propertyDef.HasContext {
			var err error
			if active, err = s.scopedContext(active, propertyDef, true, true); err != nil {
				return nil, err
			}
		}
		return s.expandValue(active, activeProperty, el), nil
	}
}

func (s *session) expandMap(active *Context, propertyDef *TermDefinition, activeProperty string, el map[string]any, baseURL string, frameExpansion, fromMap bool) (any, error) {
	var err error

	if active.previous != nil && !fromMap {
		revert := true
		for k := range el {
			switch s.mustExpandIRI(active, k, false, true) {
			case "@value":
				revert = false
			case "@id":
				if len(el) == 1 {
					revert = false
				}
			}
		}
		if revert {
			active = active.previous
		}
	}

	if propertyDef != nil && propertyDef.HasContext {
		if active, err = s.scopedContext(active, propertyDef, true, true); err != nil {
			return nil, err
		}
	}

	if local, has := el["@context"]; has {
		if active, err = s.processContext(active, local, baseURL, nil, false, true, true); err != nil {
			return nil, err
		}
	}

	typeScoped := active
	inputType := ""
	firstType := true
	for _, key := range sortedKeys(el) {
		if s.mustExpandIRI(active, key, false, true) != "@type" {
			continue
		}
		var types []string
		for _, t := range asArray(el[key]) {
			if str, ok := t.(string); ok {
				types = append(types, str)
			}
		}
		if firstType && len(types) > 0 {
			inputType = types[len(types)-1]
		}
		firstType = false
		sort.Strings(types)
		for _, t := range types {
			if td := typeScoped.terms[t]; td != nil && td.HasContext {
				if active, err = s.scopedContext(active, td, false, false); err != nil {
					return nil, err
				}
			}
		}
	}
	if inputType != "" {
		inputType = s.mustExpandIRI(active, inputType, false, true)
	}

	result := map[string]any{}
	if err := s.expandObject(active, typeScoped, activeProperty, el, result, baseURL, inputType, frameExpansion); err != nil {
		return nil, err
	}

	var out any = result

	if v, has := result["@value"]; has {
		for k := range result {
			switch k {
			case "@direction", "@index", "@language", "@type", "@value":
			default:
				return nil, newError(InvalidValueObject, "unexpected entry %q in value object", k)
			}
		}
		_, hasLang := result["@language"]
		_, hasDir := result["@direction"]
		t, hasType := result["@type"]
		if hasType && (hasLang || hasDir) {
			return nil, newError(InvalidValueObject, "value object with both @type and @language or @direction")
		}
		switch {
		case t == "@json":
		case v == nil:
			return nil, nil
		case frameExpansion:
		case hasLang:
			if _, ok := v.(string); !ok {
				return nil, newError(InvalidLanguageTaggedValue, "%s", describe(v))
			}
		case hasType:
			ts, ok := t.(string)
			if !ok || !wellFormedIRI(ts) {
				return nil, newError(InvalidTypedValue, "%s", describe(t))
			}
		}
		if !isScalar(v) && t != "@json" && !frameExpansion {
			return nil, newError(InvalidValueObjectValue, "%s", describe(v))
		}
	} else if t, has := result["@type"]; has {
		if _, isArr := t.([]any); !isArr {
			result["@type"] = []any{t}
		}
	} else if classify(result) == kindList || classify(result) == kindSet {
		_, hasSet := result["@set"]
		_, hasIndex := result["@index"]
		if len(result) > 2 || (len(result) == 2 && !hasIndex) {
			return nil, newError(InvalidSetOrListObject, "unexpected entries next to @set or @list")
		}
		if hasSet {
			out = result["@set"]
		}
	}

	m, isMap := out.(map[string]any)
	if isMap && len(m) == 1 {
		if _, onlyLang := m["@language"]; onlyLang {
			return nil, nil
		}
	}

	if activeProperty == "" || activeProperty == "@graph" {
		if isMap {
			_, hasValue := m["@value"]
			_, hasList := m["@list"]
			_, hasID := m["@id"]
			switch {
			case len(m) == 0 && !frameExpansion:
				return nil, nil
			case hasValue || hasList:
				return nil, nil
			case len(m) == 1 && hasID && !frameExpansion:
				return nil, nil
			}
		}
	}

	return out, nil
}

// expandObject expands the entries of el into result. Nested properties
// recurse with the same result map.
func (s *session) expandObject(active, typeScoped *Context, activeProperty string, el, result map[string]any, baseURL, inputType string, frameExpansion bool) error {
	var nests []string

	for _, key := range sortedKeys(el) {
		value := el[key]
		if key == "@context" {
			continue
		}

		expandedProperty := s.mustExpandIRI(active, key, false, true)
		if expandedProperty == "" || (!strings.Contains(expandedProperty, ":") && !isKeyword(expandedProperty)) {
			s.logger.Debug("dropping unmapped key", zap.String("key", key))
			continue
		}

		if isKeyword(expandedProperty) {
			if activeProperty == "@reverse" {
				return newError(InvalidReversePropertyMap, "keyword %q inside @reverse", key)
			}
			if _, exists := result[expandedProperty]; exists {
				if active.is10() || (expandedProperty != "@included" && expandedProperty != "@type") {
					return newError(CollidingKeywords, "%s", expandedProperty)
				}
			}

			var expandedValue any
			switch expandedProperty {
			case "@id":
				switch v := value.(type) {
				case string:
					iri := s.mustExpandIRI(active, v, true, false)
					if iri == "" {
						// keyword-like identifiers expand to null but keep the entry
						result["@id"] = nil
						continue
					}
					expandedValue = iri
					if frameExpansion {
						expandedValue = []any{iri}
					}
				case map[string]any:
					if !frameExpansion || len(v) != 0 {
						return newError(InvalidIDValue, "%s", describe(v))
					}
					expandedValue = []any{map[string]any{}}
				case []any:
					if !frameExpansion {
						return newError(InvalidIDValue, "%s", describe(v))
					}
					ids := make([]any, 0, len(v))
					for _, item := range v {
						str, ok := item.(string)
						if !ok {
							return newError(InvalidIDValue, "%s", describe(item))
						}
						ids = append(ids, s.mustExpandIRI(active, str, true, false))
					}
					expandedValue = ids
				default:
					return newError(InvalidIDValue, "%s", describe(value))
				}

			case "@type":
				switch v := value.(type) {
				case string:
					if iri := s.mustExpandIRI(typeScoped, v, true, true); iri != "" {
						expandedValue = iri
					}
				case []any:
					types := make([]any, 0, len(v))
					for _, item := range v {
						str, ok := item.(string)
						if !ok {
							if frameExpansion && isEmptyMap(item) {
								types = append(types, map[string]any{})
								continue
							}
							return newError(InvalidTypeValue, "%s", describe(item))
						}
						if iri := s.mustExpandIRI(typeScoped, str, true, true); iri != "" {
							types = append(types, iri)
						}
					}
					expandedValue = types
				case map[string]any:
					switch {
					case frameExpansion && len(v) == 0:
						expandedValue = v
					case frameExpansion && len(v) == 1 && v["@default"] != nil:
						d, ok := v["@default"].(string)
						if !ok {
							return newError(InvalidTypeValue, "%s", describe(v))
						}
						expandedValue = map[string]any{"@default": s.mustExpandIRI(typeScoped, d, true, true)}
					default:
						return newError(InvalidTypeValue, "%s", describe(v))
					}
				default:
					return newError(InvalidTypeValue, "%s", describe(value))
				}
				if existing, has := result["@type"]; has {
					expandedValue = append(append([]any{}, asArray(existing)...), asArray(expandedValue)...)
				}

			case "@graph":
				ev, err := s.expand(active, "@graph", value, baseURL, frameExpansion, false)
				if err != nil {
					return err
				}
				expandedValue = asArray(ev)

			case "@included":
				if active.is10() {
					continue
				}
				ev, err := s.expand(active, "@included", value, baseURL, frameExpansion, false)
				if err != nil {
					return err
				}
				included := asArray(ev)
				for _, item := range included {
					if !isNodeObject(item) {
						return newError(InvalidIncludedValue, "%s", describe(item))
					}
				}
				if existing, has := result["@included"]; has {
					included = append(asArray(existing), included...)
				}
				expandedValue = included

			case "@value":
				if inputType == "@json" {
					if active.is10() {
						return newError(InvalidValueObjectValue, "@json in json-ld-1.0 mode")
					}
					result["@value"] = value
					continue
				}
				switch v := value.(type) {
				case nil:
					result["@value"] = nil
					continue
				case string, bool, float64:
					expandedValue = v
				default:
					if !frameExpansion || !(isEmptyMap(v) || allScalars(v)) {
						return newError(InvalidValueObjectValue, "%s", describe(v))
					}
					expandedValue = v
				}
				if frameExpansion {
					expandedValue = asArray(expandedValue)
				}

			case "@language":
				switch v := value.(type) {
				case string:
					if !wellFormedLanguage(v) {
						s.logger.Debug("language tag is not well-formed", zap.String("language", v))
					}
					expandedValue = strings.ToLower(v)
					if frameExpansion {
						expandedValue = []any{expandedValue}
					}
				default:
					if !frameExpansion || !(isEmptyMap(v) || allStrings(v)) {
						return newError(InvalidLanguageTaggedString, "%s", describe(v))
					}
					expandedValue = lowerAll(v)
				}

			case "@direction":
				if active.is10() {
					continue
				}
				switch v := value.(type) {
				case string:
					if v != "ltr" && v != "rtl" {
						return newError(InvalidBaseDirection, "%q", v)
					}
					expandedValue = v
					if frameExpansion {
						expandedValue = []any{v}
					}
				default:
					if !frameExpansion || !(isEmptyMap(v) || allStrings(v)) {
						return newError(InvalidBaseDirection, "%s", describe(v))
					}
					expandedValue = v
				}

			case "@index":
				str, ok := value.(string)
				if !ok {
					return newError(InvalidIndexValue, "%s", describe(value))
				}
				expandedValue = str

			case "@list":
				if activeProperty == "" || activeProperty == "@graph" {
					continue
				}
				list := make([]any, 0)
				for _, item := range asArray(value) {
					if _, nested := item.([]any); nested {
						return newError(ListOfLists, "nested array in @list")
					}
					ev, err := s.expand(active, activeProperty, item, baseURL, frameExpansion, false)
					if err != nil {
						return err
					}
					for _, e := range asArray(ev) {
						if isListObject(e) {
							return newError(ListOfLists, "list object in @list")
						}
						list = append(list, e)
					}
				}
				expandedValue = list

			case "@set":
				ev, err := s.expand(active, activeProperty, value, baseURL, frameExpansion, false)
				if err != nil {
					return err
				}
				expandedValue = ev
				if ev == nil {
					expandedValue = []any{}
				}

			case "@reverse":
				vm, ok := value.(map[string]any)
				if !ok {
					return newError(InvalidReverseValue, "%s", describe(value))
				}
				ev, err := s.expand(active, "@reverse", vm, baseURL, frameExpansion, false)
				if err != nil {
					return err
				}
				evm, _ := ev.(map[string]any)
				if nested, ok := evm["@reverse"].(map[string]any); ok {
					for _, prop := range sortedKeys(nested) {
						addValue(result, prop, nested[prop], true, true)
					}
				}
				for _, prop := range sortedKeys(evm) {
					if prop == "@reverse" {
						continue
					}
					reverseMap, _ := result["@reverse"].(map[string]any)
					if reverseMap == nil {
						reverseMap = map[string]any{}
						result["@reverse"] = reverseMap
					}
					for _, item := range asArray(evm[prop]) {
						if isValueObject(item) || isListObject(item) {
							return newError(InvalidReversePropertyValue, "%s", describe(item))
						}
						addValue(reverseMap, prop, item, true, true)
					}
				}
				continue

			case "@nest":
				nests = append(nests, key)
				continue

			case "@default":
				if !frameExpansion {
					continue
				}
				ev, err := s.expand(active, activeProperty, value, baseURL, frameExpansion, false)
				if err != nil {
					return err
				}
				if ev == nil {
					ev = value
				}
				expandedValue = asArray(ev)

			case "@embed", "@explicit", "@omitDefault", "@requireAll":
				if !frameExpansion {
					continue
				}
				expandedValue = []any{value}

			default:
				continue
			}

			if expandedValue != nil {
				result[expandedProperty] = expandedValue
			}
			continue
		}

		def := active.terms[key]
		var expandedValue any

		vm, valueIsMap := value.(map[string]any)
		switch {
		case def != nil && def.Type == "@json":
			expandedValue = map[string]any{"@value": value, "@type": "@json"}

		case def.HasContainer("@language") && valueIsMap:
			direction := active.defaultDirection
			if def.HasDirection {
				direction = def.Direction
			}
			values := make([]any, 0)
			for _, lang := range sortedKeys(vm) {
				for _, item := range asArray(vm[lang]) {
					if item == nil {
						continue
					}
					str, ok := item.(string)
					if !ok {
						return newError(InvalidLanguageMapValue, "%s", describe(item))
					}
					v := map[string]any{"@value": str}
					if s.mustExpandIRI(active, lang, false, true) != "@none" {
						if !wellFormedLanguage(lang) {
							s.logger.Debug("language tag is not well-formed", zap.String("language", lang))
						}
						v["@language"] = strings.ToLower(lang)
					}
					if direction != "" {
						v["@direction"] = direction
					}
					values = append(values, v)
				}
			}
			expandedValue = values

		case (def.HasContainer("@index") || def.HasContainer("@type") || def.HasContainer("@id")) && valueIsMap:
			values, err := s.expandIndexMap(active, def, key, vm, baseURL, frameExpansion)
			if err != nil {
				return err
			}
			expandedValue = values

		default:
			ev, err := s.expand(active, key, value, baseURL, frameExpansion, false)
			if err != nil {
				return err
			}
			expandedValue = ev
		}

		if expandedValue == nil {
			continue
		}

		if def.HasContainer("@list") && !isListObject(expandedValue) {
			items := asArray(expandedValue)
			for _, item := range items {
				if isListObject(item) {
					return newError(ListOfLists, "list object inside list property %q", key)
				}
			}
			expandedValue = map[string]any{"@list": items}
		}
		if def.HasContainer("@graph") && !def.HasContainer("@id") && !def.HasContainer("@index") {
			items := asArray(expandedValue)
			graphs := make([]any, 0, len(items))
			for _, item := range items {
				graphs = append(graphs, map[string]any{"@graph": asArray(item)})
			}
			expandedValue = graphs
		}

		if def != nil && def.Reverse {
			reverseMap, _ := result["@reverse"].(map[string]any)
			if reverseMap == nil {
				reverseMap = map[string]any{}
				result["@reverse"] = reverseMap
			}
			for _, item := range asArray(expandedValue) {
				if isValueObject(item) || isListObject(item) {
					return newError(InvalidReversePropertyValue, "%s", describe(item))
				}
				addValue(reverseMap, expandedProperty, item, true, true)
			}
			continue
		}
		addValue(result, expandedProperty, expandedValue, true, true)
	}

	sort.Strings(nests)
	for _, nestKey := range nests {
		for _, nv := range asArray(el[nestKey]) {
			nm, ok := nv.(map[string]any)
			if !ok {
				return newError(InvalidNestValue, "%s", describe(nv))
			}
			for k := range nm {
				if s.mustExpandIRI(active, k, false, true) == "@value" {
					return newError(InvalidNestValue, "nested value object")
				}
			}
			if err := s.expandObject(active, typeScoped, activeProperty, nm, result, baseURL, inputType, frameExpansion); err != nil {
				return err
			}
		}
	}

	return nil
}

func (s *session) expandIndexMap(active *Context, def *TermDefinition, key string, vm map[string]any, baseURL string, frameExpansion bool) ([]any, error) {
	indexKey := def.Index
	if indexKey == "" {
		indexKey = "@index"
	}
	byIndex := def.HasContainer("@index")
	byID := def.HasContainer("@id")
	byType := def.HasContainer("@type")
	asGraph := def.HasContainer("@graph")

	values := make([]any, 0)
	for _, index := range sortedKeys(vm) {
		mapCtx := active
		if (byID || byType) && active.previous != nil {
			mapCtx = active.previous
		}
		if byType {
			if td := mapCtx.terms[index]; td != nil && td.HasContext {
				var err error
				if mapCtx, err = s.scopedContext(mapCtx, td, false, true); err != nil {
					return nil, err
				}
			}
		}

		expandedIndex := s.mustExpandIRI(active, index, false, true)
		ev, err := s.expand(mapCtx, key, asArray(vm[index]), baseURL, frameExpansion, true)
		if err != nil {
			return nil, err
		}

		for _, item := range asArray(ev) {
			if asGraph && !isGraphObject(item) {
				item = map[string]any{"@graph": asArray(item)}
			}
			im, ok := item.(map[string]any)
			if !ok {
				values = append(values, item)
				continue
			}
			_, hasIndex := im["@index"]
			_, hasID := im["@id"]

			switch {
			case byIndex && indexKey != "@index" && expandedIndex != "@none":
				reExpanded := s.expandValue(active, indexKey, index)
				expandedIndexKey := s.mustExpandIRI(active, indexKey, false, true)
				im[expandedIndexKey] = append([]any{reExpanded}, asArray(im[expandedIndexKey])...)
				if isValueObject(im) {
					return nil, newError(InvalidValueObject, "property-valued index on a value object")
				}
			case byIndex && !hasIndex && expandedIndex != "@none":
				im["@index"] = index
			case byID && !hasID && expandedIndex != "@none":
				im["@id"] = s.mustExpandIRI(active, index, true, false)
			case byType && expandedIndex != "@none":
				im["@type"] = append([]any{expandedIndex}, asArray(im["@type"])...)
			}
			values = append(values, im)
		}
	}
	return values, nil
}

// expandValue turns a scalar into a value object or node reference
func (s *session) expandValue(active *Context, activeProperty string, value any) any {
	def := active.terms[activeProperty]
	if str, ok := value.(string); ok && def != nil {
		switch def.Type {
		case "@id":
			return map[string]any{"@id": s.mustExpandIRI(active, str, true, false)}
		case "@vocab":
			return map[string]any{"@id": s.mustExpandIRI(active, str, true, true)}
		}
	}

	result := map[string]any{"@value": value}
	if def != nil && def.Type != "" && def.Type != "@id" && def.Type != "@vocab" && def.Type != "@none" {
		result["@type"] = def.Type
		return result
	}
	if _, ok := value.(string); ok {
		lang := active.defaultLanguage
		if def != nil && def.HasLanguage {
			lang = def.Language
		}
		dir := active.defaultDirection
		if def != nil && def.HasDirection {
			dir = def.Direction
		}
		if lang != "" {
			result["@language"] = lang
		}
		if dir != "" {
			result["@direction"] = dir
		}
	}
	return result
}

func allScalars(v any) bool {
	arr, ok := v.([]any)
	if !ok {
		return false
	}
	for _, item := range arr {
		if !isScalar(item) {
			return false
		}
	}
	return true
}

func allStrings(v any) bool {
	arr, ok := v.([]any)
	if !ok {
		return false
	}
	for _, item := range arr {
		if _, ok := item.(string); !ok {
			return false
		}
	}
	return true
}

func lowerAll(v any) any {
	arr, ok := v.([]any)
	if !ok {
		return v
	}
	out := make([]any, len(arr))
	for i, item := range arr {
		if str, ok := item.(string); ok {
			out[i] = strings.ToLower(str)
		} else {
			out[i] = item
		}
	}
	return out
}
