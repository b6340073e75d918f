package jsonld

import (
	"sort"
	"strings"
)

// compact is the recursive compaction step. activeProperty "" stands for null.
func (s *session) compact(active *Context, activeProperty string, element any) (any, error) {
	if err := s.ctx.Err(); err != nil {
		return nil, err
	}
	typeScoped := active
	propertyDef := active.terms[activeProperty]

	switch el := element.(type) {
	case []any:
		out := make([]any, 0, len(el))
		for _, item := range el {
			c, err := s.compact(active, activeProperty, item)
			if err != nil {
				return nil, err
			}
			if c != nil {
				out = append(out, c)
			}
		}
		if len(out) == 1 && s.opts.CompactArrays && activeProperty != "@graph" && activeProperty != "@set" &&
			!propertyDef.HasContainer("@list") && !propertyDef.HasContainer("@set") {
			return out[0], nil
		}
		return out, nil

	case map[string]any:
		return s.compactMap(active, typeScoped, propertyDef, activeProperty, el)

	default:
		return element, nil
	}
}

func (s *session) compactMap(active, typeScoped *Context, propertyDef *TermDefinition, activeProperty string, el map[string]any) (any, error) {
	var err error

	if active.previous != nil {
		_, hasValue := el["@value"]
		if !hasValue && !isNodeReference(el) {
			active = active.previous
		}
	}

	if propertyDef != nil && propertyDef.HasContext {
		if active, err = s.scopedContext(active, propertyDef, true, true); err != nil {
			return nil, err
		}
		propertyDef = active.terms[activeProperty]
	}

	_, hasValue := el["@value"]
	if hasValue || isNodeReference(el) || (len(el) == 2 && el["@id"] != nil && el["@index"] != nil) {
		c, err := s.compactValue(active, activeProperty, el)
		if err != nil {
			return nil, err
		}
		if _, stillMap := c.(map[string]any); !stillMap || (propertyDef != nil && propertyDef.Type == "@json") {
			return c, nil
		}
	}

	if isListObject(el) && propertyDef.HasContainer("@list") {
		return s.compact(active, activeProperty, el["@list"])
	}

	insideReverse := activeProperty == "@reverse"
	result := map[string]any{}

	if types, has := el["@type"]; has {
		var compacted []string
		for _, t := range asArray(types) {
			if str, ok := t.(string); ok {
				c, err := s.compactIRI(typeScoped, str, nil, true, false)
				if err != nil {
					return nil, err
				}
				compacted = append(compacted, c)
			}
		}
		sort.Strings(compacted)
		for _, term := range compacted {
			if td := typeScoped.terms[term]; td != nil && td.HasContext {
				if active, err = s.scopedContext(active, td, false, false); err != nil {
					return nil, err
				}
			}
		}
	}

	for _, expandedProperty := range sortedKeys(el) {
		expandedValue := el[expandedProperty]

		switch expandedProperty {
		case "@id":
			id, _ := expandedValue.(string)
			c, err := s.compactIRI(active, id, nil, false, false)
			if err != nil {
				return nil, err
			}
			result[s.mustCompactIRI(active, "@id")] = c
			continue

		case "@type":
			var compactedValue any
			if str, ok := expandedValue.(string); ok {
				c, err := s.compactIRI(typeScoped, str, nil, true, false)
				if err != nil {
					return nil, err
				}
				compactedValue = c
			} else {
				types := make([]any, 0)
				for _, t := range asArray(expandedValue) {
					str, _ := t.(string)
					c, err := s.compactIRI(typeScoped, str, nil, true, false)
					if err != nil {
						return nil, err
					}
					types = append(types, c)
				}
				compactedValue = types
			}
			alias := s.mustCompactIRI(active, "@type")
			asArr := (!active.is10() && active.terms[alias].HasContainer("@set")) || !s.opts.CompactArrays
			addValue(result, alias, compactedValue, asArr, true)
			continue

		case "@reverse":
			c, err := s.compact(active, "@reverse", expandedValue)
			if err != nil {
				return nil, err
			}
			cm, _ := c.(map[string]any)
			for _, property := range sortedKeys(cm) {
				if td := active.terms[property]; td != nil && td.Reverse {
					asArr := td.HasContainer("@set") || !s.opts.CompactArrays
					addValue(result, property, cm[property], asArr, true)
					delete(cm, property)
				}
			}
			if len(cm) > 0 {
				result[s.mustCompactIRI(active, "@reverse")] = cm
			}
			continue

		case "@preserve":
			c, err := s.compact(active, activeProperty, expandedValue)
			if err != nil {
				return nil, err
			}
			result["@preserve"] = c
			continue

		case "@index":
			if propertyDef.HasContainer("@index") {
				continue
			}
			result[s.mustCompactIRI(active, "@index")] = expandedValue
			continue

		case "@direction", "@language", "@value":
			result[s.mustCompactIRI(active, expandedProperty)] = expandedValue
			continue
		}

		items := asArray(expandedValue)
		if len(items) == 0 {
			itemProperty, err := s.compactIRI(active, expandedProperty, expandedValue, true, insideReverse)
			if err != nil {
				return nil, err
			}
			target, err := s.nestTarget(active, result, itemProperty)
			if err != nil {
				return nil, err
			}
			addValue(target, itemProperty, []any{}, true, true)
			continue
		}

		for _, expandedItem := range items {
			if err := s.compactItem(active, result, expandedProperty, expandedItem, insideReverse); err != nil {
				return nil, err
			}
		}
	}

	return result, nil
}

func (s *session) nestTarget(active *Context, result map[string]any, itemProperty string) (map[string]any, error) {
	def := active.terms[itemProperty]
	if def == nil || def.Nest == "" {
		return result, nil
	}
	nestTerm := def.Nest
	if nestTerm != "@nest" && s.mustExpandIRI(active, nestTerm, false, true) != "@nest" {
		return nil, newError(InvalidNestValue, "%q is not an alias of @nest", nestTerm)
	}
	nested, ok := result[nestTerm].(map[string]any)
	if !ok {
		nested = map[string]any{}
		result[nestTerm] = nested
	}
	return nested, nil
}

func (s *session) compactItem(active *Context, result map[string]any, expandedProperty string, expandedItem any, insideReverse bool) error {
	itemProperty, err := s.compactIRI(active, expandedProperty, expandedItem, true, insideReverse)
	if err != nil {
		return err
	}
	target, err := s.nestTarget(active, result, itemProperty)
	if err != nil {
		return err
	}

	def := active.terms[itemProperty]
	asArr := def.HasContainer("@set") || itemProperty == "@graph" || itemProperty == "@list" || !s.opts.CompactArrays

	item, _ := expandedItem.(map[string]any)
	kind := classify(expandedItem)

	var inner any = expandedItem
	switch kind {
	case kindList:
		inner = item["@list"]
	case kindGraph:
		inner = item["@graph"]
	}
	compactedItem, err := s.compact(active, itemProperty, inner)
	if err != nil {
		return err
	}

	switch {
	case kind == kindList:
		list := asArray(compactedItem)
		if !def.HasContainer("@list") {
			wrapped := map[string]any{s.mustCompactIRI(active, "@list"): list}
			if idx, has := item["@index"]; has {
				wrapped[s.mustCompactIRI(active, "@index")] = idx
			}
			addValue(target, itemProperty, wrapped, asArr, true)
		} else {
			target[itemProperty] = list
		}

	case kind == kindGraph:
		id, hasID := item["@id"].(string)
		idx, hasIndex := item["@index"].(string)
		switch {
		case def.HasContainer("@graph") && def.HasContainer("@id"):
			mapObject := ensureMap(target, itemProperty)
			key := "@none"
			if hasID {
				key = id
			}
			mapKey, err := s.compactIRI(active, key, nil, !hasID, false)
			if err != nil {
				return err
			}
			addValue(mapObject, mapKey, compactedItem, asArr, true)

		case def.HasContainer("@graph") && def.HasContainer("@index") && !hasID:
			mapObject := ensureMap(target, itemProperty)
			mapKey := "@none"
			if hasIndex {
				mapKey = idx
			}
			addValue(mapObject, mapKey, compactedItem, asArr, true)

		case def.HasContainer("@graph") && !hasID:
			if arr, ok := compactedItem.([]any); ok && len(arr) > 1 {
				compactedItem = map[string]any{s.mustCompactIRI(active, "@included"): arr}
			}
			addValue(target, itemProperty, compactedItem, asArr, true)

		default:
			graphValue := compactedItem
			if !s.opts.CompactArrays || def.HasContainer("@set") {
				graphValue = asArray(compactedItem)
			}
			wrapped := map[string]any{s.mustCompactIRI(active, "@graph"): graphValue}
			if hasID {
				c, err := s.compactIRI(active, id, nil, false, false)
				if err != nil {
					return err
				}
				wrapped[s.mustCompactIRI(active, "@id")] = c
			}
			if hasIndex {
				wrapped[s.mustCompactIRI(active, "@index")] = idx
			}
			addValue(target, itemProperty, wrapped, asArr, true)
		}

	case !def.HasContainer("@graph") && (def.HasContainer("@language") || def.HasContainer("@index") || def.HasContainer("@id") || def.HasContainer("@type")):
		mapObject := ensureMap(target, itemProperty)
		mapKey := ""
		cm, _ := compactedItem.(map[string]any)

		switch {
		case def.HasContainer("@language"):
			if v, has := item["@value"]; has {
				compactedItem = v
			}
			mapKey, _ = item["@language"].(string)

		case def.HasContainer("@index") && (def.Index == "" || def.Index == "@index"):
			mapKey, _ = item["@index"].(string)

		case def.HasContainer("@index"):
			containerKey := s.mustCompactIRI(active, def.Index)
			if cm != nil {
				values := asArray(cm[containerKey])
				if len(values) > 0 {
					if first, ok := values[0].(string); ok {
						mapKey = first
						values = values[1:]
					}
				}
				switch len(values) {
				case 0:
					delete(cm, containerKey)
				case 1:
					if s.opts.CompactArrays {
						cm[containerKey] = values[0]
					} else {
						cm[containerKey] = values
					}
				default:
					cm[containerKey] = values
				}
			}

		case def.HasContainer("@id"):
			containerKey := s.mustCompactIRI(active, "@id")
			if cm != nil {
				mapKey, _ = cm[containerKey].(string)
				delete(cm, containerKey)
			}

		case def.HasContainer("@type"):
			containerKey := s.mustCompactIRI(active, "@type")
			if cm != nil {
				types := asArray(cm[containerKey])
				if len(types) > 0 {
					mapKey, _ = types[0].(string)
					types = types[1:]
				}
				switch len(types) {
				case 0:
					delete(cm, containerKey)
				case 1:
					cm[containerKey] = types[0]
				default:
					cm[containerKey] = types
				}
				if len(cm) == 1 {
					if _, onlyID := cm[s.mustCompactIRI(active, "@id")]; onlyID {
						compactedItem, err = s.compact(active, itemProperty, map[string]any{"@id": item["@id"]})
						if err != nil {
							return err
						}
					}
				}
			}
		}

		if mapKey == "" {
			mapKey = s.mustCompactIRI(active, "@none")
		}
		addValue(mapObject, mapKey, compactedItem, asArr, true)

	default:
		addValue(target, itemProperty, compactedItem, asArr, true)
	}
	return nil
}

// compactValue shortens a value object or node reference to a scalar where
// the term definition makes it lossless.
func (s *session) compactValue(active *Context, activeProperty string, value map[string]any) (any, error) {
	def := active.terms[activeProperty]
	language := active.defaultLanguage
	direction := active.defaultDirection
	typeMapping := ""
	indexContainer := false
	if def != nil {
		if def.HasLanguage {
			language = def.Language
		}
		if def.HasDirection {
			direction = def.Direction
		}
		typeMapping = def.Type
		indexContainer = def.HasContainer("@index")
	}

	_, hasIndex := value["@index"]
	preserveIndex := hasIndex && !indexContainer

	if id, hasID := value["@id"].(string); hasID && (len(value) == 1 || (len(value) == 2 && hasIndex)) {
		if !preserveIndex {
			switch typeMapping {
			case "@id":
				return s.compactIRI(active, id, nil, false, false)
			case "@vocab":
				return s.compactIRI(active, id, nil, true, false)
			}
		}
		out := map[string]any{}
		c, err := s.compactIRI(active, id, nil, false, false)
		if err != nil {
			return nil, err
		}
		out[s.mustCompactIRI(active, "@id")] = c
		if preserveIndex {
			out[s.mustCompactIRI(active, "@index")] = value["@index"]
		}
		return out, nil
	}

	v := value["@value"]
	t, hasType := value["@type"].(string)
	lang, hasLang := value["@language"].(string)
	dir, hasDir := value["@direction"].(string)

	if !preserveIndex && typeMapping != "@none" {
		switch {
		case hasType && t == typeMapping:
			return v, nil
		case !hasType && typeMapping == "":
			if _, isString := v.(string); !isString {
				if !hasLang && !hasDir {
					return v, nil
				}
			} else if strings.EqualFold(lang, language) && dir == direction {
				return v, nil
			}
		}
	}

	out := map[string]any{}
	if hasType {
		c, err := s.compactIRI(active, t, nil, true, false)
		if err != nil {
			return nil, err
		}
		out[s.mustCompactIRI(active, "@type")] = c
	}
	if hasLang {
		out[s.mustCompactIRI(active, "@language")] = lang
	}
	if hasDir {
		out[s.mustCompactIRI(active, "@direction")] = dir
	}
	if preserveIndex {
		out[s.mustCompactIRI(active, "@index")] = value["@index"]
	}
	out[s.mustCompactIRI(active, "@value")] = v
	return out, nil
}

func ensureMap(m map[string]any, key string) map[string]any {
	if existing, ok := m[key].(map[string]any); ok {
		return existing
	}
	out := map[string]any{}
	m[key] = out
	return out
}
