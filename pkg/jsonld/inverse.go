package jsonld

import (
	"sort"
	"strings"
)

// inverseContext maps IRI -> container key -> "@language"/"@type"/"@any" ->
// preferred value -> term.
type inverseContext map[string]map[string]map[string]map[string]string

func buildInverse(active *Context) inverseContext {
	inverse := inverseContext{}

	defaultLanguage := "@none"
	if active.defaultLanguage != "" {
		defaultLanguage = strings.ToLower(active.defaultLanguage)
	}

	terms := make([]string, 0, len(active.terms))
	for term := range active.terms {
		terms = append(terms, term)
	}
	// shortest first, then lexicographically least
	sort.Slice(terms, func(i, j int) bool {
		if len(terms[i]) != len(terms[j]) {
			return len(terms[i]) < len(terms[j])
		}
		return terms[i] < terms[j]
	})

	for _, term := range terms {
		def := active.terms[term]
		if def == nil || def.IRI == "" {
			continue
		}

		container := "@none"
		if len(def.Container) > 0 {
			container = strings.Join(def.Container, "")
		}

		containers := inverse[def.IRI]
		if containers == nil {
			containers = map[string]map[string]map[string]string{}
			inverse[def.IRI] = containers
		}
		entry := containers[container]
		if entry == nil {
			entry = map[string]map[string]string{
				"@language": {},
				"@type":     {},
				"@any":      {"@none": term},
			}
			containers[container] = entry
		}
		languages, types := entry["@language"], entry["@type"]

		setOnce := func(m map[string]string, key string) {
			if _, ok := m[key]; !ok {
				m[key] = term
			}
		}

		switch {
		case def.Reverse:
			setOnce(types, "@reverse")
		case def.Type == "@none":
			setOnce(languages, "@any")
			setOnce(types, "@any")
		case def.Type != "":
			setOnce(types, def.Type)
		case def.HasLanguage && def.HasDirection:
			langDir := "@null"
			switch {
			case def.Language != "" && def.Direction != "":
				langDir = strings.ToLower(def.Language + "_" + def.Direction)
			case def.Language != "":
				langDir = strings.ToLower(def.Language)
			case def.Direction != "":
				langDir = "_" + def.Direction
			}
			setOnce(languages, langDir)
		case def.HasLanguage:
			lang := "@null"
			if def.Language != "" {
				lang = strings.ToLower(def.Language)
			}
			setOnce(languages, lang)
		case def.HasDirection:
			dir := "@none"
			if def.Direction != "" {
				dir = "_" + def.Direction
			}
			setOnce(languages, dir)
		case active.defaultDirection != "":
			langDir := strings.ToLower(active.defaultLanguage + "_" + active.defaultDirection)
			setOnce(languages, langDir)
			setOnce(languages, "@none")
			setOnce(types, "@none")
		default:
			setOnce(languages, defaultLanguage)
			setOnce(languages, "@none")
			setOnce(types, "@none")
		}
	}

	return inverse
}

// selectTerm picks the best term for iri among the candidate containers and
// preferred values.
func selectTerm(active *Context, iri string, containers []string, typeOrLanguage string, preferred []string) string {
	byContainer := active.inverse()[iri]
	for _, container := range containers {
		entry, ok := byContainer[container]
		if !ok {
			continue
		}
		values := entry[typeOrLanguage]
		for _, p := range preferred {
			if term, ok := values[p]; ok {
				return term
			}
		}
	}
	return ""
}

// compactIRI is the inverse of expandIRI. value is the expanded value the
// IRI is used with, and drives term selection when vocab is set.
func (s *session) compactIRI(active *Context, iri string, value any, vocab, reverse bool) (string, error) {
	if iri == "" {
		return "", nil
	}

	if vocab {
		if _, known := active.inverse()[iri]; known {
			if term := s.selectTermFor(active, iri, value, reverse); term != "" {
				return term, nil
			}
		}
	}

	if vocab && active.vocab != "" && strings.HasPrefix(iri, active.vocab) && len(iri) > len(active.vocab) {
		suffix := iri[len(active.vocab):]
		if _, taken := active.terms[suffix]; !taken {
			return suffix, nil
		}
	}

	compact := ""
	for term, def := range active.terms {
		if def == nil || def.IRI == "" || def.IRI == iri || !def.Prefix || !strings.HasPrefix(iri, def.IRI) {
			continue
		}
		candidate := term + ":" + iri[len(def.IRI):]
		better := compact == "" || len(candidate) < len(compact) || (len(candidate) == len(compact) && candidate < compact)
		if !better {
			continue
		}
		cd, defined := active.terms[candidate]
		if !defined || (cd != nil && cd.IRI == iri && value == nil) {
			compact = candidate
		}
	}
	if compact != "" {
		return compact, nil
	}

	if idx := strings.Index(iri, ":"); idx > 0 && IsAbsoluteIRI(iri) {
		scheme := iri[:idx]
		if def := active.terms[scheme]; def != nil && def.Prefix && !strings.HasPrefix(iri[idx+1:], "//") {
			return "", newError(IRIConfusedWithPrefix, "%s", iri)
		}
	}

	if !vocab && s.opts.CompactToRelative {
		return relativizeIRI(active.base, iri), nil
	}
	return iri, nil
}

// mustCompactIRI compacts keywords and other IRIs that cannot collide
func (s *session) mustCompactIRI(active *Context, iri string) string {
	out, err := s.compactIRI(active, iri, nil, true, false)
	if err != nil {
		return iri
	}
	return out
}

func (s *session) selectTermFor(active *Context, iri string, value any, reverse bool) string {
	defaultLanguage := "@none"
	if active.defaultDirection != "" {
		defaultLanguage = strings.ToLower(active.defaultLanguage + "_" + active.defaultDirection)
	} else if active.defaultLanguage != "" {
		defaultLanguage = strings.ToLower(active.defaultLanguage)
	}

	m, isMap := value.(map[string]any)
	if isMap {
		if p, ok := m["@preserve"]; ok {
			if arr := asArray(p); len(arr) > 0 {
				m, isMap = arr[0].(map[string]any)
				value = arr[0]
			}
		}
	}
	kind := classify(value)
	_, hasIndex := m["@index"]
	_, hasID := m["@id"]

	var containers []string
	typeOrLanguage := "@language"
	typeOrLanguageValue := "@null"

	if isMap && hasIndex && kind != kindGraph {
		containers = append(containers, "@index", "@index@set")
	}

	switch {
	case reverse:
		typeOrLanguage = "@type"
		typeOrLanguageValue = "@reverse"
		containers = append(containers, "@set")

	case kind == kindList:
		if !hasIndex {
			containers = append(containers, "@list")
		}
		list := asArray(m["@list"])
		commonType, commonLanguage := "", ""
		if len(list) == 0 {
			commonLanguage = defaultLanguage
		}
		for _, item := range list {
			itemLanguage, itemType := "@none", "@none"
			if iv, ok := item.(map[string]any); ok && classify(iv) == kindValue {
				dir, hasDir := iv["@direction"].(string)
				lang, hasLang := iv["@language"].(string)
				switch {
				case hasDir:
					itemLanguage = strings.ToLower(lang + "_" + dir)
				case hasLang:
					itemLanguage = strings.ToLower(lang)
				case iv["@type"] != nil:
					itemType, _ = iv["@type"].(string)
				default:
					itemLanguage = "@null"
				}
			} else {
				itemType = "@id"
			}
			if commonLanguage == "" {
				commonLanguage = itemLanguage
			} else if commonLanguage != itemLanguage && isValueObject(item) {
				commonLanguage = "@none"
			}
			if commonType == "" {
				commonType = itemType
			} else if commonType != itemType {
				commonType = "@mixed"
			}
			if commonLanguage == "@none" && commonType == "@none" {
				break
			}
		}
		if commonLanguage == "" {
			commonLanguage = "@none"
		}
		if commonType == "" {
			commonType = "@none"
		}
		if commonType != "@none" {
			typeOrLanguage = "@type"
			typeOrLanguageValue = commonType
		} else {
			typeOrLanguageValue = commonLanguage
		}

	case kind == kindGraph:
		if hasIndex {
			containers = append(containers, "@graph@index", "@graph@index@set")
		}
		if hasID {
			containers = append(containers, "@graph@id", "@graph@id@set")
		}
		containers = append(containers, "@graph", "@graph@set", "@set")
		if !hasIndex {
			containers = append(containers, "@graph@index", "@graph@index@set")
		}
		if !hasID {
			containers = append(containers, "@graph@id", "@graph@id@set")
		}
		containers = append(containers, "@index", "@index@set")
		typeOrLanguage = "@type"
		typeOrLanguageValue = "@id"

	default:
		if kind == kindValue {
			dir, hasDir := m["@direction"].(string)
			lang, hasLang := m["@language"].(string)
			switch {
			case hasDir && !hasIndex:
				if hasLang {
					typeOrLanguageValue = strings.ToLower(lang + "_" + dir)
				} else {
					typeOrLanguageValue = "_" + dir
				}
				containers = append(containers, "@language", "@language@set")
			case hasLang && !hasIndex:
				typeOrLanguageValue = strings.ToLower(lang)
				containers = append(containers, "@language", "@language@set")
			case m["@type"] != nil:
				typeOrLanguage = "@type"
				typeOrLanguageValue, _ = m["@type"].(string)
			}
		} else {
			typeOrLanguage = "@type"
			typeOrLanguageValue = "@id"
			containers = append(containers, "@id", "@id@set", "@type", "@set@type")
		}
		containers = append(containers, "@set")
	}

	containers = append(containers, "@none")
	if !active.is10() {
		if !isMap || !hasIndex {
			containers = append(containers, "@index", "@index@set")
		}
		if kind == kindValue && len(m) == 1 {
			containers = append(containers, "@language", "@language@set")
		}
	}

	if typeOrLanguageValue == "" {
		typeOrLanguageValue = "@null"
	}

	var preferred []string
	if typeOrLanguageValue == "@reverse" {
		preferred = append(preferred, "@reverse")
	}
	if (typeOrLanguageValue == "@id" || typeOrLanguageValue == "@reverse") && hasID {
		id, _ := m["@id"].(string)
		compacted, err := s.compactIRI(active, id, nil, true, false)
		if def := active.terms[compacted]; err == nil && def != nil && def.IRI == id {
			preferred = append(preferred, "@vocab", "@id", "@none")
		} else {
			preferred = append(preferred, "@id", "@vocab", "@none")
		}
	} else {
		preferred = append(preferred, typeOrLanguageValue, "@none")
		if kind == kindList && len(asArray(m["@list"])) == 0 {
			typeOrLanguage = "@any"
		}
	}
	preferred = append(preferred, "@any")
	for _, p := range preferred {
		if i := strings.Index(p, "_"); i >= 0 {
			preferred = append(preferred, p[i:])
			break
		}
	}

	return selectTerm(active, iri, containers, typeOrLanguage, preferred)
}
