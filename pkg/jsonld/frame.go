package jsonld

import (
	"reflect"
)

type frameFlags struct {
	embed      Embed
	explicit   bool
	requireAll bool
}

type stackEntry struct {
	subject map[string]any
	graph   string
}

// frameState is the mutable state of one framing call
type frameState struct {
	opts     *Options
	graphMap nodeMap
	graph    string
	stack    []stackEntry
	// uniqueEmbeds tracks, per graph, the subjects embedded so far in this
	// call. @once and @link consult it.
	uniqueEmbeds map[string]map[string]bool
}

func (st *frameState) subjects() map[string]map[string]any {
	return st.graphMap[st.graph]
}

// frameOutput is either a node map under construction or the top-level
// result slice.
type frameOutput any

// frameDocument matches expanded input against an expanded frame and
// returns the framed tree in expanded form. With merged set every graph is
// folded into one before matching; otherwise the default graph is framed.
func (s *session) frameDocument(expanded []any, frame []any, merged bool) ([]any, error) {
	nodes := nodeMap{"@default": {}}
	if err := s.generateNodeMap(expanded, nodes, "@default", "", "", nil); err != nil {
		return nil, err
	}

	st := &frameState{
		opts:         s.opts,
		graphMap:     nodes,
		graph:        "@default",
		uniqueEmbeds: map[string]map[string]bool{},
	}
	if merged {
		nodes["@merged"] = mergeNodeMaps(nodes)
		st.graph = "@merged"
	}

	framed := []any{}
	if err := s.frame(st, sortedNodeIDs(st.subjects()), frame, &framed, ""); err != nil {
		return nil, err
	}

	if !s.opts.is10() {
		pruneBlankNodeIdentifiers(framed)
	}
	return framed, nil
}

func firstFrame(frame []any) (map[string]any, bool) {
	if len(frame) != 1 {
		return nil, false
	}
	m, ok := frame[0].(map[string]any)
	return m, ok
}

func validateFrame(frame []any) (map[string]any, error) {
	m, ok := firstFrame(frame)
	if !ok {
		return nil, newError(InvalidFrame, "frame must be a single object, got %s", describe(frame))
	}
	if ids, has := m["@id"]; has {
		for _, id := range asArray(ids) {
			str, isStr := id.(string)
			if isStr && (isBlankNodeID(str) || !IsAbsoluteIRI(str)) {
				return nil, newError(InvalidFrame, "invalid @id pattern %s", describe(id))
			}
			if !isStr && !isEmptyMap(id) {
				return nil, newError(InvalidFrame, "invalid @id pattern %s", describe(id))
			}
		}
	}
	if types, has := m["@type"]; has {
		for _, t := range asArray(types) {
			str, isStr := t.(string)
			if isStr && (isBlankNodeID(str) || !IsAbsoluteIRI(str)) {
				return nil, newError(InvalidFrame, "invalid @type pattern %s", describe(t))
			}
			if _, isMap := t.(map[string]any); !isStr && !isMap {
				return nil, newError(InvalidFrame, "invalid @type pattern %s", describe(t))
			}
		}
	}
	return m, nil
}

// frameFlag reads @embed, @explicit or @requireAll from frame, falling back
// to the call options.
func frameFlag(frame map[string]any, key string, fallback any) any {
	if v, has := frame[key]; has {
		if arr := asArray(v); len(arr) > 0 {
			v = arr[0]
		}
		if m, ok := v.(map[string]any); ok {
			if inner, ok := m["@value"]; ok {
				return inner
			}
		}
		return v
	}
	return fallback
}

func (st *frameState) readFlags(frame map[string]any) (frameFlags, error) {
	flags := frameFlags{
		explicit:   boolFlag(frameFlag(frame, "@explicit", st.opts.Explicit)),
		requireAll: boolFlag(frameFlag(frame, "@requireAll", st.opts.RequireAll)),
	}

	switch e := frameFlag(frame, "@embed", string(st.opts.Embed)).(type) {
	case bool:
		if e {
			flags.embed = EmbedOnce
		} else {
			flags.embed = EmbedNever
		}
	case string:
		switch Embed(e) {
		case EmbedAlways, EmbedOnce, EmbedNever, EmbedLink:
			flags.embed = Embed(e)
		default:
			return flags, newError(InvalidEmbedValue, "%q", e)
		}
	default:
		return flags, newError(InvalidEmbedValue, "%s", describe(e))
	}
	return flags, nil
}

func boolFlag(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true"
	}
	return false
}

// frame embeds every subject in ids that matches frame into parent, under
// property when parent is a node map.
func (s *session) frame(st *frameState, ids []string, frame []any, parent frameOutput, property string) error {
	if err := s.ctx.Err(); err != nil {
		return err
	}
	f, err := validateFrame(frame)
	if err != nil {
		return err
	}
	flags, err := st.readFlags(f)
	if err != nil {
		return err
	}

	matches, err := st.filterSubjects(ids, f, flags)
	if err != nil {
		return err
	}

	for _, id := range sortedNodeIDs(matches) {
		subject := matches[id]

		if st.uniqueEmbeds[st.graph] == nil {
			st.uniqueEmbeds[st.graph] = map[string]bool{}
		}
		embedded := st.uniqueEmbeds[st.graph]

		output := map[string]any{"@id": id}

		if flags.embed == EmbedNever || st.createsCircularReference(subject) {
			addFrameOutput(parent, property, output)
			continue
		}
		if (flags.embed == EmbedOnce || flags.embed == EmbedLink) && embedded[id] {
			addFrameOutput(parent, property, output)
			continue
		}
		embedded[id] = true

		st.stack = append(st.stack, stackEntry{subject: subject, graph: st.graph})

		if _, isGraph := st.graphMap[id]; isGraph {
			recurse := false
			var subframe any = map[string]any{}
			if g, has := f["@graph"]; has {
				recurse = id != "@merged" && id != "@default"
				if arr := asArray(g); len(arr) > 0 {
					if m, ok := arr[0].(map[string]any); ok {
						subframe = m
					}
				}
			} else {
				recurse = st.graph != "@merged"
			}
			if recurse {
				saved := st.graph
				st.graph = id
				err := s.frame(st, sortedNodeIDs(st.subjects()), []any{subframe}, output, "@graph")
				st.graph = saved
				if err != nil {
					return err
				}
			}
		}

		if inc, has := f["@included"]; has {
			if err := s.frame(st, ids, asArray(inc), output, "@included"); err != nil {
				return err
			}
		}

		for _, prop := range sortedKeys(subject) {
			if isKeyword(prop) {
				output[prop] = cloneValue(subject[prop])
				continue
			}
			if _, inFrame := f[prop]; flags.explicit && !inFrame {
				continue
			}

			subframe := implicitFrame(flags)
			if pf, has := f[prop]; has {
				subframe = asArray(pf)
			}

			for _, o := range asArray(subject[prop]) {
				switch {
				case isListObject(o):
					listFrame := implicitFrame(flags)
					if pf, ok := firstFrame(asArray(f[prop])); ok {
						if lf, has := pf["@list"]; has {
							listFrame = asArray(lf)
						}
					}
					list := map[string]any{"@list": []any{}}
					addFrameOutput(output, prop, list)
					for _, item := range asArray(o.(map[string]any)["@list"]) {
						if ref, ok := item.(map[string]any); ok && isNodeReference(ref) {
							refID, _ := ref["@id"].(string)
							if err := s.frame(st, []string{refID}, listFrame, list, "@list"); err != nil {
								return err
							}
							continue
						}
						addFrameOutput(list, "@list", cloneValue(item))
					}

				case isNodeReference(o):
					refID, _ := o.(map[string]any)["@id"].(string)
					if err := s.frame(st, []string{refID}, subframe, output, prop); err != nil {
						return err
					}

				default:
					pattern, _ := firstFrame(subframe)
					if valueMatch(pattern, o) {
						addFrameOutput(output, prop, cloneValue(o))
					}
				}
			}
		}

		for _, prop := range sortedKeys(f) {
			if prop == "@type" {
				t, _ := firstFrame(asArray(f[prop]))
				if _, hasDefault := t["@default"]; !hasDefault {
					continue
				}
			} else if isKeyword(prop) {
				continue
			}
			next, _ := firstFrame(asArray(f[prop]))
			if next == nil {
				next = map[string]any{}
			}
			omitDefault := boolFlag(frameFlag(next, "@omitDefault", st.opts.OmitDefault))
			if _, present := output[prop]; omitDefault || present {
				continue
			}
			preserve := []any{"@null"}
			if d, has := next["@default"]; has {
				preserve = defaultValues(d)
			}
			if prop == "@type" {
				// type defaults are already expanded IRIs
				output[prop] = preserve
				continue
			}
			output[prop] = []any{map[string]any{"@preserve": preserve}}
		}

		if rev, ok := f["@reverse"].(map[string]any); ok {
			for _, reverseProp := range sortedKeys(rev) {
				subframe := asArray(rev[reverseProp])
				for _, other := range sortedNodeIDs(st.subjects()) {
					node := st.subjects()[other]
					if !referencesID(node[reverseProp], id) {
						continue
					}
					reverse := ensureMap(output, "@reverse")
					if _, has := reverse[reverseProp]; !has {
						reverse[reverseProp] = []any{}
					}
					if err := s.frame(st, []string{other}, subframe, reverse, reverseProp); err != nil {
						return err
					}
				}
			}
		}

		addFrameOutput(parent, property, output)
		st.stack = st.stack[:len(st.stack)-1]
	}
	return nil
}

func implicitFrame(flags frameFlags) []any {
	return []any{map[string]any{
		"@embed":      []any{string(flags.embed)},
		"@explicit":   []any{flags.explicit},
		"@requireAll": []any{flags.requireAll},
	}}
}

func referencesID(values any, id string) bool {
	for _, v := range asArray(values) {
		if m, ok := v.(map[string]any); ok && m["@id"] == id {
			return true
		}
	}
	return false
}

func addFrameOutput(parent frameOutput, property string, output any) {
	switch p := parent.(type) {
	case map[string]any:
		addValue(p, property, output, true, true)
	case *[]any:
		*p = append(*p, output)
	}
}

func (st *frameState) createsCircularReference(subject map[string]any) bool {
	for i := len(st.stack) - 1; i >= 0; i-- {
		entry := st.stack[i]
		if entry.graph == st.graph && entry.subject["@id"] == subject["@id"] {
			return true
		}
	}
	return false
}

func (st *frameState) filterSubjects(ids []string, frame map[string]any, flags frameFlags) (map[string]map[string]any, error) {
	subjects := st.subjects()
	matches := map[string]map[string]any{}
	for _, id := range ids {
		subject, ok := subjects[id]
		if !ok {
			continue
		}
		match, err := st.filterSubject(subject, frame, flags)
		if err != nil {
			return nil, err
		}
		if match {
			matches[id] = subject
		}
	}
	return matches, nil
}

// filterSubject reports whether subject matches frame. Keywords sort before
// IRIs, so @id and @type are decided first.
func (st *frameState) filterSubject(subject, frame map[string]any, flags frameFlags) (bool, error) {
	wildcard := true
	matchesSome := false

	for _, key := range sortedKeys(frame) {
		matchThis := false
		nodeValues := asArray(subject[key])
		frameValues := asArray(frame[key])

		switch {
		case key == "@id":
			if len(frameValues) > 0 && isEmptyMap(frameValues[0]) {
				matchThis = true
			} else {
				id, _ := subject["@id"].(string)
				for _, candidate := range frameValues {
					if candidate == id {
						matchThis = true
						break
					}
				}
			}
			if !flags.requireAll {
				return matchThis, nil
			}

		case key == "@type":
			wildcard = false
			switch {
			case len(frameValues) == 0:
				if len(nodeValues) > 0 {
					return false, nil
				}
				matchThis = true
			case len(frameValues) == 1 && isEmptyMap(frameValues[0]):
				matchThis = len(nodeValues) > 0
			default:
				for _, t := range frameValues {
					if m, ok := t.(map[string]any); ok {
						if _, hasDefault := m["@default"]; hasDefault {
							matchThis = true
						}
						continue
					}
					if !matchThis {
						matchThis = containsString(nodeValues, t)
					}
				}
				if !flags.requireAll {
					return matchThis, nil
				}
			}

		case isKeyword(key):
			continue

		default:
			var thisFrame map[string]any
			hasDefault := false
			if len(frameValues) > 0 {
				tf, err := validateFrame(frameValues[:1])
				if err != nil {
					return false, err
				}
				thisFrame = tf
				_, hasDefault = thisFrame["@default"]
			}
			wildcard = false

			if len(nodeValues) == 0 && hasDefault {
				continue
			}
			if len(nodeValues) > 0 && len(frameValues) == 0 {
				return false, nil
			}

			switch {
			case thisFrame == nil:
				if len(nodeValues) > 0 {
					return false, nil
				}
				matchThis = true
			case isListObject(thisFrame):
				patterns := asArray(thisFrame["@list"])
				if len(patterns) == 0 || len(nodeValues) == 0 || !isListObject(nodeValues[0]) {
					break
				}
				listPattern := patterns[0]
				items := asArray(nodeValues[0].(map[string]any)["@list"])
				for _, item := range items {
					if st.patternMatches(listPattern, item, flags) {
						matchThis = true
						break
					}
				}
			case isValueObject(thisFrame) || isNodeReference(thisFrame):
				for _, nv := range nodeValues {
					if st.patternMatches(thisFrame, nv, flags) {
						matchThis = true
						break
					}
				}
			default:
				matchThis = len(nodeValues) > 0
			}
		}

		if !matchThis && flags.requireAll {
			return false, nil
		}
		matchesSome = matchesSome || matchThis
	}

	return wildcard || matchesSome, nil
}

func (st *frameState) patternMatches(pattern, value any, flags frameFlags) bool {
	pm, ok := pattern.(map[string]any)
	if !ok {
		return false
	}
	switch {
	case isValueObject(pm):
		return valueMatch(pm, value)
	case isNodeObject(pm) || isNodeReference(pm):
		return st.nodeMatch(pm, value, flags)
	}
	return false
}

func (st *frameState) nodeMatch(pattern map[string]any, value any, flags frameFlags) bool {
	ref, ok := value.(map[string]any)
	if !ok {
		return false
	}
	id, ok := ref["@id"].(string)
	if !ok {
		return false
	}
	node, ok := st.subjects()[id]
	if !ok {
		return false
	}
	match, err := st.filterSubject(node, pattern, flags)
	return err == nil && match
}

// valueMatch compares a value object against a value pattern. An empty
// map in the pattern is a wildcard; an absent entry requires absence.
func valueMatch(pattern map[string]any, value any) bool {
	vm, ok := value.(map[string]any)
	if !ok {
		return false
	}
	values := patternValues(pattern, "@value")
	types := patternValues(pattern, "@type")
	languages := patternValues(pattern, "@language")
	if len(values) == 0 && len(types) == 0 && len(languages) == 0 {
		return true
	}
	return patternAccepts(values, vm["@value"], true) &&
		patternAccepts(types, vm["@type"], false) &&
		patternAccepts(languages, vm["@language"], false)
}

func patternValues(pattern map[string]any, key string) []any {
	v, has := pattern[key]
	if !has {
		return nil
	}
	return asArray(v)
}

func patternAccepts(patterns []any, actual any, required bool) bool {
	if len(patterns) > 0 && isEmptyMap(patterns[0]) {
		return actual != nil || required
	}
	if len(patterns) == 0 {
		return actual == nil && !required
	}
	for _, p := range patterns {
		if reflect.DeepEqual(p, actual) {
			return true
		}
	}
	return false
}

func containsString(values []any, v any) bool {
	for _, item := range values {
		if item == v {
			return true
		}
	}
	return false
}

// pruneBlankNodeIdentifiers drops @id from nodes whose blank node label
// occurs exactly once in the framed output.
func pruneBlankNodeIdentifiers(framed []any) {
	counts := map[string]int{}
	var count func(v any)
	count = func(v any) {
		switch t := v.(type) {
		case []any:
			for _, item := range t {
				count(item)
			}
		case map[string]any:
			if id, ok := t["@id"].(string); ok && isBlankNodeID(id) {
				counts[id]++
			}
			if !isValueObject(t) {
				for _, typ := range asArray(t["@type"]) {
					if str, ok := typ.(string); ok && isBlankNodeID(str) {
						counts[str]++
					}
				}
			}
			for k, item := range t {
				if k != "@id" && k != "@type" {
					count(item)
				}
			}
		}
	}
	count(framed)

	var prune func(v any)
	prune = func(v any) {
		switch t := v.(type) {
		case []any:
			for _, item := range t {
				prune(item)
			}
		case map[string]any:
			if id, ok := t["@id"].(string); ok && counts[id] == 1 {
				delete(t, "@id")
			}
			for _, item := range t {
				prune(item)
			}
		}
	}
	prune(framed)
}

// defaultValues normalizes an expanded @default. An empty array stays
// empty and a null value becomes the "@null" placeholder.
func defaultValues(d any) []any {
	if d == nil {
		return []any{"@null"}
	}
	arr, isArr := d.([]any)
	if !isArr {
		arr = []any{d}
	}
	out := make([]any, 0, len(arr))
	for _, item := range arr {
		if m, ok := item.(map[string]any); ok && len(m) == 1 && m["@value"] == "@null" {
			item = "@null"
		}
		out = append(out, cloneValue(item))
	}
	return out
}

// cleanupPreserve replaces framing placeholders in compacted output:
// {"@preserve": v} becomes v and "@null" becomes null, dropped from arrays.
func cleanupPreserve(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			m, _ := item.(map[string]any)
			_, wrapped := m["@preserve"]
			c := cleanupPreserve(item)
			if inner, isArr := c.([]any); isArr && wrapped {
				// a preserved array replaces its placeholder in place
				out = append(out, inner...)
				continue
			}
			if c != nil {
				out = append(out, c)
			}
		}
		return out
	case map[string]any:
		if p, has := t["@preserve"]; has && len(t) == 1 {
			return cleanupPreserve(p)
		}
		for k, item := range t {
			if k == "@context" {
				continue
			}
			t[k] = cleanupPreserve(item)
		}
		return t
	case string:
		if t == "@null" {
			return nil
		}
	}
	return v
}
