package jsonld

import (
	"regexp"
	"strings"
)

// RFC 3986 appendix B
var iriParts = regexp.MustCompile(`^(([^:/?#]+):)?(//([^/?#]*))?([^?#]*)(\?([^#]*))?(#(.*))?$`)

var schemeForm = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+\-.]*:`)

type iriRef struct {
	scheme       string
	hasAuthority bool
	authority    string
	path         string
	hasQuery     bool
	query        string
	hasFragment  bool
	fragment     string
}

func parseIRIRef(s string) iriRef {
	m := iriParts.FindStringSubmatch(s)
	if m == nil {
		return iriRef{path: s}
	}
	return iriRef{
		scheme:       m[2],
		hasAuthority: m[3] != "",
		authority:    m[4],
		path:         m[5],
		hasQuery:     m[6] != "",
		query:        m[7],
		hasFragment:  m[8] != "",
		fragment:     m[9],
	}
}

func (r iriRef) String() string {
	var b strings.Builder
	if r.scheme != "" {
		b.WriteString(r.scheme)
		b.WriteByte(':')
	}
	if r.hasAuthority {
		b.WriteString("//")
		b.WriteString(r.authority)
	}
	b.WriteString(r.path)
	if r.hasQuery {
		b.WriteByte('?')
		b.WriteString(r.query)
	}
	if r.hasFragment {
		b.WriteByte('#')
		b.WriteString(r.fragment)
	}
	return b.String()
}

// IsAbsoluteIRI reports whether s starts with a scheme
func IsAbsoluteIRI(s string) bool {
	return schemeForm.MatchString(s)
}

// wellFormedIRI is IsAbsoluteIRI plus the absence of characters that may
// not appear unescaped in an IRI.
func wellFormedIRI(s string) bool {
	if !IsAbsoluteIRI(s) {
		return false
	}
	for _, r := range s {
		if r <= 0x20 || strings.ContainsRune("<>\"{}|^`\\", r) {
			return false
		}
	}
	return true
}

// ResolveIRI resolves ref against base following RFC 3986 section 5.2.
// An empty base returns ref unchanged.
func ResolveIRI(base, ref string) string {
	if base == "" || IsAbsoluteIRI(ref) {
		if IsAbsoluteIRI(ref) {
			r := parseIRIRef(ref)
			r.path = removeDotSegments(r.path)
			return r.String()
		}
		return ref
	}

	b := parseIRIRef(base)
	r := parseIRIRef(ref)
	var t iriRef

	if r.hasAuthority {
		t.hasAuthority, t.authority = true, r.authority
		t.path = removeDotSegments(r.path)
		t.hasQuery, t.query = r.hasQuery, r.query
	} else {
		if r.path == "" {
			t.path = b.path
			if r.hasQuery {
				t.hasQuery, t.query = true, r.query
			} else {
				t.hasQuery, t.query = b.hasQuery, b.query
			}
		} else {
			if strings.HasPrefix(r.path, "/") {
				t.path = removeDotSegments(r.path)
			} else {
				t.path = removeDotSegments(mergePaths(b, r.path))
			}
			t.hasQuery, t.query = r.hasQuery, r.query
		}
		t.hasAuthority, t.authority = b.hasAuthority, b.authority
	}
	t.scheme = b.scheme
	t.hasFragment, t.fragment = r.hasFragment, r.fragment
	return t.String()
}

func mergePaths(base iriRef, ref string) string {
	if base.hasAuthority && base.path == "" {
		return "/" + ref
	}
	i := strings.LastIndex(base.path, "/")
	if i < 0 {
		return ref
	}
	return base.path[:i+1] + ref
}

func removeDotSegments(path string) string {
	if path == "" {
		return ""
	}
	input := path
	var output []string
	for input != "" {
		switch {
		case strings.HasPrefix(input, "../"):
			input = input[3:]
		case strings.HasPrefix(input, "./"):
			input = input[2:]
		case strings.HasPrefix(input, "/./"):
			input = input[2:]
		case input == "/.":
			input = "/"
		case strings.HasPrefix(input, "/../"):
			input = input[3:]
			if len(output) > 0 {
				output = output[:len(output)-1]
			}
		case input == "/..":
			input = "/"
			if len(output) > 0 {
				output = output[:len(output)-1]
			}
		case input == "." || input == "..":
			input = ""
		default:
			start := 0
			if input[0] == '/' {
				start = 1
			}
			end := strings.IndexByte(input[start:], '/')
			if end < 0 {
				end = len(input)
			} else {
				end += start
			}
			output = append(output, input[:end])
			input = input[end:]
		}
	}
	return strings.Join(output, "")
}

// relativizeIRI makes iri relative to base where possible. It is the inverse
// of ResolveIRI: ResolveIRI(base, relativizeIRI(base, iri)) == iri.
func relativizeIRI(base, iri string) string {
	if base == "" || !IsAbsoluteIRI(base) {
		return iri
	}
	b := parseIRIRef(base)
	r := parseIRIRef(iri)

	if b.scheme != r.scheme || b.hasAuthority != r.hasAuthority || b.authority != r.authority {
		return iri
	}

	// same document, differing only in fragment or query
	if b.path == r.path {
		if b.hasQuery == r.hasQuery && b.query == r.query {
			if r.hasFragment {
				return "#" + r.fragment
			}
			last := r.path[strings.LastIndex(r.path, "/")+1:]
			if last == "" || strings.Contains(last, ":") {
				last = "./" + last
			}
			if ResolveIRI(base, last) == iri {
				return last
			}
			return iri
		} else if r.hasQuery {
			out := "?" + r.query
			if r.hasFragment {
				out += "#" + r.fragment
			}
			return out
		}
	}

	baseSegments := strings.Split(removeDotSegments(b.path), "/")
	iriSegments := strings.Split(r.path, "/")

	// the last base segment is a file name, not a directory
	baseDirs := baseSegments[:len(baseSegments)-1]

	common := 0
	for common < len(baseDirs) && common < len(iriSegments)-1 && baseDirs[common] == iriSegments[common] {
		common++
	}
	if common == 0 && len(baseDirs) > 0 {
		return iri
	}

	var rel strings.Builder
	for i := common; i < len(baseDirs); i++ {
		rel.WriteString("../")
	}
	rest := strings.Join(iriSegments[common:], "/")
	if rel.Len() == 0 && (rest == "" || strings.Contains(strings.SplitN(rest, "/", 2)[0], ":")) {
		rel.WriteString("./")
	}
	rel.WriteString(rest)
	if r.hasQuery {
		rel.WriteString("?" + r.query)
	}
	if r.hasFragment {
		rel.WriteString("#" + r.fragment)
	}

	out := rel.String()
	if ResolveIRI(base, out) != iri {
		return iri
	}
	return out
}

// expandIRI maps a term, compact IRI or relative IRI to an absolute IRI,
// blank node identifier or keyword. "" means the value maps to null.
// During context processing tb defines terms on first use.
func (s *session) expandIRI(active *Context, value string, documentRelative, vocab bool, tb *termBuilder) (string, error) {
	if isKeyword(value) {
		return value, nil
	}
	if looksLikeKeyword(value) {
		return "", nil
	}

	if tb != nil {
		if _, local := tb.local[value]; local && !tb.defined[value] {
			if err := tb.define(value); err != nil {
				return "", err
			}
		}
	}

	if def := active.terms[value]; def != nil {
		if isKeyword(def.IRI) {
			return def.IRI, nil
		}
		if vocab {
			return def.IRI, nil
		}
	}

	if idx := strings.Index(value, ":"); idx > 0 {
		prefix, suffix := value[:idx], value[idx+1:]
		if prefix == "_" || strings.HasPrefix(suffix, "//") {
			return value, nil
		}
		if tb != nil {
			if _, local := tb.local[prefix]; local && !tb.defined[prefix] {
				if err := tb.define(prefix); err != nil {
					return "", err
				}
			}
		}
		if pd := active.terms[prefix]; pd != nil && pd.IRI != "" && pd.Prefix {
			return pd.IRI + suffix, nil
		}
		if IsAbsoluteIRI(value) {
			return value, nil
		}
	}

	if vocab && active.vocab != "" {
		return active.vocab + value, nil
	}
	if documentRelative {
		return ResolveIRI(active.base, value), nil
	}
	return value, nil
}

// mustExpandIRI is expandIRI outside context processing, where it cannot fail
func (s *session) mustExpandIRI(active *Context, value string, documentRelative, vocab bool) string {
	iri, _ := s.expandIRI(active, value, documentRelative, vocab, nil)
	return iri
}
