package loader

import (
	"strings"
)

// Link relations used by JSON-LD
const (
	relContext   = "http://www.w3.org/ns/json-ld#context"
	relAlternate = "alternate"
)

// link is one entry of an HTTP Link header
type link struct {
	target string
	params map[string]string
}

// parseLinks parses every Link header value. Malformed entries are skipped.
func parseLinks(values []string) []link {
	var links []link
	for _, value := range values {
		for _, part := range splitLinkValue(value) {
			if l, ok := parseLink(part); ok {
				links = append(links, l)
			}
		}
	}
	return links
}

// splitLinkValue splits on commas outside of <...> and quoted strings
func splitLinkValue(value string) []string {
	var parts []string
	var inTarget, inQuote bool
	start := 0
	for i := 0; i < len(value); i++ {
		switch c := value[i]; {
		case c == '<' && !inQuote:
			inTarget = true
		case c == '>' && !inQuote:
			inTarget = false
		case c == '"' && !inTarget:
			inQuote = !inQuote
		case c == ',' && !inTarget && !inQuote:
			parts = append(parts, value[start:i])
			start = i + 1
		}
	}
	return append(parts, value[start:])
}

func parseLink(s string) (link, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "<") {
		return link{}, false
	}
	end := strings.IndexByte(s, '>')
	if end < 0 {
		return link{}, false
	}

	l := link{target: s[1:end], params: map[string]string{}}
	for _, param := range strings.Split(s[end+1:], ";") {
		param = strings.TrimSpace(param)
		if param == "" {
			continue
		}
		name, value, _ := strings.Cut(param, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.Trim(strings.TrimSpace(value), `"`)
		l.params[name] = value
	}
	return l, true
}

// hasRel reports whether the rel parameter lists rel (it is a space
// separated list)
func (l link) hasRel(rel string) bool {
	for _, r := range strings.Fields(l.params["rel"]) {
		if r == rel {
			return true
		}
	}
	return false
}
