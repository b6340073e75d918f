package rdf

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrInvalidQuad is matched by every *InvalidQuadError through errors.Is
var ErrInvalidQuad = errors.New("invalid quad")

// InvalidQuadError reports a lexical failure in N-Quads input.
// Parsing stops at the first malformed line; no partial result is returned.
type InvalidQuadError struct {
	Line      int    // 1-based line number
	Column    int    // 1-based byte column within the line
	Construct string // offending construct, e.g. "blank node label", "IRI"
	Message   string
	Statement string // the offending line
}

func (e *InvalidQuadError) Error() string {
	var msg strings.Builder
	fmt.Fprintf(&msg, "invalid quad on line %d", e.Line)
	if e.Column > 0 {
		fmt.Fprintf(&msg, ", column %d", e.Column)
	}
	msg.WriteString(": ")
	if e.Construct != "" {
		msg.WriteString(e.Construct)
		msg.WriteString(": ")
	}
	msg.WriteString(e.Message)
	if e.Statement != "" {
		fmt.Fprintf(&msg, " (near %q)", excerpt(e.Statement, 60))
	}
	return msg.String()
}

func (e *InvalidQuadError) Is(target error) bool {
	return target == ErrInvalidQuad
}

func excerpt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// NQuadsParser parses N-Quads text. Every non-blank, non-comment line holds
// exactly one statement: subject predicate object [graph] .
type NQuadsParser struct {
	document string
	// input is the statement being parsed
	input  string
	pos    int
	length int
	line   int
}

// NewNQuadsParser creates a parser over a complete N-Quads document. Parse
// may be called more than once.
func NewNQuadsParser(input string) *NQuadsParser {
	return &NQuadsParser{document: input}
}

// ParseNQuads parses an N-Quads document
func ParseNQuads(input string) ([]*Quad, error) {
	return NewNQuadsParser(input).Parse()
}

// Parse parses the N-Quads document and returns quads
func (p *NQuadsParser) Parse() ([]*Quad, error) {
	var quads []*Quad

	lines := strings.Split(p.document, "\n")
	for i, raw := range lines {
		line := strings.TrimSuffix(raw, "\r")
		trimmed := strings.Trim(line, " \t")
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		p.input = line
		p.pos = 0
		p.length = len(line)
		p.line = i + 1

		if !utf8.ValidString(line) {
			return nil, p.fail("statement", "invalid UTF-8")
		}

		quad, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		quads = append(quads, quad)
	}

	return quads, nil
}

func (p *NQuadsParser) fail(construct, format string, args ...any) error {
	return &InvalidQuadError{
		Line:      p.line,
		Column:    p.pos + 1,
		Construct: construct,
		Message:   fmt.Sprintf(format, args...),
		Statement: p.input,
	}
}

// skipWhitespace skips spaces and tabs
func (p *NQuadsParser) skipWhitespace() {
	for p.pos < p.length && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}

// parseStatement parses one line: subject predicate object [graph] .
func (p *NQuadsParser) parseStatement() (*Quad, error) {
	p.skipWhitespace()

	subject, err := p.parseSubjectOrGraph("subject")
	if err != nil {
		return nil, err
	}
	p.skipWhitespace()

	if p.pos >= p.length || p.input[p.pos] != '<' {
		return nil, p.fail("predicate", "expected IRI")
	}
	predicateIRI, err := p.parseIRI()
	if err != nil {
		return nil, err
	}
	p.skipWhitespace()

	object, err := p.parseObject()
	if err != nil {
		return nil, err
	}
	p.skipWhitespace()

	var graph Term = NewDefaultGraph()
	if p.pos < p.length && p.input[p.pos] != '.' {
		graph, err = p.parseSubjectOrGraph("graph label")
		if err != nil {
			return nil, err
		}
		p.skipWhitespace()
	}

	if p.pos >= p.length || p.input[p.pos] != '.' {
		return nil, p.fail("statement", "expected '.' at end of quad")
	}
	p.pos++

	p.skipWhitespace()
	if p.pos < p.length && p.input[p.pos] != '#' {
		return nil, p.fail("statement", "unexpected content after '.'")
	}

	return NewQuad(subject, NewNamedNode(predicateIRI), object, graph), nil
}

// parseSubjectOrGraph parses an IRI or a blank node label
func (p *NQuadsParser) parseSubjectOrGraph(construct string) (Term, error) {
	if p.pos >= p.length {
		return nil, p.fail(construct, "unexpected end of line")
	}
	switch p.input[p.pos] {
	case '<':
		iri, err := p.parseIRI()
		if err != nil {
			return nil, err
		}
		return NewNamedNode(iri), nil
	case '_':
		return p.parseBlankNode()
	default:
		return nil, p.fail(construct, "expected IRI or blank node, got %q", p.input[p.pos])
	}
}

// parseObject parses an IRI, blank node or literal
func (p *NQuadsParser) parseObject() (Term, error) {
	if p.pos >= p.length {
		return nil, p.fail("object", "unexpected end of line")
	}
	switch p.input[p.pos] {
	case '<':
		iri, err := p.parseIRI()
		if err != nil {
			return nil, err
		}
		return NewNamedNode(iri), nil
	case '_':
		return p.parseBlankNode()
	case '"':
		return p.parseLiteral()
	default:
		return nil, p.fail("object", "expected IRI, blank node or literal, got %q", p.input[p.pos])
	}
}

// parseIRI parses an absolute IRI enclosed in < >
func (p *NQuadsParser) parseIRI() (string, error) {
	p.pos++ // skip '<'

	var result strings.Builder
	for p.pos < p.length && p.input[p.pos] != '>' {
		ch := p.input[p.pos]

		if ch == '\\' {
			if p.pos+1 < p.length && (p.input[p.pos+1] == 'u' || p.input[p.pos+1] == 'U') {
				escaped, err := p.processUnicodeEscape("IRI")
				if err != nil {
					return "", err
				}
				result.WriteString(escaped)
				continue
			}
			return "", p.fail("IRI", "invalid escape sequence")
		}

		// IRIs cannot contain: space, <, ", {, }, |, ^, ` or control characters
		if ch == ' ' || ch == '<' || ch == '"' || ch == '{' || ch == '}' ||
			ch == '|' || ch == '^' || ch == '`' || ch <= 0x1F {
			return "", p.fail("IRI", "invalid character %q", ch)
		}

		result.WriteByte(ch)
		p.pos++
	}

	if p.pos >= p.length {
		return "", p.fail("IRI", "unclosed IRI")
	}
	p.pos++ // skip '>'

	iri := result.String()
	if !hasScheme(iri) {
		return "", p.fail("IRI", "relative IRI %q not allowed", iri)
	}

	return iri, nil
}

// hasScheme reports whether iri starts with scheme ":"
func hasScheme(iri string) bool {
	colon := strings.IndexByte(iri, ':')
	if colon < 1 {
		return false
	}
	for i := 0; i < colon; i++ {
		c := iri[i]
		isAlpha := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		if i == 0 && !isAlpha {
			return false
		}
		if !isAlpha && !(c >= '0' && c <= '9') && c != '+' && c != '-' && c != '.' {
			return false
		}
	}
	return true
}

// parseBlankNode parses _:label. The label may not start with '-' or '.'
// and may not end with '.'.
func (p *NQuadsParser) parseBlankNode() (Term, error) {
	if p.pos+1 >= p.length || p.input[p.pos+1] != ':' {
		return nil, p.fail("blank node label", "expected ':' after '_'")
	}
	p.pos += 2
	start := p.pos

	first, size := utf8.DecodeRuneInString(p.input[p.pos:])
	if p.pos >= p.length || !isBlankLabelStart(first) {
		return nil, p.fail("blank node label", "label must start with a letter, digit or '_'")
	}
	p.pos += size

	for p.pos < p.length {
		r, size := utf8.DecodeRuneInString(p.input[p.pos:])
		if !isBlankLabelChar(r) && r != '.' {
			break
		}
		p.pos += size
	}

	// a trailing '.' belongs to the statement, never to the label
	for p.pos > start+1 && p.input[p.pos-1] == '.' {
		p.pos--
	}

	return NewBlankNode(p.input[start:p.pos]), nil
}

func isBlankLabelStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isBlankLabelChar(r rune) bool {
	return isBlankLabelStart(r) || r == '-' || r == 0xB7 ||
		(r >= 0x0300 && r <= 0x036F) || (r >= 0x203F && r <= 0x2040)
}

// parseLiteral parses a quoted literal with optional @lang or ^^<datatype>
func (p *NQuadsParser) parseLiteral() (Term, error) {
	p.pos++ // skip opening '"'

	var value strings.Builder
	closed := false
	for p.pos < p.length {
		ch := p.input[p.pos]
		if ch == '"' {
			closed = true
			break
		}
		if ch == '\n' || ch == '\r' {
			return nil, p.fail("literal", "unescaped line break")
		}
		if ch != '\\' {
			value.WriteByte(ch)
			p.pos++
			continue
		}

		if p.pos+1 >= p.length {
			return nil, p.fail("literal", "unexpected end of line in escape sequence")
		}
		switch esc := p.input[p.pos+1]; esc {
		case 'n':
			value.WriteByte('\n')
		case 't':
			value.WriteByte('\t')
		case 'r':
			value.WriteByte('\r')
		case 'b':
			value.WriteByte('\b')
		case 'f':
			value.WriteByte('\f')
		case '"':
			value.WriteByte('"')
		case '\'':
			value.WriteByte('\'')
		case '\\':
			value.WriteByte('\\')
		case 'u', 'U':
			escaped, err := p.processUnicodeEscape("literal")
			if err != nil {
				return nil, err
			}
			value.WriteString(escaped)
			continue
		default:
			return nil, p.fail("literal", "invalid escape sequence \\%c", esc)
		}
		p.pos += 2
	}

	if !closed {
		return nil, p.fail("literal", "unclosed string literal")
	}
	p.pos++ // skip closing '"'

	if p.pos < p.length && p.input[p.pos] == '@' {
		p.pos++
		start := p.pos
		for p.pos < p.length {
			ch := p.input[p.pos]
			if (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') || ch == '-' {
				p.pos++
				continue
			}
			break
		}
		tag := p.input[start:p.pos]
		lang, dir, err := splitLanguageTag(tag)
		if err != nil {
			return nil, p.fail("language tag", "%v", err)
		}
		if dir != "" {
			return NewLiteralWithLanguageAndDirection(value.String(), lang, dir), nil
		}
		return NewLiteralWithLanguage(value.String(), lang), nil
	}

	if p.pos+1 < p.length && p.input[p.pos] == '^' && p.input[p.pos+1] == '^' {
		p.pos += 2
		if p.pos >= p.length || p.input[p.pos] != '<' {
			return nil, p.fail("datatype", "expected IRI after '^^'")
		}
		datatype, err := p.parseIRI()
		if err != nil {
			return nil, err
		}
		return NewLiteralWithDatatype(value.String(), NewNamedNode(datatype)), nil
	}

	return NewLiteral(value.String()), nil
}

// splitLanguageTag validates a BCP47-shaped tag with an optional --ltr/--rtl suffix
func splitLanguageTag(tag string) (string, string, error) {
	lang, dir := tag, ""
	if idx := strings.Index(tag, "--"); idx >= 0 {
		lang, dir = tag[:idx], tag[idx+2:]
		if dir != "ltr" && dir != "rtl" {
			return "", "", fmt.Errorf("invalid direction %q", dir)
		}
	}
	if lang == "" {
		return "", "", errors.New("empty language tag")
	}
	for i, part := range strings.Split(lang, "-") {
		if part == "" {
			return "", "", fmt.Errorf("malformed language tag %q", lang)
		}
		for _, r := range part {
			isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
			if i == 0 && !isAlpha {
				return "", "", fmt.Errorf("language tag %q must start with letters", lang)
			}
			if !isAlpha && !(r >= '0' && r <= '9') {
				return "", "", fmt.Errorf("malformed language tag %q", lang)
			}
		}
	}
	return lang, dir, nil
}

// processUnicodeEscape processes \uXXXX or \UXXXXXXXX escape sequences
func (p *NQuadsParser) processUnicodeEscape(construct string) (string, error) {
	hexDigits := 4
	if p.input[p.pos+1] == 'U' {
		hexDigits = 8
	}
	p.pos += 2 // skip '\u' or '\U'

	if p.pos+hexDigits > p.length {
		return "", p.fail(construct, "incomplete Unicode escape sequence")
	}

	hexStr := p.input[p.pos : p.pos+hexDigits]
	codePoint, err := strconv.ParseUint(hexStr, 16, 32)
	if err != nil {
		return "", p.fail(construct, "invalid hex digits in Unicode escape: %s", hexStr)
	}
	if codePoint > unicode.MaxRune {
		return "", p.fail(construct, "code point out of range: %s", hexStr)
	}
	if codePoint >= 0xD800 && codePoint <= 0xDFFF {
		return "", p.fail(construct, "surrogate code point in Unicode escape: %s", hexStr)
	}
	p.pos += hexDigits

	return string(rune(codePoint)), nil
}
