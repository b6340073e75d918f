package jsonld

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// RFC 3986 section 5.4
func TestResolveIRI(t *testing.T) {
	const base = "http://a/b/c/d;p?q"
	tests := []struct {
		ref  string
		want string
	}{
		{"g:h", "g:h"},
		{"g", "http://a/b/c/g"},
		{"./g", "http://a/b/c/g"},
		{"g/", "http://a/b/c/g/"},
		{"/g", "http://a/g"},
		{"//g", "http://g"},
		{"?y", "http://a/b/c/d;p?y"},
		{"g?y", "http://a/b/c/g?y"},
		{"#s", "http://a/b/c/d;p?q#s"},
		{"g#s", "http://a/b/c/g#s"},
		{"g?y#s", "http://a/b/c/g?y#s"},
		{";x", "http://a/b/c/;x"},
		{"g;x", "http://a/b/c/g;x"},
		{"", "http://a/b/c/d;p?q"},
		{".", "http://a/b/c/"},
		{"./", "http://a/b/c/"},
		{"..", "http://a/b/"},
		{"../", "http://a/b/"},
		{"../g", "http://a/b/g"},
		{"../..", "http://a/"},
		{"../../", "http://a/"},
		{"../../g", "http://a/g"},

		// abnormal examples
		{"../../../g", "http://a/g"},
		{"../../../../g", "http://a/g"},
		{"/./g", "http://a/g"},
		{"/../g", "http://a/g"},
		{"g.", "http://a/b/c/g."},
		{".g", "http://a/b/c/.g"},
		{"g..", "http://a/b/c/g.."},
		{"..g", "http://a/b/c/..g"},
		{"./../g", "http://a/b/g"},
		{"./g/.", "http://a/b/c/g/"},
		{"g/./h", "http://a/b/c/g/h"},
		{"g/../h", "http://a/b/c/h"},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveIRI(base, tt.ref))
		})
	}
}

func TestResolveIRIWithoutBase(t *testing.T) {
	assert.Equal(t, "relative/path", ResolveIRI("", "relative/path"))
	assert.Equal(t, "http://example.org/a/c", ResolveIRI("", "http://example.org/a/b/../c"))
}

func TestIsAbsoluteIRI(t *testing.T) {
	assert.True(t, IsAbsoluteIRI("http://example.org/"))
	assert.True(t, IsAbsoluteIRI("urn:isbn:0451450523"))
	assert.False(t, IsAbsoluteIRI("_:b0"))
	assert.False(t, IsAbsoluteIRI("relative"))
	assert.False(t, IsAbsoluteIRI("/absolute/path"))
	assert.False(t, IsAbsoluteIRI(""))
}

func TestWellFormedIRI(t *testing.T) {
	tests := []struct {
		iri  string
		want bool
	}{
		{"http://example.org/a", true},
		{"urn:ex:caf\u00e9", true},
		{"http://example.com/a b", false},
		{"http://example.com/<a>", false},
		{"http://example.com/{a}", false},
		{"http://example.com/a|b", false},
		{"http://example.com/a\\b", false},
		{"http://example.com/a\nb", false},
		{"relative", false},
		{"_:b0", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, wellFormedIRI(tt.iri), tt.iri)
	}
}

func TestRelativizeIRIRoundTrip(t *testing.T) {
	const base = "http://example.com/a/b/c?q#f"
	iris := []string{
		"http://example.com/a/b/c",
		"http://example.com/a/b/d",
		"http://example.com/a/x/y",
		"http://example.com/z",
		"http://example.com/a/b/c?other",
		"http://example.com/a/b/c?q#frag",
		"http://other.example/a",
	}
	for _, iri := range iris {
		rel := relativizeIRI(base, iri)
		assert.Equal(t, iri, ResolveIRI(base, rel), "relative form %q", rel)
	}
}
