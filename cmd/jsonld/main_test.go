package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/jsonld/pkg/jsonld"
	"github.com/aleksaelezovic/jsonld/pkg/rdf"
)

const doc = `{
  "@context": {"name": "http://schema.org/name", "Person": "http://schema.org/Person"},
  "@id": "http://example.org/alice",
  "@type": "Person",
  "name": "Alice"
}`

// run executes the CLI with args and stdin, returning stdout
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestExpandFromStdin(t *testing.T) {
	out, err := run(t, doc, "expand")
	require.NoError(t, err)

	var got []any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	want := []any{map[string]any{
		"@id":                    "http://example.org/alice",
		"@type":                  []any{"http://schema.org/Person"},
		"http://schema.org/name": []any{map[string]any{"@value": "Alice"}},
	}}
	assert.Equal(t, want, got)
}

func TestExpandWithExpandContext(t *testing.T) {
	ctxFile := writeFile(t, "ctx.jsonld", `{"@context": {"@vocab": "http://example.org/vocab#"}}`)
	out, err := run(t, `{"title": "x"}`, "expand", "--context", ctxFile)
	require.NoError(t, err)
	assert.Contains(t, out, "http://example.org/vocab#title")
}

func TestCompactFromFile(t *testing.T) {
	input := writeFile(t, "doc.jsonld", doc)
	ctxFile := writeFile(t, "ctx.jsonld", `{"@context": {"n": "http://schema.org/name"}}`)

	out, err := run(t, "", "compact", input, "--context", ctxFile)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "Alice", got["n"])
	assert.Equal(t, "http://schema.org/Person", got["@type"])
}

func TestCompactRequiresContext(t *testing.T) {
	_, err := run(t, doc, "compact")
	assert.Error(t, err)
}

func TestFlatten(t *testing.T) {
	input := `{"@id": "http://example.org/a", "http://example.org/p": {"http://example.org/q": "v"}}`
	out, err := run(t, input, "flatten")
	require.NoError(t, err)

	var got []any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Len(t, got, 2)
}

func TestFrameFlags(t *testing.T) {
	input := `{"@context": {"@vocab": "http://example.org/"}, "@graph": [
  {"@id": "http://example.org/a", "@type": "Person", "name": "A", "knows": {"@id": "http://example.org/b"}},
  {"@id": "http://example.org/b", "@type": "Person", "name": "B"}
]}`
	frame := writeFile(t, "frame.jsonld", `{"@context": {"@vocab": "http://example.org/"}, "@id": "http://example.org/a"}`)

	out, err := run(t, input, "frame", "--frame", frame, "--embed", "@never")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, map[string]any{"@id": "http://example.org/b"}, got["knows"])

	_, err = run(t, input, "frame", "--frame", frame, "--embed", "@sometimes")
	assert.Error(t, err)
}

func TestToRDFAndBack(t *testing.T) {
	nq, err := run(t, doc, "tordf")
	require.NoError(t, err)

	quads, err := rdf.ParseNQuads(nq)
	require.NoError(t, err)
	assert.Len(t, quads, 2)

	out, err := run(t, nq, "fromrdf", "--use-native-types")
	require.NoError(t, err)
	assert.Contains(t, out, `"http://schema.org/name"`)

	_, err = run(t, doc, "tordf", "--format", "application/ld+json")
	assert.Error(t, err)
}

func TestJSONLDErrorSurfaces(t *testing.T) {
	_, err := run(t, `{"@context": 5}`, "expand")
	require.Error(t, err)
	assert.Equal(t, jsonld.InvalidLocalContext, jsonld.CodeOf(err))
}

func TestConfigFile(t *testing.T) {
	cfgFile := writeFile(t, "jsonld.yaml", "processing:\n  processingMode: json-ld-2.0\n")
	_, err := run(t, doc, "--config", cfgFile, "expand")
	assert.ErrorContains(t, err, "invalid configuration")

	cfgFile = writeFile(t, "jsonld.yaml", "processing:\n  base: http://example.org/base/\n")
	out, err := run(t, `{"@id": "relative", "http://example.org/p": "x"}`, "--config", cfgFile, "expand")
	require.NoError(t, err)
	assert.Contains(t, out, "http://example.org/base/relative")
}

func TestCacheCommands(t *testing.T) {
	_, err := run(t, "", "cache", "list")
	assert.Error(t, err)

	dir := t.TempDir()
	out, err := run(t, "", "--cache-dir", dir, "cache", "list")
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = run(t, "", "--cache-dir", dir, "cache", "purge")
	require.NoError(t, err)
	assert.Equal(t, "removed 0 expired documents\n", out)

	out, err = run(t, "", "--cache-dir", dir, "cache", "clear")
	require.NoError(t, err)
	assert.Equal(t, "cache cleared\n", out)
}
