package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/aleksaelezovic/jsonld/pkg/jsonld"
	"github.com/aleksaelezovic/jsonld/pkg/loader"
	"github.com/aleksaelezovic/jsonld/pkg/rdf"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const person = `{
  "@context": {"name": "http://schema.org/name", "knows": {"@id": "http://schema.org/knows", "@type": "@id"}},
  "@id": "http://example.org/alice",
  "name": "Alice",
  "knows": "http://example.org/bob"
}`

func newTestServer(t *testing.T) (*Server, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	opts := jsonld.NewOptions()
	opts.DocumentLoader = jsonld.NewStaticLoader(map[string]any{
		"http://example.org/context.jsonld": `{"@context": {"name": "http://schema.org/name"}}`,
		"http://example.org/doc.jsonld":     `{"@context": "http://example.org/context.jsonld", "@id": "http://example.org/carol", "name": "Carol"}`,
	})
	s, err := NewServer(Config{}, opts, zap.New(core), loader.NewMetrics())
	require.NoError(t, err)
	return s, logs
}

func do(t *testing.T, s *Server, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestExpandEndpoint(t *testing.T) {
	s, logs := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/expand", "application/json", `{"input": `+person+`}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/ld+json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	want := []any{map[string]any{
		"@id":                     "http://example.org/alice",
		"http://schema.org/name":  []any{map[string]any{"@value": "Alice"}},
		"http://schema.org/knows": []any{map[string]any{"@id": "http://example.org/bob"}},
	}}
	assert.Equal(t, want, decode(t, rec))

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, rec.Header().Get("X-Request-ID"), entries[0].ContextMap()["request_id"])
}

func TestExpandRemoteInput(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/expand", "application/json", `{"input": "http://example.org/doc.jsonld"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	want := []any{map[string]any{
		"@id":                    "http://example.org/carol",
		"http://schema.org/name": []any{map[string]any{"@value": "Carol"}},
	}}
	assert.Equal(t, want, decode(t, rec))
}

func TestCompactEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	body := `{
  "input": [{"@id": "http://example.org/alice", "http://schema.org/name": [{"@value": "Alice"}]}],
  "context": {"@context": {"name": "http://schema.org/name"}}
}`
	rec := do(t, s, http.MethodPost, "/compact", "application/json", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	want := map[string]any{
		"@context": map[string]any{"name": "http://schema.org/name"},
		"@id":      "http://example.org/alice",
		"name":     "Alice",
	}
	assert.Equal(t, want, decode(t, rec))
}

func TestCompactRequiresContext(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/compact", "application/json", `{"input": {}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, map[string]any{"error": map[string]any{
		"code":    "invalid input",
		"message": `missing "context"`,
	}}, decode(t, rec))
}

func TestFlattenEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	body := `{"input": {"@id": "http://example.org/a", "http://example.org/p": {"http://example.org/q": "v"}}}`
	rec := do(t, s, http.MethodPost, "/flatten", "application/json", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	nodes, ok := decode(t, rec).([]any)
	require.True(t, ok)
	assert.Len(t, nodes, 2)
}

func TestFrameEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	body := `{
  "input": {"@graph": [
    {"@id": "http://example.org/a", "@type": "http://example.org/Person", "http://example.org/name": "A"},
    {"@id": "http://example.org/b", "@type": "http://example.org/Place"}
  ]},
  "frame": {"@type": "http://example.org/Person"},
  "options": {"omitGraph": true}
}`
	rec := do(t, s, http.MethodPost, "/frame", "application/json", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	framed := decode(t, rec).(map[string]any)
	assert.Equal(t, "http://example.org/a", framed["@id"])
}

func TestFrameRequiresFrame(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/frame", "application/json", `{"input": {}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestToRDFEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/tordf", "application/ld+json", person)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/n-quads; charset=utf-8", rec.Header().Get("Content-Type"))

	got, err := rdf.ParseNQuads(rec.Body.String())
	require.NoError(t, err)
	want, err := rdf.ParseNQuads(`<http://example.org/alice> <http://schema.org/name> "Alice" .
<http://example.org/alice> <http://schema.org/knows> <http://example.org/bob> .
`)
	require.NoError(t, err)
	assert.True(t, rdf.AreQuadsIsomorphic(want, got), rec.Body.String())
}

func TestToRDFNTriples(t *testing.T) {
	s, _ := newTestServer(t)

	body := `{"@id": "http://example.org/g", "@graph": {"@id": "http://example.org/s", "http://example.org/p": "o"}}`
	req := httptest.NewRequest(http.MethodPost, "/tordf", strings.NewReader(body))
	req.Header.Set("Accept", "application/n-triples")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/n-triples; charset=utf-8", rec.Header().Get("Content-Type"))
	// the only statement lives in a named graph
	assert.Empty(t, rec.Body.String())
}

func TestFromRDFEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	nq := `<http://example.org/s> <http://example.org/p> "5"^^<http://www.w3.org/2001/XMLSchema#integer> .` + "\n"

	rec := do(t, s, http.MethodPost, "/fromrdf?useNativeTypes=true", "", nq)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	want := []any{map[string]any{
		"@id":                  "http://example.org/s",
		"http://example.org/p": []any{map[string]any{"@value": 5.0}},
	}}
	assert.Equal(t, want, decode(t, rec))

	rec = do(t, s, http.MethodPost, "/fromrdf", "text/turtle", nq)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = do(t, s, http.MethodPost, "/fromrdf", "application/n-quads", "<http://example.org/s> .\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid input", decode(t, rec).(map[string]any)["error"].(map[string]any)["code"])
}

func TestErrorMapping(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name     string
		path     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"bad envelope", "/expand", `{"input":`, http.StatusBadRequest, "invalid input"},
		{"missing input", "/expand", `{}`, http.StatusBadRequest, "invalid input"},
		{"local context", "/expand", `{"input": {"@context": 5, "@id": "http://example.org/x"}}`, http.StatusBadRequest, "invalid local context"},
		{"cyclic", "/expand", `{"input": {"@context": {"a": {"@id": "b"}, "b": {"@id": "a"}}, "a": "x"}}`, http.StatusBadRequest, "cyclic IRI mapping"},
		{"unknown remote", "/expand", `{"input": "http://example.org/missing"}`, http.StatusBadRequest, "loading document failed"},
		{"bad embed", "/frame", `{"input": {}, "frame": {"@embed": "@sometimes"}}`, http.StatusBadRequest, "invalid @embed value"},
		{"broken JSON-LD body", "/tordf", `{`, http.StatusBadRequest, "loading document failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, tt.path, "application/json", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			body := decode(t, rec).(map[string]any)
			assert.Equal(t, tt.wantErr, body["error"].(map[string]any)["code"])
		})
	}
}

func TestMethodsAndPreflight(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/expand", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(t, s, http.MethodOptions, "/compact", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestRequestIDPropagated(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/expand", strings.NewReader(`{"input": {}}`))
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestBodyTooLarge(t *testing.T) {
	s, err := NewServer(Config{MaxBodySize: 16}, nil, nil, nil)
	require.NoError(t, err)

	rec := do(t, s, http.MethodPost, "/expand", "application/json", `{"input": {"http://example.org/p": "a long enough value"}}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRootAndMetrics(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/expand")
	assert.Contains(t, rec.Body.String(), "application/n-quads")

	rec = do(t, s, http.MethodGet, "/nothing-here", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	do(t, s, http.MethodPost, "/expand", "application/json", `{"input": {}}`)
	do(t, s, http.MethodPost, "/expand", "application/json", `{}`)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.requests.WithLabelValues("expand", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.requests.WithLabelValues("expand", "400")))

	rec = do(t, s, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "jsonld_server_requests_total")
	assert.Contains(t, rec.Body.String(), "jsonld_loader_memory_cache_entries")
}
