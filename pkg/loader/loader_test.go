package loader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aleksaelezovic/jsonld/internal/storage"
	"github.com/aleksaelezovic/jsonld/pkg/jsonld"
	"github.com/aleksaelezovic/jsonld/pkg/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

const contextDoc = `{"@context":{"name":"http://schema.org/name"}}`

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPLoaderContentTypes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ld", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, acceptHeader, r.Header.Get("Accept"))
		w.Header().Set("Content-Type", `application/ld+json; profile="http://www.w3.org/ns/json-ld#expanded"`)
		_, _ = w.Write([]byte(`[{"@id":"http://example.org/a"}]`))
	})
	mux.HandleFunc("/json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Link", `<ctx.jsonld>; rel="http://www.w3.org/ns/json-ld#context"; type="application/ld+json"`)
		_, _ = w.Write([]byte(`{"name":"x"}`))
	})
	mux.HandleFunc("/suffix", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/activity+json")
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/two-contexts", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Add("Link", `<a.jsonld>; rel="http://www.w3.org/ns/json-ld#context"`)
		w.Header().Add("Link", `<b.jsonld>; rel="http://www.w3.org/ns/json-ld#context"`)
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("Link", `</ld>; rel="alternate"; type="application/ld+json"`)
		_, _ = w.Write([]byte(`<html></html>`))
	})
	mux.HandleFunc("/text", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/ld+json")
		_, _ = w.Write([]byte(`{"unterminated":`))
	})
	srv := newServer(t, mux.ServeHTTP)

	tests := []struct {
		name        string
		path        string
		wantURL     string
		wantType    string
		wantContext string
		wantProfile string
		wantCode    jsonld.ErrorCode
	}{
		{
			name:        "json-ld",
			path:        "/ld",
			wantURL:     "/ld",
			wantType:    "application/ld+json",
			wantProfile: "http://www.w3.org/ns/json-ld#expanded",
		},
		{
			name:        "plain json with context link",
			path:        "/json",
			wantURL:     "/json",
			wantType:    "application/json",
			wantContext: "/ctx.jsonld",
		},
		{
			name:     "+json suffix",
			path:     "/suffix",
			wantURL:  "/suffix",
			wantType: "application/activity+json",
		},
		{
			name:     "alternate link",
			path:     "/html",
			wantURL:  "/ld",
			wantType: "application/ld+json",
		},
		{
			name:     "multiple context links",
			path:     "/two-contexts",
			wantCode: jsonld.MultipleContextLinkHeaders,
		},
		{
			name:     "unsupported media type",
			path:     "/text",
			wantCode: jsonld.LoadingDocumentFailed,
		},
		{
			name:     "invalid json",
			path:     "/broken",
			wantCode: jsonld.LoadingDocumentFailed,
		},
		{
			name:     "not found",
			path:     "/missing",
			wantCode: jsonld.LoadingDocumentFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewHTTPLoader(WithClient(srv.Client()), WithCache(nil))
			doc, err := l.LoadDocument(context.Background(), srv.URL+tt.path)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, jsonld.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, srv.URL+tt.wantURL, doc.DocumentURL)
			assert.Equal(t, tt.wantType, doc.ContentType)
			assert.Equal(t, tt.wantProfile, doc.Profile)
			if tt.wantContext != "" {
				assert.Equal(t, srv.URL+tt.wantContext, doc.ContextURL)
			} else {
				assert.Empty(t, doc.ContextURL)
			}
			assert.NotNil(t, doc.Document)
		})
	}
}

func TestHTTPLoaderRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/middle", http.StatusFound)
	})
	mux.HandleFunc("/middle", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/ld+json")
		_, _ = w.Write([]byte(contextDoc))
	})
	srv := newServer(t, mux.ServeHTTP)

	l := NewHTTPLoader(WithClient(srv.Client()))
	doc, err := l.LoadDocument(context.Background(), srv.URL+"/start")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/final", doc.DocumentURL)

	strict := NewHTTPLoader(WithClient(srv.Client()), WithMaxRedirects(0), WithCache(nil))
	_, err = strict.LoadDocument(context.Background(), srv.URL+"/start")
	require.Error(t, err)
	assert.ErrorIs(t, err, jsonld.ErrLoadingDocumentFailed)
}

func TestHTTPLoaderCaching(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/cached", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/ld+json")
		w.Header().Set("Cache-Control", "max-age=3600")
		_, _ = w.Write([]byte(contextDoc))
	})
	mux.HandleFunc("/nostore", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/ld+json")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write([]byte(contextDoc))
	})
	srv := newServer(t, mux.ServeHTTP)

	metrics := NewMetrics()
	reg := prometheus.NewRegistry()
	require.NoError(t, metrics.Register(reg))

	cache := NewMemoryCache(metrics)
	l := NewHTTPLoader(WithClient(srv.Client()), WithCache(cache), WithMetrics(metrics))

	for i := 0; i < 3; i++ {
		doc, err := l.LoadDocument(context.Background(), srv.URL+"/cached")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"@context": map[string]any{"name": "http://schema.org/name"}}, doc.Document)
	}
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Requests.WithLabelValues("network", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Requests.WithLabelValues("cache", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheEntries))

	hits.Store(0)
	for i := 0; i < 2; i++ {
		_, err := l.LoadDocument(context.Background(), srv.URL+"/nostore")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, 1, cache.Len())
}

func TestHTTPLoaderDocumentsAreIndependent(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/ld+json")
		w.Header().Set("Cache-Control", "max-age=60")
		_, _ = w.Write([]byte(contextDoc))
	})

	l := NewHTTPLoader(WithClient(srv.Client()))
	first, err := l.LoadDocument(context.Background(), srv.URL)
	require.NoError(t, err)
	first.Document.(map[string]any)["@context"] = nil

	second, err := l.LoadDocument(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.NotNil(t, second.Document.(map[string]any)["@context"])
}

func TestHTTPLoaderSingleflight(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		w.Header().Set("Content-Type", "application/ld+json")
		w.Header().Set("Cache-Control", "max-age=60")
		_, _ = w.Write([]byte(contextDoc))
	})

	// late callers that miss the in-flight request are served from the cache
	l := NewHTTPLoader(WithClient(srv.Client()))

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.LoadDocument(context.Background(), srv.URL)
			errs <- err
		}()
	}

	require.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPLoaderCancelledCallerDoesNotFailOthers(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		w.Header().Set("Content-Type", "application/ld+json")
		_, _ = w.Write([]byte(contextDoc))
	})
	l := NewHTTPLoader(WithClient(srv.Client()))

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := l.LoadDocument(first, srv.URL)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, 5*time.Millisecond)

	secondErr := make(chan error, 1)
	go func() {
		_, err := l.LoadDocument(context.Background(), srv.URL)
		secondErr <- err
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	err := <-firstErr
	assert.Equal(t, jsonld.LoadingDocumentFailed, jsonld.CodeOf(err))
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	require.NoError(t, <-secondErr)
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPLoaderRejectsOtherSchemes(t *testing.T) {
	l := NewHTTPLoader()
	_, err := l.LoadDocument(context.Background(), "file:///etc/passwd")
	assert.Equal(t, jsonld.LoadingDocumentFailed, jsonld.CodeOf(err))
}

func TestBadgerCache(t *testing.T) {
	backend, err := storage.NewInMemoryStorage()
	require.NoError(t, err)
	cache := NewBadgerCache(backend)
	defer cache.Close()

	var hits atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=600")
		w.Header().Set("Link", `<ctx.jsonld>; rel="http://www.w3.org/ns/json-ld#context"`)
		_, _ = w.Write([]byte(`{"name":"x"}`))
	})

	l := NewHTTPLoader(WithClient(srv.Client()), WithCache(cache))
	for i := 0; i < 2; i++ {
		doc, err := l.LoadDocument(context.Background(), srv.URL+"/doc.json")
		require.NoError(t, err)
		assert.Equal(t, srv.URL+"/ctx.jsonld", doc.ContextURL)
		assert.Equal(t, "application/json", doc.ContentType)
	}
	assert.Equal(t, int32(1), hits.Load())

	entries, err := cache.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Expires.IsZero())
}

func TestMemoryCacheExpiry(t *testing.T) {
	now := time.Now()
	cache := NewMemoryCache(nil)
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Put("http://example.org/a", &store.Entry{
		URL:     "http://example.org/b",
		Expires: now.Add(time.Minute),
	}))
	_, ok := cache.Get("http://example.org/a")
	assert.True(t, ok)
	_, ok = cache.Get("http://example.org/b")
	assert.True(t, ok)

	cache.now = func() time.Time { return now.Add(time.Hour) }
	_, ok = cache.Get("http://example.org/a")
	assert.False(t, ok)
}

func TestFileLoader(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "expand"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "expand", "0001-in.jsonld"), []byte(`{"@id":"x"}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "expand", "0002-in.json"), []byte(`{}`), 0o600))

	fallback := jsonld.NewStaticLoader(map[string]any{"http://other.example/ctx": contextDoc})
	l := NewFileLoader("https://w3c.github.io/json-ld-api/tests/", dir)
	l.Fallback = fallback

	doc, err := l.LoadDocument(context.Background(), "https://w3c.github.io/json-ld-api/tests/expand/0001-in.jsonld")
	require.NoError(t, err)
	assert.Equal(t, "application/ld+json", doc.ContentType)
	assert.Equal(t, map[string]any{"@id": "x"}, doc.Document)

	doc, err = l.LoadDocument(context.Background(), "https://w3c.github.io/json-ld-api/tests/expand/0002-in.json?x=1")
	require.NoError(t, err)
	assert.Equal(t, "application/json", doc.ContentType)

	_, err = l.LoadDocument(context.Background(), "http://other.example/ctx")
	require.NoError(t, err)

	_, err = l.LoadDocument(context.Background(), "https://w3c.github.io/json-ld-api/tests/expand/missing.jsonld")
	assert.ErrorIs(t, err, jsonld.ErrLoadingDocumentFailed)
}

func TestParseLinks(t *testing.T) {
	links := parseLinks([]string{
		`<http://example.org/ctx>; rel="http://www.w3.org/ns/json-ld#context", <alt.jsonld>; rel="alternate meta"; type="application/ld+json"`,
		`<weird,comma>; rel=next`,
		`garbage`,
	})
	require.Len(t, links, 3)
	assert.Equal(t, "http://example.org/ctx", links[0].target)
	assert.True(t, links[0].hasRel(relContext))
	assert.True(t, links[1].hasRel(relAlternate))
	assert.Equal(t, "application/ld+json", links[1].params["type"])
	assert.Equal(t, "weird,comma", links[2].target)
	assert.True(t, links[2].hasRel("next"))
}
