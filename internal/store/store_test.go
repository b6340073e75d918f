package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/jsonld/internal/storage"
	"github.com/aleksaelezovic/jsonld/pkg/store"
)

func newTestStore(t *testing.T) *DocumentStore {
	t.Helper()
	backend, err := storage.NewInMemoryStorage()
	require.NoError(t, err)
	s := NewDocumentStore(backend)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGet(t *testing.T) {
	s := newTestStore(t)
	entry := &store.Entry{
		URL:         "https://example.org/context.jsonld",
		ContentType: "application/ld+json",
		Body:        []byte(`{"@context":{"name":"http://schema.org/name"}}`),
		StoredAt:    time.Unix(1700000000, 0),
	}
	require.NoError(t, s.Put(entry.URL, entry))

	got, err := s.Get(entry.URL)
	require.NoError(t, err)
	assert.Equal(t, entry.URL, got.URL)
	assert.Equal(t, entry.ContentType, got.ContentType)
	assert.Equal(t, entry.Body, got.Body)
	assert.True(t, got.StoredAt.Equal(entry.StoredAt))
	assert.True(t, got.Expires.IsZero())

	_, err = s.Get("https://example.org/missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRedirectAlias(t *testing.T) {
	s := newTestStore(t)
	entry := &store.Entry{
		URL:  "https://example.org/final",
		Body: []byte(`{}`),
	}
	require.NoError(t, s.Put("https://example.org/start", entry))

	for _, url := range []string{"https://example.org/start", "https://example.org/final"} {
		got, err := s.Get(url)
		require.NoError(t, err, url)
		assert.Equal(t, "https://example.org/final", got.URL)
	}
}

func TestStaleEntries(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	s.now = func() time.Time { return now }

	fresh := &store.Entry{URL: "https://example.org/fresh", Expires: now.Add(time.Hour)}
	require.NoError(t, s.Put(fresh.URL, fresh))

	// already stale entries are not written at all
	stale := &store.Entry{URL: "https://example.org/stale", Expires: now.Add(-time.Minute)}
	require.NoError(t, s.Put(stale.URL, stale))
	_, err := s.Get(stale.URL)
	assert.ErrorIs(t, err, store.ErrNotFound)

	count, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// move the clock past the expiry
	s.now = func() time.Time { return now.Add(2 * time.Hour) }
	_, err = s.Get(fresh.URL)
	assert.ErrorIs(t, err, store.ErrNotFound)

	purged, err := s.Purge()
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	count, err = s.Count()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	entry := &store.Entry{URL: "https://example.org/doc", Body: []byte(`[]`)}
	require.NoError(t, s.Put(entry.URL, entry))
	require.NoError(t, s.Delete(entry.URL))

	_, err := s.Get(entry.URL)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPurgeDropsAliases(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	s.now = func() time.Time { return now }

	entry := &store.Entry{URL: "https://example.org/final", Expires: now.Add(time.Hour)}
	require.NoError(t, s.Put("https://example.org/start", entry))

	s.now = func() time.Time { return now.Add(2 * time.Hour) }
	purged, err := s.Purge()
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	// a fresh document under the final URL must not resurface the alias
	s.now = func() time.Time { return now }
	other := &store.Entry{URL: "https://example.org/final"}
	require.NoError(t, s.Put(other.URL, other))
	_, err = s.Get("https://example.org/start")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.Get(other.URL)
	assert.NoError(t, err)

	purged, err = s.Purge()
	require.NoError(t, err)
	assert.Zero(t, purged)
}

func TestClear(t *testing.T) {
	s := newTestStore(t)
	for _, url := range []string{"https://example.org/a", "https://example.org/b"} {
		require.NoError(t, s.Put(url, &store.Entry{URL: url}))
	}
	require.NoError(t, s.Put("https://example.org/c", &store.Entry{URL: "https://example.org/a"}))

	require.NoError(t, s.Clear())

	count, err := s.Count()
	require.NoError(t, err)
	assert.Zero(t, count)
	_, err = s.Get("https://example.org/c")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
