package encoding

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/jsonld/pkg/store"
)

func TestHash128(t *testing.T) {
	e := NewKeyEncoder()
	a := e.Hash128("https://example.org/a")
	assert.Equal(t, a, e.Hash128("https://example.org/a"))
	assert.NotEqual(t, a, e.Hash128("https://example.org/b"))
}

func TestEntryRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		entry *store.Entry
	}{
		{
			name:  "empty",
			entry: &store.Entry{},
		},
		{
			name: "full",
			entry: &store.Entry{
				URL:         "https://example.org/doc.jsonld",
				ContentType: "application/ld+json",
				ContextURL:  "https://example.org/context.jsonld",
				Profile:     "http://www.w3.org/ns/json-ld#expanded",
				Body:        []byte(`{"@id":"https://example.org/x"}`),
				StoredAt:    time.Unix(1700000000, 123),
				Expires:     time.Unix(1700003600, 0),
			},
		},
	}

	enc, dec := NewEntryEncoder(), NewEntryDecoder()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := enc.EncodeEntry(tt.entry)
			require.NoError(t, err)

			got, err := dec.DecodeEntry(data)
			require.NoError(t, err)
			assert.Equal(t, tt.entry.URL, got.URL)
			assert.Equal(t, tt.entry.ContentType, got.ContentType)
			assert.Equal(t, tt.entry.ContextURL, got.ContextURL)
			assert.Equal(t, tt.entry.Profile, got.Profile)
			assert.Equal(t, string(tt.entry.Body), string(got.Body))
			assert.True(t, tt.entry.StoredAt.Equal(got.StoredAt))
			assert.True(t, tt.entry.Expires.Equal(got.Expires))
		})
	}
}

func TestDecodeCorrupt(t *testing.T) {
	enc, dec := NewEntryEncoder(), NewEntryDecoder()
	data, err := enc.EncodeEntry(&store.Entry{URL: "https://example.org/", Body: []byte("{}")})
	require.NoError(t, err)

	_, err = dec.DecodeEntry(data[:5])
	assert.Error(t, err)

	_, err = dec.DecodeEntry(data[:len(data)-1])
	assert.Error(t, err)

	bad := append([]byte{}, data...)
	bad[0] = 99
	_, err = dec.DecodeEntry(bad)
	assert.Error(t, err)

	_, err = dec.DecodeEntry(append(data, 0))
	assert.Error(t, err)
}
