package jsonld

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNullContextResets(t *testing.T) {
	input := parse(t, `{
		"@context": {"@vocab": "http://example.org/", "name": "http://schema.org/name"},
		"@id": "http://example.org/s",
		"name": "outer",
		"p": {
			"@context": null,
			"name": "dropped",
			"q": "dropped",
			"http://example.org/r": "kept"
		}
	}`)
	expanded, err := Expand(context.Background(), input, nil)
	require.NoError(t, err)

	want := []any{
		map[string]any{
			"@id":                    "http://example.org/s",
			"http://schema.org/name": []any{map[string]any{"@value": "outer"}},
			"http://example.org/p": []any{
				map[string]any{
					"http://example.org/r": []any{map[string]any{"@value": "kept"}},
				},
			},
		},
	}
	assert.Empty(t, cmp.Diff(want, expanded))
}

func TestContextParseNull(t *testing.T) {
	active, err := NewContext("http://example.org/doc", nil).Parse(context.Background(),
		map[string]any{"@vocab": "http://example.org/", "name": "http://schema.org/name"}, nil)
	require.NoError(t, err)
	require.NotNil(t, active.Term("name"))

	reset, err := active.Parse(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Nil(t, reset.Term("name"))
	assert.Empty(t, reset.Vocab())
	assert.Equal(t, "http://example.org/doc", reset.Base())

	// snapshots are not mutated
	assert.NotNil(t, active.Term("name"))
	assert.Equal(t, "http://example.org/", active.Vocab())

	t.Run("inside an array", func(t *testing.T) {
		reset, err := active.Parse(context.Background(), []any{nil, map[string]any{"q": "http://example.org/q"}}, nil)
		require.NoError(t, err)
		assert.Nil(t, reset.Term("name"))
		require.NotNil(t, reset.Term("q"))
	})
}

func TestVocabExpansion(t *testing.T) {
	tests := []struct {
		name    string
		context string
		want    string
	}{
		{
			name:    "absolute IRI",
			context: `{"@vocab": "http://example.org/ns#"}`,
			want:    "http://example.org/ns#",
		},
		{
			name:    "term from the same context",
			context: `{"ex": "http://example.org/ns#", "@vocab": "ex"}`,
			want:    "http://example.org/ns#",
		},
		{
			name:    "compact IRI",
			context: `{"ex": "http://example.org/", "@vocab": "ex:ns/"}`,
			want:    "http://example.org/ns/",
		},
		{
			name:    "relative to the previous vocabulary",
			context: `[{"@vocab": "http://example.org/"}, {"@vocab": "ns/"}]`,
			want:    "http://example.org/ns/",
		},
		{
			name:    "empty string is the document base",
			context: `{"@vocab": ""}`,
			want:    "http://example.org/doc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			active, err := NewContext("http://example.org/doc", nil).Parse(context.Background(), parse(t, tt.context), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, active.Vocab())
		})
	}
}

func TestVocabTermExpandsProperties(t *testing.T) {
	input := parse(t, `{
		"@context": {"ex": "http://example.org/ns#", "@vocab": "ex"},
		"@id": "http://example.org/s",
		"name": "x"
	}`)
	expanded, err := Expand(context.Background(), input, nil)
	require.NoError(t, err)

	require.Len(t, expanded, 1)
	assert.Contains(t, expanded[0], "http://example.org/ns#name")
}
