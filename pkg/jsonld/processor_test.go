package jsonld

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/piprate/json-gold/ld"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/jsonld/pkg/rdf"
)

func parse(t *testing.T, doc string) any {
	t.Helper()
	v, err := ParseJSON(strings.NewReader(doc))
	require.NoError(t, err)
	return v
}

var sampleDocs = map[string]string{
	"simple": `{
		"@context": {"name": "http://schema.org/name"},
		"@id": "http://example.org/alice",
		"name": "Alice"
	}`,
	"typed and coerced": `{
		"@context": {
			"schema": "http://schema.org/",
			"knows": {"@id": "schema:knows", "@type": "@id"},
			"born": {"@id": "schema:birthDate", "@type": "http://www.w3.org/2001/XMLSchema#date"}
		},
		"@id": "http://example.org/alice",
		"@type": "schema:Person",
		"knows": "http://example.org/bob",
		"born": "1990-01-01"
	}`,
	"language map": `{
		"@context": {
			"label": {"@id": "http://www.w3.org/2000/01/rdf-schema#label", "@container": "@language"}
		},
		"@id": "http://example.org/x",
		"label": {"en": "colour", "de": "Farbe"}
	}`,
	"list": `{
		"@context": {"items": {"@id": "http://example.org/items", "@container": "@list"}},
		"@id": "http://example.org/l",
		"items": ["a", "b", {"@id": "http://example.org/c"}]
	}`,
	"nested blank nodes": `{
		"@context": {"@vocab": "http://example.org/"},
		"@id": "http://example.org/root",
		"child": [{"name": "x"}, {"name": "y", "child": {"name": "z"}}]
	}`,
	"reverse": `{
		"@context": {"parent": {"@reverse": "http://example.org/child"}},
		"@id": "http://example.org/kid",
		"parent": {"@id": "http://example.org/mum"}
	}`,
	"named graph": `{
		"@context": {"@vocab": "http://example.org/"},
		"@id": "http://example.org/g",
		"@graph": [{"@id": "http://example.org/s", "p": "o"}]
	}`,
}

func TestExpand(t *testing.T) {
	expanded, err := Expand(context.Background(), parse(t, sampleDocs["simple"]), nil)
	require.NoError(t, err)

	want := []any{
		map[string]any{
			"@id":                    "http://example.org/alice",
			"http://schema.org/name": []any{map[string]any{"@value": "Alice"}},
		},
	}
	assert.Empty(t, cmp.Diff(want, expanded))
}

func TestExpandMatchesReferenceProcessor(t *testing.T) {
	for name, doc := range sampleDocs {
		t.Run(name, func(t *testing.T) {
			ours, err := Expand(context.Background(), parse(t, doc), nil)
			require.NoError(t, err)

			theirs, err := ld.NewJsonLdProcessor().Expand(parse(t, doc), ld.NewJsonLdOptions(""))
			require.NoError(t, err)

			assert.Empty(t, cmp.Diff(theirs, ours))
		})
	}
}

func TestToRDFMatchesReferenceProcessor(t *testing.T) {
	for name, doc := range sampleDocs {
		t.Run(name, func(t *testing.T) {
			ours, err := ToRDF(context.Background(), parse(t, doc), nil)
			require.NoError(t, err)

			result, err := ld.NewJsonLdProcessor().ToRDF(parse(t, doc), ld.NewJsonLdOptions(""))
			require.NoError(t, err)
			serialized, err := (&ld.NQuadRDFSerializer{}).Serialize(result.(*ld.RDFDataset))
			require.NoError(t, err)
			theirs, err := rdf.ParseNQuads(serialized.(string))
			require.NoError(t, err)

			assert.True(t, rdf.AreQuadsIsomorphic(theirs, ours),
				"reference:\n%s\nours:\n%s", serialized, rdf.SerializeNQuads(ours))
		})
	}
}

func TestExpandIsIdempotent(t *testing.T) {
	for name, doc := range sampleDocs {
		t.Run(name, func(t *testing.T) {
			once, err := Expand(context.Background(), parse(t, doc), nil)
			require.NoError(t, err)
			twice, err := Expand(context.Background(), once, nil)
			require.NoError(t, err)
			assert.Empty(t, cmp.Diff(once, twice))
		})
	}
}

func TestCompact(t *testing.T) {
	expanded := parse(t, `[{
		"@id": "http://example.org/alice",
		"@type": ["http://schema.org/Person"],
		"http://schema.org/name": [{"@value": "Alice"}],
		"http://schema.org/knows": [{"@id": "http://example.org/bob"}]
	}]`)
	ctx := parse(t, `{"@context": {
		"schema": "http://schema.org/",
		"name": "schema:name",
		"knows": {"@id": "schema:knows", "@type": "@id"}
	}}`)

	compacted, err := Compact(context.Background(), expanded, ctx, nil)
	require.NoError(t, err)

	want := map[string]any{
		"@context": map[string]any{
			"schema": "http://schema.org/",
			"name":   "schema:name",
			"knows":  map[string]any{"@id": "schema:knows", "@type": "@id"},
		},
		"@id":   "http://example.org/alice",
		"@type": "schema:Person",
		"name":  "Alice",
		"knows": "http://example.org/bob",
	}
	assert.Empty(t, cmp.Diff(want, compacted))
}

func TestCompactArrays(t *testing.T) {
	expanded := parse(t, `[{"@id": "http://example.org/a", "http://example.org/p": [{"@value": "x"}]}]`)
	ctx := map[string]any{"p": "http://example.org/p"}

	opts := NewOptions()
	opts.CompactArrays = false
	compacted, err := Compact(context.Background(), expanded, ctx, opts)
	require.NoError(t, err)

	assert.Equal(t, []any{map[string]any{
		"@id": "http://example.org/a",
		"p":   []any{"x"},
	}}, compacted["@graph"])
}

func TestCompactGraphObject(t *testing.T) {
	expanded := parse(t, `[{
		"@id": "http://example.org/s",
		"http://example.org/g": [{"@graph": [{"@id": "http://example.org/n", "http://example.org/p": [{"@value": "v"}]}]}]
	}]`)
	localContext := map[string]any{"@vocab": "http://example.org/"}

	t.Run("single node collapses", func(t *testing.T) {
		compacted, err := Compact(context.Background(), expanded, localContext, nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{
			"@graph": map[string]any{"@id": "http://example.org/n", "p": "v"},
		}, compacted["g"])
	})

	t.Run("arrays kept", func(t *testing.T) {
		opts := NewOptions()
		opts.CompactArrays = false
		compacted, err := Compact(context.Background(), expanded, localContext, opts)
		require.NoError(t, err)
		graph := compacted["@graph"].([]any)
		require.Len(t, graph, 1)
		assert.Equal(t, []any{map[string]any{
			"@graph": []any{map[string]any{"@id": "http://example.org/n", "p": []any{"v"}}},
		}}, graph[0].(map[string]any)["g"])
	})

	t.Run("set container", func(t *testing.T) {
		ctx := map[string]any{
			"@vocab": "http://example.org/",
			"g":      map[string]any{"@id": "http://example.org/g", "@container": "@set"},
		}
		compacted, err := Compact(context.Background(), expanded, ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, []any{map[string]any{
			"@graph": []any{map[string]any{"@id": "http://example.org/n", "p": "v"}},
		}}, compacted["g"])
	})
}

func TestCompactExpandRoundTrip(t *testing.T) {
	for name, doc := range sampleDocs {
		t.Run(name, func(t *testing.T) {
			input := parse(t, doc).(map[string]any)
			expanded, err := Expand(context.Background(), input, nil)
			require.NoError(t, err)

			compacted, err := Compact(context.Background(), expanded, input["@context"], nil)
			require.NoError(t, err)

			again, err := Expand(context.Background(), compacted, nil)
			require.NoError(t, err)
			assert.Empty(t, cmp.Diff(expanded, again))
		})
	}
}

func TestFlattenIssuesUniqueBlankNodes(t *testing.T) {
	flattened, err := Flatten(context.Background(), parse(t, sampleDocs["nested blank nodes"]), nil, nil)
	require.NoError(t, err)

	nodes := flattened.([]any)
	require.Len(t, nodes, 4)

	seen := map[string]bool{}
	for _, n := range nodes {
		id, _ := n.(map[string]any)["@id"].(string)
		require.NotEmpty(t, id)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}

	// subjects are ordered IRIs first
	root := nodes[0].(map[string]any)
	assert.Equal(t, "http://example.org/root", root["@id"])

	// embedded nodes became references to top-level nodes
	for _, ref := range root["http://example.org/child"].([]any) {
		m := ref.(map[string]any)
		assert.Len(t, m, 1)
		assert.True(t, seen[m["@id"].(string)])
	}
}

func TestFlattenWithContext(t *testing.T) {
	input := parse(t, sampleDocs["named graph"])
	flattened, err := Flatten(context.Background(), input, map[string]any{"@vocab": "http://example.org/"}, nil)
	require.NoError(t, err)

	want := map[string]any{
		"@context": map[string]any{"@vocab": "http://example.org/"},
		"@graph": []any{
			map[string]any{
				"@id": "http://example.org/g",
				"@graph": []any{
					map[string]any{"@id": "http://example.org/s", "p": "o"},
				},
			},
		},
	}
	assert.Empty(t, cmp.Diff(want, flattened))
}

const cyclicPeople = `{
	"@context": {"@vocab": "http://example.org/"},
	"@graph": [
		{"@id": "http://example.org/a", "@type": "Person", "knows": {"@id": "http://example.org/b"}},
		{"@id": "http://example.org/b", "@type": "Person", "knows": {"@id": "http://example.org/a"}}
	]
}`

func TestFrameCycle(t *testing.T) {
	frame := parse(t, `{"@context": {"@vocab": "http://example.org/"}, "@id": "http://example.org/a"}`)
	framed, err := Frame(context.Background(), parse(t, cyclicPeople), frame, nil)
	require.NoError(t, err)

	want := map[string]any{
		"@context": map[string]any{"@vocab": "http://example.org/"},
		"@id":      "http://example.org/a",
		"@type":    "Person",
		"knows": map[string]any{
			"@id":   "http://example.org/b",
			"@type": "Person",
			"knows": map[string]any{"@id": "http://example.org/a"},
		},
	}
	assert.Empty(t, cmp.Diff(want, framed))
}

func TestFrameEmbedNever(t *testing.T) {
	frame := parse(t, `{
		"@context": {"@vocab": "http://example.org/"},
		"@id": "http://example.org/a",
		"knows": {"@embed": "@never"}
	}`)
	framed, err := Frame(context.Background(), parse(t, cyclicPeople), frame, nil)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"@id": "http://example.org/b"}, framed["knows"])
}

func TestFrameTypeMatchAllSubjects(t *testing.T) {
	frame := parse(t, `{"@context": {"@vocab": "http://example.org/"}, "@type": "Person"}`)
	framed, err := Frame(context.Background(), parse(t, cyclicPeople), frame, nil)
	require.NoError(t, err)

	graph, ok := framed["@graph"].([]any)
	require.True(t, ok)
	require.Len(t, graph, 2)

	// each node is embedded once; later occurrences are references
	want := []any{
		map[string]any{
			"@id":   "http://example.org/a",
			"@type": "Person",
			"knows": map[string]any{
				"@id":   "http://example.org/b",
				"@type": "Person",
				"knows": map[string]any{"@id": "http://example.org/a"},
			},
		},
		map[string]any{"@id": "http://example.org/b"},
	}
	assert.Empty(t, cmp.Diff(want, graph))
}

func TestFrameEmbedAlways(t *testing.T) {
	frame := parse(t, `{"@context": {"@vocab": "http://example.org/"}, "@type": "Person", "@embed": "@always"}`)
	framed, err := Frame(context.Background(), parse(t, cyclicPeople), frame, nil)
	require.NoError(t, err)

	graph := framed["@graph"].([]any)
	require.Len(t, graph, 2)
	b := graph[1].(map[string]any)
	assert.Equal(t, "Person", b["@type"])
	// the cycle is broken at the node being embedded
	assert.Equal(t, map[string]any{"@id": "http://example.org/b"}, b["knows"].(map[string]any)["knows"])
}

func TestFrameDefaultEmbedIsOnce(t *testing.T) {
	assert.Equal(t, EmbedOnce, NewOptions().Embed)
}

func TestFrameExplicitAndDefault(t *testing.T) {
	input := parse(t, `{
		"@context": {"@vocab": "http://example.org/"},
		"@id": "http://example.org/a",
		"@type": "Thing",
		"name": "A",
		"extra": "dropped"
	}`)
	frame := parse(t, `{
		"@context": {"@vocab": "http://example.org/"},
		"@type": "Thing",
		"@explicit": true,
		"name": {},
		"missing": {"@default": "fallback"}
	}`)
	framed, err := Frame(context.Background(), input, frame, nil)
	require.NoError(t, err)

	assert.Equal(t, "A", framed["name"])
	assert.Equal(t, "fallback", framed["missing"])
	assert.NotContains(t, framed, "extra")
}

func TestFrameDefaults(t *testing.T) {
	input := parse(t, `{
		"@context": {"@vocab": "http://example.org/"},
		"@id": "http://example.org/a",
		"name": "A"
	}`)

	tests := []struct {
		name  string
		frame string
		key   string
		want  any
	}{
		{
			name:  "string",
			frame: `{"@context": {"@vocab": "http://example.org/"}, "@id": "http://example.org/a", "missing": {"@default": "x"}}`,
			key:   "missing",
			want:  "x",
		},
		{
			name:  "empty array",
			frame: `{"@context": {"@vocab": "http://example.org/"}, "@id": "http://example.org/a", "missing": {"@default": []}}`,
			key:   "missing",
			want:  []any{},
		},
		{
			name:  "null keyword",
			frame: `{"@context": {"@vocab": "http://example.org/"}, "@id": "http://example.org/a", "missing": {"@default": "@null"}}`,
			key:   "missing",
			want:  nil,
		},
		{
			name:  "no default",
			frame: `{"@context": {"@vocab": "http://example.org/"}, "@id": "http://example.org/a", "missing": {}}`,
			key:   "missing",
			want:  nil,
		},
		{
			name:  "type",
			frame: `{"@context": {"@vocab": "http://example.org/"}, "@id": "http://example.org/a", "@type": {"@default": "Fallback"}}`,
			key:   "@type",
			want:  "Fallback",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			framed, err := Frame(context.Background(), input, parse(t, tt.frame), nil)
			require.NoError(t, err)
			assert.Equal(t, "A", framed["name"])
			require.Contains(t, framed, tt.key)
			assert.Equal(t, tt.want, framed[tt.key])
		})
	}
}

func TestFrameInvalidEmbed(t *testing.T) {
	frame := parse(t, `{"@context": {"@vocab": "http://example.org/"}, "@embed": "@sometimes"}`)
	_, err := Frame(context.Background(), parse(t, cyclicPeople), frame, nil)
	assert.Equal(t, InvalidEmbedValue, CodeOf(err))
}

func TestRemoteContexts(t *testing.T) {
	loader := NewStaticLoader(map[string]any{
		"http://example.org/ctx1": `{"@context": "http://example.org/ctx2"}`,
		"http://example.org/ctx2": `{"@context": "http://example.org/ctx1"}`,
		"http://example.org/good": `{"@context": {"name": "http://schema.org/name"}}`,
	})
	opts := NewOptions()
	opts.DocumentLoader = loader

	t.Run("recursive inclusion fails", func(t *testing.T) {
		input := parse(t, `{"@context": "http://example.org/ctx1", "@id": "http://example.org/x"}`)
		_, err := Flatten(context.Background(), input, nil, opts)
		require.Error(t, err)
		assert.Equal(t, RecursiveContextInclusion, CodeOf(err))
		assert.ErrorIs(t, err, ErrRecursiveContextInclusion)
	})

	t.Run("remote context is applied", func(t *testing.T) {
		input := parse(t, `{"@context": "http://example.org/good", "name": "Alice"}`)
		expanded, err := Expand(context.Background(), input, opts)
		require.NoError(t, err)
		assert.Equal(t, []any{map[string]any{
			"http://schema.org/name": []any{map[string]any{"@value": "Alice"}},
		}}, expanded)
	})

	t.Run("missing context", func(t *testing.T) {
		input := parse(t, `{"@context": "http://example.org/missing", "name": "Alice"}`)
		_, err := Expand(context.Background(), input, opts)
		assert.Equal(t, LoadingRemoteContextFailed, CodeOf(err))
	})
}

func TestLinkHeaderContext(t *testing.T) {
	loader := DocumentLoaderFunc(func(_ context.Context, url string) (*RemoteDocument, error) {
		switch url {
		case "http://example.org/data.json":
			return &RemoteDocument{
				DocumentURL: url,
				Document:    map[string]any{"name": "Alice"},
				ContextURL:  "http://example.org/ctx",
				ContentType: "application/json",
			}, nil
		case "http://example.org/ctx":
			return &RemoteDocument{
				DocumentURL: url,
				Document:    map[string]any{"@context": map[string]any{"name": "http://schema.org/name"}},
			}, nil
		}
		return nil, assert.AnError
	})
	opts := NewOptions()
	opts.DocumentLoader = loader

	expanded, err := Expand(context.Background(), "http://example.org/data.json", opts)
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{
		"http://schema.org/name": []any{map[string]any{"@value": "Alice"}},
	}}, expanded)

	_, err = Expand(context.Background(), "http://example.org/nowhere", opts)
	assert.Equal(t, LoadingDocumentFailed, CodeOf(err))
}

func TestExpandKeywordLikeID(t *testing.T) {
	input := parse(t, `{
		"@id": "http://example.org/s",
		"http://example.org/p": {"@id": "@ignoreMe", "http://example.org/q": "v"}
	}`)
	expanded, err := Expand(context.Background(), input, nil)
	require.NoError(t, err)

	want := []any{
		map[string]any{
			"@id": "http://example.org/s",
			"http://example.org/p": []any{
				map[string]any{
					"@id":                  nil,
					"http://example.org/q": []any{map[string]any{"@value": "v"}},
				},
			},
		},
	}
	assert.Empty(t, cmp.Diff(want, expanded))
}

func TestExpandOptions(t *testing.T) {
	t.Run("base", func(t *testing.T) {
		opts := NewOptions()
		opts.Base = "http://example.org/base/"
		expanded, err := Expand(context.Background(), map[string]any{
			"@id":                  "rel",
			"http://example.org/p": map[string]any{"@id": "../up"},
		}, opts)
		require.NoError(t, err)
		node := expanded[0].(map[string]any)
		assert.Equal(t, "http://example.org/base/rel", node["@id"])
		assert.Equal(t, []any{map[string]any{"@id": "http://example.org/up"}}, node["http://example.org/p"])
	})

	t.Run("expandContext", func(t *testing.T) {
		opts := NewOptions()
		opts.ExpandContext = map[string]any{"@context": map[string]any{"name": "http://schema.org/name"}}
		expanded, err := Expand(context.Background(), map[string]any{"name": "Alice"}, opts)
		require.NoError(t, err)
		assert.Equal(t, []any{map[string]any{
			"http://schema.org/name": []any{map[string]any{"@value": "Alice"}},
		}}, expanded)
	})
}

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  ErrorCode
	}{
		{
			name:  "invalid local context",
			input: `{"@context": 5, "@id": "http://example.org/x"}`,
			want:  InvalidLocalContext,
		},
		{
			name:  "invalid default language",
			input: `{"@context": {"@language": 5}}`,
			want:  InvalidDefaultLanguage,
		},
		{
			name:  "cyclic IRI mapping",
			input: `{"@context": {"a": {"@id": "b"}, "b": {"@id": "a"}}, "a": "x"}`,
			want:  CyclicIRIMapping,
		},
		{
			name:  "colliding keywords",
			input: `{"@context": {"id": "@id"}, "@id": "http://example.org/a", "id": "http://example.org/b"}`,
			want:  CollidingKeywords,
		},
		{
			name:  "invalid type value",
			input: `{"@id": "http://example.org/a", "@type": 5}`,
			want:  InvalidTypeValue,
		},
		{
			name:  "datatype IRI with a space",
			input: `{"http://example.org/p": {"@value": "x", "@type": "http://example.org/bad type"}}`,
			want:  InvalidTypedValue,
		},
		{
			name:  "invalid language-tagged string",
			input: `{"http://example.org/p": {"@value": "x", "@language": 5}}`,
			want:  InvalidLanguageTaggedString,
		},
		{
			name:  "invalid value object",
			input: `{"http://example.org/p": {"@value": "x", "@id": "http://example.org/y"}}`,
			want:  InvalidValueObject,
		},
		{
			name: "protected term redefinition",
			input: `{"@context": [
				{"@protected": true, "name": "http://schema.org/name"},
				{"name": "http://example.org/name"}
			], "name": "x"}`,
			want: ProtectedTermRedefinition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Expand(context.Background(), parse(t, tt.input), nil)
			require.Error(t, err)
			assert.Equal(t, tt.want, CodeOf(err), "error: %v", err)
		})
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Expand(ctx, parse(t, sampleDocs["simple"]), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcessorConcurrentUse(t *testing.T) {
	loader := NewStaticLoader(map[string]any{
		"http://example.org/ctx": `{"@context": {"name": "http://schema.org/name"}}`,
	})
	opts := NewOptions()
	opts.DocumentLoader = loader
	p := NewProcessor(opts)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			input := map[string]any{"@context": "http://example.org/ctx", "name": "Alice"}
			compacted, err := p.Compact(context.Background(), input, "http://example.org/ctx")
			if err == nil && compacted["name"] != "Alice" {
				err = assert.AnError
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}
