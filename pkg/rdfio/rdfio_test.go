package rdfio

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/jsonld/pkg/rdf"
)

const dataset = `<http://example.org/s> <http://example.org/p> "o" .
<http://example.org/s> <http://example.org/p> <http://example.org/o> <http://example.org/g> .
`

func TestNewParser(t *testing.T) {
	tests := []struct {
		contentType string
		want        string
		wantErr     bool
	}{
		{"application/n-quads", ContentTypeNQuads, false},
		{"Application/N-Quads; charset=utf-8", ContentTypeNQuads, false},
		{"application/n-triples", ContentTypeNTriples, false},
		{"text/plain", ContentTypeNTriples, false},
		{"application/ld+json", ContentTypeJSONLD, false},
		{"application/json", ContentTypeJSONLD, false},
		{"text/turtle", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			p, err := NewParser(tt.contentType, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.ContentType())
		})
	}
}

func TestNTriplesRejectsGraphs(t *testing.T) {
	p, err := NewParser(ContentTypeNTriples, nil)
	require.NoError(t, err)
	_, err = p.Parse(context.Background(), strings.NewReader(dataset))
	assert.Error(t, err)
}

func TestNQuadsParseError(t *testing.T) {
	p, err := NewParser(ContentTypeNQuads, nil)
	require.NoError(t, err)
	_, err = p.Parse(context.Background(), strings.NewReader("<http://example.org/s> <p> .\n"))
	assert.ErrorIs(t, err, rdf.ErrInvalidQuad)
}

func TestJSONLDRoundTrip(t *testing.T) {
	ctx := context.Background()

	nq, err := NewParser(ContentTypeNQuads, nil)
	require.NoError(t, err)
	quads, err := nq.Parse(ctx, strings.NewReader(dataset))
	require.NoError(t, err)

	ser, err := NewSerializer(ContentTypeJSONLD, nil)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, ser.Serialize(ctx, &buf, quads))
	assert.Contains(t, buf.String(), `"@graph"`)

	jp, err := NewParser(ContentTypeJSONLD, nil)
	require.NoError(t, err)
	back, err := jp.Parse(ctx, &buf)
	require.NoError(t, err)
	assert.True(t, rdf.AreQuadsIsomorphic(quads, back))

	var out bytes.Buffer
	nts, err := NewSerializer(ContentTypeNTriples, nil)
	require.NoError(t, err)
	require.NoError(t, nts.Serialize(ctx, &out, back))
	assert.Equal(t, "<http://example.org/s> <http://example.org/p> \"o\" .\n", out.String())
}
