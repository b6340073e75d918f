package jsonld

import (
	"go.uber.org/zap"
)

// Processing modes
const (
	ProcessingMode10 = "json-ld-1.0"
	ProcessingMode11 = "json-ld-1.1"
)

// RdfDirection values
const (
	RdfDirectionI18NDatatype    = "i18n-datatype"
	RdfDirectionCompoundLiteral = "compound-literal"
)

// Embed controls how often a matched subject is inlined during framing.
type Embed string

const (
	EmbedAlways Embed = "@always"
	EmbedOnce   Embed = "@once"
	EmbedNever  Embed = "@never"
	// EmbedLink embeds the first occurrence; later ones are references.
	EmbedLink Embed = "@link"
)

// Options configures the JSON-LD algorithms. Start from NewOptions; the
// zero value disables array compaction and relative IRI compaction.
type Options struct {
	// Base overrides the document IRI as root for relative IRI resolution.
	Base string
	// ExpandContext is applied before the document's own context.
	ExpandContext any
	// CompactArrays collapses single-element arrays in compacted output.
	CompactArrays bool
	// CompactToRelative compacts IRIs relative to the base.
	CompactToRelative bool
	// Ordered sorts subjects and properties in FromRDF output. Expansion,
	// flattening and framing always iterate keys in sorted order.
	Ordered bool
	// ProcessingMode is ProcessingMode10 or ProcessingMode11.
	ProcessingMode string

	ProduceGeneralizedRdf bool
	UseNativeTypes        bool
	UseRdfType            bool
	RdfDirection          string

	// Framing flags
	Embed       Embed
	Explicit    bool
	OmitDefault bool
	// OmitGraph drops the top-level @graph when the framed result has a
	// single node. Nil means true in 1.1 mode and false in 1.0 mode.
	OmitGraph  *bool
	RequireAll bool

	DocumentLoader DocumentLoader
	Logger         *zap.Logger
}

// NewOptions returns the default option set
func NewOptions() *Options {
	return &Options{
		CompactArrays:     true,
		CompactToRelative: true,
		ProcessingMode:    ProcessingMode11,
		Embed:             EmbedOnce,
	}
}

func (o *Options) clone() *Options {
	if o == nil {
		return NewOptions()
	}
	c := *o
	if c.ProcessingMode == "" {
		c.ProcessingMode = ProcessingMode11
	}
	if c.Embed == "" {
		c.Embed = EmbedOnce
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return &c
}

func (o *Options) is10() bool {
	return o.ProcessingMode == ProcessingMode10
}

func (o *Options) omitGraph() bool {
	if o.OmitGraph != nil {
		return *o.OmitGraph
	}
	return !o.is10()
}
