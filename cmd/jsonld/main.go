package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aleksaelezovic/jsonld/internal/config"
)

var (
	// Global flags
	verbose    bool
	configPath string
	cacheDir   string
	base       string
	ordered    bool

	// Per-command flags
	contextArg   string
	frameArg     string
	embed        string
	explicit     bool
	omitDefault  bool
	requireAll   bool
	rdfDirection string
	nativeTypes  bool
	rdfFormat    string
	addr         string

	// Set up by PersistentPreRunE
	logger *zap.Logger
	cfg    *config.Config
)

// newRootCmd builds the command tree. Every call resets the flag variables
// to their defaults.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "jsonld",
		Short: "JSON-LD 1.1 processor",
		Long: `jsonld expands, compacts, flattens and frames JSON-LD documents and
converts between JSON-LD and RDF datasets.

Input is a file path, an http(s) URL, or "-" (the default) for stdin.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	pf.StringVar(&configPath, "config", "", "YAML configuration file")
	pf.StringVar(&cacheDir, "cache-dir", "", "Directory of the persistent remote document cache")
	pf.StringVar(&base, "base", "", "Base IRI overriding the document URL")
	pf.BoolVar(&ordered, "ordered", false, "Sort subjects and properties in fromrdf output")

	expandCmd := &cobra.Command{
		Use:   "expand [input]",
		Short: "Expand a document, removing its context",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runExpand,
	}
	expandCmd.Flags().StringVar(&contextArg, "context", "", "Context applied before the document's own (expandContext)")

	compactCmd := &cobra.Command{
		Use:   "compact [input]",
		Short: "Compact a document against a context",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runCompact,
	}
	compactCmd.Flags().StringVar(&contextArg, "context", "", "Context document, file or URL (required)")
	_ = compactCmd.MarkFlagRequired("context")

	flattenCmd := &cobra.Command{
		Use:   "flatten [input]",
		Short: "Flatten a document into a single list of node objects",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runFlatten,
	}
	flattenCmd.Flags().StringVar(&contextArg, "context", "", "Context used to compact the flattened output")

	frameCmd := &cobra.Command{
		Use:   "frame [input]",
		Short: "Reshape a document into the tree described by a frame",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runFrame,
	}
	ff := frameCmd.Flags()
	ff.StringVar(&frameArg, "frame", "", "Frame document, file or URL (required)")
	ff.StringVar(&embed, "embed", "", "Default @embed: @always, @once, @never or @link")
	ff.BoolVar(&explicit, "explicit", false, "Only include properties named in the frame")
	ff.BoolVar(&omitDefault, "omit-default", false, "Omit properties missing from the input instead of adding @null")
	ff.BoolVar(&requireAll, "require-all", false, "Match only nodes having every property of the frame")
	_ = frameCmd.MarkFlagRequired("frame")

	toRDFCmd := &cobra.Command{
		Use:   "tordf [input]",
		Short: "Convert a document to an RDF dataset",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runToRDF,
	}
	toRDFCmd.Flags().StringVar(&rdfFormat, "format", "application/n-quads", "Output media type (application/n-quads or application/n-triples)")
	toRDFCmd.Flags().StringVar(&rdfDirection, "rdf-direction", "", "Base direction handling: i18n-datatype or compound-literal")

	fromRDFCmd := &cobra.Command{
		Use:   "fromrdf [input]",
		Short: "Convert an RDF dataset to expanded JSON-LD",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runFromRDF,
	}
	fromRDFCmd.Flags().StringVar(&rdfFormat, "format", "application/n-quads", "Input media type")
	fromRDFCmd.Flags().StringVar(&rdfDirection, "rdf-direction", "", "Base direction handling: i18n-datatype or compound-literal")
	fromRDFCmd.Flags().BoolVar(&nativeTypes, "use-native-types", false, "Convert xsd:boolean, integer and double literals to JSON")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP JSON-LD endpoint",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config: localhost:8080)")

	rootCmd.AddCommand(expandCmd, compactCmd, flattenCmd, frameCmd, toRDFCmd, fromRDFCmd, serveCmd, newCacheCmd())
	return rootCmd
}

// setup loads the configuration, applies flag overrides and builds the logger
func setup(cmd *cobra.Command, args []string) error {
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
		if err != nil {
			return err
		}
	} else {
		cfg = config.DefaultConfig()
	}

	flags := cmd.Flags()
	if flags.Changed("cache-dir") {
		cfg.Loader.CacheDir = cacheDir
	}
	if flags.Changed("base") {
		cfg.Processing.Base = base
	}
	if flags.Changed("ordered") {
		cfg.Processing.Ordered = ordered
	}
	if flags.Changed("embed") {
		cfg.Processing.Embed = embed
	}
	if flags.Changed("rdf-direction") {
		cfg.Processing.RdfDirection = rdfDirection
	}
	if flags.Changed("addr") {
		cfg.Server.Addr = addr
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(cfg.Level())
	if cfg.Level() == zapcore.DebugLevel {
		zcfg.Development = true
	}
	logger, err = zcfg.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
