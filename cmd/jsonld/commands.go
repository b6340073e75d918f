package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aleksaelezovic/jsonld/pkg/jsonld"
	"github.com/aleksaelezovic/jsonld/pkg/loader"
	"github.com/aleksaelezovic/jsonld/pkg/rdfio"
)

// environment is what a command needs to run the processor
type environment struct {
	opts    *jsonld.Options
	metrics *loader.Metrics
	closer  io.Closer
}

func (e *environment) Close() error {
	if e.closer == nil {
		return nil
	}
	return e.closer.Close()
}

// newEnvironment builds the processing options and the HTTP loader. The
// loader caches to badger when a cache directory is configured.
func newEnvironment() (*environment, error) {
	env := &environment{metrics: loader.NewMetrics()}

	loaderOpts := append(cfg.LoaderOptions(),
		loader.WithLogger(logger.Named("loader")),
		loader.WithMetrics(env.metrics))
	if cfg.Loader.CacheDir != "" {
		cache, err := loader.OpenBadgerCache(cfg.Loader.CacheDir, logger.Named("cache"))
		if err != nil {
			return nil, err
		}
		env.closer = cache
		loaderOpts = append(loaderOpts, loader.WithCache(cache))
		logger.Debug("using persistent document cache", zap.String("dir", cfg.Loader.CacheDir))
	}

	opts := cfg.Options()
	opts.Explicit = explicit
	opts.OmitDefault = omitDefault
	opts.RequireAll = requireAll
	opts.UseNativeTypes = nativeTypes
	opts.Logger = logger.Named("jsonld")
	opts.DocumentLoader = loader.NewHTTPLoader(loaderOpts...)
	env.opts = opts
	return env, nil
}

// readDocument resolves a document argument. URLs are returned as strings
// for the processor to load; files and stdin are parsed here.
func readDocument(cmd *cobra.Command, arg string) (any, error) {
	if isURL(arg) {
		return arg, nil
	}
	r, closeFn, err := openInput(cmd, arg)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	doc, err := jsonld.ParseJSON(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", displayName(arg), err)
	}
	return doc, nil
}

// openInput opens a file or, for "" and "-", the command's stdin
func openInput(cmd *cobra.Command, arg string) (io.Reader, func(), error) {
	if arg == "" || arg == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(arg) // #nosec G304 - reading user-named input is the point
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func isURL(arg string) bool {
	return strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://")
}

func displayName(arg string) string {
	if arg == "" || arg == "-" {
		return "stdin"
	}
	return arg
}

func inputArg(args []string) string {
	if len(args) == 0 {
		return "-"
	}
	return args[0]
}

// writeJSON prints v indented, without HTML escaping
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runExpand(cmd *cobra.Command, args []string) error {
	env, err := newEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	input, err := readDocument(cmd, inputArg(args))
	if err != nil {
		return err
	}
	if contextArg != "" {
		if env.opts.ExpandContext, err = readDocument(cmd, contextArg); err != nil {
			return err
		}
	}

	logger.Debug("expanding", zap.String("input", displayName(inputArg(args))))
	expanded, err := jsonld.NewProcessor(env.opts).Expand(cmd.Context(), input)
	if err != nil {
		return err
	}
	return writeJSON(cmd, expanded)
}

func runCompact(cmd *cobra.Command, args []string) error {
	env, err := newEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	input, err := readDocument(cmd, inputArg(args))
	if err != nil {
		return err
	}
	localContext, err := readDocument(cmd, contextArg)
	if err != nil {
		return err
	}

	compacted, err := jsonld.NewProcessor(env.opts).Compact(cmd.Context(), input, localContext)
	if err != nil {
		return err
	}
	return writeJSON(cmd, compacted)
}

func runFlatten(cmd *cobra.Command, args []string) error {
	env, err := newEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	input, err := readDocument(cmd, inputArg(args))
	if err != nil {
		return err
	}
	var localContext any
	if contextArg != "" {
		if localContext, err = readDocument(cmd, contextArg); err != nil {
			return err
		}
	}

	flattened, err := jsonld.NewProcessor(env.opts).Flatten(cmd.Context(), input, localContext)
	if err != nil {
		return err
	}
	return writeJSON(cmd, flattened)
}

func runFrame(cmd *cobra.Command, args []string) error {
	env, err := newEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	input, err := readDocument(cmd, inputArg(args))
	if err != nil {
		return err
	}
	frame, err := readDocument(cmd, frameArg)
	if err != nil {
		return err
	}

	framed, err := jsonld.NewProcessor(env.opts).Frame(cmd.Context(), input, frame)
	if err != nil {
		return err
	}
	return writeJSON(cmd, framed)
}

func runToRDF(cmd *cobra.Command, args []string) error {
	env, err := newEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	ser, err := rdfio.NewSerializer(rdfFormat, env.opts)
	if err != nil {
		return err
	}
	if ser.ContentType() == rdfio.ContentTypeJSONLD {
		return fmt.Errorf("tordf writes N-Quads or N-Triples, not %s", rdfFormat)
	}

	input, err := readDocument(cmd, inputArg(args))
	if err != nil {
		return err
	}
	quads, err := jsonld.NewProcessor(env.opts).ToRDF(cmd.Context(), input)
	if err != nil {
		return err
	}
	logger.Debug("converted to RDF", zap.Int("quads", len(quads)))
	return ser.Serialize(cmd.Context(), cmd.OutOrStdout(), quads)
}

func runFromRDF(cmd *cobra.Command, args []string) error {
	env, err := newEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	parser, err := rdfio.NewParser(rdfFormat, env.opts)
	if err != nil {
		return err
	}
	r, closeFn, err := openInput(cmd, inputArg(args))
	if err != nil {
		return err
	}
	defer closeFn()

	quads, err := parser.Parse(cmd.Context(), r)
	if err != nil {
		return err
	}
	ser := &rdfio.JSONLDSerializer{Options: env.opts, Indent: "  "}
	return ser.Serialize(cmd.Context(), cmd.OutOrStdout(), quads)
}
