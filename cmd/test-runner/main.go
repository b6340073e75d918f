package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aleksaelezovic/jsonld/internal/testsuite"
)

var (
	verbose bool
	filter  string
)

var rootCmd = &cobra.Command{
	Use:   "test-runner <manifest-file-or-directory>",
	Short: "Run a W3C JSON-LD test suite manifest",
	Long: `Runs the expand, compact, flatten, frame, toRdf and fromRdf tests of a
W3C JSON-LD manifest. Documents under the manifest's baseIri are served from
the manifest directory.

Examples:
  test-runner testdata/json-ld-api/tests/expand-manifest.jsonld
  test-runner testdata/json-ld-api/tests`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runManifest,
}

func init() {
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log skipped and failing tests at debug level")
	rootCmd.Flags().StringVar(&filter, "filter", "", "Only run tests whose @id contains this string")
}

func runManifest(cmd *cobra.Command, args []string) error {
	path := args[0]

	config := zap.NewProductionConfig()
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := config.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	// Check if path is a directory or file
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to access path: %w", err)
	}
	if info.IsDir() {
		path = filepath.Join(path, "manifest.jsonld")
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("no manifest.jsonld found in directory: %s", args[0])
		}
	}

	runner := testsuite.NewTestRunner(cmd.OutOrStdout(), logger)
	runner.Filter = filter
	if err := runner.RunManifest(cmd.Context(), path); err != nil {
		return fmt.Errorf("failed to run manifest: %w", err)
	}

	if stats := runner.GetStats(); stats.Failed > 0 {
		return fmt.Errorf("%d of %d tests failed", stats.Failed, stats.Total)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
