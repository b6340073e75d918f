package testsuite

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/aleksaelezovic/jsonld/pkg/jsonld"
	"github.com/aleksaelezovic/jsonld/pkg/loader"
	"github.com/aleksaelezovic/jsonld/pkg/rdf"
)

// TestRunner runs W3C JSON-LD test suite manifests
type TestRunner struct {
	out    io.Writer
	logger *zap.Logger
	stats  *TestStats
	// Filter, if set, runs only tests whose @id contains it
	Filter string
}

// TestStats tracks test execution statistics
type TestStats struct {
	Total   int
	Passed  int
	Failed  int
	Skipped int
	Errors  []TestError
}

// TestError represents a test failure
type TestError struct {
	TestName string
	Type     TestType
	Error    string
}

// TestResult represents the result of running a test
type TestResult int

const (
	TestResultPass TestResult = iota
	TestResultFail
	TestResultSkip
	TestResultError
)

// NewTestRunner creates a runner printing progress to out
func NewTestRunner(out io.Writer, logger *zap.Logger) *TestRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TestRunner{out: out, logger: logger, stats: &TestStats{}}
}

// RunManifest runs all tests in a manifest file
func (r *TestRunner) RunManifest(ctx context.Context, manifestPath string) error {
	manifest, err := ParseManifest(manifestPath)
	if err != nil {
		return fmt.Errorf("failed to parse manifest: %w", err)
	}

	fmt.Fprintf(r.out, "\n📋 Running manifest: %s\n", manifestPath)
	fmt.Fprintf(r.out, "   Found %d tests\n\n", len(manifest.Tests))

	for i := range manifest.Tests {
		test := &manifest.Tests[i]
		if r.Filter != "" && !strings.Contains(test.ID, r.Filter) {
			continue
		}
		r.stats.Total++

		switch r.RunTest(ctx, test) {
		case TestResultPass:
			r.stats.Passed++
			fmt.Fprintf(r.out, "  ✅ PASS: %s\n", test.Label())
		case TestResultFail:
			r.stats.Failed++
			fmt.Fprintf(r.out, "  ❌ FAIL: %s\n", test.Label())
		case TestResultSkip:
			r.stats.Skipped++
			fmt.Fprintf(r.out, "  ⏭️  SKIP: %s (type: %s)\n", test.Label(), test.Type)
		case TestResultError:
			r.stats.Failed++
			fmt.Fprintf(r.out, "  💥 ERROR: %s\n", test.Label())
		}
	}

	r.printSummary()
	return nil
}

// RunTest runs a single test case
func (r *TestRunner) RunTest(ctx context.Context, test *TestCase) TestResult {
	if reason := skipReason(test); reason != "" {
		r.logger.Debug("skipping test", zap.String("id", test.ID), zap.String("reason", reason))
		return TestResultSkip
	}

	opts, err := r.options(test)
	if err != nil {
		r.recordError(test, fmt.Sprintf("Failed to prepare options: %v", err))
		return TestResultError
	}

	result, err := r.execute(ctx, test, opts)
	switch test.Evaluation {
	case EvaluationNegative:
		return r.checkNegative(test, err)
	case EvaluationSyntax:
		if err != nil {
			r.recordError(test, fmt.Sprintf("Processor error: %v", err))
			return TestResultFail
		}
		return TestResultPass
	default:
		if err != nil {
			r.recordError(test, fmt.Sprintf("Processor error: %v", err))
			return TestResultFail
		}
		return r.checkPositive(test, result)
	}
}

// skipReason explains why a test cannot run here, or returns ""
func skipReason(test *TestCase) string {
	switch {
	case test.Type == "":
		return "unsupported test type"
	case test.Evaluation == "":
		return "unsupported evaluation type"
	case test.Option.SpecVersion == jsonld.ProcessingMode10:
		return "JSON-LD 1.0 only"
	case test.Option.HTTPStatus != 0, test.Option.RedirectTo != "",
		len(test.Option.HTTPLink) > 0, test.Option.ContentType != "":
		return "needs a remote document server"
	}
	return ""
}

// options builds the processor options for a test. Documents are served
// from the test directory under the suite's base IRI.
func (r *TestRunner) options(test *TestCase) (*jsonld.Options, error) {
	opts := jsonld.NewOptions()
	opts.Logger = r.logger
	opts.DocumentLoader = loader.NewFileLoader(test.BaseIRI, test.Dir)

	o := test.Option
	opts.Base = o.Base
	if o.ProcessingMode != "" {
		opts.ProcessingMode = o.ProcessingMode
	}
	if o.CompactArrays != nil {
		opts.CompactArrays = *o.CompactArrays
	}
	if o.CompactToRelative != nil {
		opts.CompactToRelative = *o.CompactToRelative
	}
	opts.ProduceGeneralizedRdf = o.ProduceGeneralizedRdf
	opts.UseNativeTypes = o.UseNativeTypes
	opts.UseRdfType = o.UseRdfType
	opts.RdfDirection = o.RdfDirection
	opts.OmitGraph = o.OmitGraph
	if o.Embed != "" {
		opts.Embed = jsonld.Embed(o.Embed)
	}
	opts.Explicit = o.Explicit
	opts.OmitDefault = o.OmitDefault
	opts.RequireAll = o.RequireAll

	if o.ExpandContext != "" {
		doc, err := r.loadJSON(test, o.ExpandContext)
		if err != nil {
			return nil, err
		}
		opts.ExpandContext = doc
	}
	return opts, nil
}

// execute runs the algorithm under test. The result is a JSON tree, or
// []*rdf.Quad for toRdf tests.
func (r *TestRunner) execute(ctx context.Context, test *TestCase, opts *jsonld.Options) (any, error) {
	p := jsonld.NewProcessor(opts)
	input := test.URL(test.Input)

	switch test.Type {
	case TestTypeExpand:
		return p.Expand(ctx, input)
	case TestTypeCompact:
		localContext, err := r.loadJSON(test, test.Context)
		if err != nil {
			return nil, err
		}
		return p.Compact(ctx, input, localContext)
	case TestTypeFlatten:
		var localContext any
		if test.Context != "" {
			doc, err := r.loadJSON(test, test.Context)
			if err != nil {
				return nil, err
			}
			localContext = doc
		}
		return p.Flatten(ctx, input, localContext)
	case TestTypeFrame:
		return p.Frame(ctx, input, test.URL(test.Frame))
	case TestTypeToRDF:
		return p.ToRDF(ctx, input)
	case TestTypeFromRDF:
		data, err := os.ReadFile(test.ResolveFile(test.Input)) // #nosec G304 - test suite legitimately reads test files
		if err != nil {
			return nil, err
		}
		quads, err := rdf.ParseNQuads(string(data))
		if err != nil {
			return nil, err
		}
		return p.FromRDF(ctx, quads)
	}
	return nil, fmt.Errorf("unsupported test type %q", test.Type)
}

func (r *TestRunner) checkNegative(test *TestCase, err error) TestResult {
	if err == nil {
		r.recordError(test, fmt.Sprintf("Expected error %q but processing succeeded", test.ExpectErrorCode))
		return TestResultFail
	}
	if got := jsonld.CodeOf(err); string(got) != test.ExpectErrorCode {
		r.recordError(test, fmt.Sprintf("Expected error %q, got %v", test.ExpectErrorCode, err))
		return TestResultFail
	}
	return TestResultPass
}

func (r *TestRunner) checkPositive(test *TestCase, result any) TestResult {
	if test.Expect == "" {
		r.recordError(test, "No expect file specified")
		return TestResultError
	}

	if quads, ok := result.([]*rdf.Quad); ok {
		data, err := os.ReadFile(test.ResolveFile(test.Expect)) // #nosec G304 - test suite legitimately reads test files
		if err != nil {
			r.recordError(test, fmt.Sprintf("Failed to read expected output: %v", err))
			return TestResultError
		}
		expected, err := rdf.ParseNQuads(string(data))
		if err != nil {
			r.recordError(test, fmt.Sprintf("Failed to parse expected output: %v", err))
			return TestResultError
		}
		if !rdf.AreQuadsIsomorphic(expected, quads) {
			r.recordError(test, fmt.Sprintf("Datasets differ: expected %d quads, got %d:\n%s",
				len(expected), len(quads), rdf.SerializeNQuads(quads)))
			return TestResultFail
		}
		return TestResultPass
	}

	expected, err := r.loadJSON(test, test.Expect)
	if err != nil {
		r.recordError(test, fmt.Sprintf("Failed to read expected output: %v", err))
		return TestResultError
	}
	actual, err := canonicalTree(result)
	if err != nil {
		r.recordError(test, fmt.Sprintf("Failed to encode result: %v", err))
		return TestResultError
	}
	if !JSONEqual(expected, actual) {
		r.recordError(test, "Output mismatch (-expected +actual):\n"+diff(expected, actual))
		return TestResultFail
	}
	return TestResultPass
}

// loadJSON parses a JSON file of the test directory
func (r *TestRunner) loadJSON(test *TestCase, relPath string) (any, error) {
	f, err := os.Open(test.ResolveFile(relPath)) // #nosec G304 - test suite legitimately reads test files
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return jsonld.ParseJSON(f)
}

// recordError records a test error
func (r *TestRunner) recordError(test *TestCase, errMsg string) {
	r.logger.Debug("test failed", zap.String("id", test.ID), zap.String("error", errMsg))
	r.stats.Errors = append(r.stats.Errors, TestError{
		TestName: test.Label(),
		Type:     test.Type,
		Error:    errMsg,
	})
}

// printSummary prints test execution summary
func (r *TestRunner) printSummary() {
	fmt.Fprintln(r.out, "\n"+strings.Repeat("━", 60))
	fmt.Fprintln(r.out, "📊 TEST SUMMARY")
	fmt.Fprintln(r.out, strings.Repeat("━", 60))
	fmt.Fprintf(r.out, "Total:   %d\n", r.stats.Total)
	passRate := 0.0
	if r.stats.Total > 0 {
		passRate = float64(r.stats.Passed) / float64(r.stats.Total) * 100
	}
	fmt.Fprintf(r.out, "Passed:  %d (%.1f%%)\n", r.stats.Passed, passRate)
	fmt.Fprintf(r.out, "Failed:  %d\n", r.stats.Failed)
	fmt.Fprintf(r.out, "Skipped: %d\n", r.stats.Skipped)

	if len(r.stats.Errors) > 0 {
		fmt.Fprintln(r.out, "\n❌ ERRORS:")
		for i, err := range r.stats.Errors {
			if i >= 10 {
				fmt.Fprintf(r.out, "   ... and %d more\n", len(r.stats.Errors)-10)
				break
			}
			fmt.Fprintf(r.out, "   • %s: %s\n", err.TestName, err.Error)
		}
	}

	fmt.Fprintln(r.out, strings.Repeat("━", 60))
}

// GetStats returns the current test statistics
func (r *TestRunner) GetStats() *TestStats {
	return r.stats
}
