package testsuite

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TestManifest is a W3C JSON-LD test manifest
type TestManifest struct {
	ID          string            `json:"@id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	BaseIRI     string            `json:"baseIri"`
	Sequence    []json.RawMessage `json:"sequence"`

	// Dir is the directory holding the manifest; test files are relative to it
	Dir   string     `json:"-"`
	Tests []TestCase `json:"-"`
}

// TestCase is a single entry of a manifest sequence
type TestCase struct {
	ID              string      `json:"@id"`
	Types           typeList    `json:"@type"`
	Name            string      `json:"name"`
	Purpose         string      `json:"purpose"`
	Input           string      `json:"input"`
	Expect          string      `json:"expect"`
	Context         string      `json:"context"`
	Frame           string      `json:"frame"`
	ExpectErrorCode string      `json:"expectErrorCode"`
	Option          TestOptions `json:"option"`

	// Filled in from the manifest
	Type       TestType   `json:"-"`
	Evaluation Evaluation `json:"-"`
	BaseIRI    string     `json:"-"`
	Dir        string     `json:"-"`
}

// TestOptions are the per-test processor options of the suite
type TestOptions struct {
	Base                  string `json:"base"`
	ExpandContext         string `json:"expandContext"`
	ProcessingMode        string `json:"processingMode"`
	SpecVersion           string `json:"specVersion"`
	CompactArrays         *bool  `json:"compactArrays"`
	CompactToRelative     *bool  `json:"compactToRelative"`
	ProduceGeneralizedRdf bool   `json:"produceGeneralizedRdf"`
	UseNativeTypes        bool   `json:"useNativeTypes"`
	UseRdfType            bool   `json:"useRdfType"`
	RdfDirection          string `json:"rdfDirection"`
	OmitGraph             *bool  `json:"omitGraph"`
	Embed                 string `json:"embed"`
	Explicit              bool   `json:"explicit"`
	OmitDefault           bool   `json:"omitDefault"`
	RequireAll            bool   `json:"requireAll"`

	// Remote document behavior the file loader cannot reproduce
	HTTPStatus  int             `json:"httpStatus"`
	RedirectTo  string          `json:"redirectTo"`
	HTTPLink    json.RawMessage `json:"httpLink"`
	ContentType string          `json:"contentType"`
}

// TestType is the algorithm a test exercises
type TestType string

const (
	TestTypeExpand  TestType = "ExpandTest"
	TestTypeCompact TestType = "CompactTest"
	TestTypeFlatten TestType = "FlattenTest"
	TestTypeFrame   TestType = "FrameTest"
	TestTypeToRDF   TestType = "ToRDFTest"
	TestTypeFromRDF TestType = "FromRDFTest"
)

// Evaluation says how a test result is judged
type Evaluation string

const (
	EvaluationPositive Evaluation = "PositiveEvaluationTest"
	EvaluationNegative Evaluation = "NegativeEvaluationTest"
	// EvaluationSyntax passes when the algorithm succeeds
	EvaluationSyntax Evaluation = "PositiveSyntaxTest"
)

// typeList accepts a single @type string or an array of them
type typeList []string

func (t *typeList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*t = typeList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*t = many
	return nil
}

// ParseManifest reads a manifest and every manifest its sequence includes
func ParseManifest(path string) (*TestManifest, error) {
	return parseManifestWithVisited(path, make(map[string]bool))
}

// parseManifestWithVisited parses a manifest and tracks visited files to prevent infinite loops
func parseManifestWithVisited(path string, visited map[string]bool) (*TestManifest, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	if visited[absPath] {
		return &TestManifest{Dir: filepath.Dir(absPath)}, nil
	}
	visited[absPath] = true

	data, err := os.ReadFile(absPath) // #nosec G304 - test suite legitimately reads test manifest files
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}

	manifest := &TestManifest{}
	if err := json.Unmarshal(data, manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	manifest.Dir = filepath.Dir(absPath)
	if manifest.BaseIRI != "" && !strings.HasSuffix(manifest.BaseIRI, "/") {
		manifest.BaseIRI += "/"
	}

	for i, raw := range manifest.Sequence {
		// A string entry names another manifest
		var include string
		if err := json.Unmarshal(raw, &include); err == nil {
			included, err := parseManifestWithVisited(filepath.Join(manifest.Dir, include), visited)
			if err != nil {
				return nil, fmt.Errorf("failed to load included manifest %s: %w", include, err)
			}
			manifest.Tests = append(manifest.Tests, included.Tests...)
			continue
		}

		var test TestCase
		if err := json.Unmarshal(raw, &test); err != nil {
			return nil, fmt.Errorf("sequence entry %d: %w", i, err)
		}
		test.Type, test.Evaluation = classify(test.Types)
		test.BaseIRI = manifest.BaseIRI
		test.Dir = manifest.Dir
		manifest.Tests = append(manifest.Tests, test)
	}
	return manifest, nil
}

// classify picks the algorithm and evaluation kind out of a test's types,
// which carry a "jld:" prefix in the suite
func classify(types []string) (TestType, Evaluation) {
	var tt TestType
	var ev Evaluation
	for _, t := range types {
		name := t
		if idx := strings.LastIndex(name, ":"); idx != -1 {
			name = name[idx+1:]
		}
		if idx := strings.LastIndex(name, "#"); idx != -1 {
			name = name[idx+1:]
		}
		switch name {
		case string(TestTypeExpand), string(TestTypeCompact), string(TestTypeFlatten),
			string(TestTypeFrame), string(TestTypeToRDF), string(TestTypeFromRDF):
			tt = TestType(name)
		case string(EvaluationPositive), string(EvaluationNegative), string(EvaluationSyntax):
			ev = Evaluation(name)
		}
	}
	return tt, ev
}

// ResolveFile resolves a path from the manifest against the test directory
func (t *TestCase) ResolveFile(relPath string) string {
	if filepath.IsAbs(relPath) {
		return relPath
	}
	return filepath.Join(t.Dir, filepath.FromSlash(relPath))
}

// URL returns the IRI the suite assigns to a test file
func (t *TestCase) URL(relPath string) string {
	return t.BaseIRI + relPath
}

// Label is the name printed for the test
func (t *TestCase) Label() string {
	if t.Name == "" {
		return t.ID
	}
	return t.ID + " " + t.Name
}
