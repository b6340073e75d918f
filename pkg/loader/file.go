package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aleksaelezovic/jsonld/pkg/jsonld"
)

// FileLoader serves URLs under Prefix from files under Dir. Other URLs go
// to Fallback, if set.
type FileLoader struct {
	Prefix   string
	Dir      string
	Fallback jsonld.DocumentLoader
}

// NewFileLoader maps prefix onto dir
func NewFileLoader(prefix, dir string) *FileLoader {
	return &FileLoader{Prefix: prefix, Dir: dir}
}

// Path returns the local file for url and whether url is under the prefix
func (l *FileLoader) Path(url string) (string, bool) {
	if !strings.HasPrefix(url, l.Prefix) {
		return "", false
	}
	rel := strings.TrimPrefix(url, l.Prefix)
	if i := strings.IndexAny(rel, "?#"); i >= 0 {
		rel = rel[:i]
	}
	return filepath.Join(l.Dir, filepath.FromSlash(rel)), true
}

// LoadDocument implements jsonld.DocumentLoader
func (l *FileLoader) LoadDocument(ctx context.Context, url string) (*jsonld.RemoteDocument, error) {
	path, ok := l.Path(url)
	if !ok {
		if l.Fallback != nil {
			return l.Fallback.LoadDocument(ctx, url)
		}
		return nil, loadError(url, "outside of "+l.Prefix, nil)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, loadError(url, "cannot open file", err)
	}
	defer f.Close()

	doc, err := jsonld.ParseJSON(f)
	if err != nil {
		return nil, loadError(url, fmt.Sprintf("cannot parse %s", filepath.Base(path)), err)
	}

	return &jsonld.RemoteDocument{
		DocumentURL: url,
		Document:    doc,
		ContentType: contentTypeFor(path),
	}, nil
}

func contentTypeFor(path string) string {
	switch filepath.Ext(path) {
	case ".jsonld":
		return "application/ld+json"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
