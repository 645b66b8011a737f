// Package docsource turns uploaded specification documents into the plain
// text the extraction pipeline consumes. Plain-text and markdown files are
// read directly; scanned or OCR-dumped documents go through an LLM cleanup
// pass first.
package docsource

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Source produces the analysis text for a document.
type Source interface {
	Text(ctx context.Context, path string) (string, error)
}

// FileSource reads documents straight from disk with no transformation.
type FileSource struct{}

// NewFileSource creates a FileSource.
func NewFileSource() *FileSource {
	return &FileSource{}
}

// Text reads the file at path and returns its contents.
func (s *FileSource) Text(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "docsource: read %s", path)
	}
	return string(data), nil
}

// plainTextExtensions are formats the pipeline can consume without cleanup.
var plainTextExtensions = map[string]bool{
	".txt": true,
	".md":  true,
	".csv": true,
}

// NeedsCleanup reports whether a document format requires the LLM cleanup
// pass before analysis.
func NeedsCleanup(path string) bool {
	return !plainTextExtensions[strings.ToLower(filepath.Ext(path))]
}
