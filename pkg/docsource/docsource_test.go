package docsource

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDoc(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestFileSource_ReadsText(t *testing.T) {
	path := writeDoc(t, "spec.txt", "Panel MDP: 1200A, 480/277V")

	text, err := NewFileSource().Text(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Panel MDP: 1200A, 480/277V", text)
}

func TestFileSource_MissingFile(t *testing.T) {
	_, err := NewFileSource().Text(context.Background(), filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestNeedsCleanup(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"spec.txt", false},
		{"notes.md", false},
		{"schedule.CSV", false},
		{"drawing.pdf", true},
		{"scan.ocr", true},
		{"noextension", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, NeedsCleanup(tt.path))
		})
	}
}

// stubClient records calls and returns a canned cleanup result.
type stubClient struct {
	calls   int
	cleaned string
	err     error
}

func (s *stubClient) Clean(_ context.Context, _ string) (string, Usage, error) {
	s.calls++
	if s.err != nil {
		return "", Usage{}, s.err
	}
	return s.cleaned, Usage{InputTokens: 120, OutputTokens: 80}, nil
}

func TestLLMSource_PlainTextSkipsCleanup(t *testing.T) {
	path := writeDoc(t, "spec.md", "AHU-1: 5000 CFM")
	stub := &stubClient{cleaned: "should not be used"}

	text, err := NewLLMSource(stub, "claude-sonnet-4-5-20250929", 10).Text(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "AHU-1: 5000 CFM", text)
	assert.Zero(t, stub.calls)
}

func TestLLMSource_CleansNonText(t *testing.T) {
	path := writeDoc(t, "drawing.pdf", "raw ocr dump")
	stub := &stubClient{cleaned: "AHU-1: 5000 CFM supply"}

	text, err := NewLLMSource(stub, "claude-sonnet-4-5-20250929", 10).Text(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "AHU-1: 5000 CFM supply", text)
	assert.Equal(t, 1, stub.calls)
}

func TestLLMSource_PropagatesClientError(t *testing.T) {
	path := writeDoc(t, "drawing.pdf", "raw")
	stub := &stubClient{err: assert.AnError}

	_, err := NewLLMSource(stub, "claude-sonnet-4-5-20250929", 10).Text(context.Background(), path)
	assert.Error(t, err)
}

func TestUsage_EstimateCost(t *testing.T) {
	u := Usage{InputTokens: 1_000_000, OutputTokens: 1_000_000}

	assert.InDelta(t, 18.0, u.EstimateCost("claude-sonnet-4-5-20250929"), 0.001)
	assert.Zero(t, u.EstimateCost("unknown-model"))
}
