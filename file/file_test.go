package file

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"a.md":              "alpha",
		"b.TXT":             "bravo",
		"c.go":              "package c",
		"nested/d.log":      "delta",
		".hidden/e.md":      "echo",
		"nested/.secret.md": "foxtrot",
	}
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func TestRecursiveFiles(t *testing.T) {
	root := writeTree(t)

	tests := []struct {
		name       string
		extensions []string
		want       []string
	}{
		{name: "transcripts", extensions: TranscriptExtensions, want: []string{"a.md", "b.TXT", "nested/d.log"}},
		{name: "dotted extension", extensions: []string{".go"}, want: []string{"c.go"}},
		{name: "all", extensions: nil, want: []string{"a.md", "b.TXT", "c.go", "nested/d.log"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files, err := RecursiveFiles(root, tt.extensions, zap.NewNop())
			require.NoError(t, err)

			var rel []string
			for _, f := range files {
				r, _ := filepath.Rel(root, f)
				rel = append(rel, filepath.ToSlash(r))
			}
			assert.ElementsMatch(t, tt.want, rel)
		})
	}
}

func TestRecursiveFiles_MissingRoot(t *testing.T) {
	_, err := RecursiveFiles(filepath.Join(t.TempDir(), "nope"), nil, zap.NewNop())
	assert.Error(t, err)
}

func TestCollect(t *testing.T) {
	root := writeTree(t)

	sources, err := Collect("-", strings.NewReader("from stdin"), zap.NewNop())
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "stdin", sources[0].Name)
	assert.Equal(t, "from stdin", string(sources[0].Content))

	sources, err = Collect(filepath.Join(root, "c.go"), nil, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "package c", string(sources[0].Content))

	sources, err = Collect(root, nil, zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, sources, 3)

	_, err = Collect(filepath.Join(root, "missing.md"), nil, zap.NewNop())
	assert.Error(t, err)
}
