package digest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBytesIsDeterministic(t *testing.T) {
	a := Bytes([]byte("hello world"))
	b := Bytes([]byte("hello world"))
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestFileMatchesBytesRegardlessOfThreshold(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	content := []byte("some file content used for hashing")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	whole, err := File(path, DefaultStreamThreshold)
	require.NoError(t, err)

	streamed, err := File(path, 1)
	require.NoError(t, err)

	assert.Equal(t, Bytes(content), whole)
	assert.Equal(t, whole, streamed)
}

func TestCanonicalizeNormalizesSeparators(t *testing.T) {
	root := filepath.FromSlash("/repo")
	path := filepath.FromSlash("/repo/pkg/file.go")

	got, err := Canonicalize(path, root)
	require.NoError(t, err)
	assert.Equal(t, "pkg/file.go", got)
}

func TestNodeIDStableAndDistinctByInput(t *testing.T) {
	a := NodeID("file", "pkg/file.go")
	b := NodeID("file", "pkg/file.go")
	c := NodeID("file", "pkg/other.go")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}

func TestEdgeIDDistinctByKind(t *testing.T) {
	source := NodeID("file", "a.go")
	target := NodeID("file", "b.go")

	contains := EdgeID(source, "contains", target)
	imports := EdgeID(source, "imports", target)

	assert.NotEqual(t, contains, imports)
	assert.Len(t, contains, 16)
}
