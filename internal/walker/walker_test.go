package walker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, contents string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(contents), 0o644))
}

func TestWalkSortsAndDeduplicates(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "b/z.py", "z = 1\n")
	writeFile(t, root, "a.py", "a = 1\n")
	writeFile(t, root, "b/a.py", "ba = 1\n")

	res, err := Walk(Options{Root: root})
	require.NoError(t, err)
	require.Len(t, res.Files, 3)
	assert.Equal(t, "a.py", res.Files[0].CanonicalPath)
	assert.Equal(t, "b/a.py", res.Files[1].CanonicalPath)
	assert.Equal(t, "b/z.py", res.Files[2].CanonicalPath)
}

func TestWalkIgnoreWinsOverInclude(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "keep.py", "x = 1\n")
	writeFile(t, root, "skip.py", "y = 1\n")

	res, err := Walk(Options{
		Root:    root,
		Include: []string{"**/*.py"},
		Ignore:  []string{"skip.py"},
	})
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	assert.Equal(t, "keep.py", res.Files[0].CanonicalPath)
}

func TestWalkSkipsDefaultIgnoredDirectories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".git/config", "[core]\n")
	writeFile(t, root, "node_modules/pkg/index.js", "module.exports = 1\n")
	writeFile(t, root, "main.go", "package main\n")

	res, err := Walk(Options{Root: root})
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	assert.Equal(t, "main.go", res.Files[0].CanonicalPath)
}

func TestWalkDoesNotFollowSymlinks(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	writeFile(t, outside, "secret.py", "s = 1\n")
	writeFile(t, root, "real.py", "r = 1\n")
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "linked")))

	res, err := Walk(Options{Root: root})
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	assert.Equal(t, "real.py", res.Files[0].CanonicalPath)
}

func TestWalkClassifiesLanguageAndCountsLines(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "x.go", "package x\n\nvar A = 1\n")
	writeFile(t, root, "notes.xyz", "whatever")

	res, err := Walk(Options{Root: root})
	require.NoError(t, err)
	require.Len(t, res.Files, 2)

	byPath := map[string]int{}
	for i, fr := range res.Files {
		byPath[fr.CanonicalPath] = i
	}

	goFile := res.Files[byPath["x.go"]]
	assert.Equal(t, "go", goFile.Language)
	assert.Equal(t, 3, goFile.LineCount)
	assert.Len(t, goFile.Digest, 64)

	unknown := res.Files[byPath["notes.xyz"]]
	assert.Equal(t, "unknown", unknown.Language)
	assert.Equal(t, 1, unknown.LineCount)
}

func TestWalkRejectsMissingRoot(t *testing.T) {
	_, err := Walk(Options{Root: filepath.Join(t.TempDir(), "missing")})
	require.Error(t, err)
}

func TestValidateWithinRootRejectsEscape(t *testing.T) {
	root := t.TempDir()
	_, err := ValidateWithinRoot(filepath.Join(root, "..", "outside"), root)
	require.Error(t, err)

	_, err = ValidateWithinRoot(filepath.Join(root, "inside.txt"), root)
	require.NoError(t, err)
}
