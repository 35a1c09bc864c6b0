package docs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPlainMarkdownUsesFirstHeadingAsSynopsis(t *testing.T) {
	content := []byte("# Project Title\n\nSome body text.\n")

	result, err := (Extractor{}).Extract("README.md", content)
	require.NoError(t, err)

	assert.Equal(t, "Project Title", result.Synopsis)
	require.Len(t, result.Events, 1)
	assert.Equal(t, "README", result.Events[0].QualifiedName)
}

func TestExtractHTMLConvertsToMarkdownBeforeSynopsis(t *testing.T) {
	content := []byte("<html><head><title>x</title></head><body><h1>Hello Docs</h1><p>body</p></body></html>")

	result, err := (Extractor{}).Extract("README.md", content)
	require.NoError(t, err)

	assert.Equal(t, "Hello Docs", result.Synopsis)
}

func TestExtractNeverFails(t *testing.T) {
	_, err := (Extractor{}).Extract("empty.txt", []byte(""))
	assert.NoError(t, err)
}
