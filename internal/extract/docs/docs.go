// Package docs extracts a synopsis for non-code "docs" files
// (Markdown, reStructuredText, plain text, HTML). HTML content runs
// through html-to-markdown plus the GitHub-flavored plugin to
// normalize embedded markup down to plain Markdown before the same
// heading/first-line heuristic used for already-plain text.
package docs

import (
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"

	"github.com/c360studio/codetrail/internal/extract"
	"github.com/c360studio/codetrail/internal/model"
)

func init() {
	extract.DefaultRegistry.Register(&Extractor{})
}

// Extractor implements extract.Extractor for docs-classified files.
type Extractor struct{}

// Language reports the identifier this extractor handles.
func (Extractor) Language() string { return "docs" }

// Extract never fails: docs content has no grammar to reject it
// against, so there is nothing for the caller to degrade from. HTML
// content is converted to Markdown first; the result (or the original
// content, for non-HTML) is then reduced to a single ModuleDeclared
// event plus a heading-aware synopsis.
func (Extractor) Extract(canonicalPath string, content []byte) (model.ExtractionResult, error) {
	text := string(content)
	if looksLikeHTML(text) {
		converted, err := convertHTML(text)
		if err == nil {
			text = converted
		}
	}

	return model.ExtractionResult{
		Events: []model.EntityEvent{{
			Kind:          model.EventModuleDeclared,
			QualifiedName: extract.ModuleNameFromPath(canonicalPath),
		}},
		Synopsis: synopsis(text),
	}, nil
}

func looksLikeHTML(text string) bool {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)
	return strings.HasPrefix(lower, "<!doctype html") ||
		strings.HasPrefix(lower, "<html") ||
		strings.Contains(lower, "<body") ||
		strings.Contains(lower, "<head")
}

func convertHTML(htmlContent string) (string, error) {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	return converter.ConvertString(htmlContent)
}

// synopsis takes the first non-blank line, with leading Markdown
// heading/underline markers stripped, and passes it through
// extract.GenericSynopsis. A heading that follows other text is not
// preferred over that earlier line.
func synopsis(text string) string {
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		line = strings.TrimLeft(line, "#=- \t")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		return extract.GenericSynopsis([]byte(line))
	}
	return ""
}
