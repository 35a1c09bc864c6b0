// Package extract implements the entity extractor: a pure function of
// one file's bytes that emits the closed EntityEvent variant
// (module/function/class/test/import/fixture declarations).
// Per-language parsers register themselves into a registry from their
// subpackages' init() functions.
//
// Extraction is memoized by content digest one layer up, in
// internal/cache: Run is deliberately a pure function with no
// knowledge of caching.
package extract

import (
	"strings"
	"sync"

	"github.com/c360studio/codetrail/internal/model"
)

// Extractor parses one file's content into the closed EntityEvent set
// for a single language. canonicalPath is passed alongside content so
// the extractor can derive a module qualified name that is unique per
// file and stable across runs — the graph builder's local-import
// resolution depends on that name matching the dotted
// import targets other files observe.
type Extractor interface {
	Language() string
	Extract(canonicalPath string, content []byte) (model.ExtractionResult, error)
}

// Registry maps language identifiers to their Extractor, thread-safe
// for concurrent registration and lookup.
type Registry struct {
	mu         sync.RWMutex
	byLanguage map[string]Extractor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byLanguage: make(map[string]Extractor)}
}

// Register adds (or replaces) the extractor for its Language().
func (r *Registry) Register(e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byLanguage[e.Language()] = e
}

// For returns the extractor registered for language, if any.
func (r *Registry) For(language string) (Extractor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byLanguage[language]
	return e, ok
}

// DefaultRegistry is populated by each language subpackage's init().
var DefaultRegistry = NewRegistry()

// Run extracts EntityEvents for one file. Languages with no registered
// extractor (including "unknown") fall back to GenericExtract. A
// registered extractor that returns an error degrades to a
// ModuleDeclared-only result rather than failing the file; the caller
// is responsible for logging the degradation as an ExtractionError
// diagnostic.
func Run(canonicalPath, language string, content []byte) model.ExtractionResult {
	if e, ok := DefaultRegistry.For(language); ok {
		result, err := e.Extract(canonicalPath, content)
		if err == nil {
			return result
		}
		return model.ExtractionResult{
			Events: []model.EntityEvent{{
				Kind:          model.EventModuleDeclared,
				QualifiedName: ModuleNameFromPath(canonicalPath),
			}},
			Synopsis:      GenericSynopsis(content),
			Degraded:      true,
			DegradeReason: err.Error(),
		}
	}
	return GenericExtract(canonicalPath, content)
}

// GenericExtract handles languages with no dedicated parser (config,
// unknown): a single ModuleDeclared event plus a heuristic
// synopsis, never a parse failure.
func GenericExtract(canonicalPath string, content []byte) model.ExtractionResult {
	return model.ExtractionResult{
		Events: []model.EntityEvent{{
			Kind:          model.EventModuleDeclared,
			QualifiedName: ModuleNameFromPath(canonicalPath),
		}},
		Synopsis: GenericSynopsis(content),
	}
}

// ModuleNameFromPath derives a qualified module name from a canonical
// path: extension stripped, path separators turned into dots. Every
// language extractor uses this so a file's module node has exactly one
// stable identity regardless of the source language's own notion of a
// package name.
func ModuleNameFromPath(canonicalPath string) string {
	name := canonicalPath
	if idx := strings.LastIndexByte(name, '.'); idx > strings.LastIndexByte(name, '/') {
		name = name[:idx]
	}
	name = strings.ReplaceAll(name, "/", ".")
	name = strings.TrimSuffix(name, ".__init__")
	return name
}

// maxSynopsisRunes bounds the synopsis length so bundle headers stay
// compact regardless of how verbose a file's leading doc comment is.
const maxSynopsisRunes = 240

// GenericSynopsis extracts the first non-blank line of text as a
// synopsis, stripped of common comment/markdown markers and truncated to
// maxSynopsisRunes.
func GenericSynopsis(content []byte) string {
	for _, raw := range strings.Split(string(content), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		line = strings.TrimLeft(line, "#/*-= \t")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		return truncateRunes(line, maxSynopsisRunes)
	}
	return ""
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
