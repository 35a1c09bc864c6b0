// Package walker traverses an input tree and produces a sorted,
// duplicate-free stream of FileRecords. Include/ignore patterns are
// doublestar globs evaluated against the canonical path, with ignore
// winning; symlinks are never followed, and unreadable files degrade
// to a recorded diagnostic rather than aborting the walk.
package walker

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/c360studio/codetrail/internal/digest"
	"github.com/c360studio/codetrail/internal/model"
	"github.com/c360studio/codetrail/internal/runerr"
)

// languageByExt maps file extensions to the language identifier used
// throughout the rest of the pipeline.
var languageByExt = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "javascript",
	".tsx":  "javascript",
	".java": "java",
	".md":   "docs",
	".rst":  "docs",
	".txt":  "docs",
	".html": "docs",
	".htm":  "docs",
}

// defaultIgnore is always applied in addition to any configured ignore
// patterns, since these directories are never meaningful inputs.
var defaultIgnore = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/vendor/**",
	"**/.codetrail-cache/**",
}

// Options configures a walk.
type Options struct {
	Root            string
	Include         []string
	Ignore          []string
	StreamThreshold int64
}

// Result is the outcome of a walk: the sorted file records and any
// non-fatal diagnostics produced along the way (unreadable files,
// permission errors).
type Result struct {
	Files       []model.FileRecord
	Diagnostics []runerr.Diagnostic
}

// Walk traverses opts.Root and returns the sorted set of matching files.
func Walk(opts Options) (*Result, error) {
	absRoot, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, runerr.Input("E_WALK_ROOT", "cannot resolve input root", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, runerr.Input("E_WALK_ROOT", "input root does not exist or is not accessible", err)
	}
	if !info.IsDir() {
		return nil, runerr.Input("E_WALK_ROOT", "input root is not a directory", nil)
	}

	ignore := append(append([]string{}, defaultIgnore...), opts.Ignore...)

	result := &Result{}

	walkErr := filepath.WalkDir(absRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			rel, relErr := filepath.Rel(absRoot, path)
			if relErr != nil {
				rel = path
			}
			result.Diagnostics = append(result.Diagnostics, runerr.Diagnostic{
				Code:    "E_WALK_UNREADABLE",
				Class:   runerr.ClassInput,
				Message: err.Error(),
				Path:    filepath.ToSlash(rel),
			})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&os.ModeSymlink != 0 {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		relSlash := filepath.ToSlash(rel)

		if matchesAny(relSlash, ignore) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}

		if len(opts.Include) > 0 && !matchesAny(relSlash, opts.Include) {
			return nil
		}

		record, diag, fileErr := buildRecord(path, absRoot, opts.StreamThreshold)
		if fileErr != nil {
			return fileErr
		}
		if diag != nil {
			result.Diagnostics = append(result.Diagnostics, *diag)
			return nil
		}

		result.Files = append(result.Files, *record)
		return nil
	})
	if walkErr != nil {
		return nil, runerr.IO("E_WALK_FAILED", "walk aborted", walkErr)
	}

	sort.Slice(result.Files, func(i, j int) bool {
		return result.Files[i].CanonicalPath < result.Files[j].CanonicalPath
	})

	return result, nil
}

func buildRecord(path, root string, streamThreshold int64) (*model.FileRecord, *runerr.Diagnostic, error) {
	canonical, err := digest.Canonicalize(path, root)
	if err != nil {
		return nil, nil, runerr.IO("E_WALK_CANONICALIZE", "failed to canonicalize path", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, &runerr.Diagnostic{
			Code:    "E_WALK_UNREADABLE",
			Class:   runerr.ClassInput,
			Message: err.Error(),
			Path:    canonical,
		}, nil
	}

	sum, err := digest.File(path, streamThreshold)
	if err != nil {
		return nil, &runerr.Diagnostic{
			Code:    "E_WALK_UNREADABLE",
			Class:   runerr.ClassInput,
			Message: err.Error(),
			Path:    canonical,
		}, nil
	}

	lineCount, err := countLines(path)
	if err != nil {
		return nil, &runerr.Diagnostic{
			Code:    "E_WALK_UNREADABLE",
			Class:   runerr.ClassInput,
			Message: err.Error(),
			Path:    canonical,
		}, nil
	}

	return &model.FileRecord{
		CanonicalPath: canonical,
		AbsolutePath:  path,
		Digest:        sum,
		SizeBytes:     info.Size(),
		MtimeNs:       info.ModTime().UnixNano(),
		LineCount:     lineCount,
		Language:      languageFor(canonical),
	}, nil, nil
}

func countLines(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}
	n := strings.Count(string(data), "\n")
	if data[len(data)-1] != '\n' {
		n++
	}
	return n, nil
}

func languageFor(canonicalPath string) string {
	ext := strings.ToLower(filepath.Ext(canonicalPath))
	if lang, ok := languageByExt[ext]; ok {
		return lang
	}
	return "unknown"
}

func matchesAny(path string, patterns []string) bool {
	for _, p := range patterns {
		ok, err := doublestar.Match(p, path)
		if err == nil && ok {
			return true
		}
	}
	return false
}

// ValidateWithinRoot ensures path resolves to a location inside root,
// rejecting traversal outside the input tree.
func ValidateWithinRoot(path, root string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if absPath != absRoot && !strings.HasPrefix(absPath, absRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes root %q", path, root)
	}
	return absPath, nil
}
