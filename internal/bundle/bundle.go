// Package bundle builds size/line-bounded context packages from a
// run's FileRecords: preset selection, deterministic key-sorted
// headers, byte/line-budgeted splitting, and a per-bundle sidecar
// index.
package bundle

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/c360studio/codetrail/internal/depend"
	"github.com/c360studio/codetrail/internal/model"
)

// Preset is one of the closed set of bundle selection strategies.
type Preset string

const (
	PresetAll          Preset = "all"
	PresetAPI          Preset = "api"
	PresetTests        Preset = "tests"
	PresetDependencies Preset = "dependencies"
)

// Presets lists every recognized preset, in the stable order bundles are
// generated for a run.
var Presets = []Preset{PresetAll, PresetAPI, PresetTests, PresetDependencies}

// Budgets bounds a single bundle's size, independently by bytes and by
// lines.
type Budgets struct {
	MaxBytes int64
	MaxLines int
}

// ContentReader returns the raw bytes for a FileRecord's absolute path.
type ContentReader func(model.FileRecord) ([]byte, error)

// Bundle is one produced sequence of a preset: its concatenated text and
// the sidecar index describing each included unit's location within it.
type Bundle struct {
	Preset Preset
	Seq    int
	Text   []byte
	Index  []model.BundleUnit
}

var testPathMarkers = regexp.MustCompile(`(?i)(^|/)(tests?)(/|$)|_test\.go$|_test\.py$|test_.*\.py$|\.test\.[jt]sx?$|\.spec\.[jt]sx?$`)

// isTestFile reports whether a canonical path is conventionally a test
// file, across the languages the extractor supports.
func isTestFile(canonicalPath string) bool {
	return testPathMarkers.MatchString(canonicalPath)
}

var sourceLanguages = map[string]bool{"go": true, "python": true, "javascript": true, "java": true}

// Predicate returns the file-selection predicate for preset.
func Predicate(preset Preset) func(model.FileRecord) bool {
	switch preset {
	case PresetAll:
		return func(model.FileRecord) bool { return true }
	case PresetTests:
		return func(fr model.FileRecord) bool { return isTestFile(fr.CanonicalPath) }
	case PresetDependencies:
		return func(fr model.FileRecord) bool { return depend.Recognized(fr.CanonicalPath) }
	case PresetAPI:
		return func(fr model.FileRecord) bool {
			return sourceLanguages[fr.Language] && !isTestFile(fr.CanonicalPath)
		}
	default:
		return func(model.FileRecord) bool { return false }
	}
}

// licenseBasename matches the case-insensitive set of filenames
// treated as license files. This rule is part of the determinism
// contract: changing it changes bundle header bytes.
var licenseBasename = regexp.MustCompile(`(?i)^(LICEN[CS]E|COPYING)(\.(md|txt))?$|^(LICEN[CS]E|COPYING)-.*$`)

var knownSPDXSubstrings = []string{"MIT", "Apache", "BSD", "GPL", "MPL", "ISC", "Unlicense"}

// LicenseHint computes the license_hint value for a file that matches
// the license-file naming rule, or reports ok == false for files that
// don't.
func LicenseHint(canonicalPath string, content []byte) (hint string, ok bool) {
	base := path.Base(canonicalPath)
	if !licenseBasename.MatchString(base) {
		return "", false
	}

	firstLine := content
	if idx := strings.IndexByte(string(content), '\n'); idx >= 0 {
		firstLine = content[:idx]
	}
	line := string(firstLine)

	for _, spdx := range knownSPDXSubstrings {
		if strings.Contains(line, spdx) {
			return spdx, true
		}
	}
	return "custom", true
}

// licenseIndex maps a directory (canonical, no trailing slash; "" for
// root) to the license hint that governs it.
type licenseIndex map[string]string

// buildLicenseIndex scans records for license files and indexes their
// hint by containing directory, so headers can resolve the nearest
// enclosing license file.
func buildLicenseIndex(records []model.FileRecord, read ContentReader) (licenseIndex, error) {
	idx := make(licenseIndex)
	for _, fr := range records {
		content, err := read(fr)
		if err != nil {
			continue // unreadable license files degrade to no hint, not a hard failure
		}
		hint, ok := LicenseHint(fr.CanonicalPath, content)
		if !ok {
			continue
		}
		dir := path.Dir(fr.CanonicalPath)
		if dir == "." {
			dir = ""
		}
		idx[dir] = hint
	}
	return idx, nil
}

// resolve walks up from canonicalPath's directory to find the nearest
// indexed license hint, returning "" if none governs it.
func (idx licenseIndex) resolve(canonicalPath string) string {
	dir := path.Dir(canonicalPath)
	if dir == "." {
		dir = ""
	}
	for {
		if hint, ok := idx[dir]; ok {
			return hint
		}
		if dir == "" {
			return ""
		}
		parent := path.Dir(dir)
		if parent == "." {
			parent = ""
		}
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// header renders the exact, key-sorted header block for one included
// unit: digest, language, license_hint, lines, mtime_utc,
// path, size, synopsis — alphabetical key order, LF-terminated, no
// trailing whitespace.
func header(fr model.FileRecord, licenseHint string) string {
	var b strings.Builder
	field := func(key, value string) {
		if value == "" {
			fmt.Fprintf(&b, "%s:\n", key)
			return
		}
		fmt.Fprintf(&b, "%s: %s\n", key, value)
	}
	b.WriteString("---\n")
	field("digest", fr.Digest)
	field("language", fr.Language)
	field("license_hint", licenseHint)
	field("lines", strconv.Itoa(fr.LineCount))
	field("mtime_utc", time.Unix(0, fr.MtimeNs).UTC().Format(time.RFC3339))
	field("path", fr.CanonicalPath)
	field("size", strconv.FormatInt(fr.SizeBytes, 10))
	field("synopsis", fr.Synopsis)
	b.WriteString("---\n")
	return b.String()
}

func lineCount(b []byte) int {
	if len(b) == 0 {
		return 0
	}
	n := strings.Count(string(b), "\n")
	if b[len(b)-1] != '\n' {
		n++
	}
	return n
}

// selectBody returns the bytes to include for a unit under preset: full
// content, except under PresetAPI where only declaration-shaped lines
// are kept").
func selectBody(preset Preset, fr model.FileRecord, content []byte) []byte {
	if preset != PresetAPI {
		return content
	}
	return declarationsOnly(fr.Language, content)
}

var declarationPatterns = map[string]*regexp.Regexp{
	"go":         regexp.MustCompile(`^\s*(func|type|const|var)\b`),
	"python":     regexp.MustCompile(`^\s*(def|class)\b`),
	"javascript": regexp.MustCompile(`^\s*(export\s+)?(function|class|const|interface|type)\b`),
	"java":       regexp.MustCompile(`^\s*(public|private|protected|class|interface)\b`),
}

// declarationsOnly keeps lines that look like top-level declarations for
// known languages, falling back to full content for languages without a
// recognized shape.
func declarationsOnly(language string, content []byte) []byte {
	pattern, ok := declarationPatterns[language]
	if !ok {
		return content
	}
	lines := strings.Split(string(content), "\n")
	var kept []string
	for _, line := range lines {
		if pattern.MatchString(line) {
			kept = append(kept, line)
		}
	}
	return []byte(strings.Join(kept, "\n"))
}

// Build runs the full bundle pipeline for one preset: selects matching
// records in their already-lexicographic order, renders headers, and
// splits into budget-bounded sequences.
func Build(preset Preset, records []model.FileRecord, read ContentReader, budgets Budgets) ([]Bundle, error) {
	predicate := Predicate(preset)

	selected := make([]model.FileRecord, 0, len(records))
	for _, fr := range records {
		if predicate(fr) {
			selected = append(selected, fr)
		}
	}

	licenses, err := buildLicenseIndex(records, read)
	if err != nil {
		return nil, err
	}

	var bundles []Bundle
	cur := Bundle{Preset: preset, Seq: 0}
	var curBytes int64
	var curLines int

	flush := func() {
		bundles = append(bundles, cur)
		cur = Bundle{Preset: preset, Seq: len(bundles)}
		curBytes, curLines = 0, 0
	}

	for _, fr := range selected {
		content, err := read(fr)
		if err != nil {
			content = []byte(fmt.Sprintf("<<unreadable: %s>>", err.Error()))
		}
		body := selectBody(preset, fr, content)
		hint := licenses.resolve(fr.CanonicalPath)
		unitText := header(fr, hint) + string(body) + "\n"
		unitBytes := int64(len(unitText))
		unitLines := lineCount([]byte(unitText))

		oversized := unitBytes > budgets.MaxBytes || unitLines > budgets.MaxLines

		willExceed := !oversized && curBytes > 0 &&
			(curBytes+unitBytes > budgets.MaxBytes || curLines+unitLines > budgets.MaxLines)

		if willExceed {
			flush()
		}

		if oversized && curBytes > 0 {
			flush()
		}

		byteOffset := curBytes
		lineOffset := curLines
		cur.Text = append(cur.Text, []byte(unitText)...)
		curBytes += unitBytes
		curLines += unitLines

		cur.Index = append(cur.Index, model.BundleUnit{
			Path:        fr.CanonicalPath,
			ByteOffset:  byteOffset,
			LineOffset:  lineOffset,
			LengthBytes: unitBytes,
			LengthLines: unitLines,
			Oversized:   oversized,
		})

		if oversized {
			flush()
		}
	}

	if curBytes > 0 || len(cur.Index) > 0 || len(bundles) == 0 {
		bundles = append(bundles, cur)
	}

	return bundles, nil
}
