// Package depend normalizes dependency-manifest files into
// DependencyEvent values. Manifest recognition is a fixed allow-list
// of file name patterns, since manifests are identified by basename,
// not extension.
package depend

import (
	"bufio"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/c360studio/codetrail/internal/model"
)

// Allowlist is the closed set of manifest basename patterns the
// dependency parser recognizes: Python, Node, Go, Java.
var Allowlist = []string{
	"requirements*.txt",
	"pyproject.toml",
	"Pipfile",
	"package.json",
	"go.mod",
	"pom.xml",
}

// Recognized reports whether basename matches the manifest allow-list.
func Recognized(canonicalPath string) bool {
	base := filepath.Base(canonicalPath)
	for _, pattern := range Allowlist {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// nameCanonicalizer collapses runs of -, _, . into a single hyphen and
// lowercases the result, matching PEP 503's package-name normalization
// .
var nameCanonicalizer = regexp.MustCompile(`[-_.]+`)

// CanonicalizePackageName normalizes a package name for cross-manifest
// comparison.
func CanonicalizePackageName(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	return nameCanonicalizer.ReplaceAllString(lower, "-")
}

// Parse reads one manifest file's content and returns its normalized
// dependency events. owningModule is the nearest containing
// directory's module path, attached to every event.
func Parse(canonicalPath, owningModule string, content []byte) []model.DependencyEvent {
	base := filepath.Base(canonicalPath)
	switch {
	case strings.HasPrefix(base, "requirements") && strings.HasSuffix(base, ".txt"):
		return parseRequirementsTxt(canonicalPath, owningModule, content)
	case base == "pyproject.toml":
		return parsePyprojectToml(canonicalPath, owningModule, content)
	case base == "Pipfile":
		return parsePipfile(canonicalPath, owningModule, content)
	case base == "package.json":
		return parsePackageJSON(canonicalPath, owningModule, content)
	case base == "go.mod":
		return parseGoMod(canonicalPath, owningModule, content)
	case base == "pom.xml":
		return parsePomXML(canonicalPath, owningModule, content)
	default:
		return nil
	}
}

var requirementLine = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._-]*)\s*(==|>=|<=|~=|!=|>|<)?\s*([A-Za-z0-9.*+!-]*)`)

func parseRequirementsTxt(path, module string, content []byte) []model.DependencyEvent {
	var events []model.DependencyEvent
	scanner := bufio.NewScanner(strings.NewReader(string(content)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		m := requirementLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		events = append(events, model.DependencyEvent{
			Package:      CanonicalizePackageName(m[1]),
			VersionSpec:  strings.TrimSpace(m[2] + m[3]),
			Scope:        model.ScopeRuntime,
			ManifestPath: path,
			OwningModule: module,
		})
	}
	return events
}

// tomlDepLine matches a simple "name = "version"" or "name = ">=1.0"" table
// entry inside a pyproject.toml [tool.poetry.dependencies]-style section.
// pyproject.toml's full grammar is out of scope; this handles the common
// flat-table shape the walker will actually encounter.
var tomlDepLine = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._-]*)\s*=\s*"([^"]*)"`)

func parsePyprojectToml(path, module string, content []byte) []model.DependencyEvent {
	var events []model.DependencyEvent
	scanner := bufio.NewScanner(strings.NewReader(string(content)))
	scope := model.ScopeRuntime
	inDeps := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "[") {
			lower := strings.ToLower(line)
			inDeps = strings.Contains(lower, "dependencies")
			if strings.Contains(lower, "dev") || strings.Contains(lower, "test") {
				scope = model.ScopeDev
			} else {
				scope = model.ScopeRuntime
			}
			continue
		}
		if !inDeps {
			continue
		}
		m := tomlDepLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := CanonicalizePackageName(m[1])
		if name == "python" {
			continue
		}
		events = append(events, model.DependencyEvent{
			Package:      name,
			VersionSpec:  m[2],
			Scope:        scope,
			ManifestPath: path,
			OwningModule: module,
		})
	}
	return events
}

func parsePipfile(path, module string, content []byte) []model.DependencyEvent {
	var events []model.DependencyEvent
	scanner := bufio.NewScanner(strings.NewReader(string(content)))
	scope := model.ScopeRuntime
	inSection := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "[") {
			inSection = strings.Contains(line, "packages")
			scope = model.ScopeRuntime
			if strings.Contains(line, "dev-packages") {
				scope = model.ScopeDev
			}
			continue
		}
		if !inSection {
			continue
		}
		m := tomlDepLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		version := m[2]
		if version == "*" {
			version = ""
		}
		events = append(events, model.DependencyEvent{
			Package:      CanonicalizePackageName(m[1]),
			VersionSpec:  version,
			Scope:        scope,
			ManifestPath: path,
			OwningModule: module,
		})
	}
	return events
}

var packageJSONDep = regexp.MustCompile(`^\s*"([^"]+)"\s*:\s*"([^"]*)"\s*,?\s*$`)

func parsePackageJSON(path, module string, content []byte) []model.DependencyEvent {
	var events []model.DependencyEvent
	scanner := bufio.NewScanner(strings.NewReader(string(content)))
	scope := model.ScopeRuntime
	inDeps := false
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, `"dependencies"`):
			inDeps, scope = true, model.ScopeRuntime
			continue
		case strings.HasPrefix(trimmed, `"devDependencies"`):
			inDeps, scope = true, model.ScopeDev
			continue
		case strings.HasPrefix(trimmed, `"optionalDependencies"`):
			inDeps, scope = true, model.ScopeOptional
			continue
		case trimmed == "}" || trimmed == "},":
			inDeps = false
			continue
		}
		if !inDeps {
			continue
		}
		m := packageJSONDep.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		events = append(events, model.DependencyEvent{
			Package:      CanonicalizePackageName(m[1]),
			VersionSpec:  m[2],
			Scope:        scope,
			ManifestPath: path,
			OwningModule: module,
		})
	}
	return events
}

var goModRequire = regexp.MustCompile(`^\s*([A-Za-z0-9._/-]+)\s+(v[0-9][A-Za-z0-9.+-]*)`)

func parseGoMod(path, module string, content []byte) []model.DependencyEvent {
	var events []model.DependencyEvent
	scanner := bufio.NewScanner(strings.NewReader(string(content)))
	inRequire := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "require ("):
			inRequire = true
			continue
		case line == ")":
			inRequire = false
			continue
		}
		if strings.HasPrefix(line, "require ") {
			line = strings.TrimPrefix(line, "require ")
		} else if !inRequire {
			continue
		}
		scope := model.ScopeRuntime
		if strings.Contains(line, "// indirect") {
			scope = model.ScopeOptional
		}
		m := goModRequire.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		events = append(events, model.DependencyEvent{
			Package:      CanonicalizePackageName(m[1]),
			VersionSpec:  m[2],
			Scope:        scope,
			ManifestPath: path,
			OwningModule: module,
		})
	}
	return events
}

var pomDependencyBlock = regexp.MustCompile(`(?s)<dependency>(.*?)</dependency>`)
var pomGroupID = regexp.MustCompile(`<groupId>([^<]+)</groupId>`)
var pomArtifactID = regexp.MustCompile(`<artifactId>([^<]+)</artifactId>`)
var pomVersion = regexp.MustCompile(`<version>([^<]+)</version>`)
var pomScope = regexp.MustCompile(`<scope>([^<]+)</scope>`)

func parsePomXML(path, module string, content []byte) []model.DependencyEvent {
	var events []model.DependencyEvent
	for _, block := range pomDependencyBlock.FindAllStringSubmatch(string(content), -1) {
		body := block[1]
		group := firstMatch(pomGroupID, body)
		artifact := firstMatch(pomArtifactID, body)
		if artifact == "" {
			continue
		}
		name := artifact
		if group != "" {
			name = group + "-" + artifact
		}
		scope := model.ScopeRuntime
		switch firstMatch(pomScope, body) {
		case "test":
			scope = model.ScopeDev
		case "provided", "optional":
			scope = model.ScopeOptional
		}
		events = append(events, model.DependencyEvent{
			Package:      CanonicalizePackageName(name),
			VersionSpec:  firstMatch(pomVersion, body),
			Scope:        scope,
			ManifestPath: path,
			OwningModule: module,
		})
	}
	return events
}

func firstMatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}
