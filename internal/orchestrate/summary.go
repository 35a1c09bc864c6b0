// Run summary emission: a Markdown document cross-linking every
// artifact family the run produced, a Diagnostics section for
// recoverable errors, the instrumentation counters, and an annotated
// ASCII map of the scanned repository with per-file size, line count,
// and change markers.
package orchestrate

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/c360studio/codetrail/internal/digest"
	"github.com/c360studio/codetrail/internal/metrics"
	"github.com/c360studio/codetrail/internal/model"
	"github.com/c360studio/codetrail/internal/runerr"
)

func (s *runState) writeSummary(opts Options, now time.Time, records []model.FileRecord, delta []model.DeltaRecord, gate *metrics.GateReport) error {
	// Diagnostics land in logs/ as a machine-readable artifact as well
	// as in the summary's Diagnostics section.
	sortedDiags := make([]runerr.Diagnostic, 0, len(s.diagnostics))
	sortedDiags = append(sortedDiags, s.diagnostics...)
	sort.Slice(sortedDiags, func(i, j int) bool {
		if sortedDiags[i].Path != sortedDiags[j].Path {
			return sortedDiags[i].Path < sortedDiags[j].Path
		}
		return sortedDiags[i].Code < sortedDiags[j].Code
	})
	diagData, err := marshalJSON(sortedDiags)
	if err != nil {
		return runerr.IO("E_DIAG_ENCODE", "failed to encode diagnostics", err)
	}
	if err := s.writeArtifact("diagnostics", "logs/diagnostics.json", diagData); err != nil {
		return err
	}

	var sb strings.Builder

	fmt.Fprintf(&sb, "# Run %s\n\n", s.runID)
	fmt.Fprintf(&sb, "- Timestamp: %s\n", now.Format("2006-01-02T15:04:05Z"))
	fmt.Fprintf(&sb, "- Tool version: %s\n", opts.ToolVersion)
	fmt.Fprintf(&sb, "- Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&sb, "- Files scanned: %d\n", len(records))
	fmt.Fprintf(&sb, "- Manifest: [manifest.json](../manifests/manifest.json)\n\n")

	sb.WriteString("## Delta\n\n")
	counts := map[model.DeltaState]int{}
	for _, d := range delta {
		counts[d.State]++
	}
	fmt.Fprintf(&sb, "%d added, %d changed, %d removed, %d unchanged — [delta.json](../delta/delta.json)\n\n",
		counts[model.DeltaAdded], counts[model.DeltaChanged], counts[model.DeltaRemoved], counts[model.DeltaUnchanged])

	sb.WriteString("## Quality gates\n\n")
	if gate == nil || len(gate.Checks) == 0 {
		sb.WriteString("No thresholds configured — verdict `pass`. [gate.json](../gates/gate.json)\n\n")
	} else {
		fmt.Fprintf(&sb, "Overall verdict: `%s` — [gate.json](../gates/gate.json), [metrics.json](../metrics/metrics.json)\n\n", gate.Verdict)
		for _, check := range gate.Checks {
			fmt.Fprintf(&sb, "- `%s`: %s (%s)\n", check.Name, check.Verdict, check.Reason)
		}
		sb.WriteString("\n")
	}

	sortedArtifacts := append([]model.ArtifactRecord(nil), s.artifacts...)
	sort.Slice(sortedArtifacts, func(i, j int) bool { return sortedArtifacts[i].RelativePath < sortedArtifacts[j].RelativePath })
	writeArtifactSection(&sb, "Bundles", "bundle", sortedArtifacts)
	writeArtifactSection(&sb, "Graphs", "graph", sortedArtifacts)
	writeArtifactSection(&sb, "Diagrams", "diagram", sortedArtifacts)
	writeArtifactSection(&sb, "Cards", "card", sortedArtifacts)

	if len(s.skipped) > 0 {
		sb.WriteString("## Skipped stages\n\n")
		for _, sk := range s.skipped {
			fmt.Fprintf(&sb, "- `%s`: %s\n", sk.Stage, sk.Reason)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Diagnostics\n\n")
	if len(sortedDiags) == 0 {
		sb.WriteString("_none_\n\n")
	} else {
		for _, d := range sortedDiags {
			if d.Path != "" {
				fmt.Fprintf(&sb, "- `%s` (%s) `%s`: %s\n", d.Code, d.Class, d.Path, d.Message)
			} else {
				fmt.Fprintf(&sb, "- `%s` (%s): %s\n", d.Code, d.Class, d.Message)
			}
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Instrumentation\n\n")
	names, values := s.meter.Snapshot()
	for _, name := range names {
		fmt.Fprintf(&sb, "- `%s`: %g\n", name, values[name])
	}
	sb.WriteString("\n")

	sb.WriteString("## Repository map\n\n")
	sb.WriteString("```\n")
	sb.WriteString(asciiTree(records, deltaStates(delta)))
	sb.WriteString("```\n")

	data := []byte(sb.String())
	abs := filepath.Join(s.runDir, "summary", "summary.md")
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return runerr.IO("E_RUN_WRITE", "failed to write run summary", err)
	}
	s.artifacts = append(s.artifacts, model.ArtifactRecord{
		Kind:         "summary",
		RelativePath: "summary/summary.md",
		Digest:       digest.Bytes(data),
	})
	return nil
}

func writeArtifactSection(sb *strings.Builder, title, kindPrefix string, artifacts []model.ArtifactRecord) {
	var matched []model.ArtifactRecord
	for _, a := range artifacts {
		if strings.HasPrefix(a.Kind, kindPrefix) {
			matched = append(matched, a)
		}
	}
	fmt.Fprintf(sb, "## %s\n\n", title)
	if len(matched) == 0 {
		sb.WriteString("_none_\n\n")
		return
	}
	for _, a := range matched {
		fmt.Fprintf(sb, "- [%s](../%s)\n", a.RelativePath, a.RelativePath)
	}
	sb.WriteString("\n")
}

func deltaStates(delta []model.DeltaRecord) map[string]model.DeltaState {
	states := make(map[string]model.DeltaState, len(delta))
	for _, d := range delta {
		states[d.CanonicalPath] = d.State
	}
	return states
}

// treeNode is one directory or file in the rendered repository map.
type treeNode struct {
	name     string
	record   *model.FileRecord
	children map[string]*treeNode
}

func newTreeNode(name string) *treeNode {
	return &treeNode{name: name, children: make(map[string]*treeNode)}
}

// asciiTree renders the scanned files as an indented directory tree
// with per-file size, line count, and delta-state annotations.
func asciiTree(records []model.FileRecord, states map[string]model.DeltaState) string {
	root := newTreeNode(".")
	for i := range records {
		parts := strings.Split(records[i].CanonicalPath, "/")
		node := root
		for _, part := range parts[:len(parts)-1] {
			child, ok := node.children[part]
			if !ok {
				child = newTreeNode(part)
				node.children[part] = child
			}
			node = child
		}
		leaf := newTreeNode(parts[len(parts)-1])
		leaf.record = &records[i]
		node.children[parts[len(parts)-1]] = leaf
	}

	var sb strings.Builder
	sb.WriteString(".\n")
	renderTree(&sb, root, "", states)
	return sb.String()
}

func renderTree(sb *strings.Builder, node *treeNode, prefix string, states map[string]model.DeltaState) {
	names := make([]string, 0, len(node.children))
	for name := range node.children {
		names = append(names, name)
	}
	sort.Strings(names)

	for i, name := range names {
		child := node.children[name]
		connector := "├── "
		childPrefix := prefix + "│   "
		if i == len(names)-1 {
			connector = "└── "
			childPrefix = prefix + "    "
		}

		if child.record != nil {
			state := states[child.record.CanonicalPath]
			marker := ""
			if state != model.DeltaUnchanged && state != "" {
				marker = fmt.Sprintf(" [%s]", state)
			}
			fmt.Fprintf(sb, "%s%s%s (%d B, %d L)%s\n", prefix, connector, name, child.record.SizeBytes, child.record.LineCount, marker)
		} else {
			fmt.Fprintf(sb, "%s%s%s/\n", prefix, connector, name)
			renderTree(sb, child, childPrefix, states)
		}
	}
}
