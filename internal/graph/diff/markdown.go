package diff

import (
	"fmt"
	"sort"
	"strings"

	"github.com/c360studio/codetrail/internal/model"
)

// Markdown renders res as the human-summary form: grouped by kind,
// empty sections rendered as `_none_` rather than omitted, so the
// Markdown's shape never changes between an empty and absent diff.
func Markdown(res *Result) string {
	var sb strings.Builder

	sb.WriteString("# Graph Diff\n\n")

	sb.WriteString("## Added Nodes\n\n")
	writeNodeList(&sb, res.AddedNodes)

	sb.WriteString("\n## Removed Nodes\n\n")
	writeNodeList(&sb, res.RemovedNodes)

	sb.WriteString("\n## Changed Nodes\n\n")
	if len(res.ChangedNodes) == 0 {
		sb.WriteString("_none_\n")
	} else {
		for _, cn := range res.ChangedNodes {
			sb.WriteString(fmt.Sprintf("### `%s` %s\n\n", cn.ID, cn.Label))
			sb.WriteString("```diff\n")
			sb.WriteString(cn.Diff)
			sb.WriteString("```\n\n")
		}
	}

	sb.WriteString("\n## Added Edges\n\n")
	writeEdgeList(&sb, res.AddedEdges)

	sb.WriteString("\n## Removed Edges\n\n")
	writeEdgeList(&sb, res.RemovedEdges)

	return sb.String()
}

func writeNodeList(sb *strings.Builder, nodes []model.Node) {
	if len(nodes) == 0 {
		sb.WriteString("_none_\n")
		return
	}
	byKind := make(map[model.NodeKind][]model.Node)
	for _, n := range nodes {
		byKind[n.Kind] = append(byKind[n.Kind], n)
	}
	kinds := make([]string, 0, len(byKind))
	for k := range byKind {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	for _, k := range kinds {
		sb.WriteString(fmt.Sprintf("- **%s**\n", k))
		for _, n := range byKind[model.NodeKind(k)] {
			sb.WriteString(fmt.Sprintf("  - `%s` %s\n", n.ID, n.Label))
		}
	}
}

func writeEdgeList(sb *strings.Builder, rels []model.Relationship) {
	if len(rels) == 0 {
		sb.WriteString("_none_\n")
		return
	}
	byKind := make(map[model.RelationshipKind][]model.Relationship)
	for _, r := range rels {
		byKind[r.Kind] = append(byKind[r.Kind], r)
	}
	kinds := make([]string, 0, len(byKind))
	for k := range byKind {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	for _, k := range kinds {
		sb.WriteString(fmt.Sprintf("- **%s**\n", k))
		for _, r := range byKind[model.RelationshipKind(k)] {
			sb.WriteString(fmt.Sprintf("  - `%s` -> `%s`\n", r.SourceID, r.TargetID))
		}
	}
}
