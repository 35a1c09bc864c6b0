package diagram

import (
	"fmt"
	"strings"
)

// Format is the closed set of diagram source formats.
type Format string

const (
	FormatMermaid  Format = "mermaid"
	FormatPlantUML Format = "plantuml"
	FormatGraphviz Format = "graphviz"
)

// BuildSource renders a Subgraph to the given format's deterministic
// source text. Output depends only on the subgraph's sorted node/edge
// content, so the bytes feeding the template cache never depend on
// iteration or completion order.
func BuildSource(sub Subgraph, format Format) []byte {
	switch format {
	case FormatPlantUML:
		return buildPlantUML(sub)
	case FormatGraphviz:
		return buildGraphviz(sub)
	default:
		return buildMermaid(sub)
	}
}

func sanitizeID(id string) string {
	return "n" + id
}

func buildMermaid(sub Subgraph) []byte {
	var sb strings.Builder
	sb.WriteString("graph TD\n")
	for _, n := range sub.Nodes {
		sb.WriteString(fmt.Sprintf("    %s[%q]\n", sanitizeID(n.ID), n.Label))
	}
	for _, e := range sub.Edges {
		sb.WriteString(fmt.Sprintf("    %s -->|%s| %s\n", sanitizeID(e.SourceID), e.Kind, sanitizeID(e.TargetID)))
	}
	return []byte(sb.String())
}

func buildPlantUML(sub Subgraph) []byte {
	var sb strings.Builder
	sb.WriteString("@startuml\n")
	for _, n := range sub.Nodes {
		sb.WriteString(fmt.Sprintf("object %q as %s\n", n.Label, sanitizeID(n.ID)))
	}
	for _, e := range sub.Edges {
		sb.WriteString(fmt.Sprintf("%s --> %s : %s\n", sanitizeID(e.SourceID), sanitizeID(e.TargetID), e.Kind))
	}
	sb.WriteString("@enduml\n")
	return []byte(sb.String())
}

func buildGraphviz(sub Subgraph) []byte {
	var sb strings.Builder
	sb.WriteString("digraph codetrail {\n")
	for _, n := range sub.Nodes {
		sb.WriteString(fmt.Sprintf("  %s [label=%q];\n", sanitizeID(n.ID), n.Label))
	}
	for _, e := range sub.Edges {
		sb.WriteString(fmt.Sprintf("  %s -> %s [label=%q];\n", sanitizeID(e.SourceID), sanitizeID(e.TargetID), e.Kind))
	}
	sb.WriteString("}\n")
	return []byte(sb.String())
}
