// Package diff compares two graph snapshots: a prior run's
// JSON-LD document against the current in-memory graph. Unified-diff
// rendering of a changed node's attribute lines uses
// github.com/sourcegraph/go-diff rather than a bespoke text-diff
// algorithm: this package computes which attribute lines
// differ with a straightforward common-prefix/common-suffix reduction,
// then hands the reduced before/after line blocks to go-diff's Hunk/
// FileDiff types purely to render the canonical unified-diff text.
package diff

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	gdiff "github.com/sourcegraph/go-diff/diff"

	"github.com/c360studio/codetrail/internal/graph"
	"github.com/c360studio/codetrail/internal/model"
)

// ChangedNode records one node present in both snapshots whose
// attributes or provenance differ, with a rendered unified-diff
// snippet of its sorted attribute lines.
type ChangedNode struct {
	ID     string `json:"id"`
	Label  string `json:"-"`
	Before string `json:"-"`
	After  string `json:"-"`
	Diff   string `json:"diff"`
}

// Result is the output of comparing two graph snapshots, emitted in
// both JSON (machine) and Markdown (human) forms.
type Result struct {
	AddedNodes   []model.Node         `json:"added_nodes"`
	RemovedNodes []model.Node         `json:"removed_nodes"`
	ChangedNodes []ChangedNode        `json:"changed_nodes"`
	AddedEdges   []model.Relationship `json:"added_edges"`
	RemovedEdges []model.Relationship `json:"removed_edges"`
}

// jsonLDSnapshot is the minimal shape of a serialized prior run needed
// to diff against: just the node and relationship arrays, matching
// internal/graph/serialize's JSONLD output.
type jsonLDSnapshot struct {
	Nodes         []model.Node         `json:"nodes"`
	Relationships []model.Relationship `json:"relationships"`
}

// ParsePriorSnapshot decodes a prior run's JSON-LD graph document.
func ParsePriorSnapshot(jsonLD []byte) (*graph.Graph, error) {
	var snap jsonLDSnapshot
	if err := json.Unmarshal(jsonLD, &snap); err != nil {
		return nil, fmt.Errorf("parse prior graph snapshot: %w", err)
	}
	return &graph.Graph{Nodes: snap.Nodes, Relationships: snap.Relationships}, nil
}

// Compare produces the full diff between prior and current.
func Compare(prior, current *graph.Graph) (*Result, error) {
	priorNodes := indexNodes(prior.Nodes)
	currentNodes := indexNodes(current.Nodes)

	res := &Result{}

	for id, n := range currentNodes {
		if _, ok := priorNodes[id]; !ok {
			res.AddedNodes = append(res.AddedNodes, n)
		}
	}
	for id, n := range priorNodes {
		if _, ok := currentNodes[id]; !ok {
			res.RemovedNodes = append(res.RemovedNodes, n)
		}
	}
	for id, n := range currentNodes {
		prev, ok := priorNodes[id]
		if !ok || nodeEqual(prev, n) {
			continue
		}
		cn, err := changedNode(prev, n)
		if err != nil {
			return nil, err
		}
		res.ChangedNodes = append(res.ChangedNodes, cn)
	}

	priorEdges := indexRelationships(prior.Relationships)
	currentEdges := indexRelationships(current.Relationships)
	for id, r := range currentEdges {
		if _, ok := priorEdges[id]; !ok {
			res.AddedEdges = append(res.AddedEdges, r)
		}
	}
	for id, r := range priorEdges {
		if _, ok := currentEdges[id]; !ok {
			res.RemovedEdges = append(res.RemovedEdges, r)
		}
	}

	sortNodes(res.AddedNodes)
	sortNodes(res.RemovedNodes)
	sort.Slice(res.ChangedNodes, func(i, j int) bool { return res.ChangedNodes[i].ID < res.ChangedNodes[j].ID })
	sortRelationships(res.AddedEdges)
	sortRelationships(res.RemovedEdges)

	return res, nil
}

func indexNodes(nodes []model.Node) map[string]model.Node {
	m := make(map[string]model.Node, len(nodes))
	for _, n := range nodes {
		m[n.ID] = n
	}
	return m
}

func indexRelationships(rels []model.Relationship) map[string]model.Relationship {
	m := make(map[string]model.Relationship, len(rels))
	for _, r := range rels {
		m[r.ID] = r
	}
	return m
}

func nodeEqual(a, b model.Node) bool {
	return attributeLines(a) == attributeLines(b) && sameProvenance(a.Provenance, b.Provenance)
}

func sameProvenance(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// attributeLines renders a node's attributes (plus provenance) as
// sorted "key: value" lines, the unit this package diffs.
func attributeLines(n model.Node) string {
	keys := make([]string, 0, len(n.Attributes))
	for k := range n.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var lines []string
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %v", k, n.Attributes[k]))
	}
	lines = append(lines, fmt.Sprintf("provenance: %s", strings.Join(n.Provenance, ",")))
	return strings.Join(lines, "\n")
}

func changedNode(prev, cur model.Node) (ChangedNode, error) {
	before := attributeLines(prev)
	after := attributeLines(cur)

	rendered, err := unifiedSnippet(cur.ID, before, after)
	if err != nil {
		return ChangedNode{}, err
	}

	return ChangedNode{ID: cur.ID, Label: cur.Label, Before: before, After: after, Diff: rendered}, nil
}

// unifiedSnippet renders a unified-diff snippet between two small
// blocks of "key: value" lines. The before/after blocks are reduced to
// their differing middle section by trimming a common prefix and
// common suffix of lines; go-diff's Hunk/FileDiff types then render
// that reduced block as canonical unified-diff text.
func unifiedSnippet(nodeID, before, after string) (string, error) {
	beforeLines := strings.Split(before, "\n")
	afterLines := strings.Split(after, "\n")

	prefix := 0
	for prefix < len(beforeLines) && prefix < len(afterLines) && beforeLines[prefix] == afterLines[prefix] {
		prefix++
	}

	suffix := 0
	for suffix < len(beforeLines)-prefix && suffix < len(afterLines)-prefix &&
		beforeLines[len(beforeLines)-1-suffix] == afterLines[len(afterLines)-1-suffix] {
		suffix++
	}

	removed := beforeLines[prefix : len(beforeLines)-suffix]
	added := afterLines[prefix : len(afterLines)-suffix]

	var body strings.Builder
	for _, l := range removed {
		body.WriteString("-" + l + "\n")
	}
	for _, l := range added {
		body.WriteString("+" + l + "\n")
	}

	hunk := &gdiff.Hunk{
		OrigStartLine: int32(prefix + 1),
		OrigLines:     int32(len(removed)),
		NewStartLine:  int32(prefix + 1),
		NewLines:      int32(len(added)),
		Body:          []byte(body.String()),
	}
	fd := &gdiff.FileDiff{
		OrigName: "node/" + nodeID + "/before",
		NewName:  "node/" + nodeID + "/after",
		Hunks:    []*gdiff.Hunk{hunk},
	}

	out, err := gdiff.PrintFileDiff(fd)
	if err != nil {
		return "", fmt.Errorf("render unified diff for node %s: %w", nodeID, err)
	}
	return string(out), nil
}

func sortNodes(nodes []model.Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
}

func sortRelationships(rels []model.Relationship) {
	sort.Slice(rels, func(i, j int) bool {
		if rels[i].SourceID != rels[j].SourceID {
			return rels[i].SourceID < rels[j].SourceID
		}
		if rels[i].Kind != rels[j].Kind {
			return rels[i].Kind < rels[j].Kind
		}
		return rels[i].TargetID < rels[j].TargetID
	})
}
