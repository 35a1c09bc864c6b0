package diagram

import (
	"sort"

	"github.com/c360studio/codetrail/internal/digest"
	"github.com/c360studio/codetrail/internal/graph"
	"github.com/c360studio/codetrail/internal/model"
)

// Preset is the closed set of diagram presets.
type Preset string

const (
	PresetArchitecture Preset = "architecture"
	PresetDependencies Preset = "dependencies"
	PresetTests        Preset = "tests"
)

// presetNodeKinds and presetEdgeKinds together define each preset's
// projection of the knowledge graph.
var presetNodeKinds = map[Preset]map[model.NodeKind]bool{
	PresetArchitecture: {model.NodeModule: true, model.NodeFile: true},
	PresetDependencies: {model.NodeModule: true, model.NodeDependency: true},
	PresetTests:        {model.NodeTest: true, model.NodeModule: true},
}

var presetEdgeKinds = map[Preset]map[model.RelationshipKind]bool{
	PresetArchitecture: {model.RelContains: true},
	PresetDependencies: {model.RelDependsOn: true},
	PresetTests:        {model.RelTests: true},
}

// Subgraph is the sorted node/edge projection a preset selects from the
// full knowledge graph.
type Subgraph struct {
	Preset Preset
	Nodes  []model.Node
	Edges  []model.Relationship
}

// Project selects the nodes and edges a preset includes, sorted
// deterministically so the subgraph digest (and therefore the cache
// key) depends only on graph content, never iteration order.
func Project(g *graph.Graph, preset Preset) Subgraph {
	allowedNodes := presetNodeKinds[preset]
	allowedEdges := presetEdgeKinds[preset]

	kept := make(map[string]bool)
	var nodes []model.Node
	for _, n := range g.Nodes {
		if !allowedNodes[n.Kind] {
			continue
		}
		kept[n.ID] = true
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	var edges []model.Relationship
	for _, r := range g.Relationships {
		if !allowedEdges[r.Kind] {
			continue
		}
		if !kept[r.SourceID] || !kept[r.TargetID] {
			continue
		}
		edges = append(edges, r)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].SourceID != edges[j].SourceID {
			return edges[i].SourceID < edges[j].SourceID
		}
		if edges[i].Kind != edges[j].Kind {
			return edges[i].Kind < edges[j].Kind
		}
		return edges[i].TargetID < edges[j].TargetID
	})

	return Subgraph{Preset: preset, Nodes: nodes, Edges: edges}
}

// Digest returns the content digest of the subgraph's sorted
// projection, the subgraph_digest ingredient of the template cache
// key.
func (s Subgraph) Digest() string {
	var buf []byte
	for _, n := range s.Nodes {
		buf = append(buf, []byte(string(n.Kind)+"\x1f"+n.ID+"\x1f"+n.Label+"\n")...)
	}
	for _, e := range s.Edges {
		buf = append(buf, []byte(e.SourceID+"\x1f"+string(e.Kind)+"\x1f"+e.TargetID+"\n")...)
	}
	return digest.Bytes(buf)
}
