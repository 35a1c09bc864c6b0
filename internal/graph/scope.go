package graph

import "github.com/c360studio/codetrail/internal/model"

// Scope is the closed set of `--graph-scope` presets.
type Scope string

const (
	ScopeFull         Scope = "full"
	ScopeCode         Scope = "code"
	ScopeDependencies Scope = "dependencies"
	ScopeTests        Scope = "tests"
)

// scopeNodeKinds lists which node kinds each scope preset retains.
// ScopeFull retains everything and has no entry here.
var scopeNodeKinds = map[Scope]map[model.NodeKind]bool{
	ScopeCode: {
		model.NodeRun: true, model.NodeFile: true, model.NodeModule: true,
		model.NodeFunction: true, model.NodeClass: true, model.NodeTest: true,
	},
	ScopeDependencies: {
		model.NodeRun: true, model.NodeModule: true, model.NodeFile: true, model.NodeDependency: true,
	},
	ScopeTests: {
		model.NodeRun: true, model.NodeFile: true, model.NodeModule: true, model.NodeTest: true,
	},
}

// Project returns the sub-graph a `--graph-scope` preset would include,
// with `--graph-no-tests` applied last and dominant: test nodes and
// their `tests` edges are always removed when noTests is set,
// regardless of which scope preset is in effect.
func Project(g *Graph, scope Scope, noTests bool) *Graph {
	keep := func(model.NodeKind) bool { return true }
	if allowed, ok := scopeNodeKinds[scope]; ok {
		keep = func(k model.NodeKind) bool { return allowed[k] }
	}

	keptIDs := make(map[string]bool, len(g.Nodes))
	nodes := make([]model.Node, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if noTests && n.Kind == model.NodeTest {
			continue
		}
		if !keep(n.Kind) {
			continue
		}
		keptIDs[n.ID] = true
		nodes = append(nodes, n)
	}

	rels := make([]model.Relationship, 0, len(g.Relationships))
	for _, r := range g.Relationships {
		if noTests && r.Kind == model.RelTests {
			continue
		}
		if !keptIDs[r.SourceID] || !keptIDs[r.TargetID] {
			continue
		}
		rels = append(rels, r)
	}

	return &Graph{Nodes: nodes, Relationships: rels}
}
