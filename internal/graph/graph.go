// Package graph builds the run's knowledge graph: a typed
// node/relationship set synthesized from FileRecords, EntityEvents,
// DependencyEvents, and the run's produced artifacts, validated against
// a closed set of structural invariants before any serializer or differ
// is allowed to run.
package graph

import (
	"fmt"
	"sort"

	"github.com/c360studio/codetrail/internal/digest"
	"github.com/c360studio/codetrail/internal/model"
	"github.com/c360studio/codetrail/internal/runerr"
)

// FileExtraction pairs one FileRecord with the EntityEvents extracted
// from it, the unit the builder walks to synthesize module/function/
// class/test nodes.
type FileExtraction struct {
	File   model.FileRecord
	Result model.ExtractionResult
}

// ArtifactInput is one produced artifact plus the file paths it derives
// from (for bundles), used to wire `derives` edges.
type ArtifactInput struct {
	Record           model.ArtifactRecord
	DerivesFromPaths []string
}

// BuildInput is everything the graph builder consumes for one run.
type BuildInput struct {
	RunID        string
	Files        []FileExtraction
	Dependencies []model.DependencyEvent
	Artifacts    []ArtifactInput
}

// Graph is the full, validated knowledge graph for one run.
type Graph struct {
	Nodes         []model.Node
	Relationships []model.Relationship
}

// Build synthesizes the graph (run root, files, modules and members,
// imports, dependencies, artifacts), then validates it. A validation failure returns a ClassInvariant runerr.Error naming
// the offending IDs; the graph returned alongside a non-nil error is
// nil.
func Build(input BuildInput) (*Graph, error) {
	b := &builder{
		runID:               input.RunID,
		nodesByID:           make(map[string]model.Node),
		moduleByName:        make(map[string]string),
		dependencyByPackage: make(map[string]string),
	}

	b.addRunNode()
	for _, fe := range input.Files {
		b.addFile(fe)
	}
	for _, fe := range input.Files {
		b.addModuleAndMembers(fe)
	}
	for _, fe := range input.Files {
		b.addImports(fe)
	}
	for _, dep := range input.Dependencies {
		b.addDependencyEvent(dep)
	}
	for _, art := range input.Artifacts {
		b.addArtifact(art)
	}

	g := &Graph{Nodes: b.sortedNodes(), Relationships: b.sortedRelationships()}
	if err := Validate(g); err != nil {
		return nil, err
	}
	return g, nil
}

type builder struct {
	runID   string
	runNode string

	nodesByID     map[string]model.Node
	nodeOrder     []string
	relationships []model.Relationship

	moduleByName        map[string]string // qualified module name -> node ID
	dependencyByPackage map[string]string // canonicalized package name -> node ID
}

func (b *builder) addNode(n model.Node) {
	if _, exists := b.nodesByID[n.ID]; exists {
		return
	}
	b.nodesByID[n.ID] = n
	b.nodeOrder = append(b.nodeOrder, n.ID)
}

func (b *builder) addRelationship(sourceID, targetID string, kind model.RelationshipKind) {
	b.relationships = append(b.relationships, model.Relationship{
		ID:       digest.EdgeID(sourceID, string(kind), targetID),
		SourceID: sourceID,
		TargetID: targetID,
		Kind:     kind,
	})
}

func (b *builder) addRunNode() {
	id := digest.NodeID("run", b.runID)
	b.runNode = id
	b.addNode(model.Node{
		ID:         id,
		Kind:       model.NodeRun,
		Label:      b.runID,
		Attributes: map[string]any{"run_id": b.runID},
		Provenance: []string{b.runID},
	})
}

func (b *builder) addFile(fe FileExtraction) {
	id := digest.NodeID("file", fe.File.CanonicalPath)
	attrs := map[string]any{
		"canonical_path": fe.File.CanonicalPath,
		"language":       fe.File.Language,
		"digest":         fe.File.Digest,
		"size_bytes":     fe.File.SizeBytes,
		"line_count":     fe.File.LineCount,
	}
	if fe.Result.Degraded {
		attrs["extraction_degraded"] = true
	}
	b.addNode(model.Node{
		ID:         id,
		Kind:       model.NodeFile,
		Label:      fe.File.CanonicalPath,
		Attributes: attrs,
		Provenance: []string{b.runID},
	})
	b.addRelationship(b.runNode, id, model.RelContains)
}

func (b *builder) fileNodeID(canonicalPath string) string {
	return digest.NodeID("file", canonicalPath)
}

// addModuleAndMembers walks one file's EntityEvents, creating the
// module node first (there is exactly one ModuleDeclared event per
// file) then function/class/test nodes, wired single-parent via each
// event's ParentQualifiedName.
func (b *builder) addModuleAndMembers(fe FileExtraction) {
	fileID := b.fileNodeID(fe.File.CanonicalPath)

	var moduleName string
	idByQualifiedName := make(map[string]string)

	for _, ev := range fe.Result.Events {
		if ev.Kind != model.EventModuleDeclared {
			continue
		}
		moduleName = ev.QualifiedName
		id := digest.NodeID("module", fe.File.CanonicalPath+"::"+moduleName)
		idByQualifiedName[moduleName] = id
		b.moduleByName[moduleName] = id
		b.addNode(model.Node{
			ID:         id,
			Kind:       model.NodeModule,
			Label:      moduleName,
			Attributes: map[string]any{"qualified_name": moduleName, "doc": ev.Doc},
			Provenance: []string{fe.File.CanonicalPath},
		})
		b.addRelationship(fileID, id, model.RelContains)
	}

	for _, ev := range fe.Result.Events {
		var kind model.NodeKind
		switch ev.Kind {
		case model.EventFunctionDeclared:
			kind = model.NodeFunction
		case model.EventClassDeclared:
			kind = model.NodeClass
		case model.EventTestDeclared:
			kind = model.NodeTest
		default:
			continue
		}

		id := digest.NodeID(string(kind), fe.File.CanonicalPath+"::"+ev.QualifiedName)
		idByQualifiedName[ev.QualifiedName] = id
		b.addNode(model.Node{
			ID:    id,
			Kind:  kind,
			Label: ev.QualifiedName,
			Attributes: map[string]any{
				"qualified_name": ev.QualifiedName,
				"start_line":     ev.StartLine,
				"end_line":       ev.EndLine,
				"doc":            ev.Doc,
			},
			Provenance: []string{fe.File.CanonicalPath},
		})

		parentID, ok := idByQualifiedName[ev.ParentQualifiedName]
		if !ok {
			parentID = fileID
		}
		b.addRelationship(parentID, id, model.RelContains)
		if kind == model.NodeTest {
			if moduleID, ok := b.moduleByName[moduleName]; ok {
				b.addRelationship(id, moduleID, model.RelTests)
			}
		}
	}
}

// addImports resolves each ImportObserved event locally (intra-run
// module match by qualified name) or else to a dependency node,
// creating the dependency node on first reference.
func (b *builder) addImports(fe FileExtraction) {
	var moduleName string
	for _, ev := range fe.Result.Events {
		if ev.Kind == model.EventModuleDeclared {
			moduleName = ev.QualifiedName
			break
		}
	}
	sourceID, ok := b.moduleByName[moduleName]
	if !ok {
		return
	}

	for _, ev := range fe.Result.Events {
		if ev.Kind != model.EventImportObserved {
			continue
		}
		if targetID, ok := b.resolveLocalModule(ev.Target); ok {
			b.addRelationship(sourceID, targetID, model.RelImports)
			continue
		}
		depID := b.ensureDependencyNode(ev.Target)
		b.addRelationship(sourceID, depID, model.RelDependsOn)
	}
}

// resolveLocalModule matches an import target against every known
// module's qualified name, accepting either an exact match or a suffix
// match on dotted segments (`pkg.widget` resolves an import of
// `widget` from within the same tree).
func (b *builder) resolveLocalModule(target string) (string, bool) {
	if id, ok := b.moduleByName[target]; ok {
		return id, true
	}
	for name, id := range b.moduleByName {
		if hasDottedSuffix(name, target) {
			return id, true
		}
	}
	return "", false
}

func hasDottedSuffix(qualified, suffix string) bool {
	if suffix == "" {
		return false
	}
	if qualified == suffix {
		return true
	}
	if len(qualified) > len(suffix) && qualified[len(qualified)-len(suffix)-1] == '.' {
		return qualified[len(qualified)-len(suffix):] == suffix
	}
	return false
}

func (b *builder) ensureDependencyNode(pkg string) string {
	id := digest.NodeID("dependency", pkg)
	if _, ok := b.dependencyByPackage[pkg]; !ok {
		b.dependencyByPackage[pkg] = id
		b.addNode(model.Node{
			ID:         id,
			Kind:       model.NodeDependency,
			Label:      pkg,
			Attributes: map[string]any{"package": pkg},
			Provenance: []string{b.runID},
		})
	}
	return id
}

func (b *builder) addDependencyEvent(ev model.DependencyEvent) {
	depID := b.ensureDependencyNode(ev.Package)
	// Merge version/scope/manifest attributes onto the node created (if
	// any) by import resolution, which carries only the package name.
	node := b.nodesByID[depID]
	node.Attributes["version_spec"] = ev.VersionSpec
	node.Attributes["scope"] = ev.Scope
	node.Attributes["manifest_path"] = ev.ManifestPath
	b.nodesByID[depID] = node

	if moduleID, ok := b.moduleByName[ev.OwningModule]; ok {
		b.addRelationship(moduleID, depID, model.RelDependsOn)
	}
}

func (b *builder) addArtifact(art ArtifactInput) {
	id := digest.NodeID("artifact", art.Record.RelativePath)
	b.addNode(model.Node{
		ID:    id,
		Kind:  model.NodeArtifact,
		Label: art.Record.RelativePath,
		Attributes: map[string]any{
			"kind":          art.Record.Kind,
			"relative_path": art.Record.RelativePath,
			"digest":        art.Record.Digest,
		},
		Provenance: []string{b.runID},
	})
	b.addRelationship(b.runNode, id, model.RelProduces)

	for _, path := range art.DerivesFromPaths {
		fileID := b.fileNodeID(path)
		if _, ok := b.nodesByID[fileID]; ok {
			b.addRelationship(id, fileID, model.RelDerives)
		}
	}
}

func (b *builder) sortedNodes() []model.Node {
	nodes := make([]model.Node, 0, len(b.nodeOrder))
	for _, id := range b.nodeOrder {
		nodes = append(nodes, b.nodesByID[id])
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

func (b *builder) sortedRelationships() []model.Relationship {
	rels := append([]model.Relationship(nil), b.relationships...)
	sort.Slice(rels, func(i, j int) bool {
		if rels[i].SourceID != rels[j].SourceID {
			return rels[i].SourceID < rels[j].SourceID
		}
		if rels[i].Kind != rels[j].Kind {
			return rels[i].Kind < rels[j].Kind
		}
		return rels[i].TargetID < rels[j].TargetID
	})
	return rels
}

// Validate enforces the graph's structural invariants before any
// serialization runs: non-empty provenance on every node, every
// edge endpoint resolvable, the contains sub-graph a tree (single
// parent per node), every node reachable from run via some edge chain,
// and no ID collisions (guaranteed structurally by construction here,
// so this pass instead checks the source data never produced two
// distinct Node values under the same ID).
//
// "Reachable from run" is checked over all edge kinds, not contains
// alone: dependency and artifact nodes are deliberately wired by
// depends_on/produces rather than contains, so a
// contains-only reachability check would reject every graph that uses
// those edges as intended. The contains sub-graph's tree property is
// checked separately, over contains edges only.
func Validate(g *Graph) error {
	seen := make(map[string]model.Node, len(g.Nodes))
	for _, n := range g.Nodes {
		if prior, ok := seen[n.ID]; ok && !nodesEqual(prior, n) {
			return runerr.Invariant("E_GRAPH_ID_COLLISION", fmt.Sprintf("node id %s reused for distinct nodes", n.ID), nil)
		}
		seen[n.ID] = n
		if len(n.Provenance) == 0 {
			return runerr.Invariant("E_GRAPH_MISSING_PROVENANCE", fmt.Sprintf("node %s has no provenance", n.ID), nil)
		}
	}

	fromAnyEdge := make(map[string][]string)
	childOf := make(map[string]string)
	for _, r := range g.Relationships {
		if _, ok := seen[r.SourceID]; !ok {
			return runerr.Invariant("E_GRAPH_DANGLING_EDGE", fmt.Sprintf("edge %s references missing source %s", r.ID, r.SourceID), nil)
		}
		if _, ok := seen[r.TargetID]; !ok {
			return runerr.Invariant("E_GRAPH_DANGLING_EDGE", fmt.Sprintf("edge %s references missing target %s", r.ID, r.TargetID), nil)
		}
		fromAnyEdge[r.SourceID] = append(fromAnyEdge[r.SourceID], r.TargetID)
		if r.Kind == model.RelContains {
			if existingParent, ok := childOf[r.TargetID]; ok && existingParent != r.SourceID {
				return runerr.Invariant("E_GRAPH_NOT_TREE", fmt.Sprintf("node %s has multiple contains parents", r.TargetID), nil)
			}
			childOf[r.TargetID] = r.SourceID
		}
	}

	var runID string
	for _, n := range g.Nodes {
		if n.Kind == model.NodeRun {
			runID = n.ID
			break
		}
	}
	if runID == "" {
		return runerr.Invariant("E_GRAPH_NO_ROOT", "graph has no run root node", nil)
	}

	reachable := make(map[string]bool)
	stack := []string{runID}
	reachable[runID] = true
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range fromAnyEdge[node] {
			if reachable[next] {
				continue
			}
			reachable[next] = true
			stack = append(stack, next)
		}
	}

	for _, n := range g.Nodes {
		if !reachable[n.ID] {
			return runerr.Invariant("E_GRAPH_ORPHAN", fmt.Sprintf("node %s is unreachable from run", n.ID), nil)
		}
	}

	return nil
}

func nodesEqual(a, b model.Node) bool {
	return a.Kind == b.Kind && a.Label == b.Label
}
