package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/codetrail/internal/model"
	"github.com/c360studio/codetrail/internal/runerr"
)

func fileExtraction(path, moduleName string, events ...model.EntityEvent) FileExtraction {
	all := append([]model.EntityEvent{{Kind: model.EventModuleDeclared, QualifiedName: moduleName}}, events...)
	return FileExtraction{
		File:   model.FileRecord{CanonicalPath: path, Language: "go", Digest: "d", LineCount: 1},
		Result: model.ExtractionResult{Events: all},
	}
}

func TestBuildProducesRunFileModuleTree(t *testing.T) {
	input := BuildInput{
		RunID: "run-1",
		Files: []FileExtraction{
			fileExtraction("pkg/widget.go", "pkg.widget", model.EntityEvent{
				Kind: model.EventFunctionDeclared, QualifiedName: "pkg.widget.Render", ParentQualifiedName: "pkg.widget",
			}),
		},
	}

	g, err := Build(input)
	require.NoError(t, err)

	var kinds []model.NodeKind
	for _, n := range g.Nodes {
		kinds = append(kinds, n.Kind)
	}
	assert.Contains(t, kinds, model.NodeRun)
	assert.Contains(t, kinds, model.NodeFile)
	assert.Contains(t, kinds, model.NodeModule)
	assert.Contains(t, kinds, model.NodeFunction)
}

func TestBuildIsDeterministicAcrossCalls(t *testing.T) {
	input := BuildInput{
		RunID: "run-1",
		Files: []FileExtraction{
			fileExtraction("a.go", "a"),
			fileExtraction("b.go", "b"),
		},
	}

	g1, err := Build(input)
	require.NoError(t, err)
	g2, err := Build(input)
	require.NoError(t, err)

	assert.Equal(t, g1.Nodes, g2.Nodes)
	assert.Equal(t, g1.Relationships, g2.Relationships)
}

func TestBuildResolvesLocalImportBeforeDependency(t *testing.T) {
	input := BuildInput{
		RunID: "run-1",
		Files: []FileExtraction{
			fileExtraction("pkg/helper.go", "pkg.helper"),
			fileExtraction("pkg/widget.go", "pkg.widget", model.EntityEvent{
				Kind: model.EventImportObserved, Target: "pkg.helper",
			}),
		},
	}

	g, err := Build(input)
	require.NoError(t, err)

	var importRels int
	var dependencyNodes int
	for _, r := range g.Relationships {
		if r.Kind == model.RelImports {
			importRels++
		}
	}
	for _, n := range g.Nodes {
		if n.Kind == model.NodeDependency {
			dependencyNodes++
		}
	}
	assert.Equal(t, 1, importRels)
	assert.Equal(t, 0, dependencyNodes)
}

func TestBuildCreatesDependencyNodeForUnresolvedImport(t *testing.T) {
	input := BuildInput{
		RunID: "run-1",
		Files: []FileExtraction{
			fileExtraction("pkg/widget.go", "pkg.widget", model.EntityEvent{
				Kind: model.EventImportObserved, Target: "github.com/external/lib",
			}),
		},
	}

	g, err := Build(input)
	require.NoError(t, err)

	var dependencyNodes int
	for _, n := range g.Nodes {
		if n.Kind == model.NodeDependency {
			dependencyNodes++
			assert.Equal(t, "github.com/external/lib", n.Label)
		}
	}
	assert.Equal(t, 1, dependencyNodes)
}

func TestValidateRejectsOrphanNode(t *testing.T) {
	g := &Graph{
		Nodes: []model.Node{
			{ID: "run", Kind: model.NodeRun, Provenance: []string{"r"}},
			{ID: "file", Kind: model.NodeFile, Provenance: []string{"r"}},
		},
	}
	err := Validate(g)
	assert.Error(t, err)
}

func TestValidateRejectsContainsCycle(t *testing.T) {
	contains := func(source, target string) model.Relationship {
		return model.Relationship{
			ID:       source + "-" + target,
			SourceID: source,
			TargetID: target,
			Kind:     model.RelContains,
		}
	}

	// run -> a -> b -> a: every node is reachable, but a acquires a
	// second contains parent, so the contains sub-graph is no tree.
	g := &Graph{
		Nodes: []model.Node{
			{ID: "run", Kind: model.NodeRun, Provenance: []string{"r"}},
			{ID: "a", Kind: model.NodeModule, Provenance: []string{"r"}},
			{ID: "b", Kind: model.NodeModule, Provenance: []string{"r"}},
		},
		Relationships: []model.Relationship{
			contains("run", "a"),
			contains("a", "b"),
			contains("b", "a"),
		},
	}

	err := Validate(g)
	require.Error(t, err)

	var classified *runerr.Error
	require.True(t, errors.As(err, &classified))
	assert.Equal(t, runerr.ClassInvariant, classified.Class)
	assert.Equal(t, "E_GRAPH_NOT_TREE", classified.Code)
}

func TestValidateRejectsMissingProvenance(t *testing.T) {
	g := &Graph{
		Nodes: []model.Node{
			{ID: "run", Kind: model.NodeRun, Provenance: nil},
		},
	}
	err := Validate(g)
	assert.Error(t, err)
}

func TestProjectDropsTestsWhenNoTestsRequested(t *testing.T) {
	input := BuildInput{
		RunID: "run-1",
		Files: []FileExtraction{
			fileExtraction("pkg/widget.go", "pkg.widget", model.EntityEvent{
				Kind: model.EventTestDeclared, QualifiedName: "pkg.widget.TestRender", ParentQualifiedName: "pkg.widget",
			}),
		},
	}
	g, err := Build(input)
	require.NoError(t, err)

	projected := Project(g, ScopeFull, true)
	for _, n := range projected.Nodes {
		assert.NotEqual(t, model.NodeTest, n.Kind)
	}
}

func TestProjectCodeScopeDropsDependencyNodes(t *testing.T) {
	input := BuildInput{
		RunID: "run-1",
		Files: []FileExtraction{
			fileExtraction("pkg/widget.go", "pkg.widget", model.EntityEvent{
				Kind: model.EventImportObserved, Target: "github.com/external/lib",
			}),
		},
	}
	g, err := Build(input)
	require.NoError(t, err)

	projected := Project(g, ScopeCode, false)
	for _, n := range projected.Nodes {
		assert.NotEqual(t, model.NodeDependency, n.Kind)
	}
}
