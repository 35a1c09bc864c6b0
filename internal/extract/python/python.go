// Package python extracts EntityEvents from Python source using
// tree-sitter: a node-type walk over the parse tree's top-level
// definitions, imports, and decorated definitions.
package python

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/c360studio/codetrail/internal/extract"
	"github.com/c360studio/codetrail/internal/model"
)

func init() {
	extract.DefaultRegistry.Register(&Extractor{})
}

// Extractor implements extract.Extractor for Python source files.
type Extractor struct{}

// Language reports the identifier this extractor handles.
func (Extractor) Language() string { return "python" }

// Extract walks the tree-sitter parse tree for top-level class and
// function definitions, plus import statements.
func (Extractor) Extract(canonicalPath string, content []byte) (model.ExtractionResult, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(nil, nil, content)
	if err != nil {
		return model.ExtractionResult{}, err
	}
	defer tree.Close()

	root := tree.RootNode()
	moduleName := extract.ModuleNameFromPath(canonicalPath)

	var events []model.EntityEvent
	events = append(events, model.EntityEvent{Kind: model.EventModuleDeclared, QualifiedName: moduleName})

	synopsis := moduleDocstring(root, content)

	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		events = append(events, nodeEvents(child, content, moduleName)...)
	}

	if synopsis == "" {
		synopsis = extract.GenericSynopsis(content)
	}

	return model.ExtractionResult{Events: events, Synopsis: synopsis}, nil
}

func moduleDocstring(root *sitter.Node, content []byte) string {
	if root.NamedChildCount() == 0 {
		return ""
	}
	first := root.NamedChild(0)
	if first.Type() != "expression_statement" || first.NamedChildCount() == 0 {
		return ""
	}
	expr := first.NamedChild(0)
	if expr.Type() != "string" {
		return ""
	}
	text := strings.Trim(expr.Content(content), "\"' \t\n")
	return firstLine(text)
}

func nodeEvents(node *sitter.Node, content []byte, moduleName string) []model.EntityEvent {
	switch node.Type() {
	case "class_definition":
		name := nameOf(node, content)
		return []model.EntityEvent{{
			Kind:                model.EventClassDeclared,
			QualifiedName:       moduleName + "." + name,
			ParentQualifiedName: moduleName,
			StartLine:           int(node.StartPoint().Row) + 1,
			EndLine:             int(node.EndPoint().Row) + 1,
		}}
	case "function_definition":
		name := nameOf(node, content)
		kind := model.EventFunctionDeclared
		if strings.HasPrefix(name, "test_") {
			kind = model.EventTestDeclared
		}
		return []model.EntityEvent{{
			Kind:                kind,
			QualifiedName:       moduleName + "." + name,
			ParentQualifiedName: moduleName,
			StartLine:           int(node.StartPoint().Row) + 1,
			EndLine:             int(node.EndPoint().Row) + 1,
		}}
	case "decorated_definition":
		return decoratedEvents(node, content, moduleName)
	case "import_statement", "import_from_statement":
		var events []model.EntityEvent
		for _, target := range importTargets(node, content) {
			events = append(events, model.EntityEvent{
				Kind:                model.EventImportObserved,
				ParentQualifiedName: moduleName,
				Target:              target,
			})
		}
		return events
	default:
		return nil
	}
}

// decoratedEvents unwraps a decorated definition and reclassifies
// pytest fixtures: a decorated function whose decorator names
// `fixture` is a FixtureDeclared event rather than a function.
func decoratedEvents(node *sitter.Node, content []byte, moduleName string) []model.EntityEvent {
	isFixture := false
	var events []model.EntityEvent

	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "decorator":
			if strings.Contains(child.Content(content), "fixture") {
				isFixture = true
			}
		case "function_definition", "class_definition":
			events = append(events, nodeEvents(child, content, moduleName)...)
		}
	}

	if isFixture {
		for i := range events {
			if events[i].Kind == model.EventFunctionDeclared || events[i].Kind == model.EventTestDeclared {
				events[i].Kind = model.EventFixtureDeclared
			}
		}
	}
	return events
}

// importTargets extracts the imported module names from an import
// statement: the source module for `from X import ...`, each dotted
// name for `import a, b as c`.
func importTargets(node *sitter.Node, content []byte) []string {
	text := strings.TrimSpace(node.Content(content))

	if strings.HasPrefix(text, "from ") {
		rest := strings.TrimPrefix(text, "from ")
		if idx := strings.Index(rest, " import"); idx >= 0 {
			rest = rest[:idx]
		}
		rest = strings.TrimSpace(rest)
		if rest == "" || strings.HasPrefix(rest, ".") {
			return nil // relative imports resolve within the local tree
		}
		return []string{rest}
	}

	rest := strings.TrimPrefix(text, "import ")
	var targets []string
	for _, part := range strings.Split(rest, ",") {
		name := strings.TrimSpace(part)
		if idx := strings.Index(name, " as "); idx >= 0 {
			name = name[:idx]
		}
		name = strings.TrimSpace(name)
		if name != "" {
			targets = append(targets, name)
		}
	}
	return targets
}

func nameOf(node *sitter.Node, content []byte) string {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return "anonymous"
	}
	return nameNode.Content(content)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
