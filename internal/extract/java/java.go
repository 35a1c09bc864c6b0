// Package java extracts EntityEvents from Java source using
// tree-sitter: a node-type walk over the parse tree's top-level
// declarations.
package java

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"

	"github.com/c360studio/codetrail/internal/extract"
	"github.com/c360studio/codetrail/internal/model"
)

func init() {
	extract.DefaultRegistry.Register(&Extractor{})
}

// Extractor implements extract.Extractor for Java source files.
type Extractor struct{}

// Language reports the identifier this extractor handles.
func (Extractor) Language() string { return "java" }

// Extract walks the tree-sitter parse tree for class declarations and
// their contained methods, plus import declarations.
func (Extractor) Extract(canonicalPath string, content []byte) (model.ExtractionResult, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(java.GetLanguage())

	tree, err := parser.ParseCtx(nil, nil, content)
	if err != nil {
		return model.ExtractionResult{}, err
	}
	defer tree.Close()

	root := tree.RootNode()
	moduleName := extract.ModuleNameFromPath(canonicalPath)

	var events []model.EntityEvent
	events = append(events, model.EntityEvent{Kind: model.EventModuleDeclared, QualifiedName: moduleName})

	for i := 0; i < int(root.NamedChildCount()); i++ {
		events = append(events, nodeEvents(root.NamedChild(i), content, moduleName)...)
	}

	return model.ExtractionResult{Events: events, Synopsis: extract.GenericSynopsis(content)}, nil
}

func nodeEvents(node *sitter.Node, content []byte, moduleName string) []model.EntityEvent {
	switch node.Type() {
	case "class_declaration", "interface_declaration":
		name := nameOf(node, content)
		qualified := moduleName + "." + name
		events := []model.EntityEvent{{
			Kind:                model.EventClassDeclared,
			QualifiedName:       qualified,
			ParentQualifiedName: moduleName,
			StartLine:           int(node.StartPoint().Row) + 1,
			EndLine:             int(node.EndPoint().Row) + 1,
		}}
		events = append(events, methodEvents(node, content, qualified)...)
		return events
	case "import_declaration":
		return []model.EntityEvent{{
			Kind:                model.EventImportObserved,
			ParentQualifiedName: moduleName,
			Target:              strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(node.Content(content), "import "), ";")),
		}}
	default:
		return nil
	}
}

func methodEvents(classNode *sitter.Node, content []byte, classQualifiedName string) []model.EntityEvent {
	body := classNode.ChildByFieldName("body")
	if body == nil {
		return nil
	}
	var events []model.EntityEvent
	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		if member.Type() != "method_declaration" {
			continue
		}
		name := nameOf(member, content)
		kind := model.EventFunctionDeclared
		if strings.HasPrefix(name, "test") || strings.Contains(strings.ToLower(name), "test") {
			kind = model.EventTestDeclared
		}
		events = append(events, model.EntityEvent{
			Kind:                kind,
			QualifiedName:       classQualifiedName + "." + name,
			ParentQualifiedName: classQualifiedName,
			StartLine:           int(member.StartPoint().Row) + 1,
			EndLine:             int(member.EndPoint().Row) + 1,
		})
	}
	return events
}

func nameOf(node *sitter.Node, content []byte) string {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return "anonymous"
	}
	return nameNode.Content(content)
}
