// Package javascript extracts EntityEvents from JavaScript/TypeScript
// source using tree-sitter. The walker
// classifies both .js and .ts family extensions as the "javascript"
// language (internal/walker), so a single extractor handles both. It
// always parses with the JavaScript grammar; no TypeScript grammar is
// selected, so TypeScript-only syntax is not parsed as such.
package javascript

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"

	"github.com/c360studio/codetrail/internal/extract"
	"github.com/c360studio/codetrail/internal/model"
)

func init() {
	extract.DefaultRegistry.Register(&Extractor{})
}

// Extractor implements extract.Extractor for JavaScript/TypeScript
// source files.
type Extractor struct{}

// Language reports the identifier this extractor handles.
func (Extractor) Language() string { return "javascript" }

// Extract walks the tree-sitter parse tree for top-level function,
// class, const, and import declarations.
func (Extractor) Extract(canonicalPath string, content []byte) (model.ExtractionResult, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())

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
	case "class_declaration":
		name := nameOf(node, content)
		return []model.EntityEvent{{
			Kind:                model.EventClassDeclared,
			QualifiedName:       moduleName + "." + name,
			ParentQualifiedName: moduleName,
			StartLine:           int(node.StartPoint().Row) + 1,
			EndLine:             int(node.EndPoint().Row) + 1,
		}}
	case "function_declaration":
		name := nameOf(node, content)
		kind := model.EventFunctionDeclared
		if strings.Contains(strings.ToLower(name), "test") {
			kind = model.EventTestDeclared
		}
		return []model.EntityEvent{{
			Kind:                kind,
			QualifiedName:       moduleName + "." + name,
			ParentQualifiedName: moduleName,
			StartLine:           int(node.StartPoint().Row) + 1,
			EndLine:             int(node.EndPoint().Row) + 1,
		}}
	case "import_statement":
		target := importSource(node, content)
		if target == "" {
			return nil
		}
		return []model.EntityEvent{{
			Kind:                model.EventImportObserved,
			ParentQualifiedName: moduleName,
			Target:              target,
		}}
	case "lexical_declaration", "variable_declaration":
		return constFunctionEvents(node, content, moduleName)
	default:
		return nil
	}
}

// importSource extracts the module specifier of an import statement:
// the string-literal source, unquoted. Relative specifiers resolve
// within the local tree and are returned as-is for local matching.
func importSource(node *sitter.Node, content []byte) string {
	source := node.ChildByFieldName("source")
	if source == nil {
		return ""
	}
	return strings.Trim(source.Content(content), "\"'`")
}

// constFunctionEvents recognizes `const fn = () => {}` / `const fn =
// function(){}` top-level assignments as function declarations, a
// pervasive pattern tree-sitter's declaration grammar does not surface
// directly.
func constFunctionEvents(node *sitter.Node, content []byte, moduleName string) []model.EntityEvent {
	var events []model.EntityEvent
	for i := 0; i < int(node.NamedChildCount()); i++ {
		decl := node.NamedChild(i)
		if decl.Type() != "variable_declarator" {
			continue
		}
		nameNode := decl.ChildByFieldName("name")
		valueNode := decl.ChildByFieldName("value")
		if nameNode == nil || valueNode == nil {
			continue
		}
		if valueNode.Type() != "arrow_function" && valueNode.Type() != "function" {
			continue
		}
		name := nameNode.Content(content)
		kind := model.EventFunctionDeclared
		if strings.Contains(strings.ToLower(name), "test") {
			kind = model.EventTestDeclared
		}
		events = append(events, model.EntityEvent{
			Kind:                kind,
			QualifiedName:       moduleName + "." + name,
			ParentQualifiedName: moduleName,
			StartLine:           int(node.StartPoint().Row) + 1,
			EndLine:             int(node.EndPoint().Row) + 1,
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
