// Package golang extracts EntityEvents from Go source using the
// standard library's go/parser and go/ast: one declaration walk over
// the parsed file, emitting events for each top-level declaration.
package golang

import (
	goast "go/ast"
	"go/parser"
	"go/token"
	"strings"

	"github.com/c360studio/codetrail/internal/extract"
	"github.com/c360studio/codetrail/internal/model"
)

func init() {
	extract.DefaultRegistry.Register(&Extractor{})
}

// Extractor implements extract.Extractor for Go source files.
type Extractor struct{}

// Language reports the identifier this extractor handles.
func (Extractor) Language() string { return "go" }

// Extract parses content as Go source and emits one ModuleDeclared event
// for the file, an ImportObserved event per import, and a
// FunctionDeclared/ClassDeclared/TestDeclared event per top-level func or
// type declaration. Top-level const and var declarations emit no event.
func (Extractor) Extract(canonicalPath string, content []byte) (model.ExtractionResult, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "source.go", content, parser.ParseComments)
	if err != nil {
		return model.ExtractionResult{}, err
	}

	var events []model.EntityEvent
	moduleName := extract.ModuleNameFromPath(canonicalPath)

	synopsis := ""
	if file.Doc != nil {
		synopsis = firstLine(file.Doc.Text())
	}

	events = append(events, model.EntityEvent{
		Kind:          model.EventModuleDeclared,
		QualifiedName: moduleName,
		Doc:           synopsis,
	})

	for _, imp := range file.Imports {
		events = append(events, model.EntityEvent{
			Kind:                model.EventImportObserved,
			ParentQualifiedName: moduleName,
			Target:              strings.Trim(imp.Path.Value, `"`),
		})
	}

	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *goast.FuncDecl:
			events = append(events, funcEvent(fset, d, moduleName))
		case *goast.GenDecl:
			events = append(events, genDeclEvents(fset, d, moduleName)...)
		}
	}

	if synopsis == "" {
		synopsis = extract.GenericSynopsis(content)
	}

	return model.ExtractionResult{Events: events, Synopsis: synopsis}, nil
}

func funcEvent(fset *token.FileSet, d *goast.FuncDecl, moduleName string) model.EntityEvent {
	kind := model.EventFunctionDeclared
	name := d.Name.Name
	if strings.HasPrefix(name, "Test") && d.Recv == nil {
		kind = model.EventTestDeclared
	}

	doc := ""
	if d.Doc != nil {
		doc = firstLine(d.Doc.Text())
	}

	return model.EntityEvent{
		Kind:                kind,
		QualifiedName:       moduleName + "." + name,
		ParentQualifiedName: moduleName,
		StartLine:           fset.Position(d.Pos()).Line,
		EndLine:             fset.Position(d.End()).Line,
		Doc:                 doc,
	}
}

func genDeclEvents(fset *token.FileSet, d *goast.GenDecl, moduleName string) []model.EntityEvent {
	if d.Tok != token.TYPE {
		return nil
	}
	var events []model.EntityEvent
	for _, spec := range d.Specs {
		ts, ok := spec.(*goast.TypeSpec)
		if !ok {
			continue
		}
		doc := ""
		if d.Doc != nil {
			doc = firstLine(d.Doc.Text())
		}
		events = append(events, model.EntityEvent{
			Kind:                model.EventClassDeclared,
			QualifiedName:       moduleName + "." + ts.Name.Name,
			ParentQualifiedName: moduleName,
			StartLine:           fset.Position(ts.Pos()).Line,
			EndLine:             fset.Position(ts.End()).Line,
			Doc:                 doc,
		})
	}
	return events
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
