package javascript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/codetrail/internal/model"
)

const sample = `import { helper } from "./helper";

class Widget {
}

function renderWidget() {
}

const testWidgetRenders = () => {
};
`

func TestExtractEmitsModuleAndDeclarations(t *testing.T) {
	result, err := (Extractor{}).Extract("src/widget.js", []byte(sample))
	require.NoError(t, err)

	var kinds []model.EntityEventKind
	for _, e := range result.Events {
		kinds = append(kinds, e.Kind)
	}
	assert.Contains(t, kinds, model.EventModuleDeclared)
	assert.Contains(t, kinds, model.EventImportObserved)
	assert.Contains(t, kinds, model.EventClassDeclared)
	assert.Contains(t, kinds, model.EventFunctionDeclared)
	assert.Contains(t, kinds, model.EventTestDeclared)
}

func TestExtractModuleNameIsPathDerived(t *testing.T) {
	result, err := (Extractor{}).Extract("src/widget.js", []byte(sample))
	require.NoError(t, err)
	assert.Equal(t, "src.widget", result.Events[0].QualifiedName)
}
