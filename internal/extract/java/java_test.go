package java

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/codetrail/internal/model"
)

const sample = `package com.example.widget;

import com.example.helper.Helper;

class Widget {
	void testRendersWidget() {
	}

	void render() {
	}
}
`

func TestExtractEmitsModuleAndDeclarations(t *testing.T) {
	result, err := (Extractor{}).Extract("com/example/widget/Widget.java", []byte(sample))
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
	result, err := (Extractor{}).Extract("com/example/widget/Widget.java", []byte(sample))
	require.NoError(t, err)
	assert.Equal(t, "com.example.widget.Widget", result.Events[0].QualifiedName)
}
