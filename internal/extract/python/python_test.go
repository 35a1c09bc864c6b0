package python

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/codetrail/internal/model"
)

const sample = `"""Widget helpers."""
import os
from pkg.other import helper


class Widget:
    def render(self):
        pass


def test_widget_renders():
    pass
`

func TestExtractEmitsModuleAndDeclarations(t *testing.T) {
	result, err := (Extractor{}).Extract("pkg/widget.py", []byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "Widget helpers.", result.Synopsis)

	var kinds []model.EntityEventKind
	for _, e := range result.Events {
		kinds = append(kinds, e.Kind)
	}
	assert.Contains(t, kinds, model.EventModuleDeclared)
	assert.Contains(t, kinds, model.EventImportObserved)
	assert.Contains(t, kinds, model.EventClassDeclared)
	assert.Contains(t, kinds, model.EventTestDeclared)
}

func TestExtractModuleNameIsPathDerived(t *testing.T) {
	result, err := (Extractor{}).Extract("pkg/widget.py", []byte(sample))
	require.NoError(t, err)
	assert.Equal(t, "pkg.widget", result.Events[0].QualifiedName)
}

func TestImportTargetsAreModuleNames(t *testing.T) {
	result, err := (Extractor{}).Extract("pkg/widget.py", []byte(sample))
	require.NoError(t, err)

	var targets []string
	for _, e := range result.Events {
		if e.Kind == model.EventImportObserved {
			targets = append(targets, e.Target)
		}
	}
	assert.Equal(t, []string{"os", "pkg.other"}, targets)
}

func TestImportTargetsSplitAndUnalias(t *testing.T) {
	result, err := (Extractor{}).Extract("a.py", []byte("import numpy as np, pandas\nfrom . import local\n"))
	require.NoError(t, err)

	var targets []string
	for _, e := range result.Events {
		if e.Kind == model.EventImportObserved {
			targets = append(targets, e.Target)
		}
	}
	assert.Equal(t, []string{"numpy", "pandas"}, targets, "relative imports are dropped, aliases stripped")
}

func TestPytestFixtureReclassified(t *testing.T) {
	source := `import pytest


@pytest.fixture
def widget():
    return 1


@staticmethod
def helper():
    pass
`
	result, err := (Extractor{}).Extract("conftest.py", []byte(source))
	require.NoError(t, err)

	byName := map[string]model.EntityEventKind{}
	for _, e := range result.Events {
		if e.QualifiedName != "" {
			byName[e.QualifiedName] = e.Kind
		}
	}
	assert.Equal(t, model.EventFixtureDeclared, byName["conftest.widget"])
	assert.Equal(t, model.EventFunctionDeclared, byName["conftest.helper"])
}
