package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesDefaultsAndEnvSubstitution(t *testing.T) {
	t.Setenv("CODETRAIL_INPUT", "./testdata")

	path := writeConfig(t, `
input: ${CODETRAIL_INPUT:-.}
config_version: "1"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "./testdata", cfg.Input)
	assert.Equal(t, 10, cfg.RetentionCount)
	assert.True(t, cfg.Graph.Enabled)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
input: .
config_version: "1"
bogus_field: true
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRejectsAllowNetwork(t *testing.T) {
	cfg := Default()
	cfg.AllowNetwork = true
	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidateRejectsNonPositiveBundleBudgets(t *testing.T) {
	cfg := Default()
	cfg.Bundle.MaxBytes = 0
	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidateRejectsZeroConcurrencyWhenDiagramsEnabled(t *testing.T) {
	cfg := Default()
	cfg.Diagram.Enabled = true
	cfg.Diagram.Concurrency = 0
	err := cfg.Validate()
	require.Error(t, err)
}
