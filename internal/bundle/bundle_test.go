package bundle

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/codetrail/internal/model"
)

func reader(contents map[string][]byte) ContentReader {
	return func(fr model.FileRecord) ([]byte, error) {
		return contents[fr.CanonicalPath], nil
	}
}

func TestLicenseHintDetectsKnownSPDX(t *testing.T) {
	hint, ok := LicenseHint("LICENSE", []byte("MIT License\n\nCopyright..."))
	require.True(t, ok)
	assert.Equal(t, "MIT", hint)

	hint, ok = LicenseHint("COPYING.md", []byte("Some bespoke terms\n"))
	require.True(t, ok)
	assert.Equal(t, "custom", hint)

	_, ok = LicenseHint("main.go", []byte("package main"))
	assert.False(t, ok)
}

func TestEmptySelectionProducesOneHeaderOnlyBundle(t *testing.T) {
	bundles, err := Build(PresetAll, nil, reader(nil), Budgets{MaxBytes: 1024, MaxLines: 100})
	require.NoError(t, err)
	require.Len(t, bundles, 1)
	assert.Equal(t, 0, bundles[0].Seq)
	assert.Empty(t, bundles[0].Index)
}

func TestBuildSplitsWhenBudgetExceeded(t *testing.T) {
	records := []model.FileRecord{
		{CanonicalPath: "a.go", Digest: "d1", Language: "go", LineCount: 1},
		{CanonicalPath: "b.go", Digest: "d2", Language: "go", LineCount: 1},
	}
	contents := map[string][]byte{
		"a.go": []byte(strings.Repeat("x", 100)),
		"b.go": []byte(strings.Repeat("y", 100)),
	}

	// Budget small enough that each unit (header + content) alone fits,
	// but both together in one bundle do not.
	first, err := Build(PresetAll, records[:1], reader(contents), Budgets{MaxBytes: 1 << 20, MaxLines: 1000})
	require.NoError(t, err)
	unitBytes := first[0].Index[0].LengthBytes

	bundles, err := Build(PresetAll, records, reader(contents), Budgets{MaxBytes: unitBytes + 1, MaxLines: 1000})
	require.NoError(t, err)
	require.Len(t, bundles, 2)
	assert.Equal(t, 0, bundles[0].Seq)
	assert.Equal(t, 1, bundles[1].Seq)
}

func TestBuildIsDeterministicAcrossRuns(t *testing.T) {
	records := []model.FileRecord{
		{CanonicalPath: "a.go", Digest: "d1", Language: "go", LineCount: 1, Synopsis: "does a thing"},
	}
	contents := map[string][]byte{"a.go": []byte("package main\n")}

	b1, err := Build(PresetAll, records, reader(contents), Budgets{MaxBytes: 1 << 20, MaxLines: 1000})
	require.NoError(t, err)
	b2, err := Build(PresetAll, records, reader(contents), Budgets{MaxBytes: 1 << 20, MaxLines: 1000})
	require.NoError(t, err)

	assert.Equal(t, b1[0].Text, b2[0].Text)
}

func TestAPIPresetKeepsOnlyDeclarationLines(t *testing.T) {
	records := []model.FileRecord{
		{CanonicalPath: "a.go", Digest: "d1", Language: "go", LineCount: 3},
	}
	contents := map[string][]byte{
		"a.go": []byte("package main\n\nfunc Foo() {}\n"),
	}

	bundles, err := Build(PresetAPI, records, reader(contents), Budgets{MaxBytes: 1 << 20, MaxLines: 1000})
	require.NoError(t, err)
	text := string(bundles[0].Text)
	assert.Contains(t, text, "func Foo() {}")
	assert.NotContains(t, text, "package main")
}

func TestTestsPresetSelectsOnlyTestFiles(t *testing.T) {
	records := []model.FileRecord{
		{CanonicalPath: "a.go", Language: "go"},
		{CanonicalPath: "a_test.go", Language: "go"},
	}
	selected := Predicate(PresetTests)
	assert.False(t, selected(records[0]))
	assert.True(t, selected(records[1]))
}

func TestOversizedUnitIsFlaggedAndAlone(t *testing.T) {
	records := []model.FileRecord{
		{CanonicalPath: "big.go", Digest: "d1", Language: "go", LineCount: 1},
		{CanonicalPath: "small.go", Digest: "d2", Language: "go", LineCount: 1},
	}
	contents := map[string][]byte{
		"big.go":   []byte(strings.Repeat("z", 10000)),
		"small.go": []byte("x"),
	}

	bundles, err := Build(PresetAll, records, reader(contents), Budgets{MaxBytes: 200, MaxLines: 1000})
	require.NoError(t, err)
	require.Len(t, bundles, 2)
	assert.True(t, bundles[0].Index[0].Oversized)
	assert.Len(t, bundles[0].Index, 1)
}
