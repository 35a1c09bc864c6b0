package cache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/codetrail/internal/model"
)

func TestOpenFreshCacheHasNoForceRebuild(t *testing.T) {
	dir := t.TempDir()
	c, reason, err := Open(filepath.Join(dir, "cache"))
	require.NoError(t, err)
	defer c.Close()

	assert.Empty(t, reason)
	assert.False(t, c.ForceRebuild())
}

func TestStageThenFinalizeMakesEntriesVisible(t *testing.T) {
	dir := t.TempDir()
	c, _, err := Open(filepath.Join(dir, "cache"))
	require.NoError(t, err)
	defer c.Close()

	_, found, err := c.Lookup("a.go")
	require.NoError(t, err)
	assert.False(t, found, "unstaged entries must not be visible before Finalize")

	c.Stage(model.CacheEntry{CanonicalPath: "a.go", Digest: "deadbeef"})
	require.NoError(t, c.Finalize())

	entry, found, err := c.Lookup("a.go")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "deadbeef", entry.Digest)
}

func TestReopenAfterFinalizePersistsEntries(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")

	c1, _, err := Open(dir)
	require.NoError(t, err)
	c1.Stage(model.CacheEntry{CanonicalPath: "a.go", Digest: "abc"})
	require.NoError(t, c1.Finalize())
	require.NoError(t, c1.Close())

	c2, reason, err := Open(dir)
	require.NoError(t, err)
	defer c2.Close()

	assert.Empty(t, reason)
	assert.False(t, c2.ForceRebuild())

	entry, found, err := c2.Lookup("a.go")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "abc", entry.Digest)
}

func TestClassifyCoversAddedChangedUnchangedRemoved(t *testing.T) {
	prior := map[string]model.CacheEntry{
		"unchanged.go": {CanonicalPath: "unchanged.go", Digest: "same"},
		"changed.go":   {CanonicalPath: "changed.go", Digest: "old"},
		"removed.go":   {CanonicalPath: "removed.go", Digest: "gone"},
	}
	current := []model.FileRecord{
		{CanonicalPath: "unchanged.go", Digest: "same"},
		{CanonicalPath: "changed.go", Digest: "new"},
		{CanonicalPath: "added.go", Digest: "fresh"},
	}

	records := Classify(prior, current)

	byPath := make(map[string]model.DeltaRecord, len(records))
	for _, r := range records {
		byPath[r.CanonicalPath] = r
	}

	assert.Equal(t, model.DeltaUnchanged, byPath["unchanged.go"].State)
	assert.Equal(t, model.DeltaChanged, byPath["changed.go"].State)
	assert.Equal(t, model.DeltaAdded, byPath["added.go"].State)
	assert.Equal(t, model.DeltaRemoved, byPath["removed.go"].State)

	total := 0
	for _, r := range records {
		if r.State != model.DeltaRemoved {
			total++
		}
	}
	assert.Equal(t, len(current), total, "delta soundness: added+changed+unchanged == len(current)")
}

func TestApplyCachedMarksOnlyUnchanged(t *testing.T) {
	records := []model.FileRecord{
		{CanonicalPath: "a.go"},
		{CanonicalPath: "b.go"},
	}
	delta := []model.DeltaRecord{
		{CanonicalPath: "a.go", State: model.DeltaUnchanged},
		{CanonicalPath: "b.go", State: model.DeltaChanged},
	}

	out := ApplyCached(records, delta, false)
	assert.True(t, out[0].Cached)
	assert.False(t, out[1].Cached)

	outForced := ApplyCached(records, delta, true)
	assert.False(t, outForced[0].Cached)
}
