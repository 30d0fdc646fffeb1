package ledger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/limaJavier/coursetable/pkg/errors"
	"github.com/limaJavier/coursetable/pkg/model"
)

func sampleAssignments() []model.Assignment {
	return []model.Assignment{
		{Section: "S1CS1", Subject: "CS101", Kind: model.Theory, Room: "R1", Day: model.Monday, Slot: 0},
		{Section: "S1CS1", Subject: "CS101L", Kind: model.Lab, Room: "LAB-1", Day: model.Tuesday, Slot: 1},
		{Section: "S1CS2", Subject: "MATH201", Kind: model.Theory, Room: "R2", Day: model.Monday, Slot: 0},
		// Cohort sessions never reach the ledger
		{Section: "S1CS1", Subject: "HUM100", Kind: model.Theory, Room: "R1", Day: model.Friday, Slot: 0, Cohort: "HUM100-A"},
	}
}

func TestCommitAndClear(t *testing.T) {
	//** Arrange
	ledger := New()

	//** Act
	displaced := ledger.Commit(ScopeMain, "fp-1", sampleAssignments())

	//** Assert
	assert.Empty(t, displaced)
	assert.Equal(t, 3, ledger.Count(ScopeMain))
	assert.Equal(t, "fp-1", ledger.Fingerprint(ScopeMain))
	assert.True(t, ledger.Occupied(model.Usage{Kind: model.Lab, Room: "LAB-1", Day: model.Tuesday, Slot: 1}))
	assert.False(t, ledger.Occupied(model.Usage{Kind: model.Theory, Room: "R1", Day: model.Friday, Slot: 0}))
	assert.Equal(t, "S1CS1:CS101", ledger.Entries[model.Usage{Kind: model.Theory, Room: "R1", Day: model.Monday, Slot: 0}].Occupant)

	//** Act
	electives := []model.Assignment{{Section: "ELEC1-1", Subject: "ELEC1", Kind: model.Theory, Room: "R1", Day: model.Wednesday, Slot: 2}}
	ledger.Commit(ScopeElectives, "fp-2", electives)
	cleared := ledger.ClearScope(ScopeMain)

	//** Assert
	assert.Equal(t, 3, cleared)
	assert.Equal(t, 0, ledger.Count(ScopeMain))
	assert.Equal(t, 1, ledger.Count(ScopeElectives))
	assert.Empty(t, ledger.Fingerprint(ScopeMain))
	assert.Equal(t, "fp-2", ledger.Fingerprint(ScopeElectives))
}

func TestCommitReportsDisplacedCells(t *testing.T) {
	//** Arrange
	ledger := New()
	ledger.Commit(ScopeMain, "fp-1", sampleAssignments())

	//** Act
	displaced := ledger.Commit(ScopeElectives, "fp-2", []model.Assignment{
		{Section: "ELEC1-1", Subject: "ELEC1", Kind: model.Theory, Room: "R1", Day: model.Monday, Slot: 0},
	})

	//** Assert
	require.Len(t, displaced, 1)
	assert.Equal(t, model.Usage{Kind: model.Theory, Room: "R1", Day: model.Monday, Slot: 0}, displaced[0])
	assert.Equal(t, ScopeElectives, ledger.Entries[displaced[0]].Scope)
}

func TestCloneIsIndependent(t *testing.T) {
	//** Arrange
	ledger := New()
	ledger.Commit(ScopeMain, "fp", sampleAssignments())

	//** Act
	clone := ledger.Clone()
	clone.ClearScope(ScopeMain)

	//** Assert
	assert.Equal(t, 3, ledger.Count(ScopeMain))
	assert.Equal(t, "fp", ledger.Fingerprint(ScopeMain))
}

func TestKeysAreSorted(t *testing.T) {
	//** Arrange
	ledger := New()
	ledger.Commit(ScopeMain, "fp", sampleAssignments())

	//** Act
	keys := ledger.Keys()

	//** Assert
	assert.Equal(t, []Key{
		{Kind: model.Theory, Room: "R1", Day: model.Monday, Slot: 0},
		{Kind: model.Theory, Room: "R2", Day: model.Monday, Slot: 0},
		{Kind: model.Lab, Room: "LAB-1", Day: model.Tuesday, Slot: 1},
	}, keys)
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   NewFileStore(filepath.Join(t.TempDir(), "ledger", "usage.json")),
	}
}

func TestStoreRoundTrip(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			//** Arrange
			ctx := context.Background()
			loaded, err := store.Load(ctx)
			require.NoError(t, err)
			require.Zero(t, loaded.Version)
			loaded.Commit(ScopeMain, "fp", sampleAssignments())

			//** Act
			err = store.Save(ctx, loaded)
			require.NoError(t, err)
			reloaded, err := store.Load(ctx)

			//** Assert
			require.NoError(t, err)
			assert.Equal(t, int64(1), reloaded.Version)
			assert.Equal(t, loaded.Entries, reloaded.Entries)
			assert.Equal(t, "fp", reloaded.Fingerprint(ScopeMain))
		})
	}
}

func TestStoreRejectsStaleSave(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			//** Arrange
			ctx := context.Background()
			first, err := store.Load(ctx)
			require.NoError(t, err)
			second, err := store.Load(ctx)
			require.NoError(t, err)

			first.Commit(ScopeMain, "fp-1", sampleAssignments())
			require.NoError(t, store.Save(ctx, first))

			//** Act
			second.Commit(ScopeElectives, "fp-2", nil)
			err = store.Save(ctx, second)

			//** Assert
			assert.ErrorIs(t, err, appErrors.ErrVersionConflict)
			current, err := store.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, 3, current.Count(ScopeMain))
			assert.Empty(t, current.Fingerprint(ScopeElectives))
		})
	}
}

func TestStoreReset(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			//** Arrange
			ctx := context.Background()
			loaded, err := store.Load(ctx)
			require.NoError(t, err)
			loaded.Commit(ScopeMain, "fp", sampleAssignments())
			require.NoError(t, store.Save(ctx, loaded))

			//** Act
			err = store.Reset(ctx)

			//** Assert
			require.NoError(t, err)
			current, err := store.Load(ctx)
			require.NoError(t, err)
			assert.Empty(t, current.Entries)
			assert.Empty(t, current.Fingerprints)
			assert.Equal(t, int64(2), current.Version)
		})
	}
}

func TestFileStoreReadsBareUsageDocument(t *testing.T) {
	//** Arrange
	path := filepath.Join(t.TempDir(), "usage.json")
	document := `{
		"theory": {"R1": {"Monday": [0, 2, 2]}, "R2": {"4": [1]}},
		"lab": {"LAB-1": {"Tue": [1]}}
	}`
	require.NoError(t, os.WriteFile(path, []byte(document), 0o644))

	//** Act
	ledger, err := NewFileStore(path).Load(context.Background())

	//** Assert
	require.NoError(t, err)
	assert.Len(t, ledger.Entries, 4)
	assert.True(t, ledger.Occupied(model.Usage{Kind: model.Theory, Room: "R1", Day: model.Monday, Slot: 2}))
	assert.True(t, ledger.Occupied(model.Usage{Kind: model.Theory, Room: "R2", Day: model.Friday, Slot: 1}))
	assert.True(t, ledger.Occupied(model.Usage{Kind: model.Lab, Room: "LAB-1", Day: model.Tuesday, Slot: 1}))
	assert.Equal(t, 4, ledger.Count(ScopeMain))
}

func TestFileStoreWritesUsageLayout(t *testing.T) {
	//** Arrange
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "usage.json")
	store := NewFileStore(path)
	ledger := New()
	ledger.Commit(ScopeMain, "fp", sampleAssignments())

	//** Act
	require.NoError(t, store.Save(ctx, ledger))
	require.NoError(t, store.Reset(ctx))

	//** Assert
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"version": 2, "theory": {}, "lab": {}}`, string(data))
}

func TestFileStoreRejectsMalformedDocument(t *testing.T) {
	//** Arrange
	path := filepath.Join(t.TempDir(), "usage.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"theory": {"R1": {"Someday": [0]}}}`), 0o644))

	//** Act
	_, err := NewFileStore(path).Load(context.Background())

	//** Assert
	assert.Error(t, err)
}
