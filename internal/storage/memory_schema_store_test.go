package storage

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metacord-io/metacord/internal/schemas"
)

var minimalSchema = json.RawMessage(`{"type": "object"}`)

func insertType(t *testing.T, store *MemorySchemaStore, name string, fileTypes []string) *schemas.AnalysisType {
	t.Helper()

	analysisType := &schemas.AnalysisType{
		Name:      name,
		Schema:    minimalSchema,
		FileTypes: fileTypes,
	}
	require.NoError(t, store.InsertVersion(context.Background(), analysisType))

	return analysisType
}

func TestMemorySchemaStore_InsertAssignsVersions(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := NewMemorySchemaStore()

	first := insertType(t, store, "sequencingRead", nil)
	second := insertType(t, store, "sequencingRead", nil)
	other := insertType(t, store, "variantCall", nil)

	assert.Equal(t, 1, first.Version)
	assert.Equal(t, 2, second.Version)
	assert.Equal(t, 1, other.Version, "versions are counted per name")
	assert.False(t, first.CreatedAt.IsZero())
}

func TestMemorySchemaStore_GetVersion(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := NewMemorySchemaStore()
	ctx := context.Background()

	insertType(t, store, "qc", []string{"TXT"})
	insertType(t, store, "qc", nil)

	found, err := store.GetVersion(ctx, "qc", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, found.Version)
	assert.Equal(t, []string{"TXT"}, found.FileTypes)

	for _, version := range []int{0, -1, 3} {
		_, err := store.GetVersion(ctx, "qc", version)

		require.Error(t, err, "version %d", version)
		assert.ErrorIs(t, err, schemas.ErrTypeNotFound)
	}

	_, err = store.GetVersion(ctx, "neverRegistered", 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrTypeNotFound)
}

func TestMemorySchemaStore_LatestVersion(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := NewMemorySchemaStore()
	ctx := context.Background()

	insertType(t, store, "qc", nil)
	insertType(t, store, "qc", nil)
	insertType(t, store, "qc", nil)

	latest, err := store.LatestVersion(ctx, "qc")
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Version)

	_, err = store.LatestVersion(ctx, "neverRegistered")
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrTypeNotFound)
}

func TestMemorySchemaStore_ListVersions(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := NewMemorySchemaStore()
	ctx := context.Background()

	insertType(t, store, "qc", nil)
	insertType(t, store, "qc", nil)

	versions, err := store.ListVersions(ctx, "qc")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 1, versions[0].Version)
	assert.Equal(t, 2, versions[1].Version)

	empty, err := store.ListVersions(ctx, "neverRegistered")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemorySchemaStore_List(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := NewMemorySchemaStore()
	ctx := context.Background()

	insertType(t, store, "sequencingRead", nil)
	insertType(t, store, "sequencingRead", nil)
	insertType(t, store, "variantCall", nil)

	t.Run("unfiltered returns everything ordered by name and version", func(t *testing.T) {
		page, err := store.List(ctx, schemas.ListFilter{})

		require.NoError(t, err)
		assert.Equal(t, 3, page.Total)
		require.Len(t, page.Types, 3)
		assert.Equal(t, "sequencingRead", page.Types[0].Name)
		assert.Equal(t, 1, page.Types[0].Version)
		assert.Equal(t, "sequencingRead", page.Types[1].Name)
		assert.Equal(t, 2, page.Types[1].Version)
		assert.Equal(t, "variantCall", page.Types[2].Name)
		assert.Equal(t, defaultPageLimit, page.Limit)
	})

	t.Run("name filter", func(t *testing.T) {
		page, err := store.List(ctx, schemas.ListFilter{Names: []string{"variantCall"}})

		require.NoError(t, err)
		assert.Equal(t, 1, page.Total)
		require.Len(t, page.Types, 1)
		assert.Equal(t, "variantCall", page.Types[0].Name)
	})

	t.Run("version filter", func(t *testing.T) {
		page, err := store.List(ctx, schemas.ListFilter{Versions: []int{2}})

		require.NoError(t, err)
		require.Len(t, page.Types, 1)
		assert.Equal(t, "sequencingRead", page.Types[0].Name)
		assert.Equal(t, 2, page.Types[0].Version)
	})

	t.Run("hide schema strips the document", func(t *testing.T) {
		page, err := store.List(ctx, schemas.ListFilter{HideSchema: true})

		require.NoError(t, err)
		for _, analysisType := range page.Types {
			assert.Nil(t, analysisType.Schema)
		}
	})

	t.Run("paging", func(t *testing.T) {
		page, err := store.List(ctx, schemas.ListFilter{Offset: 1, Limit: 1})

		require.NoError(t, err)
		assert.Equal(t, 3, page.Total)
		require.Len(t, page.Types, 1)
		assert.Equal(t, "sequencingRead", page.Types[0].Name)
		assert.Equal(t, 2, page.Types[0].Version)
	})

	t.Run("offset past the end returns an empty page", func(t *testing.T) {
		page, err := store.List(ctx, schemas.ListFilter{Offset: 10})

		require.NoError(t, err)
		assert.Equal(t, 3, page.Total)
		assert.Empty(t, page.Types)
	})
}
