package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metacord-io/metacord/internal/registry"
)

func TestMemoryStudyStore_CreateAndGet(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := NewMemoryStudyStore()
	ctx := context.Background()

	err := store.CreateStudy(ctx, &registry.Study{
		StudyID:      "STUDY-A",
		Name:         "Pan-Cancer Study A",
		Organization: "ICGC",
	})
	require.NoError(t, err)

	study, err := store.GetStudy(ctx, "STUDY-A")

	require.NoError(t, err)
	assert.Equal(t, "STUDY-A", study.StudyID)
	assert.Equal(t, "Pan-Cancer Study A", study.Name)
	assert.Equal(t, "ICGC", study.Organization)
	assert.False(t, study.CreatedAt.IsZero(), "creation time is defaulted")
}

func TestMemoryStudyStore_DuplicateStudy(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := NewMemoryStudyStore()
	ctx := context.Background()

	require.NoError(t, store.CreateStudy(ctx, &registry.Study{StudyID: "STUDY-A"}))

	err := store.CreateStudy(ctx, &registry.Study{StudyID: "STUDY-A"})

	require.Error(t, err)
	assert.ErrorIs(t, err, registry.ErrStudyAlreadyExists)
}

func TestMemoryStudyStore_GetUnknown(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := NewMemoryStudyStore()

	_, err := store.GetStudy(context.Background(), "STUDY-404")

	require.Error(t, err)
	assert.ErrorIs(t, err, registry.ErrStudyNotFound)
}

func TestMemoryStudyStore_StudyExists(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := NewMemoryStudyStore()
	ctx := context.Background()

	exists, err := store.StudyExists(ctx, "STUDY-A")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.CreateStudy(ctx, &registry.Study{StudyID: "STUDY-A"}))

	exists, err = store.StudyExists(ctx, "STUDY-A")
	require.NoError(t, err)
	assert.True(t, exists)
}
