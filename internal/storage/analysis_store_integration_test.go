package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metacord-io/metacord/internal/identifier"
	"github.com/metacord-io/metacord/internal/registry"
)

func TestPersistentAnalysisStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	conn := setupTestConnection(t)
	createTestStudy(t, conn, "STUDY-A")
	createTestStudy(t, conn, "STUDY-B")

	store, err := NewPersistentAnalysisStore(conn, nil)
	require.NoError(t, err)

	ctx := context.Background()
	createdAt := truncateTimestamp(time.Now())

	t.Run("create and get round trip", func(t *testing.T) {
		analysis := testAnalysis("AN-roundtrip", "STUDY-A")
		analysis.Experiment = map[string]interface{}{"libraryStrategy": "WGS"}
		analysis.CreatedAt = createdAt
		analysis.UpdatedAt = createdAt
		analysis.Files[0].FileMD5 = "d41d8cd98f00b204e9800998ecf8427e"
		analysis.Files[0].DataType = "Aligned Reads"

		require.NoError(t, store.CreateAnalysis(ctx, analysis))

		loaded, err := store.GetAnalysis(ctx, "AN-roundtrip")
		require.NoError(t, err)

		assert.Equal(t, "AN-roundtrip", loaded.AnalysisID)
		assert.Equal(t, "STUDY-A", loaded.StudyID)
		assert.Equal(t, registry.StateUnpublished, loaded.State)
		assert.Equal(t, "sequencingRead", loaded.TypeName)
		assert.Equal(t, 1, loaded.TypeVersion)
		assert.Equal(t, "WGS", loaded.Experiment["libraryStrategy"])
		assert.Nil(t, loaded.PublishedAt)
		assert.Nil(t, loaded.FirstPublishedAt)

		require.Len(t, loaded.Files, 1)
		file := loaded.Files[0]
		assert.Equal(t, "obj-AN-roundtrip", file.ObjectID)
		assert.Equal(t, "a.bam", file.FileName)
		assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", file.FileMD5)
		assert.Equal(t, "Aligned Reads", file.DataType)
		assert.Equal(t, registry.FileAccessOpen, file.FileAccess)

		require.Len(t, loaded.Samples, 1)
		composite := loaded.Samples[0]
		assert.Equal(t, "DO-1", composite.Donor.SubmitterDonorID)
		assert.Equal(t, "SP-1", composite.Specimen.SubmitterSpecimenID)
		assert.Equal(t, "SA-1", composite.Sample.SubmitterSampleID)
		assert.Equal(t, composite.Donor.DonorID, composite.Specimen.DonorID)
		assert.Equal(t, composite.Specimen.SpecimenID, composite.Sample.SpecimenID)
	})

	t.Run("business key upsert keeps stored system IDs", func(t *testing.T) {
		second := testAnalysis("AN-upsert", "STUDY-A")
		require.NoError(t, store.CreateAnalysis(ctx, second))

		// Same submitter IDs as AN-roundtrip: the winners written back are the
		// system IDs stored by the first submission.
		assert.Equal(t, "DO-sys-AN-roundtrip", second.Samples[0].Donor.DonorID)
		assert.Equal(t, "SP-sys-AN-roundtrip", second.Samples[0].Specimen.SpecimenID)
		assert.Equal(t, "SA-sys-AN-roundtrip", second.Samples[0].Sample.SampleID)
	})

	t.Run("business keys are scoped per study", func(t *testing.T) {
		other := testAnalysis("AN-other-study", "STUDY-B")
		require.NoError(t, store.CreateAnalysis(ctx, other))

		assert.Equal(t, "DO-sys-AN-other-study", other.Samples[0].Donor.DonorID)
		assert.Equal(t, "SP-sys-AN-other-study", other.Samples[0].Specimen.SpecimenID)
		assert.Equal(t, "SA-sys-AN-other-study", other.Samples[0].Sample.SampleID)
	})

	t.Run("duplicate analysis ID is rejected", func(t *testing.T) {
		err := store.CreateAnalysis(ctx, testAnalysis("AN-roundtrip", "STUDY-B"))

		require.Error(t, err)
		assert.ErrorIs(t, err, registry.ErrAnalysisAlreadyExists)

		// The stored analysis keeps its original study.
		stored, err := store.GetAnalysis(ctx, "AN-roundtrip")
		require.NoError(t, err)
		assert.Equal(t, "STUDY-A", stored.StudyID)
	})

	t.Run("get unknown analysis", func(t *testing.T) {
		_, err := store.GetAnalysis(ctx, "AN-404")

		require.Error(t, err)
		assert.ErrorIs(t, err, registry.ErrAnalysisNotFound)
	})

	t.Run("get analysis state", func(t *testing.T) {
		state, studyID, err := store.GetAnalysisState(ctx, "AN-roundtrip")

		require.NoError(t, err)
		assert.Equal(t, registry.StateUnpublished, state)
		assert.Equal(t, "STUDY-A", studyID)
	})

	t.Run("guarded state update with history", func(t *testing.T) {
		publishAt := truncateTimestamp(time.Now())

		err := store.UpdateState(ctx, "AN-roundtrip",
			registry.StateUnpublished, registry.StatePublished, publishAt)
		require.NoError(t, err)

		loaded, err := store.GetAnalysis(ctx, "AN-roundtrip")
		require.NoError(t, err)
		assert.Equal(t, registry.StatePublished, loaded.State)
		require.NotNil(t, loaded.PublishedAt)
		require.NotNil(t, loaded.FirstPublishedAt)
		assert.True(t, loaded.PublishedAt.Equal(publishAt))
		assert.True(t, loaded.FirstPublishedAt.Equal(publishAt))

		history, err := store.GetStateHistory(ctx, "AN-roundtrip")
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, registry.StateUnpublished, history[0].InitialState)
		assert.Equal(t, registry.StatePublished, history[0].UpdatedState)
	})

	t.Run("guard failure reports the actual state", func(t *testing.T) {
		err := store.UpdateState(ctx, "AN-roundtrip",
			registry.StateUnpublished, registry.StateSuppressed, time.Now())

		require.Error(t, err)
		assert.ErrorIs(t, err, registry.ErrStateConflict)
		assert.Contains(t, err.Error(), "PUBLISHED")

		// The failed transition appended nothing.
		history, err := store.GetStateHistory(ctx, "AN-roundtrip")
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})

	t.Run("republish refreshes publishedAt only", func(t *testing.T) {
		firstLoaded, err := store.GetAnalysis(ctx, "AN-roundtrip")
		require.NoError(t, err)
		require.NotNil(t, firstLoaded.FirstPublishedAt)

		republishAt := truncateTimestamp(time.Now().Add(time.Hour))

		err = store.UpdateState(ctx, "AN-roundtrip",
			registry.StatePublished, registry.StatePublished, republishAt)
		require.NoError(t, err)

		loaded, err := store.GetAnalysis(ctx, "AN-roundtrip")
		require.NoError(t, err)
		require.NotNil(t, loaded.PublishedAt)
		assert.True(t, loaded.PublishedAt.Equal(republishAt))
		assert.True(t, loaded.FirstPublishedAt.Equal(*firstLoaded.FirstPublishedAt))
	})

	t.Run("state update of unknown analysis", func(t *testing.T) {
		err := store.UpdateState(ctx, "AN-404",
			registry.StateUnpublished, registry.StatePublished, time.Now())

		require.Error(t, err)
		assert.ErrorIs(t, err, registry.ErrAnalysisNotFound)
	})

	t.Run("history is chronological and chained", func(t *testing.T) {
		base := truncateTimestamp(time.Now().Add(2 * time.Hour))

		require.NoError(t, store.UpdateState(ctx, "AN-roundtrip",
			registry.StatePublished, registry.StateUnpublished, base))
		require.NoError(t, store.UpdateState(ctx, "AN-roundtrip",
			registry.StateUnpublished, registry.StateSuppressed, base.Add(time.Minute)))

		history, err := store.GetStateHistory(ctx, "AN-roundtrip")
		require.NoError(t, err)
		require.Len(t, history, 4)
		assert.NoError(t, registry.VerifyHistory(registry.StateUnpublished, history))
		assert.Equal(t, registry.StateSuppressed, history[3].UpdatedState)
	})

	t.Run("files are ordered by name", func(t *testing.T) {
		analysis := testAnalysis("AN-files", "STUDY-A")
		analysis.Samples = nil
		analysis.Files = []registry.File{
			{
				ObjectID: "obj-z", AnalysisID: "AN-files", StudyID: "STUDY-A",
				FileName: "z.vcf", FileType: "VCF", FileSize: 2, FileAccess: registry.FileAccessControlled,
			},
			{
				ObjectID: "obj-a", AnalysisID: "AN-files", StudyID: "STUDY-A",
				FileName: "a.bam", FileType: "BAM", FileSize: 1, FileAccess: registry.FileAccessOpen,
			},
		}
		require.NoError(t, store.CreateAnalysis(ctx, analysis))

		files, err := store.GetFiles(ctx, "AN-files")

		require.NoError(t, err)
		require.Len(t, files, 2)
		assert.Equal(t, "a.bam", files[0].FileName)
		assert.Equal(t, "z.vcf", files[1].FileName)
		assert.Empty(t, files[0].FileMD5, "undefined checksum survives as empty")
	})

	t.Run("committed analysis IDs collide exactly once", func(t *testing.T) {
		exists, err := store.AnalysisIDExists(ctx, "AN-committed")
		require.NoError(t, err)
		assert.False(t, exists)

		require.NoError(t, store.CommitAnalysisID(ctx, "AN-committed"))

		exists, err = store.AnalysisIDExists(ctx, "AN-committed")
		require.NoError(t, err)
		assert.True(t, exists)

		err = store.CommitAnalysisID(ctx, "AN-committed")
		require.Error(t, err)
		assert.ErrorIs(t, err, identifier.ErrAnalysisIDCollision)
	})

	t.Run("health check", func(t *testing.T) {
		assert.NoError(t, store.HealthCheck(ctx))
	})
}
