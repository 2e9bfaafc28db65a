package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"

	"github.com/metacord-io/metacord/internal/config"
	"github.com/metacord-io/metacord/internal/registry"
)

// setupTestConnection starts a PostgreSQL container with migrations applied
// and returns a Connection wired to it. Cleanup is registered on t.
func setupTestConnection(t *testing.T) *Connection {
	t.Helper()

	ctx := context.Background()
	testDB := config.SetupTestDatabase(ctx, t)

	t.Cleanup(func() {
		_ = testDB.Connection.Close()
		_ = testcontainers.TerminateContainer(testDB.Container)
	})

	return &Connection{db: testDB.Connection}
}

// createTestStudy inserts a study row so analysis foreign keys resolve.
func createTestStudy(t *testing.T, conn *Connection, studyID string) {
	t.Helper()

	studies, err := NewPersistentStudyStore(conn)
	require.NoError(t, err)

	err = studies.CreateStudy(context.Background(), &registry.Study{
		StudyID: studyID,
		Name:    "Integration test study " + studyID,
	})
	require.NoError(t, err)
}

// truncateTimestamp strips sub-microsecond precision so values survive the
// round trip through TIMESTAMPTZ columns unchanged.
func truncateTimestamp(at time.Time) time.Time {
	return at.Truncate(time.Microsecond).UTC()
}
