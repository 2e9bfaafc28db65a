package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// copySchemaMigrations copies the registry's real schema migrations into dir,
// so fixture directories exercise the SQL that production runs.
func copySchemaMigrations(t *testing.T, dir string) {
	t.Helper()

	for _, file := range []string{"001_initial_schema.up.sql", "001_initial_schema.down.sql"} {
		content, err := os.ReadFile(file)
		require.NoError(t, err)

		require.NoError(t, os.WriteFile(filepath.Join(dir, file), content, 0o644))
	}
}

func writeMigration(t *testing.T, dir, name, content string) {
	t.Helper()

	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestMigrationSet_ValidatesShippedSchema(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	// The package directory holds the canonical registry migrations.
	set := NewMigrationSet(".")

	require.NoError(t, set.Validate())

	files, err := set.Files()
	require.NoError(t, err)
	assert.Equal(t, []string{"001_initial_schema.down.sql", "001_initial_schema.up.sql"}, files)
}

func TestMigrationSet_FilesIgnoresNonMigrations(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	dir := t.TempDir()
	copySchemaMigrations(t, dir)
	writeMigration(t, dir, "README.md", "# migrations")
	writeMigration(t, dir, "schema.sql", "SELECT 1;")
	writeMigration(t, dir, "01_too_short.up.sql", "SELECT 1;")

	files, err := NewMigrationSet(dir).Files()

	require.NoError(t, err)
	assert.Equal(t, []string{"001_initial_schema.down.sql", "001_initial_schema.up.sql"}, files)
}

func TestMigrationSet_Validate(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name      string
		setup     func(t *testing.T, dir string)
		expectErr error
	}{
		{
			name: "schema plus a follow-up migration",
			setup: func(t *testing.T, dir string) {
				copySchemaMigrations(t, dir)
				writeMigration(t, dir, "002_add_analyses_updated_at_index.up.sql",
					"CREATE INDEX idx_analyses_updated_at ON analyses(updated_at);")
				writeMigration(t, dir, "002_add_analyses_updated_at_index.down.sql",
					"DROP INDEX idx_analyses_updated_at;")
			},
			expectErr: nil,
		},
		{
			name:      "empty directory",
			setup:     func(t *testing.T, dir string) {},
			expectErr: ErrNoMigrations,
		},
		{
			name: "only non-conforming files",
			setup: func(t *testing.T, dir string) {
				writeMigration(t, dir, "initial.sql", "CREATE TABLE studies (study_id TEXT);")
			},
			expectErr: ErrNoMigrations,
		},
		{
			name: "up migration without a down twin",
			setup: func(t *testing.T, dir string) {
				copySchemaMigrations(t, dir)
				writeMigration(t, dir, "002_add_file_index.up.sql",
					"CREATE INDEX idx_files_study_id ON files(study_id);")
			},
			expectErr: ErrUnpairedMigration,
		},
		{
			name: "down migration without an up twin",
			setup: func(t *testing.T, dir string) {
				copySchemaMigrations(t, dir)
				writeMigration(t, dir, "002_add_file_index.down.sql",
					"DROP INDEX idx_files_study_id;")
			},
			expectErr: ErrUnpairedMigration,
		},
		{
			name: "gap in the sequence",
			setup: func(t *testing.T, dir string) {
				copySchemaMigrations(t, dir)
				writeMigration(t, dir, "003_add_file_index.up.sql",
					"CREATE INDEX idx_files_study_id ON files(study_id);")
				writeMigration(t, dir, "003_add_file_index.down.sql",
					"DROP INDEX idx_files_study_id;")
			},
			expectErr: ErrSequenceGap,
		},
		{
			name: "sequence not starting at 001",
			setup: func(t *testing.T, dir string) {
				writeMigration(t, dir, "002_add_file_index.up.sql",
					"CREATE INDEX idx_files_study_id ON files(study_id);")
				writeMigration(t, dir, "002_add_file_index.down.sql",
					"DROP INDEX idx_files_study_id;")
			},
			expectErr: ErrSequenceGap,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			tt.setup(t, dir)

			err := NewMigrationSet(dir).Validate()

			if tt.expectErr == nil {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.expectErr)
			}
		})
	}
}

func TestMigrationSet_MissingDirectory(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	err := NewMigrationSet(filepath.Join(t.TempDir(), "absent")).Validate()

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingDirectory)
}

func TestMigrationSet_DetectsModifiedFiles(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	dir := t.TempDir()
	copySchemaMigrations(t, dir)

	set := NewMigrationSet(dir)
	require.NoError(t, set.Validate())

	// Editing a migration after it was validated must be caught on the next
	// validation within the same process.
	writeMigration(t, dir, "001_initial_schema.up.sql",
		"CREATE TABLE studies (study_id TEXT PRIMARY KEY);")

	err := set.Validate()

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModifiedMigration)

	// A fresh set has no recorded checksums and accepts the current content.
	assert.NoError(t, NewMigrationSet(dir).Validate())
}
