package schemas

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is a minimal in-memory Store for registry unit tests. The full
// storage implementations have their own tests in internal/storage.
type fakeStore struct {
	types map[string][]*AnalysisType
}

func newFakeStore() *fakeStore {
	return &fakeStore{types: make(map[string][]*AnalysisType)}
}

func (s *fakeStore) InsertVersion(_ context.Context, t *AnalysisType) error {
	versions := s.types[t.Name]
	t.Version = len(versions) + 1
	t.CreatedAt = time.Now().UTC()

	stored := *t
	s.types[t.Name] = append(versions, &stored)

	return nil
}

func (s *fakeStore) GetVersion(_ context.Context, name string, version int) (*AnalysisType, error) {
	versions := s.types[name]
	if version < 1 || version > len(versions) {
		return nil, fmt.Errorf("%w: %s:%d", ErrTypeNotFound, name, version)
	}

	return versions[version-1], nil
}

func (s *fakeStore) LatestVersion(_ context.Context, name string) (*AnalysisType, error) {
	versions := s.types[name]
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrTypeNotFound, name)
	}

	return versions[len(versions)-1], nil
}

func (s *fakeStore) ListVersions(_ context.Context, name string) ([]*AnalysisType, error) {
	return s.types[name], nil
}

func (s *fakeStore) List(_ context.Context, _ ListFilter) (*Page, error) {
	var all []*AnalysisType
	for _, versions := range s.types {
		all = append(all, versions...)
	}

	return &Page{Types: all, Total: len(all)}, nil
}

const validSchema = `{
	"type": "object",
	"properties": {
		"experiment": {
			"type": "object",
			"properties": {
				"libraryStrategy": {"type": "string"}
			},
			"required": ["libraryStrategy"]
		}
	},
	"required": ["experiment"]
}`

func newTestRegistry(t *testing.T) (*Registry, *fakeStore) {
	t.Helper()

	store := newFakeStore()

	registry, err := NewRegistry(store)
	require.NoError(t, err)

	return registry, store
}

func TestRegistry_Register_FirstVersion(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	registry, _ := newTestRegistry(t)

	registered, err := registry.Register(context.Background(), "sequencingRead", json.RawMessage(validSchema), nil)

	require.NoError(t, err)
	assert.Equal(t, "sequencingRead", registered.Name)
	assert.Equal(t, 1, registered.Version)
	assert.Equal(t, "sequencingRead:1", registered.ID())
	assert.False(t, registered.CreatedAt.IsZero())
}

func TestRegistry_Register_VersionsIncrease(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	first, err := registry.Register(ctx, "variantCall", json.RawMessage(validSchema), nil)
	require.NoError(t, err)

	second, err := registry.Register(ctx, "variantCall", json.RawMessage(validSchema), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, first.Version)
	assert.Equal(t, 2, second.Version)
}

func TestRegistry_Register_MalformedName(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	registry, _ := newTestRegistry(t)

	_, err := registry.Register(context.Background(), "bad name!", json.RawMessage(validSchema), nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedTypeName)
}

func TestRegistry_Register_InvalidJSON(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	registry, _ := newTestRegistry(t)

	_, err := registry.Register(context.Background(), "broken", json.RawMessage(`{not json`), nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSchema)
}

func TestRegistry_Register_FailsMetaSchema(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		schema string
	}{
		{
			name:   "not an object schema",
			schema: `{"type": "array", "properties": {"x": {}}}`,
		},
		{
			name:   "missing properties",
			schema: `{"type": "object"}`,
		},
		{
			name:   "empty properties",
			schema: `{"type": "object", "properties": {}}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := registry.Register(ctx, "shape", json.RawMessage(tc.schema), nil)

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidSchema)
		})
	}
}

func TestRegistry_Register_ReservedProperty(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	for _, reserved := range []string{"analysisId", "analysisType", "studyId", "samples", "files"} {
		schema := fmt.Sprintf(`{"type": "object", "properties": {%q: {"type": "string"}}}`, reserved)

		_, err := registry.Register(ctx, "shadowing", json.RawMessage(schema), nil)

		require.Error(t, err, reserved)
		assert.ErrorIs(t, err, ErrReservedProperty, reserved)
	}
}

func TestRegistry_Register_UncompilableSchema(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	registry, _ := newTestRegistry(t)

	// Satisfies the meta-schema shape but carries an invalid regex pattern.
	schema := `{
		"type": "object",
		"properties": {
			"experiment": {"type": "string", "pattern": "[unclosed"}
		}
	}`

	_, err := registry.Register(context.Background(), "badPattern", json.RawMessage(schema), nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSchema)
}

func TestRegistry_Resolve_LatestWhenVersionZero(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := registry.Register(ctx, "qc", json.RawMessage(validSchema), nil)
	require.NoError(t, err)
	_, err = registry.Register(ctx, "qc", json.RawMessage(validSchema), nil)
	require.NoError(t, err)

	resolved, err := registry.Resolve(ctx, "qc", 0)

	require.NoError(t, err)
	assert.Equal(t, 2, resolved.Version)
}

func TestRegistry_Resolve_ExactVersion(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := registry.Register(ctx, "qc", json.RawMessage(validSchema), nil)
	require.NoError(t, err)
	_, err = registry.Register(ctx, "qc", json.RawMessage(validSchema), nil)
	require.NoError(t, err)

	resolved, err := registry.Resolve(ctx, "qc", 1)

	require.NoError(t, err)
	assert.Equal(t, 1, resolved.Version)
}

func TestRegistry_Resolve_UnknownName(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	registry, _ := newTestRegistry(t)

	_, err := registry.Resolve(context.Background(), "never-registered", 0)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTypeNotFound)
}

func TestRegistry_Resolve_VersionTooHighReportsLatest(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := registry.Register(ctx, "qc", json.RawMessage(validSchema), nil)
	require.NoError(t, err)

	_, err = registry.Resolve(ctx, "qc", 7)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTypeNotFound)
	assert.Contains(t, err.Error(), "no version 7")
	assert.Contains(t, err.Error(), "latest is 1")
}

func TestRegistry_ResolveID(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := registry.Register(ctx, "qc", json.RawMessage(validSchema), nil)
	require.NoError(t, err)

	resolved, err := registry.ResolveID(ctx, "qc:1")

	require.NoError(t, err)
	assert.Equal(t, "qc:1", resolved.ID())
}

func TestRegistry_ResolveID_Malformed(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	registry, _ := newTestRegistry(t)

	_, err := registry.ResolveID(context.Background(), "qc:0")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedTypeID)
}

func TestRegistry_EffectiveFileTypes(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	// v1 restricts, v2 declares nothing, v3 explicitly unrestricts, v4 restricts again.
	v1, err := registry.Register(ctx, "seq", json.RawMessage(validSchema), []string{"BAM", "CRAM"})
	require.NoError(t, err)

	v2, err := registry.Register(ctx, "seq", json.RawMessage(validSchema), nil)
	require.NoError(t, err)

	v3, err := registry.Register(ctx, "seq", json.RawMessage(validSchema), []string{})
	require.NoError(t, err)

	v4, err := registry.Register(ctx, "seq", json.RawMessage(validSchema), []string{"VCF", "BAM"})
	require.NoError(t, err)

	t.Run("declared list wins", func(t *testing.T) {
		effective, err := registry.EffectiveFileTypes(ctx, v1)

		require.NoError(t, err)
		assert.Equal(t, []string{"BAM", "CRAM"}, effective)
	})

	t.Run("undeclared falls back to union of earlier versions", func(t *testing.T) {
		effective, err := registry.EffectiveFileTypes(ctx, v2)

		require.NoError(t, err)
		assert.Equal(t, []string{"BAM", "CRAM"}, effective)
	})

	t.Run("explicitly empty means unrestricted", func(t *testing.T) {
		effective, err := registry.EffectiveFileTypes(ctx, v3)

		require.NoError(t, err)
		assert.Empty(t, effective)
	})

	t.Run("sorted and de-duplicated", func(t *testing.T) {
		effective, err := registry.EffectiveFileTypes(ctx, v4)

		require.NoError(t, err)
		assert.Equal(t, []string{"BAM", "VCF"}, effective)
	})
}

func TestRegistry_EffectiveFileTypes_NoDeclarationsAnywhere(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	v1, err := registry.Register(ctx, "open", json.RawMessage(validSchema), nil)
	require.NoError(t, err)

	effective, err := registry.EffectiveFileTypes(ctx, v1)

	require.NoError(t, err)
	assert.Empty(t, effective)
}
