package schemas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalysisType_ID(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	analysisType := &AnalysisType{Name: "sequencingRead", Version: 3}

	assert.Equal(t, "sequencingRead:3", analysisType.ID())
}

func TestAnalysisType_DeclaresFileTypes(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name      string
		fileTypes []string
		expected  bool
	}{
		{
			name:      "nil means not declared",
			fileTypes: nil,
			expected:  false,
		},
		{
			name:      "empty non-nil means explicitly unrestricted",
			fileTypes: []string{},
			expected:  true,
		},
		{
			name:      "non-empty means restricted",
			fileTypes: []string{"BAM", "CRAM"},
			expected:  true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			analysisType := &AnalysisType{Name: "t", Version: 1, FileTypes: tc.fileTypes}

			assert.Equal(t, tc.expected, analysisType.DeclaresFileTypes())
		})
	}
}

func TestValidateTypeName(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	valid := []string{"sequencingRead", "variant-call", "qc.report_v2", "A1"}
	for _, name := range valid {
		assert.NoError(t, ValidateTypeName(name), name)
	}

	invalid := []string{"", "has space", "semi;colon", "name:1", "päyload"}
	for _, name := range invalid {
		err := ValidateTypeName(name)

		require.Error(t, err, name)
		assert.ErrorIs(t, err, ErrMalformedTypeName)
	}
}

func TestParseTypeID_Valid(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	name, version, err := ParseTypeID("sequencingRead:12")

	require.NoError(t, err)
	assert.Equal(t, "sequencingRead", name)
	assert.Equal(t, 12, version)
}

func TestParseTypeID_TrimsWhitespace(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	name, version, err := ParseTypeID("  variant-call:1  ")

	require.NoError(t, err)
	assert.Equal(t, "variant-call", name)
	assert.Equal(t, 1, version)
}

func TestParseTypeID_Malformed(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	malformed := []string{
		"",
		"noVersion",
		"name:",
		":1",
		"name:0",
		"name:-1",
		"name:01",
		"name:1:2",
		"name:abc",
	}

	for _, id := range malformed {
		_, _, err := ParseTypeID(id)

		require.Error(t, err, id)
		assert.ErrorIs(t, err, ErrMalformedTypeID, id)
	}
}
