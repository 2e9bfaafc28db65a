package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Run("reads pool settings from the environment", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://metacord:pw@db:5432/metacord") // pragma: allowlist secret
		t.Setenv("DATABASE_MAX_OPEN_CONNS", "50")
		t.Setenv("DATABASE_MAX_IDLE_CONNS", "10")
		t.Setenv("DATABASE_CONN_MAX_LIFETIME", "1h")
		t.Setenv("DATABASE_CONN_MAX_IDLE_TIME", "5m")

		cfg := LoadConfig()

		assert.Equal(t, "postgres://metacord:pw@db:5432/metacord", cfg.databaseURL) // pragma: allowlist secret
		assert.Equal(t, 50, cfg.MaxOpenConns)
		assert.Equal(t, 10, cfg.MaxIdleConns)
		assert.Equal(t, time.Hour, cfg.ConnMaxLifetime)
		assert.Equal(t, 5*time.Minute, cfg.ConnMaxIdleTime)
	})

	t.Run("falls back to defaults for unset or malformed values", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://metacord:pw@db:5432/metacord") // pragma: allowlist secret
		t.Setenv("DATABASE_MAX_OPEN_CONNS", "not-a-number")
		t.Setenv("DATABASE_CONN_MAX_LIFETIME", "not-a-duration")

		cfg := LoadConfig()

		assert.Equal(t, defaultMaxOpenConns, cfg.MaxOpenConns)
		assert.Equal(t, defaultMaxIdleConns, cfg.MaxIdleConns)
		assert.Equal(t, defaultConnMaxLifetime, cfg.ConnMaxLifetime)
		assert.Equal(t, defaultConnMaxIdleTime, cfg.ConnMaxIdleTime)
	})
}

func TestConfigValidate(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	valid := &Config{databaseURL: "postgres://metacord:pw@db:5432/metacord"} // pragma: allowlist secret
	require.NoError(t, valid.Validate())

	for _, url := range []string{"", "   "} {
		err := (&Config{databaseURL: url}).Validate()

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDatabaseURLEmpty)
	}
}

func TestMaskDatabaseURL(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name     string
		url      string
		expected string
	}{
		{
			name:     "password is masked",
			url:      "postgres://metacord:hunter2@db:5432/metacord", // pragma: allowlist secret
			expected: "postgres://metacord:***@db:5432/metacord",
		},
		{
			name:     "special characters in the password",
			url:      "postgres://metacord:p@ss:w0rd@db:5432/metacord",
			expected: "postgres://metacord:***@db:5432/metacord",
		},
		{
			name:     "query parameters survive masking",
			url:      "postgres://metacord:pw@db:5432/metacord?sslmode=require", // pragma: allowlist secret
			expected: "postgres://metacord:***@db:5432/metacord?sslmode=require",
		},
		{
			name:     "no userinfo",
			url:      "postgres://db:5432/metacord",
			expected: "postgres://db:5432/metacord",
		},
		{
			name:     "username without password",
			url:      "postgres://metacord@db:5432/metacord",
			expected: "postgres://metacord@db:5432/metacord",
		},
		{
			name:     "empty URL",
			url:      "",
			expected: "",
		},
		{
			name:     "not a URL at all",
			url:      "definitely-not-a-url",
			expected: "definitely-not-a-url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{databaseURL: tt.url}

			assert.Equal(t, tt.expected, cfg.MaskDatabaseURL())
		})
	}
}
