// Package aliasing provides legacy study-code alias resolution.
//
// Long-lived genomic programs rename studies; submitters keep sending the
// code they always used. This package loads an optional alias map from a
// YAML file and rewrites legacy study codes to their canonical studyId
// before the submission engine checks study existence.
package aliasing

import (
	"errors"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/metacord-io/metacord/internal/config"
)

// Config holds study alias configuration loaded from .metacord.yaml.
type Config struct {
	// StudyAliases maps legacy study codes to canonical study IDs.
	//nolint:tagliatelle // snake_case is intentional for YAML config files
	StudyAliases map[string]string `yaml:"study_aliases"`
}

// DefaultConfigPath is the default location for the configuration file.
const DefaultConfigPath = ".metacord.yaml"

// ConfigPathEnvVar is the environment variable name for a custom config path.
const ConfigPathEnvVar = "METACORD_CONFIG_PATH"

// LoadConfig loads alias configuration from a YAML file at the given path.
//
// Behavior:
//   - Returns empty config (not error) if the file doesn't exist - aliases
//     are optional
//   - Returns empty config + logs warning if the YAML is invalid (graceful
//     degradation)
//   - Returns populated config on success
//
// Graceful degradation ensures the server starts even without aliases
// configured; study aliasing is an optional feature.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		StudyAliases: make(map[string]string),
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("Config file not found, continuing without study aliases",
				slog.String("path", path))

			return cfg, nil
		}

		slog.Warn("Failed to read config file, continuing without study aliases",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return cfg, nil
	}

	// Empty file is valid - just no aliases
	if len(data) == 0 {
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		slog.Warn("Failed to parse config file, continuing without study aliases",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return &Config{StudyAliases: make(map[string]string)}, nil
	}

	// Ensure map is initialized even if YAML had a nil/empty section
	if cfg.StudyAliases == nil {
		cfg.StudyAliases = make(map[string]string)
	}

	return cfg, nil
}

// LoadConfigFromEnv loads config from the path in METACORD_CONFIG_PATH,
// falling back to ".metacord.yaml" in the current directory.
func LoadConfigFromEnv() (*Config, error) {
	path := config.GetEnvStr(ConfigPathEnvVar, DefaultConfigPath)

	return LoadConfig(path)
}
