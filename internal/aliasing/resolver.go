package aliasing

import (
	"log/slog"
	"strings"
)

// Resolver rewrites legacy study codes to canonical study IDs.
// Thread-safe for concurrent use (immutable after construction).
type Resolver struct {
	aliases map[string]string
}

// NewResolver creates a resolver from config.
//
// Aliases with an empty side are skipped with a warning. If config is nil or
// has no aliases, the resolver is a passthrough.
func NewResolver(cfg *Config) *Resolver {
	if cfg == nil || len(cfg.StudyAliases) == 0 {
		return &Resolver{aliases: map[string]string{}}
	}

	valid := make(map[string]string, len(cfg.StudyAliases))

	for legacy, canonical := range cfg.StudyAliases {
		legacy = strings.TrimSpace(legacy)
		canonical = strings.TrimSpace(canonical)

		if legacy == "" || canonical == "" {
			slog.Warn("Skipping study alias with empty side",
				slog.String("legacy", legacy),
				slog.String("canonical", canonical))

			continue
		}

		valid[legacy] = canonical
	}

	return &Resolver{aliases: valid}
}

// AliasCount returns the number of loaded aliases.
func (r *Resolver) AliasCount() int {
	if r == nil {
		return 0
	}

	return len(r.aliases)
}

// Resolve returns the canonical study ID for a possibly legacy study code.
// Unknown codes pass through unchanged.
func (r *Resolver) Resolve(studyID string) string {
	if r == nil || studyID == "" {
		return studyID
	}

	if canonical, ok := r.aliases[studyID]; ok {
		return canonical
	}

	return studyID
}
