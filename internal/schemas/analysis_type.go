// Package schemas provides the analysis-type registry: named, auto-versioned
// JSON Schemas used to validate the experiment-specific portion of a
// submission payload.
//
// Analysis types are immutable once created. Registering under an existing
// name creates a new monotonically increasing version rather than mutating an
// old one.
package schemas

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Sentinel errors for analysis-type identification and lookup.
var (
	// ErrTypeNotFound is returned when no analysis type matches a name+version.
	ErrTypeNotFound = errors.New("analysis type not found")

	// ErrMalformedTypeID is returned when an ID does not match the canonical
	// "name:version" grammar. This is a parameter error, distinct from
	// ErrTypeNotFound.
	ErrMalformedTypeID = errors.New("malformed analysis type ID")

	// ErrMalformedTypeName is returned when a name violates the allowed
	// character set.
	ErrMalformedTypeName = errors.New("malformed analysis type name")
)

// typeNamePattern is the allowed grammar for analysis type names.
var typeNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// typeIDPattern is the canonical grammar "name:version" where version is a
// positive decimal integer.
var typeIDPattern = regexp.MustCompile(`^([A-Za-z0-9._-]+):([1-9][0-9]*)$`)

// AnalysisType is one immutable version of a named analysis-type schema.
type AnalysisType struct {
	// Name identifies the analysis type. Matches [A-Za-z0-9._-]+.
	Name string

	// Version is strictly positive and strictly increasing per name,
	// starting at 1.
	Version int

	// Schema is the JSON Schema document payloads of this type are
	// validated against. Immutable forever once the version is created.
	Schema json.RawMessage

	// FileTypes is the file-type allow-list scoped to this schema version.
	//
	// Three states are distinguished:
	//   - nil: this version declares no list; validation falls back to the
	//     union of lists declared by earlier versions
	//   - empty non-nil: this version explicitly declares "no restriction"
	//   - non-empty: every declared file's fileType must appear in it
	FileTypes []string

	CreatedAt time.Time
}

// ID returns the canonical identifier "name:version".
func (t *AnalysisType) ID() string {
	return t.Name + ":" + strconv.Itoa(t.Version)
}

// DeclaresFileTypes reports whether this version declares an allow-list at
// all (including an explicitly empty one).
func (t *AnalysisType) DeclaresFileTypes() bool {
	return t.FileTypes != nil
}

// ValidateTypeName checks a name against the allowed grammar.
func ValidateTypeName(name string) error {
	if !typeNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q must match %s", ErrMalformedTypeName, name, typeNamePattern.String())
	}

	return nil
}

// ParseTypeID parses a canonical "name:version" identifier.
//
// Malformed IDs fail fast with ErrMalformedTypeID; existence of the parsed
// type is a separate concern checked by the registry.
func ParseTypeID(id string) (string, int, error) {
	matches := typeIDPattern.FindStringSubmatch(strings.TrimSpace(id))
	if matches == nil {
		return "", 0, fmt.Errorf("%w: %q does not match name:version", ErrMalformedTypeID, id)
	}

	version, err := strconv.Atoi(matches[2])
	if err != nil {
		// Unreachable given the pattern, but a huge version overflows int.
		return "", 0, fmt.Errorf("%w: version in %q is out of range", ErrMalformedTypeID, id)
	}

	return matches[1], version, nil
}
