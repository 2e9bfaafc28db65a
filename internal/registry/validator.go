// Package registry: dynamic, versioned JSON-Schema payload validation.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/metacord-io/metacord/internal/schemas"
)

// Sentinel errors for payload validation.
var (
	// ErrSchemaViolation is returned when the payload fails structural or
	// analysis-type JSON-Schema validation. All violations of the failing
	// check are aggregated into one comma-joined message.
	ErrSchemaViolation = errors.New("payload failed schema validation")

	// ErrOutdatedTypeVersion is returned when enforceLatest is active and the
	// payload pins an analysis-type version older than the latest.
	ErrOutdatedTypeVersion = errors.New("payload references an outdated analysis type version")
)

// analysisTypeRefSchema is the fixed meta-schema every payload must satisfy
// before its analysis type can even be resolved: analysisType.name is
// required, version is an optional positive integer.
const analysisTypeRefSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["analysisType"],
	"properties": {
		"analysisType": {
			"type": "object",
			"required": ["name"],
			"properties": {
				"name": {"type": "string", "pattern": "^[A-Za-z0-9._-]+$"},
				"version": {"type": "integer", "minimum": 1}
			}
		}
	}
}`

// Validator validates inbound payloads against (1) the analysis-type
// reference meta-schema, (2) the resolved analysis-type schema, and (3) the
// file-type allow-list scoped to the schema version.
//
// The validator never partially applies: either every check passes, or the
// first failing class of checks aborts validation and nothing downstream of
// it runs.
type Validator struct {
	registry      *schemas.Registry
	enforceLatest bool
	refSchema     *jsonschema.Schema

	// compiled caches analysis-type schemas by "name:version". Versions are
	// immutable, so entries never need invalidation.
	mu       sync.RWMutex
	compiled map[string]*jsonschema.Schema
}

// NewValidator creates a Validator. enforceLatest rejects payloads that pin
// an explicit version older than the latest registered one.
func NewValidator(registry *schemas.Registry, enforceLatest bool) (*Validator, error) {
	refSchema, err := jsonschema.CompileString("metacord://meta/analysis-type-ref", analysisTypeRefSchema)
	if err != nil {
		return nil, fmt.Errorf("compile analysis-type-ref meta-schema: %w", err)
	}

	return &Validator{
		registry:      registry,
		enforceLatest: enforceLatest,
		refSchema:     refSchema,
		compiled:      make(map[string]*jsonschema.Schema),
	}, nil
}

// Validate runs the full validation pipeline over a raw payload and returns
// the resolved analysis type on success, so callers need not resolve twice.
//
// Check order, short-circuiting on the first failing class:
//  1. analysis-type reference meta-schema
//  2. analysis-type resolution (latest fallback, enforceLatest policy)
//  3. file-type allow-list scoped to the resolved version
//  4. full payload body against the resolved analysis-type schema
func (v *Validator) Validate(ctx context.Context, raw []byte) (*schemas.AnalysisType, error) {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrPayloadParsing, err.Error(), EscapePercent(string(raw)))
	}

	// 1. Reference meta-schema.
	if err := v.refSchema.Validate(doc); err != nil {
		return nil, violation(schemas.ViolationMessages(err))
	}

	payload, err := ParsePayload(raw)
	if err != nil {
		return nil, err
	}

	// 2. Analysis-type resolution.
	analysisType, err := v.resolveType(ctx, payload.AnalysisType)
	if err != nil {
		return nil, err
	}

	// 3. File-type allow-list.
	if err := v.checkFileTypes(ctx, analysisType, payload.Files); err != nil {
		return nil, err
	}

	// 4. Full body validation.
	schema, err := v.compiledSchema(analysisType)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", analysisType.ID(), err)
	}

	if err := schema.Validate(doc); err != nil {
		return nil, violation(schemas.ViolationMessages(err))
	}

	return analysisType, nil
}

// resolveType resolves the referenced analysis type, applying the latest
// fallback and the enforceLatest policy.
func (v *Validator) resolveType(ctx context.Context, ref PayloadTypeRef) (*schemas.AnalysisType, error) {
	resolved, err := v.registry.Resolve(ctx, ref.Name, ref.Version)
	if err != nil {
		return nil, err
	}

	if v.enforceLatest && ref.Version > 0 {
		latest, err := v.registry.Latest(ctx, ref.Name)
		if err != nil {
			return nil, err
		}

		if resolved.Version != latest.Version {
			return nil, fmt.Errorf("%w: payload pins %s but the latest is %s",
				ErrOutdatedTypeVersion, resolved.ID(), latest.ID())
		}
	}

	return resolved, nil
}

// checkFileTypes enforces the effective allow-list for the resolved version.
// Violations are collected per file and aggregated into one message.
func (v *Validator) checkFileTypes(
	ctx context.Context,
	analysisType *schemas.AnalysisType,
	files []PayloadFile,
) error {
	allowed, err := v.registry.EffectiveFileTypes(ctx, analysisType)
	if err != nil {
		return err
	}

	if len(allowed) == 0 {
		return nil // no restriction applies
	}

	allowedSet := make(map[string]struct{}, len(allowed))
	for _, ft := range allowed {
		allowedSet[ft] = struct{}{}
	}

	var violations []string

	for _, file := range files {
		if _, ok := allowedSet[file.FileType]; !ok {
			violations = append(violations, fmt.Sprintf(
				"file %q has type %q not in allowed set [%s]",
				file.FileName, file.FileType, strings.Join(allowed, " ")))
		}
	}

	if len(violations) > 0 {
		return violation(violations)
	}

	return nil
}

// compiledSchema returns the compiled schema for an analysis type, caching by
// canonical ID.
func (v *Validator) compiledSchema(analysisType *schemas.AnalysisType) (*jsonschema.Schema, error) {
	id := analysisType.ID()

	v.mu.RLock()
	schema, ok := v.compiled[id]
	v.mu.RUnlock()

	if ok {
		return schema, nil
	}

	schema, err := schemas.CompileSchema("metacord://types/"+id, analysisType.Schema)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	v.compiled[id] = schema
	v.mu.Unlock()

	return schema, nil
}

// violation wraps aggregated messages in ErrSchemaViolation.
func violation(messages []string) error {
	return fmt.Errorf("%w: %s", ErrSchemaViolation, strings.Join(messages, ", "))
}
