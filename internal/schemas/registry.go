// Package schemas: registry operations over the versioned analysis-type store.
package schemas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Sentinel errors for analysis-type registration.
var (
	// ErrInvalidSchema is returned when a registered schema document fails
	// the registration meta-schema or does not compile as a JSON Schema.
	ErrInvalidSchema = errors.New("invalid analysis type schema")

	// ErrReservedProperty is returned when a registered schema redefines a
	// payload property owned by the registry itself.
	ErrReservedProperty = errors.New("schema redefines reserved payload property")
)

// registrationMetaSchema enforces the structural rules every analysis-type
// schema must satisfy: the document must describe a JSON object and carry a
// properties map. Everything else is the author's business.
const registrationMetaSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["type", "properties"],
	"properties": {
		"type": {"const": "object"},
		"properties": {"type": "object", "minProperties": 1}
	}
}`

// reservedProperties are payload fields owned by the submission engine.
// Analysis-type schemas validate the whole payload, so a registered schema
// redefining these would shadow the engine's own contract.
var reservedProperties = []string{
	"analysisId",
	"analysisType",
	"studyId",
	"samples",
	"files",
}

// Registry resolves and registers analysis types on top of a Store.
// Validation is parametrized by the resolved schema document; there is no
// per-type dispatch beyond the (name, version) lookup key.
type Registry struct {
	store Store
	meta  *jsonschema.Schema
}

// NewRegistry creates a Registry, compiling the fixed registration
// meta-schema once up front.
func NewRegistry(store Store) (*Registry, error) {
	meta, err := jsonschema.CompileString("metacord://meta/analysis-type", registrationMetaSchema)
	if err != nil {
		return nil, fmt.Errorf("compile registration meta-schema: %w", err)
	}

	return &Registry{store: store, meta: meta}, nil
}

// Register validates schemaDoc against the registration meta-schema and
// creates a new version under name (current max + 1, starting at 1).
//
// fileTypes carries the version's file-type allow-list: nil for "not
// declared", empty for "explicitly unrestricted".
func (r *Registry) Register(
	ctx context.Context,
	name string,
	schemaDoc json.RawMessage,
	fileTypes []string,
) (*AnalysisType, error) {
	if err := ValidateTypeName(name); err != nil {
		return nil, err
	}

	var doc interface{}
	if err := json.Unmarshal(schemaDoc, &doc); err != nil {
		return nil, fmt.Errorf("%w: not valid JSON: %s", ErrInvalidSchema, err.Error())
	}

	if err := r.meta.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSchema, joinViolations(ViolationMessages(err)))
	}

	if err := checkReservedProperties(doc); err != nil {
		return nil, err
	}

	// Compile to catch schemas that satisfy the meta-schema shape but are
	// not themselves valid JSON Schema (bad regex patterns, bad refs, ...).
	if _, err := CompileSchema("metacord://types/"+name, schemaDoc); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSchema, err.Error())
	}

	analysisType := &AnalysisType{
		Name:      name,
		Schema:    schemaDoc,
		FileTypes: fileTypes,
	}

	if err := r.store.InsertVersion(ctx, analysisType); err != nil {
		return nil, fmt.Errorf("register analysis type %q: %w", name, err)
	}

	return analysisType, nil
}

// Resolve returns the analysis type for name+version. A version <= 0 means
// "latest".
//
// When the exact version is missing, the error distinguishes "name never
// registered" from "version too high" by reporting the latest version that
// does exist.
func (r *Registry) Resolve(ctx context.Context, name string, version int) (*AnalysisType, error) {
	if err := ValidateTypeName(name); err != nil {
		return nil, err
	}

	if version <= 0 {
		latest, err := r.store.LatestVersion(ctx, name)
		if err != nil {
			if errors.Is(err, ErrTypeNotFound) {
				return nil, fmt.Errorf("%w: analysis type %q is not registered", ErrTypeNotFound, name)
			}

			return nil, err
		}

		return latest, nil
	}

	resolved, err := r.store.GetVersion(ctx, name, version)
	if err == nil {
		return resolved, nil
	}

	if !errors.Is(err, ErrTypeNotFound) {
		return nil, err
	}

	latest, latestErr := r.store.LatestVersion(ctx, name)
	if latestErr != nil {
		return nil, fmt.Errorf("%w: analysis type %q is not registered", ErrTypeNotFound, name)
	}

	return nil, fmt.Errorf("%w: analysis type %q has no version %d (latest is %d)",
		ErrTypeNotFound, name, version, latest.Version)
}

// ResolveID resolves a canonical "name:version" identifier.
func (r *Registry) ResolveID(ctx context.Context, id string) (*AnalysisType, error) {
	name, version, err := ParseTypeID(id)
	if err != nil {
		return nil, err
	}

	return r.Resolve(ctx, name, version)
}

// Latest returns the highest registered version of name.
func (r *Registry) Latest(ctx context.Context, name string) (*AnalysisType, error) {
	return r.Resolve(ctx, name, 0)
}

// List returns a page of registered analysis types.
func (r *Registry) List(ctx context.Context, filter ListFilter) (*Page, error) {
	return r.store.List(ctx, filter)
}

// EffectiveFileTypes computes the allow-list in force for a resolved version.
//
// If the version declares a list (even an empty one), that declaration wins:
// an explicitly empty list means "no restriction". Otherwise the union of
// lists declared by earlier versions of the same name applies, so schema
// evolution does not strand files accepted under older rules.
//
// The returned slice is sorted and de-duplicated; an empty result means no
// restriction applies.
func (r *Registry) EffectiveFileTypes(ctx context.Context, t *AnalysisType) ([]string, error) {
	if t.DeclaresFileTypes() {
		return normalizeFileTypes(t.FileTypes), nil
	}

	versions, err := r.store.ListVersions(ctx, t.Name)
	if err != nil {
		return nil, fmt.Errorf("list versions of %q: %w", t.Name, err)
	}

	var union []string

	for _, v := range versions {
		if v.Version >= t.Version || !v.DeclaresFileTypes() {
			continue
		}

		union = append(union, v.FileTypes...)
	}

	return normalizeFileTypes(union), nil
}

// CompileSchema compiles a JSON Schema document under the given resource URL.
// The third-party compiler's error is returned as-is for wrapping by callers;
// no caller relies on its concrete type.
func CompileSchema(url string, doc json.RawMessage) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7

	if err := compiler.AddResource(url, bytes.NewReader(doc)); err != nil {
		return nil, err
	}

	return compiler.Compile(url)
}

// ViolationMessages flattens a JSON-Schema validation error into
// human-readable per-violation messages. Any non-validation error is
// reported as a single message.
//
// This is the only place the third-party library's error type is inspected;
// everything downstream works with plain messages and our own sentinels.
func ViolationMessages(err error) []string {
	var validationErr *jsonschema.ValidationError
	if !errors.As(err, &validationErr) {
		return []string{err.Error()}
	}

	basic := validationErr.BasicOutput()

	var messages []string

	for _, unit := range basic.Errors {
		if unit.Error == "" {
			continue
		}

		location := unit.InstanceLocation
		if location == "" {
			location = "/"
		}

		messages = append(messages, fmt.Sprintf("%s: %s", location, unit.Error))
	}

	if len(messages) == 0 {
		messages = []string{validationErr.Error()}
	}

	return messages
}

// joinViolations renders an aggregated, comma-joined violation message.
func joinViolations(messages []string) string {
	return strings.Join(messages, ", ")
}

// checkReservedProperties rejects schemas that redefine engine-owned payload
// fields.
func checkReservedProperties(doc interface{}) error {
	root, ok := doc.(map[string]interface{})
	if !ok {
		return fmt.Errorf("%w: schema document must be a JSON object", ErrInvalidSchema)
	}

	props, ok := root["properties"].(map[string]interface{})
	if !ok {
		return nil // meta-schema already rejects this shape
	}

	for _, reserved := range reservedProperties {
		if _, found := props[reserved]; found {
			return fmt.Errorf("%w: %q", ErrReservedProperty, reserved)
		}
	}

	return nil
}

// normalizeFileTypes sorts and de-duplicates an allow-list.
func normalizeFileTypes(fileTypes []string) []string {
	if len(fileTypes) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(fileTypes))
	out := make([]string, 0, len(fileTypes))

	for _, ft := range fileTypes {
		if _, dup := seen[ft]; dup {
			continue
		}

		seen[ft] = struct{}{}

		out = append(out, ft)
	}

	sort.Strings(out)

	return out
}
