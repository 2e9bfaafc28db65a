// Package identifier: collision-aware resolution of analysis IDs and
// corruption-checked resolution of authority-derived business-key IDs.
package identifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Sentinel errors for identifier resolution.
var (
	// ErrAnalysisIDCollision is returned when a candidate analysis ID is
	// already committed and collisions are disallowed.
	ErrAnalysisIDCollision = errors.New("analysis ID collision")

	// ErrIDCorrupted is returned when a caller-supplied business-key ID
	// disagrees with the freshly derived authority ID. The stored graph is
	// never silently overwritten with a conflicting identifier.
	ErrIDCorrupted = errors.New("supplied ID disagrees with derived ID")
)

// CommittedIDStore records analysis IDs that are durably reserved.
//
// A committed ID is observable by concurrent callers as "exists"; a merely
// proposed ID (computed but not yet persisted) is not. Commit must be atomic
// (unique-constraint-backed): of two concurrent writers committing the same
// ID, exactly one succeeds and the other observes ErrAnalysisIDCollision.
type CommittedIDStore interface {
	// AnalysisIDExists reports whether the ID is committed.
	AnalysisIDExists(ctx context.Context, analysisID string) (bool, error)

	// CommitAnalysisID durably reserves the ID.
	// Returns ErrAnalysisIDCollision if it is already committed.
	CommitAnalysisID(ctx context.Context, analysisID string) error
}

// Resolver implements the identifier contracts: the analysis-ID decision
// table and the corruption-checked business-key pipeline.
type Resolver struct {
	authority Authority
	committed CommittedIDStore
}

// NewResolver creates a Resolver backed by the given authority and committed
// ID store.
func NewResolver(authority Authority, committed CommittedIDStore) *Resolver {
	return &Resolver{authority: authority, committed: committed}
}

// ResolveAnalysisID resolves a candidate analysis ID without committing it.
//
// Decision table:
//
//	candidate empty                          -> mint a fresh random ID (uncommitted)
//	candidate set, not committed             -> use it (uncommitted)
//	candidate set, committed, !ignore        -> ErrAnalysisIDCollision
//	candidate set, committed, ignore         -> reuse it
func (r *Resolver) ResolveAnalysisID(ctx context.Context, candidate string, ignoreCollisions bool) (string, error) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return uuid.NewString(), nil
	}

	exists, err := r.committed.AnalysisIDExists(ctx, candidate)
	if err != nil {
		return "", fmt.Errorf("check analysis ID %q: %w", candidate, err)
	}

	if exists && !ignoreCollisions {
		return "", fmt.Errorf("%w: %q is already committed", ErrAnalysisIDCollision, candidate)
	}

	return candidate, nil
}

// ResolveAndCommitAnalysisID resolves the candidate and durably reserves the
// result, so a concurrent caller observes it as committed.
//
// The commit is the single point of cross-request consistency: even when the
// pre-check saw no collision, the unique-constraint-backed commit can still
// report one (a concurrent writer won the race). Committing an
// already-committed ID is a no-op only when ignoreCollisions permits it.
func (r *Resolver) ResolveAndCommitAnalysisID(
	ctx context.Context,
	candidate string,
	ignoreCollisions bool,
) (string, error) {
	resolved, err := r.ResolveAnalysisID(ctx, candidate, ignoreCollisions)
	if err != nil {
		return "", err
	}

	if err := r.committed.CommitAnalysisID(ctx, resolved); err != nil {
		if errors.Is(err, ErrAnalysisIDCollision) && ignoreCollisions {
			return resolved, nil
		}

		if errors.Is(err, ErrAnalysisIDCollision) {
			return "", fmt.Errorf("%w: %q is already committed", ErrAnalysisIDCollision, resolved)
		}

		return "", fmt.Errorf("commit analysis ID %q: %w", resolved, err)
	}

	return resolved, nil
}

// ResolveDonorID derives the donor ID for the business key and checks it
// against a caller-supplied ID, if any.
func (r *Resolver) ResolveDonorID(ctx context.Context, supplied, submitterID, studyID string) (string, error) {
	derived, err := r.authority.CreateDonorID(ctx, submitterID, studyID)
	if err != nil {
		return "", fmt.Errorf("derive donor ID for %q: %w", submitterID, err)
	}

	return checkSupplied("donor", supplied, derived)
}

// ResolveSpecimenID derives the specimen ID for the business key and checks
// it against a caller-supplied ID, if any.
func (r *Resolver) ResolveSpecimenID(ctx context.Context, supplied, submitterID, studyID string) (string, error) {
	derived, err := r.authority.CreateSpecimenID(ctx, submitterID, studyID)
	if err != nil {
		return "", fmt.Errorf("derive specimen ID for %q: %w", submitterID, err)
	}

	return checkSupplied("specimen", supplied, derived)
}

// ResolveSampleID derives the sample ID for the business key and checks it
// against a caller-supplied ID, if any.
func (r *Resolver) ResolveSampleID(ctx context.Context, supplied, submitterID, studyID string) (string, error) {
	derived, err := r.authority.CreateSampleID(ctx, submitterID, studyID)
	if err != nil {
		return "", fmt.Errorf("derive sample ID for %q: %w", submitterID, err)
	}

	return checkSupplied("sample", supplied, derived)
}

// ResolveObjectID derives the stable file object ID for (analysisID,
// fileName) and checks it against a caller-supplied ID, if any.
func (r *Resolver) ResolveObjectID(ctx context.Context, supplied, analysisID, fileName string) (string, error) {
	derived, err := r.authority.ObjectID(ctx, analysisID, fileName)
	if err != nil {
		return "", fmt.Errorf("derive object ID for %q: %w", fileName, err)
	}

	return checkSupplied("file", supplied, derived)
}

// checkSupplied enforces the corruption rule: a non-blank caller-supplied ID
// that disagrees with the freshly derived one is an error, never an
// overwrite.
func checkSupplied(kind, supplied, derived string) (string, error) {
	supplied = strings.TrimSpace(supplied)
	if supplied != "" && supplied != derived {
		return "", fmt.Errorf("%w: %s ID %q, derived %q", ErrIDCorrupted, kind, supplied, derived)
	}

	return derived, nil
}
