// Package publish: the reconciliation algorithm run before an analysis may
// transition to PUBLISHED.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/metacord-io/metacord/internal/registry"
)

// Sentinel errors for reconciliation verdicts. Mutually exclusive per the
// dominance order: existence > size > checksum.
var (
	// ErrMissingStorageObjects is returned when at least one declared file is
	// absent from storage. Dominates every other check.
	ErrMissingStorageObjects = errors.New("declared files missing from storage")

	// ErrMismatchingSizes is returned when every file exists but at least one
	// storage-reported size disagrees with the declared size.
	ErrMismatchingSizes = errors.New("declared file sizes mismatch storage")

	// ErrMismatchingChecksums is returned when existence and sizes check out
	// but at least one checksum disagrees (or is undefined while
	// ignoreUndefinedMd5 is false).
	ErrMismatchingChecksums = errors.New("declared file checksums mismatch storage")
)

// Reconciler cross-checks declared file metadata against the storage
// service's report and produces a single pass/fail verdict with a classified
// failure reason.
type Reconciler struct {
	gateway Gateway
	logger  *slog.Logger
}

// NewReconciler creates a Reconciler over the given gateway.
func NewReconciler(gateway Gateway, logger *slog.Logger) *Reconciler {
	return &Reconciler{gateway: gateway, logger: logger}
}

// Reconcile verifies every declared file against storage.
//
// The algorithm queries existence for every file first; if any is absent it
// fails with ErrMissingStorageObjects listing the missing set and runs no
// further checks (existence dominates). Otherwise it fetches the storage
// spec for every file and compares sizes; any mismatch fails with
// ErrMismatchingSizes before checksums are considered. Only then are
// checksums compared: a checksum undefined on either side is skipped when
// ignoreUndefinedMd5 is true and treated as a mismatch when false.
//
// Queries run sequentially per file, but classification is a deterministic
// post-hoc aggregation: offending object IDs are collected across all files
// and sorted, so the verdict is independent of query order. Gateway
// transport failures abort reconciliation with ErrStorageService; they are
// never classified as a business failure.
func (r *Reconciler) Reconcile(ctx context.Context, files []registry.File, ignoreUndefinedMd5 bool) error {
	if len(files) == 0 {
		return registry.ErrAnalysisMissingFiles
	}

	missing, err := r.findMissing(ctx, files)
	if err != nil {
		return err
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: [%s]", ErrMissingStorageObjects, strings.Join(missing, ", "))
	}

	specs, err := r.fetchSpecs(ctx, files)
	if err != nil {
		return err
	}

	var sizeMismatches, checksumMismatches []string

	for _, file := range files {
		spec := specs[file.ObjectID]

		if file.FileSize != spec.FileSize {
			sizeMismatches = append(sizeMismatches,
				fmt.Sprintf("%s (declared %d, storage %d)", file.ObjectID, file.FileSize, spec.FileSize))

			continue
		}

		if !file.HasDefinedMD5() || spec.FileMD5 == "" {
			if !ignoreUndefinedMd5 {
				checksumMismatches = append(checksumMismatches,
					fmt.Sprintf("%s (undefined checksum)", file.ObjectID))
			}

			continue
		}

		if !strings.EqualFold(file.FileMD5, spec.FileMD5) {
			checksumMismatches = append(checksumMismatches,
				fmt.Sprintf("%s (declared %s, storage %s)", file.ObjectID, file.FileMD5, spec.FileMD5))
		}
	}

	// Size mismatches dominate checksum mismatches; the caller never gets a
	// checksum complaint while a cheaper, more catastrophic failure exists.
	if len(sizeMismatches) > 0 {
		sort.Strings(sizeMismatches)

		return fmt.Errorf("%w: [%s]", ErrMismatchingSizes, strings.Join(sizeMismatches, ", "))
	}

	if len(checksumMismatches) > 0 {
		sort.Strings(checksumMismatches)

		return fmt.Errorf("%w: [%s]", ErrMismatchingChecksums, strings.Join(checksumMismatches, ", "))
	}

	r.logger.Debug("Reconciliation passed",
		slog.Int("files", len(files)),
		slog.Bool("ignore_undefined_md5", ignoreUndefinedMd5),
	)

	return nil
}

// findMissing checks existence of every file and returns the sorted missing
// object IDs.
func (r *Reconciler) findMissing(ctx context.Context, files []registry.File) ([]string, error) {
	var missing []string

	for _, file := range files {
		exists, err := r.gateway.Exists(ctx, file.ObjectID)
		if err != nil {
			return nil, fmt.Errorf("checking object %s: %w", file.ObjectID, err)
		}

		if !exists {
			missing = append(missing, file.ObjectID)
		}
	}

	sort.Strings(missing)

	return missing, nil
}

// fetchSpecs downloads the storage spec of every file, keyed by object ID.
func (r *Reconciler) fetchSpecs(ctx context.Context, files []registry.File) (map[string]*StorageSpec, error) {
	specs := make(map[string]*StorageSpec, len(files))

	for _, file := range files {
		spec, err := r.gateway.DownloadSpec(ctx, file.ObjectID)
		if err != nil {
			// Existence was just verified; a miss here is a race with a
			// concurrent deletion and classified as missing.
			if errors.Is(err, ErrObjectNotFound) {
				return nil, fmt.Errorf("%w: [%s]", ErrMissingStorageObjects, file.ObjectID)
			}

			return nil, fmt.Errorf("fetching spec for %s: %w", file.ObjectID, err)
		}

		specs[file.ObjectID] = spec
	}

	return specs, nil
}
