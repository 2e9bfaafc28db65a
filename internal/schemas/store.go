// Package schemas: persistence interface for the versioned analysis-type store.
package schemas

import "context"

type (
	// ListFilter narrows a List query. Zero values mean "no filter".
	ListFilter struct {
		// Names restricts results to these analysis-type names.
		Names []string

		// Versions restricts results to these version numbers.
		Versions []int

		// HideSchema omits the schema document from results to save
		// bandwidth; only name/version/fileTypes metadata is returned.
		HideSchema bool

		// Offset and Limit control paging. Limit <= 0 means the store's
		// default page size.
		Offset int
		Limit  int
	}

	// Page is one page of analysis types plus the total match count.
	Page struct {
		Types  []*AnalysisType
		Total  int
		Offset int
		Limit  int
	}
)

// Store defines the append-only versioned persistence contract for analysis
// types. Implementations live in internal/storage.
type Store interface {
	// InsertVersion persists t with the next version for t.Name (current max
	// + 1, starting at 1) and writes the assigned version back into t.
	// The insert must be atomic: two concurrent registrations under the same
	// name must receive distinct versions.
	InsertVersion(ctx context.Context, t *AnalysisType) error

	// GetVersion returns the exact name+version, or ErrTypeNotFound.
	GetVersion(ctx context.Context, name string, version int) (*AnalysisType, error)

	// LatestVersion returns the highest version registered under name, or
	// ErrTypeNotFound if the name was never registered.
	LatestVersion(ctx context.Context, name string) (*AnalysisType, error)

	// ListVersions returns every version registered under name in ascending
	// version order. Returns an empty slice if the name was never registered.
	ListVersions(ctx context.Context, name string) ([]*AnalysisType, error)

	// List returns a page of analysis types matching the filter, ordered by
	// (name, version).
	List(ctx context.Context, filter ListFilter) (*Page, error)
}
