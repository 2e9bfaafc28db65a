// Package registry provides the domain models for genomic analysis metadata
// submissions: the analysis record, its file set, the donor/specimen/sample
// composite tree, and the append-only state-change history.
//
// These are pure domain models without JSON tags. The API layer defines
// request/response DTOs and maps to these types, keeping the wire contract
// decoupled from domain logic.
package registry

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

type (
	// AnalysisState represents the lifecycle state of an analysis.
	//
	// Valid states:
	//   - UNPUBLISHED: initial state after submission; metadata stored but files unverified
	//   - PUBLISHED: every declared file verified present and correct in object storage
	//   - SUPPRESSED: withdrawn; terminal, no outgoing transitions
	AnalysisState string

	// FileAccess represents the access tier of a file.
	FileAccess string

	// Analysis is one submitted, versioned metadata record describing a set of
	// files and their provenance. Created in UNPUBLISHED state; after creation
	// the only permitted mutation path is a lifecycle state transition.
	Analysis struct {
		// AnalysisID uniquely identifies this analysis. Either client-supplied
		// (subject to collision rules) or minted by the identifier resolver.
		AnalysisID string

		// StudyID is the owning study.
		StudyID string

		// State is the current lifecycle state.
		State AnalysisState

		// TypeName and TypeVersion reference the analysis type (versioned JSON
		// Schema) this analysis was validated against.
		TypeName    string
		TypeVersion int

		// Experiment holds the free-form experiment-type-specific extension
		// data validated by the analysis-type schema.
		Experiment map[string]interface{}

		// Samples is the donor/specimen/sample composite tree.
		Samples []CompositeSample

		// Files are the declared file entities owned by this analysis.
		Files []File

		CreatedAt time.Time
		UpdatedAt time.Time

		// PublishedAt is refreshed on every transition into PUBLISHED.
		PublishedAt *time.Time

		// FirstPublishedAt is set exactly once, on the first
		// UNPUBLISHED -> PUBLISHED transition, and never overwritten.
		FirstPublishedAt *time.Time
	}

	// AnalysisStateChange is one immutable record appended per lifecycle
	// transition. Records are ordered by UpdatedAt ascending and are never
	// deleted or mutated.
	AnalysisStateChange struct {
		AnalysisID   string
		InitialState AnalysisState
		UpdatedState AnalysisState
		UpdatedAt    time.Time
	}

	// File is a declared file entity owned by exactly one analysis.
	// ObjectID is derived deterministically from (analysisID, fileName) by the
	// identifier resolver, assigned once at creation and never reassigned.
	File struct {
		ObjectID   string
		AnalysisID string
		StudyID    string
		FileName   string
		FileType   string
		FileSize   int64
		FileMD5    string
		FileAccess FileAccess
		DataType   string
		Info       map[string]interface{}
	}

	// Donor is the root of the composite entity tree. Business key:
	// (studyID, submitterDonorID).
	Donor struct {
		DonorID          string
		StudyID          string
		SubmitterDonorID string
		Gender           string
		Info             map[string]interface{}
	}

	// Specimen belongs to a donor. Business key: (studyID, submitterSpecimenID).
	Specimen struct {
		SpecimenID          string
		DonorID             string
		StudyID             string
		SubmitterSpecimenID string
		SpecimenType        string
		TissueSource        string
		Info                map[string]interface{}
	}

	// Sample belongs to a specimen. Business key: (studyID, submitterSampleID).
	Sample struct {
		SampleID          string
		SpecimenID        string
		StudyID           string
		SubmitterSampleID string
		SampleType        string
		Info              map[string]interface{}
	}

	// CompositeSample is a sample together with its parent specimen and donor.
	// Built by an explicit resolve pipeline (donor -> specimen -> sample), each
	// step producing a new value rather than mutating a shared graph.
	CompositeSample struct {
		Sample   Sample
		Specimen Specimen
		Donor    Donor
	}

	// Study is the tenant boundary every analysis belongs to.
	Study struct {
		StudyID      string
		Name         string
		Description  string
		Organization string
		Info         map[string]interface{}
		CreatedAt    time.Time
	}
)

const (
	// StateUnpublished is the initial state of every analysis.
	StateUnpublished AnalysisState = "UNPUBLISHED"

	// StatePublished means all declared files were verified in object storage.
	StatePublished AnalysisState = "PUBLISHED"

	// StateSuppressed marks an analysis as withdrawn. Terminal.
	StateSuppressed AnalysisState = "SUPPRESSED"
)

const (
	// FileAccessOpen marks a file as openly accessible.
	FileAccessOpen FileAccess = "open"

	// FileAccessControlled marks a file as requiring access approval.
	FileAccessControlled FileAccess = "controlled"
)

// md5Pattern matches a 32-character hexadecimal MD5 digest.
// Compiled once at package initialization.
var md5Pattern = regexp.MustCompile(`^[a-fA-F0-9]{32}$`)

// Sentinel errors for domain validation of submitted entities.
var (
	ErrFileNameEmpty     = errors.New("fileName cannot be empty")
	ErrFileSizeNegative  = errors.New("fileSize cannot be negative")
	ErrFileMD5Invalid    = errors.New("fileMd5sum must be a 32-character hex digest")
	ErrFileAccessInvalid = errors.New("fileAccess must be one of: open, controlled")
	ErrSubmitterIDEmpty  = errors.New("submitter ID cannot be empty")
)

// ValidStates returns all valid analysis lifecycle states.
func ValidStates() []AnalysisState {
	return []AnalysisState{StateUnpublished, StatePublished, StateSuppressed}
}

// IsValid checks if the AnalysisState is a known lifecycle state.
func (s AnalysisState) IsValid() bool {
	switch s {
	case StateUnpublished, StatePublished, StateSuppressed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if the state permits no outgoing transitions.
// Only SUPPRESSED is terminal.
func (s AnalysisState) IsTerminal() bool {
	return s == StateSuppressed
}

// String returns the string representation of the state.
func (s AnalysisState) String() string {
	return string(s)
}

// IsValid checks if the FileAccess is a known access tier.
func (fa FileAccess) IsValid() bool {
	return fa == FileAccessOpen || fa == FileAccessControlled
}

// Validate performs domain validation on a declared file.
//
// Validation rules:
//   - fileName: required
//   - fileSize: >= 0
//   - fileMd5sum: optional, but must be a valid MD5 hex digest when present
//   - fileAccess: must be a valid access tier
//
// An empty fileMd5sum is legal at submission time; publish-time reconciliation
// decides whether an undefined checksum is acceptable (ignoreUndefinedMd5).
func (f *File) Validate() error {
	if strings.TrimSpace(f.FileName) == "" {
		return ErrFileNameEmpty
	}

	if f.FileSize < 0 {
		return fmt.Errorf("%w: got %d", ErrFileSizeNegative, f.FileSize)
	}

	if f.FileMD5 != "" && !md5Pattern.MatchString(f.FileMD5) {
		return fmt.Errorf("%w: got %q", ErrFileMD5Invalid, f.FileMD5)
	}

	if !f.FileAccess.IsValid() {
		return fmt.Errorf("%w: got %q", ErrFileAccessInvalid, f.FileAccess)
	}

	return nil
}

// HasDefinedMD5 reports whether the file declares a checksum.
func (f *File) HasDefinedMD5() bool {
	return f.FileMD5 != ""
}

// Validate checks the business keys of the composite tree are present.
// System IDs are resolved later by the identifier resolver; only the
// submitter-facing identity is required at parse time.
func (cs *CompositeSample) Validate() error {
	if strings.TrimSpace(cs.Donor.SubmitterDonorID) == "" {
		return fmt.Errorf("%w: submitterDonorId", ErrSubmitterIDEmpty)
	}

	if strings.TrimSpace(cs.Specimen.SubmitterSpecimenID) == "" {
		return fmt.Errorf("%w: submitterSpecimenId", ErrSubmitterIDEmpty)
	}

	if strings.TrimSpace(cs.Sample.SubmitterSampleID) == "" {
		return fmt.Errorf("%w: submitterSampleId", ErrSubmitterIDEmpty)
	}

	return nil
}
