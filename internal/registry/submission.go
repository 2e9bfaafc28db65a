// Package registry: the submission engine.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/metacord-io/metacord/internal/aliasing"
	"github.com/metacord-io/metacord/internal/identifier"
)

// Sentinel errors for submission-level study checks.
var (
	// ErrStudyIDMissing is returned when the payload omits studyId.
	ErrStudyIDMissing = errors.New("payload is missing studyId")

	// ErrStudyIDMismatch is returned when the payload studyId disagrees with
	// the study the submission was addressed to.
	ErrStudyIDMismatch = errors.New("payload studyId does not match the target study")
)

// SubmissionService orchestrates one submission end to end: study
// resolution and existence, payload validation, identifier resolution and
// commitment, composite-entity construction, and atomic persistence of the
// analysis graph in UNPUBLISHED state.
//
// The pipeline is strictly ordered and fail-fast: no identifier is committed
// before the payload has passed validation, and nothing is persisted before
// the analysis ID is committed.
type SubmissionService struct {
	studies   StudyStore
	analyses  AnalysisStore
	validator *Validator
	ids       *identifier.Resolver
	aliases   *aliasing.Resolver
	events    EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewSubmissionService creates a SubmissionService.
func NewSubmissionService(
	studies StudyStore,
	analyses AnalysisStore,
	validator *Validator,
	ids *identifier.Resolver,
	aliases *aliasing.Resolver,
	events EventPublisher,
	logger *slog.Logger,
) *SubmissionService {
	if logger == nil {
		logger = slog.Default()
	}

	if events == nil {
		events = noopEvents{}
	}

	return &SubmissionService{
		studies:   studies,
		analyses:  analyses,
		validator: validator,
		ids:       ids,
		aliases:   aliases,
		events:    events,
		logger:    logger,
		now:       time.Now,
	}
}

// Submit processes one raw submission payload addressed to a study and
// returns the analysis ID of the created record.
//
// Pipeline order:
//  1. resolve study aliases and verify the study exists
//  2. validate the payload (structure, analysis-type schema, file types)
//  3. cross-check the payload studyId against the target study
//  4. resolve and commit the analysis ID (collision-aware)
//  5. resolve entity and object identifiers, build the composite graph
//  6. persist atomically in UNPUBLISHED state
func (s *SubmissionService) Submit(
	ctx context.Context,
	studyID string,
	raw []byte,
	ignoreAnalysisIDCollisions bool,
) (string, error) {
	studyID = s.aliases.Resolve(studyID)

	exists, err := s.studies.StudyExists(ctx, studyID)
	if err != nil {
		return "", fmt.Errorf("check study %q: %w", studyID, err)
	}

	if !exists {
		return "", fmt.Errorf("%w: %q", ErrStudyNotFound, studyID)
	}

	analysisType, err := s.validator.Validate(ctx, raw)
	if err != nil {
		return "", err
	}

	payload, err := ParsePayload(raw)
	if err != nil {
		return "", err
	}

	if err := s.checkStudyID(studyID, payload.StudyID); err != nil {
		return "", err
	}

	analysisID, err := s.ids.ResolveAndCommitAnalysisID(ctx, payload.AnalysisID, ignoreAnalysisIDCollisions)
	if err != nil {
		return "", err
	}

	analysis, err := s.buildAnalysis(ctx, studyID, analysisID, analysisType.Name, analysisType.Version, payload)
	if err != nil {
		return "", err
	}

	if err := s.analyses.CreateAnalysis(ctx, analysis); err != nil {
		return "", fmt.Errorf("persist analysis %q: %w", analysisID, err)
	}

	s.logger.InfoContext(ctx, "Analysis created",
		slog.String("analysis_id", analysisID),
		slog.String("study_id", studyID),
		slog.String("analysis_type", analysisType.ID()),
		slog.Int("files", len(analysis.Files)),
		slog.Int("samples", len(analysis.Samples)))

	s.emit(ctx, studyID, analysisID, StateUnpublished, analysis.CreatedAt)

	return analysisID, nil
}

// checkStudyID enforces presence and agreement of the payload studyId with
// the study the submission was addressed to. The payload value goes through
// alias resolution too, so a legacy code in the body matches its canonical
// target study.
func (s *SubmissionService) checkStudyID(target, declared string) error {
	if declared == "" {
		return ErrStudyIDMissing
	}

	if s.aliases.Resolve(declared) != target {
		return fmt.Errorf("%w: payload declares %q, target is %q", ErrStudyIDMismatch, declared, target)
	}

	return nil
}

// buildAnalysis resolves every entity and object identifier and assembles the
// domain analysis in its creation state.
func (s *SubmissionService) buildAnalysis(
	ctx context.Context,
	studyID, analysisID, typeName string,
	typeVersion int,
	payload *Payload,
) (*Analysis, error) {
	samples, err := s.buildSamples(ctx, studyID, payload.Samples)
	if err != nil {
		return nil, err
	}

	files, err := s.buildFiles(ctx, studyID, analysisID, payload.Files)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()

	return &Analysis{
		AnalysisID:  analysisID,
		StudyID:     studyID,
		State:       StateUnpublished,
		TypeName:    typeName,
		TypeVersion: typeVersion,
		Experiment:  payload.Experiment,
		Samples:     samples,
		Files:       files,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// buildSamples runs the donor -> specimen -> sample resolve pipeline for each
// payload sample. Each step derives the system ID from the business key and
// rejects a disagreeing caller-supplied ID; no step mutates its input.
func (s *SubmissionService) buildSamples(
	ctx context.Context,
	studyID string,
	payloadSamples []PayloadSample,
) ([]CompositeSample, error) {
	samples := make([]CompositeSample, 0, len(payloadSamples))

	for i, ps := range payloadSamples {
		donorID, err := s.ids.ResolveDonorID(ctx, ps.Donor.DonorID, ps.Donor.SubmitterDonorID, studyID)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}

		specimenID, err := s.ids.ResolveSpecimenID(ctx, ps.Specimen.SpecimenID, ps.Specimen.SubmitterSpecimenID, studyID)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}

		sampleID, err := s.ids.ResolveSampleID(ctx, ps.SampleID, ps.SubmitterSampleID, studyID)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}

		composite := CompositeSample{
			Donor: Donor{
				DonorID:          donorID,
				StudyID:          studyID,
				SubmitterDonorID: ps.Donor.SubmitterDonorID,
				Gender:           ps.Donor.Gender,
				Info:             ps.Donor.Info,
			},
			Specimen: Specimen{
				SpecimenID:          specimenID,
				DonorID:             donorID,
				StudyID:             studyID,
				SubmitterSpecimenID: ps.Specimen.SubmitterSpecimenID,
				SpecimenType:        ps.Specimen.SpecimenType,
				TissueSource:        ps.Specimen.TissueSource,
				Info:                ps.Specimen.Info,
			},
			Sample: Sample{
				SampleID:          sampleID,
				SpecimenID:        specimenID,
				StudyID:           studyID,
				SubmitterSampleID: ps.SubmitterSampleID,
				SampleType:        ps.SampleType,
				Info:              ps.Info,
			},
		}

		if err := composite.Validate(); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}

		samples = append(samples, composite)
	}

	return samples, nil
}

// buildFiles validates each declared file and assigns its stable object ID.
func (s *SubmissionService) buildFiles(
	ctx context.Context,
	studyID, analysisID string,
	payloadFiles []PayloadFile,
) ([]File, error) {
	files := make([]File, 0, len(payloadFiles))

	for _, pf := range payloadFiles {
		file := File{
			AnalysisID: analysisID,
			StudyID:    studyID,
			FileName:   pf.FileName,
			FileType:   pf.FileType,
			FileSize:   pf.FileSize,
			FileMD5:    pf.FileMD5,
			FileAccess: FileAccess(pf.FileAccess),
			DataType:   pf.DataType,
			Info:       pf.Info,
		}

		if err := file.Validate(); err != nil {
			return nil, fmt.Errorf("file %q: %w", pf.FileName, err)
		}

		objectID, err := s.ids.ResolveObjectID(ctx, pf.ObjectID, analysisID, pf.FileName)
		if err != nil {
			return nil, err
		}

		file.ObjectID = objectID
		files = append(files, file)
	}

	return files, nil
}

// emit publishes a state-change event. Failures are logged and swallowed; the
// submission has already committed.
func (s *SubmissionService) emit(ctx context.Context, studyID, analysisID string, state AnalysisState, at time.Time) {
	event := StateChangeEvent{
		StudyID:    studyID,
		AnalysisID: analysisID,
		State:      state,
		OccurredAt: at,
	}

	if err := s.events.PublishStateChange(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish state-change event",
			slog.String("analysis_id", analysisID),
			slog.String("state", state.String()),
			slog.String("error", err.Error()))
	}
}

// noopEvents is the default publisher when none is configured.
type noopEvents struct{}

func (noopEvents) PublishStateChange(context.Context, StateChangeEvent) error { return nil }
