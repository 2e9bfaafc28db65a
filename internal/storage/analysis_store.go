package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/metacord-io/metacord/internal/identifier"
	"github.com/metacord-io/metacord/internal/registry"
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = pq.ErrorCode("23505")

// Sentinel errors for analysis storage operations.
var (
	// ErrAnalysisStoreFailed is returned when an analysis persistence
	// operation fails for infrastructure reasons.
	ErrAnalysisStoreFailed = errors.New("analysis storage failed")

	// Compile-time interface assertions. The analysis store doubles as the
	// committed-ID registry because both live behind the same unique
	// constraint surface.
	_ registry.AnalysisStore      = (*PersistentAnalysisStore)(nil)
	_ identifier.CommittedIDStore = (*PersistentAnalysisStore)(nil)
)

// PersistentAnalysisStore implements registry.AnalysisStore with a PostgreSQL
// backend.
//
// Guarantees:
//   - CreateAnalysis persists the analysis row, its files and the full
//     donor/specimen/sample tree in one transaction.
//   - Donors, specimens and samples are upserted by business key
//     (study_id + submitter ID); on a match the stored system ID wins and is
//     written back into the in-memory graph.
//   - UpdateState is guarded by the expected current state and appends one
//     state-change record in the same transaction.
type PersistentAnalysisStore struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPersistentAnalysisStore creates a PostgreSQL-backed analysis store.
func NewPersistentAnalysisStore(conn *Connection, logger *slog.Logger) (*PersistentAnalysisStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PersistentAnalysisStore{conn: conn, logger: logger}, nil
}

// CreateAnalysis implements registry.AnalysisStore.
func (s *PersistentAnalysisStore) CreateAnalysis(ctx context.Context, analysis *registry.Analysis) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %w", ErrAnalysisStoreFailed, err)
	}

	defer func() {
		_ = tx.Rollback() // Safe to call even after commit
	}()

	experimentJSON, err := toJSON(analysis.Experiment)
	if err != nil {
		return fmt.Errorf("%w: serialize experiment: %w", ErrAnalysisStoreFailed, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO analyses (
			analysis_id, study_id, state, type_name, type_version,
			experiment, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		analysis.AnalysisID,
		analysis.StudyID,
		analysis.State.String(),
		analysis.TypeName,
		analysis.TypeVersion,
		experimentJSON,
		analysis.CreatedAt,
		analysis.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %q", registry.ErrAnalysisAlreadyExists, analysis.AnalysisID)
		}

		return fmt.Errorf("%w: insert analysis %q: %w", ErrAnalysisStoreFailed, analysis.AnalysisID, err)
	}

	for i := range analysis.Samples {
		if err := s.upsertComposite(ctx, tx, &analysis.Samples[i]); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO analysis_samples (analysis_id, sample_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING`,
			analysis.AnalysisID, analysis.Samples[i].Sample.SampleID)
		if err != nil {
			return fmt.Errorf("%w: link sample %q: %w",
				ErrAnalysisStoreFailed, analysis.Samples[i].Sample.SampleID, err)
		}
	}

	for i := range analysis.Files {
		if err := s.insertFile(ctx, tx, &analysis.Files[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrAnalysisStoreFailed, err)
	}

	return nil
}

// upsertComposite upserts the donor, specimen and sample of one composite by
// business key. Stored system IDs win over freshly derived ones; winners are
// written back so parent references stay consistent down the tree.
func (s *PersistentAnalysisStore) upsertComposite(
	ctx context.Context,
	tx *sql.Tx,
	composite *registry.CompositeSample,
) error {
	donorInfo, err := toJSON(composite.Donor.Info)
	if err != nil {
		return fmt.Errorf("%w: serialize donor info: %w", ErrAnalysisStoreFailed, err)
	}

	var donorID string

	err = tx.QueryRowContext(ctx, `
		INSERT INTO donors (donor_id, study_id, submitter_donor_id, gender, info)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (study_id, submitter_donor_id)
		DO UPDATE SET gender = EXCLUDED.gender, info = EXCLUDED.info
		RETURNING donor_id`,
		composite.Donor.DonorID,
		composite.Donor.StudyID,
		composite.Donor.SubmitterDonorID,
		composite.Donor.Gender,
		donorInfo,
	).Scan(&donorID)
	if err != nil {
		return fmt.Errorf("%w: upsert donor %q: %w",
			ErrAnalysisStoreFailed, composite.Donor.SubmitterDonorID, err)
	}

	composite.Donor.DonorID = donorID
	composite.Specimen.DonorID = donorID

	specimenInfo, err := toJSON(composite.Specimen.Info)
	if err != nil {
		return fmt.Errorf("%w: serialize specimen info: %w", ErrAnalysisStoreFailed, err)
	}

	var specimenID string

	err = tx.QueryRowContext(ctx, `
		INSERT INTO specimens (
			specimen_id, donor_id, study_id, submitter_specimen_id,
			specimen_type, tissue_source, info
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (study_id, submitter_specimen_id)
		DO UPDATE SET
			specimen_type = EXCLUDED.specimen_type,
			tissue_source = EXCLUDED.tissue_source,
			info = EXCLUDED.info
		RETURNING specimen_id`,
		composite.Specimen.SpecimenID,
		composite.Specimen.DonorID,
		composite.Specimen.StudyID,
		composite.Specimen.SubmitterSpecimenID,
		composite.Specimen.SpecimenType,
		composite.Specimen.TissueSource,
		specimenInfo,
	).Scan(&specimenID)
	if err != nil {
		return fmt.Errorf("%w: upsert specimen %q: %w",
			ErrAnalysisStoreFailed, composite.Specimen.SubmitterSpecimenID, err)
	}

	composite.Specimen.SpecimenID = specimenID
	composite.Sample.SpecimenID = specimenID

	sampleInfo, err := toJSON(composite.Sample.Info)
	if err != nil {
		return fmt.Errorf("%w: serialize sample info: %w", ErrAnalysisStoreFailed, err)
	}

	var sampleID string

	err = tx.QueryRowContext(ctx, `
		INSERT INTO samples (sample_id, specimen_id, study_id, submitter_sample_id, sample_type, info)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (study_id, submitter_sample_id)
		DO UPDATE SET sample_type = EXCLUDED.sample_type, info = EXCLUDED.info
		RETURNING sample_id`,
		composite.Sample.SampleID,
		composite.Sample.SpecimenID,
		composite.Sample.StudyID,
		composite.Sample.SubmitterSampleID,
		composite.Sample.SampleType,
		sampleInfo,
	).Scan(&sampleID)
	if err != nil {
		return fmt.Errorf("%w: upsert sample %q: %w",
			ErrAnalysisStoreFailed, composite.Sample.SubmitterSampleID, err)
	}

	composite.Sample.SampleID = sampleID

	return nil
}

// insertFile persists one declared file entity.
func (s *PersistentAnalysisStore) insertFile(ctx context.Context, tx *sql.Tx, file *registry.File) error {
	fileInfo, err := toJSON(file.Info)
	if err != nil {
		return fmt.Errorf("%w: serialize file info: %w", ErrAnalysisStoreFailed, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO files (
			object_id, analysis_id, study_id, file_name, file_type,
			file_size, file_md5, file_access, data_type, info
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		file.ObjectID,
		file.AnalysisID,
		file.StudyID,
		file.FileName,
		file.FileType,
		file.FileSize,
		nullableString(file.FileMD5),
		string(file.FileAccess),
		nullableString(file.DataType),
		fileInfo,
	)
	if err != nil {
		return fmt.Errorf("%w: insert file %q: %w", ErrAnalysisStoreFailed, file.FileName, err)
	}

	return nil
}

// GetAnalysis implements registry.AnalysisStore.
func (s *PersistentAnalysisStore) GetAnalysis(ctx context.Context, analysisID string) (*registry.Analysis, error) {
	var (
		analysis       registry.Analysis
		state          string
		experimentJSON []byte
	)

	err := s.conn.QueryRowContext(ctx, `
		SELECT analysis_id, study_id, state, type_name, type_version,
		       experiment, created_at, updated_at, published_at, first_published_at
		FROM analyses
		WHERE analysis_id = $1`,
		analysisID,
	).Scan(
		&analysis.AnalysisID,
		&analysis.StudyID,
		&state,
		&analysis.TypeName,
		&analysis.TypeVersion,
		&experimentJSON,
		&analysis.CreatedAt,
		&analysis.UpdatedAt,
		&analysis.PublishedAt,
		&analysis.FirstPublishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", registry.ErrAnalysisNotFound, analysisID)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: load analysis %q: %w", ErrAnalysisStoreFailed, analysisID, err)
	}

	analysis.State = registry.AnalysisState(state)

	if err := fromJSON(experimentJSON, &analysis.Experiment); err != nil {
		return nil, fmt.Errorf("%w: parse experiment for %q: %w", ErrAnalysisStoreFailed, analysisID, err)
	}

	files, err := s.GetFiles(ctx, analysisID)
	if err != nil {
		return nil, err
	}

	analysis.Files = files

	samples, err := s.loadSamples(ctx, analysisID)
	if err != nil {
		return nil, err
	}

	analysis.Samples = samples

	return &analysis, nil
}

// loadSamples loads the composite tree via one joined query over the
// analysis-sample links.
func (s *PersistentAnalysisStore) loadSamples(ctx context.Context, analysisID string) ([]registry.CompositeSample, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT sa.sample_id, sa.specimen_id, sa.study_id, sa.submitter_sample_id, sa.sample_type, sa.info,
		       sp.specimen_id, sp.donor_id, sp.submitter_specimen_id, sp.specimen_type, sp.tissue_source, sp.info,
		       d.donor_id, d.submitter_donor_id, d.gender, d.info
		FROM analysis_samples links
		JOIN samples sa ON sa.sample_id = links.sample_id
		JOIN specimens sp ON sp.specimen_id = sa.specimen_id
		JOIN donors d ON d.donor_id = sp.donor_id
		WHERE links.analysis_id = $1
		ORDER BY sa.submitter_sample_id`,
		analysisID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: load samples for %q: %w", ErrAnalysisStoreFailed, analysisID, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var samples []registry.CompositeSample

	for rows.Next() {
		var (
			composite                           registry.CompositeSample
			sampleInfo, specimenInfo, donorInfo []byte
			tissueSource, gender                sql.NullString
		)

		err := rows.Scan(
			&composite.Sample.SampleID,
			&composite.Sample.SpecimenID,
			&composite.Sample.StudyID,
			&composite.Sample.SubmitterSampleID,
			&composite.Sample.SampleType,
			&sampleInfo,
			&composite.Specimen.SpecimenID,
			&composite.Specimen.DonorID,
			&composite.Specimen.SubmitterSpecimenID,
			&composite.Specimen.SpecimenType,
			&tissueSource,
			&specimenInfo,
			&composite.Donor.DonorID,
			&composite.Donor.SubmitterDonorID,
			&gender,
			&donorInfo,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: scan sample row: %w", ErrAnalysisStoreFailed, err)
		}

		composite.Specimen.StudyID = composite.Sample.StudyID
		composite.Specimen.TissueSource = tissueSource.String
		composite.Donor.StudyID = composite.Sample.StudyID
		composite.Donor.Gender = gender.String

		if err := fromJSON(sampleInfo, &composite.Sample.Info); err != nil {
			return nil, fmt.Errorf("%w: parse sample info: %w", ErrAnalysisStoreFailed, err)
		}

		if err := fromJSON(specimenInfo, &composite.Specimen.Info); err != nil {
			return nil, fmt.Errorf("%w: parse specimen info: %w", ErrAnalysisStoreFailed, err)
		}

		if err := fromJSON(donorInfo, &composite.Donor.Info); err != nil {
			return nil, fmt.Errorf("%w: parse donor info: %w", ErrAnalysisStoreFailed, err)
		}

		samples = append(samples, composite)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate sample rows: %w", ErrAnalysisStoreFailed, err)
	}

	return samples, nil
}

// GetAnalysisState implements registry.AnalysisStore.
func (s *PersistentAnalysisStore) GetAnalysisState(
	ctx context.Context,
	analysisID string,
) (registry.AnalysisState, string, error) {
	var (
		state   string
		studyID string
	)

	err := s.conn.QueryRowContext(ctx,
		`SELECT state, study_id FROM analyses WHERE analysis_id = $1`,
		analysisID,
	).Scan(&state, &studyID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", fmt.Errorf("%w: %q", registry.ErrAnalysisNotFound, analysisID)
	}

	if err != nil {
		return "", "", fmt.Errorf("%w: load state for %q: %w", ErrAnalysisStoreFailed, analysisID, err)
	}

	return registry.AnalysisState(state), studyID, nil
}

// UpdateState implements registry.AnalysisStore.
//
// The UPDATE is guarded by the expected current state, so a concurrent
// transition makes the guard fail and the caller observes ErrStateConflict
// instead of a lost update. publishedAt is refreshed on every transition into
// PUBLISHED; firstPublishedAt is set once via COALESCE and never overwritten.
func (s *PersistentAnalysisStore) UpdateState(
	ctx context.Context,
	analysisID string,
	from, to registry.AnalysisState,
	at time.Time,
) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %w", ErrAnalysisStoreFailed, err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `
		UPDATE analyses
		SET state = $1,
		    updated_at = $2,
		    published_at = CASE WHEN $1 = 'PUBLISHED' THEN $2 ELSE published_at END,
		    first_published_at = CASE
		        WHEN $1 = 'PUBLISHED' THEN COALESCE(first_published_at, $2)
		        ELSE first_published_at
		    END
		WHERE analysis_id = $3 AND state = $4`,
		to.String(), at, analysisID, from.String(),
	)
	if err != nil {
		return fmt.Errorf("%w: update state of %q: %w", ErrAnalysisStoreFailed, analysisID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %w", ErrAnalysisStoreFailed, err)
	}

	if affected == 0 {
		return s.classifyGuardFailure(ctx, analysisID, from)
	}

	record := registry.NextHistoryRecord(analysisID, from, to, at)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO analysis_state_changes (analysis_id, initial_state, updated_state, updated_at)
		VALUES ($1, $2, $3, $4)`,
		record.AnalysisID,
		record.InitialState.String(),
		record.UpdatedState.String(),
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: append state change for %q: %w", ErrAnalysisStoreFailed, analysisID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrAnalysisStoreFailed, err)
	}

	return nil
}

// classifyGuardFailure distinguishes "analysis gone" from "state moved" when
// the guarded UPDATE matched no row.
func (s *PersistentAnalysisStore) classifyGuardFailure(
	ctx context.Context,
	analysisID string,
	expected registry.AnalysisState,
) error {
	current, _, err := s.GetAnalysisState(ctx, analysisID)
	if err != nil {
		return err
	}

	return fmt.Errorf("%w: %q is %s, expected %s",
		registry.ErrStateConflict, analysisID, current, expected)
}

// GetStateHistory implements registry.AnalysisStore.
func (s *PersistentAnalysisStore) GetStateHistory(
	ctx context.Context,
	analysisID string,
) ([]registry.AnalysisStateChange, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT analysis_id, initial_state, updated_state, updated_at
		FROM analysis_state_changes
		WHERE analysis_id = $1
		ORDER BY updated_at ASC, id ASC`,
		analysisID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: load history for %q: %w", ErrAnalysisStoreFailed, analysisID, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	history := []registry.AnalysisStateChange{}

	for rows.Next() {
		var (
			change           registry.AnalysisStateChange
			initial, updated string
		)

		if err := rows.Scan(&change.AnalysisID, &initial, &updated, &change.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan history row: %w", ErrAnalysisStoreFailed, err)
		}

		change.InitialState = registry.AnalysisState(initial)
		change.UpdatedState = registry.AnalysisState(updated)

		history = append(history, change)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate history rows: %w", ErrAnalysisStoreFailed, err)
	}

	return history, nil
}

// GetFiles implements registry.AnalysisStore.
func (s *PersistentAnalysisStore) GetFiles(ctx context.Context, analysisID string) ([]registry.File, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT object_id, analysis_id, study_id, file_name, file_type,
		       file_size, file_md5, file_access, data_type, info
		FROM files
		WHERE analysis_id = $1
		ORDER BY file_name`,
		analysisID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: load files for %q: %w", ErrAnalysisStoreFailed, analysisID, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var files []registry.File

	for rows.Next() {
		var (
			file             registry.File
			md5Sum, dataType sql.NullString
			access           string
			infoJSON         []byte
		)

		err := rows.Scan(
			&file.ObjectID,
			&file.AnalysisID,
			&file.StudyID,
			&file.FileName,
			&file.FileType,
			&file.FileSize,
			&md5Sum,
			&access,
			&dataType,
			&infoJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: scan file row: %w", ErrAnalysisStoreFailed, err)
		}

		file.FileMD5 = md5Sum.String
		file.DataType = dataType.String
		file.FileAccess = registry.FileAccess(access)

		if err := fromJSON(infoJSON, &file.Info); err != nil {
			return nil, fmt.Errorf("%w: parse file info: %w", ErrAnalysisStoreFailed, err)
		}

		files = append(files, file)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate file rows: %w", ErrAnalysisStoreFailed, err)
	}

	return files, nil
}

// HealthCheck implements registry.AnalysisStore.
func (s *PersistentAnalysisStore) HealthCheck(ctx context.Context) error {
	if s.conn == nil {
		return ErrNoDatabaseConnection
	}

	return s.conn.HealthCheck(ctx)
}

// AnalysisIDExists implements identifier.CommittedIDStore.
func (s *PersistentAnalysisStore) AnalysisIDExists(ctx context.Context, analysisID string) (bool, error) {
	var exists bool

	err := s.conn.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM analysis_ids WHERE analysis_id = $1)`,
		analysisID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%w: check analysis ID %q: %w", ErrAnalysisStoreFailed, analysisID, err)
	}

	return exists, nil
}

// CommitAnalysisID implements identifier.CommittedIDStore.
//
// The unique constraint on analysis_ids is the atomicity point: of two
// concurrent writers committing the same ID, exactly one insert succeeds.
func (s *PersistentAnalysisStore) CommitAnalysisID(ctx context.Context, analysisID string) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO analysis_ids (analysis_id) VALUES ($1)`,
		analysisID,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %q", identifier.ErrAnalysisIDCollision, analysisID)
		}

		return fmt.Errorf("%w: commit analysis ID %q: %w", ErrAnalysisStoreFailed, analysisID, err)
	}

	return nil
}

// nullableString maps "" to NULL for optional text columns.
func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// toJSON serializes a map for JSONB storage. nil maps become empty objects so
// the column stays NOT NULL.
func toJSON(m map[string]interface{}) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}

	return json.Marshal(m)
}

// fromJSON parses a JSONB column, leaving the target nil for empty objects.
func fromJSON(data []byte, target *map[string]interface{}) error {
	if len(data) == 0 || string(data) == "{}" {
		return nil
	}

	return json.Unmarshal(data, target)
}
