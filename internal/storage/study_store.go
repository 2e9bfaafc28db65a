package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/metacord-io/metacord/internal/registry"
)

// ErrStudyStoreFailed is returned when a study persistence operation fails
// for infrastructure reasons.
var ErrStudyStoreFailed = errors.New("study storage failed")

// Compile-time interface assertion.
var _ registry.StudyStore = (*PersistentStudyStore)(nil)

// PersistentStudyStore implements registry.StudyStore with a PostgreSQL
// backend.
type PersistentStudyStore struct {
	conn *Connection
}

// NewPersistentStudyStore creates a PostgreSQL-backed study store.
func NewPersistentStudyStore(conn *Connection) (*PersistentStudyStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &PersistentStudyStore{conn: conn}, nil
}

// CreateStudy implements registry.StudyStore.
func (s *PersistentStudyStore) CreateStudy(ctx context.Context, study *registry.Study) error {
	infoJSON, err := toJSON(study.Info)
	if err != nil {
		return fmt.Errorf("%w: serialize study info: %w", ErrStudyStoreFailed, err)
	}

	createdAt := study.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO studies (study_id, name, description, organization, info, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		study.StudyID,
		study.Name,
		nullableString(study.Description),
		nullableString(study.Organization),
		infoJSON,
		createdAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %q", registry.ErrStudyAlreadyExists, study.StudyID)
		}

		return fmt.Errorf("%w: insert study %q: %w", ErrStudyStoreFailed, study.StudyID, err)
	}

	study.CreatedAt = createdAt

	return nil
}

// GetStudy implements registry.StudyStore.
func (s *PersistentStudyStore) GetStudy(ctx context.Context, studyID string) (*registry.Study, error) {
	var (
		study                     registry.Study
		description, organization sql.NullString
		infoJSON                  []byte
	)

	err := s.conn.QueryRowContext(ctx, `
		SELECT study_id, name, description, organization, info, created_at
		FROM studies
		WHERE study_id = $1`,
		studyID,
	).Scan(
		&study.StudyID,
		&study.Name,
		&description,
		&organization,
		&infoJSON,
		&study.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", registry.ErrStudyNotFound, studyID)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: load study %q: %w", ErrStudyStoreFailed, studyID, err)
	}

	study.Description = description.String
	study.Organization = organization.String

	if err := fromJSON(infoJSON, &study.Info); err != nil {
		return nil, fmt.Errorf("%w: parse study info: %w", ErrStudyStoreFailed, err)
	}

	return &study, nil
}

// StudyExists implements registry.StudyStore.
func (s *PersistentStudyStore) StudyExists(ctx context.Context, studyID string) (bool, error) {
	var exists bool

	err := s.conn.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM studies WHERE study_id = $1)`,
		studyID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%w: check study %q: %w", ErrStudyStoreFailed, studyID, err)
	}

	return exists, nil
}
