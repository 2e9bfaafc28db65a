package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/metacord-io/metacord/internal/schemas"
)

// insertVersionRetries bounds the optimistic retry loop when two concurrent
// registrations race for the same next version.
const insertVersionRetries = 3

// defaultPageLimit applies when a List filter does not set one.
const defaultPageLimit = 100

// ErrSchemaStoreFailed is returned when an analysis-type persistence
// operation fails for infrastructure reasons.
var ErrSchemaStoreFailed = errors.New("analysis type storage failed")

// Compile-time interface assertion.
var _ schemas.Store = (*PersistentSchemaStore)(nil)

// PersistentSchemaStore implements schemas.Store with a PostgreSQL backend.
//
// Versions are append-only: the (name, version) primary key makes every
// registered version immutable, and InsertVersion assigns max+1 under an
// optimistic retry loop so two concurrent registrations under the same name
// always receive distinct versions.
type PersistentSchemaStore struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPersistentSchemaStore creates a PostgreSQL-backed analysis-type store.
func NewPersistentSchemaStore(conn *Connection, logger *slog.Logger) (*PersistentSchemaStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PersistentSchemaStore{conn: conn, logger: logger}, nil
}

// InsertVersion implements schemas.Store.
//
// The next version is computed as max+1 in the INSERT itself. If a concurrent
// registration wins the race, the primary key rejects the duplicate and the
// insert is retried with a freshly computed version.
func (s *PersistentSchemaStore) InsertVersion(ctx context.Context, analysisType *schemas.AnalysisType) error {
	createdAt := analysisType.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	for attempt := 0; attempt < insertVersionRetries; attempt++ {
		var version int

		err := s.conn.QueryRowContext(ctx, `
			INSERT INTO analysis_types (name, version, schema, file_types, created_at)
			SELECT $1, COALESCE(MAX(version), 0) + 1, $2, $3, $4
			FROM analysis_types
			WHERE name = $1
			RETURNING version`,
			analysisType.Name,
			[]byte(analysisType.Schema),
			fileTypesArray(analysisType.FileTypes),
			createdAt,
		).Scan(&version)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				s.logger.DebugContext(ctx, "Version race on analysis type registration, retrying",
					slog.String("name", analysisType.Name),
					slog.Int("attempt", attempt+1))

				continue
			}

			return fmt.Errorf("%w: insert version of %q: %w", ErrSchemaStoreFailed, analysisType.Name, err)
		}

		analysisType.Version = version
		analysisType.CreatedAt = createdAt

		return nil
	}

	return fmt.Errorf("%w: version assignment for %q kept racing", ErrSchemaStoreFailed, analysisType.Name)
}

// GetVersion implements schemas.Store.
func (s *PersistentSchemaStore) GetVersion(ctx context.Context, name string, version int) (*schemas.AnalysisType, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT name, version, schema, file_types, created_at
		FROM analysis_types
		WHERE name = $1 AND version = $2`,
		name, version,
	)

	analysisType, err := scanAnalysisType(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s:%d", schemas.ErrTypeNotFound, name, version)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: load %s:%d: %w", ErrSchemaStoreFailed, name, version, err)
	}

	return analysisType, nil
}

// LatestVersion implements schemas.Store.
func (s *PersistentSchemaStore) LatestVersion(ctx context.Context, name string) (*schemas.AnalysisType, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT name, version, schema, file_types, created_at
		FROM analysis_types
		WHERE name = $1
		ORDER BY version DESC
		LIMIT 1`,
		name,
	)

	analysisType, err := scanAnalysisType(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", schemas.ErrTypeNotFound, name)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: load latest %q: %w", ErrSchemaStoreFailed, name, err)
	}

	return analysisType, nil
}

// ListVersions implements schemas.Store.
func (s *PersistentSchemaStore) ListVersions(ctx context.Context, name string) ([]*schemas.AnalysisType, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT name, version, schema, file_types, created_at
		FROM analysis_types
		WHERE name = $1
		ORDER BY version ASC`,
		name,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: list versions of %q: %w", ErrSchemaStoreFailed, name, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	types := []*schemas.AnalysisType{}

	for rows.Next() {
		analysisType, err := scanAnalysisType(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan analysis type: %w", ErrSchemaStoreFailed, err)
		}

		types = append(types, analysisType)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate analysis types: %w", ErrSchemaStoreFailed, err)
	}

	return types, nil
}

// List implements schemas.Store.
func (s *PersistentSchemaStore) List(ctx context.Context, filter schemas.ListFilter) (*schemas.Page, error) {
	where, args := buildListFilter(filter)

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}

	var total int

	countQuery := "SELECT COUNT(*) FROM analysis_types" + where
	if err := s.conn.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("%w: count analysis types: %w", ErrSchemaStoreFailed, err)
	}

	schemaColumn := "schema"
	if filter.HideSchema {
		schemaColumn = "NULL AS schema"
	}

	query := fmt.Sprintf(`
		SELECT name, version, %s, file_types, created_at
		FROM analysis_types%s
		ORDER BY name ASC, version ASC
		LIMIT $%d OFFSET $%d`,
		schemaColumn, where, len(args)+1, len(args)+2)

	args = append(args, limit, filter.Offset)

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list analysis types: %w", ErrSchemaStoreFailed, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	types := []*schemas.AnalysisType{}

	for rows.Next() {
		analysisType, err := scanAnalysisType(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan analysis type: %w", ErrSchemaStoreFailed, err)
		}

		types = append(types, analysisType)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate analysis types: %w", ErrSchemaStoreFailed, err)
	}

	return &schemas.Page{
		Types:  types,
		Total:  total,
		Offset: filter.Offset,
		Limit:  limit,
	}, nil
}

// buildListFilter renders the WHERE clause and arguments for List queries.
func buildListFilter(filter schemas.ListFilter) (string, []interface{}) {
	var (
		clauses []string
		args    []interface{}
	)

	if len(filter.Names) > 0 {
		args = append(args, pq.Array(filter.Names))
		clauses = append(clauses, fmt.Sprintf("name = ANY($%d)", len(args)))
	}

	if len(filter.Versions) > 0 {
		args = append(args, pq.Array(filter.Versions))
		clauses = append(clauses, fmt.Sprintf("version = ANY($%d)", len(args)))
	}

	if len(clauses) == 0 {
		return "", args
	}

	return " WHERE " + strings.Join(clauses, " AND "), args
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanAnalysisType reads one analysis-type row, preserving the tri-state
// file_types column: NULL stays a nil slice, '{}' stays an empty one.
func scanAnalysisType(row rowScanner) (*schemas.AnalysisType, error) {
	var (
		analysisType schemas.AnalysisType
		schemaDoc    []byte
		fileTypes    pq.StringArray
	)

	err := row.Scan(
		&analysisType.Name,
		&analysisType.Version,
		&schemaDoc,
		&fileTypes,
		&analysisType.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	analysisType.Schema = schemaDoc
	if fileTypes != nil {
		analysisType.FileTypes = []string(fileTypes)
	}

	return &analysisType, nil
}

// fileTypesArray preserves the tri-state on write: a nil slice is stored as
// NULL, an empty one as '{}'.
func fileTypesArray(fileTypes []string) interface{} {
	if fileTypes == nil {
		return nil
	}

	return pq.Array(fileTypes)
}
