package main

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Validation errors. Messages surface verbatim to the operator, so they name
// the offending file or sequence.
var (
	ErrNoMigrations      = errors.New("no migration files found")
	ErrMissingDirectory  = errors.New("migrations directory does not exist")
	ErrUnpairedMigration = errors.New("unpaired migration")
	ErrSequenceGap       = errors.New("migration sequence gap")
	ErrModifiedMigration = errors.New("migration file modified")
)

// migrationFileRegex enforces the naming standard: a three-digit sequence, a
// snake_case name and an explicit direction, e.g. 001_initial_schema.up.sql.
var migrationFileRegex = regexp.MustCompile(`^(\d{3})_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

// MigrationSet validates a directory of registry schema migrations before
// golang-migrate touches the database: naming standard, up/down pairing,
// gap-free sequence from 001 and checksum stability across repeated
// validations within one process.
type MigrationSet struct {
	dir       string
	checksums map[string]string
}

// NewMigrationSet creates a migration set over the given directory.
func NewMigrationSet(dir string) *MigrationSet {
	return &MigrationSet{
		dir:       dir,
		checksums: make(map[string]string),
	}
}

// Files returns the migration filenames in apply order. Files that do not
// match the naming standard are ignored; Validate rejects directories where
// ignoring them would leave nothing to run.
func (s *MigrationSet) Files() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var files []string

	for _, entry := range entries {
		if !entry.IsDir() && migrationFileRegex.MatchString(entry.Name()) {
			files = append(files, entry.Name())
		}
	}

	// Lexicographic order matches sequence order under the naming standard.
	sort.Strings(files)

	return files, nil
}

// Validate checks the whole set. On success it records the checksum of every
// file, so a second Validate in the same process detects files edited in
// between.
func (s *MigrationSet) Validate() error {
	if _, err := os.Stat(s.dir); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrMissingDirectory, s.dir)
	}

	files, err := s.Files()
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("%w: %s", ErrNoMigrations, s.dir)
	}

	sums := make(map[string]string, len(files))

	for _, file := range files {
		content, err := os.ReadFile(filepath.Join(s.dir, file))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}

		sum := fmt.Sprintf("%x", sha256.Sum256(content))
		if known, ok := s.checksums[file]; ok && known != sum {
			return fmt.Errorf("%w: %s", ErrModifiedMigration, file)
		}

		sums[file] = sum
	}

	if err := s.validatePairing(files); err != nil {
		return err
	}

	if err := s.validateSequence(files); err != nil {
		return err
	}

	s.checksums = sums

	return nil
}

// migrationKey returns the "001_name" stem shared by an up/down pair, and
// the direction.
func migrationKey(file string) (string, string) {
	matches := migrationFileRegex.FindStringSubmatch(file)

	return matches[1] + "_" + matches[2], matches[3]
}

// validatePairing ensures every up migration has a down twin and vice versa.
// A one-way migration would strand the schema on rollback.
func (s *MigrationSet) validatePairing(files []string) error {
	directions := make(map[string]map[string]bool)

	for _, file := range files {
		key, direction := migrationKey(file)
		if directions[key] == nil {
			directions[key] = make(map[string]bool)
		}

		directions[key][direction] = true
	}

	for key, seen := range directions {
		if !seen["up"] {
			return fmt.Errorf("%w: %s has no up file", ErrUnpairedMigration, key)
		}

		if !seen["down"] {
			return fmt.Errorf("%w: %s has no down file", ErrUnpairedMigration, key)
		}
	}

	return nil
}

// validateSequence ensures sequence numbers start at 001 and are contiguous.
func (s *MigrationSet) validateSequence(files []string) error {
	present := make(map[int]bool)
	highest := 0

	for _, file := range files {
		seq, err := strconv.Atoi(strings.SplitN(file, "_", 2)[0])
		if err != nil {
			return fmt.Errorf("parse sequence of %s: %w", file, err)
		}

		present[seq] = true
		if seq > highest {
			highest = seq
		}
	}

	for seq := 1; seq <= highest; seq++ {
		if !present[seq] {
			return fmt.Errorf("%w: %03d is missing", ErrSequenceGap, seq)
		}
	}

	if !present[1] {
		return fmt.Errorf("%w: sequence must start at 001", ErrSequenceGap)
	}

	return nil
}
