// Package store persists merged documents in a SQLite database so they can
// be fetched again by ID.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/benedoc-inc/pdfmerge/internal/store/migrations"
)

// ErrNotFound is returned when no artifact has the requested ID
var ErrNotFound = errors.New("artifact not found")

// Artifact is a stored output document
type Artifact struct {
	ID        string
	Filename  string
	Pages     int
	Size      int64
	CreatedAt time.Time
	Data      []byte
}

// Store is a SQLite-backed artifact store
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open opens or creates the database at path and applies migrations
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: path, now: time.Now}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", name, err)
		}
	}
	return nil
}

// Put stores data under a new ID and returns the artifact without its data
func (s *Store) Put(ctx context.Context, filename string, pages int, data []byte) (*Artifact, error) {
	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("generating artifact id: %w", err)
	}

	a := &Artifact{
		ID:        id,
		Filename:  filename,
		Pages:     pages,
		Size:      int64(len(data)),
		CreatedAt: s.now().UTC().Truncate(time.Millisecond),
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO artifacts (id, filename, pages, size, created_at, data)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.ID, a.Filename, a.Pages, a.Size, a.CreatedAt.UnixMilli(), data)
	if err != nil {
		return nil, fmt.Errorf("saving artifact: %w", err)
	}
	return a, nil
}

// Get returns the artifact with the given ID, including its data
func (s *Store) Get(ctx context.Context, id string) (*Artifact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, filename, pages, size, created_at, data
		FROM artifacts WHERE id = ?
	`, id)

	var (
		a       Artifact
		created int64
	)
	if err := row.Scan(&a.ID, &a.Filename, &a.Pages, &a.Size, &created, &a.Data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting artifact: %w", err)
	}
	a.CreatedAt = time.UnixMilli(created).UTC()
	return &a, nil
}

// List returns the newest artifacts first, without their data
func (s *Store) List(ctx context.Context, limit int) ([]Artifact, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filename, pages, size, created_at
		FROM artifacts ORDER BY created_at DESC, id LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing artifacts: %w", err)
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		var (
			a       Artifact
			created int64
		)
		if err := rows.Scan(&a.ID, &a.Filename, &a.Pages, &a.Size, &created); err != nil {
			return nil, fmt.Errorf("scanning artifact: %w", err)
		}
		a.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// Delete removes an artifact. Deleting a missing ID returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM artifacts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting artifact: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Prune deletes artifacts created before cutoff and reports how many went
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM artifacts WHERE created_at < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("pruning artifacts: %w", err)
	}
	return res.RowsAffected()
}
