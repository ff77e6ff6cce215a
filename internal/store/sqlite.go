package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"keymeter/internal/security"
)

// ErrNotFound is returned when a session id is not in the catalog.
var ErrNotFound = errors.New("store: session not found")

// Store represents the SQLite session catalog.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// walSuffixes name the files SQLite keeps beside a WAL-mode database.
var walSuffixes = []string{"-wal", "-shm"}

// Open opens or creates the catalog at path and runs migrations. Missing
// directories are created owner-only. The database and its WAL files are
// kept at 0600.
func Open(path string) (*Store, error) {
	if err := security.EnsureSecureDir(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// SQLite creates the -wal and -shm files with the mode of the main
	// database file, so that file must exist with 0600 first.
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, security.PermSecretFile)
	if err != nil {
		return nil, fmt.Errorf("create database: %w", err)
	}
	f.Close()

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := migrateDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	if err := restrictFiles(path); err != nil {
		db.Close()
		return nil, fmt.Errorf("restrict database permissions: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// restrictFiles sets 0600 on the database and any WAL files present.
func restrictFiles(path string) error {
	paths := []string{path}
	for _, suffix := range walSuffixes {
		paths = append(paths, path+suffix)
	}
	for _, p := range paths {
		if err := os.Chmod(p, security.PermSecretFile); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// SchemaStatus reports the catalog's applied and pending migrations after
// checking that its tables exist.
func (s *Store) SchemaStatus() (*MigrationStatus, error) {
	if err := validateSchema(s.db); err != nil {
		return nil, err
	}
	return migrationStatus(s.db)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Begin records a new active session and returns its id. A missing ID is
// generated.
func (s *Store) Begin(rec *SessionRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = s.now()
	}

	_, err := s.db.Exec(`
		INSERT INTO sessions (id, path, source, pid, started_ns, keystrokes, dropped)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Path, rec.Source, rec.PID, rec.StartedAt.UnixNano(),
		int64(rec.Keystrokes), int64(rec.Dropped),
	)
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return rec.ID, nil
}

// Finish marks a session stopped and stores its final counters.
func (s *Store) Finish(id string, stoppedAt time.Time, keystrokes, dropped uint64) error {
	res, err := s.db.Exec(`
		UPDATE sessions SET stopped_ns = ?, keystrokes = ?, dropped = ?
		WHERE id = ?`,
		stoppedAt.UnixNano(), int64(keystrokes), int64(dropped), id,
	)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Progress stores the running counters of an active session.
func (s *Store) Progress(id string, keystrokes, dropped uint64) error {
	res, err := s.db.Exec(`
		UPDATE sessions SET keystrokes = ?, dropped = ?
		WHERE id = ? AND stopped_ns IS NULL`,
		int64(keystrokes), int64(dropped), id,
	)
	if err != nil {
		return fmt.Errorf("update session progress: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s (or already finished)", ErrNotFound, id)
	}
	return nil
}

const selectSession = `
	SELECT id, path, source, pid, started_ns, stopped_ns, keystrokes, dropped
	FROM sessions`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*SessionRecord, error) {
	var (
		rec        SessionRecord
		startedNs  int64
		stoppedNs  sql.NullInt64
		keystrokes int64
		dropped    int64
	)
	if err := row.Scan(&rec.ID, &rec.Path, &rec.Source, &rec.PID,
		&startedNs, &stoppedNs, &keystrokes, &dropped); err != nil {
		return nil, err
	}
	rec.StartedAt = time.Unix(0, startedNs)
	if stoppedNs.Valid {
		t := time.Unix(0, stoppedNs.Int64)
		rec.StoppedAt = &t
	}
	rec.Keystrokes = uint64(keystrokes)
	rec.Dropped = uint64(dropped)
	return &rec, nil
}

// Get returns the session with id.
func (s *Store) Get(id string) (*SessionRecord, error) {
	rec, err := scanSession(s.db.QueryRow(selectSession+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return rec, nil
}

// FindByPath returns the most recent session that wrote path.
func (s *Store) FindByPath(path string) (*SessionRecord, error) {
	rec, err := scanSession(s.db.QueryRow(
		selectSession+` WHERE path = ? ORDER BY started_ns DESC LIMIT 1`, path))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return rec, nil
}

// List returns sessions newest first. limit <= 0 returns all.
func (s *Store) List(limit int) ([]SessionRecord, error) {
	query := selectSession + ` ORDER BY started_ns DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Totals aggregates all sessions.
func (s *Store) Totals() (Totals, error) {
	var (
		t          Totals
		keystrokes int64
		dropped    int64
	)
	err := s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN stopped_ns IS NULL THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(keystrokes), 0),
		       COALESCE(SUM(dropped), 0)
		FROM sessions`,
	).Scan(&t.Sessions, &t.Active, &keystrokes, &dropped)
	if err != nil {
		return Totals{}, fmt.Errorf("session totals: %w", err)
	}
	t.Keystrokes = uint64(keystrokes)
	t.Dropped = uint64(dropped)
	return t, nil
}

// Delete removes a session from the catalog. The capture file is not
// touched.
func (s *Store) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
