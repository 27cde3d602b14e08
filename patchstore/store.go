// Package patchstore journals persistent value patches in SQLite so they
// survive restarts.
package patchstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chazu/hotpatch/dispatch"
	"github.com/chazu/hotpatch/patchwire"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"
)

var log = commonlog.GetLogger("hotpatch.patchstore")

var (
	// ErrEphemeralPatch indicates an after-phase patch, which is consumed by
	// the first call and therefore never journaled.
	ErrEphemeralPatch = errors.New("after-phase patches are not journaled")
	// ErrPatchNotFound indicates no journaled patch exists for a key.
	ErrPatchNotFound = errors.New("patch not found")
)

const schema = `CREATE TABLE IF NOT EXISTS patches (
	namespace  TEXT NOT NULL,
	method     TEXT NOT NULL,
	phase      TEXT NOT NULL,
	value      BLOB NOT NULL,
	hash       BLOB NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (namespace, method, phase)
)`

// Store is the SQLite patch journal.
type Store struct {
	db   *sql.DB
	path string
}

// Record is a journaled patch.
type Record struct {
	Patch     patchwire.Patch
	Hash      [32]byte
	UpdatedAt time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens or creates the journal at path. The parent directory is
// created when missing.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}
	log.Debugf("opened journal %s", cleanPath)
	return &Store{db: db, path: cleanPath}, nil
}

// Path returns the journal file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save journals p, replacing any patch with the same key, and returns its
// content hash.
func (s *Store) Save(ctx context.Context, p patchwire.Patch) ([32]byte, error) {
	if err := p.Validate(); err != nil {
		return [32]byte{}, err
	}
	phase, _ := p.ParsedPhase()
	if !phase.Persistent() {
		return [32]byte{}, fmt.Errorf("%s: %w", p.String(), ErrEphemeralPatch)
	}
	p.Phase = phase.String()

	hash, err := p.Hash()
	if err != nil {
		return [32]byte{}, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO patches (namespace, method, phase, value, hash, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (namespace, method, phase) DO UPDATE SET
		   value = excluded.value,
		   hash = excluded.hash,
		   updated_at = excluded.updated_at`,
		p.Namespace, p.Method, p.Phase, []byte(p.Value), hash[:], toMillis(time.Now()),
	)
	if err != nil {
		return [32]byte{}, fmt.Errorf("saving patch %s: %w", p.String(), err)
	}
	log.Debugf("journaled %s", p.String())
	return hash, nil
}

// Delete removes the journaled patch for a key and reports whether one
// existed.
func (s *Store) Delete(ctx context.Context, namespace, method string, phase dispatch.Phase) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM patches WHERE namespace = ? AND method = ? AND phase = ?",
		namespace, method, phase.String(),
	)
	if err != nil {
		return false, fmt.Errorf("deleting patch %s.%s: %w", namespace, method, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deleting patch %s.%s: %w", namespace, method, err)
	}
	return n > 0, nil
}

// Get returns the journaled patch for a key, or ErrPatchNotFound.
func (s *Store) Get(ctx context.Context, namespace, method string, phase dispatch.Phase) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT namespace, method, phase, value, hash, updated_at FROM patches
		 WHERE namespace = ? AND method = ? AND phase = ?`,
		namespace, method, phase.String(),
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying patch %s.%s: %w", namespace, method, err)
	}
	return rec, nil
}

// List returns every journaled patch ordered by key.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT namespace, method, phase, value, hash, updated_at FROM patches
		 ORDER BY namespace, method, phase`)
	if err != nil {
		return nil, fmt.Errorf("listing patches: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning patch: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing patches: %w", err)
	}
	return out, nil
}

// Count returns the number of journaled patches.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM patches").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting patches: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*Record, error) {
	var (
		rec     Record
		value   []byte
		hash    []byte
		updated int64
	)
	if err := sc.Scan(&rec.Patch.Namespace, &rec.Patch.Method, &rec.Patch.Phase, &value, &hash, &updated); err != nil {
		return nil, err
	}
	rec.Patch.Value = value
	copy(rec.Hash[:], hash)
	rec.UpdatedAt = fromMillis(updated)
	return &rec, nil
}

// Replay installs every journaled patch on e and returns how many were
// installed. Patches that fail to decode or install are skipped; their
// errors are joined into the returned error.
func (s *Store) Replay(ctx context.Context, e *dispatch.Engine) (int, error) {
	records, err := s.List(ctx)
	if err != nil {
		return 0, err
	}

	var (
		installed int
		errs      []error
	)
	for i := range records {
		p := &records[i].Patch
		if err := install(e, p); err != nil {
			log.Errorf("replaying %s: %v", p.String(), err)
			errs = append(errs, fmt.Errorf("replaying %s: %w", p.String(), err))
			continue
		}
		installed++
	}
	log.Infof("replayed %d of %d journaled patches", installed, len(records))
	return installed, errors.Join(errs...)
}

func install(e *dispatch.Engine, p *patchwire.Patch) error {
	phase, err := p.ParsedPhase()
	if err != nil {
		return err
	}
	w, err := p.Wrapper()
	if err != nil {
		return err
	}
	return e.InstallWrapper(p.Namespace, p.Method, w, phase)
}

// Export returns the journal as a PatchSet.
func (s *Store) Export(ctx context.Context) (*patchwire.PatchSet, error) {
	records, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	set := &patchwire.PatchSet{Patches: make([]patchwire.Patch, 0, len(records))}
	for _, rec := range records {
		set.Patches = append(set.Patches, rec.Patch)
	}
	return set, nil
}

// Import journals every patch in set inside one transaction. After-phase
// patches are skipped. It returns the number of patches written.
func (s *Store) Import(ctx context.Context, set *patchwire.PatchSet) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	now := toMillis(time.Now())
	n := 0
	for i := range set.Patches {
		p := set.Patches[i]
		if err := p.Validate(); err != nil {
			return 0, fmt.Errorf("importing %s: %w", p.String(), err)
		}
		phase, _ := p.ParsedPhase()
		if !phase.Persistent() {
			log.Warningf("import: skipping %s: %v", p.String(), ErrEphemeralPatch)
			continue
		}
		p.Phase = phase.String()
		hash, err := p.Hash()
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO patches (namespace, method, phase, value, hash, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (namespace, method, phase) DO UPDATE SET
			   value = excluded.value,
			   hash = excluded.hash,
			   updated_at = excluded.updated_at`,
			p.Namespace, p.Method, p.Phase, []byte(p.Value), hash[:], now,
		); err != nil {
			return 0, fmt.Errorf("importing %s: %w", p.String(), err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	return n, nil
}
