// Package cache is the durable resume store for chunk translation
// results. It is a SQLite side-car database living next to the output
// artifact, valid only under a run fingerprint (input path, output path,
// chunk size, model). Every terminal chunk result is committed
// immediately, so a crash loses at most the in-flight chunk.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"

	"pdftranslate/internal/document"
)

// Fingerprint identifies the run a cache belongs to. A cache whose
// fingerprint differs from the current run is discarded wholesale.
type Fingerprint struct {
	InputPath  string
	OutputPath string
	ChunkSize  int
	Model      string
}

// Store wraps the side-car database. The orchestrator is its only writer.
type Store struct {
	db   *sql.DB
	path string
}

// SidecarPath returns the cache location for an output artifact.
func SidecarPath(outputPath string) string {
	return outputPath + ".cache.db"
}

// Open opens (or creates) the cache at path and validates it against the
// run fingerprint. A mismatched or unreadable cache is deleted and
// recreated empty; that is never fatal, only logged.
func Open(path string, fp Fingerprint, log *zap.Logger) (*Store, error) {
	_, statErr := os.Stat(path)
	existed := statErr == nil

	s, err := open(path)
	if err == nil {
		ok, verr := s.matchesFingerprint(fp)
		switch {
		case verr == nil && ok:
			return s, nil
		case verr == nil:
			log.Warn("translation cache belongs to a different run, starting fresh",
				zap.String("cache", path))
		default:
			log.Warn("translation cache is unreadable, starting fresh",
				zap.String("cache", path), zap.Error(verr))
		}
		s.db.Close()
	} else if existed {
		log.Warn("translation cache is corrupt, starting fresh",
			zap.String("cache", path), zap.Error(err))
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to reset cache: %w", err)
	}
	s, err = open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	if err := s.writeFingerprint(fp); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	return s, nil
}

func open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS run_fingerprint (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		input_path TEXT NOT NULL,
		output_path TEXT NOT NULL,
		chunk_size INTEGER NOT NULL,
		model TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS chunk_results (
		page INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		source_hash TEXT NOT NULL,
		translated_text TEXT NOT NULL,
		attempts INTEGER NOT NULL,
		qa_flags TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (page, seq)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// matchesFingerprint reports whether the stored fingerprint equals fp. A
// cache without a fingerprint row is treated as fresh and claimed for fp.
func (s *Store) matchesFingerprint(fp Fingerprint) (bool, error) {
	var stored Fingerprint
	err := s.db.QueryRow(
		`SELECT input_path, output_path, chunk_size, model FROM run_fingerprint WHERE id = 1`).
		Scan(&stored.InputPath, &stored.OutputPath, &stored.ChunkSize, &stored.Model)
	if err == sql.ErrNoRows {
		return true, s.writeFingerprint(fp)
	}
	if err != nil {
		return false, err
	}
	return stored == fp, nil
}

func (s *Store) writeFingerprint(fp Fingerprint) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO run_fingerprint (id, input_path, output_path, chunk_size, model)
		 VALUES (1, ?, ?, ?, ?)`,
		fp.InputPath, fp.OutputPath, fp.ChunkSize, fp.Model)
	return err
}

// Load returns every persisted chunk result keyed by identity.
func (s *Store) Load(ctx context.Context) (map[document.ChunkID]document.TranslationResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT page, seq, source_hash, translated_text, attempts, qa_flags, state FROM chunk_results`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make(map[document.ChunkID]document.TranslationResult)
	for rows.Next() {
		var r document.TranslationResult
		var flags, state string
		if err := rows.Scan(&r.ID.Page, &r.ID.Seq, &r.SourceHash, &r.Text, &r.Attempts, &flags, &state); err != nil {
			return nil, err
		}
		if flags != "" {
			r.Flags = strings.Split(flags, ",")
		}
		r.State = document.ChunkState(state)
		results[r.ID] = r
	}
	return results, rows.Err()
}

// Put persists a terminal chunk result. Entries are monotonic: a verified
// entry is never replaced by a non-verified one. The write is committed
// before Put returns.
func (s *Store) Put(ctx context.Context, r document.TranslationResult) error {
	var existing string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM chunk_results WHERE page = ? AND seq = ?`, r.ID.Page, r.ID.Seq).
		Scan(&existing)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	if existing == string(document.StateVerified) && r.State != document.StateVerified {
		return nil
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO chunk_results
		 (page, seq, source_hash, translated_text, attempts, qa_flags, state, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		r.ID.Page, r.ID.Seq, r.SourceHash, r.Text, r.Attempts,
		strings.Join(r.Flags, ","), string(r.State))
	return err
}

// Path returns the side-car file location.
func (s *Store) Path() string {
	return s.path
}

// Close releases the database without touching the file, leaving it
// available for a future resume.
func (s *Store) Close() error {
	return s.db.Close()
}

// Finalize closes the store and deletes the side-car file, marking clean
// completion of the run.
func (s *Store) Finalize() error {
	if err := s.db.Close(); err != nil {
		return err
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Info is a read-only summary of a side-car cache, for inspection from
// the command line.
type Info struct {
	Fingerprint Fingerprint
	Total       int
	Verified    int
	Failed      int
}

// Inspect reads a cache summary without claiming or resetting the file.
func Inspect(path string) (*Info, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	s, err := open(path)
	if err != nil {
		return nil, fmt.Errorf("cache unreadable: %w", err)
	}
	defer s.db.Close()

	info := &Info{}
	err = s.db.QueryRow(
		`SELECT input_path, output_path, chunk_size, model FROM run_fingerprint WHERE id = 1`).
		Scan(&info.Fingerprint.InputPath, &info.Fingerprint.OutputPath,
			&info.Fingerprint.ChunkSize, &info.Fingerprint.Model)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT state, COUNT(*) FROM chunk_results GROUP BY state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		info.Total += n
		switch document.ChunkState(state) {
		case document.StateVerified:
			info.Verified += n
		case document.StateFailed:
			info.Failed += n
		}
	}
	return info, rows.Err()
}

// ListResults reads every chunk record ordered by page and sequence,
// without claiming or resetting the cache.
func ListResults(path string) ([]document.TranslationResult, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	s, err := open(path)
	if err != nil {
		return nil, fmt.Errorf("cache unreadable: %w", err)
	}
	defer s.db.Close()

	byID, err := s.Load(context.Background())
	if err != nil {
		return nil, err
	}
	results := make([]document.TranslationResult, 0, len(byID))
	for _, r := range byID {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].ID.Page != results[j].ID.Page {
			return results[i].ID.Page < results[j].ID.Page
		}
		return results[i].ID.Seq < results[j].ID.Seq
	})
	return results, nil
}

// HashText fingerprints chunk text for stale-entry detection. The text is
// NFC-normalized first so the hash is stable across Unicode encodings of
// the same content.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(norm.NFC.String(text)))
	return hex.EncodeToString(sum[:])
}
