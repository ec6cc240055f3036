package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps the SQLite metadata ledger: document rows plus the relocation
// journal used by the ingest commit protocol.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the ledger database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "invoices.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate reads embedded SQL migration files and applies any that haven't
// been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Documents ---

const documentColumns = `id, company, invoice_number, date, items, total_amount, currency,
	language, invoice_text, date_text, total_text, file_path, file_type,
	corpus, status, attempts, created_at, updated_at`

// InsertDocument adds one ledger row. The file_path must be unique.
func (s *Store) InsertDocument(d Document) error {
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = now
	}
	if d.Corpus == "" {
		d.Corpus = CorpusIntake
	}
	if d.Status == "" {
		d.Status = StatusPending
	}
	if d.Items == "" {
		d.Items = "[]"
	}
	_, err := s.db.Exec(`
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Company, d.InvoiceNumber, d.Date, d.Items, d.TotalAmount, d.Currency,
		d.Language, d.InvoiceText, d.DateText, d.TotalText, d.FilePath, d.FileType,
		d.Corpus, d.Status, d.Attempts,
		d.CreatedAt.Format(time.RFC3339), d.UpdatedAt.Format(time.RFC3339),
	)
	return err
}

func scanDocument(scan func(dest ...any) error) (Document, error) {
	var d Document
	var createdAt, updatedAt string
	err := scan(
		&d.ID, &d.Company, &d.InvoiceNumber, &d.Date, &d.Items, &d.TotalAmount, &d.Currency,
		&d.Language, &d.InvoiceText, &d.DateText, &d.TotalText, &d.FilePath, &d.FileType,
		&d.Corpus, &d.Status, &d.Attempts, &createdAt, &updatedAt,
	)
	if err != nil {
		return Document{}, err
	}
	if d.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Document{}, fmt.Errorf("parsing created_at for document %s: %w", d.ID, err)
	}
	if d.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Document{}, fmt.Errorf("parsing updated_at for document %s: %w", d.ID, err)
	}
	return d, nil
}

// GetDocument fetches one row by id.
func (s *Store) GetDocument(id string) (Document, error) {
	row := s.db.QueryRow(`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	d, err := scanDocument(row.Scan)
	if err == sql.ErrNoRows {
		return Document{}, ErrNotFound
	}
	return d, err
}

func (s *Store) listDocuments(query string, args ...any) ([]Document, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		d, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// ListDataset returns the full-training corpus rows in insertion order.
func (s *Store) ListDataset() ([]Document, error) {
	return s.listDocuments(`SELECT `+documentColumns+` FROM documents
		WHERE corpus = ? ORDER BY created_at ASC, file_path ASC`, CorpusDataset)
}

// ListPending returns the intake rows still awaiting ingestion, in stable
// order. Quarantined rows are excluded.
func (s *Store) ListPending() ([]Document, error) {
	return s.listDocuments(`SELECT `+documentColumns+` FROM documents
		WHERE corpus = ? AND status = ? ORDER BY created_at ASC, file_path ASC`,
		CorpusIntake, StatusPending)
}

// CountByStatus returns row counts per status for the intake corpus.
func (s *Store) CountByStatus() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM documents
		WHERE corpus = ? GROUP BY status`, CorpusIntake)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// --- Ingest commit protocol ---

// CommitIngest applies the outcome of one orchestrator scan in a single
// transaction: committed documents flip to processed and their planned file
// moves are journaled; skipped documents get an attempts bump, flipping to
// quarantined once maxAttempts (> 0) is reached. The single transaction is
// the "at most one ledger rewrite per run" contract.
func (s *Store) CommitIngest(commits []IngestCommit, attemptBumps []string, maxAttempts int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning commit transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)

	for _, c := range commits {
		res, err := tx.Exec(`UPDATE documents SET status = ?, updated_at = ?
			WHERE id = ? AND status = ?`,
			StatusProcessed, now, c.DocumentID, StatusPending)
		if err != nil {
			return fmt.Errorf("marking document %s processed: %w", c.DocumentID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("document %s: %w", c.DocumentID, ErrNotFound)
		}
		j := c.Journal
		if _, err := tx.Exec(`INSERT INTO relocations (id, document_id, src, dst, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			j.ID, c.DocumentID, j.Src, j.Dst, now); err != nil {
			return fmt.Errorf("journaling relocation for %s: %w", c.DocumentID, err)
		}
	}

	for _, id := range attemptBumps {
		if _, err := tx.Exec(`UPDATE documents
			SET attempts = attempts + 1,
			    status = CASE WHEN ? > 0 AND attempts + 1 >= ? THEN ? ELSE status END,
			    updated_at = ?
			WHERE id = ? AND status = ?`,
			maxAttempts, maxAttempts, StatusQuarantined, now, id, StatusPending); err != nil {
			return fmt.Errorf("bumping attempts for %s: %w", id, err)
		}
	}

	return tx.Commit()
}

// PendingRelocations returns journal entries whose file moves may not have
// happened yet, oldest first.
func (s *Store) PendingRelocations() ([]Relocation, error) {
	rows, err := s.db.Query(`SELECT id, document_id, src, dst, created_at
		FROM relocations ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var journal []Relocation
	for rows.Next() {
		var r Relocation
		var createdAt string
		if err := rows.Scan(&r.ID, &r.DocumentID, &r.Src, &r.Dst, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at for relocation %s: %w", r.ID, err)
		}
		r.CreatedAt = t
		journal = append(journal, r)
	}
	return journal, rows.Err()
}

// ClearRelocations removes journal entries after their moves completed.
func (s *Store) ClearRelocations(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning journal cleanup: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.Exec(`DELETE FROM relocations WHERE id = ?`, id); err != nil {
			return fmt.Errorf("clearing relocation %s: %w", id, err)
		}
	}
	return tx.Commit()
}
