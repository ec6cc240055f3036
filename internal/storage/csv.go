package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ImportCSV loads renderer metadata rows into the ledger. The reader must
// provide a header row; columns are matched by name so the renderer's column
// order does not matter. Rows land in the given corpus with status pending.
// Returns the number of imported rows.
func (s *Store) ImportCSV(r io.Reader, corpus string) (int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return 0, fmt.Errorf("reading CSV header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{"company", "invoice_number", "date", "total_amount", "currency", "file_path", "file_type"} {
		if _, ok := col[required]; !ok {
			return 0, fmt.Errorf("CSV is missing required column %q", required)
		}
	}

	field := func(record []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning import transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	imported := 0
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("reading CSV line %d: %w", line, err)
		}

		amount, err := strconv.ParseFloat(field(record, "total_amount"), 64)
		if err != nil {
			return 0, fmt.Errorf("CSV line %d: invalid total_amount: %w", line, err)
		}
		items := field(record, "items")
		if items == "" {
			items = "[]"
		}

		if _, err := tx.Exec(`
			INSERT INTO documents (`+documentColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
			uuid.New().String(),
			field(record, "company"),
			field(record, "invoice_number"),
			field(record, "date"),
			items,
			amount,
			field(record, "currency"),
			field(record, "language"),
			field(record, "invoice_text"),
			field(record, "date_text"),
			field(record, "total_text"),
			field(record, "file_path"),
			field(record, "file_type"),
			corpus,
			StatusPending,
			now, now,
		); err != nil {
			return 0, fmt.Errorf("CSV line %d (%s): %w", line, field(record, "file_path"), err)
		}
		imported++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing import: %w", err)
	}
	return imported, nil
}
