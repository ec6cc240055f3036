package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Document statuses. A document is pending until an ingest run extracts at
// least one training span from it; quarantined rows are pending rows that
// exhausted their attempt budget and are no longer scanned.
const (
	StatusPending     = "pending"
	StatusProcessed   = "processed"
	StatusQuarantined = "quarantined"
)

// Corpus partitions. Dataset rows form the full-training corpus and never
// change state; intake rows are the incremental work queue.
const (
	CorpusDataset = "dataset"
	CorpusIntake  = "intake"
)

// Document is one metadata ledger row: the ground-truth fields produced by
// the renderer plus the lifecycle state this system maintains. Immutable
// once created except for status/attempts.
type Document struct {
	ID            string
	Company       string
	InvoiceNumber string
	Date          string // fixed display format DD.MM.YYYY
	Items         string // JSON array stored as text
	TotalAmount   float64
	Currency      string
	Language      string
	InvoiceText   string
	DateText      string
	TotalText     string
	FilePath      string
	FileType      string // "pdf", "jpg", "png"
	Corpus        string
	Status        string
	Attempts      int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Relocation is a journal entry for a planned file move. Entries are written
// in the same transaction that marks documents processed and cleared after
// the move happens, so an interrupted run can be reconciled.
type Relocation struct {
	ID         string
	DocumentID string
	Src        string
	Dst        string
	CreatedAt  time.Time
}

// IngestCommit describes one document an ingest run is committing: the ledger
// state flip plus the journaled file move.
type IngestCommit struct {
	DocumentID string
	Journal    Relocation
}
