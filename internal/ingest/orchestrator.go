// Package ingest bridges the pending ledger and the file system to the
// trainer. Each run scans the pending rows read-only, feeds every document
// that aligned to at least one span into one incremental model update, and
// then commits the outcome: processed rows leave the pending set and their
// files move to the processed area, everything else stays pending for a
// future run.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/ynos999/aiinvocesmodel/internal/align"
	"github.com/ynos999/aiinvocesmodel/internal/ner"
	"github.com/ynos999/aiinvocesmodel/internal/storage"
)

// Ledger abstracts the metadata store operations the orchestrator needs.
type Ledger interface {
	ListPending() ([]storage.Document, error)
	CommitIngest(commits []storage.IngestCommit, attemptBumps []string, maxAttempts int) error
	PendingRelocations() ([]storage.Relocation, error)
	ClearRelocations(ids []string) error
}

// TextExtractor is the batch extraction contract (empty text = unreadable).
type TextExtractor interface {
	Extract(ctx context.Context, path, fileType string) string
}

// Updater performs the incremental model update and snapshot save.
type Updater interface {
	UpdateIncrementally(examples []ner.Example, opts ner.UpdateOptions) (ner.UpdateReport, error)
}

// Paths are the type-partitioned intake roots and the processed area.
type Paths struct {
	PDFDir       string
	ImageDir     string
	ProcessedDir string
}

// Options tune one orchestrator run.
type Options struct {
	Epochs      int
	Seed        int64
	Dropout     float64
	MaxAttempts int // quarantine threshold; 0 = retry forever
}

// Report summarizes one run.
type Report struct {
	Scanned     int
	Committed   int
	Skipped     int
	EpochLosses []float64
}

// Orchestrator runs the incremental ingestion protocol. Runs against the same
// ledger must not overlap; the design assumes a single writer.
type Orchestrator struct {
	ledger    Ledger
	extractor TextExtractor
	aligner   align.Aligner
	trainer   Updater
	paths     Paths
	opts      Options
	logger    *slog.Logger
}

// New creates an Orchestrator.
func New(ledger Ledger, extractor TextExtractor, aligner align.Aligner, trainer Updater, paths Paths, opts Options) *Orchestrator {
	return &Orchestrator{
		ledger:    ledger,
		extractor: extractor,
		aligner:   aligner,
		trainer:   trainer,
		paths:     paths,
		opts:      opts,
		logger:    slog.Default(),
	}
}

// decision is the outcome of scanning one pending row. The scan itself
// mutates nothing; all effects are applied after it completes.
type decision struct {
	doc     storage.Document
	example ner.Example
	commit  bool
	bump    bool // extraction/alignment produced nothing: count the attempt
}

// Run executes one full ingestion pass: reconcile leftover journal entries,
// scan the pending table read-only, update the model once with the whole
// batch, then apply the ledger commit and the file moves.
//
// When no document yields a span the run is a no-op: no model update, no
// snapshot write, no ledger write.
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	if err := o.Reconcile(); err != nil {
		return Report{}, fmt.Errorf("reconciling relocation journal: %w", err)
	}

	rows, err := o.ledger.ListPending()
	if err != nil {
		return Report{}, fmt.Errorf("listing pending documents: %w", err)
	}

	report := Report{Scanned: len(rows)}
	var decisions []decision

	for _, doc := range rows {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		decisions = append(decisions, o.scan(ctx, doc))
	}

	var batch []ner.Example
	var commits []storage.IngestCommit
	var bumps []string

	for _, d := range decisions {
		switch {
		case d.commit:
			batch = append(batch, d.example)
			src := o.resolve(d.doc)
			commits = append(commits, storage.IngestCommit{
				DocumentID: d.doc.ID,
				Journal: storage.Relocation{
					ID:  uuid.New().String(),
					Src: src,
					Dst: filepath.Join(o.paths.ProcessedDir, filepath.Base(d.doc.FilePath)),
				},
			})
		default:
			report.Skipped++
			if d.bump {
				bumps = append(bumps, d.doc.ID)
			}
		}
	}

	if len(batch) == 0 {
		o.logger.Info("no valid data, nothing ingested", "scanned", report.Scanned, "skipped", report.Skipped)
		return report, nil
	}

	update, err := o.trainer.UpdateIncrementally(batch, ner.UpdateOptions{
		Epochs:  o.opts.Epochs,
		Seed:    o.opts.Seed,
		Dropout: o.opts.Dropout,
	})
	if err != nil {
		return report, fmt.Errorf("updating model: %w", err)
	}
	report.EpochLosses = update.EpochLosses

	// Log-then-apply: the ledger transaction removes the rows from the
	// pending set and journals the planned moves; the moves happen after it.
	// A crash in between is repaired by Reconcile on the next run.
	if err := o.ledger.CommitIngest(commits, bumps, o.opts.MaxAttempts); err != nil {
		return report, fmt.Errorf("committing ledger: %w", err)
	}
	report.Committed = len(commits)

	var cleared []string
	for _, c := range commits {
		if err := moveFile(c.Journal.Src, c.Journal.Dst); err != nil {
			o.logger.Error("relocating file failed, journal entry retained", "src", c.Journal.Src, "dst", c.Journal.Dst, "error", err)
			continue
		}
		cleared = append(cleared, c.Journal.ID)
	}
	if err := o.ledger.ClearRelocations(cleared); err != nil {
		return report, fmt.Errorf("clearing relocation journal: %w", err)
	}

	o.logger.Info("ingest run finished",
		"scanned", report.Scanned, "committed", report.Committed, "skipped", report.Skipped)
	return report, nil
}

// scan evaluates one pending row without side effects.
func (o *Orchestrator) scan(ctx context.Context, doc storage.Document) decision {
	d := decision{doc: doc}

	src := o.resolve(doc)
	if src == "" {
		o.logger.Warn("unsupported file type, leaving pending", "file_path", doc.FilePath, "file_type", doc.FileType)
		return d
	}
	if _, err := os.Stat(src); err != nil {
		// Row stays pending untouched; the file may appear before a later run.
		o.logger.Warn("file not found, leaving pending", "path", src)
		return d
	}

	text := o.extractor.Extract(ctx, src, doc.FileType)
	if text == "" {
		d.bump = true
		return d
	}

	spans := o.aligner.Align(text, align.Fields{
		Company:       doc.Company,
		InvoiceNumber: doc.InvoiceNumber,
		Date:          doc.Date,
		TotalAmount:   doc.TotalAmount,
		Currency:      doc.Currency,
	})
	if len(spans) == 0 {
		d.bump = true
		return d
	}

	d.example = ner.Example{Text: text, Spans: spans}
	d.commit = true
	return d
}

// resolve maps a ledger row's logical file name onto its type-partitioned
// intake root. Unsupported types resolve to "".
func (o *Orchestrator) resolve(doc storage.Document) string {
	name := filepath.Base(doc.FilePath)
	switch strings.ToLower(doc.FileType) {
	case "pdf":
		return filepath.Join(o.paths.PDFDir, name)
	case "jpg", "jpeg", "png":
		return filepath.Join(o.paths.ImageDir, name)
	default:
		return ""
	}
}

// Reconcile completes file moves journaled by an interrupted run. For every
// journal entry: if the source still exists the move is performed; if only
// the destination exists the move already happened. Either way the entry is
// cleared, restoring the "pending or processed, never both" invariant.
func (o *Orchestrator) Reconcile() error {
	journal, err := o.ledger.PendingRelocations()
	if err != nil {
		return err
	}

	var cleared []string
	for _, r := range journal {
		switch {
		case exists(r.Src):
			if err := moveFile(r.Src, r.Dst); err != nil {
				o.logger.Error("replaying journaled move failed", "src", r.Src, "dst", r.Dst, "error", err)
				continue
			}
			o.logger.Info("replayed journaled move", "src", r.Src, "dst", r.Dst)
			cleared = append(cleared, r.ID)
		case exists(r.Dst):
			cleared = append(cleared, r.ID)
		default:
			o.logger.Warn("journaled file lost, dropping entry", "src", r.Src, "dst", r.Dst)
			cleared = append(cleared, r.ID)
		}
	}
	return o.ledger.ClearRelocations(cleared)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.Rename(src, dst)
}
