// Package dataset builds a training corpus from ledger rows. The pass is
// strictly read-only: it never relocates files or mutates the ledger, which
// is what separates it from the ingest orchestrator.
package dataset

import (
	"context"
	"log/slog"

	"github.com/ynos999/aiinvocesmodel/internal/align"
	"github.com/ynos999/aiinvocesmodel/internal/ner"
	"github.com/ynos999/aiinvocesmodel/internal/storage"
)

// TextExtractor is the batch extraction contract: empty text means the
// document could not be read and should be skipped.
type TextExtractor interface {
	Extract(ctx context.Context, path, fileType string) string
}

// Builder drives the aligner across a set of ledger rows.
type Builder struct {
	extractor TextExtractor
	aligner   align.Aligner
	logger    *slog.Logger
}

// NewBuilder creates a Builder with the given collaborators.
func NewBuilder(extractor TextExtractor, aligner align.Aligner) *Builder {
	return &Builder{
		extractor: extractor,
		aligner:   aligner,
		logger:    slog.Default(),
	}
}

// Build extracts and aligns every record, in input order. A record
// contributes at most one example, and only when alignment produced at least
// one span; everything else increments skipped. For any input,
// len(examples) + skipped == len(records).
func (b *Builder) Build(ctx context.Context, records []storage.Document) ([]ner.Example, int) {
	var examples []ner.Example
	skipped := 0

	for _, rec := range records {
		text := b.extractor.Extract(ctx, rec.FilePath, rec.FileType)
		if text == "" {
			b.logger.Debug("skipping document: no text", "file_path", rec.FilePath)
			skipped++
			continue
		}

		spans := b.aligner.Align(text, FieldsOf(rec))
		if len(spans) == 0 {
			b.logger.Debug("skipping document: no spans aligned", "file_path", rec.FilePath)
			skipped++
			continue
		}

		examples = append(examples, ner.Example{Text: text, Spans: spans})
	}

	b.logger.Info("corpus built", "examples", len(examples), "skipped", skipped, "records", len(records))
	return examples, skipped
}

// FieldsOf maps a ledger row to the aligner's known-value set.
func FieldsOf(d storage.Document) align.Fields {
	return align.Fields{
		Company:       d.Company,
		InvoiceNumber: d.InvoiceNumber,
		Date:          d.Date,
		TotalAmount:   d.TotalAmount,
		Currency:      d.Currency,
	}
}
