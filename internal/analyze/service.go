// Package analyze is the interactive inference path: one document file in,
// structured invoice fields out. Unlike the batch components it surfaces
// errors instead of skipping.
package analyze

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ynos999/aiinvocesmodel/internal/ner"
)

// Error kinds surfaced to the caller. Everything else is a wrapped
// extraction or model-load failure.
var (
	ErrFileMissing  = errors.New("document file does not exist")
	ErrModelMissing = errors.New("model snapshot not found")
	ErrNoText       = errors.New("no text could be extracted from the document")
)

// rawTextLimit caps the raw text echoed back in a Result.
const rawTextLimit = 500

// TextExtractor is the single-document, error-surfacing extraction contract.
type TextExtractor interface {
	ExtractStrict(ctx context.Context, path string) (string, error)
}

// Predictor produces entity spans over extracted text, in model order.
type Predictor interface {
	Predict(text string) []ner.Span
}

// Entity is one predicted occurrence with its covered text.
type Entity struct {
	Text  string    `json:"text"`
	Label ner.Label `json:"label"`
	Start int       `json:"start"`
	End   int       `json:"end"`
}

// Result holds the canonical fields plus the full entity list. Canonical
// fields resolve first-match-wins: later duplicates stay in Entities but
// never overwrite.
type Result struct {
	Company       string   `json:"company"`
	InvoiceNumber string   `json:"invoice_number"`
	Date          string   `json:"date"`
	Amount        string   `json:"amount"`
	Currency      string   `json:"currency"`
	RawText       string   `json:"raw_text"`
	Entities      []Entity `json:"entities"`
}

// Service loads a persisted model snapshot and analyzes single documents.
type Service struct {
	modelDir  string
	extractor TextExtractor
	load      func(dir string) (Predictor, error)
}

// NewService creates a Service bound to the snapshot directory.
func NewService(modelDir string, extractor TextExtractor) *Service {
	return &Service{
		modelDir:  modelDir,
		extractor: extractor,
		load: func(dir string) (Predictor, error) {
			return ner.Load(dir)
		},
	}
}

// Infer extracts text from the document at path, predicts entity spans and
// resolves the canonical fields. Any failure is returned as an error; there
// is no partial result.
func (s *Service) Infer(ctx context.Context, path string) (Result, error) {
	if _, err := os.Stat(path); err != nil {
		return Result{}, fmt.Errorf("%w: %s", ErrFileMissing, path)
	}
	if !ner.SnapshotExists(s.modelDir) {
		return Result{}, fmt.Errorf("%w: %s", ErrModelMissing, s.modelDir)
	}
	model, err := s.load(s.modelDir)
	if err != nil {
		return Result{}, fmt.Errorf("loading model: %w", err)
	}

	text, err := s.extractor.ExtractStrict(ctx, path)
	if err != nil {
		return Result{}, fmt.Errorf("extracting text: %w", err)
	}
	if text == "" {
		return Result{}, ErrNoText
	}

	return Resolve(text, model.Predict(text)), nil
}

// Resolve applies the first-match-wins policy over predicted spans.
func Resolve(text string, spans []ner.Span) Result {
	result := Result{RawText: truncateRaw(text)}

	for _, sp := range spans {
		covered := text[sp.Start:sp.End]
		result.Entities = append(result.Entities, Entity{
			Text:  covered,
			Label: sp.Label,
			Start: sp.Start,
			End:   sp.End,
		})

		switch sp.Label {
		case ner.LabelCompany:
			if result.Company == "" {
				result.Company = covered
			}
		case ner.LabelInvoiceNumber:
			if result.InvoiceNumber == "" {
				result.InvoiceNumber = covered
			}
		case ner.LabelDate:
			if result.Date == "" {
				result.Date = covered
			}
		case ner.LabelAmount:
			if result.Amount == "" {
				result.Amount = covered
			}
		case ner.LabelCurrency:
			if result.Currency == "" {
				result.Currency = covered
			}
		}
	}
	return result
}

func truncateRaw(text string) string {
	runes := []rune(text)
	if len(runes) <= rawTextLimit {
		return text
	}
	return string(runes[:rawTextLimit]) + "..."
}
