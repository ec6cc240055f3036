// Package align derives training spans from known invoice field values by
// locating them inside noisy OCR text. There is no character mapping between
// the OCR output and the ground truth, so first-occurrence substring search
// is the backward alignment: fields corrupted by the OCR are dropped, and an
// earlier duplicate of a value wins over the "right" one. Callers depend on
// the Aligner interface so a fuzzy matcher can be swapped in later.
package align

import (
	"fmt"
	"strings"

	"github.com/ynos999/aiinvocesmodel/internal/ner"
)

// Fields holds the known ground-truth values for one document.
type Fields struct {
	Company       string
	InvoiceNumber string
	Date          string  // rendered display format, e.g. "12.03.2024"
	TotalAmount   float64 // rendered with exactly two fractional digits
	Currency      string  // token or symbol, e.g. "EUR", "€"
}

// Aligner turns extracted text plus known field values into labeled spans.
type Aligner interface {
	Align(text string, fields Fields) []ner.Span
}

// FirstMatch is the first-occurrence, left-to-right aligner. Output is
// deterministic for fixed inputs; a field whose value does not occur in the
// text is silently dropped.
type FirstMatch struct{}

// NewFirstMatch returns the default aligner.
func NewFirstMatch() FirstMatch {
	return FirstMatch{}
}

// Align emits at most one span per field. The currency search begins only at
// the end of the amount match, so an emitted CURRENCY span never starts
// before the AMOUNT span ends, and no currency span is emitted when the
// amount itself was not found.
func (FirstMatch) Align(text string, fields Fields) []ner.Span {
	var spans []ner.Span

	if sp, ok := find(text, fields.Company, 0, ner.LabelCompany); ok {
		spans = append(spans, sp)
	}
	if sp, ok := find(text, fields.InvoiceNumber, 0, ner.LabelInvoiceNumber); ok {
		spans = append(spans, sp)
	}
	if sp, ok := find(text, fields.Date, 0, ner.LabelDate); ok {
		spans = append(spans, sp)
	}

	amount := FormatAmount(fields.TotalAmount)
	if sp, ok := find(text, amount, 0, ner.LabelAmount); ok {
		spans = append(spans, sp)
		if cur, ok := find(text, fields.Currency, sp.End, ner.LabelCurrency); ok {
			spans = append(spans, cur)
		}
	}
	return spans
}

// FormatAmount renders a total the way the source documents print it: two
// fractional digits, no grouping.
func FormatAmount(amount float64) string {
	return fmt.Sprintf("%.2f", amount)
}

// find locates the first occurrence of value in text at or after offset.
// Empty values never match.
func find(text, value string, offset int, label ner.Label) (ner.Span, bool) {
	if value == "" || offset > len(text) {
		return ner.Span{}, false
	}
	i := strings.Index(text[offset:], value)
	if i < 0 {
		return ner.Span{}, false
	}
	start := offset + i
	return ner.Span{Start: start, End: start + len(value), Label: label}, true
}
