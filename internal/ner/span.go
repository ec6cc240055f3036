package ner

// Label identifies an entity category the tagger can recognize.
type Label string

const (
	LabelCompany       Label = "COMPANY"
	LabelInvoiceNumber Label = "INVOICE_NUMBER"
	LabelDate          Label = "DATE"
	LabelAmount        Label = "AMOUNT"
	LabelCurrency      Label = "CURRENCY"
)

// DefaultLabels returns the invoice field labels a blank model starts with.
func DefaultLabels() []Label {
	return []Label{LabelCompany, LabelInvoiceNumber, LabelDate, LabelAmount, LabelCurrency}
}

// Span is a labeled byte-offset range within extracted text.
// Invariant: 0 <= Start < End <= len(text).
type Span struct {
	Start int
	End   int
	Label Label
}

// Example pairs one document's extracted text with its training spans.
type Example struct {
	Text  string
	Spans []Span
}
