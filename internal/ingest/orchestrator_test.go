package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ynos999/aiinvocesmodel/internal/align"
	"github.com/ynos999/aiinvocesmodel/internal/ner"
	"github.com/ynos999/aiinvocesmodel/internal/storage"
)

// mockExtractor serves canned text keyed by resolved file path.
type mockExtractor struct {
	texts map[string]string
}

func (m mockExtractor) Extract(_ context.Context, path, _ string) string {
	return m.texts[filepath.Base(path)]
}

// mockAligner returns canned spans keyed by extracted text.
type mockAligner struct {
	spans map[string][]ner.Span
}

func (m mockAligner) Align(text string, _ align.Fields) []ner.Span {
	return m.spans[text]
}

// mockUpdater records the batches it receives.
type mockUpdater struct {
	batches [][]ner.Example
	err     error
}

func (m *mockUpdater) UpdateIncrementally(examples []ner.Example, _ ner.UpdateOptions) (ner.UpdateReport, error) {
	m.batches = append(m.batches, examples)
	if m.err != nil {
		return ner.UpdateReport{}, m.err
	}
	return ner.UpdateReport{Examples: len(examples), EpochLosses: []float64{3, 1}}, nil
}

type fixture struct {
	store   *storage.Store
	paths   Paths
	updater *mockUpdater
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	root := t.TempDir()
	paths := Paths{
		PDFDir:       filepath.Join(root, "newpdf"),
		ImageDir:     filepath.Join(root, "newimages"),
		ProcessedDir: filepath.Join(root, "processed"),
	}
	for _, dir := range []string{paths.PDFDir, paths.ImageDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("creating %s: %v", dir, err)
		}
	}
	return &fixture{store: s, paths: paths, updater: &mockUpdater{}}
}

func (f *fixture) addPending(t *testing.T, id, name, fileType string, withFile bool) {
	t.Helper()
	if err := f.store.InsertDocument(storage.Document{
		ID:       id,
		Company:  "Acme Ltd",
		FilePath: name,
		FileType: fileType,
		Corpus:   storage.CorpusIntake,
	}); err != nil {
		t.Fatalf("inserting %s: %v", id, err)
	}
	if withFile {
		dir := f.paths.PDFDir
		if fileType != "pdf" {
			dir = f.paths.ImageDir
		}
		if err := os.WriteFile(filepath.Join(dir, name), []byte("content"), 0o644); err != nil {
			t.Fatalf("writing file %s: %v", name, err)
		}
	}
}

func (f *fixture) orchestrator(extractor TextExtractor, aligner align.Aligner, opts Options) *Orchestrator {
	return New(f.store, extractor, aligner, f.updater, f.paths, opts)
}

func spanFor(label ner.Label) []ner.Span {
	return []ner.Span{{Start: 0, End: 4, Label: label}}
}

func TestRunCommitsAlignedDocuments(t *testing.T) {
	f := newFixture(t)
	f.addPending(t, "a", "a.pdf", "pdf", true)
	f.addPending(t, "b", "b.jpg", "jpg", true)

	extractor := mockExtractor{texts: map[string]string{"a.pdf": "text a", "b.jpg": "text b"}}
	aligner := mockAligner{spans: map[string][]ner.Span{
		"text a": spanFor(ner.LabelCompany),
		"text b": spanFor(ner.LabelDate),
	}}

	report, err := f.orchestrator(extractor, aligner, Options{}).Run(context.Background())
	if err != nil {
		t.Fatalf("run error: %v", err)
	}

	if report.Scanned != 2 || report.Committed != 2 || report.Skipped != 0 {
		t.Errorf("report = %+v, want scanned 2 committed 2 skipped 0", report)
	}
	if len(f.updater.batches) != 1 || len(f.updater.batches[0]) != 2 {
		t.Fatalf("updater batches = %v, want one batch of 2", f.updater.batches)
	}

	// Rows left the pending set and files moved to the processed area.
	pending, err := f.store.ListPending()
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending = %v, want empty", pending)
	}
	for _, name := range []string{"a.pdf", "b.jpg"} {
		if _, err := os.Stat(filepath.Join(f.paths.ProcessedDir, name)); err != nil {
			t.Errorf("file %s not in processed area: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(f.paths.PDFDir, "a.pdf")); !os.IsNotExist(err) {
		t.Error("a.pdf still in intake after commit")
	}

	journal, err := f.store.PendingRelocations()
	if err != nil {
		t.Fatalf("journal error: %v", err)
	}
	if len(journal) != 0 {
		t.Errorf("journal = %v, want cleared", journal)
	}
}

// A row whose file is missing stays pending with attempts untouched; the file
// may show up before a later run.
func TestRunFileMissingLeavesRowUnchanged(t *testing.T) {
	f := newFixture(t)
	f.addPending(t, "gone", "gone.pdf", "pdf", false)
	f.addPending(t, "ok", "ok.pdf", "pdf", true)

	extractor := mockExtractor{texts: map[string]string{"ok.pdf": "good"}}
	aligner := mockAligner{spans: map[string][]ner.Span{"good": spanFor(ner.LabelCompany)}}

	report, err := f.orchestrator(extractor, aligner, Options{MaxAttempts: 1}).Run(context.Background())
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if report.Committed != 1 || report.Skipped != 1 {
		t.Errorf("report = %+v, want committed 1 skipped 1", report)
	}

	d, err := f.store.GetDocument("gone")
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	if d.Status != storage.StatusPending || d.Attempts != 0 {
		t.Errorf("row = status %q attempts %d, want untouched pending/0", d.Status, d.Attempts)
	}
}

// Unreadable or unalignable documents get an attempts bump in the commit
// transaction.
func TestRunBumpsAttemptsForFailedExtraction(t *testing.T) {
	f := newFixture(t)
	f.addPending(t, "bad", "bad.pdf", "pdf", true)
	f.addPending(t, "ok", "ok.pdf", "pdf", true)

	extractor := mockExtractor{texts: map[string]string{"ok.pdf": "good"}} // bad.pdf extracts to ""
	aligner := mockAligner{spans: map[string][]ner.Span{"good": spanFor(ner.LabelCompany)}}

	if _, err := f.orchestrator(extractor, aligner, Options{}).Run(context.Background()); err != nil {
		t.Fatalf("run error: %v", err)
	}

	d, err := f.store.GetDocument("bad")
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	if d.Status != storage.StatusPending || d.Attempts != 1 {
		t.Errorf("row = status %q attempts %d, want pending/1", d.Status, d.Attempts)
	}
	if _, err := os.Stat(filepath.Join(f.paths.PDFDir, "bad.pdf")); err != nil {
		t.Errorf("skipped file left the intake dir: %v", err)
	}
}

// When no document yields a span the whole run is a no-op: no model update
// and no ledger write, not even attempt bumps.
func TestRunEmptyBatchIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.addPending(t, "bad", "bad.pdf", "pdf", true)

	extractor := mockExtractor{texts: map[string]string{}}
	aligner := mockAligner{}

	report, err := f.orchestrator(extractor, aligner, Options{}).Run(context.Background())
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if report.Scanned != 1 || report.Committed != 0 || report.Skipped != 1 {
		t.Errorf("report = %+v, want scanned 1 skipped 1", report)
	}
	if len(f.updater.batches) != 0 {
		t.Errorf("updater called with %v, want no calls", f.updater.batches)
	}

	d, err := f.store.GetDocument("bad")
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	if d.Attempts != 0 || d.Status != storage.StatusPending {
		t.Errorf("row = status %q attempts %d, want untouched pending/0", d.Status, d.Attempts)
	}
}

// A model update failure leaves the ledger and the files untouched.
func TestRunUpdateFailureKeepsLedger(t *testing.T) {
	f := newFixture(t)
	f.addPending(t, "a", "a.pdf", "pdf", true)
	f.updater.err = errors.New("snapshot corrupt")

	extractor := mockExtractor{texts: map[string]string{"a.pdf": "text"}}
	aligner := mockAligner{spans: map[string][]ner.Span{"text": spanFor(ner.LabelCompany)}}

	if _, err := f.orchestrator(extractor, aligner, Options{}).Run(context.Background()); err == nil {
		t.Fatal("expected update error")
	}

	pending, err := f.store.ListPending()
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("pending = %v, want the row retained", pending)
	}
	if _, err := os.Stat(filepath.Join(f.paths.PDFDir, "a.pdf")); err != nil {
		t.Errorf("file moved despite failed update: %v", err)
	}
}

func TestRunUnsupportedFileType(t *testing.T) {
	f := newFixture(t)
	f.addPending(t, "odd", "odd.tiff", "tiff", false)

	report, err := f.orchestrator(mockExtractor{}, mockAligner{}, Options{}).Run(context.Background())
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if report.Skipped != 1 {
		t.Errorf("report = %+v, want skipped 1", report)
	}

	d, _ := f.store.GetDocument("odd")
	if d.Attempts != 0 {
		t.Errorf("attempts = %d, want 0 for unsupported type", d.Attempts)
	}
}

// Reconcile replays moves journaled by an interrupted run.
func TestReconcileReplaysJournal(t *testing.T) {
	f := newFixture(t)
	f.addPending(t, "a", "a.pdf", "pdf", true)

	src := filepath.Join(f.paths.PDFDir, "a.pdf")
	dst := filepath.Join(f.paths.ProcessedDir, "a.pdf")

	// Simulate a crash after the ledger commit but before the file move.
	commit := storage.IngestCommit{
		DocumentID: "a",
		Journal:    storage.Relocation{ID: "j-1", Src: src, Dst: dst},
	}
	if err := f.store.CommitIngest([]storage.IngestCommit{commit}, nil, 0); err != nil {
		t.Fatalf("commit error: %v", err)
	}

	orch := f.orchestrator(mockExtractor{}, mockAligner{}, Options{})
	if err := orch.Reconcile(); err != nil {
		t.Fatalf("reconcile error: %v", err)
	}

	if _, err := os.Stat(dst); err != nil {
		t.Errorf("journaled move not replayed: %v", err)
	}
	journal, err := f.store.PendingRelocations()
	if err != nil {
		t.Fatalf("journal error: %v", err)
	}
	if len(journal) != 0 {
		t.Errorf("journal = %v, want cleared", journal)
	}
}

// A journal entry whose move already happened is simply cleared.
func TestReconcileClearsCompletedMoves(t *testing.T) {
	f := newFixture(t)
	f.addPending(t, "a", "a.pdf", "pdf", false)

	dst := filepath.Join(f.paths.ProcessedDir, "a.pdf")
	if err := os.MkdirAll(f.paths.ProcessedDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dst, []byte("content"), 0o644); err != nil {
		t.Fatal(err)
	}

	commit := storage.IngestCommit{
		DocumentID: "a",
		Journal:    storage.Relocation{ID: "j-1", Src: filepath.Join(f.paths.PDFDir, "a.pdf"), Dst: dst},
	}
	if err := f.store.CommitIngest([]storage.IngestCommit{commit}, nil, 0); err != nil {
		t.Fatalf("commit error: %v", err)
	}

	orch := f.orchestrator(mockExtractor{}, mockAligner{}, Options{})
	if err := orch.Reconcile(); err != nil {
		t.Fatalf("reconcile error: %v", err)
	}

	journal, err := f.store.PendingRelocations()
	if err != nil {
		t.Fatalf("journal error: %v", err)
	}
	if len(journal) != 0 {
		t.Errorf("journal = %v, want cleared", journal)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Errorf("destination file disturbed: %v", err)
	}
}

func TestRunContextCancelled(t *testing.T) {
	f := newFixture(t)
	f.addPending(t, "a", "a.pdf", "pdf", true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.orchestrator(mockExtractor{}, mockAligner{}, Options{}).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
