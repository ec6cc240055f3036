package ocr

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakeEngine struct {
	text string
	err  error
}

func (f fakeEngine) Recognize(_ []byte) (string, error) {
	return f.text, f.err
}

// fakeRunner plays pdftoppm: it writes n page images under the prefix it is
// handed instead of shelling out.
type fakeRunner struct {
	pages int
	err   error
}

func (f fakeRunner) Run(_ context.Context, _ string, args ...string) ([]byte, []byte, error) {
	if f.err != nil {
		return nil, []byte("boom"), f.err
	}
	prefix := args[len(args)-1]
	for i := 1; i <= f.pages; i++ {
		if err := writeTestPNG(fmt.Sprintf("%s-%d.png", prefix, i)); err != nil {
			return nil, nil, err
		}
	}
	return nil, nil, nil
}

func writeTestPNG(path string) error {
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	img.SetGray(1, 1, color.Gray{Y: 0})

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func TestExtractImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.png")
	if err := writeTestPNG(path); err != nil {
		t.Fatal(err)
	}

	e := New(Config{Recipe: DefaultRecipe()}, fakeEngine{text: "  Acme Ltd 99.50 EUR \n"})
	got := e.Extract(context.Background(), path, "png")
	if got != "Acme Ltd 99.50 EUR" {
		t.Errorf("Extract = %q, want trimmed engine text", got)
	}
}

// Batch extraction recovers every failure locally and returns "".
func TestExtractReturnsEmptyOnFailure(t *testing.T) {
	e := New(Config{}, fakeEngine{text: "irrelevant"})

	if got := e.Extract(context.Background(), "does-not-exist.png", "png"); got != "" {
		t.Errorf("Extract on missing file = %q, want empty", got)
	}
	if got := e.Extract(context.Background(), "whatever.tiff", "tiff"); got != "" {
		t.Errorf("Extract on unsupported type = %q, want empty", got)
	}

	path := filepath.Join(t.TempDir(), "scan.png")
	if err := writeTestPNG(path); err != nil {
		t.Fatal(err)
	}
	broken := New(Config{}, fakeEngine{err: fmt.Errorf("tesseract unavailable")})
	if got := broken.Extract(context.Background(), path, "png"); got != "" {
		t.Errorf("Extract with failing engine = %q, want empty", got)
	}
}

// The strict variant surfaces errors and derives the type from the extension.
func TestExtractStrict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.PNG")
	if err := writeTestPNG(path); err != nil {
		t.Fatal(err)
	}

	e := New(Config{}, fakeEngine{text: "hello"})
	got, err := e.ExtractStrict(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hello" {
		t.Errorf("ExtractStrict = %q, want %q", got, "hello")
	}

	if _, err := e.ExtractStrict(context.Background(), "notes.txt"); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
	if _, err := e.ExtractStrict(context.Background(), "missing.png"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestConfigDefaults(t *testing.T) {
	e := New(Config{}, fakeEngine{})
	if got := strings.Join(e.cfg.Languages, "+"); got != "lav+eng+rus" {
		t.Errorf("Languages = %q, want lav+eng+rus", got)
	}
	if e.cfg.Pdftoppm != "pdftoppm" {
		t.Errorf("Pdftoppm = %q, want pdftoppm", e.cfg.Pdftoppm)
	}
	if e.cfg.DPI != 300 {
		t.Errorf("DPI = %d, want 300", e.cfg.DPI)
	}
}

func TestRasterize(t *testing.T) {
	pages, cleanup, err := rasterize(context.Background(), fakeRunner{pages: 3}, "pdftoppm", 300, 0, "doc.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cleanup()

	if len(pages) != 3 {
		t.Fatalf("len(pages) = %d, want 3", len(pages))
	}
	for i, p := range pages {
		if !strings.HasSuffix(p, fmt.Sprintf("-%d.png", i+1)) {
			t.Errorf("page %d = %q, out of order", i, p)
		}
	}
}

func TestRasterizeMaxPages(t *testing.T) {
	pages, cleanup, err := rasterize(context.Background(), fakeRunner{pages: 5}, "pdftoppm", 300, 2, "doc.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cleanup()

	if len(pages) != 2 {
		t.Errorf("len(pages) = %d, want capped at 2", len(pages))
	}
}

func TestRasterizeFailures(t *testing.T) {
	if _, _, err := rasterize(context.Background(), fakeRunner{err: fmt.Errorf("exit 1")}, "pdftoppm", 300, 0, "doc.pdf"); err == nil {
		t.Fatal("expected error from failing pdftoppm")
	}
	if _, _, err := rasterize(context.Background(), fakeRunner{pages: 0}, "pdftoppm", 300, 0, "doc.pdf"); err == nil {
		t.Fatal("expected error when no pages were produced")
	}
}
