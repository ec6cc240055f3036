package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// minTextLayerChars is the smallest embedded text layer considered usable.
// Scanned PDFs typically carry none at all; anything shorter is treated as
// scanner noise and the page goes through rasterization + OCR instead.
const minTextLayerChars = 32

// textLayer pulls the embedded text layer out of a born-digital PDF,
// page texts joined by a newline. Returns "" when the layer is unusable.
func textLayer(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("reading page %d text: %w", i, err)
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(text)
	}

	text := strings.TrimSpace(b.String())
	if len(text) < minTextLayerChars {
		return "", nil
	}
	return text, nil
}

// pageCount validates the PDF structure and returns its page count.
func pageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("counting PDF pages: %w", err)
	}
	return n, nil
}

// rasterize renders every PDF page to a PNG in a temp directory using
// pdftoppm and returns the page image paths in page order. The caller must
// invoke cleanup when done with the images.
func rasterize(ctx context.Context, r Runner, pdftoppm string, dpi, maxPages int, path string) ([]string, func(), error) {
	tmpDir, err := os.MkdirTemp("", "invoices-pages-*")
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { os.RemoveAll(tmpDir) }

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r <dpi> -png <in.pdf> <tmp/page>
	_, errb, err := r.Run(ctx, pdftoppm, "-r", fmt.Sprintf("%d", dpi), "-png", path, prefix)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("rasterizing PDF: %w (%s)", err, truncate(string(errb), 512))
	}

	// pdftoppm writes prefix-1.png, prefix-2.png, ...
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if maxPages > 0 && len(matches) > maxPages {
		matches = matches[:maxPages]
	}
	if len(matches) == 0 {
		cleanup()
		return nil, nil, fmt.Errorf("pdftoppm produced no page images")
	}
	return matches, cleanup, nil
}
