// Package ocr turns invoice files (PDF, JPG, PNG) into plain text. Each page
// goes through a fixed preprocessing recipe and a single OCR pass; PDF pages
// are rasterized first unless the file carries a usable embedded text layer.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// Config is the explicit extractor configuration; there is no ambient global
// state. Zero values fall back to the defaults below.
type Config struct {
	Languages   []string // Tesseract language profile, default lav+eng+rus
	Recipe      Recipe
	Pdftoppm    string // binary name or absolute path
	DPI         int    // rasterization DPI, default 300
	MaxPages    int    // 0 = no limit
	TessdataDir string
}

// Extractor is a pure function of the file bytes: one attempt per document
// per call, no retries, no caching of extracted text.
type Extractor struct {
	cfg    Config
	engine Engine
	runner Runner
	logger *slog.Logger
}

// New creates an Extractor. engine may be nil, in which case the Tesseract
// engine built from cfg is used.
func New(cfg Config, engine Engine) *Extractor {
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"lav", "eng", "rus"}
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if engine == nil {
		engine = NewTesseractEngine(cfg.Languages, cfg.TessdataDir)
	}
	return &Extractor{
		cfg:    cfg,
		engine: engine,
		runner: execRunner{},
		logger: slog.Default(),
	}
}

// Extract returns the document's text, or "" when anything goes wrong. This
// is the batch-caller contract: extraction failures are recovered locally and
// the document is simply skipped.
func (e *Extractor) Extract(ctx context.Context, path, fileType string) string {
	text, err := e.extract(ctx, path, fileType)
	if err != nil {
		e.logger.Warn("extraction failed", "path", path, "file_type", fileType, "error", err)
		return ""
	}
	return text
}

// ExtractStrict is the interactive single-document variant: the file type is
// derived from the extension and failures are surfaced to the caller.
func (e *Extractor) ExtractStrict(ctx context.Context, path string) (string, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return e.extract(ctx, path, ext)
}

func (e *Extractor) extract(ctx context.Context, path, fileType string) (string, error) {
	switch strings.ToLower(fileType) {
	case "pdf":
		return e.extractPDF(ctx, path)
	case "jpg", "jpeg", "png":
		return e.extractImage(path)
	default:
		return "", fmt.Errorf("unsupported file type %q", fileType)
	}
}

// extractPDF tries the embedded text layer first; scanned PDFs fall through
// to page-by-page rasterization + OCR, page texts joined by a newline.
func (e *Extractor) extractPDF(ctx context.Context, path string) (string, error) {
	if text, err := textLayer(path); err == nil && text != "" {
		e.logger.Debug("used embedded text layer", "path", path)
		return text, nil
	}

	pages, err := pageCount(path)
	if err != nil {
		return "", err
	}
	e.logger.Debug("rasterizing pdf", "path", path, "pages", pages)

	images, cleanup, err := rasterize(ctx, e.runner, e.cfg.Pdftoppm, e.cfg.DPI, e.cfg.MaxPages, path)
	if err != nil {
		return "", err
	}
	defer cleanup()

	var b strings.Builder
	for _, imgPath := range images {
		text, err := e.recognizeFile(imgPath)
		if err != nil {
			return "", fmt.Errorf("page %s: %w", imgPath, err)
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(text)
	}
	return strings.TrimSpace(b.String()), nil
}

func (e *Extractor) extractImage(path string) (string, error) {
	text, err := e.recognizeFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// recognizeFile loads one page image, applies the preprocessing recipe and
// runs a single OCR pass.
func (e *Extractor) recognizeFile(path string) (string, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return "", fmt.Errorf("reading image: %w", err)
	}
	return e.recognize(img)
}

func (e *Extractor) recognize(img image.Image) (string, error) {
	processed := Preprocess(img, e.cfg.Recipe)
	var buf bytes.Buffer
	if err := png.Encode(&buf, processed); err != nil {
		return "", fmt.Errorf("encoding page image: %w", err)
	}
	return e.engine.Recognize(buf.Bytes())
}
