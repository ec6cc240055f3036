package ocr

import (
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// Engine is the OCR black box: PNG bytes in, recognized text out.
type Engine interface {
	Recognize(png []byte) (string, error)
}

// TesseractEngine runs recognition through the Tesseract C API with a fixed
// multi-language profile.
type TesseractEngine struct {
	languages   []string
	tessdataDir string
}

// NewTesseractEngine creates an engine for the given language profile, e.g.
// ["lav", "eng", "rus"]. tessdataDir may be empty to use the system default.
func NewTesseractEngine(languages []string, tessdataDir string) *TesseractEngine {
	return &TesseractEngine{languages: languages, tessdataDir: tessdataDir}
}

// Recognize performs a single OCR pass over one preprocessed page image.
// A fresh client per call keeps the engine stateless across documents.
func (e *TesseractEngine) Recognize(png []byte) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if e.tessdataDir != "" {
		client.SetTessdataPrefix(e.tessdataDir)
	}
	if len(e.languages) > 0 {
		if err := client.SetLanguage(e.languages...); err != nil {
			return "", fmt.Errorf("setting OCR languages: %w", err)
		}
	}
	if err := client.SetImageFromBytes(png); err != nil {
		return "", fmt.Errorf("setting OCR image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("running OCR: %w", err)
	}
	return text, nil
}
