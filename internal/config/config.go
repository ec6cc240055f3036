// Package config carries the explicit process configuration. Values come
// from defaults, then the JSON config file at
// $XDG_CONFIG_HOME/invoices/config.json, then INVOICES_* environment
// variables. Nothing in the pipeline reads ambient global state.
package config

import (
	"os"
	"path/filepath"
)

type Config struct {
	Storage StorageConfig
	Paths   PathsConfig
	OCR     OCRConfig
	Model   ModelConfig
	Train   TrainConfig
	Ingest  IngestConfig
	Log     LogConfig
}

// StorageConfig locates the SQLite ledger.
type StorageConfig struct {
	DataDir string
}

// PathsConfig holds the type-partitioned intake roots and the processed area
// the orchestrator relocates committed documents into.
type PathsConfig struct {
	PDFDir       string
	ImageDir     string
	ProcessedDir string
}

// OCRConfig configures the text extractor.
type OCRConfig struct {
	Languages   string // Tesseract profile, e.g. "lav+eng+rus"
	Pdftoppm    string
	DPI         int
	MaxPages    int
	TessdataDir string
	Recipe      string // "full", "grayscale" or "none"
}

// ModelConfig locates the model snapshot directory.
type ModelConfig struct {
	Dir string
}

// TrainConfig tunes full training-from-scratch.
type TrainConfig struct {
	Epochs    int
	BatchSize int
	Holdout   float64
	Seed      int
	Dropout   float64
}

// IngestConfig tunes the incremental ingestion run.
type IngestConfig struct {
	Epochs      int
	MaxAttempts int // 0 = documents that never align are retried forever
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Storage: StorageConfig{DataDir: defaultDataDir()},
		Paths: PathsConfig{
			PDFDir:       "invoices/newpdf",
			ImageDir:     "invoices/newimages",
			ProcessedDir: "invoices/processed",
		},
		OCR: OCRConfig{
			Languages: "lav+eng+rus",
			Pdftoppm:  "pdftoppm",
			DPI:       300,
			Recipe:    "full",
		},
		Model: ModelConfig{Dir: "invoice_ner_model"},
		Train: TrainConfig{
			Epochs:    20,
			BatchSize: 8,
			Holdout:   0.2,
			Seed:      42,
			Dropout:   0.3,
		},
		Ingest: IngestConfig{
			Epochs:      5,
			MaxAttempts: 0,
		},
		Log: LogConfig{Level: "info"},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "invoices-data"
		}
	}
	return filepath.Join(dir, "invoices")
}

// Load reads configuration from the file backend and applies environment
// overrides.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()
	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}
