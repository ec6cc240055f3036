package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "storage.data_dir", typ: kString, env: "INVOICES_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "paths.pdf_dir", typ: kString, env: "INVOICES_PATHS_PDF_DIR",
		apply:   func(cfg *Config, v any) { cfg.Paths.PDFDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Paths.PDFDir },
	},
	{
		key: "paths.image_dir", typ: kString, env: "INVOICES_PATHS_IMAGE_DIR",
		apply:   func(cfg *Config, v any) { cfg.Paths.ImageDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Paths.ImageDir },
	},
	{
		key: "paths.processed_dir", typ: kString, env: "INVOICES_PATHS_PROCESSED_DIR",
		apply:   func(cfg *Config, v any) { cfg.Paths.ProcessedDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Paths.ProcessedDir },
	},
	{
		key: "ocr.languages", typ: kString, env: "INVOICES_OCR_LANGUAGES",
		apply:   func(cfg *Config, v any) { cfg.OCR.Languages = v.(string) },
		extract: func(cfg Config) any { return cfg.OCR.Languages },
	},
	{
		key: "ocr.pdftoppm", typ: kString, env: "INVOICES_OCR_PDFTOPPM",
		apply:   func(cfg *Config, v any) { cfg.OCR.Pdftoppm = v.(string) },
		extract: func(cfg Config) any { return cfg.OCR.Pdftoppm },
	},
	{
		key: "ocr.dpi", typ: kInt, env: "INVOICES_OCR_DPI",
		apply:   func(cfg *Config, v any) { cfg.OCR.DPI = v.(int) },
		extract: func(cfg Config) any { return cfg.OCR.DPI },
	},
	{
		key: "ocr.max_pages", typ: kInt, env: "INVOICES_OCR_MAX_PAGES",
		apply:   func(cfg *Config, v any) { cfg.OCR.MaxPages = v.(int) },
		extract: func(cfg Config) any { return cfg.OCR.MaxPages },
	},
	{
		key: "ocr.tessdata_dir", typ: kString, env: "INVOICES_OCR_TESSDATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.OCR.TessdataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.OCR.TessdataDir },
	},
	{
		key: "ocr.recipe", typ: kString, env: "INVOICES_OCR_RECIPE",
		apply:   func(cfg *Config, v any) { cfg.OCR.Recipe = v.(string) },
		extract: func(cfg Config) any { return cfg.OCR.Recipe },
	},
	{
		key: "model.dir", typ: kString, env: "INVOICES_MODEL_DIR",
		apply:   func(cfg *Config, v any) { cfg.Model.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Model.Dir },
	},
	{
		key: "train.epochs", typ: kInt, env: "INVOICES_TRAIN_EPOCHS",
		apply:   func(cfg *Config, v any) { cfg.Train.Epochs = v.(int) },
		extract: func(cfg Config) any { return cfg.Train.Epochs },
	},
	{
		key: "train.batch_size", typ: kInt, env: "INVOICES_TRAIN_BATCH_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Train.BatchSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Train.BatchSize },
	},
	{
		key: "train.holdout", typ: kFloat, env: "INVOICES_TRAIN_HOLDOUT",
		apply:   func(cfg *Config, v any) { cfg.Train.Holdout = v.(float64) },
		extract: func(cfg Config) any { return cfg.Train.Holdout },
	},
	{
		key: "train.seed", typ: kInt, env: "INVOICES_TRAIN_SEED",
		apply:   func(cfg *Config, v any) { cfg.Train.Seed = v.(int) },
		extract: func(cfg Config) any { return cfg.Train.Seed },
	},
	{
		key: "train.dropout", typ: kFloat, env: "INVOICES_TRAIN_DROPOUT",
		apply:   func(cfg *Config, v any) { cfg.Train.Dropout = v.(float64) },
		extract: func(cfg Config) any { return cfg.Train.Dropout },
	},
	{
		key: "ingest.epochs", typ: kInt, env: "INVOICES_INGEST_EPOCHS",
		apply:   func(cfg *Config, v any) { cfg.Ingest.Epochs = v.(int) },
		extract: func(cfg Config) any { return cfg.Ingest.Epochs },
	},
	{
		key: "ingest.max_attempts", typ: kInt, env: "INVOICES_INGEST_MAX_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.Ingest.MaxAttempts = v.(int) },
		extract: func(cfg Config) any { return cfg.Ingest.MaxAttempts },
	},
	{
		key: "log.level", typ: kString, env: "INVOICES_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
