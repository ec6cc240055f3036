package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ynos999/aiinvocesmodel/internal/align"
	"github.com/ynos999/aiinvocesmodel/internal/analyze"
	"github.com/ynos999/aiinvocesmodel/internal/config"
	"github.com/ynos999/aiinvocesmodel/internal/dataset"
	"github.com/ynos999/aiinvocesmodel/internal/ingest"
	"github.com/ynos999/aiinvocesmodel/internal/ner"
	"github.com/ynos999/aiinvocesmodel/internal/ocr"
	"github.com/ynos999/aiinvocesmodel/internal/storage"
)

func buildExtractor(cfg config.Config) *ocr.Extractor {
	recipe := ocr.DefaultRecipe()
	switch strings.ToLower(cfg.OCR.Recipe) {
	case "grayscale":
		recipe = ocr.Recipe{Grayscale: true}
	case "none":
		recipe = ocr.Recipe{}
	}
	return ocr.New(ocr.Config{
		Languages:   strings.Split(cfg.OCR.Languages, "+"),
		Recipe:      recipe,
		Pdftoppm:    cfg.OCR.Pdftoppm,
		DPI:         cfg.OCR.DPI,
		MaxPages:    cfg.OCR.MaxPages,
		TessdataDir: cfg.OCR.TessdataDir,
	}, nil)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// --- analyze ---

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Extract invoice fields from a single PDF or image",
	Long: `Extract invoice fields from a single PDF or image.

The document is OCRed, the persisted model predicts entity spans and the
canonical fields are resolved first-match-wins.

Examples:
  invoices analyze invoice.pdf
  invoices analyze scan.jpg --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		svc := analyze.NewService(cfg.Model.Dir, buildExtractor(cfg))
		result, err := svc.Infer(ctx, args[0])
		if err != nil {
			return err
		}

		if jsonOut {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		printStatus("Company", "%s", orDash(result.Company))
		printStatus("Invoice number", "%s", orDash(result.InvoiceNumber))
		printStatus("Date", "%s", orDash(result.Date))
		printStatus("Amount", "%s", orDash(result.Amount))
		printStatus("Currency", "%s", orDash(result.Currency))

		if len(result.Entities) > 0 {
			fmt.Println()
			for _, e := range result.Entities {
				fmt.Printf("  %s  %q  [%d:%d]\n", colorize(colorCyan, string(e.Label)), e.Text, e.Start, e.End)
			}
		}

		fmt.Printf("\n%s\n%s\n", colorize(colorBold, "Raw text:"), result.RawText)
		return nil
	},
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	analyzeCmd.Flags().Bool("json", false, "print the result as JSON")
}

// --- import ---

var importCmd = &cobra.Command{
	Use:   "import <csv>",
	Short: "Import labeled invoice metadata from a CSV file",
	Long: `Import labeled invoice metadata from a CSV file into the ledger.

The dataset corpus feeds full training; the intake corpus feeds
incremental ingestion.

Examples:
  invoices import dataset.csv
  invoices import new_invoices.csv --corpus intake`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		corpus, _ := cmd.Flags().GetString("corpus")
		if corpus != storage.CorpusDataset && corpus != storage.CorpusIntake {
			return fmt.Errorf("invalid corpus %q: must be %q or %q", corpus, storage.CorpusDataset, storage.CorpusIntake)
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening CSV file: %w", err)
		}
		defer f.Close()

		n, err := store.ImportCSV(f, corpus)
		if err != nil {
			return err
		}

		printSuccess("Imported %d documents into the %s corpus", n, corpus)
		return nil
	},
}

func init() {
	importCmd.Flags().String("corpus", storage.CorpusDataset, "target corpus (dataset or intake)")
}

// --- train ---

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the NER model from scratch on the dataset corpus",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		docs, err := store.ListDataset()
		if err != nil {
			return fmt.Errorf("listing dataset: %w", err)
		}
		if len(docs) == 0 {
			return fmt.Errorf("dataset corpus is empty; run 'invoices import' first")
		}

		ctx, stop := signalContext()
		defer stop()

		printStep("Building training corpus from %d documents...", len(docs))
		builder := dataset.NewBuilder(buildExtractor(cfg), align.NewFirstMatch())
		examples, skipped := builder.Build(ctx, docs)
		if len(examples) == 0 {
			return fmt.Errorf("no trainable examples: all %d documents were skipped", skipped)
		}
		if skipped > 0 {
			printWarning("%d documents skipped (unreadable or no aligned fields)", skipped)
		}

		printStep("Training on %d examples...", len(examples))
		trainer := ner.NewTrainer(cfg.Model.Dir)
		model, report, err := trainer.TrainFromScratch(examples, ner.TrainOptions{
			Epochs:    cfg.Train.Epochs,
			BatchSize: cfg.Train.BatchSize,
			Holdout:   cfg.Train.Holdout,
			Seed:      int64(cfg.Train.Seed),
			Dropout:   cfg.Train.Dropout,
		})
		if err != nil {
			return err
		}

		if err := trainer.Save(model); err != nil {
			return fmt.Errorf("saving model: %w", err)
		}

		printStatus("Train examples", "%d", report.TrainExamples)
		printStatus("Test examples", "%d", report.TestExamples)
		if n := len(report.EpochLosses); n > 0 {
			printStatus("Final loss", "%.1f", report.EpochLosses[n-1])
		}
		printStatus("Accuracy", "%.2f%%", report.Accuracy*100)
		printSuccess("Model saved to %s", cfg.Model.Dir)
		return nil
	},
}

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest pending intake documents and update the model incrementally",
	Long: `Ingest pending intake documents and update the model incrementally.

Every pending intake row whose file OCRs and aligns to at least one field
joins one incremental training batch. Successful documents are marked
processed and their files move to the processed area; the rest stay
pending for a later run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		ctx, stop := signalContext()
		defer stop()

		orch := ingest.New(
			store,
			buildExtractor(cfg),
			align.NewFirstMatch(),
			ner.NewTrainer(cfg.Model.Dir),
			ingest.Paths{
				PDFDir:       cfg.Paths.PDFDir,
				ImageDir:     cfg.Paths.ImageDir,
				ProcessedDir: cfg.Paths.ProcessedDir,
			},
			ingest.Options{
				Epochs:      cfg.Ingest.Epochs,
				Seed:        int64(cfg.Train.Seed),
				Dropout:     cfg.Train.Dropout,
				MaxAttempts: cfg.Ingest.MaxAttempts,
			},
		)

		report, err := orch.Run(ctx)
		if err != nil {
			return err
		}

		printStatus("Scanned", "%d", report.Scanned)
		printStatus("Committed", "%d", report.Committed)
		printStatus("Skipped", "%d", report.Skipped)
		if report.Committed > 0 {
			printSuccess("Model updated with %d documents", report.Committed)
		} else {
			printWarning("No documents ingested")
		}
		return nil
	},
}

// --- ledger ---

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the document ledger",
}

var ledgerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show document counts per corpus and status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		docs, err := store.ListDataset()
		if err != nil {
			return fmt.Errorf("listing dataset: %w", err)
		}
		counts, err := store.CountByStatus()
		if err != nil {
			return fmt.Errorf("counting intake documents: %w", err)
		}

		printStatus("Dataset", "%d", len(docs))
		printStatus("Pending", "%d", counts[storage.StatusPending])
		printStatus("Processed", "%d", counts[storage.StatusProcessed])
		printStatus("Quarantined", "%d", counts[storage.StatusQuarantined])
		printStatus("Data dir", "%s", cfg.Storage.DataDir)
		return nil
	},
}

func init() {
	ledgerCmd.AddCommand(ledgerStatusCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
