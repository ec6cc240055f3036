package ner

import (
	"fmt"
	"log/slog"
	"math/rand"
)

// TrainOptions controls a full training-from-scratch run.
type TrainOptions struct {
	Epochs    int
	BatchSize int
	Holdout   float64 // fraction of examples held out for evaluation
	Seed      int64   // drives the split, shuffles and dropout
	Dropout   float64
}

func (o TrainOptions) withDefaults() TrainOptions {
	if o.Epochs <= 0 {
		o.Epochs = 20
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 8
	}
	if o.Holdout <= 0 || o.Holdout >= 1 {
		o.Holdout = 0.2
	}
	if o.Seed == 0 {
		o.Seed = 42
	}
	if o.Dropout < 0 || o.Dropout >= 1 {
		o.Dropout = 0.3
	}
	return o
}

// UpdateOptions controls an incremental update run.
type UpdateOptions struct {
	Epochs  int
	Seed    int64
	Dropout float64
}

func (o UpdateOptions) withDefaults() UpdateOptions {
	if o.Epochs <= 0 {
		o.Epochs = 5
	}
	if o.Seed == 0 {
		o.Seed = 42
	}
	if o.Dropout < 0 || o.Dropout >= 1 {
		o.Dropout = 0.3
	}
	return o
}

// TrainReport summarizes a full training run.
type TrainReport struct {
	TrainExamples int
	TestExamples  int
	EpochLosses   []float64
	Accuracy      float64
}

// UpdateReport summarizes an incremental update run. Examples is zero when
// the update was a no-op.
type UpdateReport struct {
	Examples    int
	EpochLosses []float64
}

// Trainer owns the model lifecycle around one snapshot location: full
// training of a blank model and lightweight incremental updates of a
// persisted one.
type Trainer struct {
	snapshotDir string
	logger      *slog.Logger
}

// NewTrainer creates a Trainer bound to the snapshot directory.
func NewTrainer(snapshotDir string) *Trainer {
	return &Trainer{snapshotDir: snapshotDir, logger: slog.Default()}
}

// TrainFromScratch builds a blank model with the default label set, trains it
// over a seeded train/holdout split with per-epoch shuffling and fixed-size
// batches, and evaluates exact-match accuracy on the holdout. The model is
// returned unpersisted; call Save when the caller decides to keep it.
func (t *Trainer) TrainFromScratch(examples []Example, opts TrainOptions) (*Model, TrainReport, error) {
	opts = opts.withDefaults()
	if len(examples) == 0 {
		return nil, TrainReport{}, fmt.Errorf("no training examples")
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	train, test := split(examples, opts.Holdout, rng)

	model := NewModel(DefaultLabels())
	report := TrainReport{
		TrainExamples: len(train),
		TestExamples:  len(test),
		EpochLosses:   make([]float64, 0, opts.Epochs),
	}

	for epoch := 1; epoch <= opts.Epochs; epoch++ {
		rng.Shuffle(len(train), func(i, j int) { train[i], train[j] = train[j], train[i] })

		var loss float64
		for start := 0; start < len(train); start += opts.BatchSize {
			end := start + opts.BatchSize
			if end > len(train) {
				end = len(train)
			}
			loss += model.Update(train[start:end], opts.Dropout, rng)
		}
		report.EpochLosses = append(report.EpochLosses, loss)
		t.logger.Info("epoch finished", "epoch", epoch, "epochs", opts.Epochs, "loss", loss)
	}

	report.Accuracy = Evaluate(model, test)
	t.logger.Info("evaluation finished", "test_examples", len(test), "accuracy", report.Accuracy)
	return model, report, nil
}

// Save persists m to the trainer's snapshot location.
func (t *Trainer) Save(m *Model) error {
	return Save(m, t.snapshotDir)
}

// UpdateIncrementally loads the persisted snapshot, extends its label set
// with any labels present in examples, shuffles the batch once and performs
// one whole-batch update per epoch, then persists the updated snapshot.
//
// An empty batch is a no-op: nothing is loaded, nothing is written, and the
// report shows zero work.
func (t *Trainer) UpdateIncrementally(examples []Example, opts UpdateOptions) (UpdateReport, error) {
	opts = opts.withDefaults()
	if len(examples) == 0 {
		return UpdateReport{}, nil
	}

	model, err := Load(t.snapshotDir)
	if err != nil {
		return UpdateReport{}, fmt.Errorf("loading snapshot: %w", err)
	}
	for _, ex := range examples {
		for _, sp := range ex.Spans {
			model.AddLabel(sp.Label)
		}
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	batch := make([]Example, len(examples))
	copy(batch, examples)
	rng.Shuffle(len(batch), func(i, j int) { batch[i], batch[j] = batch[j], batch[i] })

	report := UpdateReport{
		Examples:    len(batch),
		EpochLosses: make([]float64, 0, opts.Epochs),
	}
	for epoch := 1; epoch <= opts.Epochs; epoch++ {
		loss := model.Update(batch, opts.Dropout, rng)
		report.EpochLosses = append(report.EpochLosses, loss)
		t.logger.Info("incremental epoch finished", "epoch", epoch, "epochs", opts.Epochs, "loss", loss)
	}

	if err := Save(model, t.snapshotDir); err != nil {
		return report, fmt.Errorf("saving snapshot: %w", err)
	}
	return report, nil
}

// split shuffles a copy of examples and carves off the holdout fraction as
// the test partition. The train partition is never left empty.
func split(examples []Example, holdout float64, rng *rand.Rand) (train, test []Example) {
	shuffled := make([]Example, len(examples))
	copy(shuffled, examples)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	nTest := int(float64(len(shuffled)) * holdout)
	if nTest >= len(shuffled) {
		nTest = len(shuffled) - 1
	}
	return shuffled[nTest:], shuffled[:nTest]
}

// Evaluate computes exact-match span accuracy over test examples: the number
// of predicted (start, end, label) triples also present in the truth, divided
// by the number of true triples. Returns 0 when the truth total is 0.
func Evaluate(m *Model, test []Example) float64 {
	correct, total := 0, 0
	for _, ex := range test {
		truth := make(map[Span]bool, len(ex.Spans))
		for _, sp := range ex.Spans {
			truth[sp] = true
		}
		total += len(ex.Spans)
		for _, sp := range m.Predict(ex.Text) {
			if truth[sp] {
				correct++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(correct) / float64(total)
}
