package ner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const snapshotFile = "model.json"

// snapshot is the on-disk form of a model. The whole state is written as one
// document; there is no delta versioning.
type snapshot struct {
	Version int                           `json:"version"`
	Labels  []Label                       `json:"labels"`
	Weights map[string]map[string]float64 `json:"weights"`
}

// Save persists m into dir as a full snapshot. The file is written to a
// temporary name and renamed into place so a crash never leaves a torn
// snapshot behind.
func Save(m *Model, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	data, err := json.Marshal(snapshot{
		Version: 1,
		Labels:  m.labels,
		Weights: m.weights,
	})
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(dir, snapshotFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, snapshotFile)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}

// Load reads a persisted snapshot from dir. A missing or corrupt snapshot is
// a fatal error for the caller; no fallback model is synthesized.
func Load(dir string) (*Model, error) {
	data, err := os.ReadFile(filepath.Join(dir, snapshotFile))
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	m := &Model{
		labels:  s.Labels,
		weights: s.Weights,
		lr:      defaultLR,
	}
	if m.weights == nil {
		m.weights = make(map[string]map[string]float64)
	}
	return m, nil
}

// SnapshotExists reports whether dir holds a loadable snapshot file.
func SnapshotExists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, snapshotFile))
	return err == nil
}
