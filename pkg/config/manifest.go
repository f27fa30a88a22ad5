package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest describes one hyperparameter search experiment as a yaml
// document. It carries only the knobs that vary between experiments;
// anything it leaves at the zero value falls through to the loaded
// Config.
type Manifest struct {
	Study   string   `yaml:"study"`
	Variant string   `yaml:"variant"` // fusion or bm25
	Metric  string   `yaml:"metric"`
	Metrics []string `yaml:"metrics"`
	Trials  int      `yaml:"trials"`
	K       int      `yaml:"k"`

	Dataset struct {
		Train   string `yaml:"train"`
		Heldout string `yaml:"heldout"`
		KB      string `yaml:"kb"`
	} `yaml:"dataset"`

	OutputDir string `yaml:"output_dir"`
}

// LoadManifest reads and validates an experiment manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	switch m.Variant {
	case "", "fusion", "bm25":
	default:
		return nil, fmt.Errorf("manifest %s: unknown variant %q", path, m.Variant)
	}
	return &m, nil
}

// Apply overrides the non-empty manifest fields onto cfg.
func (m *Manifest) Apply(cfg *Config) {
	if m.Metric != "" {
		cfg.Hyper.Metric = m.Metric
	}
	if len(m.Metrics) > 0 {
		cfg.Hyper.Metrics = m.Metrics
	}
	if m.Trials > 0 {
		cfg.Hyper.Trials = m.Trials
	}
	if m.K > 0 {
		cfg.Hyper.K = m.K
	}
	if m.Dataset.Train != "" {
		cfg.Dataset.Train = m.Dataset.Train
	}
	if m.Dataset.Heldout != "" {
		cfg.Dataset.Heldout = m.Dataset.Heldout
	}
	if m.Dataset.KB != "" {
		cfg.Dataset.KB = m.Dataset.KB
	}
	if m.OutputDir != "" {
		cfg.Hyper.OutputDir = m.OutputDir
	}
}
