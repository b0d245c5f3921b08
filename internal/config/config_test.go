package config

import (
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Dataset.SourceRoot = "/data/source"
	cfg.Dataset.MetadataPath = "/data/metadata.csv"
	cfg.Output.OutputRoot = "/data/output"
	return cfg
}

func TestValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("Expected valid configuration, got %v", err)
	}
}

func TestValidateRequiresPaths(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for missing paths")
	}
}

func TestValidateRatios(t *testing.T) {
	cfg := validConfig()
	cfg.Split.ValRatio = 0.6
	cfg.Split.TestRatio = 0.5
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error when val+test leave no training data")
	}

	cfg = validConfig()
	cfg.Split.ValRatio = -0.1
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for negative val ratio")
	}
}

func TestTrainRatioDerived(t *testing.T) {
	cfg := validConfig()
	cfg.Split.ValRatio = 0.15
	cfg.Split.TestRatio = 0.25

	if got := cfg.TrainRatio(); got < 0.599 || got > 0.601 {
		t.Errorf("Expected train ratio 0.6, got %f", got)
	}
}

func TestValidateCropRatio(t *testing.T) {
	cfg := validConfig()
	cfg.Transform.EnableCrop = true
	cfg.Transform.CropRatio = 1.5
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for crop ratio above 1")
	}

	// Crop disabled: ratio out of range is irrelevant
	cfg.Transform.EnableCrop = false
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected disabled crop to skip ratio validation, got %v", err)
	}
}

func TestValidateOutputFormat(t *testing.T) {
	cfg := validConfig()
	cfg.Output.Format = "tiff"
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for unsupported output format")
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := validConfig()
	seed := int64(7)
	cfg.Split.RandomSeed = &seed
	cfg.Transform.TargetDimension = 224

	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if loaded.Transform.TargetDimension != 224 {
		t.Errorf("Expected target dimension 224, got %d", loaded.Transform.TargetDimension)
	}
	if loaded.Split.RandomSeed == nil || *loaded.Split.RandomSeed != 7 {
		t.Errorf("Expected seed 7, got %v", loaded.Split.RandomSeed)
	}
}
