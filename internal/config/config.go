package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// RatioTolerance is the accepted deviation when checking that the three
// split ratios cover the whole dataset.
const RatioTolerance = 1e-6

// Config holds the application configuration
type Config struct {
	Dataset   DatasetConfig   `json:"dataset"`
	Split     SplitConfig     `json:"split"`
	Transform TransformConfig `json:"transform"`
	Output    OutputConfig    `json:"output"`
}

// DatasetConfig locates the manifest and the source image tree
type DatasetConfig struct {
	SourceRoot   string `json:"source_root"`
	MetadataPath string `json:"metadata_path"`

	// DryRun reports orphan files instead of deleting them
	DryRun bool `json:"dry_run"`
}

// SplitConfig holds configuration for the patient-grouped split
type SplitConfig struct {
	ValRatio            float64 `json:"val_ratio"`
	TestRatio           float64 `json:"test_ratio"`
	MinPatientsPerClass int     `json:"min_patients_per_class"`

	// RandomSeed makes the split reproducible. When nil the split is
	// seeded from the clock and two runs will not agree.
	RandomSeed *int64 `json:"random_seed,omitempty"`
}

// TransformConfig selects the geometric normalization steps
type TransformConfig struct {
	EnablePadding   bool    `json:"enable_padding"`
	EnableCrop      bool    `json:"enable_crop"`
	EnableResize    bool    `json:"enable_resize"`
	CropRatio       float64 `json:"crop_ratio"`
	TargetDimension int     `json:"target_dimension"`
}

// OutputConfig holds configuration for the processed image tree
type OutputConfig struct {
	OutputRoot string `json:"output_root"`
	Format     string `json:"format"`
	Quality    int    `json:"quality"`
	Lossless   bool   `json:"lossless"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Dataset: DatasetConfig{},
		Split: SplitConfig{
			ValRatio:            0.15,
			TestRatio:           0.15,
			MinPatientsPerClass: 10,
		},
		Transform: TransformConfig{
			EnablePadding:   true,
			EnableCrop:      false,
			EnableResize:    true,
			CropRatio:       1.0,
			TargetDimension: 512,
		},
		Output: OutputConfig{
			Format:  "jpg",
			Quality: 100,
		},
	}
}

// TrainRatio returns the derived train fraction
func (c *Config) TrainRatio() float64 {
	return 1.0 - c.Split.ValRatio - c.Split.TestRatio
}

// LoadFromFile loads configuration from a JSON file
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid. A failure here is fatal
// and must abort the run before any processing or deletion happens.
func (c *Config) Validate() error {
	if c.Dataset.SourceRoot == "" {
		return fmt.Errorf("dataset.source_root must be set")
	}

	if c.Dataset.MetadataPath == "" {
		return fmt.Errorf("dataset.metadata_path must be set")
	}

	if c.Output.OutputRoot == "" {
		return fmt.Errorf("output.output_root must be set")
	}

	if c.Split.ValRatio < 0 || c.Split.ValRatio >= 1 {
		return fmt.Errorf("split.val_ratio must be in [0, 1)")
	}

	if c.Split.TestRatio < 0 || c.Split.TestRatio >= 1 {
		return fmt.Errorf("split.test_ratio must be in [0, 1)")
	}

	if c.TrainRatio() <= 0 {
		return fmt.Errorf("split ratios leave no training data: val=%.3f test=%.3f",
			c.Split.ValRatio, c.Split.TestRatio)
	}

	if sum := c.TrainRatio() + c.Split.ValRatio + c.Split.TestRatio; math.Abs(sum-1.0) > RatioTolerance {
		return fmt.Errorf("split ratios must sum to 1.0, got %f", sum)
	}

	if c.Split.MinPatientsPerClass < 1 {
		return fmt.Errorf("split.min_patients_per_class must be positive")
	}

	if c.Transform.EnableCrop && (c.Transform.CropRatio <= 0 || c.Transform.CropRatio > 1) {
		return fmt.Errorf("transform.crop_ratio must be in (0, 1]")
	}

	if c.Transform.EnableResize && c.Transform.TargetDimension < 1 {
		return fmt.Errorf("transform.target_dimension must be positive")
	}

	switch c.Output.Format {
	case "jpg", "jpeg", "png", "webp":
	default:
		return fmt.Errorf("output.format must be jpg, png or webp, got %q", c.Output.Format)
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	return nil
}
